package frontend

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"

	"github.com/hatlesswizard/jstaintfold/pkg/ast"
	"github.com/hatlesswizard/jstaintfold/pkg/diag"
)

// Service parses JavaScript source with tree-sitter and lowers the CST into
// this repo's typed pkg/ast dialect. It is grounded on the pack's
// pkg/parser/service.go: a registered *sitter.Language, a sync.Pool of
// reusable *sitter.Parser values, and an LRU result cache, narrowed to one
// language because this repo's evaluator has exactly one input dialect.
type Service struct {
	lang  *sitter.Language
	pool  sync.Pool
	cache *programCache
}

// NewService builds a frontend with an LRU cache holding up to cacheSize
// lowered programs (0 selects the default capacity).
func NewService(cacheSize int) *Service {
	lang := javascript.GetLanguage()
	s := &Service{lang: lang, cache: newProgramCache(cacheSize)}
	s.pool.New = func() interface{} {
		p := sitter.NewParser()
		p.SetLanguage(lang)
		return p
	}
	return s
}

// ParseFile reads path, parses it as JavaScript, and lowers the result into
// a *ast.Program. A cache hit on path skips both steps.
func (s *Service) ParseFile(path string) (*ast.Program, error) {
	if cached := s.cache.Get(path); cached != nil {
		return cached, nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	prog, err := s.ParseSource(src)
	if err != nil {
		return nil, &ErrUnsupportedConstruct{Path: path, Err: err}
	}
	s.cache.Put(path, prog)
	return prog, nil
}

// ParseSource parses src as a standalone JavaScript unit and lowers it.
// Unlike ParseFile, results are not cached, since callers passing raw
// source rarely repeat the same bytes under the same cache key.
func (s *Service) ParseSource(src []byte) (*ast.Program, error) {
	parser := s.pool.Get().(*sitter.Parser)
	defer s.pool.Put(parser)

	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	l := &lowerer{src: src}
	return l.program(tree.RootNode()), l.err
}

// Stats exposes the underlying cache's hit/miss counters.
func (s *Service) Stats() (hits, misses int64) { return s.cache.Stats() }

// lowerer walks a tree-sitter CST and builds the corresponding pkg/ast
// tree. It records the first NotImplemented it hits in err and keeps
// returning placeholder nodes after that so a single walk always reaches
// the end of the tree rather than needing panic/recover for early exit.
type lowerer struct {
	src []byte
	err error
}

func (l *lowerer) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(l.src)
}

func (l *lowerer) fail(construct string) {
	if l.err == nil {
		l.err = diag.NewNotImplemented(construct)
	}
}

func (l *lowerer) program(root *sitter.Node) *ast.Program {
	body := make([]ast.Node, 0, int(root.NamedChildCount()))
	for i := 0; i < int(root.NamedChildCount()); i++ {
		body = append(body, l.statement(root.NamedChild(i)))
	}
	return &ast.Program{Body: body}
}

func (l *lowerer) block(n *sitter.Node) *ast.BlockStatement {
	if n == nil {
		return &ast.BlockStatement{}
	}
	body := make([]ast.Node, 0, int(n.NamedChildCount()))
	for i := 0; i < int(n.NamedChildCount()); i++ {
		body = append(body, l.statement(n.NamedChild(i)))
	}
	return &ast.BlockStatement{Body: body}
}

func (l *lowerer) statement(n *sitter.Node) ast.Node {
	if n == nil {
		return &ast.EmptyStatement{}
	}
	switch n.Type() {
	case "expression_statement":
		return &ast.ExpressionStatement{Expression: l.expression(n.NamedChild(0))}
	case "statement_block":
		return l.block(n)
	case "empty_statement", ";":
		return &ast.EmptyStatement{}
	case "variable_declaration", "lexical_declaration":
		return l.variableDeclaration(n)
	case "if_statement":
		return l.ifStatement(n)
	case "while_statement":
		return &ast.WhileStatement{
			Test: l.expression(n.ChildByFieldName("condition")),
			Body: l.statement(n.ChildByFieldName("body")),
		}
	case "do_statement":
		return &ast.DoWhileStatement{
			Body: l.statement(n.ChildByFieldName("body")),
			Test: l.expression(n.ChildByFieldName("condition")),
		}
	case "for_statement":
		return l.forStatement(n)
	case "function_declaration", "generator_function_declaration":
		fn := l.functionLike(n)
		return &ast.FunctionDeclaration{ID: fn.ID, Params: fn.Params, Body: fn.Body, Generator: fn.Generator, Async: fn.Async}
	case "return_statement":
		var arg ast.Node
		if n.NamedChildCount() > 0 {
			arg = l.expression(n.NamedChild(0))
		}
		return &ast.ReturnStatement{Argument: arg}
	case "try_statement":
		return l.tryStatement(n)
	case "labeled_statement":
		return &ast.LabeledStatement{
			Label: l.text(n.ChildByFieldName("label")),
			Body:  l.statement(n.ChildByFieldName("body")),
		}
	case "break_statement":
		label := ""
		if n.NamedChildCount() > 0 {
			label = l.text(n.NamedChild(0))
		}
		return &ast.BreakStatement{Label: label}
	case "continue_statement", "switch_statement", "class_declaration",
		"throw_statement", "for_in_statement":
		l.fail(n.Type())
		return &ast.EmptyStatement{}
	default:
		// Any statement shape we don't recognize is treated as an
		// expression statement best-effort, falling back to a diagnostic
		// only if that also fails to make sense.
		return &ast.ExpressionStatement{Expression: l.expression(n)}
	}
}

func (l *lowerer) variableDeclaration(n *sitter.Node) ast.Node {
	kind := l.text(n.Child(0))
	decls := make([]*ast.VariableDeclarator, 0, int(n.NamedChildCount()))
	for i := 0; i < int(n.NamedChildCount()); i++ {
		d := n.NamedChild(i)
		if d.Type() != "variable_declarator" {
			continue
		}
		idNode := d.ChildByFieldName("name")
		if idNode.Type() != "identifier" {
			l.fail("destructuring declarator")
			continue
		}
		var init ast.Node
		if v := d.ChildByFieldName("value"); v != nil {
			init = l.expression(v)
		}
		decls = append(decls, &ast.VariableDeclarator{ID: ast.Ident(l.text(idNode)), Init: init})
	}
	return &ast.VariableDeclaration{Kind: kind, Declarations: decls}
}

func (l *lowerer) ifStatement(n *sitter.Node) ast.Node {
	test := l.expression(n.ChildByFieldName("condition"))
	cons := l.statement(n.ChildByFieldName("consequence"))
	var alt ast.Node
	if a := n.ChildByFieldName("alternative"); a != nil {
		if a.Type() == "if_statement" {
			alt = l.ifStatement(a)
		} else {
			alt = l.statement(a)
		}
	}
	return &ast.IfStatement{Test: test, Consequent: cons, Alternate: alt}
}

func (l *lowerer) forStatement(n *sitter.Node) ast.Node {
	var initN, testN, updN ast.Node
	if i := n.ChildByFieldName("initializer"); i != nil {
		if i.Type() == "variable_declaration" || i.Type() == "lexical_declaration" {
			initN = l.variableDeclaration(i)
		} else {
			initN = l.expression(i)
		}
	}
	if t := n.ChildByFieldName("condition"); t != nil {
		testN = l.expression(t)
	}
	if u := n.ChildByFieldName("increment"); u != nil {
		updN = l.expression(u)
	}
	return &ast.ForStatement{
		Init:   initN,
		Test:   testN,
		Update: updN,
		Body:   l.statement(n.ChildByFieldName("body")),
	}
}

func (l *lowerer) tryStatement(n *sitter.Node) ast.Node {
	block := l.block(n.ChildByFieldName("body"))
	var handler *ast.CatchClause
	var finalizer *ast.BlockStatement
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "catch_clause":
			var param ast.Node
			if p := c.ChildByFieldName("parameter"); p != nil {
				param = ast.Ident(l.text(p))
			}
			handler = &ast.CatchClause{Param: param, Body: l.block(c.ChildByFieldName("body"))}
		case "finally_clause":
			finalizer = l.block(c.NamedChild(0))
		}
	}
	return &ast.TryStatement{Block: block, Handler: handler, Finalizer: finalizer}
}

type loweredFunction struct {
	ID        *ast.Identifier
	Params    []ast.Node
	Body      *ast.BlockStatement
	Generator bool
	Async     bool
}

func (l *lowerer) functionLike(n *sitter.Node) loweredFunction {
	var id *ast.Identifier
	if idNode := n.ChildByFieldName("name"); idNode != nil {
		id = ast.Ident(l.text(idNode))
	}
	params := l.params(n.ChildByFieldName("parameters"))
	async := false
	for i := 0; i < int(n.ChildCount()); i++ {
		if l.text(n.Child(i)) == "async" {
			async = true
		}
	}
	generator := strings.Contains(n.Type(), "generator")
	return loweredFunction{ID: id, Params: params, Body: l.block(n.ChildByFieldName("body")), Generator: generator, Async: async}
}

func (l *lowerer) params(n *sitter.Node) []ast.Node {
	if n == nil {
		return nil
	}
	out := make([]ast.Node, 0, int(n.NamedChildCount()))
	for i := 0; i < int(n.NamedChildCount()); i++ {
		p := n.NamedChild(i)
		if p.Type() != "identifier" {
			l.fail("non-identifier parameter")
			continue
		}
		out = append(out, ast.Ident(l.text(p)))
	}
	return out
}

var logicalOps = map[string]bool{"&&": true, "||": true, "??": true}

func (l *lowerer) expression(n *sitter.Node) ast.Node {
	if n == nil {
		return ast.Ident("undefined")
	}
	switch n.Type() {
	case "parenthesized_expression":
		return l.expression(n.NamedChild(0))
	case "identifier", "shorthand_property_identifier":
		return ast.Ident(l.text(n))
	case "this":
		return ast.Ident("this")
	case "undefined":
		return ast.Ident("undefined")
	case "number":
		return l.numberLiteral(n)
	case "string":
		return &ast.StringLiteral{Value: l.stringValue(n)}
	case "true":
		return &ast.BooleanLiteral{Value: true}
	case "false":
		return &ast.BooleanLiteral{Value: false}
	case "null":
		return &ast.NullLiteral{}
	case "regex":
		return l.regexLiteral(n)
	case "binary_expression":
		return l.binaryOrLogical(n)
	case "unary_expression":
		return &ast.UnaryExpression{
			Operator: l.text(n.ChildByFieldName("operator")),
			Argument: l.expression(n.ChildByFieldName("argument")),
			Prefix:   true,
		}
	case "update_expression":
		return l.updateExpression(n)
	case "sequence_expression":
		return &ast.SequenceExpression{Expressions: l.flattenSequence(n)}
	case "assignment_expression", "augmented_assignment_expression":
		return &ast.AssignmentExpression{
			Operator: l.text(n.ChildByFieldName("operator")),
			Left:     l.expression(n.ChildByFieldName("left")),
			Right:    l.expression(n.ChildByFieldName("right")),
		}
	case "member_expression":
		return l.memberExpression(n, false)
	case "subscript_expression":
		return l.memberExpression(n, true)
	case "ternary_expression":
		return &ast.ConditionalExpression{
			Test:       l.expression(n.ChildByFieldName("condition")),
			Consequent: l.expression(n.ChildByFieldName("consequence")),
			Alternate:  l.expression(n.ChildByFieldName("alternative")),
		}
	case "array":
		return l.arrayExpression(n)
	case "function", "function_expression", "generator_function":
		fn := l.functionLike(n)
		return &ast.FunctionExpression{ID: fn.ID, Params: fn.Params, Body: fn.Body, Generator: fn.Generator, Async: fn.Async}
	case "arrow_function":
		return l.arrowFunction(n)
	case "call_expression":
		return l.callExpression(n)
	case "big_int_literal":
		return &ast.BigIntLiteral{Value: strings.TrimSuffix(l.text(n), "n")}
	default:
		l.fail(n.Type())
		return ast.Ident("undefined")
	}
}

func (l *lowerer) numberLiteral(n *sitter.Node) ast.Node {
	text := l.text(n)
	if strings.HasSuffix(text, "n") {
		return &ast.BigIntLiteral{Value: strings.TrimSuffix(text, "n")}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		f = parseNonDecimalNumber(text)
	}
	return &ast.NumericLiteral{Value: f}
}

// parseNonDecimalNumber handles 0x/0o/0b literals strconv.ParseFloat
// rejects directly.
func parseNonDecimalNumber(text string) float64 {
	base := 0
	body := text
	lower := strings.ToLower(text)
	switch {
	case strings.HasPrefix(lower, "0x"):
		base, body = 16, text[2:]
	case strings.HasPrefix(lower, "0o"):
		base, body = 8, text[2:]
	case strings.HasPrefix(lower, "0b"):
		base, body = 2, text[2:]
	default:
		return 0
	}
	n, err := strconv.ParseInt(body, base, 64)
	if err != nil {
		return 0
	}
	return float64(n)
}

// stringValue strips the surrounding quote characters and resolves the
// handful of escape sequences the obfuscated corpus actually emits.
// Template literals are a distinct grammar node ("template_string") and
// are not handled here; they surface as NotImplemented from expression's
// default case.
func (l *lowerer) stringValue(n *sitter.Node) string {
	raw := l.text(n)
	if len(raw) >= 2 {
		raw = raw[1 : len(raw)-1]
	}
	unquoted, err := strconv.Unquote(`"` + strings.ReplaceAll(raw, `"`, `\"`) + `"`)
	if err != nil {
		return raw
	}
	return unquoted
}

func (l *lowerer) regexLiteral(n *sitter.Node) ast.Node {
	pattern := ""
	flags := ""
	if p := n.ChildByFieldName("pattern"); p != nil {
		pattern = l.text(p)
	}
	if f := n.ChildByFieldName("flags"); f != nil {
		flags = l.text(f)
	}
	return &ast.RegExpLiteral{Pattern: pattern, Flags: flags}
}

func (l *lowerer) binaryOrLogical(n *sitter.Node) ast.Node {
	op := l.text(n.ChildByFieldName("operator"))
	left := l.expression(n.ChildByFieldName("left"))
	right := l.expression(n.ChildByFieldName("right"))
	if logicalOps[op] {
		return &ast.LogicalExpression{Left: left, Operator: op, Right: right}
	}
	return &ast.BinaryExpression{Left: left, Operator: op, Right: right}
}

func (l *lowerer) updateExpression(n *sitter.Node) ast.Node {
	op := l.text(n.ChildByFieldName("operator"))
	arg := l.expression(n.ChildByFieldName("argument"))
	prefix := false
	if n.ChildCount() > 0 {
		prefix = l.text(n.Child(0)) == op
	}
	return &ast.UpdateExpression{Operator: op, Argument: arg, Prefix: prefix}
}

func (l *lowerer) flattenSequence(n *sitter.Node) []ast.Node {
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")
	var out []ast.Node
	if left != nil && left.Type() == "sequence_expression" {
		out = append(out, l.flattenSequence(left)...)
	} else {
		out = append(out, l.expression(left))
	}
	out = append(out, l.expression(right))
	return out
}

func (l *lowerer) memberExpression(n *sitter.Node, computed bool) ast.Node {
	obj := l.expression(n.ChildByFieldName("object"))
	optional := false
	for i := 0; i < int(n.ChildCount()); i++ {
		if l.text(n.Child(i)) == "?." {
			optional = true
		}
	}
	var prop ast.Node
	if computed {
		prop = l.expression(n.ChildByFieldName("index"))
	} else {
		prop = ast.Ident(l.text(n.ChildByFieldName("property")))
	}
	if optional {
		return &ast.OptionalMemberExpression{Object: obj, Property: prop, Computed: computed}
	}
	return &ast.MemberExpression{Object: obj, Property: prop, Computed: computed}
}

func (l *lowerer) arrayExpression(n *sitter.Node) ast.Node {
	elems := make([]ast.Node, 0, int(n.NamedChildCount()))
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() == "spread_element" {
			l.fail("spread element")
			continue
		}
		elems = append(elems, l.expression(c))
	}
	return &ast.ArrayExpression{Elements: elems}
}

func (l *lowerer) arrowFunction(n *sitter.Node) ast.Node {
	var params []ast.Node
	if p := n.ChildByFieldName("parameter"); p != nil && p.Type() == "identifier" {
		params = []ast.Node{ast.Ident(l.text(p))}
	} else if p := n.ChildByFieldName("parameters"); p != nil {
		params = l.params(p)
	}
	bodyNode := n.ChildByFieldName("body")
	var body *ast.BlockStatement
	if bodyNode.Type() == "statement_block" {
		body = l.block(bodyNode)
	} else {
		body = &ast.BlockStatement{Body: []ast.Node{&ast.ReturnStatement{Argument: l.expression(bodyNode)}}}
	}
	async := false
	if n.ChildCount() > 0 && l.text(n.Child(0)) == "async" {
		async = true
	}
	return &ast.FunctionExpression{Params: params, Body: body, Async: async}
}

func (l *lowerer) callExpression(n *sitter.Node) ast.Node {
	callee := l.expression(n.ChildByFieldName("function"))
	argsNode := n.ChildByFieldName("arguments")
	args := make([]ast.Node, 0)
	if argsNode != nil {
		for i := 0; i < int(argsNode.NamedChildCount()); i++ {
			a := argsNode.NamedChild(i)
			if a.Type() == "spread_element" {
				l.fail("spread argument")
				continue
			}
			args = append(args, l.expression(a))
		}
	}
	return &ast.CallExpression{Callee: callee, Arguments: args}
}

// ErrUnsupportedConstruct wraps a lowering failure with the file path that
// triggered it, for the CLI's top-level error reporting.
type ErrUnsupportedConstruct struct {
	Path string
	Err  error
}

func (e *ErrUnsupportedConstruct) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *ErrUnsupportedConstruct) Unwrap() error { return e.Err }
