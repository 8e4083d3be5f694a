// Package printer turns the evaluator's residual pkg/ast tree back into
// source text. It is a CLI-only collaborator, kept outside pkg/eval so the
// evaluator itself has no presentation concerns. Grounded on
// pkg/output/graph.go's pattern (a strings.Builder walked recursively, one
// method per node shape) but over this repo's own dialect instead of a flow
// graph.
//
// This is deliberately unambitious: no line-width wrapping, no comment
// preservation (comments are always discarded), no source maps.
package printer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hatlesswizard/jstaintfold/pkg/ast"
)

// Printer renders a residual tree to JavaScript source text.
type Printer struct {
	sb     strings.Builder
	indent int
}

// New returns a ready-to-use Printer.
func New() *Printer { return &Printer{} }

// Print renders prog's top-level statements, one per line, and returns the
// accumulated text.
func Print(prog *ast.Program) string {
	p := New()
	for _, stmt := range prog.Body {
		p.writeIndent()
		p.statement(stmt)
		p.sb.WriteByte('\n')
	}
	return p.sb.String()
}

// PrintStatements renders an arbitrary top-level statement list the same
// way Print does, for callers (e.g. the CLI) that hold the evaluator's
// []ast.Node result directly rather than a wrapped Program.
func PrintStatements(body []ast.Node) string {
	return Print(&ast.Program{Body: body})
}

func (p *Printer) writeIndent() {
	p.sb.WriteString(strings.Repeat("  ", p.indent))
}

func (p *Printer) statement(n ast.Node) {
	switch v := n.(type) {
	case nil:
		return
	case *ast.ExpressionStatement:
		p.expression(v.Expression, 0)
		p.sb.WriteByte(';')
	case *ast.EmptyStatement:
		p.sb.WriteByte(';')
	case *ast.BlockStatement:
		p.block(v)
	case *ast.VariableDeclaration:
		p.variableDeclaration(v)
	case *ast.IfStatement:
		p.ifStatement(v)
	case *ast.WhileStatement:
		p.sb.WriteString("while (")
		p.expression(v.Test, 0)
		p.sb.WriteString(") ")
		p.statement(v.Body)
	case *ast.DoWhileStatement:
		p.sb.WriteString("do ")
		p.statement(v.Body)
		p.sb.WriteString(" while (")
		p.expression(v.Test, 0)
		p.sb.WriteString(");")
	case *ast.ForStatement:
		p.forStatement(v)
	case *ast.FunctionDeclaration:
		p.functionLike("function", v.ID, v.Params, v.Body)
	case *ast.ReturnStatement:
		p.sb.WriteString("return")
		if v.Argument != nil {
			p.sb.WriteByte(' ')
			p.expression(v.Argument, 0)
		}
		p.sb.WriteByte(';')
	case *ast.TryStatement:
		p.tryStatement(v)
	case *ast.LabeledStatement:
		p.sb.WriteString(v.Label)
		p.sb.WriteString(": ")
		p.statement(v.Body)
	case *ast.BreakStatement:
		p.sb.WriteString("break")
		if v.Label != "" {
			p.sb.WriteByte(' ')
			p.sb.WriteString(v.Label)
		}
		p.sb.WriteByte(';')
	default:
		// Any node shape reaching here through a miswired residual is
		// rendered as a best-effort expression rather than panicking the
		// CLI; pkg/eval's own invariants are what keep this unreachable in
		// practice.
		p.expression(n, 0)
		p.sb.WriteByte(';')
	}
}

func (p *Printer) block(b *ast.BlockStatement) {
	if b == nil || len(b.Body) == 0 {
		p.sb.WriteString("{}")
		return
	}
	p.sb.WriteString("{\n")
	p.indent++
	for _, stmt := range b.Body {
		p.writeIndent()
		p.statement(stmt)
		p.sb.WriteByte('\n')
	}
	p.indent--
	p.writeIndent()
	p.sb.WriteByte('}')
}

func (p *Printer) variableDeclaration(v *ast.VariableDeclaration) {
	kind := v.Kind
	if kind == "" {
		kind = "var"
	}
	p.sb.WriteString(kind)
	p.sb.WriteByte(' ')
	for i, d := range v.Declarations {
		if i > 0 {
			p.sb.WriteString(", ")
		}
		p.expression(d.ID, 0)
		if d.Init != nil {
			p.sb.WriteString(" = ")
			p.expression(d.Init, 0)
		}
	}
	p.sb.WriteByte(';')
}

func (p *Printer) ifStatement(v *ast.IfStatement) {
	p.sb.WriteString("if (")
	p.expression(v.Test, 0)
	p.sb.WriteString(") ")
	p.statement(v.Consequent)
	if v.Alternate == nil {
		return
	}
	p.sb.WriteString(" else ")
	if nested, ok := v.Alternate.(*ast.IfStatement); ok {
		p.ifStatement(nested)
		return
	}
	p.statement(v.Alternate)
}

func (p *Printer) forStatement(v *ast.ForStatement) {
	p.sb.WriteString("for (")
	switch init := v.Init.(type) {
	case nil:
	case *ast.VariableDeclaration:
		p.variableDeclaration(init)
		p.sb.WriteString(" ")
	default:
		p.expression(v.Init, 0)
		p.sb.WriteString("; ")
	}
	if v.Init == nil {
		p.sb.WriteString("; ")
	}
	if v.Test != nil {
		p.expression(v.Test, 0)
	}
	p.sb.WriteString("; ")
	if v.Update != nil {
		p.expression(v.Update, 0)
	}
	p.sb.WriteString(") ")
	p.statement(v.Body)
}

func (p *Printer) functionLike(keyword string, id *ast.Identifier, params []ast.Node, body *ast.BlockStatement) {
	p.sb.WriteString(keyword)
	p.sb.WriteByte(' ')
	if id != nil {
		p.sb.WriteString(id.Name)
	}
	p.sb.WriteByte('(')
	for i, param := range params {
		if i > 0 {
			p.sb.WriteString(", ")
		}
		p.expression(param, 0)
	}
	p.sb.WriteString(") ")
	p.block(body)
}

func (p *Printer) tryStatement(v *ast.TryStatement) {
	p.sb.WriteString("try ")
	p.block(v.Block)
	if v.Handler != nil {
		p.sb.WriteString(" catch ")
		if v.Handler.Param != nil {
			p.sb.WriteByte('(')
			p.expression(v.Handler.Param, 0)
			p.sb.WriteString(") ")
		}
		p.block(v.Handler.Body)
	}
	if v.Finalizer != nil {
		p.sb.WriteString(" finally ")
		p.block(v.Finalizer)
	}
}

// precedence levels used to decide when a sub-expression needs parens.
// Lower binds looser; 0 is "top of a statement/argument position", where
// nothing ever needs wrapping on its own account.
var binaryPrecedence = map[string]int{
	"??": 1, "||": 2, "&&": 3,
	"|": 4, "^": 5, "&": 6,
	"==": 7, "!=": 7, "===": 7, "!==": 7,
	"<": 8, "<=": 8, ">": 8, ">=": 8, "in": 8, "instanceof": 8,
	"<<": 9, ">>": 9, ">>>": 9,
	"+": 10, "-": 10,
	"*": 11, "/": 11, "%": 11,
	"**": 12,
}

func opPrecedence(op string) int {
	if pr, ok := binaryPrecedence[op]; ok {
		return pr
	}
	return 13
}

func (p *Printer) expression(n ast.Node, parentPrec int) {
	switch v := n.(type) {
	case *ast.Identifier:
		p.sb.WriteString(v.Name)
	case *ast.StringLiteral:
		p.sb.WriteString(strconv.Quote(v.Value))
	case *ast.NumericLiteral:
		p.sb.WriteString(formatNumber(v.Value))
	case *ast.BooleanLiteral:
		p.sb.WriteString(strconv.FormatBool(v.Value))
	case *ast.NullLiteral:
		p.sb.WriteString("null")
	case *ast.BigIntLiteral:
		p.sb.WriteString(v.Value)
		p.sb.WriteByte('n')
	case *ast.RegExpLiteral:
		p.sb.WriteByte('/')
		p.sb.WriteString(v.Pattern)
		p.sb.WriteByte('/')
		p.sb.WriteString(v.Flags)
	case *ast.BinaryExpression:
		p.binaryLike(v.Left, v.Operator, v.Right, parentPrec)
	case *ast.LogicalExpression:
		p.binaryLike(v.Left, v.Operator, v.Right, parentPrec)
	case *ast.UnaryExpression:
		p.unary(v, parentPrec)
	case *ast.UpdateExpression:
		p.update(v)
	case *ast.SequenceExpression:
		p.parenIf(parentPrec > 0, func() {
			for i, e := range v.Expressions {
				if i > 0 {
					p.sb.WriteString(", ")
				}
				p.expression(e, 1)
			}
		})
	case *ast.AssignmentExpression:
		p.parenIf(parentPrec > 1, func() {
			p.expression(v.Left, 2)
			p.sb.WriteByte(' ')
			p.sb.WriteString(v.Operator)
			p.sb.WriteByte(' ')
			p.expression(v.Right, 1)
		})
	case *ast.MemberExpression:
		p.member(v.Object, v.Property, v.Computed, false)
	case *ast.OptionalMemberExpression:
		p.member(v.Object, v.Property, v.Computed, true)
	case *ast.ConditionalExpression:
		p.parenIf(parentPrec > 2, func() {
			p.expression(v.Test, 3)
			p.sb.WriteString(" ? ")
			p.expression(v.Consequent, 1)
			p.sb.WriteString(" : ")
			p.expression(v.Alternate, 1)
		})
	case *ast.ArrayExpression:
		p.sb.WriteByte('[')
		for i, el := range v.Elements {
			if i > 0 {
				p.sb.WriteString(", ")
			}
			if el == nil {
				continue
			}
			p.expression(el, 1)
		}
		p.sb.WriteByte(']')
	case *ast.FunctionExpression:
		p.parenIf(parentPrec > 0, func() {
			p.functionLike("function", v.ID, v.Params, v.Body)
		})
	case *ast.CallExpression:
		p.expression(v.Callee, 14)
		p.sb.WriteByte('(')
		for i, a := range v.Arguments {
			if i > 0 {
				p.sb.WriteString(", ")
			}
			p.expression(a, 1)
		}
		p.sb.WriteByte(')')
	case *ast.VariableDeclarator:
		p.expression(v.ID, 0)
		if v.Init != nil {
			p.sb.WriteString(" = ")
			p.expression(v.Init, 1)
		}
	default:
		p.sb.WriteString(fmt.Sprintf("/* unprintable %T */", n))
	}
}

func (p *Printer) parenIf(wrap bool, body func()) {
	if wrap {
		p.sb.WriteByte('(')
	}
	body()
	if wrap {
		p.sb.WriteByte(')')
	}
}

func (p *Printer) binaryLike(left ast.Node, op string, right ast.Node, parentPrec int) {
	prec := opPrecedence(op)
	p.parenIf(prec < parentPrec, func() {
		p.expression(left, prec)
		p.sb.WriteByte(' ')
		p.sb.WriteString(op)
		p.sb.WriteByte(' ')
		// Right-associativity only matters for **, which this evaluator
		// never folds into chained residuals from simplification, so a
		// fixed +1 for the right side is a conservative, always-safe
		// over-parenthesization rather than a precision loss.
		p.expression(right, prec+1)
	})
}

func (p *Printer) unary(v *ast.UnaryExpression, parentPrec int) {
	prec := 13
	p.parenIf(prec < parentPrec, func() {
		if isWordOperator(v.Operator) {
			p.sb.WriteString(v.Operator)
			p.sb.WriteByte(' ')
		} else {
			p.sb.WriteString(v.Operator)
		}
		p.expression(v.Argument, prec)
	})
}

func isWordOperator(op string) bool {
	switch op {
	case "typeof", "void", "throw", "delete":
		return true
	default:
		return false
	}
}

func (p *Printer) update(v *ast.UpdateExpression) {
	if v.Prefix {
		p.sb.WriteString(v.Operator)
		p.expression(v.Argument, 13)
		return
	}
	p.expression(v.Argument, 13)
	p.sb.WriteString(v.Operator)
}

func (p *Printer) member(obj, prop ast.Node, computed, optional bool) {
	p.expression(obj, 14)
	if optional {
		p.sb.WriteString("?.")
	}
	if computed {
		p.sb.WriteByte('[')
		p.expression(prop, 0)
		p.sb.WriteByte(']')
		return
	}
	if !optional {
		p.sb.WriteByte('.')
	}
	p.expression(prop, 0)
}

func formatNumber(f float64) string {
	switch {
	case f != f:
		return "NaN"
	case f > 1.7976931348623157e+308:
		return "Infinity"
	case f < -1.7976931348623157e+308:
		return "-Infinity"
	}
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
