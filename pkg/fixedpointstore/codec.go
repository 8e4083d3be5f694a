// Package fixedpointstore is the optional on-disk counterpart to
// pkg/eval's in-memory loop fixed-point cache (pkg/eval/fixedpoint_cache.go):
// a sqlite3-backed memo of tainted-loop (test, body) residual pairs, keyed
// by a content hash, so a CLI re-run over an unchanged file can skip
// re-simplifying loops already proven stable. The evaluator itself never
// reads this back as execution state; this is purely a driver-loop
// optimization the evaluator is unaware of.
package fixedpointstore

import (
	"encoding/json"
	"fmt"

	"github.com/hatlesswizard/jstaintfold/pkg/ast"
)

// node is the JSON wire shape every pkg/ast.Node round-trips through: a
// discriminant tag plus whichever of the generic fields that node kind
// uses. A single flat envelope (rather than one Go type per node) keeps
// the codec a single small file instead of duplicating pkg/ast's type
// list a second time.
type node struct {
	Type string `json:"type"`

	Str   string  `json:"str,omitempty"`
	Num   float64 `json:"num,omitempty"`
	Bool  bool    `json:"bool,omitempty"`
	Flags string  `json:"flags,omitempty"`

	A *node   `json:"a,omitempty"` // left / object / test / block / callee
	B *node   `json:"b,omitempty"` // right / property / consequent / body
	C *node   `json:"c,omitempty"` // alternate / update / finalizer
	D *node   `json:"d,omitempty"` // init (for-loop) / handler param
	L []*node `json:"l,omitempty"` // body list / elements / params / args

	Op       string `json:"op,omitempty"`
	Computed bool   `json:"computed,omitempty"`
	Optional bool   `json:"optional,omitempty"`
	Prefix   bool   `json:"prefix,omitempty"`
	Kind     string `json:"kind,omitempty"` // var-decl kind / declarator
	Label    string `json:"label,omitempty"`
}

// encode converts a pkg/ast.Node into the wire envelope. Only the node
// kinds that can appear in a loop's test expression or body block (the
// dialect minus Program/top-level-only shapes) need handling; any other
// shape is an internal invariant in the caller this package never
// manufactures.
func encode(n ast.Node) (*node, error) {
	if n == nil {
		return nil, nil
	}
	switch v := n.(type) {
	case *ast.Identifier:
		return &node{Type: "Identifier", Str: v.Name}, nil
	case *ast.StringLiteral:
		return &node{Type: "String", Str: v.Value}, nil
	case *ast.NumericLiteral:
		return &node{Type: "Number", Num: v.Value}, nil
	case *ast.BooleanLiteral:
		return &node{Type: "Bool", Bool: v.Value}, nil
	case *ast.NullLiteral:
		return &node{Type: "Null"}, nil
	case *ast.BigIntLiteral:
		return &node{Type: "BigInt", Str: v.Value}, nil
	case *ast.RegExpLiteral:
		return &node{Type: "Regex", Str: v.Pattern, Flags: v.Flags}, nil
	case *ast.BinaryExpression:
		return binaryLike("Binary", v.Left, v.Operator, v.Right)
	case *ast.LogicalExpression:
		return binaryLike("Logical", v.Left, v.Operator, v.Right)
	case *ast.UnaryExpression:
		a, err := encode(v.Argument)
		if err != nil {
			return nil, err
		}
		return &node{Type: "Unary", Op: v.Operator, Prefix: v.Prefix, A: a}, nil
	case *ast.UpdateExpression:
		a, err := encode(v.Argument)
		if err != nil {
			return nil, err
		}
		return &node{Type: "Update", Op: v.Operator, Prefix: v.Prefix, A: a}, nil
	case *ast.SequenceExpression:
		l, err := encodeList(v.Expressions)
		if err != nil {
			return nil, err
		}
		return &node{Type: "Sequence", L: l}, nil
	case *ast.AssignmentExpression:
		return binaryLike("Assign", v.Left, v.Operator, v.Right)
	case *ast.MemberExpression:
		return memberLike("Member", v.Object, v.Property, v.Computed, false)
	case *ast.OptionalMemberExpression:
		return memberLike("Member", v.Object, v.Property, v.Computed, true)
	case *ast.ConditionalExpression:
		test, err := encode(v.Test)
		if err != nil {
			return nil, err
		}
		cons, err := encode(v.Consequent)
		if err != nil {
			return nil, err
		}
		alt, err := encode(v.Alternate)
		if err != nil {
			return nil, err
		}
		return &node{Type: "Conditional", A: test, B: cons, C: alt}, nil
	case *ast.ArrayExpression:
		l, err := encodeList(v.Elements)
		if err != nil {
			return nil, err
		}
		return &node{Type: "Array", L: l}, nil
	case *ast.CallExpression:
		callee, err := encode(v.Callee)
		if err != nil {
			return nil, err
		}
		args, err := encodeList(v.Arguments)
		if err != nil {
			return nil, err
		}
		return &node{Type: "Call", A: callee, L: args}, nil
	case *ast.FunctionExpression:
		return encodeFunction("Function", v.ID, v.Params, v.Body)
	case *ast.ExpressionStatement:
		a, err := encode(v.Expression)
		if err != nil {
			return nil, err
		}
		return &node{Type: "ExprStmt", A: a}, nil
	case *ast.BlockStatement:
		l, err := encodeList(v.Body)
		if err != nil {
			return nil, err
		}
		return &node{Type: "Block", L: l}, nil
	case *ast.EmptyStatement:
		return &node{Type: "Empty"}, nil
	case *ast.VariableDeclaration:
		l, err := encodeDeclarators(v.Declarations)
		if err != nil {
			return nil, err
		}
		return &node{Type: "VarDecl", Kind: v.Kind, L: l}, nil
	case *ast.IfStatement:
		test, err := encode(v.Test)
		if err != nil {
			return nil, err
		}
		cons, err := encode(v.Consequent)
		if err != nil {
			return nil, err
		}
		alt, err := encode(v.Alternate)
		if err != nil {
			return nil, err
		}
		return &node{Type: "If", A: test, B: cons, C: alt}, nil
	case *ast.WhileStatement:
		return loopLike("While", nil, v.Test, v.Body, nil)
	case *ast.DoWhileStatement:
		return loopLike("DoWhile", nil, v.Test, v.Body, nil)
	case *ast.ForStatement:
		return loopLike("For", v.Init, v.Test, v.Body, v.Update)
	case *ast.ReturnStatement:
		a, err := encode(v.Argument)
		if err != nil {
			return nil, err
		}
		return &node{Type: "Return", A: a}, nil
	case *ast.TryStatement:
		block, err := encode(v.Block)
		if err != nil {
			return nil, err
		}
		var handler *node
		if v.Handler != nil {
			var param *node
			if v.Handler.Param != nil {
				param, err = encode(v.Handler.Param)
				if err != nil {
					return nil, err
				}
			}
			body, err := encode(v.Handler.Body)
			if err != nil {
				return nil, err
			}
			handler = &node{Type: "Catch", D: param, A: body}
		}
		fin, err := encode(v.Finalizer)
		if err != nil {
			return nil, err
		}
		return &node{Type: "Try", A: block, B: handler, C: fin}, nil
	case *ast.LabeledStatement:
		body, err := encode(v.Body)
		if err != nil {
			return nil, err
		}
		return &node{Type: "Labeled", Label: v.Label, A: body}, nil
	case *ast.BreakStatement:
		return &node{Type: "Break", Label: v.Label}, nil
	default:
		return nil, fmt.Errorf("fixedpointstore: unsupported node kind %T", n)
	}
}

func binaryLike(kind string, left ast.Node, op string, right ast.Node) (*node, error) {
	a, err := encode(left)
	if err != nil {
		return nil, err
	}
	b, err := encode(right)
	if err != nil {
		return nil, err
	}
	return &node{Type: kind, Op: op, A: a, B: b}, nil
}

func memberLike(kind string, obj, prop ast.Node, computed, optional bool) (*node, error) {
	a, err := encode(obj)
	if err != nil {
		return nil, err
	}
	b, err := encode(prop)
	if err != nil {
		return nil, err
	}
	return &node{Type: kind, Computed: computed, Optional: optional, A: a, B: b}, nil
}

func loopLike(kind string, init, test, body, update ast.Node) (*node, error) {
	d, err := encode(init)
	if err != nil {
		return nil, err
	}
	a, err := encode(test)
	if err != nil {
		return nil, err
	}
	b, err := encode(body)
	if err != nil {
		return nil, err
	}
	c, err := encode(update)
	if err != nil {
		return nil, err
	}
	return &node{Type: kind, D: d, A: a, B: b, C: c}, nil
}

func encodeFunction(kind string, id *ast.Identifier, params []ast.Node, body *ast.BlockStatement) (*node, error) {
	var idNode *node
	if id != nil {
		idNode = &node{Type: "Identifier", Str: id.Name}
	}
	paramNodes, err := encodeList(params)
	if err != nil {
		return nil, err
	}
	bodyNode, err := encode(body)
	if err != nil {
		return nil, err
	}
	return &node{Type: kind, D: idNode, L: paramNodes, A: bodyNode}, nil
}

func encodeList(ns []ast.Node) ([]*node, error) {
	out := make([]*node, len(ns))
	for i, n := range ns {
		enc, err := encode(n)
		if err != nil {
			return nil, err
		}
		out[i] = enc
	}
	return out, nil
}

func encodeDeclarators(decls []*ast.VariableDeclarator) ([]*node, error) {
	out := make([]*node, len(decls))
	for i, d := range decls {
		id, err := encode(d.ID)
		if err != nil {
			return nil, err
		}
		init, err := encode(d.Init)
		if err != nil {
			return nil, err
		}
		out[i] = &node{Type: "Declarator", A: id, B: init}
	}
	return out, nil
}

// decode is encode's inverse.
func decode(n *node) (ast.Node, error) {
	if n == nil {
		return nil, nil
	}
	switch n.Type {
	case "Identifier":
		return &ast.Identifier{Name: n.Str}, nil
	case "String":
		return &ast.StringLiteral{Value: n.Str}, nil
	case "Number":
		return &ast.NumericLiteral{Value: n.Num}, nil
	case "Bool":
		return &ast.BooleanLiteral{Value: n.Bool}, nil
	case "Null":
		return &ast.NullLiteral{}, nil
	case "BigInt":
		return &ast.BigIntLiteral{Value: n.Str}, nil
	case "Regex":
		return &ast.RegExpLiteral{Pattern: n.Str, Flags: n.Flags}, nil
	case "Binary":
		l, r, err := decodePair(n)
		if err != nil {
			return nil, err
		}
		return &ast.BinaryExpression{Left: l, Operator: n.Op, Right: r}, nil
	case "Logical":
		l, r, err := decodePair(n)
		if err != nil {
			return nil, err
		}
		return &ast.LogicalExpression{Left: l, Operator: n.Op, Right: r}, nil
	case "Assign":
		l, r, err := decodePair(n)
		if err != nil {
			return nil, err
		}
		return &ast.AssignmentExpression{Left: l, Operator: n.Op, Right: r}, nil
	case "Unary":
		a, err := decode(n.A)
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpression{Operator: n.Op, Argument: a, Prefix: n.Prefix}, nil
	case "Update":
		a, err := decode(n.A)
		if err != nil {
			return nil, err
		}
		return &ast.UpdateExpression{Operator: n.Op, Argument: a, Prefix: n.Prefix}, nil
	case "Sequence":
		l, err := decodeList(n.L)
		if err != nil {
			return nil, err
		}
		return &ast.SequenceExpression{Expressions: l}, nil
	case "Member":
		l, r, err := decodePair(n)
		if err != nil {
			return nil, err
		}
		if n.Optional {
			return &ast.OptionalMemberExpression{Object: l, Property: r, Computed: n.Computed}, nil
		}
		return &ast.MemberExpression{Object: l, Property: r, Computed: n.Computed}, nil
	case "Conditional":
		a, err := decode(n.A)
		if err != nil {
			return nil, err
		}
		b, err := decode(n.B)
		if err != nil {
			return nil, err
		}
		c, err := decode(n.C)
		if err != nil {
			return nil, err
		}
		return &ast.ConditionalExpression{Test: a, Consequent: b, Alternate: c}, nil
	case "Array":
		l, err := decodeList(n.L)
		if err != nil {
			return nil, err
		}
		return &ast.ArrayExpression{Elements: l}, nil
	case "Call":
		a, err := decode(n.A)
		if err != nil {
			return nil, err
		}
		l, err := decodeList(n.L)
		if err != nil {
			return nil, err
		}
		return &ast.CallExpression{Callee: a, Arguments: l}, nil
	case "Function":
		return decodeFunction(n)
	case "ExprStmt":
		a, err := decode(n.A)
		if err != nil {
			return nil, err
		}
		return &ast.ExpressionStatement{Expression: a}, nil
	case "Block":
		l, err := decodeList(n.L)
		if err != nil {
			return nil, err
		}
		return &ast.BlockStatement{Body: l}, nil
	case "Empty":
		return &ast.EmptyStatement{}, nil
	case "VarDecl":
		decls, err := decodeDeclarators(n.L)
		if err != nil {
			return nil, err
		}
		return &ast.VariableDeclaration{Kind: n.Kind, Declarations: decls}, nil
	case "If":
		a, err := decode(n.A)
		if err != nil {
			return nil, err
		}
		b, err := decode(n.B)
		if err != nil {
			return nil, err
		}
		c, err := decode(n.C)
		if err != nil {
			return nil, err
		}
		return &ast.IfStatement{Test: a, Consequent: b, Alternate: c}, nil
	case "While", "DoWhile", "For":
		return decodeLoop(n)
	case "Return":
		a, err := decode(n.A)
		if err != nil {
			return nil, err
		}
		return &ast.ReturnStatement{Argument: a}, nil
	case "Try":
		return decodeTry(n)
	case "Labeled":
		a, err := decode(n.A)
		if err != nil {
			return nil, err
		}
		return &ast.LabeledStatement{Label: n.Label, Body: a}, nil
	case "Break":
		return &ast.BreakStatement{Label: n.Label}, nil
	default:
		return nil, fmt.Errorf("fixedpointstore: unknown wire node type %q", n.Type)
	}
}

func decodePair(n *node) (ast.Node, ast.Node, error) {
	a, err := decode(n.A)
	if err != nil {
		return nil, nil, err
	}
	b, err := decode(n.B)
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

func decodeList(ns []*node) ([]ast.Node, error) {
	out := make([]ast.Node, len(ns))
	for i, n := range ns {
		dec, err := decode(n)
		if err != nil {
			return nil, err
		}
		out[i] = dec
	}
	return out, nil
}

func decodeDeclarators(ns []*node) ([]*ast.VariableDeclarator, error) {
	out := make([]*ast.VariableDeclarator, len(ns))
	for i, n := range ns {
		id, err := decode(n.A)
		if err != nil {
			return nil, err
		}
		init, err := decode(n.B)
		if err != nil {
			return nil, err
		}
		out[i] = &ast.VariableDeclarator{ID: id, Init: init}
	}
	return out, nil
}

func decodeFunction(n *node) (ast.Node, error) {
	var id *ast.Identifier
	if n.D != nil {
		id = &ast.Identifier{Name: n.D.Str}
	}
	params, err := decodeList(n.L)
	if err != nil {
		return nil, err
	}
	bodyNode, err := decode(n.A)
	if err != nil {
		return nil, err
	}
	body, _ := bodyNode.(*ast.BlockStatement)
	return &ast.FunctionExpression{ID: id, Params: params, Body: body}, nil
}

func decodeLoop(n *node) (ast.Node, error) {
	init, err := decode(n.D)
	if err != nil {
		return nil, err
	}
	test, err := decode(n.A)
	if err != nil {
		return nil, err
	}
	body, err := decode(n.B)
	if err != nil {
		return nil, err
	}
	update, err := decode(n.C)
	if err != nil {
		return nil, err
	}
	switch n.Type {
	case "While":
		return &ast.WhileStatement{Test: test, Body: body}, nil
	case "DoWhile":
		return &ast.DoWhileStatement{Test: test, Body: body}, nil
	default:
		return &ast.ForStatement{Init: init, Test: test, Update: update, Body: body}, nil
	}
}

func decodeTry(n *node) (ast.Node, error) {
	block, err := decode(n.A)
	if err != nil {
		return nil, err
	}
	blockStmt, _ := block.(*ast.BlockStatement)
	var handler *ast.CatchClause
	if n.B != nil {
		param, err := decode(n.B.D)
		if err != nil {
			return nil, err
		}
		body, err := decode(n.B.A)
		if err != nil {
			return nil, err
		}
		bodyStmt, _ := body.(*ast.BlockStatement)
		handler = &ast.CatchClause{Param: param, Body: bodyStmt}
	}
	fin, err := decode(n.C)
	if err != nil {
		return nil, err
	}
	finStmt, _ := fin.(*ast.BlockStatement)
	return &ast.TryStatement{Block: blockStmt, Handler: handler, Finalizer: finStmt}, nil
}

// marshal/unmarshal expose the codec as plain JSON bytes for the store's
// BLOB columns.
func marshal(n ast.Node) ([]byte, error) {
	enc, err := encode(n)
	if err != nil {
		return nil, err
	}
	return json.Marshal(enc)
}

func unmarshal(data []byte) (ast.Node, error) {
	var n node
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, err
	}
	return decode(&n)
}
