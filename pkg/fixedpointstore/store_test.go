package fixedpointstore

import (
	"path/filepath"
	"testing"

	"github.com/hatlesswizard/jstaintfold/pkg/ast"
)

func TestOpenCreatesTheSchemaAndGetMissesOnAnEmptyStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.sqlite")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if _, _, ok, err := s.Get("nonexistent"); ok || err != nil {
		t.Fatalf("Get on an empty store: ok=%v err=%v, want ok=false err=nil", ok, err)
	}
}

func TestStorePutGetRoundTripsTestAndBody(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.sqlite")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	test := ast.Ident("t")
	body := &ast.BlockStatement{Body: []ast.Node{
		&ast.ExpressionStatement{Expression: &ast.AssignmentExpression{Operator: "=", Left: ast.Ident("x"), Right: &ast.NumericLiteral{Value: 2}}},
	}}

	if err := s.Put("h1", test, body); err != nil {
		t.Fatalf("Put: %v", err)
	}

	gotTest, gotBody, ok, err := s.Get("h1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected a hit after Put")
	}
	if !ast.Equivalent(test, gotTest) {
		t.Errorf("round-tripped test = %#v, want structurally equivalent to %#v", gotTest, test)
	}
	if !ast.Equivalent(body, gotBody) {
		t.Errorf("round-tripped body = %#v, want structurally equivalent to %#v", gotBody, body)
	}
}

func TestStorePutWithNilTestRoundTripsBodyOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.sqlite")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	body := &ast.BlockStatement{Body: []ast.Node{&ast.EmptyStatement{}}}
	if err := s.Put("h2", nil, body); err != nil {
		t.Fatalf("Put: %v", err)
	}

	gotTest, gotBody, ok, err := s.Get("h2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected a hit after Put")
	}
	if gotTest != nil {
		t.Errorf("expected a nil test to round-trip as nil, got %#v", gotTest)
	}
	if !ast.Equivalent(body, gotBody) {
		t.Errorf("round-tripped body = %#v, want structurally equivalent to %#v", gotBody, body)
	}
}

func TestStorePutOverwritesAnExistingHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.sqlite")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	first := &ast.BlockStatement{Body: []ast.Node{&ast.EmptyStatement{}}}
	second := &ast.BlockStatement{Body: []ast.Node{&ast.EmptyStatement{}, &ast.EmptyStatement{}}}

	if err := s.Put("h3", nil, first); err != nil {
		t.Fatalf("Put (first): %v", err)
	}
	if err := s.Put("h3", nil, second); err != nil {
		t.Fatalf("Put (second): %v", err)
	}

	_, gotBody, ok, err := s.Get("h3")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected a hit")
	}
	if !ast.Equivalent(second, gotBody) {
		t.Errorf("expected the second Put to overwrite the first, got %#v", gotBody)
	}
}

func TestHashIsStableAndDistinguishesDifferentBodies(t *testing.T) {
	a := &ast.BlockStatement{Body: []ast.Node{&ast.ExpressionStatement{Expression: &ast.NumericLiteral{Value: 1}}}}
	b := &ast.BlockStatement{Body: []ast.Node{&ast.ExpressionStatement{Expression: &ast.NumericLiteral{Value: 1}}}}
	c := &ast.BlockStatement{Body: []ast.Node{&ast.ExpressionStatement{Expression: &ast.NumericLiteral{Value: 2}}}}

	if Hash(a) != Hash(b) {
		t.Error("expected two structurally identical bodies to hash the same")
	}
	if Hash(a) == Hash(c) {
		t.Error("expected two different bodies to hash differently")
	}
}
