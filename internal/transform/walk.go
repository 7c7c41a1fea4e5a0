package transform

import (
	"go/ast"
	"reflect"
)

var (
	exprType   = reflect.TypeOf((*ast.Expr)(nil)).Elem()
	objectType = reflect.TypeOf((*ast.Object)(nil))
	scopeType  = reflect.TypeOf((*ast.Scope)(nil))
	litType    = reflect.TypeOf((*ast.CompositeLit)(nil))
)

// replaceIdents replaces every identifier held in an expression slot below
// node with repl's result, when non-nil. Identifiers in name positions
// (declarations, selectors, labels) are concrete *ast.Ident fields and are
// never replaced. Field names used as keys in struct literals are not
// references either and are kept.
func replaceIdents(node ast.Node, repl func(*ast.Ident) ast.Expr) {
	walkValue(reflect.ValueOf(node), repl)
}

func walkValue(v reflect.Value, repl func(*ast.Ident) ast.Expr) {
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() || v.Type() == objectType || v.Type() == scopeType {
			return
		}
		if v.Type() == litType {
			walkComposite(v.Interface().(*ast.CompositeLit), nil, repl)
			return
		}
		walkValue(v.Elem(), repl)
	case reflect.Interface:
		if !v.IsNil() {
			walkValue(v.Elem(), repl)
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			visitSlot(v.Field(i), repl)
		}
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			visitSlot(v.Index(i), repl)
		}
	}
}

func visitSlot(slot reflect.Value, repl func(*ast.Ident) ast.Expr) {
	if slot.Type() == exprType && !slot.IsNil() && slot.CanSet() {
		if id, ok := slot.Interface().(*ast.Ident); ok {
			if lit := repl(id); lit != nil {
				slot.Set(reflect.ValueOf(lit))
			}
			return
		}
	}
	walkValue(slot, repl)
}

// walkComposite visits a composite literal. elided is the type inherited
// from the enclosing literal when lit omits its own.
func walkComposite(lit *ast.CompositeLit, elided ast.Expr, repl func(*ast.Ident) ast.Expr) {
	typ := lit.Type
	if typ == nil {
		typ = elided
	} else {
		visitSlot(reflect.ValueOf(&lit.Type).Elem(), repl)
	}
	if star, ok := typ.(*ast.StarExpr); ok {
		typ = star.X
	}

	// Keys of map and array literals are expressions; anything else is
	// treated as a struct whose keys are field names.
	var keyed bool
	var keyType, elemType ast.Expr
	switch t := typ.(type) {
	case *ast.MapType:
		keyed, keyType, elemType = true, t.Key, t.Value
	case *ast.ArrayType:
		keyed, elemType = true, t.Elt
	}

	for i := range lit.Elts {
		kv, ok := lit.Elts[i].(*ast.KeyValueExpr)
		if !ok {
			visitElem(&lit.Elts[i], elemType, repl)
			continue
		}
		if _, field := kv.Key.(*ast.Ident); keyed || !field {
			visitElem(&kv.Key, keyType, repl)
		}
		visitElem(&kv.Value, elemType, repl)
	}
}

func visitElem(slot *ast.Expr, elided ast.Expr, repl func(*ast.Ident) ast.Expr) {
	if lit, ok := (*slot).(*ast.CompositeLit); ok && lit.Type == nil {
		walkComposite(lit, elided, repl)
		return
	}
	visitSlot(reflect.ValueOf(slot).Elem(), repl)
}
