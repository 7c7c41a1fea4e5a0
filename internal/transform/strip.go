package transform

import (
	"go/ast"
	"go/token"
)

// StripDefaults removes every way for a caller to omit an argument of the
// entry function: a variadic tail "xs ...T" becomes the required parameter
// "xs []T". The body already sees a slice and is left untouched; calls to
// the entry function inside the artifact are rewritten to pass a slice.
func StripDefaults(src string) (string, error) {
	fset, file, err := parseArtifact(src)
	if err != nil {
		return "", err
	}
	fn := entryFunc(file)
	if fn == nil || fn.Type.Params == nil || len(fn.Type.Params.List) == 0 {
		return render(fset, file)
	}

	last := fn.Type.Params.List[len(fn.Type.Params.List)-1]
	ell, ok := last.Type.(*ast.Ellipsis)
	if !ok {
		return render(fset, file)
	}
	last.Type = &ast.ArrayType{Lbrack: ell.Ellipsis, Elt: ell.Elt}

	fixed := fn.Type.Params.NumFields() - 1
	ast.Inspect(file, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		id, ok := call.Fun.(*ast.Ident)
		if !ok || id.Obj == nil || id.Obj.Decl != fn {
			return true
		}
		if call.Ellipsis.IsValid() {
			call.Ellipsis = token.NoPos
			return true
		}
		if len(call.Args) < fixed {
			return true
		}
		rest := &ast.CompositeLit{
			Type: &ast.ArrayType{Elt: ell.Elt},
			Elts: append([]ast.Expr(nil), call.Args[fixed:]...),
		}
		call.Args = append(call.Args[:fixed:fixed], rest)
		return true
	})

	return render(fset, file)
}
