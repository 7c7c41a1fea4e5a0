package transform

import (
	"bytes"
	"go/ast"
	"go/printer"
	"go/token"
	"strconv"

	"jinn/internal/types"
)

// Param is one declared parameter of an artifact function.
type Param struct {
	Name string
	// Type is the source text of the declared type. For a variadic
	// parameter it is the element type.
	Type     string
	Variadic bool
}

// Signature describes an artifact function's call contract.
type Signature struct {
	Name         string
	Params       []Param
	Results      int
	ReturnsError bool
}

// ParamNames returns parameter names in declaration order.
func (s *Signature) ParamNames() []string {
	names := make([]string, len(s.Params))
	for i, p := range s.Params {
		names[i] = p.Name
	}
	return names
}

// Param returns the parameter with the given name.
func (s *Signature) Param(name string) (Param, bool) {
	for _, p := range s.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// Inspect parses the entry function's signature.
func Inspect(src string) (*Signature, error) {
	fset, file, err := parseArtifact(src)
	if err != nil {
		return nil, err
	}
	fn := entryFunc(file)
	if fn == nil {
		return nil, &types.TransformError{Reason: "no top-level function found"}
	}
	return signatureOf(fset, fn), nil
}

// InspectFunc parses the signature of the named top-level function.
func InspectFunc(src, name string) (*Signature, error) {
	fset, file, err := parseArtifact(src)
	if err != nil {
		return nil, err
	}
	fn := findFunc(file, name)
	if fn == nil {
		return nil, &types.TransformError{Func: name, Reason: "function not found"}
	}
	return signatureOf(fset, fn), nil
}

// Imports lists the import paths of src.
func Imports(src string) ([]string, error) {
	_, file, err := parseArtifact(src)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(file.Imports))
	for _, imp := range file.Imports {
		path, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			return nil, &types.TransformError{Reason: "bad import path " + imp.Path.Value, Err: err}
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func signatureOf(fset *token.FileSet, fn *ast.FuncDecl) *Signature {
	sig := &Signature{Name: fn.Name.Name}
	if fn.Type.Params != nil {
		for _, field := range fn.Type.Params.List {
			typ, variadic := field.Type, false
			if ell, ok := field.Type.(*ast.Ellipsis); ok {
				typ, variadic = ell.Elt, true
			}
			text := exprString(fset, typ)
			if len(field.Names) == 0 {
				sig.Params = append(sig.Params, Param{Name: "_", Type: text, Variadic: variadic})
				continue
			}
			for _, name := range field.Names {
				sig.Params = append(sig.Params, Param{Name: name.Name, Type: text, Variadic: variadic})
			}
		}
	}
	if fn.Type.Results != nil {
		for _, field := range fn.Type.Results.List {
			n := len(field.Names)
			if n == 0 {
				n = 1
			}
			sig.Results += n
		}
		last := fn.Type.Results.List[len(fn.Type.Results.List)-1]
		if id, ok := last.Type.(*ast.Ident); ok && id.Name == "error" {
			sig.ReturnsError = true
		}
	}
	return sig
}

func exprString(fset *token.FileSet, expr ast.Expr) string {
	var buf bytes.Buffer
	if err := printer.Fprint(&buf, fset, expr); err != nil {
		return ""
	}
	return buf.String()
}
