package transform

import (
	"fmt"
	"go/ast"
	"go/token"
	"math"
	"sort"
	"strconv"
	"strings"

	"jinn/internal/types"
)

// BindOverrides binds parameters of the named function to literal values.
// Each overridden parameter is removed from the parameter list and every
// reference to it is replaced by a literal parsed from its string encoding
// according to the parameter's declared type. Keys that name no parameter
// are ignored.
func BindOverrides(src, funcName string, overrides map[string]string) (string, error) {
	fset, file, err := parseArtifact(src)
	if err != nil {
		return "", err
	}
	fn := findFunc(file, funcName)
	if fn == nil {
		return "", &types.TransformError{Func: funcName, Reason: "function not found"}
	}
	if len(overrides) == 0 || fn.Type.Params == nil {
		return render(fset, file)
	}

	bound := make(map[*ast.Object]ast.Expr)
	var kept []*ast.Field
	for _, field := range fn.Type.Params.List {
		if len(field.Names) == 0 {
			kept = append(kept, field)
			continue
		}
		var names []*ast.Ident
		for _, name := range field.Names {
			raw, ok := overrides[name.Name]
			if !ok || name.Name == "_" {
				names = append(names, name)
				continue
			}
			if _, variadic := field.Type.(*ast.Ellipsis); variadic {
				return "", &types.TransformError{Func: funcName, Reason: fmt.Sprintf("parameter %s is variadic", name.Name)}
			}
			typ, ok := field.Type.(*ast.Ident)
			if !ok {
				return "", &types.TransformError{Func: funcName, Reason: fmt.Sprintf("parameter %s has non-primitive type %s", name.Name, exprString(fset, field.Type))}
			}
			lit, err := literalFor(typ.Name, raw)
			if err != nil {
				return "", &types.TransformError{Func: funcName, Reason: fmt.Sprintf("cannot bind %s", name.Name), Err: err}
			}
			if name.Obj == nil {
				return "", &types.TransformError{Func: funcName, Reason: fmt.Sprintf("parameter %s is unresolved", name.Name)}
			}
			bound[name.Obj] = lit
		}
		if len(names) > 0 {
			field.Names = names
			kept = append(kept, field)
		}
	}
	if len(bound) == 0 {
		return render(fset, file)
	}
	fn.Type.Params.List = kept

	if fn.Body != nil {
		if name := firstMutated(fn.Body, bound); name != "" {
			return "", &types.TransformError{Func: funcName, Reason: fmt.Sprintf("parameter %s is mutated in the body", name)}
		}
		replaceIdents(fn.Body, func(id *ast.Ident) ast.Expr {
			if id.Obj == nil {
				return nil
			}
			return bound[id.Obj]
		})
	}

	return render(fset, file)
}

// firstMutated returns the name of a bound parameter that the body assigns,
// increments or takes the address of.
func firstMutated(body *ast.BlockStmt, bound map[*ast.Object]ast.Expr) string {
	var found []string
	check := func(expr ast.Expr) {
		if id, ok := expr.(*ast.Ident); ok && id.Obj != nil {
			if _, ok := bound[id.Obj]; ok {
				found = append(found, id.Name)
			}
		}
	}
	ast.Inspect(body, func(n ast.Node) bool {
		switch s := n.(type) {
		case *ast.AssignStmt:
			for _, lhs := range s.Lhs {
				check(lhs)
			}
		case *ast.IncDecStmt:
			check(s.X)
		case *ast.UnaryExpr:
			if s.Op == token.AND {
				check(s.X)
			}
		case *ast.RangeStmt:
			if s.Tok == token.ASSIGN {
				check(s.Key)
				if s.Value != nil {
					check(s.Value)
				}
			}
		}
		return true
	})
	if len(found) == 0 {
		return ""
	}
	sort.Strings(found)
	return found[0]
}

// literalFor parses raw as a constant of the primitive type typ. Types that
// are not the default type of their constant kind are emitted as conversions.
func literalFor(typ, raw string) (ast.Expr, error) {
	switch typ {
	case "string":
		value := raw
		if strings.HasPrefix(raw, `"`) || strings.HasPrefix(raw, "`") {
			if unq, err := strconv.Unquote(raw); err == nil {
				value = unq
			}
		}
		return &ast.BasicLit{Kind: token.STRING, Value: strconv.Quote(value)}, nil

	case "bool":
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid bool %q", raw)
		}
		return ast.NewIdent(strconv.FormatBool(b)), nil

	case "int", "int8", "int16", "int32", "int64", "rune":
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 0, bitSize(typ))
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q", typ, raw)
		}
		return wrap(typ, "int", numberLit(token.INT, strconv.FormatInt(n, 10))), nil

	case "uint", "uint8", "uint16", "uint32", "uint64", "uintptr", "byte":
		n, err := strconv.ParseUint(strings.TrimSpace(raw), 0, bitSize(typ))
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q", typ, raw)
		}
		return wrap(typ, "int", numberLit(token.INT, strconv.FormatUint(n, 10))), nil

	case "float32", "float64":
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), bitSize(typ))
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return nil, fmt.Errorf("invalid %s %q", typ, raw)
		}
		text := strconv.FormatFloat(f, 'g', -1, bitSize(typ))
		if !strings.ContainsAny(text, ".eE") {
			text += ".0"
		}
		return wrap(typ, "float64", numberLit(token.FLOAT, text)), nil
	}
	return nil, fmt.Errorf("type %s is not primitive", typ)
}

func bitSize(typ string) int {
	switch typ {
	case "int8", "uint8", "byte":
		return 8
	case "int16", "uint16":
		return 16
	case "int32", "uint32", "rune", "float32":
		return 32
	}
	return 64
}

// numberLit builds a numeric literal. Negative values become a
// parenthesized unary expression so they bind correctly in any context.
func numberLit(kind token.Token, text string) ast.Expr {
	if strings.HasPrefix(text, "-") {
		return &ast.ParenExpr{X: &ast.UnaryExpr{
			Op: token.SUB,
			X:  &ast.BasicLit{Kind: kind, Value: strings.TrimPrefix(text, "-")},
		}}
	}
	return &ast.BasicLit{Kind: kind, Value: text}
}

func wrap(typ, defaultType string, lit ast.Expr) ast.Expr {
	if typ == defaultType {
		return lit
	}
	if p, ok := lit.(*ast.ParenExpr); ok {
		lit = p.X
	}
	return &ast.CallExpr{Fun: ast.NewIdent(typ), Args: []ast.Expr{lit}}
}
