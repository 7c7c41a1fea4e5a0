// Package transform implements pure source-to-source rewrites of synthesized
// Go artifacts. Nothing here executes an artifact: the input is parsed with
// go/parser, rewritten on the syntax tree and printed back with go/format.
package transform

import (
	"bytes"
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"
	"strings"

	"jinn/internal/types"
)

// parseArtifact parses src as a Go file. Artifacts missing their package
// clause are parsed as package main.
func parseArtifact(src string) (*token.FileSet, *ast.File, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "artifact.go", src, parser.ParseComments)
	if err == nil {
		return fset, file, nil
	}
	if !strings.HasPrefix(strings.TrimSpace(src), "package ") {
		fset = token.NewFileSet()
		if file, retryErr := parser.ParseFile(fset, "artifact.go", "package main\n\n"+src, parser.ParseComments); retryErr == nil {
			return fset, file, nil
		}
	}
	return nil, nil, &types.TransformError{Reason: "artifact does not parse", Err: err}
}

// render prints the file back to canonical Go source.
func render(fset *token.FileSet, file *ast.File) (string, error) {
	var buf bytes.Buffer
	if err := format.Node(&buf, fset, file); err != nil {
		return "", &types.TransformError{Reason: "artifact does not print", Err: err}
	}
	return buf.String(), nil
}

// entryFunc returns the first top-level function without a receiver,
// skipping main and init.
func entryFunc(file *ast.File) *ast.FuncDecl {
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Recv != nil {
			continue
		}
		if fn.Name.Name == "main" || fn.Name.Name == "init" {
			continue
		}
		return fn
	}
	return nil
}

// findFunc returns the top-level function (no receiver) with the given name.
func findFunc(file *ast.File, name string) *ast.FuncDecl {
	for _, decl := range file.Decls {
		if fn, ok := decl.(*ast.FuncDecl); ok && fn.Recv == nil && fn.Name.Name == name {
			return fn
		}
	}
	return nil
}

// Normalize parses and reprints src, adding a package clause if missing.
func Normalize(src string) (string, error) {
	fset, file, err := parseArtifact(src)
	if err != nil {
		return "", err
	}
	return render(fset, file)
}
