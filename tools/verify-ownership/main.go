// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// verify-ownership fails when code outside the owning packages writes job
// lifecycle fields or spawns processes directly.
//
//   - model.Job Status, Progress, EndedAt, Error, Cancellable and Pausable
//     are assigned only by internal/registry (and internal/model helpers).
//   - exec.Command and exec.CommandContext are called only by
//     internal/exec/procio and internal/procgroup, so every tool runs in its
//     own process group and is tracked for termination.
//
// Usage: go run ./tools/verify-ownership [packages]
package main

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/tools/go/packages"
)

const modulePath = "github.com/ManuGH/xgrab"

var guardedFields = map[string]struct{}{
	"Status":      {},
	"Progress":    {},
	"EndedAt":     {},
	"Error":       {},
	"Cancellable": {},
	"Pausable":    {},
}

var (
	fieldOwners = []string{
		modulePath + "/internal/registry",
		modulePath + "/internal/model",
	}
	spawnOwners = []string{
		modulePath + "/internal/exec/procio",
		modulePath + "/internal/procgroup",
	}
)

func main() {
	patterns := os.Args[1:]
	if len(patterns) == 0 {
		patterns = []string{"./internal/...", "./cmd/..."}
	}
	violations, err := Analyze(patterns...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load packages: %v\n", err)
		os.Exit(1)
	}
	if len(violations) > 0 {
		fmt.Fprintln(os.Stderr, "ownership violations found:")
		for _, v := range violations {
			fmt.Fprintln(os.Stderr, v)
		}
		os.Exit(1)
	}
}

// Analyze loads patterns and returns one line per violation.
func Analyze(patterns ...string) ([]string, error) {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedFiles | packages.NeedCompiledGoFiles |
			packages.NeedSyntax | packages.NeedTypes | packages.NeedTypesInfo,
		Dir: ".",
	}
	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, err
	}
	if n := packages.PrintErrors(pkgs); n > 0 {
		return nil, fmt.Errorf("%d package errors", n)
	}

	var violations []string
	for _, pkg := range pkgs {
		ownsFields := hasPrefix(pkg.PkgPath, fieldOwners)
		ownsSpawn := hasPrefix(pkg.PkgPath, spawnOwners)
		if ownsFields && ownsSpawn {
			continue
		}
		for _, file := range pkg.Syntax {
			filename := pkg.Fset.File(file.Pos()).Name()
			if strings.HasSuffix(filename, "_test.go") {
				continue
			}
			ast.Inspect(file, func(n ast.Node) bool {
				switch node := n.(type) {
				case *ast.AssignStmt:
					if ownsFields {
						return true
					}
					for _, lhs := range node.Lhs {
						sel, ok := lhs.(*ast.SelectorExpr)
						if !ok || !isJob(sel.X, pkg.TypesInfo) {
							continue
						}
						if _, ok := guardedFields[sel.Sel.Name]; ok {
							violations = append(violations, formatViolation(pkg.Fset, filename, sel.Pos(),
								fmt.Sprintf("direct Job.%s write (use registry.Transition/Finish/SetProgress)", sel.Sel.Name)))
						}
					}
				case *ast.CallExpr:
					if ownsSpawn {
						return true
					}
					if name, ok := execSpawn(node, pkg.TypesInfo); ok {
						violations = append(violations, formatViolation(pkg.Fset, filename, node.Pos(),
							fmt.Sprintf("direct exec.%s (use procio.Run)", name)))
					}
				}
				return true
			})
		}
	}
	return violations, nil
}

func hasPrefix(path string, owners []string) bool {
	for _, o := range owners {
		if path == o || strings.HasPrefix(path, o+"/") {
			return true
		}
	}
	return false
}

func isJob(expr ast.Expr, info *types.Info) bool {
	typ := info.TypeOf(expr)
	if typ == nil {
		return false
	}
	if ptr, ok := typ.(*types.Pointer); ok {
		typ = ptr.Elem()
	}
	named, ok := typ.(*types.Named)
	if !ok || named.Obj().Pkg() == nil {
		return false
	}
	return named.Obj().Name() == "Job" && named.Obj().Pkg().Path() == modulePath+"/internal/model"
}

func execSpawn(call *ast.CallExpr, info *types.Info) (string, bool) {
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok {
		return "", false
	}
	fn, ok := info.Uses[sel.Sel].(*types.Func)
	if !ok || fn.Pkg() == nil || fn.Pkg().Path() != "os/exec" {
		return "", false
	}
	switch fn.Name() {
	case "Command", "CommandContext":
		return fn.Name(), true
	}
	return "", false
}

func formatViolation(fset *token.FileSet, filename string, pos token.Pos, msg string) string {
	p := fset.Position(pos)
	rel := filename
	if wd, err := os.Getwd(); err == nil {
		if r, err := filepath.Rel(wd, filename); err == nil {
			rel = r
		}
	}
	return fmt.Sprintf("%s:%d: %s", rel, p.Line, msg)
}
