// Command sqllint checks SQL constants for a unique "--sql <uuid>" first line
// and rejects SQL literals passed straight to Exec, Query or QueryRow. The
// marker is what SQLRunner logs, so each one must identify a single query.
//
//	go run ./internal/tools/sqllint ./internal
package main

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var (
	sqlKeyword    = regexp.MustCompile(`(?i)^\s*(--[^\n]*\n\s*)?(select|insert|update|delete|with)\b`)
	markerPattern = regexp.MustCompile(`^--sql [0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	executorCalls = map[string]bool{"Exec": true, "Query": true, "QueryRow": true}
)

type finding struct {
	pos  token.Position
	name string
	msg  string
}

func (f finding) String() string {
	if f.name == "" {
		return fmt.Sprintf("%s:%d %s", f.pos.Filename, f.pos.Line, f.msg)
	}
	return fmt.Sprintf("%s:%d %s (%s)", f.pos.Filename, f.pos.Line, f.msg, f.name)
}

type linter struct {
	fset     *token.FileSet
	findings []finding
	seen     map[string]finding
}

func newLinter() *linter {
	return &linter{fset: token.NewFileSet(), seen: map[string]finding{}}
}

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(targets []string, stderr io.Writer) int {
	if len(targets) == 0 {
		targets = []string{"."}
	}
	l := newLinter()
	for _, target := range targets {
		if err := l.walk(target); err != nil {
			fmt.Fprintf(stderr, "sqllint: %v\n", err)
			return 2
		}
	}
	if len(l.findings) == 0 {
		return 0
	}
	fmt.Fprintf(stderr, "sqllint: %d problem(s)\n", len(l.findings))
	for _, f := range l.findings {
		fmt.Fprintf(stderr, "  %s\n", f)
	}
	return 1
}

func (l *linter) walk(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "vendor" || name == "testdata") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return l.lintSource(path, src)
	})
}

func (l *linter) lintSource(path string, src []byte) error {
	if strings.HasSuffix(path, "_test.go") {
		return nil
	}
	file, err := parser.ParseFile(l.fset, path, src, 0)
	if err != nil {
		return err
	}
	ast.Inspect(file, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.ValueSpec:
			for i, v := range n.Values {
				if sql, ok := sqlLiteral(v); ok && i < len(n.Names) {
					l.checkMarker(n.Names[i].Name, v.Pos(), sql)
				}
			}
		case *ast.CallExpr:
			sel, ok := n.Fun.(*ast.SelectorExpr)
			if !ok || !executorCalls[sel.Sel.Name] || len(n.Args) < 2 {
				return true
			}
			if _, ok := sqlLiteral(n.Args[1]); ok {
				l.report(n.Args[1].Pos(), sel.Sel.Name, "inline SQL literal; declare it in internal/sqlinline")
			}
		}
		return true
	})
	return nil
}

func (l *linter) checkMarker(name string, pos token.Pos, sql string) {
	marker := strings.TrimSpace(strings.SplitN(strings.TrimLeft(sql, " \t\r\n"), "\n", 2)[0])
	if !markerPattern.MatchString(marker) {
		l.report(pos, name, "missing or invalid --sql <uuid> marker")
		return
	}
	if prev, dup := l.seen[marker]; dup {
		l.report(pos, name, fmt.Sprintf("marker already used by %s at %s:%d", prev.name, prev.pos.Filename, prev.pos.Line))
		return
	}
	l.seen[marker] = finding{pos: l.fset.Position(pos), name: name}
}

func (l *linter) report(pos token.Pos, name, msg string) {
	l.findings = append(l.findings, finding{pos: l.fset.Position(pos), name: name, msg: msg})
}

// sqlLiteral returns the value of a string literal that reads like a query.
func sqlLiteral(e ast.Expr) (string, bool) {
	bl, ok := e.(*ast.BasicLit)
	if !ok || bl.Kind != token.STRING {
		return "", false
	}
	s, err := strconv.Unquote(bl.Value)
	if err != nil || !sqlKeyword.MatchString(s) {
		return "", false
	}
	return s, true
}
