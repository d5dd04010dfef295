// Package query selects open documents with CEL (Common Expression Language)
// predicates over their metadata.
//
// An expression sees these variables:
//
//	uri       string  the document URI
//	language  string  the language identifier
//	version   int     the latest version
//	lines     int     the number of lines
//	bytes     int     the content length in bytes
//
// For example: language == "go" && lines > 100.
package query

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/stefanvanburen/textdocs/internal/textdoc"
)

// Filter is a compiled predicate. The zero value of *Filter (nil) matches
// every document.
type Filter struct {
	expr string
	prg  cel.Program
}

func newEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("uri", cel.StringType),
		cel.Variable("language", cel.StringType),
		cel.Variable("version", cel.IntType),
		cel.Variable("lines", cel.IntType),
		cel.Variable("bytes", cel.IntType),
	)
}

// Compile parses and type-checks expr. An empty expression yields a nil
// Filter, which matches everything.
func Compile(expr string) (*Filter, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, nil
	}
	env, err := newEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues.Err() != nil {
		return nil, fmt.Errorf("compiling filter %q: %w", expr, issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("filter %q has type %s, want bool", expr, out)
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("planning filter %q: %w", expr, err)
	}
	return &Filter{expr: expr, prg: prg}, nil
}

// String returns the source expression.
func (f *Filter) String() string {
	if f == nil {
		return "true"
	}
	return f.expr
}

// Match evaluates the filter against info.
func (f *Filter) Match(info textdoc.Info) (bool, error) {
	if f == nil {
		return true, nil
	}
	out, _, err := f.prg.Eval(map[string]any{
		"uri":      info.URI,
		"language": info.LanguageID,
		"version":  int64(info.Version),
		"lines":    int64(info.LineCount),
		"bytes":    int64(info.Length),
	})
	if err != nil {
		return false, fmt.Errorf("evaluating filter %q on %s: %w", f.expr, info.URI, err)
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("filter %q on %s: got %s, want bool", f.expr, info.URI, out.Type())
	}
	return matched, nil
}

// Select returns the infos matched by f, in order.
func Select(f *Filter, infos []textdoc.Info) ([]textdoc.Info, error) {
	selected := make([]textdoc.Info, 0, len(infos))
	for _, info := range infos {
		ok, err := f.Match(info)
		if err != nil {
			return nil, err
		}
		if ok {
			selected = append(selected, info)
		}
	}
	return selected, nil
}
