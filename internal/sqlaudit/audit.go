// Package sqlaudit checks that every SQL string constant carries a unique
// "--sql <uuid>" marker so the query runner can attribute its log lines.
package sqlaudit

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

var (
	sqlPattern    = regexp.MustCompile(`(?i)\b(select|insert|update|delete|with)\b`)
	markerPattern = regexp.MustCompile(`^--sql [0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

// DefaultExclude skips test files and vendored or hidden trees.
var DefaultExclude = []string{"**/*_test.go", "**/vendor/**", "**/.*/**", "_examples/**"}

type Violation struct {
	File    string
	Line    int
	Name    string
	Message string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s:%d %s (%s)", v.File, v.Line, v.Message, v.Name)
}

// Lint scans the Go files under root matching include (default "**/*.go")
// and not matching any exclude pattern.
func Lint(root string, include string, exclude []string) ([]Violation, error) {
	if include == "" {
		include = "**/*.go"
	}
	fsys := os.DirFS(root)
	paths, err := doublestar.Glob(fsys, include, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", include, err)
	}
	sort.Strings(paths)

	seen := make(map[string]Violation)
	var out []Violation
	for _, p := range paths {
		if excluded(p, exclude) {
			continue
		}
		vs, markers, err := lintFile(fsys, p)
		if err != nil {
			return nil, err
		}
		for i := range vs {
			vs[i].File = filepath.Join(root, vs[i].File)
		}
		out = append(out, vs...)
		for _, m := range markers {
			m.File = filepath.Join(root, m.File)
			if first, dup := seen[m.Message]; dup {
				out = append(out, Violation{
					File:    m.File,
					Line:    m.Line,
					Name:    m.Name,
					Message: "duplicate marker, first used by " + first.Name,
				})
				continue
			}
			seen[m.Message] = m
		}
	}
	return out, nil
}

func excluded(path string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, path); ok {
			return true
		}
	}
	return false
}

// lintFile returns the violations of one file and, separately, every valid
// marker found, carried in Violation.Message.
func lintFile(fsys fs.FS, path string) ([]Violation, []Violation, error) {
	src, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, nil, err
	}
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, src, parser.SkipObjectResolution)
	if err != nil {
		return nil, nil, err
	}
	var violations, markers []Violation
	ast.Inspect(file, func(n ast.Node) bool {
		vs, ok := n.(*ast.ValueSpec)
		if !ok {
			return true
		}
		for i, value := range vs.Values {
			lit, ok := value.(*ast.BasicLit)
			if !ok || lit.Kind != token.STRING {
				continue
			}
			raw, err := unquote(lit.Value)
			if err != nil || !sqlPattern.MatchString(raw) {
				continue
			}
			name := "_"
			if i < len(vs.Names) {
				name = vs.Names[i].Name
			}
			v := Violation{File: path, Line: fset.Position(lit.Pos()).Line, Name: name}
			marker := firstLine(raw)
			if !markerPattern.MatchString(marker) {
				v.Message = "missing or invalid --sql <uuid> marker"
				violations = append(violations, v)
				continue
			}
			v.Message = marker
			markers = append(markers, v)
		}
		return true
	})
	return violations, markers, nil
}

func firstLine(s string) string {
	s = strings.TrimLeft(s, "\n\r \t")
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}

func unquote(v string) (string, error) {
	if strings.HasPrefix(v, "`") {
		return strings.Trim(v, "`"), nil
	}
	return strconv.Unquote(v)
}
