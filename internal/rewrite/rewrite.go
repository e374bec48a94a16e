// Package rewrite replaces a natural-language directive in a spec file with the actions
// generated for it, so later runs execute the actions directly.
package rewrite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/cythink/api/schemas"
)

// Markers delimiting a generated block in a spec file.
const (
	MarkerPrefix = "// cythink generated code for test: "
	EndMarker    = "// end cythink generated code"
)

var (
	// ErrNotFound is returned when no invocation with the directive exists in the file.
	ErrNotFound = errors.New("directive invocation not found")
	// ErrAmbiguous is returned when the directive appears in more than one invocation.
	ErrAmbiguous = errors.New("directive invocation is ambiguous")
	// ErrInvalidRequest is returned when a required field is empty.
	ErrInvalidRequest = errors.New("invalid rewrite request")
	// ErrOutsideRoot is returned for spec paths that leave the project root.
	ErrOutsideRoot = errors.New("spec path is outside the project root")
)

// Result reports what Rewrite did.
type Result struct {
	Path string
	// Skipped is set when the file already holds generated code for the test.
	Skipped bool
}

// Rewriter edits spec files under a project root.
type Rewriter struct {
	root   string
	logger *zap.Logger
}

var _ schemas.ThoughtRecorder = (*Rewriter)(nil)

// New creates a rewriter for spec paths relative to root.
func New(root string, logger *zap.Logger) *Rewriter {
	return &Rewriter{root: root, logger: logger.Named("rewrite")}
}

// Marker returns the line that identifies generated code for a test.
func Marker(testID string) string {
	return MarkerPrefix + testID
}

// SaveGeneratedThought implements schemas.ThoughtRecorder.
func (r *Rewriter) SaveGeneratedThought(_ context.Context, req schemas.SaveGeneratedThoughtRequest) error {
	_, err := r.Rewrite(req)
	return err
}

// Rewrite replaces the single .think(<directive>) invocation of the spec file with a .steps
// invocation carrying the generated block.
func (r *Rewriter) Rewrite(req schemas.SaveGeneratedThoughtRequest) (Result, error) {
	if req.SpecIdentifier == "" || req.DirectiveText == "" || req.GeneratedActionBlock == "" {
		return Result{}, fmt.Errorf("%w: specIdentifier, directiveText and generatedActionBlock are required", ErrInvalidRequest)
	}
	path, err := r.resolve(req.SpecIdentifier)
	if err != nil {
		return Result{}, err
	}
	log := r.logger.With(zap.String("path", path), zap.String("test", req.TestIdentifier))

	info, err := os.Stat(path)
	if err != nil {
		return Result{}, fmt.Errorf("failed to stat spec file: %w", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read spec file: %w", err)
	}
	source := string(raw)

	if strings.Contains(source, Marker(req.TestIdentifier)) {
		log.Info("Spec file already holds generated code for this test, skipping.")
		return Result{Path: path, Skipped: true}, nil
	}

	updated, err := Apply(source, req.DirectiveText, req.TestIdentifier, req.GeneratedActionBlock)
	if err != nil {
		return Result{}, err
	}
	if err := writeFile(path, []byte(updated), info.Mode().Perm()); err != nil {
		return Result{}, fmt.Errorf("failed to write spec file: %w", err)
	}
	log.Info("Updated spec file with generated code.")
	return Result{Path: path}, nil
}

func (r *Rewriter) resolve(spec string) (string, error) {
	root, err := filepath.Abs(r.root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve project root: %w", err)
	}
	path := spec
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	path = filepath.Clean(path)
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, spec)
	}
	return path, nil
}

// invocationPatterns returns one pattern per accepted quote style. The optional second group
// captures an options object literal.
func invocationPatterns(directiveText string) []*regexp.Regexp {
	quoted := regexp.QuoteMeta(directiveText)
	patterns := make([]*regexp.Regexp, 0, 3)
	for _, q := range []string{"`", "'", `"`} {
		patterns = append(patterns, regexp.MustCompile(
			`(?s)\.think\(\s*`+q+quoted+q+`\s*(?:,\s*(\{[^()]*?\})\s*,?\s*)?\)`,
		))
	}
	return patterns
}

// Apply returns source with the invocation of directiveText replaced. Exactly one
// invocation must match.
func Apply(source, directiveText, testID, block string) (string, error) {
	var (
		found   []int
		options string
	)
	for _, re := range invocationPatterns(directiveText) {
		for _, m := range re.FindAllStringSubmatchIndex(source, -1) {
			if found != nil {
				return "", ErrAmbiguous
			}
			found = m
			if m[2] >= 0 {
				options = source[m[2]:m[3]]
			}
		}
	}
	if found == nil {
		return "", ErrNotFound
	}

	var b strings.Builder
	b.WriteString(source[:found[0]])
	b.WriteString(".steps(\n")
	b.WriteString(Marker(testID))
	b.WriteString("\n")
	b.WriteString(Quote(block))
	b.WriteString(",\n")
	if options != "" {
		b.WriteString(options)
		b.WriteString(",\n")
	}
	b.WriteString(EndMarker)
	b.WriteString("\n)")
	b.WriteString(source[found[1]:])
	return b.String(), nil
}

// Quote renders block as a template literal.
func Quote(block string) string {
	r := strings.NewReplacer("\\", "\\\\", "`", "\\`", "${", "\\${")
	return "`" + r.Replace(block) + "`"
}

func writeFile(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
