package radiusconf

import (
	"bytes"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"sort"
	"text/template"

	"github.com/portcullis-nac/portcullis/internal/radiusconf/attrs"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Renderer executes the stanza templates for the module-style artifacts.
type Renderer struct {
	tpl    *template.Template
	digest string
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	return NewRendererFS(templateFS, "templates/*.tmpl")
}

// NewRendererFS parses templates matching patterns from fsys.
func NewRendererFS(fsys fs.FS, patterns ...string) (*Renderer, error) {
	funcMap := template.FuncMap{
		"quote": attrs.Quote,
		"yesno": func(v bool) string {
			if v {
				return "yes"
			}
			return "no"
		},
		"orDefault": orDefault,
	}
	tpl, err := template.New("radiusconf").Funcs(funcMap).ParseFS(fsys, patterns...)
	if err != nil {
		return nil, fmt.Errorf("radiusconf renderer: %w", err)
	}
	digest, err := templateDigest(fsys, patterns)
	if err != nil {
		return nil, fmt.Errorf("radiusconf renderer: %w", err)
	}
	return &Renderer{tpl: tpl, digest: digest}, nil
}

// Digest identifies the template sources the renderer was parsed from.
func (r *Renderer) Digest() string {
	if r == nil {
		return ""
	}
	return r.digest
}

func templateDigest(fsys fs.FS, patterns []string) (string, error) {
	seen := map[string]struct{}{}
	var names []string
	for _, pattern := range patterns {
		matches, err := fs.Glob(fsys, pattern)
		if err != nil {
			return "", err
		}
		for _, name := range matches {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	sort.Strings(names)

	h := sha256.New()
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(h, "%s\x00%d\x00", name, len(data))
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Render executes one named template.
func (r *Renderer) Render(name string, data any) ([]byte, error) {
	if r == nil || r.tpl == nil {
		return nil, fmt.Errorf("radiusconf renderer not initialised")
	}
	t := r.tpl.Lookup(name)
	if t == nil {
		return nil, fmt.Errorf("radiusconf renderer: template %s not found", name)
	}
	buf := &bytes.Buffer{}
	if err := t.Execute(buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// renderOr renders name, or returns fallback plus a warning when the template
// fails. An artifact is never left missing because of a template problem.
func (r *Renderer) renderOr(name string, data any, fallback []byte) ([]byte, []string) {
	out, err := r.Render(name, data)
	if err != nil {
		return fallback, []string{fmt.Sprintf("template %s failed, fallback rendered: %v", name, err)}
	}
	return out, nil
}

func orDefault(def, v string) string {
	if v == "" {
		return def
	}
	return v
}
