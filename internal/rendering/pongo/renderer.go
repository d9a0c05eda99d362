package pongo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"gopkg.in/yaml.v3"

	"github.com/estatio/docrender/internal/datamodel"
	"github.com/estatio/docrender/internal/document"
	"github.com/estatio/docrender/internal/rendering"
	"github.com/estatio/docrender/internal/sourcecache"
)

// Renderer renders textual templates to characters, or to their UTF-8
// bytes. Binary templates have no source it can compile.
type Renderer struct {
	engine   *Engine
	sanitize *bluemonday.Policy
}

var (
	_ rendering.CharsRenderer = (*Renderer)(nil)
	_ rendering.BytesRenderer = (*Renderer)(nil)
)

// RendererOption configures a Renderer.
type RendererOption func(*Renderer)

// WithHTMLSanitizer runs text/html output through policy. A nil policy
// selects bluemonday's UGC policy.
func WithHTMLSanitizer(policy *bluemonday.Policy) RendererOption {
	return func(r *Renderer) {
		if policy == nil {
			policy = bluemonday.UGCPolicy()
		}
		r.sanitize = policy
	}
}

func NewRenderer(engine *Engine, opts ...RendererOption) *Renderer {
	if engine == nil {
		engine = NewEngine()
	}
	r := &Renderer{engine: engine}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Renderer) Capabilities() rendering.Capability {
	return rendering.CapChars | rendering.CapBytes
}

func (r *Renderer) RenderToChars(ctx context.Context, tpl document.Template, model datamodel.Model) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := tpl.Content.AsChars()
	if err != nil {
		return "", err
	}
	html := isHTML(tpl.Content.MimeType)
	key := tpl.ID
	if key == "" {
		key = tpl.Key()
	}
	compiled, err := r.engine.Compile(key, sourcecache.Source{TemplateID: tpl.ID, Text: text, Revision: tpl.Revision}, html)
	if err != nil {
		return "", err
	}
	out, err := r.engine.Execute(compiled, model)
	if err != nil {
		return "", fmt.Errorf("render template %s: %w", key, err)
	}
	if html && r.sanitize != nil {
		out = r.sanitize.Sanitize(out)
	}
	if tpl.Sort() == document.SortStructuredText {
		if err := checkStructured(tpl.Content.MimeType, out); err != nil {
			return "", fmt.Errorf("render template %s: %w", key, err)
		}
	}
	return out, nil
}

func (r *Renderer) RenderToBytes(ctx context.Context, tpl document.Template, model datamodel.Model) ([]byte, error) {
	out, err := r.RenderToChars(ctx, tpl, model)
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

func isHTML(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(mimeType), "text/html")
}

// checkStructured rejects JSON or YAML output that does not parse. Other
// mime types are not checked.
func checkStructured(mimeType, out string) error {
	mt := strings.ToLower(mimeType)
	switch {
	case strings.Contains(mt, "json"):
		if !json.Valid([]byte(out)) {
			return fmt.Errorf("output is not well-formed %s", mimeType)
		}
	case strings.Contains(mt, "yaml"):
		var v any
		if err := yaml.Unmarshal([]byte(out), &v); err != nil {
			return fmt.Errorf("output is not well-formed %s: %w", mimeType, err)
		}
	}
	return nil
}
