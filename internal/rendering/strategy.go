package rendering

import (
	"context"
	"fmt"
	"strings"

	"github.com/estatio/docrender/internal/datamodel"
	"github.com/estatio/docrender/internal/document"
)

// Flags are the capabilities a strategy declares. They may be narrower than
// what its renderer can do; the flags are what callers get.
type Flags struct {
	CanRenderBytes bool `json:"canRenderBytes"`
	CanRenderChars bool `json:"canRenderChars"`
	CanRenderURL   bool `json:"canRenderUrl"`
	PreviewAsBlob  bool `json:"previewAsBlob"`
	PreviewAsClob  bool `json:"previewAsClob"`
	PreviewAsURL   bool `json:"previewAsUrl"`
}

// AllFlags declares every render and preview capability in c.
func AllFlags(c Capability) Flags {
	return Flags{
		CanRenderBytes: c.Has(CapBytes),
		CanRenderChars: c.Has(CapChars),
		CanRenderURL:   c.Has(CapURL),
		PreviewAsBlob:  c.Has(CapBytes),
		PreviewAsClob:  c.Has(CapChars),
		PreviewAsURL:   c.Has(CapURL),
	}
}

func (f Flags) render() Capability {
	var c Capability
	if f.CanRenderBytes {
		c |= CapBytes
	}
	if f.CanRenderChars {
		c |= CapChars
	}
	if f.CanRenderURL {
		c |= CapURL
	}
	return c
}

func (f Flags) preview(k PreviewKind) bool {
	switch k {
	case PreviewBlob:
		return f.PreviewAsBlob
	case PreviewClob:
		return f.PreviewAsClob
	case PreviewURL:
		return f.PreviewAsURL
	}
	return false
}

// Strategy is a registered rendering strategy: an id, its declared flags and
// the renderer it owns. The typed contracts are bound at construction so
// dispatch never inspects the renderer.
type Strategy struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Flags Flags  `json:"flags"`

	bytes BytesRenderer
	chars CharsRenderer
	url   URLRenderer
}

// NewStrategy binds r to id under the declared flags. Every declared render
// capability must be provided by r, and every declared preview kind must be
// backed by a declared render capability.
func NewStrategy(id, name string, r Renderer, flags Flags) (*Strategy, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("rendering: strategy id is required")
	}
	if r == nil {
		return nil, fmt.Errorf("rendering: strategy %q: renderer is required", id)
	}
	s := &Strategy{ID: id, Name: name, Flags: flags}
	declared := flags.render()
	provided := r.Capabilities()
	if !provided.Has(declared) {
		return nil, fmt.Errorf("rendering: strategy %q declares %s but renderer provides %s", id, declared, provided)
	}
	if declared.Has(CapBytes) {
		br, ok := r.(BytesRenderer)
		if !ok {
			return nil, fmt.Errorf("rendering: strategy %q: renderer %T does not implement RenderToBytes", id, r)
		}
		s.bytes = br
	}
	if declared.Has(CapChars) {
		cr, ok := r.(CharsRenderer)
		if !ok {
			return nil, fmt.Errorf("rendering: strategy %q: renderer %T does not implement RenderToChars", id, r)
		}
		s.chars = cr
	}
	if declared.Has(CapURL) {
		ur, ok := r.(URLRenderer)
		if !ok {
			return nil, fmt.Errorf("rendering: strategy %q: renderer %T does not implement RenderToURL", id, r)
		}
		s.url = ur
	}
	for _, k := range PreviewKinds {
		if flags.preview(k) && !declared.Has(k.Capability()) {
			return nil, fmt.Errorf("rendering: strategy %q previews as %s without declaring %s", id, k, k.Capability())
		}
	}
	return s, nil
}

// Capabilities returns the declared render capabilities.
func (s *Strategy) Capabilities() Capability { return s.Flags.render() }

// CanRender reports whether the strategy can render a template of sort.
func (s *Strategy) CanRender(sort document.Sort) bool {
	c := CapabilityForSort(sort)
	return c != 0 && s.Capabilities().Has(c)
}

// PreviewKinds returns the declared preview kinds in presentation order.
func (s *Strategy) PreviewKinds() []PreviewKind {
	out := make([]PreviewKind, 0, len(PreviewKinds))
	for _, k := range PreviewKinds {
		if s.Flags.preview(k) {
			out = append(out, k)
		}
	}
	return out
}

// SupportsPreview reports whether k is a declared preview kind.
func (s *Strategy) SupportsPreview(k PreviewKind) bool { return s.Flags.preview(k) }

func (s *Strategy) RenderToBytes(ctx context.Context, tpl document.Template, model datamodel.Model) ([]byte, error) {
	if s.bytes == nil {
		return nil, s.unsupported(CapBytes)
	}
	return s.bytes.RenderToBytes(ctx, tpl, model)
}

func (s *Strategy) RenderToChars(ctx context.Context, tpl document.Template, model datamodel.Model) (string, error) {
	if s.chars == nil {
		return "", s.unsupported(CapChars)
	}
	return s.chars.RenderToChars(ctx, tpl, model)
}

func (s *Strategy) RenderToURL(ctx context.Context, tpl document.Template, model datamodel.Model, name string) (string, error) {
	if s.url == nil {
		return "", s.unsupported(CapURL)
	}
	return s.url.RenderToURL(ctx, tpl, model, name)
}

func (s *Strategy) unsupported(c Capability) error {
	return fmt.Errorf("%w: strategy %q does not render to %s", document.ErrUnsupportedRenderCapability, s.ID, c)
}
