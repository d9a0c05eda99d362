// Package rendering maps rendering strategy ids to renderers and the
// capabilities each strategy declares.
package rendering

import (
	"context"
	"fmt"
	"strings"

	"github.com/estatio/docrender/internal/datamodel"
	"github.com/estatio/docrender/internal/document"
)

// Capability is a set of render contracts.
type Capability uint8

const (
	CapBytes Capability = 1 << iota
	CapChars
	CapURL
)

// Has reports whether every capability in x is in c.
func (c Capability) Has(x Capability) bool { return c&x == x }

func (c Capability) String() string {
	var parts []string
	if c.Has(CapBytes) {
		parts = append(parts, "bytes")
	}
	if c.Has(CapChars) {
		parts = append(parts, "chars")
	}
	if c.Has(CapURL) {
		parts = append(parts, "url")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// CapabilityForSort is the render contract a template of the given sort
// is rendered through.
func CapabilityForSort(s document.Sort) Capability {
	switch s {
	case document.SortText, document.SortStructuredText:
		return CapChars
	case document.SortBinary:
		return CapBytes
	}
	return 0
}

// Renderer declares the contracts it provides. A renderer that declares a
// capability must implement the matching interface below; the registry
// checks this once, when the strategy is registered.
type Renderer interface {
	Capabilities() Capability
}

type BytesRenderer interface {
	Renderer
	RenderToBytes(ctx context.Context, tpl document.Template, model datamodel.Model) ([]byte, error)
}

type CharsRenderer interface {
	Renderer
	RenderToChars(ctx context.Context, tpl document.Template, model datamodel.Model) (string, error)
}

// URLRenderer renders and publishes the output, returning where it can be
// fetched. name is the document name the output is published under.
type URLRenderer interface {
	Renderer
	RenderToURL(ctx context.Context, tpl document.Template, model datamodel.Model, name string) (string, error)
}

// PreviewKind is the shape of a preview payload.
type PreviewKind string

const (
	PreviewBlob PreviewKind = "blob"
	PreviewClob PreviewKind = "clob"
	PreviewURL  PreviewKind = "url"
)

// PreviewKinds lists every kind in presentation order.
var PreviewKinds = []PreviewKind{PreviewBlob, PreviewClob, PreviewURL}

// ParsePreviewKind accepts the kind names case-insensitively.
func ParsePreviewKind(s string) (PreviewKind, error) {
	k := PreviewKind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case PreviewBlob, PreviewClob, PreviewURL:
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown preview kind %q", document.ErrInvalidArgument, s)
}

// Capability is the render contract that produces a preview of kind k.
func (k PreviewKind) Capability() Capability {
	switch k {
	case PreviewBlob:
		return CapBytes
	case PreviewClob:
		return CapChars
	case PreviewURL:
		return CapURL
	}
	return 0
}
