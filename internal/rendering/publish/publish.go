// Package publish adds the URL capability to a renderer: the output is
// uploaded to object storage and a presigned link is returned.
package publish

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/estatio/docrender/internal/datamodel"
	"github.com/estatio/docrender/internal/document"
	"github.com/estatio/docrender/internal/rendering"
	"github.com/estatio/docrender/internal/storage"
)

const defaultExpiry = 15 * time.Minute

// Option configures a Renderer.
type Option func(*Renderer)

// WithExpiry sets how long published links stay valid.
func WithExpiry(d time.Duration) Option {
	return func(r *Renderer) {
		if d > 0 {
			r.expiry = d
		}
	}
}

// WithPrefix sets the object key prefix.
func WithPrefix(prefix string) Option {
	return func(r *Renderer) { r.prefix = strings.Trim(prefix, "/") }
}

// Renderer wraps another renderer. It keeps the wrapped capabilities and
// adds CapURL.
type Renderer struct {
	caps   rendering.Capability
	bytes  rendering.BytesRenderer
	chars  rendering.CharsRenderer
	store  storage.ObjectStore
	expiry time.Duration
	prefix string
	newID  func() string
}

var _ rendering.URLRenderer = (*Renderer)(nil)

// New wraps inner. inner must provide bytes or chars.
func New(inner rendering.Renderer, store storage.ObjectStore, opts ...Option) (*Renderer, error) {
	if inner == nil || store == nil {
		return nil, fmt.Errorf("publish: renderer and store are required")
	}
	r := &Renderer{
		store:  store,
		expiry: defaultExpiry,
		prefix: "previews",
		newID:  uuid.NewString,
	}
	caps := inner.Capabilities()
	if br, ok := inner.(rendering.BytesRenderer); ok && caps.Has(rendering.CapBytes) {
		r.bytes = br
		r.caps |= rendering.CapBytes
	}
	if cr, ok := inner.(rendering.CharsRenderer); ok && caps.Has(rendering.CapChars) {
		r.chars = cr
		r.caps |= rendering.CapChars
	}
	if r.caps == 0 {
		return nil, fmt.Errorf("publish: %T renders neither bytes nor chars", inner)
	}
	r.caps |= rendering.CapURL
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Renderer) Capabilities() rendering.Capability { return r.caps }

func (r *Renderer) RenderToBytes(ctx context.Context, tpl document.Template, model datamodel.Model) ([]byte, error) {
	if r.bytes == nil {
		return nil, fmt.Errorf("%w: wrapped renderer has no bytes output", document.ErrUnsupportedRenderCapability)
	}
	return r.bytes.RenderToBytes(ctx, tpl, model)
}

func (r *Renderer) RenderToChars(ctx context.Context, tpl document.Template, model datamodel.Model) (string, error) {
	if r.chars == nil {
		return "", fmt.Errorf("%w: wrapped renderer has no chars output", document.ErrUnsupportedRenderCapability)
	}
	return r.chars.RenderToChars(ctx, tpl, model)
}

// RenderToURL renders through the contract matching the template sort,
// uploads the result under name and returns a presigned link to it.
func (r *Renderer) RenderToURL(ctx context.Context, tpl document.Template, model datamodel.Model, name string) (string, error) {
	payload, err := r.payload(ctx, tpl, model)
	if err != nil {
		return "", err
	}
	if name == "" {
		name = tpl.Content.Name
	}
	if name == "" {
		name = tpl.Name
	}
	key := path.Join(r.prefix, tpl.Type, r.newID(), path.Base("/"+name))
	if err := r.store.Put(ctx, key, payload, tpl.Content.MimeType); err != nil {
		return "", fmt.Errorf("publish %s: %w", key, err)
	}
	u, err := r.store.PresignedURL(ctx, key, r.expiry)
	if err != nil {
		return "", fmt.Errorf("publish %s: %w", key, err)
	}
	return u, nil
}

func (r *Renderer) payload(ctx context.Context, tpl document.Template, model datamodel.Model) ([]byte, error) {
	if tpl.Sort() == document.SortBinary || r.chars == nil {
		return r.RenderToBytes(ctx, tpl, model)
	}
	s, err := r.chars.RenderToChars(ctx, tpl, model)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}
