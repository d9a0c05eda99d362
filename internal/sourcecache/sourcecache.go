// Package sourcecache serves template source text to template engine
// loaders together with a revision token for cache invalidation.
package sourcecache

import (
	"context"
	"fmt"
	"time"

	"github.com/estatio/docrender/internal/document"
	"github.com/estatio/docrender/internal/document/repository"
)

// Source is the text of the template currently in force for a type and path.
// A loader may keep whatever it compiled from Text for as long as TemplateID
// and Revision are unchanged.
type Source struct {
	TemplateID string
	Text       string
	Revision   int64
}

// SameVersion reports whether o was produced from the same template revision.
func (s Source) SameVersion(o Source) bool {
	return s.TemplateID == o.TemplateID && s.Revision == o.Revision
}

// Resolver is the template selection used to find the source.
type Resolver interface {
	Resolve(ctx context.Context, typeRef, targetPath string, asOf time.Time) (*document.Template, error)
}

// Cache answers SourceFor. It holds no state; the name is the role it
// plays for engine loaders.
type Cache struct {
	types    repository.TypeCatalog
	resolver Resolver
	now      func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the clock used as the resolution time.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New builds a Cache. types may be nil, in which case type references are
// not checked against a catalog.
func New(types repository.TypeCatalog, resolver Resolver, opts ...Option) *Cache {
	c := &Cache{
		types:    types,
		resolver: resolver,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SourceFor returns the textual content and revision of the template that
// resolves for typeRef at targetPath now. Resolution errors, including
// document.ErrTemplateNotFound, are returned unchanged. A binary template
// has no textual source.
func (c *Cache) SourceFor(ctx context.Context, typeRef, targetPath string) (Source, error) {
	if c.types != nil {
		if _, err := c.types.FindByReference(ctx, typeRef); err != nil {
			return Source{}, fmt.Errorf("source for %s: %w", typeRef, err)
		}
	}
	tpl, err := c.resolver.Resolve(ctx, typeRef, targetPath, c.now())
	if err != nil {
		return Source{}, err
	}
	text, err := tpl.Content.AsChars()
	if err != nil {
		return Source{}, fmt.Errorf("source for %s at %s: %w", typeRef, targetPath, err)
	}
	return Source{TemplateID: tpl.ID, Text: text, Revision: tpl.Revision}, nil
}
