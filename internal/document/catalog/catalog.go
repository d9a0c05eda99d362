// Package catalog selects the single template that applies to a document
// type at a location and a point in time.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/estatio/docrender/internal/document"
)

// Finder is the store query the catalog delegates to. Stores may return a
// superset of the applicable templates; the catalog filters again.
type Finder interface {
	FindTemplatesByTypeAndPathPrefixAndCurrent(ctx context.Context, typeRef, path string, asOf time.Time) ([]document.Template, error)
}

// Catalog is a read-only view over the templates of each document type.
type Catalog struct {
	finder Finder
}

func New(finder Finder) *Catalog {
	return &Catalog{finder: finder}
}

// CandidatesFor returns every live template of typeRef whose scope path
// applies to targetPath and which is effective at asOf.
func (c *Catalog) CandidatesFor(ctx context.Context, typeRef, targetPath string, asOf time.Time) ([]document.Template, error) {
	found, err := c.finder.FindTemplatesByTypeAndPathPrefixAndCurrent(ctx, typeRef, targetPath, asOf)
	if err != nil {
		return nil, fmt.Errorf("find templates for %s at %s: %w", typeRef, targetPath, err)
	}
	out := make([]document.Template, 0, len(found))
	for _, t := range found {
		if IsCandidate(t, typeRef, targetPath, asOf) {
			out = append(out, t)
		}
	}
	return out, nil
}

// IsCandidate is the filter predicate CandidatesFor applies.
func IsCandidate(t document.Template, typeRef, targetPath string, asOf time.Time) bool {
	return t.Type == typeRef &&
		!t.Retired &&
		document.Applies(t.ScopePath, targetPath) &&
		t.EffectiveAt(asOf)
}
