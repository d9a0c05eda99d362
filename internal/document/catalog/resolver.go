package catalog

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/estatio/docrender/internal/document"
)

// Resolver picks the one template that wins for a type, path and time.
type Resolver struct {
	catalog *Catalog
}

func NewResolver(c *Catalog) *Resolver {
	return &Resolver{catalog: c}
}

// Resolve returns the most specific current template. Candidates are
// ordered by scope path segment count, then by the greater normalized path,
// then by effective date with undated templates last. The selection key is
// unique so the order is total.
//
// When nothing applies the error wraps document.ErrTemplateNotFound. No
// default template is substituted.
func (r *Resolver) Resolve(ctx context.Context, typeRef, targetPath string, asOf time.Time) (*document.Template, error) {
	candidates, err := r.catalog.CandidatesFor(ctx, typeRef, targetPath, asOf)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, &document.Error{
			Op:   "resolve",
			Type: typeRef,
			Path: targetPath,
			AsOf: asOf,
			Err: fmt.Errorf("%w: could not find any templates for document type ref: %s, atPath: %s",
				document.ErrTemplateNotFound, typeRef, targetPath),
		}
	}
	Order(candidates)
	out := candidates[0]
	return &out, nil
}

// Order sorts templates into resolution order, winner first.
func Order(ts []document.Template) {
	sort.SliceStable(ts, func(i, j int) bool { return Less(ts[i], ts[j]) })
}

// Less reports whether a outranks b.
func Less(a, b document.Template) bool {
	sa, sb := document.Specificity(a.ScopePath), document.Specificity(b.ScopePath)
	if sa != sb {
		return sa > sb
	}
	pa, pb := document.NormalizePath(a.ScopePath), document.NormalizePath(b.ScopePath)
	if pa != pb {
		return pa > pb
	}
	switch da, db := a.EffectiveDate, b.EffectiveDate; {
	case da == nil && db == nil:
	case da == nil:
		return false
	case db == nil:
		return true
	case !da.Equal(*db):
		return da.After(*db)
	}
	// Only reachable for duplicate selection keys, which stores reject.
	return a.ID < b.ID
}
