package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/estatio/docrender/internal/document"
)

var (
	ErrNotFound      = document.ErrNotFound
	ErrAlreadyExists = document.ErrAlreadyExists
)

// TemplateRepository persists document templates. Templates are never
// physically deleted; Retire hides them from resolution.
type TemplateRepository interface {
	Create(ctx context.Context, t *document.Template) (string, error)
	Get(ctx context.Context, id string) (*document.Template, error)
	List(ctx context.Context, typeRef string) ([]document.Template, error)
	FindByTypeAndAtPath(ctx context.Context, typeRef, path string) ([]document.Template, error)
	FindTemplatesByTypeAndPathPrefixAndCurrent(ctx context.Context, typeRef, path string, asOf time.Time) ([]document.Template, error)
	UpdateContent(ctx context.Context, id string, content document.Content) (int64, error)
	GetRevision(ctx context.Context, id string) (int64, error)
	Retire(ctx context.Context, id string) error
}

// DocumentRepository takes ownership of rendered artifacts. It is append only.
type DocumentRepository interface {
	CreateDocument(ctx context.Context, typeRef, path string, artifact document.RenderedDocument) (document.Document, error)
	GetDocument(ctx context.Context, id string) (*document.Document, error)
}

// TypeCatalog looks up document types by reference.
type TypeCatalog interface {
	FindByReference(ctx context.Context, ref string) (*document.DocumentType, error)
}

// prepareTemplate validates t and fills the fields every store sets on
// creation: id, normalized scope path, revision 1 and timestamps.
func prepareTemplate(t *document.Template, now time.Time) error {
	if t == nil {
		return fmt.Errorf("%w: template is required", document.ErrInvalidArgument)
	}
	if t.Type == "" {
		return fmt.Errorf("%w: template type is required", document.ErrInvalidArgument)
	}
	if err := t.Content.Validate(); err != nil {
		return err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.ScopePath = document.NormalizePath(t.ScopePath)
	if t.EffectiveDate != nil {
		d := document.Day(*t.EffectiveDate)
		t.EffectiveDate = &d
	}
	t.Revision = 1
	t.Retired = false
	t.CreatedAt = now
	t.UpdatedAt = now
	return nil
}

// checkContentUpdate reports whether replacing current with next changes
// anything. The sort is fixed at creation.
func checkContentUpdate(current, next document.Content) (bool, error) {
	if err := next.Validate(); err != nil {
		return false, err
	}
	if current.Sort != next.Sort {
		return false, fmt.Errorf("%w: %s to %s", document.ErrSortChange, current.Sort, next.Sort)
	}
	return !current.Equal(next), nil
}

func cloneTemplate(t document.Template) document.Template {
	if t.EffectiveDate != nil {
		d := *t.EffectiveDate
		t.EffectiveDate = &d
	}
	if t.Content.Bytes != nil {
		t.Content.Bytes = append([]byte(nil), t.Content.Bytes...)
	}
	return t
}
