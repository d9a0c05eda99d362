package document

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrTemplateNotFound means no template satisfies type, path and time.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrUnknownStrategy means a template names a rendering strategy that is
	// not registered.
	ErrUnknownStrategy = errors.New("unknown rendering strategy")

	// ErrDataModelMismatch means the supplied data cannot satisfy the shape
	// declared by the template's data model type.
	ErrDataModelMismatch = errors.New("data model mismatch")

	// ErrUnsupportedRenderCapability means the strategy cannot render the
	// template's content sort.
	ErrUnsupportedRenderCapability = errors.New("unsupported render capability")

	// ErrPreviewKindUnsupported means the strategy does not declare the
	// requested preview kind.
	ErrPreviewKindUnsupported = errors.New("preview kind unsupported")

	ErrUnknownDocumentType = errors.New("unknown document type")
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrSortChange          = errors.New("content sort cannot change")
)

// Stage is a step of a render or preview call.
type Stage string

const (
	StageResolving         Stage = "resolving"
	StageDataModelBuilding Stage = "data-model-building"
	StageRendering         Stage = "rendering"
	StagePersisting        Stage = "persisting"
	StageDone              Stage = "done"
)

// Error carries the diagnostic context of a failed call. Err is one of the
// sentinel errors above, possibly wrapped.
type Error struct {
	Op       string
	Stage    Stage
	Type     string
	Path     string
	AsOf     time.Time
	Strategy string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Stage != "" {
		fmt.Fprintf(&b, " (%s)", e.Stage)
	}
	fmt.Fprintf(&b, ": type %q path %q", e.Type, e.Path)
	if !e.AsOf.IsZero() {
		fmt.Fprintf(&b, " as of %s", e.AsOf.UTC().Format(time.RFC3339))
	}
	if e.Strategy != "" {
		fmt.Fprintf(&b, " strategy %q", e.Strategy)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Reason maps err to a short label for metrics and logs.
func Reason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrTemplateNotFound):
		return "template_not_found"
	case errors.Is(err, ErrUnknownStrategy):
		return "unknown_strategy"
	case errors.Is(err, ErrDataModelMismatch):
		return "data_model_mismatch"
	case errors.Is(err, ErrUnsupportedRenderCapability):
		return "unsupported_render_capability"
	case errors.Is(err, ErrPreviewKindUnsupported):
		return "preview_kind_unsupported"
	case errors.Is(err, ErrUnknownDocumentType):
		return "unknown_document_type"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrSortChange):
		return "sort_change"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}
