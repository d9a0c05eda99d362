package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/estatio/docrender/internal/document"
	"github.com/estatio/docrender/internal/document/repository"
	"github.com/estatio/docrender/internal/rendering"
	"github.com/estatio/docrender/pkg/logger"
	"github.com/estatio/docrender/pkg/metrics"
)

var (
	ErrNotFound = document.ErrNotFound
)

// Service defines the template administration operations used by the
// handler layer.
type Service interface {
	Create(ctx context.Context, t *document.Template) (string, error)
	Get(ctx context.Context, id string) (*document.Template, error)
	List(ctx context.Context, typeRef string) ([]document.Template, error)
	ListAtPath(ctx context.Context, typeRef, path string) ([]document.Template, error)
	UpdateContent(ctx context.Context, id string, content document.Content) (int64, error)
	Retire(ctx context.Context, id string) error
}

// StrategyLookup resolves strategy ids for validation.
type StrategyLookup interface {
	Get(id string) (*rendering.Strategy, error)
}

// DataModels reports which data model types have a registered shape.
type DataModels interface {
	Has(typeName string) bool
}

// New returns a Service over repo. models may be nil to skip the data
// model check.
func New(repo repository.TemplateRepository, strategies StrategyLookup, models DataModels) Service {
	return &templateService{
		repo:       repo,
		strategies: strategies,
		models:     models,
		log:        logger.With("component", "template-service"),
	}
}

// NewMemoryService returns a Service backed by the in-memory repository.
func NewMemoryService(strategies StrategyLookup, models DataModels) Service {
	return New(repository.NewMemoryTemplateRepo(), strategies, models)
}

type templateService struct {
	repo       repository.TemplateRepository
	strategies StrategyLookup
	models     DataModels
	log        *slog.Logger
}

// Create checks that the template can ever be rendered before storing it:
// its strategy must exist and must render the content sort.
func (s *templateService) Create(ctx context.Context, t *document.Template) (string, error) {
	if t == nil {
		return "", fmt.Errorf("%w: template is required", document.ErrInvalidArgument)
	}
	if err := t.Content.Validate(); err != nil {
		return "", err
	}
	strategy, err := s.strategies.Get(t.RenderingStrategyID)
	if err != nil {
		return "", err
	}
	if !strategy.CanRender(t.Sort()) {
		return "", fmt.Errorf("%w: strategy %q cannot render %s content",
			document.ErrUnsupportedRenderCapability, strategy.ID, t.Sort())
	}
	if s.models != nil && !s.models.Has(t.DataModelTypeName) {
		return "", fmt.Errorf("%w: no shape registered for data model type %q",
			document.ErrDataModelMismatch, t.DataModelTypeName)
	}
	id, err := s.repo.Create(ctx, t)
	if err != nil {
		return "", err
	}
	s.log.Info("template created", "id", id, "label", document.DisplayLabel(*t), "scopePath", t.ScopePath)
	return id, nil
}

func (s *templateService) Get(ctx context.Context, id string) (*document.Template, error) {
	return s.repo.Get(ctx, id)
}

func (s *templateService) List(ctx context.Context, typeRef string) ([]document.Template, error) {
	return s.repo.List(ctx, typeRef)
}

func (s *templateService) ListAtPath(ctx context.Context, typeRef, path string) ([]document.Template, error) {
	if typeRef == "" {
		return nil, fmt.Errorf("%w: type is required", document.ErrInvalidArgument)
	}
	return s.repo.FindByTypeAndAtPath(ctx, typeRef, path)
}

// UpdateContent replaces a template's content. The revision goes up by one
// when the content changes and stays put when it does not.
func (s *templateService) UpdateContent(ctx context.Context, id string, content document.Content) (int64, error) {
	before, err := s.repo.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	rev, err := s.repo.UpdateContent(ctx, id, content)
	if err != nil {
		return 0, err
	}
	if rev != before.Revision {
		metrics.TemplateRevisions.WithLabelValues(before.Type).Inc()
		s.log.Info("template revised", "id", id, "type", before.Type, "revision", rev)
	}
	return rev, nil
}

func (s *templateService) Retire(ctx context.Context, id string) error {
	if err := s.repo.Retire(ctx, id); err != nil {
		return err
	}
	s.log.Info("template retired", "id", id)
	return nil
}
