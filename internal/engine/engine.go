// Package engine renders documents: it resolves the template for a type,
// path and time, builds the data model, dispatches to the rendering
// strategy and hands the artifact to the document store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/estatio/docrender/internal/datamodel"
	"github.com/estatio/docrender/internal/document"
	"github.com/estatio/docrender/internal/rendering"
	"github.com/estatio/docrender/pkg/logger"
	"github.com/estatio/docrender/pkg/metrics"
)

const tracerName = "github.com/estatio/docrender/internal/engine"

// Resolver selects the template for a type, path and time.
type Resolver interface {
	Resolve(ctx context.Context, typeRef, targetPath string, asOf time.Time) (*document.Template, error)
}

// ModelBuilder instantiates the data model a template declares.
type ModelBuilder interface {
	Instantiate(typeName string, raw any) (datamodel.Model, error)
}

// Strategies looks up rendering strategies by id.
type Strategies interface {
	Get(id string) (*rendering.Strategy, error)
}

// DocumentStore takes ownership of rendered artifacts.
type DocumentStore interface {
	CreateDocument(ctx context.Context, typeRef, path string, artifact document.RenderedDocument) (document.Document, error)
}

// Request identifies what to render. A zero AsOf means now. Name is the
// document name; it defaults to the template content name, then the
// template name.
type Request struct {
	Type string
	Path string
	AsOf time.Time
	Data any
	Name string
}

// Preview is the payload of a preview call. Exactly one of Bytes, Text and
// URL is set, according to Kind.
type Preview struct {
	Kind       rendering.PreviewKind `json:"kind"`
	Sort       document.Sort         `json:"sort"`
	Name       string                `json:"name"`
	MimeType   string                `json:"mimeType"`
	Bytes      []byte                `json:"bytes,omitempty"`
	Text       string                `json:"text,omitempty"`
	URL        string                `json:"url,omitempty"`
	TemplateID string                `json:"templateId"`
	Revision   int64                 `json:"revision"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the clock used for createdAt and for a zero AsOf.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithTracer overrides the tracer. The default comes from the global
// provider, which is a no-op unless the host installs one.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// Engine is safe for concurrent use. It holds no per-call state; each call
// works on the template snapshot it resolved.
type Engine struct {
	resolver   Resolver
	models     ModelBuilder
	strategies Strategies
	documents  DocumentStore
	now        func() time.Time
	log        *slog.Logger
	tracer     trace.Tracer
}

func New(resolver Resolver, models ModelBuilder, strategies Strategies, documents DocumentStore, opts ...Option) *Engine {
	e := &Engine{
		resolver:   resolver,
		models:     models,
		strategies: strategies,
		documents:  documents,
		now:        func() time.Time { return time.Now().UTC() },
		log:        logger.With("component", "engine"),
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// call tracks one render or preview through its stages.
type call struct {
	op       string
	req      Request
	stage    document.Stage
	tpl      *document.Template
	strategy string
	started  time.Time
	span     trace.Span
}

func (e *Engine) begin(ctx context.Context, op string, req Request) (context.Context, *call) {
	if req.AsOf.IsZero() {
		req.AsOf = e.now()
	}
	ctx, span := e.tracer.Start(ctx, "docrender."+op, trace.WithAttributes(
		attribute.String("docrender.type", req.Type),
		attribute.String("docrender.path", req.Path),
		attribute.String("docrender.as_of", req.AsOf.UTC().Format(time.RFC3339)),
	))
	return ctx, &call{op: op, req: req, stage: document.StageResolving, started: time.Now(), span: span}
}

// fail moves c to its terminal Failed state and returns the error with the
// call context attached.
func (e *Engine) fail(c *call, err error) error {
	var inner *document.Error
	if errors.As(err, &inner) {
		err = inner.Err
	}
	derr := &document.Error{
		Op:       c.op,
		Stage:    c.stage,
		Type:     c.req.Type,
		Path:     c.req.Path,
		AsOf:     c.req.AsOf,
		Strategy: c.strategy,
		Err:      err,
	}
	reason := document.Reason(err)
	sort := ""
	if c.tpl != nil {
		sort = string(c.tpl.Sort())
	}
	metrics.RendersTotal.WithLabelValues(c.op, sort, "failed").Inc()
	metrics.RenderFailures.WithLabelValues(c.op, reason).Inc()
	metrics.RenderDuration.WithLabelValues(c.op).Observe(time.Since(c.started).Seconds())

	c.span.RecordError(derr)
	c.span.SetStatus(codes.Error, reason)
	c.span.End()

	e.log.Warn(c.op+" failed",
		"stage", string(c.stage),
		"reason", reason,
		"type", c.req.Type,
		"path", c.req.Path,
		"asOf", c.req.AsOf.UTC().Format(time.RFC3339),
		"strategy", c.strategy,
		"error", err.Error(),
	)
	return derr
}

func (e *Engine) done(c *call, attrs ...any) {
	c.stage = document.StageDone
	metrics.RendersTotal.WithLabelValues(c.op, string(c.tpl.Sort()), "done").Inc()
	metrics.RenderDuration.WithLabelValues(c.op).Observe(time.Since(c.started).Seconds())
	c.span.SetStatus(codes.Ok, "")
	c.span.End()

	args := []any{
		"type", c.req.Type,
		"path", c.req.Path,
		"asOf", c.req.AsOf.UTC().Format(time.RFC3339),
		"strategy", c.strategy,
		"template", c.tpl.ID,
		"revision", c.tpl.Revision,
	}
	e.log.Info(c.op+" done", append(args, attrs...)...)
}

// prepare runs the stages render and preview share: resolve the template,
// build the data model and look up the strategy.
func (e *Engine) prepare(ctx context.Context, c *call) (datamodel.Model, *rendering.Strategy, error) {
	tpl, err := e.resolver.Resolve(ctx, c.req.Type, c.req.Path, c.req.AsOf)
	if err != nil {
		return nil, nil, err
	}
	c.tpl = tpl
	c.span.SetAttributes(
		attribute.String("docrender.template_id", tpl.ID),
		attribute.Int64("docrender.revision", tpl.Revision),
		attribute.String("docrender.sort", string(tpl.Sort())),
	)

	c.stage = document.StageDataModelBuilding
	model, err := e.models.Instantiate(tpl.DataModelTypeName, c.req.Data)
	if err != nil {
		return nil, nil, err
	}

	c.stage = document.StageRendering
	c.strategy = tpl.RenderingStrategyID
	c.span.SetAttributes(attribute.String("docrender.strategy", c.strategy))
	strategy, err := e.strategies.Get(tpl.RenderingStrategyID)
	if err != nil {
		return nil, nil, err
	}
	return model, strategy, nil
}

// Render produces and persists a document. The artifact carries the
// template sort, mime type and the engine clock time. Nothing is persisted
// when any stage fails or when ctx is done before persisting.
func (e *Engine) Render(ctx context.Context, req Request) (document.Document, error) {
	ctx, c := e.begin(ctx, "render", req)

	model, strategy, err := e.prepare(ctx, c)
	if err != nil {
		return document.Document{}, e.fail(c, err)
	}
	tpl := *c.tpl

	artifact := document.RenderedDocument{
		Sort:     tpl.Sort(),
		Name:     documentName(req.Name, tpl),
		MimeType: tpl.Content.MimeType,
	}
	if !strategy.CanRender(tpl.Sort()) {
		return document.Document{}, e.fail(c, unsupported(strategy, tpl.Sort()))
	}
	if tpl.Sort() == document.SortBinary {
		artifact.Bytes, err = strategy.RenderToBytes(ctx, tpl, model)
	} else {
		artifact.Text, err = strategy.RenderToChars(ctx, tpl, model)
	}
	if err != nil {
		return document.Document{}, e.fail(c, err)
	}
	artifact.CreatedAt = e.now()

	c.stage = document.StagePersisting
	if err := ctx.Err(); err != nil {
		return document.Document{}, e.fail(c, err)
	}
	doc, err := e.documents.CreateDocument(ctx, req.Type, req.Path, artifact)
	if err != nil {
		return document.Document{}, e.fail(c, fmt.Errorf("persist document: %w", err))
	}
	e.done(c, "document", doc.ID)
	return doc, nil
}

// Preview renders without persisting, through the contract kind names.
// The strategy's declared preview kinds decide what is allowed, whatever
// its renderer could produce.
func (e *Engine) Preview(ctx context.Context, req Request, kind rendering.PreviewKind) (Preview, error) {
	ctx, c := e.begin(ctx, "preview", req)
	c.span.SetAttributes(attribute.String("docrender.preview_kind", string(kind)))

	model, strategy, err := e.prepare(ctx, c)
	if err != nil {
		return Preview{}, e.fail(c, err)
	}
	if !strategy.SupportsPreview(kind) {
		return Preview{}, e.fail(c, fmt.Errorf("%w: strategy %q does not preview as %s",
			document.ErrPreviewKindUnsupported, strategy.ID, kind))
	}
	tpl := *c.tpl

	out := Preview{
		Kind:       kind,
		Sort:       tpl.Sort(),
		Name:       documentName(req.Name, tpl),
		MimeType:   tpl.Content.MimeType,
		TemplateID: tpl.ID,
		Revision:   tpl.Revision,
	}
	switch kind {
	case rendering.PreviewBlob:
		out.Bytes, err = strategy.RenderToBytes(ctx, tpl, model)
	case rendering.PreviewClob:
		out.Text, err = strategy.RenderToChars(ctx, tpl, model)
	case rendering.PreviewURL:
		out.URL, err = strategy.RenderToURL(ctx, tpl, model, out.Name)
	default:
		err = fmt.Errorf("%w: unknown preview kind %q", document.ErrPreviewKindUnsupported, kind)
	}
	if err != nil {
		return Preview{}, e.fail(c, err)
	}
	e.done(c, "kind", string(kind))
	return out, nil
}

// ListApplicablePreviewKinds returns the preview kinds the template's
// strategy declares, in presentation order.
func (e *Engine) ListApplicablePreviewKinds(tpl document.Template) ([]rendering.PreviewKind, error) {
	strategy, err := e.strategies.Get(tpl.RenderingStrategyID)
	if err != nil {
		return nil, &document.Error{
			Op:       "list preview kinds",
			Type:     tpl.Type,
			Path:     tpl.ScopePath,
			Strategy: tpl.RenderingStrategyID,
			Err:      err,
		}
	}
	return strategy.PreviewKinds(), nil
}

// PreviewKindsFor resolves the template for req and lists its preview kinds.
func (e *Engine) PreviewKindsFor(ctx context.Context, req Request) (*document.Template, []rendering.PreviewKind, error) {
	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = e.now()
	}
	tpl, err := e.resolver.Resolve(ctx, req.Type, req.Path, asOf)
	if err != nil {
		return nil, nil, err
	}
	kinds, err := e.ListApplicablePreviewKinds(*tpl)
	if err != nil {
		return nil, nil, err
	}
	return tpl, kinds, nil
}

func documentName(requested string, tpl document.Template) string {
	switch {
	case requested != "":
		return requested
	case tpl.Content.Name != "":
		return tpl.Content.Name
	}
	return tpl.Name
}

func unsupported(s *rendering.Strategy, sort document.Sort) error {
	return fmt.Errorf("%w: strategy %q cannot render %s content (declares %s)",
		document.ErrUnsupportedRenderCapability, s.ID, sort, s.Capabilities())
}
