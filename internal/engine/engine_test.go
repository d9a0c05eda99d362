package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/estatio/docrender/internal/datamodel"
	"github.com/estatio/docrender/internal/document"
	"github.com/estatio/docrender/internal/document/catalog"
	"github.com/estatio/docrender/internal/document/repository"
	"github.com/estatio/docrender/internal/fixture"
	"github.com/estatio/docrender/internal/rendering"
	"github.com/estatio/docrender/internal/storage"
	"github.com/estatio/docrender/pkg/metrics"
	"github.com/stretchr/testify/require"
)

var clock = time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)

type harness struct {
	engine     *Engine
	templates  *repository.MemoryTemplateRepo
	documents  *repository.MemoryDocumentRepo
	strategies *rendering.Registry
	store      *storage.MemoryStorage
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		templates:  repository.NewMemoryTemplateRepo(),
		documents:  repository.NewMemoryDocumentRepo(),
		strategies: rendering.NewRegistry(),
		store:      storage.NewMemoryStorage("previews"),
	}
	_, err := fixture.Seed(context.Background(), h.templates)
	require.NoError(t, err)
	models := datamodel.NewRegistry()
	require.NoError(t, fixture.RegisterSchemas(models))
	require.NoError(t, fixture.RegisterStrategies(h.strategies, fixture.StrategyOptions{Store: h.store}))

	h.engine = New(
		catalog.NewResolver(catalog.New(h.templates)),
		models,
		h.strategies,
		h.documents,
		WithClock(func() time.Time { return clock }),
	)
	return h
}

func (h *harness) addTemplate(t *testing.T, tpl document.Template) string {
	t.Helper()
	id, err := h.templates.Create(context.Background(), &tpl)
	require.NoError(t, err)
	return id
}

var tenant = map[string]any{"tenant": "ACME Ltd", "property": "Unit 4", "rent": 1200}

func TestRenderLeaseNoticeScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	doc, err := h.engine.Render(ctx, Request{
		Type: fixture.LeaseNotice,
		Path: "/uk/london/branch1",
		AsOf: document.Date(2021, 1, 1),
		Data: tenant,
	})
	require.NoError(t, err)
	require.Equal(t, document.SortText, doc.Sort)
	require.Equal(t, "Dear ACME Ltd,\nLondon notice for Unit 4. Rent due: 1200 GBP.", doc.Text)
	require.Equal(t, "text/plain", doc.MimeType)
	require.Equal(t, "lease-notice.txt", doc.Name)
	require.Equal(t, clock, doc.CreatedAt)
	require.Equal(t, "/uk/london/branch1", doc.Path)

	stored, err := h.documents.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, doc.Text, stored.Text)

	doc, err = h.engine.Render(ctx, Request{
		Type: fixture.LeaseNotice,
		Path: "/uk/manchester",
		Data: tenant,
		Name: "manchester.txt",
	})
	require.NoError(t, err)
	require.Equal(t, "Dear ACME Ltd,\nThis notice concerns Unit 4.", doc.Text)
	require.Equal(t, "manchester.txt", doc.Name)
	require.Equal(t, 2, h.documents.Len())
}

func TestRenderTextPreviewBlobUnsupported(t *testing.T) {
	h := newHarness(t)
	req := Request{Type: fixture.LeaseNotice, Path: "/uk/london", AsOf: document.Date(2021, 1, 1), Data: tenant}

	doc, err := h.engine.Render(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, document.SortText, doc.Sort)

	_, err = h.engine.Preview(context.Background(), req, rendering.PreviewBlob)
	require.ErrorIs(t, err, document.ErrPreviewKindUnsupported)
	var derr *document.Error
	require.True(t, errors.As(err, &derr))
	require.Equal(t, document.StageRendering, derr.Stage)
	require.Equal(t, fixture.StrategyText, derr.Strategy)

	p, err := h.engine.Preview(context.Background(), req, rendering.PreviewClob)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(p.Text, "Dear ACME Ltd,\nLondon notice"))
	require.Equal(t, 1, h.documents.Len(), "previews are never persisted")
}

func TestRenderBinaryWithoutBytesCapability(t *testing.T) {
	h := newHarness(t)
	h.addTemplate(t, document.Template{
		Type:                "SCANNED_FORM",
		ScopePath:           "/",
		Content:             document.BinaryContent("form.pdf", "application/pdf", fixture.MinimalPDF),
		RenderingStrategyID: fixture.StrategyText,
		DataModelTypeName:   "Invoice",
	})
	before := testutil.ToFloat64(metrics.RenderFailures.WithLabelValues("render", "unsupported_render_capability"))

	_, err := h.engine.Render(context.Background(), Request{Type: "SCANNED_FORM", Path: "/uk"})
	require.ErrorIs(t, err, document.ErrUnsupportedRenderCapability)
	require.Contains(t, err.Error(), `strategy "pongo-text"`)
	require.Zero(t, h.documents.Len())
	require.Equal(t, before+1, testutil.ToFloat64(metrics.RenderFailures.WithLabelValues("render", "unsupported_render_capability")))
}

func TestRenderBinaryPassthrough(t *testing.T) {
	h := newHarness(t)
	doc, err := h.engine.Render(context.Background(), Request{Type: fixture.Invoice, Path: "/nl/amsterdam"})
	require.NoError(t, err)
	require.Equal(t, document.SortBinary, doc.Sort)
	require.Equal(t, fixture.MinimalPDF, doc.Bytes)
	require.Equal(t, "application/pdf", doc.MimeType)
}

func TestRenderStructuredText(t *testing.T) {
	h := newHarness(t)
	doc, err := h.engine.Render(context.Background(), Request{
		Type: fixture.BudgetExport,
		Path: "/uk",
		Data: map[string]any{"year": 2021, "total": 99.5},
	})
	require.NoError(t, err)
	require.Equal(t, document.SortStructuredText, doc.Sort)
	require.JSONEq(t, `{"year": 2021, "total": 99.5}`, doc.Text)
}

func TestRenderFailures(t *testing.T) {
	h := newHarness(t)
	h.addTemplate(t, document.Template{
		Type:                "ORPHAN",
		ScopePath:           "/",
		Content:             document.TextContent("o.txt", "text/plain", "x"),
		RenderingStrategyID: "freemarker",
		DataModelTypeName:   "Invoice",
	})
	ctx := context.Background()

	cases := []struct {
		name  string
		req   Request
		want  error
		stage document.Stage
	}{
		{"not found", Request{Type: "NOPE", Path: "/uk"}, document.ErrTemplateNotFound, document.StageResolving},
		{"mismatch", Request{Type: fixture.LeaseNotice, Path: "/uk", Data: map[string]any{"tenant": 7}}, document.ErrDataModelMismatch, document.StageDataModelBuilding},
		{"unknown strategy", Request{Type: "ORPHAN", Path: "/"}, document.ErrUnknownStrategy, document.StageRendering},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.engine.Render(ctx, tc.req)
			require.ErrorIs(t, err, tc.want)
			var derr *document.Error
			require.True(t, errors.As(err, &derr))
			require.Equal(t, tc.stage, derr.Stage)
			require.Equal(t, "render", derr.Op)
			require.Equal(t, tc.req.Type, derr.Type)
			require.Equal(t, clock, derr.AsOf)
		})
	}
	require.Zero(t, h.documents.Len())
}

// cancelling cancels the caller's context while rendering, as a caller
// abandoning the call would.
type cancelling struct{ cancel context.CancelFunc }

func (c cancelling) Capabilities() rendering.Capability { return rendering.CapChars }
func (c cancelling) RenderToChars(ctx context.Context, tpl document.Template, model datamodel.Model) (string, error) {
	c.cancel()
	return "rendered", nil
}

func TestRenderCanceledBeforePersistStoresNothing(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, h.strategies.RegisterRenderer("cancelling", "", cancelling{cancel: cancel},
		rendering.Flags{CanRenderChars: true}))
	h.addTemplate(t, document.Template{
		Type:                "SLOW",
		ScopePath:           "/",
		Content:             document.TextContent("s.txt", "text/plain", "x"),
		RenderingStrategyID: "cancelling",
		DataModelTypeName:   "Invoice",
	})

	_, err := h.engine.Render(ctx, Request{Type: "SLOW", Path: "/"})
	require.ErrorIs(t, err, context.Canceled)
	var derr *document.Error
	require.True(t, errors.As(err, &derr))
	require.Equal(t, document.StagePersisting, derr.Stage)
	require.Zero(t, h.documents.Len())
}

func TestPreviewURL(t *testing.T) {
	h := newHarness(t)
	p, err := h.engine.Preview(context.Background(), Request{
		Type: fixture.LeaseNotice,
		Path: "/fr",
		Data: tenant,
		Name: "notice-fr.txt",
	}, rendering.PreviewURL)
	require.NoError(t, err)
	require.Contains(t, p.URL, "notice-fr.txt")
	require.Equal(t, rendering.PreviewURL, p.Kind)
	require.Empty(t, p.Text)
	require.Zero(t, h.documents.Len())
}

func TestPreviewBlobOfStructuredText(t *testing.T) {
	h := newHarness(t)
	p, err := h.engine.Preview(context.Background(), Request{
		Type: fixture.BudgetExport,
		Path: "/",
		Data: map[string]any{"year": 2020, "total": 1},
	}, rendering.PreviewBlob)
	require.NoError(t, err)
	require.JSONEq(t, `{"year": 2020, "total": 1}`, string(p.Bytes))
}

func TestListApplicablePreviewKinds(t *testing.T) {
	h := newHarness(t)
	kinds, err := h.engine.ListApplicablePreviewKinds(document.Template{RenderingStrategyID: fixture.StrategyPassthrough})
	require.NoError(t, err)
	require.Equal(t, []rendering.PreviewKind{rendering.PreviewBlob}, kinds)

	_, err = h.engine.ListApplicablePreviewKinds(document.Template{RenderingStrategyID: "nope"})
	require.ErrorIs(t, err, document.ErrUnknownStrategy)

	tpl, kinds, err := h.engine.PreviewKindsFor(context.Background(), Request{Type: fixture.LeaseNotice, Path: "/uk/london"})
	require.NoError(t, err)
	require.Equal(t, "/uk/london", tpl.ScopePath)
	require.Equal(t, []rendering.PreviewKind{rendering.PreviewClob, rendering.PreviewURL}, kinds)
}

func TestRenderAfterContentUpdateUsesNewRevision(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	list, err := h.templates.FindByTypeAndAtPath(ctx, fixture.LeaseNotice, "/")
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = h.templates.UpdateContent(ctx, list[0].ID, document.TextContent("lease-notice.txt", "text/plain", "Hello {{ tenant }}"))
	require.NoError(t, err)

	doc, err := h.engine.Render(ctx, Request{Type: fixture.LeaseNotice, Path: "/de", Data: tenant})
	require.NoError(t, err)
	require.Equal(t, "Hello ACME Ltd", doc.Text)
}

func TestRenderSpans(t *testing.T) {
	h := newHarness(t)
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()
	WithTracer(tp.Tracer("test"))(h.engine)

	_, err := h.engine.Render(context.Background(), Request{Type: fixture.LeaseNotice, Path: "/uk", Data: tenant})
	require.NoError(t, err)
	_, err = h.engine.Render(context.Background(), Request{Type: "NOPE", Path: "/uk"})
	require.Error(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	require.Equal(t, "docrender.render", spans[0].Name)
	require.Equal(t, codes.Ok, spans[0].Status.Code)
	require.Equal(t, codes.Error, spans[1].Status.Code)
	require.Equal(t, "template_not_found", spans[1].Status.Description)
	require.Len(t, spans[1].Events, 1, "the error is recorded on the span")
}
