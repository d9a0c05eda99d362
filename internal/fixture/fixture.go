// Package fixture holds the seed catalog used by demos and tests: document
// types, templates, data model schemas and the standard strategies.
package fixture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/estatio/docrender/internal/datamodel"
	"github.com/estatio/docrender/internal/document"
	"github.com/estatio/docrender/internal/document/repository"
	"github.com/estatio/docrender/internal/rendering"
	"github.com/estatio/docrender/internal/rendering/passthrough"
	"github.com/estatio/docrender/internal/rendering/pongo"
	"github.com/estatio/docrender/internal/rendering/publish"
	"github.com/estatio/docrender/internal/storage"
)

const (
	LeaseNotice  = "LEASE_NOTICE"
	Invoice      = "INVOICE"
	BudgetExport = "BUDGET_EXPORT"

	// StrategyText renders characters only.
	StrategyText = "pongo-text"
	// StrategyStructured renders characters and their bytes.
	StrategyStructured = "pongo"
	// StrategyPassthrough emits binary content unchanged.
	StrategyPassthrough = "passthrough"
)

// MinimalPDF is the content of the INVOICE template.
var MinimalPDF = []byte("%PDF-1.4\n1 0 obj<<>>endobj\ntrailer<<>>\n%%EOF\n")

func DocumentTypes() []document.DocumentType {
	return []document.DocumentType{
		{Reference: LeaseNotice, Name: "Lease notice"},
		{Reference: Invoice, Name: "Invoice"},
		{Reference: BudgetExport, Name: "Budget export"},
	}
}

// Schemas maps data model type names to JSON Schemas.
func Schemas() map[string]string {
	return map[string]string{
		"LeaseNotice": `{
			"type": "object",
			"required": ["tenant", "property"],
			"properties": {
				"tenant": {"type": "string", "minLength": 1},
				"property": {"type": "string"},
				"rent": {"type": "number", "minimum": 0}
			}
		}`,
		"Invoice": `{"type": "object"}`,
		"BudgetExport": `{
			"type": "object",
			"required": ["year", "total"],
			"properties": {
				"year": {"type": "integer"},
				"total": {"type": "number"}
			}
		}`,
	}
}

// Templates returns fresh copies of the seed templates.
func Templates() []document.Template {
	return []document.Template{
		{
			Type:                LeaseNotice,
			Name:                "Lease notice",
			ScopePath:           "/",
			Content:             document.TextContent("lease-notice.txt", "text/plain", "Dear {{ tenant }},\nThis notice concerns {{ property }}."),
			RenderingStrategyID: StrategyText,
			DataModelTypeName:   "LeaseNotice",
		},
		{
			Type:                LeaseNotice,
			Name:                "Lease notice (London)",
			ScopePath:           "/uk/london",
			EffectiveDate:       document.DatePtr(2020, 1, 1),
			Content:             document.TextContent("lease-notice.txt", "text/plain", "Dear {{ tenant }},\nLondon notice for {{ property }}. Rent due: {{ rent }} GBP."),
			RenderingStrategyID: StrategyText,
			DataModelTypeName:   "LeaseNotice",
		},
		{
			Type:                Invoice,
			Name:                "Invoice form",
			ScopePath:           "/",
			Content:             document.BinaryContent("invoice.pdf", "application/pdf", MinimalPDF),
			RenderingStrategyID: StrategyPassthrough,
			DataModelTypeName:   "Invoice",
		},
		{
			Type:                BudgetExport,
			Name:                "Budget export",
			ScopePath:           "/",
			Content:             document.StructuredTextContent("budget.json", "application/json", `{"year": {{ year }}, "total": {{ total }}}`),
			RenderingStrategyID: StrategyStructured,
			DataModelTypeName:   "BudgetExport",
		},
	}
}

// RegisterSchemas registers every fixture schema.
func RegisterSchemas(models *datamodel.Registry) error {
	for name, schema := range Schemas() {
		if err := models.RegisterSchema(name, schema); err != nil {
			return err
		}
	}
	return nil
}

// Seed stores the fixture templates. Templates whose selection key is
// already taken are left alone, so seeding twice is harmless.
func Seed(ctx context.Context, repo repository.TemplateRepository) (int, error) {
	created := 0
	for _, tpl := range Templates() {
		if _, err := repo.Create(ctx, &tpl); err != nil {
			if errors.Is(err, repository.ErrAlreadyExists) {
				continue
			}
			return created, fmt.Errorf("seed %s: %w", document.DisplayLabel(tpl), err)
		}
		created++
	}
	return created, nil
}

// StrategyOptions configure RegisterStrategies.
type StrategyOptions struct {
	Engine *pongo.Engine
	// Store enables URL rendering and previews. Nil leaves them out.
	Store         storage.ObjectStore
	PreviewExpiry time.Duration
	SanitizeHTML  bool
}

// RegisterStrategies registers the standard strategies on reg.
func RegisterStrategies(reg *rendering.Registry, opts StrategyOptions) error {
	var rendererOpts []pongo.RendererOption
	if opts.SanitizeHTML {
		rendererOpts = append(rendererOpts, pongo.WithHTMLSanitizer(nil))
	}
	var text rendering.Renderer = pongo.NewRenderer(opts.Engine, rendererOpts...)

	textFlags := rendering.Flags{CanRenderChars: true, PreviewAsClob: true}
	structuredFlags := rendering.AllFlags(rendering.CapChars | rendering.CapBytes)
	if opts.Store != nil {
		published, err := publish.New(text, opts.Store, publish.WithExpiry(opts.PreviewExpiry))
		if err != nil {
			return err
		}
		text = published
		textFlags.CanRenderURL, textFlags.PreviewAsURL = true, true
		structuredFlags = rendering.AllFlags(published.Capabilities())
	}

	if err := reg.RegisterRenderer(StrategyText, "Text (pongo2)", text, textFlags); err != nil {
		return err
	}
	if err := reg.RegisterRenderer(StrategyStructured, "Structured text (pongo2)", text, structuredFlags); err != nil {
		return err
	}
	return reg.RegisterRenderer(StrategyPassthrough, "Passthrough", passthrough.New(),
		rendering.Flags{CanRenderBytes: true, PreviewAsBlob: true})
}
