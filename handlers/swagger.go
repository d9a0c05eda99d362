package handlers

import (
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers the OpenAPI endpoints for the render service.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg gin.IRoutes, version string) {
	doc := OpenAPI(version)
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.JSON(http.StatusOK, doc)
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>docrender - Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

type route struct {
	method    string
	path      string
	id        string
	summary   string
	query     []string
	body      *openapi3.Schema
	responses map[int]string
}

func str() *openapi3.Schema { return openapi3.NewStringSchema() }

func renderBody(withKind bool) *openapi3.Schema {
	s := openapi3.NewObjectSchema().
		WithProperty("type", str()).
		WithProperty("path", str()).
		WithProperty("asOf", str()).
		WithProperty("name", str()).
		WithProperty("data", openapi3.NewObjectSchema())
	required := []string{"type"}
	if withKind {
		s = s.WithProperty("kind", openapi3.NewStringSchema().WithEnum("blob", "clob", "url"))
		required = append(required, "kind")
	}
	s.Required = required
	return s
}

func contentSchema() *openapi3.Schema {
	return openapi3.NewObjectSchema().
		WithProperty("sort", openapi3.NewStringSchema().WithEnum("text", "structured-text", "binary")).
		WithProperty("name", str()).
		WithProperty("mimeType", str()).
		WithProperty("text", str()).
		WithProperty("bytes", openapi3.NewBytesSchema())
}

func templateBody() *openapi3.Schema {
	s := openapi3.NewObjectSchema().
		WithProperty("type", str()).
		WithProperty("name", str()).
		WithProperty("scopePath", str()).
		WithProperty("effectiveDate", str()).
		WithProperty("content", contentSchema()).
		WithProperty("renderingStrategyId", str()).
		WithProperty("dataModelTypeName", str())
	s.Required = []string{"type", "renderingStrategyId", "dataModelTypeName"}
	return s
}

var routes = []route{
	{http.MethodPost, "/api/render", "render", "Render and store a document", nil, renderBody(false),
		map[int]string{201: "rendered document", 404: "no template applies", 422: "data model or capability mismatch"}},
	{http.MethodPost, "/api/preview", "preview", "Render a preview without storing it", []string{"raw"}, renderBody(true),
		map[int]string{200: "preview payload", 404: "no template applies", 422: "preview kind unsupported"}},
	{http.MethodGet, "/api/source", "templateSource", "Current template source for a type and path", []string{"type", "path"}, nil,
		map[int]string{200: "source text and revision", 404: "unknown type or no template"}},
	{http.MethodGet, "/api/templates", "listTemplates", "List templates of a type", []string{"type", "path"}, nil,
		map[int]string{200: "template summaries"}},
	{http.MethodPost, "/api/templates", "createTemplate", "Create a template", nil, templateBody(),
		map[int]string{201: "created", 409: "selection key taken", 422: "invalid template"}},
	{http.MethodGet, "/api/templates/{id}", "getTemplate", "Get a template", nil, nil,
		map[int]string{200: "template", 404: "not found"}},
	{http.MethodPatch, "/api/templates/{id}/content", "updateTemplateContent", "Replace template content", nil, contentSchema(),
		map[int]string{200: "new revision", 404: "not found", 409: "content sort changed"}},
	{http.MethodDelete, "/api/templates/{id}", "retireTemplate", "Retire a template", nil, nil,
		map[int]string{204: "retired", 404: "not found"}},
	{http.MethodGet, "/api/templates/{id}/preview-kinds", "previewKinds", "Preview kinds offered for a template", nil, nil,
		map[int]string{200: "kinds in presentation order", 404: "not found"}},
	{http.MethodGet, "/api/documents/{id}", "getDocument", "Get a rendered document", []string{"raw"}, nil,
		map[int]string{200: "document", 404: "not found"}},
	{http.MethodGet, "/health", "health", "Liveness check", nil, nil, map[int]string{200: "healthy"}},
	{http.MethodGet, "/ready", "ready", "Readiness check", nil, nil, map[int]string{200: "ready", 503: "not ready"}},
}

// OpenAPI builds the document describing the HTTP surface.
func OpenAPI(version string) *openapi3.T {
	paths := openapi3.NewPaths()
	for _, r := range routes {
		item := paths.Value(r.path)
		if item == nil {
			item = &openapi3.PathItem{}
			paths.Set(r.path, item)
		}
		item.SetOperation(r.method, r.operation())
	}
	return &openapi3.T{
		OpenAPI: "3.0.3",
		Info:    &openapi3.Info{Title: "docrender", Version: version},
		Paths:   paths,
	}
}

func (r route) operation() *openapi3.Operation {
	op := openapi3.NewOperation()
	op.OperationID = r.id
	op.Summary = r.summary
	if strings.Contains(r.path, "{id}") {
		op.AddParameter(openapi3.NewPathParameter("id").WithSchema(str()))
	}
	for _, q := range r.query {
		op.AddParameter(openapi3.NewQueryParameter(q).WithSchema(str()))
	}
	if r.body != nil {
		op.RequestBody = &openapi3.RequestBodyRef{Value: openapi3.NewRequestBody().WithRequired(true).WithJSONSchema(r.body)}
	}
	op.Responses = &openapi3.Responses{}
	for status, desc := range r.responses {
		op.AddResponse(status, openapi3.NewResponse().WithDescription(desc))
	}
	return op
}
