package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/estatio/docrender/internal/datamodel"
	"github.com/estatio/docrender/internal/document"
	"github.com/estatio/docrender/internal/document/service"
	"github.com/estatio/docrender/internal/engine"
	"github.com/estatio/docrender/internal/rendering"
	"github.com/estatio/docrender/internal/sourcecache"
)

// Renderer is the part of the render engine the routes drive.
type Renderer interface {
	Render(ctx context.Context, req engine.Request) (document.Document, error)
	Preview(ctx context.Context, req engine.Request, kind rendering.PreviewKind) (engine.Preview, error)
	ListApplicablePreviewKinds(tpl document.Template) ([]rendering.PreviewKind, error)
}

// Sources serves template source text.
type Sources interface {
	SourceFor(ctx context.Context, typeRef, targetPath string) (sourcecache.Source, error)
}

// Documents reads rendered documents back.
type Documents interface {
	GetDocument(ctx context.Context, id string) (*document.Document, error)
}

type Deps struct {
	Templates service.Service
	Engine    Renderer
	Sources   Sources
	Documents Documents
}

type renderRequest struct {
	Type string          `json:"type" binding:"required"`
	Path string          `json:"path"`
	AsOf string          `json:"asOf,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
	Name string          `json:"name,omitempty"`
}

func (r renderRequest) toEngine() (engine.Request, error) {
	asOf, err := parseDate(r.AsOf)
	if err != nil {
		return engine.Request{}, err
	}
	req := engine.Request{Type: r.Type, Path: r.Path, Name: r.Name}
	if asOf != nil {
		req.AsOf = *asOf
	}
	if len(r.Data) > 0 {
		req.Data = r.Data
	}
	return req, nil
}

type previewRequest struct {
	renderRequest
	Kind string `json:"kind" binding:"required"`
}

type templateRequest struct {
	Type                string           `json:"type" binding:"required"`
	Name                string           `json:"name"`
	ScopePath           string           `json:"scopePath"`
	EffectiveDate       string           `json:"effectiveDate,omitempty"`
	Content             document.Content `json:"content"`
	RenderingStrategyID string           `json:"renderingStrategyId" binding:"required"`
	DataModelTypeName   string           `json:"dataModelTypeName" binding:"required"`
}

// parseDate accepts a calendar day or an RFC 3339 timestamp. Empty means unset.
func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if d, err := time.Parse(document.DateLayout, s); err == nil {
		return &d, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("%w: date %q is neither YYYY-MM-DD nor RFC 3339", document.ErrInvalidArgument, s)
	}
	t = t.UTC()
	return &t, nil
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, document.ErrTemplateNotFound),
		errors.Is(err, document.ErrNotFound),
		errors.Is(err, document.ErrUnknownDocumentType):
		return http.StatusNotFound
	case errors.Is(err, document.ErrAlreadyExists),
		errors.Is(err, document.ErrSortChange):
		return http.StatusConflict
	case errors.Is(err, document.ErrDataModelMismatch),
		errors.Is(err, document.ErrUnsupportedRenderCapability),
		errors.Is(err, document.ErrPreviewKindUnsupported),
		errors.Is(err, document.ErrUnknownStrategy),
		errors.Is(err, document.ErrInvalidArgument):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func abort(c *gin.Context, err error) {
	body := gin.H{"error": err.Error(), "reason": document.Reason(err)}
	var derr *document.Error
	if errors.As(err, &derr) {
		body["stage"] = derr.Stage
	}
	var mm *datamodel.MismatchError
	if errors.As(err, &mm) {
		body["dataModelType"] = mm.TypeName
	}
	c.JSON(statusFor(err), body)
}

// RegisterDocumentRoutes mounts the render, preview, source and template
// administration endpoints on r.
func RegisterDocumentRoutes(r gin.IRoutes, d Deps) {
	r.POST("/api/render", func(c *gin.Context) {
		var body renderRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		req, err := body.toEngine()
		if err != nil {
			abort(c, err)
			return
		}
		doc, err := d.Engine.Render(c.Request.Context(), req)
		if err != nil {
			abort(c, err)
			return
		}
		c.JSON(http.StatusCreated, doc)
	})

	r.POST("/api/preview", func(c *gin.Context) {
		var body previewRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		kind, err := rendering.ParsePreviewKind(body.Kind)
		if err != nil {
			abort(c, err)
			return
		}
		req, err := body.toEngine()
		if err != nil {
			abort(c, err)
			return
		}
		p, err := d.Engine.Preview(c.Request.Context(), req, kind)
		if err != nil {
			abort(c, err)
			return
		}
		if c.Query("raw") == "true" && kind != rendering.PreviewURL {
			c.Data(http.StatusOK, p.MimeType, previewPayload(p))
			return
		}
		c.JSON(http.StatusOK, p)
	})

	r.GET("/api/source", func(c *gin.Context) {
		typeRef := c.Query("type")
		if typeRef == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "type is required"})
			return
		}
		src, err := d.Sources.SourceFor(c.Request.Context(), typeRef, c.DefaultQuery("path", "/"))
		if err != nil {
			abort(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"templateId": src.TemplateID, "text": src.Text, "revision": src.Revision})
	})

	r.GET("/api/templates", func(c *gin.Context) {
		typeRef := c.Query("type")
		var (
			list []document.Template
			err  error
		)
		if path, ok := c.GetQuery("path"); ok {
			list, err = d.Templates.ListAtPath(c.Request.Context(), typeRef, path)
		} else {
			list, err = d.Templates.List(c.Request.Context(), typeRef)
		}
		if err != nil {
			abort(c, err)
			return
		}
		out := make([]gin.H, 0, len(list))
		for _, t := range list {
			out = append(out, gin.H{
				"id":        t.ID,
				"label":     document.DisplayLabel(t),
				"type":      t.Type,
				"scopePath": t.ScopePath,
				"revision":  t.Revision,
				"retired":   t.Retired,
				"updatedAt": t.UpdatedAt,
			})
		}
		c.JSON(http.StatusOK, out)
	})

	r.POST("/api/templates", func(c *gin.Context) {
		var body templateRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		effective, err := parseDate(body.EffectiveDate)
		if err != nil {
			abort(c, err)
			return
		}
		t := &document.Template{
			Type:                body.Type,
			Name:                body.Name,
			ScopePath:           body.ScopePath,
			EffectiveDate:       effective,
			Content:             body.Content,
			RenderingStrategyID: body.RenderingStrategyID,
			DataModelTypeName:   body.DataModelTypeName,
		}
		id, err := d.Templates.Create(c.Request.Context(), t)
		if err != nil {
			abort(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": id, "label": document.DisplayLabel(*t), "revision": t.Revision})
	})

	r.GET("/api/templates/:id", func(c *gin.Context) {
		t, err := d.Templates.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			abort(c, err)
			return
		}
		c.JSON(http.StatusOK, t)
	})

	r.PATCH("/api/templates/:id/content", func(c *gin.Context) {
		var content document.Content
		if err := c.ShouldBindJSON(&content); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		id := c.Param("id")
		rev, err := d.Templates.UpdateContent(c.Request.Context(), id, content)
		if err != nil {
			abort(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id, "revision": rev})
	})

	r.DELETE("/api/templates/:id", func(c *gin.Context) {
		if err := d.Templates.Retire(c.Request.Context(), c.Param("id")); err != nil {
			abort(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	r.GET("/api/templates/:id/preview-kinds", func(c *gin.Context) {
		t, err := d.Templates.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			abort(c, err)
			return
		}
		kinds, err := d.Engine.ListApplicablePreviewKinds(*t)
		if err != nil {
			abort(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": t.ID, "kinds": kinds})
	})

	r.GET("/api/documents/:id", func(c *gin.Context) {
		doc, err := d.Documents.GetDocument(c.Request.Context(), c.Param("id"))
		if err != nil {
			abort(c, err)
			return
		}
		if c.Query("raw") == "true" {
			c.Data(http.StatusOK, doc.MimeType, doc.Payload())
			return
		}
		c.JSON(http.StatusOK, doc)
	})
}

func previewPayload(p engine.Preview) []byte {
	if p.Kind == rendering.PreviewBlob {
		return p.Bytes
	}
	return []byte(p.Text)
}
