package handlers

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestSwaggerEndpoints(t *testing.T) {
	g := gin.New()
	RegisterSwagger(g, "test")

	req := httptest.NewRequest("GET", "/swagger/index.html", nil)
	w := httptest.NewRecorder()
	g.ServeHTTP(w, req)
	require.Equal(t, 200, w.Code)
	require.Contains(t, w.Body.String(), "swagger-ui")

	req2 := httptest.NewRequest("GET", "/swagger/doc.json", nil)
	w2 := httptest.NewRecorder()
	g.ServeHTTP(w2, req2)
	require.Equal(t, 200, w2.Code)

	doc, err := openapi3.NewLoader().LoadFromData(w2.Body.Bytes())
	require.NoError(t, err)
	require.NoError(t, doc.Validate(context.Background()))
	require.Equal(t, "test", doc.Info.Version)

	for _, p := range []string{"/api/render", "/api/preview", "/api/source", "/api/templates", "/api/templates/{id}/content", "/api/documents/{id}"} {
		require.NotNil(t, doc.Paths.Value(p), p)
	}
	retire := doc.Paths.Value("/api/templates/{id}").Delete
	require.NotNil(t, retire)
	require.Equal(t, "retireTemplate", retire.OperationID)
	require.NotNil(t, retire.Responses.Status(204))
}
