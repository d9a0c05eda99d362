package sourcecache

import (
	"context"
	"testing"
	"time"

	"github.com/estatio/docrender/internal/document"
	"github.com/estatio/docrender/internal/document/catalog"
	"github.com/estatio/docrender/internal/document/repository"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*Cache, *repository.MemoryTemplateRepo, string) {
	t.Helper()
	repo := repository.NewMemoryTemplateRepo()
	id, err := repo.Create(context.Background(), &document.Template{
		Type:                "LEASE_NOTICE",
		Name:                "Notice",
		ScopePath:           "/uk",
		Content:             document.TextContent("notice.txt", "text/plain", "v1"),
		RenderingStrategyID: "pongo",
		DataModelTypeName:   "LeaseNotice",
	})
	require.NoError(t, err)
	types := repository.NewMemoryTypeCatalog(
		document.DocumentType{Reference: "LEASE_NOTICE"},
		document.DocumentType{Reference: "INVOICE"},
	)
	clock := func() time.Time { return document.Date(2021, 1, 1) }
	return New(types, catalog.NewResolver(catalog.New(repo)), WithClock(clock)), repo, id
}

func TestSourceForRevisionTracksContent(t *testing.T) {
	ctx := context.Background()
	c, repo, id := setup(t)

	first, err := c.SourceFor(ctx, "LEASE_NOTICE", "/uk/london")
	require.NoError(t, err)
	require.Equal(t, "v1", first.Text)
	require.Equal(t, id, first.TemplateID)

	again, err := c.SourceFor(ctx, "LEASE_NOTICE", "/uk/london")
	require.NoError(t, err)
	require.True(t, first.SameVersion(again))

	_, err = repo.UpdateContent(ctx, id, document.TextContent("notice.txt", "text/plain", "v1"))
	require.NoError(t, err)
	same, err := c.SourceFor(ctx, "LEASE_NOTICE", "/uk/london")
	require.NoError(t, err)
	require.Equal(t, first.Revision, same.Revision)

	_, err = repo.UpdateContent(ctx, id, document.TextContent("notice.txt", "text/plain", "v2"))
	require.NoError(t, err)
	next, err := c.SourceFor(ctx, "LEASE_NOTICE", "/uk/london")
	require.NoError(t, err)
	require.Greater(t, next.Revision, first.Revision)
	require.Equal(t, "v2", next.Text)
	require.False(t, first.SameVersion(next))
}

func TestSourceForErrors(t *testing.T) {
	ctx := context.Background()
	c, repo, _ := setup(t)

	_, err := c.SourceFor(ctx, "LEASE_NOTICE", "/fr")
	require.ErrorIs(t, err, document.ErrTemplateNotFound)

	_, err = c.SourceFor(ctx, "NOPE", "/uk")
	require.ErrorIs(t, err, document.ErrUnknownDocumentType)

	_, err = repo.Create(ctx, &document.Template{
		Type:                "INVOICE",
		ScopePath:           "/",
		Content:             document.BinaryContent("invoice.pdf", "application/pdf", []byte{1}),
		RenderingStrategyID: "passthrough",
	})
	require.NoError(t, err)
	_, err = c.SourceFor(ctx, "INVOICE", "/uk")
	require.ErrorIs(t, err, document.ErrUnsupportedRenderCapability)
}

func TestSourceForWithoutTypeCatalog(t *testing.T) {
	repo := repository.NewMemoryTemplateRepo()
	_, err := repo.Create(context.Background(), &document.Template{
		Type:      "ANY",
		ScopePath: "/",
		Content:   document.TextContent("a", "text/plain", "x"),
	})
	require.NoError(t, err)
	src, err := New(nil, catalog.NewResolver(catalog.New(repo))).SourceFor(context.Background(), "ANY", "/deep/path")
	require.NoError(t, err)
	require.Equal(t, int64(1), src.Revision)
}
