package publish

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/estatio/docrender/internal/datamodel"
	"github.com/estatio/docrender/internal/document"
	"github.com/estatio/docrender/internal/rendering"
	"github.com/estatio/docrender/internal/rendering/passthrough"
	"github.com/estatio/docrender/internal/rendering/pongo"
	"github.com/estatio/docrender/internal/storage"
	"github.com/stretchr/testify/require"
)

func TestRenderToURLUploadsOutput(t *testing.T) {
	store := storage.NewMemoryStorage("previews")
	r, err := New(pongo.NewRenderer(nil), store, WithExpiry(time.Minute), WithPrefix("/out/"))
	require.NoError(t, err)
	r.newID = func() string { return "fixed" }
	require.True(t, r.Capabilities().Has(rendering.CapURL|rendering.CapChars|rendering.CapBytes))

	tpl := document.Template{
		ID:       "t1",
		Type:     "LEASE_NOTICE",
		Name:     "Notice",
		Content:  document.TextContent("notice.txt", "text/plain", "Dear {{ tenant }}"),
		Revision: 1,
	}
	u, err := r.RenderToURL(context.Background(), tpl, datamodel.Model{"tenant": "ACME"}, "acme-notice.txt")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(u, "memory://previews/out/LEASE_NOTICE/fixed/acme-notice.txt"))

	got, err := store.Get(context.Background(), "out/LEASE_NOTICE/fixed/acme-notice.txt")
	require.NoError(t, err)
	require.Equal(t, "Dear ACME", string(got))
	require.Equal(t, "text/plain", store.ContentType("out/LEASE_NOTICE/fixed/acme-notice.txt"))
}

func TestRenderToURLBinaryDefaultsName(t *testing.T) {
	store := storage.NewMemoryStorage("previews")
	r, err := New(passthrough.New(), store)
	require.NoError(t, err)
	r.newID = func() string { return "id" }

	tpl := document.Template{
		Type:    "INVOICE",
		Content: document.BinaryContent("invoice.pdf", "application/pdf", []byte{0x25, 0x50}),
	}
	_, err = r.RenderToURL(context.Background(), tpl, nil, "")
	require.NoError(t, err)
	got, err := store.Get(context.Background(), "previews/INVOICE/id/invoice.pdf")
	require.NoError(t, err)
	require.Equal(t, []byte{0x25, 0x50}, got)
}

type charsOnly struct{}

func (charsOnly) Capabilities() rendering.Capability { return rendering.CapChars }
func (charsOnly) RenderToChars(ctx context.Context, tpl document.Template, model datamodel.Model) (string, error) {
	return "x", nil
}

func TestWrappedCapabilitiesOnly(t *testing.T) {
	r, err := New(charsOnly{}, storage.NewMemoryStorage("b"))
	require.NoError(t, err)
	require.Equal(t, rendering.CapChars|rendering.CapURL, r.Capabilities())
	_, err = r.RenderToBytes(context.Background(), document.Template{}, nil)
	require.ErrorIs(t, err, document.ErrUnsupportedRenderCapability)

	_, err = New(nil, storage.NewMemoryStorage("b"))
	require.Error(t, err)
}
