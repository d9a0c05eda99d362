// Package passthrough provides a renderer that ignores the data model and
// emits the template content as is. It serves fixed attachments such as
// pre-printed PDF forms.
package passthrough

import (
	"context"

	"github.com/estatio/docrender/internal/datamodel"
	"github.com/estatio/docrender/internal/document"
	"github.com/estatio/docrender/internal/rendering"
)

type Renderer struct{}

func New() Renderer { return Renderer{} }

func (Renderer) Capabilities() rendering.Capability {
	return rendering.CapBytes | rendering.CapChars
}

// RenderToBytes returns binary content unchanged and textual content UTF-8
// encoded.
func (Renderer) RenderToBytes(ctx context.Context, tpl document.Template, _ datamodel.Model) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return tpl.Content.AsBytes(), nil
}

func (Renderer) RenderToChars(ctx context.Context, tpl document.Template, _ datamodel.Model) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return tpl.Content.AsChars()
}
