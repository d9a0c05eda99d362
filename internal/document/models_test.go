package document

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestContentValidate(t *testing.T) {
	require.NoError(t, TextContent("n", "text/plain", "hi").Validate())
	require.NoError(t, BinaryContent("n", "application/pdf", []byte{1, 2}).Validate())

	err := Content{Sort: "rtf"}.Validate()
	require.ErrorIs(t, err, ErrInvalidArgument)

	err = Content{Sort: SortBinary, Text: "oops"}.Validate()
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestContentAsChars(t *testing.T) {
	s, err := StructuredTextContent("n", "application/json", `{"a":1}`).AsChars()
	require.NoError(t, err)
	require.Equal(t, `{"a":1}`, s)

	_, err = BinaryContent("n", "application/pdf", []byte{1}).AsChars()
	require.ErrorIs(t, err, ErrUnsupportedRenderCapability)
}

func TestDay(t *testing.T) {
	noon := time.Date(2020, 1, 1, 12, 30, 0, 0, time.UTC)
	require.Equal(t, Date(2020, 1, 1), Day(noon))
	east := time.Date(2020, 1, 2, 1, 0, 0, 0, time.FixedZone("CET", 3600))
	require.Equal(t, Date(2020, 1, 2), Day(east))
	late := time.Date(2020, 1, 1, 23, 0, 0, 0, time.FixedZone("PST", -8*3600))
	require.Equal(t, Date(2020, 1, 2), Day(late))
}

func TestTemplateEffectiveAt(t *testing.T) {
	undated := Template{}
	require.True(t, undated.EffectiveAt(time.Time{}))

	dated := Template{EffectiveDate: DatePtr(2020, 1, 1)}
	require.False(t, dated.EffectiveAt(Date(2019, 12, 31)))
	require.True(t, dated.EffectiveAt(Date(2020, 1, 1)))
	require.True(t, dated.EffectiveAt(Date(2021, 1, 1)))
}

func TestTemplateKey(t *testing.T) {
	a := Template{Type: "LEASE_NOTICE", ScopePath: "uk/london/"}
	b := Template{Type: "LEASE_NOTICE", ScopePath: "/uk/london", EffectiveDate: DatePtr(2020, 1, 1)}
	require.Equal(t, "LEASE_NOTICE@/uk/london#-", a.Key())
	require.Equal(t, "LEASE_NOTICE@/uk/london#2020-01-01", b.Key())
}

func TestDisplayLabel(t *testing.T) {
	tpl := Template{Type: "LEASE_NOTICE", Name: "Notice"}
	require.Equal(t, "[LEASE_NOTICE] Notice", DisplayLabel(tpl))

	tpl.EffectiveDate = DatePtr(2020, 1, 1)
	require.Equal(t, "[LEASE_NOTICE] Notice, (from 2020-01-01)", DisplayLabel(tpl))
}

func TestErrorContextAndUnwrap(t *testing.T) {
	err := &Error{
		Op:       "render",
		Stage:    StageRendering,
		Type:     "INVOICE",
		Path:     "/uk",
		AsOf:     Date(2021, 1, 1),
		Strategy: "fmk",
		Err:      ErrUnsupportedRenderCapability,
	}
	require.True(t, errors.Is(err, ErrUnsupportedRenderCapability))
	require.Contains(t, err.Error(), `type "INVOICE"`)
	require.Contains(t, err.Error(), `strategy "fmk"`)
	require.Contains(t, err.Error(), "2021-01-01T00:00:00Z")
	require.Equal(t, "unsupported_render_capability", Reason(err))
}
