package datamodel

import (
	"encoding/json"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/estatio/docrender/internal/document"
	"github.com/stretchr/testify/require"
)

const leaseNoticeSchema = `{
	"type": "object",
	"required": ["tenant", "rent"],
	"properties": {
		"tenant": {"type": "string", "minLength": 1},
		"rent": {"type": "number", "minimum": 0}
	}
}`

func TestInstantiate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterSchema("LeaseNotice", leaseNoticeSchema))

	m, err := r.Instantiate("LeaseNotice", map[string]any{"tenant": "ACME", "rent": 1200})
	require.NoError(t, err)
	require.Equal(t, "ACME", m["tenant"])
	require.Equal(t, json.Number("1200"), m["rent"])

	type lease struct {
		Tenant string  `json:"tenant"`
		Rent   float64 `json:"rent"`
	}
	m, err = r.Instantiate("LeaseNotice", lease{Tenant: "Globex", Rent: 10})
	require.NoError(t, err)
	require.Equal(t, "Globex", m["tenant"])

	m, err = r.Instantiate("LeaseNotice", []byte(`{"tenant":"Initech","rent":0}`))
	require.NoError(t, err)
	require.Equal(t, "Initech", m["tenant"])
}

func TestInstantiateMismatch(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterSchema("LeaseNotice", leaseNoticeSchema))

	_, err := r.Instantiate("LeaseNotice", map[string]any{"tenant": "ACME"})
	require.ErrorIs(t, err, document.ErrDataModelMismatch)
	var mm *MismatchError
	require.True(t, errors.As(err, &mm))
	require.Equal(t, "LeaseNotice", mm.TypeName)
	require.Contains(t, mm.Schema, "LeaseNotice.schema.json")
	require.Contains(t, err.Error(), "rent")

	_, err = r.Instantiate("LeaseNotice", map[string]any{"tenant": "ACME", "rent": "lots"})
	require.ErrorIs(t, err, document.ErrDataModelMismatch)

	_, err = r.Instantiate("LeaseNotice", []byte(`{not json`))
	require.ErrorIs(t, err, document.ErrDataModelMismatch)

	_, err = r.Instantiate("Unknown", map[string]any{})
	require.ErrorIs(t, err, document.ErrDataModelMismatch)
}

func TestInstantiateRequiresObject(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterSchema("Anything", `{}`))

	m, err := r.Instantiate("Anything", nil)
	require.NoError(t, err)
	require.Empty(t, m)

	_, err = r.Instantiate("Anything", []int{1, 2})
	require.ErrorIs(t, err, document.ErrDataModelMismatch)
}

func TestRegisterSchemaRejectsBrokenSchema(t *testing.T) {
	r := NewRegistry()
	require.Error(t, r.RegisterSchema("Broken", `{"type": 12}`))
	require.ErrorIs(t, r.RegisterSchema("", `{}`), document.ErrInvalidArgument)
}

func TestLoadFS(t *testing.T) {
	fsys := fstest.MapFS{
		"LeaseNotice.schema.json": {Data: []byte(leaseNoticeSchema)},
		"Invoice.schema.yaml": {Data: []byte(`
type: object
required: [number]
properties:
  number:
    type: string
`)},
		"README.md": {Data: []byte("ignored")},
	}
	r := NewRegistry()
	loaded, err := r.LoadFS(fsys)
	require.NoError(t, err)
	require.Equal(t, []string{"Invoice", "LeaseNotice"}, loaded)
	require.Equal(t, loaded, r.Types())
	require.True(t, r.Has("Invoice"))

	_, err = r.Instantiate("Invoice", map[string]any{})
	require.ErrorIs(t, err, document.ErrDataModelMismatch)
	_, err = r.Instantiate("Invoice", map[string]any{"number": "INV-1"})
	require.NoError(t, err)
}
