package document

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestApplies(t *testing.T) {
	cases := []struct {
		scope, target string
		want          bool
	}{
		{"/a/b", "/a/b/c", true},
		{"/a/b", "/ab/c", false},
		{"/a", "/a", true},
		{"/", "/anything/at/all", true},
		{"/", "/", true},
		{"/a/b/c", "/a/b", false},
		{"/uk/london", "/uk/london/branch1", true},
		{"/uk/london", "/uk/manchester", false},
		{"/uk/london/", "uk//london/branch1", true},
		{"/uk/london", "/uk/ london", false},
		{"/uk/ london", "/uk/ london/branch1", true},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Applies(tc.scope, tc.target), "Applies(%q, %q)", tc.scope, tc.target)
	}
}

func TestNormalizePath(t *testing.T) {
	require.Equal(t, "/", NormalizePath(""))
	require.Equal(t, "/", NormalizePath("///"))
	require.Equal(t, "/uk/london", NormalizePath("uk/london/"))
	require.Equal(t, "/uk/london", NormalizePath("/uk//london"))
	require.Equal(t, "/uk/ london", NormalizePath("/uk/ london/"))
}

func TestSpecificity(t *testing.T) {
	require.Equal(t, 0, Specificity("/"))
	require.Equal(t, 2, Specificity("/uk/london"))
}

func TestPrefixes(t *testing.T) {
	got := Prefixes("/uk/london/branch1")
	want := []string{"/", "/uk", "/uk/london", "/uk/london/branch1"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Prefixes mismatch (-want +got):\n%s", diff)
	}
	for _, p := range got {
		require.True(t, Applies(p, "/uk/london/branch1"))
	}
}
