package repository

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/estatio/docrender/internal/document"
)

func TestCurrentFilter(t *testing.T) {
	asOf := time.Date(2021, 6, 1, 9, 0, 0, 0, time.FixedZone("CET", 3600))
	got := currentFilter("LEASE_NOTICE", "uk//london/", asOf)

	want := bson.M{
		"type":      "LEASE_NOTICE",
		"retired":   bson.M{"$ne": true},
		"scopePath": bson.M{"$in": []string{"/", "/uk", "/uk/london"}},
		"$or": bson.A{
			bson.M{"effectiveDate": nil},
			bson.M{"effectiveDate": bson.M{"$lte": asOf.UTC()}},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("filter mismatch (-want +got):\n%s", diff)
	}
}

func TestContentUpdateGuardsRevision(t *testing.T) {
	now := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)
	content := document.TextContent("n.txt", "text/plain", "v2")
	filter, update := contentUpdate("tpl-1", 3, content, now)

	require.Equal(t, bson.M{"_id": "tpl-1", "revision": int64(3)}, filter)
	require.Equal(t, bson.M{"revision": 1}, update["$inc"])
	set, ok := update["$set"].(bson.M)
	require.True(t, ok)
	require.Equal(t, content, set["content"])
	require.Equal(t, now, set["updatedAt"])
}
