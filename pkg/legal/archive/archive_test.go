package archive

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	a := New(store)
	a.now = func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC) }

	key, err := a.Save(ctx, Record{
		SessionID: "s1",
		BriefID:   "b1",
		Urgency:   "urgent",
		Brief:     map[string]interface{}{"executive_summary": "Bond withheld"},
		Markdown:  "# Lawyer Brief",
	})
	require.NoError(t, err)
	assert.Equal(t, "briefs/s1/b1.json", key)

	got, err := a.Load(ctx, "s1", "b1")
	require.NoError(t, err)
	assert.Equal(t, "urgent", got.Urgency)
	assert.Equal(t, "Bond withheld", got.Brief["executive_summary"])
	assert.Equal(t, "# Lawyer Brief", got.Markdown)
	assert.Equal(t, a.now(), got.ArchivedAt)

	keys, err := store.List(ctx, "briefs/s1/")
	require.NoError(t, err)
	assert.Equal(t, []string{"briefs/s1/b1.json", "briefs/s1/b1.md"}, keys)
}

func TestArchiveBriefIDs(t *testing.T) {
	ctx := context.Background()
	a := New(NewMemoryStore())
	for _, id := range []string{"b2", "b1"} {
		_, err := a.Save(ctx, Record{SessionID: "s1", BriefID: id})
		require.NoError(t, err)
	}
	_, err := a.Save(ctx, Record{SessionID: "s10", BriefID: "other"})
	require.NoError(t, err)

	ids, err := a.BriefIDs(ctx, "s1")

	require.NoError(t, err)
	assert.Equal(t, []string{"b1", "b2"}, ids)
}

func TestArchiveRequiresIDs(t *testing.T) {
	_, err := New(NewMemoryStore()).Save(context.Background(), Record{SessionID: "s1"})
	assert.Error(t, err)
}

func TestArchiveLoadMissing(t *testing.T) {
	_, err := New(NewMemoryStore()).Load(context.Background(), "s1", "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMinioStoreRoundTrip(t *testing.T) {
	endpoint := os.Getenv("MINIO_TEST_ENDPOINT")
	if endpoint == "" {
		t.Skip("MINIO_TEST_ENDPOINT not set")
	}
	store, err := NewMinioStore(MinioConfig{
		Endpoint:  endpoint,
		AccessKey: os.Getenv("MINIO_TEST_ACCESS_KEY"),
		SecretKey: os.Getenv("MINIO_TEST_SECRET_KEY"),
		Bucket:    "legal-briefs-test",
	})
	require.NoError(t, err)

	a := New(store)
	_, err = a.Save(context.Background(), Record{SessionID: "it", BriefID: "b1", Markdown: "x"})
	require.NoError(t, err)
	got, err := a.Load(context.Background(), "it", "b1")
	require.NoError(t, err)
	assert.Equal(t, "x", got.Markdown)
}

func TestNewMinioStoreValidatesConfig(t *testing.T) {
	_, err := NewMinioStore(MinioConfig{Endpoint: "localhost:9000"})
	assert.Error(t, err)
}
