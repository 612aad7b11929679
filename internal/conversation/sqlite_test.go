package conversation

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/counseld/internal/taxonomy"
)

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "counseld.db")

	store, err := NewSQLiteStore(dbPath, zap.NewNop())
	require.NoError(t, err)

	conv, err := store.Create(ctx, CreateParams{
		ClientID: "client-1", ServiceType: "anxiety", InitialMessage: "first session",
	})
	require.NoError(t, err)

	mood := 3
	_, err = store.AddMessage(ctx, conv.ID, NewMessage{
		Role:     RoleUser,
		Content:  "struggling with sleep again",
		Metadata: &MessageMetadata{Mood: &mood},
	})
	require.NoError(t, err)
	_, err = store.FlagCrisis(ctx, conv.ID, FlagParams{
		Level: taxonomy.TierModerate, Keywords: []string{"hopeless"},
	})
	require.NoError(t, err)
	_, err = store.UpdateGoals(ctx, conv.ID, []string{"sleep hygiene"})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(dbPath, zap.NewNop())
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TotalMessages)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "first session", got.Messages[0].Content)
	require.Len(t, got.CrisisFlags, 1)
	assert.Equal(t, []string{"hopeless"}, got.CrisisFlags[0].Keywords)
	assert.Equal(t, []string{"sleep hygiene"}, got.Goals)
	require.Len(t, got.Progress.MoodHistory, 1)
	assert.Equal(t, 3, got.Progress.MoodHistory[0].Value)
}

func TestSQLiteStore_CreatesParentDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "deeper", "counseld.db")

	store, err := NewSQLiteStore(dbPath, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Analytics(context.Background())
	assert.NoError(t, err)
}

func TestSQLiteStore_TimeRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "counseld.db"), zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	conv, err := store.Create(ctx, CreateParams{ClientID: "c1", ServiceType: "anxiety"})
	require.NoError(t, err)

	got, err := store.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.CreatedAt, got.CreatedAt)
	assert.Equal(t, "UTC", got.CreatedAt.Location().String())
}
