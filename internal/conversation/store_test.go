package conversation

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/counseld/internal/taxonomy"
)

// storeFactories lets the contract tests run against every Store
// implementation.
func storeFactories(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			return NewMemoryStore(zap.NewNop())
		},
		"sqlite": func(t *testing.T) Store {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "counseld.db"), zap.NewNop())
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func forEachStore(t *testing.T, fn func(t *testing.T, store Store)) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			fn(t, factory(t))
		})
	}
}

func mustCreate(t *testing.T, store Store, params CreateParams) *Conversation {
	t.Helper()
	conv, err := store.Create(context.Background(), params)
	require.NoError(t, err)
	return conv
}

func TestCreate_Defaults(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		conv := mustCreate(t, store, CreateParams{ClientID: "client-1", ServiceType: "anxiety"})

		assert.NotEmpty(t, conv.ID)
		assert.Equal(t, StatusActive, conv.Status)
		assert.Equal(t, 1, conv.SessionCount)
		assert.Equal(t, 0, conv.TotalMessages)
		assert.Empty(t, conv.Messages)
		assert.False(t, conv.CreatedAt.IsZero())
	})
}

func TestCreate_WithInitialMessage(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		conv := mustCreate(t, store, CreateParams{
			ClientID:       "client-1",
			ServiceType:    "anxiety",
			InitialMessage: "I need someone to talk to",
		})

		require.Len(t, conv.Messages, 1)
		assert.Equal(t, 1, conv.TotalMessages)
		assert.Equal(t, RoleUser, conv.Messages[0].Role)
		assert.Equal(t, "I need someone to talk to", conv.Messages[0].Content)
	})
}

func TestCreate_Validation(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		_, err := store.Create(context.Background(), CreateParams{ServiceType: "anxiety"})
		assert.ErrorIs(t, err, ErrInvalidInput)

		_, err = store.Create(context.Background(), CreateParams{ClientID: "client-1"})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestAddMessage_AppendsInOrder(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		conv := mustCreate(t, store, CreateParams{ClientID: "client-1", ServiceType: "anxiety"})

		for i := 1; i <= 5; i++ {
			_, err := store.AddMessage(ctx, conv.ID, NewMessage{
				Role:    RoleUser,
				Content: fmt.Sprintf("message %d", i),
			})
			require.NoError(t, err)
		}

		got, err := store.Get(ctx, conv.ID)
		require.NoError(t, err)
		require.Len(t, got.Messages, 5)
		assert.Equal(t, 5, got.TotalMessages)
		for i, m := range got.Messages {
			assert.Equal(t, fmt.Sprintf("message %d", i+1), m.Content)
		}
		for i := 1; i < len(got.Messages); i++ {
			assert.False(t, got.Messages[i].Timestamp.Before(got.Messages[i-1].Timestamp),
				"timestamps must be non-decreasing")
		}
	})
}

func TestAddMessage_NotFound(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		_, err := store.AddMessage(context.Background(), "missing", NewMessage{
			Role: RoleUser, Content: "hello",
		})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestAddMessage_InvalidInputLeavesStoreUntouched(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		conv := mustCreate(t, store, CreateParams{ClientID: "client-1", ServiceType: "anxiety"})

		_, err := store.AddMessage(ctx, conv.ID, NewMessage{Role: RoleUser})
		assert.ErrorIs(t, err, ErrInvalidInput)

		_, err = store.AddMessage(ctx, conv.ID, NewMessage{Role: "bot", Content: "hi"})
		assert.ErrorIs(t, err, ErrInvalidInput)

		got, err := store.Get(ctx, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, got.TotalMessages)
		assert.Equal(t, conv.UpdatedAt.UTC(), got.UpdatedAt.UTC())
	})
}

func TestAddMessage_MetadataFeedsProgress(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		conv := mustCreate(t, store, CreateParams{ClientID: "client-1", ServiceType: "anxiety"})

		mood := 4
		_, err := store.AddMessage(ctx, conv.ID, NewMessage{
			Role:     RoleUser,
			Content:  "feeling a bit better after the breathing exercise",
			Metadata: &MessageMetadata{Mood: &mood, CopingSkill: "box breathing"},
		})
		require.NoError(t, err)

		got, err := store.Get(ctx, conv.ID)
		require.NoError(t, err)
		require.Len(t, got.Progress.MoodHistory, 1)
		assert.Equal(t, 4, got.Progress.MoodHistory[0].Value)
		require.Len(t, got.Progress.CopingSkills, 1)
		assert.Equal(t, "box breathing", got.Progress.CopingSkills[0].Note)
	})
}

func TestGet_NotFound(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		_, err := store.Get(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestHistory_RoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		conv := mustCreate(t, store, CreateParams{ClientID: "client-1", ServiceType: "anxiety"})

		for _, content := range []string{"first", "second", "third"} {
			_, err := store.AddMessage(ctx, conv.ID, NewMessage{Role: RoleUser, Content: content})
			require.NoError(t, err)
		}

		history, err := store.History(ctx, conv.ID, 2)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, "second", history[0].Content)
		assert.Equal(t, "third", history[1].Content)
	})
}

func TestHistory_AbsentConversationIsEmpty(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		history, err := store.History(context.Background(), "missing", 10)
		require.NoError(t, err)
		assert.Empty(t, history)
	})
}

func TestHistory_DefaultLimit(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		conv := mustCreate(t, store, CreateParams{ClientID: "client-1", ServiceType: "anxiety"})

		for i := 0; i < 25; i++ {
			_, err := store.AddMessage(ctx, conv.ID, NewMessage{
				Role: RoleUser, Content: fmt.Sprintf("m%d", i),
			})
			require.NoError(t, err)
		}

		history, err := store.History(ctx, conv.ID, 0)
		require.NoError(t, err)
		assert.Len(t, history, 20)
		assert.Equal(t, "m5", history[0].Content)
		assert.Equal(t, "m24", history[19].Content)
	})
}

func TestListByClient_MostRecentFirst(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		older := mustCreate(t, store, CreateParams{ClientID: "client-1", ServiceType: "anxiety"})
		newer := mustCreate(t, store, CreateParams{ClientID: "client-1", ServiceType: "substance"})
		mustCreate(t, store, CreateParams{ClientID: "client-2", ServiceType: "anxiety"})

		// Touch the older one last so it becomes most recently active.
		_, err := store.AddMessage(ctx, older.ID, NewMessage{Role: RoleUser, Content: "back again"})
		require.NoError(t, err)

		got, err := store.ListByClient(ctx, "client-1")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, older.ID, got[0].ID)
		assert.Equal(t, newer.ID, got[1].ID)
	})
}

func TestUpdateGoals_Replace(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		conv := mustCreate(t, store, CreateParams{ClientID: "client-1", ServiceType: "anxiety"})

		goals, err := store.UpdateGoals(ctx, conv.ID, []string{"sleep routine", "daily walk"})
		require.NoError(t, err)
		assert.Equal(t, []string{"sleep routine", "daily walk"}, goals)

		goals, err = store.UpdateGoals(ctx, conv.ID, []string{"journaling"})
		require.NoError(t, err)
		assert.Equal(t, []string{"journaling"}, goals)

		got, err := store.Get(ctx, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"journaling"}, got.Goals)

		_, err = store.UpdateGoals(ctx, "missing", []string{"x"})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestFlagCrisis_AppendOnly(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		conv := mustCreate(t, store, CreateParams{ClientID: "client-1", ServiceType: "anxiety"})

		first, err := store.FlagCrisis(ctx, conv.ID, FlagParams{
			Level:     taxonomy.TierImmediate,
			Keywords:  []string{"kill myself"},
			Escalated: true,
		})
		require.NoError(t, err)
		assert.False(t, first.Resolved)
		assert.True(t, first.Escalated)

		_, err = store.FlagCrisis(ctx, conv.ID, FlagParams{Level: taxonomy.TierModerate})
		require.NoError(t, err)

		got, err := store.Get(ctx, conv.ID)
		require.NoError(t, err)
		require.Len(t, got.CrisisFlags, 2)
		assert.Equal(t, first.ID, got.CrisisFlags[0].ID)
		assert.Equal(t, []string{"kill myself"}, got.CrisisFlags[0].Keywords)

		_, err = store.FlagCrisis(ctx, "missing", FlagParams{Level: taxonomy.TierModerate})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestResolveFlag(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		conv := mustCreate(t, store, CreateParams{ClientID: "client-1", ServiceType: "anxiety"})

		flag, err := store.FlagCrisis(ctx, conv.ID, FlagParams{Level: taxonomy.TierSevere, Escalated: true})
		require.NoError(t, err)

		require.NoError(t, store.ResolveFlag(ctx, conv.ID, flag.ID))

		got, err := store.Get(ctx, conv.ID)
		require.NoError(t, err)
		require.Len(t, got.CrisisFlags, 1)
		assert.True(t, got.CrisisFlags[0].Resolved)

		err = store.ResolveFlag(ctx, conv.ID, "missing-flag")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStartSession_Increments(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		conv := mustCreate(t, store, CreateParams{ClientID: "client-1", ServiceType: "anxiety"})

		count, err := store.StartSession(ctx, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		count, err = store.StartSession(ctx, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, count)

		_, err = store.StartSession(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestSetStatus_Close(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		conv := mustCreate(t, store, CreateParams{ClientID: "client-1", ServiceType: "anxiety"})

		require.NoError(t, store.SetStatus(ctx, conv.ID, StatusClosed))

		got, err := store.Get(ctx, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusClosed, got.Status)

		assert.ErrorIs(t, store.SetStatus(ctx, conv.ID, Status("archived")), ErrInvalidInput)
		assert.ErrorIs(t, store.SetStatus(ctx, "missing", StatusClosed), ErrNotFound)
	})
}

func TestAnalytics_EmptyStore(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		a, err := store.Analytics(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 0, a.TotalConversations)
		assert.Equal(t, float64(0), a.AverageSessionCount)
		assert.Empty(t, a.RecentConversations)
	})
}

func TestAnalytics_Populated(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		a1 := mustCreate(t, store, CreateParams{ClientID: "c1", ServiceType: "anxiety", InitialMessage: "hi"})
		mustCreate(t, store, CreateParams{ClientID: "c2", ServiceType: "anxiety"})
		closed := mustCreate(t, store, CreateParams{ClientID: "c3", ServiceType: "substance"})

		_, err := store.StartSession(ctx, a1.ID)
		require.NoError(t, err)
		_, err = store.FlagCrisis(ctx, a1.ID, FlagParams{Level: taxonomy.TierModerate})
		require.NoError(t, err)
		require.NoError(t, store.SetStatus(ctx, closed.ID, StatusClosed))

		a, err := store.Analytics(ctx)
		require.NoError(t, err)

		assert.Equal(t, 3, a.TotalConversations)
		assert.Equal(t, 2, a.ActiveConversations)
		assert.Equal(t, 1, a.TotalMessages)
		assert.Equal(t, 1, a.TotalCrisisFlags)
		assert.Equal(t, 2, a.ByServiceType["anxiety"])
		assert.Equal(t, 1, a.ByServiceType["substance"])
		assert.InDelta(t, 4.0/3.0, a.AverageSessionCount, 0.0001)
		assert.Len(t, a.RecentConversations, 3)
	})
}

func TestSearch_SubstringAndFilters(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		anx := mustCreate(t, store, CreateParams{ClientID: "c1", ServiceType: "anxiety"})
		rel := mustCreate(t, store, CreateParams{ClientID: "c1", ServiceType: "relationships"})

		_, err := store.AddMessage(ctx, anx.ID, NewMessage{
			Role: RoleUser, Content: "I've been so Anxious before meetings",
		})
		require.NoError(t, err)
		_, err = store.AddMessage(ctx, rel.ID, NewMessage{
			Role: RoleUser, Content: "feeling anxious about my marriage",
		})
		require.NoError(t, err)

		// Unfiltered: both conversations contain "anxious".
		results, err := store.Search(ctx, "anxious", SearchFilters{})
		require.NoError(t, err)
		assert.Len(t, results, 2)

		// Filtered by service type.
		results, err = store.Search(ctx, "anxious", SearchFilters{ServiceType: "anxiety"})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, anx.ID, results[0].ID)
		assert.Equal(t, "anxiety", results[0].ServiceType)

		// No match.
		results, err = store.Search(ctx, "wholly absent phrase", SearchFilters{})
		require.NoError(t, err)
		assert.Empty(t, results)

		// Empty query is invalid.
		_, err = store.Search(ctx, "", SearchFilters{})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestSearch_FoldsUnicodeCase(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		conv := mustCreate(t, store, CreateParams{ClientID: "c1", ServiceType: "anxiety"})
		_, err := store.AddMessage(ctx, conv.ID, NewMessage{
			Role: RoleUser, Content: "Ich fühle mich so ÄNGSTLICH",
		})
		require.NoError(t, err)

		// Case folding must cover non-ASCII letters too.
		results, err := store.Search(ctx, "ängstlich", SearchFilters{})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, conv.ID, results[0].ID)

		results, err = store.Search(ctx, "FÜHLE", SearchFilters{})
		require.NoError(t, err)
		assert.Len(t, results, 1)
	})
}

func TestSummarize_TopicsAndCounts(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		conv := mustCreate(t, store, CreateParams{ClientID: "c1", ServiceType: "anxiety"})

		for _, content := range []string{
			"I can't sleep and I'm exhausted",
			"work has been crushing, my boss keeps piling it on",
			"I had a panic attack on Tuesday",
		} {
			_, err := store.AddMessage(ctx, conv.ID, NewMessage{Role: RoleUser, Content: content})
			require.NoError(t, err)
		}
		_, err := store.FlagCrisis(ctx, conv.ID, FlagParams{Level: taxonomy.TierModerate})
		require.NoError(t, err)

		sum, err := store.Summarize(ctx, conv.ID)
		require.NoError(t, err)
		require.NotNil(t, sum)

		assert.Equal(t, conv.ID, sum.ConversationID)
		assert.Equal(t, 3, sum.TotalMessages)
		assert.Contains(t, sum.RecentTopics, "anxiety")
		assert.Contains(t, sum.RecentTopics, "sleep")
		assert.Contains(t, sum.RecentTopics, "work")
		assert.Equal(t, 1, sum.CrisisFlagCount)
		assert.Equal(t, 1, sum.UnresolvedFlags)
	})
}

func TestSummarize_AbsentIsNil(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		sum, err := store.Summarize(context.Background(), "missing")
		require.NoError(t, err)
		assert.Nil(t, sum)
	})
}
