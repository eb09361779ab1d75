package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moecapital/refinery/pkg/models"
	"github.com/moecapital/refinery/pkg/store"
)

func saveSignal(t *testing.T, st *store.Store, sig *models.Signal) *models.Signal {
	t.Helper()
	if len(sig.SourceItemIDs) == 0 {
		sig.SourceItemIDs = []string{uuid.NewString()}
	}
	require.NoError(t, st.SaveSignal(context.Background(), sig))
	return sig
}

func TestSaveSignalRoundtrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	sig := saveSignal(t, st, &models.Signal{
		SourceName:     "Market Wire",
		Summary:        "Fed cuts rates",
		Analysis:       "Dovish surprise.",
		FactCheck:      "Confirmed.",
		Sentiment:      models.SentimentBullish,
		RelevanceScore: 88,
		Urgent:         true,
		Tickers:        []string{"SPY"},
		Tags:           []string{"macro"},
	})
	assert.NotEmpty(t, sig.ID)
	assert.NotEmpty(t, sig.Fingerprint)

	signals, total, err := st.ListSignals(ctx, models.SignalFilters{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, signals, 1)

	got := signals[0]
	assert.Equal(t, sig.ID, got.ID)
	assert.Equal(t, "Fed cuts rates", got.Summary)
	assert.Equal(t, models.SentimentBullish, got.Sentiment)
	assert.Equal(t, 88, got.RelevanceScore)
	assert.True(t, got.Urgent)
	assert.Equal(t, []string{"SPY"}, got.Tickers)
	assert.Equal(t, []string{"macro"}, got.Tags)
	assert.Equal(t, sig.SourceItemIDs, got.SourceItemIDs)
}

func TestRecentSignalByFingerprint(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	sig := saveSignal(t, st, &models.Signal{Summary: "repeated story", RelevanceScore: 70})

	dup, err := st.RecentSignalByFingerprint(ctx, sig.Fingerprint, 6*time.Hour)
	require.NoError(t, err)
	assert.True(t, dup)

	dup, err = st.RecentSignalByFingerprint(ctx, "0000000000000000000000000000000000000000000000000000000000000000", 6*time.Hour)
	require.NoError(t, err)
	assert.False(t, dup)

	// A matching signal outside the window no longer suppresses.
	old := saveSignal(t, st, &models.Signal{
		Summary:        "ancient story",
		RelevanceScore: 70,
		CreatedAt:      time.Now().Add(-12 * time.Hour),
	})
	dup, err = st.RecentSignalByFingerprint(ctx, old.Fingerprint, 6*time.Hour)
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestListSignalsFiltersAndPagination(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	saveSignal(t, st, &models.Signal{
		SourceName: "wire", Summary: "Fed raises rates", Sentiment: models.SentimentBearish,
		RelevanceScore: 75, CreatedAt: base,
	})
	saveSignal(t, st, &models.Signal{
		SourceName: "wire", Summary: "AAPL earnings beat", Sentiment: models.SentimentBullish,
		RelevanceScore: 85, Urgent: true, CreatedAt: base.Add(time.Minute),
	})
	saveSignal(t, st, &models.Signal{
		SourceName: "desk", Summary: "Oil inventories draw", Sentiment: models.SentimentBullish,
		RelevanceScore: 65, CreatedAt: base.Add(2 * time.Minute),
	})

	t.Run("newest first", func(t *testing.T) {
		signals, total, err := st.ListSignals(ctx, models.SignalFilters{Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		require.Len(t, signals, 3)
		assert.Equal(t, "Oil inventories draw", signals[0].Summary)
		assert.Equal(t, "Fed raises rates", signals[2].Summary)
	})

	t.Run("source filter", func(t *testing.T) {
		signals, total, err := st.ListSignals(ctx, models.SignalFilters{Source: "wire", Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Len(t, signals, 2)
	})

	t.Run("sentiment filter", func(t *testing.T) {
		_, total, err := st.ListSignals(ctx, models.SignalFilters{Sentiment: "bearish", Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
	})

	t.Run("urgent filter", func(t *testing.T) {
		urgent := true
		signals, total, err := st.ListSignals(ctx, models.SignalFilters{Urgent: &urgent, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, signals, 1)
		assert.Equal(t, "AAPL earnings beat", signals[0].Summary)
	})

	t.Run("text query", func(t *testing.T) {
		_, total, err := st.ListSignals(ctx, models.SignalFilters{Query: "earnings", Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
	})

	t.Run("time range", func(t *testing.T) {
		from := base.Add(30 * time.Second)
		_, total, err := st.ListSignals(ctx, models.SignalFilters{From: &from, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
	})

	t.Run("pagination", func(t *testing.T) {
		signals, total, err := st.ListSignals(ctx, models.SignalFilters{Limit: 2, Offset: 2})
		require.NoError(t, err)
		assert.Equal(t, 3, total, "total ignores pagination")
		require.Len(t, signals, 1)
		assert.Equal(t, "Fed raises rates", signals[0].Summary)
	})
}

func TestDistinctSignalSources(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	saveSignal(t, st, &models.Signal{SourceName: "wire", Summary: "a", RelevanceScore: 60})
	saveSignal(t, st, &models.Signal{SourceName: "desk", Summary: "b", RelevanceScore: 60})
	saveSignal(t, st, &models.Signal{SourceName: "wire", Summary: "c", RelevanceScore: 60})
	saveSignal(t, st, &models.Signal{Summary: "nameless", RelevanceScore: 60})

	sources, err := st.DistinctSignalSources(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"desk", "wire"}, sources)
}
