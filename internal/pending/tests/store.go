package tests

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fatflowers/paycoord/internal/pending"
)

func RunStoreTests(t *testing.T, s pending.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s pending.Store){
		testPendingStore_HappyPath,
		testPendingStore_Overwrite,
		testPendingStore_ClearMissing,
	} {
		tf(t, s)
		teardown()
	}
}

func testPendingStore_HappyPath(t *testing.T, s pending.Store) {
	ctx := context.Background()
	expected := &pending.Record{
		AttemptID:   "attempt-1",
		Provider:    "inapp",
		ProductID:   "coffee_mug",
		Description: "Coffee mug",
		Amount:      500,
		StartedAt:   time.Now().UTC().Truncate(time.Millisecond),
	}

	_, err := s.Get(ctx, pending.DefaultKey)
	require.ErrorIs(t, err, pending.ErrNotFound)

	require.NoError(t, s.Set(ctx, pending.DefaultKey, expected))

	actual, err := s.Get(ctx, pending.DefaultKey)
	require.NoError(t, err)
	require.Equal(t, expected.AttemptID, actual.AttemptID)
	require.Equal(t, expected.Provider, actual.Provider)
	require.Equal(t, expected.ProductID, actual.ProductID)
	require.Equal(t, expected.Description, actual.Description)
	require.Equal(t, expected.Amount, actual.Amount)
	require.Equal(t, expected.IsSubscription, actual.IsSubscription)
	require.True(t, expected.StartedAt.Equal(actual.StartedAt))

	require.NoError(t, s.Clear(ctx, pending.DefaultKey))

	_, err = s.Get(ctx, pending.DefaultKey)
	require.ErrorIs(t, err, pending.ErrNotFound)
}

func testPendingStore_Overwrite(t *testing.T, s pending.Store) {
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, pending.DefaultKey, &pending.Record{AttemptID: "a", ProductID: "coffee_mug", StartedAt: time.Now()}))
	require.NoError(t, s.Set(ctx, pending.DefaultKey, &pending.Record{AttemptID: "b", ProductID: "tea_cup", IsSubscription: true, StartedAt: time.Now()}))

	actual, err := s.Get(ctx, pending.DefaultKey)
	require.NoError(t, err)
	require.Equal(t, "b", actual.AttemptID)
	require.Equal(t, "tea_cup", actual.ProductID)
	require.True(t, actual.IsSubscription)

	_, err = s.Get(ctx, "some_other_key")
	require.ErrorIs(t, err, pending.ErrNotFound)
}

func testPendingStore_ClearMissing(t *testing.T, s pending.Store) {
	require.NoError(t, s.Clear(context.Background(), pending.DefaultKey))
	require.NoError(t, s.Clear(context.Background(), pending.DefaultKey))
}
