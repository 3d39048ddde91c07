package store_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/keyword-radar/internal/store"
)

func TestExpiredKeepsNewest(t *testing.T) {
	dates := []string{"2024-01-01", "2024-01-02", "2024-01-05"}

	require.Equal(t, []string{"2024-01-01"}, store.Expired(dates, "2024-01-02"))
	require.Equal(t, []string{"2024-01-01", "2024-01-02"}, store.Expired(dates, "2024-02-01"))
	require.Empty(t, store.Expired(dates, "2023-12-31"))
	require.Empty(t, store.Expired([]string{"2024-01-01"}, "2025-01-01"))
	require.Empty(t, store.Expired(nil, "2025-01-01"))
}

func TestBefore(t *testing.T) {
	dates := []string{"2024-01-01", "2024-01-03"}

	d, ok := store.Before(dates, "2024-01-03")
	require.True(t, ok)
	require.Equal(t, "2024-01-01", d)

	d, ok = store.Before(dates, "2024-01-09")
	require.True(t, ok)
	require.Equal(t, "2024-01-03", d)

	_, ok = store.Before(dates, "2024-01-01")
	require.False(t, ok)
}

func TestCheckKey(t *testing.T) {
	require.NoError(t, store.CheckKey("ai", "2024-01-01"))
	require.Error(t, store.CheckKey("", "2024-01-01"))
	require.Error(t, store.CheckKey("ai", "yesterday"))
}
