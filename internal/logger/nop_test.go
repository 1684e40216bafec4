package logger

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNopLogger(t *testing.T) {
	logger := NewNop()

	require.NotPanics(t, func() {
		logger.Debug("test message", "key", "value")
		logger.Info("")
		logger.Warn("message", "single")
		logger.Error("message", "k1", "v1", "k2", "v2")
		logger.Fatal("test message") // must not exit
	})
}

func TestRecorder(t *testing.T) {
	rec := NewRecorder()

	rec.Warn("cache get failed", "key", "reach:1", "error", "boom")
	rec.Debug("dropped questionable target", "user_id", 7)
	rec.Info("odd", "dangling")

	entries := rec.Entries()
	require.Len(t, entries, 3)
	require.Equal(t, "warn", entries[0].Level)
	require.Equal(t, "reach:1", entries[0].Fields["key"])
	require.Equal(t, "<missing>", entries[2].Fields["dangling"])

	require.Len(t, rec.Find("debug", "questionable"), 1)
	require.Empty(t, rec.Find("warn", "questionable"))
}

func TestRecorder_Concurrent(t *testing.T) {
	rec := NewRecorder()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec.Info("entry", "i", i)
		}(i)
	}
	wg.Wait()

	require.Len(t, rec.Entries(), 20)
}
