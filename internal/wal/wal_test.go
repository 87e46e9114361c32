package wal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWAL(t *testing.T) (*WAL, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.wal")
	w, err := NewWAL(path)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w, path
}

func entry(id string) Entry {
	return Entry{
		MessageID:  id,
		SenderID:   1,
		ReceiverID: 2,
		Content:    "hello " + id,
		CreatedAt:  time.Now().UTC(),
	}
}

func TestWAL_WriteAfterCleanup(t *testing.T) {
	w, _ := newTestWAL(t)

	for _, id := range []string{"msg1", "msg2", "msg3"} {
		require.NoError(t, w.Write(entry(id)))
	}

	all, err := w.ReadAll()
	require.NoError(t, err)
	require.Len(t, all, 3)

	require.NoError(t, w.Cleanup([]string{"msg1", "msg2"}))

	remaining, err := w.ReadAll()
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "msg3", remaining[0].MessageID)

	// The file handle is replaced during cleanup; writes must still land
	require.NoError(t, w.Write(entry("msg4")))
	require.NoError(t, w.Write(entry("msg5")))

	final, err := w.ReadAll()
	require.NoError(t, err)
	require.Len(t, final, 3)
	assert.Equal(t, []string{"msg3", "msg4", "msg5"}, []string{
		final[0].MessageID, final[1].MessageID, final[2].MessageID,
	})
}

func TestWAL_EntriesSurviveReopen(t *testing.T) {
	w, path := newTestWAL(t)

	e := entry("persisted")
	e.Content = "  keeps surrounding whitespace  "
	require.NoError(t, w.Write(e))
	require.NoError(t, w.Close())

	reopened, err := NewWAL(path)
	require.NoError(t, err)
	defer reopened.Close()

	entries, err := reopened.ReadAll()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, e.MessageID, entries[0].MessageID)
	assert.Equal(t, e.Content, entries[0].Content)
	assert.Equal(t, uint64(2), entries[0].ReceiverID)
	assert.True(t, e.CreatedAt.Equal(entries[0].CreatedAt))
}

func TestWAL_SkipsMalformedLines(t *testing.T) {
	w, path := newTestWAL(t)
	require.NoError(t, w.Write(entry("good")))

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	entries, err := w.ReadAll()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "good", entries[0].MessageID)
}

func TestWAL_CleanupUnknownIDsIsHarmless(t *testing.T) {
	w, _ := newTestWAL(t)
	require.NoError(t, w.Write(entry("a")))

	require.NoError(t, w.Cleanup([]string{"missing"}))
	require.NoError(t, w.Cleanup(nil))

	entries, err := w.ReadAll()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWAL_FailedCleanupKeepsJournalWritable(t *testing.T) {
	w, path := newTestWAL(t)
	require.NoError(t, w.Write(entry("first")))

	// A directory where the temp file goes makes the rewrite fail
	blocker := path + ".tmp"
	require.NoError(t, os.Mkdir(blocker, 0755))

	require.Error(t, w.Cleanup([]string{"first"}))

	require.NoError(t, os.Remove(blocker))
	require.NoError(t, w.Write(entry("second")))

	entries, err := w.ReadAll()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "first", entries[0].MessageID)
	assert.Equal(t, "second", entries[1].MessageID)

	require.NoError(t, w.Cleanup([]string{"first"}))
	require.NoError(t, w.Write(entry("third")))

	entries, err = w.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"second", "third"}, []string{entries[0].MessageID, entries[1].MessageID})
}
