package wal

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Baaaki/pharmsoc-messaging/pkg/logger"
	"go.uber.org/zap"
)

// Entry is one accepted send that may not have reached the database yet
type Entry struct {
	MessageID  string    `json:"message_id"`
	SenderID   uint64    `json:"sender_id"`
	ReceiverID uint64    `json:"receiver_id"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

// WAL is an append-only, fsynced journal of in-flight sends
type WAL struct {
	filePath string
	file     *os.File
	mu       sync.Mutex
}

// NewWAL opens (or creates) the journal at filePath
func NewWAL(filePath string) (*WAL, error) {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	return &WAL{
		filePath: filePath,
		file:     file,
	}, nil
}

// Write appends an entry and syncs it to disk before returning
func (w *WAL) Write(entry Entry) error {
	start := time.Now()
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		logger.Log.Error("WAL: Failed to marshal entry",
			zap.String("message_id", entry.MessageID),
			zap.Error(err),
		)
		return err
	}

	if _, err := w.file.Write(append(data, '\n')); err != nil {
		logger.Log.Error("WAL: Failed to write to file",
			zap.String("message_id", entry.MessageID),
			zap.Error(err),
		)
		return err
	}

	syncStart := time.Now()
	if err := w.file.Sync(); err != nil {
		logger.Log.Error("WAL: Failed to sync to disk",
			zap.String("message_id", entry.MessageID),
			zap.Error(err),
		)
		return err
	}

	logger.Log.Debug("WAL: Entry written and synced",
		zap.String("message_id", entry.MessageID),
		zap.Duration("sync_duration", time.Since(syncStart)),
		zap.Duration("total_duration", time.Since(start)),
	)
	return nil
}

// ReadAll returns every entry still in the journal, oldest first
func (w *WAL) ReadAll() ([]Entry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.readAllUnsafe()
}

// Cleanup drops the given message ids from the journal
func (w *WAL) Cleanup(messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	allEntries, err := w.readAllUnsafe()
	if err != nil {
		logger.Log.Error("WAL: Failed to read entries for cleanup", zap.Error(err))
		return err
	}

	drop := make(map[string]struct{}, len(messageIDs))
	for _, id := range messageIDs {
		drop[id] = struct{}{}
	}

	remaining := allEntries[:0]
	for _, entry := range allEntries {
		if _, ok := drop[entry.MessageID]; !ok {
			remaining = append(remaining, entry)
		}
	}

	// The current handle stays in place until the rewritten file is open, so a
	// failed cleanup leaves the journal writable.
	if err := w.rewriteUnsafe(remaining); err != nil {
		return err
	}

	newFile, err := os.OpenFile(w.filePath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		logger.Log.Error("WAL: Failed to reopen file after cleanup",
			zap.String("file_path", w.filePath),
			zap.Error(err),
		)
		return err
	}

	if err := w.file.Close(); err != nil {
		logger.Log.Warn("WAL: Failed to close previous file handle", zap.Error(err))
	}
	w.file = newFile

	logger.Log.Debug("WAL: Cleanup completed",
		zap.Int("removed_count", len(allEntries)-len(remaining)),
		zap.Int("remaining_count", len(remaining)),
	)
	return nil
}

// rewriteUnsafe replaces the journal file with entries via temp file + rename
func (w *WAL) rewriteUnsafe(entries []Entry) error {
	tempFile := w.filePath + ".tmp"
	f, err := os.Create(tempFile)
	if err != nil {
		logger.Log.Error("WAL: Failed to create temp file",
			zap.String("temp_file", tempFile),
			zap.Error(err),
		)
		return err
	}

	buf := bufio.NewWriter(f)
	for _, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			f.Close()
			os.Remove(tempFile)
			return err
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	if err := buf.Flush(); err != nil {
		f.Close()
		os.Remove(tempFile)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tempFile)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tempFile)
		return err
	}

	if err := os.Rename(tempFile, w.filePath); err != nil {
		logger.Log.Error("WAL: Failed to rename temp file",
			zap.String("temp_file", tempFile),
			zap.String("target_file", w.filePath),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// readAllUnsafe reads all entries without locking; malformed lines are skipped
func (w *WAL) readAllUnsafe() ([]Entry, error) {
	file, err := os.Open(w.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, err
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			logger.Log.Warn("WAL: Skipping malformed entry", zap.Error(err))
			continue
		}
		entries = append(entries, entry)
	}

	return entries, scanner.Err()
}

// Close closes the journal file
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
