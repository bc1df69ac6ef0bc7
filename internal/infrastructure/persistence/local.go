package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cockroachdb/pebble"
	"github.com/rs/zerolog"

	"openchat/internal/domain/chat"
)

const threadKeyPrefix = "thread:"

// LocalBackend persists threads in an embedded pebble store for sessions
// without a user identity. Threads are stored whole as JSON documents keyed by
// their local id; the local id doubles as the remote id.
type LocalBackend struct {
	db  *pebble.DB
	log zerolog.Logger
}

// OpenLocalBackend opens (or creates) the pebble store at path.
func OpenLocalBackend(path string, log zerolog.Logger) (*LocalBackend, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	return &LocalBackend{db: db, log: log}, nil
}

// Close closes the underlying store.
func (b *LocalBackend) Close() error {
	return b.db.Close()
}

// Create stores the thread and returns its id. There is no separate remote
// identity for local sessions.
func (b *LocalBackend) Create(_ context.Context, t *chat.Thread) (string, error) {
	if err := b.put(t); err != nil {
		return "", err
	}
	return t.ID, nil
}

// Save overwrites the stored thread document.
func (b *LocalBackend) Save(_ context.Context, t *chat.Thread) error {
	return b.put(t)
}

// Delete removes the thread document.
func (b *LocalBackend) Delete(_ context.Context, t *chat.Thread) error {
	if err := b.db.Delete(threadKey(t.ID), pebble.Sync); err != nil {
		return fmt.Errorf("delete thread %s: %w", t.ID, err)
	}
	return nil
}

// Load returns all stored threads, most recently created first. Documents
// that fail to decode are skipped.
func (b *LocalBackend) Load(_ context.Context) ([]*chat.Thread, error) {
	prefix := []byte(threadKeyPrefix)
	iter, err := b.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, fmt.Errorf("iterate threads: %w", err)
	}
	defer iter.Close()

	var threads []*chat.Thread
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var t chat.Thread
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			b.log.Warn().Err(err).Str("key", string(iter.Key())).Msg("skipping undecodable thread")
			continue
		}
		threads = append(threads, &t)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate threads: %w", err)
	}

	sort.Slice(threads, func(i, j int) bool {
		return threads[i].CreatedAt.After(threads[j].CreatedAt)
	})
	return threads, nil
}

func (b *LocalBackend) put(t *chat.Thread) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal thread %s: %w", t.ID, err)
	}
	if err := b.db.Set(threadKey(t.ID), data, pebble.Sync); err != nil {
		return fmt.Errorf("save thread %s: %w", t.ID, err)
	}
	return nil
}

func threadKey(id string) []byte {
	return []byte(threadKeyPrefix + id)
}

var _ chat.Backend = (*LocalBackend)(nil)
