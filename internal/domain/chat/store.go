package chat

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"openchat/internal/utils/idgen"
	"openchat/internal/utils/stringutils"
)

const persistTimeout = 10 * time.Second

// Store holds every chat thread of the session plus the identifier of the
// active one. It is the single choke point for conversation mutation: all
// writes go through its operation set so the message invariants hold, and every
// mutation fires a non-blocking save to the configured persistence backend.
// A failed save is logged and never rolls back in-memory state.
type Store struct {
	mu       sync.Mutex
	threads  []*Thread
	activeID string
	backend  Backend
	log      zerolog.Logger
	watchers []chan struct{}

	// persisting tracks in-flight backend calls so Close can drain them.
	persisting sync.WaitGroup
}

// NewStore creates an empty store over the given backend.
func NewStore(backend Backend, log zerolog.Logger) *Store {
	return &Store{
		backend: backend,
		log:     log,
	}
}

// Load rehydrates the store from the backend: threads are restored most recent
// first and the first one becomes active. With no persisted threads a fresh
// one is created so the session always has somewhere to append.
func (s *Store) Load(ctx context.Context) error {
	threads, err := s.backend.Load(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.threads = threads
	if len(threads) > 0 {
		s.activeID = threads[0].ID
	}
	s.mu.Unlock()

	if len(threads) == 0 {
		s.CreateThread()
	} else {
		s.notify()
	}
	return nil
}

// Subscribe returns a channel that receives a signal whenever the thread
// collection or the active id changes. The channel has a buffer of one and
// coalesces bursts; it is never closed.
func (s *Store) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.watchers = append(s.watchers, ch)
	s.mu.Unlock()
	return ch
}

func (s *Store) notify() {
	s.mu.Lock()
	watchers := append([]chan struct{}(nil), s.watchers...)
	s.mu.Unlock()
	for _, ch := range watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// CreateThread inserts a new empty thread at the front of the collection and
// makes it active. An existing empty thread is reused instead of stacking up
// blank conversations. Persistence is requested asynchronously; the
// backend-issued remote id is attached once the create resolves, without
// changing the local id.
func (s *Store) CreateThread() string {
	s.mu.Lock()
	for _, t := range s.threads {
		if len(t.Messages) == 0 {
			s.activeID = t.ID
			s.mu.Unlock()
			s.notify()
			return t.ID
		}
	}

	id, err := idgen.GenerateSecureID("chat", 16)
	if err != nil {
		s.mu.Unlock()
		s.log.Error().Err(err).Msg("failed to generate thread id")
		return ""
	}

	now := time.Now()
	thread := &Thread{
		ID:        id,
		Title:     "New Chat",
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.threads = append([]*Thread{thread}, s.threads...)
	s.activeID = id
	snapshot := thread.Clone()
	s.mu.Unlock()

	s.persisting.Add(1)
	go func() {
		defer s.persisting.Done()
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()

		remoteID, err := s.backend.Create(ctx, snapshot)
		if err != nil {
			s.log.Warn().Err(err).Str("thread_id", id).Msg("failed to persist new thread")
			return
		}
		s.mu.Lock()
		if t := s.findLocked(id); t != nil {
			t.RemoteID = remoteID
		}
		s.mu.Unlock()
	}()

	s.notify()
	return id
}

// SelectThread activates the thread with the given id. Unknown ids are a
// silent no-op.
func (s *Store) SelectThread(id string) {
	s.mu.Lock()
	if s.findLocked(id) == nil {
		s.mu.Unlock()
		return
	}
	s.activeID = id
	s.mu.Unlock()
	s.notify()
}

// DeleteThread removes a thread. When the active thread is deleted the first
// remaining thread becomes active, or none when the collection is empty. The
// remote delete is best-effort.
func (s *Store) DeleteThread(id string) {
	s.mu.Lock()
	var removed *Thread
	kept := s.threads[:0]
	for _, t := range s.threads {
		if t.ID == id {
			removed = t
			continue
		}
		kept = append(kept, t)
	}
	if removed == nil {
		s.mu.Unlock()
		return
	}
	s.threads = kept
	if s.activeID == id {
		if len(kept) > 0 {
			s.activeID = kept[0].ID
		} else {
			s.activeID = ""
		}
	}
	snapshot := removed.Clone()
	s.mu.Unlock()

	s.persisting.Add(1)
	go func() {
		defer s.persisting.Done()
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := s.backend.Delete(ctx, snapshot); err != nil {
			s.log.Warn().Err(err).Str("thread_id", id).Msg("failed to delete thread remotely")
		}
	}()

	s.notify()
}

// AppendMessage constructs a Message and appends it to the active thread,
// returning the new message id. Without an active thread nothing is mutated
// and the empty id is returned; the caller is expected to queue the submission
// instead. The first user message also sets the thread title when none was
// set explicitly.
func (s *Store) AppendMessage(content string, role Role, uploads []Upload, msgType MessageType) string {
	if msgType == "" {
		msgType = MessageTypeChat
	}

	s.mu.Lock()
	thread := s.findLocked(s.activeID)
	if thread == nil {
		s.mu.Unlock()
		return ""
	}

	id, err := idgen.GenerateSecureID("msg", 16)
	if err != nil {
		s.mu.Unlock()
		s.log.Error().Err(err).Msg("failed to generate message id")
		return ""
	}

	if len(thread.Messages) == 0 && role == RoleUser {
		thread.Title = stringutils.DeriveTitle(content)
	}
	thread.Messages = append(thread.Messages, Message{
		ID:        id,
		Role:      role,
		Content:   content,
		Uploads:   uploads,
		Type:      msgType,
		Timestamp: time.Now(),
	})
	thread.UpdatedAt = time.Now()
	snapshot := thread.Clone()
	s.mu.Unlock()

	s.persistAsync(snapshot)
	s.notify()
	return id
}

// UpdateMessageContent replaces the content of the message with the given id.
// The active thread is checked first; background regeneration may target a
// message in any thread.
func (s *Store) UpdateMessageContent(messageID, content string) {
	s.mu.Lock()
	var owner *Thread
	if active := s.findLocked(s.activeID); active != nil {
		if s.setContentLocked(active, messageID, content) {
			owner = active
		}
	}
	if owner == nil {
		for _, t := range s.threads {
			if t.ID == s.activeID {
				continue
			}
			if s.setContentLocked(t, messageID, content) {
				owner = t
				break
			}
		}
	}
	if owner == nil {
		s.mu.Unlock()
		return
	}
	owner.UpdatedAt = time.Now()
	snapshot := owner.Clone()
	s.mu.Unlock()

	s.persistAsync(snapshot)
	s.notify()
}

// UpdateThreadTitle replaces the title of the given thread.
func (s *Store) UpdateThreadTitle(id, title string) {
	s.mu.Lock()
	thread := s.findLocked(id)
	if thread == nil {
		s.mu.Unlock()
		return
	}
	thread.Title = title
	thread.UpdatedAt = time.Now()
	snapshot := thread.Clone()
	s.mu.Unlock()

	s.persistAsync(snapshot)
	s.notify()
}

// TruncateBefore removes the message with the given id and everything after it
// from the active thread, returning the removed head message. Used by the edit
// flow, which discards the conversation tail before resubmitting.
func (s *Store) TruncateBefore(messageID string) (Message, bool) {
	s.mu.Lock()
	thread := s.findLocked(s.activeID)
	if thread == nil {
		s.mu.Unlock()
		return Message{}, false
	}
	idx := -1
	for i := range thread.Messages {
		if thread.Messages[i].ID == messageID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return Message{}, false
	}
	removed := thread.Messages[idx]
	thread.Messages = thread.Messages[:idx]
	thread.UpdatedAt = time.Now()
	snapshot := thread.Clone()
	s.mu.Unlock()

	s.persistAsync(snapshot)
	s.notify()
	return removed, true
}

// ActiveThreadID returns the id of the active thread, or empty.
func (s *Store) ActiveThreadID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// ActiveThread returns a snapshot of the active thread, or nil.
func (s *Store) ActiveThread() *Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t := s.findLocked(s.activeID); t != nil {
		return t.Clone()
	}
	return nil
}

// Thread returns a snapshot of the thread with the given id, or nil.
func (s *Store) Thread(id string) *Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t := s.findLocked(id); t != nil {
		return t.Clone()
	}
	return nil
}

// Threads returns snapshots of all threads, most recently created first.
func (s *Store) Threads() []*Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Thread, len(s.threads))
	for i, t := range s.threads {
		out[i] = t.Clone()
	}
	return out
}

// Close waits for in-flight persistence calls to finish.
func (s *Store) Close() {
	s.persisting.Wait()
}

func (s *Store) findLocked(id string) *Thread {
	if id == "" {
		return nil
	}
	for _, t := range s.threads {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func (s *Store) setContentLocked(t *Thread, messageID, content string) bool {
	for i := range t.Messages {
		if t.Messages[i].ID == messageID {
			t.Messages[i].Content = content
			return true
		}
	}
	return false
}

func (s *Store) persistAsync(snapshot *Thread) {
	s.persisting.Add(1)
	go func() {
		defer s.persisting.Done()
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := s.backend.Save(ctx, snapshot); err != nil {
			s.log.Warn().Err(err).Str("thread_id", snapshot.ID).Msg("failed to persist thread")
		}
	}()
}
