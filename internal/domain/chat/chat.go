package chat

import (
	"context"
	"time"
)

// ===============================================
// Message Types
// ===============================================

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageType distinguishes plain chat messages from code messages submitted
// through the code editor, which render as fenced code.
type MessageType string

const (
	MessageTypeChat MessageType = "chat"
	MessageTypeCode MessageType = "code"
)

// Upload describes a file attached to a message.
type Upload struct {
	URL      string `json:"url"`
	MimeType string `json:"mimeType"`
	UUID     string `json:"uuid"`
	Name     string `json:"name,omitempty"`
}

// Message is a single conversation turn. After creation only Content changes:
// it is rewritten incrementally while a reply streams, or replaced wholesale on
// regeneration. ID, Role, Uploads, and Timestamp are immutable.
type Message struct {
	ID        string      `json:"id"`
	Role      Role        `json:"role"`
	Content   string      `json:"content"`
	Uploads   []Upload    `json:"uploads,omitempty"`
	Type      MessageType `json:"messageType"`
	Timestamp time.Time   `json:"timestamp"`
}

// ===============================================
// Thread
// ===============================================

// Thread is a single conversation. ID is minted locally at creation and stays
// stable for the lifetime of the session; RemoteID is attached once the
// persistence backend's create call resolves, so in-flight references to the
// local id remain valid.
type Thread struct {
	ID        string    `json:"id"`
	RemoteID  string    `json:"remoteId,omitempty"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a deep copy safe to hand to persistence goroutines while the
// store keeps mutating the original.
func (t *Thread) Clone() *Thread {
	cp := *t
	cp.Messages = make([]Message, len(t.Messages))
	copy(cp.Messages, t.Messages)
	for i := range cp.Messages {
		if len(t.Messages[i].Uploads) > 0 {
			cp.Messages[i].Uploads = append([]Upload(nil), t.Messages[i].Uploads...)
		}
	}
	return &cp
}

// ===============================================
// Persistence Backend
// ===============================================

// Backend is the persistence capability the store depends on. Two variants
// exist: a remote document store for authenticated sessions and a local
// key-value store otherwise. All calls receive thread snapshots; the store
// never blocks a mutation on a backend result.
type Backend interface {
	// Create persists a new thread and returns the backend-issued remote id.
	Create(ctx context.Context, t *Thread) (string, error)
	// Save persists the current state of an existing thread.
	Save(ctx context.Context, t *Thread) error
	// Delete removes a thread.
	Delete(ctx context.Context, t *Thread) error
	// Load returns all threads for the session, most recently created first.
	Load(ctx context.Context) ([]*Thread, error)
}
