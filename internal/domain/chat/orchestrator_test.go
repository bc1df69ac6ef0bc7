package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedStream struct {
	chunks []string
	err    error
}

type fakeCompleter struct {
	mu       sync.Mutex
	script   []scriptedStream
	requests []CompletionRequest
}

func (f *fakeCompleter) Stream(_ context.Context, req CompletionRequest, onChunk func(string)) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	var s scriptedStream
	if len(f.script) > 0 {
		s = f.script[0]
		f.script = f.script[1:]
	}
	f.mu.Unlock()

	cumulative := ""
	for _, chunk := range s.chunks {
		cumulative += chunk
		onChunk(cumulative)
	}
	if s.err != nil {
		return "", s.err
	}
	return cumulative, nil
}

func (f *fakeCompleter) recorded() []CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]CompletionRequest(nil), f.requests...)
}

// titleRequests counts recorded requests that carry the title system prompt.
func (f *fakeCompleter) titleRequests() int {
	n := 0
	for _, req := range f.recorded() {
		if len(req.Messages) > 0 && req.Messages[0].Content == titleSystemPrompt {
			n++
		}
	}
	return n
}

type fakeDescriber struct {
	descriptions map[string]string
	failURLs     map[string]bool
}

func (f *fakeDescriber) Describe(_ context.Context, url, _ string) (string, error) {
	if f.failURLs[url] {
		return "", fmt.Errorf("description service unavailable")
	}
	return f.descriptions[url], nil
}

type fakeMemory struct {
	mu       sync.Mutex
	snippets string
	searched []string
	added    [][2]string

	searchErr error
}

func (f *fakeMemory) Search(_ context.Context, _, query string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searched = append(f.searched, query)
	if f.searchErr != nil {
		return "", f.searchErr
	}
	return f.snippets, nil
}

func (f *fakeMemory) Add(_ context.Context, _, userText, assistantText string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, [2]string{userText, assistantText})
	return nil
}

func (f *fakeMemory) searchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.searched)
}

func (f *fakeMemory) addCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.added)
}

type orchestratorFixture struct {
	store     *Store
	queue     *PendingQueue
	completer *fakeCompleter
	describer *fakeDescriber
	memory    *fakeMemory
	orch      *Orchestrator
}

func newFixture(userID string) *orchestratorFixture {
	store := NewStore(&fakeBackend{}, zerolog.Nop())
	queue := NewPendingQueue()
	completer := &fakeCompleter{}
	describer := &fakeDescriber{descriptions: map[string]string{}, failURLs: map[string]bool{}}
	memory := &fakeMemory{}
	orch := NewOrchestrator(
		store, queue, NewContextWindow(0, 0),
		completer, describer, memory,
		OrchestratorConfig{UserID: userID},
		zerolog.Nop(),
	)
	return &orchestratorFixture{
		store: store, queue: queue,
		completer: completer, describer: describer, memory: memory,
		orch: orch,
	}
}

func TestSubmitEmptyIsNoOp(t *testing.T) {
	f := newFixture("")
	f.store.CreateThread()

	require.NoError(t, f.orch.Submit(context.Background(), "   ", nil))
	f.orch.Wait()

	assert.Empty(t, f.store.ActiveThread().Messages)
	assert.Empty(t, f.completer.recorded())
}

func TestSubmitWithoutActiveThreadQueuesOnce(t *testing.T) {
	f := newFixture("")
	f.completer.script = []scriptedStream{
		{chunks: []string{"reply"}},
		{chunks: []string{"Title"}},
	}

	require.NoError(t, f.orch.Submit(context.Background(), "Hi", nil))
	assert.Len(t, f.store.Threads(), 1, "exactly one thread created")
	assert.Empty(t, f.store.ActiveThread().Messages, "no append before flush")
	require.True(t, f.queue.Peek())

	f.orch.flushPending(context.Background())
	f.orch.Wait()

	messages := f.store.ActiveThread().Messages
	require.Len(t, messages, 2, "queued submission applied exactly once")
	assert.Equal(t, "Hi", messages[0].Content)

	f.orch.flushPending(context.Background())
	assert.Len(t, f.store.ActiveThread().Messages, 2, "slot cleared after flush")
}

func TestSubmitAnonymousEndToEnd(t *testing.T) {
	f := newFixture("")
	f.store.CreateThread()
	f.completer.script = []scriptedStream{
		{chunks: []string{"Hel", "lo!"}},
		{chunks: []string{"Greeting", " Chat"}},
	}

	require.NoError(t, f.orch.Submit(context.Background(), "Hi", nil))
	f.orch.Wait()

	messages := f.store.ActiveThread().Messages
	require.Len(t, messages, 2)
	assert.Equal(t, RoleUser, messages[0].Role)
	assert.Equal(t, "Hi", messages[0].Content)
	assert.Equal(t, RoleAssistant, messages[1].Role)
	assert.Equal(t, "Hello!", messages[1].Content)

	assert.Zero(t, f.memory.searchCount(), "anonymous session must not hit memory")
	assert.Zero(t, f.memory.addCount())
	assert.Equal(t, 1, f.completer.titleRequests(), "first exchange generates a title")
	assert.Equal(t, "Greeting Chat", f.store.ActiveThread().Title)
}

func TestSubmitSecondExchangeSkipsTitle(t *testing.T) {
	f := newFixture("")
	f.store.CreateThread()
	f.completer.script = []scriptedStream{
		{chunks: []string{"one"}},
		{chunks: []string{"First Title"}},
		{chunks: []string{"two"}},
	}

	require.NoError(t, f.orch.Submit(context.Background(), "first", nil))
	f.orch.Wait()
	require.NoError(t, f.orch.Submit(context.Background(), "second", nil))
	f.orch.Wait()

	assert.Equal(t, 1, f.completer.titleRequests())
}

func TestSubmitAttachmentBlock(t *testing.T) {
	f := newFixture("")
	f.store.CreateThread()
	f.describer.descriptions["https://cdn/u/cat.png"] = "a cat on a desk"
	f.describer.descriptions["https://cdn/u/notes.txt"] = "meeting notes"
	f.completer.script = []scriptedStream{
		{chunks: []string{"ok"}},
		{chunks: []string{"Files"}},
	}

	uploads := []Upload{
		{URL: "https://cdn/u/cat.png", MimeType: "image/png", Name: "cat.png"},
		{URL: "https://cdn/u/notes.txt", MimeType: "text/plain", Name: "notes.txt"},
	}
	require.NoError(t, f.orch.Submit(context.Background(), "look at these", uploads))
	f.orch.Wait()

	content := f.store.ActiveThread().Messages[0].Content
	assert.True(t, strings.HasPrefix(content, "<uploaded_content>\n"))
	assert.Contains(t, content, "Uploaded image 1: a cat on a desk\n")
	assert.Contains(t, content, "Uploaded file 1: meeting notes\n")
	assert.Contains(t, content, "</uploaded_content>\nlook at these")
}

func TestSubmitAttachmentPartialFailure(t *testing.T) {
	f := newFixture("")
	f.store.CreateThread()
	f.describer.descriptions["https://cdn/u/ok.txt"] = "readable"
	f.describer.failURLs["https://cdn/u/bad.txt"] = true
	f.completer.script = []scriptedStream{
		{chunks: []string{"ok"}},
		{chunks: []string{"Files"}},
	}

	uploads := []Upload{
		{URL: "https://cdn/u/bad.txt", MimeType: "text/plain"},
		{URL: "https://cdn/u/ok.txt", MimeType: "text/plain"},
	}
	require.NoError(t, f.orch.Submit(context.Background(), "docs", uploads))
	f.orch.Wait()

	content := f.store.ActiveThread().Messages[0].Content
	assert.Equal(t, 1, strings.Count(content, "Uploaded file"), "failed upload omitted")
	assert.Contains(t, content, "Uploaded file 1: readable")

	messages := f.store.ActiveThread().Messages
	require.Len(t, messages, 2, "submission still completes")
	assert.Equal(t, "ok", messages[1].Content)
}

func TestSubmitMemoryRecallAndWrite(t *testing.T) {
	f := newFixture("user_42")
	f.store.CreateThread()
	f.memory.snippets = "likes espresso"
	f.completer.script = []scriptedStream{
		{chunks: []string{"noted"}},
		{chunks: []string{"Coffee"}},
	}

	require.NoError(t, f.orch.Submit(context.Background(), "remember my coffee order", nil))
	f.orch.Wait()

	require.Equal(t, 1, f.memory.searchCount())
	require.GreaterOrEqual(t, f.memory.addCount(), 1)

	reqs := f.completer.recorded()
	require.NotEmpty(t, reqs)
	system := reqs[0].Messages[0]
	assert.Equal(t, openai.ChatMessageRoleSystem, system.Role)
	assert.Contains(t, system.Content, "likes espresso")
}

func TestSubmitMemoryFailureTolerated(t *testing.T) {
	f := newFixture("user_42")
	f.store.CreateThread()
	f.memory.searchErr = fmt.Errorf("memory service down")
	f.completer.script = []scriptedStream{
		{chunks: []string{"still works"}},
		{chunks: []string{"Title"}},
	}

	require.NoError(t, f.orch.Submit(context.Background(), "hello", nil))
	f.orch.Wait()

	messages := f.store.ActiveThread().Messages
	require.Len(t, messages, 2)
	assert.Equal(t, "still works", messages[1].Content)
}

func TestSubmitStreamErrorWritesApology(t *testing.T) {
	f := newFixture("user_42")
	f.store.CreateThread()
	f.completer.script = []scriptedStream{
		{chunks: []string{"partial"}, err: fmt.Errorf("connection reset")},
	}

	require.NoError(t, f.orch.Submit(context.Background(), "hello", nil))
	f.orch.Wait()

	messages := f.store.ActiveThread().Messages
	require.Len(t, messages, 2)
	assert.Equal(t, "I apologize, but I encountered an error processing your request. Please try again.", messages[1].Content)
	assert.Zero(t, f.memory.addCount(), "no memory write after a failed stream")
	assert.Zero(t, f.completer.titleRequests(), "no title after a failed stream")
}

func TestSubmitEmptyStreamWritesApology(t *testing.T) {
	f := newFixture("user_42")
	f.store.CreateThread()
	f.completer.script = []scriptedStream{{}}

	require.NoError(t, f.orch.Submit(context.Background(), "hello", nil))
	f.orch.Wait()

	messages := f.store.ActiveThread().Messages
	require.Len(t, messages, 2)
	assert.Equal(t, "I apologize, but I encountered an error processing your request.", messages[1].Content)
	assert.Zero(t, f.memory.addCount())
}

func TestEditTruncatesAndResubmits(t *testing.T) {
	f := newFixture("")
	f.store.CreateThread()
	f.completer.script = []scriptedStream{
		{chunks: []string{"first reply"}},
		{chunks: []string{"Title"}},
		{chunks: []string{"second reply"}},
		{chunks: []string{"Title"}},
	}

	require.NoError(t, f.orch.Submit(context.Background(), "original question", nil))
	f.orch.Wait()
	target := f.store.ActiveThread().Messages[0].ID

	require.NoError(t, f.orch.Edit(context.Background(), target, "edited question"))
	f.orch.Wait()

	messages := f.store.ActiveThread().Messages
	require.Len(t, messages, 2, "tail discarded before resubmission")
	assert.Equal(t, "edited question", messages[0].Content)
	assert.Equal(t, "second reply", messages[1].Content)
	assert.NotEqual(t, target, messages[0].ID)
}

func TestEditUnknownMessage(t *testing.T) {
	f := newFixture("")
	f.store.CreateThread()

	assert.Error(t, f.orch.Edit(context.Background(), "msg_missing", "text"))
}

func TestRegeneratePreservesMessageID(t *testing.T) {
	f := newFixture("")
	f.store.CreateThread()
	f.completer.script = []scriptedStream{
		{chunks: []string{"original answer"}},
		{chunks: []string{"Title"}},
		{chunks: []string{"regenerated answer"}},
	}

	require.NoError(t, f.orch.Submit(context.Background(), "question A", nil))
	f.orch.Wait()
	assistantID := f.store.ActiveThread().Messages[1].ID

	require.NoError(t, f.orch.Regenerate(context.Background(), assistantID))
	f.orch.Wait()

	messages := f.store.ActiveThread().Messages
	require.Len(t, messages, 2)
	assert.Equal(t, assistantID, messages[1].ID)
	assert.Equal(t, "regenerated answer", messages[1].Content)

	reqs := f.completer.recorded()
	regen := reqs[len(reqs)-1]
	assert.Equal(t, float32(0.9), regen.Temperature)
	require.Len(t, regen.Messages, 2, "system plus the single user turn")
	assert.Equal(t, "question A", regen.Messages[1].Content)
}

func TestRegenerateRejectsUserMessage(t *testing.T) {
	f := newFixture("")
	f.store.CreateThread()
	f.completer.script = []scriptedStream{
		{chunks: []string{"answer"}},
		{chunks: []string{"Title"}},
	}
	require.NoError(t, f.orch.Submit(context.Background(), "question", nil))
	f.orch.Wait()

	userID := f.store.ActiveThread().Messages[0].ID
	assert.Error(t, f.orch.Regenerate(context.Background(), userID))
}

func TestSubmitCode(t *testing.T) {
	f := newFixture("user_42")
	f.store.CreateThread()
	f.completer.script = []scriptedStream{
		{chunks: []string{"The code prints 42."}},
	}

	require.NoError(t, f.orch.SubmitCode(context.Background(), "fmt.Println(42)", "go"))
	f.orch.Wait()

	messages := f.store.ActiveThread().Messages
	require.Len(t, messages, 2)
	assert.Equal(t, MessageTypeCode, messages[0].Type)
	assert.Equal(t, "```go\nfmt.Println(42)\n```", messages[0].Content)
	assert.Equal(t, "The code prints 42.", messages[1].Content)

	assert.Zero(t, f.memory.searchCount(), "code review skips memory")
	assert.Zero(t, f.completer.titleRequests(), "code review skips title generation")
}

func TestGenerateTitleCleansChunks(t *testing.T) {
	f := newFixture("")
	f.completer.script = []scriptedStream{
		{chunks: []string{`"Go`, ` Chan`, `nels"`}},
	}

	var seen []string
	title, err := f.orch.GenerateTitle(context.Background(), "explain channels", func(t string) {
		seen = append(seen, t)
	})
	require.NoError(t, err)
	assert.Equal(t, "Go Channels", title)
	assert.Equal(t, []string{"Go", "Go Chan", "Go Channels"}, seen)
}
