package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"openchat/internal/infrastructure/metrics"
	"openchat/internal/utils/stringutils"
)

const (
	uploadedContentOpen  = "<uploaded_content>\n"
	uploadedContentClose = "</uploaded_content>\n"

	apologyStreamFailed = "I apologize, but I encountered an error processing your request. Please try again."
	apologyEmptyStream  = "I apologize, but I encountered an error processing your request."

	assistantSystemPrompt = "You are ChatGPT, a helpful AI assistant created by OpenAI. Respond naturally and helpfully to user queries."

	titleSystemPrompt = "Generate a concise, descriptive title (max 5 words) for a chat based on the first message. The title should capture the main topic or intent of the conversation. Do not include any quotes or special characters in the title. Return only the plain text title."

	codeReviewSystemPrompt = "You are a code review assistant. Provide clear, concise explanations and suggestions in markdown format."

	defaultTemperature    = 0.7
	regenerateTemperature = 0.9
)

// CompletionRequest is the bounded, ordered turn list handed to the completion
// collaborator, plus sampling temperature.
type CompletionRequest struct {
	Messages    []openai.ChatCompletionMessage
	Temperature float32
}

// Completer streams a completion. onChunk receives the cumulative text after
// each decoded chunk; the final cumulative text is also returned.
type Completer interface {
	Stream(ctx context.Context, req CompletionRequest, onChunk func(cumulative string)) (string, error)
}

// FileDescriber turns an uploaded file into a text description.
type FileDescriber interface {
	Describe(ctx context.Context, url, mimeType string) (string, error)
}

// MemoryService recalls and records per-user memory snippets.
type MemoryService interface {
	Search(ctx context.Context, userID, query string) (string, error)
	Add(ctx context.Context, userID, userText, assistantText string) error
}

// OrchestratorConfig carries the session-level knobs of the submission
// pipeline.
type OrchestratorConfig struct {
	// UserID gates memory recall and memory writes. Empty means anonymous.
	UserID string
	// Temperature for regular submissions. Zero means the default.
	Temperature float32
	// RegenTemperature for regenerated replies. Zero means the default.
	RegenTemperature float32
}

// Orchestrator drives a submission through its pipeline: validate, resolve
// thread, describe attachments, append messages, recall memory, stream the
// completion into the assistant placeholder, then run detached
// post-processing. Collaborator failures degrade locally; the only
// user-visible failure is the apology text written into the placeholder.
type Orchestrator struct {
	store     *Store
	queue     *PendingQueue
	window    ContextWindow
	completer Completer
	describer FileDescriber
	memory    MemoryService
	log       zerolog.Logger

	userID    string
	temp      float32
	regenTemp float32

	// background tracks detached post-processing tasks for shutdown.
	background sync.WaitGroup
}

// NewOrchestrator wires the submission pipeline over its collaborators.
func NewOrchestrator(
	store *Store,
	queue *PendingQueue,
	window ContextWindow,
	completer Completer,
	describer FileDescriber,
	memory MemoryService,
	cfg OrchestratorConfig,
	log zerolog.Logger,
) *Orchestrator {
	if cfg.Temperature == 0 {
		cfg.Temperature = defaultTemperature
	}
	if cfg.RegenTemperature == 0 {
		cfg.RegenTemperature = regenerateTemperature
	}
	return &Orchestrator{
		store:     store,
		queue:     queue,
		window:    window,
		completer: completer,
		describer: describer,
		memory:    memory,
		log:       log,
		userID:    cfg.UserID,
		temp:      cfg.Temperature,
		regenTemp: cfg.RegenTemperature,
	}
}

// Run watches the store and flushes the pending-submission slot once a thread
// becomes active. Blocks until ctx is done.
func (o *Orchestrator) Run(ctx context.Context) {
	changes := o.store.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
			o.flushPending(ctx)
		}
	}
}

func (o *Orchestrator) flushPending(ctx context.Context) {
	if o.store.ActiveThreadID() == "" {
		return
	}
	pending, ok := o.queue.Take()
	if !ok {
		return
	}
	if err := o.Submit(ctx, pending.Text, pending.Uploads); err != nil {
		o.log.Error().Err(err).Msg("failed to flush pending submission")
	}
}

// Wait blocks until all detached post-processing tasks have finished.
func (o *Orchestrator) Wait() {
	o.background.Wait()
}

// StreamObserver receives the cumulative assistant text after each chunk, in
// addition to the store update. Used by the HTTP layer to relay the stream to
// the client.
type StreamObserver func(cumulative string)

// Submit runs one user submission through the full pipeline. An empty
// submission (whitespace text, no uploads) is dropped silently. With no active
// thread the submission lands in the pending slot and thread creation is
// triggered; the watcher replays it once the thread exists.
func (o *Orchestrator) Submit(ctx context.Context, text string, uploads []Upload, observers ...StreamObserver) error {
	if strings.TrimSpace(text) == "" && len(uploads) == 0 {
		return nil
	}

	if o.store.ActiveThreadID() == "" {
		o.queue.Set(text, uploads)
		o.store.CreateThread()
		return nil
	}
	metrics.SubmissionsTotal.WithLabelValues("chat").Inc()

	block := o.describeUploads(ctx, uploads)
	composed := block + text

	threadID := o.store.ActiveThreadID()
	priorCount := 0
	if t := o.store.Thread(threadID); t != nil {
		priorCount = len(t.Messages)
	}

	userMsgID := o.store.AppendMessage(composed, RoleUser, uploads, MessageTypeChat)
	if userMsgID == "" {
		// The active thread disappeared between resolution and append.
		o.queue.Set(text, uploads)
		o.store.CreateThread()
		return nil
	}
	assistantID := o.store.AppendMessage("", RoleAssistant, nil, MessageTypeChat)

	memory := o.recallMemory(ctx, composed)

	history := o.contextBefore(threadID, assistantID)
	req := CompletionRequest{
		Messages:    o.buildMessages(history, memory),
		Temperature: o.temp,
	}

	final, err := o.streamInto(ctx, req, assistantID, observers...)
	if err != nil {
		return nil
	}

	o.background.Add(1)
	go func() {
		defer o.background.Done()
		o.writeMemory(composed, final)
		if priorCount <= 1 {
			o.streamTitle(threadID, composed)
		}
	}()
	return nil
}

// SubmitCode submits editor code for review: the code is appended as a fenced
// user message and the analysis streams into the assistant placeholder.
// Attachments, memory, and title generation do not apply.
func (o *Orchestrator) SubmitCode(ctx context.Context, code, language string, observers ...StreamObserver) error {
	if strings.TrimSpace(code) == "" {
		return nil
	}
	metrics.SubmissionsTotal.WithLabelValues("code").Inc()

	if o.store.ActiveThreadID() == "" {
		o.store.CreateThread()
	}

	fenced := fmt.Sprintf("```%s\n%s\n```", language, code)
	if o.store.AppendMessage(fenced, RoleUser, nil, MessageTypeCode) == "" {
		return nil
	}
	assistantID := o.store.AppendMessage("", RoleAssistant, nil, MessageTypeChat)

	req := CompletionRequest{
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: codeAnalysisPrompt(code, language)},
			{Role: openai.ChatMessageRoleSystem, Content: codeReviewSystemPrompt},
		},
		Temperature: o.temp,
	}
	_, _ = o.streamInto(ctx, req, assistantID, observers...)
	return nil
}

// Edit rewrites a prior user message: the message and everything after it are
// discarded, then the edited text is resubmitted so the conversation tail
// regenerates. The truncation is destructive.
func (o *Orchestrator) Edit(ctx context.Context, messageID, text string, observers ...StreamObserver) error {
	removed, ok := o.store.TruncateBefore(messageID)
	if !ok {
		return fmt.Errorf("message %s not found in active thread", messageID)
	}
	metrics.SubmissionsTotal.WithLabelValues("edit").Inc()
	return o.Submit(ctx, text, removed.Uploads, observers...)
}

// Regenerate clears an assistant message and re-streams a fresh completion
// into the same message id, using only the context strictly before it and a
// higher sampling temperature. Memory recall is re-run against the nearest
// preceding user message.
func (o *Orchestrator) Regenerate(ctx context.Context, messageID string, observers ...StreamObserver) error {
	thread := o.store.ActiveThread()
	if thread == nil {
		return fmt.Errorf("no active thread")
	}

	idx := -1
	for i := range thread.Messages {
		if thread.Messages[i].ID == messageID {
			idx = i
			break
		}
	}
	if idx < 0 || thread.Messages[idx].Role != RoleAssistant {
		return fmt.Errorf("message %s is not a regenerable assistant message", messageID)
	}
	metrics.SubmissionsTotal.WithLabelValues("regenerate").Inc()

	var userText string
	for i := idx - 1; i >= 0; i-- {
		if thread.Messages[i].Role == RoleUser {
			userText = thread.Messages[i].Content
			break
		}
	}

	memory := ""
	if userText != "" {
		memory = o.recallMemory(ctx, userText)
	}

	o.store.UpdateMessageContent(messageID, "")

	req := CompletionRequest{
		Messages:    o.buildMessages(o.window.Select(thread.Messages[:idx]), memory),
		Temperature: o.regenTemp,
	}
	_, _ = o.streamInto(ctx, req, messageID, observers...)
	return nil
}

// GenerateTitle produces a cleaned thread title for the given seed text,
// invoking onChunk with the cleaned cumulative title after every chunk.
func (o *Orchestrator) GenerateTitle(ctx context.Context, seed string, onChunk func(title string)) (string, error) {
	req := CompletionRequest{
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: titleSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: seed},
		},
		Temperature: defaultTemperature,
	}
	final, err := o.completer.Stream(ctx, req, func(cumulative string) {
		if onChunk != nil {
			onChunk(stringutils.CleanStreamedTitle(cumulative))
		}
	})
	if err != nil {
		return "", err
	}
	return stringutils.CleanStreamedTitle(final), nil
}

// describeUploads fans out description requests for every upload and folds the
// results into a single sentinel-delimited block. A failed upload is logged
// and omitted; zero uploads yield the empty string.
func (o *Orchestrator) describeUploads(ctx context.Context, uploads []Upload) string {
	if len(uploads) == 0 {
		return ""
	}

	descriptions := make([]string, len(uploads))
	g, gctx := errgroup.WithContext(ctx)
	for i, upload := range uploads {
		i, upload := i, upload
		g.Go(func() error {
			desc, err := o.describer.Describe(gctx, upload.URL, upload.MimeType)
			if err != nil {
				metrics.CollaboratorErrorsTotal.WithLabelValues("filedesc").Inc()
				o.log.Warn().Err(err).
					Str("upload", upload.Name).
					Str("mime_type", upload.MimeType).
					Msg("failed to describe upload")
				return nil
			}
			descriptions[i] = desc
			return nil
		})
	}
	_ = g.Wait()

	var b strings.Builder
	b.WriteString(uploadedContentOpen)
	imageNum, fileNum := 0, 0
	for i, upload := range uploads {
		if descriptions[i] == "" {
			continue
		}
		if strings.HasPrefix(upload.MimeType, "image/") {
			imageNum++
			fmt.Fprintf(&b, "Uploaded image %d: ", imageNum)
		} else {
			fileNum++
			fmt.Fprintf(&b, "Uploaded file %d: ", fileNum)
		}
		b.WriteString(descriptions[i])
		b.WriteString("\n")
	}
	b.WriteString(uploadedContentClose)
	return b.String()
}

// recallMemory fetches memory snippets for the composed user text. Failures
// and anonymous sessions both yield the empty string; recall never aborts a
// submission.
func (o *Orchestrator) recallMemory(ctx context.Context, query string) string {
	if o.userID == "" {
		return ""
	}
	memory, err := o.memory.Search(ctx, o.userID, query)
	if err != nil {
		metrics.CollaboratorErrorsTotal.WithLabelValues("memory").Inc()
		o.log.Warn().Err(err).Msg("memory recall failed")
		return ""
	}
	return memory
}

func (o *Orchestrator) writeMemory(userText, assistantText string) {
	if o.userID == "" || strings.TrimSpace(userText) == "" || assistantText == "" {
		return
	}
	if err := o.memory.Add(context.Background(), o.userID, userText, assistantText); err != nil {
		metrics.CollaboratorErrorsTotal.WithLabelValues("memory").Inc()
		o.log.Warn().Err(err).Msg("memory write failed")
	}
}

// streamTitle streams a generated title for the thread, applying the cleaned
// cumulative prefix on every chunk so the title refines as it arrives.
func (o *Orchestrator) streamTitle(threadID, seed string) {
	_, err := o.GenerateTitle(context.Background(), seed, func(title string) {
		o.store.UpdateThreadTitle(threadID, title)
	})
	if err != nil {
		metrics.CollaboratorErrorsTotal.WithLabelValues("completion").Inc()
		o.log.Warn().Err(err).Str("thread_id", threadID).Msg("title generation failed")
	}
}

// contextBefore returns the thread's messages up to but excluding the message
// with the given id, passed through the context window.
func (o *Orchestrator) contextBefore(threadID, messageID string) []Message {
	thread := o.store.Thread(threadID)
	if thread == nil {
		return nil
	}
	messages := thread.Messages
	for i := range messages {
		if messages[i].ID == messageID {
			messages = messages[:i]
			break
		}
	}
	return o.window.Select(messages)
}

// buildMessages converts selected history into completion turns, prefixed by
// the persona system message with any recalled memory attached.
func (o *Orchestrator) buildMessages(history []Message, memory string) []openai.ChatCompletionMessage {
	system := assistantSystemPrompt
	if memory != "" {
		system += "\nHere is relevant memory/context for this user: " + memory
	}
	out := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	out = append(out, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: system,
	})
	for _, m := range history {
		out = append(out, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return out
}

// streamInto streams a completion into the given message, overwriting it with
// the fixed apology text on error or on an empty stream. The stream error is
// returned for callers that gate post-processing on success; it is already
// degraded and must not propagate to the user.
func (o *Orchestrator) streamInto(ctx context.Context, req CompletionRequest, messageID string, observers ...StreamObserver) (string, error) {
	final, err := o.completer.Stream(ctx, req, func(cumulative string) {
		metrics.StreamChunksTotal.Inc()
		o.store.UpdateMessageContent(messageID, cumulative)
		for _, observe := range observers {
			observe(cumulative)
		}
	})
	if err != nil {
		metrics.CollaboratorErrorsTotal.WithLabelValues("completion").Inc()
		o.log.Error().Err(err).Str("message_id", messageID).Msg("completion stream failed")
		o.store.UpdateMessageContent(messageID, apologyStreamFailed)
		return "", err
	}
	if final == "" {
		o.store.UpdateMessageContent(messageID, apologyEmptyStream)
		return "", nil
	}
	return final, nil
}

func codeAnalysisPrompt(code, language string) string {
	return fmt.Sprintf(`Analyze this %s code and provide:
1. Give the exact output that will be displayed on the terminal if it is run, or the type of error with reason.
2. A brief explanation of what the code does
3. Any potential improvements or corrections
4. Best practices that could be applied

Code:
`+"```%s\n%s\n```"+`
Format your response in markdown with clear sections.`, language, language, code)
}
