// Package relay runs one chat turn: it persists the user's message, asks the
// completion provider for a reply, forwards each fragment to the client as it
// arrives and stores the finished reply.
//
// A turn is split in two. Begin does everything that can still be refused with
// an ordinary error (validation, ownership, locking, storing the user message).
// Run does the rest and reports failures in-band as a single "error" event.
package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/RichardoC/orion/internal/config"
	"github.com/RichardoC/orion/internal/db"
	"github.com/RichardoC/orion/internal/llm"
	"github.com/RichardoC/orion/internal/models"
	"github.com/RichardoC/orion/internal/search"
	"go.uber.org/zap"
)

const (
	TitleMaxRunes    = 40
	DefaultTitle     = "New Chat"
	FileExcerptRunes = 1000
	// HistoryWindow is how many earlier messages accompany the current one.
	HistoryWindow = 5
)

var (
	ErrEmptyMessage   = errors.New("message is required")
	ErrAccessDenied   = errors.New("access denied")
	ErrTurnInProgress = errors.New("a reply is already in progress for this conversation")
)

// Attachment is text already extracted from an uploaded file.
type Attachment struct {
	Name    string
	Content string
	IsImage bool
}

type Request struct {
	UserID         string
	Message        string
	ConversationID string
	File           *Attachment
}

type Relay struct {
	store        db.Store
	provider     llm.Provider
	classifier   search.Classifier
	searcher     search.Searcher
	systemPrompt string
	timeout      time.Duration
	logger       *zap.Logger
	locks        *turnLocks
}

type Option func(*Relay)

// WithAugmentation enables web search for messages the classifier flags.
func WithAugmentation(c search.Classifier, s search.Searcher) Option {
	return func(r *Relay) {
		r.classifier = c
		r.searcher = s
	}
}

// WithSystemPrompt replaces the default instruction. Empty keeps the default.
func WithSystemPrompt(prompt string) Option {
	return func(r *Relay) {
		if prompt != "" {
			r.systemPrompt = prompt
		}
	}
}

// WithTimeout bounds the provider call. Zero leaves it unbounded.
func WithTimeout(d time.Duration) Option {
	return func(r *Relay) { r.timeout = d }
}

func New(store db.Store, provider llm.Provider, logger *zap.Logger, opts ...Option) *Relay {
	r := &Relay{
		store:        store,
		provider:     provider,
		classifier:   search.Never{},
		searcher:     search.Nop{},
		systemPrompt: config.DefaultSystemPrompt,
		logger:       logger,
		locks:        newTurnLocks(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Turn is a validated chat turn whose user message is already stored.
// The caller must either Run it or Abort it.
type Turn struct {
	relay   *Relay
	req     Request
	conv    models.Conversation
	userMsg models.Message
	// prompt is the current message as sent upstream; unlike the stored copy
	// it carries the full attachment text.
	prompt  string
	release func()
	once    sync.Once
}

// Begin validates req, resolves or creates the conversation and appends the
// user message. Nothing has been sent to the client when it returns an error.
func (r *Relay) Begin(ctx context.Context, req Request) (*Turn, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyMessage
	}

	var (
		conv    *models.Conversation
		created bool
	)
	if req.ConversationID != "" {
		owned, err := db.OwnedConversation(ctx, r.store, req.ConversationID, req.UserID)
		if errors.Is(err, db.ErrNotFound) || errors.Is(err, db.ErrForbidden) {
			return nil, ErrAccessDenied
		}
		if err != nil {
			return nil, err
		}
		conv = owned
	} else {
		conv = &models.Conversation{OwnerID: req.UserID, Title: Title(req.Message)}
		if err := r.store.CreateConversation(ctx, conv); err != nil {
			return nil, err
		}
		created = true
		r.logger.Info("Created conversation",
			zap.String("conversationID", conv.ID),
			zap.String("userID", req.UserID))
	}

	release, ok := r.locks.acquire(conv.ID)
	if !ok {
		return nil, ErrTurnInProgress
	}

	userMsg := models.Message{
		ConvID:  conv.ID,
		Role:    models.RoleUser,
		Content: composeContent(req.Message, req.File, FileExcerptRunes),
	}
	if err := r.store.SaveMessage(ctx, &userMsg); err != nil {
		release()
		if created {
			// the client never learns this id, so do not leave it behind empty
			if delErr := r.store.DeleteConversation(context.WithoutCancel(ctx), conv.ID); delErr != nil {
				r.logger.Warn("Failed to remove empty conversation",
					zap.String("conversationID", conv.ID),
					zap.Error(delErr))
			}
		}
		return nil, fmt.Errorf("failed to save user message: %w", err)
	}

	return &Turn{
		relay:   r,
		req:     req,
		conv:    *conv,
		userMsg: userMsg,
		prompt:  composeContent(req.Message, req.File, -1),
		release: release,
	}, nil
}

func (t *Turn) Conversation() models.Conversation {
	return t.conv
}

// Abort releases a turn that will never Run.
func (t *Turn) Abort() {
	t.once.Do(t.release)
}

// Run streams the reply to em. It always ends the exchange with exactly one
// "done" or "error" event unless the client has gone away, in which case it
// stops without storing the reply and returns the cancellation cause.
func (t *Turn) Run(ctx context.Context, em Emitter) error {
	defer t.Abort()

	r := t.relay
	logger := r.logger.With(
		zap.String("conversationID", t.conv.ID),
		zap.String("userID", t.req.UserID))
	start := time.Now()

	fail := func(stage string, err error) error {
		if ctx.Err() != nil || errors.Is(err, errClientGone) {
			logger.Info("Client disconnected, abandoning turn", zap.String("stage", stage), zap.Error(err))
			return err
		}
		logger.Error("Chat turn failed", zap.String("stage", stage), zap.Error(err))
		_ = em.Emit(Event{Type: EventError, Message: "Stream failed."})
		return err
	}
	emit := func(ev Event) error {
		if err := em.Emit(ev); err != nil {
			return fmt.Errorf("%w: %v", errClientGone, err)
		}
		return nil
	}

	history, err := r.store.GetMessages(ctx, t.conv.ID)
	if err != nil {
		return fail("history", err)
	}

	if err := emit(Event{Type: EventStart, ConversationID: t.conv.ID, Title: t.conv.Title}); err != nil {
		return fail("start", err)
	}

	system := r.systemPrompt
	if r.classifier.NeedsRealtime(t.req.Message) {
		if err := emit(Event{Type: EventSearching, Query: t.req.Message}); err != nil {
			return fail("search", err)
		}
		result := r.searcher.Search(ctx, t.req.Message)
		logger.Debug("Web search finished", zap.Int("hits", len(result.Hits)))
		system += result.Block(t.req.Message)
	}

	prompt := BuildPrompt(system, history, t.userMsg.ID, t.prompt)

	streamCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		streamCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var reply strings.Builder
	deltas := 0
	err = r.provider.Stream(streamCtx, prompt, func(delta string) error {
		reply.WriteString(delta)
		deltas++
		return emit(Event{Type: EventDelta, Text: delta})
	})
	if err != nil {
		return fail("stream", err)
	}
	if ctx.Err() != nil {
		return fail("stream", ctx.Err())
	}

	assistant := models.Message{
		ConvID:  t.conv.ID,
		Role:    models.RoleAssistant,
		Content: reply.String(),
	}
	if err := r.store.SaveMessage(ctx, &assistant); err != nil {
		return fail("persist", err)
	}

	if err := emit(Event{Type: EventDone}); err != nil {
		// the reply is stored; the client will see it on reload
		logger.Info("Client disconnected before done", zap.Error(err))
		return nil
	}

	logger.Info("Chat turn complete",
		zap.Int("deltas", deltas),
		zap.Int("chars", utf8.RuneCountInString(assistant.Content)),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// Title derives a conversation title from its first message.
func Title(message string) string {
	if strings.TrimSpace(message) == "" {
		return DefaultTitle
	}
	if utf8.RuneCountInString(message) <= TitleMaxRunes {
		return message
	}
	return string([]rune(message)[:TitleMaxRunes]) + "..."
}

// composeContent prefixes message with the attachment. A negative limit keeps
// the whole attachment.
func composeContent(message string, file *Attachment, limit int) string {
	if file == nil || file.Content == "" {
		return message
	}

	label := "File"
	if file.IsImage {
		label = "Image"
	}
	text := file.Content
	if limit >= 0 && utf8.RuneCountInString(text) > limit {
		text = string([]rune(text)[:limit]) + "..."
	}
	return fmt.Sprintf("[%s: %s]\n%s\n\n%s", label, file.Name, text, message)
}

// BuildPrompt assembles the upstream prompt: the system instruction, at most
// HistoryWindow earlier messages, then the current message. currentID is the
// stored copy of the current message, which is replaced by current.
func BuildPrompt(system string, history []models.Message, currentID, current string) []llm.Message {
	prior := make([]models.Message, 0, len(history))
	for _, m := range history {
		if m.ID != currentID {
			prior = append(prior, m)
		}
	}
	if len(prior) > HistoryWindow {
		prior = prior[len(prior)-HistoryWindow:]
	}

	prompt := make([]llm.Message, 0, len(prior)+2)
	prompt = append(prompt, llm.Message{Role: models.RoleSystem, Content: system})
	for _, m := range prior {
		prompt = append(prompt, llm.Message{Role: m.Role, Content: m.Content})
	}
	prompt = append(prompt, llm.Message{Role: models.RoleUser, Content: current})
	return prompt
}

type turnLocks struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func newTurnLocks() *turnLocks {
	return &turnLocks{active: make(map[string]struct{})}
}

func (l *turnLocks) acquire(id string) (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.active[id]; busy {
		return nil, false
	}
	l.active[id] = struct{}{}
	return func() {
		l.mu.Lock()
		delete(l.active, id)
		l.mu.Unlock()
	}, true
}
