package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/paperchat/paperchat/internal/conversation"
	"github.com/paperchat/paperchat/internal/llm"
	"github.com/paperchat/paperchat/internal/log"
	"github.com/paperchat/paperchat/internal/search"
)

// System-message texts surfaced to the user when a turn fails.
const (
	msgInvalidKey       = "Unable to handle your request. Please provide a valid OpenAI key in your profile."
	msgGenerationFailed = "Unable to generate a response"
)

// ErrTurnInFlight is returned when a second message is submitted to a
// conversation whose previous turn has not completed.
var ErrTurnInFlight = errors.New("a turn is already in flight for this conversation")

// ErrEmptyMessage is returned for a blank submission.
var ErrEmptyMessage = errors.New("message is empty")

// State identifies where a turn is in its lifecycle.
type State int

// Turn states.
const (
	StateIdle State = iota
	StateClassifying
	StateRetrieving
	StateGenerating
	StatePersisting
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateClassifying:
		return "classifying"
	case StateRetrieving:
		return "retrieving"
	case StateGenerating:
		return "generating"
	case StatePersisting:
		return "persisting"
	case StateErrored:
		return "errored"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type eventKind int

const (
	evSubmit eventKind = iota
	evSearch
	evChitChat
	evReuseContext
	evRetrieved
	evEmptyRetrieval
	evGenerated
	evPersisted
	evFailed
	evDone
)

// event is posted back into the machine when an effect completes.
type event struct {
	kind eventKind
}

// effect is the asynchronous work a state performs; its result is the next
// event.
type effect func(ctx context.Context, t *turn) event

// turn carries the mutable state of one conversation turn through the
// machine.
type turn struct {
	req            TurnRequest
	conv           *conversation.Conversation
	history        []conversation.Message // messages before the new question
	classification Classification
	assembled      *Context
	botMsg         conversation.Message
	failErr        error
	discarded      bool
}

func (t *turn) fail(err error) event {
	t.failErr = err
	return event{kind: evFailed}
}

// TurnRequest is one user message submitted to a conversation.
type TurnRequest struct {
	APIKey  string
	OwnerID string

	// ConversationID is empty for the first turn of a new conversation.
	ConversationID string

	Message string

	// Filters constrain retrieval; Query is overwritten by the classifier's
	// rewrite.
	Filters search.Request
}

// TurnResult is the outcome of a completed (or failed) turn.
type TurnResult struct {
	Conversation *conversation.Conversation
	State        State

	// Discarded is set when the result arrived for a conversation the user
	// had navigated away from; nothing was applied or persisted.
	Discarded bool
}

// OrchestratorConfig wires an Orchestrator.
type OrchestratorConfig struct {
	Classifier  *Classifier
	Assembler   *Assembler
	Synthesizer *Synthesizer
	Store       conversation.Store
	Logger      log.Logger
}

func (c *OrchestratorConfig) validate() error {
	if c.Classifier == nil {
		return fmt.Errorf("orchestrator: Classifier is required")
	}
	if c.Assembler == nil {
		return fmt.Errorf("orchestrator: Assembler is required")
	}
	if c.Synthesizer == nil {
		return fmt.Errorf("orchestrator: Synthesizer is required")
	}
	if c.Store == nil {
		return fmt.Errorf("orchestrator: Store is required")
	}
	if c.Logger == nil {
		c.Logger = log.NewNop()
	}
	return nil
}

// Orchestrator sequences a conversation turn through classification,
// retrieval, synthesis, citation repair and persistence as an explicit
// state machine. One turn per conversation may be in flight; submitting a
// second returns ErrTurnInFlight.
type Orchestrator struct {
	classifier *Classifier
	assembler  *Assembler
	synth      *Synthesizer
	store      conversation.Store
	logger     log.Logger
	tracer     trace.Tracer

	mu       sync.Mutex
	inFlight map[string]struct{}
	// Conversation each owner is currently viewing. Staleness is judged
	// against the submitting owner's entry only, so one user navigating
	// never discards another user's turn.
	active map[string]string
	// Last assembled context per conversation, reused for follow-up turns.
	// Entries expire after contextTTL; expired entries are swept inline.
	contexts map[string]cachedContext

	now func() time.Time
}

// contextTTL bounds how long an assembled context stays reusable for
// follow-up turns. Expired entries are dropped on the next cache write.
const contextTTL = time.Hour

// cachedContext pairs an assembled context with the classifier query that
// produced it, so a follow-up turn can carry the same concept.
type cachedContext struct {
	assembled *Context
	concept   string
	savedAt   time.Time
}

// NewOrchestrator creates an orchestrator from cfg.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Orchestrator{
		classifier: cfg.Classifier,
		assembler:  cfg.Assembler,
		synth:      cfg.Synthesizer,
		store:      cfg.Store,
		logger:     cfg.Logger,
		tracer:     otel.Tracer("github.com/paperchat/paperchat/internal/chat"),
		inFlight:   make(map[string]struct{}),
		active:     make(map[string]string),
		contexts:   make(map[string]cachedContext),
		now:        time.Now,
	}, nil
}

// SetActive records the conversation ownerID is currently viewing. A turn
// result for any other conversation of the same owner is discarded instead
// of applied. An empty conversation id disables the check for that owner.
func (o *Orchestrator) SetActive(ownerID, conversationID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if conversationID == "" {
		delete(o.active, ownerID)
		return
	}
	o.active[ownerID] = conversationID
}

// Forget drops all state held for a deleted conversation: its cached
// retrieval context and any active-conversation entries pointing at it.
func (o *Orchestrator) Forget(conversationID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.contexts, conversationID)
	for owner, id := range o.active {
		if id == conversationID {
			delete(o.active, owner)
		}
	}
}

func (o *Orchestrator) isStale(ownerID, conversationID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	active, ok := o.active[ownerID]
	return ok && active != conversationID
}

func (o *Orchestrator) priorContext(conversationID string) (*Context, string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	entry, ok := o.contexts[conversationID]
	if !ok {
		return nil, ""
	}
	if o.now().Sub(entry.savedAt) > contextTTL {
		delete(o.contexts, conversationID)
		return nil, ""
	}
	return entry.assembled, entry.concept
}

func (o *Orchestrator) rememberContext(conversationID string, c *Context, concept string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.now()
	for id, entry := range o.contexts {
		if now.Sub(entry.savedAt) > contextTTL {
			delete(o.contexts, id)
		}
	}
	o.contexts[conversationID] = cachedContext{assembled: c, concept: concept, savedAt: now}
}

func (o *Orchestrator) acquire(conversationID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inFlight[conversationID]; busy {
		return false
	}
	o.inFlight[conversationID] = struct{}{}
	return true
}

func (o *Orchestrator) release(conversationID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, conversationID)
}

// Submit runs one turn to completion. All pipeline failures are converted
// into an appended system message on the returned conversation, never into
// a returned error; errors are returned only when the turn could not start
// at all (unknown conversation, empty message, turn already in flight).
func (o *Orchestrator) Submit(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	if req.Message == "" {
		return nil, ErrEmptyMessage
	}

	ctx, span := o.tracer.Start(ctx, "chat.turn",
		trace.WithAttributes(attribute.String("conversation.id", req.ConversationID)))
	defer span.End()

	t := &turn{req: req}
	if err := o.begin(ctx, t); err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer o.release(t.conv.ID)

	state := StateIdle
	ev := event{kind: evSubmit}
	for {
		next, eff := o.transition(state, ev)
		state = next
		if eff == nil {
			break
		}
		ev = eff(ctx, t)
	}

	span.SetAttributes(attribute.String("turn.state", state.String()))
	if t.failErr != nil {
		span.RecordError(t.failErr)
	}
	o.logger.Debug("turn finished",
		"conversation", t.conv.ID, "state", state, "discarded", t.discarded)

	return &TurnResult{Conversation: t.conv, State: state, Discarded: t.discarded}, nil
}

// begin loads or creates the conversation, takes the single-flight slot,
// and optimistically persists the user message.
func (o *Orchestrator) begin(ctx context.Context, t *turn) error {
	userMsg := conversation.Message{Text: t.req.Message, Sender: conversation.SenderUser}

	if t.req.ConversationID == "" {
		// First turn of a new topic: the conversation is named after the
		// question.
		created, err := o.store.Create(ctx, &conversation.Conversation{
			OwnerID:  t.req.OwnerID,
			Kind:     conversation.KindGeneral,
			Name:     t.req.Message,
			Messages: []conversation.Message{userMsg},
		})
		if err != nil {
			return fmt.Errorf("creating conversation: %w", err)
		}
		t.conv = created
		o.acquire(created.ID)
		// The new chat becomes what the user is looking at, so its own
		// first answer is never judged stale.
		o.SetActive(t.req.OwnerID, created.ID)
		return nil
	}

	if !o.acquire(t.req.ConversationID) {
		return ErrTurnInFlight
	}

	conv, err := o.store.FindByID(ctx, t.req.ConversationID)
	if err != nil {
		o.release(t.req.ConversationID)
		return fmt.Errorf("loading conversation: %w", err)
	}
	if conv.OwnerID != t.req.OwnerID {
		o.release(t.req.ConversationID)
		return conversation.ErrNotFound
	}

	t.history = conversation.CloneMessages(conv.Messages)
	conv.Messages = append(conversation.PruneForUpdate(conv.Messages), userMsg)
	updated, err := o.store.Update(ctx, conv)
	if err != nil {
		o.release(t.req.ConversationID)
		return fmt.Errorf("persisting user message: %w", err)
	}
	t.conv = updated
	return nil
}

// transition is the state machine: given the current state and the event
// that just arrived, it returns the next state and the effect to run there.
// A nil effect means the turn is over.
func (o *Orchestrator) transition(state State, ev event) (State, effect) {
	if ev.kind == evFailed {
		return StateErrored, o.effFail
	}

	switch state {
	case StateIdle:
		if ev.kind == evSubmit {
			return StateClassifying, o.effClassify
		}
	case StateClassifying:
		switch ev.kind {
		case evSearch:
			return StateRetrieving, o.effRetrieve
		case evChitChat:
			return StateGenerating, o.effChitChat
		case evReuseContext:
			return StateGenerating, o.effGrounded
		}
	case StateRetrieving:
		switch ev.kind {
		case evRetrieved:
			return StateGenerating, o.effGrounded
		case evEmptyRetrieval:
			return StateGenerating, o.effChitChat
		}
	case StateGenerating:
		if ev.kind == evGenerated {
			return StatePersisting, o.effPersist
		}
	case StatePersisting:
		if ev.kind == evPersisted {
			return StateIdle, nil
		}
	case StateErrored:
		if ev.kind == evDone {
			return StateErrored, nil
		}
	}

	// An event the current state cannot consume is a bug; end the turn in
	// the error state instead of looping.
	o.logger.Error("illegal turn transition", "state", state, "event", int(ev.kind))
	return StateErrored, nil
}

func (o *Orchestrator) effClassify(ctx context.Context, t *turn) event {
	cls, err := o.classifier.Classify(ctx, t.req.APIKey, t.req.Message)
	if err != nil {
		return t.fail(err)
	}
	t.classification = cls

	switch cls.Intent {
	case IntentChitChat:
		return event{kind: evChitChat}
	case IntentFollowUp:
		if prior, concept := o.priorContext(t.conv.ID); prior != nil {
			t.assembled = prior
			// The follow-up stays on the previous turn's concept.
			t.classification.Query = concept
			return event{kind: evReuseContext}
		}
		// A follow-up with nothing to follow up on degrades to chit-chat.
		return event{kind: evChitChat}
	default:
		return event{kind: evSearch}
	}
}

func (o *Orchestrator) effRetrieve(ctx context.Context, t *turn) event {
	req := t.req.Filters
	req.Query = t.classification.Query

	assembled, err := o.assembler.Assemble(ctx, req)
	if err != nil {
		return t.fail(err)
	}
	if assembled.Empty() {
		return event{kind: evEmptyRetrieval}
	}

	t.assembled = assembled
	o.rememberContext(t.conv.ID, assembled, t.classification.Query)
	return event{kind: evRetrieved}
}

func (o *Orchestrator) effChitChat(ctx context.Context, t *turn) event {
	answer, err := o.synth.ChitChat(ctx, t.req.APIKey, t.history, t.req.Message)
	if err != nil {
		return t.fail(err)
	}
	t.botMsg = conversation.Message{Text: answer, Sender: conversation.SenderBot}
	return event{kind: evGenerated}
}

func (o *Orchestrator) effGrounded(ctx context.Context, t *turn) event {
	answer, err := o.synth.Grounded(ctx, t.req.APIKey, t.history, t.req.Message, t.assembled)
	if err != nil {
		return t.fail(err)
	}

	adjusted := AdjustCitations(answer, t.assembled.Blocks, t.assembled.Titles, t.assembled.IDs)
	t.botMsg = conversation.Message{
		Text:              adjusted.Text,
		Sender:            conversation.SenderBot,
		Concept:           t.classification.Query,
		PublicationIDs:    adjusted.IDs,
		PublicationTitles: adjusted.Titles,
		Publications:      adjusted.Publications,
	}
	return event{kind: evGenerated}
}

func (o *Orchestrator) effPersist(ctx context.Context, t *turn) event {
	if o.isStale(t.req.OwnerID, t.conv.ID) {
		t.discarded = true
		return event{kind: evPersisted}
	}

	t.conv.Messages = conversation.PruneForUpdate(append(t.conv.Messages, t.botMsg))
	updated, err := o.store.Update(ctx, t.conv)
	if err != nil {
		return t.fail(err)
	}
	t.conv = updated
	return event{kind: evPersisted}
}

// effFail converts the turn's failure into one appended system message.
// The message is not persisted; a failed turn leaves only the optimistic
// user message in the store.
func (o *Orchestrator) effFail(_ context.Context, t *turn) event {
	if o.isStale(t.req.OwnerID, t.conv.ID) {
		t.discarded = true
		return event{kind: evDone}
	}

	text := msgGenerationFailed
	if llm.IsAuthError(t.failErr) {
		text = msgInvalidKey
	}
	t.conv.Messages = append(t.conv.Messages, conversation.Message{
		Text:   text,
		Sender: conversation.SenderSystem,
	})

	o.logger.Warn("turn failed",
		"conversation", t.conv.ID, "error", t.failErr)
	return event{kind: evDone}
}
