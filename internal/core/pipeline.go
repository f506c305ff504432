package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/parley-chat/parley/internal/logger"
	"github.com/parley-chat/parley/internal/store"

	"github.com/qmuntal/stateless"
)

// In-band stream sentinels. Once headers are sent these are the only way to
// signal the turn's outcome to the client.
const (
	DoneSentinel  = "[DONE]"
	ErrorSentinel = "[ERROR]"
)

// Cache replay pacing: cached replies are sliced into fixed-size chunks with a
// small delay between them, simulating incremental generation.
const (
	replayChunkSize = 20
	replayDelay     = 10 * time.Millisecond
)

// FSM states for one chat turn.
type turnState stateless.State

var (
	StateStart        turnState = "Start"
	StateUserAppended turnState = "UserAppended"
	StateCacheHit     turnState = "CacheHit"
	StateUpstream     turnState = "Upstream"
	StatePersisted    turnState = "Persisted"
	StateErrored      turnState = "Errored"
	StateClosed       turnState = "Closed"
)

// FSM triggers.
type turnTrigger stateless.Trigger

var (
	TriggerTurnStarted    turnTrigger = "TurnStarted"
	TriggerCacheHit       turnTrigger = "CacheHit"
	TriggerCacheMiss      turnTrigger = "CacheMiss"
	TriggerReplyPersisted turnTrigger = "ReplyPersisted"
	TriggerTurnFailed     turnTrigger = "TurnFailed"
	TriggerChannelClosed  turnTrigger = "ChannelClosed"
)

// StreamingPipeline orchestrates one chat turn end to end: append the user
// message, branch on the response cache, otherwise stream from the upstream
// model, then persist and terminate the stream.
type StreamingPipeline struct {
	store   ConversationStore
	llm     CompletionClient
	cache   *ResponseCache
	window  *WindowManager
	timeout time.Duration

	mu    sync.Mutex
	locks map[string]*convLock
}

// convLock is a per-conversation mutex with a waiter count so entries can be
// dropped from the pipeline's lock map once no turn holds or awaits them.
type convLock struct {
	mu   sync.Mutex
	refs int
}

func NewStreamingPipeline(st ConversationStore, llm CompletionClient, cache *ResponseCache, window *WindowManager, timeout time.Duration) *StreamingPipeline {
	return &StreamingPipeline{
		store:   st,
		llm:     llm,
		cache:   cache,
		window:  window,
		timeout: timeout,
		locks:   make(map[string]*convLock),
	}
}

// lockConversation serializes turns per conversation so concurrent requests
// cannot interleave appends. The returned func releases the lock and prunes
// the map entry once the last holder or waiter is gone.
func (p *StreamingPipeline) lockConversation(conversationID string) func() {
	p.mu.Lock()
	lock, ok := p.locks[conversationID]
	if !ok {
		lock = &convLock{}
		p.locks[conversationID] = lock
	}
	lock.refs++
	p.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		p.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(p.locks, conversationID)
		}
		p.mu.Unlock()
	}
}

// Run executes one chat turn. Failures before the stream opens (validation,
// unknown conversation, user-message persistence) are returned as errors and
// never touch the sink; after the sink opens the turn always terminates
// in-band with [DONE] or [ERROR] and Run returns nil.
func (p *StreamingPipeline) Run(ctx context.Context, conversationID string, userID int64, content string, imageURL *string, sink EventSink) error {
	if conversationID == "" || strings.TrimSpace(content) == "" {
		return ErrValidation
	}

	unlock := p.lockConversation(conversationID)
	defer unlock()

	conv, err := p.store.GetConversation(conversationID, userID)
	if err != nil {
		return fmt.Errorf("failed to load conversation: %w", err)
	}
	if conv == nil {
		return ErrNotFound
	}

	// The user's turn is persisted before any assistant content is streamed,
	// so it survives a failed turn and a retry reuses the same context.
	tokens := EstimateTokens(content)
	userMsg := store.Message{
		ConversationID: conv.ID,
		Role:           store.RoleUser,
		Content:        content,
		ImageURL:       imageURL,
		TokenCount:     &tokens,
	}
	if err := p.store.AppendMessage(&userMsg); err != nil {
		return fmt.Errorf("failed to persist user message: %w", err)
	}
	conv.Messages = append(conv.Messages, userMsg)

	type turnContext struct {
		fingerprint string
		cached      string
		prepared    PreparedContext
		accumulator strings.Builder
		lastError   error
	}
	tc := &turnContext{
		// The fingerprint covers the full pre-reduction history including the
		// just-appended user message.
		fingerprint: Fingerprint(conv.Messages),
	}

	fsm := stateless.NewStateMachine(StateStart)

	// State: Start. Validation and the durable user append already happened
	// above; the machine only transitions out once the turn may stream.
	fsm.Configure(StateStart).
		Permit(TriggerTurnStarted, StateUserAppended)

	// State: UserAppended. The outbound channel commits to event-stream
	// framing here, then the turn branches on the response cache.
	fsm.Configure(StateUserAppended).
		OnEntry(func(_ context.Context, _ ...any) error {
			sink.Open()
			if cached, ok := p.cache.Get(tc.fingerprint); ok {
				tc.cached = cached
				return fsm.Fire(TriggerCacheHit)
			}
			return fsm.Fire(TriggerCacheMiss)
		}).
		Permit(TriggerCacheHit, StateCacheHit).
		Permit(TriggerCacheMiss, StateUpstream)

	// State: CacheHit. Replay the cached reply in paced slices, then persist
	// it as the assistant message. No upstream call is made.
	fsm.Configure(StateCacheHit).
		OnEntry(func(_ context.Context, _ ...any) error {
			logger.L.Debug("cache hit", "conversation", conv.ID, "fingerprint", tc.fingerprint)
			runes := []rune(tc.cached)
			for i := 0; i < len(runes); i += replayChunkSize {
				end := min(i+replayChunkSize, len(runes))
				if err := sink.Send(string(runes[i:end])); err != nil {
					tc.lastError = err
					return fsm.Fire(TriggerTurnFailed)
				}
				select {
				case <-ctx.Done():
					tc.lastError = ctx.Err()
					return fsm.Fire(TriggerTurnFailed)
				case <-time.After(replayDelay):
				}
			}
			// A replayed reply costs no upstream tokens, so the usage
			// counters stay untouched; only the transcript gains the
			// assistant message.
			if err := p.appendAssistant(conv, tc.cached); err != nil {
				// The client already has the full content; the persisted
				// record may lag behind what was streamed.
				logger.L.Error("failed to persist replayed assistant message", "conversation", conv.ID, "error", err)
			}
			return fsm.Fire(TriggerReplyPersisted)
		}).
		Permit(TriggerReplyPersisted, StatePersisted).
		Permit(TriggerTurnFailed, StateErrored)

	// State: Upstream. Build the bounded message list, stream the live
	// completion, relay each chunk unbuffered while accumulating. On natural
	// completion the accumulator is cached and persisted; on any error the
	// partial content is discarded.
	fsm.Configure(StateUpstream).
		OnEntry(func(_ context.Context, _ ...any) error {
			tc.prepared = p.window.Prepare(ctx, conv)

			upstreamCtx, cancel := context.WithTimeout(ctx, p.timeout)
			defer cancel()

			err := p.llm.CompleteStream(upstreamCtx, tc.prepared.Messages, func(chunk string) error {
				if err := sink.Send(chunk); err != nil {
					return err
				}
				tc.accumulator.WriteString(chunk)
				return nil
			})
			if err != nil {
				tc.lastError = err
				return fsm.Fire(TriggerTurnFailed)
			}

			reply := tc.accumulator.String()
			p.cache.Put(tc.fingerprint, reply)

			total := conv.TotalTokensUsed + tc.prepared.TotalTokens + EstimateTokens(reply)
			boundary := conv.LastSummarizedAt
			if tc.prepared.SummarizedThrough > boundary {
				boundary = tc.prepared.SummarizedThrough
			}
			if perr := p.persistAssistant(conv, reply, total, boundary); perr != nil {
				logger.L.Error("failed to persist assistant message after stream", "conversation", conv.ID, "error", perr)
			}
			return fsm.Fire(TriggerReplyPersisted)
		}).
		Permit(TriggerReplyPersisted, StatePersisted).
		Permit(TriggerTurnFailed, StateErrored)

	// State: Persisted. Terminate the stream normally.
	fsm.Configure(StatePersisted).
		OnEntry(func(_ context.Context, _ ...any) error {
			if err := sink.Send(DoneSentinel); err != nil {
				logger.L.Warn("client gone before termination sentinel", "conversation", conv.ID, "error", err)
			}
			return fsm.Fire(TriggerChannelClosed)
		}).
		Permit(TriggerChannelClosed, StateClosed)

	// State: Errored. The stream has started, so the failure is reported
	// in-band; partial content is discarded.
	fsm.Configure(StateErrored).
		OnEntry(func(_ context.Context, _ ...any) error {
			logger.L.Error("turn failed after stream start", "conversation", conv.ID, "error", tc.lastError)
			if err := sink.Send(ErrorSentinel); err != nil {
				logger.L.Debug("client gone before error sentinel", "conversation", conv.ID)
			}
			return fsm.Fire(TriggerChannelClosed)
		}).
		Permit(TriggerChannelClosed, StateClosed)

	// State: Closed. Terminal; no further writes on this channel.

	if err := fsm.FireCtx(ctx, TriggerTurnStarted); err != nil {
		logger.L.Error("turn state machine error", "conversation", conv.ID, "error", err)
	}
	if state, err := fsm.State(ctx); err != nil || state != StateClosed {
		logger.L.Warn("turn ended in unexpected state", "conversation", conv.ID, "state", state, "error", err)
	}
	return nil
}

func (p *StreamingPipeline) appendAssistant(conv *store.Conversation, content string) error {
	tokens := EstimateTokens(content)
	msg := store.Message{
		ConversationID: conv.ID,
		Role:           store.RoleAssistant,
		Content:        content,
		TokenCount:     &tokens,
	}
	return p.store.AppendMessage(&msg)
}

func (p *StreamingPipeline) persistAssistant(conv *store.Conversation, content string, totalTokens, summarizedThrough int) error {
	if err := p.appendAssistant(conv, content); err != nil {
		return err
	}
	return p.store.UpdateConversationStats(conv.ID, totalTokens, summarizedThrough)
}
