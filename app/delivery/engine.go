package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/lysyi3m/answer-relay/app/answer"
	"github.com/lysyi3m/answer-relay/app/clock"
	"github.com/lysyi3m/answer-relay/app/database"
	"github.com/lysyi3m/answer-relay/app/ratelimit"
	"github.com/lysyi3m/answer-relay/app/social"
)

var errRetriesExhausted = errors.New("rate limit retries exhausted")

// Engine delivers candidates one at a time. It is not safe for concurrent
// use; the poll loop is its only caller.
type Engine struct {
	client   social.Client
	ledger   database.LedgerRepository
	tracker  *ratelimit.Tracker
	seen     *SeenSet
	clock    clock.Clock
	recorder OutcomeRecorder
	settings Settings

	pacer *rate.Limiter
}

func NewEngine(client social.Client, ledger database.LedgerRepository, tracker *ratelimit.Tracker, seen *SeenSet, clk clock.Clock, recorder OutcomeRecorder, settings Settings) *Engine {
	if settings.MaxRetries < 0 {
		settings.MaxRetries = 0
	}
	if settings.RetryMultiplier < 1 {
		settings.RetryMultiplier = 1
	}
	if settings.MaxContentLength <= len(truncationMarker) {
		settings.MaxContentLength = DefaultMaxContentLength
	}
	if settings.CallTimeout <= 0 {
		settings.CallTimeout = DefaultCallTimeout
	}
	if seen == nil {
		seen = NewSeenSet()
	}

	e := &Engine{
		client:   client,
		ledger:   ledger,
		tracker:  tracker,
		seen:     seen,
		clock:    clk,
		recorder: recorder,
		settings: settings,
	}
	if settings.MinPostInterval > 0 {
		e.pacer = rate.NewLimiter(rate.Every(settings.MinPostInterval), 1)
	}
	return e
}

func (e *Engine) Seen() *SeenSet {
	return e.seen
}

// Process delivers candidates in order and stops before the next candidate
// once ctx is cancelled.
func (e *Engine) Process(ctx context.Context, candidates []answer.Candidate) BatchResult {
	batch := BatchResult{Counts: make(map[State]int)}

	for _, c := range candidates {
		if ctx.Err() != nil {
			slog.Info("Delivery stopped, shutdown requested", "remaining", len(candidates)-batch.Total())
			break
		}

		result := e.Deliver(ctx, c)
		batch.Counts[result.State]++
		if result.State.Retryable() {
			batch.Retryable = append(batch.Retryable, c)
		}
	}

	return batch
}

// Deliver runs one candidate through validation, cleaning, rate gating and
// posting, and records its outcome.
func (e *Engine) Deliver(ctx context.Context, c answer.Candidate) Result {
	result := e.deliver(ctx, c)
	if e.recorder != nil {
		e.recorder.RecordOutcome(result.State.outcome())
	}
	return result
}

func (e *Engine) deliver(ctx context.Context, c answer.Candidate) Result {
	if e.seen.Contains(c.ID) {
		slog.Debug("Answer already processed", "id", c.ID)
		return Result{Candidate: c, State: StateAlreadySeen}
	}

	exists, err := e.lookup(ctx, c.TargetID)
	if err != nil {
		if errors.Is(err, social.ErrTargetGone) {
			return e.skipUnreachable(ctx, c, "lookup")
		}
		return e.fail(ctx, c, "lookup", err)
	}
	if !exists {
		return e.skipUnreachable(ctx, c, "lookup")
	}

	text := answer.Clean(c.Content)
	if text == "" {
		slog.Info("Answer empty after cleaning, skipping", "id", c.ID, "target_id", c.TargetID)
		return Result{Candidate: c, State: StateSkippedEmpty}
	}
	text = truncate(text, e.settings.MaxContentLength)

	if err := e.pace(ctx); err != nil {
		return e.fail(ctx, c, "post", err)
	}

	postedID, err := e.post(ctx, text, c.TargetID)
	if err != nil {
		if errors.Is(err, social.ErrTargetGone) {
			return e.skipUnreachable(ctx, c, "post")
		}
		return e.fail(ctx, c, "post", err)
	}

	if e.pacer != nil {
		e.pacer.ReserveN(e.clock.Now(), 1)
	}

	outcome := database.Outcome{
		RecordID:      c.ID,
		PostedID:      postedID,
		TargetID:      c.TargetID,
		Status:        database.StatusSuccess,
		ContentLength: utf8.RuneCountInString(text),
		Proof:         c.Proof,
	}
	if err := e.record(ctx, outcome); err != nil {
		slog.Error("Reply posted but outcome not recorded",
			"id", c.ID,
			"posted_id", postedID,
			"error", err)
		return Result{Candidate: c, State: StateFailed, PostedID: postedID, Err: err}
	}

	slog.Info("Answer posted",
		"id", c.ID,
		"target_id", c.TargetID,
		"posted_id", postedID,
		"content_length", outcome.ContentLength)

	return Result{Candidate: c, State: StateSucceeded, PostedID: postedID}
}

func (e *Engine) skipUnreachable(ctx context.Context, c answer.Candidate, stage string) Result {
	slog.Info("Target post unreachable, skipping", "id", c.ID, "target_id", c.TargetID, "stage", stage)

	outcome := database.Outcome{
		RecordID:      c.ID,
		TargetID:      c.TargetID,
		Status:        database.StatusSkippedTargetUnreachable,
		ContentLength: utf8.RuneCountInString(c.Content),
		Proof:         c.Proof,
	}
	if err := e.record(ctx, outcome); err != nil {
		slog.Error("Failed to record skipped answer", "id", c.ID, "error", err)
		return Result{Candidate: c, State: StateFailed, Err: err}
	}

	return Result{Candidate: c, State: StateSkippedUnreachable}
}

func (e *Engine) fail(ctx context.Context, c answer.Candidate, stage string, err error) Result {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		slog.Info("Delivery interrupted", "id", c.ID, "stage", stage)
		return Result{Candidate: c, State: StateInterrupted, Err: err}
	}

	slog.Error("Failed to deliver answer",
		"id", c.ID,
		"target_id", c.TargetID,
		"stage", stage,
		"error", err)

	return Result{Candidate: c, State: StateFailed, Err: err}
}

// record stores the outcome and marks the id as seen only once the write
// has succeeded.
func (e *Engine) record(ctx context.Context, outcome database.Outcome) error {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.settings.CallTimeout)
	defer cancel()

	outcome.ProcessedAt = e.clock.Now()
	if err := e.ledger.Upsert(callCtx, outcome); err != nil {
		return err
	}

	e.seen.Add(outcome.RecordID)
	return nil
}

func (e *Engine) lookup(ctx context.Context, targetID string) (bool, error) {
	var exists bool
	err := e.withRetry(ctx, ratelimit.ClassLookup, func(callCtx context.Context) (ratelimit.Metadata, error) {
		var meta ratelimit.Metadata
		var err error
		exists, meta, err = e.client.LookupPost(callCtx, targetID)
		return meta, err
	})
	return exists, err
}

func (e *Engine) post(ctx context.Context, text, targetID string) (string, error) {
	var postedID string
	err := e.withRetry(ctx, ratelimit.ClassPost, func(callCtx context.Context) (ratelimit.Metadata, error) {
		var meta ratelimit.Metadata
		var err error
		postedID, meta, err = e.client.PostReply(callCtx, text, targetID)
		return meta, err
	})
	return postedID, err
}

// withRetry gates call on the tracker and retries rate-limited responses
// up to MaxRetries times. In-flight calls are not cancelled by ctx.
func (e *Engine) withRetry(ctx context.Context, class ratelimit.Class, call func(context.Context) (ratelimit.Metadata, error)) error {
	for attempt := 0; ; attempt++ {
		if decision := e.tracker.Check(class); !decision.CanProceed {
			if err := e.tracker.AwaitReset(ctx, decision.Wait); err != nil {
				return err
			}
		}

		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.settings.CallTimeout)
		meta, err := call(callCtx)
		cancel()

		e.tracker.Update(class, meta)

		if err == nil || !errors.Is(err, social.ErrRateLimited) {
			return err
		}
		if attempt >= e.settings.MaxRetries {
			return fmt.Errorf("%w: %s after %d attempts: %w", errRetriesExhausted, class, attempt+1, err)
		}

		delay := e.backoff(attempt)
		slog.Warn("Rate limited, backing off",
			"class", string(class),
			"attempt", attempt+1,
			"max_retries", e.settings.MaxRetries,
			"delay", delay.String())

		if err := e.clock.Sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func (e *Engine) backoff(attempt int) time.Duration {
	delay := float64(e.settings.RetryBaseDelay) * math.Pow(e.settings.RetryMultiplier, float64(attempt))
	if e.settings.MaxBackoffDelay > 0 && delay > float64(e.settings.MaxBackoffDelay) {
		return e.settings.MaxBackoffDelay
	}
	return time.Duration(delay)
}

// pace waits until MinPostInterval has passed since the last successful post.
func (e *Engine) pace(ctx context.Context) error {
	if e.pacer == nil {
		return nil
	}

	tokens := e.pacer.TokensAt(e.clock.Now())
	if tokens >= 1 {
		return nil
	}

	wait := time.Duration(math.Ceil((1 - tokens) / float64(e.pacer.Limit()) * float64(time.Second)))
	slog.Debug("Spacing posts", "wait", wait.String())
	return e.clock.Sleep(ctx, wait)
}

func truncate(text string, maxRunes int) string {
	if utf8.RuneCountInString(text) <= maxRunes {
		return text
	}

	runes := []rune(text)
	return string(runes[:maxRunes-len(truncationMarker)]) + truncationMarker
}
