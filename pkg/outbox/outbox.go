package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"mawneychat/pkg/config"
	"mawneychat/pkg/remote"
	"mawneychat/pkg/state/logger"
	"mawneychat/pkg/store/keys"
	"mawneychat/pkg/store/kv"
	"mawneychat/pkg/telemetry"
)

// Handler delivers one op. A nil error acks it.
type Handler func(ctx context.Context, op Op) error

// ErrPermanent marks a handler error that must not be retried.
var ErrPermanent = errors.New("permanent outbox failure")

type Options struct {
	FlushInterval time.Duration
	MaxAttempts   int
	BaseBackoff   time.Duration
	MaxBackoff    time.Duration
	BatchSize     int
}

func OptionsFromConfig(oc config.OutboxConfig) Options {
	return Options{
		FlushInterval: oc.FlushInterval.Duration(),
		MaxAttempts:   oc.MaxAttempts,
		BaseBackoff:   oc.BaseBackoff.Duration(),
		MaxBackoff:    oc.MaxBackoff.Duration(),
	}
}

func (o *Options) applyDefaults() {
	if o.FlushInterval <= 0 {
		o.FlushInterval = 2 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 10
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = time.Second
	}
	if o.MaxBackoff < o.BaseBackoff {
		o.MaxBackoff = time.Minute
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 64
	}
}

// Outbox is a durable FIFO of remote writes backed by the local store.
type Outbox struct {
	store *kv.Store
	opts  Options
	now   func() time.Time

	mu      sync.Mutex
	seq     uint64
	handler Handler

	flushing atomic.Bool
	running  atomic.Bool
	kick     chan struct{}
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New opens the outbox over store and resumes the sequence after the
// highest persisted op.
func New(store *kv.Store, opts Options) (*Outbox, error) {
	opts.applyDefaults()
	o := &Outbox{
		store: store,
		opts:  opts,
		now:   time.Now,
		kick:  make(chan struct{}, 1),
	}
	err := store.Iterate(keys.OutboxPrefix, func(k, _ []byte) error {
		seq, err := keys.ParseOutboxSeq(string(k))
		if err != nil {
			logger.Warn("outbox_bad_key", "key", string(k), "error", err)
			return nil
		}
		if seq > o.seq {
			o.seq = seq
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan outbox: %w", err)
	}
	o.refreshGauge()
	return o, nil
}

// SetHandler installs the delivery function. Ops enqueued before a handler
// is set stay pending.
func (o *Outbox) SetHandler(h Handler) {
	o.mu.Lock()
	o.handler = h
	o.mu.Unlock()
}

// Enqueue persists op and wakes the flush loop.
func (o *Outbox) Enqueue(op Op) (Op, error) {
	o.mu.Lock()
	o.seq++
	op.Seq = o.seq
	o.mu.Unlock()

	now := o.now()
	op.Status = StatusPending
	op.CreatedAt = now
	op.NextAttempt = now
	if op.IdempotencyKey == "" {
		op.IdempotencyKey = keys.GenIdempotencyKey()
	}
	if err := o.store.SaveJSON(keys.GenOutboxKey(op.Seq), op); err != nil {
		return Op{}, fmt.Errorf("enqueue %s: %w", op.Kind, err)
	}
	logger.Debug("outbox_enqueued", "seq", op.Seq, "kind", op.Kind, "chat", op.ChatID)
	o.refreshGauge()
	o.Kick()
	return op, nil
}

// Kick wakes the flush loop without waiting for the next tick.
func (o *Outbox) Kick() {
	select {
	case o.kick <- struct{}{}:
	default:
	}
}

func (o *Outbox) list(match func(Op) bool) ([]Op, error) {
	var out []Op
	err := o.store.Iterate(keys.OutboxPrefix, func(k, v []byte) error {
		var op Op
		if err := json.Unmarshal(v, &op); err != nil {
			logger.Warn("outbox_bad_entry", "key", string(k), "error", err)
			return nil
		}
		if match(op) {
			out = append(out, op)
		}
		return nil
	})
	return out, err
}

// Pending returns every op still awaiting delivery, oldest first.
func (o *Outbox) Pending() ([]Op, error) {
	return o.list(func(op Op) bool { return op.Status == StatusPending })
}

// Failed returns ops parked after exhausting their attempts.
func (o *Outbox) Failed() ([]Op, error) {
	return o.list(func(op Op) bool { return op.Status == StatusFailed })
}

// DequeueReady returns up to limit ops whose backoff has elapsed, in
// sequence order. A chat whose oldest pending op is still backing off
// yields nothing, so its later ops never overtake it.
func (o *Outbox) DequeueReady(limit int) ([]Op, error) {
	now := o.now()
	pending, err := o.Pending()
	if err != nil {
		return nil, err
	}
	waiting := map[string]bool{}
	var ops []Op
	for _, op := range pending {
		scope := op.scope()
		if waiting[scope] {
			continue
		}
		if !op.Ready(now) {
			waiting[scope] = true
			continue
		}
		ops = append(ops, op)
		if limit > 0 && len(ops) == limit {
			break
		}
	}
	return ops, nil
}

// Ack removes a delivered op.
func (o *Outbox) Ack(seq uint64) error {
	if err := o.store.DeleteKey(keys.GenOutboxKey(seq)); err != nil {
		return err
	}
	o.refreshGauge()
	return nil
}

// Nack records a failed attempt. The op is rescheduled with exponential
// backoff, or parked as failed once attempts run out or cause is permanent.
func (o *Outbox) Nack(op Op, cause error) (Op, error) {
	op.Attempts++
	if cause != nil {
		op.Error = cause.Error()
	}
	if op.Attempts >= o.opts.MaxAttempts || !retryable(cause) {
		op.Status = StatusFailed
	} else {
		op.NextAttempt = o.now().Add(o.Backoff(op.Attempts))
	}
	if err := o.store.SaveJSON(keys.GenOutboxKey(op.Seq), op); err != nil {
		return op, err
	}
	o.refreshGauge()
	return op, nil
}

func retryable(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, ErrPermanent) {
		return false
	}
	return remote.Temporary(err)
}

// Backoff returns the delay before the attempt after the given count.
func (o *Outbox) Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := o.opts.BaseBackoff
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= o.opts.MaxBackoff {
			return o.opts.MaxBackoff
		}
	}
	return d
}

// DropChat deletes every pending op targeting chatID.
func (o *Outbox) DropChat(chatID string) (int, error) {
	ops, err := o.list(func(op Op) bool {
		return op.ChatID == chatID && op.Status == StatusPending && op.Kind != KindMessagesClear
	})
	if err != nil || len(ops) == 0 {
		return 0, err
	}
	err = o.store.Update(func(b *kv.Batch) error {
		for _, op := range ops {
			if err := b.Delete(keys.GenOutboxKey(op.Seq)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	o.refreshGauge()
	return len(ops), nil
}

// Flush delivers ready ops in sequence order. Once an op for a chat fails
// the later ops for that chat wait until it is delivered or parked. It
// returns the number delivered.
func (o *Outbox) Flush(ctx context.Context) (int, error) {
	o.mu.Lock()
	h := o.handler
	o.mu.Unlock()
	if h == nil {
		return 0, nil
	}
	if !o.flushing.CompareAndSwap(false, true) {
		return 0, nil
	}
	defer o.flushing.Store(false)

	ops, err := o.DequeueReady(o.opts.BatchSize)
	if err != nil {
		return 0, err
	}
	blocked := map[string]bool{}
	delivered := 0
	for _, op := range ops {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}
		scope := op.scope()
		if blocked[scope] {
			continue
		}
		if err := deliver(ctx, h, op); err != nil {
			blocked[scope] = true
			next, nerr := o.Nack(op, err)
			if nerr != nil {
				logger.Error("outbox_nack_failed", "seq", op.Seq, "error", nerr)
				continue
			}
			if next.Status == StatusFailed {
				telemetry.OutboxAttempt(string(op.Kind), "failed")
				logger.Error("outbox_op_failed", "seq", op.Seq, "kind", op.Kind, "chat", op.ChatID, "attempts", next.Attempts, "error", err)
			} else {
				telemetry.OutboxAttempt(string(op.Kind), "retry")
				logger.Warn("outbox_op_retry", "seq", op.Seq, "kind", op.Kind, "attempts", next.Attempts, "next_attempt", next.NextAttempt, "error", err)
			}
			continue
		}
		if err := o.Ack(op.Seq); err != nil {
			logger.Error("outbox_ack_failed", "seq", op.Seq, "error", err)
			continue
		}
		telemetry.OutboxAttempt(string(op.Kind), "ok")
		delivered++
	}
	return delivered, nil
}

func deliver(ctx context.Context, h Handler, op Op) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: handler panic: %v", ErrPermanent, r)
		}
	}()
	return h(ctx, op)
}

// Start runs the flush loop until ctx is done or Stop is called. It is
// safe to call more than once.
func (o *Outbox) Start(ctx context.Context) {
	if !o.running.CompareAndSwap(false, true) {
		return
	}
	o.stopCh = make(chan struct{})
	stop := o.stopCh
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(o.opts.FlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
			case <-o.kick:
			}
			if _, err := o.Flush(ctx); err != nil && ctx.Err() == nil {
				logger.Error("outbox_flush_failed", "error", err)
			}
		}
	}()
	logger.Info("outbox_started", "flush_interval", o.opts.FlushInterval.String(), "max_attempts", o.opts.MaxAttempts)
}

// Stop halts the flush loop and waits for an in-flight flush.
func (o *Outbox) Stop() {
	if !o.running.CompareAndSwap(true, false) {
		return
	}
	close(o.stopCh)
	o.wg.Wait()
}

func (o *Outbox) refreshGauge() {
	ops, err := o.Pending()
	if err != nil {
		return
	}
	telemetry.SetOutboxPending(len(ops))
}
