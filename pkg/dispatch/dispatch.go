// Package dispatch fans a batch of messages out to a delivery provider with
// bounded concurrency and fixed pacing.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kathanp/emailbot/pkg/delivery"
	"github.com/kathanp/emailbot/pkg/logger"
)

// Pacing bounds a batch: at most Concurrency sends in flight, and every
// worker waits Delay after each send before taking the next message.
type Pacing struct {
	Concurrency int
	Delay       time.Duration
}

// Presets per backend. Gmail is more conservative because of per-user rate limits.
var presets = map[delivery.Kind]Pacing{
	delivery.KindSES:      {Concurrency: 10, Delay: 100 * time.Millisecond},
	delivery.KindGmail:    {Concurrency: 5, Delay: 200 * time.Millisecond},
	delivery.KindSMTP:     {Concurrency: 5, Delay: 200 * time.Millisecond},
	delivery.KindPostmark: {Concurrency: 10, Delay: 100 * time.Millisecond},
	delivery.KindDev:      {Concurrency: 10},
}

// PacingFor returns the preset for kind, falling back to the SMTP preset.
func PacingFor(kind delivery.Kind) Pacing {
	if p, ok := presets[kind]; ok {
		return p
	}
	return presets[delivery.KindSMTP]
}

// RecipientError describes one failed send.
type RecipientError struct {
	To      string `json:"to"`
	Code    string `json:"error_code"`
	Message string `json:"error_message"`
}

// Delivery is the outcome of one attempted send, in input order.
type Delivery struct {
	To        string
	MessageID string
	Err       *RecipientError
	SentAt    time.Time
}

func (d Delivery) OK() bool { return d.Err == nil }

// Result summarises a batch. Successful+Failed always equals Total and
// Errors holds exactly Failed entries.
type Result struct {
	Total      int
	Successful int
	Failed     int
	Errors     []RecipientError
	Deliveries []Delivery
	StartTime  time.Time
	EndTime    time.Time
}

func (r Result) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

// WithSleep replaces the post-send wait, used by tests to observe pacing.
func WithSleep(fn func(context.Context, time.Duration)) Option {
	return func(d *Dispatcher) {
		if fn != nil {
			d.sleep = fn
		}
	}
}

// Observer is notified after every send.
type Observer interface {
	ObserveSend(kind delivery.Kind, code string)
}

func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// Dispatcher runs batches. It holds no per-batch state and is safe for concurrent use.
type Dispatcher struct {
	log      *slog.Logger
	sleep    func(context.Context, time.Duration)
	observer Observer
	now      func() time.Time
}

func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		log:   logger.Discard(),
		sleep: sleepCtx,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SendBulk sends every message from sender through p and waits for all of them.
// A failing or panicking send is recorded and never stops the others.
// Cancelling ctx makes the remaining sends fail fast; every message is still accounted for.
func (d *Dispatcher) SendBulk(ctx context.Context, p delivery.Provider, sender string, msgs []delivery.Message, pacing Pacing) Result {
	if pacing.Concurrency < 1 {
		pacing.Concurrency = 1
	}

	res := Result{
		Total:      len(msgs),
		Deliveries: make([]Delivery, len(msgs)),
		StartTime:  d.now(),
	}

	log := d.log.With(logger.Provider(string(p.Kind())), logger.Count("total", len(msgs)))
	log.InfoContext(ctx, "dispatch started",
		slog.Int("concurrency", pacing.Concurrency),
		slog.Duration("delay", pacing.Delay),
	)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(pacing.Concurrency)

	for i, msg := range msgs {
		g.Go(func() error {
			out := d.sendOne(ctx, p, sender, msg)

			mu.Lock()
			res.Deliveries[i] = out
			if out.OK() {
				res.Successful++
			} else {
				res.Failed++
				res.Errors = append(res.Errors, *out.Err)
			}
			mu.Unlock()

			if pacing.Delay > 0 {
				d.sleep(ctx, pacing.Delay)
			}
			return nil
		})
	}
	_ = g.Wait()

	res.EndTime = d.now()
	log.InfoContext(ctx, "dispatch finished",
		logger.Count("successful", res.Successful),
		logger.Count("failed", res.Failed),
		logger.Duration(res.Duration()),
	)
	return res
}

func (d *Dispatcher) sendOne(ctx context.Context, p delivery.Provider, sender string, msg delivery.Message) (out Delivery) {
	out.To = msg.To
	defer func() {
		if r := recover(); r != nil {
			out.MessageID = ""
			out.Err = &RecipientError{To: msg.To, Code: delivery.CodePanic, Message: fmt.Sprint(r)}
			d.log.ErrorContext(ctx, "send panicked", logger.Recipient(msg.To), slog.Any("panic", r))
		}
		out.SentAt = d.now()
		if d.observer != nil {
			code := ""
			if out.Err != nil {
				code = out.Err.Code
			}
			d.observer.ObserveSend(p.Kind(), code)
		}
	}()

	id, err := p.Send(ctx, sender, msg)
	if err != nil {
		out.Err = &RecipientError{To: msg.To, Code: delivery.CodeOf(err), Message: delivery.MessageOf(err)}
		d.log.WarnContext(ctx, "send failed", logger.Recipient(msg.To), logger.Error(err))
		return out
	}
	out.MessageID = id
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
