package poller

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fjod/go_cart/cart-engine/internal/domain"
	"github.com/segmentio/kafka-go"
)

const (
	DefaultTopic   = "checkout-outbox"
	DefaultGroupID = "cart-engine-consumer"
)

// CartClearer empties a user's cart once their checkout completed.
type CartClearer interface {
	ClearCart(ctx context.Context, userID string) (domain.Cart, error)
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// CheckoutEvent is the part of the checkout outbox record the cart reads.
type CheckoutEvent struct {
	CheckoutID string `json:"checkout_id"`
	UserID     string `json:"user_id"`
}

type Poller struct {
	carts   CartClearer
	reader  messageReader
	log     *slog.Logger
	backoff func() backoff.BackOff
}

func NewPoller(carts CartClearer, log *slog.Logger, topic, groupID string, brokers ...string) *Poller {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
	return newPoller(carts, reader, log)
}

func newPoller(carts CartClearer, reader messageReader, log *slog.Logger) *Poller {
	return &Poller{
		carts:  carts,
		reader: reader,
		log:     log.With("component", "checkout_poller"),
		backoff: newBackOff,
	}
}

// newBackOff retries a failed clear from 500ms up to every 30s, forever.
func newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// Run consumes checkout events until ctx is cancelled. An event's offset is
// committed only once its cart was cleared, or when the event can never be
// applied (malformed, no user, rejected by the service). Other failures are
// retried with backoff, so the event is redelivered if the process stops.
func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		p.clearCartFromNextMessage(ctx)
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.log.Error("error closing reader", "error", err)
	}
}

func (p *Poller) clearCartFromNextMessage(ctx context.Context) {
	m, err := p.reader.FetchMessage(ctx)
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, context.Canceled) {
			p.log.ErrorContext(ctx, "error fetching message", "error", err)
		}
		return
	}

	if !p.handle(ctx, m) {
		return
	}
	if err := p.reader.CommitMessages(ctx, m); err != nil {
		p.log.ErrorContext(ctx, "error committing message", "offset", m.Offset, "error", err)
	}
}

// handle applies one event and reports whether its offset may be committed.
func (p *Poller) handle(ctx context.Context, m kafka.Message) bool {
	var event CheckoutEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		p.log.WarnContext(ctx, "error parsing message", "offset", m.Offset, "error", err)
		return true
	}
	if strings.TrimSpace(event.UserID) == "" {
		p.log.WarnContext(ctx, "missing or invalid user_id", "offset", m.Offset, "checkout_id", event.CheckoutID)
		return true
	}

	clearCart := func() error {
		_, err := p.carts.ClearCart(ctx, event.UserID)
		if domain.IsKind(err, domain.KindBadRequest) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		p.log.ErrorContext(ctx, "failed to clear cart after checkout, retrying",
			"user_id", event.UserID, "checkout_id", event.CheckoutID, "retry_in", next, "error", err)
	}

	err := backoff.RetryNotify(clearCart, backoff.WithContext(p.backoff(), ctx), notify)
	switch {
	case err == nil:
		p.log.InfoContext(ctx, "cart cleared after checkout", "user_id", event.UserID, "checkout_id", event.CheckoutID)
		return true
	case ctx.Err() != nil:
		return false
	default:
		p.log.WarnContext(ctx, "checkout event rejected, skipping",
			"user_id", event.UserID, "checkout_id", event.CheckoutID, "offset", m.Offset, "error", err)
		return true
	}
}
