package notify

import (
	"context"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/authpay/server/internal/model"
)

const (
	defaultQueueSize = 256
	sendTimeout      = 15 * time.Second
	retryBase        = 500 * time.Millisecond
	maxRetries       = 3
)

// Dispatcher is an asynchronous, at-least-once notification queue. Enqueue
// never blocks the caller: when the queue is full the message is dropped and
// logged, never backpressured into the request path.
type Dispatcher struct {
	sender Sender
	log    *zap.Logger
	queue  chan Message

	closeOnce sync.Once
	done      chan struct{}
}

var _ Notifier = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher and starts its delivery worker.
func NewDispatcher(sender Sender, log *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		sender: sender,
		log:    log,
		queue:  make(chan Message, defaultQueueSize),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

// Notify enqueues a notification for asynchronous delivery.
func (d *Dispatcher) Notify(kind Kind, email string, ch model.Challenge) {
	msg := Message{Kind: kind, Email: email, Challenge: ch}
	select {
	case d.queue <- msg:
	default:
		d.log.Warn("notification queue full, dropping message",
			zap.String("kind", string(kind)),
			zap.String("challenge_id", ch.ID))
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for msg := range d.queue {
		d.deliver(msg)
	}
}

func (d *Dispatcher) deliver(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	backoff := retry.WithMaxRetries(maxRetries, retry.NewExponential(retryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := d.sender.Send(ctx, msg); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		d.log.Warn("notification delivery failed",
			zap.String("kind", string(msg.Kind)),
			zap.String("email", MaskEmail(msg.Email)),
			zap.String("challenge_id", msg.Challenge.ID),
			zap.Error(err))
		return
	}
	d.log.Info("notification delivered",
		zap.String("kind", string(msg.Kind)),
		zap.String("email", MaskEmail(msg.Email)),
		zap.String("challenge_id", msg.Challenge.ID))
}

// Close stops accepting messages and waits for the queue to drain.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.queue)
	})
	<-d.done
}
