package notify

import (
	"context"
	"log"
	"time"

	"golang.org/x/time/rate"

	"botfleet/internal/domain"
	"botfleet/internal/repo"
)

const (
	defaultQueueSize   = 256
	defaultSendTimeout = 10 * time.Second
)

// Channel is an external sink for a human operator, outside this system's
// storage. Delivery is best-effort; errors are reported for logging only.
type Channel interface {
	Name() string
	Notify(ctx context.Context, title, content string) error
}

type ownerMessage struct {
	title   string
	content string
}

// Notifier appends rows to the durable notification feed and forwards a
// subset to the owner channel. The forward runs on a background goroutine
// behind a buffered queue: it can never fail or delay the request that
// produced the notification.
type Notifier struct {
	Repo    repo.Repo
	Now     func() time.Time
	Logger  *log.Logger
	owner   Channel
	limiter *rate.Limiter
	queue   chan ownerMessage
	done    chan struct{}
	stopped chan struct{}
}

// New builds a Notifier. A nil owner disables forwarding entirely.
func New(r repo.Repo, owner Channel, perSecond float64, logger *log.Logger) *Notifier {
	if logger == nil {
		logger = log.Default()
	}
	if perSecond <= 0 {
		perSecond = 1
	}
	n := &Notifier{
		Repo:    r,
		Now:     time.Now,
		Logger:  logger,
		owner:   owner,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		queue:   make(chan ownerMessage, defaultQueueSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	if owner != nil {
		go n.run()
	} else {
		close(n.stopped)
	}
	return n
}

// Emit inserts the feed row and, when forward is set, hands a copy to the
// owner channel queue. Only the insert can fail; a full queue drops the
// forward with a log line.
func (n *Notifier) Emit(ctx context.Context, notif domain.Notification, forward bool) error {
	if notif.CreatedAt == "" {
		notif.CreatedAt = n.now().UTC().Format(time.RFC3339)
	}
	if _, err := n.Repo.InsertNotification(ctx, notif); err != nil {
		return err
	}
	if forward && n.owner != nil {
		select {
		case n.queue <- ownerMessage{title: notif.Title, content: notif.Message}:
		default:
			n.Logger.Printf("notify: owner queue full, dropping forward of %q", notif.Title)
		}
	}
	return nil
}

// Close stops the background forwarder without draining the queue.
func (n *Notifier) Close() {
	if n.owner == nil {
		return
	}
	close(n.done)
	<-n.stopped
}

func (n *Notifier) run() {
	defer close(n.stopped)
	for {
		select {
		case <-n.done:
			return
		case msg := <-n.queue:
			if err := n.limiter.Wait(context.Background()); err != nil {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), defaultSendTimeout)
			if err := n.owner.Notify(ctx, msg.title, msg.content); err != nil {
				n.Logger.Printf("notify: %s forward failed: %v", n.owner.Name(), err)
			}
			cancel()
		}
	}
}

func (n *Notifier) now() time.Time {
	if n.Now != nil {
		return n.Now()
	}
	return time.Now()
}
