package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kayteedberserker/oreblogda-sub000/internal/store"
)

// RosterSource reads clan rosters.
type RosterSource interface {
	GetClan(ctx context.Context, tag string) (*store.Clan, error)
}

type job struct {
	tags []string
	msg  Message
}

// Dispatcher fans clan notifications out to every roster member on a fixed
// pool of workers. NotifyClans never blocks; a full queue drops the job.
type Dispatcher struct {
	clans   RosterSource
	dir     TokenDirectory
	sender  Sender
	logger  *slog.Logger
	workers int
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	queue  chan job
	wg     sync.WaitGroup
}

func NewDispatcher(clans RosterSource, dir TokenDirectory, sender Sender, workers, queueSize int, logger *slog.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{
		clans:   clans,
		dir:     dir,
		sender:  sender,
		logger:  logger,
		workers: workers,
		timeout: 30 * time.Second,
		queue:   make(chan job, queueSize),
	}
}

// Start launches the workers. They exit once Stop has drained the queue.
func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for j := range d.queue {
				d.deliver(j)
			}
		}()
	}
}

// Stop rejects new jobs and waits for queued ones to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// NotifyClans queues msg for the rosters of tags.
func (d *Dispatcher) NotifyClans(_ context.Context, tags []string, msg Message) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.logger.Warn("notification after shutdown dropped", "clans", tags, "title", msg.Title)
		return
	}
	select {
	case d.queue <- job{tags: tags, msg: msg}:
	default:
		d.logger.Warn("notification queue full, dropping", "clans", tags, "title", msg.Title)
	}
}

func (d *Dispatcher) deliver(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	var users []string
	for _, tag := range j.tags {
		c, err := d.clans.GetClan(ctx, tag)
		if err != nil {
			d.logger.Warn("notify roster lookup failed", "clan", tag, "err", err)
			continue
		}
		users = append(users, c.Roster()...)
	}
	if len(users) == 0 {
		return
	}

	tokens, err := d.dir.PushTokens(ctx, users)
	if err != nil {
		d.logger.Error("push token lookup failed", "clans", j.tags, "err", err)
		return
	}
	if len(tokens) == 0 {
		return
	}
	if err := d.sender.Send(ctx, Notification{Tokens: tokens, Message: j.msg}); err != nil {
		d.logger.Error("push send failed", "clans", j.tags, "title", j.msg.Title, "err", err)
	}
}
