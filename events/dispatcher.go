package events

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// DispatcherConfig tunes the worker pool.
type DispatcherConfig struct {
	Workers        int
	Buffer         int
	PublishTimeout time.Duration
	HandoffTimeout time.Duration
}

// Dispatcher hands events to a pool of workers so callers never wait on the
// queue. When the buffer stays full past the handoff timeout the event is
// published inline instead of being dropped.
type Dispatcher struct {
	cfg    DispatcherConfig
	pub    Publisher
	logger *log.Logger

	mu     sync.RWMutex
	jobs   chan Event
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher starts the workers.
func NewDispatcher(pub Publisher, cfg DispatcherConfig, logger *log.Logger) *Dispatcher {
	if pub == nil {
		panic("publisher is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Buffer < 0 {
		cfg.Buffer = 0
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 30 * time.Second
	}

	d := &Dispatcher{cfg: cfg, pub: pub, logger: logger, jobs: make(chan Event, cfg.Buffer)}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	logger.Infof("event dispatcher started, workers: %d, buffer: %d, timeout: %v, handoff: %v",
		cfg.Workers, cfg.Buffer, cfg.PublishTimeout, cfg.HandoffTimeout)
	return d
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for ev := range d.jobs {
		d.send(ev, id)
	}
}

func (d *Dispatcher) send(ev Event, worker int) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.PublishTimeout)
	err := d.pub.Publish(ctx, ev)
	cancel()
	if err != nil {
		d.logger.WithFields(log.Fields{
			"event":  ev.Type,
			"task":   ev.TaskID,
			"worker": worker,
		}).Errorf("event publish failed: %v", err)
	}
}

// Publish queues ev. It never fails: delivery errors are logged.
func (d *Dispatcher) Publish(_ context.Context, ev Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.send(ev, -1)
		return nil
	}

	select {
	case d.jobs <- ev:
		return nil
	default:
	}

	if d.cfg.HandoffTimeout > 0 {
		timer := time.NewTimer(d.cfg.HandoffTimeout)
		defer timer.Stop()
		select {
		case d.jobs <- ev:
			return nil
		case <-timer.C:
		}
	}

	d.logger.Warn("event buffer saturated; publishing inline")
	d.send(ev, -1)
	return nil
}

// Close stops accepting events and waits for queued ones to be delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()
	d.wg.Wait()
}
