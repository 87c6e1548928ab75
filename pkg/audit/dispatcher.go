package audit

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Dispatcher decouples audit writes from the request path. Events are
// queued on a bounded channel and written by a single background worker;
// Submit never blocks and sink failures are logged, not propagated.
type Dispatcher struct {
	logger    Logger
	log       *logrus.Logger
	queue     chan *Event
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	// WriteTimeout bounds each sink write so a stuck sink cannot wedge
	// the worker forever.
	writeTimeout time.Duration
}

// DefaultQueueSize is the default bound on pending audit events.
const DefaultQueueSize = 1024

// NewDispatcher starts a dispatcher draining into the given sink
func NewDispatcher(sink Logger, queueSize int, log *logrus.Logger) *Dispatcher {
	if sink == nil {
		sink = NoopLogger{}
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	d := &Dispatcher{
		logger:       sink,
		log:          log,
		queue:        make(chan *Event, queueSize),
		done:         make(chan struct{}),
		writeTimeout: 5 * time.Second,
	}

	d.wg.Add(1)
	go d.run()

	return d
}

// Submit enqueues an event without blocking. When the queue is full the
// event is dropped with a warning; losing an audit record must never stall
// or fail a request.
func (d *Dispatcher) Submit(event *Event) {
	if event == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	select {
	case d.queue <- event:
	default:
		d.log.WithFields(logrus.Fields{
			"event_type": event.Type,
			"status":     event.Status,
		}).Warn("audit queue full, dropping event")
	}
}

// run drains the queue until Close
func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.queue:
			d.write(event)
		case <-d.done:
			// Drain remaining events before exiting
			for {
				select {
				case event := <-d.queue:
					d.write(event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) write(event *Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.writeTimeout)
	defer cancel()

	if err := d.logger.Log(ctx, event); err != nil {
		d.log.WithError(err).WithFields(logrus.Fields{
			"event_type": event.Type,
			"status":     event.Status,
		}).Warn("audit write failed")
	}
}

// Close drains pending events and stops the worker
func (d *Dispatcher) Close() error {
	d.closeOnce.Do(func() {
		close(d.done)
	})
	d.wg.Wait()
	return d.logger.Close()
}
