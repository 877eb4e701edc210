// Package experience provides the fire-and-forget recording path between
// the rest of the system and the experience store. Callers hand records to
// the Recorder and move on; a background writer persists them and notifies
// the analysis queue.
package experience

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/jordanhubbard/skein/internal/metrics"
	"github.com/jordanhubbard/skein/internal/queue"
	"github.com/jordanhubbard/skein/internal/store"
	"github.com/jordanhubbard/skein/pkg/models"
)

// Config tunes the recorder.
type Config struct {
	// BufferSize caps how many records can wait for the background
	// writer. Records submitted while the buffer is full are dropped
	// with a warning rather than blocking the caller.
	BufferSize int
	// SystemVersion is stamped onto every record's metadata.
	SystemVersion string
	// WriteTimeout caps each store write and queue notification.
	WriteTimeout time.Duration
}

// DefaultConfig returns the default recorder tuning.
func DefaultConfig() Config {
	return Config{
		BufferSize:   256,
		WriteTimeout: 10 * time.Second,
	}
}

// Recorder accepts experience records asynchronously. After each
// successful store write it enqueues the new record's id on the analysis
// queue, so every persisted experience is seen by the insight engine at
// least once.
type Recorder struct {
	store   store.ExperienceStore
	queue   queue.AnalysisQueue
	cfg     Config
	metrics *metrics.Metrics

	ch      chan *models.Experience
	done    chan struct{}
	drained chan struct{}
	closed  sync.Once
}

// NewRecorder starts the background writer and returns the recorder.
// The analysis queue may be nil when no learning loop is running.
func NewRecorder(st store.ExperienceStore, aq queue.AnalysisQueue, cfg Config) *Recorder {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}
	r := &Recorder{
		store:   st,
		queue:   aq,
		cfg:     cfg,
		metrics: metrics.NewMetrics(),
		ch:      make(chan *models.Experience, cfg.BufferSize),
		done:    make(chan struct{}),
		drained: make(chan struct{}),
	}
	go r.writeLoop()
	return r
}

// Record submits an experience for asynchronous persistence. It never
// blocks: when the buffer is full the record is dropped and counted.
// Returns false when the record was dropped or the recorder is closed.
func (r *Recorder) Record(exp *models.Experience) bool {
	if exp == nil {
		return false
	}
	if exp.Metadata.SystemVersion == "" {
		exp.Metadata.SystemVersion = r.cfg.SystemVersion
	}

	select {
	case <-r.done:
		return false
	default:
	}

	select {
	case r.ch <- exp:
		return true
	default:
		r.metrics.ExperiencesDropped.Inc()
		log.Printf("[Experience] buffer full, dropping %s record", exp.Type)
		return false
	}
}

// Close stops accepting new records and blocks until everything already
// buffered has been written.
func (r *Recorder) Close() {
	r.closed.Do(func() { close(r.done) })
	<-r.drained
}

func (r *Recorder) writeLoop() {
	defer close(r.drained)
	for {
		select {
		case exp := <-r.ch:
			r.persist(exp)
		case <-r.done:
			// Drain what made it into the buffer before shutdown.
			for {
				select {
				case exp := <-r.ch:
					r.persist(exp)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) persist(exp *models.Experience) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.WriteTimeout)
	defer cancel()

	id, err := r.store.LogExperience(ctx, exp)
	if err != nil {
		log.Printf("[Experience] failed to log %s record: %v", exp.Type, err)
		return
	}
	r.metrics.ExperiencesLogged.WithLabelValues(string(exp.Type), string(exp.Outcome.Status)).Inc()

	if r.queue == nil {
		return
	}
	// Enqueue after the write so the id always refers to a persisted
	// record. A failed enqueue leaves the record in the store; sweeps
	// can still pick it up, so this is at-least-once, not exactly-once.
	if err := r.queue.Enqueue(ctx, id); err != nil {
		log.Printf("[Experience] failed to enqueue %s for analysis: %v", id, err)
	}
}

// OutcomeForError maps an operation result to an outcome status.
func OutcomeForError(err error) models.OutcomeStatus {
	switch {
	case err == nil:
		return models.OutcomeSuccess
	case errors.Is(err, context.DeadlineExceeded):
		return models.OutcomeTimedOut
	default:
		return models.OutcomeFailure
	}
}
