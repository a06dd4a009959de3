package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/reflexcoder/autoagent/internal/log"
	"github.com/reflexcoder/autoagent/internal/models"
)

type recordKind int

const (
	recordEpisode recordKind = iota + 1
	recordDecision
	recordEarning
	recordError
	recordFinish
)

type recordEvent struct {
	kind     recordKind
	episode  *models.EpisodeRecord
	decision *models.DecisionRecord
	earning  *models.EarningRecord
	err      error
}

// Recorder writes session records to the store off the hot path.
// Episode and decision writes are enqueued on a buffered channel and
// drained by a single goroutine, so the training loop never blocks on
// SQLite.
type Recorder struct {
	store   *Store
	session models.SessionRecord

	events chan recordEvent
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup

	hasError bool
}

func NewRecorder(ctx context.Context, store *Store, session models.SessionRecord) (*Recorder, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if session.Status == "" {
		session.Status = StatusRunning
	}
	if err := store.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	r := &Recorder{
		store:   store,
		session: session,
		events:  make(chan recordEvent, 512),
		done:    make(chan struct{}),
	}

	r.wg.Add(1)
	go r.loop()
	return r, nil
}

func (r *Recorder) SessionID() string {
	return r.session.ID
}

func (r *Recorder) loop() {
	defer r.wg.Done()
	logger := log.WithComponent("recorder")
	ctx := context.Background()
	for ev := range r.events {
		switch ev.kind {
		case recordEpisode:
			if ev.episode == nil {
				continue
			}
			if err := r.store.SaveEpisode(ctx, *ev.episode); err != nil {
				logger.Error().Err(err).Int("episode", ev.episode.Episode).Msg("save episode")
			}
		case recordDecision:
			if ev.decision == nil {
				continue
			}
			if err := r.store.SaveDecision(ctx, *ev.decision); err != nil {
				logger.Error().Err(err).Msg("save decision")
			}
		case recordEarning:
			if ev.earning == nil {
				continue
			}
			if err := r.store.SaveEarning(ctx, *ev.earning); err != nil {
				logger.Error().Err(err).Msg("save earning")
			}
		case recordError:
			r.hasError = true
			_ = r.store.UpdateSessionStatus(ctx, r.session.ID, StatusError)
		case recordFinish:
			status := StatusDone
			if ev.err != nil || r.hasError {
				status = StatusError
			}
			_ = r.store.UpdateSessionStatus(ctx, r.session.ID, status)
		}
	}
}

// enqueue never blocks: a full buffer drops the event, losing a record
// beats stalling the training loop.
func (r *Recorder) enqueue(ev recordEvent) {
	select {
	case <-r.done:
		return
	default:
	}
	select {
	case r.events <- ev:
	default:
		logger := log.WithComponent("recorder")
		logger.Warn().Msg("event buffer full, dropping record")
	}
}

func (r *Recorder) RecordEpisode(ep models.EpisodeRecord) {
	ep.SessionID = r.session.ID
	r.enqueue(recordEvent{kind: recordEpisode, episode: &ep})
}

func (r *Recorder) RecordDecision(d models.DecisionRecord) {
	d.SessionID = r.session.ID
	r.enqueue(recordEvent{kind: recordDecision, decision: &d})
}

func (r *Recorder) RecordEarning(e models.EarningRecord) {
	e.SessionID = r.session.ID
	r.enqueue(recordEvent{kind: recordEarning, earning: &e})
}

// Finish marks the session done (or errored) and shuts the recorder down.
// Unlike data records, the terminal status marker is never dropped.
func (r *Recorder) Finish(err error) {
	if err != nil {
		r.send(recordEvent{kind: recordError, err: err})
	}
	r.send(recordEvent{kind: recordFinish, err: err})
	r.Close()
}

// send blocks until the drain loop accepts the event.
func (r *Recorder) send(ev recordEvent) {
	select {
	case <-r.done:
	case r.events <- ev:
	}
}

func (r *Recorder) Close() {
	r.once.Do(func() {
		close(r.done)
		close(r.events)
		r.wg.Wait()
	})
}
