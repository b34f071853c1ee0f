package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/observer/proctord/internal/room"
	"github.com/observer/proctord/internal/rules"
)

var (
	// ErrAlreadyRunning is returned by Start when the candidate already has
	// an analysis task.
	ErrAlreadyRunning = errors.New("analysis: already running")
	// ErrNotRunning is returned by Stop when the candidate has no task.
	ErrNotRunning = errors.New("analysis: not running")
)

const (
	minTick   = 2 * time.Second
	maxTick   = 5 * time.Second
	stopGrace = time.Second
)

// incidentWire is the broadcast form of an engine-processed incident.
type incidentWire struct {
	Type string `json:"type"`
	From string `json:"from"`
	rules.Incident
}

// frameWire is the per-tick delivery to the candidate and the proctor.
type frameWire struct {
	Type string `json:"type"`
	Data Frame  `json:"data"`
}

type task struct {
	roomID      string
	candidateID string
	cancel      context.CancelFunc
	done        chan struct{}
}

// Runner owns one analysis task per candidate. Tasks tick with a random
// delay, deliver frames to the candidate and the proctor, and route frame
// alerts through the rules engine into the room's incident log.
type Runner struct {
	mu       sync.Mutex
	tasks    map[string]*task
	registry *room.Registry
	engine   *rules.Engine
	analyzer *Analyzer
	logger   *slog.Logger

	// Tick bounds, overridable in tests.
	minTick time.Duration
	maxTick time.Duration
}

// NewRunner creates an idle runner.
func NewRunner(registry *room.Registry, engine *rules.Engine, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		tasks:    make(map[string]*task),
		registry: registry,
		engine:   engine,
		analyzer: NewAnalyzer(),
		logger:   logger.With("component", "analysis"),
		minTick:  minTick,
		maxTick:  maxTick,
	}
}

// Start launches the analysis task for a candidate. Returns
// ErrAlreadyRunning when one exists.
func (r *Runner) Start(roomID, candidateID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[candidateID]; ok {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &task{
		roomID:      roomID,
		candidateID: candidateID,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	r.tasks[candidateID] = t

	go r.run(ctx, t)
	r.logger.Info("analysis task started", "room", roomID, "candidateId", candidateID)
	return nil
}

// Stop cancels a candidate's task and waits up to a second for it to drain
// before forcibly removing the record. Returns ErrNotRunning when no task
// exists.
func (r *Runner) Stop(candidateID string) error {
	r.mu.Lock()
	t, ok := r.tasks[candidateID]
	if !ok {
		r.mu.Unlock()
		return ErrNotRunning
	}
	delete(r.tasks, candidateID)
	r.mu.Unlock()

	t.cancel()
	select {
	case <-t.done:
	case <-time.After(stopGrace):
		r.logger.Warn("analysis task did not drain in time", "candidateId", candidateID)
	}
	r.logger.Info("analysis task stopped", "room", t.roomID, "candidateId", candidateID)
	return nil
}

// StopRoom stops every task belonging to a room. Used by the room-destroy
// hook.
func (r *Runner) StopRoom(roomID string) {
	r.mu.Lock()
	var ids []string
	for id, t := range r.tasks {
		if t.roomID == roomID {
			ids = append(ids, id)
		}
	}
	r.mu.Unlock()

	for _, id := range ids {
		_ = r.Stop(id)
	}
}

// StopAll stops every task. Used during shutdown.
func (r *Runner) StopAll() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.tasks))
	for id := range r.tasks {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		_ = r.Stop(id)
	}
}

// Running reports whether a candidate has a live task.
func (r *Runner) Running(candidateID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[candidateID]
	return ok
}

func (r *Runner) run(ctx context.Context, t *task) {
	defer close(t.done)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	timer := time.NewTimer(r.tickDelay(rng))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if !r.tick(t) {
			// Room or candidate is gone; remove our own record.
			r.mu.Lock()
			if cur, ok := r.tasks[t.candidateID]; ok && cur == t {
				delete(r.tasks, t.candidateID)
			}
			r.mu.Unlock()
			return
		}

		timer.Reset(r.tickDelay(rng))
	}
}

func (r *Runner) tickDelay(rng *rand.Rand) time.Duration {
	return r.minTick + time.Duration(rng.Int63n(int64(r.maxTick-r.minTick)))
}

// tick emits one frame. Returns false when the task should terminate.
func (r *Runner) tick(t *task) bool {
	rm := r.registry.Get(t.roomID)
	if rm == nil {
		return false
	}

	frame := r.analyzer.AnalyzeFrame(t.roomID, t.candidateID)
	payload, err := json.Marshal(frameWire{Type: "ai_analysis", Data: frame})
	if err != nil {
		r.logger.Error("frame marshal failed", "error", err)
		return true
	}

	if err := rm.SendTo(t.candidateID, payload); err != nil {
		if errors.Is(err, room.ErrNotFound) {
			return false
		}
		r.logger.Warn("frame delivery to candidate failed", "candidateId", t.candidateID, "error", err)
	}
	if proctor, ok := rm.Proctor(); ok {
		if err := rm.SendTo(proctor, payload); err != nil {
			r.logger.Warn("frame delivery to proctor failed", "proctor", proctor, "error", err)
		}
	}

	for _, alert := range frame.Alerts() {
		processed := r.engine.Process(t.roomID, t.candidateID, rules.Incident{
			By:   "ai",
			Tag:  alert.Type,
			Note: alert.Message,
			TS:   frame.Timestamp,
		})
		rm.AppendIncident(processed)

		wire, err := json.Marshal(incidentWire{Type: "incident", From: "ai", Incident: processed})
		if err != nil {
			continue
		}
		rm.Broadcast("ai", wire)
	}
	return true
}
