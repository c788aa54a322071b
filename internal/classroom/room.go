// Package classroom binds a teacher role and a student role to one session.
//
// A Room is an actor: a single goroutine owns the session orchestrator and the
// shared SyncState, and both roles reach it only through request channels.
package classroom

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/example/engclass/internal/session"
)

// ErrClosed is returned once the room's actor has stopped
var ErrClosed = errors.New("classroom: room closed")

const (
	defaultCommandClearDelay = 1500 * time.Millisecond
	defaultFeedbackDelay     = 2 * time.Second
)

// Config holds the deferred task delays
type Config struct {
	CommandClearDelay time.Duration
	FeedbackDelay     time.Duration
}

// Option configures a Room
type Option func(*Room)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(r *Room) { r.logger = l }
}

// WithTimers replaces the wall-clock deferred task factory
func WithTimers(t Timers) Option {
	return func(r *Room) { r.timers = t }
}

// WithClock replaces time.Now for snapshot stamps
func WithClock(now func() time.Time) Option {
	return func(r *Room) { r.now = now }
}

// WithStaleHook is called whenever a superseded deferred task is dropped
func WithStaleHook(f func()) Option {
	return func(r *Room) { r.onStale = f }
}

type request struct {
	mutate bool
	fn     func(ctx context.Context) (any, error)
	reply  chan reply
}

type reply struct {
	value any
	err   error
}

type subscriber struct {
	id int
	ch chan Snapshot
}

// Room is the session actor
type Room struct {
	orch    *session.Orchestrator
	cfg     Config
	logger  *zap.Logger
	timers  Timers
	now     func() time.Time
	onStale func()

	inbox chan request
	fired chan firing
	done  chan struct{}

	// Owned by the actor goroutine
	sync    SyncState
	seq     uint64
	gen     uint64
	slots   map[slot]deferred
	subs    []subscriber
	nextSub int
	itemKey string
}

// NewRoom creates a room around an orchestrator; call Run to start it
func NewRoom(orch *session.Orchestrator, cfg Config, opts ...Option) *Room {
	if cfg.CommandClearDelay <= 0 {
		cfg.CommandClearDelay = defaultCommandClearDelay
	}
	if cfg.FeedbackDelay <= 0 {
		cfg.FeedbackDelay = defaultFeedbackDelay
	}
	r := &Room{
		orch:    orch,
		cfg:     cfg,
		logger:  zap.NewNop(),
		timers:  realTimers{},
		now:     time.Now,
		onStale: func() {},
		inbox:   make(chan request, 64),
		fired:   make(chan firing),
		done:    make(chan struct{}),
		slots:   make(map[slot]deferred),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Teacher returns the teacher role surface
func (r *Room) Teacher() Teacher {
	return Teacher{viewer{r}}
}

// Student returns the student role surface
func (r *Room) Student() Student {
	return Student{viewer{r}}
}

// Run processes requests until ctx is cancelled
func (r *Room) Run(ctx context.Context) {
	defer func() {
		for s := range r.slots {
			r.cancel(s)
		}
		for _, s := range r.subs {
			close(s.ch)
		}
		r.subs = nil
		close(r.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-r.inbox:
			v, err := req.fn(ctx)
			if req.mutate {
				r.afterMutation(ctx)
			}
			req.reply <- reply{value: v, err: err}
		case f := <-r.fired:
			r.handleFiring(ctx, f)
		}
	}
}

// Done is closed when the actor has stopped
func (r *Room) Done() <-chan struct{} {
	return r.done
}

// Subscribe returns a channel receiving a snapshot after every mutation,
// starting with the current one. Slow subscribers miss snapshots rather than
// block the room. The returned func unsubscribes.
func (r *Room) Subscribe(ctx context.Context, buffer int) (<-chan Snapshot, func(), error) {
	if buffer < 1 {
		buffer = 1
	}
	v, err := r.call(ctx, false, func(ctx context.Context) (any, error) {
		s := subscriber{id: r.nextSub, ch: make(chan Snapshot, buffer)}
		r.nextSub++
		r.subs = append(r.subs, s)
		s.ch <- r.snapshot(ctx)
		return s, nil
	})
	if err != nil {
		return nil, nil, err
	}
	sub := v.(subscriber)
	cancel := func() {
		_, _ = r.call(context.Background(), false, func(context.Context) (any, error) {
			for i, s := range r.subs {
				if s.id == sub.id {
					close(s.ch)
					r.subs = append(r.subs[:i], r.subs[i+1:]...)
					break
				}
			}
			return nil, nil
		})
	}
	return sub.ch, cancel, nil
}

func (r *Room) call(ctx context.Context, mutate bool, fn func(ctx context.Context) (any, error)) (any, error) {
	req := request{mutate: mutate, fn: fn, reply: make(chan reply, 1)}
	select {
	case r.inbox <- req:
	case <-r.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case rep := <-req.reply:
		return rep.value, rep.err
	case <-r.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// schedule replaces the slot's pending task with fn after d
func (r *Room) schedule(s slot, d time.Duration, fn func()) {
	r.cancel(s)
	r.gen++
	gen := r.gen
	t := r.timers.AfterFunc(d, func() {
		select {
		case r.fired <- firing{slot: s, gen: gen, fn: fn}:
		case <-r.done:
		}
	})
	r.slots[s] = deferred{gen: gen, timer: t}
}

func (r *Room) cancel(s slot) {
	if d, ok := r.slots[s]; ok {
		d.timer.Stop()
		delete(r.slots, s)
	}
}

// handleFiring runs a deferred task unless it was superseded after its timer fired
func (r *Room) handleFiring(ctx context.Context, f firing) {
	d, ok := r.slots[f.slot]
	if !ok || d.gen != f.gen {
		r.logger.Debug("dropped stale deferred task", zap.String("slot", string(f.slot)), zap.Uint64("gen", f.gen))
		r.onStale()
		return
	}
	delete(r.slots, f.slot)
	f.fn()
	r.afterMutation(ctx)
}

// afterMutation resets per-item overlay state when the item changed and broadcasts
func (r *Room) afterMutation(ctx context.Context) {
	key := ""
	if item, ok := r.orch.CurrentItem(); ok {
		key = item.Key
		r.sync.Overlay.Weapon = item.Weapon
		r.sync.Overlay.WeaponText = item.WeaponText
	} else {
		r.sync.Overlay.Weapon = ""
		r.sync.Overlay.WeaponText = ""
	}
	if key != r.itemKey {
		r.itemKey = key
		r.sync.Overlay.RevealAnswer = false
		if r.sync.Feedback == nil {
			r.sync.StudentAnswer = StudentAnswer{}
		}
	}
	r.broadcast(ctx)
}

func (r *Room) broadcast(ctx context.Context) {
	if len(r.subs) == 0 {
		return
	}
	snap := r.snapshot(ctx)
	for _, s := range r.subs {
		select {
		case s.ch <- snap:
		default:
			r.logger.Debug("subscriber lagging, snapshot dropped", zap.Int("subscriber", s.id))
		}
	}
}

func (r *Room) snapshot(ctx context.Context) Snapshot {
	r.seq++
	snap := Snapshot{
		Seq:   r.seq,
		At:    r.now(),
		Ready: r.orch.Ready(),
		Phase: r.orch.Phase(),
		Sync:  r.sync.clone(),
	}
	if !snap.Ready {
		return snap
	}
	st := r.orch.State()
	snap.SessionID = st.ID
	snap.Mode = st.Mode
	snap.Progress = r.orch.Progress()
	snap.Remediation = r.orch.RemediationProgress()
	if item, ok := r.orch.CurrentItem(); ok {
		snap.Item = &item
		if w, ok := r.orch.Word(item.WordID); ok {
			snap.Word = w
		}
	}
	if snap.Phase == session.PhaseDrill {
		if rs, ok := r.orch.DrillState(); ok {
			snap.Drill = &rs
		}
	}
	if snap.Phase == session.PhaseSummary {
		sum := r.orch.Summary()
		snap.Summary = &sum
	}
	stats, err := r.orch.WordStats(ctx)
	if err != nil {
		r.logger.Warn("failed to get word stats", zap.Error(err))
	}
	snap.Stats = stats
	return snap
}
