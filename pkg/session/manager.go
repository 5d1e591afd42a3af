package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/BreatheLabs/stillpoint/pkg/clock"
	"github.com/BreatheLabs/stillpoint/pkg/detector"
	infraPrometheus "github.com/BreatheLabs/stillpoint/pkg/infra/prometheus"
	"github.com/BreatheLabs/stillpoint/pkg/notification"
)

const (
	defaultSilenceWindow   = 30 * time.Second
	defaultCoalesceWindow  = 2 * time.Second
	defaultIdleRetention   = 30 * time.Minute
	defaultSweepInterval   = 10 * time.Minute
	defaultDetectorTimeout = 10 * time.Second
)

// Throttle gates nudge dispatch per session.
type Throttle interface {
	TryConsume(sessionID string, now time.Time) bool
	Forget(sessionID string)
}

// Config carries the engine timings. Zero values fall back to defaults.
type Config struct {
	// SilenceWindow is the quiet period that closes an episode.
	SilenceWindow time.Duration
	// CoalesceWindow merges rapid same-speaker fragments (see Buffer).
	CoalesceWindow time.Duration
	// IdleRetention is how long an idle session record is kept for throttle
	// continuity before the sweep reclaims it. Much longer than SilenceWindow.
	IdleRetention time.Duration
	// SweepInterval is the reaper cadence.
	SweepInterval time.Duration
	// DetectorTimeout bounds a single Evaluate call.
	DetectorTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.SilenceWindow <= 0 {
		c.SilenceWindow = defaultSilenceWindow
	}
	if c.CoalesceWindow <= 0 {
		c.CoalesceWindow = defaultCoalesceWindow
	}
	if c.IdleRetention <= 0 {
		c.IdleRetention = defaultIdleRetention
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaultSweepInterval
	}
	if c.DetectorTimeout <= 0 {
		c.DetectorTimeout = defaultDetectorTimeout
	}
}

// Stats is a point-in-time engine snapshot for the status surface.
type Stats struct {
	ActiveSessions int
	Accumulating   int
}

// Manager owns every session record and runs the silence-triggered
// evaluation loop: fragments in, at most one nudge out per closed episode.
// All methods are safe for concurrent use; sessions never contend with each
// other on the evaluate-and-dispatch path.
type Manager struct {
	cfg      Config
	clk      clock.Clock
	det      detector.Detector
	throttle Throttle
	composer notification.Composer
	sink     notification.Sink
	logger   *logrus.Logger

	// ctx aborts in-flight detector and delivery calls on Stop.
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.RWMutex
	sessions   map[string]*record
	sweepTimer clock.Timer
	stopped    bool
}

func NewManager(
	cfg Config,
	clk clock.Clock,
	det detector.Detector,
	throttle Throttle,
	composer notification.Composer,
	sink notification.Sink,
	logger *logrus.Logger,
) *Manager {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:      cfg,
		clk:      clk,
		det:      det,
		throttle: throttle,
		composer: composer,
		sink:     sink,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*record),
	}
	m.armSweep()
	return m
}

// OnFragment routes one transcript fragment into its session, creating the
// session on first sight. Every accepted fragment re-arms the silence timer,
// so evaluation only ever happens after a contiguous quiet period. Blank
// text is dropped without touching the silence clock.
func (m *Manager) OnFragment(sessionID, text string, isUser bool) {
	if sessionID == "" {
		return
	}
	now := m.clk.Now()

	for {
		rec := m.getOrCreate(sessionID, now)
		if rec == nil {
			return // shutting down
		}

		rec.mu.Lock()
		if rec.reaped {
			// Lost a race with the sweep; the map no longer holds this
			// record. Start over with a fresh one.
			rec.mu.Unlock()
			continue
		}

		deadline, appended := rec.buffer.Append(text, isUser, now)
		if !appended {
			rec.mu.Unlock()
			m.logger.WithField("session_id", sessionID).Debug("ignoring blank fragment")
			return
		}

		rec.lastActivityAt = now
		if rec.timer != nil {
			rec.timer.Stop()
		}
		rec.armedDeadline = deadline
		rec.timer = m.clk.AfterFunc(deadline.Sub(now), func() {
			m.onSilence(rec, deadline)
		})
		rec.state = StateAccumulating
		rec.mu.Unlock()
		return
	}
}

// onSilence runs when a session's silence timer fires. A fire whose deadline
// no longer matches the armed one was superseded by a later re-arm or by
// shutdown and is dropped; timer cancellation alone is never trusted.
func (m *Manager) onSilence(rec *record, deadline time.Time) {
	rec.mu.Lock()
	if rec.state != StateAccumulating || !rec.armedDeadline.Equal(deadline) {
		rec.mu.Unlock()
		infraPrometheus.StaleTimerFiresTotal.Inc()
		m.logger.WithField("session_id", rec.id).Debug("stale silence timer fire")
		return
	}
	if rec.buffer.IsEmpty() {
		rec.state = StateIdle
		rec.timer = nil
		rec.armedDeadline = time.Time{}
		rec.mu.Unlock()
		return
	}

	text := rec.buffer.SnapshotText()
	fragments := rec.buffer.Len()
	span := rec.buffer.LastFragmentAt().Sub(rec.buffer.EpisodeStartedAt())
	rec.buffer.Clear()
	rec.state = StateEvaluating
	rec.timer = nil
	rec.armedDeadline = time.Time{}
	rec.mu.Unlock()

	// Detector and sink run outside the session lock: a slow evaluation must
	// not block this session's (or any other session's) fragment ingestion.
	m.closeEpisode(rec, text, fragments, span)
}

func (m *Manager) closeEpisode(rec *record, text string, fragments int, span time.Duration) {
	log := m.logger.WithFields(logrus.Fields{
		"session_id": rec.id,
		"fragments":  fragments,
	})

	infraPrometheus.EpisodeFragments.Observe(float64(fragments))
	infraPrometheus.EpisodeDurationSeconds.Observe(span.Seconds())

	verdict, err := m.evaluate(text)
	switch {
	case err != nil:
		// Fail safe: never nudge on uncertain detector state.
		infraPrometheus.EvaluationsTotal.WithLabelValues("error").Inc()
		log.WithError(err).Warn("detector failed, treating episode as calm")
	case verdict.Positive:
		infraPrometheus.EvaluationsTotal.WithLabelValues("positive").Inc()
		m.dispatch(rec, verdict, log)
	default:
		infraPrometheus.EvaluationsTotal.WithLabelValues("negative").Inc()
	}

	rec.mu.Lock()
	// A fragment may have arrived mid-evaluation and opened a new episode;
	// only a still-evaluating session returns to idle.
	if rec.state == StateEvaluating {
		rec.state = StateIdle
	}
	rec.mu.Unlock()
}

// evaluate shields the timer-fire path from a misbehaving detector: panics
// and unbounded blocking both surface as plain errors.
func (m *Manager) evaluate(text string) (verdict detector.Verdict, err error) {
	defer func() {
		if r := recover(); r != nil {
			verdict = detector.Verdict{}
			err = fmt.Errorf("detector panic: %v", r)
		}
	}()
	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.DetectorTimeout)
	defer cancel()
	return m.det.Evaluate(ctx, text)
}

func (m *Manager) dispatch(rec *record, verdict detector.Verdict, log *logrus.Entry) {
	if !m.throttle.TryConsume(rec.id, m.clk.Now()) {
		infraPrometheus.NudgesTotal.WithLabelValues("throttled").Inc()
		log.Debug("nudge suppressed by throttle")
		return
	}

	// The throttle stamp above stands even if delivery fails, so a saturated
	// sink is not hammered by back-to-back episodes.
	message := m.composer.Compose(verdict)
	if err := m.sink.Send(m.ctx, rec.id, message); err != nil {
		infraPrometheus.NudgesTotal.WithLabelValues("failed").Inc()
		log.WithError(err).Warn("nudge delivery failed")
		return
	}

	infraPrometheus.NudgesTotal.WithLabelValues("delivered").Inc()
	log.WithField("confidence", verdict.Confidence).Info("nudge delivered")
}

func (m *Manager) getOrCreate(sessionID string, now time.Time) *record {
	m.mu.RLock()
	rec, ok := m.sessions[sessionID]
	stopped := m.stopped
	m.mu.RUnlock()
	if stopped {
		return nil
	}
	if ok {
		return rec
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return nil
	}
	if rec, ok := m.sessions[sessionID]; ok {
		return rec
	}
	rec = &record{
		id:             sessionID,
		state:          StateIdle,
		buffer:         NewBuffer(m.cfg.SilenceWindow, m.cfg.CoalesceWindow),
		createdAt:      now,
		lastActivityAt: now,
	}
	m.sessions[sessionID] = rec
	infraPrometheus.SessionsActive.Set(float64(len(m.sessions)))
	m.logger.WithField("session_id", sessionID).Debug("session created")
	return rec
}

func (m *Manager) armSweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.sweepTimer = m.clk.AfterFunc(m.cfg.SweepInterval, m.sweep)
}

// sweep reclaims session records idle past the retention threshold. Sessions
// with an armed timer or an in-flight evaluation are skipped; their own
// lifecycle resolves them.
func (m *Manager) sweep() {
	cutoff := m.clk.Now().Add(-m.cfg.IdleRetention)

	m.mu.Lock()
	var reaped []string
	for id, rec := range m.sessions {
		rec.mu.Lock()
		expired := rec.state == StateIdle && rec.lastActivityAt.Before(cutoff)
		if expired {
			rec.reaped = true
		}
		rec.mu.Unlock()
		if expired {
			delete(m.sessions, id)
			reaped = append(reaped, id)
		}
	}
	active := len(m.sessions)
	m.mu.Unlock()

	// Throttle rows die with their session record.
	for _, id := range reaped {
		m.throttle.Forget(id)
	}
	if len(reaped) > 0 {
		infraPrometheus.SessionsReapedTotal.Add(float64(len(reaped)))
		infraPrometheus.SessionsActive.Set(float64(active))
		m.logger.WithFields(logrus.Fields{
			"reaped": len(reaped),
			"active": active,
		}).Info("idle sessions reaped")
	}

	m.armSweep()
}

func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{ActiveSessions: len(m.sessions)}
	for _, rec := range m.sessions {
		rec.mu.Lock()
		if rec.state == StateAccumulating {
			stats.Accumulating++
		}
		rec.mu.Unlock()
	}
	return stats
}

// Stop cancels the sweep and every armed silence timer without running their
// fire logic, then aborts in-flight detector and delivery calls. Fragments
// arriving after Stop are dropped. Safe to call more than once.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	if m.sweepTimer != nil {
		m.sweepTimer.Stop()
		m.sweepTimer = nil
	}
	for _, rec := range m.sessions {
		rec.mu.Lock()
		if rec.timer != nil {
			rec.timer.Stop()
			rec.timer = nil
		}
		// A fire already in flight sees the zeroed deadline and drops out.
		rec.armedDeadline = time.Time{}
		if rec.state == StateAccumulating {
			rec.state = StateIdle
		}
		rec.mu.Unlock()
	}
	m.mu.Unlock()

	m.cancel()
	m.logger.Info("session manager stopped")
}
