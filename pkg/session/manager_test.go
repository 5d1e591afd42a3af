package session_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/BreatheLabs/stillpoint/pkg/clock"
	"github.com/BreatheLabs/stillpoint/pkg/detector"
	"github.com/BreatheLabs/stillpoint/pkg/notification"
	"github.com/BreatheLabs/stillpoint/pkg/session"
	"github.com/BreatheLabs/stillpoint/pkg/throttle"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubDetector struct {
	mu      sync.Mutex
	verdict detector.Verdict
	err     error
	texts   []string
}

func (d *stubDetector) Evaluate(_ context.Context, text string) (detector.Verdict, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.texts = append(d.texts, text)
	return d.verdict, d.err
}

func (d *stubDetector) evaluated() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.texts))
	copy(out, d.texts)
	return out
}

type panicDetector struct{}

func (panicDetector) Evaluate(context.Context, string) (detector.Verdict, error) {
	panic("detector exploded")
}

type captureSink struct {
	mu       sync.Mutex
	err      error
	sessions []string
	messages []string
}

func (s *captureSink) Send(_ context.Context, sessionID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append(s.sessions, sessionID)
	s.messages = append(s.messages, message)
	return s.err
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type engine struct {
	start time.Time
	clk   *clock.Fake
	det   *stubDetector
	sink  *captureSink
	thr   *throttle.Throttle
	mgr   *session.Manager
}

func newEngine(t *testing.T, positive bool) *engine {
	t.Helper()
	e := &engine{
		start: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC),
		det:   &stubDetector{verdict: detector.Verdict{Positive: positive, Confidence: 0.8}},
		sink:  &captureSink{},
		thr:   throttle.New(5 * time.Minute),
	}
	e.clk = clock.NewFake(e.start)
	e.mgr = session.NewManager(
		session.Config{SilenceWindow: 30 * time.Second},
		e.clk, e.det, e.thr, notification.NewTemplateComposer(), e.sink, quietLogger(),
	)
	t.Cleanup(e.mgr.Stop)
	return e
}

func TestNoEvaluationBeforeSilenceWindow(t *testing.T) {
	e := newEngine(t, false)

	e.mgr.OnFragment("session-a", "first thought", true)
	e.clk.Advance(10 * time.Second)
	e.mgr.OnFragment("session-a", "second thought", true)
	e.clk.Advance(10 * time.Second)
	e.mgr.OnFragment("session-a", "third thought", true)
	e.clk.Advance(29 * time.Second)

	assert.Empty(t, e.det.evaluated(), "gaps below the silence window must not trigger evaluation")
}

func TestSingleFragmentEvaluatedAfterSilence(t *testing.T) {
	e := newEngine(t, false)

	e.mgr.OnFragment("session-a", "just one thought", true)
	e.clk.Advance(30 * time.Second)

	require.Equal(t, []string{"just one thought"}, e.det.evaluated())
}

func TestReArmingExtendsEvaluationBoundary(t *testing.T) {
	e := newEngine(t, false)

	e.mgr.OnFragment("session-a", "I keep thinking about it", true)
	e.clk.Advance(5 * time.Second)
	e.mgr.OnFragment("session-a", "why did I say that", true)

	// 25s after the second fragment: only 30s since the first. The re-arm
	// must have pushed the boundary to t=35s.
	e.clk.Advance(25 * time.Second)
	require.Empty(t, e.det.evaluated())

	e.clk.Advance(5 * time.Second)
	require.Equal(t, []string{"I keep thinking about it why did I say that"}, e.det.evaluated())
}

func TestPositiveEpisodeDispatchesOneNudge(t *testing.T) {
	e := newEngine(t, true)

	e.mgr.OnFragment("session-a", "I keep thinking about it", true)
	e.clk.Advance(5 * time.Second)
	e.mgr.OnFragment("session-a", "why did I say that", true)
	e.clk.Advance(30 * time.Second)

	require.Equal(t, 1, e.sink.count())
	assert.Equal(t, []string{"session-a"}, e.sink.sessions)
	assert.NotEmpty(t, e.sink.messages[0])

	last, ok := e.thr.Last("session-a")
	require.True(t, ok)
	assert.Equal(t, e.start.Add(35*time.Second), last)
}

func TestThrottleSuppressesCloseEpisodes(t *testing.T) {
	e := newEngine(t, true)

	e.mgr.OnFragment("session-a", "first episode", true)
	e.clk.Advance(30 * time.Second)
	require.Equal(t, 1, e.sink.count())

	e.mgr.OnFragment("session-a", "second episode", true)
	e.clk.Advance(30 * time.Second)

	// Both episodes were evaluated; only the first nudged.
	assert.Len(t, e.det.evaluated(), 2)
	assert.Equal(t, 1, e.sink.count())
}

func TestPriorNudgeSuppressesDispatchButNotEvaluation(t *testing.T) {
	e := newEngine(t, true)

	// A nudge from an earlier episode, 2s before this one starts.
	require.True(t, e.thr.TryConsume("session-a", e.start.Add(-2*time.Second)))

	e.mgr.OnFragment("session-a", "I keep thinking about it", true)
	e.clk.Advance(5 * time.Second)
	e.mgr.OnFragment("session-a", "why did I say that", true)
	e.clk.Advance(30 * time.Second)

	assert.Equal(t, []string{"I keep thinking about it why did I say that"}, e.det.evaluated())
	assert.Zero(t, e.sink.count())

	// The episode still closed: a fresh fragment opens a new one.
	e.mgr.OnFragment("session-a", "later thought", true)
	e.clk.Advance(30 * time.Second)
	assert.Equal(t, "later thought", e.det.evaluated()[1])
}

func TestBlankFragmentDoesNotExtendSilence(t *testing.T) {
	e := newEngine(t, false)

	e.mgr.OnFragment("session-a", "real thought", true)
	e.clk.Advance(10 * time.Second)
	e.mgr.OnFragment("session-a", "   ", true)
	e.clk.Advance(20 * time.Second)

	// Evaluation at t=30s: the blank fragment neither moved the deadline nor
	// appears in the text.
	require.Equal(t, []string{"real thought"}, e.det.evaluated())
}

func TestSessionsDoNotInterfere(t *testing.T) {
	e := newEngine(t, false)

	e.mgr.OnFragment("session-a", "thought from a", true)
	e.clk.Advance(5 * time.Second)
	e.mgr.OnFragment("session-b", "thought from b", true)
	e.clk.Advance(40 * time.Second)

	evaluated := e.det.evaluated()
	require.Len(t, evaluated, 2)
	assert.Contains(t, evaluated, "thought from a")
	assert.Contains(t, evaluated, "thought from b")
}

func TestDetectorErrorFailsSafe(t *testing.T) {
	e := newEngine(t, true)
	e.det.err = assert.AnError

	e.mgr.OnFragment("session-a", "some looping thought", true)
	e.clk.Advance(30 * time.Second)

	assert.Zero(t, e.sink.count(), "uncertain detector state must never nudge")

	// The session's state machine survived: the next episode evaluates.
	e.det.err = nil
	e.mgr.OnFragment("session-a", "next thought", true)
	e.clk.Advance(30 * time.Second)
	assert.Len(t, e.det.evaluated(), 2)
}

func TestDetectorPanicFailsSafe(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC))
	sink := &captureSink{}
	mgr := session.NewManager(
		session.Config{SilenceWindow: 30 * time.Second},
		clk, panicDetector{}, throttle.New(5*time.Minute),
		notification.NewTemplateComposer(), sink, quietLogger(),
	)
	defer mgr.Stop()

	mgr.OnFragment("session-a", "some looping thought", true)
	clk.Advance(30 * time.Second)

	assert.Zero(t, sink.count())

	// Still alive afterwards.
	mgr.OnFragment("session-a", "next thought", true)
	clk.Advance(30 * time.Second)
	assert.Zero(t, sink.count())
}

func TestDeliveryFailureStillStampsThrottle(t *testing.T) {
	e := newEngine(t, true)
	e.sink.err = assert.AnError

	e.mgr.OnFragment("session-a", "first episode", true)
	e.clk.Advance(30 * time.Second)
	require.Equal(t, 1, e.sink.count())

	// The failed delivery consumed the throttle slot: a quick second episode
	// does not retry against a saturated sink.
	e.mgr.OnFragment("session-a", "second episode", true)
	e.clk.Advance(30 * time.Second)
	assert.Equal(t, 1, e.sink.count())
}

func TestFragmentDuringEvaluationOpensNewEpisode(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	det := &blockingDetector{entered: entered, release: release}

	start := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	clk := clock.NewFake(start)
	sink := &captureSink{}
	mgr := session.NewManager(
		session.Config{SilenceWindow: 30 * time.Second},
		clk, det, throttle.New(5*time.Minute),
		notification.NewTemplateComposer(), sink, quietLogger(),
	)
	defer mgr.Stop()

	mgr.OnFragment("session-a", "episode one", true)

	done := make(chan struct{})
	go func() {
		defer close(done)
		clk.Advance(30 * time.Second)
	}()
	<-entered

	// Evaluation for session-a is in flight. Ingestion stays open: the same
	// session starts a new episode, other sessions are untouched.
	mgr.OnFragment("session-a", "episode two begins", true)
	mgr.OnFragment("session-b", "unrelated speech", true)

	stats := mgr.Stats()
	assert.Equal(t, 2, stats.ActiveSessions)
	assert.Equal(t, 2, stats.Accumulating)

	close(release)
	<-done

	// The new episode's timer was re-armed during evaluation; it closes on
	// its own silence boundary.
	clk.Advance(30 * time.Second)
	assert.Contains(t, det.evaluated(), "episode two begins")
}

type blockingDetector struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}

	mu    sync.Mutex
	texts []string
}

func (d *blockingDetector) Evaluate(_ context.Context, text string) (detector.Verdict, error) {
	d.once.Do(func() {
		close(d.entered)
		<-d.release
	})
	d.mu.Lock()
	defer d.mu.Unlock()
	d.texts = append(d.texts, text)
	return detector.Verdict{}, nil
}

func (d *blockingDetector) evaluated() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.texts))
	copy(out, d.texts)
	return out
}

func TestReaperRemovesIdleSessionsAndThrottleRows(t *testing.T) {
	e := newEngine(t, true)

	e.mgr.OnFragment("session-a", "a short episode", true)
	e.clk.Advance(30 * time.Second)
	require.Equal(t, 1, e.sink.count())
	_, ok := e.thr.Last("session-a")
	require.True(t, ok)

	// Idle retention is 30m; the sweep at the 40m mark reclaims the record.
	e.clk.Advance(40 * time.Minute)

	assert.Zero(t, e.mgr.Stats().ActiveSessions)
	_, ok = e.thr.Last("session-a")
	assert.False(t, ok, "throttle rows die with their session record")
}

func TestReaperKeepsRecentlyActiveSessions(t *testing.T) {
	e := newEngine(t, false)

	e.mgr.OnFragment("session-a", "hello", true)
	e.clk.Advance(30 * time.Second)

	// 20 minutes idle: two sweeps passed, retention not reached.
	e.clk.Advance(20 * time.Minute)
	assert.Equal(t, 1, e.mgr.Stats().ActiveSessions)
}

func TestSessionRevivesAfterReap(t *testing.T) {
	e := newEngine(t, false)

	e.mgr.OnFragment("session-a", "first life", true)
	e.clk.Advance(30 * time.Second)
	e.clk.Advance(40 * time.Minute)
	require.Zero(t, e.mgr.Stats().ActiveSessions)

	e.mgr.OnFragment("session-a", "second life", true)
	e.clk.Advance(30 * time.Second)

	evaluated := e.det.evaluated()
	assert.Equal(t, "second life", evaluated[len(evaluated)-1])
}

func TestStopCancelsTimersWithoutFiring(t *testing.T) {
	e := newEngine(t, true)

	e.mgr.OnFragment("session-a", "mid episode speech", true)
	e.mgr.Stop()
	e.clk.Advance(time.Hour)

	assert.Empty(t, e.det.evaluated(), "shutdown must not run evaluations")
	assert.Zero(t, e.sink.count())
	assert.Zero(t, e.clk.Pending(), "all timers cancelled on stop")
}

func TestFragmentsAfterStopAreDropped(t *testing.T) {
	e := newEngine(t, true)

	e.mgr.Stop()
	e.mgr.OnFragment("session-a", "too late", true)
	e.clk.Advance(time.Hour)

	assert.Zero(t, e.mgr.Stats().ActiveSessions)
	assert.Empty(t, e.det.evaluated())
}

func TestStatsReflectsSessionStates(t *testing.T) {
	e := newEngine(t, false)

	e.mgr.OnFragment("session-a", "still talking", true)
	e.mgr.OnFragment("session-b", "done talking", true)
	e.clk.Advance(10 * time.Second)
	e.mgr.OnFragment("session-a", "more talking", true)
	e.clk.Advance(25 * time.Second)

	// session-b went quiet at t=0 and closed at t=30; session-a re-armed at
	// t=10 and is still accumulating at t=35.
	stats := e.mgr.Stats()
	assert.Equal(t, 2, stats.ActiveSessions)
	assert.Equal(t, 1, stats.Accumulating)
}
