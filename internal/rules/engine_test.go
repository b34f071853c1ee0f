package rules

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests drive the engine's notion of now.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestEngine() (*Engine, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	e := NewEngine(nil)
	e.now = clock.now
	return e, clock
}

func report(e *Engine, room, user, tag string) Incident {
	return e.Process(room, user, Incident{By: user, Tag: tag, TS: time.Now().UnixMilli()})
}

func TestProcess_DefaultLevels(t *testing.T) {
	e, _ := newTestEngine()

	cases := map[string]Level{
		"A7":  LevelS2,
		"A8":  LevelS1,
		"A9":  LevelS2,
		"A11": LevelS1,
	}
	for tag, want := range cases {
		got := report(e, "r1", "cand", tag)
		assert.Equal(t, want, got.Level, "tag %s", tag)
		assert.Equal(t, 1, got.Escalated, "tag %s", tag)
		assert.Equal(t, StatusActive, got.SessionStatus, "tag %s", tag)
	}
}

func TestProcess_ClientLevelIgnored(t *testing.T) {
	e, _ := newTestEngine()

	got := e.Process("r1", "cand", Incident{By: "proctor", Tag: "A8", Level: LevelS4, TS: 1})
	assert.Equal(t, LevelS1, got.Level)
}

func TestProcess_UnknownTagPassesThrough(t *testing.T) {
	e, _ := newTestEngine()

	got := e.Process("r1", "cand", Incident{By: "proctor", Tag: "Z9", Note: "??", TS: 42})
	assert.Equal(t, "Z9", got.Tag)
	assert.Empty(t, got.Level)
	assert.Equal(t, 0, got.Escalated)
	assert.Equal(t, StatusActive, got.SessionStatus)

	// No alert state is created for it.
	sum, ok := e.Summary("r1", "cand")
	require.True(t, ok)
	assert.Equal(t, 0, sum.AlertsCount)
}

func TestProcess_A3Ladder(t *testing.T) {
	e, _ := newTestEngine()

	want := []struct {
		level  Level
		status string
	}{
		{LevelS1, StatusActive},
		{LevelS1, StatusActive},
		{LevelS2, StatusActive},
		{LevelS2, StatusActive},
		{LevelS3, StatusPaused},
	}

	for i, w := range want {
		got := report(e, "r1", "cand", "A3")
		assert.Equal(t, w.level, got.Level, "event %d", i+1)
		assert.Equal(t, i+1, got.Escalated, "event %d", i+1)
		assert.Equal(t, w.status, got.SessionStatus, "event %d", i+1)
	}

	// Count 6 stays S3 and the session stays paused.
	got := report(e, "r1", "cand", "A3")
	assert.Equal(t, LevelS3, got.Level)
	assert.Equal(t, StatusPaused, got.SessionStatus)
}

func TestProcess_A2Repeat(t *testing.T) {
	e, _ := newTestEngine()

	first := report(e, "r1", "cand", "A2")
	assert.Equal(t, LevelS2, first.Level)

	second := report(e, "r1", "cand", "A2")
	assert.Equal(t, LevelS3, second.Level)
	assert.Equal(t, 2, second.Escalated)
	assert.Equal(t, StatusActive, second.SessionStatus)
}

func TestProcess_A1DurationBoundary(t *testing.T) {
	e, clock := newTestEngine()

	first := report(e, "r1", "cand", "A1")
	assert.Equal(t, LevelS1, first.Level)
	assert.Equal(t, 0, first.Escalated)

	// Exactly at the threshold: no breach, the rule is strictly greater-than.
	clock.advance(30 * time.Second)
	at := report(e, "r1", "cand", "A1")
	assert.Equal(t, LevelS1, at.Level)

	// Just past it: S2 and the breach is counted.
	clock.advance(time.Millisecond)
	past := report(e, "r1", "cand", "A1")
	assert.Equal(t, LevelS2, past.Level)
	assert.Equal(t, 1, past.Escalated)
}

func TestProcess_A1FirstSeenResetsAfterBreach(t *testing.T) {
	e, clock := newTestEngine()

	report(e, "r1", "cand", "A1")
	clock.advance(31 * time.Second)
	breach := report(e, "r1", "cand", "A1")
	require.Equal(t, LevelS2, breach.Level)

	// A fresh stretch starts; an event 10s later is back to S1.
	clock.advance(16 * time.Minute) // also clears the frequency window
	report(e, "r1", "cand", "A1")
	clock.advance(10 * time.Second)
	got := report(e, "r1", "cand", "A1")
	assert.Equal(t, LevelS1, got.Level)
}

func TestProcess_A1FrequencyWindow(t *testing.T) {
	e, clock := newTestEngine()

	// Three quick events inside 15 minutes force S2 even without a
	// 30-second stretch.
	report(e, "r1", "cand", "A1")
	clock.advance(5 * time.Second)
	report(e, "r1", "cand", "A1")
	clock.advance(5 * time.Second)
	got := report(e, "r1", "cand", "A1")
	assert.Equal(t, LevelS2, got.Level)

	// Once the window slides past them, the rule relaxes again.
	clock.advance(20 * time.Minute)
	report(e, "r1", "cand", "A1")
	clock.advance(time.Second)
	got = report(e, "r1", "cand", "A1")
	assert.Equal(t, LevelS1, got.Level)
}

func TestProcess_A4BreachPauses(t *testing.T) {
	e, clock := newTestEngine()

	first := report(e, "r1", "cand", "A4")
	assert.Equal(t, LevelS2, first.Level)
	assert.Equal(t, StatusActive, first.SessionStatus)

	clock.advance(61 * time.Second)
	breach := report(e, "r1", "cand", "A4")
	assert.Equal(t, LevelS3, breach.Level)
	assert.Equal(t, StatusPaused, breach.SessionStatus)
}

func TestProcess_A5RepeatPauses(t *testing.T) {
	e, _ := newTestEngine()

	first := report(e, "r1", "cand", "A5")
	assert.Equal(t, LevelS2, first.Level)

	second := report(e, "r1", "cand", "A5")
	assert.Equal(t, LevelS3, second.Level)
	assert.Equal(t, StatusPaused, second.SessionStatus)
}

func TestProcess_A6BreachStaysActive(t *testing.T) {
	e, clock := newTestEngine()

	report(e, "r1", "cand", "A6")
	clock.advance(31 * time.Second)
	breach := report(e, "r1", "cand", "A6")
	assert.Equal(t, LevelS3, breach.Level)
	assert.Equal(t, StatusActive, breach.SessionStatus)
}

func TestProcess_A10ImmediatePause(t *testing.T) {
	e, _ := newTestEngine()

	got := report(e, "r1", "cand", "A10")
	assert.Equal(t, LevelS3, got.Level)
	assert.Equal(t, StatusPaused, got.SessionStatus)
}

func TestProcess_StatusMonotone(t *testing.T) {
	e, _ := newTestEngine()

	report(e, "r1", "cand", "A10")
	assert.Equal(t, StatusPaused, e.SessionStatus("r1", "cand"))

	// Later non-pausing incidents never lower the status.
	got := report(e, "r1", "cand", "A8")
	assert.Equal(t, StatusPaused, got.SessionStatus)
}

func TestProcess_SessionsAreIsolated(t *testing.T) {
	e, _ := newTestEngine()

	for i := 0; i < 5; i++ {
		report(e, "r1", "cand-a", "A3")
	}
	got := report(e, "r1", "cand-b", "A3")
	assert.Equal(t, LevelS1, got.Level)
	assert.Equal(t, 1, got.Escalated)

	// Same user in a different room is a different session too.
	got = report(e, "r2", "cand-a", "A3")
	assert.Equal(t, LevelS1, got.Level)
}

func TestSummary(t *testing.T) {
	e, clock := newTestEngine()

	_, ok := e.Summary("r1", "cand")
	assert.False(t, ok)

	report(e, "r1", "cand", "A3")
	report(e, "r1", "cand", "A3")
	report(e, "r1", "cand", "A8")

	sum, ok := e.Summary("r1", "cand")
	require.True(t, ok)
	assert.Equal(t, "r1:cand", sum.SessionID)
	assert.Equal(t, StatusActive, sum.Status)
	assert.Equal(t, 2, sum.AlertsCount)
	assert.Equal(t, 2, sum.Alerts["A3"].Count)
	assert.Equal(t, clock.t.UnixMilli(), sum.Alerts["A8"].Last)
}

func TestDropRoom(t *testing.T) {
	e, _ := newTestEngine()

	report(e, "r1", "cand-a", "A3")
	report(e, "r1", "cand-b", "A3")
	report(e, "r2", "cand-c", "A3")

	e.DropRoom("r1")

	_, ok := e.Summary("r1", "cand-a")
	assert.False(t, ok)
	_, ok = e.Summary("r1", "cand-b")
	assert.False(t, ok)
	_, ok = e.Summary("r2", "cand-c")
	assert.True(t, ok)
}

func TestProcess_RepeatedIncidentsAccumulate(t *testing.T) {
	e, _ := newTestEngine()

	var last Incident
	for i := 1; i <= 3; i++ {
		last = e.Process("r1", "cand", Incident{By: "proctor", Tag: "A7", Note: fmt.Sprintf("seen %d", i), TS: int64(i)})
		assert.Equal(t, i, last.Escalated)
	}
	assert.Equal(t, LevelS2, last.Level)
}
