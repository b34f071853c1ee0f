package rules

import (
	"log/slog"
	"sync"
	"time"
)

// Escalation thresholds.
const (
	a1Duration   = 30 * time.Second
	a1Window     = 15 * time.Minute
	a1WindowMax  = 3
	a2MinRepeats = 2
	a3TierS2     = 3
	a3TierS3     = 5
	a4Duration   = 60 * time.Second
	a6Duration   = 30 * time.Second
)

// Incident is the wire form of a processed observation. The reporter supplies
// tag, ts, by and optionally a note; the engine stamps level, escalated and
// sessionStatus authoritatively.
type Incident struct {
	RoomID        string `json:"roomId,omitempty"`
	By            string `json:"by"`
	Tag           string `json:"tag"`
	Level         Level  `json:"level,omitempty"`
	Note          string `json:"note,omitempty"`
	TS            int64  `json:"ts"`
	Escalated     int    `json:"escalated"`
	SessionStatus string `json:"sessionStatus,omitempty"`
	UserID        string `json:"userId,omitempty"`
}

// AlertState tracks one code within a session.
type AlertState struct {
	Code          string
	FirstSeen     time.Time
	Count         int
	LastEscalated time.Time
	CooldownUntil time.Time

	// Event times inside the trailing window, pruned on each event.
	// Only maintained for codes with a frequency sub-rule (A1).
	recent []time.Time
}

// SessionState holds the engine's view of one candidate exam session,
// keyed by (roomId, userId). It outlives control-channel reconnects and is
// destroyed with the room.
type SessionState struct {
	SessionID string
	RoomID    string
	UserID    string
	StartedAt time.Time
	Status    string
	Alerts    map[string]*AlertState
}

func (s *SessionState) alert(code string) *AlertState {
	st, ok := s.Alerts[code]
	if !ok {
		st = &AlertState{Code: code}
		s.Alerts[code] = st
	}
	return st
}

// setStatus raises the session status. Transitions are monotone; a lower
// status never overwrites a higher one.
func (s *SessionState) setStatus(status string) {
	if statusRank(status) > statusRank(s.Status) {
		s.Status = status
	}
}

// AlertSummary is the per-code slice of a session summary.
type AlertSummary struct {
	Count int   `json:"count"`
	Last  int64 `json:"last"`
}

// Summary is the external view of a session returned by the query API.
type Summary struct {
	SessionID   string                  `json:"sessionId"`
	Status      string                  `json:"status"`
	AlertsCount int                     `json:"alertsCount"`
	Alerts      map[string]AlertSummary `json:"alerts"`
}

// Engine classifies incidents and owns all session state. It performs no
// timer-driven work: duration thresholds are evaluated when the next event
// for that code arrives, so a persisting condition must be re-reported.
type Engine struct {
	mu       sync.Mutex
	sessions map[string]*SessionState
	now      func() time.Time
	logger   *slog.Logger
}

// NewEngine creates an empty rules engine.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		sessions: make(map[string]*SessionState),
		now:      time.Now,
		logger:   logger.With("component", "rules"),
	}
}

func sessionKey(roomID, userID string) string {
	return roomID + ":" + userID
}

func (e *Engine) session(roomID, userID string) *SessionState {
	key := sessionKey(roomID, userID)
	s, ok := e.sessions[key]
	if !ok {
		s = &SessionState{
			SessionID: key,
			RoomID:    roomID,
			UserID:    userID,
			StartedAt: e.now(),
			Status:    StatusActive,
			Alerts:    make(map[string]*AlertState),
		}
		e.sessions[key] = s
	}
	return s
}

// Process classifies one incident for the (roomID, userID) session and
// returns it with level, escalated and sessionStatus stamped. Never fails:
// an unknown tag is returned unchanged except for metadata.
func (e *Engine) Process(roomID, userID string, inc Incident) Incident {
	e.mu.Lock()
	defer e.mu.Unlock()

	session := e.session(roomID, userID)
	inc.RoomID = roomID
	inc.UserID = userID

	level, known := DefaultLevel(inc.Tag)
	if !known {
		inc.SessionStatus = session.Status
		e.logger.Debug("unknown incident tag", "tag", inc.Tag, "session", session.SessionID)
		return inc
	}

	now := e.now()
	st := session.alert(inc.Tag)

	switch inc.Tag {
	case "A1":
		level = level.Max(e.durationRule(st, now, a1Duration, LevelS2))
		st.recent = append(st.recent, now)
		st.recent = pruneBefore(st.recent, now.Add(-a1Window))
		if len(st.recent) >= a1WindowMax {
			level = level.Max(LevelS2)
		}
	case "A2":
		st.Count++
		if st.Count >= a2MinRepeats {
			level = LevelS3
		}
	case "A3":
		st.Count++
		switch {
		case st.Count >= a3TierS3:
			level = LevelS3
			session.setStatus(StatusPaused)
		case st.Count >= a3TierS2:
			level = LevelS2
		default:
			level = LevelS1
		}
	case "A4":
		if breach := e.durationRule(st, now, a4Duration, LevelS3); breach != "" {
			level = level.Max(breach)
			session.setStatus(StatusPaused)
		}
	case "A5":
		st.Count++
		if st.Count > 1 {
			level = LevelS3
			session.setStatus(StatusPaused)
		}
	case "A6":
		level = level.Max(e.durationRule(st, now, a6Duration, LevelS3))
	case "A10":
		level = LevelS3
		session.setStatus(StatusPaused)
	default:
		// A7, A8, A9, A11: default level, counted but never escalated.
		st.Count++
	}

	st.LastEscalated = now

	inc.Level = level
	inc.Escalated = st.Count
	inc.SessionStatus = session.Status
	return inc
}

// durationRule implements the shared duration escalation: stamp firstSeen on
// the first event, and when the next event lands past the threshold, escalate,
// count the breach and reset firstSeen for the next stretch. Returns the
// escalated level on breach, "" otherwise.
func (e *Engine) durationRule(st *AlertState, now time.Time, threshold time.Duration, escalated Level) Level {
	if st.FirstSeen.IsZero() {
		st.FirstSeen = now
		return ""
	}
	if now.Sub(st.FirstSeen) > threshold {
		st.Count++
		st.FirstSeen = time.Time{}
		return escalated
	}
	return ""
}

func pruneBefore(times []time.Time, cutoff time.Time) []time.Time {
	kept := times[:0]
	for _, t := range times {
		if !t.Before(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

// Summary returns the external view of a session, or false if no incident
// has ever been processed for it.
func (e *Engine) Summary(roomID, userID string) (Summary, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[sessionKey(roomID, userID)]
	if !ok {
		return Summary{}, false
	}

	out := Summary{
		SessionID:   s.SessionID,
		Status:      s.Status,
		AlertsCount: len(s.Alerts),
		Alerts:      make(map[string]AlertSummary, len(s.Alerts)),
	}
	for code, st := range s.Alerts {
		out.Alerts[code] = AlertSummary{Count: st.Count, Last: st.LastEscalated.UnixMilli()}
	}
	return out, true
}

// SessionStatus reports the current status of a session, defaulting to
// active when the session has no state yet.
func (e *Engine) SessionStatus(roomID, userID string) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s, ok := e.sessions[sessionKey(roomID, userID)]; ok {
		return s.Status
	}
	return StatusActive
}

// DropRoom ends and removes every session belonging to the room. Called when
// the room registry destroys the room.
func (e *Engine) DropRoom(roomID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for key, s := range e.sessions {
		if s.RoomID == roomID {
			s.setStatus(StatusEnded)
			delete(e.sessions, key)
		}
	}
}
