// Package room holds the in-memory room registry: participants, their
// delivery endpoints, and the per-room incident log. Rooms are created on
// first join and destroyed when the last participant leaves.
package room

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/observer/proctord/internal/rules"
)

// Role of a participant inside a room.
type Role string

const (
	RoleProctor   Role = "proctor"
	RoleCandidate Role = "candidate"
	RoleObserver  Role = "observer"
)

// ParseRole maps a client-supplied role string, defaulting to observer.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleProctor, RoleCandidate, RoleObserver:
		return Role(s)
	default:
		return RoleObserver
	}
}

var (
	// ErrUserExists is returned when a userId is already present in the room.
	ErrUserExists = errors.New("room: user already exists")
	// ErrNotFound is returned when a participant is not in the room.
	ErrNotFound = errors.New("room: participant not found")
)

// Sender delivers a raw payload to one participant. Implemented by the
// websocket client; sends are non-blocking and may drop on overflow.
type Sender interface {
	Send(payload []byte) error
}

// Participant is one connected user in a room.
type Participant struct {
	UserID string
	Role   Role
	sender Sender
}

// RosterEntry is the wire form of a participant in roster messages.
type RosterEntry struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// Room is a single proctoring room. All methods are safe for concurrent use.
type Room struct {
	mu           sync.RWMutex
	id           string
	participants map[string]*Participant
	incidents    []rules.Incident
	incidentCap  int
	logger       *slog.Logger
}

func newRoom(id string, incidentCap int, logger *slog.Logger) *Room {
	return &Room{
		id:           id,
		participants: make(map[string]*Participant),
		incidentCap:  incidentCap,
		logger:       logger.With("room", id),
	}
}

// ID returns the room identifier.
func (r *Room) ID() string { return r.id }

// AddParticipant registers a participant. A duplicate userId is rejected with
// ErrUserExists. Only one proctor is allowed; a second joiner asking for the
// proctor role is demoted to observer. The effective role is returned.
func (r *Room) AddParticipant(userID string, role Role, sender Sender) (Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.participants[userID]; ok {
		return "", ErrUserExists
	}

	if role == RoleProctor {
		for _, p := range r.participants {
			if p.Role == RoleProctor {
				role = RoleObserver
				r.logger.Warn("proctor seat taken, joining as observer", "userId", userID)
				break
			}
		}
	}

	r.participants[userID] = &Participant{UserID: userID, Role: role, sender: sender}
	return role, nil
}

// RemoveParticipant drops a participant; removing an absent user is a no-op.
func (r *Room) RemoveParticipant(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.participants, userID)
}

// Participant returns a participant's role, or false if absent.
func (r *Room) Participant(userID string) (Role, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participants[userID]
	if !ok {
		return "", false
	}
	return p.Role, true
}

// Roster returns the current participants in wire form.
func (r *Room) Roster() []RosterEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roster := make([]RosterEntry, 0, len(r.participants))
	for _, p := range r.participants {
		roster = append(roster, RosterEntry{UserID: p.UserID, Role: string(p.Role)})
	}
	return roster
}

// Proctor returns the proctor's userId, or false when no proctor is present.
func (r *Room) Proctor() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.participants {
		if p.Role == RoleProctor {
			return p.UserID, true
		}
	}
	return "", false
}

// Candidates returns the userIds of all candidates.
func (r *Room) Candidates() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for _, p := range r.participants {
		if p.Role == RoleCandidate {
			out = append(out, p.UserID)
		}
	}
	return out
}

// IsEmpty reports whether the room has no participants left.
func (r *Room) IsEmpty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants) == 0
}

// SendTo delivers a payload to one participant. Returns ErrNotFound when the
// user is not in the room; a transport failure is the sender's to report.
func (r *Room) SendTo(userID string, payload []byte) error {
	r.mu.RLock()
	p, ok := r.participants[userID]
	r.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	return p.sender.Send(payload)
}

// Broadcast delivers a payload to every participant except senderID.
// Delivery is best-effort: a failed send is logged and skipped, never
// aborting delivery to the rest.
func (r *Room) Broadcast(senderID string, payload []byte) {
	r.mu.RLock()
	targets := make([]*Participant, 0, len(r.participants))
	for _, p := range r.participants {
		if p.UserID != senderID {
			targets = append(targets, p)
		}
	}
	r.mu.RUnlock()

	for _, p := range targets {
		if err := p.sender.Send(payload); err != nil {
			r.logger.Warn("broadcast send failed", "to", p.UserID, "error", err)
		}
	}
}

// AppendIncident records a processed incident in the room log, dropping the
// oldest entry once the retention cap is reached.
func (r *Room) AppendIncident(inc rules.Incident) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.incidents = append(r.incidents, inc)
	if r.incidentCap > 0 && len(r.incidents) > r.incidentCap {
		r.incidents = r.incidents[len(r.incidents)-r.incidentCap:]
	}
}

// Incidents returns a copy of the room's incident log in arrival order.
func (r *Room) Incidents() []rules.Incident {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]rules.Incident, len(r.incidents))
	copy(out, r.incidents)
	return out
}
