package room

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/observer/proctord/internal/rules"
)

// stubSender collects payloads; fail makes every send error.
type stubSender struct {
	mu       sync.Mutex
	payloads [][]byte
	fail     bool
}

func (s *stubSender) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("send buffer full")
	}
	s.payloads = append(s.payloads, payload)
	return nil
}

func (s *stubSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payloads)
}

func TestAddParticipant_DuplicateUserID(t *testing.T) {
	r := newTestRoom(t)

	_, err := r.AddParticipant("u1", RoleCandidate, &stubSender{})
	require.NoError(t, err)

	_, err = r.AddParticipant("u1", RoleObserver, &stubSender{})
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestAddParticipant_SecondProctorDemoted(t *testing.T) {
	r := newTestRoom(t)

	role, err := r.AddParticipant("p1", RoleProctor, &stubSender{})
	require.NoError(t, err)
	assert.Equal(t, RoleProctor, role)

	role, err = r.AddParticipant("p2", RoleProctor, &stubSender{})
	require.NoError(t, err)
	assert.Equal(t, RoleObserver, role)

	proctor, ok := r.Proctor()
	require.True(t, ok)
	assert.Equal(t, "p1", proctor)
}

func TestRoster(t *testing.T) {
	r := newTestRoom(t)
	r.AddParticipant("p1", RoleProctor, &stubSender{})
	r.AddParticipant("c1", RoleCandidate, &stubSender{})

	roster := r.Roster()
	assert.Len(t, roster, 2)
	assert.ElementsMatch(t, []RosterEntry{
		{UserID: "p1", Role: "proctor"},
		{UserID: "c1", Role: "candidate"},
	}, roster)
}

func TestBroadcast_ExcludesSenderAndSurvivesFailures(t *testing.T) {
	r := newTestRoom(t)

	sender := &stubSender{}
	broken := &stubSender{fail: true}
	other := &stubSender{}
	r.AddParticipant("src", RoleCandidate, sender)
	r.AddParticipant("broken", RoleObserver, broken)
	r.AddParticipant("other", RoleObserver, other)

	r.Broadcast("src", []byte(`{"type":"chat"}`))

	assert.Equal(t, 0, sender.count())
	assert.Equal(t, 1, other.count())
}

func TestSendTo(t *testing.T) {
	r := newTestRoom(t)
	dst := &stubSender{}
	r.AddParticipant("dst", RoleObserver, dst)

	require.NoError(t, r.SendTo("dst", []byte("hi")))
	assert.Equal(t, 1, dst.count())

	assert.ErrorIs(t, r.SendTo("ghost", []byte("hi")), ErrNotFound)
}

func TestIncidentLog_CapDropsOldest(t *testing.T) {
	reg := NewRegistry(3, nil)
	r := reg.GetOrCreate("r1")

	for i := 1; i <= 5; i++ {
		r.AppendIncident(rules.Incident{Tag: "A3", Note: fmt.Sprintf("n%d", i), TS: int64(i)})
	}

	log := r.Incidents()
	require.Len(t, log, 3)
	assert.Equal(t, int64(3), log[0].TS)
	assert.Equal(t, int64(5), log[2].TS)
}

func TestRegistry_RemoveIfEmpty(t *testing.T) {
	reg := NewRegistry(100, nil)

	var destroyed []string
	reg.OnDestroy(func(roomID string) { destroyed = append(destroyed, roomID) })

	r := reg.GetOrCreate("r1")
	r.AddParticipant("u1", RoleCandidate, &stubSender{})

	assert.False(t, reg.RemoveIfEmpty("r1"), "occupied room must not be removed")
	assert.Equal(t, 1, reg.Count())

	r.RemoveParticipant("u1")
	assert.True(t, reg.RemoveIfEmpty("r1"))
	assert.Equal(t, 0, reg.Count())
	assert.Equal(t, []string{"r1"}, destroyed)
	assert.Nil(t, reg.Get("r1"))

	// Removing an unknown room is a no-op.
	assert.False(t, reg.RemoveIfEmpty("r1"))
}

func TestRegistry_GetOrCreateReturnsSameRoom(t *testing.T) {
	reg := NewRegistry(100, nil)
	a := reg.GetOrCreate("r1")
	b := reg.GetOrCreate("r1")
	assert.Same(t, a, b)
}

func TestParseRole(t *testing.T) {
	assert.Equal(t, RoleProctor, ParseRole("proctor"))
	assert.Equal(t, RoleCandidate, ParseRole("candidate"))
	assert.Equal(t, RoleObserver, ParseRole("observer"))
	assert.Equal(t, RoleObserver, ParseRole("supervisor"))
	assert.Equal(t, RoleObserver, ParseRole(""))
}

func newTestRoom(t *testing.T) *Room {
	t.Helper()
	return NewRegistry(100, nil).GetOrCreate("r-" + t.Name())
}
