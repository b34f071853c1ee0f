// Package websocket implements the control channel: one long-lived stream of
// flat JSON messages per participant, carrying join/roster/presence, WebRTC
// signaling, chat, incidents, and server-pushed analysis frames.
package websocket

import (
	"encoding/json"

	"github.com/pion/webrtc/v3"

	rtc "github.com/observer/proctord/internal/webrtc"
)

// Message types on the control channel.
const (
	TypeJoin              = "join"
	TypeRoster            = "roster"
	TypeParticipantJoined = "participant_joined"
	TypeParticipantLeft   = "participant_left"
	TypeOffer             = "offer"
	TypeAnswer            = "answer"
	TypeICE               = "ice"
	TypeChat              = "chat"
	TypeIncident          = "incident"
	TypeLeave             = "leave"
	TypeAIAnalysis        = "ai_analysis"
	TypeError             = "error"
)

// Error reasons.
const (
	ReasonExpectedJoin  = "expected_join"
	ReasonMissingUserID = "missing_userId"
	ReasonUserExists    = "user_exists"
	ReasonUnknownType   = "unknown_type"
	ReasonInvalidJSON   = "invalid_json"
)

// joinMessage is the required first frame.
type joinMessage struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// signalMessage carries the WebRTC fields of offer/answer/ice frames when
// the SFU intercepts them.
type signalMessage struct {
	Type        string                   `json:"type"`
	SDP         string                   `json:"sdp"`
	TrackInfo   []rtc.TrackInfo          `json:"trackInfo"`
	To          string                   `json:"to"`
	Renegotiate bool                     `json:"renegotiate"`
	Candidate   *webrtc.ICECandidateInit `json:"candidate"`
}

func errorJSON(reason string) []byte {
	raw, _ := json.Marshal(map[string]string{"type": TypeError, "reason": reason})
	return raw
}

func mustJSON(v any) []byte {
	raw, _ := json.Marshal(v)
	return raw
}
