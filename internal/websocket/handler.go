package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/observer/proctord/internal/analysis"
	"github.com/observer/proctord/internal/pubsub"
	"github.com/observer/proctord/internal/room"
	"github.com/observer/proctord/internal/rules"
	rtc "github.com/observer/proctord/internal/webrtc"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow all origins in development (tighten in production)
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler serves GET /ws/{roomId} and owns the per-connection control loop.
type Handler struct {
	registry  *room.Registry
	engine    *rules.Engine
	media     *rtc.Core
	runner    *analysis.Runner
	ps        pubsub.PubSub
	aiEnabled bool
	logger    *slog.Logger
}

// NewHandler wires the control channel to the room registry, rules engine,
// SFU core and analysis runner.
func NewHandler(registry *room.Registry, engine *rules.Engine, media *rtc.Core, runner *analysis.Runner, ps pubsub.PubSub, aiEnabled bool, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		registry:  registry,
		engine:    engine,
		media:     media,
		runner:    runner,
		ps:        ps,
		aiEnabled: aiEnabled,
		logger:    logger.With("component", "ws"),
	}
}

// ServeHTTP upgrades the connection and runs the control loop until the
// participant leaves or the transport fails.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("roomId")
	if roomID == "" {
		http.Error(w, "roomId required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := newClient(conn, h.logger.With("room", roomID))
	client.roomID = roomID

	// The request context dies when ServeHTTP returns after upgrade; the
	// connection gets its own lifecycle.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client.prepareRead()
	h.serve(ctx, client)
}

// serve runs the join handshake and the message loop for one connection.
// Handshake errors are written directly; the write pump starts only after a
// successful join so they cannot be lost to an early close.
func (h *Handler) serve(ctx context.Context, client *Client) {
	defer client.conn.Close()

	rm, userID, role, ok := h.handleJoin(client)
	if !ok {
		return
	}
	client.userID = userID
	go client.writePump(ctx)
	logger := client.logger.With("userId", userID, "role", role)

	// Server-originated pushes (renegotiation offers, server ICE) arrive on
	// the participant's topic and are forwarded verbatim.
	topic := pubsub.Topics.RoomUser(client.roomID, userID)
	sub, err := h.ps.Subscribe(ctx, topic, func(_ context.Context, msg *pubsub.Message) {
		_ = client.Send(msg.Payload)
	})
	if err != nil {
		logger.Error("topic subscribe failed", "error", err)
	}

	defer h.teardown(client, rm, userID, sub, logger)

	_ = client.Send(mustJSON(map[string]any{
		"type":         TypeRoster,
		"participants": rm.Roster(),
	}))
	rm.Broadcast(userID, mustJSON(map[string]any{
		"type":   TypeParticipantJoined,
		"userId": userID,
		"role":   string(role),
	}))

	if role == room.RoleCandidate && h.aiEnabled && h.media.Enabled() {
		if err := h.runner.Start(client.roomID, userID); err != nil {
			logger.Warn("analysis start failed", "error", err)
		}
	}

	logger.Info("participant joined")
	h.messageLoop(ctx, client, rm, userID, role, logger)
}

// handleJoin enforces the first-frame contract. Protocol errors close the
// channel after an error frame.
func (h *Handler) handleJoin(client *Client) (*room.Room, string, room.Role, bool) {
	payload, err := client.readMessage()
	if err != nil {
		return nil, "", "", false
	}

	var join joinMessage
	if err := json.Unmarshal(payload, &join); err != nil || join.Type != TypeJoin {
		client.writeDirect(errorJSON(ReasonExpectedJoin))
		return nil, "", "", false
	}
	if join.UserID == "" {
		client.writeDirect(errorJSON(ReasonMissingUserID))
		return nil, "", "", false
	}

	rm := h.registry.GetOrCreate(client.roomID)
	role, err := rm.AddParticipant(join.UserID, room.ParseRole(join.Role), client)
	if err != nil {
		client.writeDirect(errorJSON(ReasonUserExists))
		h.registry.RemoveIfEmpty(client.roomID)
		return nil, "", "", false
	}
	return rm, join.UserID, role, true
}

func (h *Handler) messageLoop(ctx context.Context, client *Client, rm *room.Room, userID string, role room.Role, logger *slog.Logger) {
	sfuRole := role == room.RoleCandidate || role == room.RoleProctor

	for {
		payload, err := client.readMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("read error", "error", err)
			}
			return
		}

		var raw map[string]any
		if err := json.Unmarshal(payload, &raw); err != nil {
			client.sendError(ReasonInvalidJSON)
			continue
		}
		msgType, _ := raw["type"].(string)

		switch msgType {
		case TypeOffer, TypeAnswer, TypeICE:
			if h.media.Enabled() && sfuRole {
				h.handleSignal(ctx, client, payload, msgType, userID, role, logger)
				continue
			}
			h.relay(rm, raw, userID)
		case TypeChat:
			h.relay(rm, raw, userID)
		case TypeIncident:
			h.handleIncident(rm, raw, userID)
		case TypeLeave:
			logger.Info("participant leaving")
			return
		default:
			client.sendError(ReasonUnknownType)
		}
	}
}

// relay stamps the true sender and routes: directed when `to` names a
// present participant, fan-out to everyone else otherwise.
func (h *Handler) relay(rm *room.Room, raw map[string]any, senderID string) {
	raw["from"] = senderID

	if to, ok := raw["to"].(string); ok && to != "" {
		payload := mustJSON(raw)
		if err := rm.SendTo(to, payload); err != nil {
			// Directed to an absent participant; drop.
			return
		}
		return
	}
	rm.Broadcast(senderID, mustJSON(raw))
}

// handleSignal routes offer/answer/ice into the SFU for candidate and
// proctor roles.
func (h *Handler) handleSignal(ctx context.Context, client *Client, payload []byte, msgType, userID string, role room.Role, logger *slog.Logger) {
	var sig signalMessage
	if err := json.Unmarshal(payload, &sig); err != nil {
		client.sendError(ReasonInvalidJSON)
		return
	}

	switch msgType {
	case TypeOffer:
		var answer string
		var err error
		if role == room.RoleCandidate {
			answer, err = h.media.HandleCandidateOffer(ctx, client.roomID, userID, sig.SDP, sig.TrackInfo)
		} else {
			answer, err = h.media.HandleProctorOffer(ctx, client.roomID, userID, sig.SDP)
		}
		if err != nil {
			logger.Error("sfu offer failed", "error", err)
			client.sendError("sfu_error:" + err.Error())
			return
		}
		_ = client.Send(mustJSON(map[string]any{
			"type": TypeAnswer,
			"from": "server",
			"sdp":  answer,
		}))
	case TypeAnswer:
		if role != room.RoleProctor {
			// Candidates answer nothing in SFU mode; the server is always
			// the answerer on their PC.
			logger.Debug("ignoring candidate answer in sfu mode")
			return
		}
		if err := h.media.HandleProctorAnswer(ctx, client.roomID, userID, sig.SDP); err != nil {
			logger.Error("sfu answer failed", "error", err)
			client.sendError("sfu_error:" + err.Error())
		}
	case TypeICE:
		if sig.Candidate == nil {
			return
		}
		if err := h.media.HandleICE(ctx, client.roomID, userID, *sig.Candidate, role == room.RoleProctor); err != nil {
			// Known race with PC shutdown; swallow.
			logger.Debug("ice apply failed", "error", err)
		}
	}
}

// handleIncident runs a reported observation through the rules engine,
// appends the authoritative result to the room log, and rebroadcasts it.
func (h *Handler) handleIncident(rm *room.Room, raw map[string]any, userID string) {
	inc := rules.Incident{
		By:  userID,
		Tag: str(raw["tag"]),
	}
	if by := str(raw["by"]); by != "" {
		inc.By = by
	}
	inc.Note = str(raw["note"])
	inc.Level = rules.Level(str(raw["level"]))
	if ts, ok := raw["ts"].(float64); ok {
		inc.TS = int64(ts)
	}

	processed := h.engine.Process(rm.ID(), userID, inc)
	rm.AppendIncident(processed)

	wire := struct {
		Type string `json:"type"`
		From string `json:"from"`
		rules.Incident
	}{Type: TypeIncident, From: userID, Incident: processed}
	rm.Broadcast(userID, mustJSON(wire))
}

// teardown runs once per connection, in reverse join order: analysis task,
// SFU state, registry entry, presence broadcast, room destruction.
func (h *Handler) teardown(client *Client, rm *room.Room, userID string, sub pubsub.Subscription, logger *slog.Logger) {
	role, _ := rm.Participant(userID)

	if role == room.RoleCandidate {
		if err := h.runner.Stop(userID); err == nil {
			logger.Info("analysis task cancelled")
		}
		h.media.RemoveCandidate(client.roomID, userID)
	} else if role == room.RoleProctor {
		h.media.RemoveProctor(client.roomID, userID)
	}

	if sub != nil {
		_ = sub.Unsubscribe()
	}

	rm.RemoveParticipant(userID)
	rm.Broadcast(userID, mustJSON(map[string]any{
		"type":   TypeParticipantLeft,
		"userId": userID,
	}))
	h.registry.RemoveIfEmpty(client.roomID)
	logger.Info("participant left")
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
