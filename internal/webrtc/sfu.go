// Package webrtc implements the SFU core: one server-side peer connection per
// candidate ingesting camera/screen/audio tracks, and up to one proctor peer
// connection per room receiving forwarded copies of every candidate track.
package webrtc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"

	"github.com/observer/proctord/internal/pubsub"
)

// Track labels. Unlabeled tracks are assigned by fallback: first video seen
// is the camera, the second the screen, audio by kind.
const (
	LabelCamera = "camera"
	LabelScreen = "screen"
	LabelAudio  = "audio"
)

// Renegotiation debounce. A lone screen track renegotiates quickly; the
// initial multi-track flurry gets a longer window to coalesce.
const (
	screenDebounce  = 50 * time.Millisecond
	defaultDebounce = 200 * time.Millisecond
)

// ErrNotAvailable is returned on any offer when the SFU is disabled; the
// control channel then falls back to P2P fan-out.
var ErrNotAvailable = errors.New("sfu_not_available")

// TrackInfo is the client-supplied trackId -> label metadata carried on
// offers.
type TrackInfo struct {
	TrackID string `json:"trackId"`
	Label   string `json:"label"`
}

// Stats is the per-room view exposed by the query API.
type Stats struct {
	RoomID         string   `json:"roomId"`
	Candidates     []string `json:"candidates"`
	CandidateCount int      `json:"candidateCount"`
	Proctor        *string  `json:"proctor"`
	HasProctor     bool     `json:"hasProctor"`
}

// forwardedTrack is one ingested candidate track and its server-side copy
// that proctor senders bind to.
type forwardedTrack struct {
	label  string
	remote *webrtc.TrackRemote
	local  *webrtc.TrackLocalStaticRTP
}

// CandidateConnection is the server-side PC for one candidate.
type CandidateConnection struct {
	mu     sync.Mutex
	userID string
	roomID string
	pc     *webrtc.PeerConnection

	labels    map[string]string          // trackId -> label
	tracks    map[string]*forwardedTrack // label -> track
	videoSeen int

	// Server ICE produced before the answer is sent is buffered and
	// flushed after.
	pendingCandidates []*webrtc.ICECandidate
	answered          bool

	ctx    context.Context
	cancel context.CancelFunc
}

// ProctorConnection is the server-side PC for the room's proctor.
type ProctorConnection struct {
	mu     sync.Mutex
	userID string
	roomID string
	pc     *webrtc.PeerConnection

	senders map[string]*webrtc.RTPSender // trackId -> sender

	pendingCandidates []*webrtc.ICECandidate
	answered          bool
}

// sfuRoom holds all SFU state for one room. Renegotiation flags live here:
// renegotiating marks an offer in flight, pending coalesces further triggers,
// screenFollowUp privileges a screen track that arrived mid-exchange.
type sfuRoom struct {
	mu         sync.Mutex
	id         string
	candidates map[string]*CandidateConnection
	proctor    *ProctorConnection

	renegotiating  bool
	pending        bool
	screenFollowUp bool
}

// Core is the SFU entry point used by the control channel and the query API.
type Core struct {
	mu         sync.RWMutex
	enabled    bool
	api        *webrtc.API
	iceServers []webrtc.ICEServer
	rooms      map[string]*sfuRoom
	ps         pubsub.PubSub
	logger     *slog.Logger
}

// NewCore builds the SFU with a VP8/Opus-only media engine. When enabled is
// false every offer is answered with ErrNotAvailable.
func NewCore(enabled bool, iceServers []webrtc.ICEServer, ps pubsub.PubSub, logger *slog.Logger) (*Core, error) {
	if logger == nil {
		logger = slog.Default()
	}

	m := &webrtc.MediaEngine{}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		PayloadType:        96,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, err
	}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		PayloadType:        111,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, err
	}

	return &Core{
		enabled:    enabled,
		api:        webrtc.NewAPI(webrtc.WithMediaEngine(m)),
		iceServers: iceServers,
		rooms:      make(map[string]*sfuRoom),
		ps:         ps,
		logger:     logger.With("component", "sfu"),
	}, nil
}

// Enabled reports whether SFU signaling interception is active.
func (c *Core) Enabled() bool { return c.enabled }

// ICEServers builds the pion ICE server list from STUN and TURN settings.
// TURN entries require a username; anonymous TURN is not a thing.
func ICEServers(stunURLs, turnURLs []string, turnUsername, turnPassword string) []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, 0, 2)

	if len(stunURLs) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: stunURLs})
	}

	if len(turnURLs) > 0 && turnUsername != "" {
		servers = append(servers, webrtc.ICEServer{
			URLs:       turnURLs,
			Username:   turnUsername,
			Credential: turnPassword,
		})
	}

	return servers
}

func (c *Core) getOrCreateRoom(roomID string) *sfuRoom {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rooms[roomID]
	if !ok {
		r = &sfuRoom{
			id:         roomID,
			candidates: make(map[string]*CandidateConnection),
		}
		c.rooms[roomID] = r
	}
	return r
}

func (c *Core) getRoom(roomID string) *sfuRoom {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rooms[roomID]
}

func (c *Core) newPeerConnection() (*webrtc.PeerConnection, error) {
	return c.api.NewPeerConnection(webrtc.Configuration{ICEServers: c.iceServers})
}

// HandleCandidateOffer processes an offer from a candidate and returns the
// answer SDP. A second offer from the same candidate is a renegotiation:
// labels are merged and the existing PC re-answers.
func (c *Core) HandleCandidateOffer(ctx context.Context, roomID, userID, sdp string, trackInfo []TrackInfo) (string, error) {
	if !c.enabled {
		return "", ErrNotAvailable
	}

	room := c.getOrCreateRoom(roomID)

	room.mu.Lock()
	cand := room.candidates[userID]
	room.mu.Unlock()

	if cand != nil {
		return c.renegotiateCandidate(cand, sdp, trackInfo)
	}
	return c.createCandidate(room, userID, sdp, trackInfo)
}

func (c *Core) createCandidate(room *sfuRoom, userID, sdp string, trackInfo []TrackInfo) (string, error) {
	pc, err := c.newPeerConnection()
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithCancel(context.Background())
	cand := &CandidateConnection{
		userID: userID,
		roomID: room.id,
		pc:     pc,
		labels: make(map[string]string),
		tracks: make(map[string]*forwardedTrack),
		ctx:    ctx,
		cancel: cancel,
	}
	cand.mergeLabels(trackInfo)

	logger := c.logger.With("room", room.id, "userId", userID)

	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.ingestTrack(room, cand, remote, logger)
	})
	pc.OnICECandidate(func(ice *webrtc.ICECandidate) {
		if ice != nil {
			cand.queueOrEmit(c, ice)
		}
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			logger.Info("candidate pc terminal", "state", state.String())
			c.RemoveCandidate(room.id, userID)
		}
	})

	answer, err := answerRemoteOffer(pc, sdp)
	if err != nil {
		cancel()
		pc.Close()
		return "", err
	}

	room.mu.Lock()
	room.candidates[userID] = cand
	room.mu.Unlock()

	cand.flushCandidates(c)
	logger.Info("candidate pc created", "labeledTracks", len(trackInfo))
	return answer, nil
}

func (c *Core) renegotiateCandidate(cand *CandidateConnection, sdp string, trackInfo []TrackInfo) (string, error) {
	cand.mergeLabels(trackInfo)
	answer, err := answerRemoteOffer(cand.pc, sdp)
	if err != nil {
		return "", err
	}
	cand.flushCandidates(c)
	return answer, nil
}

// answerRemoteOffer applies a remote offer and produces a local answer.
func answerRemoteOffer(pc *webrtc.PeerConnection, sdp string) (string, error) {
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	if err := pc.SetRemoteDescription(offer); err != nil {
		return "", err
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return "", err
	}
	return answer.SDP, nil
}

func (cand *CandidateConnection) mergeLabels(infos []TrackInfo) {
	cand.mu.Lock()
	defer cand.mu.Unlock()
	for _, info := range infos {
		if info.TrackID != "" && info.Label != "" {
			cand.labels[info.TrackID] = info.Label
		}
	}
}

// labelFor resolves a track to its label, falling back on kind and arrival
// order when the client sent no metadata for it.
func (cand *CandidateConnection) labelFor(trackID string, kind webrtc.RTPCodecType) string {
	cand.mu.Lock()
	defer cand.mu.Unlock()

	if label, ok := cand.labels[trackID]; ok {
		if kind == webrtc.RTPCodecTypeVideo {
			cand.videoSeen++
		}
		return label
	}
	if kind == webrtc.RTPCodecTypeAudio {
		return LabelAudio
	}
	cand.videoSeen++
	if cand.videoSeen == 1 {
		return LabelCamera
	}
	return LabelScreen
}

// ingestTrack stores an arriving candidate track under its label, starts the
// RTP forward loop, and schedules a proctor renegotiation if one is present.
func (c *Core) ingestTrack(room *sfuRoom, cand *CandidateConnection, remote *webrtc.TrackRemote, logger *slog.Logger) {
	label := cand.labelFor(remote.ID(), remote.Kind())

	local, err := webrtc.NewTrackLocalStaticRTP(remote.Codec().RTPCodecCapability, remote.ID(), remote.StreamID())
	if err != nil {
		logger.Error("local track create failed", "error", err)
		return
	}

	ft := &forwardedTrack{label: label, remote: remote, local: local}
	cand.mu.Lock()
	cand.tracks[label] = ft
	cand.mu.Unlock()

	logger.Info("track ingested", "label", label, "trackId", remote.ID(), "kind", remote.Kind().String())

	go forwardRTP(cand.ctx, remote, local)

	room.mu.Lock()
	hasProctor := room.proctor != nil
	room.mu.Unlock()
	if hasProctor {
		c.scheduleRenegotiation(room, label == LabelScreen)
	}
}

// forwardRTP copies RTP from a candidate track to its server-side copy until
// the candidate tears down. Write errors to an unbound track are ignored;
// the proctor may not have attached yet.
func forwardRTP(ctx context.Context, remote *webrtc.TrackRemote, local *webrtc.TrackLocalStaticRTP) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		pkt, _, err := remote.ReadRTP()
		if err != nil {
			return
		}
		// Copy so the local track's SSRC rewrite never races the reader.
		cp := *pkt
		if err := local.WriteRTP(&cp); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			return
		}
	}
}

// HandleProctorOffer processes the proctor's offer: the PC is (re)created,
// every candidate track already in the room is attached, and the answer SDP
// is returned. A proctor reconnect replaces the previous PC.
func (c *Core) HandleProctorOffer(ctx context.Context, roomID, userID, sdp string) (string, error) {
	if !c.enabled {
		return "", ErrNotAvailable
	}

	room := c.getOrCreateRoom(roomID)
	logger := c.logger.With("room", roomID, "userId", userID)

	pc, err := c.newPeerConnection()
	if err != nil {
		return "", err
	}

	proctor := &ProctorConnection{
		userID:  userID,
		roomID:  roomID,
		pc:      pc,
		senders: make(map[string]*webrtc.RTPSender),
	}

	pc.OnICECandidate(func(ice *webrtc.ICECandidate) {
		if ice != nil {
			proctor.queueOrEmit(c, ice)
		}
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			logger.Info("proctor pc terminal", "state", state.String())
			c.RemoveProctor(roomID, userID)
		}
	})

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		pc.Close()
		return "", err
	}

	room.mu.Lock()
	old := room.proctor
	room.proctor = proctor
	room.renegotiating = false
	room.pending = false
	room.screenFollowUp = false
	tracks := room.allTracksLocked()
	room.mu.Unlock()

	if old != nil {
		old.pc.Close()
	}

	attached := 0
	for _, item := range tracks {
		if err := c.attachToProctor(proctor, item.cand, item.track); err != nil {
			logger.Warn("track attach failed", "trackId", item.track.remote.ID(), "error", err)
			continue
		}
		attached++
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return "", err
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return "", err
	}

	proctor.flushCandidates(c)
	logger.Info("proctor pc created", "attachedTracks", attached)
	return answer.SDP, nil
}

type roomTrack struct {
	cand  *CandidateConnection
	track *forwardedTrack
}

// allTracksLocked snapshots every ingested track. Caller holds room.mu.
func (r *sfuRoom) allTracksLocked() []roomTrack {
	var out []roomTrack
	for _, cand := range r.candidates {
		cand.mu.Lock()
		for _, ft := range cand.tracks {
			out = append(out, roomTrack{cand: cand, track: ft})
		}
		cand.mu.Unlock()
	}
	return out
}

// attachToProctor adds one forwarded track to the proctor PC and starts the
// RTCP reader that relays keyframe requests back to the owning candidate.
func (c *Core) attachToProctor(proctor *ProctorConnection, cand *CandidateConnection, ft *forwardedTrack) error {
	proctor.mu.Lock()
	if _, exists := proctor.senders[ft.remote.ID()]; exists {
		proctor.mu.Unlock()
		return nil
	}
	sender, err := proctor.pc.AddTrack(ft.local)
	if err != nil {
		proctor.mu.Unlock()
		return err
	}
	proctor.senders[ft.remote.ID()] = sender
	proctor.mu.Unlock()

	go c.relayRTCP(sender, cand, ft.remote)
	return nil
}

// relayRTCP reads RTCP from a proctor-side sender and relays PLI/FIR to the
// candidate PC so the forwarded video stays decodable after (re)negotiation.
func (c *Core) relayRTCP(sender *webrtc.RTPSender, cand *CandidateConnection, remote *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		n, _, err := sender.Read(buf)
		if err != nil {
			return
		}
		pkts, err := rtcp.Unmarshal(buf[:n])
		if err != nil {
			continue
		}
		for _, pkt := range pkts {
			switch pkt.(type) {
			case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
				_ = cand.pc.WriteRTCP([]rtcp.Packet{
					&rtcp.PictureLossIndication{MediaSSRC: uint32(remote.SSRC())},
				})
			}
		}
	}
}

// scheduleRenegotiation coalesces proctor-side renegotiation triggers. While
// an exchange is in flight further triggers mark pending; a screen track in
// that window additionally requests a dedicated follow-on.
func (c *Core) scheduleRenegotiation(room *sfuRoom, screen bool) {
	room.mu.Lock()
	if room.proctor == nil {
		room.mu.Unlock()
		return
	}
	if room.renegotiating {
		room.pending = true
		if screen {
			room.screenFollowUp = true
		}
		room.mu.Unlock()
		return
	}
	room.renegotiating = true
	room.pending = false
	room.mu.Unlock()

	debounce := defaultDebounce
	if screen {
		debounce = screenDebounce
	}
	go func() {
		time.Sleep(debounce)
		c.renegotiate(room)
	}()
}

func (c *Core) renegotiate(room *sfuRoom) {
	room.mu.Lock()
	proctor := room.proctor
	if proctor == nil {
		room.renegotiating = false
		room.pending = false
		room.screenFollowUp = false
		room.mu.Unlock()
		return
	}
	if proctor.pc.SignalingState() != webrtc.SignalingStateStable {
		// Glare with a client-initiated exchange; retry once it settles.
		room.renegotiating = false
		room.pending = true
		room.mu.Unlock()
		return
	}
	tracks := room.allTracksLocked()
	// The snapshot covers every trigger coalesced so far, screen included;
	// only triggers landing after it may schedule a follow-on.
	room.pending = false
	room.screenFollowUp = false
	room.mu.Unlock()

	for _, item := range tracks {
		if err := c.attachToProctor(proctor, item.cand, item.track); err != nil {
			c.logger.Warn("renegotiation attach failed", "room", room.id, "error", err)
		}
	}

	offer, err := proctor.pc.CreateOffer(nil)
	if err != nil {
		c.logger.Error("renegotiation offer failed", "room", room.id, "error", err)
		room.mu.Lock()
		room.renegotiating = false
		room.mu.Unlock()
		return
	}
	if err := proctor.pc.SetLocalDescription(offer); err != nil {
		c.logger.Error("renegotiation local description failed", "room", room.id, "error", err)
		room.mu.Lock()
		room.renegotiating = false
		room.mu.Unlock()
		return
	}

	c.publishToUser(room.id, proctor.userID, map[string]any{
		"type":        "offer",
		"from":        "server",
		"sdp":         offer.SDP,
		"renegotiate": true,
	})
}

// HandleProctorAnswer applies the proctor's answer to an outstanding
// renegotiation offer. An answer with no offer in flight is logged and
// dropped. A coalesced or screen follow-on trigger schedules the next round.
func (c *Core) HandleProctorAnswer(ctx context.Context, roomID, userID, sdp string) error {
	if !c.enabled {
		return ErrNotAvailable
	}
	room := c.getRoom(roomID)
	if room == nil {
		return errors.New("no sfu state for room")
	}

	room.mu.Lock()
	proctor := room.proctor
	room.mu.Unlock()
	if proctor == nil || proctor.userID != userID {
		return errors.New("no proctor pc")
	}

	if proctor.pc.SignalingState() != webrtc.SignalingStateHaveLocalOffer {
		c.logger.Warn("answer without outstanding offer, dropped",
			"room", roomID, "state", proctor.pc.SignalingState().String())
		return nil
	}

	if err := proctor.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}); err != nil {
		return err
	}

	room.mu.Lock()
	room.renegotiating = false
	again := room.pending || room.screenFollowUp
	screen := room.screenFollowUp
	room.pending = false
	room.screenFollowUp = false
	room.mu.Unlock()

	if again {
		c.scheduleRenegotiation(room, screen)
	}
	return nil
}

// HandleICE routes a trickled candidate to the sender's PC. Empty candidate
// strings and candidates for terminal PCs are silently dropped.
func (c *Core) HandleICE(ctx context.Context, roomID, userID string, init webrtc.ICECandidateInit, proctorSide bool) error {
	if !c.enabled {
		return ErrNotAvailable
	}
	if init.Candidate == "" {
		return nil
	}
	room := c.getRoom(roomID)
	if room == nil {
		return nil
	}

	var pc *webrtc.PeerConnection
	room.mu.Lock()
	if proctorSide {
		if room.proctor != nil && room.proctor.userID == userID {
			pc = room.proctor.pc
		}
	} else if cand := room.candidates[userID]; cand != nil {
		pc = cand.pc
	}
	room.mu.Unlock()

	if pc == nil {
		return nil
	}
	switch pc.ConnectionState() {
	case webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateFailed:
		return nil
	}
	return pc.AddICECandidate(init)
}

// queueOrEmit buffers server ICE until the local description has been sent,
// then emits directly.
func (cand *CandidateConnection) queueOrEmit(c *Core, ice *webrtc.ICECandidate) {
	cand.mu.Lock()
	if !cand.answered {
		cand.pendingCandidates = append(cand.pendingCandidates, ice)
		cand.mu.Unlock()
		return
	}
	cand.mu.Unlock()
	c.emitICE(cand.roomID, cand.userID, ice)
}

func (cand *CandidateConnection) flushCandidates(c *Core) {
	cand.mu.Lock()
	cand.answered = true
	queued := cand.pendingCandidates
	cand.pendingCandidates = nil
	cand.mu.Unlock()
	for _, ice := range queued {
		c.emitICE(cand.roomID, cand.userID, ice)
	}
}

func (p *ProctorConnection) queueOrEmit(c *Core, ice *webrtc.ICECandidate) {
	p.mu.Lock()
	if !p.answered {
		p.pendingCandidates = append(p.pendingCandidates, ice)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	c.emitICE(p.roomID, p.userID, ice)
}

func (p *ProctorConnection) flushCandidates(c *Core) {
	p.mu.Lock()
	p.answered = true
	queued := p.pendingCandidates
	p.pendingCandidates = nil
	p.mu.Unlock()
	for _, ice := range queued {
		c.emitICE(p.roomID, p.userID, ice)
	}
}

func (c *Core) emitICE(roomID, userID string, ice *webrtc.ICECandidate) {
	c.publishToUser(roomID, userID, map[string]any{
		"type":      "ice",
		"from":      "server",
		"candidate": ice.ToJSON(),
	})
}

// publishToUser pushes a server-originated control message to one
// participant via the internal pubsub; the websocket client subscribed to
// the topic forwards the payload verbatim.
func (c *Core) publishToUser(roomID, userID string, payload map[string]any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	topic := pubsub.Topics.RoomUser(roomID, userID)
	msg := &pubsub.Message{Topic: topic, Type: payload["type"].(string), Payload: raw}
	if err := c.ps.Publish(context.Background(), topic, msg); err != nil {
		c.logger.Warn("publish failed", "topic", topic, "error", err)
	}
}

// RemoveCandidate tears down one candidate PC: forward loops stop, the PC
// closes, proctor-side senders are removed, and a renegotiation reconciles
// the proctor's media sections.
func (c *Core) RemoveCandidate(roomID, userID string) {
	room := c.getRoom(roomID)
	if room == nil {
		return
	}

	room.mu.Lock()
	cand := room.candidates[userID]
	delete(room.candidates, userID)
	proctor := room.proctor
	room.mu.Unlock()

	if cand == nil {
		return
	}
	cand.cancel()
	cand.pc.Close()

	if proctor != nil {
		proctor.mu.Lock()
		cand.mu.Lock()
		for _, ft := range cand.tracks {
			if sender, ok := proctor.senders[ft.remote.ID()]; ok {
				_ = proctor.pc.RemoveTrack(sender)
				delete(proctor.senders, ft.remote.ID())
			}
		}
		cand.mu.Unlock()
		proctor.mu.Unlock()
		c.scheduleRenegotiation(room, false)
	}

	c.logger.Info("candidate pc removed", "room", roomID, "userId", userID)
}

// RemoveProctor closes the proctor PC if userID currently holds it.
func (c *Core) RemoveProctor(roomID, userID string) {
	room := c.getRoom(roomID)
	if room == nil {
		return
	}

	room.mu.Lock()
	proctor := room.proctor
	if proctor == nil || proctor.userID != userID {
		room.mu.Unlock()
		return
	}
	room.proctor = nil
	room.renegotiating = false
	room.pending = false
	room.screenFollowUp = false
	room.mu.Unlock()

	proctor.pc.Close()
	c.logger.Info("proctor pc removed", "room", roomID, "userId", userID)
}

// CloseRoom tears down all SFU state for a room.
func (c *Core) CloseRoom(roomID string) {
	c.mu.Lock()
	room := c.rooms[roomID]
	delete(c.rooms, roomID)
	c.mu.Unlock()

	if room == nil {
		return
	}

	room.mu.Lock()
	candidates := make([]*CandidateConnection, 0, len(room.candidates))
	for _, cand := range room.candidates {
		candidates = append(candidates, cand)
	}
	room.candidates = make(map[string]*CandidateConnection)
	proctor := room.proctor
	room.proctor = nil
	room.mu.Unlock()

	for _, cand := range candidates {
		cand.cancel()
		cand.pc.Close()
	}
	if proctor != nil {
		proctor.pc.Close()
	}
}

// RoomStats returns the SFU view of a room. A room with no SFU state yet
// reports zero values.
func (c *Core) RoomStats(roomID string) Stats {
	stats := Stats{RoomID: roomID, Candidates: []string{}}

	room := c.getRoom(roomID)
	if room == nil {
		return stats
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	for userID := range room.candidates {
		stats.Candidates = append(stats.Candidates, userID)
	}
	stats.CandidateCount = len(stats.Candidates)
	if room.proctor != nil {
		id := room.proctor.userID
		stats.Proctor = &id
		stats.HasProctor = true
	}
	return stats
}
