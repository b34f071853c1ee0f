package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/observer/proctord/internal/config"
	"github.com/observer/proctord/internal/room"
	"github.com/observer/proctord/internal/rules"
	rtc "github.com/observer/proctord/internal/webrtc"
)

// RoomHandler serves the per-room read endpoints and external incident
// ingestion.
type RoomHandler struct {
	registry *room.Registry
	engine   *rules.Engine
	media    *rtc.Core
	cfg      *config.Config
	logger   *slog.Logger
}

func NewRoomHandler(registry *room.Registry, engine *rules.Engine, media *rtc.Core, cfg *config.Config, logger *slog.Logger) *RoomHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoomHandler{
		registry: registry,
		engine:   engine,
		media:    media,
		cfg:      cfg,
		logger:   logger.With("component", "api"),
	}
}

// GetIncidents godoc
//
//	@Summary		List room incidents
//	@Description	Full processed incident log for a room, in arrival order
//	@Tags			rooms
//	@Produce		json
//	@Param			roomId	path		string	true	"Room ID"
//	@Success		200		{array}		rules.Incident
//	@Failure		404		{object}	map[string]string	"Unknown room"
//	@Router			/rooms/{roomId}/incidents [get]
func (h *RoomHandler) GetIncidents(w http.ResponseWriter, r *http.Request) {
	rm := h.registry.Get(r.PathValue("roomId"))
	if rm == nil {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	writeJSON(w, http.StatusOK, rm.Incidents())
}

type incidentInput struct {
	Tag   *string `json:"tag"`
	Level *string `json:"level"`
	Note  *string `json:"note"`
	TS    *int64  `json:"ts"`
	By    *string `json:"by"`
}

// PostIncident godoc
//
//	@Summary		Report an incident
//	@Description	Append an externally reported incident; it is classified by the rules engine before being stored and returned
//	@Tags			rooms
//	@Accept			json
//	@Produce		json
//	@Param			roomId	path		string			true	"Room ID"
//	@Param			request	body		incidentInput	true	"Incident fields, all required"
//	@Success		200		{object}	map[string]interface{}
//	@Failure		400		{object}	map[string]string	"Missing fields"
//	@Failure		404		{object}	map[string]string	"Unknown room"
//	@Router			/rooms/{roomId}/incidents [post]
func (h *RoomHandler) PostIncident(w http.ResponseWriter, r *http.Request) {
	rm := h.registry.Get(r.PathValue("roomId"))
	if rm == nil {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}

	var input incidentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if input.Tag == nil || input.Level == nil || input.Note == nil || input.TS == nil || input.By == nil {
		writeError(w, http.StatusBadRequest, "missing fields")
		return
	}

	// External reporters carry the subject in `by`.
	processed := h.engine.Process(rm.ID(), *input.By, rules.Incident{
		By:    *input.By,
		Tag:   *input.Tag,
		Level: rules.Level(*input.Level),
		Note:  *input.Note,
		TS:    *input.TS,
	})
	rm.AppendIncident(processed)

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "incident": processed})
}

// GetSessionSummary godoc
//
//	@Summary		Session summary
//	@Description	Rules-engine view of one candidate session: status and per-code alert counters
//	@Tags			rooms
//	@Produce		json
//	@Param			roomId	path		string	true	"Room ID"
//	@Param			userId	path		string	true	"Candidate user ID"
//	@Success		200		{object}	rules.Summary
//	@Failure		404		{object}	map[string]string	"Unknown session"
//	@Router			/rooms/{roomId}/sessions/{userId}/summary [get]
func (h *RoomHandler) GetSessionSummary(w http.ResponseWriter, r *http.Request) {
	summary, ok := h.engine.Summary(r.PathValue("roomId"), r.PathValue("userId"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// GetSFUStats godoc
//
//	@Summary		SFU room stats
//	@Description	Candidate and proctor peer-connection view of a room
//	@Tags			sfu
//	@Produce		json
//	@Param			roomId	path		string	true	"Room ID"
//	@Success		200		{object}	webrtc.Stats
//	@Failure		503		{object}	map[string]string	"SFU disabled"
//	@Router			/rooms/{roomId}/sfu/stats [get]
func (h *RoomHandler) GetSFUStats(w http.ResponseWriter, r *http.Request) {
	if !h.media.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "sfu disabled")
		return
	}
	writeJSON(w, http.StatusOK, h.media.RoomStats(r.PathValue("roomId")))
}

// Health godoc
//
//	@Summary	Service health and feature switches
//	@Tags		health
//	@Produce	json
//	@Success	200	{object}	map[string]interface{}
//	@Router		/health [get]
func (h *RoomHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":                true,
		"sfuEnabled":        h.cfg.SFUEnabled,
		"aiAnalysisEnabled": h.cfg.AIAnalysisEnabled,
		"mode":              h.cfg.Mode(),
	})
}
