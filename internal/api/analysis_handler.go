package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/observer/proctord/internal/analysis"
	"github.com/observer/proctord/internal/room"
	"github.com/observer/proctord/internal/rules"
)

// AnalysisHandler controls per-candidate analysis tasks and serves incident
// history queries.
type AnalysisHandler struct {
	registry  *room.Registry
	runner    *analysis.Runner
	aiEnabled bool
	logger    *slog.Logger
}

func NewAnalysisHandler(registry *room.Registry, runner *analysis.Runner, aiEnabled bool, logger *slog.Logger) *AnalysisHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalysisHandler{
		registry:  registry,
		runner:    runner,
		aiEnabled: aiEnabled,
		logger:    logger.With("component", "api"),
	}
}

// Start godoc
//
//	@Summary		Start analysis for a candidate
//	@Tags			analysis
//	@Produce		json
//	@Param			roomId		path		string	true	"Room ID"
//	@Param			candidateId	path		string	true	"Candidate user ID"
//	@Success		200			{object}	map[string]string
//	@Failure		503			{object}	map[string]string	"AI analysis disabled"
//	@Router			/api/analysis/start/{roomId}/{candidateId} [post]
func (h *AnalysisHandler) Start(w http.ResponseWriter, r *http.Request) {
	if !h.aiEnabled {
		writeError(w, http.StatusServiceUnavailable, "ai analysis disabled")
		return
	}

	err := h.runner.Start(r.PathValue("roomId"), r.PathValue("candidateId"))
	if errors.Is(err, analysis.ErrAlreadyRunning) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "already_running"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

// Stop godoc
//
//	@Summary		Stop analysis for a candidate
//	@Tags			analysis
//	@Produce		json
//	@Param			candidateId	path		string	true	"Candidate user ID"
//	@Success		200			{object}	map[string]string
//	@Router			/api/analysis/stop/{candidateId} [post]
func (h *AnalysisHandler) Stop(w http.ResponseWriter, r *http.Request) {
	err := h.runner.Stop(r.PathValue("candidateId"))
	if errors.Is(err, analysis.ErrNotRunning) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "not_running"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// History godoc
//
//	@Summary		Candidate incident history
//	@Description	Incidents recorded for one candidate, filterable by time range, level and tag, with a severity count summary
//	@Tags			analysis
//	@Produce		json
//	@Param			roomId		path		string	true	"Room ID"
//	@Param			candidateId	path		string	true	"Candidate user ID"
//	@Param			from_ts		query		int		false	"Lower ts bound (ms, inclusive)"
//	@Param			to_ts		query		int		false	"Upper ts bound (ms, inclusive)"
//	@Param			level		query		string	false	"Severity filter (S1..S4)"
//	@Param			type		query		string	false	"Tag filter (A1..A11)"
//	@Success		200			{object}	map[string]interface{}
//	@Failure		404			{object}	map[string]string	"Unknown room"
//	@Router			/api/analysis/history/{roomId}/{candidateId} [get]
func (h *AnalysisHandler) History(w http.ResponseWriter, r *http.Request) {
	rm := h.registry.Get(r.PathValue("roomId"))
	if rm == nil {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	candidateID := r.PathValue("candidateId")

	q := r.URL.Query()
	fromTS := parseInt64(q.Get("from_ts"), 0)
	toTS := parseInt64(q.Get("to_ts"), 0)
	levelFilter := q.Get("level")
	tagFilter := q.Get("type")

	matched := make([]rules.Incident, 0)
	summary := map[string]int{"S1": 0, "S2": 0, "S3": 0, "S4": 0}
	for _, inc := range rm.Incidents() {
		if inc.UserID != candidateID {
			continue
		}
		if fromTS > 0 && inc.TS < fromTS {
			continue
		}
		if toTS > 0 && inc.TS > toTS {
			continue
		}
		if levelFilter != "" && string(inc.Level) != levelFilter {
			continue
		}
		if tagFilter != "" && inc.Tag != tagFilter {
			continue
		}
		matched = append(matched, inc)
		if _, ok := summary[string(inc.Level)]; ok {
			summary[string(inc.Level)]++
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"roomId":      rm.ID(),
		"candidateId": candidateID,
		"count":       len(matched),
		"incidents":   matched,
		"summary":     summary,
	})
}

func parseInt64(s string, fallback int64) int64 {
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fallback
	}
	return v
}
