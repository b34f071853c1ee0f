// Package analysis simulates the AI analysis pipeline: a per-candidate task
// emits synthetic analysis frames on a randomized tick, and any alerts they
// carry are fed through the rules engine as authoritative incidents.
package analysis

import (
	"math/rand"
	"sync"
	"time"

	"github.com/observer/proctord/internal/rules"
)

// Scenario names.
const (
	ScenarioNormal           = "normal"
	ScenarioNoFace           = "no_face"
	ScenarioMultipleFaces    = "multiple_faces"
	ScenarioFaceMismatch     = "face_mismatch"
	ScenarioFaceTurned       = "face_turned"
	ScenarioSearchEngine     = "search_engine"
	ScenarioChatApp          = "chat_app"
	ScenarioVoiceDetected    = "voice_detected"
	ScenarioMultipleSpeakers = "multiple_speakers"
	ScenarioLookingAway      = "looking_away"
)

// scenarioWeights is the sampling distribution for synthetic frames.
var scenarioWeights = []struct {
	name   string
	weight float64
}{
	{ScenarioNormal, 0.75},
	{ScenarioNoFace, 0.08},
	{ScenarioSearchEngine, 0.04},
	{ScenarioFaceTurned, 0.03},
	{ScenarioVoiceDetected, 0.03},
	{ScenarioMultipleFaces, 0.02},
	{ScenarioChatApp, 0.02},
	{ScenarioFaceMismatch, 0.01},
	{ScenarioMultipleSpeakers, 0.01},
	{ScenarioLookingAway, 0.01},
}

// scenarioCodes maps each violation scenario to its taxonomy code.
var scenarioCodes = map[string]string{
	ScenarioNoFace:           "A1",
	ScenarioMultipleFaces:    "A2",
	ScenarioSearchEngine:     "A5",
	ScenarioChatApp:          "A5",
	ScenarioVoiceDetected:    "A6",
	ScenarioMultipleSpeakers: "A6",
	ScenarioFaceTurned:       "A8",
	ScenarioLookingAway:      "A8",
	ScenarioFaceMismatch:     "A10",
}

// Alert is a violation surfaced by one modality of a frame. Type is an
// incident-taxonomy code; Level is the taxonomy default.
type Alert struct {
	Type    string      `json:"type"`
	Level   rules.Level `json:"level"`
	Message string      `json:"message"`
}

// Modality is one sub-analysis within a frame.
type Modality struct {
	Type   string         `json:"type"`
	Result map[string]any `json:"result"`
	Alert  *Alert         `json:"alert,omitempty"`
}

// Frame is one synthetic analysis result delivered to the candidate and the
// proctor. Field names follow the analysis wire format, not Go convention.
type Frame struct {
	Timestamp   int64      `json:"timestamp"`
	CandidateID string     `json:"candidate_id"`
	RoomID      string     `json:"room_id"`
	Scenario    string     `json:"scenario"`
	Analyses    []Modality `json:"analyses"`
}

// Alerts collects the non-nil alerts of a frame.
func (f *Frame) Alerts() []Alert {
	var out []Alert
	for _, m := range f.Analyses {
		if m.Alert != nil {
			out = append(out, *m.Alert)
		}
	}
	return out
}

// Analyzer generates synthetic frames without real models behind it.
type Analyzer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewAnalyzer seeds the analyzer from the wall clock.
func NewAnalyzer() *Analyzer {
	return &Analyzer{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// AnalyzeFrame samples a scenario and builds the matching frame for one
// candidate.
func (a *Analyzer) AnalyzeFrame(roomID, candidateID string) Frame {
	a.mu.Lock()
	defer a.mu.Unlock()

	scenario := a.chooseScenario()
	return Frame{
		Timestamp:   time.Now().UnixMilli(),
		CandidateID: candidateID,
		RoomID:      roomID,
		Scenario:    scenario,
		Analyses:    a.generate(scenario),
	}
}

func (a *Analyzer) chooseScenario() string {
	r := a.rng.Float64()
	acc := 0.0
	for _, s := range scenarioWeights {
		acc += s.weight
		if r < acc {
			return s.name
		}
	}
	return ScenarioNormal
}

func alertFor(scenario, message string) *Alert {
	code := scenarioCodes[scenario]
	level, _ := rules.DefaultLevel(code)
	return &Alert{Type: code, Level: level, Message: message}
}

func (a *Analyzer) generate(scenario string) []Modality {
	switch scenario {
	case ScenarioNoFace:
		return []Modality{
			{
				Type: "face_detection",
				Result: map[string]any{
					"faces_detected": 0,
					"confidence":     0.0,
					"status":         "no_face",
				},
				Alert: alertFor(scenario, "No face detected in camera frame"),
			},
			{
				Type: "behavior_analysis",
				Result: map[string]any{
					"gaze_direction":       "unknown",
					"looking_away_duration": a.uniform(2, 10),
					"left_camera":          true,
					"status":               "left_camera",
				},
			},
		}
	case ScenarioMultipleFaces:
		n := 2 + a.rng.Intn(2)
		return []Modality{{
			Type: "face_detection",
			Result: map[string]any{
				"faces_detected": n,
				"confidence":     a.uniform(0.75, 0.92),
				"status":         "multiple_faces",
			},
			Alert: alertFor(scenario, "Multiple faces detected in camera frame"),
		}}
	case ScenarioFaceMismatch:
		return []Modality{{
			Type: "face_recognition",
			Result: map[string]any{
				"is_verified":      false,
				"similarity_score": a.uniform(0.25, 0.48),
				"status":           "mismatch",
			},
			Alert: alertFor(scenario, "Face does not match verified identity"),
		}}
	case ScenarioFaceTurned:
		return []Modality{{
			Type: "face_detection",
			Result: map[string]any{
				"faces_detected": 1,
				"confidence":     a.uniform(0.35, 0.55),
				"status":         "face_turned",
			},
			Alert: alertFor(scenario, "Face turned away from camera"),
		}}
	case ScenarioSearchEngine:
		return []Modality{{
			Type: "screen_analysis",
			Result: map[string]any{
				"detected_apps":       []string{"chrome"},
				"suspicious_keywords": []string{"google", "search", "chatgpt"},
				"suspicious_score":    a.uniform(0.8, 0.95),
				"status":              "suspicious",
			},
			Alert: alertFor(scenario, "Search engine activity on shared screen"),
		}}
	case ScenarioChatApp:
		apps := []string{"messenger", "discord", "telegram", "whatsapp"}
		return []Modality{{
			Type: "screen_analysis",
			Result: map[string]any{
				"detected_apps":       []string{apps[a.rng.Intn(len(apps))]},
				"suspicious_keywords": []string{"chat"},
				"suspicious_score":    a.uniform(0.85, 0.98),
				"status":              "violation",
			},
			Alert: alertFor(scenario, "Chat application on shared screen"),
		}}
	case ScenarioVoiceDetected:
		return []Modality{{
			Type: "audio_analysis",
			Result: map[string]any{
				"voice_detected":    true,
				"speaking_duration": a.uniform(1.5, 5.0),
				"num_speakers":      1,
				"status":            "speaking",
			},
			Alert: alertFor(scenario, "Voice activity detected"),
		}}
	case ScenarioMultipleSpeakers:
		return []Modality{{
			Type: "audio_analysis",
			Result: map[string]any{
				"voice_detected":    true,
				"speaking_duration": a.uniform(3.0, 8.0),
				"num_speakers":      2 + a.rng.Intn(2),
				"status":            "multiple_speakers",
			},
			Alert: alertFor(scenario, "Multiple speakers detected"),
		}}
	case ScenarioLookingAway:
		directions := []string{"left", "right", "down", "up"}
		return []Modality{{
			Type: "behavior_analysis",
			Result: map[string]any{
				"gaze_direction":       directions[a.rng.Intn(len(directions))],
				"looking_away_duration": a.uniform(3, 8),
				"left_camera":          false,
				"status":               "looking_away",
			},
			Alert: alertFor(scenario, "Candidate looking away from screen"),
		}}
	default:
		return []Modality{
			{
				Type: "face_detection",
				Result: map[string]any{
					"faces_detected": 1,
					"confidence":     a.uniform(0.85, 0.98),
					"status":         "normal",
				},
			},
			{
				Type: "face_recognition",
				Result: map[string]any{
					"is_verified":      true,
					"similarity_score": a.uniform(0.78, 0.95),
					"status":           "verified",
				},
			},
			{
				Type: "screen_analysis",
				Result: map[string]any{
					"detected_apps":       []string{"exam_browser"},
					"suspicious_keywords": []string{},
					"suspicious_score":    0.0,
					"status":              "clean",
				},
			},
			{
				Type: "audio_analysis",
				Result: map[string]any{
					"voice_detected":    false,
					"speaking_duration": 0,
					"num_speakers":      0,
					"status":            "silent",
				},
			},
			{
				Type: "behavior_analysis",
				Result: map[string]any{
					"gaze_direction": "center",
					"left_camera":    false,
					"movement_score": a.uniform(0.1, 0.3),
					"status":         "normal",
				},
			},
		}
	}
}

func (a *Analyzer) uniform(lo, hi float64) float64 {
	return lo + a.rng.Float64()*(hi-lo)
}
