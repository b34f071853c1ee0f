// Package rules implements the incident rules engine: it classifies tagged
// observations against the A1..A11 taxonomy, maintains per-session alert
// counters, and applies the escalation thresholds that drive severity levels
// and session status transitions.
package rules

// Level is an incident severity level.
type Level string

const (
	LevelS1 Level = "S1"
	LevelS2 Level = "S2"
	LevelS3 Level = "S3"
	LevelS4 Level = "S4"
)

// rank orders levels for the max tie-break. Unknown levels rank lowest.
func (l Level) rank() int {
	switch l {
	case LevelS1:
		return 1
	case LevelS2:
		return 2
	case LevelS3:
		return 3
	case LevelS4:
		return 4
	default:
		return 0
	}
}

// Max returns the more severe of l and other.
func (l Level) Max(other Level) Level {
	if other.rank() > l.rank() {
		return other
	}
	return l
}

// Session status values. Transitions are monotone: active -> paused -> ended.
const (
	StatusActive = "active"
	StatusPaused = "paused"
	StatusEnded  = "ended"
)

func statusRank(s string) int {
	switch s {
	case StatusActive:
		return 0
	case StatusPaused:
		return 1
	case StatusEnded:
		return 2
	default:
		return -1
	}
}

// CodeInfo describes one taxonomy entry.
type CodeInfo struct {
	Name    string
	Default Level
}

// Taxonomy maps incident codes to their default severity.
var Taxonomy = map[string]CodeInfo{
	"A1":  {Name: "Face absent", Default: LevelS1},
	"A2":  {Name: "Multiple faces", Default: LevelS2},
	"A3":  {Name: "Tab / focus switch", Default: LevelS1},
	"A4":  {Name: "Screen share missing", Default: LevelS2},
	"A5":  {Name: "Prohibited material", Default: LevelS2},
	"A6":  {Name: "Conversational audio", Default: LevelS2},
	"A7":  {Name: "Prohibited device", Default: LevelS2},
	"A8":  {Name: "Excessive motion", Default: LevelS1},
	"A9":  {Name: "Environment tamper", Default: LevelS2},
	"A10": {Name: "Impersonation", Default: LevelS3},
	"A11": {Name: "Idle", Default: LevelS1},
}

// DefaultLevel returns the default severity for a code and whether the code
// is part of the taxonomy.
func DefaultLevel(code string) (Level, bool) {
	info, ok := Taxonomy[code]
	if !ok {
		return "", false
	}
	return info.Default, true
}
