// Package driver implements the session driver abstraction from spec
// §4.4: a capability-typed interface over an interactive review session,
// plus a concrete local tmux-backed implementation. Grounded on the
// teacher's tmux helpers in codex_status.go (tmuxOutput, tmuxSendKeys,
// tmuxCapture, cleanupStaleTmuxSessions), generalized from a single
// codex-container session to ru's one-session-per-repo fleet model.
package driver

import "context"

// SessionPrefix is the reserved prefix every driver-managed session name
// begins with (spec §3 SessionHandle, §4.4 list_sessions).
const SessionPrefix = "ru-"

// State is a session's lifecycle state (spec §3 SessionHandle, §4.4
// get_session_state).
type State string

const (
	StateDead       State = "dead"
	StateUnknown    State = "unknown"
	StateGenerating State = "generating"
	StateComplete   State = "complete"
)

// Capabilities describes a driver instance; immutable for the lifetime
// of one process (spec §3 DriverCapabilities).
type Capabilities struct {
	Name               string `json:"name"`
	ParallelSessions   bool   `json:"parallel_sessions"`
	ActivityDetection  bool   `json:"activity_detection"`
	HealthMonitoring   bool   `json:"health_monitoring"`
	QuestionRouting    bool   `json:"question_routing"`
	MaxConcurrent      int    `json:"max_concurrent"`
}

// SessionState is get_session_state's return value (spec §4.4).
type SessionState struct {
	SessionID string `json:"session_id"`
	State     State  `json:"state"`
}

// Event is one entry from a driver's optional stream_events sequence.
type Event struct {
	SessionID string
	Text      string
}

// Driver is the unified operation set every implementation exposes (spec
// §4.4). Implementations declare which operations are meaningful via
// Capabilities; a driver with ActivityDetection=false may still
// implement get_session_state, just always returning StateUnknown.
type Driver interface {
	Capabilities() Capabilities
	StartSession(ctx context.Context, id, workdir, command string) error
	SessionAlive(ctx context.Context, id string) (bool, error)
	GetSessionState(ctx context.Context, id string) (SessionState, error)
	ListSessions(ctx context.Context) ([]string, error)
	SendToSession(ctx context.Context, id, text string) error
	InterruptSession(ctx context.Context, id string) error
	StopSession(ctx context.Context, id string) error
	StreamEvents(ctx context.Context, id string) (<-chan Event, error)
}

// Errors returned by Driver implementations, matching spec §7's
// session-driver error kinds.
type (
	ErrAlreadyExists struct{ ID string }
	ErrNotFound      struct{ ID string }
	ErrUnavailable   struct{ Reason string }
	ErrInvalidDriver struct{ Name string }
)

func (e ErrAlreadyExists) Error() string { return "session already exists: " + e.ID }
func (e ErrNotFound) Error() string      { return "session not found: " + e.ID }
func (e ErrUnavailable) Error() string   { return "driver unavailable: " + e.Reason }
func (e ErrInvalidDriver) Error() string { return "invalid driver: " + e.Name }
