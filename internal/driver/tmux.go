package driver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

const tmuxHistoryLimit = "200000"

// TmuxDriver is the local session driver backed by the tmux(1)
// multiplexer (spec §4.4 "local multiplexer implementation"). Session
// names are generated by the caller (orchestrator) as
// "ru-<run_id>-<repo-slug>" per spec §3 SessionHandle; TmuxDriver itself
// only enforces the "ru-" prefix on ListSessions.
type TmuxDriver struct {
	MaxConcurrent int
}

// NewTmuxDriver builds a TmuxDriver with the given max_concurrent bound
// (spec §3 DriverCapabilities.max_concurrent), defaulting to 4 to match
// C7's default sweep width.
func NewTmuxDriver(maxConcurrent int) *TmuxDriver {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &TmuxDriver{MaxConcurrent: maxConcurrent}
}

func (d *TmuxDriver) Capabilities() Capabilities {
	return Capabilities{
		Name:              "tmux-local",
		ParallelSessions:  true,
		ActivityDetection: true,
		HealthMonitoring:  true,
		QuestionRouting:   false,
		MaxConcurrent:     d.MaxConcurrent,
	}
}

// tmuxOutput runs a tmux subcommand and returns its stdout, folding
// stderr into the error (grounded on codex_status.go's tmuxOutput).
func tmuxOutput(ctx context.Context, args ...string) (string, error) {
	if len(args) == 0 {
		return "", errors.New("driver: tmux args required")
	}
	cmd := exec.CommandContext(ctx, "tmux", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return stdout.String(), fmt.Errorf("%w: %s", err, msg)
		}
		return stdout.String(), err
	}
	return stdout.String(), nil
}

func sessionExists(ctx context.Context, id string) bool {
	_, err := tmuxOutput(ctx, "has-session", "-t", id)
	return err == nil
}

// StartSession creates a detached tmux session named id, attached to
// workdir, running command (spec §4.4 start_session).
func (d *TmuxDriver) StartSession(ctx context.Context, id, workdir, command string) error {
	if sessionExists(ctx, id) {
		return ErrAlreadyExists{ID: id}
	}
	if _, err := tmuxOutput(ctx, "new-session", "-d", "-s", id, "-c", workdir, command); err != nil {
		return fmt.Errorf("driver: start session %s: %w", id, err)
	}
	// applyTmuxSessionDefaults, adapted from tmux_defaults.go: a session
	// running a long interactive review should not vanish on exit and
	// should scroll back far enough for the orchestrator to inspect later.
	_, _ = tmuxOutput(ctx, "set-option", "-t", id, "remain-on-exit", "off")
	_, _ = tmuxOutput(ctx, "set-option", "-t", id, "mouse", "on")
	_, _ = tmuxOutput(ctx, "set-option", "-t", id, "history-limit", tmuxHistoryLimit)
	return nil
}

func (d *TmuxDriver) SessionAlive(ctx context.Context, id string) (bool, error) {
	return sessionExists(ctx, id), nil
}

// GetSessionState reports generating/complete/dead by inspecting whether
// the session's pane PID has any live child processes (spec §4.4 "local
// driver state model"): generating when the pane PID has ≥1 child,
// complete when it has zero, dead when the multiplexer reports no such
// session.
func (d *TmuxDriver) GetSessionState(ctx context.Context, id string) (SessionState, error) {
	if !sessionExists(ctx, id) {
		return SessionState{SessionID: id, State: StateDead}, nil
	}
	panePID, err := panePID(ctx, id)
	if err != nil {
		return SessionState{SessionID: id, State: StateUnknown}, nil
	}
	hasChild, err := pidHasChild(ctx, panePID)
	if err != nil {
		return SessionState{SessionID: id, State: StateUnknown}, nil
	}
	if hasChild {
		return SessionState{SessionID: id, State: StateGenerating}, nil
	}
	return SessionState{SessionID: id, State: StateComplete}, nil
}

func panePID(ctx context.Context, id string) (int, error) {
	out, err := tmuxOutput(ctx, "list-panes", "-t", id, "-F", "#{pane_pid}")
	if err != nil {
		return 0, err
	}
	line := strings.TrimSpace(strings.SplitN(strings.TrimSpace(out), "\n", 2)[0])
	return strconv.Atoi(line)
}

// pidHasChild shells out to `ps --ppid` the same way the teacher
// inspects docker-exec'd processes in codex_session_state.go, adapted to
// query the host process tree under the pane's shell PID directly
// instead of going through a container.
func pidHasChild(ctx context.Context, pid int) (bool, error) {
	out, err := exec.CommandContext(ctx, "ps", "--ppid", strconv.Itoa(pid), "--no-headers").Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return false, nil // ps exits 1 when no matching processes are found
		}
		return false, err
	}
	return strings.TrimSpace(string(out)) != "", nil
}

// ListSessions returns all tmux sessions whose name begins with the
// reserved "ru-" prefix (spec §4.4 list_sessions), grounded on
// cleanupStaleTmuxSessions's list-sessions -F usage.
func (d *TmuxDriver) ListSessions(ctx context.Context) ([]string, error) {
	out, err := tmuxOutput(ctx, "list-sessions", "-F", "#{session_name}")
	if err != nil {
		if strings.Contains(err.Error(), "no server running") || strings.Contains(err.Error(), "no current session") {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, SessionPrefix) {
			names = append(names, line)
		}
	}
	return names, nil
}

// SendToSession appends text plus a submit keystroke (Enter) to the
// session's primary pane (spec §4.4 send_to_session).
func (d *TmuxDriver) SendToSession(ctx context.Context, id, text string) error {
	if !sessionExists(ctx, id) {
		return ErrNotFound{ID: id}
	}
	if _, err := tmuxOutput(ctx, "send-keys", "-t", id, "-l", text); err != nil {
		return fmt.Errorf("driver: send to session %s: %w", id, err)
	}
	if _, err := tmuxOutput(ctx, "send-keys", "-t", id, "Enter"); err != nil {
		return fmt.Errorf("driver: submit keystroke to session %s: %w", id, err)
	}
	return nil
}

// InterruptSession sends Ctrl-C to the session's pane (spec §4.4
// interrupt_session).
func (d *TmuxDriver) InterruptSession(ctx context.Context, id string) error {
	if !sessionExists(ctx, id) {
		return ErrNotFound{ID: id}
	}
	if _, err := tmuxOutput(ctx, "send-keys", "-t", id, "C-c"); err != nil {
		return fmt.Errorf("driver: interrupt session %s: %w", id, err)
	}
	return nil
}

// StopSession terminates the session; absence of the session is not an
// error (spec §4.4 stop_session).
func (d *TmuxDriver) StopSession(ctx context.Context, id string) error {
	if !sessionExists(ctx, id) {
		return nil
	}
	_, err := tmuxOutput(ctx, "kill-session", "-t", id)
	return err
}

// StreamEvents is capability-gated and unimplemented by TmuxDriver
// (QuestionRouting=false); it returns a closed, empty channel.
func (d *TmuxDriver) StreamEvents(ctx context.Context, id string) (<-chan Event, error) {
	ch := make(chan Event)
	close(ch)
	return ch, nil
}

// EnsureTmuxAvailable reports whether the tmux binary is on PATH (spec
// §4.4 detect_driver).
func EnsureTmuxAvailable() error {
	if _, err := exec.LookPath("tmux"); err != nil {
		return fmt.Errorf("tmux not found in PATH: %w", err)
	}
	return nil
}
