package driver

import (
	"os/exec"
)

// NoneDriverName is the sentinel driver name when no backing multiplexer
// binary is available (spec §4.4 detect_driver).
const NoneDriverName = "none"

// DetectDriver returns the name of the first available driver: preferred
// (from config [driver].preferred, spec §4.4 detect_driver's "operator
// override" path) if it's a known driver name, else a network-multiplexer
// driver if its binary is on the path, else the local tmux driver if its
// binary is on the path, else "none". The pack carries no grounding for a
// network-multiplexer binary (no example repo wraps e.g. a remote
// pane-sharing tool), so only the local tmux check is implemented here;
// see DESIGN.md for that decision. preferred does not bypass LoadDriver's
// own binary-availability check — an operator who names a driver whose
// binary is missing still gets ErrUnavailable from LoadDriver, not a
// silent fallback.
func DetectDriver(preferred string, lookPath func(string) (string, error)) string {
	switch preferred {
	case "tmux-local", NoneDriverName:
		return preferred
	}
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if _, err := lookPath("tmux"); err == nil {
		return "tmux-local"
	}
	return NoneDriverName
}

// LoadDriver binds the unified Driver operations to the named
// implementation (spec §4.4 load_driver). "none" and unknown names
// return ErrInvalidDriver.
func LoadDriver(name string, maxConcurrent int) (Driver, error) {
	switch name {
	case "tmux-local":
		if err := EnsureTmuxAvailable(); err != nil {
			return nil, ErrUnavailable{Reason: err.Error()}
		}
		return NewTmuxDriver(maxConcurrent), nil
	case NoneDriverName, "":
		return nil, ErrUnavailable{Reason: "no session driver available"}
	default:
		return nil, ErrInvalidDriver{Name: name}
	}
}
