// Package state resolves ru's on-disk layout (spec §4.6) and renders the
// JSON output envelope (spec §4.6, §6).
package state

import (
	"os"
	"path/filepath"
	"strings"
)

// Paths is the immutable set of directories ru operates against, resolved
// once at process start from the environment per spec's Design Notes §9
// ("Global paths... captured once into an immutable Paths value... No
// ambient globals beyond that value").
type Paths struct {
	ConfigDir    string // <config_dir>/ru
	StateDir     string // <state_dir>/ru
	CacheDir     string // <cache_dir>/ru
	ProjectsDir  string // clone root
	WorktreesDir string // <worktrees_dir>
}

// Resolve computes Paths from the process environment, honoring the XDG
// base-directory variables and RU_PROJECTS_DIR (spec §6 Environment).
func Resolve(env func(string) string) Paths {
	if env == nil {
		env = os.Getenv
	}
	home := env("HOME")

	configRoot := firstNonEmpty(env("XDG_CONFIG_HOME"), joinIfNotEmpty(home, ".config"))
	stateRoot := firstNonEmpty(env("XDG_STATE_HOME"), joinIfNotEmpty(home, ".local", "state"))
	cacheRoot := firstNonEmpty(env("XDG_CACHE_HOME"), joinIfNotEmpty(home, ".cache"))

	configDir := filepath.Join(configRoot, "ru")
	stateDir := filepath.Join(stateRoot, "ru")
	cacheDir := filepath.Join(cacheRoot, "ru")

	projectsDir := firstNonEmpty(env("RU_PROJECTS_DIR"), joinIfNotEmpty(home, "projects"))

	return Paths{
		ConfigDir:    configDir,
		StateDir:     stateDir,
		CacheDir:     cacheDir,
		ProjectsDir:  projectsDir,
		WorktreesDir: filepath.Join(stateDir, "worktrees"),
	}
}

func (p Paths) ReposDir() string              { return filepath.Join(p.ConfigDir, "repos.d") }
func (p Paths) ConfigFile() string            { return filepath.Join(p.ConfigDir, "config.toml") }
func (p Paths) ReviewLockFile() string        { return filepath.Join(p.StateDir, "review.lock") }
func (p Paths) ReviewLockInfoFile() string    { return filepath.Join(p.StateDir, "review.lock.info") }
func (p Paths) ReviewCheckpointFile() string  { return filepath.Join(p.StateDir, "review", "review-checkpoint.json") }
func (p Paths) ReviewDir() string             { return filepath.Join(p.StateDir, "review") }
func (p Paths) LogsDir() string               { return filepath.Join(p.StateDir, "logs") }
func (p Paths) AgentSweepDir() string         { return filepath.Join(p.StateDir, "agent-sweep") }
func (p Paths) BackoffStateFile() string      { return filepath.Join(p.AgentSweepDir(), "backoff.state") }
func (p Paths) AgentSweepLocksDir() string    { return filepath.Join(p.AgentSweepDir(), "locks") }
func (p Paths) WorktreeMappingFile() string   { return filepath.Join(p.WorktreesDir, "mapping.json") }
func (p Paths) RunWorktreesDir(runID string) string {
	return filepath.Join(p.WorktreesDir, runID)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func joinIfNotEmpty(base string, parts ...string) string {
	if strings.TrimSpace(base) == "" {
		return ""
	}
	all := append([]string{base}, parts...)
	return filepath.Join(all...)
}
