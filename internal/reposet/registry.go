package reposet

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Layout controls how a local clone path is derived from a RepoSpec.
type Layout string

const (
	LayoutFlat   Layout = "flat"
	LayoutNested Layout = "nested"
)

// RepoList is an ordered, deduplicated sequence of RepoSpec (spec §3
// RepoList).
type RepoList struct {
	Specs  []RepoSpec
	Errors []*ParseError
}

// LoadRegistry reads every *.txt file in <config_dir>/repos.d/ in
// lexicographic order, ignoring blank and comment lines, deduplicating by
// github_id (first occurrence wins), per spec §4.1.
func LoadRegistry(reposDir string) (RepoList, error) {
	entries, err := os.ReadDir(reposDir)
	if err != nil {
		if os.IsNotExist(err) {
			return RepoList{}, nil
		}
		return RepoList{}, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)

	var list RepoList
	seen := map[string]int{}
	for _, name := range files {
		path := filepath.Join(reposDir, name)
		if err := loadRegistryFile(path, &list, seen); err != nil {
			return RepoList{}, err
		}
	}
	return list, nil
}

func loadRegistryFile(path string, list *RepoList, seen map[string]int) error {
	f, err := os.Open(path) // #nosec G304 -- path is built from ru's own config directory listing.
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		spec, err := ParseSpec(line)
		if err != nil {
			if pe, ok := err.(*ParseError); ok {
				list.Errors = append(list.Errors, pe)
				continue
			}
			return err
		}
		id := spec.Host + "/" + spec.GithubID()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = len(list.Specs)
		list.Specs = append(list.Specs, spec)
	}
	return scanner.Err()
}

// ResolveLocalPath is a pure function computing the on-disk clone path
// for a spec under projectsDir, per the chosen layout (spec §3, §4.1).
func ResolveLocalPath(spec RepoSpec, projectsDir string, layout Layout) string {
	if layout == LayoutNested {
		return filepath.Join(projectsDir, spec.Owner, spec.Name)
	}
	return filepath.Join(projectsDir, spec.Name)
}

// Hash computes config_hash over this RepoList in its current order.
func (l RepoList) Hash() string {
	return ConfigHash(l.Specs)
}

// Slug derives a filesystem- and tmux-session-safe identifier for a repo,
// used for worktree directory names and session handles (spec §4.5, §4.4).
func Slug(spec RepoSpec) string {
	return spec.Owner + "-" + spec.Name
}
