package configstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// checkpointNamePattern matches the `YYYYMMDD-HH:MM:SS` directory
// names checkpoints are stamped with (spec §6.3).
var checkpointNamePattern = regexp.MustCompile(`^\d{8}-\d{2}:\d{2}:\d{2}$`)

const checkpointTimeLayout = "20060102-15:04:05"

// checkpointGlobs lists the well-known files a checkpoint snapshots;
// per-device env/matrix files are discovered by directory listing
// since their names are device-specific.
var checkpointGlobs = []string{DefaultsFile, ObserversFile, RegionsFile, GroupsFile, NikNamesFile, BlueprintsFile}

// Checkpoint snapshots the store's current configuration files into a
// new `<configDir>/YYYYMMDD-HH:MM:SS/` directory and returns its name.
func (s *Store) Checkpoint(now time.Time) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	name := now.Format(checkpointTimeLayout)
	dir := filepath.Join(s.dir, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("configstore: create checkpoint dir: %w", err)
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return "", fmt.Errorf("configstore: list %s: %w", s.dir, err)
	}
	var names []string
	names = append(names, checkpointGlobs...)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n := e.Name()
		if strings.HasSuffix(n, ".env") || strings.HasSuffix(n, ".matrix.json") {
			names = append(names, n)
		}
	}

	for _, name := range names {
		if err := copyIfExists(filepath.Join(s.dir, name), filepath.Join(dir, name)); err != nil {
			return "", err
		}
	}
	return name, nil
}

func copyIfExists(src, dst string) error {
	in, err := os.Open(src)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("configstore: open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("configstore: create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("configstore: copy %s: %w", src, err)
	}
	return nil
}

// ListCheckpoints returns every checkpoint directory name under the
// store's root, sorted oldest-first (lexicographic order matches
// chronological order for the fixed-width timestamp name).
func (s *Store) ListCheckpoints() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("configstore: list %s: %w", s.dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && checkpointNamePattern.MatchString(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Resolve returns a Store rooted at the checkpoint selected by tag:
// "latest" picks the most recent checkpoint, anything else must name
// an existing checkpoint directory exactly (spec §6.3:
// `readCheckPoint=latest|<timestamp>`).
func (s *Store) Resolve(tag string) (*Store, error) {
	checkpoints, err := s.ListCheckpoints()
	if err != nil {
		return nil, err
	}
	if len(checkpoints) == 0 {
		return nil, fmt.Errorf("configstore: no checkpoints under %s", s.dir)
	}

	name := tag
	if tag == "latest" {
		name = checkpoints[len(checkpoints)-1]
	} else if !checkpointNamePattern.MatchString(tag) {
		return nil, fmt.Errorf("configstore: invalid checkpoint tag %q", tag)
	}

	found := false
	for _, c := range checkpoints {
		if c == name {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("configstore: checkpoint %q not found", name)
	}
	return New(filepath.Join(s.dir, name)), nil
}
