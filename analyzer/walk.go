package analyzer

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// CollectFiles enumerates supported audio files under root, recursively.
// Symlinks are followed; cycles are broken on resolved-path identity.
// Directories that cannot be read become failure entries rather than
// aborting the walk. The result is sorted for deterministic downstream
// ordering.
func CollectFiles(root string, extensions []string) ([]string, []Failure, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, nil, err
	}
	if !info.IsDir() {
		return nil, nil, &os.PathError{Op: "walk", Path: root, Err: os.ErrInvalid}
	}

	visited := map[string]bool{}
	var files []string
	var failures []Failure

	var walk func(dir string)
	walk = func(dir string) {
		resolved, err := filepath.EvalSymlinks(dir)
		if err != nil {
			failures = append(failures, Failure{Path: dir, Reason: FailUnreadable, Err: err})
			return
		}
		if visited[resolved] {
			return
		}
		visited[resolved] = true

		entries, err := os.ReadDir(dir)
		if err != nil {
			failures = append(failures, Failure{Path: dir, Reason: FailUnreadable, Err: err})
			return
		}
		for _, e := range entries {
			full := filepath.Join(dir, e.Name())
			st, err := os.Stat(full) // resolves symlinked entries
			if err != nil {
				failures = append(failures, Failure{Path: full, Reason: FailUnreadable, Err: err})
				continue
			}
			if st.IsDir() {
				walk(full)
				continue
			}
			if hasExtension(e.Name(), extensions) {
				files = append(files, full)
			}
		}
	}
	walk(root)

	sort.Strings(files)
	return files, failures, nil
}

func hasExtension(name string, extensions []string) bool {
	ext := filepath.Ext(name)
	for _, want := range extensions {
		if strings.EqualFold(ext, want) {
			return true
		}
	}
	return false
}
