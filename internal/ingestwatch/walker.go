// Package ingestwatch watches a design artifact directory tree for
// changes and triggers Stage Pipeline re-runs (spec.md §4.4, §5 "the
// fusion engine must tolerate being re-run as new or corrected artifacts
// arrive"). Parsing artifact content is out of scope here, same as it is
// for internal/stage.Ingestor — this package only detects that something
// under a watched extension changed and which stage that implies.
package ingestwatch

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	"github.com/Benny93/dkg-go/internal/provenance"
)

// DefaultStageExtensions maps artifact file extensions to the stage whose
// ingestors are expected to consume them. Callers may supply their own
// map to SetStageExtensions if a project uses different conventions.
var DefaultStageExtensions = map[string]provenance.Stage{
	".v":      provenance.StageRtl,
	".sv":     provenance.StageRtl,
	".vhd":    provenance.StageRtl,
	".vhdl":   provenance.StageRtl,
	".edif":   provenance.StageSynthesis,
	".ngc":    provenance.StageSynthesis,
	".sdc":    provenance.StageConstraints,
	".xdc":    provenance.StageConstraints,
	".pcf":    provenance.StageBoard,
	".ucf":    provenance.StageBoard,
	".pblock": provenance.StageFloorplan,
	".twr":    provenance.StageTiming,
	".sta":    provenance.StageTiming,
}

// defaultIgnorePatterns mirrors common build and VCS noise directories so
// a watch doesn't churn on tool scratch output.
var defaultIgnorePatterns = []string{
	".git/",
	".dkg/",
	"build/",
	"work/",
	"*.jou",
	"*.log",
	".Xil/",
}

// fileEntry is one artifact file discovered under a watched root.
type fileEntry struct {
	Path    string
	RelPath string
	Stage   provenance.Stage
}

func loadGitignore(root string) ([]gitignore.Pattern, error) {
	path := filepath.Join(root, ".gitignore")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var patterns []gitignore.Pattern
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}
	return patterns, nil
}

func buildMatcher(root string) gitignore.Matcher {
	patterns := make([]gitignore.Pattern, 0, len(defaultIgnorePatterns))
	for _, p := range defaultIgnorePatterns {
		patterns = append(patterns, gitignore.ParsePattern(p, nil))
	}
	if loaded, err := loadGitignore(root); err == nil {
		patterns = append(patterns, loaded...)
	}
	return gitignore.NewMatcher(patterns)
}

// walkArtifacts walks root and returns every file whose extension is a key
// in stageExt, skipping directories matched by the gitignore matcher.
func walkArtifacts(root string, stageExt map[string]provenance.Stage, matcher gitignore.Matcher) ([]fileEntry, error) {
	var entries []fileEntry

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relPath, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		pathParts := splitPath(relPath)

		if d.IsDir() {
			if d.Name() == ".git" || matcher.Match(pathParts, true) {
				if path == root {
					return nil
				}
				return filepath.SkipDir
			}
			return nil
		}

		stg, ok := stageExt[strings.ToLower(filepath.Ext(d.Name()))]
		if !ok {
			return nil
		}
		if matcher.Match(pathParts, false) {
			return nil
		}

		entries = append(entries, fileEntry{Path: path, RelPath: relPath, Stage: stg})
		return nil
	})

	return entries, err
}

// ScanStages walks root once and returns the set of stages that have at
// least one matching artifact file present, using the default ignore
// rules plus any .gitignore found at root. The ingest CLI command
// reports the result after running every stage; it does not use it to
// select which stages run.
func ScanStages(root string, stageExt map[string]provenance.Stage) (map[provenance.Stage]bool, error) {
	entries, err := walkArtifacts(root, stageExt, buildMatcher(root))
	if err != nil {
		return nil, err
	}
	out := make(map[provenance.Stage]bool)
	for _, e := range entries {
		out[e.Stage] = true
	}
	return out, nil
}

func splitPath(path string) []string {
	return strings.Split(path, string(filepath.Separator))
}

func stageFor(path string, stageExt map[string]provenance.Stage) (provenance.Stage, bool) {
	stg, ok := stageExt[strings.ToLower(filepath.Ext(path))]
	return stg, ok
}
