package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"go-report-etl/internal/model"
)

// Priority ranks derived from filename tags; lower runs earlier.
const (
	rankPermanent = iota // [PP]
	rankOneShot          // [P]
	rankHigh             // [H]
	rankNormal           // untagged
	rankLow              // [L]
)

// rank maps a descriptor file to its execution rank. Tags are matched on
// the uppercased basename prefix, so [p]ventas.yaml and [P]ventas.yaml
// rank the same.
func rank(path string) int {
	base := strings.ToUpper(filepath.Base(path))
	switch {
	case strings.HasPrefix(base, "[PP]"):
		return rankPermanent
	case strings.HasPrefix(base, "[P]"):
		return rankOneShot
	case strings.HasPrefix(base, "[H]"):
		return rankHigh
	case strings.HasPrefix(base, "[L]"):
		return rankLow
	}
	return rankNormal
}

// Discover lists the descriptor files a run will execute, in order.
// Files tagged [D] never run. The rest sort by rank with ties kept in
// directory order, and when any priority file ([PP] or [P]) is present
// only the priority files run; everything else waits for a later pass.
func Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading config dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}
		if strings.HasPrefix(strings.ToUpper(entry.Name()), "[D]") {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.SliceStable(files, func(i, j int) bool { return rank(files[i]) < rank(files[j]) })

	var priority []string
	for _, file := range files {
		if rank(file) <= rankOneShot {
			priority = append(priority, file)
		}
	}
	if len(priority) > 0 {
		return priority, nil
	}
	return files, nil
}

// jobFile pairs a descriptor file with the jobs it declares.
type jobFile struct {
	Path string
	Jobs []model.JobDescriptor
}

// loadJobFiles parses every descriptor file up front, so one malformed
// file aborts the run before any job executes.
func loadJobFiles(paths []string) ([]jobFile, error) {
	files := make([]jobFile, 0, len(paths))
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
		}
		var jobs []model.JobDescriptor
		if err := yaml.Unmarshal(raw, &jobs); err != nil {
			return nil, model.Configf("parsing %s: %v", filepath.Base(path), err)
		}
		files = append(files, jobFile{Path: path, Jobs: jobs})
	}
	return files, nil
}

var (
	plainTag    = regexp.MustCompile(`(?i)\[P\]`)
	combinedTag = regexp.MustCompile(`(?i)\[([^\]]*)P([^\]]*)\]`)
)

// stripOneShotTag removes the one-shot marker from a file name: a plain
// [P] disappears entirely, a combined tag like [PH] keeps its remaining
// letters, and brackets left empty are dropped.
func stripOneShotTag(name string) string {
	out := plainTag.ReplaceAllString(name, "")
	out = combinedTag.ReplaceAllString(out, "[$1$2]")
	return strings.ReplaceAll(out, "[]", "")
}

// TagRename records one on-disk rename performed while consuming
// one-shot priority tags.
type TagRename struct {
	OldName string
	NewName string
}

// ConsumeOneShotTags renames the run's files so [P]-style tags apply to
// exactly one run. It executes after every run, successful or not. [PP]
// files are permanent and left alone. A rename failure is logged and
// skipped so one bad file cannot block the sweep.
func ConsumeOneShotTags(files []string, log zerolog.Logger) []TagRename {
	var renames []TagRename
	for _, file := range files {
		dir, base := filepath.Split(file)
		if strings.Contains(strings.ToUpper(base), "[PP]") {
			continue
		}
		renamed := stripOneShotTag(base)
		if renamed == base {
			continue
		}
		if err := os.Rename(file, filepath.Join(dir, renamed)); err != nil {
			log.Error().Err(err).Str("file", base).Msg("removing priority tag")
			continue
		}
		renames = append(renames, TagRename{OldName: base, NewName: renamed})
	}
	return renames
}
