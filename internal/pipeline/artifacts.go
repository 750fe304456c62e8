package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// WriteTraceback persists a diagnostic artifact for a failed report and
// returns its path. The file holds the unwrapped error chain, outermost
// first, so the failing layer can be read without rerunning the job.
// Panic errors already carry their stack in the message.
func WriteTraceback(dir, service, subService string, jobErr error) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "report: %s - %s\n", service, subService)
	fmt.Fprintf(&b, "written: %s\n\n", time.Now().UTC().Format(time.RFC3339))
	b.WriteString("error chain:\n")
	depth := 0
	for err := jobErr; err != nil; err = errors.Unwrap(err) {
		fmt.Fprintf(&b, "%s- %s\n", strings.Repeat("  ", depth), err.Error())
		depth++
	}
	path := filepath.Join(dir, fmt.Sprintf("traceback_%s_%s.txt", service, subService))
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", err
	}
	return path, nil
}
