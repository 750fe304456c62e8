package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ScriptedLauncher hands out a fixed session. Tests inspect the session
// after the capability under test has run.
type ScriptedLauncher struct {
	Session *ScriptedSession
	Err     error
}

func (l *ScriptedLauncher) Launch(ctx context.Context, opts Options) (Session, error) {
	if l.Err != nil {
		return nil, l.Err
	}
	l.Session.opts = opts
	return l.Session, nil
}

// ScriptedSession replays canned responses instead of driving a real
// browser. Every call is recorded so tests can assert on the exact
// interaction sequence.
type ScriptedSession struct {
	// TextValues maps a selector to the text returned by Text.
	TextValues map[string]string
	// Checked maps a selector to the state returned by IsChecked.
	Checked map[string]bool
	// DownloadName and DownloadContent describe the file produced by
	// Download. The content is written to the session's download dir.
	DownloadName    string
	DownloadContent []byte
	// FailOn makes the named call return FailErr.
	FailOn  string
	FailErr error

	Calls  []string
	Closed bool

	opts Options
}

func (s *ScriptedSession) record(call string) error {
	s.Calls = append(s.Calls, call)
	if s.FailOn != "" && s.FailOn == callName(call) {
		if s.FailErr != nil {
			return s.FailErr
		}
		return fmt.Errorf("scripted failure on %s", s.FailOn)
	}
	return nil
}

func callName(call string) string {
	for i := 0; i < len(call); i++ {
		if call[i] == ' ' {
			return call[:i]
		}
	}
	return call
}

func (s *ScriptedSession) Navigate(ctx context.Context, url string) error {
	return s.record("Navigate " + url)
}

func (s *ScriptedSession) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	return s.record("WaitVisible " + selector)
}

func (s *ScriptedSession) WaitURL(ctx context.Context, prefix string, timeout time.Duration) error {
	return s.record("WaitURL " + prefix)
}

func (s *ScriptedSession) Click(ctx context.Context, selector string) error {
	return s.record("Click " + selector)
}

func (s *ScriptedSession) Fill(ctx context.Context, selector, value string) error {
	return s.record("Fill " + selector + "=" + value)
}

func (s *ScriptedSession) SelectOption(ctx context.Context, selector, value string) error {
	return s.record("SelectOption " + selector + "=" + value)
}

func (s *ScriptedSession) Text(ctx context.Context, selector string) (string, error) {
	if err := s.record("Text " + selector); err != nil {
		return "", err
	}
	return s.TextValues[selector], nil
}

func (s *ScriptedSession) Evaluate(ctx context.Context, script string) error {
	return s.record("Evaluate " + script)
}

func (s *ScriptedSession) IsChecked(ctx context.Context, selector string) (bool, error) {
	if err := s.record("IsChecked " + selector); err != nil {
		return false, err
	}
	return s.Checked[selector], nil
}

func (s *ScriptedSession) SetChecked(ctx context.Context, selector string, checked bool) error {
	if err := s.record(fmt.Sprintf("SetChecked %s=%t", selector, checked)); err != nil {
		return err
	}
	if s.Checked == nil {
		s.Checked = make(map[string]bool)
	}
	s.Checked[selector] = checked
	return nil
}

func (s *ScriptedSession) Download(ctx context.Context, trigger string, timeout time.Duration) (Download, error) {
	if err := s.record("Download " + trigger); err != nil {
		return Download{}, err
	}
	dir := s.opts.DownloadDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Download{}, err
	}
	path := filepath.Join(dir, s.DownloadName)
	if err := os.WriteFile(path, s.DownloadContent, 0o644); err != nil {
		return Download{}, err
	}
	return Download{SuggestedName: s.DownloadName, Path: path}, nil
}

func (s *ScriptedSession) Close(ctx context.Context) error {
	s.Closed = true
	s.Calls = append(s.Calls, "Close")
	return nil
}
