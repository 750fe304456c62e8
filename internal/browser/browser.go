// Package browser is the boundary to the stateful browser-like session
// some acquisition capabilities need. The orchestration code only ever
// sees the Session interface; the chromedp implementation drives a real
// Chrome, and ScriptedSession stands in for it in tests.
package browser

import (
	"context"
	"time"
)

// Options configures one session. A session is owned by exactly one
// acquisition flow and must be closed on every exit path.
type Options struct {
	Headless    bool
	SlowMo      time.Duration // pause inserted after each action
	Trace       bool          // capture a diagnostic artifact on close
	TraceDir    string        // where the trace artifact lands
	DownloadDir string        // staging directory for browser downloads
}

// Download is one file produced by the remote site, staged on local disk.
type Download struct {
	SuggestedName string // name the site proposed
	Path          string // staged location, caller moves it into place
}

// Session is a live browser-like session. Selectors are CSS queries;
// queries starting with "//" are treated as XPath, which the flows use
// for text-based lookups.
type Session interface {
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	WaitURL(ctx context.Context, prefix string, timeout time.Duration) error
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
	SelectOption(ctx context.Context, selector, value string) error
	Text(ctx context.Context, selector string) (string, error)
	Evaluate(ctx context.Context, script string) error
	IsChecked(ctx context.Context, selector string) (bool, error)
	SetChecked(ctx context.Context, selector string, checked bool) error

	// Download clicks the trigger and waits for the resulting download
	// to finish, within the given limit.
	Download(ctx context.Context, trigger string, timeout time.Duration) (Download, error)

	// Close releases the session. It never leaves a live browser behind,
	// and saves the trace artifact first when tracing is on.
	Close(ctx context.Context) error
}

// Launcher opens sessions. Acquisition capabilities receive one by
// injection so tests can substitute a scripted implementation.
type Launcher interface {
	Launch(ctx context.Context, opts Options) (Session, error)
}
