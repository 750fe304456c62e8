package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"go-report-etl/internal/model"
)

// ChromeLauncher starts headless Chrome sessions over the DevTools
// protocol.
type ChromeLauncher struct{}

// NewChromeLauncher returns the production launcher.
func NewChromeLauncher() *ChromeLauncher {
	return &ChromeLauncher{}
}

// Launch allocates a browser and arms download capture. The returned
// session must be closed by the caller.
func (l *ChromeLauncher) Launch(ctx context.Context, opts Options) (Session, error) {
	if opts.DownloadDir == "" {
		dir, err := os.MkdirTemp("", "etl-downloads-*")
		if err != nil {
			return nil, fmt.Errorf("creating download staging dir: %w", err)
		}
		opts.DownloadDir = dir
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	taskCtx, cancelTask := chromedp.NewContext(allocCtx)

	s := &chromeSession{
		ctx:         taskCtx,
		cancel:      func() { cancelTask(); cancelAlloc() },
		opts:        opts,
		downloads:   make(map[string]chan string),
		suggestions: make(map[string]string),
	}
	s.listenDownloads()

	err := chromedp.Run(taskCtx,
		cdpbrowser.
			SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(opts.DownloadDir).
			WithEventsEnabled(true),
	)
	if err != nil {
		s.cancel()
		return nil, fmt.Errorf("starting browser session: %w", err)
	}
	return s, nil
}

type chromeSession struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   Options

	mu          sync.Mutex
	downloads   map[string]chan string // guid -> completion signal
	suggestions map[string]string      // guid -> suggested file name
	lastGUID    string
	closed      bool
}

// listenDownloads tracks DevTools download events so Download can block
// until the staged file is complete.
func (s *chromeSession) listenDownloads() {
	chromedp.ListenTarget(s.ctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *cdpbrowser.EventDownloadWillBegin:
			s.mu.Lock()
			s.suggestions[e.GUID] = e.SuggestedFilename
			s.downloads[e.GUID] = make(chan string, 1)
			s.lastGUID = e.GUID
			s.mu.Unlock()
		case *cdpbrowser.EventDownloadProgress:
			if e.State != cdpbrowser.DownloadProgressStateCompleted {
				return
			}
			s.mu.Lock()
			if ch, ok := s.downloads[e.GUID]; ok {
				ch <- filepath.Join(s.opts.DownloadDir, e.GUID)
			}
			s.mu.Unlock()
		}
	})
}

// run executes actions with the session's slow-motion pause applied.
func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx := s.ctx
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithDeadline(s.ctx, deadline)
		defer cancel()
	}
	if err := chromedp.Run(runCtx, actions...); err != nil {
		return err
	}
	if s.opts.SlowMo > 0 {
		time.Sleep(s.opts.SlowMo)
	}
	return nil
}

// byKind picks XPath matching for "//" queries and CSS otherwise.
func byKind(selector string) chromedp.QueryOption {
	if strings.HasPrefix(selector, "//") || strings.HasPrefix(selector, "(//") {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, chromedp.Navigate(url))
}

func (s *chromeSession) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := s.run(waitCtx, chromedp.WaitVisible(selector, byKind(selector)))
	if errors.Is(err, context.DeadlineExceeded) {
		return &model.TimeoutError{Op: "wait for " + selector, Limit: timeout}
	}
	return err
}

func (s *chromeSession) WaitURL(ctx context.Context, prefix string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		var current string
		if err := s.run(waitCtx, chromedp.Location(&current)); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return &model.TimeoutError{Op: "wait for url " + prefix, Limit: timeout}
			}
			return err
		}
		if strings.HasPrefix(current, prefix) {
			return nil
		}
		select {
		case <-waitCtx.Done():
			return &model.TimeoutError{Op: "wait for url " + prefix, Limit: timeout}
		case <-time.After(250 * time.Millisecond):
		}
	}
}

func (s *chromeSession) Click(ctx context.Context, selector string) error {
	return s.run(ctx, chromedp.Click(selector, byKind(selector)))
}

func (s *chromeSession) Fill(ctx context.Context, selector, value string) error {
	return s.run(ctx, chromedp.SetValue(selector, value, byKind(selector)))
}

func (s *chromeSession) SelectOption(ctx context.Context, selector, value string) error {
	return s.run(ctx, chromedp.SetValue(selector, value, byKind(selector)))
}

func (s *chromeSession) Text(ctx context.Context, selector string) (string, error) {
	var out string
	err := s.run(ctx, chromedp.Text(selector, &out, byKind(selector)))
	return out, err
}

func (s *chromeSession) Evaluate(ctx context.Context, script string) error {
	return s.run(ctx, chromedp.Evaluate(script, nil))
}

func (s *chromeSession) IsChecked(ctx context.Context, selector string) (bool, error) {
	var checked bool
	script := fmt.Sprintf("document.querySelector(%q).checked === true", selector)
	err := s.run(ctx, chromedp.Evaluate(script, &checked))
	return checked, err
}

func (s *chromeSession) SetChecked(ctx context.Context, selector string, checked bool) error {
	current, err := s.IsChecked(ctx, selector)
	if err != nil {
		return err
	}
	if current == checked {
		return nil
	}
	return s.Click(ctx, selector)
}

func (s *chromeSession) Download(ctx context.Context, trigger string, timeout time.Duration) (Download, error) {
	if err := s.Click(ctx, trigger); err != nil {
		return Download{}, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// The WillBegin event may race the click; poll for the guid first.
	var guid string
	for guid == "" {
		s.mu.Lock()
		guid = s.lastGUID
		s.mu.Unlock()
		if guid != "" {
			break
		}
		select {
		case <-waitCtx.Done():
			return Download{}, &model.TimeoutError{Op: "download start", Limit: timeout}
		case <-time.After(100 * time.Millisecond):
		}
	}

	s.mu.Lock()
	done := s.downloads[guid]
	name := s.suggestions[guid]
	s.mu.Unlock()

	select {
	case path := <-done:
		return Download{SuggestedName: name, Path: path}, nil
	case <-waitCtx.Done():
		return Download{}, &model.TimeoutError{Op: "download", Limit: timeout}
	}
}

// Close saves the trace artifact when tracing is on, then tears the
// browser down. Safe to call more than once.
func (s *chromeSession) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var traceErr error
	if s.opts.Trace && s.opts.TraceDir != "" {
		traceErr = s.saveTrace()
	}
	s.cancel()
	return traceErr
}

// saveTrace captures a full-page screenshot as the diagnostic artifact.
func (s *chromeSession) saveTrace() error {
	if err := os.MkdirAll(s.opts.TraceDir, 0o755); err != nil {
		return fmt.Errorf("creating trace dir: %w", err)
	}
	var shot []byte
	capture := chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		shot, err = page.CaptureScreenshot().WithCaptureBeyondViewport(true).Do(ctx)
		return err
	})
	if err := chromedp.Run(s.ctx, capture); err != nil {
		return fmt.Errorf("capturing trace screenshot: %w", err)
	}
	return os.WriteFile(filepath.Join(s.opts.TraceDir, "trace.png"), shot, 0o644)
}
