package fetch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go-report-etl/internal/browser"
)

// sessionOptions maps the job's browser fields onto a session. The trace
// artifact lands under the job's destination directory.
func (o Options) sessionOptions() browser.Options {
	return browser.Options{
		Headless: o.Spec.Headless,
		SlowMo:   time.Duration(o.Spec.SlowMoMS) * time.Millisecond,
		Trace:    o.Spec.Trace,
		TraceDir: filepath.Join(o.naming().Dir(), "trace"),
	}
}

// withSession runs fn inside a launched session and closes it on every
// exit path, error or not.
func (o Options) withSession(ctx context.Context, fn func(browser.Session) error) error {
	sess, err := o.Launcher.Launch(ctx, o.sessionOptions())
	if err != nil {
		return fmt.Errorf("launching browser session: %w", err)
	}
	defer func() {
		if cerr := sess.Close(ctx); cerr != nil {
			o.Log.Warn().Err(cerr).Msg("closing browser session")
		}
	}()
	return fn(sess)
}

// flow threads a sticky error through a sequence of session actions so the
// long scripted interactions read as the steps they are instead of an
// error check per click.
type flow struct {
	ctx  context.Context
	sess browser.Session
	err  error
}

func newFlow(ctx context.Context, sess browser.Session) *flow {
	return &flow{ctx: ctx, sess: sess}
}

func (f *flow) navigate(url string) {
	if f.err == nil {
		f.err = f.sess.Navigate(f.ctx, url)
	}
}

func (f *flow) waitVisible(selector string, timeout time.Duration) {
	if f.err == nil {
		f.err = f.sess.WaitVisible(f.ctx, selector, timeout)
	}
}

func (f *flow) waitURL(prefix string, timeout time.Duration) {
	if f.err == nil {
		f.err = f.sess.WaitURL(f.ctx, prefix, timeout)
	}
}

func (f *flow) click(selector string) {
	if f.err == nil {
		f.err = f.sess.Click(f.ctx, selector)
	}
}

func (f *flow) fill(selector, value string) {
	if f.err == nil {
		f.err = f.sess.Fill(f.ctx, selector, value)
	}
}

func (f *flow) selectOption(selector, value string) {
	if f.err == nil {
		f.err = f.sess.SelectOption(f.ctx, selector, value)
	}
}

func (f *flow) evaluate(script string) {
	if f.err == nil {
		f.err = f.sess.Evaluate(f.ctx, script)
	}
}

func (f *flow) setChecked(selector string, checked bool) {
	if f.err == nil {
		f.err = f.sess.SetChecked(f.ctx, selector, checked)
	}
}

func (f *flow) text(selector string) string {
	if f.err != nil {
		return ""
	}
	out, err := f.sess.Text(f.ctx, selector)
	f.err = err
	return out
}

func (f *flow) download(trigger string, timeout time.Duration) browser.Download {
	if f.err != nil {
		return browser.Download{}
	}
	dl, err := f.sess.Download(f.ctx, trigger, timeout)
	f.err = err
	return dl
}

// byText matches any element whose own text is exactly the given label.
func byText(text string) string {
	return fmt.Sprintf(`//*[normalize-space(text())=%q]`, text)
}

// buttonContaining matches a button whose subtree contains the label.
func buttonContaining(text string) string {
	return fmt.Sprintf(`//button[contains(., %q)]`, text)
}

// buttonWithText matches a button whose full text is exactly the label.
func buttonWithText(text string) string {
	return fmt.Sprintf(`//button[normalize-space(.)=%q]`, text)
}
