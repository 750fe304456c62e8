package fetch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go-report-etl/internal/browser"
	"go-report-etl/internal/model"
	"go-report-etl/pkg/utils"
)

const (
	defaultWait       = 30 * time.Second
	dashDownloadWait  = 10 * time.Minute
	exportMenuProbe   = 3 * time.Second
	exportCounterWait = time.Minute
)

// Login page and greeting selectors shared by both Qualtrics capabilities.
const (
	qualtricsUserField     = `//input[@aria-label='Username' or @name='username']`
	qualtricsPasswordField = `input[placeholder="Password"]`
	qualtricsSignInButton  = `//button[contains(., 'Sign In')]`
	qualtricsGreeting      = `#profile-data-intro`
)

// Dashboard filter names. The dashboards themselves are Spanish in both UI
// languages.
const (
	monitorFilterLabel = "Fecha de monitoreo"
	callFilterLabel    = "Fecha de la llamada"
)

// uiLabels are the interface strings that differ between the Spanish and
// English Qualtrics UI, detected from the homepage greeting.
type uiLabels struct {
	dateAllTime string
	dateCustom  string
	download    string
	downloadNow string
	export      string
	dateLayout  string
}

// detectLabels classifies the homepage greeting. An unrecognized greeting
// fails the job: filling filters with the wrong language's labels would
// export the wrong data silently.
func detectLabels(greeting string) (uiLabels, error) {
	greeting = strings.ToLower(strings.TrimSpace(greeting))
	switch {
	case strings.Contains(greeting, "bienvenido"):
		return uiLabels{
			dateAllTime: "Todo el tiempo",
			dateCustom:  "Rango de fechas personalizado",
			download:    "Descargar",
			downloadNow: "Descargar archivo automáticamente",
			export:      "Exportar",
			dateLayout:  "02/01/2006",
		}, nil
	case strings.Contains(greeting, "welcome"):
		return uiLabels{
			dateAllTime: "All Time",
			dateCustom:  "Custom Date Range",
			download:    "Download dashboard",
			downloadNow: "Automatically download file",
			export:      "Export",
			dateLayout:  "01/02/2006",
		}, nil
	}
	return uiLabels{}, fmt.Errorf("cannot identify the ui language from greeting %q", greeting)
}

// login signs into Qualtrics and waits for the homepage greeting.
func qualtricsLogin(f *flow, baseURL, user, password string) {
	f.navigate(baseURL + "/login")
	f.fill(qualtricsUserField, user)
	f.fill(qualtricsPasswordField, password)
	f.click(qualtricsSignInButton)
	f.waitURL(baseURL+"/homepage/ui", defaultWait)
	f.waitVisible(qualtricsGreeting, defaultWait)
}

// logout is best effort: the session still closes when it fails.
func qualtricsLogout(ctx context.Context, opts Options, sess browser.Session, baseURL string) {
	if err := sess.Navigate(ctx, baseURL+"/authn/api/v1/logout"); err != nil {
		opts.Log.Warn().Err(err).Msg("qualtrics logout")
		return
	}
	if err := sess.WaitURL(ctx, baseURL+"/login", defaultWait); err != nil {
		opts.Log.Warn().Err(err).Msg("qualtrics logout")
	}
}

// qualtrics exports a reporting dashboard as CSV: sign in, detect the UI
// language, pin the monitor-date filter to the job's range and the
// call-date filter to all-time, then run the dashboard export.
type qualtrics struct {
	opts    Options
	baseURL string
}

func newQualtrics(opts Options) (*qualtrics, error) {
	spec := opts.Spec
	if spec.DashID == "" || spec.DashPage == "" {
		return nil, model.Configf("qualtrics requires dash_id and dash_page")
	}
	if spec.User == "" || spec.Password == "" {
		return nil, model.Configf("qualtrics requires user and password")
	}
	baseURL, err := opts.Config.RequireQualtricsURL()
	if err != nil {
		return nil, err
	}
	return &qualtrics{opts: opts, baseURL: baseURL}, nil
}

func (q *qualtrics) dashboardURL() string {
	return fmt.Sprintf("%s/reporting-dashboard/web/%s/pages/%s/view",
		q.baseURL, q.opts.Spec.DashID, q.opts.Spec.DashPage)
}

func (q *qualtrics) Fetch(ctx context.Context) ([]string, error) {
	now, err := q.opts.jobNow()
	if err != nil {
		return nil, err
	}
	rng, err := q.opts.Spec.RangeSpec().Resolve(now)
	if err != nil {
		return nil, err
	}

	var out []string
	err = q.opts.withSession(ctx, func(sess browser.Session) error {
		defer qualtricsLogout(ctx, q.opts, sess, q.baseURL)

		f := newFlow(ctx, sess)
		qualtricsLogin(f, q.baseURL, q.opts.Spec.User, q.opts.Spec.Password)

		labels, err := detectLabels(f.text(qualtricsGreeting))
		if f.err != nil {
			return f.err
		}
		if err != nil {
			return err
		}

		f.navigate(q.dashboardURL())

		monitorBtn := buttonContaining(monitorFilterLabel)
		callBtn := buttonContaining(callFilterLabel)
		f.waitVisible(monitorBtn, defaultWait)
		f.waitVisible(callBtn, defaultWait)

		// monitor date: job range, unless the filter already shows it
		if !strings.Contains(f.text(monitorBtn), labels.dateCustom) {
			f.click(monitorBtn)
			f.click(`button[ng-model='filter.rangeKey']`)
			f.click(byText(labels.dateCustom))
			f.fill(`input[ng-model='daterange.start']`, rng.Start.Format(labels.dateLayout))
			f.fill(`input[ng-model='daterange.end']`, rng.End.Format(labels.dateLayout))
		}

		// call date: always all-time
		if !strings.Contains(f.text(callBtn), labels.dateAllTime) {
			f.click(callBtn)
			f.click(`button[ng-model='filter.rangeKey']`)
			f.click(byText(labels.dateAllTime))
		}

		q.openExportMenu(f)
		f.click(fmt.Sprintf(`//*[contains(text(), %q)]`, labels.download))

		// file type: CSV
		f.click(`#export-file-type-menu`)
		f.click(byText("CSV"))

		// remove line breaks, then pick the automatic download
		f.click(`i > i`)
		f.click(fmt.Sprintf(`//label[contains(., %q)]//input[@type='radio']`, labels.downloadNow))

		// the export size field fills in once the dashboard finishes
		// counting; exporting before that truncates the file
		f.waitVisible(`#export-fieldset-limit-results-menu`, exportCounterWait)

		dl := f.download(buttonWithText(labels.export), dashDownloadWait)
		if f.err != nil {
			return f.err
		}

		dst := q.opts.naming().BuildPath(utils.Stem(dl.SuggestedName), utils.Ext(dl.SuggestedName), now)
		if err := utils.MoveFile(dl.Path, dst); err != nil {
			return err
		}
		out = append(out, dst)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// openExportMenu handles both dashboard generations: the new UI exposes a
// download icon, the old one an options button.
func (q *qualtrics) openExportMenu(f *flow) {
	if f.err != nil {
		return
	}
	newIcon := `[data-testid="download-icon"]`
	if err := f.sess.WaitVisible(f.ctx, newIcon, exportMenuProbe); err != nil {
		var timeout *model.TimeoutError
		if !errors.As(err, &timeout) {
			f.err = err
			return
		}
		f.click(`#export-options-button`)
		return
	}
	f.click(newIcon)
}
