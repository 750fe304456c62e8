package fetch

import (
	"context"
	"fmt"
	"time"

	"go-report-etl/internal/browser"
	"go-report-etl/internal/model"
	"go-report-etl/pkg/utils"
)

// surveyDownloadWait bounds the raw response export, which the server
// prepares asynchronously and can take longer than a dashboard export.
const surveyDownloadWait = 700 * time.Second

// qualtricsSurvey exports a survey's raw responses as CSV: choice text,
// all fields, uncompressed, newlines replaced, QID headers.
type qualtricsSurvey struct {
	opts    Options
	baseURL string
}

func newQualtricsSurvey(opts Options) (*qualtricsSurvey, error) {
	spec := opts.Spec
	if spec.DashID == "" {
		return nil, model.Configf("qualtricsSurveyData requires dash_id")
	}
	if spec.User == "" || spec.Password == "" {
		return nil, model.Configf("qualtricsSurveyData requires user and password")
	}
	baseURL, err := opts.Config.RequireQualtricsURL()
	if err != nil {
		return nil, err
	}
	return &qualtricsSurvey{opts: opts, baseURL: baseURL}, nil
}

func (q *qualtricsSurvey) surveyURL() string {
	return fmt.Sprintf("%s/responses/#/surveys/%s", q.baseURL, q.opts.Spec.DashID)
}

func (q *qualtricsSurvey) Fetch(ctx context.Context) ([]string, error) {
	now, err := q.opts.jobNow()
	if err != nil {
		return nil, err
	}

	var out []string
	err = q.opts.withSession(ctx, func(sess browser.Session) error {
		defer qualtricsLogout(ctx, q.opts, sess, q.baseURL)

		f := newFlow(ctx, sess)
		qualtricsLogin(f, q.baseURL, q.opts.Spec.User, q.opts.Spec.Password)

		f.navigate(q.surveyURL())
		f.click(`[data-testid="export-and-import-menu"]`)
		f.click(`//*[@role='menuitem' and contains(., 'Export Data')]`)

		csvTab := `//*[@role='tab' and normalize-space(text())='CSV']`
		f.waitVisible(csvTab, defaultWait)
		f.click(csvTab)

		f.click(byText("Use choice text"))
		f.setChecked(`[data-testid="export-all-fields-checkbox"]`, true)

		f.click(buttonContaining("More options"))
		f.setChecked(`[data-testid="export-compress-checkbox"]`, false)
		f.setChecked(`[data-testid="export-replace-newline-checkbox"]`, true)
		f.setChecked(`[data-testid="export-use-qid-header-checkbox"]`, true)

		dl := f.download(buttonWithText("Download"), surveyDownloadWait)
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
