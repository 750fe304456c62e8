package fetch

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"go-report-etl/internal/frame"
	"go-report-etl/internal/model"
)

// dashRequestTimeout bounds the dashboard export request. The server
// renders the whole report before responding, which takes minutes on the
// large ranges.
const dashRequestTimeout = 11 * time.Minute

// internalDash pulls an HTML report from the internal dashboard and lands
// it as an all-quoted CSV in the job's encoding.
type internalDash struct {
	opts    Options
	baseURL string
	client  *http.Client
}

func newInternalDash(opts Options) (*internalDash, error) {
	if opts.Spec.ServiceID == "" {
		return nil, model.Configf("internaldash requires servicio_id")
	}
	switch opts.Spec.ReportType {
	case "fijo", "dinamico":
	default:
		return nil, model.Configf("invalid tipo_reporte %q", opts.Spec.ReportType)
	}
	baseURL, err := opts.Config.RequireInternalDashURL()
	if err != nil {
		return nil, err
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: dashRequestTimeout}
	}
	return &internalDash{opts: opts, baseURL: baseURL, client: client}, nil
}

// reportURL builds the export endpoint for the resolved range. The two
// report families use different routes and id parameters.
func (d *internalDash) reportURL(rng model.DateRange) string {
	ini := rng.Start.Format("2006-01-02")
	fin := rng.End.Format("2006-01-02")
	if d.opts.Spec.ReportType == "fijo" {
		return fmt.Sprintf("%s/ClaroExcel/?ini=%s&fin=%s&tipo=%s", d.baseURL, ini, fin, d.opts.Spec.ServiceID)
	}
	return fmt.Sprintf("%s/ReporteExcel/?ini=%s&fin=%s&id=%s", d.baseURL, ini, fin, d.opts.Spec.ServiceID)
}

func (d *internalDash) Fetch(ctx context.Context) ([]string, error) {
	now, err := d.opts.jobNow()
	if err != nil {
		return nil, err
	}
	rng, err := d.opts.Spec.RangeSpec().Resolve(now)
	if err != nil {
		return nil, err
	}

	url := d.reportURL(rng)
	d.opts.Log.Debug().Str("url", url).Str("range", rng.String()).Msg("requesting dashboard report")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building dashboard request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting dashboard report: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dashboard returned %s", resp.Status)
	}

	// every cell forced to text
	table, err := frame.ReadHTMLTable(resp.Body, frame.ReadOptions{Encoding: d.opts.Spec.Encoding})
	if err != nil {
		return nil, fmt.Errorf("parsing dashboard report: %w", err)
	}

	policy := d.opts.naming()
	stem := fmt.Sprintf("%s_%s", d.opts.Spec.ReportType, d.opts.Spec.ServiceID)
	dst := policy.BuildPath(stem, "csv", now)
	if err := policy.EnsureDir(); err != nil {
		return nil, fmt.Errorf("creating destination dir: %w", err)
	}

	file, err := os.Create(dst)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", dst, err)
	}
	w, err := frame.EncodeWriter(file, d.opts.Spec.Encoding)
	if err != nil {
		file.Close()
		return nil, err
	}
	if err := table.WriteCSV(w); err != nil {
		file.Close()
		return nil, fmt.Errorf("writing %s: %w", dst, err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("writing %s: %w", dst, err)
	}

	d.opts.Log.Debug().Str("dst", dst).Int("rows", table.Len()).Msg("dashboard report saved")
	return []string{dst}, nil
}
