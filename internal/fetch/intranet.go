package fetch

import (
	"context"
	"fmt"
	"time"

	"go-report-etl/internal/browser"
	"go-report-etl/internal/model"
	"go-report-etl/pkg/utils"
)

const (
	// intranetLoginWait covers the portal's slow post-login redirect.
	intranetLoginWait = 90 * time.Second
	// intranetSearchWait covers the incident search, which renders the
	// whole result table server-side.
	intranetSearchWait = 600 * time.Second
)

// feedbackQuery filters the incident list to quality-feedback records.
const feedbackQuery = "strAccesoIncidencia=1&strejecalidad=0&strrespOpera=0&strAgente=0&strrespcalidad=1&strLider=0"

// firstResultCell is the export anchor of the first data row; its
// presence means the search finished.
const firstResultCell = `#tb_Servicio > tbody > tr:nth-child(2) > td:nth-child(1) > center > a > img`

// intranet exports the quality-feedback incident list from the corporate
// portal, filtered to the job's date range.
type intranet struct {
	opts    Options
	baseURL string
}

func newIntranet(opts Options) (*intranet, error) {
	if opts.Spec.User == "" || opts.Spec.Password == "" {
		return nil, model.Configf("feedbackIntranet requires user and password")
	}
	baseURL, err := opts.Config.RequireIntranetBaseURL()
	if err != nil {
		return nil, err
	}
	return &intranet{opts: opts, baseURL: baseURL}, nil
}

func (i *intranet) Fetch(ctx context.Context) ([]string, error) {
	now, err := i.opts.jobNow()
	if err != nil {
		return nil, err
	}
	rng, err := i.opts.Spec.RangeSpec().Resolve(now)
	if err != nil {
		return nil, err
	}

	loginURL := i.baseURL + "/WebIntranetPublico/Default.aspx"
	feedbackURL := fmt.Sprintf("%s/webintranetpublico/IntranetMvc/incidencias/wfListadoIncidencia.aspx?%s",
		i.baseURL, feedbackQuery)

	var out []string
	err = i.opts.withSession(ctx, func(sess browser.Session) error {
		f := newFlow(ctx, sess)

		f.navigate(loginURL)
		f.fill(`input[placeholder="Usuario"]`, i.opts.Spec.User)
		f.fill(`input[placeholder="Contraseña"]`, i.opts.Spec.Password)
		f.click(byText("INGRESAR"))
		f.waitVisible(`#dvNombreEmpleadoMaster`, intranetLoginWait)

		f.navigate(feedbackURL)

		// filter mode 4 is "by date"; the date inputs are readonly so the
		// values go in through script
		f.selectOption(`#ddlsancion`, "4")
		f.evaluate(fmt.Sprintf("document.getElementById('txtFechaInicial').value = '%s'",
			rng.Start.Format("02/01/2006")))
		f.evaluate(fmt.Sprintf("document.getElementById('txtFechaFinal').value = '%s'",
			rng.End.Format("02/01/2006")))

		f.waitVisible(`#btnBuscar`, defaultWait)
		f.click(byText("Todos"))
		f.click(byText("Buscar"))
		f.waitVisible(firstResultCell, intranetSearchWait)

		dl := f.download(byText("Exportar"), intranetSearchWait)
		if f.err != nil {
			return f.err
		}

		dst := i.opts.naming().BuildPath(utils.Stem(dl.SuggestedName), utils.Ext(dl.SuggestedName), now)
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
