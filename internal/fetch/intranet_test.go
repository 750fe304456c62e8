package fetch

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-report-etl/internal/browser"
	"go-report-etl/internal/model"
)

func intranetSpec(root string) *model.FetchSpec {
	return &model.FetchSpec{
		Name:              "feedbackIntranet",
		RootDownloadDir:   root,
		AddDownloaderName: true,
		AddOriginalName:   true,
		User:              "ana",
		Password:          "secreta",
		DateStart:         "2024-02-01",
		DateEnd:           "2024-02-15",
	}
}

func TestIntranet_Fetch(t *testing.T) {
	root := t.TempDir()
	sess := &browser.ScriptedSession{
		DownloadName:    "incidencias.xlsx",
		DownloadContent: []byte("contenido"),
	}

	fetcher, err := New(scriptedOptions(intranetSpec(root), sess))
	require.NoError(t, err)

	paths, err := fetcher.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, filepath.Join(root, "ventas", "diario", "feedbackIntranet_incidencias.xlsx"), paths[0])

	// the readonly date inputs are set through script, DD/MM/YYYY
	assert.Contains(t, sess.Calls,
		"Evaluate document.getElementById('txtFechaInicial').value = '01/02/2024'")
	assert.Contains(t, sess.Calls,
		"Evaluate document.getElementById('txtFechaFinal').value = '15/02/2024'")
	assert.Contains(t, sess.Calls, "SelectOption #ddlsancion=4")
	assert.True(t, sess.Closed)
}

func TestIntranet_ClosesSessionOnFailure(t *testing.T) {
	sess := &browser.ScriptedSession{
		FailOn:  "WaitVisible",
		FailErr: errors.New("login never completed"),
	}

	fetcher, err := New(scriptedOptions(intranetSpec(t.TempDir()), sess))
	require.NoError(t, err)

	_, err = fetcher.Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, sess.Closed, "session must close when the flow fails")
}
