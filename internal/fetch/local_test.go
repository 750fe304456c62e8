package fetch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-report-etl/internal/model"
)

func TestLocalPath_Fetch(t *testing.T) {
	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "reporte.csv")
	require.NoError(t, os.WriteFile(src, []byte("a,b\n1,2\n"), 0o644))

	root := t.TempDir()
	spec := &model.FetchSpec{
		Name:              "localpath",
		RootDownloadDir:   root,
		AddDownloaderName: true,
		AddOriginalName:   true,
		AddTimestamp:      true,
		LocalFullPath:     src,
	}
	fetcher, err := New(testOptions(spec))
	require.NoError(t, err)

	paths, err := fetcher.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, paths, 1)

	want := filepath.Join(root, "ventas", "diario", "localpath_reporte_20240310_1504.csv")
	assert.Equal(t, want, paths[0])

	content, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(content))

	// the source stays where it was
	_, err = os.Stat(src)
	assert.NoError(t, err)
}

func TestLocalPath_MissingFile(t *testing.T) {
	spec := &model.FetchSpec{
		Name:          "localpath",
		LocalFullPath: filepath.Join(t.TempDir(), "no-existe.csv"),
	}
	fetcher, err := New(testOptions(spec))
	require.NoError(t, err)

	_, err = fetcher.Fetch(context.Background())
	var nfErr *model.NotFoundError
	require.Error(t, err)
	assert.True(t, errors.As(err, &nfErr))
}

func TestLocalFolder_Fetch(t *testing.T) {
	srcDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "uno.csv"), []byte("1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "dos.xlsx"), []byte("2"), 0o644))
	// subdirectories are not descended into
	require.NoError(t, os.Mkdir(filepath.Join(srcDir, "anidado"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "anidado", "tres.csv"), []byte("3"), 0o644))

	root := t.TempDir()
	spec := &model.FetchSpec{
		Name:            "localfolder",
		RootDownloadDir: root,
		AddOriginalName: true,
		LocalFullPath:   srcDir,
	}
	fetcher, err := New(testOptions(spec))
	require.NoError(t, err)

	paths, err := fetcher.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, paths, 2)

	for _, p := range paths {
		_, err := os.Stat(p)
		assert.NoError(t, err, p)
		assert.Equal(t, filepath.Join(root, "ventas", "diario"), filepath.Dir(p))
	}
}

func TestLocalFolder_MissingFolder(t *testing.T) {
	spec := &model.FetchSpec{
		Name:          "localfolder",
		LocalFullPath: filepath.Join(t.TempDir(), "no-existe"),
	}
	fetcher, err := New(testOptions(spec))
	require.NoError(t, err)

	_, err = fetcher.Fetch(context.Background())
	var nfErr *model.NotFoundError
	require.Error(t, err)
	assert.True(t, errors.As(err, &nfErr))
}
