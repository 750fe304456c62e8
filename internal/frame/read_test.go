package frame

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"go-report-etl/internal/model"
)

func TestReadCSV(t *testing.T) {
	in := "nota del export\nID,NOMBRE,EDAD\n\"1\",\"ana, maria\",20\n2,jose\n"
	f, err := ReadCSV(strings.NewReader(in), ReadOptions{SkipRows: 1, Separator: ","})
	require.NoError(t, err)

	assert.Equal(t, []string{"ID", "NOMBRE", "EDAD"}, f.Columns)
	require.Equal(t, 2, f.Len())

	v, _ := f.Value(0, "NOMBRE")
	assert.Equal(t, "ana, maria", v)

	// short row leaves the trailing cell null
	_, ok := f.Value(1, "EDAD")
	assert.False(t, ok)
}

func TestReadCSV_SeparatorAndBOM(t *testing.T) {
	in := "\xef\xbb\xbfID;NOMBRE\n1;ana\n"
	f, err := ReadCSV(strings.NewReader(in), ReadOptions{Separator: ";"})
	require.NoError(t, err)

	assert.Equal(t, []string{"ID", "NOMBRE"}, f.Columns, "BOM must not leak into the first header")
	v, _ := f.Value(0, "NOMBRE")
	assert.Equal(t, "ana", v)
}

func TestReadCSV_Latin1(t *testing.T) {
	var in bytes.Buffer
	in.WriteString("COL\n")
	in.WriteByte(0xF1) // ñ in latin-1
	in.WriteString("o\n")

	f, err := ReadCSV(&in, ReadOptions{Encoding: "latin-1"})
	require.NoError(t, err)
	v, _ := f.Value(0, "COL")
	assert.Equal(t, "ño", v)
}

func TestReadCSV_DuplicateHeaders(t *testing.T) {
	in := "ID,ID,NOMBRE\n1,2,ana\n"
	f, err := ReadCSV(strings.NewReader(in), ReadOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"ID", "ID.1", "NOMBRE"}, f.Columns)
	v, _ := f.Value(0, "ID.1")
	assert.Equal(t, "2", v)
}

func TestReadCSV_UnknownEncoding(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("A\n1\n"), ReadOptions{Encoding: "ebcdic"})
	var cfgErr *model.ConfigError
	require.Error(t, err)
	assert.True(t, errors.As(err, &cfgErr))
}

func TestReadCSV_EmptyInput(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""), ReadOptions{})
	assert.Error(t, err)
}

// workbook builds an in-memory xlsx with the given sheets and rows.
func workbook(t *testing.T, sheets map[string][][]interface{}) *bytes.Reader {
	t.Helper()
	wb := excelize.NewFile()
	first := true
	for name, rows := range sheets {
		if first {
			require.NoError(t, wb.SetSheetName("Sheet1", name))
			first = false
		} else {
			_, err := wb.NewSheet(name)
			require.NoError(t, err)
		}
		for i, row := range rows {
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			require.NoError(t, err)
			require.NoError(t, wb.SetSheetRow(name, cell, &row))
		}
	}
	buf, err := wb.WriteToBuffer()
	require.NoError(t, err)
	return bytes.NewReader(buf.Bytes())
}

func TestReadExcel_DefaultSheet(t *testing.T) {
	r := workbook(t, map[string][][]interface{}{
		"Datos": {
			{"ID", "NOMBRE"},
			{"1", "ana"},
			{"2", "jose"},
		},
	})

	f, err := ReadExcel(r, ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"ID", "NOMBRE"}, f.Columns)
	require.Equal(t, 2, f.Len())
	v, _ := f.Value(1, "NOMBRE")
	assert.Equal(t, "jose", v)
}

func TestReadExcel_SkipRowsAndSheetByName(t *testing.T) {
	r := workbook(t, map[string][][]interface{}{
		"Datos": {
			{"titulo"},
			{"subtitulo"},
			{"ID", "NOMBRE"},
			{"1", "ana"},
		},
	})

	f, err := ReadExcel(r, ReadOptions{SkipRows: 2, Sheet: "Datos"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ID", "NOMBRE"}, f.Columns)
	require.Equal(t, 1, f.Len())
}

func TestReadExcel_SheetByIndex(t *testing.T) {
	r := workbook(t, map[string][][]interface{}{
		"Unica": {
			{"A"},
			{"1"},
		},
	})

	f, err := ReadExcel(r, ReadOptions{Sheet: "0"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, f.Columns)
}

func TestReadExcel_MissingSheet(t *testing.T) {
	r := workbook(t, map[string][][]interface{}{
		"Unica": {{"A"}},
	})

	_, err := ReadExcel(r, ReadOptions{Sheet: "NoExiste"})
	var nfErr *model.NotFoundError
	require.Error(t, err)
	assert.True(t, errors.As(err, &nfErr))
}

func TestReadHTMLTable(t *testing.T) {
	doc := `<html><body>
<p>antes</p>
<table>
  <thead><tr><th>ID</th><th> NOMBRE
  COMPLETO </th></tr></thead>
  <tbody>
    <tr><td>1</td><td>ana <b>maria</b></td></tr>
    <tr><td>2</td><td>jose</td></tr>
  </tbody>
</table>
<table><tr><th>OTRA</th></tr></table>
</body></html>`

	f, err := ReadHTMLTable(strings.NewReader(doc), ReadOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"ID", "NOMBRE COMPLETO"}, f.Columns, "whitespace collapsed, second table ignored")
	require.Equal(t, 2, f.Len())
	v, _ := f.Value(0, "NOMBRE COMPLETO")
	assert.Equal(t, "ana maria", v)
}

func TestReadHTMLTable_SkipRows(t *testing.T) {
	doc := `<table>
<tr><th>A</th></tr>
<tr><td>saltada</td></tr>
<tr><td>1</td></tr>
</table>`

	f, err := ReadHTMLTable(strings.NewReader(doc), ReadOptions{SkipRows: 1})
	require.NoError(t, err)
	require.Equal(t, 1, f.Len())
	v, _ := f.Value(0, "A")
	assert.Equal(t, "1", v)
}

func TestReadHTMLTable_NoTable(t *testing.T) {
	_, err := ReadHTMLTable(strings.NewReader("<html><body><p>nada</p></body></html>"), ReadOptions{})
	var nfErr *model.NotFoundError
	require.Error(t, err)
	assert.True(t, errors.As(err, &nfErr))
}

func TestEncodeWriter_Latin1(t *testing.T) {
	var buf bytes.Buffer
	w, err := EncodeWriter(&buf, "latin-1")
	require.NoError(t, err)

	_, err = w.Write([]byte("ño"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xF1, 'o'}, buf.Bytes())
}

func TestEncodeWriter_UTF8SigWritesBOM(t *testing.T) {
	var buf bytes.Buffer
	w, err := EncodeWriter(&buf, "utf-8-sig")
	require.NoError(t, err)

	_, err = w.Write([]byte("A"))
	require.NoError(t, err)
	assert.Equal(t, "\xef\xbb\xbfA", buf.String())
}
