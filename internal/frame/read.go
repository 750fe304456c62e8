package frame

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/net/html"
	"golang.org/x/text/encoding/charmap"

	"go-report-etl/internal/model"
)

// ReadOptions carries the reader parameters shared by the tabular readers.
// Sheet selects an Excel sheet by name or numeric index; empty means the
// first sheet.
type ReadOptions struct {
	SkipRows  int
	Separator string
	Encoding  string
	Sheet     string
}

const utf8BOM = "\xef\xbb\xbf"

// DecodeReader wraps r so the configured encoding is decoded to UTF-8. The
// utf8 family strips a leading BOM when present. Unknown encodings are a
// ConfigError.
func DecodeReader(r io.Reader, encoding string) (io.Reader, error) {
	switch normalizeEncoding(encoding) {
	case "utf8":
		return &bomStrippingReader{r: r}, nil
	case "latin1":
		return charmap.ISO8859_1.NewDecoder().Reader(r), nil
	case "cp1252":
		return charmap.Windows1252.NewDecoder().Reader(r), nil
	}
	return nil, model.Configf("unsupported encoding %q", encoding)
}

// EncodeWriter wraps w so UTF-8 written to it lands in the configured
// encoding. utf-8-sig prepends a BOM.
func EncodeWriter(w io.Writer, encoding string) (io.Writer, error) {
	switch normalizeEncoding(encoding) {
	case "utf8":
		if strings.Contains(strings.ToLower(encoding), "sig") {
			if _, err := io.WriteString(w, utf8BOM); err != nil {
				return nil, err
			}
		}
		return w, nil
	case "latin1":
		return charmap.ISO8859_1.NewEncoder().Writer(w), nil
	case "cp1252":
		return charmap.Windows1252.NewEncoder().Writer(w), nil
	}
	return nil, model.Configf("unsupported encoding %q", encoding)
}

func normalizeEncoding(encoding string) string {
	switch strings.ToLower(strings.NewReplacer("-", "", "_", "").Replace(encoding)) {
	case "", "utf8", "utf8sig":
		return "utf8"
	case "latin1", "latin", "iso88591":
		return "latin1"
	case "cp1252", "windows1252":
		return "cp1252"
	}
	return encoding
}

// bomStrippingReader removes a UTF-8 BOM from the start of the stream.
// Exports from spreadsheet tools regularly carry one.
type bomStrippingReader struct {
	r       io.Reader
	started bool
}

func (b *bomStrippingReader) Read(p []byte) (int, error) {
	if !b.started {
		b.started = true
		head := make([]byte, len(utf8BOM))
		n, err := io.ReadFull(b.r, head)
		if err == io.EOF {
			return 0, io.EOF
		}
		if err != nil && err != io.ErrUnexpectedEOF {
			return 0, err
		}
		rest := head[:n]
		if string(rest) == utf8BOM {
			rest = nil
		}
		b.r = io.MultiReader(strings.NewReader(string(rest)), b.r)
	}
	return b.r.Read(p)
}

// ReadCSV parses delimited text into a frame. SkipRows rows are discarded
// before the header; every cell stays text. Rows shorter than the header
// leave trailing cells null; extra cells are dropped.
func ReadCSV(r io.Reader, opts ReadOptions) (*Frame, error) {
	decoded, err := DecodeReader(r, opts.Encoding)
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(decoded)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	if sep := []rune(opts.Separator); len(sep) > 0 {
		cr.Comma = sep[0]
	}

	for i := 0; i < opts.SkipRows; i++ {
		if _, err := cr.Read(); err != nil {
			return nil, fmt.Errorf("skipping %d rows: %w", opts.SkipRows, err)
		}
	}

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header row: %w", err)
	}

	f := New(DedupeHeaders(header)...)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			return f, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading row %d: %w", f.Len()+1, err)
		}
		f.AppendValues(row...)
	}
}

// ReadExcel parses an xlsx workbook into a frame. The sheet is picked by
// name or numeric index (default first); cells come back as their formatted
// text.
func ReadExcel(r io.Reader, opts ReadOptions) (*Frame, error) {
	wb, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer wb.Close()

	sheet, err := pickSheet(wb, opts.Sheet)
	if err != nil {
		return nil, err
	}

	rows, err := wb.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", sheet, err)
	}
	if opts.SkipRows < len(rows) {
		rows = rows[opts.SkipRows:]
	} else {
		rows = nil
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %s: no header row", sheet)
	}

	f := New(DedupeHeaders(rows[0])...)
	for _, row := range rows[1:] {
		f.AppendValues(row...)
	}
	return f, nil
}

// pickSheet resolves an Excel sheet selector against the workbook: empty
// means the first sheet, digits mean a zero-based index, anything else is a
// sheet name.
func pickSheet(wb *excelize.File, selector string) (string, error) {
	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return "", &model.NotFoundError{Resource: "workbook sheets"}
	}
	if selector == "" {
		return sheets[0], nil
	}
	if idx, err := strconv.Atoi(selector); err == nil {
		if idx < 0 || idx >= len(sheets) {
			return "", &model.NotFoundError{Resource: fmt.Sprintf("sheet index %d", idx)}
		}
		return sheets[idx], nil
	}
	for _, name := range sheets {
		if name == selector {
			return name, nil
		}
	}
	return "", &model.NotFoundError{Resource: "sheet " + selector}
}

// ReadHTMLTable parses the first <table> of an HTML document into a frame.
// The table's first row is the header; SkipRows then discards that many
// data rows. A document without a table is a NotFoundError.
func ReadHTMLTable(r io.Reader, opts ReadOptions) (*Frame, error) {
	decoded, err := DecodeReader(r, opts.Encoding)
	if err != nil {
		return nil, err
	}

	doc, err := html.Parse(decoded)
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}

	table := findFirst(doc, "table")
	if table == nil {
		return nil, &model.NotFoundError{Resource: "html table"}
	}

	var rows [][]string
	collectRows(table, &rows)
	if len(rows) == 0 {
		return nil, &model.NotFoundError{Resource: "html table rows"}
	}

	data := rows[1:]
	if opts.SkipRows < len(data) {
		data = data[opts.SkipRows:]
	} else {
		data = nil
	}

	f := New(DedupeHeaders(rows[0])...)
	for _, row := range data {
		f.AppendValues(row...)
	}
	return f, nil
}

// findFirst walks the node tree depth-first for the first element with the
// given tag.
func findFirst(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, tag); found != nil {
			return found
		}
	}
	return nil
}

// collectRows gathers the cell texts of every tr under the table, without
// descending into nested tables.
func collectRows(n *html.Node, rows *[][]string) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.Data {
		case "table":
			continue
		case "tr":
			var cells []string
			for cell := c.FirstChild; cell != nil; cell = cell.NextSibling {
				if cell.Type == html.ElementNode && (cell.Data == "td" || cell.Data == "th") {
					cells = append(cells, cellText(cell))
				}
			}
			*rows = append(*rows, cells)
		default:
			collectRows(c, rows)
		}
	}
}

// cellText concatenates a cell's text nodes with whitespace collapsed.
func cellText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
			sb.WriteByte(' ')
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

// DedupeHeaders suffixes repeated column names the way spreadsheet readers
// do (X, X.1, X.2) so every column stays addressable. The readers apply it
// to every header row; the workbook consolidation applies it to the header
// rows it carves out of sheets itself.
func DedupeHeaders(header []string) []string {
	seen := make(map[string]int, len(header))
	out := make([]string, len(header))
	for i, col := range header {
		n := seen[col]
		seen[col]++
		if n == 0 {
			out[i] = col
		} else {
			out[i] = fmt.Sprintf("%s.%d", col, n)
		}
	}
	return out
}
