package process

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"go-report-etl/internal/frame"
	"go-report-etl/internal/model"
	"go-report-etl/internal/sink"
)

const (
	rosterSheet    = "BD"
	rosterSkipRows = 8
	rosterFirstCol = "B"
	rosterLastCol  = "EC"

	// header cell that anchors the data grid inside every ramp sheet
	anchorHeader = "NRO. RESUMEN"

	// width of the attendance block that follows the TIPO INGRESO column
	attendanceSpan = 41
)

var rosterDateColumns = []string{
	"INICIO DE CAPACITACION",
	"INICIO DE OJT",
	"FIN DE OJT",
	"FECHA FIRMA (SIN EXTENSION)",
	"FECHA FIRMA (CON EXTENSION)",
	"FECHA - FIRMA CONTRATO",
	"FECHA ENTREGA - OPERACIÓN",
	"FECHA DE PAGO DE CAPA",
	"ULT. ASISTENCIA",
}

var detailDateColumns = []string{"Fecha OJT", "Fecha Baja", "Fecha Firma", "Fecha Entregado"}

// formacion consolidates the training workbook: a BD roster sheet listing
// one ramp per row plus one sheet per ramp holding an attendance grid and
// hiring detail. It builds three frames and uploads each to its own table.
// Ramp sheets that are missing or malformed are logged and skipped so one
// stale roster row cannot sink the whole workbook.
type formacion struct {
	opts Options

	roster     *frame.Frame
	attendance *frame.Frame
	detail     *frame.Frame
}

func newFormacion(opts Options) *formacion {
	return &formacion{
		opts:       opts,
		roster:     &frame.Frame{},
		attendance: &frame.Frame{},
		detail:     &frame.Frame{},
	}
}

// Process consolidates every workbook and returns the hiring-detail frame.
// Roster and attendance stay on the processor until Upload.
func (p *formacion) Process(ctx context.Context, paths []string) (*frame.Frame, error) {
	for _, path := range paths {
		if err := p.processWorkbook(path); err != nil {
			return nil, fmt.Errorf("processing %s: %w", path, err)
		}
	}
	return p.detail, nil
}

func (p *formacion) processWorkbook(path string) error {
	wb, err := excelize.OpenFile(path)
	if err != nil {
		return err
	}
	defer wb.Close()

	base := filepath.Base(path)
	roster, err := p.readRoster(wb, base)
	if err != nil {
		return err
	}
	p.roster = frame.Concat(p.roster, roster)

	for _, rec := range roster.Records {
		if rampID, ok := rec["ID PEOPLE"]; ok {
			if err := p.processRamp(wb, rampID, base); err != nil {
				return err
			}
		}
	}
	return nil
}

// readRoster loads the BD sheet: eight banner rows are skipped, only the
// B..EC column window is read, and rows without a ramp id or management
// area are dropped.
func (p *formacion) readRoster(wb *excelize.File, base string) (*frame.Frame, error) {
	rows, err := wb.GetRows(rosterSheet)
	if err != nil {
		return nil, fmt.Errorf("sheet %s: %w", rosterSheet, err)
	}
	if len(rows) <= rosterSkipRows {
		return nil, fmt.Errorf("sheet %s has no header row", rosterSheet)
	}

	first, _ := excelize.ColumnNameToNumber(rosterFirstCol)
	last, _ := excelize.ColumnNameToNumber(rosterLastCol)
	window := func(row []string) []string {
		if len(row) < first {
			return nil
		}
		hi := last
		if len(row) < hi {
			hi = len(row)
		}
		return row[first-1 : hi]
	}

	f := frame.New(frame.DedupeHeaders(window(rows[rosterSkipRows]))...)
	for _, row := range rows[rosterSkipRows+1:] {
		f.AppendValues(window(row)...)
	}
	nullPlaceholders(f)

	for _, col := range []string{"ID PEOPLE", "GERENCIA", "CAMPAÑA"} {
		if !f.HasColumn(col) {
			return nil, fmt.Errorf("sheet %s is missing column %s", rosterSheet, col)
		}
	}
	dropRowsMissing(f, "ID PEOPLE", "GERENCIA")
	trimColumns(f, "ID PEOPLE", "GERENCIA", "CAMPAÑA")

	for _, col := range rosterDateColumns {
		if !f.HasColumn(col) {
			return nil, fmt.Errorf("sheet %s is missing column %s", rosterSheet, col)
		}
		if err := parseDateColumn(f, col); err != nil {
			return nil, fmt.Errorf("sheet %s: %w", rosterSheet, err)
		}
	}
	setColumn(f, "FILE", base)
	return f, nil
}

func (p *formacion) processRamp(wb *excelize.File, rampID, base string) error {
	log := p.opts.Log.With().Str("rampa", rampID).Logger()

	rows, err := wb.GetRows(rampID)
	if err != nil {
		log.Warn().Err(err).Msg("ramp sheet not readable, skipped")
		return nil
	}

	anchorRow, anchorCol, found := findAnchor(rows)
	if !found {
		log.Warn().Msgf("column %q not found, ramp skipped", anchorHeader)
		return nil
	}

	rawHeader := sliceFrom(rows[anchorRow], anchorCol)
	for _, name := range rawHeader {
		if isPlaceholder(name) {
			log.Warn().Msg("ramp sheet has a placeholder column name")
		}
	}

	ramp := frame.New(frame.DedupeHeaders(rawHeader)...)
	for _, row := range rows[anchorRow+1:] {
		ramp.AppendValues(sliceFrom(row, anchorCol)...)
	}
	nullPlaceholders(ramp)

	if !ramp.HasColumn("DNI") {
		return fmt.Errorf("rampa %s: sheet is missing column DNI", rampID)
	}
	dropRowsMissing(ramp, "DNI")
	if ramp.Len() == 0 {
		log.Info().Msg("ramp sheet has no data")
		return nil
	}
	if !ramp.HasColumn("TIPO INGRESO") {
		log.Warn().Msg(`column "TIPO INGRESO" not found, ramp skipped`)
		return nil
	}
	return p.consolidateRamp(ramp, rampID, base)
}

// consolidateRamp splits the attendance block off the ramp grid, melts it
// into one row per person and day, and keeps the rest as hiring detail.
func (p *formacion) consolidateRamp(ramp *frame.Frame, rampID, base string) error {
	tipoIdx := ramp.ColumnIndex("TIPO INGRESO")
	blockEnd := tipoIdx + 1 + attendanceSpan
	if blockEnd > len(ramp.Columns) {
		blockEnd = len(ramp.Columns)
	}
	block := append([]string(nil), ramp.Columns[tipoIdx+1:blockEnd]...)

	// all-null day columns carry no attendance and are left out of the melt
	var dayCols []string
	for _, col := range block {
		for _, rec := range ramp.Records {
			if _, ok := rec[col]; ok {
				dayCols = append(dayCols, col)
				break
			}
		}
	}

	cleanIdentity(ramp, "DNI", "TELÉFONO", "TIPO INGRESO")
	for _, col := range []string{"NRO. RESUMEN", "NOMBRES"} {
		if !ramp.HasColumn(col) {
			return fmt.Errorf("rampa %s: sheet is missing column %s", rampID, col)
		}
	}

	parsed := make(map[string]string, len(dayCols))
	for _, col := range dayCols {
		iso, err := parseWorkbookDate(col)
		if err != nil {
			return fmt.Errorf("rampa %s: attendance column %q: %w", rampID, col, err)
		}
		parsed[col] = iso
	}
	dayNumber := numberDays(dayCols, parsed)

	long := frame.New("NRO. RESUMEN", "DNI", "NOMBRES", "RAMPA", "FECHA", "ASISTENCIA", "DIA_NRO", "FILE")
	for _, rec := range ramp.Records {
		for _, col := range dayCols {
			row := frame.Record{
				"RAMPA":   strings.TrimSpace(rampID),
				"DIA_NRO": strconv.Itoa(dayNumber[parsed[col]]),
				"FILE":    base,
			}
			for _, id := range []string{"NRO. RESUMEN", "DNI", "NOMBRES"} {
				if v, ok := rec[id]; ok {
					row[id] = v
				}
			}
			if iso := parsed[col]; iso != "" {
				row["FECHA"] = iso
			}
			if v, ok := rec[col]; ok {
				row["ASISTENCIA"] = strings.TrimSpace(v)
			}
			long.Append(row)
		}
	}
	p.attendance = frame.Concat(p.attendance, long)

	ramp.DropColumns(block...)
	for _, col := range detailDateColumns {
		if !ramp.HasColumn(col) {
			return fmt.Errorf("rampa %s: sheet is missing column %s", rampID, col)
		}
		if err := parseDateColumn(ramp, col); err != nil {
			return fmt.Errorf("rampa %s: %w", rampID, err)
		}
	}
	setColumn(ramp, "RAMPA", rampID)
	setColumn(ramp, "FILE", base)
	p.detail = frame.Concat(p.detail, ramp)
	return nil
}

// Upload writes the three consolidated frames, each to its own table. All
// table names are validated before the first write so a half-configured
// descriptor never leaves a partial upload behind.
func (p *formacion) Upload(ctx context.Context, up Uploader, spec *model.UploadSpec) error {
	if spec.Database == "" {
		return model.Configf("upload database must be provided")
	}
	tables := []struct {
		key  string
		name string
		f    *frame.Frame
	}{
		{"table_rampas_bd", spec.TableRampasBD, p.roster},
		{"table_rampas_asistencia", spec.TableRampasAsistencia, p.attendance},
		{"table_rampas_detalle", spec.TableRampasDetalle, p.detail},
	}
	for _, t := range tables {
		if t.name == "" {
			return model.Configf("%s must be provided", t.key)
		}
	}
	for _, t := range tables {
		target := sink.Target{
			Database:    spec.Database,
			Schema:      spec.Schema,
			Table:       t.name,
			IfExists:    strings.ToLower(spec.IfExists),
			VarcharSize: spec.VarcharSize,
		}
		if err := up.Upload(ctx, t.f, target); err != nil {
			return err
		}
	}
	return nil
}

// numberDays assigns each distinct attendance date its chronological index,
// starting at 1. Columns whose header is a placeholder get day number 0.
func numberDays(dayCols []string, parsed map[string]string) map[string]int {
	var days []string
	seen := make(map[string]bool, len(dayCols))
	for _, col := range dayCols {
		if iso := parsed[col]; iso != "" && !seen[iso] {
			seen[iso] = true
			days = append(days, iso)
		}
	}
	sort.Strings(days)
	numbers := make(map[string]int, len(days))
	for i, iso := range days {
		numbers[iso] = i + 1
	}
	return numbers
}

// findAnchor locates the cell that starts the data grid of a ramp sheet.
func findAnchor(rows [][]string) (row, col int, found bool) {
	for r, cells := range rows {
		for c, cell := range cells {
			if strings.TrimSpace(cell) == anchorHeader {
				return r, c, true
			}
		}
	}
	return 0, 0, false
}

// sliceFrom returns the row from col onward; rows shorter than col yield nil.
func sliceFrom(row []string, col int) []string {
	if len(row) <= col {
		return nil
	}
	return row[col:]
}

// isPlaceholder reports whether a cell holds one of the two filler values
// the workbook uses for "no data".
func isPlaceholder(v string) bool {
	t := strings.TrimSpace(v)
	return t == "" || t == "-"
}

func nullPlaceholders(f *frame.Frame) {
	for _, rec := range f.Records {
		for _, col := range f.Columns {
			if v, ok := rec[col]; ok && isPlaceholder(v) {
				delete(rec, col)
			}
		}
	}
}

func dropRowsMissing(f *frame.Frame, columns ...string) {
	kept := f.Records[:0]
	for _, rec := range f.Records {
		complete := true
		for _, col := range columns {
			if _, ok := rec[col]; !ok {
				complete = false
				break
			}
		}
		if complete {
			kept = append(kept, rec)
		}
	}
	f.Records = kept
}

func trimColumns(f *frame.Frame, columns ...string) {
	for _, rec := range f.Records {
		for _, col := range columns {
			if v, ok := rec[col]; ok {
				rec[col] = strings.TrimSpace(v)
			}
		}
	}
}

// parseDateColumn rewrites every cell of a date column in ISO form;
// placeholder dates become null.
func parseDateColumn(f *frame.Frame, col string) error {
	for _, rec := range f.Records {
		v, ok := rec[col]
		if !ok {
			continue
		}
		iso, err := parseWorkbookDate(v)
		if err != nil {
			return fmt.Errorf("column %s: %w", col, err)
		}
		if iso == "" {
			delete(rec, col)
		} else {
			rec[col] = iso
		}
	}
	return nil
}

// setColumn appends (or overwrites) a constant column.
func setColumn(f *frame.Frame, name, value string) {
	if !f.HasColumn(name) {
		f.Columns = append(f.Columns, name)
	}
	for _, rec := range f.Records {
		rec[name] = value
	}
}

// cleanIdentity strips the listed cells, collapsing spreadsheet float
// renderings of numeric ids (45678235.0) to their integer form. Columns the
// sheet does not carry are skipped.
func cleanIdentity(f *frame.Frame, columns ...string) {
	for _, col := range columns {
		if !f.HasColumn(col) {
			continue
		}
		for _, rec := range f.Records {
			if v, ok := rec[col]; ok {
				rec[col] = cleanIDValue(v)
			}
		}
	}
}

func cleanIDValue(v string) string {
	v = strings.TrimSpace(v)
	if !strings.ContainsAny(v, ".eE") {
		return v
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f != math.Trunc(f) {
		return v
	}
	return strconv.FormatInt(int64(f), 10)
}

var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

var workbookDateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"02/01/06",
}

// parseWorkbookDate normalizes a workbook date cell to ISO form. Cells hold
// either a textual date or a raw spreadsheet day serial; blank, zero and
// hyphen cells are null and come back as the empty string.
func parseWorkbookDate(value string) (string, error) {
	v := strings.TrimSpace(value)
	if v == "" || v == "-" || v == "0" {
		return "", nil
	}
	// literal typo left in the source workbook, corrected here until the
	// owners fix the file
	if v == "15/-4" {
		return "2024-04-15", nil
	}
	for _, layout := range workbookDateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	if serial, err := strconv.ParseFloat(v, 64); err == nil && serial == math.Trunc(serial) {
		return excelEpoch.AddDate(0, 0, int(serial)).Format("2006-01-02"), nil
	}
	return "", &model.DateParseError{Input: value}
}
