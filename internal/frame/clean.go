package frame

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"go-report-etl/internal/model"
)

// sinonaReplacements canonicalizes yes/no style tokens wherever they
// appear in the frame.
var sinonaReplacements = map[string]string{
	"Sí":        "SI",
	"No":        "NO",
	"No aplica": "NA",
	"Si":        "SI",
	"N.A.":      "NA",
}

// headerSpecialChars are stripped from column names by
// remove_specialchars_from_column_names.
const headerSpecialChars = `¿?#,@&“"”/()`

var (
	digitRun    = regexp.MustCompile(`\d+`)
	nonAlnumRun = regexp.MustCompile(`[^0-9a-zA-Z&_]+`)
)

// Apply runs the ordered cleaning steps over the frame, in place and
// sequentially. An unknown operation name fails immediately; steps already
// applied stay applied (there is no rollback).
func Apply(f *Frame, steps []model.CleaningStep) error {
	for _, step := range steps {
		if err := applyStep(f, step); err != nil {
			return err
		}
	}
	return nil
}

// applyStep dispatches one step against the closed operation set.
func applyStep(f *Frame, step model.CleaningStep) error {
	switch step.Name {
	case "parse_sinona":
		parseSiNoNA(f)
	case "remove_empty_rows":
		removeEmptyRows(f)
	case "empty_asnull":
		emptyAsNull(f)
	case "replace_values":
		var p replaceValuesParams
		if err := decodeParams(step, &p); err != nil {
			return err
		}
		if len(p.OldValues) != len(p.NewValues) {
			return model.Configf("replace_values: old_values and new_values must have the same length")
		}
		replaceValues(f, p)
	case "trim_column_names":
		f.renameHeaders(trimHeader)
	case "trim_column_values":
		var p columnsParams
		if err := decodeParams(step, &p); err != nil {
			return err
		}
		trimColumnValues(f, p.Columns)
	case "trim_all_values":
		trimColumnValues(f, f.Columns)
	case "truncate_column_names":
		var p lengthParams
		if err := decodeParams(step, &p); err != nil {
			return err
		}
		f.renameHeaders(func(col string) string { return truncate(col, p.Length) })
	case "remove_specialchars_from_column_names":
		f.renameHeaders(stripHeaderSpecialChars)
	case "ignore_columns":
		var p columnsParams
		if err := decodeParams(step, &p); err != nil {
			return err
		}
		ignoreColumns(f, p.Columns)
	case "filter_columns":
		var p columnsParams
		if err := decodeParams(step, &p); err != nil {
			return err
		}
		filterColumns(f, p.Columns)
	case "only_numbers_columns":
		var p columnsParams
		if err := decodeParams(step, &p); err != nil {
			return err
		}
		onlyNumbersColumns(f, p.Columns)
	case "normalize_column_names":
		f.renameHeaders(normalizeHeader)
	case "remove_duplicate_rows":
		removeDuplicateRows(f)
	default:
		return &model.UnsupportedStepError{Step: step.Name}
	}
	return nil
}

type columnsParams struct {
	Columns model.FlexStrings `yaml:"columns"`
}

type replaceValuesParams struct {
	OldValues []string          `yaml:"old_values"`
	NewValues []string          `yaml:"new_values"`
	Columns   model.FlexStrings `yaml:"columns"`
}

type lengthParams struct {
	Length int `yaml:"length"`
}

func decodeParams(step model.CleaningStep, out interface{}) error {
	if step.Params == nil {
		return model.Configf("cleaning step %s requires parameters", step.Name)
	}
	if err := step.Params.Decode(out); err != nil {
		return model.Configf("cleaning step %s: invalid parameters: %v", step.Name, err)
	}
	return nil
}

// parseSiNoNA replaces yes/no style tokens across every cell.
func parseSiNoNA(f *Frame) {
	for _, rec := range f.Records {
		for _, col := range f.Columns {
			if v, ok := rec[col]; ok {
				if repl, hit := sinonaReplacements[v]; hit {
					rec[col] = repl
				}
			}
		}
	}
}

// removeEmptyRows drops records whose cells are all null or empty.
func removeEmptyRows(f *Frame) {
	kept := f.Records[:0]
	for _, rec := range f.Records {
		empty := true
		for _, col := range f.Columns {
			if v, ok := rec[col]; ok && v != "" {
				empty = false
				break
			}
		}
		if !empty {
			kept = append(kept, rec)
		}
	}
	f.Records = kept
}

// emptyAsNull turns whitespace-only cells into null cells.
func emptyAsNull(f *Frame) {
	for _, rec := range f.Records {
		for _, col := range f.Columns {
			if v, ok := rec[col]; ok && strings.TrimSpace(v) == "" {
				delete(rec, col)
			}
		}
	}
}

// replaceValues substitutes old values with their positional replacement
// in the listed columns. Columns absent from the frame are skipped.
func replaceValues(f *Frame, p replaceValuesParams) {
	mapping := make(map[string]string, len(p.OldValues))
	for i, old := range p.OldValues {
		mapping[old] = p.NewValues[i]
	}
	for _, col := range p.Columns {
		if !f.HasColumn(col) {
			continue
		}
		for _, rec := range f.Records {
			if v, ok := rec[col]; ok {
				if repl, hit := mapping[v]; hit {
					rec[col] = repl
				}
			}
		}
	}
}

// trimColumnValues strips whitespace from the cells of the listed columns.
func trimColumnValues(f *Frame, columns []string) {
	for _, col := range columns {
		if !f.HasColumn(col) {
			continue
		}
		for _, rec := range f.Records {
			if v, ok := rec[col]; ok {
				rec[col] = strings.TrimSpace(v)
			}
		}
	}
}

// ignoreColumns drops the listed columns; absent ones are a no-op.
func ignoreColumns(f *Frame, columns []string) {
	f.DropColumns(columns...)
}

// filterColumns keeps only the listed columns, reordered to the list.
func filterColumns(f *Frame, columns []string) {
	keep := make([]string, 0, len(columns))
	kept := make(map[string]bool, len(columns))
	for _, col := range columns {
		if f.HasColumn(col) && !kept[col] {
			kept[col] = true
			keep = append(keep, col)
		}
	}
	for _, rec := range f.Records {
		for key := range rec {
			if !kept[key] {
				delete(rec, key)
			}
		}
	}
	f.Columns = keep
}

// onlyNumbersColumns keeps the first digit run of each cell in the listed
// columns; cells without digits become null.
func onlyNumbersColumns(f *Frame, columns []string) {
	for _, col := range columns {
		if !f.HasColumn(col) {
			continue
		}
		for _, rec := range f.Records {
			v, ok := rec[col]
			if !ok {
				continue
			}
			if m := digitRun.FindString(v); m != "" {
				rec[col] = m
			} else {
				delete(rec, col)
			}
		}
	}
}

// removeDuplicateRows drops exact duplicates, keeping the first occurrence.
func removeDuplicateRows(f *Frame) {
	seen := make(map[string]bool, len(f.Records))
	kept := f.Records[:0]
	var key strings.Builder
	for _, rec := range f.Records {
		key.Reset()
		for _, col := range f.Columns {
			if v, ok := rec[col]; ok {
				key.WriteString(v)
			} else {
				key.WriteByte(0x00) // null marker, distinct from ""
			}
			key.WriteByte(0x1f)
		}
		k := key.String()
		if !seen[k] {
			seen[k] = true
			kept = append(kept, rec)
		}
	}
	f.Records = kept
}

// trimHeader strips a column name and collapses its inner whitespace.
func trimHeader(col string) string {
	col = strings.NewReplacer("\r", "", "\n", "").Replace(col)
	return strings.Join(strings.Fields(col), " ")
}

// truncate cuts a header to length runes.
func truncate(col string, length int) string {
	runes := []rune(col)
	if length < 0 || length >= len(runes) {
		return col
	}
	return string(runes[:length])
}

// stripHeaderSpecialChars removes the fixed special-character set.
func stripHeaderSpecialChars(col string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(headerSpecialChars, r) {
			return -1
		}
		return r
	}, col)
}

// normalizeHeader canonicalizes a column name: accents stripped via NFD,
// non-alphanumeric runs collapsed to a single separator, uppercased,
// spaces replaced by underscores.
func normalizeHeader(txt string) string {
	txt = strings.TrimSpace(txt)
	txt = norm.NFD.String(txt)
	var ascii strings.Builder
	ascii.Grow(len(txt))
	for _, r := range txt {
		if r <= unicode.MaxASCII {
			ascii.WriteRune(r)
		}
	}
	txt = nonAlnumRun.ReplaceAllString(ascii.String(), " ")
	txt = strings.Join(strings.Fields(txt), " ")
	txt = strings.ToUpper(txt)
	return strings.ReplaceAll(txt, " ", "_")
}

// StepNames returns the closed operation set, exposed by the operator API.
func StepNames() []string {
	return []string{
		"parse_sinona",
		"remove_empty_rows",
		"empty_asnull",
		"replace_values",
		"trim_column_names",
		"trim_column_values",
		"trim_all_values",
		"truncate_column_names",
		"remove_specialchars_from_column_names",
		"ignore_columns",
		"filter_columns",
		"only_numbers_columns",
		"normalize_column_names",
		"remove_duplicate_rows",
	}
}
