package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"math/big"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

type csvTable struct {
	Path    string
	Headers []string
	Rows    []map[string]string
}

type tableProfilePayload struct {
	Path     string   `json:"path"`
	RowCount int      `json:"row_count"`
	Columns  []string `json:"columns"`
	Unit     string   `json:"unit,omitempty"`
}

type alignmentPayload struct {
	MatchedRows       int     `json:"matched_rows"`
	GoldenRows        int     `json:"golden_rows"`
	CandidateRows     int     `json:"candidate_rows"`
	MissingRows       int     `json:"missing_rows"`
	ExtraRows         int     `json:"extra_rows"`
	DuplicateKeys     int     `json:"duplicate_keys"`
	CoverageGolden    float64 `json:"coverage_golden"`
	CoverageCandidate float64 `json:"coverage_candidate"`
}

type columnDiffPayload struct {
	Column     string  `json:"column"`
	Compared   int     `json:"compared"`
	Equal      int     `json:"equal"`
	Differing  int     `json:"differing"`
	Similarity float64 `json:"similarity"`
}

type diffPayload struct {
	Key       string `json:"key"`
	Column    string `json:"column"`
	Golden    string `json:"golden"`
	Candidate string `json:"candidate"`
}

type reportPayload struct {
	Status     string              `json:"status"`
	Golden     tableProfilePayload `json:"golden"`
	Candidate  tableProfilePayload `json:"candidate"`
	Alignment  alignmentPayload    `json:"alignment"`
	Columns    []columnDiffPayload `json:"columns,omitempty"`
	Diffs      []diffPayload       `json:"diffs,omitempty"`
	DiffsTotal int                 `json:"diffs_total"`
}

var reNumeric = regexp.MustCompile(`^[+-]?(?:\d+\.?\d*|\.\d+)$`)

func main() {
	golden := flag.String("golden", "outputs/fao_commodity_quant_reference.csv", "Golden cleaned CSV (ground truth)")
	candidate := flag.String("candidate", "", "Candidate cleaned CSV to check")
	tolerance := flag.Float64("value-tolerance", 1e-9, "Relative tolerance applied after the exact decimal compare")
	maxDiffs := flag.Int("max-diffs", 50, "Maximum differing cells to list in the report")
	outputJSON := flag.String("output-json", "", "Optional path to write JSON report")
	flag.Parse()

	if *candidate == "" {
		fmt.Fprintln(os.Stderr, "missing -candidate")
		os.Exit(1)
	}

	report, err := diffCleanedCSVs(*golden, *candidate, *tolerance, *maxDiffs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "diff error: %v\n", err)
		os.Exit(1)
	}

	payload, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
		os.Exit(1)
	}

	if *outputJSON != "" {
		if err := os.MkdirAll(filepath.Dir(*outputJSON), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "mkdir error: %v\n", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*outputJSON, append(payload, '\n'), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "write report error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote JSON report: %s\n", *outputJSON)
		fmt.Printf("Status: %s\n", report.Status)
		fmt.Printf("Matched rows: %d (golden %d, candidate %d)\n", report.Alignment.MatchedRows, report.Alignment.GoldenRows, report.Alignment.CandidateRows)
		fmt.Printf("Differing cells: %d\n", report.DiffsTotal)
	} else {
		fmt.Println(string(payload))
	}
	if report.Status != "identical" {
		os.Exit(1)
	}
}

// diffCleanedCSVs compares two cleaned long tables row by row. Rows are keyed
// by (country, commodity, canonical year); the candidate must carry the exact
// same header as the golden file or the result is schema_mismatch. A key can
// legitimately cover several rows since the cleaned schema keeps no trade-flow
// column, so the row groups sharing a key are put in canonical order, paired
// off and compared cell by cell. Missing or surplus rows and differing cells
// turn the status to differs; duplicate keys alone do not.
func diffCleanedCSVs(goldenPath, candidatePath string, tol float64, maxDiffs int) (reportPayload, error) {
	if maxDiffs < 0 {
		maxDiffs = 0
	}
	golden, err := loadCSV(goldenPath)
	if err != nil {
		return reportPayload{}, err
	}
	cand, err := loadCSV(candidatePath)
	if err != nil {
		return reportPayload{}, err
	}

	goldenUnit, err := cleanedUnitColumn(golden.Headers)
	if err != nil {
		return reportPayload{}, fmt.Errorf("%s: %w", goldenPath, err)
	}
	candUnit, _ := cleanedUnitColumn(cand.Headers)

	goldenProfile := tableProfilePayload{Path: golden.Path, RowCount: len(golden.Rows), Columns: golden.Headers, Unit: goldenUnit}
	candProfile := tableProfilePayload{Path: cand.Path, RowCount: len(cand.Rows), Columns: cand.Headers, Unit: candUnit}

	if !sameHeaders(golden.Headers, cand.Headers) {
		return reportPayload{
			Status:    "schema_mismatch",
			Golden:    goldenProfile,
			Candidate: candProfile,
			Alignment: alignmentPayload{GoldenRows: len(golden.Rows), CandidateRows: len(cand.Rows)},
		}, nil
	}

	goldenIdx := indexByKey(golden.Rows)
	candIdx := indexByKey(cand.Rows)

	alignment := alignmentPayload{GoldenRows: len(golden.Rows), CandidateRows: len(cand.Rows)}
	for _, rows := range goldenIdx {
		if len(rows) > 1 {
			alignment.DuplicateKeys++
		}
	}
	for k, rows := range candIdx {
		if len(rows) > 1 {
			alignment.DuplicateKeys++
		}
		if _, ok := goldenIdx[k]; !ok {
			alignment.ExtraRows += len(rows)
		}
	}

	colStats := make([]columnDiffPayload, len(golden.Headers))
	for i, col := range golden.Headers {
		colStats[i] = columnDiffPayload{Column: col}
	}

	var diffs []diffPayload
	diffsTotal := 0
	for _, k := range sortedKeys(goldenIdx) {
		gIdxs := goldenIdx[k]
		cIdxs, ok := candIdx[k]
		if !ok {
			alignment.MissingRows += len(gIdxs)
			continue
		}
		gRows := rowsInSignatureOrder(golden.Rows, gIdxs, golden.Headers)
		cRows := rowsInSignatureOrder(cand.Rows, cIdxs, golden.Headers)
		paired := len(gRows)
		if len(cRows) < paired {
			paired = len(cRows)
		}
		alignment.MissingRows += len(gRows) - paired
		alignment.ExtraRows += len(cRows) - paired
		for p := 0; p < paired; p++ {
			alignment.MatchedRows++
			gRow, cRow := gRows[p], cRows[p]
			key := displayKey(gRow)
			if len(gRows) > 1 || len(cRows) > 1 {
				key = fmt.Sprintf("%s #%d", key, p+1)
			}
			for i, col := range golden.Headers {
				colStats[i].Compared++
				if valuesEqual(gRow[col], cRow[col], tol) {
					colStats[i].Equal++
					continue
				}
				colStats[i].Differing++
				diffsTotal++
				if len(diffs) < maxDiffs {
					diffs = append(diffs, diffPayload{
						Key:       key,
						Column:    col,
						Golden:    gRow[col],
						Candidate: cRow[col],
					})
				}
			}
		}
	}
	for i := range colStats {
		colStats[i].Similarity = round6(safeDiv(float64(colStats[i].Equal), float64(colStats[i].Compared)))
	}
	alignment.CoverageGolden = round6(safeDiv(float64(alignment.MatchedRows), float64(len(golden.Rows))))
	alignment.CoverageCandidate = round6(safeDiv(float64(alignment.MatchedRows), float64(len(cand.Rows))))

	status := "identical"
	if diffsTotal > 0 || alignment.MissingRows > 0 || alignment.ExtraRows > 0 {
		status = "differs"
	}
	return reportPayload{
		Status:     status,
		Golden:     goldenProfile,
		Candidate:  candProfile,
		Alignment:  alignment,
		Columns:    colStats,
		Diffs:      diffs,
		DiffsTotal: diffsTotal,
	}, nil
}

func loadCSV(path string) (csvTable, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return csvTable{}, err
	}
	b = bytes.TrimPrefix(b, []byte{0xEF, 0xBB, 0xBF})
	r := csv.NewReader(bytes.NewReader(b))
	r.FieldsPerRecord = -1
	headers, err := r.Read()
	if err != nil {
		return csvTable{}, err
	}
	var rows []map[string]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return csvTable{}, err
		}
		row := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(rec) {
				row[h] = rec[i]
			} else {
				row[h] = ""
			}
		}
		rows = append(rows, row)
	}
	return csvTable{Path: path, Headers: headers, Rows: rows}, nil
}

func cleanedUnitColumn(headers []string) (string, error) {
	if len(headers) != 5 {
		return "", fmt.Errorf("expected 5 columns (country, commodity, product, year, unit), got %d", len(headers))
	}
	for i, want := range []string{"country", "commodity", "product", "year"} {
		if headers[i] != want {
			return "", fmt.Errorf("column %d is %q, want %q", i+1, headers[i], want)
		}
	}
	unit := strings.TrimSpace(headers[4])
	if unit == "" {
		return "", fmt.Errorf("unit column has no name")
	}
	return unit, nil
}

func sameHeaders(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func indexByKey(rows []map[string]string) map[string][]int {
	idx := make(map[string][]int, len(rows))
	for i, row := range rows {
		k := cleanedRowKey(row)
		idx[k] = append(idx[k], i)
	}
	return idx
}

// cleanedRowKey canonicalizes the year so that "1995" and "1995.0" align.
func cleanedRowKey(row map[string]string) string {
	return strings.Join([]string{
		normalizeText(row["country"]),
		normalizeText(row["commodity"]),
		canonicalCell(row["year"]),
	}, "\x1f")
}

func displayKey(row map[string]string) string {
	return strings.Join([]string{
		normalizeText(row["country"]),
		normalizeText(row["commodity"]),
		canonicalCell(row["year"]),
	}, " | ")
}

// rowsInSignatureOrder resolves row indexes and orders the group by the
// canonical signature of the full row, so duplicate-key rows pair up the same
// way on both sides no matter the file order.
func rowsInSignatureOrder(rows []map[string]string, idxs []int, headers []string) []map[string]string {
	out := make([]map[string]string, len(idxs))
	for i, idx := range idxs {
		out[i] = rows[idx]
	}
	sort.SliceStable(out, func(i, j int) bool {
		return rowSignature(out[i], headers) < rowSignature(out[j], headers)
	})
	return out
}

func rowSignature(row map[string]string, headers []string) string {
	parts := make([]string, len(headers))
	for i, h := range headers {
		parts[i] = canonicalCell(row[h])
	}
	return strings.Join(parts, "\x1f")
}

func canonicalCell(v string) string {
	if _, ok := parseDecimal(v); ok {
		return canonicalDecimalString(v)
	}
	return normalizeText(v)
}

func sortedKeys(idx map[string][]int) []string {
	keys := make([]string, 0, len(idx))
	for k := range idx {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// valuesEqual treats two cells as equal when both are empty, when the
// normalized text matches, or when both parse as decimals and are either
// exactly equal or within the relative tolerance.
func valuesEqual(a, b string, tol float64) bool {
	if isEmpty(a) && isEmpty(b) {
		return true
	}
	if isEmpty(a) || isEmpty(b) {
		return false
	}
	an := normalizeText(a)
	bn := normalizeText(b)
	if an == bn {
		return true
	}
	ad, okA := parseDecimal(an)
	bd, okB := parseDecimal(bn)
	if !okA || !okB {
		return false
	}
	if ad.Cmp(bd) == 0 {
		return true
	}
	if tol <= 0 {
		return false
	}
	af, _ := new(big.Float).SetRat(ad).Float64()
	bf, _ := new(big.Float).SetRat(bd).Float64()
	denom := math.Max(math.Abs(af), math.Abs(bf))
	denom = math.Max(denom, 1)
	return math.Abs(af-bf) <= tol*denom
}

func isEmpty(v string) bool { return strings.TrimSpace(v) == "" }

func normalizeText(v string) string { return strings.TrimSpace(v) }

func parseDecimal(v string) (*big.Rat, bool) {
	s := normalizeText(v)
	if s == "" || !reNumeric.MatchString(s) {
		return nil, false
	}
	r := new(big.Rat)
	if _, ok := r.SetString(s); !ok {
		return nil, false
	}
	return r, true
}

func canonicalDecimalString(v string) string {
	s := normalizeText(v)
	if s == "" {
		return ""
	}
	sign := ""
	if strings.HasPrefix(s, "+") {
		s = s[1:]
	} else if strings.HasPrefix(s, "-") {
		sign = "-"
		s = s[1:]
	}
	intPart, fracPart, hasDot := s, "", false
	if i := strings.IndexByte(s, '.'); i >= 0 {
		hasDot = true
		intPart = s[:i]
		fracPart = s[i+1:]
	}
	intPart = strings.TrimLeft(intPart, "0")
	if intPart == "" {
		intPart = "0"
	}
	if hasDot {
		fracPart = strings.TrimRight(fracPart, "0")
	}
	if fracPart == "" {
		if intPart == "0" {
			return "0"
		}
		return sign + intPart
	}
	return sign + intPart + "." + fracPart
}

func round6(v float64) float64 { return math.Round(v*1e6) / 1e6 }

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}
