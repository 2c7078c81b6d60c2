package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

const deprecatedRegion = "Netherlands Antilles"

var successorRegions = []string{"Bonaire", "Saba", "Sint Maarten", "Sint Eustatius"}

type checkPayload struct {
	Name    string   `json:"name"`
	Status  string   `json:"status"`
	Details []string `json:"details,omitempty"`
}

type datasetPayload struct {
	CleanedCSV        string   `json:"cleaned_csv"`
	RawCSV            string   `json:"raw_csv"`
	Lookup            string   `json:"lookup"`
	Unit              string   `json:"unit"`
	CleanedRows       int      `json:"cleaned_rows"`
	RawWideRows       int      `json:"raw_wide_rows"`
	YearColumns       int      `json:"year_columns"`
	SplitMode         string   `json:"split_mode"`
	SuccessorsInRaw   []string `json:"successors_in_raw,omitempty"`
	DeprecatedInRaw   int      `json:"deprecated_raw_rows"`
	MappedLongRows    int      `json:"mapped_long_rows"`
	RemovedLongRows   int      `json:"removed_long_rows"`
	ExpectedFinalRows int      `json:"expected_final_rows"`
}

type reportPayload struct {
	Run     string         `json:"run"`
	Status  string         `json:"status"`
	Dataset datasetPayload `json:"dataset"`
	Checks  []checkPayload `json:"checks"`
}

func main() {
	cleaned := flag.String("cleaned", "outputs/fao_commodity_quant_reference.csv", "Cleaned reference CSV to verify")
	raw := flag.String("raw", "testdata/fao_commodity_quant_raw.csv", "Raw wide CSV the cleaned file was built from")
	lookupPath := flag.String("lookup", "testdata/commodity_lookup.csv", "Commodity to product lookup (CSV or xlsx)")
	encoding := flag.String("encoding", "", "Raw file encoding (utf8 or latin1)")
	subZero := flag.Float64("sub-zero", 0.1, "Numeric substitute used for the FAO \"0 0\" sentinel")
	outputJSON := flag.String("output-json", "", "Optional path to write JSON report")
	maxDetails := flag.Int("max-details", 25, "Detail lines kept per check")
	flag.Parse()

	report, err := runChecks(*cleaned, *raw, *lookupPath, *encoding, *subZero, *maxDetails)
	if err != nil {
		fmt.Fprintf(os.Stderr, "verify error: %v\n", err)
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
	} else {
		fmt.Println(string(payload))
	}
	if report.Status != "ok" {
		os.Exit(1)
	}
}

type groupKey struct {
	commodity string
	year      string
}

type rawGroup struct {
	rows       int
	nonMissing int
	sum        float64
}

type verifyInput struct {
	cleanedHeaders []string
	cleanedRows    []map[string]string
	unit           string

	lookup map[string]string

	rawWideRows     int
	yearColumns     int
	mappedLongRows  int
	removedLongRows int
	deprecatedRaw   int
	successorsInRaw []string
	rawGroups       map[groupKey]rawGroup
}

func runChecks(cleanedPath, rawPath, lookupPath, encoding string, subZero float64, maxDetails int) (reportPayload, error) {
	in, err := loadVerifyInput(cleanedPath, rawPath, lookupPath, encoding, subZero)
	if err != nil {
		return reportPayload{}, err
	}

	mode := "performed"
	if len(in.successorsInRaw) > 0 {
		mode = "skipped"
	}
	expectedFinal := in.mappedLongRows - in.removedLongRows + 4*in.removedLongRows
	if mode == "skipped" {
		expectedFinal = in.mappedLongRows
	}

	checks := []checkPayload{
		checkCleanedSchema(in),
		checkSentinelResidue(in, maxDetails),
		checkLookupJoin(in, maxDetails),
		checkRegionSplit(in, mode, maxDetails),
		checkValueConservation(in, mode, maxDetails),
		checkRowCount(in, expectedFinal),
	}

	allOK := true
	for _, c := range checks {
		if c.Status != "ok" {
			allOK = false
		}
	}
	return reportPayload{
		Run:    uuid.NewString(),
		Status: ternary(allOK, "ok", "failed"),
		Dataset: datasetPayload{
			CleanedCSV:        cleanedPath,
			RawCSV:            rawPath,
			Lookup:            lookupPath,
			Unit:              in.unit,
			CleanedRows:       len(in.cleanedRows),
			RawWideRows:       in.rawWideRows,
			YearColumns:       in.yearColumns,
			SplitMode:         mode,
			SuccessorsInRaw:   in.successorsInRaw,
			DeprecatedInRaw:   in.deprecatedRaw,
			MappedLongRows:    in.mappedLongRows,
			RemovedLongRows:   in.removedLongRows,
			ExpectedFinalRows: expectedFinal,
		},
		Checks: checks,
	}, nil
}

func loadVerifyInput(cleanedPath, rawPath, lookupPath, encoding string, subZero float64) (*verifyInput, error) {
	headers, rows, err := loadCSVTable(cleanedPath)
	if err != nil {
		return nil, fmt.Errorf("load cleaned csv: %w", err)
	}
	in := &verifyInput{cleanedHeaders: headers, cleanedRows: rows}
	if len(headers) == 5 {
		in.unit = headers[4]
	}

	in.lookup, err = loadProductLookup(lookupPath)
	if err != nil {
		return nil, fmt.Errorf("load lookup: %w", err)
	}

	rawHeaders, rawRecords, err := loadRawTable(rawPath, encoding)
	if err != nil {
		return nil, fmt.Errorf("load raw csv: %w", err)
	}
	idx := map[string]int{}
	for i, h := range rawHeaders {
		idx[strings.TrimSpace(strings.ToLower(h))] = i
	}
	var missing []string
	for _, need := range []string{"country", "commodity", "trade_flow"} {
		if _, ok := idx[need]; !ok {
			missing = append(missing, need)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%s: missing required column(s): %s", rawPath, strings.Join(missing, ", "))
	}
	idCols := map[int]bool{idx["country"]: true, idx["commodity"]: true, idx["trade_flow"]: true}
	type yearCol struct {
		col int
		key string
	}
	var yearCols []yearCol
	for i, h := range rawHeaders {
		if idCols[i] {
			continue
		}
		yearCols = append(yearCols, yearCol{col: i, key: yearKey(h)})
	}
	if len(yearCols) == 0 {
		return nil, fmt.Errorf("%s: no year columns", rawPath)
	}

	subText := strconv.FormatFloat(subZero, 'g', -1, 64)
	in.rawWideRows = len(rawRecords)
	in.yearColumns = len(yearCols)
	in.rawGroups = map[groupKey]rawGroup{}
	successorSeen := map[string]bool{}
	for _, rec := range rawRecords {
		country := fieldAt(rec, idx["country"])
		commodity := fieldAt(rec, idx["commodity"])
		for _, s := range successorRegions {
			if country == s {
				successorSeen[s] = true
			}
		}
		if country == deprecatedRegion {
			in.deprecatedRaw++
		}
		if _, mapped := in.lookup[commodity]; !mapped {
			continue
		}
		in.mappedLongRows += len(yearCols)
		if country != deprecatedRegion {
			continue
		}
		in.removedLongRows += len(yearCols)
		for _, yc := range yearCols {
			key := groupKey{commodity: commodity, year: yc.key}
			g := in.rawGroups[key]
			g.rows++
			if v := normalizeRawValue(fieldAt(rec, yc.col), subText); v != nil {
				g.nonMissing++
				g.sum += *v
			}
			in.rawGroups[key] = g
		}
	}
	for _, s := range successorRegions {
		if successorSeen[s] {
			in.successorsInRaw = append(in.successorsInRaw, s)
		}
	}
	return in, nil
}

func checkCleanedSchema(in *verifyInput) checkPayload {
	c := checkPayload{Name: "cleaned_schema", Status: "ok"}
	h := in.cleanedHeaders
	if len(h) != 5 || h[0] != "country" || h[1] != "commodity" || h[2] != "product" || h[3] != "year" {
		c.Status = "failed"
		c.Details = append(c.Details, fmt.Sprintf("expected columns country, commodity, product, year, <unit>; got %s", strings.Join(h, ", ")))
		return c
	}
	if in.unit != "tonnes" && in.unit != "usd" {
		c.Status = "failed"
		c.Details = append(c.Details, fmt.Sprintf("unit column must be tonnes or usd, got %q", in.unit))
	}
	return c
}

func checkSentinelResidue(in *verifyInput, maxDetails int) checkPayload {
	c := checkPayload{Name: "sentinel_residue", Status: "ok"}
	for i, row := range in.cleanedRows {
		value := row[in.unit]
		switch {
		case value == "..." || value == "0 0" || value == "-":
			c.Details = appendDetail(c.Details, maxDetails, fmt.Sprintf("row %d: raw sentinel %q survived normalization", i+1, value))
		case strings.HasSuffix(value, " F"):
			c.Details = appendDetail(c.Details, maxDetails, fmt.Sprintf("row %d: estimate flag survived normalization: %q", i+1, value))
		case value != "":
			if _, err := strconv.ParseFloat(value, 64); err != nil {
				c.Details = appendDetail(c.Details, maxDetails, fmt.Sprintf("row %d: non-numeric value %q", i+1, value))
			}
		}
		if year := row["year"]; year != "" {
			if _, err := strconv.ParseInt(year, 10, 64); err != nil {
				c.Details = appendDetail(c.Details, maxDetails, fmt.Sprintf("row %d: non-integer year %q", i+1, year))
			}
		}
	}
	if len(c.Details) > 0 {
		c.Status = "failed"
	}
	return c
}

func checkLookupJoin(in *verifyInput, maxDetails int) checkPayload {
	c := checkPayload{Name: "lookup_join", Status: "ok"}
	for i, row := range in.cleanedRows {
		product, mapped := in.lookup[row["commodity"]]
		if !mapped {
			c.Details = appendDetail(c.Details, maxDetails, fmt.Sprintf("row %d: commodity %q has no lookup mapping", i+1, row["commodity"]))
			continue
		}
		if row["product"] != product {
			c.Details = appendDetail(c.Details, maxDetails, fmt.Sprintf("row %d: product %q does not match lookup %q", i+1, row["product"], product))
		}
	}
	if len(c.Details) > 0 {
		c.Status = "failed"
	}
	return c
}

func checkRegionSplit(in *verifyInput, mode string, maxDetails int) checkPayload {
	c := checkPayload{Name: "region_split", Status: "ok"}

	deprecatedRows := 0
	successorCounts := map[groupKey]map[string]int{}
	for _, row := range in.cleanedRows {
		if row["country"] == deprecatedRegion {
			deprecatedRows++
		}
		if isSuccessor(row["country"]) {
			key := groupKey{commodity: row["commodity"], year: row["year"]}
			if successorCounts[key] == nil {
				successorCounts[key] = map[string]int{}
			}
			successorCounts[key][row["country"]]++
		}
	}

	if mode == "skipped" {
		if deprecatedRows != in.removedLongRows {
			c.Details = appendDetail(c.Details, maxDetails, fmt.Sprintf("skip mode: expected %d deprecated-region rows preserved, found %d", in.removedLongRows, deprecatedRows))
		}
		if len(c.Details) > 0 {
			c.Status = "failed"
		}
		return c
	}

	if deprecatedRows > 0 {
		c.Details = appendDetail(c.Details, maxDetails, fmt.Sprintf("%d deprecated-region rows survived the split", deprecatedRows))
	}
	for key, g := range in.rawGroups {
		counts := successorCounts[key]
		for _, s := range successorRegions {
			if counts[s] != g.rows {
				c.Details = appendDetail(c.Details, maxDetails, fmt.Sprintf("commodity %q year %s: successor %q has %d rows, want %d", key.commodity, key.year, s, counts[s], g.rows))
			}
		}
	}
	for key := range successorCounts {
		if _, ok := in.rawGroups[key]; !ok {
			c.Details = appendDetail(c.Details, maxDetails, fmt.Sprintf("commodity %q year %s: successor rows with no raw aggregate", key.commodity, key.year))
		}
	}
	if len(c.Details) > 0 {
		c.Status = "failed"
	}
	return c
}

func checkValueConservation(in *verifyInput, mode string, maxDetails int) checkPayload {
	c := checkPayload{Name: "value_conservation", Status: "ok"}
	if mode == "skipped" {
		c.Details = append(c.Details, "split skipped; nothing to conserve")
		return c
	}
	if len(in.rawGroups) == 0 {
		c.Details = append(c.Details, "no deprecated-region rows in raw; nothing to conserve")
		return c
	}

	sums := map[groupKey]float64{}
	for _, row := range in.cleanedRows {
		if !isSuccessor(row["country"]) {
			continue
		}
		v := row[in.unit]
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			continue
		}
		key := groupKey{commodity: row["commodity"], year: row["year"]}
		sums[key] += f
	}

	failures := 0
	for key, g := range in.rawGroups {
		got, present := sums[key]
		if g.nonMissing == 0 {
			// A missing parent value propagates as missing to every successor.
			if present {
				failures++
				c.Details = appendDetail(c.Details, maxDetails, fmt.Sprintf("commodity %q year %s: raw value missing but successors sum to %.6f", key.commodity, key.year, got))
			}
			continue
		}
		diff := math.Abs(got - g.sum)
		if diff > 1e-9*math.Max(1, math.Abs(g.sum)) {
			failures++
			c.Details = appendDetail(c.Details, maxDetails, fmt.Sprintf("commodity %q year %s: successor sum %.6f, want %.6f", key.commodity, key.year, got, g.sum))
		}
	}
	if failures > 0 {
		c.Status = "failed"
	}
	return c
}

func checkRowCount(in *verifyInput, expected int) checkPayload {
	c := checkPayload{Name: "row_count", Status: "ok"}
	if len(in.cleanedRows) != expected {
		c.Status = "failed"
		c.Details = append(c.Details, fmt.Sprintf("cleaned rows %d, want %d (mapped long rows %d, removed %d)", len(in.cleanedRows), expected, in.mappedLongRows, in.removedLongRows))
	}
	return c
}

func loadCSVTable(path string) ([]string, []map[string]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	b = bytes.TrimPrefix(b, []byte{0xEF, 0xBB, 0xBF})
	r := csv.NewReader(bytes.NewReader(b))
	r.FieldsPerRecord = -1
	headers, err := r.Read()
	if err != nil {
		return nil, nil, err
	}
	rows := make([]map[string]string, 0)
	for {
		rec, err := r.Read()
		if err != nil {
			if err.Error() == "EOF" {
				break
			}
			return nil, nil, err
		}
		row := make(map[string]string, len(headers))
		for i, h := range headers {
			row[h] = fieldAt(rec, i)
		}
		rows = append(rows, row)
	}
	return headers, rows, nil
}

func loadRawTable(path, encoding string) ([]string, [][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	switch encoding {
	case "latin1", "iso-8859-1":
		decoded, _, err := transform.Bytes(charmap.ISO8859_1.NewDecoder(), data)
		if err != nil {
			return nil, nil, fmt.Errorf("decode latin1: %w", err)
		}
		data = decoded
	default:
		data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	}
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	all, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(all) == 0 {
		return nil, nil, fmt.Errorf("%s: empty file", path)
	}
	return all[0], all[1:], nil
}

func loadProductLookup(path string) (map[string]string, error) {
	var rows [][]string
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		f, err := excelize.OpenFile(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		sheet := f.GetSheetName(0)
		if sheet == "" {
			return nil, fmt.Errorf("%s: no sheets", path)
		}
		rows, err = f.GetRows(sheet)
		if err != nil {
			return nil, err
		}
	} else {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		b = bytes.TrimPrefix(b, []byte{0xEF, 0xBB, 0xBF})
		r := csv.NewReader(bytes.NewReader(b))
		r.FieldsPerRecord = -1
		rows, err = r.ReadAll()
		if err != nil {
			return nil, err
		}
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: empty lookup", path)
	}
	headerMap := map[string]int{}
	for i, h := range rows[0] {
		headerMap[strings.TrimSpace(strings.ToLower(h))] = i
	}
	ci, ok := headerMap["commodity"]
	if !ok {
		return nil, fmt.Errorf("%s: missing required column(s): commodity", path)
	}
	pi, ok := headerMap["product"]
	if !ok {
		return nil, fmt.Errorf("%s: missing required column(s): product", path)
	}
	lookup := make(map[string]string, len(rows)-1)
	for _, rec := range rows[1:] {
		commodity := fieldAt(rec, ci)
		if commodity == "" {
			continue
		}
		lookup[commodity] = fieldAt(rec, pi)
	}
	return lookup, nil
}

// normalizeRawValue mirrors the pipeline's silent-coercion rules so expected
// quarters can be derived straight from the raw file.
func normalizeRawValue(text, subText string) *float64 {
	text = strings.ReplaceAll(text, " F", "")
	if text == "..." {
		return nil
	}
	text = strings.ReplaceAll(text, "0 0", subText)
	text = strings.ReplaceAll(text, "-", "0")
	if text == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return nil
	}
	return &f
}

func yearKey(label string) string {
	s := strings.TrimSpace(label)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return strconv.FormatInt(i, 10)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return strconv.FormatInt(int64(f), 10)
	}
	return ""
}

func isSuccessor(country string) bool {
	for _, s := range successorRegions {
		if country == s {
			return true
		}
	}
	return false
}

func fieldAt(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return rec[i]
}

func appendDetail(details []string, maxDetails int, detail string) []string {
	if len(details) >= maxDetails {
		return details
	}
	return append(details, detail)
}

func ternary[T any](cond bool, a, b T) T {
	if cond {
		return a
	}
	return b
}
