package main

import (
	"bytes"
	"database/sql"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"
)

// Observation is one country x commodity x trade-direction x year cell of a
// wide FAO table after reshaping to long form. Value and Year stay nil when
// the source text cannot be read as a number.
type Observation struct {
	Country   string
	Commodity string
	TradeFlow string
	Product   string
	YearText  string
	RawValue  string
	Year      *int64
	Value     *float64
}

var (
	sourcesPath = flag.String("sources", "sources.yaml", "Sources manifest (YAML)")
	outputDir   = flag.String("out-dir", "outputs", "Output directory")
	subZero     = flag.Float64("sub-zero", 0.1, "Numeric substitute for the FAO \"0 0\" sentinel")
	strictGuard = flag.Bool("strict-guard", false, "Fail when successor regions are partially present instead of skipping the split")
	limitRows   = flag.Int("limit", 0, "Optional wide-row limit for testing (0 = all rows)")
)

const deprecatedRegion = "Netherlands Antilles"

var successorRegions = []string{"Bonaire", "Saba", "Sint Maarten", "Sint Eustatius"}

var reDatasetName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

type sourcesConfig struct {
	Lookup   string          `yaml:"lookup"`
	Datasets []datasetConfig `yaml:"datasets"`
}

type datasetConfig struct {
	Name     string `yaml:"name"`
	Raw      string `yaml:"raw"`
	Encoding string `yaml:"encoding"`
}

func main() {
	flag.Parse()

	cfg, err := loadSourcesConfig(*sourcesPath)
	if err != nil {
		fatalf("load sources: %v", err)
	}
	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fatalf("mkdir outputs: %v", err)
	}
	lookup, err := loadProductLookup(cfg.Lookup)
	if err != nil {
		fatalf("load lookup: %v", err)
	}

	runID := uuid.NewString()
	fmt.Printf("Run: %s\n", runID)
	fmt.Printf("Lookup commodities: %d\n", len(lookup))
	fmt.Printf("Datasets: %d\n", len(cfg.Datasets))

	for _, ds := range cfg.Datasets {
		if err := processDataset(ds, lookup, runID); err != nil {
			fatalf("process %s: %v", ds.Name, err)
		}
	}
}

func processDataset(ds datasetConfig, lookup map[string]string, runID string) error {
	unit, err := deriveUnit(ds.Name)
	if err != nil {
		return err
	}

	wide, err := loadWideTable(ds.Raw, ds.Encoding, *limitRows)
	if err != nil {
		return fmt.Errorf("load raw table: %w", err)
	}
	long := reshapeLong(wide)
	records, stats := normalizeValues(long, *subZero)
	sortObservations(records)
	joined, droppedJoin := joinProducts(records, lookup)
	cleaned, split, err := splitSuccessorRegions(joined, *strictGuard)
	if err != nil {
		return err
	}

	fmt.Printf("\n[%s]\n", ds.Name)
	fmt.Printf("Wide rows read: %d\n", len(wide.rows))
	fmt.Printf("Year columns: %d\n", len(wide.yearLabels))
	fmt.Printf("Long rows reshaped: %d\n", len(long))
	fmt.Printf("Rows dropped by lookup join: %d\n", droppedJoin)
	fmt.Printf("Region split: %s\n", split.describe())
	fmt.Printf("Rows written (cleaned): %d\n", len(cleaned))
	if n := stats.ParseFailures + stats.YearFailures; n > 0 {
		fmt.Fprintf(os.Stderr, "warning: %s: %d malformed cell(s) silently coerced to missing\n", ds.Name, n)
	}

	outCSV := filepath.Join(*outputDir, ds.Name+"_reference.csv")
	outSQLite := filepath.Join(*outputDir, ds.Name+"_cleaned.sqlite")
	outProfile := filepath.Join(*outputDir, ds.Name+"_profile.md")

	cols := []string{"country", "commodity", "product", "year", unit}
	if err := writeReferenceCSV(outCSV, cols, cleaned); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	if err := writeSQLite(outSQLite, ds.Name, unit, cleaned); err != nil {
		return fmt.Errorf("write sqlite: %w", err)
	}
	profile := buildProfile(ds.Name, unit, runID, wide, len(long), droppedJoin, stats, split, cleaned)
	if err := os.WriteFile(outProfile, []byte(profile), 0o644); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}

	fmt.Printf("CSV: %s\n", outCSV)
	fmt.Printf("SQLite: %s\n", outSQLite)
	fmt.Printf("Profile: %s\n", outProfile)
	return nil
}

func loadSourcesConfig(path string) (*sourcesConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources config: %w", err)
	}
	var cfg sourcesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse sources config: %w", err)
	}
	if cfg.Lookup == "" {
		return nil, fmt.Errorf("sources config: lookup path missing")
	}
	if len(cfg.Datasets) == 0 {
		return nil, fmt.Errorf("sources config: no datasets")
	}
	seen := map[string]bool{}
	for _, ds := range cfg.Datasets {
		if !reDatasetName.MatchString(ds.Name) {
			return nil, fmt.Errorf("sources config: bad dataset name %q", ds.Name)
		}
		if seen[ds.Name] {
			return nil, fmt.Errorf("sources config: duplicate dataset name %q", ds.Name)
		}
		seen[ds.Name] = true
		if ds.Raw == "" {
			return nil, fmt.Errorf("sources config: dataset %q: raw path missing", ds.Name)
		}
		switch ds.Encoding {
		case "", "utf8", "utf-8", "latin1", "iso-8859-1":
		default:
			return nil, fmt.Errorf("sources config: dataset %q: unsupported encoding %q", ds.Name, ds.Encoding)
		}
		if _, err := deriveUnit(ds.Name); err != nil {
			return nil, fmt.Errorf("sources config: %w", err)
		}
	}
	return &cfg, nil
}

func deriveUnit(datasetName string) (string, error) {
	switch {
	case strings.Contains(datasetName, "quant"):
		return "tonnes", nil
	case strings.Contains(datasetName, "value"):
		return "usd", nil
	}
	return "", fmt.Errorf("dataset %q: unit not derivable from name (want quant or value)", datasetName)
}

type wideTable struct {
	yearLabels []string
	rows       []wideRow
}

type wideRow struct {
	country   string
	commodity string
	tradeFlow string
	values    []string
}

func loadWideTable(path, encoding string, limit int) (*wideTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch encoding {
	case "latin1", "iso-8859-1":
		decoded, _, err := transform.Bytes(charmap.ISO8859_1.NewDecoder(), data)
		if err != nil {
			return nil, fmt.Errorf("decode latin1: %w", err)
		}
		data = decoded
	default:
		data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
		if !utf8.Valid(data) {
			return nil, fmt.Errorf("%s is not valid UTF-8 (set encoding: latin1?)", path)
		}
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	all, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("%s: empty file", path)
	}

	header := all[0]
	idx := map[string]int{}
	for i, h := range header {
		idx[strings.TrimSpace(strings.ToLower(h))] = i
	}
	var missing []string
	for _, need := range []string{"country", "commodity", "trade_flow"} {
		if _, ok := idx[need]; !ok {
			missing = append(missing, need)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%s: missing required column(s): %s", path, strings.Join(missing, ", "))
	}
	idCols := map[int]bool{idx["country"]: true, idx["commodity"]: true, idx["trade_flow"]: true}

	t := &wideTable{}
	yearIdx := make([]int, 0, len(header))
	for i, h := range header {
		if idCols[i] {
			continue
		}
		t.yearLabels = append(t.yearLabels, strings.TrimSpace(h))
		yearIdx = append(yearIdx, i)
	}
	if len(t.yearLabels) == 0 {
		return nil, fmt.Errorf("%s: no year columns", path)
	}

	for _, rec := range all[1:] {
		row := wideRow{
			country:   fieldAt(rec, idx["country"]),
			commodity: fieldAt(rec, idx["commodity"]),
			tradeFlow: fieldAt(rec, idx["trade_flow"]),
			values:    make([]string, len(yearIdx)),
		}
		for i, col := range yearIdx {
			row.values[i] = fieldAt(rec, col)
		}
		t.rows = append(t.rows, row)
		if limit > 0 && len(t.rows) >= limit {
			break
		}
	}
	return t, nil
}

func fieldAt(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return rec[i]
}

func reshapeLong(t *wideTable) []Observation {
	out := make([]Observation, 0, len(t.rows)*len(t.yearLabels))
	for _, r := range t.rows {
		for i, label := range t.yearLabels {
			out = append(out, Observation{
				Country:   r.country,
				Commodity: r.commodity,
				TradeFlow: r.tradeFlow,
				YearText:  label,
				RawValue:  r.values[i],
			})
		}
	}
	return out
}

type normalizeStats struct {
	EstimateFlags    int
	MissingSentinels int
	SubZeroSubs      int
	ZeroSubs         int
	EmptyMissing     int
	ParseFailures    int
	YearFailures     int
}

// normalizeValues rewrites the raw FAO value encodings into nullable numbers.
// The substitution order is load-bearing: the estimate flag comes off before
// the missing-sentinel comparison, and both sentinel substitutions run before
// the empty-string check.
func normalizeValues(records []Observation, subZero float64) ([]Observation, normalizeStats) {
	subText := strconv.FormatFloat(subZero, 'g', -1, 64)
	var stats normalizeStats
	out := make([]Observation, len(records))
	for i, rec := range records {
		text := rec.RawValue
		if strings.Contains(text, " F") {
			text = strings.ReplaceAll(text, " F", "")
			stats.EstimateFlags++
		}
		missing := false
		if text == "..." {
			missing = true
			stats.MissingSentinels++
		}
		if !missing {
			if strings.Contains(text, "0 0") {
				text = strings.ReplaceAll(text, "0 0", subText)
				stats.SubZeroSubs++
			}
			if strings.Contains(text, "-") {
				text = strings.ReplaceAll(text, "-", "0")
				stats.ZeroSubs++
			}
			if text == "" {
				missing = true
				stats.EmptyMissing++
			}
		}
		if !missing {
			if f, err := strconv.ParseFloat(strings.TrimSpace(text), 64); err == nil {
				rec.Value = &f
			} else {
				stats.ParseFailures++
			}
		}
		if y := toInt64Text(rec.YearText); y != nil {
			rec.Year = y
		} else {
			stats.YearFailures++
		}
		out[i] = rec
	}
	return out, stats
}

func toInt64Text(s string) *int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return &i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		i := int64(f)
		return &i
	}
	return nil
}

func sortObservations(records []Observation) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Country != b.Country {
			return a.Country < b.Country
		}
		if a.Commodity != b.Commodity {
			return a.Commodity < b.Commodity
		}
		aok, bok := a.Year != nil, b.Year != nil
		if aok != bok {
			return aok // nil last
		}
		if aok && *a.Year != *b.Year {
			return *a.Year < *b.Year
		}
		// Import and Export rows of one commodity line collide on
		// (country, commodity, year) since the flow column is not written
		// out. Ties must order on the remaining fields or raw row order
		// would show through in the output.
		if a.TradeFlow != b.TradeFlow {
			return a.TradeFlow < b.TradeFlow
		}
		avok, bvok := a.Value != nil, b.Value != nil
		if avok != bvok {
			return avok // nil last
		}
		if avok && *a.Value != *b.Value {
			return *a.Value < *b.Value
		}
		return false
	})
}

func loadProductLookup(path string) (map[string]string, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return loadProductLookupXLSX(path)
	}
	return loadProductLookupCSV(path)
}

func loadProductLookupCSV(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	all, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("%s: empty lookup", path)
	}
	return lookupFromRows(path, all)
}

func loadProductLookupXLSX(path string) (map[string]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("%s: no sheets", path)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: empty lookup sheet %q", path, sheet)
	}
	return lookupFromRows(path, rows)
}

func lookupFromRows(path string, rows [][]string) (map[string]string, error) {
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
		product := fieldAt(rec, pi)
		if commodity == "" {
			continue
		}
		if prior, dup := lookup[commodity]; dup && prior != product {
			return nil, fmt.Errorf("%s: duplicate commodity %q maps to both %q and %q", path, commodity, prior, product)
		}
		lookup[commodity] = product
	}
	if len(lookup) == 0 {
		return nil, fmt.Errorf("%s: no lookup rows", path)
	}
	return lookup, nil
}

// joinProducts is an inner join: rows whose commodity has no mapping drop out.
func joinProducts(records []Observation, lookup map[string]string) ([]Observation, int) {
	out := make([]Observation, 0, len(records))
	dropped := 0
	for _, rec := range records {
		product, ok := lookup[rec.Commodity]
		if !ok {
			dropped++
			continue
		}
		rec.Product = product
		out = append(out, rec)
	}
	return out, dropped
}

type splitResult struct {
	Performed   bool
	RowsRemoved int
	RowsAdded   int
	Present     []string
}

func (s splitResult) describe() string {
	if s.Performed {
		return fmt.Sprintf("performed (%d rows removed, %d rows added)", s.RowsRemoved, s.RowsAdded)
	}
	if len(s.Present) > 0 {
		return fmt.Sprintf("skipped (successor regions present: %s)", strings.Join(s.Present, ", "))
	}
	return "skipped (no deprecated-region rows)"
}

// splitSuccessorRegions redistributes the Netherlands Antilles aggregate over
// its four successor territories, a quarter of each value apiece. Any
// successor already present in the data short-circuits the whole split; that
// includes partial presence, which the strict flag upgrades to an error.
func splitSuccessorRegions(records []Observation, strict bool) ([]Observation, splitResult, error) {
	present := successorsPresent(records)
	if len(present) > 0 {
		if strict && len(present) < len(successorRegions) {
			return nil, splitResult{}, fmt.Errorf("successor regions partially present (%s): refusing to split", strings.Join(present, ", "))
		}
		return records, splitResult{Present: present}, nil
	}

	kept := make([]Observation, 0, len(records))
	var sources []Observation
	for _, rec := range records {
		if rec.Country == deprecatedRegion {
			sources = append(sources, rec)
			continue
		}
		kept = append(kept, rec)
	}
	if len(sources) == 0 {
		return records, splitResult{}, nil
	}

	out := kept
	for _, rec := range sources {
		for _, successor := range successorRegions {
			next := rec
			next.Country = successor
			if rec.Value != nil {
				quarter := *rec.Value / 4
				next.Value = &quarter
			}
			out = append(out, next)
		}
	}
	return out, splitResult{Performed: true, RowsRemoved: len(sources), RowsAdded: len(sources) * len(successorRegions)}, nil
}

func successorsPresent(records []Observation) []string {
	seen := map[string]bool{}
	for _, rec := range records {
		for _, s := range successorRegions {
			if rec.Country == s {
				seen[s] = true
			}
		}
	}
	present := make([]string, 0, len(successorRegions))
	for _, s := range successorRegions {
		if seen[s] {
			present = append(present, s)
		}
	}
	return present
}

func writeReferenceCSV(path string, cols []string, records []Observation) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		return err
	}
	if err := writeCSVRecordWithTerminator(f, cols, "\n"); err != nil {
		return err
	}
	for _, rec := range records {
		fields := []string{rec.Country, rec.Commodity, rec.Product, yearString(rec.Year), valueString(rec.Value)}
		if err := writeCSVRecordWithTerminator(f, fields, "\n"); err != nil {
			return err
		}
	}
	return nil
}

func yearString(y *int64) string {
	if y == nil {
		return ""
	}
	return strconv.FormatInt(*y, 10)
}

func valueString(v *float64) string {
	if v == nil {
		return ""
	}
	return pythonLikeFloatString(*v)
}

func pythonLikeFloatString(f float64) string {
	if math.IsNaN(f) {
		return ""
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		// Python's str(float) keeps a .0 for integral floats.
		return s + ".0"
	}
	return s
}

func writeSQLite(path, datasetName, unit string, records []Observation) error {
	_ = os.Remove(path)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	defer db.Close()

	table := datasetName + "_cleaned"
	colTypes := map[string]string{"year": "INTEGER", unit: "REAL"}
	cols := []string{"country", "commodity", "product", "year", unit}
	var defs []string
	for _, c := range cols {
		t := colTypes[c]
		if t == "" {
			t = "TEXT"
		}
		defs = append(defs, fmt.Sprintf("%q %s", c, t))
	}
	if _, err := db.Exec(fmt.Sprintf(`DROP TABLE IF EXISTS %q`, table)); err != nil {
		return err
	}
	if _, err := db.Exec(fmt.Sprintf(`CREATE TABLE %q (`, table) + strings.Join(defs, ",") + `)`); err != nil {
		return err
	}
	ph := strings.TrimRight(strings.Repeat("?,", len(cols)), ",")
	var qCols []string
	for _, c := range cols {
		qCols = append(qCols, fmt.Sprintf("%q", c))
	}
	stmt, err := db.Prepare(fmt.Sprintf(`INSERT INTO %q (`, table) + strings.Join(qCols, ",") + `) VALUES (` + ph + `)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, rec := range records {
		var year, value any
		if rec.Year != nil {
			year = *rec.Year
		}
		if rec.Value != nil {
			value = *rec.Value
		}
		if _, err := stmt.Exec(rec.Country, rec.Commodity, rec.Product, year, value); err != nil {
			return err
		}
	}
	for _, col := range []string{"country", "commodity", "product", "year"} {
		idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %q ON %q(%q)`, "idx_"+table+"_"+col, table, col)
		if _, err := db.Exec(idx); err != nil {
			return err
		}
	}
	return nil
}

func buildProfile(datasetName, unit, runID string, wide *wideTable, longRows, droppedJoin int, stats normalizeStats, split splitResult, records []Observation) string {
	lines := []string{
		fmt.Sprintf("# %s profiling + cleaning report", datasetName),
		"",
		fmt.Sprintf("- Run: %s", runID),
		"",
		"## Dataset shape",
		fmt.Sprintf("- Wide rows read: %s", fmtInt(len(wide.rows))),
		fmt.Sprintf("- Year columns: %s", fmtInt(len(wide.yearLabels))),
		fmt.Sprintf("- Long rows reshaped: %s", fmtInt(longRows)),
		fmt.Sprintf("- Rows dropped by lookup join: %s", fmtInt(droppedJoin)),
		fmt.Sprintf("- Clean rows written: %s", fmtInt(len(records))),
		"- Columns: 5",
		"",
		"## Value normalization",
		fmt.Sprintf("- Estimate flags stripped (` F`): %s", fmtInt(stats.EstimateFlags)),
		fmt.Sprintf("- Missing sentinels (`...`): %s", fmtInt(stats.MissingSentinels)),
		fmt.Sprintf("- Sub-half-unit substitutions (`0 0`): %s", fmtInt(stats.SubZeroSubs)),
		fmt.Sprintf("- True-zero substitutions (`-`): %s", fmtInt(stats.ZeroSubs)),
		fmt.Sprintf("- Empty after substitution: %s", fmtInt(stats.EmptyMissing)),
		fmt.Sprintf("- Malformed values coerced to missing: %s", fmtInt(stats.ParseFailures)),
		fmt.Sprintf("- Years coerced to missing: %s", fmtInt(stats.YearFailures)),
		"",
		"## Region split",
		fmt.Sprintf("- Outcome: %s", split.describe()),
		"",
	}

	lines = append(lines, "## Missingness")
	total := len(records)
	nullYears, nullValues := 0, 0
	for _, rec := range records {
		if rec.Year == nil {
			nullYears++
		}
		if rec.Value == nil {
			nullValues++
		}
	}
	for _, col := range []string{"country", "commodity", "product"} {
		lines = append(lines, fmt.Sprintf("- `%s`: 0.0%% null", col))
	}
	lines = append(lines, fmt.Sprintf("- `year`: %.1f%% null", safeDiv(float64(nullYears)*100, float64(total))))
	lines = append(lines, fmt.Sprintf("- `%s`: %.1f%% null", unit, safeDiv(float64(nullValues)*100, float64(total))))
	lines = append(lines, "")

	lines = append(lines, "## Numeric summaries")
	nums := make([]float64, 0, len(records))
	for _, rec := range records {
		if rec.Value != nil {
			nums = append(nums, *rec.Value)
		}
	}
	if len(nums) > 0 {
		sort.Float64s(nums)
		lines = append(lines, fmt.Sprintf("- `%s`: count=%s, min=%s, median=%s, mean=%s, max=%s",
			unit, fmtInt(len(nums)), fmt4g(nums[0]), fmt4g(median(nums)), fmt4g(mean(nums)), fmt4g(nums[len(nums)-1]),
		))
	}
	var minYear, maxYear *int64
	for _, rec := range records {
		if rec.Year == nil {
			continue
		}
		if minYear == nil || *rec.Year < *minYear {
			y := *rec.Year
			minYear = &y
		}
		if maxYear == nil || *rec.Year > *maxYear {
			y := *rec.Year
			maxYear = &y
		}
	}
	if minYear != nil && maxYear != nil {
		lines = append(lines, fmt.Sprintf("- `year`: min=%d, max=%d", *minYear, *maxYear))
	}
	lines = append(lines, "")

	lines = append(lines, "## Value counts (top 10)")
	for _, col := range []string{"country", "commodity", "product"} {
		counts := map[string]int{}
		for _, rec := range records {
			switch col {
			case "country":
				counts[rec.Country]++
			case "commodity":
				counts[rec.Commodity]++
			case "product":
				counts[rec.Product]++
			}
		}
		type kv struct {
			k string
			v int
		}
		var items []kv
		for k, v := range counts {
			items = append(items, kv{k, v})
		}
		sort.Slice(items, func(i, j int) bool {
			if items[i].v == items[j].v {
				return items[i].k < items[j].k
			}
			return items[i].v > items[j].v
		})
		if len(items) == 0 {
			continue
		}
		lines = append(lines, fmt.Sprintf("### `%s`", col))
		for i := 0; i < len(items) && i < 10; i++ {
			lines = append(lines, fmt.Sprintf("- %s: %s", items[i].k, fmtInt(items[i].v)))
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

func writeCSVRecordWithTerminator(w io.Writer, rec []string, terminator string) error {
	for i, field := range rec {
		if i > 0 {
			if _, err := io.WriteString(w, ","); err != nil {
				return err
			}
		}
		if needsCSVQuote(field) {
			if _, err := io.WriteString(w, `"`); err != nil {
				return err
			}
			escaped := strings.ReplaceAll(field, `"`, `""`)
			if _, err := io.WriteString(w, escaped); err != nil {
				return err
			}
			if _, err := io.WriteString(w, `"`); err != nil {
				return err
			}
		} else {
			if _, err := io.WriteString(w, field); err != nil {
				return err
			}
		}
	}
	_, err := io.WriteString(w, terminator)
	return err
}

func needsCSVQuote(s string) bool {
	return strings.ContainsAny(s, ",\"\n\r")
}

func fmtInt(v int) string {
	s := strconv.Itoa(v)
	n := len(s)
	if n <= 3 {
		return s
	}
	var parts []string
	for n > 3 {
		parts = append([]string{s[n-3:]}, parts...)
		s = s[:n-3]
		n = len(s)
	}
	if s != "" {
		parts = append([]string{s}, parts...)
	}
	return strings.Join(parts, ",")
}

func fmt4g(v float64) string { return strconv.FormatFloat(v, 'g', 4, 64) }

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	n := len(xs)
	if n%2 == 1 {
		return xs[n/2]
	}
	return (xs[n/2-1] + xs[n/2]) / 2
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

func fatalf(msg string, args ...any) {
	fmt.Fprintf(os.Stderr, msg+"\n", args...)
	os.Exit(1)
}
