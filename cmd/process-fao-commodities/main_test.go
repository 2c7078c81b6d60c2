package main

import (
	"bytes"
	"database/sql"
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

func testdataPath(name string) string {
	return filepath.Join("..", "..", "testdata", name)
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) <= 1e-12
}

func TestNormalizeValues_CanonicalCodes(t *testing.T) {
	records := []Observation{
		{Country: "Norway", YearText: "2000", RawValue: "100 F"},
		{Country: "Norway", YearText: "2000", RawValue: "..."},
		{Country: "Norway", YearText: "2000", RawValue: "0 0"},
		{Country: "Norway", YearText: "2000", RawValue: "-"},
		{Country: "Norway", YearText: "2000", RawValue: ""},
		{Country: "Norway", YearText: "2000", RawValue: "... F"},
		{Country: "Norway", YearText: "2000", RawValue: "junk"},
	}
	out, stats := normalizeValues(records, 0.1)
	if len(out) != len(records) {
		t.Fatalf("expected %d rows, got %d", len(records), len(out))
	}
	wantValues := []*float64{fptr(100), nil, fptr(0.1), fptr(0), nil, nil, nil}
	for i, want := range wantValues {
		got := out[i].Value
		if (want == nil) != (got == nil) {
			t.Fatalf("row %d (%q): missing mismatch: want nil=%v, got nil=%v", i, records[i].RawValue, want == nil, got == nil)
		}
		if want != nil && !almostEqual(*want, *got) {
			t.Fatalf("row %d (%q): want %v, got %v", i, records[i].RawValue, *want, *got)
		}
	}
	for i, rec := range out {
		if rec.Year == nil || *rec.Year != 2000 {
			t.Fatalf("row %d: expected year 2000, got %v", i, rec.Year)
		}
	}
	if stats.EstimateFlags != 2 {
		t.Fatalf("expected 2 estimate flags, got %d", stats.EstimateFlags)
	}
	if stats.MissingSentinels != 2 {
		t.Fatalf("expected 2 missing sentinels, got %d", stats.MissingSentinels)
	}
	if stats.SubZeroSubs != 1 || stats.ZeroSubs != 1 || stats.EmptyMissing != 1 || stats.ParseFailures != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestNormalizeValues_ConfiguredSubstitute(t *testing.T) {
	out, _ := normalizeValues([]Observation{{YearText: "1999", RawValue: "0 0"}}, 0.5)
	if out[0].Value == nil || !almostEqual(*out[0].Value, 0.5) {
		t.Fatalf("expected 0.5, got %v", out[0].Value)
	}
	out, _ = normalizeValues([]Observation{{YearText: "1999", RawValue: "0 0"}}, 0.25)
	if out[0].Value == nil || !almostEqual(*out[0].Value, 0.25) {
		t.Fatalf("expected 0.25, got %v", out[0].Value)
	}
}

func TestNormalizeValues_KeepsRowCountAndOrder(t *testing.T) {
	records := []Observation{
		{Country: "A", YearText: "1995", RawValue: "1"},
		{Country: "B", YearText: "1996", RawValue: "..."},
		{Country: "C", YearText: "bad", RawValue: "3"},
		{Country: "D", YearText: "1998", RawValue: "-"},
	}
	out, stats := normalizeValues(records, 0.1)
	if len(out) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(out))
	}
	for i, want := range []string{"A", "B", "C", "D"} {
		if out[i].Country != want {
			t.Fatalf("row %d: expected country %q, got %q", i, want, out[i].Country)
		}
	}
	if out[2].Year != nil {
		t.Fatalf("expected unparseable year to be missing, got %v", *out[2].Year)
	}
	if stats.YearFailures != 1 {
		t.Fatalf("expected 1 year failure, got %d", stats.YearFailures)
	}
}

func TestSplitSuccessorRegions_EndToEndScenario(t *testing.T) {
	records := []Observation{
		{Country: "Aruba", Commodity: "X", Product: "P", Year: iptr(2000), Value: fptr(7)},
		{Country: "Netherlands Antilles", Commodity: "X", Product: "P", Year: iptr(2000), Value: fptr(100)},
	}
	out, res, err := splitSuccessorRegions(records, false)
	if err != nil {
		t.Fatalf("splitSuccessorRegions error: %v", err)
	}
	if !res.Performed || res.RowsRemoved != 1 || res.RowsAdded != 4 {
		t.Fatalf("unexpected split result: %+v", res)
	}
	if len(out) != 5 {
		t.Fatalf("expected 5 rows, got %d", len(out))
	}
	if out[0].Country != "Aruba" || out[0].Value == nil || !almostEqual(*out[0].Value, 7) {
		t.Fatalf("unrelated row changed: %+v", out[0])
	}
	sum := 0.0
	for i, want := range []string{"Bonaire", "Saba", "Sint Maarten", "Sint Eustatius"} {
		rec := out[1+i]
		if rec.Country != want {
			t.Fatalf("successor %d: expected %q, got %q", i, want, rec.Country)
		}
		if rec.Commodity != "X" || rec.Product != "P" || rec.Year == nil || *rec.Year != 2000 {
			t.Fatalf("successor %q carried wrong identity: %+v", want, rec)
		}
		if rec.Value == nil || !almostEqual(*rec.Value, 25) {
			t.Fatalf("successor %q: expected value 25, got %v", want, rec.Value)
		}
		sum += *rec.Value
	}
	if !almostEqual(sum, 100) {
		t.Fatalf("expected successor values to sum to 100, got %v", sum)
	}
	for _, rec := range out {
		if rec.Country == "Netherlands Antilles" {
			t.Fatalf("deprecated region still present after split")
		}
	}
}

func TestSplitSuccessorRegions_SecondApplicationIsNoOp(t *testing.T) {
	records := []Observation{
		{Country: "Aruba", Commodity: "X", Product: "P", Year: iptr(2000), Value: fptr(7)},
		{Country: "Netherlands Antilles", Commodity: "X", Product: "P", Year: iptr(2000), Value: fptr(100)},
	}
	once, _, err := splitSuccessorRegions(records, false)
	if err != nil {
		t.Fatalf("first split error: %v", err)
	}
	twice, res, err := splitSuccessorRegions(once, false)
	if err != nil {
		t.Fatalf("second split error: %v", err)
	}
	if res.Performed {
		t.Fatalf("second application should be a no-op, got %+v", res)
	}
	if len(res.Present) != 4 {
		t.Fatalf("expected all four successors reported present, got %v", res.Present)
	}
	assertSameObservations(t, once, twice)
}

func TestSplitSuccessorRegions_PartialPresenceSkips(t *testing.T) {
	records := []Observation{
		{Country: "Saba", Commodity: "X", Product: "P", Year: iptr(2000), Value: fptr(3)},
		{Country: "Netherlands Antilles", Commodity: "X", Product: "P", Year: iptr(2000), Value: fptr(100)},
	}
	out, res, err := splitSuccessorRegions(records, false)
	if err != nil {
		t.Fatalf("splitSuccessorRegions error: %v", err)
	}
	if res.Performed {
		t.Fatalf("partial successor presence must skip the split")
	}
	if len(res.Present) != 1 || res.Present[0] != "Saba" {
		t.Fatalf("expected Saba reported present, got %v", res.Present)
	}
	assertSameObservations(t, records, out)
	found := false
	for _, rec := range out {
		if rec.Country == "Netherlands Antilles" {
			found = true
		}
	}
	if !found {
		t.Fatalf("skipped split must leave deprecated-region rows in place")
	}
}

func TestSplitSuccessorRegions_StrictModeRejectsPartialPresence(t *testing.T) {
	records := []Observation{
		{Country: "Saba", Commodity: "X", Product: "P", Year: iptr(2000), Value: fptr(3)},
		{Country: "Netherlands Antilles", Commodity: "X", Product: "P", Year: iptr(2000), Value: fptr(100)},
	}
	if _, _, err := splitSuccessorRegions(records, true); err == nil {
		t.Fatalf("expected strict mode to reject partial successor presence")
	} else if !strings.Contains(err.Error(), "partially present") {
		t.Fatalf("unexpected error: %v", err)
	}

	all := []Observation{
		{Country: "Bonaire", Commodity: "X", Product: "P", Year: iptr(2000), Value: fptr(1)},
		{Country: "Saba", Commodity: "X", Product: "P", Year: iptr(2000), Value: fptr(1)},
		{Country: "Sint Maarten", Commodity: "X", Product: "P", Year: iptr(2000), Value: fptr(1)},
		{Country: "Sint Eustatius", Commodity: "X", Product: "P", Year: iptr(2000), Value: fptr(1)},
	}
	out, res, err := splitSuccessorRegions(all, true)
	if err != nil {
		t.Fatalf("full successor presence must not error in strict mode: %v", err)
	}
	if res.Performed || len(res.Present) != 4 {
		t.Fatalf("expected skip with all four present, got %+v", res)
	}
	assertSameObservations(t, all, out)
}

func TestSplitSuccessorRegions_NoDeprecatedRowsIsNoOp(t *testing.T) {
	records := []Observation{
		{Country: "Norway", Commodity: "X", Product: "P", Year: iptr(2000), Value: fptr(5)},
		{Country: "Iceland", Commodity: "Y", Product: "Q", Year: iptr(2001), Value: fptr(6)},
	}
	out, res, err := splitSuccessorRegions(records, false)
	if err != nil {
		t.Fatalf("splitSuccessorRegions error: %v", err)
	}
	if res.Performed || len(res.Present) != 0 {
		t.Fatalf("expected no-op, got %+v", res)
	}
	assertSameObservations(t, records, out)
}

func TestSplitSuccessorRegions_MissingValueStaysMissing(t *testing.T) {
	records := []Observation{
		{Country: "Netherlands Antilles", Commodity: "X", Product: "P", Year: iptr(2000)},
	}
	out, res, err := splitSuccessorRegions(records, false)
	if err != nil {
		t.Fatalf("splitSuccessorRegions error: %v", err)
	}
	if !res.Performed || len(out) != 4 {
		t.Fatalf("expected four successor rows, got %d (%+v)", len(out), res)
	}
	for _, rec := range out {
		if rec.Value != nil {
			t.Fatalf("missing value must stay missing after split, got %v for %s", *rec.Value, rec.Country)
		}
	}
}

func TestQuantFixturePipeline(t *testing.T) {
	wide, err := loadWideTable(testdataPath("fao_commodity_quant_raw.csv"), "", 0)
	if err != nil {
		t.Fatalf("loadWideTable error: %v", err)
	}
	if len(wide.rows) != 5 || len(wide.yearLabels) != 4 {
		t.Fatalf("unexpected wide shape: %d rows, %d year columns", len(wide.rows), len(wide.yearLabels))
	}
	long := reshapeLong(wide)
	if len(long) != 20 {
		t.Fatalf("expected 20 long rows, got %d", len(long))
	}

	records, stats := normalizeValues(long, 0.1)
	if stats.EstimateFlags != 2 || stats.MissingSentinels != 3 || stats.SubZeroSubs != 2 || stats.ZeroSubs != 2 || stats.EmptyMissing != 1 || stats.ParseFailures != 0 || stats.YearFailures != 0 {
		t.Fatalf("unexpected normalization stats: %+v", stats)
	}
	sortObservations(records)

	lookup, err := loadProductLookup(testdataPath("commodity_lookup.csv"))
	if err != nil {
		t.Fatalf("loadProductLookup error: %v", err)
	}
	joined, dropped := joinProducts(records, lookup)
	if dropped != 4 {
		t.Fatalf("expected 4 rows dropped by join, got %d", dropped)
	}
	if len(joined) != 16 {
		t.Fatalf("expected 16 joined rows, got %d", len(joined))
	}

	var norwayBefore []Observation
	for _, rec := range joined {
		if rec.Country == "Norway" {
			norwayBefore = append(norwayBefore, rec)
		}
	}

	cleaned, split, err := splitSuccessorRegions(joined, false)
	if err != nil {
		t.Fatalf("splitSuccessorRegions error: %v", err)
	}
	if !split.Performed || split.RowsRemoved != 4 || split.RowsAdded != 16 {
		t.Fatalf("unexpected split result: %+v", split)
	}
	if len(cleaned) != 28 {
		t.Fatalf("expected 28 cleaned rows, got %d", len(cleaned))
	}
	for _, rec := range cleaned {
		if rec.Country == "Netherlands Antilles" {
			t.Fatalf("deprecated region survived the split")
		}
	}

	var norwayAfter []Observation
	for _, rec := range cleaned {
		if rec.Country == "Norway" {
			norwayAfter = append(norwayAfter, rec)
		}
	}
	assertSameObservations(t, norwayBefore, norwayAfter)

	sum1995 := 0.0
	successorRows := 0
	for _, rec := range cleaned {
		switch rec.Country {
		case "Bonaire", "Saba", "Sint Maarten", "Sint Eustatius":
			successorRows++
			if rec.Commodity != "Shrimp, frozen" || rec.Product != "Crustaceans" {
				t.Fatalf("successor row carries wrong identity: %+v", rec)
			}
			if rec.Year != nil && *rec.Year == 1995 {
				if rec.Value == nil || !almostEqual(*rec.Value, 25) {
					t.Fatalf("1995 successor value: want 25, got %v", rec.Value)
				}
				sum1995 += *rec.Value
			}
			if rec.Year != nil && *rec.Year == 1997 && rec.Value != nil {
				t.Fatalf("1997 successor value should be missing, got %v", *rec.Value)
			}
			if rec.Year != nil && *rec.Year == 1998 {
				if rec.Value == nil || !almostEqual(*rec.Value, 15) {
					t.Fatalf("1998 successor value: want 15, got %v", rec.Value)
				}
			}
		}
	}
	if successorRows != 16 {
		t.Fatalf("expected 16 successor rows, got %d", successorRows)
	}
	if !almostEqual(sum1995, 100) {
		t.Fatalf("1995 successor values should sum to 100, got %v", sum1995)
	}
}

func TestSortObservations_DualFlowTieBreak(t *testing.T) {
	forward := []Observation{
		{Country: "Norway", Commodity: "Cod, dried", TradeFlow: "Export", Year: iptr(1995), Value: fptr(100)},
		{Country: "Norway", Commodity: "Cod, dried", TradeFlow: "Import", Year: iptr(1995), Value: fptr(20)},
		{Country: "Norway", Commodity: "Cod, dried", TradeFlow: "Import", Year: iptr(1995), Value: fptr(50)},
		{Country: "Norway", Commodity: "Cod, dried", TradeFlow: "Import", Year: iptr(1995)},
	}
	reversed := []Observation{forward[3], forward[2], forward[1], forward[0]}

	sortObservations(forward)
	sortObservations(reversed)
	assertSameObservations(t, forward, reversed)

	if forward[0].TradeFlow != "Export" {
		t.Fatalf("expected the Export row first on a shared key, got %+v", forward[0])
	}
	if forward[1].Value == nil || !almostEqual(*forward[1].Value, 20) {
		t.Fatalf("expected Import values ascending, got %+v", forward[1])
	}
	if forward[3].Value != nil {
		t.Fatalf("expected the missing Import value last, got %v", *forward[3].Value)
	}
}

func TestReorderedRawProducesIdenticalCleanedCSV(t *testing.T) {
	headers := []string{"country", "commodity", "trade_flow", "1995", "1996", "1997"}
	rows := [][]string{
		{"Norway", "Cod, dried", "Export", "1200", "1100 F", "900"},
		{"Norway", "Cod, dried", "Import", "50", "0 0", "..."},
		{"Netherlands Antilles", "Shrimp, frozen", "Export", "100", "8", "..."},
		{"Netherlands Antilles", "Shrimp, frozen", "Import", "20", "...", "4"},
		{"Japan", "Tuna canned", "Import", "7", "9", "11"},
	}

	// Same table with both the rows and the columns reversed. The loader
	// finds the id columns by name, so column position carries no meaning.
	revHeaders := reverseStrings(headers)
	revRows := make([][]string, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		revRows = append(revRows, reverseStrings(rows[i]))
	}

	dir := t.TempDir()
	originalRaw := filepath.Join(dir, "original.csv")
	reorderedRaw := filepath.Join(dir, "reordered.csv")
	writeWideFixture(t, originalRaw, headers, rows)
	writeWideFixture(t, reorderedRaw, revHeaders, revRows)

	lookup := map[string]string{
		"Cod, dried":     "Groundfish",
		"Shrimp, frozen": "Crustaceans",
		"Tuna canned":    "Tuna",
	}
	first := cleanToReference(t, originalRaw, lookup, filepath.Join(dir, "first.csv"))
	second := cleanToReference(t, reorderedRaw, lookup, filepath.Join(dir, "second.csv"))
	if !bytes.Equal(first, second) {
		t.Fatalf("cleaned output depends on raw row order:\nfirst:\n%s\nsecond:\n%s", first, second)
	}

	exportAt := bytes.Index(first, []byte(`Norway,"Cod, dried",Groundfish,1995,1200.0`))
	importAt := bytes.Index(first, []byte(`Norway,"Cod, dried",Groundfish,1995,50.0`))
	if exportAt < 0 || importAt < 0 {
		t.Fatalf("expected both flows of the shared key in the output:\n%s", first)
	}
	if exportAt > importAt {
		t.Fatalf("expected the Export row before the Import row on the shared key:\n%s", first)
	}
}

func TestLoadWideTable_MissingColumnsFailFast(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	if err := os.WriteFile(path, []byte("country,commodity,1995\nNorway,Cod,1\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	_, err := loadWideTable(path, "", 0)
	if err == nil {
		t.Fatalf("expected schema error for missing trade_flow column")
	}
	if !strings.Contains(err.Error(), "trade_flow") {
		t.Fatalf("error should name the missing column: %v", err)
	}
}

func TestLoadWideTable_Latin1Encoding(t *testing.T) {
	content := "country,commodity,trade_flow,1995\nCôte d'Ivoire,Tuna canned,Import,12\n"
	encoded, _, err := transform.Bytes(charmap.ISO8859_1.NewEncoder(), []byte(content))
	if err != nil {
		t.Fatalf("encode latin1 fixture: %v", err)
	}
	path := filepath.Join(t.TempDir(), "latin1.csv")
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	wide, err := loadWideTable(path, "latin1", 0)
	if err != nil {
		t.Fatalf("loadWideTable error: %v", err)
	}
	if len(wide.rows) != 1 || wide.rows[0].country != "Côte d'Ivoire" {
		t.Fatalf("latin1 country decoded wrong: %+v", wide.rows)
	}

	if _, err := loadWideTable(path, "", 0); err == nil {
		t.Fatalf("expected invalid UTF-8 error when latin1 file is loaded without encoding hint")
	}
}

func TestLoadProductLookupXLSX(t *testing.T) {
	x := excelize.NewFile()
	sheet := x.GetSheetName(0)
	cells := map[string]string{
		"A1": "Commodity", "B1": "Product",
		"A2": "Cod, dried", "B2": "Groundfish",
		"A3": "Tuna canned", "B3": "Tuna",
	}
	for cell, v := range cells {
		if err := x.SetCellValue(sheet, cell, v); err != nil {
			t.Fatalf("set cell %s: %v", cell, err)
		}
	}
	path := filepath.Join(t.TempDir(), "lookup.xlsx")
	if err := x.SaveAs(path); err != nil {
		t.Fatalf("save xlsx: %v", err)
	}
	if err := x.Close(); err != nil {
		t.Fatalf("close xlsx: %v", err)
	}

	lookup, err := loadProductLookup(path)
	if err != nil {
		t.Fatalf("loadProductLookup error: %v", err)
	}
	if len(lookup) != 2 {
		t.Fatalf("expected 2 lookup rows, got %d", len(lookup))
	}
	if lookup["Cod, dried"] != "Groundfish" || lookup["Tuna canned"] != "Tuna" {
		t.Fatalf("unexpected lookup contents: %v", lookup)
	}
}

func TestLoadProductLookup_DuplicateCommodityRejected(t *testing.T) {
	dir := t.TempDir()
	conflicting := filepath.Join(dir, "conflicting.csv")
	if err := os.WriteFile(conflicting, []byte("commodity,product\nA,P1\nA,P2\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := loadProductLookup(conflicting); err == nil {
		t.Fatalf("expected duplicate commodity error")
	} else if !strings.Contains(err.Error(), "duplicate commodity") {
		t.Fatalf("unexpected error: %v", err)
	}

	repeated := filepath.Join(dir, "repeated.csv")
	if err := os.WriteFile(repeated, []byte("commodity,product\nA,P1\nA,P1\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	lookup, err := loadProductLookup(repeated)
	if err != nil {
		t.Fatalf("repeated identical mapping should load: %v", err)
	}
	if len(lookup) != 1 || lookup["A"] != "P1" {
		t.Fatalf("unexpected lookup contents: %v", lookup)
	}
}

func TestLoadSourcesConfig_Validation(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	if err := os.WriteFile(good, []byte(
		"lookup: lookup.csv\ndatasets:\n  - name: fish_quant\n    raw: q.csv\n    encoding: latin1\n  - name: fish_value\n    raw: v.csv\n",
	), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	cfg, err := loadSourcesConfig(good)
	if err != nil {
		t.Fatalf("loadSourcesConfig error: %v", err)
	}
	if cfg.Lookup != "lookup.csv" || len(cfg.Datasets) != 2 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Datasets[0].Encoding != "latin1" {
		t.Fatalf("encoding not parsed: %+v", cfg.Datasets[0])
	}

	cases := map[string]string{
		"dup.yaml":      "lookup: l.csv\ndatasets:\n  - name: fish_quant\n    raw: a.csv\n  - name: fish_quant\n    raw: b.csv\n",
		"nounit.yaml":   "lookup: l.csv\ndatasets:\n  - name: fish_trade\n    raw: a.csv\n",
		"badenc.yaml":   "lookup: l.csv\ndatasets:\n  - name: fish_quant\n    raw: a.csv\n    encoding: ebcdic\n",
		"nolookup.yaml": "datasets:\n  - name: fish_quant\n    raw: a.csv\n",
		"empty.yaml":    "lookup: l.csv\n",
	}
	for name, content := range cases {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write fixture %s: %v", name, err)
		}
		if _, err := loadSourcesConfig(path); err == nil {
			t.Fatalf("expected %s to fail validation", name)
		}
	}
}

func TestDeriveUnit(t *testing.T) {
	unit, err := deriveUnit("fao_commodity_quant")
	if err != nil || unit != "tonnes" {
		t.Fatalf("quant dataset: got %q, %v", unit, err)
	}
	unit, err = deriveUnit("fao_commodity_value")
	if err != nil || unit != "usd" {
		t.Fatalf("value dataset: got %q, %v", unit, err)
	}
	if _, err := deriveUnit("fish_trade"); err == nil {
		t.Fatalf("expected underivable unit to error")
	}
}

func TestWriteReferenceCSV_PandasCompatible(t *testing.T) {
	records := []Observation{
		{Country: "Côte d'Ivoire", Commodity: "Cod, dried", Product: "Groundfish", Year: iptr(1995), Value: fptr(25)},
		{Country: "Norway", Commodity: "Tuna canned", Product: "Tuna"},
	}
	path := filepath.Join(t.TempDir(), "out.csv")
	if err := writeReferenceCSV(path, []string{"country", "commodity", "product", "year", "tonnes"}, records); err != nil {
		t.Fatalf("writeReferenceCSV error: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !bytes.HasPrefix(b, []byte{0xEF, 0xBB, 0xBF}) {
		t.Fatalf("expected UTF-8 BOM prefix")
	}
	got := string(bytes.TrimPrefix(b, []byte{0xEF, 0xBB, 0xBF}))
	want := "country,commodity,product,year,tonnes\n" +
		"Côte d'Ivoire,\"Cod, dried\",Groundfish,1995,25.0\n" +
		"Norway,Tuna canned,Tuna,,\n"
	if got != want {
		t.Fatalf("unexpected CSV contents:\n got: %q\nwant: %q", got, want)
	}
}

func TestWriteSQLite_ReadBack(t *testing.T) {
	records := []Observation{
		{Country: "Norway", Commodity: "Cod, dried", Product: "Groundfish", Year: iptr(1995), Value: fptr(25)},
		{Country: "Iceland", Commodity: "Cod, dried", Product: "Groundfish"},
	}
	path := filepath.Join(t.TempDir(), "out.sqlite")
	if err := writeSQLite(path, "fao_commodity_quant", "tonnes", records); err != nil {
		t.Fatalf("writeSQLite error: %v", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	var total, nonNull int
	if err := db.QueryRow(`SELECT COUNT(*), COUNT(tonnes) FROM "fao_commodity_quant_cleaned"`).Scan(&total, &nonNull); err != nil {
		t.Fatalf("count query: %v", err)
	}
	if total != 2 || nonNull != 1 {
		t.Fatalf("expected 2 rows with 1 non-null value, got %d/%d", total, nonNull)
	}
	var tonnes float64
	if err := db.QueryRow(`SELECT tonnes FROM "fao_commodity_quant_cleaned" WHERE country = 'Norway'`).Scan(&tonnes); err != nil {
		t.Fatalf("value query: %v", err)
	}
	if !almostEqual(tonnes, 25) {
		t.Fatalf("expected 25 tonnes, got %v", tonnes)
	}
}

func assertSameObservations(t *testing.T, want, got []Observation) {
	t.Helper()
	if len(want) != len(got) {
		t.Fatalf("row count mismatch: want %d, got %d", len(want), len(got))
	}
	for i := range want {
		a, b := want[i], got[i]
		if a.Country != b.Country || a.Commodity != b.Commodity || a.Product != b.Product || a.TradeFlow != b.TradeFlow {
			t.Fatalf("row %d identity mismatch:\nwant %+v\n got %+v", i, a, b)
		}
		if (a.Year == nil) != (b.Year == nil) || (a.Year != nil && *a.Year != *b.Year) {
			t.Fatalf("row %d year mismatch", i)
		}
		if (a.Value == nil) != (b.Value == nil) || (a.Value != nil && !almostEqual(*a.Value, *b.Value)) {
			t.Fatalf("row %d value mismatch", i)
		}
	}
}

func iptr(v int64) *int64 { return &v }

func fptr(v float64) *float64 { return &v }

func reverseStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for i := len(in) - 1; i >= 0; i-- {
		out = append(out, in[i])
	}
	return out
}

func writeWideFixture(t *testing.T, path string, headers []string, rows [][]string) {
	t.Helper()
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(headers); err != nil {
		t.Fatalf("write header: %v", err)
	}
	for _, rec := range rows {
		if err := w.Write(rec); err != nil {
			t.Fatalf("write row: %v", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		t.Fatalf("flush fixture: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
}

// cleanToReference runs the whole cleaning chain on one raw file and returns
// the reference CSV bytes.
func cleanToReference(t *testing.T, rawPath string, lookup map[string]string, outPath string) []byte {
	t.Helper()
	wide, err := loadWideTable(rawPath, "", 0)
	if err != nil {
		t.Fatalf("loadWideTable %s: %v", rawPath, err)
	}
	records, _ := normalizeValues(reshapeLong(wide), 0.1)
	sortObservations(records)
	joined, dropped := joinProducts(records, lookup)
	if dropped != 0 {
		t.Fatalf("unexpected dropped rows: %d", dropped)
	}
	cleaned, _, err := splitSuccessorRegions(joined, false)
	if err != nil {
		t.Fatalf("splitSuccessorRegions error: %v", err)
	}
	if err := writeReferenceCSV(outPath, []string{"country", "commodity", "product", "year", "tonnes"}, cleaned); err != nil {
		t.Fatalf("writeReferenceCSV error: %v", err)
	}
	out, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read cleaned csv: %v", err)
	}
	return out
}
