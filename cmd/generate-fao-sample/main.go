package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
	"gopkg.in/yaml.v3"
)

const (
	defaultOutDir = "outputs/sample"
	defaultSeed   = int64(20260518)
	defaultRows   = 40
	defaultYears  = 10
	firstYear     = 1994

	quantMagnitude = 20000
	valueMagnitude = 90000

	deprecatedRegion  = "Netherlands Antilles"
	unmappedCommodity = "Miscellaneous aquatic products"
)

// Successor territories never appear in generated raw data, so the region
// split always has work to do on a fresh sample.
var countries = []string{
	"Norway", "Iceland", "Japan", "Spain", "Portugal", "Morocco", "Senegal",
	"Thailand", "Chile", "Canada", "Viet Nam", "Peru", "Côte d'Ivoire",
	"Réunion", "São Tomé and Príncipe", "Türkiye",
}

type commodityProduct struct {
	commodity string
	product   string
}

var commodityProducts = []commodityProduct{
	{"Cod, dried", "Groundfish"},
	{"Cod, fresh or chilled", "Groundfish"},
	{"Tuna, canned", "Tuna"},
	{"Skipjack, frozen", "Tuna"},
	{"Shrimp, frozen", "Crustaceans"},
	{"Lobster, live", "Crustaceans"},
	{"Salmon, smoked", "Salmonids"},
	{"Trout, fresh", "Salmonids"},
	{"Squid, frozen", "Cephalopods"},
	{"Octopus, dried", "Cephalopods"},
	{"Fish meal", "Meals"},
	{"Fish oil", "Oils"},
}

var tradeFlows = []string{"Export", "Import"}

type sampleRow struct {
	country   string
	commodity string
	flow      string
}

type sampleData struct {
	combos []sampleRow
	quant  [][]string
	value  [][]string
	lookup [][]string
}

func main() {
	outDir := flag.String("out-dir", defaultOutDir, "Output directory")
	rows := flag.Int("rows", defaultRows, "Wide rows per dataset")
	years := flag.Int("years", defaultYears, "Year columns per dataset")
	startYear := flag.Int("first-year", firstYear, "First year column")
	seed := flag.Int64("seed", defaultSeed, "Deterministic generation seed")
	latin1 := flag.Bool("latin1", false, "Encode raw CSV files as ISO-8859-1")
	lookupXLSX := flag.Bool("lookup-xlsx", false, "Write the lookup as an xlsx workbook instead of CSV")
	flag.Parse()

	sample := generateSample(*seed, *rows, *years, *startYear)

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "mkdir out-dir error: %v\n", err)
		os.Exit(1)
	}

	quantPath := filepath.Join(*outDir, "fao_sample_quant_raw.csv")
	valuePath := filepath.Join(*outDir, "fao_sample_value_raw.csv")
	lookupPath := filepath.Join(*outDir, "commodity_lookup.csv")
	if *lookupXLSX {
		lookupPath = filepath.Join(*outDir, "commodity_lookup.xlsx")
	}
	manifestPath := filepath.Join(*outDir, "sources.yaml")

	if err := writeRawCSV(quantPath, sample.quant, *latin1); err != nil {
		fmt.Fprintf(os.Stderr, "write quant csv error: %v\n", err)
		os.Exit(1)
	}
	if err := writeRawCSV(valuePath, sample.value, *latin1); err != nil {
		fmt.Fprintf(os.Stderr, "write value csv error: %v\n", err)
		os.Exit(1)
	}
	var err error
	if *lookupXLSX {
		err = writeLookupXLSX(lookupPath, sample.lookup)
	} else {
		err = writeRawCSV(lookupPath, sample.lookup, false)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "write lookup error: %v\n", err)
		os.Exit(1)
	}
	if err := writeSourcesManifest(manifestPath, lookupPath, quantPath, valuePath, *latin1); err != nil {
		fmt.Fprintf(os.Stderr, "write manifest error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Seed:     %d\n", *seed)
	fmt.Printf("Rows:     %d per dataset\n", len(sample.combos))
	fmt.Printf("Years:    %d (%d..%d)\n", *years, *startYear, *startYear+*years-1)
	fmt.Printf("Quant:    %s\n", quantPath)
	fmt.Printf("Value:    %s\n", valuePath)
	fmt.Printf("Lookup:   %s\n", lookupPath)
	fmt.Printf("Manifest: %s\n", manifestPath)
}

func generateSample(seed int64, rows, years, startYear int) sampleData {
	rng := rand.New(rand.NewSource(seed))
	gofakeit.Seed(seed)

	combos := buildSampleRows(rng, rows)
	labels := yearLabels(startYear, years)

	return sampleData{
		combos: combos,
		quant:  buildWideRecords(rng, combos, labels, quantMagnitude),
		value:  buildWideRecords(rng, combos, labels, valueMagnitude),
		lookup: buildLookupRecords(),
	}
}

// buildSampleRows always leads with two deprecated-region rows and one row
// whose commodity has no lookup mapping; the rest are unique random combos.
func buildSampleRows(rng *rand.Rand, n int) []sampleRow {
	out := []sampleRow{
		{deprecatedRegion, "Shrimp, frozen", "Export"},
		{deprecatedRegion, "Lobster, live", "Export"},
		{"Japan", unmappedCommodity, "Import"},
	}
	seen := map[string]bool{}
	for _, r := range out {
		seen[r.country+"|"+r.commodity+"|"+r.flow] = true
	}
	attempts := 0
	for len(out) < n && attempts < 60*n {
		attempts++
		r := sampleRow{
			country:   gofakeit.RandomString(countries),
			commodity: commodityProducts[rng.Intn(len(commodityProducts))].commodity,
			flow:      gofakeit.RandomString(tradeFlows),
		}
		key := r.country + "|" + r.commodity + "|" + r.flow
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

func yearLabels(start, count int) []string {
	out := make([]string, 0, count)
	for y := start; y < start+count; y++ {
		out = append(out, strconv.Itoa(y))
	}
	return out
}

func buildWideRecords(rng *rand.Rand, combos []sampleRow, labels []string, magnitude int) [][]string {
	header := append([]string{"country", "commodity", "trade_flow"}, labels...)
	out := [][]string{header}
	for _, c := range combos {
		rec := []string{c.country, c.commodity, c.flow}
		for range labels {
			rec = append(rec, rawValueCell(rng, magnitude))
		}
		out = append(out, rec)
	}
	return out
}

// rawValueCell reproduces the FAO sentinel vocabulary: missing, sub-half-unit,
// true zero, blank, and plain numbers occasionally carrying the estimate flag.
func rawValueCell(rng *rand.Rand, magnitude int) string {
	roll := rng.Float64()
	switch {
	case roll < 0.06:
		return "..."
	case roll < 0.10:
		return "0 0"
	case roll < 0.16:
		return "-"
	case roll < 0.19:
		return ""
	}
	cell := strconv.Itoa(gofakeit.Number(1, magnitude))
	if rng.Float64() < 0.15 {
		cell += " F"
	}
	return cell
}

func buildLookupRecords() [][]string {
	out := [][]string{{"commodity", "product"}}
	for _, cp := range commodityProducts {
		out = append(out, []string{cp.commodity, cp.product})
	}
	return out
}

func writeRawCSV(path string, records [][]string, latin1 bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var buf bytes.Buffer
	for _, rec := range records {
		if err := writeCSVRecordPythonStyle(&buf, rec); err != nil {
			return err
		}
	}
	payload := buf.Bytes()
	if latin1 {
		encoded, _, err := transform.Bytes(charmap.ISO8859_1.NewEncoder(), payload)
		if err != nil {
			return fmt.Errorf("encode latin1: %w", err)
		}
		return os.WriteFile(path, encoded, 0o644)
	}
	return os.WriteFile(path, append([]byte{0xEF, 0xBB, 0xBF}, payload...), 0o644)
}

func writeLookupXLSX(path string, records [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for i, rec := range records {
		for j, v := range rec {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}
	if err := f.SaveAs(path); err != nil {
		return err
	}
	return f.Close()
}

type sourcesConfig struct {
	Lookup   string          `yaml:"lookup"`
	Datasets []datasetConfig `yaml:"datasets"`
}

type datasetConfig struct {
	Name     string `yaml:"name"`
	Raw      string `yaml:"raw"`
	Encoding string `yaml:"encoding,omitempty"`
}

func writeSourcesManifest(path, lookupPath, quantPath, valuePath string, latin1 bool) error {
	encoding := ""
	if latin1 {
		encoding = "latin1"
	}
	cfg := sourcesConfig{
		Lookup: lookupPath,
		Datasets: []datasetConfig{
			{Name: "fao_sample_quant", Raw: quantPath, Encoding: encoding},
			{Name: "fao_sample_value", Raw: valuePath, Encoding: encoding},
		},
	}
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func writeCSVRecordPythonStyle(w io.Writer, rec []string) error {
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
	_, err := io.WriteString(w, "\r\n")
	return err
}

func needsCSVQuote(s string) bool {
	return strings.ContainsAny(s, ",\"\n\r")
}
