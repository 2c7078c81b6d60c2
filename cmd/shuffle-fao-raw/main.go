package main

import (
	"bytes"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

const defaultSeed = int64(20260311)

// The cleaning pipeline locates these by name, so the shuffled copy must
// keep them intact. Every other column is treated as a year column.
var idColumns = []string{"country", "commodity", "trade_flow"}

func main() {
	inPath := flag.String("input", "", "Raw wide CSV to shuffle")
	outPath := flag.String("output", "", "Destination for the shuffled copy")
	seed := flag.Int64("seed", defaultSeed, "Deterministic shuffle seed")
	encoding := flag.String("encoding", "", "Raw file encoding (utf8 or latin1)")
	sampleRows := flag.Int("sample-rows", 0, "If > 0, keep only this many rows after shuffling")
	keepYearOrder := flag.Bool("keep-year-order", false, "Leave the year column order untouched")
	flag.Parse()

	if *inPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "missing -input or -output")
		os.Exit(1)
	}

	headers, rows, err := loadWideCSV(*inPath, *encoding)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load csv error: %v\n", err)
		os.Exit(1)
	}

	shuffledHeaders, shuffledRows, err := shuffleWideTable(headers, rows, *seed, !*keepYearOrder)
	if err != nil {
		fmt.Fprintf(os.Stderr, "shuffle error: %v\n", err)
		os.Exit(1)
	}
	if *sampleRows > 0 && *sampleRows < len(shuffledRows) {
		shuffledRows = shuffledRows[:*sampleRows]
	}

	if err := writeWideCSV(*outPath, *encoding, shuffledHeaders, shuffledRows); err != nil {
		fmt.Fprintf(os.Stderr, "write csv error: %v\n", err)
		os.Exit(1)
	}

	yearHeaders := shuffledHeaders[len(idColumns):]
	fmt.Printf("Input:  %s\n", *inPath)
	fmt.Printf("Output: %s\n", *outPath)
	fmt.Printf("Seed:   %d\n", *seed)
	fmt.Printf("Rows:   %d\n", len(shuffledRows))
	fmt.Printf("Year columns: %d\n", len(yearHeaders))
	fmt.Println("Year column order (first 10):")
	for i := 0; i < len(yearHeaders) && i < 10; i++ {
		fmt.Printf("  %s\n", yearHeaders[i])
	}
}

// shuffleWideTable permutes the data rows, and optionally the year column
// order, of a raw wide table. The id columns move to the front of the output
// in canonical order; the cleaning pipeline reads columns by name, so a
// shuffled copy must clean to the exact same output as the original.
func shuffleWideTable(headers []string, rows [][]string, seed int64, shuffleYears bool) ([]string, [][]string, error) {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, ok := idx[key]; !ok {
			idx[key] = i
		}
	}
	idPositions := make([]int, 0, len(idColumns))
	for _, col := range idColumns {
		pos, ok := idx[col]
		if !ok {
			return nil, nil, fmt.Errorf("required column %q not found", col)
		}
		idPositions = append(idPositions, pos)
	}
	isID := make(map[int]bool, len(idPositions))
	for _, pos := range idPositions {
		isID[pos] = true
	}
	yearPositions := make([]int, 0, len(headers))
	for i := range headers {
		if !isID[i] {
			yearPositions = append(yearPositions, i)
		}
	}

	rng := rand.New(rand.NewSource(seed))
	if shuffleYears {
		rng.Shuffle(len(yearPositions), func(i, j int) {
			yearPositions[i], yearPositions[j] = yearPositions[j], yearPositions[i]
		})
	}
	order := append(append([]int(nil), idPositions...), yearPositions...)

	outHeaders := make([]string, 0, len(order))
	for _, pos := range order {
		outHeaders = append(outHeaders, headers[pos])
	}

	outRows := make([][]string, 0, len(rows))
	for _, row := range rows {
		rec := make([]string, 0, len(order))
		for _, pos := range order {
			rec = append(rec, fieldAt(row, pos))
		}
		outRows = append(outRows, rec)
	}
	rng.Shuffle(len(outRows), func(i, j int) { outRows[i], outRows[j] = outRows[j], outRows[i] })
	return outHeaders, outRows, nil
}

func loadWideCSV(path, encoding string) ([]string, [][]string, error) {
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
	case "", "utf8", "utf-8":
		data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
		if !utf8.Valid(data) {
			return nil, nil, fmt.Errorf("%s is not valid UTF-8 (set -encoding latin1?)", path)
		}
	default:
		return nil, nil, fmt.Errorf("unsupported encoding %q", encoding)
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	headers, err := r.Read()
	if err != nil {
		return nil, nil, err
	}
	var rows [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		rows = append(rows, rec)
	}
	return headers, rows, nil
}

func writeWideCSV(path, encoding string, headers []string, rows [][]string) error {
	var buf bytes.Buffer
	if err := writeCSVRecordPythonStyle(&buf, headers); err != nil {
		return err
	}
	for _, rec := range rows {
		if err := writeCSVRecordPythonStyle(&buf, rec); err != nil {
			return err
		}
	}

	data := buf.Bytes()
	switch encoding {
	case "latin1", "iso-8859-1":
		encoded, _, err := transform.Bytes(charmap.ISO8859_1.NewEncoder(), data)
		if err != nil {
			return fmt.Errorf("encode latin1: %w", err)
		}
		data = encoded
	default:
		data = append([]byte{0xEF, 0xBB, 0xBF}, data...)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

func fieldAt(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
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
