package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const goodRaw = `country,commodity,trade_flow,1995,1996
Norway,"Cod, dried",Export,1200,1105 F
Netherlands Antilles,"Shrimp, frozen",Export,100,...
Japan,Mystery fish,Import,5,6
`

const goodLookup = `commodity,product
"Cod, dried",Groundfish
"Shrimp, frozen",Crustaceans
`

const goodCleaned = `country,commodity,product,year,tonnes
Norway,"Cod, dried",Groundfish,1995,1200.0
Norway,"Cod, dried",Groundfish,1996,1105.0
Bonaire,"Shrimp, frozen",Crustaceans,1995,25.0
Saba,"Shrimp, frozen",Crustaceans,1995,25.0
Sint Maarten,"Shrimp, frozen",Crustaceans,1995,25.0
Sint Eustatius,"Shrimp, frozen",Crustaceans,1995,25.0
Bonaire,"Shrimp, frozen",Crustaceans,1996,
Saba,"Shrimp, frozen",Crustaceans,1996,
Sint Maarten,"Shrimp, frozen",Crustaceans,1996,
Sint Eustatius,"Shrimp, frozen",Crustaceans,1996,
`

func TestRunChecks_CleanPipelineOutputPasses(t *testing.T) {
	dir := t.TempDir()
	report, err := runChecks(
		writeFixture(t, dir, "cleaned.csv", goodCleaned),
		writeFixture(t, dir, "raw.csv", goodRaw),
		writeFixture(t, dir, "lookup.csv", goodLookup),
		"", 0.1, 25,
	)
	if err != nil {
		t.Fatalf("runChecks error: %v", err)
	}
	if report.Status != "ok" {
		t.Fatalf("expected status ok, got %q: %+v", report.Status, report.Checks)
	}
	if report.Run == "" {
		t.Fatalf("expected a run id")
	}
	if report.Dataset.Unit != "tonnes" {
		t.Fatalf("expected unit tonnes, got %q", report.Dataset.Unit)
	}
	if report.Dataset.SplitMode != "performed" {
		t.Fatalf("expected split mode performed, got %q", report.Dataset.SplitMode)
	}
	if report.Dataset.MappedLongRows != 4 || report.Dataset.RemovedLongRows != 2 || report.Dataset.ExpectedFinalRows != 10 {
		t.Fatalf("unexpected dataset accounting: %+v", report.Dataset)
	}
	for _, c := range report.Checks {
		if c.Status != "ok" {
			t.Fatalf("check %s failed: %v", c.Name, c.Details)
		}
	}
}

func TestRunChecks_SurvivingDeprecatedRowFails(t *testing.T) {
	dir := t.TempDir()
	tampered := goodCleaned + "Netherlands Antilles,\"Shrimp, frozen\",Crustaceans,1995,100.0\n"
	report, err := runChecks(
		writeFixture(t, dir, "cleaned.csv", tampered),
		writeFixture(t, dir, "raw.csv", goodRaw),
		writeFixture(t, dir, "lookup.csv", goodLookup),
		"", 0.1, 25,
	)
	if err != nil {
		t.Fatalf("runChecks error: %v", err)
	}
	if report.Status != "failed" {
		t.Fatalf("expected status failed, got %q", report.Status)
	}
	c := findCheck(t, report.Checks, "region_split")
	if c.Status != "failed" {
		t.Fatalf("expected region_split to fail, got %q", c.Status)
	}
	if findCheck(t, report.Checks, "row_count").Status != "failed" {
		t.Fatalf("expected row_count to fail with the extra row")
	}
}

func TestRunChecks_BrokenConservationFails(t *testing.T) {
	dir := t.TempDir()
	tampered := strings.Replace(goodCleaned, "Bonaire,\"Shrimp, frozen\",Crustaceans,1995,25.0", "Bonaire,\"Shrimp, frozen\",Crustaceans,1995,24.0", 1)
	report, err := runChecks(
		writeFixture(t, dir, "cleaned.csv", tampered),
		writeFixture(t, dir, "raw.csv", goodRaw),
		writeFixture(t, dir, "lookup.csv", goodLookup),
		"", 0.1, 25,
	)
	if err != nil {
		t.Fatalf("runChecks error: %v", err)
	}
	if report.Status != "failed" {
		t.Fatalf("expected status failed, got %q", report.Status)
	}
	c := findCheck(t, report.Checks, "value_conservation")
	if c.Status != "failed" {
		t.Fatalf("expected value_conservation to fail, got %q", c.Status)
	}
	if findCheck(t, report.Checks, "region_split").Status != "ok" {
		t.Fatalf("region_split should still pass when only a value drifted")
	}
	if findCheck(t, report.Checks, "row_count").Status != "ok" {
		t.Fatalf("row_count should still pass when only a value drifted")
	}
}

func TestRunChecks_InventedSuccessorValueFails(t *testing.T) {
	dir := t.TempDir()
	tampered := strings.Replace(goodCleaned, "Bonaire,\"Shrimp, frozen\",Crustaceans,1996,", "Bonaire,\"Shrimp, frozen\",Crustaceans,1996,10.0", 1)
	report, err := runChecks(
		writeFixture(t, dir, "cleaned.csv", tampered),
		writeFixture(t, dir, "raw.csv", goodRaw),
		writeFixture(t, dir, "lookup.csv", goodLookup),
		"", 0.1, 25,
	)
	if err != nil {
		t.Fatalf("runChecks error: %v", err)
	}
	if report.Status != "failed" {
		t.Fatalf("expected status failed, got %q", report.Status)
	}
	c := findCheck(t, report.Checks, "value_conservation")
	if c.Status != "failed" {
		t.Fatalf("expected value_conservation to fail, got %q", c.Status)
	}
	if findCheck(t, report.Checks, "region_split").Status != "ok" {
		t.Fatalf("region_split checks row presence, not values")
	}
}

func TestRunChecks_MissingSuccessorRowFails(t *testing.T) {
	dir := t.TempDir()
	tampered := strings.Replace(goodCleaned, "Saba,\"Shrimp, frozen\",Crustaceans,1995,25.0\n", "", 1)
	report, err := runChecks(
		writeFixture(t, dir, "cleaned.csv", tampered),
		writeFixture(t, dir, "raw.csv", goodRaw),
		writeFixture(t, dir, "lookup.csv", goodLookup),
		"", 0.1, 25,
	)
	if err != nil {
		t.Fatalf("runChecks error: %v", err)
	}
	if report.Status != "failed" {
		t.Fatalf("expected status failed, got %q", report.Status)
	}
	c := findCheck(t, report.Checks, "region_split")
	if c.Status != "failed" {
		t.Fatalf("expected region_split to fail, got %q", c.Status)
	}
}

func TestRunChecks_SentinelResidueFails(t *testing.T) {
	dir := t.TempDir()
	tampered := strings.Replace(goodCleaned, "Norway,\"Cod, dried\",Groundfish,1995,1200.0", "Norway,\"Cod, dried\",Groundfish,1995,...", 1)
	report, err := runChecks(
		writeFixture(t, dir, "cleaned.csv", tampered),
		writeFixture(t, dir, "raw.csv", goodRaw),
		writeFixture(t, dir, "lookup.csv", goodLookup),
		"", 0.1, 25,
	)
	if err != nil {
		t.Fatalf("runChecks error: %v", err)
	}
	if report.Status != "failed" {
		t.Fatalf("expected status failed, got %q", report.Status)
	}
	c := findCheck(t, report.Checks, "sentinel_residue")
	if c.Status != "failed" {
		t.Fatalf("expected sentinel_residue to fail, got %q", c.Status)
	}
}

func TestRunChecks_SkipModeVerifiesPassthrough(t *testing.T) {
	raw := `country,commodity,trade_flow,1995
Bonaire,"Cod, dried",Export,8
Netherlands Antilles,"Shrimp, frozen",Export,100
`
	cleaned := `country,commodity,product,year,tonnes
Bonaire,"Cod, dried",Groundfish,1995,8.0
Netherlands Antilles,"Shrimp, frozen",Crustaceans,1995,100.0
`
	dir := t.TempDir()
	report, err := runChecks(
		writeFixture(t, dir, "cleaned.csv", cleaned),
		writeFixture(t, dir, "raw.csv", raw),
		writeFixture(t, dir, "lookup.csv", goodLookup),
		"", 0.1, 25,
	)
	if err != nil {
		t.Fatalf("runChecks error: %v", err)
	}
	if report.Status != "ok" {
		t.Fatalf("expected status ok, got %q: %+v", report.Status, report.Checks)
	}
	if report.Dataset.SplitMode != "skipped" {
		t.Fatalf("expected split mode skipped, got %q", report.Dataset.SplitMode)
	}
	if len(report.Dataset.SuccessorsInRaw) != 1 || report.Dataset.SuccessorsInRaw[0] != "Bonaire" {
		t.Fatalf("expected Bonaire reported in raw, got %v", report.Dataset.SuccessorsInRaw)
	}
	if report.Dataset.ExpectedFinalRows != 2 {
		t.Fatalf("expected passthrough row count 2, got %d", report.Dataset.ExpectedFinalRows)
	}
}

func TestNormalizeRawValue_CanonicalCodes(t *testing.T) {
	cases := []struct {
		in   string
		want *float64
	}{
		{"100 F", f(100)},
		{"...", nil},
		{"0 0", f(0.1)},
		{"-", f(0)},
		{"", nil},
		{"junk", nil},
	}
	for _, tc := range cases {
		got := normalizeRawValue(tc.in, "0.1")
		if (got == nil) != (tc.want == nil) {
			t.Fatalf("%q: missing mismatch", tc.in)
		}
		if got != nil && *got != *tc.want {
			t.Fatalf("%q: want %v, got %v", tc.in, *tc.want, *got)
		}
	}
}

func TestYearKey(t *testing.T) {
	if yearKey("1995") != "1995" {
		t.Fatalf("plain year label should stay intact")
	}
	if yearKey(" 1995 ") != "1995" {
		t.Fatalf("padded year label should normalize")
	}
	if yearKey("S1995") != "" {
		t.Fatalf("unparseable year label should map to the missing key")
	}
}

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture %s: %v", name, err)
	}
	return path
}

func findCheck(t *testing.T, checks []checkPayload, name string) checkPayload {
	t.Helper()
	for _, c := range checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("check %s not found", name)
	return checkPayload{}
}

func f(v float64) *float64 { return &v }
