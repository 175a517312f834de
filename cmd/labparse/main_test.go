package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/liamcoop/labparser/internal/logger"
)

const testRules = `
definitions:
  - id: 1
    full_example_text: "Глюкоза 5.5"
    short_description: "Глюкоза"
    indicators:
      - indicator_pattern: "Глюкоза 5.5"
        variable_part: "5.5"
        value_type: 2
        is_key_indicator: true
  - id: 2
    full_example_text: "broken"
    short_description: "Broken"
    indicators:
      - indicator_pattern: "a\nb n"
        variable_part: "n"
        value_type: 3
legacy_rules:
  - id: 100
    test_pattern: "HBsAg: отриц."
    variable_part: "отриц."
    value_type: 1
    short_name: HBsAg
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestParseCommand verifies records are read from stdin, parsed and filtered.
func TestParseCommand(t *testing.T) {
	rulesPath := writeFile(t, "rules.yaml", testRules)
	input := `[
		{"id": "1", "raw_text": "Глюкоза 4.2"},
		{"id": "2", "raw_text": "HBsAg: полож."},
		null,
		{"id": "3", "raw_text": "нет данных"}
	]`

	testCases := []struct {
		name      string
		filter    string
		wantIDs   []string
		wantTotal int
	}{
		{name: "all records", wantIDs: []string{"1", "2", "3"}, wantTotal: 3},
		{name: "parsed only", filter: `quality == "parsed"`, wantIDs: []string{"1", "2"}, wantTotal: 3},
		{name: "by value", filter: `keys["HBsAg"] == "+"`, wantIDs: []string{"2"}, wantTotal: 3},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			args := []string{"parse", "--rules", rulesPath}
			if tc.filter != "" {
				args = append(args, "--filter", tc.filter)
			}
			var out bytes.Buffer
			if err := Execute("test", args, strings.NewReader(input), &out); err != nil {
				t.Fatalf("Execute() failed: %v", err)
			}

			var got parseOutput
			if err := json.Unmarshal(out.Bytes(), &got); err != nil {
				t.Fatalf("decode output: %v\n%s", err, out.String())
			}
			if got.Total != tc.wantTotal || got.Returned != len(tc.wantIDs) {
				t.Errorf("total/returned = %d/%d, want %d/%d", got.Total, got.Returned, tc.wantTotal, len(tc.wantIDs))
			}
			var ids []string
			for _, r := range got.Records {
				ids = append(ids, r.ID)
			}
			if strings.Join(ids, ",") != strings.Join(tc.wantIDs, ",") {
				t.Errorf("ids = %v, want %v", ids, tc.wantIDs)
			}
			if strings.Join(got.TestColumns, ",") != "HBsAg,Глюкоза" {
				t.Errorf("test_columns = %v", got.TestColumns)
			}
		})
	}
}

// TestParseCommandInputFile verifies --input reads from a file.
func TestParseCommandInputFile(t *testing.T) {
	rulesPath := writeFile(t, "rules.yaml", testRules)
	inputPath := writeFile(t, "records.json", `[{"id": "a", "raw_text": "Глюкоза 7.1"}]`)

	var out bytes.Buffer
	err := Execute("test", []string{"parse", "--rules", rulesPath, "--input", inputPath}, strings.NewReader(""), &out)
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	var got parseOutput
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if len(got.Records) != 1 || got.Records[0].Results.Tests[0].Value != "7.1" {
		t.Errorf("records = %+v", got.Records)
	}
}

// TestParseCommandErrors verifies bad input is reported rather than printed.
func TestParseCommandErrors(t *testing.T) {
	rulesPath := writeFile(t, "rules.yaml", testRules)

	testCases := []struct {
		name  string
		args  []string
		input string
	}{
		{name: "missing rules", args: []string{"parse"}, input: "[]"},
		{name: "missing rules file", args: []string{"parse", "--rules", filepath.Join(t.TempDir(), "none.yaml")}, input: "[]"},
		{name: "malformed records", args: []string{"parse", "--rules", rulesPath}, input: "{"},
		{name: "bad filter", args: []string{"parse", "--rules", rulesPath, "--filter", "quality =="}, input: "[]"},
		{name: "missing input file", args: []string{"parse", "--rules", rulesPath, "--input", filepath.Join(t.TempDir(), "none.json")}},
		{name: "unexpected argument", args: []string{"parse", "--rules", rulesPath, "extra"}, input: "[]"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			if err := Execute("test", tc.args, strings.NewReader(tc.input), &out); err == nil {
				t.Errorf("Execute() succeeded, output %s", out.String())
			}
		})
	}
}

// TestCheckCommand verifies dropped indicators and expressions are reported.
func TestCheckCommand(t *testing.T) {
	rulesPath := writeFile(t, "rules.yaml", testRules)

	var out bytes.Buffer
	if err := Execute("test", []string{"check", "--rules", rulesPath, "--expressions"}, nil, &out); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	var got checkOutput
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out.String())
	}
	if got.Definitions != 3 || got.Rules != 2 {
		t.Errorf("definitions/rules = %d/%d, want 3/2", got.Definitions, got.Rules)
	}
	if len(got.Dropped) != 1 || got.Dropped[0].DefinitionID != 2 {
		t.Errorf("dropped = %+v", got.Dropped)
	}
	if len(got.Expressions) != 2 || !strings.Contains(got.Expressions[0].Expression, "(.+?)") {
		t.Errorf("expressions = %+v", got.Expressions)
	}

	out.Reset()
	if err := Execute("test", []string{"check", "--rules", rulesPath, "--strict"}, nil, &out); err == nil {
		t.Error("check --strict should fail when indicators were dropped")
	}
}

// TestVersion verifies the version flag.
func TestVersion(t *testing.T) {
	var out bytes.Buffer
	if err := Execute("1.2.3", []string{"--version"}, nil, &out); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if strings.TrimSpace(out.String()) != "1.2.3" {
		t.Errorf("version output = %q", out.String())
	}
}

// TestParseCommandStdoutIsJSON verifies log records never mix with the
// results on stdout.
func TestParseCommandStdoutIsJSON(t *testing.T) {
	rulesPath := writeFile(t, "rules.yaml", testRules)

	stdout, err := os.Create(filepath.Join(t.TempDir(), "stdout"))
	if err != nil {
		t.Fatal(err)
	}
	defer stdout.Close()

	orig := os.Stdout
	os.Stdout = stdout
	defer func() {
		os.Stdout = orig
		logger.SetOutput(orig)
	}()
	logger.SetOutput(os.Stdout)

	input := `[{"id": "1", "raw_text": "HBsAg: отриц."}]`
	if err := Execute("test", []string{"parse", "--rules", rulesPath}, strings.NewReader(input), os.Stdout); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	data, err := os.ReadFile(stdout.Name())
	if err != nil {
		t.Fatal(err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	var got parseOutput
	if err := dec.Decode(&got); err != nil {
		t.Fatalf("decode stdout: %v\n%s", err, data)
	}
	if dec.More() {
		t.Errorf("stdout holds more than one JSON document:\n%s", data)
	}
	if got.Returned != 1 || got.Records[0].Results.Tests[0].Value != "-" {
		t.Errorf("records = %+v", got.Records)
	}
}
