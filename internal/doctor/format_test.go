package doctor

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestFormatHuman(t *testing.T) {
	t.Parallel()

	if got := FormatHuman(&Result{Valid: true}); !strings.Contains(got, "Configuration valid.") {
		t.Errorf("valid report = %q", got)
	}

	got := FormatHuman(&Result{
		Valid:    false,
		Errors:   []Issue{{Category: "paths", Field: "bankrecon_dir", Message: "BankRecon directory not found: /x"}},
		Warnings: []Issue{{Category: "config", Message: "config.json not found, using defaults"}},
	})
	for _, want := range []string{
		"Configuration invalid",
		"(1 error(s), 1 warning(s))",
		"ERROR",
		"[paths]",
		"bankrecon_dir: BankRecon directory not found: /x",
		"[config]",
		"config.json not found, using defaults",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("report missing %q:\n%s", want, got)
		}
	}

	got = FormatHuman(&Result{Valid: true, Warnings: []Issue{{Category: "lock", Message: "run lock disabled"}}})
	if !strings.Contains(got, "(1 warning(s))") || !strings.Contains(got, "run lock disabled") {
		t.Errorf("warning report = %q", got)
	}
}

func TestFormatJSON(t *testing.T) {
	t.Parallel()

	out, err := FormatJSON(&Result{Valid: false, Errors: []Issue{{Category: "interpreter", Field: "python", Message: "missing"}}})
	if err != nil {
		t.Fatal(err)
	}

	var decoded Result
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if decoded.Valid || len(decoded.Errors) != 1 || decoded.Errors[0].Field != "python" {
		t.Errorf("decoded = %+v", decoded)
	}
}
