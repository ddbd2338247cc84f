package main

import (
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"

	"fieldline/internal/domain"
)

func TestParseSubtaskFlags(t *testing.T) {
	got := parseSubtaskFlags([]string{"feed=Feed the herd", "Check water: trough 2"}, []string{"Note anomalies"})
	if len(got) != 3 {
		t.Fatalf("expected 3 inputs, got %d", len(got))
	}
	if got[0].ID != "feed" || got[0].Title != "Feed the herd" || !*got[0].Required {
		t.Fatalf("unexpected first input: %+v", got[0])
	}
	if got[1].ID != "" || got[1].Title != "Check water: trough 2" {
		t.Fatalf("unexpected second input: %+v", got[1])
	}
	if *got[2].Required {
		t.Fatalf("optional subtask marked required")
	}
}

func TestSetEnvValueKeepsOtherKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := setEnvValue(path, "FIELDLINE_JWT_SECRET", "s3cret"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := setEnvValue(path, "FIELDLINE_ACTOR_ID", "sup1"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := setEnvValue(path, "FIELDLINE_ACTOR_ID", "w1"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	values, err := godotenv.Read(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if values["FIELDLINE_ACTOR_ID"] != "w1" || values["FIELDLINE_JWT_SECRET"] != "s3cret" {
		t.Fatalf("unexpected .env contents: %v", values)
	}
}

func TestProgressBar(t *testing.T) {
	for _, p := range []int{0, 25, 99, 100} {
		if bar := progressBar(p); bar == "" {
			t.Fatalf("empty bar for %d", p)
		}
	}
	if statusBadge(domain.Status("unknown")) != "unknown" {
		t.Fatalf("unknown status should render plainly")
	}
}
