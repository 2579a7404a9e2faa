package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/MJE43/blackjack-policy/internal/blackjack"
	"github.com/MJE43/blackjack-policy/internal/dealer"
	"github.com/MJE43/blackjack-policy/internal/simulate"
	"github.com/MJE43/blackjack-policy/internal/solver"
	"github.com/MJE43/blackjack-policy/internal/store"
)

func fixtures(t *testing.T) (dealer.OutcomeTable, solver.Policy) {
	t.Helper()
	table, err := dealer.NewModel(blackjack.InfiniteDeck(), zerolog.Nop()).Compute(1e-9)
	if err != nil {
		t.Fatal(err)
	}
	J, err := solver.New(zerolog.Nop()).Solve(context.Background(), table)
	if err != nil {
		t.Fatal(err)
	}
	p, err := solver.ExtractPolicy(J, solver.DefaultPolicyTimestep)
	if err != nil {
		t.Fatal(err)
	}
	return table, p
}

func TestDealerTable(t *testing.T) {
	table, _ := fixtures(t)
	var buf bytes.Buffer
	if err := DealerTable(&buf, table); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 1+len(blackjack.UpCards()) {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}
	if f := strings.Fields(lines[0]); len(f) != 7 || f[0] != "up" || f[6] != "bust" {
		t.Fatalf("header = %q", lines[0])
	}
	if f := strings.Fields(lines[len(lines)-1]); f[0] != "A" {
		t.Fatalf("last row should be the ace, got %q", lines[len(lines)-1])
	}
}

func TestDealerCSV(t *testing.T) {
	table, _ := fixtures(t)
	var buf bytes.Buffer
	if err := DealerCSV(&buf, table); err != nil {
		t.Fatal(err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 11 || len(records[0]) != 7 {
		t.Fatalf("got %d records of %d fields", len(records), len(records[0]))
	}
	if records[1][0] != "2" || records[10][0] != "A" {
		t.Fatalf("unexpected row order: %q .. %q", records[1][0], records[10][0])
	}
}

func TestPolicy(t *testing.T) {
	_, p := fixtures(t)
	var buf bytes.Buffer
	if err := Policy(&buf, p); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	blocks := splitOnBlank(out)
	if len(blocks) != 2 {
		t.Fatalf("want a hard and a soft block:\n%s", out)
	}
	hard := strings.Split(strings.TrimSpace(blocks[0]), "\n")
	soft := strings.Split(strings.TrimSpace(blocks[1]), "\n")
	if len(hard) != 1+len(p.Hard) || len(soft) != 1+len(p.Soft) {
		t.Fatalf("got %d hard and %d soft lines", len(hard), len(soft))
	}

	// 20 against a 6 stands; 12 against a 10 hits.
	for _, tt := range []struct {
		label string
		col   int
		want  string
	}{
		{"20", 5, "S"},
		{"12", 9, "H"},
	} {
		var row []string
		for _, l := range hard[1:] {
			if f := strings.Fields(l); f[0] == tt.label {
				row = f
			}
		}
		if row == nil || row[tt.col] != tt.want {
			t.Errorf("row %s col %d = %v, want %s", tt.label, tt.col, row, tt.want)
		}
	}
}

// splitOnBlank splits on whitespace-only lines; tabwriter pads the separator.
func splitOnBlank(s string) []string {
	var blocks []string
	var cur []string
	for _, l := range strings.Split(s, "\n") {
		if strings.TrimSpace(l) == "" {
			if len(cur) > 0 {
				blocks = append(blocks, strings.Join(cur, "\n"))
				cur = nil
			}
			continue
		}
		cur = append(cur, l)
	}
	if len(cur) > 0 {
		blocks = append(blocks, strings.Join(cur, "\n"))
	}
	return blocks
}

func TestPolicyCSV(t *testing.T) {
	_, p := fixtures(t)
	var buf bytes.Buffer
	if err := PolicyCSV(&buf, p); err != nil {
		t.Fatal(err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if want := 1 + (len(p.Hard)+len(p.Soft))*10; len(records) != want {
		t.Fatalf("got %d records, want %d", len(records), want)
	}
	if strings.Join(records[0], ",") != "total,soft,up_card,action,cost" {
		t.Fatalf("header = %v", records[0])
	}
	for _, r := range records[1:] {
		if r[3] != "play" && r[3] != "stop" {
			t.Fatalf("bad action in %v", r)
		}
	}
}

func TestRuns(t *testing.T) {
	runs := []store.Run{
		{ID: "b", Kind: store.KindPolicy, Horizon: 22, Timestep: 2, CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
		{ID: "a", Kind: store.KindDealer, CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	var buf bytes.Buffer
	if err := Runs(&buf, runs); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines", len(lines))
	}
	if !strings.Contains(lines[1], "policy") || !strings.Contains(lines[1], "2026-01-02 03:04:05") {
		t.Fatalf("row = %q", lines[1])
	}
}

func TestSummary(t *testing.T) {
	s := simulate.Summary{Hands: 1234567, NotBeaten: 600000, Rate: 0.486, StdErr: 0.0004, Expected: 0.4862}
	var buf bytes.Buffer
	if err := Summary(&buf, s); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "1,234,567") {
		t.Fatalf("hands not grouped:\n%s", out)
	}
	if strings.Contains(out, "timed out") {
		t.Fatalf("unexpected timeout line:\n%s", out)
	}

	s.TimedOut = true
	buf.Reset()
	if err := Summary(&buf, s); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "timed out") {
		t.Fatalf("missing timeout line:\n%s", buf.String())
	}
}
