package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/example/transit-fraud/internal/app"
	"github.com/example/transit-fraud/internal/config"
	"github.com/example/transit-fraud/internal/models"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func seedDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"station.csv":      "id,station,latitude,longitude\n10,Bank,51.5133,-0.0886\n20,Angel,51.5322,-0.1058\n",
		"transit_edge.csv": "from,to,distance,time\n10,20,2.4,300\n",
		"oysters.csv":      "id,issue_date,issue_station,is_suspect\n5,2023-01-02,10,0\n6,2023-01-02,10,0\n",
		"people.csv":       "id,first_name,last_name\n1,Ada,Byron\n2,Kit,Marlowe\n",
		"addresses.csv":    "id,address\n1,1 Main St\n",
		"has_oyster.csv":   "id,to_person\n5,1\n6,2\n",
		"inhabitants.csv":  "id,to_person\n1,1\n1,2\n",
		"rides.csv":        "oyster_id,ride_date,ride_station\n5,2025-03-04T08:00:00Z,10\n",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dir := seedDir(t)
	root := newRootCmd(func(ctx context.Context) (*app.Stores, error) {
		return app.OpenStores(ctx, config.Stores{SeedDir: dir, LockTTL: time.Second}, quiet)
	})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestSolveCommand(t *testing.T) {
	out, err := run(t, "solve")
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if !strings.Contains(out, "solved 3 routes") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestCheckCommandReportsAnomaly(t *testing.T) {
	out, err := run(t, "check", "--card", "5", "--station", "20", "--timestamp", "2025-03-04T08:02:00Z")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	var res models.CheckResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if res.Status != models.StatusAnomaly || res.Ring == nil {
		t.Fatalf("expected anomaly with ring, got %+v", res)
	}
}

func TestCheckCommandRejectsBadTimestamp(t *testing.T) {
	if _, err := run(t, "check", "--card", "5", "--station", "20", "--timestamp", "noon"); err == nil {
		t.Fatal("expected an error for a bad timestamp")
	}
}

func TestRingAndHistoryCommands(t *testing.T) {
	out, err := run(t, "ring", "--card", "5")
	if err != nil {
		t.Fatalf("ring: %v", err)
	}
	var ring models.Ring
	if err := json.Unmarshal([]byte(out), &ring); err != nil || len(ring.Nodes) != 5 {
		t.Fatalf("unexpected ring %q err=%v", out, err)
	}

	out, err = run(t, "history", "--card", "5")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "2025-03-04T08:00:00Z\t10\tBank") {
		t.Fatalf("unexpected history %q", out)
	}
}

func TestLoadCommandReportsTables(t *testing.T) {
	dir := seedDir(t)
	out, err := run(t, "load", "--dir", dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !strings.Contains(out, "stations\t2") || !strings.Contains(out, "rides\t1") {
		t.Fatalf("unexpected report %q", out)
	}
}
