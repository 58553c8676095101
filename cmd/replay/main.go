package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coreloop/behavior-engine/internal/behavior"
	"github.com/coreloop/behavior-engine/internal/changes"
	"github.com/coreloop/behavior-engine/internal/config"
	"github.com/coreloop/behavior-engine/internal/engine"
)

// replay runs a sequence of clustered-input files as successive analyses,
// feeding each snapshot into the next run. Nothing is persisted; it exists
// to watch identity, versioning, and change classification evolve.

// #region input

type fixture struct {
	SubjectID string             `json:"subject_id"`
	Records   []behavior.Record  `json:"records"`
	Clusters  []behavior.Cluster `json:"clusters"`
}

func loadFixture(path string) (fixture, error) {
	var f fixture
	data, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("read input %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("parse input %s: %w", path, err)
	}
	if f.SubjectID == "" {
		return f, fmt.Errorf("input %s: subject_id is required", path)
	}
	return f, nil
}

// #endregion input

// #region main

func main() {
	configPath := flag.String("config", envOr("ENGINE_CONFIG", ""), "path to engine YAML config")
	flag.Parse()

	inputs := flag.Args()
	if len(inputs) == 0 {
		fmt.Fprintln(os.Stderr, "usage: replay [--config engine.yaml] run1.json run2.json ...")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	eng, err := engine.New(cfg, nil)
	if err != nil {
		log.Fatalf("failed to build engine: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var prev *behavior.Snapshot
	for i, path := range inputs {
		f, err := loadFixture(path)
		if err != nil {
			log.Fatalf("%v", err)
		}
		if prev != nil && prev.SubjectID != f.SubjectID {
			log.Fatalf("input %s switches subject from %s to %s mid-replay", path, prev.SubjectID, f.SubjectID)
		}

		res, err := eng.Analyze(ctx, engine.Input{
			SubjectID: f.SubjectID,
			Records:   f.Records,
			Clusters:  f.Clusters,
		}, prev)
		if err != nil {
			log.Fatalf("run %d (%s) failed: %v", i+1, path, err)
		}

		printRun(i+1, path, res)
		snap := res.Snapshot
		prev = &snap
	}
}

// #endregion main

// #region output

func printRun(n int, path string, res engine.Result) {
	fmt.Printf("=== Run %d: %s ===\n", n, path)
	if res.FromCache {
		fmt.Printf("evidence unchanged, snapshot carried forward (%d behaviors)\n\n", len(res.Snapshot.Behaviors))
		return
	}

	fmt.Printf("evaluated=%d promoted=%d emerging=%d rejected=%d\n",
		res.Stats.Evaluated, res.Stats.Promoted, res.Stats.Emerging, res.Stats.Rejected)

	for _, cb := range res.Snapshot.Behaviors {
		fmt.Printf("  %-20s  v%-3d  %-6s  %.4f  %-10s  %s\n",
			cb.ID, cb.Version, cb.Grade, cb.Confidence, cb.Status, cb.Statement)
	}

	printReport(res.Report)
	fmt.Println()
}

func printReport(r changes.Report) {
	if r.Total() == 0 {
		return
	}
	fmt.Printf("changes:\n")
	for _, id := range r.New {
		fmt.Printf("  new          %s\n", id)
	}
	for _, id := range r.Retired {
		fmt.Printf("  retired      %s\n", id)
	}
	for _, group := range []struct {
		kind    string
		entries []changes.Entry
	}{
		{"strengthened", r.Strengthened},
		{"weakened", r.Weakened},
		{"minor_update", r.MinorUpdate},
		{"stable", r.Stable},
	} {
		for _, e := range group.entries {
			fmt.Printf("  %-12s %s: %s\n", group.kind, e.BehaviorID, e.Explanation)
		}
	}
}

// #endregion output

// #region helpers

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers
