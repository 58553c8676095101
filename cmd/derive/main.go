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
	"github.com/coreloop/behavior-engine/internal/label"
	"github.com/coreloop/behavior-engine/internal/store"
)

// #region input

// fixture is the JSON payload produced by the upstream clustering stage.
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
	input := flag.String("input", "", "path to clustered-input JSON")
	configPath := flag.String("config", envOr("ENGINE_CONFIG", ""), "path to engine YAML config")
	force := flag.Bool("force", false, "re-derive even when the evidence set is unchanged")
	jsonOut := flag.Bool("json", false, "print the full result as JSON")
	flag.Parse()

	if *input == "" {
		fmt.Fprintln(os.Stderr, "usage: derive --input clusters.json [--config engine.yaml] [--force] [--json]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	dbPath := envOr("BEHAVIOR_DB", "behavior_engine.db")
	st, err := store.NewStore(dbPath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	eng, err := engine.New(cfg, buildLabeler(cfg))
	if err != nil {
		log.Fatalf("failed to build engine: %v", err)
	}
	if err := eng.AttachAudit(st.DB()); err != nil {
		log.Fatalf("failed to attach audit log: %v", err)
	}

	f, err := loadFixture(*input)
	if err != nil {
		log.Fatalf("%v", err)
	}

	prev, err := st.LoadLatest(f.SubjectID)
	if err != nil {
		log.Printf("failed to load previous snapshot, treating as first run: %v", err)
		prev = nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	res, err := eng.Analyze(ctx, engine.Input{
		SubjectID: f.SubjectID,
		Records:   f.Records,
		Clusters:  f.Clusters,
		Force:     *force,
	}, prev)
	if err != nil {
		log.Fatalf("analysis failed: %v", err)
	}

	if !res.FromCache {
		statsJSON, _ := json.Marshal(res.Stats)
		if err := st.SaveSnapshot(res.Snapshot, string(statsJSON)); err != nil {
			log.Fatalf("failed to save snapshot: %v", err)
		}
	}

	if *jsonOut {
		printJSON(res)
		return
	}
	printSummary(res)
}

// #endregion main

// #region output

func printSummary(res engine.Result) {
	if res.FromCache {
		fmt.Printf("Subject %s: evidence unchanged, snapshot %s still current (%d behaviors)\n",
			res.SubjectID, shortID(res.Snapshot.SnapshotID), len(res.Snapshot.Behaviors))
		return
	}

	fmt.Printf("Subject %s: snapshot %s saved\n", res.SubjectID, shortID(res.Snapshot.SnapshotID))
	fmt.Printf("  clusters evaluated=%d promoted=%d emerging=%d rejected=%d\n",
		res.Stats.Evaluated, res.Stats.Promoted, res.Stats.Emerging, res.Stats.Rejected)

	if len(res.Snapshot.Behaviors) > 0 {
		fmt.Printf("\n%-20s  %-6s  %10s  %-10s  %7s  %s\n",
			"Behavior", "Grade", "Confidence", "Status", "Version", "Statement")
		for _, cb := range res.Snapshot.Behaviors {
			fmt.Printf("%-20s  %-6s  %10.4f  %-10s  %7d  %s\n",
				cb.ID, cb.Grade, cb.Confidence, cb.Status, cb.Version, cb.Statement)
		}
	}

	printReport(res.Report)
}

func printReport(r changes.Report) {
	if r.Total() == 0 {
		return
	}
	fmt.Printf("\nChanges:\n")
	for _, id := range r.New {
		fmt.Printf("  new          %s\n", id)
	}
	for _, id := range r.Retired {
		fmt.Printf("  retired      %s\n", id)
	}
	printEntries("strengthened", r.Strengthened)
	printEntries("weakened", r.Weakened)
	printEntries("minor_update", r.MinorUpdate)
	printEntries("stable", r.Stable)
}

func printEntries(kind string, entries []changes.Entry) {
	for _, e := range entries {
		fmt.Printf("  %-12s %s: %s\n", kind, e.BehaviorID, e.Explanation)
	}
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("marshal json: %v", err)
	}
	fmt.Println(string(data))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output

// #region helpers

// buildLabeler wires the OpenAI provider when a key is present, otherwise
// the deterministic fallback handles all statements.
func buildLabeler(cfg config.Config) *label.Labeler {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		log.Println("OPENAI_API_KEY not set, statements use the deterministic fallback")
		return nil
	}
	return label.NewLabeler(
		label.NewOpenAIProvider(apiKey, cfg.Label.Model),
		time.Duration(cfg.Label.TimeoutSeconds)*time.Second,
		time.Duration(cfg.Label.CacheTTLSeconds)*time.Second,
	)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers
