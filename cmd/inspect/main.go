package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/coreloop/behavior-engine/internal/logging"
	"github.com/coreloop/behavior-engine/internal/store"
)

// #region main

func main() {
	dbPath := flag.String("db", envOr("BEHAVIOR_DB", ""), "path to behavior_engine.db")
	subject := flag.String("subject", "", "subject to inspect")
	snapshot := flag.String("snapshot", "", "show one snapshot's behaviors in full")
	last := flag.Int("last", 20, "show N most recent snapshots")
	evalLog := flag.Bool("log", false, "show recent promotion decisions for the subject")
	stats := flag.Bool("stats", false, "show aggregate stats for the subject")
	del := flag.Bool("delete", false, "delete all snapshots for the subject")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/behavior_engine.db --subject id [--last N] [--snapshot id] [--log] [--stats] [--delete] [--json]")
		os.Exit(2)
	}

	st, err := store.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	var runErr error
	switch {
	case *snapshot != "":
		runErr = runSnapshotMode(st, *snapshot, *jsonOut)
	case *subject == "":
		fmt.Fprintln(os.Stderr, "--subject is required without --snapshot")
		os.Exit(2)
	case *del:
		runErr = runDeleteMode(st, *subject)
	case *stats:
		runErr = runStatsMode(st, *subject, *jsonOut)
	case *evalLog:
		runErr = runLogMode(st, *subject, *last, *jsonOut)
	default:
		runErr = runHistoryMode(st, *subject, *last, *jsonOut)
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
		os.Exit(1)
	}
}

// #endregion main

// #region history-mode

func runHistoryMode(st *store.Store, subject string, last int, jsonOut bool) error {
	infos, err := st.ListSnapshots(subject, last, 0)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Fprintln(os.Stderr, "no snapshots found")
		return nil
	}

	if jsonOut {
		return printJSON(infos)
	}

	fmt.Printf("%-12s  %-20s  %9s  %s\n", "Snapshot", "Run At", "Behaviors", "Stats")
	for _, info := range infos {
		stats := "—"
		if info.StatsJSON != "" {
			stats = info.StatsJSON
		}
		fmt.Printf("%-12s  %-20s  %9d  %s\n",
			shortID(info.SnapshotID), info.RunAt.Format("2006-01-02T15:04:05Z"), info.BehaviorCount, stats)
	}
	return nil
}

// #endregion history-mode

// #region snapshot-mode

func runSnapshotMode(st *store.Store, snapshotID string, jsonOut bool) error {
	snap, err := st.GetSnapshot(snapshotID)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(snap)
	}

	fmt.Printf("Snapshot: %s\n", snap.SnapshotID)
	fmt.Printf("Subject:  %s\n", snap.SubjectID)
	fmt.Printf("Run At:   %s\n\n", snap.RunAt.Format("2006-01-02T15:04:05Z"))

	fmt.Printf("%-20s  %-6s  %10s  %-10s  %7s  %7s  %s\n",
		"Behavior", "Grade", "Confidence", "Status", "Version", "Support", "Statement")
	for _, cb := range snap.Behaviors {
		fmt.Printf("%-20s  %-6s  %10.4f  %-10s  %7d  %7.2f  %s\n",
			cb.ID, cb.Grade, cb.Confidence, cb.Status, cb.Version, cb.SupportRatio, cb.Statement)
	}
	return nil
}

// #endregion snapshot-mode

// #region stats-mode

func runStatsMode(st *store.Store, subject string, jsonOut bool) error {
	stats, err := st.SubjectStats(subject)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(stats)
	}

	fmt.Printf("Subject:          %s\n", stats.SubjectID)
	fmt.Printf("Runs:             %d\n", stats.Runs)
	fmt.Printf("Latest Behaviors: %d\n", stats.LatestBehaviors)
	fmt.Printf("Mean Confidence:  %.4f\n", stats.MeanConfidence)
	return nil
}

// #endregion stats-mode

// #region log-mode

func runLogMode(st *store.Store, subject string, last int, jsonOut bool) error {
	entries, err := logging.ListEvaluations(st.DB(), subject, last)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "no evaluation log entries found")
		return nil
	}

	if jsonOut {
		return printJSON(entries)
	}

	fmt.Printf("%-12s  %-12s  %-10s  %-25s  %10s  %s\n",
		"Snapshot", "Cluster", "Decision", "Reason", "Confidence", "Time")
	for _, e := range entries {
		reason := e.Reason
		if reason == "" {
			reason = "—"
		}
		fmt.Printf("%-12s  %-12s  %-10s  %-25s  %10.4f  %s\n",
			shortID(e.SnapshotID), e.ClusterID, e.Decision, reason, e.Confidence,
			e.CreatedAt.Format("2006-01-02T15:04:05Z"))
	}
	return nil
}

// #endregion log-mode

// #region delete-mode

func runDeleteMode(st *store.Store, subject string) error {
	n, err := st.DeleteSubject(subject)
	if err != nil {
		return err
	}
	fmt.Printf("deleted %d snapshot(s) for subject %s\n", n, subject)
	return nil
}

// #endregion delete-mode

// #region output

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion output
