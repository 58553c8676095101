package engine

// #region imports
import (
	"context"
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coreloop/behavior-engine/internal/behavior"
	"github.com/coreloop/behavior-engine/internal/changes"
	"github.com/coreloop/behavior-engine/internal/config"
	"github.com/coreloop/behavior-engine/internal/confidence"
	"github.com/coreloop/behavior-engine/internal/label"
	"github.com/coreloop/behavior-engine/internal/lifecycle"
	"github.com/coreloop/behavior-engine/internal/logging"
	"github.com/coreloop/behavior-engine/internal/promotion"
)

// #endregion

// #region input-result

// Input is everything one run consumes. Records and clusters come from the
// upstream embedding/clustering stage; the previous snapshot comes from the
// storage collaborator.
type Input struct {
	SubjectID string
	Records   []behavior.Record
	Clusters  []behavior.Cluster
	// Force skips the incremental short-circuit and re-derives even when
	// the evidence set is unchanged.
	Force bool
}

// Result is the full output of one run, handed to the storage collaborator.
type Result struct {
	SubjectID string
	Snapshot  behavior.Snapshot
	Report    changes.Report
	Stats     promotion.Stats
	FromCache bool
}

// #endregion

// #region engine

// Engine runs the derivation pipeline. Each run is a pure function of
// (clusters, previous snapshot); the engine holds no per-subject state
// beyond the locks that serialize same-subject runs.
type Engine struct {
	cfg       config.Config
	evaluator *promotion.Evaluator
	manager   *lifecycle.Manager
	labeler   *label.Labeler

	auditDB *sql.DB

	mu       sync.Mutex
	subjects map[string]*sync.Mutex
}

// New validates the configuration and wires the pipeline. labeler may be
// nil, in which case statements come from the deterministic fallback.
func New(cfg config.Config, labeler *label.Labeler) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	scorer, err := confidence.NewEngine(cfg.Weights)
	if err != nil {
		return nil, err
	}
	if labeler == nil {
		labeler = label.NewLabeler(nil, 0, 0)
	}
	return &Engine{
		cfg:       cfg,
		evaluator: promotion.NewEvaluator(cfg.Promotion, scorer),
		manager:   lifecycle.NewManager(cfg.Lifecycle),
		labeler:   labeler,
		subjects:  make(map[string]*sync.Mutex),
	}, nil
}

// AttachAudit enables per-cluster decision logging into the given database.
func (e *Engine) AttachAudit(db *sql.DB) error {
	if err := logging.EnsureSchema(db); err != nil {
		return err
	}
	e.auditDB = db
	return nil
}

// #endregion

// #region analyze

// Analyze runs one derivation for a subject. Same-subject runs are
// serialized: the previous snapshot is both read and superseded here, and
// two concurrent runs would otherwise each increment versions from the
// same base. Different subjects share nothing and run fully in parallel.
func (e *Engine) Analyze(ctx context.Context, in Input, prev *behavior.Snapshot) (Result, error) {
	lock := e.subjectLock(in.SubjectID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	now := time.Now().UTC()

	// Incremental short-circuit: unchanged evidence set means the previous
	// snapshot is still the answer.
	if !in.Force && prev != nil && evidenceUnchanged(prev, in.Records) {
		log.Printf("[ENGINE] subject=%s evidence unchanged, returning previous snapshot", in.SubjectID)
		return Result{
			SubjectID: in.SubjectID,
			Snapshot:  *prev,
			Stats:     promotion.Stats{RejectionReasons: map[string]int{}},
			FromCache: true,
		}, nil
	}

	outcomes, stats := e.evaluator.EvaluateAll(in.Clusters, in.Records)

	var promoted []promotion.Outcome
	for _, o := range outcomes {
		if o.Decision == promotion.DecisionPromoted {
			promoted = append(promoted, o)
		}
	}

	currentIDs := make(map[string]bool, len(in.Records))
	for _, r := range in.Records {
		currentIDs[r.ID] = true
	}

	lc := e.manager.Apply(in.SubjectID, promoted, prev, currentIDs, now)

	// Attach statements. New behaviors get a label; matched behaviors keep
	// the statement they carried forward. Labeling cannot touch scores.
	for i := range lc.Promoted {
		if lc.Promoted[i].Statement == "" {
			lc.Promoted[i].Statement = e.labeler.Label(ctx, promoted[i].Members)
		}
	}

	report := changes.Detect(prev, lc.Promoted)

	snapshot := behavior.Snapshot{
		SnapshotID: uuid.New().String(),
		SubjectID:  in.SubjectID,
		RunAt:      now,
		Behaviors:  lc.All(),
	}

	e.audit(snapshot.SnapshotID, in.SubjectID, outcomes, now)

	log.Printf("[ENGINE] subject=%s evaluated=%d promoted=%d emerging=%d rejected=%d",
		in.SubjectID, stats.Evaluated, stats.Promoted, stats.Emerging, stats.Rejected)

	return Result{
		SubjectID: in.SubjectID,
		Snapshot:  snapshot,
		Report:    report,
		Stats:     stats,
	}, nil
}

// #endregion

// #region helpers

func (e *Engine) subjectLock(subjectID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.subjects[subjectID]
	if !ok {
		lock = &sync.Mutex{}
		e.subjects[subjectID] = lock
	}
	return lock
}

// evidenceUnchanged reports whether the current record id set equals the
// union of the previous snapshot's evidence chains.
func evidenceUnchanged(prev *behavior.Snapshot, records []behavior.Record) bool {
	union := prev.EvidenceUnion()
	if len(union) != len(records) {
		return false
	}
	for _, r := range records {
		if !union[r.ID] {
			return false
		}
	}
	return true
}

func (e *Engine) audit(snapshotID, subjectID string, outcomes []promotion.Outcome, now time.Time) {
	if e.auditDB == nil {
		return
	}
	for _, o := range outcomes {
		err := logging.LogEvaluation(e.auditDB, logging.EvaluationEntry{
			SnapshotID: snapshotID,
			SubjectID:  subjectID,
			ClusterID:  o.ClusterID,
			Decision:   string(o.Decision),
			Reason:     string(o.Reason),
			Confidence: o.Confidence,
			Detail:     o.Detail,
			CreatedAt:  now,
		})
		if err != nil {
			log.Printf("[ENGINE] failed to audit cluster %s: %v", o.ClusterID, err)
		}
	}
}

// #endregion
