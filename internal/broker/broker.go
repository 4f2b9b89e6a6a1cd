package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Cortex/internal/config"
	"github.com/MikeSquared-Agency/Cortex/internal/feed"
	"github.com/MikeSquared-Agency/Cortex/internal/hermes"
	"github.com/MikeSquared-Agency/Cortex/internal/ledger"
	"github.com/MikeSquared-Agency/Cortex/internal/metrics"
	"github.com/MikeSquared-Agency/Cortex/internal/roster"
	"github.com/MikeSquared-Agency/Cortex/internal/scoring"
	"github.com/MikeSquared-Agency/Cortex/internal/store"
)

var ErrNoFeed = errors.New("no roster feed configured")

// engine is the catalog-derived state swapped as a whole on config reload.
type engine struct {
	selector *scoring.Selector
	tasks    map[string]roster.TaskDef
}

type Broker struct {
	engine  atomic.Pointer[engine]
	roster  *roster.Registry
	ledger  *ledger.Ledger
	guard   *ledger.Guard
	store   store.Store
	hermes  hermes.Client
	feed    feed.Client
	metrics *metrics.Collector
	logger  *slog.Logger

	loc              *time.Location
	now              func() time.Time
	snapshotInterval time.Duration

	drainedMu sync.RWMutex
	drained   map[string]bool

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New builds a broker with an empty roster. h, f and m may be nil.
func New(cfg *config.Config, s store.Store, h hermes.Client, f feed.Client, m *metrics.Collector, logger *slog.Logger) (*Broker, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	catalog, err := scoring.NewCatalog(cfg)
	if err != nil {
		return nil, err
	}
	l, err := ledger.New(cfg.Balancer.FloorHours, catalog.Skills()...)
	if err != nil {
		return nil, err
	}

	b := &Broker{
		roster:           roster.NewRegistry(roster.Empty(cfg.Tasks)),
		ledger:           l,
		guard:            ledger.NewGuard(),
		store:            s,
		hermes:           h,
		feed:             f,
		metrics:          m,
		logger:           logger,
		loc:              loc,
		now:              time.Now,
		snapshotInterval: cfg.SnapshotInterval(),
		drained:          make(map[string]bool),
		stopCh:           make(chan struct{}),
	}
	b.engine.Store(&engine{selector: scoring.NewSelector(catalog, logger), tasks: cfg.Tasks})
	return b, nil
}

func (b *Broker) Catalog() *scoring.Catalog { return b.engine.Load().selector.Catalog() }

func (b *Broker) Ledger() *ledger.Ledger { return b.ledger }

func (b *Broker) Roster() *roster.Index { return b.roster.Current() }

// Start restores the last ledger snapshot and starts the snapshot loop.
func (b *Broker) Start(ctx context.Context) {
	b.restoreLedger(ctx)
	if b.store == nil || b.snapshotInterval <= 0 {
		return
	}
	b.wg.Add(1)
	go b.snapshotLoop(ctx)
}

// Stop ends the snapshot loop and writes a final snapshot.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
	b.wg.Wait()
	if b.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		b.persistLedger(ctx)
	}
}

func (b *Broker) DrainWorker(id string) {
	b.drainedMu.Lock()
	b.drained[id] = true
	b.drainedMu.Unlock()
}

func (b *Broker) UndrainWorker(id string) {
	b.drainedMu.Lock()
	delete(b.drained, id)
	b.drainedMu.Unlock()
}

func (b *Broker) IsDrained(id string) bool {
	b.drainedMu.RLock()
	defer b.drainedMu.RUnlock()
	return b.drained[id]
}

// Result is an assignment decision. When Found is false nothing was
// recorded and AssignmentID is zero.
type Result struct {
	scoring.Selection
	AssignmentID uuid.UUID      `json:"assignment_id"`
	Requested    string         `json:"requested_modality"`
	Strict       bool           `json:"strict"`
	Counter      ledger.Counter `json:"counter"`
	RatioAfter   float64        `json:"ratio_after"`
}

// Assign selects the least-loaded qualified worker for req and charges the
// ledger. The decision runs under the guard for every modality the request
// may touch; persistence and events happen after the locks are released.
func (b *Broker) Assign(ctx context.Context, req scoring.Request) (Result, error) {
	start := time.Now()
	sel := b.engine.Load().selector
	if err := sel.Catalog().Validate(req.Modality, req.Skill); err != nil {
		b.metrics.InvalidRequest()
		return Result{}, err
	}

	res, err := b.decide(sel, req)
	b.metrics.ObserveSelection(time.Since(start))
	if err != nil {
		b.logger.Error("assignment failed", "modality", req.Modality, "skill", req.Skill, "error", err)
		return Result{}, err
	}

	if !res.Found {
		b.logger.Info("no assignment", "modality", req.Modality, "skill", req.Skill, "strict", req.Strict, "phase", res.Phase)
		b.metrics.NoAssignment(req.Modality)
		if b.hermes != nil {
			_ = b.hermes.Publish(hermes.SubjectUnmatched(req.Modality), hermes.UnmatchedEvent{
				Modality:  req.Modality,
				Skill:     req.Skill,
				Strict:    req.Strict,
				Phase:     int(res.Phase),
				Timestamp: time.Now().UTC(),
			})
		}
		return res, nil
	}

	b.metrics.Assigned(res.Modality, res.Level, res.Counter.WeightedCount, res.Worker)
	b.logger.Info("assigned", "modality", res.Modality, "skill", req.Skill, "worker", res.Worker,
		"level", res.Level, "phase", res.Phase, "weight", res.Weight, "ratio_after", res.RatioAfter)

	a := &store.Assignment{
		ID:                res.AssignmentID,
		Modality:          res.Modality,
		RequestedModality: req.Modality,
		Skill:             req.Skill,
		PoolSkill:         res.PoolSkill,
		Worker:            res.Worker,
		Level:             res.Level,
		Phase:             int(res.Phase),
		Weight:            res.Weight,
		RatioAfter:        res.RatioAfter,
		Assisted:          res.Assisted(),
		Strict:            req.Strict,
		CreatedAt:         time.Now().UTC(),
	}
	if b.store != nil {
		if err := b.store.SaveAssignment(ctx, a); err != nil {
			b.logger.Warn("failed to persist assignment", "assignment_id", a.ID, "error", err)
		}
	}
	if b.hermes != nil {
		_ = b.hermes.Publish(hermes.SubjectAssigned(res.Modality), hermes.AssignedEvent{
			AssignmentID: a.ID.String(),
			Modality:     a.Modality,
			Requested:    a.RequestedModality,
			Skill:        a.Skill,
			PoolSkill:    a.PoolSkill,
			Worker:       a.Worker,
			Level:        a.Level,
			Phase:        a.Phase,
			Weight:       a.Weight,
			RatioAfter:   a.RatioAfter,
			Assisted:     a.Assisted,
			Strict:       a.Strict,
			Timestamp:    a.CreatedAt,
		})
	}
	return res, nil
}

// decide is the locked part of Assign.
func (b *Broker) decide(sel *scoring.Selector, req scoring.Request) (Result, error) {
	mods := sel.Modalities(req)
	unlock := b.guard.Lock(mods...)
	defer unlock()

	inst := b.roster.Current().At(b.now().In(b.loc))
	for _, mod := range mods {
		for _, id := range inst.OnShift(mod) {
			b.ledger.ObserveHours(mod, id, inst.HoursWorked(id, mod))
		}
	}

	selection, err := sel.Select(scoring.View{Roster: inst, Loads: b.ledger, Skip: b.IsDrained}, req)
	if err != nil {
		return Result{}, err
	}
	res := Result{Selection: selection, Requested: req.Modality, Strict: req.Strict}
	if !selection.Found {
		return res, nil
	}

	counter, err := b.ledger.Record(selection.Modality, selection.Worker, req.Skill, selection.Weight, selection.Assisted())
	if err != nil {
		return Result{}, err
	}
	res.AssignmentID = uuid.New()
	res.Counter = counter
	res.RatioAfter = b.ledger.Ratio(selection.Modality, selection.Worker)
	return res, nil
}

// Preview runs the selection without recording it.
func (b *Broker) Preview(req scoring.Request) (scoring.Selection, error) {
	sel := b.engine.Load().selector
	inst := b.roster.Current().At(b.now().In(b.loc))
	return sel.Select(scoring.View{Roster: inst, Loads: b.ledger, Skip: b.IsDrained}, req)
}

// ApplyCatalog swaps in the catalog of a reloaded config. Floor hours are
// fixed for the life of the ledger.
func (b *Broker) ApplyCatalog(cfg *config.Config) error {
	catalog, err := scoring.NewCatalog(cfg)
	if err != nil {
		return err
	}
	ix, err := roster.Build(b.roster.Current().Document(), cfg.Tasks)
	if err != nil {
		return fmt.Errorf("rebuild roster: %w", err)
	}
	if cfg.Balancer.FloorHours != b.ledger.FloorHours() {
		b.logger.Warn("floor_hours change ignored until restart",
			"configured", cfg.Balancer.FloorHours, "active", b.ledger.FloorHours())
	}

	b.engine.Store(&engine{selector: scoring.NewSelector(catalog, b.logger), tasks: cfg.Tasks})
	b.ledger.Track(catalog.Skills()...)
	b.roster.Replace(ix)
	b.logger.Info("catalog applied", "modalities", len(catalog.Modalities()), "skills", len(catalog.Skills()))
	return nil
}

// ReplaceRoster builds a new index from doc and swaps it in. It reports
// whether the roster changed.
func (b *Broker) ReplaceRoster(doc roster.Document) (bool, error) {
	ix, err := roster.Build(doc, b.engine.Load().tasks)
	if err != nil {
		return false, err
	}
	changed := b.roster.Replace(ix)
	b.logger.Info("roster replaced", "workers", ix.Len(), "fingerprint", ix.Fingerprint(), "changed", changed)
	b.refreshRosterGauges()
	return changed, nil
}

// ReloadRoster pulls the roster feed and swaps the index.
func (b *Broker) ReloadRoster(ctx context.Context) (bool, error) {
	if b.feed == nil {
		return false, ErrNoFeed
	}
	doc, err := b.feed.FetchRoster(ctx)
	if err != nil {
		return false, fmt.Errorf("fetch roster: %w", err)
	}
	return b.ReplaceRoster(doc)
}

// ImportSkills applies a skill matrix CSV to the current roster.
func (b *Broker) ImportSkills(r io.Reader, mode roster.ImportMode) (roster.ImportStats, error) {
	catalog := b.Catalog()
	matrix, err := roster.ParseSkillCSV(r, catalog.Modalities(), catalog.Skills())
	if err != nil {
		return roster.ImportStats{}, err
	}
	doc, stats := roster.ApplySkills(b.roster.Current().Document(), matrix, mode)
	if _, err := b.ReplaceRoster(doc); err != nil {
		return roster.ImportStats{}, err
	}
	b.logger.Info("skill matrix imported", "mode", mode, "added", stats.Added, "updated", stats.Updated, "skipped", stats.Skipped)
	return stats, nil
}

// ExportSkills writes the current roster's skill overrides as CSV.
func (b *Broker) ExportSkills(w io.Writer) error {
	catalog := b.Catalog()
	return roster.WriteSkillCSV(w, b.roster.Current().Document(), catalog.Modalities(), catalog.Skills())
}

func (b *Broker) UpsertWorker(w roster.Worker) (roster.Worker, error) {
	stored, err := b.roster.Upsert(w)
	if err != nil {
		return roster.Worker{}, err
	}
	b.refreshRosterGauges()
	return stored, nil
}

func (b *Broker) RemoveWorker(id string) error {
	if err := b.roster.Remove(id); err != nil {
		return err
	}
	b.UndrainWorker(id)
	b.refreshRosterGauges()
	return nil
}

// ResetLedger zeroes the counters of modality, or of every modality when
// modality is empty, and writes the emptied ledger to the store so a restart
// does not bring the old counters back.
func (b *Broker) ResetLedger(ctx context.Context, modality string) error {
	catalog := b.Catalog()
	if modality != "" && !catalog.HasModality(modality) {
		return fmt.Errorf("%w: %w: %s", scoring.ErrInvalidRequest, scoring.ErrUnknownModality, modality)
	}

	if modality == "" {
		unlock := b.guard.Lock(concat(catalog.Modalities(), b.ledger.Modalities())...)
		b.ledger.ResetAll()
		unlock()
	} else {
		unlock := b.guard.Lock(modality)
		b.ledger.Reset(modality)
		unlock()
	}
	b.metrics.ResetLedger(modality)
	b.logger.Info("ledger reset", "modality", modality)
	if b.store != nil {
		b.persistLedger(ctx)
	}

	if b.hermes != nil {
		subject := hermes.SubjectReset("all")
		if modality != "" {
			subject = hermes.SubjectReset(modality)
		}
		_ = b.hermes.Publish(subject, hermes.LedgerResetEvent{Modality: modality, Timestamp: time.Now().UTC()})
	}
	return nil
}

// Snapshot returns a copy of the ledger.
func (b *Broker) Snapshot() ledger.State { return b.ledger.Snapshot() }

// RestoreLedger replaces the ledger with st while holding every modality
// lock.
func (b *Broker) RestoreLedger(st ledger.State) error {
	mods := concat(b.Catalog().Modalities(), b.ledger.Modalities())
	for mod := range st.Modalities {
		mods = append(mods, mod)
	}
	unlock := b.guard.Lock(mods...)
	defer unlock()
	if err := b.ledger.Restore(st); err != nil {
		return err
	}
	b.metrics.ResetLedger("")
	return nil
}

// ListAssignments reads the assignment log.
func (b *Broker) ListAssignments(ctx context.Context, filter store.AssignmentFilter) ([]*store.Assignment, error) {
	if b.store == nil {
		return nil, nil
	}
	return b.store.ListAssignments(ctx, filter)
}

// SetupSubscriptions registers the NATS control subjects.
func (b *Broker) SetupSubscriptions() {
	if b.hermes == nil {
		return
	}

	_ = b.hermes.Subscribe(hermes.SubjectRosterReload, func(_ string, data []byte) {
		var evt hermes.RosterReloadEvent
		_ = json.Unmarshal(data, &evt)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := b.ReloadRoster(ctx); err != nil {
			b.logger.Error("roster reload failed", "reason", evt.Reason, "error", err)
		}
	})

	_ = b.hermes.Subscribe(hermes.SubjectLedgerReset, func(_ string, data []byte) {
		var evt hermes.LedgerResetEvent
		if len(data) > 0 {
			if err := json.Unmarshal(data, &evt); err != nil {
				b.logger.Warn("invalid ledger reset event", "error", err)
				return
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := b.ResetLedger(ctx, evt.Modality); err != nil {
			b.logger.Warn("ledger reset rejected", "modality", evt.Modality, "error", err)
		}
	})
}

func concat(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	return append(append(out, a...), b...)
}
