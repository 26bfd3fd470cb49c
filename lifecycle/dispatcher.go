package lifecycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ahmadzakiakmal/panelchain/journal"
	"github.com/ahmadzakiakmal/panelchain/ledger"
	"github.com/ahmadzakiakmal/panelchain/logger"
)

// Ledger write ops, as recorded in the journal
const (
	OpRegister      = "register"
	OpUpdateStatus  = "update_status"
	OpMintToken     = "mint_token"
	OpMintArt       = "mint_art"
	OpMintMaterials = "mint_materials"
	OpTransfer      = "transfer"
)

var errDispatcherClosed = errors.New("dispatcher closed")

// Step is one ledger write performed after a local commit
type Step struct {
	Op             string
	IntendedStatus string
	Run            func(ctx context.Context) error
}

// Task groups the steps that follow one transition. Steps run in order and
// a failed step does not stop the next one.
type Task struct {
	AssetID    string
	ExternalID string
	Steps      []Step
}

// Dispatcher runs ledger tasks detached from the caller. Tasks of one asset
// run one at a time in dispatch order, so the ledger sees its statuses in the
// order they were committed. Outcomes are only logged and journaled; nothing
// flows back to the transition that queued them.
type Dispatcher struct {
	gateway ledger.Gateway
	journal *journal.Journal
	log     *logger.Logger
	budget  time.Duration

	mu     sync.Mutex
	lanes  map[string][]Task // queued tasks per asset; present while a worker drains it
	closed bool              // guarded by mu
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher. budget bounds one whole task; j may be
// nil.
func NewDispatcher(gateway ledger.Gateway, j *journal.Journal, budget time.Duration, log *logger.Logger) *Dispatcher {
	return &Dispatcher{gateway: gateway, journal: j, budget: budget, log: log, lanes: map[string][]Task{}}
}

// Dispatch starts task in the background. With no ledger configured the
// steps are skipped without any ledger call.
func (d *Dispatcher) Dispatch(ctx context.Context, task Task) {
	if len(task.Steps) == 0 {
		return
	}
	if !d.gateway.IsAvailable() {
		for _, step := range task.Steps {
			d.log.Warn("ledger unavailable, skipping write",
				"asset_id", task.AssetID, "external_id", task.ExternalID, "op", step.Op, "intended_status", step.IntendedStatus)
			d.record(task, step, ledger.ErrUnavailable)
		}
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		for _, step := range task.Steps {
			d.log.Warn("dispatcher closed, skipping write", "asset_id", task.AssetID, "op", step.Op)
			d.record(task, step, errDispatcherClosed)
		}
		return
	}
	// Add under mu so Close never waits while a new task is being counted.
	d.wg.Add(1)
	queued, busy := d.lanes[task.AssetID]
	d.lanes[task.AssetID] = append(queued, task)
	d.mu.Unlock()
	if busy {
		return
	}
	go d.drain(context.WithoutCancel(ctx), task.AssetID)
}

// drain runs the lane of one asset until it is empty
func (d *Dispatcher) drain(ctx context.Context, assetID string) {
	for {
		d.mu.Lock()
		queued := d.lanes[assetID]
		if len(queued) == 0 {
			delete(d.lanes, assetID)
			d.mu.Unlock()
			return
		}
		task := queued[0]
		d.lanes[assetID] = queued[1:]
		d.mu.Unlock()

		d.runTask(ctx, task)
		d.wg.Done()
	}
}

func (d *Dispatcher) runTask(ctx context.Context, task Task) {
	runCtx, cancel := context.WithTimeout(ctx, d.budget)
	defer cancel()

	for _, step := range task.Steps {
		d.run(runCtx, task, step)
	}
}

func (d *Dispatcher) run(ctx context.Context, task Task, step Step) {
	err := step.Run(ctx)
	switch {
	case err == nil:
		d.clear(task, step)
	case errors.Is(err, ledger.ErrUnavailable):
		d.log.Warn("ledger unavailable, skipping write",
			"asset_id", task.AssetID, "external_id", task.ExternalID, "op", step.Op, "intended_status", step.IntendedStatus)
		d.record(task, step, err)
	default:
		d.log.Error("ledger write failed",
			"asset_id", task.AssetID, "external_id", task.ExternalID, "op", step.Op, "intended_status", step.IntendedStatus, "err", err)
		d.record(task, step, err)
	}
}

func (d *Dispatcher) record(task Task, step Step, cause error) {
	if d.journal == nil {
		return
	}
	err := d.journal.Record(journal.Entry{
		Op:             step.Op,
		AssetID:        task.AssetID,
		ExternalID:     task.ExternalID,
		IntendedStatus: step.IntendedStatus,
		Error:          cause.Error(),
	})
	if err != nil {
		d.log.Error("failed to journal ledger lag", "asset_id", task.AssetID, "op", step.Op, "err", err)
	}
}

func (d *Dispatcher) clear(task Task, step Step) {
	if d.journal == nil {
		return
	}
	if err := d.journal.Clear(step.Op, task.AssetID); err != nil {
		d.log.Error("failed to clear journal entry", "asset_id", task.AssetID, "op", step.Op, "err", err)
	}
}

// Wait blocks until every started task has finished
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close stops accepting tasks and waits for running ones. Later tasks are
// journaled as skipped.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}
