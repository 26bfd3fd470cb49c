// Package lifecycle owns the panel state machine and keeps the external
// ledger in step with it.
//
// Every operation commits its local change first and only then queues the
// ledger writes that mirror it. Ledger failures after a commit are logged and
// journaled, never returned; the single exception is the token transfer of a
// sale, which must succeed before the sale completes.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ahmadzakiakmal/panelchain/journal"
	"github.com/ahmadzakiakmal/panelchain/ledger"
	"github.com/ahmadzakiakmal/panelchain/logger"
	"github.com/ahmadzakiakmal/panelchain/repository"
	"github.com/ahmadzakiakmal/panelchain/repository/models"
	"github.com/shopspring/decimal"
)

// Options configure a Coordinator. Zero values fall back to defaults.
type Options struct {
	Gateway         ledger.Gateway   // defaults to ledger.Disabled
	Journal         *journal.Journal // optional
	Sequencer       Sequencer        // defaults to a LocalSequencer
	Logger          *logger.Logger
	NominalWeightKg decimal.Decimal // defaults to DefaultNominalWeightKg
	MetadataBaseURI string
	CustodianWallet string        // owner of freshly minted tokens
	TaskTimeout     time.Duration // bound of one detached ledger task, default 2m
}

// Coordinator is the only writer of asset status and ledger linkage
type Coordinator struct {
	repo       *repository.Repository
	gateway    ledger.Gateway
	guard      *Guard
	dispatcher *Dispatcher
	sequencer  Sequencer
	journal    *journal.Journal
	log        *logger.Logger

	nominalWeight decimal.Decimal
	metadataBase  string
	custodian     string
}

// New creates a coordinator over repo
func New(repo *repository.Repository, opts Options) *Coordinator {
	if opts.Gateway == nil {
		opts.Gateway = ledger.Disabled{}
	}
	if opts.Sequencer == nil {
		opts.Sequencer = NewLocalSequencer()
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if !opts.NominalWeightKg.IsPositive() {
		opts.NominalWeightKg = DefaultNominalWeightKg
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = 2 * time.Minute
	}
	log := opts.Logger.With("component", "lifecycle")

	return &Coordinator{
		repo:          repo,
		gateway:       opts.Gateway,
		guard:         NewGuard(opts.Gateway, repo, log),
		dispatcher:    NewDispatcher(opts.Gateway, opts.Journal, opts.TaskTimeout, log),
		sequencer:     opts.Sequencer,
		journal:       opts.Journal,
		log:           log,
		nominalWeight: opts.NominalWeightKg,
		metadataBase:  strings.TrimRight(opts.MetadataBaseURI, "/"),
		custodian:     opts.CustodianWallet,
	}
}

// Guard exposes the idempotency guard, e.g. for a reconciliation sweep
func (c *Coordinator) Guard() *Guard { return c.guard }

// Wait blocks until all queued ledger work has finished
func (c *Coordinator) Wait() { c.dispatcher.Wait() }

// Close drains queued ledger work; later transitions journal their ledger
// writes as skipped.
func (c *Coordinator) Close() { c.dispatcher.Close() }

// change is what a transition decides to write
type change struct {
	to     models.AssetStatus
	fields map[string]interface{}
	noop   bool
	// apply performs the extra writes that must commit with the status change
	apply func(tx *repository.Tx, asset *models.Asset) error
}

// result of a committed transition
type result struct {
	prev    models.AssetStatus
	asset   *models.Asset
	applied bool
}

// mutate loads the asset, lets decide validate it and computes the change,
// then writes it guarded by the asset version together with the audit row, all
// in one transaction. A lost race is re-evaluated once against the fresh row.
func (c *Coordinator) mutate(ctx context.Context, op, assetID, actorID string, decide func(asset *models.Asset) (*change, error)) (*result, error) {
	var res result
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		res = result{}
		err = c.repo.RunTransaction(ctx, func(tx *repository.Tx) error {
			asset, err := tx.GetAsset(assetID)
			if err != nil {
				return storeErr(op, assetID, err)
			}
			res.prev = asset.Status

			ch, err := decide(asset)
			if err != nil {
				return err
			}
			if ch.noop {
				return nil
			}
			if !ch.to.Valid() {
				return &Error{Kind: KindInternal, Op: op, AssetID: assetID, Message: fmt.Sprintf("refusing undefined status %q", ch.to)}
			}

			fields := make(map[string]interface{}, len(ch.fields)+1)
			for k, v := range ch.fields {
				fields[k] = v
			}
			fields["status"] = ch.to
			if err := tx.UpdateAsset(asset.ID, asset.Version, fields); err != nil {
				return err
			}
			if ch.apply != nil {
				if err := ch.apply(tx, asset); err != nil {
					return err
				}
			}
			if ch.to != asset.Status {
				if err := tx.RecordTransition(&models.StatusTransition{
					AssetID:    asset.ID,
					Op:         op,
					FromStatus: asset.Status,
					ToStatus:   ch.to,
					ActorID:    actorID,
				}); err != nil {
					return err
				}
			}
			res.applied = true
			return nil
		})
		if errors.Is(err, repository.ErrStale) && attempt == 0 {
			c.log.Debug("asset changed concurrently, re-evaluating", "op", op, "asset_id", assetID)
			continue
		}
		break
	}
	if err != nil {
		return nil, storeErr(op, assetID, err)
	}

	asset, err := c.repo.Query(ctx).GetAsset(assetID)
	if err != nil {
		return nil, storeErr(op, assetID, err)
	}
	res.asset = asset
	return &res, nil
}

// statusStep mirrors a committed status onto the ledger. It registers the
// asset first when no registration is recorded locally, and calls
// UpdateStatus only when the ledger code actually changes.
func (c *Coordinator) statusStep(asset models.Asset, prev models.AssetStatus, note string) *Step {
	next := LedgerStatus(asset.Status, c.log)
	needRegister := asset.RegisteredAt == nil
	progressed := prev != "" && LedgerStatus(prev, c.log) != next
	if !needRegister && !progressed {
		return nil
	}

	op := OpUpdateStatus
	if !progressed {
		op = OpRegister
	}
	return &Step{
		Op:             op,
		IntendedStatus: string(next),
		Run: func(ctx context.Context) error {
			needUpdate := progressed
			if needRegister {
				reg, err := c.guard.EnsureRegistered(ctx, asset)
				if err != nil {
					return err
				}
				observed := ledger.StatusCollected
				txID := reg.TxID
				if reg.Observed != nil {
					observed = reg.Observed.Status
				}
				if err := c.repo.Query(ctx).MarkLedgerSynced(asset.ID, txID, string(observed), true); err != nil {
					return err
				}
				c.settled(OpRegister, asset.ID)
				needUpdate = observed != next
			}
			if !needUpdate {
				return nil
			}

			txID, err := c.gateway.UpdateStatus(ctx, asset.ExternalID, next, asset.Location, note)
			if err != nil {
				return err
			}
			return c.repo.Query(ctx).MarkLedgerSynced(asset.ID, txID, string(next), false)
		},
	}
}

// settled clears the journal entry of a ledger write that has since landed
// as part of another step.
func (c *Coordinator) settled(op, assetID string) {
	if c.journal == nil {
		return
	}
	if err := c.journal.Clear(op, assetID); err != nil {
		c.log.Error("failed to clear journal entry", "asset_id", assetID, "op", op, "err", err)
	}
}

// sync queues the ledger steps that follow a committed transition
func (c *Coordinator) sync(ctx context.Context, asset *models.Asset, steps ...*Step) {
	task := Task{AssetID: asset.ID, ExternalID: asset.ExternalID}
	for _, s := range steps {
		if s != nil {
			task.Steps = append(task.Steps, *s)
		}
	}
	c.dispatcher.Dispatch(ctx, task)
}

func (c *Coordinator) panelMetadataURI(assetID string) string {
	return fmt.Sprintf("%s/panels/%s.json", c.metadataBase, assetID)
}

func (c *Coordinator) artMetadataURI(artID string) string {
	return fmt.Sprintf("%s/art/%s.json", c.metadataBase, artID)
}

func (c *Coordinator) now() time.Time {
	return time.Now().UTC()
}

// GetAsset loads an asset with its relations
func (c *Coordinator) GetAsset(ctx context.Context, assetID string) (*models.Asset, error) {
	asset, err := c.repo.Query(ctx).GetAsset(assetID)
	if err != nil {
		return nil, storeErr("get_asset", assetID, err)
	}
	return asset, nil
}

// GetAssetByTag loads an asset by NFC tag or QR code
func (c *Coordinator) GetAssetByTag(ctx context.Context, nfcTag, qrCode string) (*models.Asset, error) {
	asset, err := c.repo.Query(ctx).FindAssetByTag(nfcTag, qrCode)
	if err != nil {
		return nil, storeErr("get_asset", nfcTag+qrCode, err)
	}
	return asset, nil
}

// Transitions returns the audit trail of an asset
func (c *Coordinator) Transitions(ctx context.Context, assetID string) ([]models.StatusTransition, error) {
	if _, err := c.GetAsset(ctx, assetID); err != nil {
		return nil, err
	}
	out, err := c.repo.Query(ctx).ListTransitions(assetID)
	if err != nil {
		return nil, storeErr("transitions", assetID, err)
	}
	return out, nil
}

// ListStock returns the material stock rows
func (c *Coordinator) ListStock(ctx context.Context) ([]models.MaterialStock, error) {
	out, err := c.repo.Query(ctx).ListStock()
	if err != nil {
		return nil, storeErr("list_stock", "", err)
	}
	return out, nil
}

// LedgerEntity returns the ledger view of an asset, or nil when the ledger
// has none or cannot be reached
func (c *Coordinator) LedgerEntity(ctx context.Context, assetID string) (*ledger.Entity, error) {
	asset, err := c.GetAsset(ctx, assetID)
	if err != nil {
		return nil, err
	}
	return c.gateway.GetEntity(ctx, asset.ExternalID), nil
}

// LedgerHistory returns the ledger history of an asset, empty when the
// ledger cannot be reached
func (c *Coordinator) LedgerHistory(ctx context.Context, assetID string) ([]ledger.HistoryEntry, error) {
	asset, err := c.GetAsset(ctx, assetID)
	if err != nil {
		return nil, err
	}
	return c.gateway.GetHistory(ctx, asset.ExternalID), nil
}

// PendingLedgerWrites lists the journaled ledger writes awaiting
// reconciliation
func (c *Coordinator) PendingLedgerWrites() ([]journal.Entry, error) {
	if c.journal == nil {
		return nil, nil
	}
	return c.journal.Pending()
}
