package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/ahmadzakiakmal/panelchain/repository"
	"github.com/ahmadzakiakmal/panelchain/repository/models"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Coordinator operations
const (
	OpIntake                = "intake"
	OpRequestCollection     = "request_collection"
	OpMarkInTransit         = "mark_in_transit"
	OpReceive               = "receive"
	OpBeginInspection       = "begin_inspection"
	OpRecordInspection      = "record_inspection"
	OpBeginRefurbishment    = "begin_refurbishment"
	OpCompleteRefurbishment = "complete_refurbishment"
	OpProcessRecycle        = "process_recycle"
	OpPublishArt            = "publish_art"
	OpSellPanel             = "sell_panel"
	OpSellArt               = "sell_art"
	OpSellMaterial          = "sell_material"
)

// rule lists the legal source states of an operation. Re-entering idle is a
// successful no-op; a state in processed means the workflow already passed
// this point; anything else is an invalid transition.
type rule struct {
	from      []models.AssetStatus
	idle      models.AssetStatus
	processed []models.AssetStatus
}

var downstreamOfCollection = []models.AssetStatus{
	models.StatusWarehouseReceived, models.StatusInspecting, models.StatusInspected,
	models.StatusReadyForReuse, models.StatusArtCandidate, models.StatusRefurbishing,
	models.StatusListedForSale, models.StatusReused, models.StatusRecycled, models.StatusArtListedForSale,
}

var rules = map[string]rule{
	OpMarkInTransit: {
		from:      []models.AssetStatus{models.StatusPendingCollection},
		idle:      models.StatusInTransit,
		processed: downstreamOfCollection,
	},
	OpReceive: {
		from:      []models.AssetStatus{models.StatusInTransit},
		idle:      models.StatusWarehouseReceived,
		processed: downstreamOfCollection[1:],
	},
	OpBeginInspection: {
		from:      []models.AssetStatus{models.StatusInTransit, models.StatusWarehouseReceived},
		idle:      models.StatusInspecting,
		processed: []models.AssetStatus{models.StatusInspected, models.StatusReadyForReuse, models.StatusReused, models.StatusRecycled},
	},
	OpRecordInspection: {
		from:      []models.AssetStatus{models.StatusInspecting},
		processed: downstreamOfCollection[2:],
	},
	OpBeginRefurbishment: {
		from:      []models.AssetStatus{models.StatusReadyForReuse},
		idle:      models.StatusRefurbishing,
		processed: []models.AssetStatus{models.StatusListedForSale, models.StatusReused},
	},
	OpCompleteRefurbishment: {
		from:      []models.AssetStatus{models.StatusReadyForReuse, models.StatusRefurbishing},
		processed: []models.AssetStatus{models.StatusListedForSale, models.StatusReused},
	},
	OpPublishArt: {
		from:      []models.AssetStatus{models.StatusArtCandidate},
		processed: []models.AssetStatus{models.StatusArtListedForSale},
	},
	OpSellPanel: {
		from:      []models.AssetStatus{models.StatusListedForSale},
		processed: []models.AssetStatus{models.StatusReused},
	},
}

func contains(set []models.AssetStatus, s models.AssetStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// check classifies the asset against the rule of op
func check(op string, asset *models.Asset) (noop bool, err error) {
	r := rules[op]
	switch {
	case r.idle != "" && asset.Status == r.idle:
		return true, nil
	case contains(r.from, asset.Status):
		return false, nil
	case contains(r.processed, asset.Status):
		return false, newError(KindAlreadyProcessed, op, asset.ID, asset.Status, "panel already processed")
	}
	return false, newError(KindInvalidTransition, op, asset.ID, asset.Status, "operation not allowed in current status")
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Measurements are technical attributes; nil fields are left untouched.
type Measurements struct {
	MeasuredPowerW   *float64
	MeasuredVoltageV *float64
	HealthPercentage *float64
	LengthMM         *float64
	WidthMM          *float64
	DepthMM          *float64
}

func (m Measurements) fields(into map[string]interface{}) {
	set := func(col string, v *float64) {
		if v != nil {
			into[col] = *v
		}
	}
	set("measured_power_w", m.MeasuredPowerW)
	set("measured_voltage_v", m.MeasuredVoltageV)
	set("health_percentage", m.HealthPercentage)
	set("length_mm", m.LengthMM)
	set("width_mm", m.WidthMM)
	set("depth_mm", m.DepthMM)
}

func (m Measurements) validate(op string) error {
	if m.HealthPercentage != nil && (*m.HealthPercentage < 0 || *m.HealthPercentage > 100) {
		return validation(op, "health percentage must be within 0..100")
	}
	for _, v := range []*float64{m.MeasuredPowerW, m.MeasuredVoltageV, m.LengthMM, m.WidthMM, m.DepthMM} {
		if v != nil && *v < 0 {
			return validation(op, "measurements must not be negative")
		}
	}
	return nil
}

// IntakeInput describes a panel arriving at intake or being scanned
type IntakeInput struct {
	NFCTag              string
	QRCode              string
	Brand               string
	Model               string
	Location            string
	Note                string
	CollectionRequestID string
	ActorID             string
	Measurements
}

// Intake creates the asset for a tag or code, or, when one already exists,
// merges the non-empty fields into it and puts it back IN_TRANSIT. Panels
// that were already inspected are rejected.
func (c *Coordinator) Intake(ctx context.Context, in IntakeInput) (*models.Asset, error) {
	in.NFCTag = strings.TrimSpace(in.NFCTag)
	in.QRCode = strings.TrimSpace(in.QRCode)
	if err := in.Measurements.validate(OpIntake); err != nil {
		return nil, err
	}

	var (
		res *result
		err error
	)
	for attempt := 0; attempt < 2; attempt++ {
		res, err = c.intakeOnce(ctx, in)
		if (errors.Is(err, repository.ErrDuplicate) || errors.Is(err, repository.ErrStale)) && attempt == 0 {
			// Another intake for the same tag won the race; merge into it.
			continue
		}
		break
	}
	if err != nil {
		return nil, storeErr(OpIntake, in.NFCTag+in.QRCode, err)
	}

	if res.applied {
		c.sync(ctx, res.asset, c.statusStep(*res.asset, res.prev, "intake"))
	}
	return res.asset, nil
}

func (c *Coordinator) intakeOnce(ctx context.Context, in IntakeInput) (*result, error) {
	res := &result{}
	var assetID string

	err := c.repo.RunTransaction(ctx, func(tx *repository.Tx) error {
		existing, err := tx.FindAssetByTag(in.NFCTag, in.QRCode)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			asset := &models.Asset{
				ID:                  repository.NewID(repository.PrefixAsset),
				NFCTag:              strPtr(in.NFCTag),
				QRCode:              strPtr(in.QRCode),
				Status:              models.StatusInTransit,
				Brand:               in.Brand,
				ModelName:           in.Model,
				Location:            in.Location,
				Note:                in.Note,
				CollectionRequestID: strPtr(in.CollectionRequestID),
				MeasuredPowerW:      in.MeasuredPowerW,
				MeasuredVoltageV:    in.MeasuredVoltageV,
				HealthPercentage:    in.HealthPercentage,
				LengthMM:            in.LengthMM,
				WidthMM:             in.WidthMM,
				DepthMM:             in.DepthMM,
			}
			asset.ExternalID = externalIDFor(asset)
			if err := tx.CreateAsset(asset); err != nil {
				return err
			}
			assetID = asset.ID
			res.applied = true
			return tx.RecordTransition(&models.StatusTransition{
				AssetID:  asset.ID,
				Op:       OpIntake,
				ToStatus: models.StatusInTransit,
				ActorID:  in.ActorID,
			})
		case err != nil:
			return err
		}

		if !intakeAllowed(existing) {
			return newError(KindAlreadyProcessed, OpIntake, existing.ID, existing.Status, "panel already processed")
		}
		assetID = existing.ID
		res.prev = existing.Status

		fields := map[string]interface{}{"status": models.StatusInTransit}
		merge := func(col, v string) {
			if v != "" {
				fields[col] = v
			}
		}
		merge("brand", in.Brand)
		merge("model", in.Model)
		merge("location", in.Location)
		merge("note", in.Note)
		merge("collection_request_id", in.CollectionRequestID)
		if existing.NFCTag == nil {
			merge("nfc_tag", in.NFCTag)
		}
		if existing.QRCode == nil {
			merge("qr_code", in.QRCode)
		}
		in.Measurements.fields(fields)

		if err := tx.UpdateAsset(existing.ID, existing.Version, fields); err != nil {
			return err
		}
		res.applied = true
		if existing.Status == models.StatusInTransit {
			return nil
		}
		return tx.RecordTransition(&models.StatusTransition{
			AssetID:    existing.ID,
			Op:         OpIntake,
			FromStatus: existing.Status,
			ToStatus:   models.StatusInTransit,
			ActorID:    in.ActorID,
		})
	})
	if err != nil {
		return nil, err
	}

	asset, err := c.repo.Query(ctx).GetAsset(assetID)
	if err != nil {
		return nil, err
	}
	res.asset = asset
	return res, nil
}

// intakeAllowed reports whether an existing panel may be put back in
// transit. Once inspected, the single inspection record fixes its branch.
func intakeAllowed(asset *models.Asset) bool {
	if asset.Status.Terminal() || asset.Inspection != nil {
		return false
	}
	return !contains(downstreamOfCollection[2:], asset.Status)
}

// externalIDFor picks the ledger key: the NFC tag, else the QR code, else the
// internal id. It never changes after creation.
func externalIDFor(a *models.Asset) string {
	switch {
	case a.NFCTag != nil:
		return *a.NFCTag
	case a.QRCode != nil:
		return *a.QRCode
	}
	return a.ID
}

// PanelDescriptor is one panel listed on a collection request
type PanelDescriptor struct {
	NFCTag string
	QRCode string
	Brand  string
	Model  string
}

// CollectionInput is a pickup request for one or more panels
type CollectionInput struct {
	RequesterID   string
	PickupAddress string
	Notes         string
	Panels        []PanelDescriptor
}

// RequestCollection records a pickup request and creates its panels in
// PENDING_COLLECTION. A panel whose tag or code is already tracked fails the
// whole request with Conflict.
func (c *Coordinator) RequestCollection(ctx context.Context, in CollectionInput) (*models.CollectionRequest, []models.Asset, error) {
	if in.RequesterID == "" {
		return nil, nil, validation(OpRequestCollection, "requester id is required")
	}
	if len(in.Panels) == 0 {
		return nil, nil, validation(OpRequestCollection, "at least one panel is required")
	}

	req := &models.CollectionRequest{
		ID:            repository.NewID(repository.PrefixRequest),
		RequesterID:   in.RequesterID,
		PickupAddress: in.PickupAddress,
		Notes:         in.Notes,
	}
	assets := make([]models.Asset, 0, len(in.Panels))

	err := c.repo.RunTransaction(ctx, func(tx *repository.Tx) error {
		if err := tx.CreateCollectionRequest(req); err != nil {
			return err
		}
		for _, p := range in.Panels {
			tag, code := strings.TrimSpace(p.NFCTag), strings.TrimSpace(p.QRCode)
			if tag != "" || code != "" {
				if existing, err := tx.FindAssetByTag(tag, code); err == nil {
					return newError(KindConflict, OpRequestCollection, existing.ID, existing.Status, "panel is already tracked")
				} else if !errors.Is(err, repository.ErrNotFound) {
					return err
				}
			}
			asset := models.Asset{
				ID:                  repository.NewID(repository.PrefixAsset),
				NFCTag:              strPtr(tag),
				QRCode:              strPtr(code),
				Status:              models.StatusPendingCollection,
				Brand:               p.Brand,
				ModelName:           p.Model,
				Location:            in.PickupAddress,
				CollectionRequestID: &req.ID,
			}
			asset.ExternalID = externalIDFor(&asset)
			if err := tx.CreateAsset(&asset); err != nil {
				return err
			}
			if err := tx.RecordTransition(&models.StatusTransition{
				AssetID:  asset.ID,
				Op:       OpRequestCollection,
				ToStatus: models.StatusPendingCollection,
				ActorID:  in.RequesterID,
			}); err != nil {
				return err
			}
			assets = append(assets, asset)
		}
		return nil
	})
	if err != nil {
		return nil, nil, storeErr(OpRequestCollection, "", err)
	}

	for i := range assets {
		c.sync(ctx, &assets[i], c.statusStep(assets[i], "", "collection requested"))
	}
	return req, assets, nil
}

// simple runs a status-only transition governed by the rule of op
func (c *Coordinator) simple(ctx context.Context, op, assetID, actorID string, to models.AssetStatus, note string) (*models.Asset, error) {
	res, err := c.mutate(ctx, op, assetID, actorID, func(asset *models.Asset) (*change, error) {
		noop, err := check(op, asset)
		if err != nil || noop {
			return &change{noop: true}, err
		}
		return &change{to: to}, nil
	})
	if err != nil {
		return nil, err
	}
	if res.applied {
		c.sync(ctx, res.asset, c.statusStep(*res.asset, res.prev, note))
	}
	return res.asset, nil
}

// MarkInTransit records the pickup of a pending panel
func (c *Coordinator) MarkInTransit(ctx context.Context, assetID, actorID string) (*models.Asset, error) {
	return c.simple(ctx, OpMarkInTransit, assetID, actorID, models.StatusInTransit, "picked up")
}

// ReceiveAtWarehouse records the arrival of a panel at the warehouse
func (c *Coordinator) ReceiveAtWarehouse(ctx context.Context, assetID, actorID string) (*models.Asset, error) {
	return c.simple(ctx, OpReceive, assetID, actorID, models.StatusWarehouseReceived, "received at warehouse")
}

// BeginRefurbishment starts refurbishing a panel approved for reuse
func (c *Coordinator) BeginRefurbishment(ctx context.Context, assetID, actorID string) (*models.Asset, error) {
	return c.simple(ctx, OpBeginRefurbishment, assetID, actorID, models.StatusRefurbishing, "refurbishment started")
}

// BeginInspection moves the asset to INSPECTING. Calling it again while the
// asset is INSPECTING succeeds without changing the recorded inspector or
// start time.
func (c *Coordinator) BeginInspection(ctx context.Context, assetID, inspectorID string) (*models.Asset, error) {
	if inspectorID == "" {
		return nil, validation(OpBeginInspection, "inspector id is required")
	}
	res, err := c.mutate(ctx, OpBeginInspection, assetID, inspectorID, func(asset *models.Asset) (*change, error) {
		noop, err := check(OpBeginInspection, asset)
		if err != nil || noop {
			return &change{noop: true}, err
		}
		fields := map[string]interface{}{}
		if asset.InspectorID == nil {
			fields["inspector_id"] = inspectorID
		}
		if asset.InspectionStartedAt == nil {
			fields["inspection_started_at"] = c.now()
		}
		return &change{to: models.StatusInspecting, fields: fields}, nil
	})
	if err != nil {
		return nil, err
	}
	if res.applied {
		c.sync(ctx, res.asset, c.statusStep(*res.asset, res.prev, "inspection started"))
	}
	return res.asset, nil
}

// InspectionInput is the result of inspecting a panel. An empty Outcome is
// drawn from the triage sequencer.
type InspectionInput struct {
	AssetID          string
	InspectorID      string
	Outcome          models.Outcome
	HealthPercentage *float64
	MeasuredPowerW   *float64
	MeasuredVoltageV *float64
	Defects          []string
	Notes            string
}

var outcomeStatus = map[models.Outcome]models.AssetStatus{
	models.OutcomeReuse:   models.StatusReadyForReuse,
	models.OutcomeRecycle: models.StatusInspected,
	models.OutcomeArt:     models.StatusArtCandidate,
}

// RecordInspection stores the single inspection of an asset and moves it to
// the status its outcome selects, in one transaction.
func (c *Coordinator) RecordInspection(ctx context.Context, in InspectionInput) (*models.Asset, *models.Inspection, error) {
	if in.InspectorID == "" {
		return nil, nil, validation(OpRecordInspection, "inspector id is required")
	}
	if in.Outcome != "" && !in.Outcome.Valid() {
		return nil, nil, validation(OpRecordInspection, "unknown outcome "+string(in.Outcome))
	}
	m := Measurements{HealthPercentage: in.HealthPercentage, MeasuredPowerW: in.MeasuredPowerW, MeasuredVoltageV: in.MeasuredVoltageV}
	if err := m.validate(OpRecordInspection); err != nil {
		return nil, nil, err
	}

	// Validate before drawing so a rejected call does not consume a triage slot.
	current, err := c.GetAsset(ctx, in.AssetID)
	if err != nil {
		return nil, nil, err
	}
	if err := inspectionAllowed(current); err != nil {
		return nil, nil, err
	}

	outcome := in.Outcome
	if outcome == "" {
		outcome, err = c.sequencer.Next(ctx)
		if err != nil {
			return nil, nil, &Error{Kind: KindInternal, Op: OpRecordInspection, AssetID: in.AssetID, Cause: err}
		}
	}

	defects, err := json.Marshal(nonNil(in.Defects))
	if err != nil {
		return nil, nil, validation(OpRecordInspection, "defects are not encodable")
	}
	inspection := &models.Inspection{
		ID:               repository.NewID(repository.PrefixInspection),
		AssetID:          in.AssetID,
		InspectorID:      in.InspectorID,
		Outcome:          outcome,
		HealthPercentage: in.HealthPercentage,
		MeasuredPowerW:   in.MeasuredPowerW,
		MeasuredVoltageV: in.MeasuredVoltageV,
		Defects:          datatypes.JSON(defects),
		Notes:            in.Notes,
	}

	res, err := c.mutate(ctx, OpRecordInspection, in.AssetID, in.InspectorID, func(asset *models.Asset) (*change, error) {
		if err := inspectionAllowed(asset); err != nil {
			return nil, err
		}
		fields := map[string]interface{}{}
		m.fields(fields)
		return &change{
			to:     outcomeStatus[outcome],
			fields: fields,
			apply: func(tx *repository.Tx, asset *models.Asset) error {
				if err := tx.CreateInspection(inspection); err != nil {
					if errors.Is(err, repository.ErrDuplicate) {
						return newError(KindConflict, OpRecordInspection, asset.ID, asset.Status, "panel already inspected")
					}
					return err
				}
				return nil
			},
		}, nil
	})
	if err != nil {
		return nil, nil, err
	}

	c.sync(ctx, res.asset, c.statusStep(*res.asset, res.prev, "inspection outcome "+string(outcome)))
	return res.asset, inspection, nil
}

func inspectionAllowed(asset *models.Asset) error {
	if asset.Inspection != nil {
		return newError(KindConflict, OpRecordInspection, asset.ID, asset.Status, "panel already inspected")
	}
	_, err := check(OpRecordInspection, asset)
	return err
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// RefurbishmentInput carries the measurements taken after refurbishing
type RefurbishmentInput struct {
	AssetID string
	ActorID string
	Measurements
}

// CompleteRefurbishment writes the final measurements, lists the panel for
// sale and mints its ledger token.
func (c *Coordinator) CompleteRefurbishment(ctx context.Context, in RefurbishmentInput) (*models.Asset, error) {
	if err := in.Measurements.validate(OpCompleteRefurbishment); err != nil {
		return nil, err
	}
	res, err := c.mutate(ctx, OpCompleteRefurbishment, in.AssetID, in.ActorID, func(asset *models.Asset) (*change, error) {
		if _, err := check(OpCompleteRefurbishment, asset); err != nil {
			return nil, err
		}
		fields := map[string]interface{}{"available": true}
		in.Measurements.fields(fields)
		return &change{to: models.StatusListedForSale, fields: fields}, nil
	})
	if err != nil {
		return nil, err
	}

	asset := res.asset
	c.sync(ctx, asset,
		c.statusStep(*asset, res.prev, "refurbished"),
		c.panelMintStep(asset.ID),
	)
	return asset, nil
}

func (c *Coordinator) panelMintStep(assetID string) *Step {
	return &Step{
		Op: OpMintToken,
		Run: func(ctx context.Context) error {
			_, err := c.guard.EnsurePanelToken(ctx, assetID, c.panelMetadataURI(assetID), c.custodian)
			return err
		},
	}
}

// RecycleInput requests the recycling of a panel. A nil WeightKg uses the
// configured nominal weight.
type RecycleInput struct {
	AssetID    string
	OperatorID string
	WeightKg   *decimal.Decimal
}

// ProcessRecycle decomposes the panel into materials. The recycle record, the
// stock increments and the RECYCLED status commit together; the batched
// material mint follows detached, and its failure leaves them in place.
func (c *Coordinator) ProcessRecycle(ctx context.Context, in RecycleInput) (*models.RecycleRecord, error) {
	weight := c.nominalWeight
	if in.WeightKg != nil {
		weight = *in.WeightKg
	}
	breakdown, err := Decompose(weight)
	if err != nil {
		return nil, validation(OpProcessRecycle, err.Error())
	}

	record := &models.RecycleRecord{
		ID:         repository.NewID(repository.PrefixRecycle),
		AssetID:    in.AssetID,
		OperatorID: in.OperatorID,
	}
	breakdown.record(record)

	res, err := c.mutate(ctx, OpProcessRecycle, in.AssetID, in.OperatorID, func(asset *models.Asset) (*change, error) {
		if asset.RecycleRecord != nil {
			return nil, newError(KindConflict, OpProcessRecycle, asset.ID, asset.Status, "panel already recycled")
		}
		recycleOutcome := asset.Inspection != nil && asset.Inspection.Outcome == models.OutcomeRecycle
		if asset.Status != models.StatusRecycled && asset.Status != models.StatusInspected && !recycleOutcome {
			return nil, newError(KindInvalidTransition, OpProcessRecycle, asset.ID, asset.Status, "panel is not marked for recycling")
		}
		return &change{
			to:     models.StatusRecycled,
			fields: map[string]interface{}{"available": false},
			apply: func(tx *repository.Tx, asset *models.Asset) error {
				if err := tx.CreateRecycleRecord(record); err != nil {
					if errors.Is(err, repository.ErrDuplicate) {
						return newError(KindConflict, OpProcessRecycle, asset.ID, asset.Status, "panel already recycled")
					}
					return err
				}
				for _, q := range breakdown.Quantities {
					if err := tx.IncrementStock(q.Kind, q.Quantity); err != nil {
						return err
					}
				}
				return nil
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}

	asset := res.asset
	c.sync(ctx, asset,
		c.statusStep(*asset, res.prev, "recycled"),
		c.materialMintStep(*asset, record.ID),
	)
	return record, nil
}

func (c *Coordinator) materialMintStep(asset models.Asset, recycleID string) *Step {
	return &Step{
		Op: OpMintMaterials,
		Run: func(ctx context.Context) error {
			current, err := c.repo.Query(ctx).GetAsset(asset.ID)
			if err != nil {
				return err
			}
			rec := current.RecycleRecord
			if rec == nil || rec.ID != recycleID {
				return errors.New("recycle record missing")
			}
			if rec.MintTxHash != nil {
				return nil
			}
			txID, err := c.gateway.MintMaterials(ctx, breakdownOf(rec).batch(asset.ExternalID, c.custodian))
			if err != nil {
				return err
			}
			return c.repo.Query(ctx).SetRecycleMintTx(rec.ID, txID)
		},
	}
}

// ArtInput describes the artwork made from an art candidate
type ArtInput struct {
	AssetID     string
	ArtistID    string
	Title       string
	Description string
}

// PublishArt creates the art piece of a candidate panel, lists it and mints
// its token.
func (c *Coordinator) PublishArt(ctx context.Context, in ArtInput) (*models.ArtPiece, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, validation(OpPublishArt, "title is required")
	}

	artID := repository.NewID(repository.PrefixArt)
	piece := &models.ArtPiece{
		ID:          artID,
		AssetID:     in.AssetID,
		ArtistID:    in.ArtistID,
		Title:       in.Title,
		Description: in.Description,
		MetadataURI: c.artMetadataURI(artID),
		Available:   true,
	}

	res, err := c.mutate(ctx, OpPublishArt, in.AssetID, in.ArtistID, func(asset *models.Asset) (*change, error) {
		if asset.ArtPiece != nil {
			return nil, newError(KindConflict, OpPublishArt, asset.ID, asset.Status, "art piece already exists")
		}
		if _, err := check(OpPublishArt, asset); err != nil {
			return nil, err
		}
		return &change{
			to: models.StatusArtListedForSale,
			apply: func(tx *repository.Tx, asset *models.Asset) error {
				if err := tx.CreateArtPiece(piece); err != nil {
					if errors.Is(err, repository.ErrDuplicate) {
						return newError(KindConflict, OpPublishArt, asset.ID, asset.Status, "art piece already exists")
					}
					return err
				}
				return nil
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}

	c.sync(ctx, res.asset,
		c.statusStep(*res.asset, res.prev, "art listed"),
		&Step{
			Op: OpMintArt,
			Run: func(ctx context.Context) error {
				_, err := c.guard.EnsureArtToken(ctx, piece.ID, piece.MetadataURI, c.custodian)
				return err
			},
		},
	)
	return piece, nil
}
