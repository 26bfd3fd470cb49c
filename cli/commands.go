package cli

import (
	"context"
	"fmt"

	"github.com/ahmadzakiakmal/panelchain/lifecycle"
	"github.com/ahmadzakiakmal/panelchain/repository/models"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// measurementFlags registers the technical attribute flags; only flags the
// operator actually set are applied.
type measurementFlags struct {
	power, voltage, health, length, width, depth float64
}

func (m *measurementFlags) register(fs *pflag.FlagSet) {
	fs.Float64Var(&m.power, "power", 0, "measured power (W)")
	fs.Float64Var(&m.voltage, "voltage", 0, "measured voltage (V)")
	fs.Float64Var(&m.health, "health", 0, "health percentage (0-100)")
	fs.Float64Var(&m.length, "length", 0, "length (mm)")
	fs.Float64Var(&m.width, "width", 0, "width (mm)")
	fs.Float64Var(&m.depth, "depth", 0, "depth (mm)")
}

func (m *measurementFlags) values(fs *pflag.FlagSet) lifecycle.Measurements {
	pick := func(name string, v float64) *float64 {
		if !fs.Changed(name) {
			return nil
		}
		return &v
	}
	return lifecycle.Measurements{
		MeasuredPowerW:   pick("power", m.power),
		MeasuredVoltageV: pick("voltage", m.voltage),
		HealthPercentage: pick("health", m.health),
		LengthMM:         pick("length", m.length),
		WidthMM:          pick("width", m.width),
		DepthMM:          pick("depth", m.depth),
	}
}

// NewMigrateCommand creates the schema migration command
func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the asset store schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, app *App) (interface{}, error) {
				// Open already migrated; report the active store.
				store := "postgres"
				if app.Config.Database.SQLitePath != "" {
					store = "sqlite:" + app.Config.Database.SQLitePath
				}
				return map[string]string{"store": store, "schema": "up to date"}, nil
			})
		},
	}
}

// NewIntakeCommand creates the intake command
func NewIntakeCommand(opts *RootOptions) *cobra.Command {
	var (
		in lifecycle.IntakeInput
		m  measurementFlags
	)
	cmd := &cobra.Command{
		Use:   "intake",
		Short: "Register a panel arriving by NFC tag or QR code",
		Long: `Register a panel arriving by NFC tag or QR code.

A panel already known by its tag or code is updated and put back IN_TRANSIT.

Example:
  panelchain intake --nfc NFC-1 --brand Longi --model "Hi-MO 5" --location "Depot A"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if in.NFCTag == "" && in.QRCode == "" {
				return &ExitError{Code: ExitCommandError, Err: fmt.Errorf("one of --nfc or --qr is required")}
			}
			in.Measurements = m.values(cmd.Flags())
			return run(cmd, opts, func(ctx context.Context, app *App) (interface{}, error) {
				return app.Coordinator.Intake(ctx, in)
			})
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&in.NFCTag, "nfc", "", "NFC tag")
	fs.StringVar(&in.QRCode, "qr", "", "QR code")
	fs.StringVar(&in.Brand, "brand", "", "panel brand")
	fs.StringVar(&in.Model, "model", "", "panel model")
	fs.StringVar(&in.Location, "location", "", "current location")
	fs.StringVar(&in.Note, "note", "", "free text note")
	fs.StringVar(&in.CollectionRequestID, "request", "", "originating collection request id")
	fs.StringVar(&in.ActorID, "actor", "", "operator id")
	m.register(fs)
	return cmd
}

// NewCollectCommand creates the collection request command
func NewCollectCommand(opts *RootOptions) *cobra.Command {
	var (
		in   lifecycle.CollectionInput
		nfcs []string
		qrs  []string
	)
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Request the pickup of one or more panels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, tag := range nfcs {
				in.Panels = append(in.Panels, lifecycle.PanelDescriptor{NFCTag: tag})
			}
			for _, code := range qrs {
				in.Panels = append(in.Panels, lifecycle.PanelDescriptor{QRCode: code})
			}
			return run(cmd, opts, func(ctx context.Context, app *App) (interface{}, error) {
				req, assets, err := app.Coordinator.RequestCollection(ctx, in)
				if err != nil {
					return nil, err
				}
				return map[string]interface{}{"request": req, "assets": assets}, nil
			})
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&in.RequesterID, "requester", "", "requester id")
	fs.StringVar(&in.PickupAddress, "address", "", "pickup address")
	fs.StringVar(&in.Notes, "notes", "", "request notes")
	fs.StringSliceVar(&nfcs, "nfc", nil, "NFC tags of the panels")
	fs.StringSliceVar(&qrs, "qr", nil, "QR codes of the panels")
	return cmd
}

func assetCommand(opts *RootOptions, use, short string, op func(c *lifecycle.Coordinator, ctx context.Context, id, actor string) (*models.Asset, error)) *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   use + " <asset-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, app *App) (interface{}, error) {
				return op(app.Coordinator, ctx, args[0], actor)
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "operator id")
	return cmd
}

// NewTransitCommand records the pickup of a pending panel
func NewTransitCommand(opts *RootOptions) *cobra.Command {
	return assetCommand(opts, "transit", "Mark a pending panel as picked up", (*lifecycle.Coordinator).MarkInTransit)
}

// NewReceiveCommand records the arrival of a panel at the warehouse
func NewReceiveCommand(opts *RootOptions) *cobra.Command {
	return assetCommand(opts, "receive", "Receive a panel at the warehouse", (*lifecycle.Coordinator).ReceiveAtWarehouse)
}

// NewInspectCommand groups the inspection commands
func NewInspectCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Inspect panels",
	}

	begin := assetCommand(opts, "begin", "Start inspecting a panel", (*lifecycle.Coordinator).BeginInspection)
	begin.Flags().Lookup("actor").Usage = "inspector id"

	var (
		in      lifecycle.InspectionInput
		outcome string
	)
	record := &cobra.Command{
		Use:   "record <asset-id>",
		Short: "Record the inspection outcome of a panel",
		Long: `Record the inspection outcome of a panel.

--outcome is one of REUSE, RECYCLE or ART. Without it the next outcome of the
triage rotation is used.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.AssetID = args[0]
			in.Outcome = models.Outcome(outcome)
			fs := cmd.Flags()
			var m measurementFlags
			m.health, _ = fs.GetFloat64("health")
			m.power, _ = fs.GetFloat64("power")
			m.voltage, _ = fs.GetFloat64("voltage")
			vals := m.values(fs)
			in.HealthPercentage, in.MeasuredPowerW, in.MeasuredVoltageV = vals.HealthPercentage, vals.MeasuredPowerW, vals.MeasuredVoltageV
			return run(cmd, opts, func(ctx context.Context, app *App) (interface{}, error) {
				asset, inspection, err := app.Coordinator.RecordInspection(ctx, in)
				if err != nil {
					return nil, err
				}
				return map[string]interface{}{"asset": asset, "inspection": inspection}, nil
			})
		},
	}
	fs := record.Flags()
	fs.StringVar(&in.InspectorID, "inspector", "", "inspector id")
	fs.StringVar(&outcome, "outcome", "", "REUSE, RECYCLE or ART")
	fs.Float64("health", 0, "health percentage (0-100)")
	fs.Float64("power", 0, "measured power (W)")
	fs.Float64("voltage", 0, "measured voltage (V)")
	fs.StringSliceVar(&in.Defects, "defect", nil, "observed defect, repeatable")
	fs.StringVar(&in.Notes, "notes", "", "inspection notes")

	cmd.AddCommand(begin, record)
	return cmd
}

// NewRefurbishCommand groups the refurbishment commands
func NewRefurbishCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refurbish",
		Short: "Refurbish panels approved for reuse",
	}

	start := assetCommand(opts, "start", "Start refurbishing a panel", (*lifecycle.Coordinator).BeginRefurbishment)

	var (
		actor string
		m     measurementFlags
	)
	complete := &cobra.Command{
		Use:   "complete <asset-id>",
		Short: "Finish refurbishing and list the panel for sale",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := lifecycle.RefurbishmentInput{AssetID: args[0], ActorID: actor, Measurements: m.values(cmd.Flags())}
			return run(cmd, opts, func(ctx context.Context, app *App) (interface{}, error) {
				return app.Coordinator.CompleteRefurbishment(ctx, in)
			})
		},
	}
	complete.Flags().StringVar(&actor, "actor", "", "technician id")
	m.register(complete.Flags())

	cmd.AddCommand(start, complete)
	return cmd
}

// NewRecycleCommand creates the recycle command
func NewRecycleCommand(opts *RootOptions) *cobra.Command {
	var operator, weight string
	cmd := &cobra.Command{
		Use:   "recycle <asset-id>",
		Short: "Recycle a panel into material stock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := lifecycle.RecycleInput{AssetID: args[0], OperatorID: operator}
			if weight != "" {
				w, err := decimal.NewFromString(weight)
				if err != nil {
					return &ExitError{Code: ExitCommandError, Err: fmt.Errorf("invalid --weight %q: %w", weight, err)}
				}
				in.WeightKg = &w
			}
			return run(cmd, opts, func(ctx context.Context, app *App) (interface{}, error) {
				return app.Coordinator.ProcessRecycle(ctx, in)
			})
		},
	}
	cmd.Flags().StringVar(&operator, "operator", "", "operator id")
	cmd.Flags().StringVar(&weight, "weight", "", "panel weight in kg (defaults to the configured nominal weight)")
	return cmd
}

// NewArtCommand groups the art commands
func NewArtCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "art",
		Short: "Turn art candidates into art pieces",
	}

	var in lifecycle.ArtInput
	publish := &cobra.Command{
		Use:   "publish <asset-id>",
		Short: "Publish the art piece made from a panel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.AssetID = args[0]
			return run(cmd, opts, func(ctx context.Context, app *App) (interface{}, error) {
				return app.Coordinator.PublishArt(ctx, in)
			})
		},
	}
	publish.Flags().StringVar(&in.ArtistID, "artist", "", "artist id")
	publish.Flags().StringVar(&in.Title, "title", "", "title of the piece")
	publish.Flags().StringVar(&in.Description, "description", "", "description of the piece")

	cmd.AddCommand(publish)
	return cmd
}

// NewSellCommand groups the sale commands
func NewSellCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sell",
		Short: "Sell panels, art pieces and materials",
	}

	var wallet string
	cmd.PersistentFlags().StringVar(&wallet, "wallet", "", "buyer wallet address")

	panel := &cobra.Command{
		Use:   "panel <asset-id>",
		Short: "Sell a listed panel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, app *App) (interface{}, error) {
				return app.Coordinator.SellPanel(ctx, args[0], wallet)
			})
		},
	}
	art := &cobra.Command{
		Use:   "art <art-id>",
		Short: "Sell an available art piece",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, app *App) (interface{}, error) {
				return app.Coordinator.SellArt(ctx, args[0], wallet)
			})
		},
	}
	material := &cobra.Command{
		Use:   "material <kind> <quantity>",
		Short: "Sell recovered material from stock",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := decimal.NewFromString(args[1])
			if err != nil {
				return &ExitError{Code: ExitCommandError, Err: fmt.Errorf("invalid quantity %q: %w", args[1], err)}
			}
			return run(cmd, opts, func(ctx context.Context, app *App) (interface{}, error) {
				return app.Coordinator.SellMaterial(ctx, models.MaterialKind(args[0]), qty, wallet)
			})
		},
	}

	cmd.AddCommand(panel, art, material)
	return cmd
}

// NewShowCommand prints an asset
func NewShowCommand(opts *RootOptions) *cobra.Command {
	var byTag bool
	cmd := &cobra.Command{
		Use:   "show <asset-id|tag>",
		Short: "Show a panel with its inspection, recycle record and art piece",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, app *App) (interface{}, error) {
				if byTag {
					return app.Coordinator.GetAssetByTag(ctx, args[0], args[0])
				}
				return app.Coordinator.GetAsset(ctx, args[0])
			})
		},
	}
	cmd.Flags().BoolVar(&byTag, "tag", false, "look the panel up by NFC tag or QR code")
	return cmd
}

// NewHistoryCommand prints the local audit trail and the ledger history
func NewHistoryCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <asset-id>",
		Short: "Show local transitions and ledger history of a panel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, app *App) (interface{}, error) {
				trail, err := app.Coordinator.Transitions(ctx, args[0])
				if err != nil {
					return nil, err
				}
				entity, err := app.Coordinator.LedgerEntity(ctx, args[0])
				if err != nil {
					return nil, err
				}
				history, err := app.Coordinator.LedgerHistory(ctx, args[0])
				if err != nil {
					return nil, err
				}
				return map[string]interface{}{"transitions": trail, "ledger_entity": entity, "ledger_history": history}, nil
			})
		},
	}
}

// NewStockCommand prints the material stock
func NewStockCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stock",
		Short: "Show recovered material stock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, app *App) (interface{}, error) {
				return app.Coordinator.ListStock(ctx)
			})
		},
	}
}

// NewJournalCommand lists ledger writes awaiting reconciliation
func NewJournalCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "journal",
		Short: "List ledger writes that were skipped or failed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, app *App) (interface{}, error) {
				return app.Coordinator.PendingLedgerWrites()
			})
		},
	}
}
