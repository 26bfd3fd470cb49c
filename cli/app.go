package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/ahmadzakiakmal/panelchain/config"
	"github.com/ahmadzakiakmal/panelchain/journal"
	"github.com/ahmadzakiakmal/panelchain/ledger"
	"github.com/ahmadzakiakmal/panelchain/ledger/cometledger"
	"github.com/ahmadzakiakmal/panelchain/ledger/fabricledger"
	"github.com/ahmadzakiakmal/panelchain/lifecycle"
	"github.com/ahmadzakiakmal/panelchain/logger"
	"github.com/ahmadzakiakmal/panelchain/repository"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// App is one wired coordinator with everything it owns
type App struct {
	Config      *config.Config
	Log         *logger.Logger
	Repo        *repository.Repository
	Journal     *journal.Journal
	Coordinator *lifecycle.Coordinator

	closers []func() error
}

// Open loads the configuration at path and wires the coordinator: store,
// ledger gateway, journal and triage sequencer.
func Open(ctx context.Context, path string) (*App, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	app := &App{Config: cfg, Log: log}

	if err := app.openStore(); err != nil {
		app.Close()
		return nil, err
	}

	j, err := journal.Open(cfg.Journal.Dir)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Journal = j
	app.closers = append(app.closers, j.Close)

	gateway, err := app.openLedger()
	if err != nil {
		app.Close()
		return nil, err
	}

	seq, err := app.openSequencer(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}

	weight, err := decimal.NewFromString(cfg.Recycle.NominalWeightKg)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("invalid recycle.nominal_weight_kg %q: %w", cfg.Recycle.NominalWeightKg, err)
	}

	app.Coordinator = lifecycle.New(app.Repo, lifecycle.Options{
		Gateway:         gateway,
		Journal:         j,
		Sequencer:       seq,
		Logger:          log,
		NominalWeightKg: weight,
		MetadataBaseURI: cfg.Ledger.MetadataBaseURI,
		CustodianWallet: cfg.Ledger.CustodianWallet,
		TaskTimeout:     4 * cfg.Ledger.CallTimeout,
	})
	// The coordinator drains its ledger work before anything else closes.
	app.closers = append(app.closers, func() error { app.Coordinator.Close(); return nil })
	return app, nil
}

func (a *App) openStore() error {
	repo := repository.NewRepository(a.Log)
	if path := a.Config.Database.SQLitePath; path != "" {
		if err := repo.OpenSQLite(path); err != nil {
			return err
		}
	} else if err := repo.ConnectDB(a.Config.GetDSN()); err != nil {
		return err
	}
	a.Repo = repo
	a.closers = append(a.closers, repo.Close)
	return nil
}

func (a *App) openLedger() (ledger.Gateway, error) {
	lc := a.Config.Ledger
	switch lc.Backend {
	case config.LedgerComet:
		client, err := cometledger.Dial(lc.Comet.RPCEndpoint, lc.CallTimeout, a.Log)
		if err != nil {
			return nil, err
		}
		a.Log.Info("ledger backend ready", "backend", lc.Backend, "endpoint", lc.Comet.RPCEndpoint)
		return client, nil

	case config.LedgerFabric:
		f := lc.Fabric
		conn, invoker, err := fabricledger.Connect(fabricledger.ConnectOptions{
			PeerEndpoint: f.PeerEndpoint,
			GatewayPeer:  f.GatewayPeer,
			TLSCertPath:  f.TLSCertPath,
			MSPID:        f.MSPID,
			CertPath:     f.CertPath,
			KeyPath:      f.KeyPath,
			Channel:      f.Channel,
			Chaincode:    f.Chaincode,
			Timeout:      lc.CallTimeout,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, conn.Close)
		a.Log.Info("ledger backend ready", "backend", lc.Backend, "peer", f.PeerEndpoint, "channel", f.Channel)
		return fabricledger.New(invoker, lc.CallTimeout, a.Log), nil
	}

	a.Log.Warn("no ledger configured, ledger writes will be journaled only")
	return ledger.Disabled{}, nil
}

func (a *App) openSequencer(ctx context.Context) (lifecycle.Sequencer, error) {
	tc := a.Config.Triage
	if tc.Backend != config.TriageRedis {
		return lifecycle.NewLocalSequencer(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:        tc.RedisAddr,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis %s: %w", tc.RedisAddr, err)
	}
	a.closers = append(a.closers, client.Close)
	return lifecycle.NewRedisSequencer(client, tc.RedisKey), nil
}

// Close waits for queued ledger work and releases every resource, newest
// first.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Log.Warn("close failed", "err", err)
		}
	}
	a.closers = nil
	a.Log.Sync()
}
