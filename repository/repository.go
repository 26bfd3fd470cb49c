package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/ahmadzakiakmal/panelchain/logger"
	"github.com/ahmadzakiakmal/panelchain/repository/models"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// ID prefixes
const (
	PrefixAsset      = "PNL"
	PrefixInspection = "INS"
	PrefixRecycle    = "RCY"
	PrefixArt        = "ART"
	PrefixOrder      = "ORD"
	PrefixRequest    = "COL"
)

// NewID returns a fresh identifier such as "PNL-1b4e28ba-2fa1-11d2-883f-0016d3cca427".
func NewID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.New().String())
}

// Repository owns persistence of every lifecycle entity
type Repository struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewRepository creates a new repository instance
func NewRepository(log *logger.Logger) *Repository {
	if log == nil {
		log = logger.NewNop()
	}
	return &Repository{log: log}
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
	}
}

// ConnectDB establishes the PostgreSQL connection and performs migrations
func (r *Repository) ConnectDB(dsn string) error {
	for i := 0; i < 10; i++ {
		r.log.Info("database connection attempt", "attempt", i+1)
		db, err := gorm.Open(postgres.Open(dsn), gormConfig())
		if err != nil {
			r.log.Warn("database connection attempt failed", "attempt", i+1, "err", err)
			time.Sleep(2 * time.Second)
			continue
		}
		r.db = db
		r.log.Info("✓ Connected to database")

		if err := r.Migrate(); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		return nil
	}
	return fmt.Errorf("failed to connect to database after 10 attempts")
}

// OpenSQLite opens a file backed store, used for local runs and tests
func (r *Repository) OpenSQLite(path string) error {
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000&_foreign_keys=on"), gormConfig())
	if err != nil {
		return fmt.Errorf("opening sqlite %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	// sqlite allows one writer at a time
	sqlDB.SetMaxOpenConns(1)
	r.db = db

	if err := r.Migrate(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// Migrate performs database schema migrations
func (r *Repository) Migrate() error {
	r.log.Debug("running database migrations")

	migrator := r.db.Migrator()

	// Order matters due to foreign keys
	tables := []interface{}{
		&models.CollectionRequest{},
		&models.Asset{},
		&models.Inspection{},
		&models.RecycleRecord{},
		&models.MaterialStock{},
		&models.ArtPiece{},
		&models.PanelOrder{},
		&models.ArtOrder{},
		&models.MaterialOrder{},
		&models.StatusTransition{},
	}

	for _, table := range tables {
		if !migrator.HasTable(table) {
			if err := migrator.CreateTable(table); err != nil {
				return fmt.Errorf("failed to create table: %w", err)
			}
		}
	}

	r.log.Debug("✓ Database migrations completed")
	return nil
}

// Close releases the underlying connection pool
func (r *Repository) Close() error {
	if r.db == nil {
		return nil
	}
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Query returns a non-transactional handle for single statement work
func (r *Repository) Query(ctx context.Context) *Tx {
	return &Tx{db: r.db.WithContext(ctx)}
}

// RunTransaction runs fn inside one database transaction. Any error returned
// by fn, or a panic, rolls back every write fn made.
func (r *Repository) RunTransaction(ctx context.Context, fn func(tx *Tx) error) error {
	gtx := r.db.WithContext(ctx).Begin()
	if gtx.Error != nil {
		return translate(gtx.Error, "failed to begin transaction")
	}

	defer func() {
		if p := recover(); p != nil {
			gtx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&Tx{db: gtx}); err != nil {
		gtx.Rollback()
		return err
	}

	if err := gtx.Commit().Error; err != nil {
		return translate(err, "failed to commit transaction")
	}
	return nil
}

// Tx exposes the store operations over either a transaction or a plain
// connection
type Tx struct {
	db *gorm.DB
}
