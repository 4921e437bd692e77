package container

import (
	"context"
	"fmt"

	"mixedpower/adapters/lmm"
	rngadapter "mixedpower/adapters/rng"
	"mixedpower/adapters/sqlstore"
	"mixedpower/app"
	"mixedpower/internal"
	"mixedpower/internal/config"
	"mixedpower/internal/simulation"
	"mixedpower/ports"

	"github.com/jmoiron/sqlx"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config
	Logger *internal.Logger

	// Infrastructure
	DB *sqlx.DB

	// Ports
	Fitter  ports.Fitter
	RNG     ports.RNGPort
	Sweeps  ports.SweepRepository
	Driver  *simulation.Driver
	Service *app.SweepService
}

// New creates a container with the fitter, RNG and driver wired. Runs are
// not persisted until InitWithDatabase is called.
func New(cfg *config.Config, logger *internal.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		logger = internal.NewLogger(internal.ParseLogLevel(cfg.LogLevel))
	}

	c := &Container{
		Config: cfg,
		Logger: logger,
		Fitter: lmm.NewFitter(logger),
		RNG:    rngadapter.NewAdapter(),
		Driver: simulation.NewDriver(logger),
	}
	c.wireService()
	return c, nil
}

// InitWithDatabase opens cfg.Database.URL, applies pending migrations and
// rewires the sweep service to save runs. It is a no-op without a URL.
func (c *Container) InitWithDatabase(ctx context.Context) error {
	if c.Config.Database.URL == "" {
		return nil
	}
	db, err := sqlstore.Open(ctx, c.Config.Database.URL)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("database connection test failed: %w", err)
	}

	ran, err := sqlstore.NewMigrator(db).Up(ctx)
	if err != nil {
		db.Close()
		return err
	}
	for _, v := range ran {
		c.Logger.Info("applied migration %s", v)
	}

	c.DB = db
	c.Sweeps = sqlstore.NewSweepRepository(db)
	c.wireService()
	return nil
}

// HasDatabase reports whether runs are being persisted
func (c *Container) HasDatabase() bool {
	return c.DB != nil
}

func (c *Container) wireService() {
	c.Service = app.NewSweepService(c.Fitter, c.RNG, c.Driver, c.Sweeps, c.Logger)
}

// Shutdown releases the database connection, if any
func (c *Container) Shutdown(ctx context.Context) error {
	if c.DB != nil {
		err := c.DB.Close()
		c.DB = nil
		return err
	}
	return nil
}
