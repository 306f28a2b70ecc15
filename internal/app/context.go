package app

import (
	"context"
	"database/sql"

	"nudgeline/internal/config"
	"nudgeline/internal/db"
	"nudgeline/internal/engine"
	"nudgeline/internal/migrate"
)

// Runtime bundles an open database and a ready engine for CLI commands.
type Runtime struct {
	DB     *sql.DB
	Engine engine.Engine
}

// Open prepares a workspace end to end: database, migrations, config and the
// persisted flag snapshot. Missing nudgeline.yml falls back to defaults so
// read-only commands work before nl init.
func Open(ctx context.Context, workspace string) (*Runtime, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	eng := engine.New(conn, cfg)
	if err := eng.Gate.Load(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return &Runtime{DB: conn, Engine: eng}, nil
}

func (rt *Runtime) Close() error {
	return rt.DB.Close()
}
