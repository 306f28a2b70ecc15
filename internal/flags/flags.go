// Package flags is the runtime gate for engine behavior. Flags persist in
// SQLite and are served from an immutable in-memory snapshot so hot-path
// reads never touch the database.
package flags

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"nudgeline/internal/domain"
	"nudgeline/internal/events"
	"nudgeline/internal/repo"
)

// Well-known flag keys.
const (
	KeyEngineEnabled = "engine.enabled"
)

// Generation modes.
const (
	ModeOff    = "off"
	ModeShadow = "shadow"
	ModeActive = "active"
)

// Snapshot is an immutable view of the flag set at one version. Readers
// holding a snapshot see consistent values for the whole request.
type Snapshot struct {
	Version int64
	Values  map[string]string
}

type Gate struct {
	Repo   repo.Repo
	Events events.Writer
	Now    func() time.Time

	current atomic.Pointer[Snapshot]
}

func New(r repo.Repo, w events.Writer) *Gate {
	g := &Gate{Repo: r, Events: w, Now: time.Now}
	g.current.Store(&Snapshot{Values: map[string]string{}})
	return g
}

// Load refreshes the in-memory snapshot from the database.
func (g *Gate) Load(ctx context.Context) error {
	version, err := g.Repo.FlagVersion(ctx)
	if err != nil {
		return err
	}
	list, err := g.Repo.ListFlags(ctx)
	if err != nil {
		return err
	}
	values := make(map[string]string, len(list))
	for _, f := range list {
		values[f.Key] = f.Value
	}
	g.current.Store(&Snapshot{Version: version, Values: values})
	return nil
}

// Current returns the live snapshot.
func (g *Gate) Current() Snapshot {
	return *g.current.Load()
}

// Set persists a flag, bumps the flag-set version, records a flag.updated
// event and refreshes the snapshot.
func (g *Gate) Set(ctx context.Context, key, value, actorID string) (Snapshot, error) {
	if key == "" {
		return Snapshot{}, fmt.Errorf("flag key required")
	}
	tx, err := g.Repo.DB.BeginTx(ctx, nil)
	if err != nil {
		return Snapshot{}, err
	}
	defer tx.Rollback()
	now := g.Now().UTC().Format(time.RFC3339)
	if err := g.Repo.UpsertFlagTx(ctx, tx, repo.Flag{Key: key, Value: value, UpdatedBy: actorID, UpdatedAt: now}); err != nil {
		return Snapshot{}, err
	}
	version, err := g.Repo.BumpFlagVersionTx(ctx, tx)
	if err != nil {
		return Snapshot{}, err
	}
	err = g.Events.Append(ctx, tx, "flag.updated", "", "flag", key, actorID, events.EventPayload{
		"key":     key,
		"value":   value,
		"version": version,
	})
	if err != nil {
		return Snapshot{}, err
	}
	if err := tx.Commit(); err != nil {
		return Snapshot{}, err
	}
	if err := g.Load(ctx); err != nil {
		return Snapshot{}, err
	}
	return g.Current(), nil
}

// Enabled reports the global kill switch; absent means on.
func (s Snapshot) Enabled() bool {
	return s.boolValue(KeyEngineEnabled, true)
}

// TriggerEnabled reports whether a trigger type is admitted; absent means on.
func (s Snapshot) TriggerEnabled(triggerType string) bool {
	return s.boolValue("trigger."+triggerType+".enabled", true)
}

// GenerationMode returns off, shadow or active for a generation. Autopilot
// defaults to active, everything else to off.
func (s Snapshot) GenerationMode(generation string) string {
	v, ok := s.Values["generation."+generation+".mode"]
	if !ok || v == "" {
		if generation == domain.GenerationAutopilot {
			return ModeActive
		}
		return ModeOff
	}
	switch v {
	case ModeOff, ModeShadow, ModeActive:
		return v
	}
	return ModeOff
}

func (s Snapshot) boolValue(key string, def bool) bool {
	v, ok := s.Values[key]
	if !ok {
		return def
	}
	return v == "true" || v == "1" || v == "on"
}
