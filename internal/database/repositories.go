package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/beobridge/halo-bridge-go/internal/core/halosync"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// bindingRow is the persisted form of a halosync.Binding. The press
// override is stored as a JSON blob since it is rarely set.
type bindingRow struct {
	ButtonID      string         `db:"button_id"`
	EntityID      string         `db:"entity_id"`
	ReflectText   bool           `db:"reflect_text"`
	PressOverride sql.NullString `db:"press_override"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (r bindingRow) toBinding() (halosync.Binding, error) {
	binding := halosync.Binding{
		ButtonID:           r.ButtonID,
		EntityID:           r.EntityID,
		ReflectStateAsText: r.ReflectText,
	}
	if r.PressOverride.Valid && r.PressOverride.String != "" {
		var action halosync.ServiceAction
		if err := json.Unmarshal([]byte(r.PressOverride.String), &action); err != nil {
			return binding, fmt.Errorf("corrupt press override for button %s: %w", r.ButtonID, err)
		}
		binding.PressOverride = &action
	}
	return binding, nil
}

// BindingRepository stores the button to entity binding map.
type BindingRepository struct {
	db *sqlx.DB
}

func NewBindingRepository(db *sqlx.DB) *BindingRepository {
	return &BindingRepository{db: db}
}

// List returns all bindings.
func (r *BindingRepository) List(ctx context.Context) ([]halosync.Binding, error) {
	var rows []bindingRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT button_id, entity_id, reflect_text, press_override, updated_at
		FROM bindings ORDER BY button_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list bindings: %w", err)
	}

	bindings := make([]halosync.Binding, 0, len(rows))
	for _, row := range rows {
		binding, err := row.toBinding()
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, binding)
	}
	return bindings, nil
}

// Get returns the binding for one button.
func (r *BindingRepository) Get(ctx context.Context, buttonID string) (halosync.Binding, error) {
	var row bindingRow
	err := r.db.GetContext(ctx, &row, `
		SELECT button_id, entity_id, reflect_text, press_override, updated_at
		FROM bindings WHERE button_id = ?`, buttonID)
	if errors.Is(err, sql.ErrNoRows) {
		return halosync.Binding{}, ErrNotFound
	}
	if err != nil {
		return halosync.Binding{}, fmt.Errorf("failed to get binding: %w", err)
	}
	return row.toBinding()
}

// Upsert inserts or replaces the binding for a button.
func (r *BindingRepository) Upsert(ctx context.Context, binding halosync.Binding) error {
	var override sql.NullString
	if binding.PressOverride != nil {
		raw, err := json.Marshal(binding.PressOverride)
		if err != nil {
			return err
		}
		override = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO bindings (button_id, entity_id, reflect_text, press_override, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(button_id) DO UPDATE SET
			entity_id = excluded.entity_id,
			reflect_text = excluded.reflect_text,
			press_override = excluded.press_override,
			updated_at = CURRENT_TIMESTAMP`,
		binding.ButtonID, binding.EntityID, binding.ReflectStateAsText, override)
	if err != nil {
		return fmt.Errorf("failed to upsert binding: %w", err)
	}
	return nil
}

// Delete removes the binding for a button. Deleting a missing binding
// is not an error.
func (r *BindingRepository) Delete(ctx context.Context, buttonID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM bindings WHERE button_id = ?`, buttonID)
	if err != nil {
		return fmt.Errorf("failed to delete binding: %w", err)
	}
	return nil
}

// SnapshotRepository persists the last pushed Halo configuration so a
// restart can resume with the same button tree.
type SnapshotRepository struct {
	db *sqlx.DB
}

func NewSnapshotRepository(db *sqlx.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Save replaces the stored configuration snapshot.
func (r *SnapshotRepository) Save(ctx context.Context, payload []byte) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO configuration_snapshots (id, payload, saved_at)
		VALUES (1, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			payload = excluded.payload,
			saved_at = CURRENT_TIMESTAMP`, string(payload))
	if err != nil {
		return fmt.Errorf("failed to save configuration snapshot: %w", err)
	}
	return nil
}

// Load returns the stored configuration snapshot, or ErrNotFound when
// none has been saved yet.
func (r *SnapshotRepository) Load(ctx context.Context) ([]byte, error) {
	var payload string
	err := r.db.GetContext(ctx, &payload, `SELECT payload FROM configuration_snapshots WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration snapshot: %w", err)
	}
	return []byte(payload), nil
}
