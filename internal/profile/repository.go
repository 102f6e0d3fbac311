package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/remapd/internal/device"
	"github.com/nerrad567/remapd/internal/infrastructure/database"
)

// Repository persists snapshots.
type Repository interface {
	// Load returns the saved snapshot, or ErrNoSnapshot if none exists.
	Load(ctx context.Context) (Snapshot, error)

	// Save replaces the saved snapshot.
	Save(ctx context.Context, s Snapshot) error
}

// SQLiteRepository stores snapshots in the profiles, profile_devices,
// plugins, bindings and context_state tables.
type SQLiteRepository struct {
	db *database.DB
}

// NewSQLiteRepository creates a repository on a migrated database.
func NewSQLiteRepository(db *database.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Save writes s in one transaction, replacing whatever was stored.
func (r *SQLiteRepository) Save(ctx context.Context, s Snapshot) error {
	now := time.Now().UTC().Format(time.RFC3339)

	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		// plugins, bindings and profile_devices cascade from profiles.
		for _, stmt := range []string{"DELETE FROM profiles", "DELETE FROM context_state"} {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("clearing snapshot: %w", err)
			}
		}

		for _, p := range s.Profiles {
			if err := insertProfile(ctx, tx, p, now); err != nil {
				return err
			}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO context_state (id, schema_version, active_profile_id, saved_at)
			VALUES (1, ?, ?, ?)`,
			s.SchemaVersion, nullableString(s.ActiveProfile), now)
		if err != nil {
			return fmt.Errorf("saving context state: %w", err)
		}
		return nil
	})
}

func insertProfile(ctx context.Context, tx *sql.Tx, p ProfileRecord, now string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO profiles (id, parent_id, title, position, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, nullableString(p.ParentID), p.Title, p.Position, now, now)
	if err != nil {
		return fmt.Errorf("inserting profile %s: %w", p.ID, err)
	}

	for _, ref := range p.Devices {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO profile_devices (profile_id, direction, device_type, provider_id)
			VALUES (?, ?, ?, ?)`,
			p.ID, string(ref.Direction), string(ref.DeviceType), ref.ProviderID)
		if err != nil {
			return fmt.Errorf("inserting device group of %s: %w", p.ID, err)
		}
	}

	for i, pl := range p.Plugins {
		settings, err := marshalSettings(pl.Settings)
		if err != nil {
			return fmt.Errorf("encoding settings of %s: %w", pl.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO plugins (id, profile_id, kind, title, position, settings)
			VALUES (?, ?, ?, ?, ?, ?)`,
			pl.ID, p.ID, pl.Kind, pl.Title, i, settings)
		if err != nil {
			return fmt.Errorf("inserting plugin %s: %w", pl.ID, err)
		}

		for _, set := range []struct {
			dir   device.Direction
			slots []device.Descriptor
		}{{device.Input, pl.Inputs}, {device.Output, pl.Outputs}} {
			for slot, d := range set.slots {
				_, err := tx.ExecContext(ctx, `
					INSERT INTO bindings (plugin_id, direction, slot, is_bound, device_type,
						device_number, key_type, key_value, key_sub_value)
					VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
					pl.ID, string(set.dir), slot, boolToInt(d.IsBound), string(d.DeviceType),
					d.DeviceNumber, string(d.KeyType), d.KeyValue, d.KeySubValue)
				if err != nil {
					return fmt.Errorf("inserting binding %s/%s/%d: %w", pl.ID, set.dir, slot, err)
				}
			}
		}
	}
	return nil
}

// Load reads the stored snapshot. Rows come back in insertion order, which
// Save keeps equal to snapshot order. Binding lists come back at their stored
// length so legacy doubled lists reach PostLoad untouched.
func (r *SQLiteRepository) Load(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	var active sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT schema_version, active_profile_id FROM context_state WHERE id = 1`,
	).Scan(&s.SchemaVersion, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("querying context state: %w", err)
	}
	s.ActiveProfile = active.String

	profiles, index, err := r.loadProfiles(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	if err := r.loadDeviceRefs(ctx, profiles, index); err != nil {
		return Snapshot{}, err
	}
	if err := r.loadPlugins(ctx, profiles, index); err != nil {
		return Snapshot{}, err
	}

	s.Profiles = profiles
	return s, nil
}

func (r *SQLiteRepository) loadProfiles(ctx context.Context) ([]ProfileRecord, map[string]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, parent_id, title, position FROM profiles ORDER BY rowid`)
	if err != nil {
		return nil, nil, fmt.Errorf("querying profiles: %w", err)
	}
	defer rows.Close()

	var out []ProfileRecord
	index := make(map[string]int)
	for rows.Next() {
		var p ProfileRecord
		var parent sql.NullString
		if err := rows.Scan(&p.ID, &parent, &p.Title, &p.Position); err != nil {
			return nil, nil, fmt.Errorf("scanning profile: %w", err)
		}
		p.ParentID = parent.String
		index[p.ID] = len(out)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterating profiles: %w", err)
	}
	return out, index, nil
}

func (r *SQLiteRepository) loadDeviceRefs(ctx context.Context, profiles []ProfileRecord, index map[string]int) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT profile_id, direction, device_type, provider_id
		FROM profile_devices
		ORDER BY rowid`)
	if err != nil {
		return fmt.Errorf("querying device groups: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var profileID, dir, typ string
		var ref DeviceRef
		if err := rows.Scan(&profileID, &dir, &typ, &ref.ProviderID); err != nil {
			return fmt.Errorf("scanning device group: %w", err)
		}
		ref.Direction = device.Direction(dir)
		ref.DeviceType = device.DeviceType(typ)
		if i, ok := index[profileID]; ok {
			profiles[i].Devices = append(profiles[i].Devices, ref)
		}
	}
	return rows.Err()
}

func (r *SQLiteRepository) loadPlugins(ctx context.Context, profiles []ProfileRecord, index map[string]int) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, profile_id, kind, title, settings
		FROM plugins
		ORDER BY profile_id, position`)
	if err != nil {
		return fmt.Errorf("querying plugins: %w", err)
	}

	type loc struct{ profile, plugin int }
	where := make(map[string]loc)
	for rows.Next() {
		var pl PluginRecord
		var profileID, settings string
		if err := rows.Scan(&pl.ID, &profileID, &pl.Kind, &pl.Title, &settings); err != nil {
			rows.Close()
			return fmt.Errorf("scanning plugin: %w", err)
		}
		if pl.Settings, err = unmarshalSettings(settings); err != nil {
			rows.Close()
			return fmt.Errorf("decoding settings of %s: %w", pl.ID, err)
		}
		i, ok := index[profileID]
		if !ok {
			continue
		}
		where[pl.ID] = loc{i, len(profiles[i].Plugins)}
		profiles[i].Plugins = append(profiles[i].Plugins, pl)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterating plugins: %w", err)
	}
	rows.Close()

	brows, err := r.db.QueryContext(ctx, `
		SELECT plugin_id, direction, slot, is_bound, device_type, device_number,
			key_type, key_value, key_sub_value
		FROM bindings
		ORDER BY plugin_id, direction, slot`)
	if err != nil {
		return fmt.Errorf("querying bindings: %w", err)
	}
	defer brows.Close()

	for brows.Next() {
		var pluginID, dir, devType, keyType string
		var slot, isBound int
		var d device.Descriptor
		if err := brows.Scan(&pluginID, &dir, &slot, &isBound, &devType,
			&d.DeviceNumber, &keyType, &d.KeyValue, &d.KeySubValue); err != nil {
			return fmt.Errorf("scanning binding: %w", err)
		}
		d.IsBound = isBound != 0
		d.DeviceType = device.DeviceType(devType)
		d.KeyType = device.KeyType(keyType)

		l, ok := where[pluginID]
		if !ok {
			continue
		}
		pl := &profiles[l.profile].Plugins[l.plugin]
		switch device.Direction(dir) {
		case device.Input:
			pl.Inputs = placeSlot(pl.Inputs, slot, d)
		case device.Output:
			pl.Outputs = placeSlot(pl.Outputs, slot, d)
		}
	}
	return brows.Err()
}

// placeSlot stores d at index slot, growing list with unbound entries.
func placeSlot(list []device.Descriptor, slot int, d device.Descriptor) []device.Descriptor {
	for len(list) <= slot {
		list = append(list, device.Descriptor{})
	}
	list[slot] = d
	return list
}

func marshalSettings(s map[string]any) (string, error) {
	if len(s) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// unmarshalSettings decodes a settings object. Numbers come back as
// float64; ApplySettings implementations accept that.
func unmarshalSettings(s string) (map[string]any, error) {
	if s == "" || s == "{}" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
