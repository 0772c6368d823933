package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// Profile is a stored sensor profile. Kinds holds the representation
// kind keys the profile publishes.
type Profile struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Kinds     []string `json:"kinds"`
	Enabled   bool     `json:"enabled"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
}

// marshalKinds encodes kind keys as the JSON array stored in the kinds column.
func marshalKinds(kinds []string) (string, error) {
	if kinds == nil {
		kinds = []string{}
	}
	data, err := json.Marshal(kinds)
	if err != nil {
		return "", fmt.Errorf("failed to encode kinds: %w", err)
	}
	return string(data), nil
}

// GetAllProfiles returns all stored profiles ordered by name.
func (r *Repository) GetAllProfiles() ([]Profile, error) {
	rows, err := QueryWithRetry(r.DB, `
		SELECT id, name, kinds, enabled, created_at, updated_at
		FROM profiles
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	var profiles []Profile
	for rows.Next() {
		var p Profile
		var kindsJSON string
		if err := rows.Scan(&p.ID, &p.Name, &kindsJSON, &p.Enabled, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		if err := json.Unmarshal([]byte(kindsJSON), &p.Kinds); err != nil {
			return nil, fmt.Errorf("failed to decode kinds for profile %s: %w", p.ID, err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// GetProfile returns the profile with the given id.
// Returns sql.ErrNoRows if no such profile exists.
func (r *Repository) GetProfile(id string) (*Profile, error) {
	var p Profile
	var kindsJSON string
	err := r.DB.QueryRow(`
		SELECT id, name, kinds, enabled, created_at, updated_at
		FROM profiles
		WHERE id = ?
	`, id).Scan(&p.ID, &p.Name, &kindsJSON, &p.Enabled, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(kindsJSON), &p.Kinds); err != nil {
		return nil, fmt.Errorf("failed to decode kinds for profile %s: %w", p.ID, err)
	}
	return &p, nil
}

// CreateProfile inserts a new profile row.
func (r *Repository) CreateProfile(p *Profile) error {
	kindsJSON, err := marshalKinds(p.Kinds)
	if err != nil {
		return err
	}

	_, err = ExecWithRetry(r.DB, `
		INSERT INTO profiles (id, name, kinds, enabled)
		VALUES (?, ?, ?, ?)
	`, p.ID, p.Name, kindsJSON, p.Enabled)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

// UpdateProfile replaces the name, kinds and enabled flag of an existing profile.
// Returns sql.ErrNoRows if no profile has the given id.
func (r *Repository) UpdateProfile(p *Profile) error {
	kindsJSON, err := marshalKinds(p.Kinds)
	if err != nil {
		return err
	}

	result, err := ExecWithRetry(r.DB, `
		UPDATE profiles
		SET name = ?, kinds = ?, enabled = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, p.Name, kindsJSON, p.Enabled, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteProfile removes a profile and its sensor registry entries.
// Returns sql.ErrNoRows if no profile has the given id.
func (r *Repository) DeleteProfile(id string) error {
	// Delete registry rows first so the foreign key never blocks the
	// profile delete on connections where enforcement is active.
	if _, err := ExecWithRetry(r.DB, "DELETE FROM sensor_registry WHERE profile_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete registry entries for profile: %w", err)
	}

	result, err := ExecWithRetry(r.DB, "DELETE FROM profiles WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountProfiles returns the number of stored profiles.
func (r *Repository) CountProfiles() (int, error) {
	var count int
	if err := r.DB.QueryRow("SELECT COUNT(*) FROM profiles").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count profiles: %w", err)
	}
	return count, nil
}

// UpsertEntry inserts or replaces a sensor registry row.
func (r *Repository) UpsertEntry(uniqueID, profileID, kind, label, icon string) error {
	_, err := ExecWithRetry(r.DB, `
		INSERT OR REPLACE INTO sensor_registry (unique_id, profile_id, kind, label, icon)
		VALUES (?, ?, ?, ?, ?)
	`, uniqueID, profileID, kind, label, icon)
	if err != nil {
		return fmt.Errorf("failed to upsert registry entry: %w", err)
	}
	return nil
}

// DeleteEntry removes a sensor registry row. Deleting a missing entry is not an error.
func (r *Repository) DeleteEntry(uniqueID string) error {
	_, err := ExecWithRetry(r.DB, "DELETE FROM sensor_registry WHERE unique_id = ?", uniqueID)
	if err != nil {
		return fmt.Errorf("failed to delete registry entry: %w", err)
	}
	return nil
}

// ListEntryIDs returns the unique ids of all sensor registry rows.
func (r *Repository) ListEntryIDs() ([]string, error) {
	rows, err := QueryWithRetry(r.DB, "SELECT unique_id FROM sensor_registry ORDER BY unique_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query registry entries: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan registry entry: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetSetting returns the value for a settings key.
// Returns sql.ErrNoRows if the key is not set.
func (r *Repository) GetSetting(key string) (string, error) {
	var value string
	err := r.DB.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err != nil {
		return "", err
	}
	return value, nil
}

// SetSetting stores a settings key/value pair, replacing any existing value.
func (r *Repository) SetSetting(key, value string) error {
	_, err := ExecWithRetry(r.DB, "INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)", key, value)
	if err != nil {
		return fmt.Errorf("failed to store setting %s: %w", key, err)
	}
	return nil
}
