package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/squatcoach/internal/thresholds"
)

// Profile is a named, versioned threshold set.
type Profile struct {
	ID         string
	Name       string
	Version    int
	Thresholds thresholds.Thresholds
	// Builtin marks seeded presets, which cannot be deleted.
	Builtin   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProfileRepository provides CRUD operations for profiles.
type ProfileRepository struct {
	db *sql.DB
}

// Profiles returns the profile repository for this store.
func (s *Store) Profiles() *ProfileRepository {
	return &ProfileRepository{db: s.db}
}

// Create validates p and inserts it as version 1. An empty ID is filled
// with a new UUID.
func (r *ProfileRepository) Create(p *Profile) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Version = 1
	data, err := encodeThresholds(p)
	if err != nil {
		return err
	}

	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err = r.db.Exec(
		`INSERT INTO profiles (id, name, version, thresholds, builtin, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Version, data, p.Builtin, p.CreatedAt, p.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: profile %q already exists", ErrConflict, p.Name)
	}
	return err
}

// GetByID retrieves a profile by its ID.
func (r *ProfileRepository) GetByID(id string) (*Profile, error) {
	return r.get(`WHERE id = ?`, id)
}

// GetByName retrieves a profile by its name.
func (r *ProfileRepository) GetByName(name string) (*Profile, error) {
	return r.get(`WHERE name = ?`, name)
}

func (r *ProfileRepository) get(where string, arg any) (*Profile, error) {
	row := r.db.QueryRow(
		`SELECT id, name, version, thresholds, builtin, created_at, updated_at
		 FROM profiles `+where,
		arg,
	)
	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// List retrieves all profiles ordered by name.
func (r *ProfileRepository) List() ([]*Profile, error) {
	rows, err := r.db.Query(
		`SELECT id, name, version, thresholds, builtin, created_at, updated_at
		 FROM profiles ORDER BY name`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return profiles, nil
}

// Update validates p and stores it under the next version number.
func (r *ProfileRepository) Update(p *Profile) error {
	current, err := r.GetByID(p.ID)
	if err != nil {
		return err
	}

	p.Version = current.Version + 1
	p.Builtin = current.Builtin
	p.CreatedAt = current.CreatedAt
	data, err := encodeThresholds(p)
	if err != nil {
		return err
	}
	p.UpdatedAt = time.Now()

	result, err := r.db.Exec(
		`UPDATE profiles SET name = ?, version = ?, thresholds = ?, updated_at = ?
		 WHERE id = ? AND version = ?`,
		p.Name, p.Version, data, p.UpdatedAt, p.ID, current.Version,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: profile %q already exists", ErrConflict, p.Name)
	}
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%w: profile %s changed concurrently", ErrConflict, p.ID)
	}

	return nil
}

// Delete removes a profile by its ID. Built-in profiles cannot be deleted.
func (r *ProfileRepository) Delete(id string) error {
	p, err := r.GetByID(id)
	if err != nil {
		return err
	}
	if p.Builtin {
		return fmt.Errorf("%w: profile %q is built in", ErrConflict, p.Name)
	}

	result, err := r.db.Exec(`DELETE FROM profiles WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// SeedPresets creates a built-in profile for every preset that has no
// profile of the same name yet. It returns how many were created.
func (r *ProfileRepository) SeedPresets() (int, error) {
	created := 0
	for _, name := range thresholds.PresetNames() {
		_, err := r.GetByName(name)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return created, err
		}

		th, _ := thresholds.Preset(name)
		if err := r.Create(&Profile{Name: name, Thresholds: th, Builtin: true}); err != nil {
			return created, fmt.Errorf("seed %s: %w", name, err)
		}
		created++
	}
	return created, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(row scanner) (*Profile, error) {
	p := &Profile{}
	var data string

	err := row.Scan(&p.ID, &p.Name, &p.Version, &data, &p.Builtin, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	var options map[string]any
	if err := json.Unmarshal([]byte(data), &options); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", p.ID, err)
	}
	p.Thresholds, err = thresholds.Decode(thresholds.Thresholds{}, options)
	if err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", p.ID, err)
	}
	return p, nil
}

// encodeThresholds stamps p's name and version onto its thresholds,
// validates them and returns the JSON to store.
func encodeThresholds(p *Profile) (string, error) {
	p.Thresholds.Name = p.Name
	p.Thresholds.Version = p.Version
	if err := p.Thresholds.Validate(); err != nil {
		return "", err
	}
	data, err := json.Marshal(p.Thresholds)
	if err != nil {
		return "", fmt.Errorf("encode thresholds: %w", err)
	}
	return string(data), nil
}
