package profiles

import (
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/mescon/chronarr/internal/db"
	"github.com/mescon/chronarr/internal/logger"
	"github.com/mescon/chronarr/internal/timedate"
)

// Store is the slice of the repository the import flow writes to.
type Store interface {
	CountProfiles() (int, error)
	GetAllProfiles() ([]db.Profile, error)
	CreateProfile(p *db.Profile) error
	UpdateProfile(p *db.Profile) error
	SetSetting(key, value string) error
}

// ImportOnFirstBoot seeds an empty profile store: from the profiles file when
// one exists and parses, otherwise a single default profile with the "time"
// kind. A store that already has profiles is left untouched.
func ImportOnFirstBoot(store Store, path string) (int, error) {
	count, err := store.CountProfiles()
	if err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}

	if data, err := os.ReadFile(path); err == nil {
		f, perr := Parse(data)
		if perr != nil {
			logger.Warnf("Profiles file %s rejected, starting with the default profile: %v", path, perr)
		} else {
			created, _, serr := SyncToStore(store, f)
			if serr != nil {
				return 0, serr
			}
			if created > 0 {
				logger.Infof("Imported %d profiles from %s", created, path)
				return created, nil
			}
		}
	} else if !os.IsNotExist(err) {
		logger.Warnf("Cannot read profiles file %s: %v", path, err)
	}

	p := &db.Profile{
		ID:      uuid.New().String(),
		Name:    "Default",
		Kinds:   []string{timedate.KindTime.Key()},
		Enabled: true,
	}
	if err := store.CreateProfile(p); err != nil {
		return 0, fmt.Errorf("failed to create default profile: %w", err)
	}
	logger.Infof("Created default profile with the time kind")
	return 1, nil
}

// SyncToStore upserts the file's profiles into the store, matching by name.
// Stored profiles the file does not mention are left alone, so API-created
// profiles survive file edits. A timezone in the file is saved as the
// timezone setting; it takes effect at the next start.
func SyncToStore(store Store, f *File) (created, updated int, err error) {
	existing, err := store.GetAllProfiles()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to load stored profiles: %w", err)
	}
	byName := make(map[string]db.Profile, len(existing))
	for _, p := range existing {
		byName[p.Name] = p
	}

	for _, fp := range f.Profiles {
		enabled := fp.IsEnabled()
		cur, ok := byName[fp.Name]
		if !ok {
			p := &db.Profile{
				ID:      uuid.New().String(),
				Name:    fp.Name,
				Kinds:   fp.Kinds,
				Enabled: enabled,
			}
			if err := store.CreateProfile(p); err != nil {
				return created, updated, fmt.Errorf("failed to create profile %q: %w", fp.Name, err)
			}
			created++
			continue
		}
		if cur.Enabled == enabled && sameKinds(cur.Kinds, fp.Kinds) {
			continue
		}
		cur.Kinds = fp.Kinds
		cur.Enabled = enabled
		if err := store.UpdateProfile(&cur); err != nil {
			return created, updated, fmt.Errorf("failed to update profile %q: %w", fp.Name, err)
		}
		updated++
	}

	if f.Timezone != "" {
		if err := store.SetSetting("timezone", f.Timezone); err != nil {
			return created, updated, fmt.Errorf("failed to store timezone: %w", err)
		}
	}
	return created, updated, nil
}

func sameKinds(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
