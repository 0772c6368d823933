package services

import (
	"fmt"

	"github.com/mescon/chronarr/internal/db"
	"github.com/mescon/chronarr/internal/logger"
	"github.com/mescon/chronarr/internal/sensor"
	"github.com/mescon/chronarr/internal/timedate"
)

// SensorService keeps the live sensor set in step with the stored profiles.
type SensorService struct {
	store   *db.Repository
	manager *sensor.Manager
}

func NewSensorService(store *db.Repository, manager *sensor.Manager) *SensorService {
	return &SensorService{store: store, manager: manager}
}

// ReloadProfiles reads all stored profiles and reconciles the sensor set
// against them. Unknown kind keys are logged and skipped so one bad key
// cannot take the rest of a profile down with it.
func (s *SensorService) ReloadProfiles() error {
	stored, err := s.store.GetAllProfiles()
	if err != nil {
		return fmt.Errorf("failed to load profiles: %w", err)
	}

	profiles := make([]sensor.Profile, 0, len(stored))
	for _, p := range stored {
		kinds := make([]timedate.Kind, 0, len(p.Kinds))
		for _, key := range p.Kinds {
			kind, err := timedate.ParseKind(key)
			if err != nil {
				logger.Warnf("Profile %s references unknown kind %q, skipping", p.ID, key)
				continue
			}
			kinds = append(kinds, kind)
		}
		profiles = append(profiles, sensor.Profile{
			ID:      p.ID,
			Name:    p.Name,
			Kinds:   kinds,
			Enabled: p.Enabled,
		})
	}

	s.manager.Apply(profiles)
	return nil
}

// Snapshots returns point-in-time views of all live sensors.
func (s *SensorService) Snapshots() []sensor.Snapshot {
	return s.manager.Snapshots()
}

// Snapshot returns the live sensor with the given unique id.
func (s *SensorService) Snapshot(uniqueID string) (sensor.Snapshot, bool) {
	live, ok := s.manager.Get(uniqueID)
	if !ok {
		return sensor.Snapshot{}, false
	}
	return live.Snapshot(), true
}

// Count returns the number of live sensors.
func (s *SensorService) Count() int {
	return s.manager.Count()
}

// Shutdown deactivates every live sensor.
func (s *SensorService) Shutdown() {
	s.manager.Shutdown()
}
