package sensor

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mescon/chronarr/internal/clock"
	"github.com/mescon/chronarr/internal/eventbus"
	"github.com/mescon/chronarr/internal/timedate"
)

// Profile is the desired-state input to the Manager: one named group of
// representation kinds. Disabled profiles contribute no sensors.
type Profile struct {
	ID      string
	Name    string
	Kinds   []timedate.Kind
	Enabled bool
}

// Registry persists the catalog of known sensors so the API can list them
// across restarts. A nil Registry disables persistence.
type Registry interface {
	UpsertEntry(uniqueID, profileID, kind, label, icon string) error
	DeleteEntry(uniqueID string) error
	ListEntryIDs() ([]string, error)
}

// Manager owns the live sensor set and reconciles it against profile
// snapshots. Apply is atomic with respect to Get and Snapshots.
type Manager struct {
	loc      *time.Location
	clk      clock.Clock
	bus      eventbus.Publisher
	diag     Diagnostics
	registry Registry

	mu      sync.Mutex
	sensors map[string]*Sensor
}

// NewManager builds a manager with no sensors. The location is resolved once
// at boot and shared by every sensor; a nil location is a configuration error.
func NewManager(loc *time.Location, clk clock.Clock, bus eventbus.Publisher, registry Registry, diag Diagnostics) (*Manager, error) {
	if loc == nil {
		return nil, fmt.Errorf("sensor manager requires a resolved time location")
	}
	if diag == nil {
		diag = DefaultDiagnostics()
	}
	return &Manager{
		loc:      loc,
		clk:      clk,
		bus:      bus,
		diag:     diag,
		registry: registry,
		sensors:  make(map[string]*Sensor),
	}, nil
}

type wantedSensor struct {
	profileID string
	kind      timedate.Kind
}

// Apply reconciles the live sensor set against the given profiles. Sensors
// for kinds no longer wanted are deactivated and removed, missing ones are
// created and activated, and surviving ones keep their timers untouched.
func (m *Manager) Apply(profiles []Profile) {
	wanted := make(map[string]wantedSensor)
	for _, p := range profiles {
		if !p.Enabled {
			continue
		}
		for _, kind := range p.Kinds {
			wanted[UniqueID(p.ID, kind)] = wantedSensor{profileID: p.ID, kind: kind}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, s := range m.sensors {
		if _, ok := wanted[id]; !ok {
			s.Deactivate()
			delete(m.sensors, id)
			removed++
		}
	}

	added := 0
	for id, w := range wanted {
		if _, ok := m.sensors[id]; ok {
			continue
		}
		s := New(w.profileID, w.kind, m.loc, m.clk, m.bus, m.diag)
		m.sensors[id] = s
		s.Activate()
		added++
	}

	m.diag.Infof("Sensor manager: reconciled, %d active (%d added, %d removed)", len(m.sensors), added, removed)
	m.syncRegistryLocked(wanted)
}

// syncRegistryLocked mirrors the wanted set into the registry. Registry
// failures are logged and skipped; the live sensors are the source of truth.
func (m *Manager) syncRegistryLocked(wanted map[string]wantedSensor) {
	if m.registry == nil {
		return
	}
	existing, err := m.registry.ListEntryIDs()
	if err != nil {
		m.diag.Warnf("Sensor manager: failed to list registry entries: %v", err)
	} else {
		for _, id := range existing {
			if _, ok := wanted[id]; ok {
				continue
			}
			if err := m.registry.DeleteEntry(id); err != nil {
				m.diag.Warnf("Sensor manager: failed to prune registry entry %s: %v", id, err)
			}
		}
	}
	for id, w := range wanted {
		if err := m.registry.UpsertEntry(id, w.profileID, w.kind.Key(), w.kind.Label(), w.kind.Icon()); err != nil {
			m.diag.Warnf("Sensor manager: failed to upsert registry entry %s: %v", id, err)
		}
	}
}

// Get returns the live sensor with the given unique id.
func (m *Manager) Get(uniqueID string) (*Sensor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sensors[uniqueID]
	return s, ok
}

// Snapshots returns point-in-time views of all live sensors, ordered by
// unique id for stable API output.
func (m *Manager) Snapshots() []Snapshot {
	m.mu.Lock()
	sensors := make([]*Sensor, 0, len(m.sensors))
	for _, s := range m.sensors {
		sensors = append(sensors, s)
	}
	m.mu.Unlock()

	snapshots := make([]Snapshot, 0, len(sensors))
	for _, s := range sensors {
		snapshots = append(snapshots, s.Snapshot())
	}
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].UniqueID < snapshots[j].UniqueID
	})
	return snapshots
}

// Count returns the number of live sensors.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sensors)
}

// Shutdown deactivates every sensor. The manager can be reused afterwards by
// calling Apply again.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sensors {
		s.Deactivate()
		delete(m.sensors, id)
	}
	m.diag.Infof("Sensor manager: all sensors deactivated")
}
