package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mescon/chronarr/internal/db"
	"github.com/mescon/chronarr/internal/domain"
	"github.com/mescon/chronarr/internal/logger"
	"github.com/mescon/chronarr/internal/timedate"
)

// profileRequest is the JSON body for profile create and update.
// Enabled is a pointer so an omitted flag can fall back to a default
// (true on create, the stored value on update).
type profileRequest struct {
	Name    string   `json:"name"`
	Kinds   []string `json:"kinds"`
	Enabled *bool    `json:"enabled"`
}

// normalizeKindKeys trims, validates, and dedupes kind keys. An empty list
// falls back to the "time" kind, matching the profiles file behavior.
func normalizeKindKeys(keys []string) ([]string, error) {
	if len(keys) == 0 {
		return []string{timedate.KindTime.Key()}, nil
	}
	kinds := make([]string, 0, len(keys))
	used := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if _, err := timedate.ParseKind(key); err != nil {
			return nil, err
		}
		if _, dup := used[key]; dup {
			continue
		}
		used[key] = struct{}{}
		kinds = append(kinds, key)
	}
	return kinds, nil
}

// reloadSensorsAfterChange reconciles the live sensor set against the store
// after a profile mutation. Returns false if the caller should abort because
// an error response was already sent.
func (s *RESTServer) reloadSensorsAfterChange(c *gin.Context) bool {
	if s.sensors == nil {
		return true
	}
	if err := s.sensors.ReloadProfiles(); err != nil {
		logger.Errorf("Profile saved but sensor reload failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Profile saved but sensor reload failed"})
		return false
	}
	return true
}

// publishProfileEvent emits a profile lifecycle event on the bus.
func (s *RESTServer) publishProfileEvent(eventType domain.EventType, p *db.Profile) {
	err := s.eventBus.Publish(domain.Event{
		AggregateType: "profile",
		AggregateID:   p.ID,
		EventType:     eventType,
		EventData: map[string]interface{}{
			"name":    p.Name,
			"kinds":   p.Kinds,
			"enabled": p.Enabled,
		},
	})
	if err != nil {
		logger.Errorf("Failed to publish %s event for profile %s: %v", eventType, p.ID, err)
	}
}

func (s *RESTServer) getProfiles(c *gin.Context) {
	profiles, err := s.store.GetAllProfiles()
	if err != nil {
		respondDatabaseError(c, err)
		return
	}
	if profiles == nil {
		profiles = []db.Profile{}
	}
	c.JSON(http.StatusOK, profiles)
}

func (s *RESTServer) getProfile(c *gin.Context) {
	profile, err := s.store.GetProfile(c.Param("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondNotFound(c, "Profile")
			return
		}
		respondDatabaseError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (s *RESTServer) createProfile(c *gin.Context) {
	var req profileRequest
	if err := c.BindJSON(&req); err != nil {
		respondBadRequest(c, err, true)
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Profile name is required"})
		return
	}

	kinds, err := normalizeKindKeys(req.Kinds)
	if err != nil {
		respondBadRequest(c, err, true)
		return
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM profiles WHERE name = ?", req.Name).Scan(&count); err != nil {
		respondDatabaseError(c, err)
		return
	}
	if count > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "A profile with this name already exists"})
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	profile := &db.Profile{
		ID:      uuid.New().String(),
		Name:    req.Name,
		Kinds:   kinds,
		Enabled: enabled,
	}
	if err := s.store.CreateProfile(profile); err != nil {
		respondDatabaseError(c, err)
		return
	}

	if !s.reloadSensorsAfterChange(c) {
		return
	}
	s.publishProfileEvent(domain.ProfileCreated, profile)

	c.JSON(http.StatusCreated, profile)
}

func (s *RESTServer) updateProfile(c *gin.Context) {
	existing, err := s.store.GetProfile(c.Param("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondNotFound(c, "Profile")
			return
		}
		respondDatabaseError(c, err)
		return
	}

	var req profileRequest
	if err := c.BindJSON(&req); err != nil {
		respondBadRequest(c, err, true)
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Profile name is required"})
		return
	}

	kinds, err := normalizeKindKeys(req.Kinds)
	if err != nil {
		respondBadRequest(c, err, true)
		return
	}

	if req.Name != existing.Name {
		var count int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM profiles WHERE name = ? AND id != ?", req.Name, existing.ID).Scan(&count); err != nil {
			respondDatabaseError(c, err)
			return
		}
		if count > 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "A profile with this name already exists"})
			return
		}
	}

	// Enabled omitted keeps the stored value, so a rename cannot
	// accidentally re-enable a disabled profile.
	enabled := existing.Enabled
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	profile := &db.Profile{
		ID:      existing.ID,
		Name:    req.Name,
		Kinds:   kinds,
		Enabled: enabled,
	}
	if err := s.store.UpdateProfile(profile); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondNotFound(c, "Profile")
			return
		}
		respondDatabaseError(c, err)
		return
	}

	if !s.reloadSensorsAfterChange(c) {
		return
	}
	s.publishProfileEvent(domain.ProfileUpdated, profile)

	c.JSON(http.StatusOK, profile)
}

func (s *RESTServer) deleteProfile(c *gin.Context) {
	profile, err := s.store.GetProfile(c.Param("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondNotFound(c, "Profile")
			return
		}
		respondDatabaseError(c, err)
		return
	}

	if err := s.store.DeleteProfile(profile.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondNotFound(c, "Profile")
			return
		}
		respondDatabaseError(c, err)
		return
	}

	if !s.reloadSensorsAfterChange(c) {
		return
	}
	s.publishProfileEvent(domain.ProfileDeleted, profile)

	c.JSON(http.StatusOK, gin.H{"message": "Profile deleted"})
}
