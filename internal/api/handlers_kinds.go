package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mescon/chronarr/internal/timedate"
)

// KindInfo describes one representation kind in the catalog.
type KindInfo struct {
	Key     string `json:"key"`
	Label   string `json:"label"`
	Icon    string `json:"icon"`
	Cadence string `json:"cadence"`
}

// getKinds returns the catalog of representation kinds a profile can enable,
// in canonical order.
func (s *RESTServer) getKinds(c *gin.Context) {
	kinds := timedate.Kinds()
	catalog := make([]KindInfo, 0, len(kinds))
	for _, k := range kinds {
		catalog = append(catalog, KindInfo{
			Key:     k.Key(),
			Label:   k.Label(),
			Icon:    k.Icon(),
			Cadence: kindCadence(k),
		})
	}
	c.JSON(http.StatusOK, catalog)
}

// kindCadence describes how often a kind's displayed value changes.
func kindCadence(k timedate.Kind) string {
	switch k {
	case timedate.KindDate:
		return "daily"
	case timedate.KindBeat:
		return "86.4s"
	default:
		return "60s"
	}
}
