package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// requireSensors checks if the sensor manager is available, returning false and sending error if not
func (s *RESTServer) requireSensors(c *gin.Context) bool {
	if s.sensors == nil {
		respondServiceUnavailable(c, "Sensor service")
		return false
	}
	return true
}

// getSensors returns a snapshot of every live sensor, ordered by unique id.
func (s *RESTServer) getSensors(c *gin.Context) {
	if !s.requireSensors(c) {
		return
	}

	snapshots := s.sensors.Snapshots()
	c.JSON(http.StatusOK, gin.H{
		"sensors": snapshots,
		"count":   len(snapshots),
	})
}

// getSensor returns the live sensor with the given unique id.
func (s *RESTServer) getSensor(c *gin.Context) {
	if !s.requireSensors(c) {
		return
	}

	snapshot, ok := s.sensors.Snapshot(c.Param("unique_id"))
	if !ok {
		respondNotFound(c, "Sensor")
		return
	}

	c.JSON(http.StatusOK, snapshot)
}
