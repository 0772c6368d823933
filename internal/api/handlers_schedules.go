package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *RESTServer) getSchedules(c *gin.Context) {
	rows, err := s.db.Query(`
		SELECT id, name, cron_expression, kinds, notify, enabled
		FROM schedules
		ORDER BY id
	`)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}
	defer rows.Close()

	schedules := make([]gin.H, 0)
	for rows.Next() {
		var id int64
		var name, cronExpr, kindsJSON string
		var notify, enabled bool
		if err := rows.Scan(&id, &name, &cronExpr, &kindsJSON, &notify, &enabled); err != nil {
			continue
		}

		var kinds []string
		if err := json.Unmarshal([]byte(kindsJSON), &kinds); err != nil {
			kinds = []string{}
		}

		schedules = append(schedules, gin.H{
			"id":              id,
			"name":            name,
			"cron_expression": cronExpr,
			"kinds":           kinds,
			"notify":          notify,
			"enabled":         enabled,
		})
	}
	c.JSON(http.StatusOK, schedules)
}

func (s *RESTServer) addSchedule(c *gin.Context) {
	var req struct {
		Name           string   `json:"name"`
		CronExpression string   `json:"cron_expression"`
		Kinds          []string `json:"kinds"`
		Notify         bool     `json:"notify"`
	}
	if err := c.BindJSON(&req); err != nil {
		respondBadRequest(c, err, true)
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Schedule name is required"})
		return
	}

	// Cron expression and kind keys are validated by the scheduler before
	// anything is written.
	id, err := s.scheduler.AddSchedule(req.Name, req.CronExpression, req.Kinds, req.Notify)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": id, "message": "Schedule added"})
}

func (s *RESTServer) updateSchedule(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": ErrMsgInvalidID})
		return
	}

	var req struct {
		Name           string   `json:"name"`
		CronExpression string   `json:"cron_expression"`
		Kinds          []string `json:"kinds"`
		Notify         bool     `json:"notify"`
		Enabled        *bool    `json:"enabled"` // Pointer to distinguish between false and missing
	}
	if err := c.BindJSON(&req); err != nil {
		respondBadRequest(c, err, true)
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Schedule name is required"})
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	if err := s.scheduler.UpdateSchedule(id, req.Name, req.CronExpression, req.Kinds, req.Notify, enabled); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Schedule updated"})
}

func (s *RESTServer) deleteSchedule(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": ErrMsgInvalidID})
		return
	}

	if err := s.scheduler.DeleteSchedule(id); err != nil {
		respondDatabaseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Schedule deleted"})
}
