// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers provides HTTP request handlers for the guardian service.
//
// Handlers are constructors returning gin.HandlerFunc closures over the
// engine they serve. Request bodies are never logged.
package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/AleutianAI/EmoRobCare/pkg/extensions"
	"github.com/AleutianAI/EmoRobCare/services/safety"
	"github.com/gin-gonic/gin"
)

// MaxAlertsLimit caps the limit query parameter of the alerts endpoint.
const MaxAlertsLimit = 500

// HealthCheck reports liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleStatus returns the engine capability report.
func HandleStatus(engine *safety.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, engine.GetServiceStatus())
	}
}

// HandleStatistics returns aggregates over the retained check log.
func HandleStatistics(engine *safety.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, engine.GetSafetyStatistics())
	}
}

// HandleCheck runs one safety check.
//
// A missing "content" field is a 400; an empty string is a valid, safe
// input.
func HandleCheck(engine *safety.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req safety.CheckRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body", err)
			return
		}
		result, err := engine.Check(c.Request.Context(), req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// HandleResolve runs a check and returns the delivery decision with it.
func HandleResolve(engine *safety.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req safety.CheckRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body", err)
			return
		}
		result, reply, err := engine.CheckAndResolve(c.Request.Context(), req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, ResolveResponse{Result: result, Reply: reply})
	}
}

// HandleValidateProfile audits a child profile's own configuration.
func HandleValidateProfile(engine *safety.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var profile safety.ChildSafetyProfile
		if err := c.ShouldBindJSON(&profile); err != nil {
			badRequest(c, "invalid profile", err)
			return
		}
		result, err := engine.ValidateProfileSafety(profile)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// HandleAlternativeTopic picks a safe topic and a matching opener.
func HandleAlternativeTopic(engine *safety.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AlternativeTopicRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body", err)
			return
		}
		if err := req.Profile.Validate(); err != nil {
			writeError(c, err)
			return
		}
		topic := engine.GetSafeAlternativeTopic(req.BlockedTopic, req.Profile, req.Language)
		c.JSON(http.StatusOK, AlternativeTopicResponse{
			Topic:    topic,
			Response: engine.GetSafeResponse(topic, req.Profile, req.Language),
		})
	}
}

// HandleFilter runs the message-filter view of a check: child input is only
// ever redacted, while output and context may be replaced or blocked.
func HandleFilter(engine *safety.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req FilterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body", err)
			return
		}
		if err := req.Profile.Validate(); err != nil {
			writeError(c, err)
			return
		}

		var filter extensions.MessageFilter = safety.NewMessageFilter(engine, req.Profile, req.Language)
		screen := filter.FilterOutput
		switch req.Direction {
		case "input":
			screen = filter.FilterInput
		case "context":
			screen = filter.FilterContext
		}
		result, err := screen(c.Request.Context(), *req.Message)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// HandleAlerts lists recent critical-violation alerts, newest first.
//
// Query parameters:
//   - limit: 1..500, default 50
//   - since: RFC 3339 lower bound on the alert time
//   - child_id: only alerts for this child
func HandleAlerts(audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := extensions.AuditFilter{
			EventTypes: []string{safety.EventCriticalViolation},
			SubjectID:  c.Query("child_id"),
			Limit:      50,
		}
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > MaxAlertsLimit {
				badRequest(c, "limit must be between 1 and 500", err)
				return
			}
			filter.Limit = n
		}
		if raw := c.Query("since"); raw != "" {
			since, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				badRequest(c, "since must be an RFC 3339 timestamp", err)
				return
			}
			filter.StartTime = since
		}

		events, err := audit.Query(c.Request.Context(), filter)
		if err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to query alerts"})
			return
		}
		alerts := make([]Alert, len(events))
		for i, ev := range events {
			alerts[i] = Alert{
				Timestamp:      ev.Timestamp,
				CheckID:        ev.ResourceID,
				ChildID:        ev.SubjectID,
				Age:            ev.Metadata["age"],
				ViolationCount: ev.Metadata["violation_count"],
				ViolationTypes: ev.Metadata["violation_types"],
			}
		}
		c.JSON(http.StatusOK, AlertsResponse{Alerts: alerts, Count: len(alerts)})
	}
}

func badRequest(c *gin.Context, msg string, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "request body too large"})
		return
	}
	resp := ErrorResponse{Error: msg}
	if err != nil {
		resp.Details = err.Error()
	}
	c.JSON(http.StatusBadRequest, resp)
}

// writeError maps engine errors to status codes.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, safety.ErrMissingContent), errors.Is(err, safety.ErrInvalidProfile):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, safety.ErrContentTooLong):
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
