package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"carebridge/internal/models"
)

// statusHandler reports service status (GET) and accepts Twilio delivery
// status callbacks (POST, form-encoded).
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		count, err := s.pendingCount()
		if err != nil {
			slog.Error("Server.statusHandler: failed to fetch pending handoffs", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch status"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
			"service":          "carebridge",
			"knowledge_docs":   s.knowledge.Len(),
			"pending_handoffs": count,
			"timestamp":        time.Now().UTC().Format(time.RFC3339),
		}))
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			slog.Warn("Server.statusHandler: failed to parse status callback", "error", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		slog.Info("Server.statusHandler: delivery status callback",
			"message_sid", r.FormValue("MessageSid"),
			"status", r.FormValue("MessageStatus"),
			"to", r.FormValue("To"))
		w.WriteHeader(http.StatusOK)
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// healthHandler provides a health check endpoint for monitoring.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	healthData := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	// The store is the critical dependency; probe it.
	if _, err := s.st.PendingHandoffs(); err != nil {
		slog.Warn("Server.healthHandler: store probe failed", "error", err)
		healthData["status"] = "degraded"
		healthData["error"] = "storage backend unavailable"
	}

	statusCode := http.StatusOK
	if healthData["status"] == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, statusCode, healthData)
}

// handoffHandler routes the handoff endpoints:
//
//	POST /handoff                 create a handoff request
//	GET  /handoff/pending         list waiting requests, oldest first
//	POST /handoff/{id}/assign     assign a waiting request to an agent
//	POST /handoff/{id}/complete   close an assigned request
func (s *Server) handoffHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.handoffHandler: processing request", "method", r.Method, "path", r.URL.Path)

	path := strings.TrimPrefix(r.URL.Path, "/handoff")
	path = strings.TrimPrefix(path, "/")
	segments := strings.Split(path, "/")

	if len(segments) == 0 || segments[0] == "" {
		// /handoff
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
			return
		}
		s.createHandoffHandler(w, r)
		return
	}

	if segments[0] == "pending" && len(segments) == 1 {
		// /handoff/pending
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
			return
		}
		s.pendingHandoffsHandler(w, r)
		return
	}

	if len(segments) == 2 {
		requestID := segments[0]
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
			return
		}
		switch segments[1] {
		case "assign":
			s.assignHandoffHandler(w, r, requestID)
			return
		case "complete":
			s.completeHandoffHandler(w, r, requestID)
			return
		}
	}

	writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown handoff endpoint"))
}

// createHandoffHandler handles POST /handoff.
func (s *Server) createHandoffHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PhoneNumber string `json:"phone_number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.createHandoffHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.PhoneNumber == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required field: phone_number"))
		return
	}

	handoffReq, err := s.handoff.Request(context.Background(), req.PhoneNumber)
	switch {
	case errors.Is(err, models.ErrActiveHandoffExists):
		writeJSONResponse(w, http.StatusConflict, models.Error("User already has an active handoff request"))
		return
	case errors.Is(err, models.ErrProfileNotFound):
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown user"))
		return
	case err != nil:
		slog.Error("Server.createHandoffHandler: request failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to create handoff request"))
		return
	}

	slog.Info("Server.createHandoffHandler: handoff created", "request_id", handoffReq.ID, "phone", req.PhoneNumber)
	writeJSONResponse(w, http.StatusCreated, models.Success(handoffReq))
}

// pendingHandoffsHandler handles GET /handoff/pending.
func (s *Server) pendingHandoffsHandler(w http.ResponseWriter, r *http.Request) {
	pending, err := s.handoff.Pending(context.Background())
	if err != nil {
		slog.Error("Server.pendingHandoffsHandler: fetch failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch pending handoffs"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"requests": pending,
		"count":    len(pending),
	}))
}

// assignHandoffHandler handles POST /handoff/{id}/assign.
func (s *Server) assignHandoffHandler(w http.ResponseWriter, r *http.Request, requestID string) {
	var req struct {
		AgentID string `json:"agent_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.assignHandoffHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.AgentID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required field: agent_id"))
		return
	}

	err := s.handoff.Assign(context.Background(), requestID, req.AgentID)
	switch {
	case errors.Is(err, models.ErrHandoffNotFound):
		writeJSONResponse(w, http.StatusNotFound, models.Error("Handoff request not found"))
		return
	case errors.Is(err, models.ErrHandoffNotWaiting):
		writeJSONResponse(w, http.StatusConflict, models.Error("Handoff request is not waiting"))
		return
	case err != nil:
		slog.Error("Server.assignHandoffHandler: assignment failed", "error", err, "request_id", requestID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to assign handoff"))
		return
	}

	slog.Info("Server.assignHandoffHandler: handoff assigned", "request_id", requestID, "agent_id", req.AgentID)
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{
		"request_id": requestID,
		"agent_id":   req.AgentID,
		"status":     string(models.HandoffAssigned),
	}))
}

// completeHandoffHandler handles POST /handoff/{id}/complete.
func (s *Server) completeHandoffHandler(w http.ResponseWriter, r *http.Request, requestID string) {
	err := s.handoff.Complete(context.Background(), requestID)
	switch {
	case errors.Is(err, models.ErrHandoffNotFound):
		writeJSONResponse(w, http.StatusNotFound, models.Error("Handoff request not found"))
		return
	case errors.Is(err, models.ErrHandoffNotWaiting):
		writeJSONResponse(w, http.StatusConflict, models.Error("Handoff request is not assigned"))
		return
	case err != nil:
		slog.Error("Server.completeHandoffHandler: completion failed", "error", err, "request_id", requestID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to complete handoff"))
		return
	}

	slog.Info("Server.completeHandoffHandler: handoff completed", "request_id", requestID)
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{
		"request_id": requestID,
		"status":     string(models.HandoffCompleted),
	}))
}

// agentsHandler handles POST /agents to register a human agent.
func (s *Server) agentsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.agentsHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.ID == "" || req.Name == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required fields: id, name"))
		return
	}

	agent := models.Agent{
		ID:        req.ID,
		Name:      req.Name,
		Status:    models.AgentAvailable,
		CreatedAt: time.Now(),
	}
	if err := s.st.SaveAgent(agent); err != nil {
		slog.Error("Server.agentsHandler: save failed", "error", err, "agent_id", req.ID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to register agent"))
		return
	}

	slog.Info("Server.agentsHandler: agent registered", "agent_id", req.ID)
	writeJSONResponse(w, http.StatusCreated, models.Success(agent))
}
