package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/solus-ai/solus/core"
	"github.com/solus-ai/solus/engine"
	"github.com/solus-ai/solus/tools"
)

// ChatRequest is the body of POST /chat and of each websocket frame.
type ChatRequest struct {
	Text           *string `json:"text"`
	UserID         *string `json:"user_id"`
	ConversationID string  `json:"conversation_id,omitempty"`
}

// ChatResponse is a successful chat reply.
type ChatResponse struct {
	Action         *core.Action `json:"action"`
	Response       string       `json:"response"`
	ConversationID string       `json:"conversation_id"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status       string `json:"status"`
	ModelLoaded  bool   `json:"model_loaded"`
	MemoryCount  int    `json:"memory_count"`
	EmbeddingDim int    `json:"embedding_dim"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MaxBodyBytes caps the size of a chat request body.
const MaxBodyBytes = 1 << 20

// malformedMessage is the error body for unparsable requests and missing
// fields.
const malformedMessage = "Invalid JSON format"

var errMalformed = fmt.Errorf("%w: body must be an object with text and user_id", core.ErrInvalidRequest)

// decodeChatRequest parses one complete JSON object; trailing data is an
// error.
func decodeChatRequest(data []byte) (*engine.Input, error) {
	var req ChatRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, errMalformed
	}
	if req.Text == nil || req.UserID == nil {
		return nil, errMalformed
	}
	return &engine.Input{
		TenantID:       *req.UserID,
		Message:        *req.Text,
		ConversationID: req.ConversationID,
	}, nil
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger := s.logger.With("request_id", RequestID(r.Context()))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: "request body too large"})
			return
		}
		logger.Warn("failed to read chat request", "error", err)
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: malformedMessage})
		return
	}
	input, err := decodeChatRequest(body)
	if err != nil {
		logger.Warn("malformed chat request", "error", err)
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: malformedMessage})
		return
	}

	out, err := s.chat.Run(r.Context(), input)
	if err != nil {
		logger.Error("error processing chat", "error", err)
		writeJSON(w, core.StatusCode(err), ErrorResponse{Error: err.Error()})
		return
	}

	if s.cfg.Verbose {
		logger.Info("chat request processed", "duration", time.Since(start), "memories", out.MemoriesUsed)
	}
	writeJSON(w, http.StatusOK, ChatResponse{
		Action:         out.Action,
		Response:       out.Response,
		ConversationID: out.ConversationID,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:       "healthy",
		ModelLoaded:  s.model.Loaded(),
		MemoryCount:  s.memory.Count(),
		EmbeddingDim: s.memory.Dimension(),
	})
}

func (s *Server) handleMemoryClear(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "Memory clearing not implemented yet",
		"message": "Feature coming soon",
	})
}

func (s *Server) handleMemorySave(w http.ResponseWriter, r *http.Request) {
	if err := s.memory.Save(r.Context()); err != nil {
		s.logger.Error("failed to save memory", "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "saved",
		"memory_count": s.memory.Count(),
	})
}

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"actions": tools.ActionDefinitions(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
