// Package httpapi serves the bot fleet's REST surface under /v1.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"botswarm.ai/internal/events"
	"botswarm.ai/internal/orchestrator"
	"botswarm.ai/internal/persistence/botstore"
	"botswarm.ai/internal/protocol"
)

const maxBodyBytes = 64 * 1024

type Server struct {
	store  botstore.Store
	engine *orchestrator.Manager
	hub    *events.Hub
	log    *log.Logger
}

func NewServer(store botstore.Store, engine *orchestrator.Manager, hub *events.Hub, logger *log.Logger) *Server {
	return &Server{store: store, engine: engine, hub: hub, log: logger}
}

func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/v1/bots", s.handleCollection)
	mux.HandleFunc("/v1/bots/", s.handleBot)
}

func (s *Server) handleCollection(rw http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(rw, http.StatusOK, map[string]any{"bots": s.store.All()})
	case http.MethodPost:
		s.handleCreate(rw, r)
	default:
		rw.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleCreate(rw http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeErrorMsg(rw, http.StatusBadRequest, "invalid json body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeErrorMsg(rw, http.StatusBadRequest, "name is required")
		return
	}
	rec, err := s.store.Create(req.Name)
	if err != nil {
		s.log.Printf("create bot: %v", err)
		writeErrorMsg(rw, http.StatusInternalServerError, "create failed")
		return
	}
	s.hub.Publish(protocol.Event{Type: protocol.EventCreated, BotID: rec.ID, Name: rec.Name})
	s.log.Printf("bot %s created (%s)", rec.ID, rec.Name)
	writeJSON(rw, http.StatusCreated, rec)
}

// handleBot routes /v1/bots/{id} and /v1/bots/{id}/{start|stop|action}.
func (s *Server) handleBot(rw http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/bots/")
	parts := strings.SplitN(strings.Trim(path, "/"), "/", 2)
	id := parts[0]
	if id == "" {
		http.NotFound(rw, r)
		return
	}
	rec, ok := s.store.Get(id)
	if !ok {
		writeErrorMsg(rw, http.StatusNotFound, "unknown bot")
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			writeJSON(rw, http.StatusOK, rec)
		case http.MethodDelete:
			s.handleDelete(rw, r, rec)
		default:
			rw.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch parts[1] {
	case "start":
		if err := s.engine.Start(r.Context(), rec.ID); err != nil {
			s.writeEngineError(rw, err)
			return
		}
		rec, _ = s.store.Get(rec.ID)
		writeJSON(rw, http.StatusOK, rec)
	case "stop":
		if err := s.engine.Stop(r.Context(), rec.ID); err != nil {
			s.writeEngineError(rw, err)
			return
		}
		rec, _ = s.store.Get(rec.ID)
		writeJSON(rw, http.StatusOK, rec)
	case "action":
		s.handleAction(rw, r, rec.ID)
	default:
		http.NotFound(rw, r)
	}
}

// handleDelete stops a live session first so the connection never outlives
// the record.
func (s *Server) handleDelete(rw http.ResponseWriter, r *http.Request, rec botstore.Record) {
	if err := s.engine.Stop(r.Context(), rec.ID); err != nil {
		s.writeEngineError(rw, err)
		return
	}
	if !s.store.Delete(rec.ID) {
		writeErrorMsg(rw, http.StatusNotFound, "unknown bot")
		return
	}
	s.hub.Publish(protocol.Event{Type: protocol.EventDeleted, BotID: rec.ID, Name: rec.Name})
	s.log.Printf("bot %s deleted", rec.ID)
	rw.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAction(rw http.ResponseWriter, r *http.Request, botID string) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeErrorMsg(rw, http.StatusBadRequest, "read body")
		return
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		writeErrorMsg(rw, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := protocol.ActionSchema.Validate(doc); err != nil {
		writeErrorMsg(rw, http.StatusBadRequest, "invalid action: "+err.Error())
		return
	}

	var req protocol.ActionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeErrorMsg(rw, http.StatusBadRequest, "invalid action body")
		return
	}
	action, err := req.Action()
	if err != nil {
		writeErrorMsg(rw, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.engine.ExecuteAction(r.Context(), botID, action); err != nil {
		s.writeEngineError(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) writeEngineError(rw http.ResponseWriter, err error) {
	var pe *protocol.Error
	if !errors.As(err, &pe) {
		s.log.Printf("engine error: %v", err)
		writeErrorMsg(rw, http.StatusInternalServerError, err.Error())
		return
	}
	status := http.StatusBadRequest
	switch pe.Code {
	case protocol.ErrNotRunning, protocol.ErrEntityUnavailable:
		status = http.StatusConflict
	case protocol.ErrConnectionFailed:
		status = http.StatusBadGateway
	}
	writeJSON(rw, status, map[string]any{"error": map[string]string{
		"code":    pe.Code,
		"message": pe.Message,
	}})
}

func writeErrorMsg(rw http.ResponseWriter, status int, msg string) {
	writeJSON(rw, status, map[string]any{"error": map[string]string{"message": msg}})
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
