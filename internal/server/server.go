package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/sonicshare/sonicshare/internal/config"
	"github.com/sonicshare/sonicshare/internal/relay"
	"github.com/sonicshare/sonicshare/internal/session"
	"github.com/sonicshare/sonicshare/internal/termio"
	"github.com/sonicshare/sonicshare/pkg/protocol"
)

// Server is the HTTP/WebSocket shell over the pairing and relay core.
type Server struct {
	cfg      config.ServerConfig
	log      *slog.Logger
	reg      *session.Registry
	binder   *relay.Binder
	router   *relay.Router
	upgrader websocket.Upgrader
}

// New wires the shell over an already-constructed registry, binder, and
// router.
func New(cfg config.ServerConfig, log *slog.Logger, reg *session.Registry, binder *relay.Binder, router *relay.Router) *Server {
	return &Server{
		cfg:    cfg,
		log:    log,
		reg:    reg,
		binder: binder,
		router: router,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // peers connect from arbitrary origins
			},
		},
	}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/session", s.handleCreateSession)
	mux.HandleFunc("GET /api/session/{code}", s.handleGetSession)
	mux.HandleFunc("POST /api/session/{code}/answer", s.handleAnswer)
	mux.HandleFunc("POST /api/session/{code}/ice", s.handleCandidate)
	mux.HandleFunc("GET /ws", s.handleWS)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, protocol.HealthResponse{
		Status:         "ok",
		ActiveSessions: s.reg.Count(),
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	// An empty body is a valid create: the server mints the code and there is
	// no handshake payload.
	var req protocol.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := s.binder.Create(nil, req.Code, req.Offer)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrBadCode):
			sendError(w, http.StatusBadRequest, "invalid code format")
		case errors.Is(err, session.ErrCodeTaken):
			sendError(w, http.StatusConflict, "code already in use")
		case errors.Is(err, session.ErrCodeSpaceExhausted):
			s.log.Error("code space exhausted", "error", err)
			sendError(w, http.StatusServiceUnavailable, "could not allocate session")
		default:
			s.log.Error("session create failed", "error", err)
			sendError(w, http.StatusInternalServerError, "session create failed")
		}
		return
	}

	fmt.Fprintf(termio.Stdout(), "session created code=%s\n", sess.Code())
	writeJSON(w, http.StatusCreated, protocol.CreateSessionResponse{
		Code:   sess.Code(),
		Status: string(sess.Status()),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	sess, ok := s.reg.Lookup(code)
	if !ok {
		sendError(w, http.StatusNotFound, "invalid or expired code")
		return
	}
	info := protocol.SessionInfo{
		Code:   sess.Code(),
		Status: string(sess.Status()),
	}
	if info.Status == string(session.StatusWaiting) {
		info.Offer = sess.Offer()
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	sess, ok := s.reg.Lookup(code)
	if !ok {
		sendError(w, http.StatusNotFound, "invalid or expired code")
		return
	}

	answer, err := decodeOpaque(r, func(req *protocol.AnswerRequest) json.RawMessage { return req.Answer })
	if err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess.SetAnswer(answer)
	env, err := protocol.NewEnvelope(protocol.TypeAnswer, protocol.NewMsgID(), answer)
	if err != nil {
		sendError(w, http.StatusBadRequest, "invalid answer payload")
		return
	}
	env.Code = code
	data, err := env.Encode()
	if err != nil {
		sendError(w, http.StatusInternalServerError, "encode failed")
		return
	}
	s.router.Deliver(sess, session.RoleSender, session.TextFrame(data))

	fmt.Fprintf(termio.Stdout(), "answer received code=%s\n", code)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCandidate(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	sess, ok := s.reg.Lookup(code)
	if !ok {
		sendError(w, http.StatusNotFound, "invalid or expired code")
		return
	}

	var req protocol.CandidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	from, ok := session.ParseRole(req.Role)
	if !ok {
		sendError(w, http.StatusBadRequest, "role must be 'sender' or 'receiver'")
		return
	}

	env, err := protocol.NewEnvelope(protocol.TypeIceCandidate, protocol.NewMsgID(), req.Candidate)
	if err != nil {
		sendError(w, http.StatusBadRequest, "invalid candidate payload")
		return
	}
	env.Code = code
	env.Role = string(from)
	data, err := env.Encode()
	if err != nil {
		sendError(w, http.StatusInternalServerError, "encode failed")
		return
	}
	s.router.Deliver(sess, from.Other(), session.TextFrame(data))
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeOpaque reads the body either as {"answer": ...} or, when that field
// is absent, treats the whole body as the opaque payload.
func decodeOpaque(r *http.Request, pick func(*protocol.AnswerRequest) json.RawMessage) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, err
	}
	var req protocol.AnswerRequest
	if err := json.Unmarshal(raw, &req); err == nil {
		if payload := pick(&req); len(payload) > 0 {
			return payload, nil
		}
	}
	return raw, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func sendError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
