// Package webhook receives Telegram updates pushed over HTTP, the
// alternative to long polling for deployments behind a public endpoint.
package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// UpdateHandler processes one inbound update.
type UpdateHandler func(ctx context.Context, update tgbotapi.Update)

// Server is the HTTP surface: one update per POST, plus a health probe.
type Server struct {
	handler UpdateHandler
	mux     *http.ServeMux
}

// NewServer creates a webhook server delivering updates to handler.
func NewServer(handler UpdateHandler) *Server {
	s := &Server{
		handler: handler,
		mux:     http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /telegram", s.handleUpdate)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleUpdate decodes one Telegram update from the body. A body we
// cannot parse is dropped with a 200: Telegram retries non-2xx responses
// and a malformed payload will never parse better the second time.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		slog.Warn("read webhook body failed", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		slog.Debug("dropping unparseable update", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	s.handler(r.Context(), update)
	w.WriteHeader(http.StatusOK)
}
