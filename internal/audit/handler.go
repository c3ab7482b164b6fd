package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/accessmod/lead-marketplace/pkg/logging"
)

type historyReader interface {
	History(ctx context.Context, filter Filter) ([]Entry, error)
}

// Handler serves a lead's history over HTTP.
type Handler struct {
	reader historyReader
	logger *logging.Logger
}

func NewHandler(reader historyReader, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{reader: reader, logger: logger}
}

// History handles GET /api/leads/{leadID}/history.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	leadID := strings.TrimSpace(chi.URLParam(r, "leadID"))
	entries, err := h.reader.History(r.Context(), Filter{
		LeadID:    leadID,
		EventType: EventType(r.URL.Query().Get("type")),
		Limit:     200,
	})
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		h.logger.ForLead(leadID).Error("failed to load lead history", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "Failed to load lead history"})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "history": entries})
}
