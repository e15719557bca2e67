// Package handlers exposes the WhatsApp webhook and health endpoints.
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ordena/pizzabot/internal/engine"
	"github.com/ordena/pizzabot/pkg/logging"
)

// WebhookHandler receives inbound WhatsApp messages. The gateway posts
// Twilio-style form payloads: From carries the sender in the
// "whatsapp:+549..." format and Body the message text.
type WebhookHandler struct {
	engine *engine.Engine
	logger *logging.Logger
}

func NewWebhookHandler(eng *engine.Engine, logger *logging.Logger) *WebhookHandler {
	if eng == nil {
		panic("handlers: engine cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{engine: eng, logger: logger}
}

type webhookResponse struct {
	Replies []string `json:"replies"`
}

// HandleMessage processes one inbound message and returns the bot replies.
func (h *WebhookHandler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form payload", http.StatusBadRequest)
		return
	}

	from := normalizePhone(r.PostFormValue("From"))
	body := r.PostFormValue("Body")
	if from == "" {
		http.Error(w, "missing From", http.StatusBadRequest)
		return
	}

	effects, err := h.engine.ProcessMessage(r.Context(), from, body)
	if err != nil {
		h.logger.Error("message processing failed", "from", from, "error", err)
		http.Error(w, "processing failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(webhookResponse{Replies: engine.Replies(effects)}); err != nil {
		h.logger.Error("failed to encode webhook response", "error", err)
	}
}

// HealthCheck reports liveness.
func (h *WebhookHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// normalizePhone strips the whatsapp: prefix and whitespace from a sender id.
func normalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "whatsapp:")
	return strings.TrimSpace(raw)
}
