package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordena/pizzabot/internal/cache"
	"github.com/ordena/pizzabot/internal/catalog"
	"github.com/ordena/pizzabot/internal/customers"
	"github.com/ordena/pizzabot/internal/engine"
	"github.com/ordena/pizzabot/internal/orders"
	"github.com/ordena/pizzabot/internal/session"
	"github.com/ordena/pizzabot/pkg/logging"
)

func newTestHandler(t *testing.T) *WebhookHandler {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	tiered := cache.New(client, cache.NewMemoryStore(), logging.Default(), cache.WithTTL(time.Minute))
	t.Cleanup(tiered.Close)
	store := session.NewStore(tiered, logging.Default())

	eng := engine.New(store, &catalog.StaticCatalog{Pizzas: catalog.DefaultMenu()},
		customers.NewMemoryRepository(), orders.NewMemoryLedger(), logging.Default())
	return NewWebhookHandler(eng, logging.Default())
}

func postMessage(t *testing.T, h *WebhookHandler, from, body string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{}
	form.Set("From", from)
	form.Set("Body", body)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.HandleMessage(rec, req)
	return rec
}

func TestHandleMessageRepliesToGreeting(t *testing.T) {
	h := newTestHandler(t)

	rec := postMessage(t, h, "whatsapp:+549111234", "hola")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Replies []string `json:"replies"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Replies)
	assert.Contains(t, strings.Join(resp.Replies, "\n"), "nombre completo")
}

func TestHandleMessageStripsWhatsAppPrefix(t *testing.T) {
	h := newTestHandler(t)

	postMessage(t, h, "whatsapp:+549111234", "hola")
	// The same user without the prefix continues the same session.
	rec := postMessage(t, h, "+549111234", "Juan Pérez")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Replies []string `json:"replies"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, strings.Join(resp.Replies, "\n"), "dirección")
}

func TestHandleMessageRejectsMissingFrom(t *testing.T) {
	h := newTestHandler(t)

	rec := postMessage(t, h, "", "hola")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthCheck(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.HealthCheck(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
