package nlu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ordena/pizzabot/internal/catalog"
	"github.com/ordena/pizzabot/internal/session"
	"github.com/ordena/pizzabot/pkg/logging"
)

// Actions the model may return. Anything else is rejected and the engine
// falls back to the deterministic pipeline.
const (
	ActionAddItems    = "add_items"
	ActionReplaceCart = "replace_cart"
	ActionClearCart   = "clear_cart"
	ActionConfirm     = "confirm"
	ActionDeny        = "deny"
	ActionCancel      = "cancel"
	ActionFinish      = "finish"
	ActionSetAddress  = "set_address"
	ActionShowMenu    = "show_menu"
	ActionChat        = "chat"
)

// RequestedItem is one menu selection extracted from free-form text.
// MenuIndex is the 1-based position shown on the rendered menu.
type RequestedItem struct {
	MenuIndex int    `json:"menu_index"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
}

// Interpretation is the structured reading of one customer message.
type Interpretation struct {
	Action  string          `json:"action"`
	Items   []RequestedItem `json:"items,omitempty"`
	Address string          `json:"address,omitempty"`
	// Message is a short reply the model suggests for conversational turns.
	Message string `json:"message,omitempty"`
}

// Interpreter turns a free-form message into an Interpretation.
type Interpreter interface {
	Interpret(ctx context.Context, message string, state session.State, menu []catalog.Pizza) (*Interpretation, error)
}

// LLMInterpreter prompts a language model with the menu and conversation
// state and parses its JSON answer.
type LLMInterpreter struct {
	client    LLMClient
	model     string
	maxTokens int32
	logger    *logging.Logger
}

func NewLLMInterpreter(client LLMClient, model string, maxTokens int32, logger *logging.Logger) *LLMInterpreter {
	if client == nil {
		panic("nlu: llm client cannot be nil")
	}
	if maxTokens <= 0 {
		maxTokens = 512
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &LLMInterpreter{client: client, model: model, maxTokens: maxTokens, logger: logger}
}

const systemPrompt = `Eres el intérprete de una pizzería que atiende por WhatsApp.
Lee el mensaje del cliente y responde SOLO con un objeto JSON, sin texto adicional.

Formato:
{"action": "...", "items": [{"menu_index": 1, "size": "mediana", "quantity": 1}], "address": "...", "message": "..."}

Acciones válidas:
- "add_items": el cliente quiere pizzas; llena "items" con posiciones del menú (1-based), tamaño (pequeña|mediana|grande) y cantidad.
- "replace_cart": el cliente cambió de opinión y quiere que estas pizzas reemplacen las anteriores; llena "items" igual que en add_items.
- "clear_cart": el cliente quiere vaciar su pedido sin cancelar la conversación.
- "set_address": el cliente dio una dirección de entrega; llena "address".
- "confirm", "deny", "cancel", "finish": respuestas a preguntas del bot.
- "show_menu": el cliente pide ver el menú.
- "chat": cualquier otra cosa; llena "message" con una respuesta breve y amable en español.

Si no puedes mapear una pizza al menú, usa "chat" y pide aclaración en "message".`

func (i *LLMInterpreter) Interpret(ctx context.Context, message string, state session.State, menu []catalog.Pizza) (*Interpretation, error) {
	var menuLines strings.Builder
	for idx, p := range menu {
		fmt.Fprintf(&menuLines, "%d. %s ($%.2f)\n", idx+1, p.Name, p.BasePrice)
	}

	req := LLMRequest{
		Model:  i.model,
		System: []string{systemPrompt},
		Messages: []ChatMessage{
			{
				Role: ChatRoleUser,
				Content: fmt.Sprintf("Menú actual:\n%s\nEstado de la conversación: %s\n\nMensaje del cliente: %s",
					menuLines.String(), state, message),
			},
		},
		MaxTokens:   i.maxTokens,
		Temperature: 0,
	}

	resp, err := i.client.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("nlu: interpretation failed: %w", err)
	}

	parsed, err := parseInterpretation(resp.Text, len(menu))
	if err != nil {
		i.logger.Warn("discarding malformed interpretation", "error", err, "raw", resp.Text)
		return nil, err
	}
	return parsed, nil
}

// parseInterpretation decodes the model output defensively. Models wrap JSON
// in code fences or prose more often than not.
func parseInterpretation(raw string, menuSize int) (*Interpretation, error) {
	payload := extractJSON(raw)
	if payload == "" {
		return nil, errors.New("nlu: no JSON object in model output")
	}

	var out Interpretation
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return nil, fmt.Errorf("nlu: failed to decode interpretation: %w", err)
	}

	switch out.Action {
	case ActionAddItems, ActionReplaceCart:
		if len(out.Items) == 0 {
			return nil, fmt.Errorf("nlu: %s with no items", out.Action)
		}
		for idx := range out.Items {
			item := &out.Items[idx]
			if item.MenuIndex < 1 || item.MenuIndex > menuSize {
				return nil, fmt.Errorf("nlu: menu index %d out of range", item.MenuIndex)
			}
			if item.Quantity <= 0 {
				item.Quantity = 1
			}
			if item.Quantity > 20 {
				return nil, fmt.Errorf("nlu: implausible quantity %d", item.Quantity)
			}
			if _, ok := session.ParseSize(item.Size); !ok {
				item.Size = string(session.SizeMedium)
			}
		}
	case ActionSetAddress:
		if strings.TrimSpace(out.Address) == "" {
			return nil, errors.New("nlu: set_address with empty address")
		}
	case ActionConfirm, ActionDeny, ActionCancel, ActionFinish, ActionShowMenu, ActionClearCart:
	case ActionChat:
		if strings.TrimSpace(out.Message) == "" {
			return nil, errors.New("nlu: chat with empty message")
		}
	default:
		return nil, fmt.Errorf("nlu: unknown action %q", out.Action)
	}
	return &out, nil
}

// extractJSON pulls the first balanced top-level JSON object out of raw.
func extractJSON(raw string) string {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return raw[start : i+1]
			}
		}
	}
	return ""
}
