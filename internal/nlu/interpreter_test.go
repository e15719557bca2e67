package nlu

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordena/pizzabot/internal/catalog"
	"github.com/ordena/pizzabot/internal/session"
	"github.com/ordena/pizzabot/pkg/logging"
)

type stubLLMClient struct {
	text string
	err  error
	last LLMRequest
}

func (s *stubLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	s.last = req
	if s.err != nil {
		return LLMResponse{}, s.err
	}
	return LLMResponse{Text: s.text}, nil
}

func TestInterpretAddItems(t *testing.T) {
	stub := &stubLLMClient{text: `{"action":"add_items","items":[{"menu_index":2,"size":"grande","quantity":2}]}`}
	interp := NewLLMInterpreter(stub, "model-x", 256, logging.Default())

	got, err := interp.Interpret(context.Background(), "dos pepperonis grandes porfa", session.StateBrowsingMenu, catalog.DefaultMenu())
	require.NoError(t, err)
	assert.Equal(t, ActionAddItems, got.Action)
	require.Len(t, got.Items, 1)
	assert.Equal(t, 2, got.Items[0].MenuIndex)
	assert.Equal(t, "grande", got.Items[0].Size)
	assert.Equal(t, 2, got.Items[0].Quantity)

	// The prompt must carry the live menu and state.
	assert.Contains(t, stub.last.Messages[0].Content, "Pepperoni")
	assert.Contains(t, stub.last.Messages[0].Content, string(session.StateBrowsingMenu))
}

func TestInterpretStripsCodeFences(t *testing.T) {
	stub := &stubLLMClient{text: "```json\n{\"action\":\"show_menu\"}\n```"}
	interp := NewLLMInterpreter(stub, "model-x", 256, logging.Default())

	got, err := interp.Interpret(context.Background(), "qué venden?", session.StateInitial, catalog.DefaultMenu())
	require.NoError(t, err)
	assert.Equal(t, ActionShowMenu, got.Action)
}

func TestInterpretRejectsOutOfRangeIndex(t *testing.T) {
	stub := &stubLLMClient{text: `{"action":"add_items","items":[{"menu_index":9,"size":"mediana","quantity":1}]}`}
	interp := NewLLMInterpreter(stub, "model-x", 256, logging.Default())

	_, err := interp.Interpret(context.Background(), "la nueve", session.StateBrowsingMenu, catalog.DefaultMenu())
	assert.Error(t, err)
}

func TestInterpretDefaultsSizeAndQuantity(t *testing.T) {
	stub := &stubLLMClient{text: `{"action":"add_items","items":[{"menu_index":1,"size":"gigante","quantity":0}]}`}
	interp := NewLLMInterpreter(stub, "model-x", 256, logging.Default())

	got, err := interp.Interpret(context.Background(), "una margarita", session.StateBrowsingMenu, catalog.DefaultMenu())
	require.NoError(t, err)
	assert.Equal(t, "medium", got.Items[0].Size)
	assert.Equal(t, 1, got.Items[0].Quantity)
}

func TestInterpretReplaceCartNeedsItems(t *testing.T) {
	stub := &stubLLMClient{text: `{"action":"replace_cart","items":[]}`}
	interp := NewLLMInterpreter(stub, "model-x", 256, logging.Default())

	_, err := interp.Interpret(context.Background(), "mejor cambia todo", session.StateBuildingOrder, catalog.DefaultMenu())
	assert.Error(t, err)

	stub.text = `{"action":"replace_cart","items":[{"menu_index":3,"size":"grande","quantity":2}]}`
	got, err := interp.Interpret(context.Background(), "mejor dos hawaianas grandes", session.StateBuildingOrder, catalog.DefaultMenu())
	require.NoError(t, err)
	assert.Equal(t, ActionReplaceCart, got.Action)
	require.Len(t, got.Items, 1)
}

func TestInterpretClearCart(t *testing.T) {
	stub := &stubLLMClient{text: `{"action":"clear_cart"}`}
	interp := NewLLMInterpreter(stub, "model-x", 256, logging.Default())

	got, err := interp.Interpret(context.Background(), "vacía mi carrito", session.StateBuildingOrder, catalog.DefaultMenu())
	require.NoError(t, err)
	assert.Equal(t, ActionClearCart, got.Action)
}

func TestInterpretRejectsUnknownAction(t *testing.T) {
	stub := &stubLLMClient{text: `{"action":"launch_rockets"}`}
	interp := NewLLMInterpreter(stub, "model-x", 256, logging.Default())

	_, err := interp.Interpret(context.Background(), "hola", session.StateInitial, catalog.DefaultMenu())
	assert.Error(t, err)
}

func TestInterpretRejectsNonJSON(t *testing.T) {
	stub := &stubLLMClient{text: "claro, con gusto te ayudo"}
	interp := NewLLMInterpreter(stub, "model-x", 256, logging.Default())

	_, err := interp.Interpret(context.Background(), "hola", session.StateInitial, catalog.DefaultMenu())
	assert.Error(t, err)
}

func TestInterpretPropagatesClientError(t *testing.T) {
	stub := &stubLLMClient{err: errors.New("throttled")}
	interp := NewLLMInterpreter(stub, "model-x", 256, logging.Default())

	_, err := interp.Interpret(context.Background(), "hola", session.StateInitial, catalog.DefaultMenu())
	assert.Error(t, err)
}

func TestFallbackClientUsesFallbackOnPrimaryFailure(t *testing.T) {
	primary := &stubLLMClient{err: errors.New("throttled")}
	fallback := &stubLLMClient{text: `{"action":"confirm"}`}
	client := NewFallbackLLMClient(primary, fallback, logging.Default())

	resp, err := client.Complete(context.Background(), LLMRequest{Messages: []ChatMessage{{Role: ChatRoleUser, Content: "sí"}}})
	require.NoError(t, err)
	assert.Equal(t, `{"action":"confirm"}`, resp.Text)
}

func TestFallbackClientReturnsPrimaryErrorWithoutFallback(t *testing.T) {
	primary := &stubLLMClient{err: errors.New("throttled")}
	client := NewFallbackLLMClient(primary, nil, logging.Default())

	_, err := client.Complete(context.Background(), LLMRequest{})
	assert.Error(t, err)
}
