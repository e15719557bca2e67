package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ordena/pizzabot/internal/session"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name    string
		message string
		state   session.State
		want    Route
	}{
		{"greeting", "hola", session.StateInitial, RouteDeterministic},
		{"greeting uppercase", "  HOLA  ", session.StateInitial, RouteDeterministic},
		{"menu command", "menú", session.StateBrowsingMenu, RouteDeterministic},
		{"help command", "ayuda", session.StateBuildingOrder, RouteDeterministic},
		{"order status", "pedido", session.StateInitial, RouteDeterministic},
		{"cancel anywhere", "cancelar", session.StateConfirmingOrder, RouteDeterministic},
		{"bare number while browsing", "3", session.StateBrowsingMenu, RouteDeterministic},
		{"bare number outside browsing", "3", session.StateInitial, RouteDelegated},
		{"yes reply", "sí", session.StateConfirmingOrder, RouteDeterministic},
		{"no reply", "no", session.StateCollectingAddress, RouteDeterministic},
		{"confirm reply", "confirmar", session.StateBuildingOrder, RouteDeterministic},
		{"empty message", "   ", session.StateInitial, RouteDeterministic},
		{"free form order", "quiero una pizza grande de pepperoni", session.StateBrowsingMenu, RouteDelegated},
		{"number plus size", "1 mediana", session.StateBrowsingMenu, RouteDelegated},
		{"ambiguous text", "mejor no se", session.StateConfirmingOrder, RouteDelegated},
		{"address text", "Calle Falsa 123, Col. Centro", session.StateCollectingAddress, RouteDelegated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.message, tt.state))
		})
	}
}
