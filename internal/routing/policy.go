// Package routing decides whether an inbound message takes the deterministic
// rule path or is delegated to the language-model interpreter. The decision
// depends only on the message text and the current conversation state.
package routing

import (
	"regexp"
	"strings"

	"github.com/ordena/pizzabot/internal/session"
)

// Route is the handling path chosen for a message.
type Route string

const (
	// RouteDeterministic means the rule-based pipeline handles the message.
	RouteDeterministic Route = "deterministic"
	// RouteDelegated means the message goes to the language-model interpreter.
	RouteDelegated Route = "delegated"
)

// Known commands are handled by rules no matter the conversation state.
var commandWhitelist = map[string]struct{}{
	"hola":        {},
	"hello":       {},
	"buenas":      {},
	"buenos":      {},
	"inicio":      {},
	"empezar":     {},
	"comenzar":    {},
	"menu":        {},
	"menú":        {},
	"carta":       {},
	"ayuda":       {},
	"help":        {},
	"pedido":      {},
	"mis pedidos": {},
	"estado":      {},
	"cancelar":    {},
	"cancel":      {},
	"salir":       {},
}

var confirmationReplies = map[string]struct{}{
	"si":        {},
	"sí":        {},
	"yes":       {},
	"ok":        {},
	"okay":      {},
	"vale":      {},
	"no":        {},
	"nop":       {},
	"nope":      {},
	"confirmar": {},
	"confirma":  {},
	"confirm":   {},
}

var digitsOnly = regexp.MustCompile(`^\d+$`)

// Decide picks the route for a message. Known commands, bare menu numbers,
// and plain yes/no replies stay on the deterministic path; everything else
// is delegated. Decide never inspects message content beyond these checks,
// so free-form text like "1 mediana" is delegated even though the rule
// pipeline could parse it.
func Decide(message string, state session.State) Route {
	normalized := strings.ToLower(strings.TrimSpace(message))
	normalized = strings.Join(strings.Fields(normalized), " ")

	if normalized == "" {
		return RouteDeterministic
	}
	if _, ok := commandWhitelist[normalized]; ok {
		return RouteDeterministic
	}
	if _, ok := confirmationReplies[normalized]; ok {
		return RouteDeterministic
	}
	if digitsOnly.MatchString(normalized) && state == session.StateBrowsingMenu {
		return RouteDeterministic
	}
	return RouteDelegated
}
