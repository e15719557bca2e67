package engine

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ordena/pizzabot/internal/catalog"
	"github.com/ordena/pizzabot/internal/customers"
	"github.com/ordena/pizzabot/internal/intent"
	"github.com/ordena/pizzabot/internal/orders"
	"github.com/ordena/pizzabot/internal/session"
)

// turn carries everything one message needs while the per-user lock is held.
type turn struct {
	sess     *session.Session
	customer *customers.Customer // nil when unregistered
	menu     []catalog.Pizza
	effects  []Effect
}

func (t *turn) reply(text string) {
	t.effects = append(t.effects, ReplyEffect{Text: text})
}

// ask sends a question and records it so the intent resolver can use it as
// context on the next turn.
func (t *turn) ask(text string) {
	t.reply(text)
	t.sess.LastBotPrompt = text
}

var (
	nameRe      = regexp.MustCompile(`^\p{L}+(?: \p{L}+)+$`)
	digitRe     = regexp.MustCompile(`\d`)
	bareNumber  = regexp.MustCompile(`^\d{1,2}$`)
	orderLineRe = regexp.MustCompile(`^(\d{1,2})\s+(?:pizzas?\s+)?(pequeña|pequena|chica|mediana|median|grande|small|medium|large)$`)
)

func validName(s string) bool {
	return nameRe.MatchString(strings.TrimSpace(s))
}

func validAddress(s string) bool {
	s = strings.TrimSpace(s)
	return len([]rune(s)) >= 10 && digitRe.MatchString(s)
}

// step runs one message through the state machine. All session mutation
// happens here, under the store's per-user lock.
func (e *Engine) step(ctx context.Context, t *turn, message string) {
	// A finalized conversation starts over on the next contact.
	if t.sess.State == session.StateFinalized {
		t.sess.ResetFlow()
	}

	normalized := strings.ToLower(strings.TrimSpace(message))
	normalized = strings.Join(strings.Fields(normalized), " ")

	if e.handleCommand(ctx, t, normalized) {
		return
	}

	switch t.sess.State {
	case session.StateInitial:
		e.greet(t)
	case session.StateRegisteringName:
		e.stepRegisterName(t, message)
	case session.StateRegisteringAddress:
		e.stepRegisterAddress(ctx, t, message)
	case session.StateBrowsingMenu, session.StateBuildingOrder:
		e.stepOrdering(ctx, t, message, normalized)
	case session.StateCollectingAddress:
		e.stepCollectAddress(t, message)
	case session.StateConfirmingOrder:
		e.stepConfirmOrder(ctx, t, message)
	}
}

// handleCommand intercepts global commands before any state handler runs.
func (e *Engine) handleCommand(ctx context.Context, t *turn, normalized string) bool {
	switch normalized {
	case "hola", "hello", "buenas", "buenos", "inicio", "empezar", "comenzar":
		e.greet(t)
	case "menu", "menú", "carta":
		e.showMenu(t)
	case "ayuda", "help":
		t.reply(helpText)
	case "pedido", "mis pedidos", "estado":
		e.replyOrderStatus(ctx, t)
	case "cancelar", "cancel", "salir":
		t.sess.ResetFlow()
		t.reply("Tu pedido fue cancelado. Escribe *hola* cuando quieras ordenar de nuevo. 👋")
	default:
		return false
	}
	return true
}

const helpText = "🤖 *Comandos disponibles*\n" +
	"• *menú* - ver las pizzas disponibles\n" +
	"• *pedido* - consultar tus pedidos recientes\n" +
	"• *cancelar* - cancelar el pedido en curso\n" +
	"También puedes escribirme con tus palabras, por ejemplo: _quiero dos pizzas grandes de pepperoni_"

func (e *Engine) greet(t *turn) {
	if t.customer != nil {
		t.reply(fmt.Sprintf("¡Hola de nuevo, %s! 👋", t.customer.Name))
		e.showMenu(t)
		return
	}
	t.sess.State = session.StateRegisteringName
	t.ask("¡Bienvenido a Pizzería Ordena! 🍕\nPara tomar tu pedido necesito registrarte. ¿Cuál es tu nombre completo?")
}

func (e *Engine) showMenu(t *turn) {
	if t.customer == nil {
		e.greet(t)
		return
	}
	t.reply(catalog.Render(t.menu))
	t.effects = append(t.effects, ShowMenuEffect{})
	if t.sess.State != session.StateBuildingOrder {
		t.sess.State = session.StateBrowsingMenu
	}
}

func (e *Engine) stepRegisterName(t *turn, message string) {
	name := strings.TrimSpace(message)
	if !validName(name) {
		t.ask("Necesito tu nombre y apellido, por ejemplo: *Juan Pérez*. ¿Cuál es tu nombre completo?")
		return
	}
	t.sess.TempData.PendingName = name
	t.sess.State = session.StateRegisteringAddress
	t.ask(fmt.Sprintf("Gracias, %s. ¿Cuál es tu dirección de entrega? Incluye calle y número.", name))
}

func (e *Engine) stepRegisterAddress(ctx context.Context, t *turn, message string) {
	address := strings.TrimSpace(message)
	if !validAddress(address) {
		t.ask("Esa dirección parece incompleta. Incluye calle y número, por ejemplo: *Calle 1 #23, Col. Centro*.")
		return
	}

	c := &customers.Customer{
		Phone:   t.sess.ID,
		Name:    t.sess.TempData.PendingName,
		Address: address,
	}
	if err := e.customers.Upsert(ctx, c); err != nil {
		e.logger.Error("customer registration failed", "phone", t.sess.ID, "error", err)
		t.reply("Tuvimos un problema guardando tus datos. Intenta de nuevo en un momento.")
		return
	}
	t.customer = c
	t.sess.TempData.PendingName = ""
	t.reply(fmt.Sprintf("¡Listo, %s! Quedaste registrado. 🎉", c.Name))
	e.showMenu(t)
}

// stepOrdering handles menu selection and cart building. Selections arrive
// as a bare menu number, one or more "número tamaño" pairs ("1 grande, 2
// mediana"), or a size word answering a pending selection.
func (e *Engine) stepOrdering(ctx context.Context, t *turn, message, normalized string) {
	if lines := parseOrderLines(normalized); len(lines) > 0 {
		// Every line is range-checked before the first append; one bad index
		// must not leave the valid lines stranded in the cart.
		for _, line := range lines {
			if line.index < 1 || line.index > len(t.menu) {
				e.replyMenuRange(t)
				return
			}
		}
		if len(lines) == 1 {
			e.addToCart(t, lines[0].index, lines[0].size, 1)
			return
		}
		for _, line := range lines {
			e.appendItem(t, line.index, line.size, 1)
		}
		e.confirmAdded(t)
		return
	}

	if bareNumber.MatchString(normalized) {
		index, _ := strconv.Atoi(normalized)
		if index < 1 || index > len(t.menu) {
			e.replyMenuRange(t)
			return
		}
		t.sess.TempData.PendingSelection = normalized
		t.ask(fmt.Sprintf("¿De qué tamaño quieres tu pizza %s? (pequeña, mediana o grande)", t.menu[index-1].Name))
		return
	}

	if t.sess.TempData.PendingSelection != "" {
		if size, ok := session.ParseSize(normalized); ok {
			index, _ := strconv.Atoi(t.sess.TempData.PendingSelection)
			t.sess.TempData.PendingSelection = ""
			e.addToCart(t, index, size, 1)
			return
		}
	}

	resolved := intent.Resolve(message, intent.Context{
		LastBotPrompt: t.sess.LastBotPrompt,
		State:         t.sess.State,
	})
	e.metrics.ObserveIntent(string(resolved.Kind), resolved.Evidence.Stage)

	switch resolved.Kind {
	case intent.KindConfirm, intent.KindFinish:
		e.proceedToAddress(t)
	case intent.KindAddMore:
		e.showMenu(t)
	case intent.KindClearCart:
		t.sess.TempData.Cart = nil
		t.effects = append(t.effects, ClearCartEffect{})
		t.reply("Carrito vacío. 🧹")
		e.showMenu(t)
	case intent.KindCancel, intent.KindDeny:
		t.sess.ResetFlow()
		t.reply("Tu pedido fue cancelado. Escribe *hola* cuando quieras ordenar de nuevo. 👋")
	default:
		if t.sess.State == session.StateBuildingOrder && len(t.sess.TempData.Cart) > 0 {
			t.reply(fmt.Sprintf("Tu pedido hasta ahora:\n%s\n\n%s", cartSummary(t.sess), unclearReply(resolved)))
			return
		}
		t.reply(unclearReply(resolved))
	}
}

type orderLine struct {
	index int
	size  session.Size
}

// parseOrderLines reads "1 grande" or a list like "1 grande, 2 mediana" /
// "1 grande y 2 mediana". It returns nil unless every segment parses.
func parseOrderLines(normalized string) []orderLine {
	segments := strings.Split(strings.ReplaceAll(normalized, " y ", ","), ",")
	lines := make([]orderLine, 0, len(segments))
	for _, seg := range segments {
		m := orderLineRe.FindStringSubmatch(strings.TrimSpace(seg))
		if m == nil {
			return nil
		}
		index, _ := strconv.Atoi(m[1])
		size, _ := session.ParseSize(m[2])
		lines = append(lines, orderLine{index: index, size: size})
	}
	return lines
}

func (e *Engine) replyMenuRange(t *turn) {
	t.reply(fmt.Sprintf("Solo tenemos %d pizzas en el menú. Elige un número entre 1 y %d.", len(t.menu), len(t.menu)))
}

// appendItem adds one line to the cart, capturing the price at add time.
// It reports false when the menu index is out of range.
func (e *Engine) appendItem(t *turn, index int, size session.Size, quantity int) bool {
	if index < 1 || index > len(t.menu) {
		e.replyMenuRange(t)
		return false
	}
	pizza := t.menu[index-1]
	t.sess.TempData.Cart = append(t.sess.TempData.Cart, session.CartItem{
		PizzaID:   pizza.ID,
		Name:      pizza.Name,
		Emoji:     pizza.Emoji,
		Size:      size,
		Quantity:  quantity,
		UnitPrice: pizza.PriceFor(string(size)),
	})
	return true
}

func (e *Engine) addToCart(t *turn, index int, size session.Size, quantity int) {
	if !e.appendItem(t, index, size, quantity) {
		return
	}
	added := t.sess.TempData.Cart[len(t.sess.TempData.Cart)-1]
	t.sess.State = session.StateBuildingOrder
	t.ask(fmt.Sprintf("Agregué %d %s %s a tu pedido. 🛒\n%s\n¿Quieres agregar más o escribes *confirmar* para continuar?",
		quantity, added.Name, size.Spanish(), cartSummary(t.sess)))
}

func (e *Engine) confirmAdded(t *turn) {
	t.sess.State = session.StateBuildingOrder
	t.ask(fmt.Sprintf("Listo, actualicé tu pedido. 🛒\n%s\n¿Quieres agregar más o escribes *confirmar* para continuar?",
		cartSummary(t.sess)))
}

func (e *Engine) proceedToAddress(t *turn) {
	if len(t.sess.TempData.Cart) == 0 {
		t.reply("Tu carrito está vacío. 🛒")
		e.showMenu(t)
		return
	}
	t.sess.State = session.StateCollectingAddress
	if t.customer != nil && t.customer.Address != "" {
		t.ask(fmt.Sprintf("Tienes una dirección registrada: %s\n¿Quieres usarla? (sí/no)", t.customer.Address))
		return
	}
	t.ask("¿A qué dirección enviamos tu pedido? Incluye calle y número.")
}

func (e *Engine) stepCollectAddress(t *turn, message string) {
	resolved := intent.Resolve(message, intent.Context{
		LastBotPrompt: t.sess.LastBotPrompt,
		State:         t.sess.State,
	})
	e.metrics.ObserveIntent(string(resolved.Kind), resolved.Evidence.Stage)

	hasRegistered := t.customer != nil && t.customer.Address != ""

	switch {
	case resolved.Kind == intent.KindConfirm && hasRegistered:
		t.sess.TempData.PendingAddress = t.customer.Address
		e.askConfirmation(t)
	case resolved.Kind == intent.KindDeny && hasRegistered:
		t.ask("Perfecto, ¿a qué dirección enviamos tu pedido? Incluye calle y número.")
	case resolved.Kind == intent.KindCancel:
		t.sess.ResetFlow()
		t.reply("Tu pedido fue cancelado. Escribe *hola* cuando quieras ordenar de nuevo. 👋")
	case validAddress(message):
		t.sess.TempData.PendingAddress = strings.TrimSpace(message)
		e.askConfirmation(t)
	default:
		t.ask("Esa dirección parece incompleta. Incluye calle y número, por ejemplo: *Calle 1 #23, Col. Centro*.")
	}
}

func (e *Engine) askConfirmation(t *turn) {
	t.sess.State = session.StateConfirmingOrder
	t.ask(fmt.Sprintf("📋 *Resumen de tu pedido*\n%s\n📍 Entrega: %s\n\n¿Confirmas tu pedido? (sí/no)",
		cartSummary(t.sess), t.sess.TempData.PendingAddress))
}

func (e *Engine) stepConfirmOrder(ctx context.Context, t *turn, message string) {
	resolved := intent.Resolve(message, intent.Context{
		LastBotPrompt: t.sess.LastBotPrompt,
		State:         t.sess.State,
	})
	e.metrics.ObserveIntent(string(resolved.Kind), resolved.Evidence.Stage)

	switch resolved.Kind {
	case intent.KindConfirm, intent.KindFinish:
		e.finalize(ctx, t)
	case intent.KindDeny, intent.KindCancel:
		t.sess.ResetFlow()
		t.reply("Tu pedido fue cancelado. Escribe *hola* cuando quieras ordenar de nuevo. 👋")
	case intent.KindAddMore:
		e.showMenu(t)
	default:
		t.reply(unclearReply(resolved))
	}
}

// finalize records the order in the ledger. The ledger call is bounded so a
// slow database cannot hold the per-user lock indefinitely.
func (e *Engine) finalize(ctx context.Context, t *turn) {
	order := &orders.Order{
		Phone:   t.sess.ID,
		Address: t.sess.TempData.PendingAddress,
		Total:   t.sess.CartTotal(),
	}
	for _, item := range t.sess.TempData.Cart {
		order.Items = append(order.Items, orders.Item{
			PizzaID:   item.PizzaID,
			Name:      item.Name,
			Size:      item.Size.Spanish(),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	ledgerCtx, cancel := context.WithTimeout(ctx, e.ledgerTimeout)
	defer cancel()
	if err := e.ledger.Create(ledgerCtx, order); err != nil {
		e.logger.Error("order creation failed", "phone", t.sess.ID, "error", err)
		t.ask("No pudimos registrar tu pedido. 😞 Escribe *sí* para intentarlo de nuevo o *no* para cancelar.\n¿Confirmas tu pedido?")
		return
	}

	t.sess.State = session.StateFinalized
	t.sess.TempData = session.TempData{Version: t.sess.TempData.Version}
	t.reply(fmt.Sprintf("✅ ¡Pedido confirmado!\nNúmero de pedido: %s\nTotal: $%.2f\nTu pizza va en camino. 🛵", shortID(order.ID), order.Total))
	t.effects = append(t.effects, OrderCreatedEffect{Order: *order})
	e.metrics.ObserveOrderCreated()
}

func (e *Engine) replyOrderStatus(ctx context.Context, t *turn) {
	recent, err := e.ledger.ListRecent(ctx, t.sess.ID, 3)
	if err != nil {
		e.logger.Error("order lookup failed", "phone", t.sess.ID, "error", err)
		t.reply("No pude consultar tus pedidos en este momento. Intenta más tarde.")
		return
	}
	if len(recent) == 0 {
		t.reply("No tienes pedidos recientes. Escribe *menú* para hacer uno. 🍕")
		return
	}
	var b strings.Builder
	b.WriteString("🧾 *Tus pedidos recientes*\n")
	for _, o := range recent {
		fmt.Fprintf(&b, "• %s - $%.2f - %s\n", shortID(o.ID), o.Total, statusSpanish(o.Status))
	}
	t.reply(b.String())
}

func cartSummary(s *session.Session) string {
	var b strings.Builder
	for _, item := range s.TempData.Cart {
		fmt.Fprintf(&b, "• %dx %s (%s) - $%.2f\n", item.Quantity, item.Name, item.Size.Spanish(), item.Subtotal())
	}
	fmt.Fprintf(&b, "Total: $%.2f", s.CartTotal())
	return b.String()
}

func unclearReply(resolved intent.Resolved) string {
	if resolved.Suggestion != "" {
		return resolved.Suggestion
	}
	return "No entendí tu mensaje. Escribe *ayuda* si necesitas asistencia."
}

func shortID(id string) string {
	if len(id) > 8 {
		return strings.ToUpper(id[:8])
	}
	return strings.ToUpper(id)
}

func statusSpanish(status string) string {
	switch status {
	case orders.StatusConfirmed:
		return "confirmado"
	case orders.StatusPreparing:
		return "en preparación"
	case orders.StatusDelivering:
		return "en camino"
	case orders.StatusDelivered:
		return "entregado"
	case orders.StatusCancelled:
		return "cancelado"
	}
	return status
}
