// Package engine drives one WhatsApp conversation turn: it routes the
// message, resolves or interprets it, advances the state machine, and emits
// effects for the transport layer to execute.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ordena/pizzabot/internal/catalog"
	"github.com/ordena/pizzabot/internal/customers"
	"github.com/ordena/pizzabot/internal/intent"
	"github.com/ordena/pizzabot/internal/nlu"
	"github.com/ordena/pizzabot/internal/observability/metrics"
	"github.com/ordena/pizzabot/internal/orders"
	"github.com/ordena/pizzabot/internal/routing"
	"github.com/ordena/pizzabot/internal/session"
	"github.com/ordena/pizzabot/pkg/logging"
)

// Engine processes inbound messages. It is safe for concurrent use; the
// session store serializes turns per user.
type Engine struct {
	sessions    *session.Store
	catalog     catalog.Provider
	customers   customers.Repository
	ledger      orders.Ledger
	interpreter nlu.Interpreter // nil disables the delegated path
	logger      *logging.Logger
	metrics     *metrics.ConversationMetrics

	nluTimeout    time.Duration
	ledgerTimeout time.Duration

	menuMu   sync.RWMutex
	lastMenu []catalog.Pizza
}

// Option configures an Engine.
type Option func(*Engine)

// WithInterpreter enables the language-model path for delegated messages.
func WithInterpreter(i nlu.Interpreter) Option {
	return func(e *Engine) { e.interpreter = i }
}

// WithMetrics attaches conversation metrics.
func WithMetrics(m *metrics.ConversationMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithNLUTimeout bounds how long one interpretation may take.
func WithNLUTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.nluTimeout = d
		}
	}
}

// WithLedgerTimeout bounds the order-creation call made during finalization.
func WithLedgerTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.ledgerTimeout = d
		}
	}
}

func New(sessions *session.Store, cat catalog.Provider, repo customers.Repository,
	ledger orders.Ledger, logger *logging.Logger, opts ...Option) *Engine {
	if sessions == nil {
		panic("engine: session store cannot be nil")
	}
	if cat == nil {
		panic("engine: catalog cannot be nil")
	}
	if repo == nil {
		panic("engine: customer repository cannot be nil")
	}
	if ledger == nil {
		panic("engine: order ledger cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	e := &Engine{
		sessions:      sessions,
		catalog:       cat,
		customers:     repo,
		ledger:        ledger,
		logger:        logger,
		nluTimeout:    5 * time.Second,
		ledgerTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ProcessMessage handles one inbound message and returns the effects to
// execute. A deferred durable write is not an error for the caller: the
// session lives in the fast tier and the write-back queue owns persistence.
func (e *Engine) ProcessMessage(ctx context.Context, phone, message string) ([]Effect, error) {
	start := time.Now()

	current, err := e.sessions.Get(ctx, phone)
	if err != nil {
		if !errors.Is(err, session.ErrCorruptSession) {
			return nil, fmt.Errorf("engine: failed to load session %s: %w", phone, err)
		}
		e.logger.Warn("session recovered from corrupt payload", "phone", phone, "error", err)
	}

	route := routing.Decide(message, current.State)
	e.metrics.ObserveMessage(string(route), string(current.State))

	menu, err := e.catalog.ListAvailable(ctx)
	if err != nil {
		e.logger.Error("menu load failed, serving last known menu", "phone", phone, "error", err)
		menu = e.lastKnownMenu()
		if menu == nil {
			return []Effect{ReplyEffect{Text: menuUnavailableReply}}, nil
		}
	} else {
		e.rememberMenu(menu)
	}

	customer, err := e.customers.Get(ctx, phone)
	if err != nil && !errors.Is(err, customers.ErrNotFound) {
		return nil, fmt.Errorf("engine: failed to load customer %s: %w", phone, err)
	}

	// Interpretation happens before the per-user lock is taken so a slow
	// model call never blocks other turns for this user longer than needed.
	var interp *nlu.Interpretation
	if route == routing.RouteDelegated && e.interpreter != nil {
		nluCtx, cancel := context.WithTimeout(ctx, e.nluTimeout)
		interp, err = e.interpreter.Interpret(nluCtx, message, current.State, menu)
		cancel()
		if err != nil {
			e.logger.Warn("interpretation failed, using deterministic path", "phone", phone, "error", err)
			e.metrics.ObserveNLUFallback()
			interp = nil
		}
	}

	t := &turn{customer: customer, menu: menu}
	_, err = e.sessions.Update(ctx, phone, func(s *session.Session) error {
		t.sess = s
		t.effects = nil
		// The route is re-derived against the locked state: a concurrent turn
		// may have moved the session since the speculative decision above, and
		// the deterministic pipeline must win on the state that is actually
		// current.
		if interp != nil && routing.Decide(message, s.State) == routing.RouteDelegated {
			e.applyInterpretation(ctx, t, message, interp)
		} else {
			e.step(ctx, t, message)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, session.ErrWriteDeferred) {
			e.logger.Warn("session persisted to fast tier only", "phone", phone)
			e.metrics.ObserveDeferredPersist()
		} else {
			return nil, fmt.Errorf("engine: failed to process message for %s: %w", phone, err)
		}
	}

	e.metrics.ObserveProcessing(string(route), time.Since(start).Seconds())
	return t.effects, nil
}

// applyInterpretation maps a model interpretation onto the state machine.
// Actions that make no sense in the current state degrade to the
// deterministic pipeline instead of trusting the model blindly.
func (e *Engine) applyInterpretation(ctx context.Context, t *turn, message string, interp *nlu.Interpretation) {
	if t.sess.State == session.StateFinalized {
		t.sess.ResetFlow()
	}

	// Registration cannot be skipped, whatever the model saw.
	if t.customer == nil &&
		(t.sess.State == session.StateInitial ||
			t.sess.State == session.StateRegisteringName ||
			t.sess.State == session.StateRegisteringAddress) {
		e.step(ctx, t, message)
		return
	}

	switch interp.Action {
	case nlu.ActionAddItems, nlu.ActionReplaceCart:
		// All indexes are checked before the first append so a bad item
		// cannot leave a half-applied cart behind.
		for _, item := range interp.Items {
			if item.MenuIndex < 1 || item.MenuIndex > len(t.menu) {
				e.replyMenuRange(t)
				return
			}
		}
		if interp.Action == nlu.ActionReplaceCart {
			t.sess.TempData.Cart = nil
		}
		for _, item := range interp.Items {
			size, _ := session.ParseSize(item.Size)
			e.appendItem(t, item.MenuIndex, size, item.Quantity)
		}
		e.confirmAdded(t)
	case nlu.ActionClearCart:
		t.sess.TempData.Cart = nil
		t.effects = append(t.effects, ClearCartEffect{})
		t.reply("Carrito vacío. 🧹")
		e.showMenu(t)
	case nlu.ActionSetAddress:
		if t.sess.State == session.StateCollectingAddress && validAddress(interp.Address) {
			t.sess.TempData.PendingAddress = interp.Address
			e.askConfirmation(t)
			return
		}
		e.step(ctx, t, message)
	case nlu.ActionShowMenu:
		e.showMenu(t)
	case nlu.ActionConfirm:
		e.applyIntent(ctx, t, intent.KindConfirm)
	case nlu.ActionDeny:
		e.applyIntent(ctx, t, intent.KindDeny)
	case nlu.ActionCancel:
		e.applyIntent(ctx, t, intent.KindCancel)
	case nlu.ActionFinish:
		e.applyIntent(ctx, t, intent.KindFinish)
	case nlu.ActionChat:
		t.reply(interp.Message)
	default:
		e.step(ctx, t, message)
	}
}

// applyIntent advances the state machine with an already-resolved intent.
func (e *Engine) applyIntent(ctx context.Context, t *turn, kind intent.Kind) {
	if kind == intent.KindCancel {
		t.sess.ResetFlow()
		t.reply("Tu pedido fue cancelado. Escribe *hola* cuando quieras ordenar de nuevo. 👋")
		return
	}

	switch t.sess.State {
	case session.StateBrowsingMenu, session.StateBuildingOrder:
		if kind == intent.KindConfirm || kind == intent.KindFinish {
			e.proceedToAddress(t)
			return
		}
	case session.StateCollectingAddress:
		hasRegistered := t.customer != nil && t.customer.Address != ""
		if kind == intent.KindConfirm && hasRegistered {
			t.sess.TempData.PendingAddress = t.customer.Address
			e.askConfirmation(t)
			return
		}
		if kind == intent.KindDeny && hasRegistered {
			t.ask("Perfecto, ¿a qué dirección enviamos tu pedido? Incluye calle y número.")
			return
		}
	case session.StateConfirmingOrder:
		if kind == intent.KindConfirm || kind == intent.KindFinish {
			e.finalize(ctx, t)
			return
		}
		if kind == intent.KindDeny {
			t.sess.ResetFlow()
			t.reply("Tu pedido fue cancelado. Escribe *hola* cuando quieras ordenar de nuevo. 👋")
			return
		}
	}
	t.reply("No entendí tu mensaje. Escribe *ayuda* si necesitas asistencia.")
}

const menuUnavailableReply = "Estamos teniendo problemas técnicos en este momento. 😞 Intenta de nuevo en unos minutos."

func (e *Engine) rememberMenu(menu []catalog.Pizza) {
	e.menuMu.Lock()
	e.lastMenu = menu
	e.menuMu.Unlock()
}

func (e *Engine) lastKnownMenu() []catalog.Pizza {
	e.menuMu.RLock()
	defer e.menuMu.RUnlock()
	return e.lastMenu
}

// Close flushes the session store.
func (e *Engine) Close(ctx context.Context) error {
	return e.sessions.Close(ctx)
}
