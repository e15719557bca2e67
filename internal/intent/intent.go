// Package intent resolves ambiguous, misspelled, or emoji-only messages into
// a typed intent with a confidence score. Resolution is pure and
// deterministic: the same message and context always produce the same result.
package intent

import "github.com/ordena/pizzabot/internal/session"

// Kind is the closed set of intents the engine understands.
type Kind string

const (
	KindConfirm     Kind = "confirm"
	KindDeny        Kind = "deny"
	KindCancel      Kind = "cancel"
	KindFinish      Kind = "finish"
	KindAddMore     Kind = "add_more"
	KindConfused    Kind = "confused"
	KindUnclear     Kind = "unclear"
	KindAddItem     Kind = "add_item"
	KindReplaceCart Kind = "replace_cart"
	KindClearCart   Kind = "clear_cart"
)

// Stage names which resolution stage produced a result, for testability and
// metrics.
const (
	StageDirect  = "direct"
	StageContext = "context"
	StageEmoji   = "emoji"
	StageNone    = "none"
)

// Evidence records which rule fired and what the message looked like after
// normalization and typo correction.
type Evidence struct {
	Stage         string
	Pattern       string
	CorrectedText string
}

// Resolved is the outcome of resolving one message. It is ephemeral and
// never persisted.
type Resolved struct {
	Kind       Kind
	Confidence float64
	Evidence   Evidence
	// Suggestion is a state-derived clarification offered when the message
	// could not be resolved.
	Suggestion string
}

// Context carries the conversational surroundings used by the
// context-assisted stage.
type Context struct {
	LastBotPrompt string
	State         session.State
}
