package intent

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/ordena/pizzabot/internal/session"
)

// directRule maps a message pattern straight to an intent. Order matters:
// the first matching rule wins.
type directRule struct {
	re   *regexp.Regexp
	kind Kind
}

var directRules = []directRule{
	// Cancellations first so "mejor no" is not read as a bare denial.
	{regexp.MustCompile(`^(cancel|cancelar|cancela|salir|exit|quit|para|parar|stop)$`), KindCancel},
	{regexp.MustCompile(`^(ya\s*no|mejor\s*no|olvida|olvidalo|olvídalo)`), KindCancel},

	// Positive confirmations, including common misspellings and jargon.
	{regexp.MustCompile(`^(si|sí|yes|ok|okay|okey|vale|va|asi|así|perfecto|bien|correcto|exacto|claro)$`), KindConfirm},
	{regexp.MustCompile(`^(s|sy|zi|ci)$`), KindConfirm},
	{regexp.MustCompile(`^(yep|yup|yeah|seh|sep|aja|ajá|ujum|ujúm)$`), KindConfirm},
	{regexp.MustCompile(`^(👍|✅|🙂|😊|👌)$`), KindConfirm},
	{regexp.MustCompile(`esta\s*bien|estabien|ta\s*bien|tabien`), KindConfirm},

	// Denials.
	{regexp.MustCompile(`^(no|nop|nope|nada|nunca|neg|negativo)$`), KindDeny},
	{regexp.MustCompile(`^(n|nn|noo+)$`), KindDeny},
	{regexp.MustCompile(`^(❌|👎|🚫|😕|😞)$`), KindDeny},

	// Cart-wide commands.
	{regexp.MustCompile(`(limpiar|vaciar|borrar)\s*(el\s*)?(carrito|pedido)`), KindClearCart},

	// Order finalization.
	{regexp.MustCompile(`confirmar|confirma|finalizar|finaliza|terminar|termina|listo|ya\s*esta|ya\s*está`), KindFinish},
	{regexp.MustCompile(`proceder|procede|continuar|continua|seguir|sigue`), KindFinish},
	{regexp.MustCompile(`eso\s*es\s*todo|ya\s*termine|ya\s*terminé|nada\s*mas|nada\s*más`), KindFinish},

	// Adding more items.
	{regexp.MustCompile(`\b(otra|adicional|agregar|agrega|tambien|también)\b`), KindAddMore},
	{regexp.MustCompile(`quiero\s*(otra|mas|más)|me\s*das\s*(otra|mas|más)|y\s*(otra|mas|más)`), KindAddMore},
}

// typoCorrections is a fixed dictionary of known misspellings. Corrections
// are purely textual: they fix spelling, never meaning.
var typoCorrections = map[string]string{
	"pizzza":     "pizza",
	"piza":       "pizza",
	"pissa":      "pizza",
	"pizzaa":     "pizza",
	"margarida":  "margarita",
	"margherita": "margarita",
	"peperoni":   "pepperoni",
	"peperony":   "pepperoni",
	"champinon":  "champiñones",
	"champiñon":  "champiñones",
	"champignon": "champiñones",
	"grnade":     "grande",
	"granade":    "grande",
	"median":     "mediana",
	"pequena":    "pequeña",
	"chica":      "pequeña",
	"confirmr":   "confirmar",
	"confiram":   "confirmar",
	"confimar":   "confirmar",
}

// questionContext ties a pattern in the last bot prompt to the response
// tokens that question expects.
type expectedToken struct {
	token string
	kind  Kind
}

type questionContext struct {
	re       *regexp.Regexp
	expected []expectedToken
}

var questionContexts = []questionContext{
	{
		re: regexp.MustCompile(`confirma(r|s).*pedido`),
		expected: []expectedToken{
			{"confirmar", KindConfirm},
			{"proceder", KindConfirm},
		},
	},
	{
		re: regexp.MustCompile(`agregar.*m[aá]s`),
		expected: []expectedToken{
			{"agregar", KindAddMore},
			{"otra", KindAddMore},
		},
	},
	{
		re: regexp.MustCompile(`direcci[oó]n.*registrada`),
		expected: []expectedToken{
			{"nueva", KindDeny},
			{"otra", KindDeny},
			{"usar", KindConfirm},
			{"direccion", KindConfirm},
		},
	},
	{
		re: regexp.MustCompile(`(finalizar|continuar).*pedido`),
		expected: []expectedToken{
			{"finalizar", KindFinish},
			{"terminar", KindFinish},
			{"continuar", KindFinish},
			{"seguir", KindFinish},
		},
	},
}

var (
	punctuationRuns = regexp.MustCompile(`[.!?]{2,}`)

	positiveEmojis = "👍✅🙂😊👌🍕"
	negativeEmojis = "👎❌🚫😕😞"
	confusedEmojis = "🤔❓🤷"
)

// Resolve maps a message onto an intent using staged matching: typo-corrected
// direct patterns, then the last bot prompt as context, then emoji-only
// interpretation. Unresolvable input yields KindUnclear with a clarification
// suggestion; it is never an error.
func Resolve(message string, ctx Context) Resolved {
	cleaned := normalize(message)
	corrected := correctTypos(cleaned)

	if resolved, ok := resolveDirect(corrected); ok {
		return resolved
	}

	if resolved, ok := resolveFromContext(corrected, ctx); ok {
		return resolved
	}

	if isEmojiOnly(strings.TrimSpace(message)) {
		return interpretEmoji(strings.TrimSpace(message), ctx)
	}

	return Resolved{
		Kind:       KindUnclear,
		Confidence: 0,
		Evidence:   Evidence{Stage: StageNone, CorrectedText: corrected},
		Suggestion: clarificationFor(ctx.State),
	}
}

// normalize lowercases, collapses whitespace, strips runs of punctuation, and
// collapses repeated emoji so "👍👍👍" reads as "👍".
func normalize(message string) string {
	cleaned := strings.ToLower(strings.TrimSpace(message))
	cleaned = punctuationRuns.ReplaceAllString(cleaned, "")
	cleaned = strings.Trim(cleaned, ".,!?;:¡¿ ")
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	return collapseRepeatedRunes(cleaned, positiveEmojis+negativeEmojis+confusedEmojis)
}

func collapseRepeatedRunes(s, set string) string {
	var b strings.Builder
	var previous rune
	for _, r := range s {
		if r == previous && strings.ContainsRune(set, r) {
			continue
		}
		b.WriteRune(r)
		previous = r
	}
	return b.String()
}

// correctTypos replaces whole tokens found in the typo dictionary, keeping
// surrounding punctuation intact.
func correctTypos(message string) string {
	fields := strings.Fields(message)
	for i, token := range fields {
		core := strings.TrimFunc(token, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if core == "" {
			continue
		}
		if replacement, ok := typoCorrections[core]; ok {
			fields[i] = strings.Replace(token, core, replacement, 1)
		}
	}
	return strings.Join(fields, " ")
}

func resolveDirect(corrected string) (Resolved, bool) {
	for _, rule := range directRules {
		if !rule.re.MatchString(corrected) {
			continue
		}
		confidence := 0.8
		if len(strings.Fields(corrected)) <= 2 {
			confidence = 0.9
		}
		return Resolved{
			Kind:       rule.kind,
			Confidence: confidence,
			Evidence: Evidence{
				Stage:         StageDirect,
				Pattern:       rule.re.String(),
				CorrectedText: corrected,
			},
		}, true
	}
	return Resolved{}, false
}

func resolveFromContext(corrected string, ctx Context) (Resolved, bool) {
	prompt := strings.ToLower(ctx.LastBotPrompt)
	if prompt != "" {
		for _, qc := range questionContexts {
			if !qc.re.MatchString(prompt) {
				continue
			}
			for _, exp := range qc.expected {
				if strings.Contains(corrected, exp.token) || fuzzyMatch(corrected, exp.token) {
					return Resolved{
						Kind:       exp.kind,
						Confidence: 0.7,
						Evidence: Evidence{
							Stage:         StageContext,
							Pattern:       qc.re.String(),
							CorrectedText: corrected,
						},
					}, true
				}
			}
		}
	}

	// Very short replies to a confirmation question lean on the question
	// itself: "s", "io", "sip" read as yes, "n" as no.
	if ctx.State == session.StateConfirmingOrder || strings.Contains(prompt, "confirma") {
		if len([]rune(corrected)) > 0 && len([]rune(corrected)) <= 5 && containsAnyRune(corrected, "sinoy") {
			kind := KindDeny
			if containsAnyRune(corrected, "sio") {
				kind = KindConfirm
			}
			return Resolved{
				Kind:       kind,
				Confidence: 0.7,
				Evidence:   Evidence{Stage: StageContext, Pattern: "short-confirmation-reply", CorrectedText: corrected},
			}, true
		}
	}

	return Resolved{}, false
}

// fuzzyMatch reports whether two short texts overlap by at least 80% of their
// characters, tolerating scrambled or partially typed words.
func fuzzyMatch(text, expected string) bool {
	a, b := []rune(text), []rune(expected)
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if abs(len(a)-len(b)) > longest/2 {
		return false
	}
	common := 0
	for _, r := range a {
		if strings.ContainsRune(expected, r) {
			common++
		}
	}
	return float64(common)/float64(longest) >= 0.8
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func containsAnyRune(s, set string) bool {
	return strings.ContainsAny(s, set)
}

// isEmojiOnly reports whether the entire trimmed message sits in the common
// emoji blocks.
func isEmojiOnly(message string) bool {
	if message == "" {
		return false
	}
	for _, r := range message {
		if r == 0xFE0F { // variation selector
			continue
		}
		if !isEmojiRune(r) {
			return false
		}
	}
	return true
}

func isEmojiRune(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1F5FF,
		r >= 0x1F600 && r <= 0x1F64F,
		r >= 0x1F680 && r <= 0x1F6FF,
		r >= 0x1F900 && r <= 0x1F9FF,
		r >= 0x1F1E0 && r <= 0x1F1FF,
		r >= 0x2600 && r <= 0x26FF,
		r >= 0x2700 && r <= 0x27BF:
		return true
	}
	return false
}

func interpretEmoji(message string, ctx Context) Resolved {
	evidence := Evidence{Stage: StageEmoji, CorrectedText: message}
	switch {
	case strings.ContainsAny(message, positiveEmojis):
		return Resolved{Kind: KindConfirm, Confidence: 0.8, Evidence: evidence}
	case strings.ContainsAny(message, negativeEmojis):
		return Resolved{Kind: KindDeny, Confidence: 0.8, Evidence: evidence}
	case strings.ContainsAny(message, confusedEmojis):
		return Resolved{Kind: KindConfused, Confidence: 0.9, Evidence: evidence}
	}
	return Resolved{
		Kind:       KindUnclear,
		Confidence: 0.3,
		Evidence:   evidence,
		Suggestion: clarificationFor(ctx.State),
	}
}

// clarificationFor derives a clarification suggestion from the conversation
// state so an unparseable message still moves the user forward.
func clarificationFor(state session.State) string {
	switch state {
	case session.StateBuildingOrder:
		return "Parece que quieres continuar con tu pedido. ¿Podrías ser más específico?\n" +
			"• Escribe 'confirmar' para finalizar el pedido\n" +
			"• Escribe el número y tamaño de otra pizza para agregar más\n" +
			"• Escribe 'cancelar' para cancelar el pedido"
	case session.StateConfirmingOrder:
		return "¿Te gustaría confirmar tu pedido?\n" +
			"• Escribe 'sí' para confirmar\n" +
			"• Escribe 'no' para cancelar"
	case session.StateCollectingAddress:
		return "¿Sobre la dirección de entrega?\n" +
			"• Escribe 'sí' para usar tu dirección registrada\n" +
			"• Escribe 'no' para ingresar una nueva dirección"
	default:
		return "No entendí tu mensaje. ¿Podrías ser más específico?\n" +
			"Escribe 'ayuda' si necesitas asistencia."
	}
}
