package director

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/vchat-meme-blip/polymarket-cafe/internal/keypool"
	"github.com/vchat-meme-blip/polymarket-cafe/internal/llm"
	"github.com/vchat-meme-blip/polymarket-cafe/internal/models"
)

// buildRequest assembles the completion request for t and fills in the
// participants' display names. It fails only when the turn has been
// superseded meanwhile.
func (d *Director) buildRequest(ctx context.Context, t *turn, cred keypool.Credential) (llm.Request, bool) {
	var (
		window []models.ChatMessage
		offer  *models.Offer
	)
	ok := d.withTurn(t.roomID, t.epoch, func(rs *roomState) {
		rs.room.State = models.StateGenerating
		msgs := rs.room.Messages
		if len(msgs) > d.cfg.ContextMessages {
			msgs = msgs[len(msgs)-d.cfg.ContextMessages:]
		}
		window = append(window, msgs...)
		if rs.room.ActiveOffer != nil {
			o := *rs.room.ActiveOffer
			offer = &o
		}
	})
	if !ok {
		return llm.Request{}, false
	}

	speaker := d.loadAgent(ctx, t.speaker)
	listener := d.loadAgent(ctx, t.listener)
	t.speakerName, t.listenerName = speaker.DisplayName(), listener.DisplayName()
	d.rememberNames(speaker, listener)

	names := map[string]string{
		speaker.ID:  t.speakerName,
		listener.ID: t.listenerName,
	}
	return llm.Request{
		APIKey:    cred.Key,
		System:    systemPrompt(speaker, listener, offer, names),
		Messages:  conversationContext(window, t.speaker, t.listenerName),
		Tools:     llm.NegotiationTools(),
		MaxTokens: d.cfg.MaxTokens,
	}, true
}

// loadAgent reads the ledger view of an agent. Unknown agents and store
// errors degrade to a bare record so the conversation continues.
func (d *Director) loadAgent(ctx context.Context, id string) *models.Agent {
	agent, err := d.ledger.GetAgent(ctx, id)
	if err != nil {
		d.logger.Warn().Err(err).Str("agent", id).Msg("failed to load agent")
	}
	if agent == nil {
		return &models.Agent{ID: id}
	}
	return agent
}

func systemPrompt(self, other *models.Agent, offer *models.Offer, names map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, an agent chatting in a trading cafe.", self.DisplayName())
	if self.Persona != "" {
		fmt.Fprintf(&b, " %s", self.Persona)
	}
	fmt.Fprintf(&b, "\n\nYou are talking with %s.", other.DisplayName())
	if other.Persona != "" {
		fmt.Fprintf(&b, " About them: %s", other.Persona)
	}

	fmt.Fprintf(&b, "\n\nYour balance is %s credits. Your holdings: %s.", self.Balance.String(), holdings(self))
	if offer != nil {
		fmt.Fprintf(&b, "\n\nOn the table: %s", describeOffer(offer, names))
		if offer.To == self.ID {
			b.WriteString(" You may accept_trade or reject_trade.")
		}
	}

	b.WriteString("\n\nReply in one to three short sentences, in character. " +
		"Do not start with your own name. " +
		"Use the tools to propose, accept or reject trades; only accept what you can afford.")
	return b.String()
}

func holdings(a *models.Agent) string {
	tokens := make([]string, 0, len(a.Portfolio))
	for token, qty := range a.Portfolio {
		if qty.IsPositive() {
			tokens = append(tokens, token)
		}
	}
	if len(tokens) == 0 {
		return "none"
	}
	sort.Strings(tokens)
	parts := make([]string, len(tokens))
	for i, token := range tokens {
		parts[i] = fmt.Sprintf("%s %s", a.Portfolio[token].String(), token)
	}
	return strings.Join(parts, ", ")
}

func describeOffer(o *models.Offer, names map[string]string) string {
	from := nameOf(o.From, names)
	if o.Kind == models.OfferToken {
		verb := "sell"
		if o.Action == models.ActionBuy {
			verb = "buy"
		}
		return fmt.Sprintf("%s wants to %s %s %s at %s credits each (%s total).",
			from, verb, o.Quantity.String(), o.Token, o.PricePerUnit.String(), o.Total().String())
	}
	return fmt.Sprintf("%s offers intel on %s for %s credits.", from, o.Token, o.Price.String())
}

func nameOf(id string, names map[string]string) string {
	if name, ok := names[id]; ok && name != "" {
		return name
	}
	return id
}

// conversationContext maps the window to provider roles from the
// speaker's point of view.
func conversationContext(window []models.ChatMessage, speakerID, listenerName string) []llm.Message {
	if len(window) == 0 {
		return []llm.Message{{
			Role: llm.RoleOther,
			Text: fmt.Sprintf("[The conversation is just starting. Greet %s and open the conversation.]", listenerName),
		}}
	}
	out := make([]llm.Message, 0, len(window))
	for _, msg := range window {
		switch {
		case msg.Sender == speakerID:
			out = append(out, llm.Message{Role: llm.RoleSelf, Text: msg.Text})
		case msg.Kind == models.MessageSystem:
			out = append(out, llm.Message{Role: llm.RoleOther, Text: "[" + msg.Text + "]"})
		default:
			out = append(out, llm.Message{Role: llm.RoleOther, Text: msg.Text})
		}
	}
	return out
}

// sanitize strips a leading "Name:" or "**Name**:" label and collapses
// whitespace.
func sanitize(text, name string) string {
	text = strings.TrimSpace(text)
	if name != "" {
		label := regexp.MustCompile(`(?i)^\**\s*` + regexp.QuoteMeta(name) + `\s*\**\s*:\s*\**`)
		text = label.ReplaceAllString(text, "")
	}
	return strings.Join(strings.Fields(text), " ")
}

// matchEndCue returns the first cue found in text, ignoring case.
func matchEndCue(text string, cues []string) string {
	if text == "" {
		return ""
	}
	lower := strings.ToLower(text)
	for _, cue := range cues {
		if cue != "" && strings.Contains(lower, strings.ToLower(cue)) {
			return cue
		}
	}
	return ""
}

func asRateLimit(err error) *llm.RateLimitError {
	var rl *llm.RateLimitError
	if errors.As(err, &rl) {
		return rl
	}
	return nil
}
