package bot

import "strings"

// Responder turns an incoming chat message into a reply. Implementations
// must be safe for concurrent use; the HTTP layer calls them from multiple
// request goroutines.
type Responder interface {
	Respond(message string) string
}

// Rule maps a keyword to a canned reply. Matching is a case-insensitive
// substring check.
type Rule struct {
	Keyword string
	Reply   string
}

// KeywordResponder answers with the reply of the first rule whose keyword
// occurs in the message, or with a fixed default. It holds no state and is
// a stand-in for real conversation logic.
type KeywordResponder struct {
	rules        []Rule
	defaultReply string
}

// DefaultRules are checked in order; "hello" wins over "how are you" when
// both occur in a message.
var DefaultRules = []Rule{
	{Keyword: "hello", Reply: "Hi there!"},
	{Keyword: "how are you", Reply: "I'm doing well, thank you!"},
}

const defaultReply = "I didn't understand that."

// NewKeywordResponder creates a responder with the given ordered rules.
// An empty rule set always yields the default reply.
func NewKeywordResponder(rules []Rule, fallback string) *KeywordResponder {
	return &KeywordResponder{rules: rules, defaultReply: fallback}
}

// NewDefaultResponder creates a responder with the stock rule set.
func NewDefaultResponder() *KeywordResponder {
	return NewKeywordResponder(DefaultRules, defaultReply)
}

func (r *KeywordResponder) Respond(message string) string {
	lowered := strings.ToLower(message)
	for _, rule := range r.rules {
		if strings.Contains(lowered, strings.ToLower(rule.Keyword)) {
			return rule.Reply
		}
	}
	return r.defaultReply
}
