package services

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"minerva/internal/data/embedded"
	"minerva/internal/testutils"
	"minerva/pkg/minervatypes"
)

// conceptMessageWindow is how many leading messages feed frequency counting.
const conceptMessageWindow = 3

// fallbackWordLimit caps the word count of the first-user-message fallback title.
const fallbackWordLimit = 5

// ConceptService derives human-readable conversation titles from early
// message text via frequency-based keyword extraction. Extraction itself is
// pure; the service only carries the stop-word list and the clock used by the
// timestamp placeholder.
type ConceptService struct {
	initialized bool
	ctx         minervatypes.Context
	stopwords   map[string]struct{}
}

// NewConceptService creates a new ConceptService instance.
func NewConceptService(ctx minervatypes.Context) *ConceptService {
	return &ConceptService{ctx: ctx}
}

// Name returns the service name "concept" for registration.
func (c *ConceptService) Name() string {
	return "concept"
}

// Initialize loads the embedded stop-word list.
func (c *ConceptService) Initialize() error {
	var parsed struct {
		Stopwords []string `yaml:"stopwords"`
	}
	if err := yaml.Unmarshal(embedded.StopwordsData, &parsed); err != nil {
		return fmt.Errorf("failed to parse embedded stopwords: %w", err)
	}

	c.stopwords = make(map[string]struct{}, len(parsed.Stopwords))
	for _, w := range parsed.Stopwords {
		c.stopwords[strings.ToLower(w)] = struct{}{}
	}

	c.initialized = true
	return nil
}

// ExtractTitle derives a concept title from the first messages of a
// conversation. The boolean reports whether the result is concept-derived;
// fallback titles (truncated first user message, timestamp placeholder)
// return false so callers never overwrite a real title with a default.
func (c *ConceptService) ExtractTitle(messages []minervatypes.Message) (string, bool) {
	if !c.initialized {
		return "", false
	}

	tokens := c.rankedTokens(messages)

	switch {
	case len(tokens) >= 2:
		return capitalize(tokens[0]) + " " + capitalize(tokens[1]) + " Discussion", true
	case len(tokens) == 1:
		return capitalize(tokens[0]) + " Discussion", true
	}

	if title := firstUserMessageTitle(messages); title != "" {
		return title, false
	}

	return "Chat - " + testutils.GetCurrentTime(c.ctx).Format("Jan 2, 2006"), false
}

// rankedTokens tokenizes the first messages and returns the remaining tokens
// ordered by descending frequency. Frequency ties keep first-occurrence
// order, making extraction deterministic.
func (c *ConceptService) rankedTokens(messages []minervatypes.Message) []string {
	window := messages
	if len(window) > conceptMessageWindow {
		window = window[:conceptMessageWindow]
	}

	var sb strings.Builder
	for _, msg := range window {
		sb.WriteString(msg.Content)
		sb.WriteString(" ")
	}

	normalized := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, sb.String())

	counts := make(map[string]int)
	var order []string
	for _, tok := range strings.Fields(normalized) {
		if len(tok) <= 2 {
			continue
		}
		if _, stop := c.stopwords[tok]; stop {
			continue
		}
		if counts[tok] == 0 {
			order = append(order, tok)
		}
		counts[tok]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	return order
}

// firstUserMessageTitle truncates the first user message to a short title,
// appending an ellipsis when words were dropped. Returns "" when no user
// message exists.
func firstUserMessageTitle(messages []minervatypes.Message) string {
	for _, msg := range messages {
		if msg.Role != "user" {
			continue
		}
		words := strings.Fields(msg.Content)
		if len(words) == 0 {
			continue
		}
		if len(words) > fallbackWordLimit {
			return strings.Join(words[:fallbackWordLimit], " ") + "..."
		}
		return strings.Join(words, " ")
	}
	return ""
}

// capitalize upper-cases the first rune of a token.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
