package search

import (
	"strings"
)

// Classifier decides whether a message needs live information.
type Classifier interface {
	NeedsRealtime(message string) bool
}

// DefaultKeywords covers time-sensitive topics: weather, news, markets,
// sports, social media and public health, plus question openers that
// usually ask about the present.
var DefaultKeywords = []string{
	"weather", "temperature", "forecast", "climate",
	"today", "now", "current", "latest", "recent",
	"news", "breaking", "happening",
	"price", "stock", "crypto", "bitcoin", "ethereum",
	"score", "game", "match", "sports",
	"what is", "when is", "where is",
	"how is", "did", "has", "will",
	"twitter", "instagram", "facebook", "trending",
	"covid", "pandemic", "virus",
}

// KeywordClassifier is a case-insensitive substring match with no
// language understanding: "known" matches "now".
type KeywordClassifier struct {
	keywords []string
}

func NewKeywordClassifier(keywords []string) *KeywordClassifier {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	lowered := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			lowered = append(lowered, k)
		}
	}
	return &KeywordClassifier{keywords: lowered}
}

func (c *KeywordClassifier) NeedsRealtime(message string) bool {
	message = strings.ToLower(message)
	for _, keyword := range c.keywords {
		if strings.Contains(message, keyword) {
			return true
		}
	}
	return false
}

// Never is a Classifier that disables augmentation.
type Never struct{}

func (Never) NeedsRealtime(string) bool { return false }
