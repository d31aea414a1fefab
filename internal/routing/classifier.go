package routing

import (
	"sort"
	"strings"

	"switchyard/internal/api"
)

// Classifier assigns a category to a request.
type Classifier interface {
	Classify(req api.Request) api.Category
}

// KeywordClassifier matches profile keywords against the request text. The first
// profile with a matching keyword wins; requests matching nothing are general.
type KeywordClassifier struct {
	profiles []Profile
}

// NewKeywordClassifier builds a classifier over profiles, evaluated in order.
func NewKeywordClassifier(profiles []Profile) *KeywordClassifier {
	return &KeywordClassifier{profiles: profiles}
}

// Classify implements Classifier.
func (c *KeywordClassifier) Classify(req api.Request) api.Category {
	text := requestText(req)
	for _, p := range c.profiles {
		for _, kw := range p.Keywords {
			if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
				return p.Category
			}
		}
	}
	return api.CategoryGeneral
}

// requestText joins the method and every top-level string parameter, lower-cased.
// Keys are visited in sorted order so the text is stable.
func requestText(req api.Request) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(req.Method))

	keys := make([]string, 0, len(req.Params))
	for k := range req.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if s, ok := req.Params[k].(string); ok {
			b.WriteByte(' ')
			b.WriteString(strings.ToLower(s))
		}
	}
	return b.String()
}

// ClassifierFunc adapts a plain function to the Classifier interface.
type ClassifierFunc func(req api.Request) api.Category

// Classify implements Classifier.
func (f ClassifierFunc) Classify(req api.Request) api.Category {
	return f(req)
}
