package feed

import "strings"

type Classifier struct {
	rules []CategoryRule
}

// NewClassifier keeps its own copy of rules; evaluation order is slice order.
func NewClassifier(rules []CategoryRule) *Classifier {
	return &Classifier{
		rules: append([]CategoryRule(nil), rules...),
	}
}

// Run returns the first rule whose pattern matches the start of title.
func (c *Classifier) Run(title string) (CategoryRule, bool) {
	title = strings.TrimSpace(title)
	if title == "" {
		return CategoryRule{}, false
	}

	for _, rule := range c.rules {
		if rule.Pattern.MatchString(title) {
			return rule, true
		}
	}

	return CategoryRule{}, false
}

func (c *Classifier) Rules() []CategoryRule {
	return append([]CategoryRule(nil), c.rules...)
}
