package feed

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed profile.yml
var defaultProfile []byte

type profileFile struct {
	RatingMarker  string        `yaml:"rating_marker"`
	CommentMarker string        `yaml:"comment_marker"`
	Ratings       []ratingEntry `yaml:"ratings"`
	Rules         []ruleEntry   `yaml:"rules"`
}

type ratingEntry struct {
	Keyword string `yaml:"keyword"`
	Stars   int    `yaml:"stars"`
}

type ruleEntry struct {
	Prefix  string `yaml:"prefix"`
	Pattern string `yaml:"pattern"`
	File    string `yaml:"file"`
	Status  string `yaml:"status"`
	Type    string `yaml:"type"`
}

// DefaultProfile returns the built-in profile for the Douban interests feed.
func DefaultProfile() *Profile {
	profile, err := ParseProfile(defaultProfile)
	if err != nil {
		panic(fmt.Sprintf("built-in profile is invalid: %v", err))
	}
	return profile
}

// LoadProfile reads a profile from a YAML file, or returns the built-in
// profile when path is empty.
func LoadProfile(path string) (*Profile, error) {
	if path == "" {
		return DefaultProfile(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}

	profile, err := ParseProfile(data)
	if err != nil {
		return nil, fmt.Errorf("invalid profile %s: %w", path, err)
	}
	return profile, nil
}

func ParseProfile(data []byte) (*Profile, error) {
	var raw profileFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if raw.RatingMarker == "" {
		raw.RatingMarker = "推荐"
	}
	if raw.CommentMarker == "" {
		raw.CommentMarker = "短评"
	}

	profile := &Profile{
		RatingMarker:  raw.RatingMarker,
		CommentMarker: raw.CommentMarker,
	}

	for i, r := range raw.Ratings {
		if r.Keyword == "" {
			return nil, fmt.Errorf("rating at index %d has no keyword", i)
		}
		if r.Stars < 1 || r.Stars > 5 {
			return nil, fmt.Errorf("rating '%s' must have 1 to 5 stars, got %d", r.Keyword, r.Stars)
		}
		profile.Ratings = append(profile.Ratings, RatingLevel{Keyword: r.Keyword, Stars: r.Stars})
	}

	for i, r := range raw.Rules {
		rule, err := compileRule(r)
		if err != nil {
			return nil, fmt.Errorf("rule at index %d: %w", i, err)
		}
		profile.Rules = append(profile.Rules, rule)
	}

	if err := validateProfile(profile); err != nil {
		return nil, err
	}

	return profile, nil
}

func compileRule(r ruleEntry) (CategoryRule, error) {
	requiredFields := []struct{ name, value string }{
		{"file", r.File},
		{"status", r.Status},
		{"type", r.Type},
	}
	for _, field := range requiredFields {
		if strings.TrimSpace(field.value) == "" {
			return CategoryRule{}, fmt.Errorf("%s is required", field.name)
		}
	}

	expr := r.Pattern
	switch {
	case r.Prefix != "" && r.Pattern != "":
		return CategoryRule{}, fmt.Errorf("prefix and pattern are mutually exclusive")
	case r.Prefix != "":
		expr = "^" + regexp.QuoteMeta(r.Prefix)
	case r.Pattern == "":
		return CategoryRule{}, fmt.Errorf("prefix or pattern is required")
	case !strings.HasPrefix(r.Pattern, "^"):
		expr = "^(?:" + r.Pattern + ")"
	}

	pattern, err := regexp.Compile(expr)
	if err != nil {
		return CategoryRule{}, fmt.Errorf("invalid pattern '%s': %w", r.Pattern, err)
	}

	return CategoryRule{
		Prefix:    r.Prefix,
		Pattern:   pattern,
		File:      r.File,
		Status:    r.Status,
		MediaType: r.Type,
	}, nil
}

func validateProfile(p *Profile) error {
	if len(p.Rules) == 0 {
		return fmt.Errorf("at least one rule is required")
	}

	files := make(map[string]string)
	for i, rule := range p.Rules {
		if file, ok := files[rule.MediaType]; ok && file != rule.File {
			return fmt.Errorf("rule at index %d maps type '%s' to '%s', already mapped to '%s'", i, rule.MediaType, rule.File, file)
		}
		files[rule.MediaType] = rule.File

		if rule.Prefix == "" {
			continue
		}
		// A rule whose prefix starts with an earlier rule's prefix can never match.
		for j := 0; j < i; j++ {
			earlier := p.Rules[j]
			if earlier.Prefix != "" && strings.HasPrefix(rule.Prefix, earlier.Prefix) {
				return fmt.Errorf("rule '%s' at index %d is shadowed by rule '%s' at index %d", rule.Prefix, i, earlier.Prefix, j)
			}
		}
	}

	return nil
}
