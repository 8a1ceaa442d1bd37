package detector

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed recognizers.yaml
var defaultRecognizersYAML []byte

// RecognizerFile is the top-level layout of a recognizer YAML file.
type RecognizerFile struct {
	Recognizers []RecognizerConfig `yaml:"recognizers"`
}

// RecognizerConfig describes one recognizer: a set of patterns (and an
// optional deny list) that all report the same entity type.
type RecognizerConfig struct {
	Name            string          `yaml:"name"`
	SupportedEntity string          `yaml:"supported_entity"`
	Enabled         *bool           `yaml:"enabled,omitempty"`
	Patterns        []PatternConfig `yaml:"patterns,omitempty"`
	DenyList        []string        `yaml:"deny_list,omitempty"`
	DenyListScore   float64         `yaml:"deny_list_score,omitempty"`
	// Validation names a post-match check: "luhn" or "ip".
	Validation string `yaml:"validation,omitempty"`
}

// PatternConfig is a single regex within a recognizer.
type PatternConfig struct {
	Name  string  `yaml:"name"`
	Regex string  `yaml:"regex"`
	Score float64 `yaml:"score"`
}

func (r *RecognizerConfig) enabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// ParseRecognizerFile parses recognizer YAML.
func ParseRecognizerFile(data []byte) (*RecognizerFile, error) {
	var rf RecognizerFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse recognizer YAML: %w", err)
	}
	for i, r := range rf.Recognizers {
		if r.Name == "" || r.SupportedEntity == "" {
			return nil, fmt.Errorf("recognizer %d: name and supported_entity are required", i)
		}
	}
	return &rf, nil
}

// LoadRecognizerFile reads a recognizer YAML file. A missing file yields
// (nil, nil).
func LoadRecognizerFile(path string) (*RecognizerFile, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path from operator config
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read recognizer file %s: %w", path, err)
	}
	return ParseRecognizerFile(data)
}

// DefaultRecognizers returns the built-in recognizers.
func DefaultRecognizers() ([]RecognizerConfig, error) {
	rf, err := ParseRecognizerFile(defaultRecognizersYAML)
	if err != nil {
		return nil, fmt.Errorf("built-in recognizers: %w", err)
	}
	return rf.Recognizers, nil
}

// MergeRecognizers layers recognizer lists; a later recognizer replaces an
// earlier one with the same name, new names are appended.
func MergeRecognizers(layers ...[]RecognizerConfig) []RecognizerConfig {
	index := make(map[string]int)
	var merged []RecognizerConfig
	for _, layer := range layers {
		for _, rc := range layer {
			if i, ok := index[rc.Name]; ok {
				merged[i] = rc
				continue
			}
			index[rc.Name] = len(merged)
			merged = append(merged, rc)
		}
	}
	return merged
}

// recognizer is a compiled pattern ready to run.
type recognizer struct {
	name     string
	entity   string
	re       *regexp.Regexp
	score    float64
	validate func(string) bool
}

func compile(recs []RecognizerConfig) ([]recognizer, error) {
	var out []recognizer
	for _, rc := range recs {
		if !rc.enabled() {
			continue
		}
		validate, err := validator(rc.Validation)
		if err != nil {
			return nil, fmt.Errorf("recognizer %q: %w", rc.Name, err)
		}
		for _, p := range rc.Patterns {
			re, err := regexp.Compile(p.Regex)
			if err != nil {
				return nil, fmt.Errorf("compile pattern %q in recognizer %q: %w", p.Name, rc.Name, err)
			}
			out = append(out, recognizer{name: rc.Name + "/" + p.Name, entity: rc.SupportedEntity, re: re, score: p.Score, validate: validate})
		}
		if len(rc.DenyList) > 0 {
			words := make([]string, len(rc.DenyList))
			for i, w := range rc.DenyList {
				words[i] = regexp.QuoteMeta(w)
			}
			score := rc.DenyListScore
			if score == 0 {
				score = 1.0
			}
			re := regexp.MustCompile(`\b(?:` + strings.Join(words, "|") + `)\b`)
			out = append(out, recognizer{name: rc.Name + "/deny_list", entity: rc.SupportedEntity, re: re, score: score, validate: validate})
		}
	}
	return out, nil
}
