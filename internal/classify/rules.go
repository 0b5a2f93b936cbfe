package classify

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

// Rules is the filter configuration the classifier evaluates jobs against.
// All matching is case-insensitive substring containment.
type Rules struct {
	Subjects struct {
		Accept []string `yaml:"accept"`
		Reject []string `yaml:"reject"`
	} `yaml:"subjects"`
	SchoolLevels struct {
		Accept []string `yaml:"accept"`
		Reject []string `yaml:"reject"`
	} `yaml:"school_levels"`
	Schools struct {
		Watchlist []string `yaml:"watchlist"` // closer-scrutiny schools: full-day matches there need review
		Nearby    []string `yaml:"nearby"`    // close enough that a half day is still worth the drive
	} `yaml:"schools"`
}

// LoadRules reads the rule set from path, or the embedded defaults when path
// is empty.
func LoadRules(path string) (*Rules, error) {
	data := defaultRules
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read rules: %w", err)
		}
		data = b
	}
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if len(r.Subjects.Accept) == 0 && len(r.Subjects.Reject) == 0 {
		return nil, errors.New("rules: no subject patterns configured")
	}
	return &r, nil
}

// containsAny reports whether s contains any of the patterns,
// case-insensitively. Empty patterns never match.
func containsAny(s string, patterns []string) (string, bool) {
	s = strings.ToLower(s)
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" && strings.Contains(s, p) {
			return p, true
		}
	}
	return "", false
}
