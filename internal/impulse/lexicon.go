package impulse

import (
	_ "embed"
	"fmt"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

type lexicon struct {
	Items      []string `yaml:"items"`
	Essentials []string `yaml:"essentials"`
	Moods      []string `yaml:"moods"`
	Urgency    []string `yaml:"urgency"`
	Recency    []string `yaml:"recency"`
	Situations []string `yaml:"situations"`
	Vague      []string `yaml:"vague"`
	SoftExtras []string `yaml:"soft_extras"`
}

//go:embed lexicon.yaml
var lexiconYAML []byte

var (
	lex lexicon
	// unionLexicon is every term that can count as a soft trigger.
	unionLexicon []string
)

func init() {
	if err := yaml.Unmarshal(lexiconYAML, &lex); err != nil {
		panic(fmt.Sprintf("impulse: failed to load embedded lexicon.yaml: %v", err))
	}
	for _, list := range []*[]string{
		&lex.Items, &lex.Essentials, &lex.Moods, &lex.Urgency,
		&lex.Recency, &lex.Situations, &lex.Vague, &lex.SoftExtras,
	} {
		*list = normalizeTerms(*list)
	}
	unionLexicon = dedupe(lex.Items, lex.Moods, lex.Urgency, lex.Situations, lex.Vague, lex.SoftExtras)
}

// normalize lowercases s, drops apostrophes, turns every other
// non-alphanumeric rune into a space and collapses runs of spaces.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r == '\'' || r == '’' || r == '`':
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			space = false
		default:
			if !space {
				b.WriteByte(' ')
				space = true
			}
		}
	}
	return strings.TrimRight(b.String(), " ")
}

func normalizeTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if n := normalize(t); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func dedupe(lists ...[]string) []string {
	seen := map[string]bool{}
	var out []string
	for _, list := range lists {
		for _, t := range list {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out
}

// containsTerm reports whether term occurs in the normalized text on word
// boundaries.
func containsTerm(text, term string) bool {
	if text == "" || term == "" {
		return false
	}
	return strings.Contains(" "+text+" ", " "+term+" ")
}

func firstTerm(text string, terms []string) (string, bool) {
	for _, t := range terms {
		if containsTerm(text, t) {
			return t, true
		}
	}
	return "", false
}

func matchTerms(text string, terms []string) []string {
	var out []string
	for _, t := range terms {
		if containsTerm(text, t) {
			out = append(out, t)
		}
	}
	return out
}

// dropNested removes terms contained in a longer matched term, so "bag" is
// not counted again next to "designer bag".
func dropNested(terms []string) []string {
	var out []string
	for i, t := range terms {
		nested := false
		for j, other := range terms {
			if i != j && len(other) > len(t) && containsTerm(other, t) {
				nested = true
				break
			}
		}
		if !nested {
			out = append(out, t)
		}
	}
	return out
}
