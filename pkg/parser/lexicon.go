package parser

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/yurifrl/cicsync/pkg/models"
)

//go:embed lexicon.yaml
var embeddedLexicon []byte

// Rule maps any of its keywords to a category.
type Rule struct {
	Name     string   `yaml:"name"`
	Category string   `yaml:"category"`
	Keywords []string `yaml:"keywords"`
}

// Lexicon is the YAML document holding the three rule lists.
type Lexicon struct {
	Accounts []Rule `yaml:"accounts"`
	Debit    []Rule `yaml:"debit"`
	Credit   []Rule `yaml:"credit"`
}

type compiledRule struct {
	category string
	keywords map[string]struct{}
}

// Classifier is a pure function from label text to category, driven by an
// ordered rule list with a default for labels no rule matches.
type Classifier struct {
	accounts []compiledRule
	debit    []compiledRule
	credit   []compiledRule
}

// NewClassifier compiles a YAML lexicon.
func NewClassifier(data []byte) (*Classifier, error) {
	var lex Lexicon
	if err := yaml.Unmarshal(data, &lex); err != nil {
		return nil, fmt.Errorf("failed to parse lexicon: %w", err)
	}

	c := &Classifier{}
	var err error
	if c.accounts, err = compile("accounts", lex.Accounts); err != nil {
		return nil, err
	}
	if c.debit, err = compile("debit", lex.Debit); err != nil {
		return nil, err
	}
	if c.credit, err = compile("credit", lex.Credit); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadClassifier reads a lexicon file.
func LoadClassifier(path string) (*Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lexicon file: %w", err)
	}
	return NewClassifier(data)
}

// DefaultClassifier compiles the embedded lexicon.
func DefaultClassifier() *Classifier {
	c, err := NewClassifier(embeddedLexicon)
	if err != nil {
		panic(fmt.Sprintf("embedded lexicon: %v", err))
	}
	return c
}

func compile(section string, rules []Rule) ([]compiledRule, error) {
	out := make([]compiledRule, 0, len(rules))
	for i, r := range rules {
		if strings.TrimSpace(r.Category) == "" {
			return nil, fmt.Errorf("%s rule %d (%s): category cannot be empty", section, i, r.Name)
		}
		if len(r.Keywords) == 0 {
			return nil, fmt.Errorf("%s rule %d (%s): no keywords", section, i, r.Name)
		}
		cr := compiledRule{category: r.Category, keywords: make(map[string]struct{}, len(r.Keywords))}
		for _, k := range r.Keywords {
			k = fold(strings.TrimSpace(k))
			if k == "" {
				return nil, fmt.Errorf("%s rule %d (%s): empty keyword", section, i, r.Name)
			}
			cr.keywords[k] = struct{}{}
		}
		out = append(out, cr)
	}
	return out, nil
}

// AccountType classifies an account label; unknown labels are AccountOther.
func (c *Classifier) AccountType(label string) string {
	return match(c.accounts, Tokens(label), models.AccountOther)
}

// DebitType classifies the description of a debit operation.
func (c *Classifier) DebitType(label string) string {
	return match(c.debit, Tokens(label), models.TypeNone)
}

// CreditType classifies the description of a credit operation.
func (c *Classifier) CreditType(label string) string {
	return match(c.credit, Tokens(label), models.TypeNone)
}

func match(rules []compiledRule, tokens []string, fallback string) string {
	for _, r := range rules {
		for _, t := range tokens {
			if _, ok := r.keywords[t]; ok {
				return r.category
			}
		}
	}
	return fallback
}

// Tokens splits a label on whitespace and folds each token.
func Tokens(label string) []string {
	fields := strings.Fields(label)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(fold(f), ".,:;()*-")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// fold upper-cases s and strips diacritics. Chains carry state, so each
// call builds its own.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToUpper(folded)
}
