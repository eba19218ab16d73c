package parser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yurifrl/cicsync/pkg/models"
)

func TestDefaultClassifier(t *testing.T) {
	c := DefaultClassifier()

	assert.Equal(t, models.AccountSavings, c.AccountType("Livret Bleu"))
	assert.Equal(t, models.AccountLongTermSavings, c.AccountType("PEL 4"))
	assert.Equal(t, models.AccountChecking, c.AccountType("C/C EUROCOMPTE DUO"))
	assert.Equal(t, models.AccountLoan, c.AccountType("PRÊT IMMOBILIER"))
	assert.Equal(t, models.AccountOther, c.AccountType("SOMETHING ELSE"))

	assert.Equal(t, "fee", c.DebitType("FRAIS CB"))
	assert.Equal(t, "direct debit", c.DebitType("prélèvement SEPA"))
	assert.Equal(t, models.TypeNone, c.DebitType("CARREFOUR"))

	assert.Equal(t, "bank", c.CreditType("INTÉRÊTS 2023"))
	assert.Equal(t, models.TypeNone, c.CreditType(""))
}

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"ECHEANCE", "PRET", "12"}, Tokens("  échéance (prêt) 12 "))
	assert.Empty(t, Tokens(" -- "))
}

func TestNewClassifierFirstRuleWins(t *testing.T) {
	c, err := NewClassifier([]byte(`
debit:
  - name: first
    category: a
    keywords: [foo]
  - name: second
    category: b
    keywords: [FOO, bar]
`))
	require.NoError(t, err)
	assert.Equal(t, "a", c.DebitType("bar foo"))
	assert.Equal(t, "b", c.DebitType("BAR"))
	assert.Equal(t, models.AccountOther, c.AccountType("foo"))
}

func TestNewClassifierErrors(t *testing.T) {
	tests := map[string]string{
		"invalid yaml":   "debit: [",
		"empty category": "credit:\n  - name: x\n    keywords: [A]\n",
		"no keywords":    "accounts:\n  - name: x\n    category: Loan\n",
		"blank keyword":  "debit:\n  - name: x\n    category: y\n    keywords: [' ']\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewClassifier([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadClassifier(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexicon.yaml")
	require.NoError(t, os.WriteFile(path, []byte("credit:\n  - name: salary\n    category: income\n    keywords: [SALAIRE]\n"), 0o600))

	c, err := LoadClassifier(path)
	require.NoError(t, err)
	assert.Equal(t, "income", c.CreditType("VIR SALAIRE MARS"))

	_, err = LoadClassifier(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
