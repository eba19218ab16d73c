package endpoint

import (
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustURL(t *testing.T, r *Resolver, key Key) string {
	t.Helper()
	u, err := r.URL(key)
	require.NoError(t, err)
	return u
}

func TestResolverURL(t *testing.T) {
	r, err := New(log.Default(), "", "fr")
	require.NoError(t, err)

	assert.Equal(t, "https://www.cic.fr/fr/", r.Host())
	assert.Equal(t, "https://www.cic.fr/fr/authentification.html", mustURL(t, r, Login))
	assert.Equal(t, "https://www.cic.fr/fr/banque/pageaccueil.html", mustURL(t, r, Home))
	assert.Equal(t,
		"https://www.cic.fr/fr/banque/validation.aspx?_tabi=C&_pid=AuthChoicePage&_fid=SCA",
		mustURL(t, r, TwoFactorConfirmIdentity))

	r.SetLanguage("en")
	assert.Equal(t, "https://www.cic.fr/en/otp/SOSD_OTP_GetTransactionState.htm", mustURL(t, r, TwoFactorPoll))
}

func TestResolverCustomBase(t *testing.T) {
	r, err := New(log.Default(), "http://127.0.0.1:8080", "fr")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8080/", r.BaseURL())
	assert.Equal(t, "http://127.0.0.1:8080/fr/banque/validation.aspx", mustURL(t, r, TwoFactor))
}

func TestResolverErrors(t *testing.T) {
	_, err := New(log.Default(), "", "")
	assert.Error(t, err)

	r, err := New(log.Default(), "", "fr")
	require.NoError(t, err)
	_, err = r.URL(Key("nope"))
	assert.ErrorIs(t, err, ErrUnknownEndpoint)
}
