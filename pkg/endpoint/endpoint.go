package endpoint

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
)

// DefaultBaseURL is the public entry point of the portal.
const DefaultBaseURL = "https://www.cic.fr/"

// Key names a logical portal operation.
type Key string

const (
	Home                     Key = "home"
	Login                    Key = "login"
	TwoFactor                Key = "two-factor"
	TwoFactorPoll            Key = "two-factor-poll"
	TwoFactorConfirmIdentity Key = "two-factor-confirm-identity"
	StatementDownload        Key = "statement-download"
)

const twoFactorPath = "banque/validation.aspx"

var paths = map[Key]string{
	Home:                     "banque/pageaccueil.html",
	Login:                    "authentification.html",
	TwoFactor:                twoFactorPath,
	TwoFactorPoll:            "otp/SOSD_OTP_GetTransactionState.htm",
	TwoFactorConfirmIdentity: twoFactorPath + "?_tabi=C&_pid=AuthChoicePage&_fid=SCA",
	StatementDownload:        "banque/compte/routetelechargement.asp?formatTelechargement=XL&compte=all",
}

var ErrUnknownEndpoint = errors.New("unknown endpoint")

// Resolver maps operation keys to URLs for the active language.
type Resolver struct {
	logger   *log.Logger
	baseURL  string
	language string
}

// New returns a resolver rooted at baseURL (DefaultBaseURL when empty).
func New(logger *log.Logger, baseURL, language string) (*Resolver, error) {
	if language == "" {
		return nil, fmt.Errorf("missing language")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Resolver{
		logger:   logger,
		baseURL:  baseURL,
		language: language,
	}, nil
}

func (r *Resolver) SetLanguage(language string) {
	r.language = language
}

// BaseURL returns the portal root, without the language segment.
func (r *Resolver) BaseURL() string {
	return r.baseURL
}

// Host returns the portal root for the active language.
func (r *Resolver) Host() string {
	return r.baseURL + r.language + "/"
}

// URL resolves key to an absolute URL.
func (r *Resolver) URL(key Key) (string, error) {
	p, ok := paths[key]
	if !ok {
		r.logger.Warn("no url found", "key", key)
		return "", fmt.Errorf("%w: %s", ErrUnknownEndpoint, key)
	}
	return r.Host() + p, nil
}
