// Package auth logs into the portal. A login either lands on the home page,
// is rejected, or is held behind a two-factor challenge the account holder
// approves out of band; the engine polls until the approval shows up, then
// validates the challenge and keeps the device-linking cookie for next time.
package auth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/net/html"

	"github.com/yurifrl/cicsync/pkg/endpoint"
	"github.com/yurifrl/cicsync/pkg/outcome"
	"github.com/yurifrl/cicsync/pkg/session"
)

// Engine runs the authentication state machine. It is used once per run.
type Engine struct {
	logger   *log.Logger
	client   *http.Client
	resolver *endpoint.Resolver
	session  *session.Session
	saver    session.SnapshotSaver
	contract ChallengeContract
	policy   PollPolicy
	sleep    Sleeper
}

type Option func(*Engine)

// WithSnapshotSaver persists the linking cookie after a challenge validation.
func WithSnapshotSaver(s session.SnapshotSaver) Option {
	return func(e *Engine) { e.saver = s }
}

func WithPollPolicy(p PollPolicy) Option {
	return func(e *Engine) { e.policy = p }
}

func WithSleeper(s Sleeper) Option {
	return func(e *Engine) {
		if s != nil {
			e.sleep = s
		}
	}
}

func WithChallengeContract(c ChallengeContract) Option {
	return func(e *Engine) { e.contract = c }
}

// New returns an engine issuing its requests through client, whose jar
// should be sess.
func New(logger *log.Logger, client *http.Client, resolver *endpoint.Resolver, sess *session.Session, opts ...Option) *Engine {
	e := &Engine{
		logger:   logger,
		client:   client,
		resolver: resolver,
		session:  sess,
		contract: DefaultChallengeContract(),
		policy:   DefaultPollPolicy(),
		sleep:    Sleep,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Authenticate submits the credentials. It returns false without an error
// when a two-factor challenge could not be read or was not approved in time.
// Rejected credentials, an unavailable portal and unknown landing pages are
// reported as outcome errors.
func (e *Engine) Authenticate(ctx context.Context, user, password string) (bool, error) {
	loginURL, err := e.resolver.URL(endpoint.Login)
	if err != nil {
		return false, err
	}

	body := "_cm_user=" + url.QueryEscape(user) + "&flag=password&_cm_pwd=" + url.QueryEscape(password)
	p, err := e.post(ctx, loginURL, body)
	if err != nil {
		return false, err
	}

	switch {
	case e.lands(p.url, endpoint.TwoFactor):
		e.logger.Info("two factor authentication required")
		return e.twoFactor(ctx, p)
	case e.lands(p.url, endpoint.Login):
		msg := ""
		if doc, err := p.document(); err == nil {
			msg = errorMessage(doc)
		}
		e.logger.Error("login failed", "status", p.status, "message", msg)
		return false, outcome.ErrLoginFailed
	case e.lands(p.url, endpoint.Home):
		e.logger.Debug("redirected to home page")
		return true, nil
	}

	e.logger.Error("redirected to an unexpected page", "url", p.url.Redacted())
	return false, fmt.Errorf("%w: login landed on %s", outcome.ErrUserActionNeeded, p.url.Redacted())
}

func (e *Engine) twoFactor(ctx context.Context, p *page) (bool, error) {
	doc, err := p.document()
	if err != nil {
		return false, fmt.Errorf("failed to parse challenge page: %w", err)
	}

	confirmURL, err := e.resolver.URL(endpoint.TwoFactorConfirmIdentity)
	if err != nil {
		return false, err
	}
	if e.contract.AsksIdentityConfirmation(doc, p.url, confirmURL) {
		e.logger.Info("the portal asks to confirm the identity")
		if p, err = e.get(ctx, confirmURL); err != nil {
			return false, err
		}
		if doc, err = p.document(); err != nil {
			return false, fmt.Errorf("failed to parse identity confirmation page: %w", err)
		}
	}

	base, err := url.Parse(e.resolver.BaseURL())
	if err != nil {
		return false, fmt.Errorf("invalid base url: %w", err)
	}
	challenge, err := e.contract.Extract(doc, base)
	if err != nil {
		e.logger.Error("two factor challenge not understood", "error", err)
		return false, nil
	}
	e.logger.Debug("two factor challenge", "validation_url", challenge.ValidationURL, "fields", len(challenge.Fields))

	validated, err := e.poll(ctx, challenge.TransactionID)
	if err != nil {
		return false, err
	}
	if !validated {
		e.logger.Warn("two factor challenge was not validated in time", "attempts", e.policy.Attempts)
		return false, nil
	}
	return e.validate(ctx, challenge)
}

func (e *Engine) poll(ctx context.Context, transactionID string) (bool, error) {
	pollURL, err := e.resolver.URL(endpoint.TwoFactorPoll)
	if err != nil {
		return false, err
	}
	form := url.Values{"transactionId": {transactionID}}.Encode()

	for attempt := 0; attempt < e.policy.Attempts; attempt++ {
		wait := e.policy.Wait(attempt)
		e.logger.Info("waiting for the two factor challenge to be validated", "attempt", attempt+1, "wait", wait)
		if err := e.sleep(ctx, wait); err != nil {
			return false, err
		}

		p, err := e.post(ctx, pollURL, form)
		if err != nil {
			return false, err
		}
		doc, err := p.document()
		if err != nil {
			return false, fmt.Errorf("failed to parse poll response: %w", err)
		}
		state, err := transactionState(doc)
		if err != nil {
			e.logger.Warn("unreadable poll response", "error", err)
		}
		e.logger.Info("status of two factor challenge", "state", state)

		if Decide(state) == PollValidated {
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) validate(ctx context.Context, challenge Challenge) (bool, error) {
	p, err := e.post(ctx, challenge.ValidationURL, challenge.Fields.Encode())
	e.saveSession(ctx)
	if err != nil {
		return false, err
	}

	if !e.lands(p.url, endpoint.Home) {
		e.logger.Error("validation did not land on the home page", "url", p.url.Redacted())
		return false, fmt.Errorf("%w: validation landed on %s", outcome.ErrUserActionNeeded, p.url.Redacted())
	}
	e.logger.Info("two factor challenge validated")
	return true, nil
}

func (e *Engine) saveSession(ctx context.Context) {
	if e.saver == nil || e.session == nil {
		e.logger.Debug("no session saver, the linking cookie is not persisted")
		return
	}
	data, err := e.session.Snapshot()
	if err != nil {
		e.logger.Error("failed to snapshot the session", "error", err)
		return
	}
	if err := e.saver.SaveSnapshot(ctx, data); err != nil {
		e.logger.Error("failed to save the session", "error", err)
		return
	}
	e.logger.Info("saved the session")
}

// lands reports whether u is the page of key. The query string is ignored,
// the portal appends tracking parameters to its landing pages.
func (e *Engine) lands(u *url.URL, key endpoint.Key) bool {
	raw, err := e.resolver.URL(key)
	if err != nil {
		return false
	}
	want, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, want.Host) && u.Path == want.Path
}

type page struct {
	url    *url.URL
	status int
	body   []byte
}

func (p *page) document() (*html.Node, error) {
	return html.Parse(bytes.NewReader(p.body))
}

func (e *Engine) get(ctx context.Context, target string) (*page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return e.do(req)
}

func (e *Engine) post(ctx context.Context, target, form string) (*page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return e.do(req)
}

func (e *Engine) do(req *http.Request) (*page, error) {
	resp, err := e.client.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			e.logger.Warn("portal timed out", "url", req.URL.Redacted())
		}
		return nil, fmt.Errorf("%w: %s %s: %v", outcome.ErrVendorDown, req.Method, req.URL.Redacted(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", outcome.ErrVendorDown, err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		e.logger.Error("portal unavailable", "status", resp.StatusCode, "url", req.URL.Redacted())
		return nil, fmt.Errorf("%w: %s returned %d", outcome.ErrVendorDown, req.URL.Redacted(), resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%s %s: unexpected status %d", req.Method, req.URL.Redacted(), resp.StatusCode)
	}
	return &page{url: resp.Request.URL, status: resp.StatusCode, body: body}, nil
}
