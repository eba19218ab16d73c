// Package session owns the cookie state of a run. It wraps a standard cookie
// jar, remembers every cookie it was handed so they can be enumerated, and
// serializes the device-linking cookie so a later run can skip the two-factor
// challenge.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/net/publicsuffix"
)

// LinkingCookie is the cookie the portal uses to recognize a device that
// already passed the two-factor challenge.
const LinkingCookie = "auth_client_state"

const snapshotVersion = 1

// Cookie is the portable form of a recorded cookie.
type Cookie struct {
	Key      string     `json:"key"`
	Value    string     `json:"value"`
	Domain   string     `json:"domain"`
	Path     string     `json:"path"`
	HostOnly bool       `json:"hostOnly"`
	Expires  *time.Time `json:"expires,omitempty"`
	Secure   bool       `json:"secure,omitempty"`
	HTTPOnly bool       `json:"httpOnly,omitempty"`
}

type snapshot struct {
	Version int      `json:"version"`
	Cookies []Cookie `json:"cookies"`
}

// SnapshotSaver persists a snapshot produced by Session.Snapshot.
type SnapshotSaver interface {
	SaveSnapshot(ctx context.Context, data []byte) error
}

// SnapshotSaverFunc adapts a function to SnapshotSaver.
type SnapshotSaverFunc func(ctx context.Context, data []byte) error

func (f SnapshotSaverFunc) SaveSnapshot(ctx context.Context, data []byte) error {
	return f(ctx, data)
}

// Session implements http.CookieJar.
type Session struct {
	logger *log.Logger
	keep   string
	now    func() time.Time

	mu       sync.Mutex
	jar      *cookiejar.Jar
	recorded map[string]Cookie
}

// Option customizes a Session.
type Option func(*Session)

// WithLinkingCookie changes the name of the cookie kept in snapshots.
func WithLinkingCookie(name string) Option {
	return func(s *Session) {
		if name != "" {
			s.keep = name
		}
	}
}

// WithClock overrides time.Now, used for cookie expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

func New(logger *log.Logger, opts ...Option) (*Session, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	s := &Session{
		logger:   logger,
		keep:     LinkingCookie,
		now:      time.Now,
		jar:      jar,
		recorded: make(map[string]Cookie),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SetCookies implements http.CookieJar.
func (s *Session) SetCookies(u *url.URL, cookies []*http.Cookie) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jar.SetCookies(u, cookies)
	now := s.now()
	for _, c := range cookies {
		rec := Cookie{
			Key:      c.Name,
			Value:    c.Value,
			Domain:   strings.TrimPrefix(strings.ToLower(c.Domain), "."),
			Path:     c.Path,
			HostOnly: c.Domain == "",
			Secure:   c.Secure,
			HTTPOnly: c.HttpOnly,
		}
		if rec.Domain == "" {
			rec.Domain = u.Hostname()
		}
		if rec.Path == "" || !strings.HasPrefix(rec.Path, "/") {
			rec.Path = "/"
		}
		id := rec.Domain + ";" + rec.Path + ";" + rec.Key

		switch {
		case c.MaxAge < 0:
			delete(s.recorded, id)
			continue
		case c.MaxAge > 0:
			exp := now.Add(time.Duration(c.MaxAge) * time.Second)
			rec.Expires = &exp
		case !c.Expires.IsZero():
			exp := c.Expires
			rec.Expires = &exp
		}
		if rec.Expires != nil && !rec.Expires.After(now) {
			delete(s.recorded, id)
			continue
		}
		if rec.Key == s.keep {
			// the portal may re-send it under another domain or path
			for other, c := range s.recorded {
				if c.Key == s.keep && other != id {
					delete(s.recorded, other)
				}
			}
		}
		s.recorded[id] = rec
	}
}

// Cookies implements http.CookieJar.
func (s *Session) Cookies(u *url.URL) []*http.Cookie {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jar.Cookies(u)
}

// liveCookies returns every live cookie the session has seen.
func (s *Session) liveCookies() []Cookie {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live(func(Cookie) bool { return true })
}

// live must be called with mu held.
func (s *Session) live(keep func(Cookie) bool) []Cookie {
	now := s.now()
	out := make([]Cookie, 0, len(s.recorded))
	for _, c := range s.recorded {
		if c.Expires != nil && !c.Expires.After(now) {
			continue
		}
		if keep(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Domain != out[j].Domain {
			return out[i].Domain < out[j].Domain
		}
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// Snapshot serializes the linking cookie only; every other cookie is dropped.
func (s *Session) Snapshot() ([]byte, error) {
	s.mu.Lock()
	cookies := s.live(func(c Cookie) bool { return c.Key == s.keep })
	s.mu.Unlock()

	data, err := json.Marshal(snapshot{Version: snapshotVersion, Cookies: cookies})
	if err != nil {
		return nil, fmt.Errorf("failed to encode session snapshot: %w", err)
	}
	return data, nil
}

// Restore seeds the jar from a snapshot. Empty input is a no-op.
func (s *Session) Restore(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to decode session snapshot: %w", err)
	}

	now := s.now()
	restored := 0
	for _, c := range snap.Cookies {
		if c.Key == "" || c.Domain == "" {
			continue
		}
		if c.Expires != nil && !c.Expires.After(now) {
			s.logger.Debug("skipping expired cookie", "key", c.Key, "expires", c.Expires)
			continue
		}
		scheme := "http"
		if c.Secure {
			scheme = "https"
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		hc := &http.Cookie{
			Name:     c.Key,
			Value:    c.Value,
			Path:     path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		if !c.HostOnly {
			hc.Domain = c.Domain
		}
		if c.Expires != nil {
			hc.Expires = *c.Expires
		}
		s.SetCookies(&url.URL{Scheme: scheme, Host: c.Domain, Path: path}, []*http.Cookie{hc})
		restored++
	}
	s.logger.Debug("session restored", "cookies", restored)
	return nil
}

// Client returns an HTTP client that stores its cookies in s.
func (s *Session) Client(timeout time.Duration) *http.Client {
	return &http.Client{Jar: s, Timeout: timeout}
}
