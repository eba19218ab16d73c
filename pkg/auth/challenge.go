package auth

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	ErrNoTransactionID = errors.New("transaction id not found")
	ErrNoValidationURL = errors.New("validation form not found")
)

// ChallengeContract describes where the pieces of a two-factor challenge
// live on the challenge page.
type ChallengeContract struct {
	// ValidationPattern is matched against every form action; the last
	// matching action is the validation target.
	ValidationPattern string
	// Fields lists the input names whose values are replayed on validation.
	Fields []string
	// Forced fields are always sent with a fixed value.
	Forced map[string]string
	// ScriptContainer is the class of the element holding the inline scripts
	// the transaction id is read from.
	ScriptContainer string
	// TransactionID has the transaction id as its first group.
	TransactionID *regexp.Regexp
}

// Challenge is what the engine needs to poll and then validate.
type Challenge struct {
	ValidationURL string
	Fields        url.Values
	TransactionID string
}

func DefaultChallengeContract() ChallengeContract {
	return ChallengeContract{
		ValidationPattern: "validation.aspx",
		Fields:            []string{"otp_hidden", "_wxf2_cc"},
		Forced: map[string]string{
			"_FID_DoValidate.x": "0",
			"_FID_DoValidate.y": "0",
		},
		ScriptContainer: "OTPDeliveryChannelText",
		TransactionID:   regexp.MustCompile(`(?im)transactionId:\s+'(.+?)',`),
	}
}

// AsksIdentityConfirmation reports whether the page links to confirmURL.
// Links are resolved against pageURL before comparing.
func (c ChallengeContract) AsksIdentityConfirmation(doc *html.Node, pageURL *url.URL, confirmURL string) bool {
	target, err := url.Parse(confirmURL)
	if err != nil {
		return false
	}
	for _, a := range elements(doc, "a") {
		href, ok := attr(a, "href")
		if !ok {
			continue
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			continue
		}
		u := pageURL.ResolveReference(ref)
		if u.Host == target.Host && u.Path == target.Path && u.RawQuery == target.RawQuery {
			return true
		}
	}
	return false
}

// Extract reads the challenge out of doc. Relative form actions are
// resolved against base.
func (c ChallengeContract) Extract(doc *html.Node, base *url.URL) (Challenge, error) {
	ch := Challenge{Fields: url.Values{}}

	for _, form := range elements(doc, "form") {
		action, _ := attr(form, "action")
		if !strings.Contains(action, c.ValidationPattern) {
			continue
		}
		ref, err := url.Parse(strings.TrimSpace(action))
		if err != nil {
			continue
		}
		ch.ValidationURL = base.ResolveReference(ref).String()
	}
	if ch.ValidationURL == "" {
		return Challenge{}, ErrNoValidationURL
	}

	wanted := make(map[string]bool, len(c.Fields))
	for _, f := range c.Fields {
		wanted[f] = true
	}
	for _, in := range elements(doc, "input") {
		name, ok := attr(in, "name")
		if !ok || !wanted[name] {
			continue
		}
		value, _ := attr(in, "value")
		ch.Fields.Set(name, value)
	}
	for k, v := range c.Forced {
		ch.Fields.Set(k, v)
	}

	var scripts strings.Builder
	for _, s := range elements(doc, "script") {
		if _, external := attr(s, "src"); external {
			continue
		}
		if within(s, c.ScriptContainer) {
			scripts.WriteString(text(s))
		}
	}
	m := c.TransactionID.FindStringSubmatch(scripts.String())
	if len(m) < 2 || m[1] == "" {
		return Challenge{}, ErrNoTransactionID
	}
	ch.TransactionID = m[1]
	return ch, nil
}

// transactionState reads the state token out of a poll response.
func transactionState(doc *html.Node) (string, error) {
	nodes := elements(doc, "transactionState")
	if len(nodes) == 0 {
		return "", fmt.Errorf("no transactionState in poll response")
	}
	return strings.TrimSpace(text(nodes[0])), nil
}
