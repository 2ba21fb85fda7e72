package provider

import (
	"errors"
	"strings"
)

// ErrorKind is the outcome of classifying a failed provider call.
type ErrorKind int

const (
	// HardError is a failure that trying another credential will not fix.
	// It is the zero value so unclassifiable errors fail closed.
	HardError ErrorKind = iota
	// KeyOrQuotaError is a credential, permission, billing or quota failure
	// that makes the next credential worth trying.
	KeyOrQuotaError
)

func (k ErrorKind) String() string {
	switch k {
	case KeyOrQuotaError:
		return "key_or_quota"
	default:
		return "hard"
	}
}

// Classifier decides whether a provider failure is eligible for fallback.
// Implementations must be total: they never panic and never block.
type Classifier interface {
	Classify(err error) ErrorKind
}

// ClassifierFunc adapts an ordinary function to a Classifier.
type ClassifierFunc func(err error) ErrorKind

// Classify calls f(err). A panic in f yields HardError.
func (f ClassifierFunc) Classify(err error) (kind ErrorKind) {
	defer func() {
		if recover() != nil {
			kind = HardError
		}
	}()
	return f(err)
}

// ChainClassifier reports KeyOrQuotaError when any member does.
type ChainClassifier []Classifier

// Classify runs every member until one matches. A panicking member counts
// as a non-match and the remaining members still run.
func (c ChainClassifier) Classify(err error) ErrorKind {
	for _, cl := range c {
		if cl != nil && safeClassify(cl, err) == KeyOrQuotaError {
			return KeyOrQuotaError
		}
	}
	return HardError
}

// safeClassify runs cl, mapping a panic to HardError.
func safeClassify(cl Classifier, err error) (kind ErrorKind) {
	defer func() {
		if recover() != nil {
			kind = HardError
		}
	}()
	return cl.Classify(err)
}

// Gemini reports an invalid key with this ErrorInfo reason.
const causeAPIKeyInvalid = "API_KEY_INVALID"

// maxChainDepth bounds the walk over wrapped errors.
const maxChainDepth = 32

// HeuristicClassifier matches message text, status codes, nested cause
// codes and response bodies against a fixed vocabulary. Provider SDKs do not
// promise any of these shapes, so it only ever upgrades an error to
// KeyOrQuotaError on a positive match.
type HeuristicClassifier struct {
	Phrases    []string
	Statuses   []int
	CauseCodes []string
	BodyPhrase string
}

// DefaultClassifier returns the classifier used for Gemini-style providers.
func DefaultClassifier() HeuristicClassifier {
	return HeuristicClassifier{
		Phrases: []string{
			"api key",
			"permission denied",
			"quota exceeded",
			"authentication failed",
			"invalid_request",
			"billing",
			"insufficient_quota",
		},
		Statuses:   []int{401, 403, 429},
		CauseCodes: []string{causeAPIKeyInvalid},
		BodyPhrase: "api key",
	}
}

// Classify inspects err and every error it wraps.
func (h HeuristicClassifier) Classify(err error) (kind ErrorKind) {
	if err == nil {
		return HardError
	}
	// A panicking Error method is treated as a hard failure.
	defer func() {
		if recover() != nil {
			kind = HardError
		}
	}()

	matched := false
	walk(err, 0, func(e error) bool {
		if h.matches(e) {
			matched = true
		}
		return matched
	})
	if matched {
		return KeyOrQuotaError
	}
	return HardError
}

func (h HeuristicClassifier) matches(e error) bool {
	msg := strings.ToLower(e.Error())
	for _, p := range h.Phrases {
		if p != "" && strings.Contains(msg, p) {
			return true
		}
	}

	if s, ok := e.(interface{ HTTPStatus() int }); ok && h.statusMatches(s.HTTPStatus()) {
		return true
	}
	if s, ok := e.(interface{ StatusCode() int }); ok && h.statusMatches(s.StatusCode()) {
		return true
	}

	if c, ok := e.(interface{ CauseCode() string }); ok {
		code := c.CauseCode()
		for _, want := range h.CauseCodes {
			if code != "" && strings.EqualFold(code, want) {
				return true
			}
		}
	}

	if b, ok := e.(interface{ ResponseBody() string }); ok && h.BodyPhrase != "" {
		if strings.Contains(strings.ToLower(b.ResponseBody()), h.BodyPhrase) {
			return true
		}
	}
	return false
}

func (h HeuristicClassifier) statusMatches(status int) bool {
	for _, s := range h.Statuses {
		if s == status {
			return true
		}
	}
	return false
}

// walk visits err and its wrapped errors depth-first until visit returns
// true. Joined errors are followed on every branch.
func walk(err error, depth int, visit func(error) bool) bool {
	if err == nil || depth > maxChainDepth {
		return false
	}
	if visit(err) {
		return true
	}
	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		for _, e := range u.Unwrap() {
			if walk(e, depth+1, visit) {
				return true
			}
		}
		return false
	default:
		return walk(errors.Unwrap(err), depth+1, visit)
	}
}
