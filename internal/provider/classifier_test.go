package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusErr struct{ code int }

func (e statusErr) Error() string   { return "request failed" }
func (e statusErr) StatusCode() int { return e.code }

type panicErr struct{}

func (panicErr) Error() string { panic("boom") }

func TestHeuristicClassifier(t *testing.T) {
	c := DefaultClassifier()

	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, HardError},
		{"plain network failure", errors.New("connection reset by peer"), HardError},
		{"api key phrase", errors.New("API key not valid. Please pass a valid API key."), KeyOrQuotaError},
		{"permission denied", errors.New("Permission Denied"), KeyOrQuotaError},
		{"quota exceeded", errors.New("Quota exceeded for metric"), KeyOrQuotaError},
		{"authentication failed", errors.New("authentication failed"), KeyOrQuotaError},
		{"invalid_request", errors.New("invalid_request: bad key"), KeyOrQuotaError},
		{"billing", errors.New("Billing account disabled"), KeyOrQuotaError},
		{"insufficient_quota", errors.New("insufficient_quota"), KeyOrQuotaError},
		{"status 429 on provider error", &Error{Provider: "gemini", Status: 429, Message: "slow down"}, KeyOrQuotaError},
		{"status 401 via StatusCode", statusErr{401}, KeyOrQuotaError},
		{"status 403", &Error{Status: 403, Message: "nope"}, KeyOrQuotaError},
		{"status 500", &Error{Status: 500, Message: "internal"}, HardError},
		{"status 400 malformed prompt", &Error{Status: 400, Message: "contents is not specified"}, HardError},
		{"cause code", &Error{Status: 400, Message: "bad", Cause: &Cause{Code: "API_KEY_INVALID"}}, KeyOrQuotaError},
		{"other cause code", &Error{Status: 400, Message: "bad", Cause: &Cause{Code: "SAFETY"}}, HardError},
		{"response body", &Error{Status: 400, Message: "bad", Body: `{"error":{"message":"missing API KEY"}}`}, KeyOrQuotaError},
		{"wrapped status", fmt.Errorf("lecture: %w", &Error{Status: 429}), KeyOrQuotaError},
		{"deeply wrapped", fmt.Errorf("a: %w", fmt.Errorf("b: %w", statusErr{403})), KeyOrQuotaError},
		{"joined", errors.Join(errors.New("timeout"), statusErr{429}), KeyOrQuotaError},
		{"joined hard", errors.Join(errors.New("timeout"), errors.New("eof")), HardError},
		{"panicking error", panicErr{}, HardError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.err))
		})
	}
}

func TestChainClassifier(t *testing.T) {
	custom := ClassifierFunc(func(err error) ErrorKind {
		if err != nil && err.Error() == "RESOURCE_EXHAUSTED" {
			return KeyOrQuotaError
		}
		return HardError
	})
	chain := ChainClassifier{DefaultClassifier(), nil, custom}

	assert.Equal(t, KeyOrQuotaError, chain.Classify(errors.New("RESOURCE_EXHAUSTED")))
	assert.Equal(t, KeyOrQuotaError, chain.Classify(statusErr{429}))
	assert.Equal(t, HardError, chain.Classify(errors.New("boom")))
	assert.Equal(t, HardError, ChainClassifier(nil).Classify(statusErr{429}))
}

func TestClassifierPanicsAreHardErrors(t *testing.T) {
	boom := ClassifierFunc(func(error) ErrorKind { panic("classifier bug") })

	assert.NotPanics(t, func() {
		assert.Equal(t, HardError, boom.Classify(errors.New("x")))
	})
	assert.Equal(t, HardError, ChainClassifier{boom}.Classify(statusErr{429}))
	assert.Equal(t, KeyOrQuotaError, ChainClassifier{boom, DefaultClassifier()}.Classify(statusErr{429}))
	assert.Equal(t, HardError, safeClassify(panicClassifier{}, statusErr{429}))
}

type panicClassifier struct{}

func (panicClassifier) Classify(error) ErrorKind { panic("classifier bug") }

func TestSequencerSurvivesPanickingClassifier(t *testing.T) {
	seq := NewSequencer(panicClassifier{}, true)
	invoke := func(_ context.Context, c Credential) (json.RawMessage, error) {
		if c.SourceLabel == SourceUser {
			return nil, statusErr{401}
		}
		return json.RawMessage(`{}`), nil
	}

	var res Result
	var err error
	require.NotPanics(t, func() {
		res, err = seq.Attempt(context.Background(), Credentials("user-key", "platform-key"), invoke)
	})
	require.NoError(t, err)
	assert.Equal(t, SourcePlatform, res.Source)
	require.NotNil(t, res.ClassifiedError)
	assert.Equal(t, HardError, *res.ClassifiedError)
}

func TestErrorKindString(t *testing.T) {
	assert.Equal(t, "hard", HardError.String())
	assert.Equal(t, "key_or_quota", KeyOrQuotaError.String())
}
