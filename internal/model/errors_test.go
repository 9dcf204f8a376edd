package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyError(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{NewProviderError(ErrorKindNetwork, "refused", nil), ErrorKindNetwork},
		{NewProviderError(ErrorKindParse, "bad json", nil), ErrorKindParse},
		{NewAPIError(500, "internal"), ErrorKindAPI},
		{fmt.Errorf("wrapped: %w", NewProviderError(ErrorKindValidation, "bad", nil)), ErrorKindValidation},
		{errors.New("plain"), ErrorKindUnknown},
	}
	for _, tc := range cases {
		if got := ClassifyError(tc.err); got != tc.want {
			t.Fatalf("ClassifyError(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"network", NewProviderError(ErrorKindNetwork, "reset", nil), true},
		{"parse", NewProviderError(ErrorKindParse, "bad json", nil), true},
		{"server error", NewAPIError(503, "unavailable"), true},
		{"rate limited", NewAPIError(429, "slow down"), true},
		{"unauthorized", NewAPIError(401, "bad key"), false},
		{"forbidden", NewAPIError(403, "denied"), false},
		{"validation", NewProviderError(ErrorKindValidation, "bad symbol", nil), false},
		{"configuration", NewProviderError(ErrorKindConfiguration, "no base url", nil), false},
		{"unclassified", errors.New("something"), true},
	}
	for _, tc := range cases {
		if got := IsRetryable(tc.err); got != tc.want {
			t.Fatalf("%s: IsRetryable = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestProviderErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewProviderError(ErrorKindNetwork, "dial failed", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected Unwrap to expose the cause")
	}
}
