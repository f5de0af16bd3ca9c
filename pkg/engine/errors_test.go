package engine

import (
	"errors"
	"fmt"
	"testing"
)

func TestOpErrorClassification(t *testing.T) {
	cases := []struct {
		name      string
		err       *OpError
		retryable bool
		class     ErrorClass
	}{
		{"throttled", NewThrottledError("rate exceeded", nil), true, ErrorClassThrottled},
		{"connectivity", NewConnectivityError("no route", nil), false, ErrorClassConnectivity},
		{"permission", NewPermissionError("denied", nil), false, ErrorClassPermission},
		{"absent", NewAbsentError("no such operation", nil), false, ErrorClassAbsent},
		{"unexpected", NewUnexpectedError("boom", nil), false, ErrorClassUnexpected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsRetryable(tc.err); got != tc.retryable {
				t.Errorf("IsRetryable = %v, want %v", got, tc.retryable)
			}
			if got := Classify(tc.err); got != tc.class {
				t.Errorf("Classify = %v, want %v", got, tc.class)
			}
		})
	}
}

func TestOpErrorWrapping(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewConnectivityError("calling endpoint", cause).
		WithEndpoint("s3", "us-east-1").
		WithOperation("ListBuckets").
		WithCode("EndpointNotAvailable")

	if !errors.Is(err, cause) {
		t.Error("wrapped cause should be reachable through errors.Is")
	}

	var opErr *OpError
	wrapped := fmt.Errorf("task failed: %w", err)
	if !errors.As(wrapped, &opErr) {
		t.Fatal("errors.As should find the OpError")
	}
	if opErr.Namespace != "s3" || opErr.Region != "us-east-1" || opErr.Operation != "ListBuckets" {
		t.Errorf("context fields lost: %+v", opErr)
	}
	if opErr.Code != "EndpointNotAvailable" {
		t.Errorf("code lost: %q", opErr.Code)
	}
}

func TestClassifyPlainError(t *testing.T) {
	if got := Classify(errors.New("something else")); got != ErrorClassUnexpected {
		t.Errorf("plain errors classify as unexpected, got %v", got)
	}
	if IsRetryable(errors.New("something else")) {
		t.Error("plain errors are not retryable")
	}
}

func TestIsHelpersThroughWrapping(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewThrottledError("slow down", nil))
	if !IsThrottled(err) {
		t.Error("IsThrottled should see through wrapping")
	}
	if IsConnectivity(err) || IsPermission(err) || IsAbsent(err) {
		t.Error("other class helpers must not match")
	}
}
