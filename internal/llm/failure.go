package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
)

type FailureKind string

const (
	KindConfig    FailureKind = "config"
	KindTransient FailureKind = "transient"
	KindTerminal  FailureKind = "terminal"
	KindEmpty     FailureKind = "empty"
)

// Failure is the out-of-band failure signal of the gateway. Generated text is
// never used to carry errors.
type Failure struct {
	Purpose  string
	Kind     FailureKind
	Attempts int
	Err      error
}

func (f *Failure) Error() string {
	if f.Attempts > 0 {
		return fmt.Sprintf("%s: %s failure after %d attempt(s): %v", f.Purpose, f.Kind, f.Attempts, f.Err)
	}
	return fmt.Sprintf("%s: %s failure: %v", f.Purpose, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

func isRetryable(err error) bool {
	var f *Failure
	if !errors.As(err, &f) {
		return true
	}
	return f.Kind == KindTransient || f.Kind == KindEmpty
}

func asFailure(purpose string, err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	// context cancellation while backing off
	return &Failure{Purpose: purpose, Kind: KindTransient, Err: err}
}

var statusCodeRe = regexp.MustCompile(`(?:status(?:\s+code)?[:=\s]+)(\d{3})`)

type llmFailureClass int

const (
	failureNone llmFailureClass = iota
	failureTimeout
	failureRateLimit
	failureServer
	failureClient
)

func (c llmFailureClass) String() string {
	switch c {
	case failureTimeout:
		return "timeout"
	case failureRateLimit:
		return "rate_limit"
	case failureServer:
		return "server"
	case failureClient:
		return "client"
	default:
		return "none"
	}
}

func classifyTransportError(err error) llmFailureClass {
	if err == nil {
		return failureNone
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return failureTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return failureTimeout
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode > 0 {
		return classifyStatus(apiErr.StatusCode)
	}
	msg := strings.ToLower(err.Error())
	if m := statusCodeRe.FindStringSubmatch(msg); len(m) == 2 {
		switch {
		case m[1] == "429":
			return failureRateLimit
		case strings.HasPrefix(m[1], "5"):
			return failureServer
		case strings.HasPrefix(m[1], "4"):
			return failureClient
		}
	}
	switch {
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "overloaded"):
		return failureRateLimit
	default:
		return failureServer
	}
}

func classifyStatus(code int) llmFailureClass {
	switch {
	case code == 429:
		return failureRateLimit
	case code == 408:
		return failureTimeout
	case code >= 500:
		return failureServer
	case code >= 400:
		return failureClient
	default:
		return failureServer
	}
}
