package netutil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldRetry(t *testing.T) {
	dial := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	read := &net.OpError{Op: "read", Net: "tcp", Err: errors.New("reset")}

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"dial", dial, true},
		{"read without timeout", read, false},
		{"url wrapped dial", &url.Error{Op: "Post", URL: "https://x", Err: dial}, true},
		{"deadline", context.DeadlineExceeded, true},
		{"throttled", &StatusError{Code: 429}, true},
		{"server error", fmt.Errorf("call: %w", &StatusError{Code: 503, Status: "503 Service Unavailable"}), true},
		{"client error", &StatusError{Code: 400}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ShouldRetry(tc.err))
		})
	}
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, 502, StatusCode(fmt.Errorf("wrap: %w", &StatusError{Code: 502})))
	assert.Zero(t, StatusCode(errors.New("x")))
	assert.Contains(t, (&StatusError{Code: 500}).Error(), "500")
}
