package clierr

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *Error
		wantMsg string
	}{
		{
			name:    "simple error message",
			err:     New(Validation, "invalid path", nil),
			wantMsg: "invalid path",
		},
		{
			name:    "error with underlying error",
			err:     New(Request, "request failed", errors.New("network timeout")),
			wantMsg: "request failed",
		},
		{
			name:    "empty message",
			err:     New(Internal, "", nil),
			wantMsg: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", got, tt.wantMsg)
			}
		})
	}
}

func TestError_UnwrapChain(t *testing.T) {
	root := errors.New("session expired")
	cliErr := New(Auth, "please log in again", fmt.Errorf("refresh: %w", root))

	if !errors.Is(cliErr, root) {
		t.Error("errors.Is should find wrapped error")
	}
	if New(Validation, "test", nil).Unwrap() != nil {
		t.Error("Unwrap() should be nil without an underlying error")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"plain error", errors.New("boom"), 1},
		{"internal", New(Internal, "x", nil), 1},
		{"validation", New(Validation, "x", nil), 2},
		{"auth", New(Auth, "x", nil), 3},
		{"request", New(Request, "x", nil), 4},
		{"wrapped auth", fmt.Errorf("login: %w", New(Auth, "x", nil)), 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
