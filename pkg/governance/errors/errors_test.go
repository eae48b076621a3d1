package governerr

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"not found", NotFoundf("draft.read", "draft not found: %s", "x"), NotFound},
		{"invalid", Invalidf("state.update", "unsupported state fields: %v", []string{"a"}), Invalid},
		{"blocked", Blockedf("publish", "cooldown active, remaining=%ds", 30), Blocked},
		{"wrapped", fmt.Errorf("outer: %w", Blockedf("publish", "frozen")), Blocked},
		{"plain", io.EOF, Internal},
		{"nil", nil, Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestError_Message(t *testing.T) {
	err := Blockedf("publish", "high-risk approvals not satisfied: %d/%d", 1, 2)
	if got := err.Error(); got != "publish blocked: high-risk approvals not satisfied: 1/2" {
		t.Errorf("unexpected message %q", got)
	}

	cause := errors.New("disk full")
	wrapped := Wrap(Invalid, "draft.read", cause, "invalid draft json")
	if !errors.Is(wrapped, cause) {
		t.Error("expected wrapped error to unwrap to cause")
	}
	if !strings.Contains(wrapped.Error(), "disk full") {
		t.Errorf("expected cause in message, got %q", wrapped.Error())
	}
	if !Is(wrapped, Invalid) {
		t.Error("expected Invalid kind")
	}
}
