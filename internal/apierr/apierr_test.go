package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func Test_KindOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: ""},
		{name: "plain error is transport", err: errors.New("boom"), want: Transport},
		{name: "classified", err: E(NotFound, "op", "gone", nil), want: NotFound},
		{name: "wrapped classified", err: fmt.Errorf("outer: %w", E(Forbidden, "op", "", nil)), want: Forbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func Test_Error_IsSentinel(t *testing.T) {
	t.Parallel()

	cause := errors.New("remote said no")
	err := fmt.Errorf("wrap: %w", E(Forbidden, "msgsync: load", "channel is private", cause))

	if !errors.Is(err, ErrForbidden) {
		t.Error("errors.Is(err, ErrForbidden) = false, want true")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("errors.Is(err, ErrNotFound) = true, want false")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
}

func Test_Error_Message(t *testing.T) {
	t.Parallel()

	err := E(NotFound, "topology: list channels", "guild not found", errors.New("404"))
	want := "topology: list channels: guild not found: 404"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if got := Message(err, "fallback"); got != "guild not found" {
		t.Errorf("Message() = %q, want %q", got, "guild not found")
	}
	if got := Message(errors.New("x"), "fallback"); got != "fallback" {
		t.Errorf("Message() = %q, want %q", got, "fallback")
	}
}

func Test_HTTPStatus(t *testing.T) {
	t.Parallel()

	tests := map[Kind]int{
		InvalidInput:    http.StatusBadRequest,
		Unauthenticated: http.StatusUnauthorized,
		NotConnected:    http.StatusNotFound,
		NotFound:        http.StatusNotFound,
		Forbidden:       http.StatusInternalServerError,
		Transport:       http.StatusInternalServerError,
	}
	for kind, want := range tests {
		if got := HTTPStatus(kind); got != want {
			t.Errorf("HTTPStatus(%q) = %d, want %d", kind, got, want)
		}
	}
}
