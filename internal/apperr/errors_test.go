package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrap_AddsContext(t *testing.T) {
	err := Wrap(ErrNotFound, "loading journey %s", "abc")
	if err.Error() != "loading journey abc: not found" {
		t.Errorf("message = %q", err.Error())
	}
	if !errors.Is(err, ErrNotFound) {
		t.Error("wrapped error should still match ErrNotFound")
	}
}

func TestWrap_KeepsUserError(t *testing.T) {
	ue := User("no distance for %s", "EUS")
	inner := fmt.Errorf("leg: %w", ue)
	err := Wrap(inner, "route distance")
	if err != inner {
		t.Errorf("user error chain should pass through unchanged, got %q", err.Error())
	}
	got, ok := AsUser(err)
	if !ok || got.Msg != "no distance for EUS" {
		t.Errorf("AsUser = %v, %v", got, ok)
	}
}

func TestWrap_Nil(t *testing.T) {
	if Wrap(nil, "x") != nil {
		t.Error("wrapping nil should return nil")
	}
}

func TestInvalid_MatchesSentinel(t *testing.T) {
	err := Invalid("bad station %q", "XX")
	if !errors.Is(err, ErrInvalid) {
		t.Error("Invalid should match ErrInvalid")
	}
	if err.Error() != `bad station "XX"` {
		t.Errorf("message = %q", err.Error())
	}
	if errors.Is(User("plain"), ErrInvalid) {
		t.Error("plain user errors carry no kind")
	}
}
