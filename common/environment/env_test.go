package environment_test

import (
	"testing"

	"github.com/kioku-ai/kioku/common/environment"
)

func TestString(t *testing.T) {
	t.Setenv("TEST_SET_EMPTY", "")
	if _, ok := environment.String("TEST_SET_EMPTY"); !ok {
		t.Error("expected ok for a variable set to empty")
	}
	if _, ok := environment.String("TEST_NEVER_SET"); ok {
		t.Error("expected not-ok for an unset variable")
	}
}

func TestStringOr(t *testing.T) {
	t.Setenv("TEST_STRING", "hello")
	if got := environment.StringOr("TEST_STRING", "fallback"); got != "hello" {
		t.Errorf("got %q", got)
	}
	if got := environment.StringOr("TEST_STRING_MISSING", "fallback"); got != "fallback" {
		t.Errorf("got %q", got)
	}
}

func TestBoolOr(t *testing.T) {
	t.Setenv("TEST_BOOL", "true")
	if !environment.BoolOr("TEST_BOOL", false) {
		t.Error("expected true")
	}
	t.Setenv("TEST_BOOL", "0")
	if environment.BoolOr("TEST_BOOL", true) {
		t.Error("expected false")
	}
	if !environment.BoolOr("TEST_BOOL_MISSING", true) {
		t.Error("expected the fallback")
	}
	t.Setenv("TEST_BOOL_BAD", "yes please")
	if environment.BoolOr("TEST_BOOL_BAD", false) {
		t.Error("expected the fallback for an unparseable value")
	}
}

func TestIntOr(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	if got := environment.IntOr("TEST_INT", 0); got != 42 {
		t.Errorf("got %d", got)
	}
	if got := environment.IntOr("TEST_INT_MISSING", 99); got != 99 {
		t.Errorf("got %d", got)
	}
	t.Setenv("TEST_INT_BAD", "forty-two")
	if got := environment.IntOr("TEST_INT_BAD", 7); got != 7 {
		t.Errorf("got %d", got)
	}
}
