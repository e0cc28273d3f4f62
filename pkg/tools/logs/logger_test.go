package logs

import (
	sysErr "errors"
	"testing"

	"github.com/pkg/errors"
)

func TestParseErr(t *testing.T) {
	plain := sysErr.New("plain err")
	if fields := ParseErr(plain); len(fields) != 1 {
		t.Fatalf("plain error should only carry the error field, got %d", len(fields))
	}

	wrapped := errors.Wrap(errors.New("inner err"), "outer message")
	fields := ParseErr(wrapped)
	if len(fields) != 2 {
		t.Fatalf("wrapped error should carry a stack field, got %d", len(fields))
	}
	if fields[1].Key != "stack" {
		t.Fatalf("got field key %q", fields[1].Key)
	}
}
