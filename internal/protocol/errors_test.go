package protocol

import (
	"errors"
	"fmt"
	"testing"
)

func TestTransportWrapsOnce(t *testing.T) {
	if Transport("send", nil) != nil {
		t.Fatalf("expected nil error kept nil")
	}
	base := errors.New("broken pipe")
	err := Transport("send", base)
	var te *TransportError
	if !errors.As(err, &te) || te.Op != "send" || !errors.Is(err, base) {
		t.Fatalf("unexpected transport error got=%v", err)
	}
	again := Transport("receive", fmt.Errorf("outer: %w", err))
	if !errors.As(again, &te) || te.Op != "send" {
		t.Fatalf("expected original op kept got=%v", again)
	}
}

func TestDesyncMatchesSentinels(t *testing.T) {
	short := errors.New("short body")
	err := Desync(short, "read returned %d bytes", 3)
	if !errors.Is(err, ErrProtocol) || !errors.Is(err, short) {
		t.Fatalf("expected protocol and cause got=%v", err)
	}
	if err.Error() != "protocol: read returned 3 bytes: short body" {
		t.Fatalf("unexpected message got=%q", err.Error())
	}
}

func TestKindAndPermanence(t *testing.T) {
	cases := []struct {
		err       error
		kind      string
		permanent bool
	}{
		{nil, "none", false},
		{Transport("open", errors.New("refused")), "transport", false},
		{Desync(nil, "bad sequence"), "protocol", false},
		{&StatusError{Code: StatusOutOfBounds}, "status", true},
		{fmt.Errorf("wrapped: %w", &StatusError{Code: StatusUnknownCmd}), "status", true},
		{&StatusError{Code: 9}, "status", false},
		{errors.New("other"), "other", false},
	}
	for _, tc := range cases {
		if got := Kind(tc.err); got != tc.kind {
			t.Fatalf("Kind(%v) got=%q want=%q", tc.err, got, tc.kind)
		}
		if got := IsPermanent(tc.err); got != tc.permanent {
			t.Fatalf("IsPermanent(%v) got=%v want=%v", tc.err, got, tc.permanent)
		}
	}
	if StatusText(StatusOutOfBounds) != "out of bounds" || StatusText(42) != "unknown status" {
		t.Fatalf("unexpected status text")
	}
}
