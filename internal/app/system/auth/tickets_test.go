package auth

import (
	"errors"
	"testing"
	"time"
)

func TestTicketRoundTrip(t *testing.T) {
	issuer, err := NewTicketIssuer("0123456789abcdef0123456789abcdef", time.Minute)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}

	ticket, err := issuer.Mint("user-1")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	got, err := issuer.Verify(ticket)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got != "user-1" {
		t.Errorf("user id: got %q, want %q", got, "user-1")
	}
}

func TestTicketRejectsTampering(t *testing.T) {
	issuer, _ := NewTicketIssuer("0123456789abcdef0123456789abcdef", time.Minute)
	other, _ := NewTicketIssuer("ffffffffffffffffffffffffffffffff", time.Minute)

	ticket, err := other.Mint("user-1")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := issuer.Verify(ticket); !errors.Is(err, ErrBadTicket) {
		t.Errorf("foreign secret: got %v, want ErrBadTicket", err)
	}
	if _, err := issuer.Verify("not-a-token"); !errors.Is(err, ErrBadTicket) {
		t.Errorf("garbage: got %v, want ErrBadTicket", err)
	}
}

func TestTicketExpires(t *testing.T) {
	issuer, _ := NewTicketIssuer("0123456789abcdef0123456789abcdef", time.Nanosecond)

	ticket, err := issuer.Mint("user-1")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := issuer.Verify(ticket); !errors.Is(err, ErrBadTicket) {
		t.Errorf("expired ticket: got %v, want ErrBadTicket", err)
	}
}

func TestEmptySecretRejected(t *testing.T) {
	if _, err := NewTicketIssuer("", time.Minute); err == nil {
		t.Error("empty secret accepted")
	}
}
