package secmem

import (
	"fmt"
	"testing"
)

func TestMatches(t *testing.T) {
	s := New("api-key-123")
	if !s.Matches("api-key-123") {
		t.Fatal("correct key did not match")
	}
	if s.Matches("api-key-124") {
		t.Fatal("wrong key matched")
	}
	if s.Matches("") {
		t.Fatal("empty candidate matched")
	}
}

func TestEmptySecretMatchesNothing(t *testing.T) {
	s := New("")
	if !s.IsEmpty() {
		t.Fatal("empty secret not reported empty")
	}
	if s.Matches("") {
		t.Fatal("empty secret matched empty candidate")
	}
}

func TestZero(t *testing.T) {
	s := New("api-key-123")
	s.Zero()
	if s.Matches("api-key-123") {
		t.Fatal("zeroed secret still matches")
	}
	if !s.IsEmpty() {
		t.Fatal("zeroed secret not reported empty")
	}
	// Zero is idempotent.
	s.Zero()
}

func TestNilReceiver(t *testing.T) {
	var s *Secret
	if !s.IsEmpty() {
		t.Fatal("nil secret not empty")
	}
	if s.Matches("x") {
		t.Fatal("nil secret matched")
	}
	s.Zero()
}

func TestStringRedacts(t *testing.T) {
	s := New("api-key-123")
	if got := fmt.Sprintf("%v", s); got != "[REDACTED]" {
		t.Fatalf("String() = %q", got)
	}
}
