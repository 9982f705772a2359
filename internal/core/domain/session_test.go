// Package domain defines the core domain models for DotVault.
package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestNewTransferSession(t *testing.T) {
	s, err := NewTransferSession("04aabbccddee77", "bob", 3, DefaultSessionTTL)
	if err != nil {
		t.Fatalf("NewTransferSession() error = %v", err)
	}

	if !IsValidSessionID(s.ID) {
		t.Errorf("ID %q is not a valid session id", s.ID)
	}
	if !IsValidID(s.LeaseID, LeaseIDPrefix) {
		t.Errorf("LeaseID %q is not a valid lease id", s.LeaseID)
	}
	if s.State != SessionPending {
		t.Errorf("State = %q, want pending", s.State)
	}
	if s.Phase != PhaseAuth {
		t.Errorf("Phase = %q, want auth", s.Phase)
	}
	if s.KeyVersion != 3 {
		t.Errorf("KeyVersion = %d, want 3", s.KeyVersion)
	}
	if s.IsExpired() {
		t.Error("fresh session should not be expired")
	}
	if s.IsTerminal() {
		t.Error("fresh session should not be terminal")
	}
	if err := s.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestTransferSession_Expiry(t *testing.T) {
	s, _ := NewTransferSession("04aabbccddee77", "bob", 0, time.Millisecond)
	s.ExpiresAt = time.Now().Add(-time.Second).UnixMilli()

	if !s.IsExpired() {
		t.Error("session past its deadline should be expired")
	}
}

func TestTransferSession_TerminalStates(t *testing.T) {
	s, _ := NewTransferSession("04aabbccddee77", "bob", 0, DefaultSessionTTL)
	s.Scratch.SessionKey = []byte{1, 2, 3, 4}
	s.Scratch.RndA = []byte{5, 6}

	s.Complete()
	if s.State != SessionComplete || !s.IsTerminal() {
		t.Errorf("State = %q, want complete", s.State)
	}
	if s.Scratch.SessionKey != nil || s.Scratch.RndA != nil {
		t.Error("Complete should wipe scratch key material")
	}

	f, _ := NewTransferSession("04aabbccddee77", "bob", 0, DefaultSessionTTL)
	f.Scratch.PendingKey = []byte{9, 9}
	f.Fail("AUTH_FAILED")
	if f.State != SessionFailed || !f.IsTerminal() {
		t.Errorf("State = %q, want failed", f.State)
	}
	if f.FailureCode != "AUTH_FAILED" {
		t.Errorf("FailureCode = %q, want AUTH_FAILED", f.FailureCode)
	}
	if f.Scratch.PendingKey != nil {
		t.Error("Fail should wipe scratch key material")
	}
}

func TestScratch_WipeZeroes(t *testing.T) {
	key := []byte{0xAA, 0xBB, 0xCC}
	sc := Scratch{SessionKey: key, VerifyTokenHash: "abc", FramesHash: "def"}

	sc.Wipe()

	// The original backing array must be zeroed, not just dropped.
	for i, b := range key {
		if b != 0 {
			t.Errorf("key[%d] = %#x, want 0", i, b)
		}
	}
	if sc.VerifyTokenHash != "" || sc.FramesHash != "" {
		t.Error("Wipe should clear verify token binding")
	}
}

func TestTransferSession_Idempotency(t *testing.T) {
	s, _ := NewTransferSession("04aabbccddee77", "bob", 0, DefaultSessionTTL)

	if _, ok := s.ReplayResult("k1"); ok {
		t.Error("ReplayResult should miss on empty cache")
	}

	s.RememberResult("k1", []byte(`{"done":true}`))
	got, ok := s.ReplayResult("k1")
	if !ok || string(got) != `{"done":true}` {
		t.Errorf("ReplayResult = %q, %v", got, ok)
	}

	// Empty keys are never cached.
	s.RememberResult("", []byte("x"))
	if _, ok := s.ReplayResult(""); ok {
		t.Error("empty idempotency key should not be cached")
	}
}

func TestTransferSession_IdempotencyBounded(t *testing.T) {
	s, _ := NewTransferSession("04aabbccddee77", "bob", 0, DefaultSessionTTL)

	for i := 0; i < MaxIdempotencyRecords+10; i++ {
		s.RememberResult(fmt.Sprintf("key-%d", i), []byte{byte(i)})
	}

	if len(s.Idempotency) != MaxIdempotencyRecords {
		t.Errorf("cache length = %d, want %d", len(s.Idempotency), MaxIdempotencyRecords)
	}

	// Oldest entries are evicted, newest retained.
	if _, ok := s.ReplayResult("key-0"); ok {
		t.Error("oldest entry should be evicted")
	}
	if _, ok := s.ReplayResult(fmt.Sprintf("key-%d", MaxIdempotencyRecords+9)); !ok {
		t.Error("newest entry should be retained")
	}
}

func TestTransferSession_ScratchNeverSerialized(t *testing.T) {
	s, _ := NewTransferSession("04aabbccddee77", "bob", 0, DefaultSessionTTL)
	s.Scratch.SessionKey = []byte{0xDE, 0xAD, 0xBE, 0xEF}
	s.Scratch.RndA = []byte{0x01, 0x02}
	s.Scratch.VerifyTokenHash = "deadbeef"

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	serialized := string(data)
	for _, leak := range []string{"scratch", "Scratch", "session_key", "rnd", "deadbeef", "3q2+7w"} {
		if strings.Contains(serialized, leak) {
			t.Errorf("serialized session leaks %q: %s", leak, serialized)
		}
	}
}

func TestTransferSession_Clone(t *testing.T) {
	s, _ := NewTransferSession("04aabbccddee77", "bob", 0, DefaultSessionTTL)
	s.Scratch.SessionKey = []byte{1, 2, 3}
	s.RememberResult("k1", []byte("r1"))

	clone := s.Clone()
	clone.Scratch.SessionKey[0] = 0xFF
	clone.Idempotency[0].Key = "mutated"
	clone.Phase = PhaseMidOK

	if s.Scratch.SessionKey[0] != 1 {
		t.Error("Clone should deep copy scratch key material")
	}
	if s.Idempotency[0].Key != "k1" {
		t.Error("Clone should deep copy the idempotency cache")
	}
	if s.Phase != PhaseAuth {
		t.Error("Clone should not share scalar fields")
	}
}

func TestTransferSession_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*TransferSession)
		wantErr bool
	}{
		{"valid", func(s *TransferSession) {}, false},
		{"bad id", func(s *TransferSession) { s.ID = "nope" }, true},
		{"bad token id", func(s *TransferSession) { s.TokenID = "XYZ" }, true},
		{"missing user", func(s *TransferSession) { s.UserID = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := NewTransferSession("04aabbccddee77", "bob", 0, DefaultSessionTTL)
			tt.mutate(s)
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGenerateID_Format(t *testing.T) {
	prefixes := []string{SessionIDPrefix, LeaseIDPrefix, AuditIDPrefix, RecordIDPrefix, APIKeyIDPrefix}
	for _, prefix := range prefixes {
		id, err := GenerateID(prefix)
		if err != nil {
			t.Fatalf("GenerateID(%q) error = %v", prefix, err)
		}
		if len(id) != IDLength {
			t.Errorf("GenerateID(%q) length = %d, want %d", prefix, len(id), IDLength)
		}
		if !IsValidID(id, prefix) {
			t.Errorf("GenerateID(%q) produced invalid id %q", prefix, id)
		}
		if id != strings.ToLower(id) {
			t.Errorf("GenerateID(%q) should be lowercase: %q", prefix, id)
		}
	}
}

func TestIsValidID(t *testing.T) {
	id, _ := GenerateID(SessionIDPrefix)

	if !IsValidID(strings.ToUpper(id), SessionIDPrefix) {
		t.Error("IsValidID should normalize case")
	}
	if IsValidID(id, LeaseIDPrefix) {
		t.Error("IsValidID should reject a mismatched prefix")
	}
	if IsValidID("dvts-short", SessionIDPrefix) {
		t.Error("IsValidID should reject wrong length")
	}
	if NormalizeID(id, SessionIDPrefix) != id {
		t.Error("NormalizeID should round trip a valid id")
	}
	if NormalizeID("bogus", SessionIDPrefix) != "" {
		t.Error("NormalizeID should return empty for invalid id")
	}
}
