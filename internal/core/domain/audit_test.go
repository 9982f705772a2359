// Package domain defines the core domain models for DotVault.
package domain

import (
	"testing"
	"time"
)

func TestNewAuditLogEntry(t *testing.T) {
	e, err := NewAuditLogEntry(AuditTransferBegin, "04aabbccddee77")
	if err != nil {
		t.Fatalf("NewAuditLogEntry() error = %v", err)
	}

	if !IsValidID(e.ID, AuditIDPrefix) {
		t.Errorf("ID %q is not a valid audit id", e.ID)
	}
	if e.Event != AuditTransferBegin {
		t.Errorf("Event = %q, want transfer_begin", e.Event)
	}
	if e.TokenID != "04aabbccddee77" {
		t.Errorf("TokenID = %q", e.TokenID)
	}
	if e.At == 0 {
		t.Error("At should be stamped")
	}
}

func TestAuditIDsAreTimeOrdered(t *testing.T) {
	// ULID ids sort lexicographically by creation time, which the badger
	// store relies on for range scans.
	a, _ := NewAuditLogEntry(AuditTransferBegin, "04aabbccddee77")
	time.Sleep(2 * time.Millisecond)
	b, _ := NewAuditLogEntry(AuditTransferComplete, "04aabbccddee77")
	if !(a.ID < b.ID) {
		t.Errorf("expected %q < %q", a.ID, b.ID)
	}
}

func TestIsValidAuditEvent(t *testing.T) {
	for _, e := range []AuditEvent{
		AuditTransferBegin, AuditTransferComplete, AuditTransferFailed,
		AuditSessionExpired, AuditTokenProvisioned,
	} {
		if !IsValidAuditEvent(string(e)) {
			t.Errorf("%q should be valid", e)
		}
	}
	if IsValidAuditEvent("card_polished") {
		t.Error("unknown event should be invalid")
	}
}

func TestNewTransferRecord(t *testing.T) {
	r, err := NewTransferRecord("dvts-0000000000000000000000000a", "04aabbccddee77", "alice", "bob", 2)
	if err != nil {
		t.Fatalf("NewTransferRecord() error = %v", err)
	}

	if !IsValidID(r.ID, RecordIDPrefix) {
		t.Errorf("ID %q is not a valid record id", r.ID)
	}
	if r.Status != RecordPending || !r.IsPending() {
		t.Errorf("Status = %q, want pending", r.Status)
	}
	if r.FromOwner != "alice" || r.ToUser != "bob" {
		t.Errorf("owners = %q -> %q", r.FromOwner, r.ToUser)
	}
	if r.KeyVersion != 2 {
		t.Errorf("KeyVersion = %d, want 2", r.KeyVersion)
	}
	if err := r.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestTransferRecord_Settle(t *testing.T) {
	r, _ := NewTransferRecord("dvts-0000000000000000000000000a", "04aabbccddee77", "alice", "bob", 0)

	r.Settle(RecordFailed, "SESSION_EXPIRED")

	if r.IsPending() {
		t.Error("settled record should not be pending")
	}
	if r.Status != RecordFailed {
		t.Errorf("Status = %q, want failed", r.Status)
	}
	if r.FailureCode != "SESSION_EXPIRED" {
		t.Errorf("FailureCode = %q", r.FailureCode)
	}
	if r.SettledAt == 0 {
		t.Error("SettledAt should be stamped")
	}
}

func TestTransferRecord_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*TransferRecord)
		wantErr bool
	}{
		{"valid", func(r *TransferRecord) {}, false},
		{"bad id", func(r *TransferRecord) { r.ID = "x" }, true},
		{"bad token id", func(r *TransferRecord) { r.TokenID = "UPPER" }, true},
		{"missing receiver", func(r *TransferRecord) { r.ToUser = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := NewTransferRecord("dvts-0000000000000000000000000a", "04aabbccddee77", "alice", "bob", 0)
			tt.mutate(r)
			err := r.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
