package wallet

import (
	"testing"
	"time"
)

func TestParseMessage_AllFields(t *testing.T) {
	body := "campfire.app wants you to sign in with your wallet:\n" +
		"0x8ba1f109551bD432803012645Ac136ddd64DBA72\n" +
		"\n" +
		"Nonce: a1b2c3d4e5f6\n" +
		"Issued At: 2025-06-01T12:00:00Z\n" +
		"Expiration Time: 2025-06-01T12:10:00Z\n"

	msg := ParseMessage(body)
	if msg.Address != "0x8ba1f109551bD432803012645Ac136ddd64DBA72" {
		t.Fatalf("address = %q", msg.Address)
	}
	if msg.Nonce != "a1b2c3d4e5f6" {
		t.Fatalf("nonce = %q", msg.Nonce)
	}
	if msg.IssuedAt == nil || !msg.IssuedAt.Equal(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("issued at = %v", msg.IssuedAt)
	}
	if msg.Expiration == nil || !msg.Expiration.Equal(time.Date(2025, 6, 1, 12, 10, 0, 0, time.UTC)) {
		t.Fatalf("expiration = %v", msg.Expiration)
	}
}

func TestParseMessage_MissingFields(t *testing.T) {
	msg := ParseMessage("just some text\nwith no fields")
	if msg.Address != "" || msg.Nonce != "" || msg.Expiration != nil {
		t.Fatalf("expected zero message, got %+v", msg)
	}
}

func TestParseMessage_FirstAddressWins(t *testing.T) {
	body := "0x8ba1f109551bD432803012645Ac136ddd64DBA72\n" +
		"0x00000000219ab540356cBB839Cbe05303d7705Fa\n" +
		"Nonce: a1b2c3d4e5f6\n"

	msg := ParseMessage(body)
	if msg.Address != "0x8ba1f109551bD432803012645Ac136ddd64DBA72" {
		t.Fatalf("address = %q, want first embedded address", msg.Address)
	}
}

func TestParseMessage_MalformedTimestampIgnored(t *testing.T) {
	msg := ParseMessage("Expiration Time: tomorrow-ish\nNonce: a1b2c3d4e5f6\n")
	if msg.Expiration != nil {
		t.Fatalf("expiration = %v, want nil for malformed timestamp", msg.Expiration)
	}
}
