// Package wallet verifies signed sign-in-with-wallet messages.
package wallet

import (
	"regexp"
	"strings"
	"time"
)

const (
	nonceField      = "Nonce:"
	issuedAtField   = "Issued At:"
	expirationField = "Expiration Time:"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Message is the parsed form of a signed authentication message.
type Message struct {
	Address    string
	Nonce      string
	IssuedAt   *time.Time
	Expiration *time.Time
}

// ParseMessage extracts the structured fields from a signed message body.
//
// The body is line-oriented: the embedded address is the first line that is
// a bare hex address, and Nonce / Issued At / Expiration Time are labelled
// lines. Absent fields are left zero; validation is the verifier's job.
func ParseMessage(body string) Message {
	var msg Message
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case msg.Address == "" && addressPattern.MatchString(line):
			msg.Address = line
		case strings.HasPrefix(line, nonceField):
			msg.Nonce = strings.TrimSpace(strings.TrimPrefix(line, nonceField))
		case strings.HasPrefix(line, issuedAtField):
			if ts, err := time.Parse(time.RFC3339, strings.TrimSpace(strings.TrimPrefix(line, issuedAtField))); err == nil {
				utc := ts.UTC()
				msg.IssuedAt = &utc
			}
		case strings.HasPrefix(line, expirationField):
			if ts, err := time.Parse(time.RFC3339, strings.TrimSpace(strings.TrimPrefix(line, expirationField))); err == nil {
				utc := ts.UTC()
				msg.Expiration = &utc
			}
		}
	}
	return msg
}
