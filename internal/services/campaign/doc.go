// Package campaign owns the campaign record lifecycle: draft through
// generation, finalization with an intent fingerprint, external proof
// anchoring, and sharing.
package campaign
