// Package errors provides structured domain errors with stable codes.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// CodeInvalidRequest represents a malformed request body or parameter.
	CodeInvalidRequest Code = "INVALID_REQUEST"

	// Auth errors
	CodeAuthNonceLength      Code = "AUTH_NONCE_LENGTH"
	CodeAuthNonceReplayed    Code = "AUTH_NONCE_REPLAYED"
	CodeAuthNonceMissing     Code = "AUTH_NONCE_MISSING"
	CodeAuthMessageExpired   Code = "AUTH_MESSAGE_EXPIRED"
	CodeAuthAddressMismatch  Code = "AUTH_ADDRESS_MISMATCH"
	CodeAuthAddressInvalid   Code = "AUTH_ADDRESS_INVALID"
	CodeAuthSignatureInvalid Code = "AUTH_SIGNATURE_INVALID"
	CodeAuthCredentialDenied Code = "AUTH_CREDENTIAL_DENIED"

	// Campaign errors
	CodeCampaignNameEmpty         Code = "CAMPAIGN_NAME_EMPTY"
	CodeCampaignInvalidStatus     Code = "CAMPAIGN_INVALID_STATUS"
	CodeCampaignInvalidTransition Code = "CAMPAIGN_INVALID_STATUS_TRANSITION"
	CodeCampaignContentLocked     Code = "CAMPAIGN_CONTENT_LOCKED"
	CodeCampaignNotOwner          Code = "CAMPAIGN_NOT_OWNER"
	CodeCampaignStatusConflict    Code = "CAMPAIGN_STATUS_CONFLICT"
	CodeCampaignProofAnchored     Code = "CAMPAIGN_PROOF_ANCHORED"
	CodeCampaignIntentInvalid     Code = "CAMPAIGN_INTENT_INVALID"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
	CodeConflict Code = "CONFLICT"

	// Rate limit errors
	CodeRateLimited Code = "RATE_LIMITED"

	// Internal errors
	CodeInternal Code = "INTERNAL"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	// InvalidArgument - validation failures, malformed input
	case CodeInvalidRequest,
		CodeAuthNonceLength,
		CodeAuthNonceMissing,
		CodeAuthAddressInvalid,
		CodeCampaignNameEmpty,
		CodeCampaignInvalidStatus,
		CodeCampaignInvalidTransition,
		CodeCampaignContentLocked,
		CodeCampaignIntentInvalid:
		return http.StatusBadRequest

	// Unauthenticated - signature, expiry, and replay failures
	case CodeAuthNonceReplayed,
		CodeAuthMessageExpired,
		CodeAuthAddressMismatch,
		CodeAuthSignatureInvalid,
		CodeAuthCredentialDenied:
		return http.StatusUnauthorized

	// PermissionDenied - ownership violations
	case CodeCampaignNotOwner:
		return http.StatusForbidden

	case CodeNotFound:
		return http.StatusNotFound

	// Aborted - optimistic concurrency failures and duplicate writes
	case CodeCampaignStatusConflict,
		CodeCampaignProofAnchored,
		CodeConflict:
		return http.StatusConflict

	case CodeRateLimited:
		return http.StatusTooManyRequests

	default:
		return http.StatusInternalServerError
	}
}
