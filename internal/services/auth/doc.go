// Package auth bridges wallet-signature authentication into session
// issuance: signed-message verification, single-use nonce enforcement, and
// deterministic credential derivation against the session issuer.
package auth
