// Package auth issues and verifies the HS256 access tokens that carry a
// caller's account reference.
//
// The token subject is the owner every registration is attributed to.
// Tokens are validated by signature and expiry only; there is no session
// store.
package auth
