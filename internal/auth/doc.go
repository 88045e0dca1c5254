// Package auth issues and verifies the two classes of bearer tokens and owns
// password hashing.
//
// Access and refresh tokens are signed JWTs (HS256) with independent secrets,
// lifetimes, and a shared issuer/audience pair. Verification collapses every
// failure mode into ErrInvalidToken so callers cannot distinguish an expired
// token from a forged one.
package auth
