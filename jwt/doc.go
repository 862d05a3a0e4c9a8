// Package jwt mints and verifies the signed, expiring tokens used by the
// credential lifecycle (access, refresh and the three self-service kinds) and
// applies the optional transport encryption layer around them.
package jwt
