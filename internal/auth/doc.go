// Package auth provides the credential and token primitives of YAPI.
//
// This package implements:
//   - Password hashing: bcrypt over an HMAC-SHA256 pepper keyed by the security salt
//   - HS256 token signing and verification
//   - Effective permission and token payload derivation (RBAC)
//   - Token extraction from request headers
//
// It holds no storage or HTTP state; services compose these primitives.
package auth
