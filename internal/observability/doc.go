// Package observability provides structured logging for the YAPI service.
//
// This package implements:
//   - Logger construction from configuration (zap, JSON or console encoding)
//   - Request ID propagation into log fields
//
// Every component receives its *zap.Logger through its constructor.
package observability
