// Package logx provides a small structured logging facade over zerolog.
//
// It exists so internal packages depend on a stable, minimal API
// (Logger + Field helpers) rather than on zerolog directly. The zero
// value of Logger is a safe no-op, which keeps optional dependencies
// (tests, disabled components) free of nil checks.
package logx
