// Package logging provides the gateway's structured logging: a thin wrapper over
// log/slog with per-subsystem helpers and a structured Audit event helper for
// security-sensitive operations. No gateway component calls Audit at
// present; upstream add/remove, circuit-breaker trips, and auth failures are
// not audited.
//
// Initialize once at startup with InitForCLI, then use the package-level
// Debug/Info/Warn/Error/Audit helpers from anywhere in the process.
package logging
