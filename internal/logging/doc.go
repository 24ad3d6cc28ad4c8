// Package logging configures structured logging for indexmode sessions.
//
// Logs are JSON lines written through log/slog to a size-rotated file under
// ~/.indexmode/logs/, optionally mirrored to stderr. Mode transitions, task
// outcomes and invariant violations are all reported through the default
// slog logger so a session can be reconstructed from its log.
package logging
