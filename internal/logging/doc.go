// Package logging configures slog output for the pipeline and read API,
// providing console and JSON handlers plus context-derived structured fields.
package logging
