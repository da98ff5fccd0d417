// Package logging builds the process-wide slog logger:
// a text handler on stderr, or a JSON handler writing to
// a rotating file.
package logging
