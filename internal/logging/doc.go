// Package logging configures the process-wide slog logger: JSON records to
// stderr and, when a file is configured, to a size-rotated log file. Viewer
// reads those files back for the logs command.
package logging
