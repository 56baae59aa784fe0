// Package logging builds the *slog.Logger shared by every pocketmock
// component.
//
// The console handler is text or JSON. When Config.File is set, records are
// also written as JSON to a lumberjack-rotated file, so the log of a long dev
// session stays bounded and machine-readable whatever the console shows:
//
//	logger, closer := logging.NewWithCloser(logging.Config{
//	    Level: logging.LevelDebug,
//	    File:  &logging.FileConfig{Path: "pocketmock.log", MaxSizeMB: 5},
//	})
//	defer closer.Close()
//
// Components take a *slog.Logger option and default to Nop.
package logging
