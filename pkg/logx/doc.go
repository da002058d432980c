// Package logx provides structured logging for notebot on top of zerolog.
//
// A Service owns the configured sinks (console, optional file) and can swap
// them at runtime via Apply; Loggers handed out by the Service stay live
// across those swaps, which is what makes config hot-reload of log levels
// possible without re-plumbing loggers through the app.
package logx
