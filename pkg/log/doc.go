// Package log provides structured logging for Anchor built on zerolog.
// Components obtain child loggers via WithComponent and attach node,
// dataset or application context as needed.
package log
