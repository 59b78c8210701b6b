// Package logging provides the leveled loggers used throughout kvstash.
// Loggers are named per package, created lazily through GetLogger and are
// process-wide singletons.
package logging
