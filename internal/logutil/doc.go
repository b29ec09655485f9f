// Package logutil configures the process-wide pingcap/log logger from the
// log section of the config, optionally writing to a rotated file.
package logutil
