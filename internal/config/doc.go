// Package config loads and validates pipeline configuration.
//
// Precedence, lowest first:
//
//	built-in defaults < config file (YAML or CUE) < POSEPIPE_* environment < CLI flags
//
// The merged configuration is checked against an embedded CUE schema
// (schema.cue) so that every entry point reports the same constraint errors.
package config
