// Package config loads and validates the photo catalog configuration.
//
// Configuration is read from a YAML file and overlaid on hardcoded
// defaults; every recognized key has a default so a missing or partial
// file still yields a usable configuration. The loaded value is a plain
// typed struct consumed by the rest of the core.
package config
