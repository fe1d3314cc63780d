// Package config loads, validates, and normalizes docpipe configuration.
//
// Configuration is TOML with a default search path of
// ~/.config/docpipe/config.toml followed by ./docpipe.toml. Every field has a
// repository default so a missing file still yields a runnable config. Path
// fields are tilde-expanded and made absolute during load.
package config
