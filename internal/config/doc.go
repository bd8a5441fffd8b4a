// Package config loads, normalizes, and validates narrator configuration.
//
// Configuration lives in a TOML file (default ~/.config/narrator/config.toml,
// falling back to ./narrator.toml). Missing files are not an error: Default
// supplies a usable local setup pointed at an OpenAI-compatible endpoint on
// localhost. Load expands "~" in path fields, applies environment fallbacks for
// secrets, and runs Validate, which reports every problem at once rather than
// stopping at the first.
//
// CreateSample writes the embedded sample_config.toml so `narrator config init`
// produces a documented starting point.
package config
