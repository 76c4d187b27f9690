// Package config loads, validates and hot-reloads the frameq configuration.
//
// YAML and JSON files share one strict decoder: unknown fields and trailing
// data are errors, so a typo never silently falls back to a default.
package config
