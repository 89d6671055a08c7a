// Package config loads builder configuration.
//
// Resolution order, later wins: built-in defaults, then the YAML config
// file, then BA_BUILDER_* environment variables. Unknown file keys are
// rejected so typos fail loudly instead of silently using defaults.
package config
