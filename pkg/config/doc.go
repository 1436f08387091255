// Package config loads the agent's YAML configuration.
//
// Values not present in the file keep their defaults, and Validate reports
// every invalid field in one error. Command-line flags are applied by the
// caller after Load.
package config
