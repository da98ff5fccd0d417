// Package config resolves the toolkit configuration
// once at process start from defaults, an optional YAML
// file, environment variables and explicit flags, in
// increasing order of precedence.
package config
