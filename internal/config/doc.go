// Package config defines the rtcr-checkpointd configuration.
//
//   - spec.go: Config and its sections
//   - default.go: default values
//   - verify.go: validation
//
// Configuration is loaded through internal/infra/confloader from a YAML
// file and RTCR_ environment variables on top of Default().
package config
