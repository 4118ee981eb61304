// Package buildinfo identifies the running binary. Release builds stamp it
// with ldflags:
//
//	go build -ldflags "-X github.com/yndnr/rtcr-go/internal/infra/buildinfo.Version=v0.3.0"
//
// Commit and build time default to the VCS data embedded by the toolchain.
package buildinfo
