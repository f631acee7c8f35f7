// Package meta holds build-time metadata shared across cmd/sqlgwctl.
package meta

// Version is the gateway's release version, surfaced by `sqlgwctl --version`
// and the lint-manifest/doctor banners.
const Version = "0.1.0"
