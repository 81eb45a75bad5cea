// Package build describes the compile-time build flavour. Nothing in here
// can be changed by runtime configuration.
package build

import "strings"

// DeploymentType is an enum specifying the deployment to compile.
type DeploymentType byte

const (
	// Development is a deployment built with the dev tag. Debugger checks
	// are relaxed and a missing integrity reference is skipped.
	Development DeploymentType = iota

	// Production is the default deployment. Every trust check is enforced.
	Production
)

// String returns a human readable name for a build type.
func (b DeploymentType) String() string {
	switch b {
	case Development:
		return "development"
	case Production:
		return "production"
	default:
		return "unknown"
	}
}

// IsProdBuild returns true if this is a production build.
func IsProdBuild() bool {
	return Deployment == Production
}

// IsDevBuild returns true if this is a development build.
func IsDevBuild() bool {
	return Deployment == Development
}

// PlaceholderIntegrityHash marks a build without a reference hash. It is
// never accepted as a reference.
const PlaceholderIntegrityHash = "PLACEHOLDER_BUNDLE_HASH"

// IntegritySentinel returns the 64 zero digits a release build links as
// IntegrityHash before scripts/integrity_hash.go patches the real
// reference over them. It is built at run time so the binary holds no
// second copy.
func IntegritySentinel() string {
	return strings.Repeat("0", 64)
}

// IntegrityHash is the hex BLAKE3-256 reference hash of the released
// binary. Release builds link the sentinel and patch it afterwards:
//
//	go build -ldflags "-X github.com/Klingon-tech/vaultpass/internal/build.IntegrityHash=$(printf '0%.0s' $(seq 64))" ./cmd/vaultpassd
//	go run scripts/integrity_hash.go -patch vaultpassd
var IntegrityHash = PlaceholderIntegrityHash

// Version is the release version, set at link time.
var Version = "0.1.0-dev"
