// Package fips reports FIPS 140-3 mode and enforces it when the deployment
// requires it.
package fips

import (
	"crypto/fips140"
	"errors"
	"os"
)

// RequireEnv makes Check fail when FIPS 140-3 mode is not active.
const RequireEnv = "CREDVEND_REQUIRE_FIPS"

// ErrNotEnabled is returned by Check when FIPS mode is required but off.
var ErrNotEnabled = errors.New("FIPS 140-3 mode is required but this binary was not built with GOFIPS140=latest")

// enabled is swapped by tests.
var enabled = fips140.Enabled

// Enabled reports whether the Go cryptographic module runs in FIPS 140-3 mode.
func Enabled() bool {
	return enabled()
}

// Status returns a short label for version and startup output.
func Status() string {
	if enabled() {
		return "[FIPS 140-3]"
	}
	return "[FIPS: disabled]"
}

// Required reports whether RequireEnv is set to "true".
func Required() bool {
	return os.Getenv(RequireEnv) == "true"
}

// Check returns ErrNotEnabled when FIPS is required and inactive.
func Check() error {
	if Required() && !enabled() {
		return ErrNotEnabled
	}
	return nil
}
