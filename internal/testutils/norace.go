// TiCS: disabled // Test helpers.

//go:build !race

package testutils

// IsRace returns true when the tests are built with the race detector.
func IsRace() bool {
	return false
}
