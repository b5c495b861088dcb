//go:build !darwin

package binary

// clearQuarantine is a no-op where there is no quarantine marker.
func clearQuarantine(string) error {
	return nil
}
