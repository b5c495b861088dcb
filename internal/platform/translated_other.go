//go:build !darwin

package platform

func processTranslated() bool {
	return false
}
