package binary

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp" //nolint:staticcheck // Using ProtonMail's maintained fork
)

// checksumPattern finds the first 64-hex digest following a SHA-256 heading,
// in HTML, plain text, or JSON.
var checksumPattern = regexp.MustCompile(`(?is)sha-?256.{0,200}?\b([0-9a-f]{64})\b`)

// Verifier checks detached OpenPGP signatures against a configured keyring.
type Verifier struct {
	keyringPath string
}

// NewVerifier creates a verifier. An empty keyringPath disables signature checks.
func NewVerifier(keyringPath string) *Verifier {
	return &Verifier{keyringPath: keyringPath}
}

// Enabled reports whether a keyring is configured.
func (v *Verifier) Enabled() bool {
	return v != nil && v.keyringPath != ""
}

// VerifySignature checks signaturePath (armored or binary) over archivePath.
func (v *Verifier) VerifySignature(archivePath, signaturePath string) error {
	keyring, err := v.loadKeyring()
	if err != nil {
		return fmt.Errorf("load keyring: %w", err)
	}

	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer archiveFile.Close()

	sigFile, err := os.Open(signaturePath)
	if err != nil {
		return fmt.Errorf("open signature: %w", err)
	}
	defer sigFile.Close()

	_, err = openpgp.CheckArmoredDetachedSignature(keyring, archiveFile, sigFile, nil)
	if err != nil {
		// Try non-armored signature
		archiveFile.Seek(0, io.SeekStart)
		sigFile.Seek(0, io.SeekStart)
		_, err = openpgp.CheckDetachedSignature(keyring, archiveFile, sigFile, nil)
	}
	if err != nil {
		return fmt.Errorf("verify signature: %w", err)
	}

	return nil
}

// loadKeyring loads the configured keyring, armored first then binary.
func (v *Verifier) loadKeyring() (openpgp.EntityList, error) {
	keyringFile, err := os.Open(v.keyringPath)
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	defer keyringFile.Close()

	keyring, err := openpgp.ReadArmoredKeyRing(keyringFile)
	if err != nil {
		keyringFile.Seek(0, io.SeekStart)
		keyring, err = openpgp.ReadKeyRing(keyringFile)
		if err != nil {
			return nil, fmt.Errorf("read keyring: %w", err)
		}
	}

	if len(keyring) == 0 {
		return nil, fmt.Errorf("keyring is empty")
	}

	return keyring, nil
}

// calculateSHA256 calculates the SHA256 checksum of a file
func calculateSHA256(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// extractChecksum returns the lowercased digest found in text, or "".
func extractChecksum(text string) string {
	m := checksumPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.ToLower(m[1])
}
