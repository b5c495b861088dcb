// Package binary locates, downloads, verifies, and installs the ffmpeg
// executable used by the host application.
//
// # Locating
//
// Manager.Locate checks, in order, the ffmpeg.path setting, the path cached
// by an earlier Locate or Install, the bundled copy under the storage
// directory, and finally the system search path. Every candidate except the
// cached one must answer "-version" and satisfy ffmpeg.minimumVersion.
//
// # Installing
//
// Manager.Install resolves a Descriptor from the Catalog for the detected
// platform and fetches it:
//   - On Apple Silicon it first offers Homebrew, then an Intel build that
//     runs under Rosetta, and only then the direct download
//   - Everywhere else it downloads the catalog archive directly
//
// Archives are downloaded to a scratch file, checked, extracted into a
// staging directory, probed, and only then moved into the install
// directory. A failed attempt leaves the install directory as it was.
//
// # Verification Strategy
//
// 1. OpenPGP Signature (when configured)
//   - Used when the descriptor publishes a detached signature and a keyring
//     path is configured
//   - A bad signature fails the install
//
// 2. Published SHA-256 Digest
//   - The digest is scraped from the descriptor's checksum page
//   - On mismatch the user chooses to continue or cancel; cancel deletes the
//     archive and fails the install
//
// Installs without either source proceed unverified; InstallResult.Verified
// records which check ran.
//
// # Concurrency
//
// One Manager runs one install at a time. A second Install returns an error
// matching ErrBusy immediately, and an advisory file lock in the storage
// directory gives the same result across processes.
//
// # Usage
//
//	mgr, err := binary.NewManager(binary.Config{
//	    Platform: info,
//	    Prompter: prompter,
//	    Settings: settings,
//	    Storage:  storage,
//	})
//	if err != nil {
//	    return err
//	}
//
//	if !mgr.Acquire(ctx, false) {
//	    return errors.New("ffmpeg unavailable")
//	}
//	path, err := mgr.Locate(ctx)
package binary
