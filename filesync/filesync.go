package filesync

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"

	"github.com/notifile/notifile/target"
)

// Report describes what one publish did. The checksum is over the
// rendered content, whether or not a write happened.
type Report struct {
	Changed  bool
	Checksum uint64
	Bytes    int
}

// Publish writes content to path, replacing the destination only when
// the bytes differ. The temp file is colocated so the final rename
// stays on one filesystem, and its name carries the pid so concurrent
// daemon instances cannot collide. On any error the temp file is
// removed; the destination is never left partially written.
func Publish(path string, content []byte, spec target.FileSpec) (Report, error) {
	report := Report{Checksum: xxhash.Sum64(content), Bytes: len(content)}

	dir := filepath.Dir(path)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return report, fmt.Errorf("output directory %s does not exist", dir)
	}

	tmpPath := fmt.Sprintf("%s.%d.tmp", path, os.Getpid())
	if err := os.WriteFile(tmpPath, content, 0600); err != nil {
		removeTemp(tmpPath)
		return report, fmt.Errorf("failed to write temp file: %w", err)
	}

	same, err := sameContent(path, report.Checksum, int64(len(content)))
	if err != nil {
		removeTemp(tmpPath)
		return report, err
	}
	if same {
		removeTemp(tmpPath)
		return report, nil
	}

	if err := os.Rename(tmpPath, path); err != nil {
		removeTemp(tmpPath)
		return report, fmt.Errorf("failed to replace %s: %w", path, err)
	}
	report.Changed = true

	if err := applySpec(path, spec); err != nil {
		return report, err
	}

	return report, nil
}

// sameContent reports whether the destination already holds exactly
// the bytes about to be published
func sameContent(path string, checksum uint64, size int64) (bool, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.Size() != size {
		return false, nil
	}

	existing, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return xxhash.Sum64(existing) == checksum, nil
}

func applySpec(path string, spec target.FileSpec) error {
	if spec.Owner != -1 || spec.Group != -1 {
		if err := os.Chown(path, spec.Owner, spec.Group); err != nil {
			return fmt.Errorf("failed to change ownership of %s: %w", path, err)
		}
	}

	if spec.HasMode {
		if err := os.Chmod(path, spec.Mode); err != nil {
			return fmt.Errorf("failed to change mode of %s: %w", path, err)
		}
	}

	return nil
}

func removeTemp(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", path).Msg("Failed to remove temp file")
	}
}
