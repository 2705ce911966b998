package budget

import (
	"os"
	"path/filepath"
	"strings"
)

// walkDDS invokes fn for every (ddsPath, ddmPath) pair found beneath root,
// skipping any DDS whose DDM is missing or unreadable (orphan collection is
// the cache's own ScanExisting concern, not this walk's).
func walkDDS(root string, fn func(ddsPath, ddmPath string)) error {
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".dds") {
			return nil
		}
		ddmPath := strings.TrimSuffix(path, ".dds") + ".ddm"
		if _, statErr := os.Stat(ddmPath); statErr != nil {
			return nil
		}
		fn(path, ddmPath)
		return nil
	})
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

func removeQuiet(path string) {
	os.Remove(path)
}
