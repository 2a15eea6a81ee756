package recording

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// RemoveStaleTemp deletes unfinished recordings left in dir by a previous run.
// It returns the number of files removed.
func RemoveStaleTemp(dir string, f Format) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read recording dir: %w", err)
	}

	suffix := "." + f.Ext() + TempSuffix
	removed := 0
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), suffix) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			errs = append(errs, err)
			continue
		}
		slog.Info("removed unfinished recording", "file", entry.Name())
		removed++
	}
	return removed, errors.Join(errs...)
}
