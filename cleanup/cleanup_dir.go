// Package cleanup removes stale working directories left behind by
// interrupted runs. Chunk prompts and rendered intermediates are large, so
// they are not kept past a few days.
package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/logger"
)

// CleanupTempDirectories prunes dubsing_* temp trees older than three days.
func CleanupTempDirectories(ctx context.Context) {
	maxAge := 3 * 24 * time.Hour
	_ = CleanupDirectory(ctx, os.TempDir(), "dubsing_", maxAge)
}

// CleanupDirectory removes entries under directory older than maxAge. A
// non-empty prefix restricts removal to matching names.
func CleanupDirectory(ctx context.Context, directory string, prefix string, maxAge time.Duration) *log.Status {
	now := time.Now()
	count := 0
	entries, err := os.ReadDir(directory)
	if err != nil {
		return log.Error(ctx, 500, err, "Error reading directory", directory)
	}
	for _, entry := range entries {
		if prefix != "" && !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		dirPath := filepath.Join(directory, entry.Name())
		var info os.FileInfo
		info, err = os.Stat(dirPath)
		if err != nil {
			log.Warn(ctx, "Unable to stat directory", dirPath, err)
			continue
		}
		if now.Sub(info.ModTime()) > maxAge {
			err = os.RemoveAll(dirPath)
			if err != nil {
				log.Warn(ctx, "Unable to remove directory", dirPath, err)
				continue
			}
			count++
		}
	}
	log.Info(ctx, "Removed from directory", directory, count)
	return nil
}
