/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: utils.go
Description: Log file retention for simfuzz. Keeps the newest log files of a directory and
either compresses or removes the rest, and reports statistics about what is on disk.
*/

package logging

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// LogManager applies the retention policy to a log directory
type LogManager struct {
	logDir   string
	maxFiles int
	compress bool
}

// NewLogManager creates a new log manager
func NewLogManager(logDir string, maxFiles int, compress bool) *LogManager {
	return &LogManager{
		logDir:   logDir,
		maxFiles: maxFiles,
		compress: compress,
	}
}

// logFiles lists files matching pattern, oldest first. Names carry a sortable timestamp.
func (lm *LogManager) logFiles(pattern string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(lm.logDir, pattern))
	if err != nil {
		return nil, fmt.Errorf("failed to glob log files: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// CleanupOldLogs keeps the newest maxFiles plain logs. Older ones are gzipped when
// compression is on, otherwise removed. Archives are capped at maxFiles as well.
func (lm *LogManager) CleanupOldLogs() error {
	files, err := lm.logFiles(filePrefix + "*.log")
	if err != nil {
		return err
	}

	for len(files) > lm.maxFiles {
		oldest := files[0]
		files = files[1:]
		if lm.compress {
			if err := lm.compressFile(oldest); err != nil {
				return fmt.Errorf("failed to compress %s: %w", oldest, err)
			}
			continue
		}
		if err := os.Remove(oldest); err != nil {
			return fmt.Errorf("failed to remove file %s: %w", oldest, err)
		}
	}

	archives, err := lm.logFiles(filePrefix + "*.log.gz")
	if err != nil {
		return err
	}
	for len(archives) > lm.maxFiles {
		if err := os.Remove(archives[0]); err != nil {
			return fmt.Errorf("failed to remove file %s: %w", archives[0], err)
		}
		archives = archives[1:]
	}
	return nil
}

// compressFile compresses a log file using gzip and removes the original
func (lm *LogManager) compressFile(path string) error {
	source, err := os.Open(path)
	if err != nil {
		return err
	}
	defer source.Close()

	compressed, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}
	defer compressed.Close()

	gzipWriter := gzip.NewWriter(compressed)
	if _, err := io.Copy(gzipWriter, source); err != nil {
		return err
	}
	if err := gzipWriter.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}

// LogStats holds statistics about log files
type LogStats struct {
	TotalFiles        int       `json:"total_files"`
	TotalSize         int64     `json:"total_size"`
	CompressedFiles   int       `json:"compressed_files"`
	UncompressedFiles int       `json:"uncompressed_files"`
	OldestFile        time.Time `json:"oldest_file"`
	NewestFile        time.Time `json:"newest_file"`
}

// GetLogStats returns statistics about log files
func (lm *LogManager) GetLogStats() (*LogStats, error) {
	files, err := lm.logFiles(filePrefix + "*.log*")
	if err != nil {
		return nil, err
	}

	stats := &LogStats{TotalFiles: len(files)}
	for _, file := range files {
		stat, err := os.Stat(file)
		if err != nil {
			continue
		}

		stats.TotalSize += stat.Size()
		if stats.OldestFile.IsZero() || stat.ModTime().Before(stats.OldestFile) {
			stats.OldestFile = stat.ModTime()
		}
		if stat.ModTime().After(stats.NewestFile) {
			stats.NewestFile = stat.ModTime()
		}

		if strings.HasSuffix(file, ".gz") {
			stats.CompressedFiles++
		} else {
			stats.UncompressedFiles++
		}
	}
	return stats, nil
}
