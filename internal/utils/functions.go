package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TempDirFor returns the temp directory used for in-flight artifacts of
// the given output path.
func TempDirFor(outputPath string) string {
	return filepath.Join(filepath.Dir(outputPath), TempDirName)
}

// RenewOutputPath returns a non-clashing variant of outputPath by
// appending -(N) before the extension.
func RenewOutputPath(outputPath string) string {
	dir := filepath.Dir(outputPath)
	base := filepath.Base(outputPath)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]
	index := 1
	for {
		outputPath = filepath.Join(dir, fmt.Sprintf("%s-(%d)%s", name, index, ext))
		if _, err := os.Stat(outputPath); os.IsNotExist(err) {
			return outputPath
		}
		index++
	}
}

// ParseHeaderArgs converts "Key: Value" CLI arguments into a header map.
func ParseHeaderArgs(headers []string) map[string]string {
	result := make(map[string]string)
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			result[key] = value
		}
	}
	return result
}

// Clean removes leftover .blitz-temp artifacts under the directory of
// the given path. Called from the clean command and after failed runs.
func Clean(path string) error {
	tempDir := filepath.Join(filepath.Dir(path), TempDirName)
	if _, err := os.Stat(tempDir); os.IsNotExist(err) {
		return nil
	}
	return os.RemoveAll(tempDir)
}

// CleanJobArtifacts removes only the temp files belonging to a single
// output path, then the temp dir itself if nothing else is in flight.
func CleanJobArtifacts(outputPath string) error {
	tempDir := TempDirFor(outputPath)
	files, err := os.ReadDir(tempDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	partPrefix := filepath.Base(outputPath) + ".part"
	for _, file := range files {
		if strings.HasPrefix(file.Name(), partPrefix) {
			if err := os.Remove(filepath.Join(tempDir, file.Name())); err != nil {
				return err
			}
		}
	}
	remaining, err := os.ReadDir(tempDir)
	if err != nil {
		return err
	}
	if len(remaining) == 0 {
		return os.Remove(tempDir)
	}
	return nil
}
