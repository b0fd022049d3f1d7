package report

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Sumatoshi-tech/crashdice/pkg/dice"
	"github.com/Sumatoshi-tech/crashdice/pkg/persist"
)

// LoadFile reads a report, picking the codec from the file extension.
func LoadFile(path string) (*dice.Report, error) {
	var r dice.Report

	err := persist.ReadFile(path, persist.CodecForPath(path), &r)
	if err != nil {
		return nil, fmt.Errorf("load report %s: %w", filepath.Base(path), err)
	}

	return &r, nil
}

// LoadDir reads every .json and .yaml report of dir, ordered by file name.
// Subdirectories are not descended into.
func LoadDir(dir string) ([]*dice.Report, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("load reports: %w", err)
	}

	var paths []string

	for _, entry := range entries {
		if entry.IsDir() || !isReportFile(entry.Name()) {
			continue
		}

		paths = append(paths, filepath.Join(dir, entry.Name()))
	}

	slices.Sort(paths)

	reports := make([]*dice.Report, 0, len(paths))

	for _, path := range paths {
		r, loadErr := LoadFile(path)
		if loadErr != nil {
			return nil, loadErr
		}

		reports = append(reports, r)
	}

	return reports, nil
}

func isReportFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	default:
		return false
	}
}
