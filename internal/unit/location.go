package unit

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Location names an input unit and, optionally, where its output goes.
type Location struct {
	Path   string
	Output string
}

// ParseLocation parses "path[=output]".
func ParseLocation(s string) (Location, error) {
	path, output, _ := strings.Cut(s, "=")
	path = strings.TrimSpace(path)
	output = strings.TrimSpace(output)
	if path == "" {
		return Location{}, fmt.Errorf("invalid unit location %q: empty path", s)
	}
	return Location{Path: path, Output: output}, nil
}

// ParseLocations parses every element of ss with ParseLocation.
func ParseLocations(ss []string) ([]Location, error) {
	locs := make([]Location, 0, len(ss))
	for _, s := range ss {
		loc, err := ParseLocation(s)
		if err != nil {
			return nil, err
		}
		locs = append(locs, loc)
	}
	return locs, nil
}

// String renders the location in "path[=output]" form.
func (l Location) String() string {
	if l.Output == "" {
		return l.Path
	}
	return l.Path + "=" + l.Output
}

// OutputPath returns the explicit output, or outputDir/<index>-<base>.
func (l Location) OutputPath(index int, outputDir string) string {
	if l.Output != "" {
		return l.Output
	}
	base := filepath.Base(filepath.Clean(l.Path))
	return filepath.Join(outputDir, fmt.Sprintf("%d-%s", index, base))
}
