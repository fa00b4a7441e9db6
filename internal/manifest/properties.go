package manifest

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/opmodel/capwire/internal/fsutil"
)

// PropertiesFile is the module-register artifact's file name inside the
// resources directory.
const PropertiesFile = "module-register.properties"

const propertiesHeader = "# capwire module register\n# module=<descriptor names>\n"

// Properties maps module paths to the names of the register descriptors they
// contributed.
type Properties map[string][]string

// Has reports whether module is recorded.
func (p Properties) Has(module string) bool {
	_, ok := p[module]
	return ok
}

// Set records module with the given descriptor names, sorted.
func (p Properties) Set(module string, names []string) {
	sorted := append([]string{}, names...)
	sort.Strings(sorted)
	p[module] = sorted
}

// Modules returns the recorded module paths, sorted.
func (p Properties) Modules() []string {
	out := make([]string, 0, len(p))
	for m := range p {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// ParseProperties parses the artifact format: one module=a,b,c per line,
// with blank lines and lines starting with '#' or '!' ignored. name is used
// in error messages.
func ParseProperties(name string, r io.Reader) (Properties, error) {
	props := Properties{}
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") || strings.HasPrefix(text, "!") {
			continue
		}
		key, value, ok := strings.Cut(text, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, &PropertiesSyntaxError{Path: name, Line: line, Text: text}
		}
		var names []string
		for _, n := range strings.Split(value, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
		props[key] = names
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return props, nil
}

// ReadProperties reads the artifact at path. A missing file is an empty
// artifact.
func ReadProperties(path string) (Properties, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Properties{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return ParseProperties(path, bytes.NewReader(data))
}

// Format renders the artifact with sorted keys.
func (p Properties) Format() []byte {
	var buf bytes.Buffer
	buf.WriteString(propertiesHeader)
	for _, m := range p.Modules() {
		buf.WriteString(m)
		buf.WriteByte('=')
		buf.WriteString(strings.Join(p[m], ","))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// WriteProperties writes the artifact atomically.
func WriteProperties(path string, p Properties) error {
	return fsutil.WriteFileAtomic(path, p.Format(), 0o644)
}
