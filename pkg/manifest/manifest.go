// Package manifest reads pip requirements files. The parser understands enough of the
// format to list what will be installed and to fingerprint the content; resolving the
// requirements is left to pip.
package manifest

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

// Requirement is one requirement line.
type Requirement struct {
	Name      string
	Extras    []string
	Specifier string
	Marker    string
	// URL is set for direct references ("name @ url") and bare URLs or paths.
	URL      string
	Editable bool
	// Options holds per-requirement pip options such as --hash.
	Options []string
	// Raw is set instead of the parsed fields when the line could not be read. pip gets
	// to decide about it.
	Raw  string
	File string
	Line int
}

func (r Requirement) String() string {
	if r.Raw != "" {
		return r.Raw
	}

	var b strings.Builder
	if r.Editable {
		b.WriteString("-e ")
	}

	if r.Name != "" {
		b.WriteString(r.Name)
		if len(r.Extras) > 0 {
			b.WriteString("[" + strings.Join(r.Extras, ",") + "]")
		}
		b.WriteString(r.Specifier)
		if r.URL != "" {
			b.WriteString(" @ " + r.URL)
		}
	} else {
		b.WriteString(r.URL)
	}

	if r.Marker != "" {
		b.WriteString("; " + r.Marker)
	}
	return b.String()
}

// Manifest is a parsed requirements file including everything it references with -r.
type Manifest struct {
	Path         string
	Digest       string
	Requirements []Requirement
	// Includes lists nested requirement files, Constraints the -c files.
	Includes    []string
	Constraints []string
	// Options are global pip options such as --index-url.
	Options []string
}

// Names returns the distinct requirement names in order of appearance.
func (m *Manifest) Names() []string {
	seen := make(map[string]bool, len(m.Requirements))
	names := make([]string, 0, len(m.Requirements))
	for _, r := range m.Requirements {
		name := r.Name
		if name == "" {
			name = r.URL
		}
		if name == "" {
			name = r.Raw
		}

		key := Normalize(name)
		if !seen[key] {
			seen[key] = true
			names = append(names, name)
		}
	}
	return names
}

var (
	namePattern       = regexp.MustCompile(`^([A-Za-z0-9](?:[A-Za-z0-9._-]*[A-Za-z0-9])?)\s*(?:\[([^\]]*)\])?\s*(.*)$`)
	normalizePattern  = regexp.MustCompile(`[-_.]+`)
	specifierPattern  = regexp.MustCompile(`^(?:(?:===|==|~=|!=|<=|>=|<|>)\s*[A-Za-z0-9.*+!_-]+\s*,?\s*)+$`)
	commentPattern    = regexp.MustCompile(`(^|\s+)#.*$`)
	optionPattern     = regexp.MustCompile(`\s--?[A-Za-z]`)
	drivePattern      = regexp.MustCompile(`^[A-Za-z]:[\\/]`)
	urlOrPathPrefixes = []string{"http://", "https://", "git+", "file:", ".", "/", `\\`}
)

// Normalize returns the canonical form of a project name (PEP 503).
func Normalize(name string) string {
	return strings.ToLower(normalizePattern.ReplaceAllString(name, "-"))
}

// Load parses the requirements file at path.
func Load(path string) (*Manifest, error) {
	m := &Manifest{Path: path}
	hash := sha256.New()

	err := m.load(path, hash, map[string]bool{})
	if err != nil {
		return nil, err
	}

	m.Digest = hex.EncodeToString(hash.Sum(nil))
	return m, nil
}

func (m *Manifest) load(path string, hash io.Writer, visiting map[string]bool) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return eris.Wrapf(err, "Failed to resolve %s", path)
	}

	if visiting[absPath] {
		return eris.Errorf("%s includes itself", path)
	}
	visiting[absPath] = true
	defer delete(visiting, absPath)

	content, err := hashFile(path, hash)
	if err != nil {
		return err
	}

	lines, err := logicalLines(content)
	if err != nil {
		return eris.Wrapf(err, "Failed to read %s", path)
	}

	for _, line := range lines {
		err = m.parseLine(path, line.number, line.text, hash, visiting)
		if err != nil {
			return err
		}
	}

	return nil
}

func hashFile(path string, hash io.Writer) ([]byte, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "Could not open file %s", path)
	}

	_, _ = hash.Write([]byte(filepath.Base(path) + "\x00"))
	_, _ = hash.Write(content)
	return content, nil
}

type logicalLine struct {
	number int
	text   string
}

// logicalLines strips comments and joins lines ending in a backslash.
func logicalLines(content []byte) ([]logicalLine, error) {
	result := []logicalLine{}
	scanner := bufio.NewScanner(bytes.NewReader(content))

	var pending strings.Builder
	start := 0
	number := 0
	for scanner.Scan() {
		number++
		text := commentPattern.ReplaceAllString(scanner.Text(), "")
		if pending.Len() == 0 {
			start = number
		}

		if strings.HasSuffix(text, `\`) {
			pending.WriteString(strings.TrimSuffix(text, `\`))
			continue
		}

		pending.WriteString(text)
		joined := strings.TrimSpace(pending.String())
		pending.Reset()

		if joined != "" {
			result = append(result, logicalLine{number: start, text: joined})
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if rest := strings.TrimSpace(pending.String()); rest != "" {
		result = append(result, logicalLine{number: start, text: rest})
	}

	return result, nil
}

func splitOption(line string) (string, string) {
	if pos := strings.IndexAny(line, " \t="); pos > -1 {
		return line[:pos], strings.TrimSpace(strings.TrimLeft(line[pos:], " \t="))
	}
	return line, ""
}

func (m *Manifest) parseLine(path string, number int, line string, hash io.Writer, visiting map[string]bool) error {
	if strings.HasPrefix(line, "-") {
		option, value := splitOption(line)
		switch option {
		case "-r", "--requirement", "-c", "--constraint":
			if value == "" {
				return eris.Errorf("%s:%d: %s needs a file name", path, number, option)
			}

			nested := value
			if !filepath.IsAbs(nested) {
				nested = filepath.Join(filepath.Dir(path), nested)
			}

			if option == "-c" || option == "--constraint" {
				m.Constraints = append(m.Constraints, nested)
				_, err := hashFile(nested, hash)
				return err
			}

			m.Includes = append(m.Includes, nested)
			return m.load(nested, hash, visiting)
		case "-e", "--editable":
			if value == "" {
				return eris.Errorf("%s:%d: %s needs a path or URL", path, number, option)
			}

			req := readRequirement(value)
			req.Editable = true
			m.add(req, path, number)
			return nil
		default:
			m.Options = append(m.Options, line)
			return nil
		}
	}

	m.add(readRequirement(line), path, number)
	return nil
}

func (m *Manifest) add(req Requirement, path string, number int) {
	req.File = path
	req.Line = number
	m.Requirements = append(m.Requirements, req)
}

// readRequirement splits off per-requirement options and parses the rest. Lines that
// can't be parsed are kept verbatim in Raw.
func readRequirement(line string) Requirement {
	text := line
	var options []string
	if loc := optionPattern.FindStringIndex(line); loc != nil {
		text = strings.TrimSpace(line[:loc[0]])
		options = strings.Fields(line[loc[0]:])
	}

	req, err := parseRequirement(text)
	if err != nil {
		return Requirement{Raw: line}
	}

	req.Options = options
	return req
}

func isURLOrPath(line string) bool {
	if drivePattern.MatchString(line) {
		return true
	}

	for _, prefix := range urlOrPathPrefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

func parseRequirement(line string) (Requirement, error) {
	req := Requirement{}

	if isURLOrPath(line) {
		parts := strings.SplitN(line, ";", 2)
		req.URL = strings.TrimSpace(parts[0])
		if len(parts) > 1 {
			req.Marker = strings.TrimSpace(parts[1])
		}

		if pos := strings.Index(req.URL, "#egg="); pos > -1 {
			req.Name = req.URL[pos+5:]
		}
		return req, nil
	}

	match := namePattern.FindStringSubmatch(line)
	if match == nil {
		return req, eris.Errorf("invalid requirement %q", line)
	}

	req.Name = match[1]
	if match[2] != "" {
		for _, extra := range strings.Split(match[2], ",") {
			if extra = strings.TrimSpace(extra); extra != "" {
				req.Extras = append(req.Extras, extra)
			}
		}
	}

	rest := strings.TrimSpace(match[3])
	if pos := strings.Index(rest, ";"); pos > -1 {
		req.Marker = strings.TrimSpace(rest[pos+1:])
		rest = strings.TrimSpace(rest[:pos])
	}

	if strings.HasPrefix(rest, "@") {
		req.URL = strings.TrimSpace(rest[1:])
		if req.URL == "" {
			return req, eris.Errorf("invalid requirement %q: missing URL after @", line)
		}
		return req, nil
	}

	rest = strings.TrimSuffix(strings.TrimPrefix(rest, "("), ")")
	if rest != "" && !specifierPattern.MatchString(rest) {
		return req, eris.Errorf("invalid version specifier %q for %s", rest, req.Name)
	}
	req.Specifier = strings.ReplaceAll(rest, " ", "")

	return req, nil
}

// Summary returns a short human readable description like "3 packages (numpy, h5py, ...)".
func (m *Manifest) Summary(limit int) string {
	names := m.Names()
	label := "packages"
	if len(names) == 1 {
		label = "package"
	}

	if len(names) == 0 {
		return "no packages"
	}

	shown := names
	suffix := ""
	if limit > 0 && len(names) > limit {
		shown = names[:limit]
		suffix = ", ..."
	}

	return fmt.Sprintf("%d %s (%s%s)", len(names), label, strings.Join(shown, ", "), suffix)
}
