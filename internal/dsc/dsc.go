// Package dsc parses Debian source control (.dsc) manifests.
package dsc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/opencontainers/go-digest"
)

// Errors.
var (
	// ErrMalformed is returned for a manifest that cannot be parsed.
	ErrMalformed = errors.New("malformed dsc")

	// ErrInvalidName is returned for a listed file name that is not a plain
	// file name.
	ErrInvalidName = errors.New("invalid file name in dsc")
)

// File is one constituent file listed by a manifest.
type File struct {
	Name string
	Size int64

	// Digest is the SHA-256 digest from Checksums-Sha256, or empty when the
	// manifest does not list one.
	Digest digest.Digest
}

// Manifest is a parsed .dsc file.
type Manifest struct {
	Source  string
	Version string
	Format  string
	Files   []File
}

const maxLine = 1 << 20

// Parse reads a manifest. An OpenPGP clearsign wrapper is stripped without
// verifying the signature.
func Parse(r io.Reader) (*Manifest, error) {
	fields, err := readFields(r)
	if err != nil {
		return nil, err
	}

	m := &Manifest{
		Source:  fields["source"].value,
		Version: fields["version"].value,
		Format:  fields["format"].value,
	}

	files, err := parseList(fields["files"].lines, 32)
	if err != nil {
		return nil, fmt.Errorf("parse Files: %w", err)
	}
	sums, err := parseList(fields["checksums-sha256"].lines, 64)
	if err != nil {
		return nil, fmt.Errorf("parse Checksums-Sha256: %w", err)
	}
	if len(files) == 0 {
		files = sums
	}

	digests := make(map[string]digest.Digest, len(sums))
	for _, s := range sums {
		digests[s.name] = digest.NewDigestFromEncoded(digest.SHA256, s.sum)
	}

	seen := make(map[string]bool, len(files))
	for _, f := range files {
		if seen[f.name] {
			continue
		}
		seen[f.name] = true
		m.Files = append(m.Files, File{Name: f.name, Size: f.size, Digest: digests[f.name]})
	}
	return m, nil
}

type field struct {
	value string
	lines []string
}

// readFields reads the first paragraph of a deb822 document into lower-cased
// field names.
func readFields(r io.Reader) (map[string]field, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLine)

	fields := make(map[string]field)
	var (
		current  string
		signed   bool
		inHeader bool
		inBody   bool
		lineNo   int
	)
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")

		switch {
		case line == "-----BEGIN PGP SIGNED MESSAGE-----":
			signed, inHeader = true, true
			continue
		case signed && inHeader:
			// Armor headers end at the first blank line.
			if strings.TrimSpace(line) == "" {
				inHeader = false
			}
			continue
		case signed && line == "-----BEGIN PGP SIGNATURE-----":
			return fields, sc.Err()
		case signed:
			line = strings.TrimPrefix(line, "- ")
		}

		if strings.TrimSpace(line) == "" {
			if inBody {
				// Only the first paragraph describes the source.
				break
			}
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		inBody = true

		if line[0] == ' ' || line[0] == '\t' {
			if current == "" {
				return nil, fmt.Errorf("%w: line %d: continuation without field", ErrMalformed, lineNo)
			}
			f := fields[current]
			f.lines = append(f.lines, strings.TrimSpace(line))
			fields[current] = f
			continue
		}

		name, value, ok := strings.Cut(line, ":")
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: line %d: expected field", ErrMalformed, lineNo)
		}
		current = strings.ToLower(name)
		fields[current] = field{value: strings.TrimSpace(value)}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return fields, nil
}

type listed struct {
	sum  string
	size int64
	name string
}

// parseList parses "<checksum> <size> <name>" lines whose checksum is
// sumLen hex characters.
func parseList(lines []string, sumLen int) ([]listed, error) {
	out := make([]listed, 0, len(lines))
	for _, l := range lines {
		parts := strings.Fields(l)
		if len(parts) != 3 {
			return nil, fmt.Errorf("%w: %q", ErrMalformed, l)
		}
		sum := strings.ToLower(parts[0])
		if len(sum) != sumLen || strings.Trim(sum, "0123456789abcdef") != "" {
			return nil, fmt.Errorf("%w: bad checksum %q", ErrMalformed, parts[0])
		}
		size, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || size < 0 {
			return nil, fmt.Errorf("%w: bad size %q", ErrMalformed, parts[1])
		}
		name := parts[2]
		if name == "." || name == ".." || strings.ContainsAny(name, "/\\") {
			return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
		out = append(out, listed{sum: sum, size: size, name: name})
	}
	return out, nil
}
