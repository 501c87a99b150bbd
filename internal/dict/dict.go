// Package dict holds the static zstd dictionaries used to prime container
// compression and selects one from a source file name.
package dict

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Kind identifies one of the three dictionary categories.
type Kind uint8

// Dictionary kinds.
const (
	// Orig primes upstream source tarballs; it is the default.
	Orig Kind = iota

	// Diff primes Debian diff files (*.diff.*).
	Diff

	// Debian primes Debian packaging tarballs (*.debian.*).
	Debian
)

// kinds lists every Kind in declaration order.
var kinds = [...]Kind{Orig, Diff, Debian}

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case Orig:
		return "orig"
	case Diff:
		return "diff"
	case Debian:
		return "debian"
	default:
		return "unknown"
	}
}

// FileName is the name of a trained dictionary for k inside a dictionary
// directory.
func (k Kind) FileName() string {
	switch k {
	case Diff:
		return "diff.zstd-dictionary"
	case Debian:
		return "debian.tar.zstd-dictionary"
	default:
		return "orig.zstd-dictionary"
	}
}

// id is the dictionary ID written into frames compressed with the embedded
// raw-content dictionary of k.
func (k Kind) id() uint32 {
	return 0x616e6e01 + uint32(k)
}

// ForName selects the dictionary kind for a source file name.
func ForName(name string) Kind {
	switch {
	case strings.Contains(name, ".diff."):
		return Diff
	case strings.Contains(name, ".debian."):
		return Debian
	default:
		return Orig
	}
}

var (
	//go:embed data/orig.dict
	origRaw []byte

	//go:embed data/diff.dict
	diffRaw []byte

	//go:embed data/debian.dict
	debianRaw []byte
)

// trainedMagic starts every dictionary produced by `zstd --train`.
var trainedMagic = []byte{0x37, 0xa4, 0x30, 0xec}

// Dictionary is one compression dictionary.
//
// Raw dictionaries are plain content primed under a fixed ID; trained
// dictionaries carry their own header and ID.
type Dictionary struct {
	Kind Kind
	ID   uint32
	Data []byte
	Raw  bool
}

// EncoderOption returns the zstd encoder option that loads d.
func (d Dictionary) EncoderOption() zstd.EOption {
	if d.Raw {
		return zstd.WithEncoderDictRaw(d.ID, d.Data)
	}
	return zstd.WithEncoderDict(d.Data)
}

// DecoderOption returns the zstd decoder option that registers d.
func (d Dictionary) DecoderOption() zstd.DOption {
	if d.Raw {
		return zstd.WithDecoderDictRaw(d.ID, d.Data)
	}
	return zstd.WithDecoderDicts(d.Data)
}

// Set is an immutable set of one dictionary per kind.
type Set struct {
	dicts [len(kinds)]Dictionary
}

// Embedded returns the set of built-in raw-content dictionaries.
func Embedded() *Set {
	s := &Set{}
	for _, k := range kinds {
		s.dicts[k] = Dictionary{Kind: k, ID: k.id(), Data: embedded(k), Raw: true}
	}
	return s
}

func embedded(k Kind) []byte {
	switch k {
	case Diff:
		return diffRaw
	case Debian:
		return debianRaw
	default:
		return origRaw
	}
}

// Load returns the embedded set with any dictionary found in dir replacing
// its embedded counterpart. Files are looked up by Kind.FileName. A file
// starting with the zstd dictionary magic is used as a trained dictionary;
// anything else is used as raw content under the kind's fixed ID.
func Load(dir string) (*Set, error) {
	s := Embedded()
	if dir == "" {
		return s, nil
	}
	for _, k := range kinds {
		path := filepath.Join(dir, k.FileName())
		data, err := os.ReadFile(path) //nolint:gosec // operator-configured directory
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load %s dictionary: %w", k, err)
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("load %s dictionary: %s is empty", k, path)
		}
		d := Dictionary{Kind: k, ID: k.id(), Data: data, Raw: true}
		if bytes.HasPrefix(data, trainedMagic) {
			d.Raw = false
			d.ID = 0
		}
		s.dicts[k] = d
	}
	return s, nil
}

// Get returns the dictionary for k.
func (s *Set) Get(k Kind) Dictionary {
	if int(k) >= len(s.dicts) {
		k = Orig
	}
	return s.dicts[k]
}

// ForName returns the dictionary selected by a source file name.
func (s *Set) ForName(name string) Dictionary {
	return s.Get(ForName(name))
}

// DecoderOptions returns options registering every dictionary in the set.
func (s *Set) DecoderOptions() []zstd.DOption {
	opts := make([]zstd.DOption, 0, len(s.dicts))
	for _, d := range s.dicts {
		opts = append(opts, d.DecoderOption())
	}
	return opts
}
