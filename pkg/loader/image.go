// Package loader reads memory images for the rv32 core. An image is
// an ordered list of (address, word) entries; the hex text format
// carries consecutive words from a base address, while the CSV, JSON
// and Parquet formats carry explicit addr/word columns.
package loader

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	dataframe "github.com/rocketlaunchr/dataframe-go"
)

// Error definitions
var (
	ErrEmptyImage     = errors.New("empty image")
	ErrMissingColumn  = errors.New("image is missing a required column")
	ErrBadWord        = errors.New("invalid word value")
	ErrUnknownFormat  = errors.New("unknown image format")
	ErrUnalignedEntry = errors.New("image entry address not word aligned")
)

// Entry is one word of an image.
type Entry struct {
	Addr uint32
	Word uint32
}

// Image is a loaded memory image.
type Image struct {
	Entries []Entry
}

// WordWriter is the sink an image is applied to; soc.Memory satisfies
// it.
type WordWriter interface {
	WriteWord(addr, word uint32)
}

// Apply stores every entry through the writer.
func (img *Image) Apply(w WordWriter) {
	for _, e := range img.Entries {
		w.WriteWord(e.Addr, e.Word)
	}
}

// Words returns the image as consecutive words starting at base,
// usable only for dense images; gaps are zero-filled and entries
// below base are ignored.
func (img *Image) Words(base uint32) []uint32 {
	var max uint32
	for _, e := range img.Entries {
		if e.Addr < base {
			continue
		}
		if off := e.Addr - base; off >= max {
			max = off + 4
		}
	}
	words := make([]uint32, max/4)
	for _, e := range img.Entries {
		if e.Addr < base {
			continue
		}
		words[(e.Addr-base)/4] = e.Word
	}
	return words
}

// Load reads an image, picking the format from the file extension:
// .hex, .csv, .json, or .parquet.
func Load(path string) (*Image, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".hex":
		return LoadHex(path)
	case ".csv":
		return LoadCSV(path)
	case ".json":
		return LoadJSON(path)
	case ".parquet":
		return LoadParquet(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
}

// frameImage converts a dataframe with addr and word columns into an
// image. Values may be integers or 0x-prefixed strings.
func frameImage(df *dataframe.DataFrame) (*Image, error) {
	addrCol := findSeries(df, "addr")
	wordCol := findSeries(df, "word")
	if addrCol == nil || wordCol == nil {
		return nil, fmt.Errorf("%w: need addr and word", ErrMissingColumn)
	}

	n := addrCol.NRows()
	if n == 0 {
		return nil, ErrEmptyImage
	}

	img := &Image{Entries: make([]Entry, 0, n)}
	for i := 0; i < n; i++ {
		addr, err := wordValue(addrCol.Value(i))
		if err != nil {
			return nil, fmt.Errorf("row %d addr: %w", i, err)
		}
		word, err := wordValue(wordCol.Value(i))
		if err != nil {
			return nil, fmt.Errorf("row %d word: %w", i, err)
		}
		if addr&3 != 0 {
			return nil, fmt.Errorf("%w: 0x%08x", ErrUnalignedEntry, addr)
		}
		img.Entries = append(img.Entries, Entry{Addr: addr, Word: word})
	}
	return img, nil
}

func findSeries(df *dataframe.DataFrame, name string) dataframe.Series {
	for _, s := range df.Series {
		if strings.EqualFold(s.Name(), name) {
			return s
		}
	}
	return nil
}

func wordValue(v any) (uint32, error) {
	switch x := v.(type) {
	case int64:
		return uint32(x), nil
	case float64:
		return uint32(int64(x)), nil
	case string:
		u, err := strconv.ParseUint(strings.TrimSpace(x), 0, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrBadWord, x)
		}
		return uint32(u), nil
	case nil:
		return 0, fmt.Errorf("%w: nil", ErrBadWord)
	default:
		return 0, fmt.Errorf("%w: %v", ErrBadWord, v)
	}
}
