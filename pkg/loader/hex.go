package loader

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// LoadHex reads the hex text image format: one word per line as a
// 0x-prefixed (or bare hex) number, `#` comments, words placed at
// consecutive addresses. A line of the form `@0x100` moves the
// placement address.
func LoadHex(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadHex(f)
}

// ReadHex parses the hex image format from a reader.
func ReadHex(r io.Reader) (*Image, error) {
	img := &Image{}
	scanner := bufio.NewScanner(r)
	var addr uint32
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if i := strings.Index(text, "#"); i >= 0 {
			text = text[:i]
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if strings.HasPrefix(text, "@") {
			base, err := parseHex(text[1:])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w: %q", line, ErrBadWord, text)
			}
			if base&3 != 0 {
				return nil, fmt.Errorf("line %d: %w: 0x%08x", line, ErrUnalignedEntry, base)
			}
			addr = uint32(base)
			continue
		}
		word, err := parseHex(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w: %q", line, ErrBadWord, text)
		}
		img.Entries = append(img.Entries, Entry{Addr: addr, Word: uint32(word)})
		addr += 4
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(img.Entries) == 0 {
		return nil, ErrEmptyImage
	}
	return img, nil
}

// parseHex reads a 32-bit hex value with or without a 0x prefix, the
// way $readmemh firmware files write bare digits.
func parseHex(text string) (uint64, error) {
	text = strings.TrimPrefix(strings.TrimPrefix(text, "0x"), "0X")
	return strconv.ParseUint(text, 16, 32)
}

// WriteHex renders an image in the hex text format, emitting `@addr`
// directives at gaps.
func WriteHex(w io.Writer, img *Image) error {
	var next uint32
	first := true
	for _, e := range img.Entries {
		if first && e.Addr != 0 || !first && e.Addr != next {
			if _, err := fmt.Fprintf(w, "@0x%08x\n", e.Addr); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "0x%08x\n", e.Word); err != nil {
			return err
		}
		next = e.Addr + 4
		first = false
	}
	return nil
}
