package loader

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/quarksim/quark/internal/testutil"
)

func TestReadHex(t *testing.T) {
	img, err := ReadHex(strings.NewReader(`# boot stub
0x00500093
0x00100073  # ebreak
`))
	if err != nil {
		t.Fatalf("ReadHex: %v", err)
	}

	want := []Entry{
		{Addr: 0, Word: 0x00500093},
		{Addr: 4, Word: 0x00100073},
	}
	if len(img.Entries) != len(want) {
		t.Fatalf("entries = %d, want %d", len(img.Entries), len(want))
	}
	for i, e := range want {
		if img.Entries[i] != e {
			t.Errorf("entry %d = %+v, want %+v", i, img.Entries[i], e)
		}
	}
}

func TestReadHexBaseDirective(t *testing.T) {
	img, err := ReadHex(strings.NewReader(`0x11111111
@0x100
0x22222222
0x33333333
`))
	if err != nil {
		t.Fatalf("ReadHex: %v", err)
	}

	want := []Entry{
		{Addr: 0, Word: 0x11111111},
		{Addr: 0x100, Word: 0x22222222},
		{Addr: 0x104, Word: 0x33333333},
	}
	for i, e := range want {
		if img.Entries[i] != e {
			t.Errorf("entry %d = %+v, want %+v", i, img.Entries[i], e)
		}
	}
}

func TestReadHexBareDigits(t *testing.T) {
	// Bare digits read as hex, the $readmemh convention.
	img, err := ReadHex(strings.NewReader(`deadbeef
19
@80
1
`))
	if err != nil {
		t.Fatalf("ReadHex: %v", err)
	}
	want := []Entry{
		{Addr: 0, Word: 0xDEADBEEF},
		{Addr: 4, Word: 0x19},
		{Addr: 0x80, Word: 1},
	}
	for i, e := range want {
		if img.Entries[i] != e {
			t.Errorf("entry %d = %+v, want %+v", i, img.Entries[i], e)
		}
	}
}

func TestReadHexErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"empty", "", ErrEmptyImage},
		{"comments only", "# nothing here\n", ErrEmptyImage},
		{"bad word", "0xZZZZ\n", ErrBadWord},
		{"word too wide", "0x1FFFFFFFF\n", ErrBadWord},
		{"bad base", "@nope\n", ErrBadWord},
		{"unaligned base", "@0x102\n0x1\n", ErrUnalignedEntry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadHex(strings.NewReader(tt.input))
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestWriteHexRoundTrip(t *testing.T) {
	img := &Image{Entries: []Entry{
		{Addr: 0, Word: 0xAAAAAAAA},
		{Addr: 4, Word: 0xBBBBBBBB},
		{Addr: 0x200, Word: 0xCCCCCCCC},
	}}

	var buf bytes.Buffer
	if err := WriteHex(&buf, img); err != nil {
		t.Fatalf("WriteHex: %v", err)
	}
	if !strings.Contains(buf.String(), "@0x00000200") {
		t.Errorf("gap should emit a base directive, got:\n%s", buf.String())
	}

	back, err := ReadHex(&buf)
	if err != nil {
		t.Fatalf("ReadHex: %v", err)
	}
	if len(back.Entries) != len(img.Entries) {
		t.Fatalf("entries = %d, want %d", len(back.Entries), len(img.Entries))
	}
	for i := range img.Entries {
		if back.Entries[i] != img.Entries[i] {
			t.Errorf("entry %d = %+v, want %+v", i, back.Entries[i], img.Entries[i])
		}
	}
}

func TestWriteHexNonzeroStart(t *testing.T) {
	img := &Image{Entries: []Entry{{Addr: 0x80, Word: 1}}}
	var buf bytes.Buffer
	if err := WriteHex(&buf, img); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "@0x00000080\n") {
		t.Errorf("image not starting at zero needs a leading directive, got:\n%s", buf.String())
	}
}

func TestLoadHexFile(t *testing.T) {
	path := testutil.WriteTempFile(t, "prog.hex", "0x00500093\n")
	img, err := LoadHex(path)
	if err != nil {
		t.Fatalf("LoadHex: %v", err)
	}
	if img.Entries[0].Word != 0x00500093 {
		t.Errorf("word = 0x%08x, want 0x00500093", img.Entries[0].Word)
	}
}
