package source

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"testing"
	"testing/iotest"
)

func TestSkipBOM(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{
			name:     "file with BOM",
			input:    append([]byte{0xEF, 0xBB, 0xBF}, []byte("id,name")...),
			expected: "id,name",
		},
		{name: "file without BOM", input: []byte("id,name"), expected: "id,name"},
		{name: "empty file", input: []byte{}, expected: ""},
		{name: "only BOM", input: []byte{0xEF, 0xBB, 0xBF}, expected: ""},
		{
			name:     "partial BOM kept",
			input:    []byte{0xEF, 0xBB, 'a', 'b'},
			expected: string([]byte{0xEF, 0xBB, 'a', 'b'}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(skipBOM(bytes.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestUTF8Sanitizer(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{name: "valid ASCII", input: []byte("u1,hand"), expected: "u1,hand"},
		{name: "valid multibyte", input: []byte("Иванов"), expected: "Иванов"},
		{name: "invalid byte replaced", input: []byte{'a', 0x80, 'b'}, expected: "a?b"},
		{name: "latin1 byte replaced", input: []byte{'M', 0xFC, 'l'}, expected: "M?l"},
		{name: "truncated rune at EOF", input: []byte{'x', 0xD0}, expected: "x?"},
		{name: "empty input", input: []byte{}, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(newUTF8Sanitizer(bytes.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestUTF8Sanitizer_SplitRune(t *testing.T) {
	input := []byte("name,Иванов,ok")
	r := newUTF8Sanitizer(iotest.OneByteReader(bytes.NewReader(input)))

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != string(input) {
		t.Errorf("got %q, want %q", got, input)
	}
}

func TestWrapStream_CountsBytes(t *testing.T) {
	input := append([]byte{0xEF, 0xBB, 0xBF}, []byte("a,b\n1,2\n")...)
	r := wrapStream(bytes.NewReader(input))

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "a,b\n1,2\n" {
		t.Errorf("got %q", got)
	}
	if r.n != int64(len(got)) {
		t.Errorf("n = %d, want %d", r.n, len(got))
	}
}

// readInSteps drains r through a destination of size bytes.
func readInSteps(t *testing.T, r io.Reader, size, maxCalls int) string {
	t.Helper()
	var out []byte
	buf := make([]byte, size)
	for calls := 0; ; calls++ {
		if calls > maxCalls {
			t.Fatalf("no EOF after %d reads, got %q so far", maxCalls, out)
		}
		n, err := r.Read(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			return string(out)
		}
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
	}
}

func TestUTF8Sanitizer_SmallDestination(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{name: "four byte rune", input: []byte("ab😀cd"), expected: "ab😀cd"},
		{name: "cyrillic", input: []byte("Иванов,Петрова"), expected: "Иванов,Петрова"},
		{name: "invalid byte between runes", input: []byte{0xD0, 0x98, 0x80, 'x'}, expected: "И?x"},
		{name: "truncated rune at EOF", input: []byte{'x', 0xF0, 0x9F}, expected: "x??"},
	}

	for _, tt := range tests {
		for _, size := range []int{1, 2, 3} {
			t.Run(fmt.Sprintf("%s/buf=%d", tt.name, size), func(t *testing.T) {
				sources := map[string]io.Reader{
					"whole":    bytes.NewReader(tt.input),
					"one byte": iotest.OneByteReader(bytes.NewReader(tt.input)),
				}
				for label, src := range sources {
					got := readInSteps(t, newUTF8Sanitizer(src), size, 4*len(tt.input)+10)
					if got != tt.expected {
						t.Errorf("%s: got %q, want %q", label, got, tt.expected)
					}
				}
			})
		}
	}
}

func TestUTF8Sanitizer_SourceError(t *testing.T) {
	boom := errors.New("disk gone")
	r := newUTF8Sanitizer(io.MultiReader(bytes.NewReader([]byte("ok")), iotest.ErrReader(boom)))

	got, err := io.ReadAll(r)
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want %v", err, boom)
	}
	if string(got) != "ok" {
		t.Errorf("got %q, want %q", got, "ok")
	}
}
