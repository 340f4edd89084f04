package core

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBOMSkippingReader(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{
			name:     "file with BOM",
			input:    append([]byte{0xEF, 0xBB, 0xBF}, []byte("hello,world")...),
			expected: "hello,world",
		},
		{
			name:     "file without BOM",
			input:    []byte("hello,world"),
			expected: "hello,world",
		},
		{
			name:     "empty file",
			input:    []byte{},
			expected: "",
		},
		{
			name:     "only BOM",
			input:    []byte{0xEF, 0xBB, 0xBF},
			expected: "",
		},
		{
			name:     "partial BOM at start",
			input:    []byte{0xEF, 0xBB, 'a', 'b', 'c'},
			expected: string([]byte{0xEF, 0xBB, 'a', 'b', 'c'}),
		},
		{
			name:     "short input",
			input:    []byte("ab"),
			expected: "ab",
		},
		{
			name:     "default delimiter survives",
			input:    []byte("a\xfe1"),
			expected: "a\xfe1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := NewBOMSkippingReader(bytes.NewReader(tt.input))
			result, err := io.ReadAll(reader)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(result) != tt.expected {
				t.Errorf("got %q, want %q", string(result), tt.expected)
			}
		})
	}
}

func TestStreamingCountingReader(t *testing.T) {
	input := strings.Repeat("x", 1000)
	reader := NewStreamingCountingReader(strings.NewReader(input), int64(len(input)))

	// Read in chunks
	buf := make([]byte, 100)
	totalRead := 0
	for {
		n, err := reader.Read(buf)
		totalRead += n
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if totalRead != len(input) {
		t.Errorf("total read = %d, want %d", totalRead, len(input))
	}

	if reader.BytesRead != int64(len(input)) {
		t.Errorf("BytesRead = %d, want %d", reader.BytesRead, len(input))
	}

	if reader.Progress() != 100 {
		t.Errorf("Progress = %d, want 100", reader.Progress())
	}
}

func TestWrapForStreaming(t *testing.T) {
	input := append([]byte{0xEF, 0xBB, 0xBF}, []byte("he\xfelo")...)

	reader, counter := WrapForStreaming(bytes.NewReader(input), int64(len(input)))
	result, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// BOM stripped, other bytes untouched
	expected := "he\xfelo"
	if string(result) != expected {
		t.Errorf("got %q, want %q", string(result), expected)
	}

	// Counter sees the raw input, BOM included
	if counter.BytesRead != int64(len(input)) {
		t.Errorf("BytesRead = %d, want %d", counter.BytesRead, len(input))
	}
}

func readAllLines(t *testing.T, src Source) []string {
	t.Helper()
	var lines []string
	for {
		line, err := src.ReadLine()
		if err == io.EOF {
			return lines
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		lines = append(lines, line)
	}
}

func TestLineReader(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"empty", "", nil},
		{"single line no newline", "a,1", []string{"a,1"}},
		{"single line", "a,1\n", []string{"a,1"}},
		{"crlf", "a,1\r\nb,2\r\n", []string{"a,1", "b,2"}},
		{"blank lines kept", "a\n\nb\n", []string{"a", "", "b"}},
		{"lone carriage return kept mid-line", "a\rb\n", []string{"a\rb"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := readAllLines(t, NewReaderSource(strings.NewReader(tt.input)))
			if len(got) != len(tt.expected) {
				t.Fatalf("got %q, want %q", got, tt.expected)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("line %d: got %q, want %q", i, got[i], tt.expected[i])
				}
			}
		})
	}
}

func TestLineReader_LongLines(t *testing.T) {
	long := strings.Repeat("x", 200*1024)

	t.Run("unlimited grows past buffer", func(t *testing.T) {
		got := readAllLines(t, NewReaderSource(strings.NewReader(long+"\nend\n")))
		if len(got) != 2 || got[0] != long || got[1] != "end" {
			t.Errorf("unexpected lines: %d", len(got))
		}
	})

	t.Run("limit exceeded", func(t *testing.T) {
		src := NewReaderSourceLimit(strings.NewReader(long+"\n"), 1024)
		_, err := src.ReadLine()
		if !errors.Is(err, ErrLineTooLong) {
			t.Fatalf("got %v, want ErrLineTooLong", err)
		}
		if !errors.Is(err, ErrAllocation) {
			t.Errorf("line too long should be an allocation error")
		}
	})

	t.Run("limit excludes terminator", func(t *testing.T) {
		src := NewReaderSourceLimit(strings.NewReader("abcd\r\n"), 4)
		line, err := src.ReadLine()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if line != "abcd" {
			t.Errorf("got %q, want %q", line, "abcd")
		}
	})
}

func TestLineReader_LimitBoundary(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		tooLong bool
	}{
		{name: "exact with newline", input: "abcde\n", want: "abcde"},
		{name: "exact with crlf", input: "abcde\r\n", want: "abcde"},
		{name: "exact without terminator", input: "abcde", want: "abcde"},
		{name: "one over with newline", input: "abcdef\n", tooLong: true},
		{name: "one over with crlf", input: "abcdef\r\n", tooLong: true},
		{name: "one over without terminator", input: "abcdef", tooLong: true},
		{name: "two over without terminator", input: "abcdefg", tooLong: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, err := NewLineReader(strings.NewReader(tt.input), 5).ReadLine()
			if tt.tooLong {
				if !errors.Is(err, ErrLineTooLong) {
					t.Fatalf("got %q, %v, want ErrLineTooLong", line, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if line != tt.want {
				t.Errorf("got %q, want %q", line, tt.want)
			}
		})
	}
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.txt")
	second := filepath.Join(dir, "second.txt")
	if err := os.WriteFile(first, []byte("a,1\nb,2"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(second, []byte("\xEF\xBB\xBFc,3\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Run("concatenates in argument order", func(t *testing.T) {
		src := NewFileSource([]string{first, second}, nil, 0)
		defer src.Close()

		got := readAllLines(t, src)
		want := []string{"a,1", "b,2", "c,3"}
		if strings.Join(got, "|") != strings.Join(want, "|") {
			t.Errorf("got %q, want %q", got, want)
		}
		if src.BytesRead() != int64(7+7) {
			t.Errorf("BytesRead = %d, want 14", src.BytesRead())
		}
	})

	t.Run("no paths reads stdin", func(t *testing.T) {
		src := NewFileSource(nil, strings.NewReader("x\ny\n"), 0)
		got := readAllLines(t, src)
		if strings.Join(got, "|") != "x|y" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("dash reads stdin between files", func(t *testing.T) {
		src := NewFileSource([]string{first, "-", second}, strings.NewReader("z\n"), 0)
		got := readAllLines(t, src)
		if strings.Join(got, "|") != "a,1|b,2|z|c,3" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("missing file is an input error", func(t *testing.T) {
		src := NewFileSource([]string{filepath.Join(dir, "missing.txt")}, nil, 0)
		_, err := src.ReadLine()
		if !errors.Is(err, ErrInput) {
			t.Fatalf("got %v, want ErrInput", err)
		}
		if ExitCode(err) != ExitFileErr {
			t.Errorf("ExitCode = %d, want %d", ExitCode(err), ExitFileErr)
		}
	})
}
