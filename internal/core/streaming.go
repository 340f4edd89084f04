package core

// streaming.go provides the line-oriented input sources the aggregator reads.
//
// Readers are wrapped without loading whole files into memory:
//
//   - BOMSkippingReader: Removes a UTF-8 BOM (0xEF 0xBB 0xBF) from Windows files
//   - StreamingCountingReader: Tracks bytes read for progress reporting
//   - LineReader: Splits a stream into lines with an optional length limit
//
// FileSource concatenates several files in argument order, falling back to
// standard input, which is what the command line uses.

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
)

// Source yields input lines across one or more inputs.
type Source interface {
	// ReadLine returns the next line without its line terminator. It returns
	// io.EOF once every input is exhausted.
	ReadLine() (string, error)

	// BytesRead reports the bytes consumed so far across all inputs.
	BytesRead() int64

	// Close releases any open input.
	Close() error
}

// BOMSkippingReader wraps an io.Reader and skips the UTF-8 BOM if present.
// The UTF-8 BOM is 0xEF 0xBB 0xBF and is commonly added by Windows programs.
type BOMSkippingReader struct {
	reader     io.Reader
	bomChecked bool
	buf        [3]byte // Buffer for BOM detection
	bufData    []byte  // Remaining data after BOM check
	bufOffset  int     // Current read position in bufData
}

// NewBOMSkippingReader creates a new BOM-skipping reader.
func NewBOMSkippingReader(r io.Reader) *BOMSkippingReader {
	return &BOMSkippingReader{
		reader: r,
	}
}

// Read implements io.Reader. On the first read, it checks for and skips the BOM.
func (r *BOMSkippingReader) Read(p []byte) (int, error) {
	if !r.bomChecked {
		r.bomChecked = true

		n, err := io.ReadFull(r.reader, r.buf[:])
		if n == 0 {
			if err == io.ErrUnexpectedEOF {
				err = io.EOF
			}
			return 0, err
		}

		if n == 3 && bytes.Equal(r.buf[:], utf8BOM) {
			r.bufData = nil
		} else {
			r.bufData = r.buf[:n]
			r.bufOffset = 0
		}

		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		if err != nil && err != io.EOF {
			return 0, err
		}
		if err == io.EOF && len(r.bufData) == 0 {
			return 0, io.EOF
		}
	}

	// Return any remaining buffered data first
	if len(r.bufData) > r.bufOffset {
		copied := copy(p, r.bufData[r.bufOffset:])
		r.bufOffset += copied
		if r.bufOffset >= len(r.bufData) {
			r.bufData = nil
			r.bufOffset = 0
		}
		return copied, nil
	}

	return r.reader.Read(p)
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// StreamingCountingReader wraps an io.Reader to track bytes read.
type StreamingCountingReader struct {
	reader    io.Reader
	BytesRead int64
	Total     int64 // If known (0 if unknown)
}

// NewStreamingCountingReader creates a counting reader with optional total size.
func NewStreamingCountingReader(r io.Reader, total int64) *StreamingCountingReader {
	return &StreamingCountingReader{
		reader: r,
		Total:  total,
	}
}

// Read implements io.Reader.
func (r *StreamingCountingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.BytesRead += int64(n)
	return n, err
}

// Progress returns the read progress as a percentage (0-100).
// Returns 0 if total is unknown.
func (r *StreamingCountingReader) Progress() int {
	if r.Total <= 0 {
		return 0
	}
	return int(r.BytesRead * 100 / r.Total)
}

// WrapForStreaming wraps a reader with byte counting and BOM skipping.
//
// Counting sits beneath BOM skipping so byte totals match the raw input size.
// Bytes are otherwise passed through untouched: the default delimiter 0xFE is
// not valid UTF-8 and must survive.
func WrapForStreaming(r io.Reader, totalSize int64) (io.Reader, *StreamingCountingReader) {
	counter := NewStreamingCountingReader(r, totalSize)
	return NewBOMSkippingReader(counter), counter
}

// LineReader splits a stream into lines. The line buffer grows as needed up to
// maxBytes (0 means unlimited); a longer line fails with ErrLineTooLong.
type LineReader struct {
	r        *bufio.Reader
	maxBytes int
	line     []byte
}

// NewLineReader creates a LineReader over r.
func NewLineReader(r io.Reader, maxBytes int) *LineReader {
	return &LineReader{
		r:        bufio.NewReaderSize(r, 64*1024),
		maxBytes: maxBytes,
	}
}

// ReadLine returns the next line with its "\n" or "\r\n" terminator removed.
// A final line without a terminator is returned normally; io.EOF follows it.
func (l *LineReader) ReadLine() (string, error) {
	l.line = l.line[:0]
	for {
		chunk, err := l.r.ReadSlice('\n')
		l.line = append(l.line, chunk...)
		// Room for a "\r\n" terminator while the line is still incomplete.
		if l.maxBytes > 0 && len(l.line) > l.maxBytes+2 {
			return "", l.tooLong()
		}

		switch {
		case err == nil:
			return l.finish()
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case err == io.EOF:
			if len(l.line) == 0 {
				return "", io.EOF
			}
			return l.finish()
		default:
			return "", err
		}
	}
}

// finish strips the terminator and applies the limit to the line content.
func (l *LineReader) finish() (string, error) {
	line := chomp(l.line)
	if l.maxBytes > 0 && len(line) > l.maxBytes {
		return "", l.tooLong()
	}
	return string(line), nil
}

func (l *LineReader) tooLong() error {
	return fmt.Errorf("%w: more than %d bytes", ErrLineTooLong, l.maxBytes)
}

// chomp strips one trailing "\n" or "\r\n".
func chomp(b []byte) []byte {
	b = bytes.TrimSuffix(b, []byte{'\n'})
	return bytes.TrimSuffix(b, []byte{'\r'})
}

// ReaderSource is a Source over a single reader, such as standard input or an
// HTTP request body.
type ReaderSource struct {
	lines   *LineReader
	counter *StreamingCountingReader
}

// NewReaderSource wraps r with no line limit.
func NewReaderSource(r io.Reader) *ReaderSource {
	return NewReaderSourceLimit(r, 0)
}

// NewReaderSourceLimit wraps r, failing lines longer than maxLineBytes.
func NewReaderSourceLimit(r io.Reader, maxLineBytes int) *ReaderSource {
	wrapped, counter := WrapForStreaming(r, 0)
	return &ReaderSource{
		lines:   NewLineReader(wrapped, maxLineBytes),
		counter: counter,
	}
}

// ReadLine implements Source.
func (s *ReaderSource) ReadLine() (string, error) { return s.lines.ReadLine() }

// BytesRead implements Source.
func (s *ReaderSource) BytesRead() int64 { return s.counter.BytesRead }

// Close implements Source. The underlying reader is owned by the caller.
func (s *ReaderSource) Close() error { return nil }

// FileSource reads the named files in order as one stream of lines. The name
// "-" reads standard input; no names at all also reads standard input. Files
// are opened only when reached.
type FileSource struct {
	paths        []string
	stdin        io.Reader
	maxLineBytes int

	current *ReaderSource
	closer  io.Closer
	done    int64 // bytes read from inputs already closed
}

// NewFileSource creates a FileSource. stdin is used for "-" and when paths is
// empty.
func NewFileSource(paths []string, stdin io.Reader, maxLineBytes int) *FileSource {
	if len(paths) == 0 {
		paths = []string{"-"}
	}
	return &FileSource{
		paths:        paths,
		stdin:        stdin,
		maxLineBytes: maxLineBytes,
	}
}

// ReadLine implements Source. End of one file advances to the next.
func (s *FileSource) ReadLine() (string, error) {
	for {
		if s.current == nil {
			if len(s.paths) == 0 {
				return "", io.EOF
			}
			if err := s.open(s.paths[0]); err != nil {
				return "", err
			}
			s.paths = s.paths[1:]
		}

		line, err := s.current.ReadLine()
		if err == io.EOF {
			if cerr := s.closeCurrent(); cerr != nil {
				return "", cerr
			}
			continue
		}
		return line, err
	}
}

func (s *FileSource) open(path string) error {
	if path == "-" {
		s.current = NewReaderSourceLimit(s.stdin, s.maxLineBytes)
		s.closer = nil
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: open input: %w", ErrInput, err)
	}

	var size int64
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}

	wrapped, counter := WrapForStreaming(f, size)
	s.current = &ReaderSource{
		lines:   NewLineReader(wrapped, s.maxLineBytes),
		counter: counter,
	}
	s.closer = f
	return nil
}

func (s *FileSource) closeCurrent() error {
	s.done += s.current.BytesRead()
	s.current = nil
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.closer = nil
	return err
}

// BytesRead implements Source.
func (s *FileSource) BytesRead() int64 {
	if s.current == nil {
		return s.done
	}
	return s.done + s.current.BytesRead()
}

// Close implements Source.
func (s *FileSource) Close() error {
	if s.current == nil {
		return nil
	}
	return s.closeCurrent()
}
