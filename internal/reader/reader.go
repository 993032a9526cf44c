// Package reader decodes a single log file into a stream of text lines,
// handling gzip transparently and auto-detecting UTF-8/UTF-16 encodings.
package reader

import (
	"bufio"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/encoding/unicode"

	"github.com/standardbeagle/logsearch-mcp/internal/debug"
	logerrors "github.com/standardbeagle/logsearch-mcp/internal/errors"
	"github.com/standardbeagle/logsearch-mcp/internal/model"
)

const sniffLen = 8 * 1024

// Reader decodes a single file at a time into a line stream. It carries no
// mutable state beyond its configured buffer size, so it is shared freely
// across concurrent per-file tasks.
type Reader struct {
	BufferSize int
}

// New returns a Reader configured with the given read-buffer size.
func New(bufferSize int) *Reader {
	if bufferSize <= 0 {
		bufferSize = 64 * 1024
	}
	return &Reader{BufferSize: bufferSize}
}

// Line is one decoded line, still carrying its trailing newline (except
// possibly the final line of the file).
type Line struct {
	Text string
	Err  error
}

// ReadLines opens path and streams its decoded lines on the returned
// channel. The channel is closed once the file is exhausted or an error
// terminates the stream; at most one Line carries a non-nil Err, and it is
// always the last value sent. Cancelling ctx stops the producer goroutine
// promptly but does not itself send an error value.
func (r *Reader) ReadLines(ctx context.Context, path string) (<-chan Line, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, logerrors.NewFileAccessError(path, "open failed", err)
	}

	out := make(chan Line, 16)

	if isGzipPath(path) {
		go r.streamGzip(ctx, path, f, out)
		return out, nil
	}

	enc, skip, err := detectEncoding(f)
	if err != nil {
		f.Close()
		return nil, logerrors.NewEncodingError(path, "prefix sniff failed", err)
	}
	if _, err := f.Seek(int64(skip), io.SeekStart); err != nil {
		f.Close()
		return nil, logerrors.NewFileAccessError(path, "seek past BOM failed", err)
	}

	switch enc {
	case encodingUTF16LE, encodingUTF16BE:
		go r.streamUTF16(ctx, path, f, enc, out)
	default:
		go r.streamUTF8(ctx, path, f, out)
	}
	return out, nil
}

func (r *Reader) streamGzip(ctx context.Context, path string, f *os.File, out chan<- Line) {
	defer close(out)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		out <- Line{Err: logerrors.NewEncodingError(path, "gzip header invalid", err)}
		return
	}
	defer gz.Close()

	br := bufio.NewReaderSize(gz, r.BufferSize)
	r.drainReader(ctx, path, br, out)
}

func (r *Reader) streamUTF8(ctx context.Context, path string, f *os.File, out chan<- Line) {
	defer close(out)
	defer f.Close()

	br := bufio.NewReaderSize(f, r.BufferSize)
	r.drainReader(ctx, path, br, out)
}

func (r *Reader) drainReader(ctx context.Context, path string, br *bufio.Reader, out chan<- Line) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := br.ReadString('\n')
		if len(line) > 0 {
			out <- Line{Text: line}
		}
		if err != nil {
			if err != io.EOF {
				out <- Line{Err: logerrors.NewFileAccessError(path, "read failed", err)}
			}
			return
		}
	}
}

// streamUTF16 reads the whole remaining file, decodes it, and splits on
// "\n" keeping the delimiter, per the fragility note about streaming UTF-16
// line-by-line: the contract here reads whole and splits in memory.
func (r *Reader) streamUTF16(ctx context.Context, path string, f *os.File, enc encodingKind, out chan<- Line) {
	defer close(out)
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		out <- Line{Err: logerrors.NewFileAccessError(path, "read failed", err)}
		return
	}

	var dec *unicode.Decoder
	if enc == encodingUTF16LE {
		dec = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	} else {
		dec = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder()
	}
	decoded, err := dec.Bytes(raw)
	if err != nil {
		out <- Line{Err: logerrors.NewEncodingError(path, "utf-16 decode failed", err)}
		return
	}

	text := string(decoded)
	if text == "" {
		return
	}
	for _, line := range splitInclusive(text, '\n') {
		select {
		case <-ctx.Done():
			return
		default:
		}
		out <- Line{Text: line}
	}
}

// splitInclusive splits s on sep, keeping the separator attached to each
// piece except a possible trailing partial piece.
func splitInclusive(s string, sep byte) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			out = append(out, s[start:i+1])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

func isGzipPath(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".gz")
}

type encodingKind int

const (
	encodingUTF8 encodingKind = iota
	encodingUTF16LE
	encodingUTF16BE
)

func (k encodingKind) String() string {
	switch k {
	case encodingUTF16LE:
		return "UTF-16LE"
	case encodingUTF16BE:
		return "UTF-16BE"
	default:
		return "UTF-8"
	}
}

// detectEncoding sniffs up to sniffLen bytes from f (which must support
// Seek) and returns the detected encoding plus the byte offset to resume
// reading from (past any BOM). The file's read position is left at the end
// of the sniffed prefix; callers must Seek back to skip before streaming.
func detectEncoding(f *os.File) (encodingKind, int, error) {
	buf := make([]byte, sniffLen)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return encodingUTF8, 0, err
	}
	buf = buf[:n]

	switch {
	case len(buf) >= 3 && buf[0] == 0xEF && buf[1] == 0xBB && buf[2] == 0xBF:
		return encodingUTF8, 3, nil
	case len(buf) >= 2 && buf[0] == 0xFF && buf[1] == 0xFE:
		return encodingUTF16LE, 2, nil
	case len(buf) >= 2 && buf[0] == 0xFE && buf[1] == 0xFF:
		return encodingUTF16BE, 2, nil
	}

	// No BOM: fall back to a simple statistical heuristic over NUL byte
	// parity, in place of a full charset-detection library. A consistent
	// run of NULs at odd/even offsets is a strong UTF-16 signal; anything
	// else is treated as UTF-8 (which also covers plain ASCII and the
	// overwhelming majority of real log files).
	if kind, ok := detectUTF16ByNulParity(buf); ok {
		return kind, 0, nil
	}
	return encodingUTF8, 0, nil
}

func detectUTF16ByNulParity(buf []byte) (encodingKind, bool) {
	if len(buf) < 4 {
		return encodingUTF8, false
	}
	var evenNul, oddNul, total int
	limit := len(buf)
	if limit > 512 {
		limit = 512
	}
	for i := 0; i < limit; i++ {
		if buf[i] == 0 {
			total++
			if i%2 == 0 {
				evenNul++
			} else {
				oddNul++
			}
		}
	}
	if total < limit/6 {
		return encodingUTF8, false
	}
	if oddNul > evenNul*3 {
		return encodingUTF16LE, true
	}
	if evenNul > oddNul*3 {
		return encodingUTF16BE, true
	}
	return encodingUTF8, false
}

var timestampSampleRe = regexp.MustCompile(`\d{4}[-/]\d{2}[-/]\d{2}[ T]\d{2}:\d{2}:\d{2}`)

// Inspect supplements the core read path with file-level metadata: detected
// encoding, compression, and up to three sample timestamps. It is exposed
// through the separate inspect_file tool and GET /files/inspect endpoint;
// the list_log_files result does not include it.
func (r *Reader) Inspect(ctx context.Context, path string) (model.FileInfo, error) {
	st, err := os.Stat(path)
	if err != nil {
		return model.FileInfo{}, logerrors.NewFileAccessError(path, "stat failed", err)
	}

	info := model.FileInfo{
		Path:        path,
		SizeBytes:   st.Size(),
		Compression: "none",
		Encoding:    encodingUTF8.String(),
	}
	if isGzipPath(path) {
		info.Compression = "gzip"
	} else {
		f, err := os.Open(path)
		if err != nil {
			return model.FileInfo{}, logerrors.NewFileAccessError(path, "open failed", err)
		}
		enc, _, err := detectEncoding(f)
		f.Close()
		if err != nil {
			debug.LogReader("inspect: encoding sniff failed for %s: %v", path, err)
		} else {
			info.Encoding = enc.String()
		}
	}

	childCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines, err := r.ReadLines(childCtx, path)
	if err != nil {
		return info, nil
	}
	var examples []string
	for l := range lines {
		if l.Err != nil {
			break
		}
		if m := timestampSampleRe.FindString(l.Text); m != "" {
			examples = append(examples, m)
			if len(examples) >= 3 {
				break
			}
		}
	}
	cancel()
	for range lines {
		// drain remaining buffered lines so the producer goroutine can exit
		// after observing ctx.Done(), regardless of how early we stopped.
	}
	info.TimestampExamples = examples
	if info.TimestampExamples == nil {
		info.TimestampExamples = []string{}
	}
	return info, nil
}
