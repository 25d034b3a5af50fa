package execshell

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

const (
	lineFeedDelimiterConstant          = '\n'
	carriageReturnSuffixConstant       = "\r"
	defaultOutputEncodingConstant      = "utf-8"
	encodingResolutionTemplateConstant = "%w: %q"
)

// DefaultMaximumLineLength bounds the decoded bytes returned by one LineReader.Next call.
const DefaultMaximumLineLength = 64 * 1024

// ResolveEncoding looks up an output encoding by its WHATWG label.
// An empty name selects UTF-8.
func ResolveEncoding(name string) (encoding.Encoding, error) {
	trimmedName := strings.TrimSpace(name)
	if len(trimmedName) == 0 || strings.EqualFold(trimmedName, defaultOutputEncodingConstant) {
		return unicode.UTF8, nil
	}
	resolvedEncoding, lookupError := htmlindex.Get(trimmedName)
	if lookupError != nil || resolvedEncoding == nil {
		return nil, fmt.Errorf(encodingResolutionTemplateConstant, ErrUnsupportedEncoding, trimmedName)
	}
	return resolvedEncoding, nil
}

// LineReader yields decoded, delimiter-stripped lines from a byte stream. A line
// longer than the maximum length is returned as consecutive segments, each split on
// a rune boundary.
type LineReader struct {
	reader        *bufio.Reader
	carriedBytes  []byte
	terminalError error
}

// NewLineReader wraps source with DefaultMaximumLineLength. A nil decoder reads the stream as UTF-8.
func NewLineReader(source io.Reader, decoder *encoding.Decoder) *LineReader {
	return NewLineReaderSize(source, decoder, DefaultMaximumLineLength)
}

// NewLineReaderSize wraps source, splitting lines longer than maximumLineLength bytes.
// Lengths below bufio's minimum buffer size are raised to it.
func NewLineReaderSize(source io.Reader, decoder *encoding.Decoder, maximumLineLength int) *LineReader {
	if decoder == nil {
		decoder = unicode.UTF8.NewDecoder()
	}
	return &LineReader{reader: bufio.NewReaderSize(decoder.Reader(source), maximumLineLength)}
}

// Next returns the next line. It returns io.EOF once the stream is exhausted and
// the underlying read error for any other terminal condition. A final line without
// a trailing delimiter is returned before the terminal error.
func (lineReader *LineReader) Next() (string, error) {
	if lineReader.terminalError != nil {
		return emptyStringConstant, lineReader.terminalError
	}

	rawSlice, readError := lineReader.reader.ReadSlice(lineFeedDelimiterConstant)
	lineBytes := make([]byte, 0, len(lineReader.carriedBytes)+len(rawSlice))
	lineBytes = append(lineBytes, lineReader.carriedBytes...)
	lineBytes = append(lineBytes, rawSlice...)
	lineReader.carriedBytes = nil

	switch {
	case readError == nil:
		lineBytes = bytes.TrimSuffix(lineBytes, []byte{lineFeedDelimiterConstant})
		return strings.TrimSuffix(string(lineBytes), carriageReturnSuffixConstant), nil
	case errors.Is(readError, bufio.ErrBufferFull):
		segment, carried := splitIncompleteRune(lineBytes)
		lineReader.carriedBytes = carried
		return string(segment), nil
	default:
		lineReader.terminalError = readError
		if len(lineBytes) == 0 {
			return emptyStringConstant, readError
		}
		return strings.TrimSuffix(string(lineBytes), carriageReturnSuffixConstant), nil
	}
}

// splitIncompleteRune separates a trailing partial UTF-8 sequence from lineBytes.
func splitIncompleteRune(lineBytes []byte) ([]byte, []byte) {
	for offset := 1; offset < utf8.UTFMax && offset <= len(lineBytes); offset++ {
		runeStart := len(lineBytes) - offset
		if !utf8.RuneStart(lineBytes[runeStart]) {
			continue
		}
		if utf8.FullRune(lineBytes[runeStart:]) {
			return lineBytes, nil
		}
		return lineBytes[:runeStart], append([]byte(nil), lineBytes[runeStart:]...)
	}
	return lineBytes, nil
}

// Err returns the terminal error, nil while the stream is open and also nil after
// a clean end of stream.
func (lineReader *LineReader) Err() error {
	if errors.Is(lineReader.terminalError, io.EOF) {
		return nil
	}
	return lineReader.terminalError
}
