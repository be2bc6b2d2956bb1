// Package protocol implements the newline-delimited text framing used between
// the hall server and its terminal clients.
package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// MaxLineLength is the default upper bound for one inbound command line.
	MaxLineLength = 2048

	// CommandPrefix marks the first token of every command.
	CommandPrefix = "$"
)

var ErrLineTooLong = errors.New("protocol: line too long")

// LineReader reads newline-terminated lines from a stream. A line may span
// many reads; bytes are buffered until the terminator arrives.
type LineReader struct {
	br         *bufio.Reader
	discarding bool
}

// NewLineReader wraps r. Lines longer than maxLen are discarded up to their
// terminator and reported once as ErrLineTooLong.
func NewLineReader(r io.Reader, maxLen int) *LineReader {
	if maxLen <= 0 {
		maxLen = MaxLineLength
	}
	return &LineReader{br: bufio.NewReaderSize(r, maxLen)}
}

// ReadLine returns the next line without its "\n" or "\r\n" terminator.
// A trailing partial line at EOF is dropped and io.EOF returned.
func (lr *LineReader) ReadLine() (string, error) {
	for {
		line, err := lr.br.ReadSlice('\n')
		switch {
		case err == nil:
			if lr.discarding {
				lr.discarding = false
				return "", ErrLineTooLong
			}
			return strings.TrimRight(string(line), "\r\n"), nil
		case errors.Is(err, bufio.ErrBufferFull):
			lr.discarding = true
		default:
			return "", err
		}
	}
}

// Normalize trims any trailing line terminators and appends exactly one "\n".
func Normalize(text string) string {
	return strings.TrimRight(text, "\r\n") + "\n"
}

// WriteLine writes text as one normalized line.
func WriteLine(w io.Writer, text string) error {
	if _, err := io.WriteString(w, Normalize(text)); err != nil {
		return fmt.Errorf("protocol: write line: %w", err)
	}
	return nil
}
