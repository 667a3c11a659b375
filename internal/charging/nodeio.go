package charging

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/afero"
)

// ErrNoToken is returned when a node holds nothing but whitespace.
var ErrNoToken = errors.New("no token")

// tokenSpace separates tokens in a node. Only ASCII whitespace counts, so a
// node holding "1\u00a0" reads as one unknown token rather than "1".
const tokenSpace = " \t\n\v\f\r"

func isTokenSpace(b byte) bool { return strings.IndexByte(tokenSpace, b) >= 0 }

// scanTokens is a bufio.SplitFunc like bufio.ScanWords that splits on
// tokenSpace only.
func scanTokens(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	for start < len(data) && isTokenSpace(data[start]) {
		start++
	}
	for i := start; i < len(data); i++ {
		if isTokenSpace(data[i]) {
			return i + 1, data[start:i], nil
		}
	}
	if atEOF && len(data) > start {
		return len(data), data[start:], nil
	}
	return start, nil, nil
}

// NodeIO performs the per-call node operations. File nodes acquire and release
// their own handle on every call; GPIO lines stay requested once written, and
// a NodeIO holding them also implements io.Closer.
type NodeIO interface {
	// Probe reports whether the node exists and opens for reading. It must not
	// modify the node.
	Probe(n ControlNode) error
	// ReadToken returns the first whitespace-delimited token held by the node.
	ReadToken(n ControlNode) (string, error)
	// WriteToken writes token to the node.
	WriteToken(n ControlNode, token string) error
}

// FileIO reads and writes text control nodes.
type FileIO struct {
	fs afero.Fs
}

// NewFileIO returns a FileIO over fs, or the OS filesystem when fs is nil.
func NewFileIO(fs afero.Fs) *FileIO {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &FileIO{fs: fs}
}

func (f *FileIO) Probe(n ControlNode) error {
	fh, err := f.fs.Open(n.Path)
	if err != nil {
		return err
	}
	defer fh.Close()
	st, err := fh.Stat()
	if err != nil {
		return err
	}
	if st.IsDir() {
		return fmt.Errorf("%s is a directory", n.Path)
	}
	return nil
}

func (f *FileIO) ReadToken(n ControlNode) (string, error) {
	fh, err := f.fs.Open(n.Path)
	if err != nil {
		return "", fmt.Errorf("open: %w", err)
	}
	defer fh.Close()

	sc := bufio.NewScanner(fh)
	sc.Split(scanTokens)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", fmt.Errorf("read: %w", err)
		}
		return "", fmt.Errorf("read: %w", ErrNoToken)
	}
	return sc.Text(), nil
}

func (f *FileIO) WriteToken(n ControlNode, token string) error {
	// Plain O_WRONLY: sysfs attributes reject O_TRUNC and O_CREATE.
	fh, err := f.fs.OpenFile(n.Path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	nw, werr := io.WriteString(fh, token)
	if werr == nil && nw < len(token) {
		werr = io.ErrShortWrite
	}
	cerr := fh.Close()
	if werr != nil && cerr != nil {
		return fmt.Errorf("write: %w", errors.Join(werr, cerr))
	}
	if werr != nil {
		return fmt.Errorf("write: %w", werr)
	}
	if cerr != nil {
		return fmt.Errorf("close: %w", cerr)
	}
	return nil
}

// MuxIO sends GPIO nodes (Line set) to GPIO and everything else to File.
type MuxIO struct {
	File NodeIO
	GPIO NodeIO
}

// DefaultIO serves text nodes from fs and GPIO nodes from the GPIO character
// device interface.
func DefaultIO(fs afero.Fs) MuxIO {
	return MuxIO{File: NewFileIO(fs), GPIO: NewGPIOIO()}
}

func (m MuxIO) pick(n ControlNode) NodeIO {
	if n.Line != "" {
		return m.GPIO
	}
	return m.File
}

func (m MuxIO) Probe(n ControlNode) error                    { return m.pick(n).Probe(n) }
func (m MuxIO) ReadToken(n ControlNode) (string, error)      { return m.pick(n).ReadToken(n) }
func (m MuxIO) WriteToken(n ControlNode, token string) error { return m.pick(n).WriteToken(n, token) }

// Close closes File and GPIO when they hold resources.
func (m MuxIO) Close() error {
	var errs []error
	for _, nio := range []NodeIO{m.File, m.GPIO} {
		if c, ok := nio.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
