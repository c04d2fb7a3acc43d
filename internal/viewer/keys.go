package viewer

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/golang/glog"
	"github.com/pkg/term"
)

// Keyboard is a terminal in cbreak mode: keys arrive without Enter and
// Ctrl+C still raises SIGINT.
type Keyboard struct {
	t *term.Term
}

// OpenKeyboard switches the terminal at path, usually /dev/tty, to cbreak mode.
// It fails when path is not a terminal.
func OpenKeyboard(path string) (*Keyboard, error) {
	t, err := term.Open(path, term.CBreakMode)
	if err != nil {
		return nil, fmt.Errorf("open keyboard %s: %w", path, err)
	}
	return &Keyboard{t: t}, nil
}

func (k *Keyboard) Read(p []byte) (int, error) {
	return k.t.Read(p)
}

// Close restores the terminal mode and closes it.
func (k *Keyboard) Close() error {
	err := k.t.Restore()
	if cerr := k.t.Close(); err == nil {
		err = cerr
	}
	return err
}

// WatchKeys requests a save for every "s" or "S" read from r. Input may be
// single keys or whole lines. It returns when r is exhausted.
func WatchKeys(r io.Reader, s *Session) {
	br := bufio.NewReader(r)
	for {
		b, err := br.ReadByte()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				glog.Warningf("Stopped reading keys: %v", err)
			}
			return
		}
		switch b {
		case 's', 'S':
			s.RequestSave()
		}
	}
}
