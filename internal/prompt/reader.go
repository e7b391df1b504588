// Package prompt asks a human operator for review decisions on a terminal.
package prompt

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"github.com/rotisserie/eris"
)

// ErrInterrupted is returned by a LineReader on Ctrl-C.
var ErrInterrupted = eris.New("interrupted")

// LineReader reads one line of operator input. It returns io.EOF when
// input ends and ctx.Err() when ctx is cancelled while waiting.
type LineReader interface {
	ReadLine(ctx context.Context, prompt string) (string, error)
	Close() error
}

// NewLineReader uses readline when in is a terminal and plain buffered
// reads otherwise.
func NewLineReader(in *os.File, out io.Writer) (LineReader, error) {
	if readline.IsTerminal(int(in.Fd())) {
		rl, err := readline.NewEx(&readline.Config{
			Stdin:           in,
			Stdout:          out,
			InterruptPrompt: "^C",
			EOFPrompt:       "quit",
		})
		if err != nil {
			return nil, eris.Wrap(err, "starting readline")
		}
		return &readlineReader{rl: rl}, nil
	}
	return NewScanner(in, out), nil
}

type readlineReader struct {
	rl *readline.Instance
}

// ReadLine closes the readline instance when ctx ends, which unblocks the
// pending read. The reader is unusable afterwards.
func (r *readlineReader) ReadLine(ctx context.Context, prompt string) (string, error) {
	r.rl.SetPrompt(prompt)
	done := make(chan lineResult, 1)
	go func() {
		line, err := r.rl.Readline()
		done <- lineResult{line, err}
	}()
	select {
	case <-ctx.Done():
		_ = r.rl.Close()
		return "", ctx.Err()
	case res := <-done:
		if res.err == readline.ErrInterrupt {
			return "", ErrInterrupted
		}
		return strings.TrimSpace(res.line), res.err
	}
}

func (r *readlineReader) Close() error { return r.rl.Close() }

type lineResult struct {
	line string
	err  error
}

// Scanner reads lines from any reader, echoing prompts to out. A single
// goroutine owns the underlying reader and hands lines over one at a time,
// so a cancelled ReadLine leaves the next line for the following call.
type Scanner struct {
	in    *bufio.Reader
	out   io.Writer
	want  chan struct{}
	lines chan lineResult
	start sync.Once
}

// NewScanner wraps r.
func NewScanner(r io.Reader, out io.Writer) *Scanner {
	return &Scanner{
		in:    bufio.NewReader(r),
		out:   out,
		want:  make(chan struct{}, 1),
		lines: make(chan lineResult, 1),
	}
}

func (s *Scanner) read() {
	defer close(s.lines)
	for range s.want {
		line, err := s.in.ReadString('\n')
		if err == io.EOF && line != "" {
			err = nil
		}
		s.lines <- lineResult{strings.TrimSpace(line), err}
		if err != nil {
			return
		}
	}
}

func (s *Scanner) ReadLine(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.start.Do(func() { go s.read() })
	fmt.Fprint(s.out, prompt)
	select {
	case s.want <- struct{}{}:
	default:
		// a read requested by a cancelled call is still outstanding
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res, ok := <-s.lines:
		if !ok {
			return "", io.EOF
		}
		return res.line, res.err
	}
}

func (s *Scanner) Close() error { return nil }
