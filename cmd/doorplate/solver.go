package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

var errNoAnswer = errors.New("no captcha answer entered")

// terminalSolver shows the captcha as an image file and reads the answer
// typed on the terminal.
type terminalSolver struct {
	dir string
	in  *bufio.Reader
	out io.Writer
}

func newTerminalSolver(dir string, in io.Reader, out io.Writer) *terminalSolver {
	return &terminalSolver{dir: dir, in: bufio.NewReader(in), out: out}
}

func (s *terminalSolver) Solve(ctx context.Context, image []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f, err := os.CreateTemp(s.dir, "captcha-*.png")
	if err != nil {
		return "", fmt.Errorf("failed to save captcha image: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(image); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to save captcha image: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to save captcha image: %w", err)
	}

	fmt.Fprintf(s.out, "Automatic recognition failed. Captcha image: %s\nEnter the captcha: ", f.Name())
	line, err := s.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read captcha answer: %w", err)
	}

	answer := strings.TrimSpace(line)
	if answer == "" {
		return "", errNoAnswer
	}
	return answer, nil
}
