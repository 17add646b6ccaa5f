package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pthomasgarcia/packwatch/internal/config"
)

// Prompter asks for interactive confirmation before an install proceeds
// (spec.md §4.8 step 5). Confirm's default answer on an empty line is
// "yes"; only an explicit "n"/"no" declines.
type Prompter interface {
	Confirm(ctx context.Context, cfg *config.AppConfig, fromVersion, toVersion string) (bool, error)
}

// ReaderPrompter asks a yes/no question over in, writing the prompt to
// out, defaulting to "yes" on an empty or unrecognized line.
type ReaderPrompter struct {
	in  io.Reader
	out io.Writer
}

// NewStdinPrompter returns a ReaderPrompter reading os.Stdin and
// writing to os.Stdout, the default used outside of tests.
func NewStdinPrompter() *ReaderPrompter {
	return &ReaderPrompter{in: os.Stdin, out: os.Stdout}
}

// NewReaderPrompter returns a ReaderPrompter over an arbitrary
// reader/writer pair, for tests driving the confirmation without a
// real terminal.
func NewReaderPrompter(in io.Reader, out io.Writer) *ReaderPrompter {
	return &ReaderPrompter{in: in, out: out}
}

// Confirm implements Prompter.
func (p *ReaderPrompter) Confirm(ctx context.Context, cfg *config.AppConfig, fromVersion, toVersion string) (bool, error) {
	from := fromVersion
	if from == "" {
		from = "none"
	}
	fmt.Fprintf(p.out, "%s: update %s -> %s? [Y/n]: ", cfg.AppKey, from, toVersion)

	line, err := bufio.NewReader(p.in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "n", "no":
		return false, nil
	default:
		return true, nil
	}
}
