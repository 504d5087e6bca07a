package capability

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"manualqa/internal"
)

type presetPathKey struct{}

// WithPath attaches a path the user already supplied (e.g. a CLI argument) so
// that a terminal selector returns it instead of prompting. Picker-based
// selectors ignore it.
func WithPath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, presetPathKey{}, path)
}

// PathSelector is the terminal file selector: it takes a path from the
// context or prompts for one on in/out. An empty answer cancels.
type PathSelector struct {
	fileAccess
	in  *bufio.Reader
	out io.Writer
}

// NewPathSelector creates a selector prompting on the given streams
func NewPathSelector(in io.Reader, out io.Writer) *PathSelector {
	return &PathSelector{in: bufio.NewReader(in), out: out}
}

func (s *PathSelector) SelectFile(ctx context.Context, constraints internal.FileConstraints) (*internal.FileSelection, error) {
	path, _ := ctx.Value(presetPathKey{}).(string)
	if path == "" {
		var err error
		path, err = s.prompt(ctx)
		if err != nil {
			return nil, err
		}
	}
	if path == "" {
		return nil, nil
	}
	return describeFile(path, constraints)
}

func (s *PathSelector) prompt(ctx context.Context) (string, error) {
	fmt.Fprint(s.out, "Path to file (empty to cancel): ")

	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := s.in.ReadString('\n')
		ch <- result{line, err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if r.err != nil && r.err != io.EOF {
			return "", fmt.Errorf("read path: %w", r.err)
		}
		return strings.Trim(strings.TrimSpace(r.line), `"'`), nil
	}
}
