package capture

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// Prompter is the human-in-the-loop channel: it presents a clearly delimited
// message and blocks until the operator acknowledges. The block is unbounded;
// it is only reachable when a visible browser surface means an operator is
// present.
type Prompter interface {
	Ack(ctx context.Context, message string) error
}

// ConsolePrompter prompts on a console: delimited message to out, then waits
// for a newline on in.
type ConsolePrompter struct {
	In  io.Reader
	Out io.Writer
}

const promptSeparator = "================================================================================"

// Ack prints the message between separators and blocks for a newline or
// context cancellation.
func (p *ConsolePrompter) Ack(ctx context.Context, message string) error {
	fmt.Fprintln(p.Out)
	fmt.Fprintln(p.Out, promptSeparator)
	for _, line := range strings.Split(message, "\n") {
		fmt.Fprintln(p.Out, line)
	}
	fmt.Fprintln(p.Out, "Press Enter to continue...")
	fmt.Fprintln(p.Out, promptSeparator)

	lineCh := make(chan error, 1)
	go func() {
		_, err := bufio.NewReader(p.In).ReadString('\n')
		lineCh <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-lineCh:
		if err != nil && err != io.EOF {
			return fmt.Errorf("read acknowledgment: %w", err)
		}
		return nil
	}
}
