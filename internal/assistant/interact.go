package assistant

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// Prompt is printed before every console read.
const Prompt = "=> "

// Interact reads prompts line by line from in and writes replies to out until
// the user types exit (any case, surrounding space ignored) or in reaches
// EOF. Both end the session cleanly with a nil error. Blank lines are
// ignored.
func (a *Assistant) Interact(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := io.WriteString(out, Prompt); err != nil {
			return fmt.Errorf("write prompt: %w", err)
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read prompt: %w", err)
			}
			_, _ = io.WriteString(out, "\n")
			return nil
		}

		line := scanner.Text()
		if IsExit(line) {
			return nil
		}
		prompt := strings.TrimSpace(line)
		if prompt == "" {
			continue
		}

		reply := a.Respond(ctx, SourceInteract, prompt)
		if _, err := fmt.Fprintln(out, reply.Envelope.Response); err != nil {
			return fmt.Errorf("write reply: %w", err)
		}
	}
}
