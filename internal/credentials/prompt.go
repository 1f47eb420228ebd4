package credentials

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"git.home.luguber.info/inful/tabbackup/internal/foundation/errors"
)

// TerminalPrompter reads secrets from a terminal with echo disabled.
type TerminalPrompter struct {
	in  *os.File
	out io.Writer
}

// NewTerminalPrompter prompts on stderr and reads from stdin.
func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{in: os.Stdin, out: os.Stderr}
}

func (p *TerminalPrompter) PromptSecret(prompt string) (string, error) {
	fd := int(p.in.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.AuthError("secret missing and stdin is not a terminal").
			WithContext("hint", "run once interactively to store the password").
			Build()
	}
	_, _ = fmt.Fprint(p.out, prompt)
	raw, err := term.ReadPassword(fd)
	_, _ = fmt.Fprintln(p.out)
	if err != nil {
		return "", errors.NewError(errors.CategoryRuntime, "failed to read password").
			WithCause(err).
			Build()
	}
	return strings.TrimRight(string(raw), "\r\n"), nil
}
