package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/willemschots/accounts/internal/auth"
	"github.com/willemschots/accounts/internal/errorz"
)

// readPassword reads from a terminal without echo. Replaced in tests.
var readPassword = term.ReadPassword

// prompter asks the user for passwords. Input is read from a terminal
// without echo, or line by line if the input is not a terminal.
type prompter struct {
	in     io.Reader
	reader *bufio.Reader
	out    io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{
		in:     in,
		reader: bufio.NewReader(in),
		out:    out,
	}
}

// password prompts for a password. Invalid passwords are reported as
// errorz.InvalidInput keyed with key.
func (p *prompter) password(label, key string) (auth.Password, error) {
	_, err := fmt.Fprintf(p.out, "%s: ", label)
	if err != nil {
		return auth.Password{}, err
	}

	raw, err := p.readSecret()
	if err != nil {
		return auth.Password{}, fmt.Errorf("failed to read %s: %w", key, err)
	}

	pwd, err := auth.ParsePassword(string(raw))
	if err != nil {
		return auth.Password{}, errorz.InvalidInput{errorz.Keyed{Key: key, Err: err}}
	}

	return pwd, nil
}

func (p *prompter) readSecret() ([]byte, error) {
	if f, ok := p.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		raw, err := readPassword(int(f.Fd()))
		fmt.Fprintln(p.out)
		return raw, err
	}

	line, err := p.reader.ReadString('\n')
	fmt.Fprintln(p.out)
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		return nil, err
	}

	return []byte(strings.TrimRight(line, "\r\n")), nil
}
