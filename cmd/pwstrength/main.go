// Command pwstrength scores a password with the same rules the sign-up form
// uses. The password is read without echo from a terminal, or as one line
// from standard input.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/propertyhub/authgateway/internal/validation"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, readPassword))
}

// readPassword prompts without echo when stdin is a terminal.
func readPassword(in io.Reader, out io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(out, "Password: ")
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(raw), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

type secretReader func(in io.Reader, out io.Writer) (string, error)

// run returns 0 when the password satisfies the policy and is strong, 1 when
// it does not, and 2 on usage errors.
func run(args []string, in io.Reader, out io.Writer, read secretReader) int {
	fs := flag.NewFlagSet("pwstrength", flag.ContinueOnError)
	fs.SetOutput(out)
	quiet := fs.Bool("q", false, "print only the score")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	password, err := read(in, out)
	if err != nil {
		fmt.Fprintln(out, err)
		return 2
	}

	s := validation.CheckPasswordStrength(password)
	policy := validation.ValidatePassword(password)

	if *quiet {
		fmt.Fprintln(out, s.Score)
	} else {
		fmt.Fprintf(out, "Strength: %s (%d/4)\n", s.Label(), s.Score)
		for _, r := range validation.Requirements(password) {
			mark := " "
			if r.Met {
				mark = "x"
			}
			fmt.Fprintf(out, "  [%s] %s\n", mark, r.Text)
		}
		for _, hint := range s.Feedback {
			fmt.Fprintf(out, "  - %s\n", hint)
		}
		if !policy.Valid {
			fmt.Fprintln(out, policy.First())
		}
	}

	if policy.Valid && s.IsStrong {
		return 0
	}
	return 1
}
