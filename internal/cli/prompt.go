package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/exposerver/exposerver/internal/config"
	ehttp "github.com/exposerver/exposerver/internal/http"
)

// promptMissingPasswords asks for the basic auth and proxy passwords that
// are never stored in the config file. Nothing is asked without a terminal.
func promptMissingPasswords(cfg *config.Config) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil
	}
	if cfg.AuthUser != "" && cfg.AuthPassword == "" {
		pw, err := readPassword(fmt.Sprintf("Password for %s: ", cfg.AuthUser))
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		cfg.AuthPassword = pw
	}
	if ehttp.NeedsProxyPassword(cfg) {
		pw, err := readPassword(fmt.Sprintf("Proxy password for %s: ", cfg.ProxyUser))
		if err != nil {
			return fmt.Errorf("failed to read proxy password: %w", err)
		}
		cfg.ProxyPassword = pw
	}
	return nil
}

func readPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

// promptLine prints prompt and returns the trimmed answer, or def when empty.
func promptLine(r *bufio.Reader, w io.Writer, prompt, def string) string {
	if def != "" {
		fmt.Fprintf(w, "%s [%s]: ", prompt, def)
	} else {
		fmt.Fprintf(w, "%s: ", prompt)
	}
	input, _ := r.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return def
	}
	return input
}
