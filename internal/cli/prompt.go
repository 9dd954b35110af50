package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/rescale/credvend/internal/config"
	inthttp "github.com/rescale/credvend/internal/http"
)

var errNoTerminal = errors.New("proxy password is required but stdin is not a terminal")

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// promptProxyPassword fills in cfg.Password when the proxy has a user but no
// password. Interactive sessions get a hidden prompt; otherwise a single line
// is read from in (for piping a secret in from a file or vault agent).
func promptProxyPassword(cfg *config.ProxyConfig, in io.Reader, out io.Writer) error {
	if !inthttp.NeedsProxyPassword(*cfg) {
		return nil
	}

	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintf(out, "Password for proxy user %s@%s: ", cfg.User, cfg.Host)
		pw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return fmt.Errorf("failed to read proxy password: %w", err)
		}
		cfg.Password = string(pw)
		return nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read proxy password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return errNoTerminal
	}
	cfg.Password = line
	return nil
}
