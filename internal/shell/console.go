package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"m365prov/pkg/artifact"
)

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
	ansiGray   = "\033[90m"
)

// Console is the operator's terminal: line input plus optionally colored
// output. Secret prompts are read without echo when input is a terminal.
type Console struct {
	in    *bufio.Reader
	out   io.Writer
	color bool
	fd    int // terminal input descriptor, -1 when input is not a terminal
}

func NewConsole(in io.Reader, out io.Writer) *Console {
	c := &Console{in: bufio.NewReader(in), out: out, fd: -1}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		c.fd = int(f.Fd())
	}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) && os.Getenv("NO_COLOR") == "" {
		c.color = true
	}
	return c
}

// ReadLine returns the next trimmed line; io.EOF once input is exhausted.
func (c *Console) ReadLine() (string, error) {
	line, err := c.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (c *Console) Printf(format string, args ...any) { fmt.Fprintf(c.out, format, args...) }

func (c *Console) Println(args ...any) { fmt.Fprintln(c.out, args...) }

func (c *Console) paint(code, s string) string {
	if !c.color {
		return s
	}
	return code + s + ansiReset
}

func (c *Console) Title(format string, args ...any) {
	c.Println(c.paint(ansiCyan, fmt.Sprintf(format, args...)))
}

func (c *Console) Success(format string, args ...any) {
	c.Println(c.paint(ansiGreen, fmt.Sprintf(format, args...)))
}

func (c *Console) Warn(format string, args ...any) {
	c.Println(c.paint(ansiYellow, fmt.Sprintf(format, args...)))
}

func (c *Console) Error(format string, args ...any) {
	c.Println(c.paint(ansiRed, fmt.Sprintf(format, args...)))
}

func (c *Console) Muted(s string) string { return c.paint(ansiGray, s) }

// Ask reads one artifact input.
func (c *Console) Ask(_ context.Context, p artifact.Prompt, prev error) (string, error) {
	if prev != nil {
		c.Warn("  %v", prev)
	}
	label := p.Label
	if label == "" {
		label = p.Key
	}
	if p.Default != "" {
		label += " " + c.Muted("["+p.Default+"]")
	}
	c.Printf("  %s: ", label)
	if p.Secret && c.fd >= 0 {
		b, err := term.ReadPassword(c.fd)
		c.Println()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	return c.ReadLine()
}
