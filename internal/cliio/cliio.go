// Package cliio holds the interactive console helpers used by commands
// that need an explicit go-ahead before touching anything.
package cliio

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// PromptYesNo writes prompt and reads a yes/no response from input.
// Anything other than "y" or "yes" counts as no.
func PromptYesNo(out io.Writer, in io.Reader, prompt string) (bool, error) {
	if _, err := fmt.Fprint(out, prompt); err != nil {
		return false, err
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
