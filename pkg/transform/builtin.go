// SPDX-FileCopyrightText: 2026 The agentbridge-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transform

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
)

// Echo returns the text unchanged.
func Echo() Func {
	return func(text string) (string, error) {
		return text, nil
	}
}

// Prefix prepends a fixed string to the text.
func Prefix(prefix string) Func {
	return func(text string) (string, error) {
		return prefix + text, nil
	}
}

// Upper folds the text to upper case.
func Upper() Func {
	return func(text string) (string, error) {
		return strings.ToUpper(text), nil
	}
}

// Command pipes the text through an external program's stdin and returns its
// stdout, e.g., an LLM wrapper script. The program's lifetime is bounded by
// the Pipeline's budget only indirectly; a program ignoring its closed stdin
// keeps running after the budget expired.
func Command(name string, args ...string) Func {
	return func(text string) (string, error) {
		cmd := exec.Command(name, args...)
		cmd.Stdin = strings.NewReader(text)

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			if stderr.Len() > 0 {
				return "", fmt.Errorf("%s: %v: %s", name, err, strings.TrimSpace(stderr.String()))
			}
			return "", fmt.Errorf("%s: %v", name, err)
		}

		return strings.TrimRight(stdout.String(), "\n"), nil
	}
}
