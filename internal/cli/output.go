// Package cli provides the command-line interface for the trading
// orchestrator. Grounded on internal/cli/root.go's App dependency-struct
// pattern and internal/cli/output.go's Output helper, trimmed to the
// command surface this system needs (§6).
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

// Output handles formatted command output, text or JSON.
type Output struct {
	writer       io.Writer
	jsonMode     bool
	colorEnabled bool
}

// NewOutput builds an Output from the command's --json flag.
func NewOutput(cmd *cobra.Command) *Output {
	jsonMode, _ := cmd.Flags().GetBool("json")
	return &Output{
		writer:       cmd.OutOrStdout(),
		jsonMode:     jsonMode,
		colorEnabled: !jsonMode && isTerminal(),
	}
}

func isTerminal() bool {
	fi, err := os.Stdout.Stat()
	return err == nil && (fi.Mode()&os.ModeCharDevice) != 0
}

// IsJSON reports whether --json was requested.
func (o *Output) IsJSON() bool { return o.jsonMode }

// JSON encodes data as indented JSON.
func (o *Output) JSON(data interface{}) error {
	enc := json.NewEncoder(o.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// Println prints a plain line.
func (o *Output) Println(args ...interface{}) {
	fmt.Fprintln(o.writer, args...)
}

// Printf prints a formatted line.
func (o *Output) Printf(format string, args ...interface{}) {
	fmt.Fprintf(o.writer, format, args...)
}

func (o *Output) colored(color, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if o.colorEnabled {
		fmt.Fprintf(o.writer, "%s%s%s\n", color, msg, colorReset)
	} else {
		fmt.Fprintln(o.writer, msg)
	}
}

// Success prints a green confirmation line.
func (o *Output) Success(format string, args ...interface{}) { o.colored(colorGreen, format, args...) }

// Warn prints a yellow caution line.
func (o *Output) Warn(format string, args ...interface{}) { o.colored(colorYellow, format, args...) }

// Info prints a cyan informational line.
func (o *Output) Info(format string, args ...interface{}) { o.colored(colorCyan, format, args...) }

// Failure prints a red failure line.
func (o *Output) Failure(format string, args ...interface{}) { o.colored(colorRed, format, args...) }
