package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/humane/internal/capture"
	"github.com/roach88/humane/internal/dom"
	"github.com/roach88/humane/internal/harness"
	"github.com/roach88/humane/internal/jsenv"
)

// EvalOptions holds flags for the eval command.
type EvalOptions struct {
	*RootOptions
	Page    string // HTML file the snippet runs against
	Script  string // file holding the snippet
	Expr    string // inline snippet
	Timeout int    // default polling budget in ms, 0 keeps the harness default
	Poll    int    // poll interval in ms, 0 keeps the harness default
}

// EvalOutput is the JSON payload of the eval command.
type EvalOutput struct {
	Result      *harness.Result               `json:"result"`
	Console     map[capture.Category][]string `json:"console"`
	Diagnostics []string                      `json:"diagnostics,omitempty"`
}

// NewEvalCommand creates the eval command.
func NewEvalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EvalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "eval --page <file.html> [--script <file> | -e <snippet>]",
		Short: "Run one snippet against a page",
		Long: `Run one snippet against a page and print its result.

The snippet is the body of an async function. Its return value is printed
as JSON on success. If the snippet records humane errors (failed
assertions, polling timeouts or script errors), each one is printed along
with the console output captured up to the failure.

Without --script or -e the snippet is read from stdin.

Exit codes:
  0 - Snippet ran without humane errors
  1 - Snippet recorded humane errors or produced no result
  2 - Command error (missing page, bad flags, etc.)

Examples:
  humane eval --page index.html -e 'return document.querySelector("h1").textContent'
  humane eval --page index.html --script check.js --timeout 2000
  echo 'humane.assert_eq(1, 1)' | humane eval --page index.html --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Page, "page", "", "HTML file to load (required)")
	cmd.Flags().StringVar(&opts.Script, "script", "", "file containing the snippet")
	cmd.Flags().StringVarP(&opts.Expr, "expr", "e", "", "inline snippet")
	cmd.Flags().IntVar(&opts.Timeout, "timeout", 0, "default polling timeout in milliseconds")
	cmd.Flags().IntVar(&opts.Poll, "poll", 0, "poll interval in milliseconds")
	_ = cmd.MarkFlagRequired("page")
	cmd.MarkFlagsMutuallyExclusive("script", "expr")

	return cmd
}

func runEval(opts *EvalOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	pageHTML, err := os.ReadFile(opts.Page)
	if err != nil {
		return inputError(f, "failed to read page", err)
	}
	snippet, err := readSnippet(opts, cmd.InOrStdin())
	if err != nil {
		return inputError(f, "failed to read snippet", err)
	}
	if opts.Timeout < 0 || opts.Poll < 0 {
		return inputError(f, "invalid timing", fmt.Errorf("--timeout and --poll must be non-negative"))
	}

	doc, err := dom.Parse(bytes.NewReader(pageHTML))
	if err != nil {
		return inputError(f, "failed to parse page", err)
	}

	// Harness and page diagnostics are captured for JSON output and still
	// reach stderr at the configured level.
	diagnostics := capture.NewBuffers()
	stderr := f.Logger()
	logger := slog.New(capture.NewHandler(diagnostics, stderr.Handler()))

	var harnessOpts []harness.Option
	if opts.Timeout > 0 {
		harnessOpts = append(harnessOpts, harness.WithDefaultTimeout(time.Duration(opts.Timeout)*time.Millisecond))
	}
	if opts.Poll > 0 {
		harnessOpts = append(harnessOpts, harness.WithPollInterval(time.Duration(opts.Poll)*time.Millisecond))
	}
	page := jsenv.New(doc,
		jsenv.WithLogger(logger),
		jsenv.WithNativeConsole(capture.NewSlogConsole(stderr)),
		jsenv.WithHarnessOptions(harnessOpts...),
	)

	ctx, stop := signalContext(cmd)
	defer stop()

	f.VerboseLog("evaluating snippet against %s", opts.Page)
	result, err := page.Evaluate(ctx, snippet)
	if err != nil {
		if f.Format == "json" {
			if encErr := f.Error(CodeEval, err.Error(), nil); encErr != nil {
				return encErr
			}
		}
		return WrapExitError(ExitFailure, "snippet produced no result", err)
	}

	out := EvalOutput{
		Result:      result,
		Console:     page.Buffers().Snapshot(),
		Diagnostics: diagnostics.Lines(capture.ALL),
	}

	if !result.Passed() {
		message := fmt.Sprintf("%d humane error(s)", len(result.HumaneErrs))
		if f.Format == "json" {
			if err := f.Failure(CodeHumane, message, out); err != nil {
				return err
			}
		} else {
			printFailure(f.Writer, result)
		}
		return NewExitError(ExitFailure, message)
	}

	if f.Format == "json" {
		return f.Success(out)
	}
	raw, err := result.Response()
	if err != nil {
		return err
	}
	fmt.Fprintln(f.Writer, string(raw))
	return nil
}

// readSnippet returns the snippet from --script, -e or stdin, in that order.
func readSnippet(opts *EvalOptions, stdin io.Reader) (string, error) {
	switch {
	case opts.Script != "":
		data, err := os.ReadFile(opts.Script)
		if err != nil {
			return "", err
		}
		return string(data), nil
	case opts.Expr != "":
		return opts.Expr, nil
	default:
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(string(data)) == "" {
			return "", fmt.Errorf("no snippet given: use --script, -e or stdin")
		}
		return string(data), nil
	}
}

// printFailure writes each humane error and the captured logs.
func printFailure(w io.Writer, result *harness.Result) {
	for _, msg := range result.HumaneErrs {
		fmt.Fprintf(w, "✗ %s\n", msg)
	}
	if logs := result.LogText(); logs != "" {
		fmt.Fprintln(w, "Logs:")
		for _, line := range strings.Split(logs, "\n") {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
}

// inputError reports unreadable input in the configured format.
func inputError(f *OutputFormatter, message string, err error) error {
	if f.Format == "json" {
		if encErr := f.Error(CodeInput, fmt.Sprintf("%s: %v", message, err), nil); encErr != nil {
			return encErr
		}
	}
	return WrapExitError(ExitCommandError, message, err)
}

// signalContext derives a context cancelled by SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	// Use command's context if available (for testing), otherwise create one
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
