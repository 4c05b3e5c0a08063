package main

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	service "github.com/okian/scoutcalc/internal/app"
	"golang.org/x/term"
)

// maxBatchLine bounds one scanner line; a full alliance of QRs fits easily.
const maxBatchLine = 4 << 20

// promptConfirm and promptBatch are test hooks for the interactive prompts.
var (
	promptConfirm = defaultPromptConfirm
	promptBatch   = defaultPromptBatch
)

func isTTY(in io.Reader) bool {
	f, ok := in.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// defaultPromptConfirm asks a yes/no question. Non-interactive input
// answers yes so scripted runs keep their configured behaviour.
func defaultPromptConfirm(in io.Reader, out io.Writer, question string) bool {
	if !isTTY(in) {
		return true
	}
	var confirmed bool
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(question).
				Affirmative("Yes").
				Negative("No").
				Value(&confirmed),
		),
	).WithInput(in).WithOutput(out).Run()
	if err != nil {
		return false
	}
	return confirmed
}

// batchSource feeds the run loop: a prompt before every cycle on a terminal,
// one tab-separated line per cycle otherwise.
func batchSource(ctx context.Context, in io.Reader, out io.Writer) service.BatchSource {
	if isTTY(in) {
		return func(ctx context.Context) (string, error) {
			return promptBatchContext(ctx, in, out)
		}
	}
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 0, 64*1024), maxBatchLine)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil {
			errc <- err
		}
	}()
	return func(ctx context.Context) (string, error) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case line, ok := <-lines:
			if ok {
				return line, nil
			}
			select {
			case err := <-errc:
				return "", err
			default:
				return "", io.EOF
			}
		}
	}
}

// promptBatchContext asks for one batch on a terminal. An empty answer is
// an empty batch; ctx cancels the prompt.
func promptBatchContext(ctx context.Context, in io.Reader, out io.Writer) (string, error) {
	var batch string
	err := batchForm(&batch).WithInput(in).WithOutput(out).RunWithContext(ctx)
	return strings.TrimSpace(batch), err
}

func batchForm(batch *string) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewText().
				Title("QR batch").
				Description("Paste scanned QR codes, tab or line separated").
				Value(batch),
		),
	)
}

// defaultPromptBatch collects pasted scanner output on a terminal, or
// reads all of in otherwise.
func defaultPromptBatch(in io.Reader, out io.Writer) (string, error) {
	if !isTTY(in) {
		b, err := io.ReadAll(in)
		return string(b), err
	}
	var batch string
	err := batchForm(&batch).WithInput(in).WithOutput(out).Run()
	return strings.TrimSpace(batch), err
}
