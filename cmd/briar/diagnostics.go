// Diagnostic rendering shared by run/build/repl: a red message line
// followed by the offending source line and a caret underline, its
// column measured with go-runewidth.
package main

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"github.com/briarlang/briar/internal/compiler"
	"github.com/briarlang/briar/internal/vm"
)

var (
	errorColor = color.New(color.FgRed, color.Bold)
	traceColor = color.New(color.FgRed)
)

// sourceLine returns the 1-indexed line of src, or "" if out of range.
func sourceLine(src []byte, line int) string {
	if line < 1 {
		return ""
	}
	scanner := bufio.NewScanner(strings.NewReader(string(src)))
	n := 0
	for scanner.Scan() {
		n++
		if n == line {
			return scanner.Text()
		}
	}
	return ""
}

// printCaret writes the source line for n and a caret after its leading
// spaces and tabs, each counted at its runewidth.RuneWidth. A tab counts
// as zero columns, so on a tab-indented line the caret does not sit under
// the first non-blank glyph.
func printCaret(w io.Writer, src []byte, line int) {
	text := sourceLine(src, line)
	if text == "" {
		return
	}
	indent := 0
	for _, r := range text {
		if r != ' ' && r != '\t' {
			break
		}
		indent += runewidth.RuneWidth(r)
	}
	fmt.Fprintln(w, "    "+text)
	fmt.Fprintln(w, "    "+strings.Repeat(" ", indent)+"^")
}

// printCompileErrors renders each compiler.CompileError as
// "[line N] Error: message", followed by source context and a caret.
func printCompileErrors(w io.Writer, src []byte, errs []compiler.CompileError) {
	for _, e := range errs {
		errorColor.Fprintln(w, e.Error())
		printCaret(w, src, e.Line)
	}
}

var traceLineRe = regexp.MustCompile(`^\[line (\d+)\] in `)

// printRuntimeError renders a *vm.RuntimeError: the message, the frame
// trace (innermost first, matching spec.md §4.7), and a caret under the
// line the innermost frame faulted on.
func printRuntimeError(w io.Writer, src []byte, rerr *vm.RuntimeError) {
	errorColor.Fprintln(w, rerr.Message)
	for _, line := range rerr.Trace {
		traceColor.Fprintln(w, line)
	}
	if len(rerr.Trace) > 0 {
		if m := traceLineRe.FindStringSubmatch(rerr.Trace[0]); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				printCaret(w, src, n)
			}
		}
	}
}
