// Package ui shows batch progress on the terminal: an animated progress bar
// when attached to a TTY, one plain line per completed query otherwise.
package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"github.com/1F47E/imagery-dater/pkg/batch"
)

// Reporter consumes batch progress events
type Reporter interface {
	// Report is called once per completed query.
	Report(p batch.Progress)
	// Done prints the final summary and releases the terminal.
	Done(outcome batch.Outcome)
}

// Options configures a Reporter
type Options struct {
	// Title is shown above the progress bar.
	Title string
	// Out defaults to os.Stdout.
	Out io.Writer
	// Plain forces line output even on a terminal.
	Plain bool
}

// New returns an interactive reporter when Out is a terminal and a plain one otherwise
func New(total int, opts Options) Reporter {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Title == "" {
		opts.Title = "Resolving capture dates"
	}

	if !opts.Plain && isTerminal(opts.Out) {
		return newInteractive(total, opts)
	}
	return &plain{out: opts.Out, total: total, started: time.Now()}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

type plain struct {
	mu      sync.Mutex
	out     io.Writer
	total   int
	started time.Time
}

func (r *plain) Report(p batch.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := "ok"
	if p.Err != nil {
		status = "failed: " + p.Err.Error()
	}
	fmt.Fprintf(r.out, "[%*d/%d] %s %s\n", width(p.Total), p.Completed, p.Total, p.Query.Location, status)
}

func (r *plain) Done(outcome batch.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, summary(outcome))
}

type interactive struct {
	program  *tea.Program
	finished chan struct{}
}

func newInteractive(total int, opts Options) *interactive {
	r := &interactive{
		program:  tea.NewProgram(newModel(opts.Title, total), tea.WithOutput(opts.Out), tea.WithInput(nil)),
		finished: make(chan struct{}),
	}

	go func() {
		defer close(r.finished)
		_, _ = r.program.Run()
	}()
	return r
}

func (r *interactive) Report(p batch.Progress) {
	r.program.Send(progressMsg(p))
}

func (r *interactive) Done(outcome batch.Outcome) {
	r.program.Send(doneMsg(outcome))
	<-r.finished
}

func summary(o batch.Outcome) string {
	took := o.EndedAt.Sub(o.StartedAt).Round(time.Millisecond)
	s := fmt.Sprintf("Resolved %d/%d locations in %v", o.Succeeded(), o.Total, took)
	if o.Partial() {
		s += fmt.Sprintf(" (%d failed)", len(o.Failures))
	}
	return s
}

func width(n int) int {
	return len(fmt.Sprint(n))
}
