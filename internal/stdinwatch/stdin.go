// Package stdinwatch reads administrator input from stdin and hands
// lines to the main loop for on_stdin dispatch.
// Interactive line reading (history, basic editing) is delegated to
// peterh/liner — the same library minimega's own go.mod depends on for
// its interactive console.
package stdinwatch

import (
	"io"
	"os"

	"github.com/peterh/liner"

	"github.com/relaybot/relaybot/internal/rlog"
)

// Watcher reads lines from stdin on its own goroutine and makes them
// available on Lines; it never invokes a module callback directly.
type Watcher struct {
	line  *liner.State
	Lines chan string
	done  chan struct{}
}

func New() *Watcher {
	w := &Watcher{
		line:  liner.NewLiner(),
		Lines: make(chan string, 16),
		done:  make(chan struct{}),
	}
	w.line.SetCtrlCAborts(true)
	return w
}

// Run blocks reading lines until stdin hits EOF or Stop is called,
// then closes Lines so the main loop can treat EOF as a soft-quit
// signal.
func (w *Watcher) Run() {
	defer close(w.Lines)
	defer w.line.Close()

	for {
		text, err := w.line.Prompt("")
		if err != nil {
			if err != io.EOF && err != liner.ErrPromptAborted {
				rlog.Warn("stdin: %v", err)
			}
			return
		}
		if text == "" {
			continue
		}
		w.line.AppendHistory(text)
		select {
		case w.Lines <- text:
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) Stop() {
	close(w.done)
}

var _ = os.Stdin
