// Package runner supervises pipeline subprocesses. The orchestration server
// spawns the scrape and enhance subcommands of this same binary and relays
// their output line by line, so callers can stream progress while the child
// is still running.
package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// EventType classifies a streamed runner event.
type EventType string

// Supported event types.
const (
	EventLog      EventType = "log"
	EventError    EventType = "error"
	EventComplete EventType = "complete"
)

// Event is one unit of child-process output, or the terminal completion
// marker. Exactly one EventComplete is emitted per run, always last.
// Every field serializes unconditionally; stream consumers rely on
// success:false being present on failed completions.
type Event struct {
	Type     EventType `json:"type"`
	Message  string    `json:"message"`
	Success  bool      `json:"success"`
	ExitCode int       `json:"exitCode"`
}

// Runner launches child pipelines.
type Runner struct {
	binary string
	logger *zap.Logger
}

// New builds a Runner that spawns the given binary. An empty binary falls
// back to "articleforge" resolved via PATH.
func New(binary string, logger *zap.Logger) *Runner {
	if binary == "" {
		binary = "articleforge"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{binary: binary, logger: logger}
}

// Run spawns the binary with the given arguments and streams its output as
// events on the returned channel. stdout lines become log events, stderr
// lines become error events, and the channel is closed after the terminal
// complete event. A run counts as successful only when the child exits zero
// AND wrote nothing to stderr.
func (r *Runner) Run(ctx context.Context, args ...string) (<-chan Event, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("runner: no arguments given")
	}

	cmd := exec.CommandContext(ctx, r.binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("runner: open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("runner: open stderr pipe: %w", err)
	}

	events := make(chan Event, 64)

	if err := cmd.Start(); err != nil {
		// Report startup failure through the same event protocol so
		// stream consumers need only one code path.
		go func() {
			defer close(events)
			events <- Event{Type: EventError, Message: fmt.Sprintf("Failed to start process: %v", err)}
			events <- Event{Type: EventComplete, Success: false, Message: "failed to start process", ExitCode: -1}
		}()
		return events, nil
	}
	r.logger.Info("child process started",
		zap.String("binary", r.binary),
		zap.Strings("args", args),
		zap.Int("pid", cmd.Process.Pid),
	)

	var sawStderr atomic.Bool
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for line := range scanLines(stdout) {
			events <- Event{Type: EventLog, Message: line}
		}
	}()
	go func() {
		defer wg.Done()
		for line := range scanLines(stderr) {
			sawStderr.Store(true)
			events <- Event{Type: EventError, Message: line}
		}
	}()

	go func() {
		defer close(events)
		wg.Wait()
		err := cmd.Wait()
		exitCode := 0
		if err != nil {
			exitCode = -1
			if exitErr, ok := err.(*exec.ExitError); ok {
				exitCode = exitErr.ExitCode()
			}
		}
		success := exitCode == 0 && !sawStderr.Load()
		msg := "completed successfully"
		if !success {
			msg = fmt.Sprintf("process exited with code %d", exitCode)
		}
		r.logger.Info("child process finished",
			zap.Strings("args", args),
			zap.Int("exit_code", exitCode),
			zap.Bool("success", success),
		)
		events <- Event{Type: EventComplete, Success: success, Message: msg, ExitCode: exitCode}
	}()

	return events, nil
}

// RunCombined runs the child to completion and returns its collected stdout.
// The article API's run-automation endpoint uses this blocking form.
func (r *Runner) RunCombined(ctx context.Context, args ...string) (string, int, error) {
	events, err := r.Run(ctx, args...)
	if err != nil {
		return "", -1, err
	}
	var out strings.Builder
	exitCode := -1
	var firstErr string
	for ev := range events {
		switch ev.Type {
		case EventLog:
			out.WriteString(ev.Message)
			out.WriteString("\n")
		case EventError:
			if firstErr == "" {
				firstErr = ev.Message
			}
		case EventComplete:
			exitCode = ev.ExitCode
			if !ev.Success {
				msg := firstErr
				if msg == "" {
					msg = fmt.Sprintf("process exited with code %d", ev.ExitCode)
				}
				return out.String(), exitCode, fmt.Errorf("runner: %s", msg)
			}
		}
	}
	return out.String(), exitCode, nil
}

// scanLines drains a pipe into a channel of trimmed lines. The channel is
// closed when the pipe reaches EOF.
func scanLines(r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimRight(scanner.Text(), "\r")
			if line != "" {
				out <- line
			}
		}
	}()
	return out
}
