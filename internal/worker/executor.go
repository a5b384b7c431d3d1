// Package worker implements the worker execution core (spec §4.G-H): a
// sequential multi-queue polling loop and a per-job executor that supervises
// a shell subprocess, extends its message's visibility timeout while it
// runs, and kills the process tree if it overruns its budget.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/suredone/qdone/internal/sqsapi"
	"github.com/suredone/qdone/internal/ui"
)

const (
	initialVisibilityTimeout = 30 * time.Second
	maxVisibilityTimeout     = 12 * time.Hour
	killGrace                = time.Second
)

// Job is the unit the executor consumes: a received message plus the queue
// URL it came from, interpreted as a shell command.
type Job struct {
	QueueURL      string
	MessageID     string
	ReceiptHandle string
	Body          string
}

// Outcome is one job's contribution to the loop's running tally.
type Outcome struct {
	Succeeded int
	Failed    int
}

// FailureRecord is the JOB_FAILED line emitted to stdout on non-zero exit
// or signal termination (spec §6, structured failure record). Marshalled
// directly with encoding/json: this is a wire format other tooling greps
// for, not a log line, so it bypasses the ui.Output formatter.
type FailureRecord struct {
	Event        string `json:"event"`
	Timestamp    string `json:"timestamp"`
	Job          string `json:"job"`
	Command      string `json:"command"`
	ExitCode     int    `json:"exitCode"`
	KillSignal   string `json:"killSignal,omitempty"`
	Stderr       string `json:"stderr"`
	Stdout       string `json:"stdout"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// ExecOption configures an Executor at construction time.
type ExecOption func(*Executor)

// WithFailureSink overrides where JOB_FAILED lines are written. Defaults to
// os.Stdout; tests use this to capture the line.
func WithFailureSink(w io.Writer) ExecOption {
	return func(e *Executor) { e.failureSink = w }
}

// Executor runs one job as a supervised "nice <body>" shell subprocess.
type Executor struct {
	api         sqsapi.API
	out         *ui.Output
	failureSink io.Writer
}

// NewExecutor builds an Executor. out may be nil to suppress warning logs
// (extension/delete failures are still swallowed per spec, just silently).
func NewExecutor(api sqsapi.API, out *ui.Output, opts ...ExecOption) *Executor {
	e := &Executor{api: api, out: out, failureSink: os.Stdout}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// timerSet owns the executor's two timers (plus the watchdog's follow-up
// SIGKILL timer) and guarantees they're stopped exactly once, even if a
// firing races with stopAll.
type timerSet struct {
	mu       sync.Mutex
	extender *time.Timer
	watchdog *time.Timer
	sigkill  *time.Timer
	stopped  bool
}

func (t *timerSet) armExtender(d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.extender = time.AfterFunc(d, fn)
}

func (t *timerSet) armWatchdog(d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.watchdog = time.AfterFunc(d, fn)
}

func (t *timerSet) armSigkill(d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.sigkill = time.AfterFunc(d, fn)
}

func (t *timerSet) stopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	for _, tm := range []*time.Timer{t.extender, t.watchdog, t.sigkill} {
		if tm != nil {
			tm.Stop()
		}
	}
}

// Execute spawns job.Body as a shell subprocess, arms the visibility
// extender and kill watchdog, and blocks until the subprocess exits. On a
// clean exit it deletes the message; otherwise it emits a FailureRecord and
// leaves the message for the service to redrive.
func (e *Executor) Execute(ctx context.Context, job Job, killAfter time.Duration) Outcome {
	jobStart := time.Now()

	cmd := exec.Command("sh", "-c", "nice "+job.Body)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		e.emitFailure(job, -1, "", "", "", err)
		return Outcome{Failed: 1}
	}

	timers := &timerSet{}
	visibilityTimeout := initialVisibilityTimeout

	var armExtender func(time.Duration)
	armExtender = func(delay time.Duration) {
		timers.armExtender(delay, func() {
			elapsed := time.Since(jobStart)
			next := visibilityTimeout * 2
			if rem := maxVisibilityTimeout - elapsed; rem < next {
				next = rem
			}
			if rem := killAfter - elapsed; rem < next {
				next = rem
			}
			if next <= 0 {
				return
			}

			err := e.api.ChangeMessageVisibility(ctx, job.QueueURL, job.ReceiptHandle, int32(next.Seconds()))
			if err != nil {
				e.warn("visibility extension failed for job %s: %v", job.MessageID, err)
				return
			}
			visibilityTimeout = next

			deadline := maxVisibilityTimeout
			if killAfter < deadline {
				deadline = killAfter
			}
			if elapsed+visibilityTimeout >= deadline {
				e.warn("last visibility extension for job %s", job.MessageID)
				return
			}
			armExtender(visibilityTimeout / 2)
		})
	}
	armExtender(visibilityTimeout / 2)

	timers.armWatchdog(killAfter, func() {
		killProcessTree(cmd, syscall.SIGTERM)
		timers.armSigkill(killGrace, func() {
			killProcessTree(cmd, syscall.SIGKILL)
		})
	})

	waitErr := cmd.Wait()
	timers.stopAll()

	if waitErr == nil {
		if err := e.api.DeleteMessage(ctx, job.QueueURL, job.ReceiptHandle); err != nil {
			e.warn("delete message failed for job %s: %v", job.MessageID, err)
		}
		return Outcome{Succeeded: 1}
	}

	exitCode, killSignal := exitDetails(waitErr)
	e.emitFailure(job, exitCode, killSignal, stdout.String(), stderr.String(), waitErr)
	return Outcome{Failed: 1}
}

func (e *Executor) warn(format string, args ...any) {
	if e.out != nil {
		e.out.Warning(format, args...)
	}
}

func (e *Executor) emitFailure(job Job, exitCode int, killSignal, stdoutText, stderrText string, cause error) {
	rec := FailureRecord{
		Event:      "JOB_FAILED",
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Job:        job.MessageID,
		Command:    job.Body,
		ExitCode:   exitCode,
		KillSignal: killSignal,
		Stdout:     stdoutText,
		Stderr:     stderrText,
	}
	if cause != nil {
		rec.ErrorMessage = cause.Error()
	}

	line, err := json.Marshal(rec)
	if err != nil {
		e.warn("marshal failure record for job %s: %v", job.MessageID, err)
		return
	}
	fmt.Fprintln(e.failureSink, string(line))
}

// killProcessTree signals the entire process group rooted at cmd's child,
// not just the child itself - the shell wrapper means the actual worker of
// the command is usually a grandchild.
func killProcessTree(cmd *exec.Cmd, sig syscall.Signal) {
	if cmd.Process == nil {
		return
	}
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		return
	}
	_ = syscall.Kill(-pgid, sig)
}

func exitDetails(err error) (exitCode int, killSignal string) {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				return -1, status.Signal().String()
			}
			return status.ExitStatus(), ""
		}
		return exitErr.ExitCode(), ""
	}
	return -1, ""
}
