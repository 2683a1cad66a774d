package process

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/bulutsoft-dev/Transmind-PI/internal/logging"
)

// LineHandler receives stderr lines from the subprocess.
type LineHandler func(line string)

// LogParser parses a log line and returns the log level and message.
// Used to extract structured log info from process output (ffmpeg, ffprobe).
type LogParser func(line string) (level, msg string)

// ErrAlreadyStarted is returned by Start on a process that was started before.
var ErrAlreadyStarted = errors.New("process already started")

// Process runs one subprocess whose stdout is handed to the caller and whose
// stderr is logged line by line.
type Process struct {
	id              string
	args            []string
	logger          logging.Logger
	processLogger   logging.Logger // logger for process output (nil = use logger)
	logParser       LogParser      // parses process output for log level (nil = no parsing)
	lineHandler     LineHandler
	gracefulTimeout time.Duration // timeout for graceful shutdown before force kill
	killTimeout     time.Duration // timeout after Kill() before giving up

	mu       sync.Mutex
	cmd      *exec.Cmd
	stdout   *os.File
	state    State
	started  time.Time
	done     chan struct{}
	waitErr  error
	stopOnce sync.Once
	exitCode int
}

// New creates a process for args. args[0] is the executable.
func New(id string, args []string, logger logging.Logger) *Process {
	return &Process{
		id:              id,
		args:            args,
		logger:          logger,
		state:           StateIdle,
		done:            make(chan struct{}),
		gracefulTimeout: 5 * time.Second,
		killTimeout:     5 * time.Second,
	}
}

// NewFromCommand parses command with shell-like quoting and creates a process.
func NewFromCommand(id, command string, logger logging.Logger) (*Process, error) {
	args, err := ParseCommand(command)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	return New(id, args, logger), nil
}

// SetLogParser sets a custom logger and log parser for process output.
// The logger is used for process output (e.g., module="ffmpeg").
// The parser extracts log level from process-specific output formats.
func (p *Process) SetLogParser(logger logging.Logger, parser LogParser) {
	p.processLogger = logger
	p.logParser = parser
}

// SetLineHandler registers fn to see every stderr line before it is logged.
func (p *Process) SetLineHandler(fn LineHandler) {
	p.lineHandler = fn
}

// SetTimeouts overrides the graceful and kill timeouts used by Stop.
func (p *Process) SetTimeouts(graceful, kill time.Duration) {
	p.gracefulTimeout = graceful
	p.killTimeout = kill
}

// Args returns the command line.
func (p *Process) Args() []string {
	return p.args
}

// Info returns a snapshot of the process.
func (p *Process) Info() Info {
	p.mu.Lock()
	defer p.mu.Unlock()
	info := Info{ID: p.id, State: p.state, StartedAt: p.started, LastError: p.waitErr}
	if p.cmd != nil && p.cmd.Process != nil {
		info.PID = p.cmd.Process.Pid
	}
	return info
}

// Done is closed once the subprocess has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Start launches the subprocess and returns its stdout. The reader reports
// io.EOF once the process exits and its output has been drained.
func (p *Process) Start() (io.Reader, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil || p.state != StateIdle {
		return nil, ErrAlreadyStarted
	}
	if len(p.args) == 0 {
		p.state = StateError
		return nil, fmt.Errorf("empty command")
	}
	p.state = StateStarting

	cmd := exec.Command(p.args[0], p.args[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	// A plain pipe instead of StdoutPipe so Wait never closes the read end
	// before the caller has drained it.
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		p.state = StateError
		return nil, err
	}
	cmd.Stdout = stdoutW

	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdoutR.Close()
		stdoutW.Close()
		p.state = StateError
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		stdoutR.Close()
		stdoutW.Close()
		p.state = StateError
		p.logger.Error("Failed to start process", "error", err, "command", strings.Join(p.args, " "))
		return nil, err
	}
	stdoutW.Close()

	p.cmd = cmd
	p.stdout = stdoutR
	p.state = StateRunning
	p.started = time.Now()
	p.logger.Info("Process started", "id", p.id, "pid", cmd.Process.Pid, "command", strings.Join(p.args, " "))

	stderrDone := make(chan struct{})
	go func() {
		p.streamOutput(stderr)
		close(stderrDone)
	}()
	go func() {
		<-stderrDone
		err := cmd.Wait()
		p.mu.Lock()
		p.waitErr = err
		if p.state == StateRunning {
			p.state = StateIdle
			if err != nil {
				p.state = StateError
			}
		}
		p.mu.Unlock()
		close(p.done)
	}()

	return stdoutR, nil
}

// Stop sends SIGINT to the process group, force-kills it after the graceful
// timeout, and closes stdout. It returns the exit code; calls after the
// first return the same code.
func (p *Process) Stop() int {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		cmd, stdout := p.cmd, p.stdout
		if cmd != nil {
			p.state = StateStopping
		}
		p.mu.Unlock()

		if cmd == nil {
			return
		}
		p.exitCode = p.waitForExit(p.gracefulTimeout)
		stdout.Close()

		p.mu.Lock()
		p.state = StateIdle
		p.mu.Unlock()
	})
	return p.exitCode
}

// ExitCode returns the exit code once the process has exited. ok is false
// while it is still running or was never started.
func (p *Process) ExitCode() (code int, ok bool) {
	select {
	case <-p.done:
	default:
		return 0, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return exitCodeFromError(p.waitErr), true
}

// exitCodeFromError extracts exit code from process error.
// Returns 0 for nil error, the exit code for ExitError, or 1 for other errors.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}

// signal sends sig to the process group.
func (p *Process) signal(sig syscall.Signal) error {
	err := syscall.Kill(-p.cmd.Process.Pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return os.ErrProcessDone
	}
	return err
}

// waitForExit stops the process with a timeout, force-killing if needed.
func (p *Process) waitForExit(timeout time.Duration) int {
	select {
	case <-p.done:
		code, _ := p.ExitCode()
		return code
	default:
	}

	p.logger.Debug("Sending SIGINT to process", "pid", p.cmd.Process.Pid)
	if err := p.signal(syscall.SIGINT); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Warn("Failed to send SIGINT", "error", err)
	}

	select {
	case <-p.done:
		code, _ := p.ExitCode()
		return code
	case <-time.After(timeout):
		p.logger.Warn("Graceful shutdown timeout, forcing kill", "timeout", timeout)
		if err := p.signal(syscall.SIGKILL); err != nil {
			// "os: process already finished" is OK - process exited between timeout and kill
			if !errors.Is(err, os.ErrProcessDone) {
				p.logger.Error("Failed to kill process", "error", err)
			}
		}
		// Wait for process to exit with a secondary timeout to prevent hanging
		select {
		case <-p.done:
		case <-time.After(p.killTimeout):
			p.logger.Error("Process did not exit after kill signal")
		}
		return 137
	}
}

// streamOutput logs every stderr line at the level the parser finds in it.
func (p *Process) streamOutput(reader io.Reader) {
	scanner := bufio.NewScanner(reader)

	logger := p.processLogger
	if logger == nil {
		logger = p.logger
	}

	for scanner.Scan() {
		line := scanner.Text()

		if p.lineHandler != nil {
			p.lineHandler(line)
		}

		level, msg := "info", line
		if p.logParser != nil {
			level, msg = p.logParser(line)
		}

		switch level {
		case "", "quiet":
		case "panic", "fatal", "error":
			logger.Error(msg)
		case "warning":
			logger.Warn(msg)
		case "verbose", "debug", "trace":
			logger.Debug(msg)
		default:
			logger.Info(msg)
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		p.logger.Warn("Error reading output", "error", err)
	}
}

// ParseCommand parses a command string into arguments.
// Handles quoted strings and basic escaping.
func ParseCommand(command string) ([]string, error) {
	var args []string
	var current strings.Builder
	inQuote := false
	quoteChar := rune(0)

	command = strings.TrimSpace(command)
	runes := []rune(command)

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"' || r == '\'':
			switch {
			case !inQuote:
				inQuote = true
				quoteChar = r
			case r == quoteChar:
				inQuote = false
				quoteChar = 0
			default:
				current.WriteRune(r)
			}
		case (r == ' ' || r == '\t' || r == '\n') && !inQuote:
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		case r == '\\' && i+1 < len(runes):
			i++
			current.WriteRune(runes[i])
		default:
			current.WriteRune(r)
		}
	}

	if current.Len() > 0 {
		args = append(args, current.String())
	}

	if inQuote {
		return nil, fmt.Errorf("unclosed quote in command")
	}

	return args, nil
}
