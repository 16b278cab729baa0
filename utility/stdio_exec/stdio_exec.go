// Package stdio_exec runs a long-lived helper process (typically a Python model
// wrapper) and exchanges one request line for one response line over its
// stdin/stdout. Model weights load once at process start; every call after that
// is a single round trip.
package stdio_exec

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"strings"
	"sync"

	log "github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/logger"
)

type StdioExec struct {
	ctx      context.Context
	command  string
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	stdout   io.ReadCloser
	stderr   io.ReadCloser
	writer   *bufio.Writer
	reader   *bufio.Reader
	stderrWg sync.WaitGroup
	procErr  *log.Status
	errMutex sync.Mutex
}

func NewStdioExec(ctx context.Context, command string, args ...string) (*StdioExec, *log.Status) {
	var s StdioExec
	s.ctx = ctx
	s.command = command
	s.cmd = exec.CommandContext(ctx, command, args...)
	var err error
	s.stdin, err = s.cmd.StdinPipe()
	if err != nil {
		return &s, log.Error(ctx, 500, err, `Unable to open stdin pipe`, command)
	}
	s.stdout, err = s.cmd.StdoutPipe()
	if err != nil {
		return &s, log.Error(ctx, 500, err, `Unable to open stdout pipe`, command)
	}
	s.stderr, err = s.cmd.StderrPipe()
	if err != nil {
		return &s, log.Error(ctx, 500, err, `Unable to open stderr pipe`, command)
	}
	err = s.cmd.Start()
	if err != nil {
		return &s, log.Error(ctx, 500, err, `Unable to start`, command)
	}
	s.drainStderr()
	s.writer = bufio.NewWriterSize(s.stdin, 4096)
	s.reader = bufio.NewReaderSize(s.stdout, 65536)
	return &s, nil
}

func (s *StdioExec) drainStderr() {
	s.stderrWg.Add(1)
	go func() {
		defer s.stderrWg.Done()
		scanner := bufio.NewScanner(s.stderr)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if len(line) > 0 {
				status := log.ExecError(s.ctx, 500, line)
				if status != nil {
					s.errMutex.Lock()
					s.procErr = status
					s.errMutex.Unlock()
				}
			}
		}
		if err := scanner.Err(); err != nil {
			_ = log.Error(s.ctx, 500, err, "Error reading stderr of", s.command)
		}
	}()
}

func (s *StdioExec) getProcErr() *log.Status {
	s.errMutex.Lock()
	defer s.errMutex.Unlock()
	return s.procErr
}

// Process writes one line to the helper and blocks until its one-line reply.
func (s *StdioExec) Process(input string) (string, *log.Status) {
	var result string
	if procErr := s.getProcErr(); procErr != nil {
		return result, procErr
	}
	_, err := s.writer.WriteString(input + "\n")
	if err != nil {
		return result, log.Error(s.ctx, 500, err, "Error writing to", s.command)
	}
	err = s.writer.Flush()
	if err != nil {
		return result, log.Error(s.ctx, 500, err, "Error flushing to", s.command)
	}
	result, err = s.reader.ReadString('\n')
	if err != nil {
		return result, log.Error(s.ctx, 500, err, `Error reading response from`, s.command)
	}
	if procErr := s.getProcErr(); procErr != nil {
		return result, procErr
	}
	return strings.TrimRight(result, "\n"), nil
}

func (s *StdioExec) Close() {
	if s.writer != nil {
		_ = s.writer.Flush()
	}
	if s.stdin != nil {
		_ = s.stdin.Close()
	}
	s.stderrWg.Wait()
	if s.cmd != nil && s.cmd.Process != nil {
		err := s.cmd.Wait()
		if err != nil {
			// procErr carries the real cause, so this is logged but not returned
			_ = log.Error(s.ctx, 500, err, `Helper process failed`, s.cmd.String())
		}
	}
}
