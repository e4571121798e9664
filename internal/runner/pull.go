package runner

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	// DefaultPullLines is the number of progress lines that would carry the
	// pull from floor to ceiling.
	DefaultPullLines = 40
	// DefaultPullInterval is the minimum spacing between progress emissions.
	DefaultPullInterval = 300 * time.Millisecond

	maxCapturedStderr = 64 << 10
)

// ProgressFunc receives pull progress on the overall 0..1 scale.
type ProgressFunc func(progress float64, message string)

// PullStreamer runs an image pull and turns its output into coarse,
// rate-limited progress within [Floor, Ceiling]. Line-driven progress stays
// below Ceiling; only a successful exit reaches it.
type PullStreamer struct {
	Floor    float64
	Ceiling  float64
	Lines    int
	Interval time.Duration

	logger zerolog.Logger
}

func NewPullStreamer(logger zerolog.Logger, floor, ceiling float64) *PullStreamer {
	return &PullStreamer{
		Floor:    floor,
		Ceiling:  ceiling,
		Lines:    DefaultPullLines,
		Interval: DefaultPullInterval,
		logger:   logger.With().Str("component", "pull-streamer").Logger(),
	}
}

type outputLine struct {
	text   string
	stderr bool
}

// Stream runs cmd to completion, calling emit from the calling goroutine
// only. A nonzero exit returns a *ProcessError with the exit code.
func (p *PullStreamer) Stream(ctx context.Context, cmd Command, emit ProgressFunc) error {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if cmd.Env != nil {
		c.Env = cmd.Env
	}

	stdout, err := c.StdoutPipe()
	if err != nil {
		return &ProcessError{Command: cmd.String(), ExitCode: -1, Err: err}
	}
	stderr, err := c.StderrPipe()
	if err != nil {
		return &ProcessError{Command: cmd.String(), ExitCode: -1, Err: err}
	}
	if err := c.Start(); err != nil {
		return &ProcessError{Command: cmd.String(), ExitCode: -1, Err: err}
	}

	lines := make(chan outputLine, 64)
	var wg sync.WaitGroup
	wg.Add(2)
	go scanLines(&wg, stdout, false, lines)
	go scanLines(&wg, stderr, true, lines)
	go func() {
		wg.Wait()
		close(lines)
	}()

	var (
		count    int
		captured strings.Builder
		limiter  = rate.Sometimes{First: 1, Interval: p.Interval}
	)
	for line := range lines {
		if line.stderr && captured.Len() < maxCapturedStderr {
			captured.WriteString(line.text)
			captured.WriteByte('\n')
		}

		msg, ok := classifyPullLine(line.text, line.stderr)
		if !ok {
			continue
		}
		count++
		progress := p.progressFor(count)
		limiter.Do(func() { emit(progress, msg) })
	}

	if err := c.Wait(); err != nil {
		perr := &ProcessError{
			Command:  cmd.String(),
			ExitCode: exitCode(err),
			Stderr:   captured.String(),
			Err:      err,
		}
		p.logger.Warn().Str("command", perr.Command).Int("exit_code", perr.ExitCode).Int("lines", count).Msg("pull failed")
		return perr
	}

	emit(p.Ceiling, "Images pulled")
	return nil
}

func (p *PullStreamer) progressFor(count int) float64 {
	n := p.Lines
	if n <= 0 {
		n = DefaultPullLines
	}
	v := p.Floor + float64(count)/float64(n)*(p.Ceiling-p.Floor)
	return min(p.Ceiling-0.01, v)
}

// classifyPullLine reports whether a trimmed output line indicates pull
// activity and the message to show for it. Every non-empty stderr line counts.
func classifyPullLine(text string, stderr bool) (string, bool) {
	lower := strings.ToLower(text)
	switch {
	case lower == "":
		return "", false
	case strings.Contains(lower, "extract"):
		return "Extracting images", true
	case strings.Contains(lower, "download"):
		return "Downloading images", true
	case strings.Contains(lower, "pulling"), strings.Contains(lower, "pull complete"):
		return "Pulling images", true
	case stderr:
		return "Pulling images", true
	}
	return "", false
}

func scanLines(wg *sync.WaitGroup, r io.Reader, stderr bool, out chan<- outputLine) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		out <- outputLine{text: text, stderr: stderr}
	}
	// drain so the child never blocks on a full pipe
	io.Copy(io.Discard, r)
}
