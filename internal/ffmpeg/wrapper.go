package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Command represents an FFmpeg invocation. Build one with CommandBuilder,
// then drive it with Run or Start/Wait. A Command can be started once.
type Command struct {
	Binary    string
	Args      []string
	Input     string
	Output    string
	LogLevel  string
	Overwrite bool

	cmd     *exec.Cmd
	started time.Time
	mu      sync.RWMutex

	monitor    *ProcessMonitor
	stderrDone chan struct{}

	// Recent stderr lines kept for failure diagnosis.
	stderrLines []string
	stderrMu    sync.RWMutex
}

// CommandBuilder builds FFmpeg commands with a fluent API. Argument groups
// are emitted in FFmpeg's required order: globals, -y, input args, -i,
// filters, output args, output.
type CommandBuilder struct {
	binary     string
	globalArgs []string
	inputArgs  []string
	input      string
	filterArgs []string
	outputArgs []string
	output     string
	logLevel   string
	overwrite  bool
}

// NewCommandBuilder creates a new FFmpeg command builder.
func NewCommandBuilder(ffmpegPath string) *CommandBuilder {
	return &CommandBuilder{
		binary:   ffmpegPath,
		logLevel: "error",
	}
}

// LogLevel sets the FFmpeg log level.
func (b *CommandBuilder) LogLevel(level string) *CommandBuilder {
	b.logLevel = level
	return b
}

// HideBanner hides the FFmpeg banner.
func (b *CommandBuilder) HideBanner() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-hide_banner")
	return b
}

// Overwrite enables output file overwriting (-y).
func (b *CommandBuilder) Overwrite() *CommandBuilder {
	b.overwrite = true
	return b
}

// Input sets the input source.
func (b *CommandBuilder) Input(input string) *CommandBuilder {
	b.input = input
	return b
}

// InputArgs adds arbitrary input arguments.
func (b *CommandBuilder) InputArgs(args ...string) *CommandBuilder {
	b.inputArgs = append(b.inputArgs, args...)
	return b
}

// VideoCodec sets the video codec.
func (b *CommandBuilder) VideoCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:v", codec)
	return b
}

// AudioCodec sets the audio codec.
func (b *CommandBuilder) AudioCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:a", codec)
	return b
}

// CRF sets the constant rate factor for quality-targeted encoders.
func (b *CommandBuilder) CRF(crf int) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-crf", strconv.Itoa(crf))
	return b
}

// VideoQuality sets the qscale value (-q:v) for fixed-quantiser encoders.
func (b *CommandBuilder) VideoQuality(q int) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-q:v", strconv.Itoa(q))
	return b
}

// VideoPreset sets the encoding preset.
func (b *CommandBuilder) VideoPreset(preset string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-preset", preset)
	return b
}

// VideoFilter adds a video filter. Multiple filters are joined into one
// -vf chain.
func (b *CommandBuilder) VideoFilter(filter string) *CommandBuilder {
	b.filterArgs = append(b.filterArgs, filter)
	return b
}

// Scale adds a scale filter to the target height, deriving the width from
// the aspect ratio and forcing it even for codec compatibility.
func (b *CommandBuilder) Scale(height int) *CommandBuilder {
	return b.VideoFilter(fmt.Sprintf("scale=-2:%d", height))
}

// OutputArgs adds arbitrary output arguments.
func (b *CommandBuilder) OutputArgs(args ...string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, args...)
	return b
}

// Output sets the output destination.
func (b *CommandBuilder) Output(output string) *CommandBuilder {
	b.output = output
	return b
}

// Build builds the command.
func (b *CommandBuilder) Build() *Command {
	var args []string

	args = append(args, "-loglevel", b.logLevel)
	args = append(args, b.globalArgs...)

	if b.overwrite {
		args = append(args, "-y")
	}

	args = append(args, b.inputArgs...)
	args = append(args, "-i", b.input)

	if len(b.filterArgs) > 0 {
		args = append(args, "-vf", strings.Join(b.filterArgs, ","))
	}

	args = append(args, b.outputArgs...)
	args = append(args, b.output)

	return &Command{
		Binary:      b.binary,
		Args:        args,
		Input:       b.input,
		Output:      b.output,
		LogLevel:    b.logLevel,
		Overwrite:   b.overwrite,
		stderrLines: make([]string, 0, maxStderrLines),
	}
}

// String returns the command as a string.
func (c *Command) String() string {
	return c.Binary + " " + strings.Join(c.Args, " ")
}

// Run executes the command and waits for completion.
func (c *Command) Run(ctx context.Context) error {
	if err := c.Start(ctx); err != nil {
		return err
	}
	return c.Wait()
}

// Start starts the command without waiting. Resource monitoring and stderr
// capture begin as soon as the child has a PID.
func (c *Command) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cmd = exec.CommandContext(ctx, c.Binary, c.Args...)

	stderr, err := c.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("getting stderr pipe: %w", err)
	}

	if err := c.cmd.Start(); err != nil {
		return fmt.Errorf("starting ffmpeg: %w", err)
	}
	c.started = time.Now()

	c.monitor = NewProcessMonitor(c.cmd.Process.Pid)
	c.monitor.Start()

	c.stderrDone = make(chan struct{})
	go c.captureStderr(stderr, c.stderrDone)

	return nil
}

// Wait waits for the command to complete and releases the monitor.
func (c *Command) Wait() error {
	c.mu.RLock()
	cmd := c.cmd
	done := c.stderrDone
	c.mu.RUnlock()

	if cmd == nil {
		return fmt.Errorf("command not started")
	}

	err := cmd.Wait()
	if done != nil {
		<-done
	}
	c.stopMonitor()
	return err
}

// Kill terminates the FFmpeg process.
func (c *Command) Kill() error {
	c.mu.RLock()
	cmd := c.cmd
	c.mu.RUnlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}

	return cmd.Process.Kill()
}

// Signal sends a signal to the FFmpeg process.
func (c *Command) Signal(sig os.Signal) error {
	c.mu.RLock()
	cmd := c.cmd
	c.mu.RUnlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}

	return cmd.Process.Signal(sig)
}

// IsRunning returns true if the command has started and not yet been reaped.
func (c *Command) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.cmd == nil || c.cmd.Process == nil {
		return false
	}

	return c.cmd.ProcessState == nil
}

// Duration returns how long the command has been running.
func (c *Command) Duration() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.started.IsZero() {
		return 0
	}

	return time.Since(c.started)
}

const maxStderrLines = 100

// captureStderr drains FFmpeg stderr into a bounded ring of recent lines.
func (c *Command) captureStderr(stderr io.ReadCloser, done chan struct{}) {
	defer close(done)

	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()

		c.stderrMu.Lock()
		if len(c.stderrLines) >= maxStderrLines {
			c.stderrLines = c.stderrLines[1:]
		}
		c.stderrLines = append(c.stderrLines, line)
		c.stderrMu.Unlock()
	}
}

// GetStderrLines returns the recent stderr lines captured from FFmpeg.
func (c *Command) GetStderrLines() []string {
	c.stderrMu.RLock()
	defer c.stderrMu.RUnlock()

	lines := make([]string, len(c.stderrLines))
	copy(lines, c.stderrLines)
	return lines
}

// stopMonitor stops the process monitor if running.
func (c *Command) stopMonitor() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.monitor != nil {
		c.monitor.Stop()
	}
}

// ProcessStats returns the current process statistics, or nil when the
// process is not being monitored.
func (c *Command) ProcessStats() *ProcessStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.monitor == nil {
		return nil
	}

	stats := c.monitor.Stats()
	return &stats
}
