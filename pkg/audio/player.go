// Package audio plays the spoken cue that comes with an analysis result.
package audio

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	"go.uber.org/zap"
)

// Player plays an audio resource by reference.
type Player interface {
	// Play starts playback of ref and returns once playback ends or fails.
	Play(ctx context.Context, ref string) error
	// Stop interrupts the current playback, if any.
	Stop()
}

// NopPlayer ignores every request.
type NopPlayer struct{}

// Play does nothing.
func (NopPlayer) Play(ctx context.Context, ref string) error { return nil }

// Stop does nothing.
func (NopPlayer) Stop() {}

// DefaultCommand plays a URL without opening a window.
var DefaultCommand = []string{"ffplay", "-nodisp", "-autoexit", "-loglevel", "error"}

// CommandPlayer shells out to an external player. The reference is appended
// as the last argument.
type CommandPlayer struct {
	command []string
	logger  *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewCommandPlayer creates a player running command. An empty command uses
// DefaultCommand.
func NewCommandPlayer(command []string, logger *zap.Logger) *CommandPlayer {
	if len(command) == 0 {
		command = DefaultCommand
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandPlayer{command: command, logger: logger.Named("audio")}
}

// Play runs the player for ref. A new Play interrupts the previous one.
func (p *CommandPlayer) Play(ctx context.Context, ref string) error {
	if ref == "" {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.cancel = cancel
	p.mu.Unlock()
	defer cancel()

	args := append(append([]string{}, p.command[1:]...), ref)
	cmd := exec.CommandContext(ctx, p.command[0], args...)

	p.logger.Debug("playing audio cue", zap.String("ref", ref), zap.String("player", p.command[0]))
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("audio player failed: %w (%s)", err, out)
	}
	return nil
}

// Stop interrupts the current playback.
func (p *CommandPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}
