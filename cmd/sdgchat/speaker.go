package main

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// commandSpeaker reads text aloud by running an external program with the
// text as its last argument.
type commandSpeaker struct {
	name string
	args []string
}

func newCommandSpeaker(command string) *commandSpeaker {
	fields := strings.Fields(command)
	return &commandSpeaker{name: fields[0], args: fields[1:]}
}

func (s *commandSpeaker) Speak(ctx context.Context, text string) error {
	args := append(append([]string{}, s.args...), text)
	out, err := exec.CommandContext(ctx, s.name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("running %s: %w: %s", s.name, err, strings.TrimSpace(string(out)))
	}
	return nil
}
