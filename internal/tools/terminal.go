package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/aios-native/orchestrator/policy"
)

// terminalExecute runs a shell command under the snapshot's terminal rules.
// The rules are checked here as well as in the policy engine: the capability
// stays safe even when invoked outside the standard pipeline.
func terminalExecute(ctx context.Context, env Env, args map[string]interface{}) (string, error) {
	command, _ := args["command"].(string)
	command = strings.TrimSpace(command)
	if command == "" {
		return "", fmt.Errorf("command is empty")
	}

	rules := env.Snapshot.Terminal()
	if reason := commandViolation(command, rules); reason != "" {
		return "", fmt.Errorf("command not allowed: %s", reason)
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := strings.TrimSpace(stdout.String())
	errOut := strings.TrimSpace(stderr.String())

	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		detail := errOut
		if detail == "" {
			detail = out
		}
		return "", fmt.Errorf("command failed: %s", firstLine(detail, err.Error()))
	}

	if out == "" {
		if errOut != "" {
			return errOut, nil
		}
		return "(command completed with no output)", nil
	}
	return out, nil
}

// commandViolation returns a non-empty reason when the command breaks the
// terminal rules.
func commandViolation(command string, rules policy.TerminalRules) string {
	for _, pattern := range rules.BlockedPatterns {
		if pattern != "" && strings.Contains(command, pattern) {
			return fmt.Sprintf("contains blocked pattern %q", pattern)
		}
	}

	if len(rules.AllowedCommands) == 0 {
		return ""
	}

	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "empty command"
	}
	base := fields[0]
	for _, allowed := range rules.AllowedCommands {
		if base == allowed || strings.HasSuffix(base, "/"+allowed) {
			return ""
		}
	}
	return fmt.Sprintf("%q is not in the allowed command list", base)
}

func firstLine(s, fallback string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
