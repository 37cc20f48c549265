package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Document is the on-disk policy: limits plus tool rules plus an optional
// rego override. It is validated and compiled into a Snapshot as a whole;
// partial updates are not supported.
type Document struct {
	Limits   LimitsDoc     `yaml:"limits"`
	Terminal TerminalRules `yaml:"terminal"`
	Files    FilesRules    `yaml:"files"`

	// Tools needing explicit user confirmation before execution.
	ConfirmTools []string `yaml:"confirm_tools"`
	// Tools denied outright regardless of arguments.
	BlockedTools []string `yaml:"blocked_tools"`

	// Rego overrides the default policy module when non-empty.
	Rego string `yaml:"rego"`
}

// LimitsDoc holds the numeric limits in document form (durations in ms).
type LimitsDoc struct {
	MaxRoundsPerTurn      int            `yaml:"max_rounds_per_turn"`
	ToolTimeoutMs         int            `yaml:"tool_timeout_ms"`
	ToolTimeoutsMs        map[string]int `yaml:"tool_timeouts_ms"`
	ConfirmationTimeoutMs int            `yaml:"confirmation_timeout_ms"`
	TurnTimeoutMs         int            `yaml:"turn_timeout_ms"`
	RateWindowSeconds     int            `yaml:"rate_window_seconds"`
	RateQuota             int            `yaml:"rate_quota"`
	HistoryLimit          int            `yaml:"history_limit"`
	KnowledgeTopK         int            `yaml:"knowledge_top_k"`
}

// TerminalRules bounds terminal.execute.
type TerminalRules struct {
	AllowedCommands []string `yaml:"allowed_commands"`
	BlockedPatterns []string `yaml:"blocked_patterns"`
}

// FilesRules bounds the files.* tools.
type FilesRules struct {
	AllowedPaths []string `yaml:"allowed_paths"`
	BlockedPaths []string `yaml:"blocked_paths"`
	MaxFileSize  int64    `yaml:"max_file_size"`
}

// DefaultDocument returns the built-in policy used when no file is configured.
func DefaultDocument() Document {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "/home"
	}
	return Document{
		Limits: LimitsDoc{
			MaxRoundsPerTurn:      5,
			ToolTimeoutMs:         30000,
			ConfirmationTimeoutMs: 60000,
			TurnTimeoutMs:         300000,
			RateWindowSeconds:     60,
			RateQuota:             30,
			HistoryLimit:          20,
			KnowledgeTopK:         4,
		},
		Terminal: TerminalRules{
			AllowedCommands: []string{
				"ls", "cat", "grep", "find", "ps", "pwd", "echo", "date",
				"df", "free", "head", "uname",
			},
			BlockedPatterns: []string{"rm -rf", "dd if=", "mkfs", "fdisk", ":(){", "> /dev/sd"},
		},
		Files: FilesRules{
			AllowedPaths: []string{home, "/tmp"},
			BlockedPaths: []string{"/etc", "/boot", "/root", "/sys", "/proc", "/dev"},
			MaxFileSize:  10 * 1024 * 1024,
		},
		ConfirmTools: []string{"files.delete", "files.write"},
	}
}

// LoadDocument reads and validates a policy document from a yaml file.
func LoadDocument(path string) (Document, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Document{}, fmt.Errorf("failed to read policy file: %w", err)
	}

	doc := DefaultDocument()
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("failed to parse policy file: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Validate rejects documents that would leave the engine unbounded.
func (d Document) Validate() error {
	if d.Limits.MaxRoundsPerTurn <= 0 {
		return fmt.Errorf("policy: max_rounds_per_turn must be positive")
	}
	if d.Limits.ToolTimeoutMs <= 0 {
		return fmt.Errorf("policy: tool_timeout_ms must be positive")
	}
	if d.Limits.TurnTimeoutMs <= 0 {
		return fmt.Errorf("policy: turn_timeout_ms must be positive")
	}
	if d.Limits.ConfirmationTimeoutMs <= 0 {
		return fmt.Errorf("policy: confirmation_timeout_ms must be positive")
	}
	if d.Files.MaxFileSize <= 0 {
		return fmt.Errorf("policy: max_file_size must be positive")
	}
	return nil
}

// rulesData converts the document rules into the data.rules object the rego
// module evaluates against.
func (d Document) rulesData() map[string]interface{} {
	strs := func(in []string) []interface{} {
		out := make([]interface{}, len(in))
		for i, s := range in {
			out[i] = s
		}
		return out
	}
	return map[string]interface{}{
		"terminal": map[string]interface{}{
			"allowed_commands": strs(d.Terminal.AllowedCommands),
			"blocked_patterns": strs(d.Terminal.BlockedPatterns),
		},
		"files": map[string]interface{}{
			"allowed_paths": strs(d.Files.AllowedPaths),
			"blocked_paths": strs(d.Files.BlockedPaths),
		},
		"confirm_tools": strs(d.ConfirmTools),
		"blocked_tools": strs(d.BlockedTools),
	}
}

func (d LimitsDoc) toLimits() Limits {
	perTool := make(map[string]time.Duration, len(d.ToolTimeoutsMs))
	for name, ms := range d.ToolTimeoutsMs {
		perTool[name] = time.Duration(ms) * time.Millisecond
	}
	return Limits{
		MaxRoundsPerTurn:    d.MaxRoundsPerTurn,
		ToolTimeout:         time.Duration(d.ToolTimeoutMs) * time.Millisecond,
		ToolTimeouts:        perTool,
		ConfirmationTimeout: time.Duration(d.ConfirmationTimeoutMs) * time.Millisecond,
		TurnTimeout:         time.Duration(d.TurnTimeoutMs) * time.Millisecond,
		RateWindow:          time.Duration(d.RateWindowSeconds) * time.Second,
		RateQuota:           d.RateQuota,
		HistoryLimit:        d.HistoryLimit,
		KnowledgeTopK:       d.KnowledgeTopK,
	}
}
