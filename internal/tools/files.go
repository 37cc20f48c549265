package tools

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aios-native/orchestrator/policy"
)

const searchResultCap = 100

// pathViolation returns a non-empty reason when the path breaks the file
// rules. Paths are resolved before prefix matching so `..` segments cannot
// escape the allow-list.
func pathViolation(path string, rules policy.FilesRules) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Sprintf("invalid path: %v", err)
	}
	abs = filepath.Clean(abs)

	for _, blocked := range rules.BlockedPaths {
		if blocked != "" && hasPathPrefix(abs, blocked) {
			return fmt.Sprintf("path is in blocked directory %s", blocked)
		}
	}
	if len(rules.AllowedPaths) == 0 {
		return ""
	}
	for _, allowed := range rules.AllowedPaths {
		if allowed != "" && hasPathPrefix(abs, allowed) {
			return ""
		}
	}
	return "path is not within any allowed directory"
}

func hasPathPrefix(path, prefix string) bool {
	prefix = filepath.Clean(prefix)
	return path == prefix || strings.HasPrefix(path, prefix+string(filepath.Separator))
}

func guardedPath(env Env, args map[string]interface{}) (string, error) {
	path, _ := args["path"].(string)
	if path == "" {
		return "", fmt.Errorf("path is empty")
	}
	if reason := pathViolation(path, env.Snapshot.Files()); reason != "" {
		return "", fmt.Errorf("access denied: %s", reason)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("invalid path: %v", err)
	}
	return abs, nil
}

// filesRead returns a file's contents, optionally truncated to max_lines.
func filesRead(ctx context.Context, env Env, args map[string]interface{}) (string, error) {
	path, err := guardedPath(env, args)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("file not found: %s", path)
	}
	if info.IsDir() {
		return "", fmt.Errorf("not a file: %s", path)
	}
	if info.Size() > env.Snapshot.Files().MaxFileSize {
		return "", fmt.Errorf("file too large (max %d bytes)", env.Snapshot.Files().MaxFileSize)
	}

	maxLines := 0
	if v, ok := args["max_lines"].(float64); ok {
		maxLines = int(v)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("error reading file: %v", err)
	}
	defer f.Close()

	if maxLines <= 0 {
		data := make([]byte, info.Size())
		n, err := f.Read(data)
		if err != nil && n == 0 {
			return "", fmt.Errorf("error reading file: %v", err)
		}
		return string(data[:n]), nil
	}

	var b strings.Builder
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for i := 0; scanner.Scan(); i++ {
		if i >= maxLines {
			fmt.Fprintf(&b, "... (truncated at %d lines)\n", maxLines)
			break
		}
		b.WriteString(scanner.Text())
		b.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("error reading file: %v", err)
	}
	return b.String(), nil
}

// filesWrite writes (or appends) content. Plain writes go through a temp
// file and rename so a timeout cannot leave a torn file behind.
func filesWrite(ctx context.Context, env Env, args map[string]interface{}) (string, error) {
	path, err := guardedPath(env, args)
	if err != nil {
		return "", err
	}
	content, _ := args["content"].(string)
	appendMode, _ := args["append"].(bool)

	if int64(len(content)) > env.Snapshot.Files().MaxFileSize {
		return "", fmt.Errorf("content too large (max %d bytes)", env.Snapshot.Files().MaxFileSize)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return "", fmt.Errorf("error writing file: %v", err)
	}

	if appendMode {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
		if err != nil {
			return "", fmt.Errorf("error writing file: %v", err)
		}
		defer f.Close()
		if _, err := f.WriteString(content); err != nil {
			return "", fmt.Errorf("error writing file: %v", err)
		}
		return fmt.Sprintf("Successfully appended to %s", path), nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".write-*")
	if err != nil {
		return "", fmt.Errorf("error writing file: %v", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("error writing file: %v", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("error writing file: %v", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("error writing file: %v", err)
	}
	return fmt.Sprintf("Successfully written to %s", path), nil
}

// filesList lists a directory, directories first.
func filesList(ctx context.Context, env Env, args map[string]interface{}) (string, error) {
	path, err := guardedPath(env, args)
	if err != nil {
		return "", err
	}
	pattern, _ := args["pattern"].(string)

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", path)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return "", fmt.Errorf("error listing directory: %v", err)
	}

	var filtered []fs.DirEntry
	for _, e := range entries {
		if pattern != "" {
			ok, err := filepath.Match(pattern, e.Name())
			if err != nil {
				return "", fmt.Errorf("invalid pattern: %v", err)
			}
			if !ok {
				continue
			}
		}
		filtered = append(filtered, e)
	}
	if len(filtered) == 0 {
		return fmt.Sprintf("Directory is empty: %s", path), nil
	}

	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].IsDir() != filtered[j].IsDir() {
			return filtered[i].IsDir()
		}
		return strings.ToLower(filtered[i].Name()) < strings.ToLower(filtered[j].Name())
	})

	var b strings.Builder
	fmt.Fprintf(&b, "Contents of %s:\n", path)
	for _, e := range filtered {
		if e.IsDir() {
			fmt.Fprintf(&b, "  %10s  %s/\n", "<DIR>", e.Name())
			continue
		}
		size := int64(0)
		if fi, err := e.Info(); err == nil {
			size = fi.Size()
		}
		fmt.Fprintf(&b, "  %10s  %s\n", humanSize(size), e.Name())
	}
	return b.String(), nil
}

// filesSearch finds files by name pattern, optionally filtered by content.
func filesSearch(ctx context.Context, env Env, args map[string]interface{}) (string, error) {
	base, err := guardedPath(env, args)
	if err != nil {
		return "", err
	}
	pattern, _ := args["pattern"].(string)
	if pattern == "" {
		return "", fmt.Errorf("pattern is empty")
	}
	content, _ := args["content"].(string)
	rules := env.Snapshot.Files()

	var matches []string
	truncated := false
	walkErr := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			// A walk can descend into a blocked subtree (e.g. a symlinked dir).
			if pathViolation(path, rules) != "" && path != base {
				return filepath.SkipDir
			}
			return nil
		}
		ok, err := filepath.Match(pattern, d.Name())
		if err != nil || !ok {
			return err
		}
		if pathViolation(path, rules) != "" {
			return nil
		}
		if content != "" {
			fi, err := d.Info()
			if err != nil || fi.Size() > rules.MaxFileSize {
				return nil
			}
			data, err := os.ReadFile(path)
			if err != nil || !strings.Contains(strings.ToLower(string(data)), strings.ToLower(content)) {
				return nil
			}
		}
		matches = append(matches, path)
		if len(matches) >= searchResultCap {
			truncated = true
			return filepath.SkipAll
		}
		return nil
	})
	if walkErr != nil && walkErr != filepath.SkipAll {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("error searching files: %v", walkErr)
	}

	if len(matches) == 0 {
		msg := fmt.Sprintf("No files found matching %q", pattern)
		if content != "" {
			msg += fmt.Sprintf(" containing %q", content)
		}
		return msg, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d file(s):\n", len(matches))
	for _, m := range matches {
		fmt.Fprintf(&b, "  %s\n", m)
	}
	if truncated {
		fmt.Fprintf(&b, "  ... (truncated at %d results)\n", searchResultCap)
	}
	return b.String(), nil
}

// filesInfo reports size, type and modification time for a path.
func filesInfo(ctx context.Context, env Env, args map[string]interface{}) (string, error) {
	path, err := guardedPath(env, args)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("file not found: %s", path)
	}

	kind := "File"
	if info.IsDir() {
		kind = "Directory"
	} else if ext := filepath.Ext(path); ext != "" {
		kind = fmt.Sprintf("File (%s)", ext)
	}

	return fmt.Sprintf("File: %s\nPath: %s\nType: %s\nSize: %s\nModified: %s",
		info.Name(), path, kind, humanSize(info.Size()),
		info.ModTime().Format(time.DateTime)), nil
}

// filesDelete removes a file or directory tree. Gated behind confirmation
// by the default policy.
func filesDelete(ctx context.Context, env Env, args map[string]interface{}) (string, error) {
	path, err := guardedPath(env, args)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("file not found: %s", path)
	}
	if err := os.RemoveAll(path); err != nil {
		return "", fmt.Errorf("error deleting: %v", err)
	}
	if info.IsDir() {
		return fmt.Sprintf("Deleted directory: %s", path), nil
	}
	return fmt.Sprintf("Deleted file: %s", path), nil
}

func humanSize(size int64) string {
	switch {
	case size < 1024:
		return fmt.Sprintf("%dB", size)
	case size < 1024*1024:
		return fmt.Sprintf("%.1fKB", float64(size)/1024)
	case size < 1024*1024*1024:
		return fmt.Sprintf("%.1fMB", float64(size)/1024/1024)
	default:
		return fmt.Sprintf("%.1fGB", float64(size)/1024/1024/1024)
	}
}
