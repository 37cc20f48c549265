package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/aios-native/orchestrator/internal/knowledge"
)

// RegisterBuiltins installs the standard toolset. kn may be nil; the
// memory.search tool then reports that no memory backend is configured.
func RegisterBuiltins(r *Registry, kn *knowledge.Store) {
	r.MustRegister("terminal.execute", Schema{
		Description: "Execute a shell command and return its output. Commands run with a timeout and are checked against the system's allow and deny lists.",
		Args: map[string]ArgSpec{
			"command": {Type: "string", Required: true, Description: "The shell command to execute, e.g. \"ls -la\" or \"cat file.txt\""},
		},
	}, terminalExecute)

	r.MustRegister("files.read", Schema{
		Description: "Read the contents of a file.",
		Args: map[string]ArgSpec{
			"path":      {Type: "string", Required: true, Description: "Path of the file to read"},
			"max_lines": {Type: "number", Description: "Truncate output after this many lines"},
		},
	}, filesRead)

	r.MustRegister("files.write", Schema{
		Description: "Write content to a file, creating it if needed.",
		Args: map[string]ArgSpec{
			"path":    {Type: "string", Required: true, Description: "Path of the file to write"},
			"content": {Type: "string", Required: true, Description: "Content to write"},
			"append":  {Type: "boolean", Description: "Append instead of overwriting"},
		},
	}, filesWrite)

	r.MustRegister("files.list", Schema{
		Description: "List the contents of a directory.",
		Args: map[string]ArgSpec{
			"path":    {Type: "string", Required: true, Description: "Directory path to list"},
			"pattern": {Type: "string", Description: "Glob pattern to filter entries, e.g. \"*.txt\""},
		},
	}, filesList)

	r.MustRegister("files.search", Schema{
		Description: "Search for files by name pattern, optionally filtering by content.",
		Args: map[string]ArgSpec{
			"path":    {Type: "string", Required: true, Description: "Base directory to search in"},
			"pattern": {Type: "string", Required: true, Description: "Glob pattern for file names, e.g. \"*.go\""},
			"content": {Type: "string", Description: "Only return files containing this text"},
		},
	}, filesSearch)

	r.MustRegister("files.info", Schema{
		Description: "Get size, type and modification time of a file or directory.",
		Args: map[string]ArgSpec{
			"path": {Type: "string", Required: true, Description: "Path to inspect"},
		},
	}, filesInfo)

	r.MustRegister("files.delete", Schema{
		Description: "Delete a file or directory. Requires explicit user confirmation.",
		Args: map[string]ArgSpec{
			"path": {Type: "string", Required: true, Description: "Path to delete"},
		},
	}, filesDelete)

	r.MustRegister("memory.search", Schema{
		Description: "Search past conversations for relevant context.",
		Args: map[string]ArgSpec{
			"query": {Type: "string", Required: true, Description: "What to look for"},
			"top_k": {Type: "number", Description: "How many results to return (default 4)"},
		},
	}, memorySearch(kn))
}

func memorySearch(kn *knowledge.Store) Capability {
	return func(ctx context.Context, env Env, args map[string]interface{}) (string, error) {
		if kn == nil {
			return "", fmt.Errorf("no memory backend configured")
		}
		query, _ := args["query"].(string)
		if strings.TrimSpace(query) == "" {
			return "", fmt.Errorf("query is empty")
		}
		topK := env.Snapshot.KnowledgeTopK()
		if v, ok := args["top_k"].(float64); ok && int(v) > 0 {
			topK = int(v)
		}

		snippets, err := kn.Search(ctx, env.UserID, query, topK)
		if err != nil {
			return "", fmt.Errorf("memory search failed: %v", err)
		}
		if len(snippets) == 0 {
			return "No relevant past conversations found.", nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "Found %d relevant snippet(s):\n", len(snippets))
		for _, s := range snippets {
			fmt.Fprintf(&b, "- %s\n", s.Content)
		}
		return b.String(), nil
	}
}
