package builtin

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Atomheart-Father/agentflow/runtime/agent/tools"
)

// FileWriteToolName is the registered name of the sandboxed file-write tool.
const FileWriteToolName tools.Ident = "file_write"

var fileWriteSchema = []byte(`{
	"type": "object",
	"properties": {
		"path": {"type": "string", "description": "file path, relative to the sandbox root"},
		"content": {"type": "string", "description": "file content to write"}
	},
	"required": ["path", "content"]
}`)

// NewFileWrite builds the file_write tool spec, rejecting any path that
// escapes sandboxRoot (absolute paths, paths containing "..", or paths that
// resolve outside the root after cleaning) with PERMISSION_DENIED, per the
// file-write sandbox rule.
func NewFileWrite(sandboxRoot string) tools.Spec {
	return tools.Spec{
		Name:        FileWriteToolName,
		Description: "Writes content to a file under the configured sandbox directory.",
		Timeout:     10 * time.Second,
		Payload:     tools.TypeSpec{Name: "FileWriteArgs", Schema: fileWriteSchema, Codec: tools.AnyJSONCodec},
		Invoke: func(args map[string]any) tools.Result {
			path, _ := args["path"].(string)
			content, _ := args["content"].(string)
			resolved, err := ResolveSandboxPath(sandboxRoot, path)
			if err != nil {
				return tools.Failed(FileWriteToolName, tools.ErrorCodePermissionDenied, err.Error())
			}
			if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
				return tools.Failed(FileWriteToolName, tools.ErrorCodeInternal, "create directory: "+err.Error())
			}
			if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
				return tools.Failed(FileWriteToolName, tools.ErrorCodeInternal, "write file: "+err.Error())
			}
			return tools.Success(FileWriteToolName, map[string]any{
				"path":  resolved,
				"bytes": len(content),
			})
		},
	}
}

// ErrOutsideSandbox is returned by ResolveSandboxPath for any path that would
// escape the configured sandbox root.
var ErrOutsideSandbox = sandboxErr("path escapes the file-write sandbox")

type sandboxErr string

func (e sandboxErr) Error() string { return string(e) }

// ResolveSandboxPath joins root and path, rejecting absolute paths, paths
// containing "..", and any result that does not remain under root once
// cleaned. The caller is responsible for emitting the WRITE_OUT_OF_SANDBOX
// telemetry event when this returns an error.
func ResolveSandboxPath(root, path string) (string, error) {
	if path == "" {
		return "", sandboxErr("path is required")
	}
	if filepath.IsAbs(path) {
		return "", ErrOutsideSandbox
	}
	if strings.Contains(path, "..") {
		return "", ErrOutsideSandbox
	}
	root = filepath.Clean(root)
	joined := filepath.Join(root, path)
	if joined != root && !strings.HasPrefix(joined, root+string(os.PathSeparator)) {
		return "", ErrOutsideSandbox
	}
	return joined, nil
}
