package genai

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/BTreeMap/PostCraft/internal/util"
	"github.com/openai/openai-go"
)

// debugRecord is the on-disk shape of one captured completion call.
type debugRecord struct {
	Timestamp time.Time                      `json:"timestamp"`
	Method    string                         `json:"method"`
	Model     string                         `json:"model"`
	Params    openai.ChatCompletionNewParams `json:"params"`
	Response  *openai.ChatCompletion         `json:"response"`
	Error     string                         `json:"error,omitempty"`
}

// writeDebugRecord stores the request and response under <stateDir>/debug.
// Failures are logged and never surface to the caller.
func (c *Client) writeDebugRecord(method string, params openai.ChatCompletionNewParams, resp openai.ChatCompletion, callErr error) {
	dir := filepath.Join(c.stateDir, "debug")
	if err := os.MkdirAll(dir, 0755); err != nil {
		slog.Warn("GenAI debug: failed to create debug directory", "dir", dir, "error", err)
		return
	}

	rec := debugRecord{
		Timestamp: time.Now().UTC(),
		Method:    method,
		Model:     c.model,
		Params:    params,
	}
	if callErr != nil {
		rec.Error = callErr.Error()
	} else {
		rec.Response = &resp
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		slog.Warn("GenAI debug: failed to marshal record", "error", err)
		return
	}
	name := fmt.Sprintf("%s_%s_%s.json", rec.Timestamp.Format("20060102T150405.000"), method, util.GenerateRandomHex(6))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		slog.Warn("GenAI debug: failed to write record", "path", path, "error", err)
		return
	}
	slog.Debug("GenAI debug: record written", "path", path)
}
