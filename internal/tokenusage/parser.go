// Package tokenusage extracts cumulative token counts from an agent's
// stream-JSON output file. The agent's process is opaque beyond its exit
// code and this stream; the parser is a pure function over whatever
// lines are on disk at read time.
package tokenusage

import (
	"bufio"
	"encoding/json"
	"os"
)

// Usage is the cumulative token count read from one stream-JSON line. It
// is monotonic non-decreasing when read repeatedly within a single agent
// run.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// FinalTokens scans path bottom-up for the last line with type=="result"
// and extracts its usage. It returns (nil, nil) if no such line exists.
func FinalTokens(path string) (*Usage, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}
	for i := len(lines) - 1; i >= 0; i-- {
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal([]byte(lines[i]), &envelope); err != nil {
			continue
		}
		if !isResultLine(envelope) {
			continue
		}
		if u := extractUsage(envelope); u != nil {
			return u, nil
		}
	}
	return nil, nil
}

// CurrentTokens scans path bottom-up and accepts the first line (from the
// bottom) whose nested usage object contains an input token count,
// regardless of its "type" — used for live, in-progress updates.
func CurrentTokens(path string) (*Usage, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}
	for i := len(lines) - 1; i >= 0; i-- {
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal([]byte(lines[i]), &envelope); err != nil {
			continue
		}
		if u := extractUsage(envelope); u != nil {
			return u, nil
		}
	}
	return nil, nil
}

func isResultLine(envelope map[string]json.RawMessage) bool {
	raw, ok := envelope["type"]
	if !ok {
		return false
	}
	var typ string
	if err := json.Unmarshal(raw, &typ); err != nil {
		return false
	}
	return typ == "result"
}

// extractUsage pulls a usage object from the envelope's nested "usage"
// field (top-level token fields are not read), tolerating camelCase and
// snake_case field names.
func extractUsage(envelope map[string]json.RawMessage) *Usage {
	raw, ok := envelope["usage"]
	if !ok {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil
	}

	input, hasInput := firstInt(fields, "input_tokens", "inputTokens")
	if !hasInput {
		return nil
	}
	output, _ := firstInt(fields, "output_tokens", "outputTokens")
	return &Usage{InputTokens: input, OutputTokens: output}
}

func firstInt(fields map[string]json.RawMessage, keys ...string) (int64, bool) {
	for _, k := range keys {
		raw, ok := fields[k]
		if !ok {
			continue
		}
		var v int64
		if err := json.Unmarshal(raw, &v); err == nil {
			return v, true
		}
	}
	return 0, false
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}
