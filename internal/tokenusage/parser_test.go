package tokenusage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeStream(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stream.jsonl")
	var content string
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFinalTokens_SnakeCase(t *testing.T) {
	path := writeStream(t,
		`{"type":"assistant","usage":{"input_tokens":5,"output_tokens":1}}`,
		`{"type":"result","usage":{"input_tokens":120,"output_tokens":40}}`,
	)
	u, err := FinalTokens(path)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.EqualValues(t, 120, u.InputTokens)
	assert.EqualValues(t, 40, u.OutputTokens)
}

func TestFinalTokens_CamelCase(t *testing.T) {
	path := writeStream(t,
		`{"type":"result","usage":{"inputTokens":7,"outputTokens":3}}`,
	)
	u, err := FinalTokens(path)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.EqualValues(t, 7, u.InputTokens)
	assert.EqualValues(t, 3, u.OutputTokens)
}

func TestFinalTokens_MissingOutputDefaultsZero(t *testing.T) {
	path := writeStream(t, `{"type":"result","usage":{"input_tokens":9}}`)
	u, err := FinalTokens(path)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.EqualValues(t, 0, u.OutputTokens)
}

func TestFinalTokens_NoResultLine(t *testing.T) {
	path := writeStream(t, `{"type":"assistant","usage":{"input_tokens":1,"output_tokens":1}}`)
	u, err := FinalTokens(path)
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestCurrentTokens_ScansBottomUpForAnyUsage(t *testing.T) {
	path := writeStream(t,
		`{"type":"system"}`,
		`{"type":"assistant","usage":{"input_tokens":50,"output_tokens":10}}`,
	)
	u, err := CurrentTokens(path)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.EqualValues(t, 50, u.InputTokens)
}
