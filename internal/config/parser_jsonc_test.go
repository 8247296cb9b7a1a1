package config

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeJSONCRemovesCommentsAndTrailingCommas(t *testing.T) {
	input := `
{
  // line comment
  "pins": {
    "Pin_1": "music.exe", /* block comment */
    "Pin_2": "chat.exe",
  },
  "serial": {
    "port": "/dev/ttyACM0",
  },
}
`

	normalized, err := normalizeJSONC(input)
	require.NoError(t, err)
	require.NotContains(t, normalized, "//")
	require.NotContains(t, normalized, "/*")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(normalized), &decoded))
	require.Len(t, decoded["pins"], 2)
}

func TestNormalizeJSONCPreservesLineStructure(t *testing.T) {
	input := "{\n  /* one\n two */\n  \"a\": 1 // tail\n}"
	normalized, err := normalizeJSONC(input)
	require.NoError(t, err)
	require.Equal(t, strings.Count(input, "\n"), strings.Count(normalized, "\n"))
	require.Len(t, normalized, len(input))
}

func TestNormalizeJSONCRetainsCommentLikeTextInsideStrings(t *testing.T) {
	input := `{"value":"contains // and /* comment-like */ text, \"quoted\" ,}",}`
	normalized, err := normalizeJSONC(input)
	require.NoError(t, err)
	require.Contains(t, normalized, `// and /* comment-like */ text, \"quoted\" ,}`)
	require.True(t, strings.HasSuffix(normalized, `"}`))
}

func TestNormalizeJSONCUnterminatedBlockCommentFails(t *testing.T) {
	_, err := normalizeJSONC("{ /* unterminated ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unterminated block comment")
}

func TestEnsureSingleJSONValueRejectsExtraPayload(t *testing.T) {
	decoder := json.NewDecoder(strings.NewReader(`{"one":1}{"two":2}`))
	var payload map[string]any
	require.NoError(t, decoder.Decode(&payload))

	err := ensureSingleJSONValue(decoder)
	require.Error(t, err)
	require.Contains(t, err.Error(), "multiple JSON values")
}

func TestOffsetToLineCol(t *testing.T) {
	content := "line1\nline2\nline3"
	line, col := offsetToLineCol(content, 1)
	require.Equal(t, 1, line)
	require.Equal(t, 1, col)

	line, col = offsetToLineCol(content, 8) // line2, col2
	require.Equal(t, 2, line)
	require.Equal(t, 2, col)

	line, col = offsetToLineCol(content, 999)
	require.Equal(t, 3, line)
	require.Equal(t, 5, col)
}

func TestParseJSONCAppliesSections(t *testing.T) {
	cfg, warnings, err := Parse(`{
  "serial": {"port": " COM4 ", "baud_rate": 115200, "max_retries": 3},
  "audio": {"device": "Speakers (Realtek(R) Audio)"},
  "pins": {"Pin_1": "music.exe", "Pin_2": ""},
  "logging": {"level": "DEBUG"},
}`, Default())
	require.NoError(t, err)
	require.Equal(t, "COM4", cfg.Serial.Port)
	require.Equal(t, 115200, cfg.Serial.BaudRate)
	require.Equal(t, 3, cfg.Serial.MaxRetries)
	require.Equal(t, "Speakers (Realtek(R) Audio)", cfg.Audio.Device)
	require.Equal(t, map[string]string{"Pin_1": "music.exe", "Pin_2": ""}, cfg.Pins)
	require.Equal(t, "debug", cfg.Logging.Level)

	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0].Message, `"Pin_2"`)
}

func TestParseJSONCRejectsUnknownField(t *testing.T) {
	_, _, err := Parse(`{"audio": {"device": "x"}, "bogus": true}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown field")
}

func TestParseJSONCRejectsMultipleTopLevelValues(t *testing.T) {
	_, _, err := Parse(`{"audio":{"device":"a"}}{"audio":{"device":"b"}}`, Default())
	require.Error(t, err)
	require.True(
		t,
		strings.Contains(err.Error(), "multiple JSON values") || strings.Contains(err.Error(), "unknown field"),
		"unexpected error: %v",
		err,
	)
}

func TestParseJSONCTypeErrorIncludesLocation(t *testing.T) {
	_, _, err := Parse(`{
  "serial": {"baud_rate": "fast"}
}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "line 2")
	require.Contains(t, err.Error(), "column")
}

func TestParseDoesNotMutateBasePins(t *testing.T) {
	base := Default()
	base.Audio.Device = "Speakers"
	base.Pins["Pin_9"] = "base.exe"

	cfg, _, err := Parse(`{"pins": {"Pin_1": "music.exe"}}`, base)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"Pin_1": "music.exe"}, cfg.Pins)
	require.Equal(t, "base.exe", base.Pins["Pin_9"])
}
