package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

func decodeJSONC(content string) (fileConfig, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return fileConfig{}, formatError("jsonc", err)
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload fileConfig
	if err := decoder.Decode(&payload); err != nil {
		return fileConfig{}, formatError("jsonc", locateJSONError(normalized, err))
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return fileConfig{}, formatError("jsonc", locateJSONError(normalized, err))
	}
	return payload, nil
}

// normalizeJSONC blanks out comments and drops trailing commas so the result
// is plain JSON. Byte offsets are preserved for comments so decode errors
// still point at the right line and column.
func normalizeJSONC(content string) (string, error) {
	s := jsoncScanner{src: content}
	s.out.Grow(len(content))
	if err := s.stripComments(); err != nil {
		return "", err
	}
	return dropTrailingCommas(s.out.String()), nil
}

type jsoncScanner struct {
	src string
	out strings.Builder
}

func (s *jsoncScanner) stripComments() error {
	src := s.src
	for i := 0; i < len(src); i++ {
		ch := src[i]
		switch {
		case ch == '"':
			end := skipJSONString(src, i)
			s.out.WriteString(src[i:end])
			i = end - 1
		case ch == '/' && i+1 < len(src) && src[i+1] == '/':
			end := strings.IndexAny(src[i:], "\r\n")
			if end < 0 {
				end = len(src) - i
			}
			s.blank(src[i : i+end])
			i += end - 1
		case ch == '/' && i+1 < len(src) && src[i+1] == '*':
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				return errors.New("unterminated block comment in JSONC")
			}
			s.blank(src[i : i+2+end+2])
			i += 2 + end + 1
		default:
			s.out.WriteByte(ch)
		}
	}
	return nil
}

// blank writes spaces for every byte of a comment, keeping line breaks and tabs.
func (s *jsoncScanner) blank(comment string) {
	for i := 0; i < len(comment); i++ {
		switch comment[i] {
		case '\n', '\r', '\t':
			s.out.WriteByte(comment[i])
		default:
			s.out.WriteByte(' ')
		}
	}
}

// skipJSONString returns the index just past the string literal starting at start.
func skipJSONString(src string, start int) int {
	for i := start + 1; i < len(src); i++ {
		switch src[i] {
		case '\\':
			i++
		case '"':
			return i + 1
		}
	}
	return len(src)
}

func dropTrailingCommas(content string) string {
	var out strings.Builder
	out.Grow(len(content))

	for i := 0; i < len(content); i++ {
		ch := content[i]
		if ch == '"' {
			end := skipJSONString(content, i)
			out.WriteString(content[i:end])
			i = end - 1
			continue
		}
		if ch == ',' {
			next := strings.TrimLeft(content[i+1:], " \t\r\n")
			if next != "" && (next[0] == '}' || next[0] == ']') {
				continue
			}
		}
		out.WriteByte(ch)
	}
	return out.String()
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra struct{}
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return errors.New("multiple JSON values are not allowed")
	}
	return err
}

func locateJSONError(content string, err error) error {
	var offset int64
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		offset = syntaxErr.Offset
	case errors.As(err, &typeErr):
		offset = typeErr.Offset
	default:
		return err
	}
	line, col := offsetToLineCol(content, offset)
	return fmt.Errorf("line %d column %d: %w", line, col, err)
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}
	limit := int(offset)
	if limit > len(content) {
		limit = len(content)
	}

	prefix := content[:max(limit-1, 0)]
	line := strings.Count(prefix, "\n") + 1
	col := len(prefix) - strings.LastIndexByte(prefix, '\n')
	return line, col
}
