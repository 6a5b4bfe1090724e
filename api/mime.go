package api

import (
	"errors"
	"fmt"
	"mime"
	"strings"
)

const (
	MediaTypeAny   = "*/*"
	MediaTypeArrow = "application/vnd.apache.arrow.stream"
	MediaTypeJSON  = "application/json"
	MediaTypeText  = "text/plain"
	MediaTypeYAML  = "application/yaml"
)

type ErrUnsupportedMimeType struct {
	Type string
}

func (m *ErrUnsupportedMimeType) Error() string {
	return fmt.Sprintf("unsupported MIME type: %s", m.Type)
}

// MediaTypeToFormat returns the result format of the media type value s.
// If s is MediaTypeAny or undefined the default format dflt is returned.
func MediaTypeToFormat(s string, dflt string) (string, error) {
	if s = strings.TrimSpace(s); s == "" {
		return dflt, nil
	}
	typ, _, err := mime.ParseMediaType(s)
	if err != nil && !errors.Is(err, mime.ErrInvalidMediaParameter) {
		return "", err
	}
	switch typ {
	case MediaTypeAny, "":
		return dflt, nil
	case MediaTypeArrow:
		return "arrow", nil
	case MediaTypeJSON:
		return "json", nil
	case MediaTypeText:
		return "text", nil
	}
	return "", &ErrUnsupportedMimeType{typ}
}

func FormatToMediaType(format string) string {
	switch format {
	case "arrow":
		return MediaTypeArrow
	case "text":
		return MediaTypeText
	}
	return MediaTypeJSON
}
