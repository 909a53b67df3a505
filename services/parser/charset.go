package parser

import (
	"bytes"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/charmap"
)

// decodeText converts body bytes to UTF-8. Valid UTF-8 wins, then the declared charset, then
// windows-1252 when it maps every byte, then ISO-8859-1 which always succeeds.
func decodeText(data []byte, declared string) string {
	if utf8.Valid(data) {
		return string(data)
	}

	if label := strings.TrimSpace(strings.ToLower(declared)); label != "" && label != "utf-8" && label != "utf8" {
		if enc, _ := charset.Lookup(label); enc != nil {
			if decoded, err := enc.NewDecoder().Bytes(data); err == nil && utf8.Valid(decoded) {
				return string(decoded)
			}
		}
	}

	if decoded, err := charmap.Windows1252.NewDecoder().Bytes(data); err == nil && !bytes.ContainsRune(decoded, utf8.RuneError) {
		return string(decoded)
	}

	decoded, _ := charmap.ISO8859_1.NewDecoder().Bytes(data)
	return string(decoded)
}

// decodeString is decodeText for values that already arrived as Go strings.
func decodeString(s, declared string) string {
	if utf8.ValidString(s) {
		return s
	}
	return decodeText([]byte(s), declared)
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	return charset.NewReaderLabel(label, input)
}
