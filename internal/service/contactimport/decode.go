package contactimport

import (
	"bytes"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/dimchansky/utfbom"
	"github.com/ignite/contact-import/internal/domain"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"
	"golang.org/x/text/transform"
)

// decodeContent turns uploaded bytes into UTF-8 text. A byte order mark
// selects UTF-8/16/32; BOM-less input that is not valid UTF-8 is read as
// Windows-1252, which is what spreadsheet exports usually produce.
func decodeContent(raw []byte) (string, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", ErrEmptyOrUnreadableInput
	}

	rd, enc := utfbom.Skip(bytes.NewReader(raw))
	body, err := io.ReadAll(rd)
	if err != nil {
		return "", ErrEmptyOrUnreadableInput.WithCause(err)
	}

	var dec encoding.Encoding
	switch enc {
	case utfbom.UTF16LittleEndian:
		dec = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	case utfbom.UTF16BigEndian:
		dec = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	case utfbom.UTF32LittleEndian:
		dec = utf32.UTF32(utf32.LittleEndian, utf32.IgnoreBOM)
	case utfbom.UTF32BigEndian:
		dec = utf32.UTF32(utf32.BigEndian, utf32.IgnoreBOM)
	default:
		if !utf8.Valid(body) {
			dec = charmap.Windows1252
		}
	}

	if dec != nil {
		body, _, err = transform.Bytes(dec.NewDecoder(), body)
		if err != nil {
			return "", ErrEmptyOrUnreadableInput.WithCause(err)
		}
	}

	text := string(body)
	// Binary uploads (xlsx, zip, images) survive the charset fallback but
	// always carry NUL bytes.
	if strings.ContainsRune(text, 0) {
		return "", domain.Errorf(domain.KindEmptyOrUnreadableInput, "input looks like a binary file, not delimited text")
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return text, nil
}
