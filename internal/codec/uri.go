package codec

import (
	"net/url"
	"strings"
)

// componentEscapes are left literal by many percent-encoders but must
// be escaped on the wire.
var componentEscapes = map[byte]string{
	'!':  "%21",
	'*':  "%2A",
	'\'': "%27",
	'(':  "%28",
	')':  "%29",
}

// EncodeURIComponent percent-encodes raw the way the browser client encodes
// URI components: spaces become %20 and only A-Z a-z 0-9 - _ . ~ stay literal.
func EncodeURIComponent(raw string) string {
	encoded := url.QueryEscape(raw)
	encoded = strings.ReplaceAll(encoded, "+", "%20")
	return ConvertToURIComponentEncoding(encoded)
}

// ConvertToURIComponentEncoding escapes any literal ! * ' ( ) left in an
// already encoded string. It is applied to whole query strings as well.
func ConvertToURIComponentEncoding(encoded string) string {
	if !strings.ContainsAny(encoded, "!*'()") {
		return encoded
	}

	sb := &strings.Builder{}
	sb.Grow(len(encoded) + 8)
	for i := 0; i < len(encoded); i++ {
		if esc, ok := componentEscapes[encoded[i]]; ok {
			sb.WriteString(esc)
			continue
		}
		sb.WriteByte(encoded[i])
	}
	return sb.String()
}
