package hardware

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"

	apperrors "github.com/wfunc/kiosk-devices/internal/errors"
)

// EncodeHex 字节转十六进制字符串（大写、无分隔符）
func EncodeHex(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}

// DecodeHex 十六进制字符串转字节，忽略所有空白字符
func DecodeHex(s string) ([]byte, error) {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)

	if len(cleaned)%2 != 0 {
		return nil, apperrors.Newf(apperrors.ErrMalformedFrame, "odd hex length %d: %q", len(cleaned), s)
	}
	out, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrMalformedFrame, "invalid hex %q", s)
	}
	return out, nil
}

// MustDecodeHex 用于包内常量表，输入非法时直接panic
func MustDecodeHex(s string) []byte {
	b, err := DecodeHex(s)
	if err != nil {
		panic(err)
	}
	return b
}

// HexTokens 把一段字节拆成两位大写十六进制字符串
func HexTokens(b []byte) []string {
	tokens := make([]string, len(b))
	for i, v := range b {
		tokens[i] = fmt.Sprintf("%02X", v)
	}
	return tokens
}

// PadText 文本右侧补空格(0x20)至固定字节数，不截断
func PadText(text string, width int) []byte {
	return PadTextWith(text, width, 0x20)
}

// PadTextWith 文本右侧补指定字节至固定字节数。
// 文本超长时原样返回，由调用方保证长度。
func PadTextWith(text string, width int, pad byte) []byte {
	raw := []byte(text)
	if len(raw) >= width {
		return raw
	}
	return append(raw, bytes.Repeat([]byte{pad}, width-len(raw))...)
}

// Checksum 所有字节求和后取模256
func Checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return sum
}

// ChecksumHex 校验和的两位十六进制表示
func ChecksumHex(b []byte) string {
	return fmt.Sprintf("%02X", Checksum(b))
}

// concat 拼接多个片段成一帧
func concat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	frame := make([]byte, 0, n)
	for _, p := range parts {
		frame = append(frame, p...)
	}
	return frame
}
