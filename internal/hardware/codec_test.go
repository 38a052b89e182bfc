package hardware

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/wfunc/kiosk-devices/internal/errors"
)

func TestDecodeHex(t *testing.T) {
	b, err := DecodeHex("1B40")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x1B, 0x40}, b)

	b, err = DecodeHex(" 1b 40\n0a\t")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x1B, 0x40, 0x0A}, b)

	b, err = DecodeHex("")
	require.NoError(t, err)
	assert.Empty(t, b)
}

func TestDecodeHexMalformed(t *testing.T) {
	for _, in := range []string{"1B4", "1G40", "zz", "0x1B"} {
		_, err := DecodeHex(in)
		require.Error(t, err, in)
		assert.True(t, apperrors.Is(err, apperrors.ErrMalformedFrame), in)
	}
}

func TestEncodeHex(t *testing.T) {
	assert.Equal(t, "1B40", EncodeHex([]byte{0x1b, 0x40}))
	assert.Equal(t, "00FFAB", EncodeHex([]byte{0x00, 0xff, 0xab}))
	assert.Equal(t, "", EncodeHex(nil))
}

func TestHexRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		b := make([]byte, r.Intn(64))
		r.Read(b)

		decoded, err := DecodeHex(EncodeHex(b))
		require.NoError(t, err)
		assert.Equal(t, len(b), len(decoded))
		if len(b) > 0 {
			assert.Equal(t, b, decoded)
		}
	}

	// 合法的大写十六进制字符串也满足反向往返
	for _, s := range []string{"1B40", "33BB20027400", "02004230313030"} {
		decoded, err := DecodeHex(s)
		require.NoError(t, err)
		assert.Equal(t, s, EncodeHex(decoded))
	}
}

func TestPadText(t *testing.T) {
	out := PadText("AB", 5)
	assert.Equal(t, []byte{'A', 'B', 0x20, 0x20, 0x20}, out)

	out = PadTextWith("X", 3, 0x00)
	assert.Equal(t, []byte{'X', 0x00, 0x00}, out)

	for _, text := range []string{"", "a", "收据", "exactly-48-bytes-exactly-48-bytes-exactly-48-byt"} {
		assert.Len(t, PadText(text, 48), 48, text)
	}

	// 超长不截断
	assert.Equal(t, []byte("toolong"), PadText("toolong", 4))
}

func TestChecksum(t *testing.T) {
	assert.Equal(t, byte(0x00), Checksum(nil))
	assert.Equal(t, byte(0xC5), Checksum([]byte("0200B0100")))
	assert.Equal(t, byte(0x01), Checksum([]byte{0xFF, 0x02}))
	assert.Equal(t, "C5", ChecksumHex([]byte("0200B0100")))

	msg := []byte("0200B0100")
	first := Checksum(msg)
	assert.Equal(t, first, Checksum(msg))

	changed := append([]byte(nil), msg...)
	changed[4] = 'I'
	assert.NotEqual(t, first, Checksum(changed))
}

func TestHexTokens(t *testing.T) {
	assert.Equal(t, []string{"81", "41"}, HexTokens([]byte{0x81, 0x41}))
}
