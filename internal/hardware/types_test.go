package hardware

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/wfunc/kiosk-devices/internal/errors"
)

func TestSnapshotJSONRoundTrip(t *testing.T) {
	at := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	in := Snapshots{
		Printer: &PrinterState{
			Model:      DeviceTGP58,
			Connection: StatusFaulted,
			LastEvent:  &PrinterEvent{Kind: PrinterCutterFault, Code: 0x02},
			UpdatedAt:  at,
		},
		Deposit: &DepositState{
			Connection:    StatusConnected,
			Phase:         DepositPending,
			CurrentAmount: 200,
			LastEvent:     &DepositEvent{Kind: DepositNoteDetected, Opcode: 0x81, Code: 0x41, HasCode: true},
			UpdatedAt:     at,
		},
		Dispenser: &DispenserState{
			Connection: StatusConnecting,
			Phase:      DispenserError,
			ErrorCode:  "33",
			UpdatedAt:  at,
		},
	}

	raw, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"phase":"pending"`)
	assert.Contains(t, string(raw), `"connection":"faulted"`)

	var out Snapshots
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, in, out)
}

func TestEnumTextRoundTrip(t *testing.T) {
	for s := StatusDisconnected; s <= StatusFaulted; s++ {
		var got ConnStatus
		require.NoError(t, got.UnmarshalText([]byte(s.String())))
		assert.Equal(t, s, got)
	}
	for k := PrinterAck; k <= PrinterUnknown; k++ {
		var got PrinterEventKind
		require.NoError(t, got.UnmarshalText([]byte(k.String())))
		assert.Equal(t, k, got)
	}
	for k := DepositReady; k <= DepositUnknown; k++ {
		var got DepositEventKind
		require.NoError(t, got.UnmarshalText([]byte(k.String())))
		assert.Equal(t, k, got)
	}
	for p := DepositIdle; p <= DepositPending; p++ {
		var got DepositPhase
		require.NoError(t, got.UnmarshalText([]byte(p.String())))
		assert.Equal(t, p, got)
	}
	for p := DispenserIdle; p <= DispenserError; p++ {
		var got DispenserPhase
		require.NoError(t, got.UnmarshalText([]byte(p.String())))
		assert.Equal(t, p, got)
	}

	var phase DepositPhase
	err := phase.UnmarshalText([]byte("halfway"))
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidParam))

	var status ConnStatus
	assert.Error(t, json.Unmarshal([]byte(`"status(9)"`), &status))
}
