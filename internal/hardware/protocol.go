package hardware

import (
	"fmt"
	"sort"

	apperrors "github.com/wfunc/kiosk-devices/internal/errors"
)

// 打印机响应码（单字节）
const (
	PrinterRespAck         byte = 0x06 // 命令执行成功
	PrinterRespNack        byte = 0x0A // 命令执行失败
	PrinterRespBlockOK     byte = 0x42 // 48字节数据接收正确
	PrinterRespAllReceived byte = 0xAB // 全部数据接收完成
	PrinterRespStatusOK    byte = 0x00 // 状态：正常
	PrinterRespOutOfPaper  byte = 0x01 // 状态：缺纸
	PrinterRespCutterFault byte = 0x02 // 状态：裁刀故障
)

// 纸币接收器上报事件（首字节）
const (
	DepositEventReady     byte = 0x80 // 设备就绪
	DepositEventDetected  byte = 0x81 // 检测到纸币，后跟面额码
	DepositEventRejected  byte = 0x29 // 验钞失败
	DepositEventConfirmed byte = 0x10 // 设备确认收钞
)

// 纸币接收器动作码
const (
	DepositActionConfirm byte = 0x02 // 确认/开始
	DepositActionCancel  byte = 0x0F // 拒收/退回
	DepositActionPending byte = 0x18 // 暂存
	DepositActionClose   byte = 0x5E // 禁止收钞
	DepositActionReopen  byte = 0x3E // 恢复收钞
)

// 出钞机帧
const (
	DispenserSTX byte = 0x02
	DispenserETX byte = 0x03
)

// 出钞机命令（ASCII）
const (
	DispenserCmdDispense   byte = 'B' // 出钞
	DispenserCmdClearCount byte = 'I' // 清除累计数和错误
	DispenserCmdStatus     byte = 'S' // 查询状态
	DispenserCmdCount      byte = 'C' // 查询出钞数
)

// 出钞机响应（ASCII，位于第4字节）
const (
	DispenserRespDispense byte = 'b'
	DispenserRespStatus   byte = 's'
	DispenserRespCount    byte = 'c'

	DispenserStateReady      byte = 'r'
	DispenserStateDispensing byte = 'w'
	DispenserStateError      byte = 'e'
)

// OpcodeTable 命令名到操作码的不可变映射，构造后只读
type OpcodeTable struct {
	device DeviceKind
	codes  map[string][]byte
}

// NewOpcodeTable 由十六进制字符串表构造；表内为常量，格式错误直接panic
func NewOpcodeTable(device DeviceKind, entries map[string]string) *OpcodeTable {
	codes := make(map[string][]byte, len(entries))
	for name, h := range entries {
		codes[name] = MustDecodeHex(h)
	}
	return &OpcodeTable{device: device, codes: codes}
}

// Lookup 查找操作码，返回副本
func (t *OpcodeTable) Lookup(name string) ([]byte, bool) {
	code, ok := t.codes[name]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), code...), true
}

// Get 查找操作码，找不到时返回 UnsupportedCommand
func (t *OpcodeTable) Get(name string) ([]byte, error) {
	code, ok := t.Lookup(name)
	if !ok {
		return nil, unsupported(t.device, name)
	}
	return code, nil
}

func (t *OpcodeTable) mustGet(name string) []byte {
	code, ok := t.Lookup(name)
	if !ok {
		panic(fmt.Sprintf("%s: opcode %q not defined", t.device, name))
	}
	return code
}

// Hex 操作码的十六进制形式
func (t *OpcodeTable) Hex(name string) string {
	code, ok := t.codes[name]
	if !ok {
		return ""
	}
	return EncodeHex(code)
}

// Names 全部命令名（排序）
func (t *OpcodeTable) Names() []string {
	names := make([]string, 0, len(t.codes))
	for name := range t.codes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func unsupported(device DeviceKind, op string) error {
	return apperrors.Newf(apperrors.ErrUnsupportedCommand, "%s does not support %s", device, op)
}
