package hardware

import (
	"fmt"
	"strconv"
	"time"

	apperrors "github.com/wfunc/kiosk-devices/internal/errors"
)

// TGP58 命令名
const (
	CmdInit            = "init"
	CmdReadDateTime    = "readDateTime"
	CmdSetDateTime     = "setDateTime"
	CmdClearLog        = "clearLog"
	CmdCutPaper        = "cutPaper"
	CmdPrintReport     = "printReport"
	CmdPrintLog        = "printLog"
	CmdFirmwareVersion = "getFirmwareVersion"
	CmdGetStatus       = "getStatus"
	CmdFormatPrint     = "formatPrint"
	CmdUploadText      = "uploadText"
	CmdSetNONC         = "setNONC"
	CmdUploadLogo      = "uploadLogo"
	CmdPrintGraphics   = "printGraphics"
	CmdPrintText       = "printText"
	CmdNewLine         = "newLine"
	CmdAdvancePaper    = "advancePaper"
)

// TGP58Opcodes TGP58 操作码表
var TGP58Opcodes = NewOpcodeTable(DeviceTGP58, map[string]string{
	CmdInit:            "1B40",
	CmdReadDateTime:    "1BF0",
	CmdSetDateTime:     "1BF1",
	CmdClearLog:        "1BF2",
	CmdCutPaper:        "1BF5",
	CmdPrintReport:     "1BF9",
	CmdPrintLog:        "1BF9",
	CmdFirmwareVersion: "1BFB",
	CmdGetStatus:       "1BFC",
	CmdFormatPrint:     "33BB",
	CmdUploadText:      "33BD",
	CmdSetNONC:         "33BC",
	CmdUploadLogo:      "1DF4",
	CmdPrintGraphics:   "1DF8",
	CmdPrintText:       "1DF7",
	CmdNewLine:         "0A",
	CmdAdvancePaper:    "1B64",
})

// FontSize 打印字号
type FontSize byte

const (
	Font1x1 FontSize = 0xB1
	Font1x2 FontSize = 0xB2
	Font2x2 FontSize = 0xB3
	Font2x4 FontSize = 0xB4
	Font3x3 FontSize = 0xB5
	Font3x6 FontSize = 0xB6
)

// FontSizeFromLevel 1..6 转字号
func FontSizeFromLevel(level int) (FontSize, error) {
	if level < 1 || level > 6 {
		return 0, apperrors.Newf(apperrors.ErrInvalidParam, "font level %d not in 1..6", level)
	}
	return FontSize(0xB0 + level), nil
}

// 排版项类型
const (
	FormatItemBlank byte = 0x20 // 空行，参数为行数
	FormatItemText  byte = 0x74 // 上传的文本，参数为对齐/字号
	FormatItemField byte = 0x75 // 内置字段，参数为对齐/字号
)

const (
	// FormatSlots 一条排版命令固定的项数
	FormatSlots = 15
	// TextSlotWidth 上传文本每段的固定字节数
	TextSlotWidth = 48
	// PrintLineTerminator 打印文本结束符
	PrintLineTerminator byte = 0x0D
)

// FormatItem 排版项
type FormatItem struct {
	Kind  byte
	Param byte
}

// BlankItem 默认排版项：空一行
var BlankItem = FormatItem{Kind: FormatItemBlank, Param: 0x01}

// DefaultReportLayout 连接后下发的默认报表排版
var DefaultReportLayout = []FormatItem{
	BlankItem, BlankItem, BlankItem, BlankItem, BlankItem, BlankItem, BlankItem,
	{Kind: FormatItemText, Param: byte(Font3x3)},
	BlankItem, BlankItem, BlankItem,
	{Kind: FormatItemField, Param: byte(Font3x6)},
	BlankItem,
}

// TGP58Commands 组装 TGP58 命令帧
type TGP58Commands struct {
	table *OpcodeTable
}

// NewTGP58Commands 使用默认操作码表
func NewTGP58Commands() *TGP58Commands {
	return &TGP58Commands{table: TGP58Opcodes}
}

// Opcodes 操作码表
func (c *TGP58Commands) Opcodes() *OpcodeTable { return c.table }

// Simple 无参数命令
func (c *TGP58Commands) Simple(name string) ([]byte, error) {
	return c.table.Get(name)
}

// Init 初始化
func (c *TGP58Commands) Init() []byte { return c.table.mustGet(CmdInit) }

// Cut 切纸
func (c *TGP58Commands) Cut() []byte { return c.table.mustGet(CmdCutPaper) }

// PrintReport 打印报表
func (c *TGP58Commands) PrintReport() []byte { return c.table.mustGet(CmdPrintReport) }

// NewLine 换行
func (c *TGP58Commands) NewLine() []byte { return c.table.mustGet(CmdNewLine) }

// SetDateTime 1BF1 + "YYMMDDHHMMSS" + 00，按 t 所在时区取值
func (c *TGP58Commands) SetDateTime(t time.Time) []byte {
	stamp := t.Format("060102150405")
	return concat(c.table.mustGet(CmdSetDateTime), []byte(stamp), []byte{0x00})
}

// PrintText 1DF7 + 字号 + 文本 + 0D
func (c *TGP58Commands) PrintText(text string, size FontSize) []byte {
	return concat(c.table.mustGet(CmdPrintText), []byte{byte(size)}, []byte(text), []byte{PrintLineTerminator})
}

// FormatReport 33BB + 15 个排版项，不足用空行补齐
func (c *TGP58Commands) FormatReport(items []FormatItem) ([]byte, error) {
	if len(items) > FormatSlots {
		return nil, apperrors.Newf(apperrors.ErrInvalidParam, "format report holds %d items, got %d", FormatSlots, len(items))
	}
	frame := c.table.mustGet(CmdFormatPrint)
	for i := 0; i < FormatSlots; i++ {
		item := BlankItem
		if i < len(items) {
			item = items[i]
		}
		frame = append(frame, item.Kind, item.Param)
	}
	return frame, nil
}

// UploadText 33BD + 每段48字节的文本
func (c *TGP58Commands) UploadText(lines []string) ([]byte, error) {
	if len(lines) == 0 {
		return nil, apperrors.New(apperrors.ErrInvalidParam, "no text to upload")
	}
	if len(lines) > FormatSlots {
		return nil, apperrors.Newf(apperrors.ErrInvalidParam, "at most %d text blocks, got %d", FormatSlots, len(lines))
	}
	frame := c.table.mustGet(CmdUploadText)
	for i, line := range lines {
		if len(line) > TextSlotWidth {
			return nil, apperrors.Newf(apperrors.ErrInvalidParam, "text block %d is %d bytes, limit %d", i, len(line), TextSlotWidth)
		}
		frame = append(frame, PadText(line, TextSlotWidth)...)
	}
	return frame, nil
}

// PaddedText 上下各空两行、左对齐打印一段文字
func (c *TGP58Commands) PaddedText(text string) []byte {
	return concat(
		c.table.mustGet(CmdFormatPrint),
		[]byte{FormatItemBlank, 0x02, FormatItemText, 0x00},
		[]byte(text),
		[]byte{FormatItemBlank, 0x02},
	)
}

// AdvancePaper 1B64 + 行数
func (c *TGP58Commands) AdvancePaper(lines int) ([]byte, error) {
	if lines < 0 || lines > 0xFF {
		return nil, apperrors.Newf(apperrors.ErrInvalidParam, "advance %d lines out of range", lines)
	}
	return append(c.table.mustGet(CmdAdvancePaper), byte(lines)), nil
}

// SetContactMode 33BC + 00(NO)/01(NC)
func (c *TGP58Commands) SetContactMode(normallyClosed bool) []byte {
	mode := byte(0x00)
	if normallyClosed {
		mode = 0x01
	}
	return append(c.table.mustGet(CmdSetNONC), mode)
}

// PrintGraphics 1DF8 + 点阵数据
func (c *TGP58Commands) PrintGraphics(bitmap []byte) ([]byte, error) {
	if len(bitmap) == 0 {
		return nil, apperrors.New(apperrors.ErrInvalidParam, "empty bitmap")
	}
	return concat(c.table.mustGet(CmdPrintGraphics), bitmap), nil
}

// UploadLogo 1DF4 + 商标点阵
func (c *TGP58Commands) UploadLogo(bitmap []byte) ([]byte, error) {
	if len(bitmap) == 0 {
		return nil, apperrors.New(apperrors.ErrInvalidParam, "empty logo")
	}
	return concat(c.table.mustGet(CmdUploadLogo), bitmap), nil
}

// blankLine 一行空白文字，部分固件不支持 1B64 时用来走纸
const blankLine = "                      "

// FeedLines 以空白行走纸
func (c *TGP58Commands) FeedLines(n int) [][]byte {
	frames := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		frames = append(frames, c.PrintText(blankLine, Font3x3))
	}
	return frames
}

// Voucher 现金凭条：走纸、标题、放大的金额行、走纸、切纸
func (c *TGP58Commands) Voucher(title string, amount int) ([][]byte, error) {
	if amount <= 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidParam, "voucher amount %d", amount)
	}
	amountLine := fmt.Sprintf("%13s", "$"+strconv.Itoa(amount))

	frames := c.FeedLines(3)
	frames = append(frames,
		c.PrintText(title, Font3x3),
		c.PrintText(blankLine, Font3x3),
		c.PrintText(amountLine, Font2x4),
	)
	frames = append(frames, c.FeedLines(20)...)
	frames = append(frames, c.Cut())
	return frames, nil
}

// Receipt 排版、上传文本、打印报表三帧
func (c *TGP58Commands) Receipt(layout []FormatItem, lines []string) ([][]byte, error) {
	format, err := c.FormatReport(layout)
	if err != nil {
		return nil, err
	}
	upload, err := c.UploadText(lines)
	if err != nil {
		return nil, err
	}
	return [][]byte{format, upload, c.PrintReport()}, nil
}

// ESC/POS 命令名
const (
	CmdESCInit      = "init"
	CmdESCPrintMode = "printText"
	CmdESCLineFeed  = "lineFeed"
	CmdESCCut       = "cutPaper"
)

// ESCPOSOpcodes ESC/POS 操作码表
var ESCPOSOpcodes = NewOpcodeTable(DeviceESCPOS, map[string]string{
	CmdESCInit:      "1B40",
	CmdESCPrintMode: "1B21",
	CmdESCLineFeed:  "0A",
	CmdESCCut:       "1D5600",
})

// ESCPOSCommands 组装 ESC/POS 命令帧
type ESCPOSCommands struct {
	table *OpcodeTable
}

// NewESCPOSCommands 使用默认操作码表
func NewESCPOSCommands() *ESCPOSCommands {
	return &ESCPOSCommands{table: ESCPOSOpcodes}
}

// Opcodes 操作码表
func (c *ESCPOSCommands) Opcodes() *OpcodeTable { return c.table }

// Init 初始化
func (c *ESCPOSCommands) Init() []byte { return c.table.mustGet(CmdESCInit) }

// Cut 切纸
func (c *ESCPOSCommands) Cut() []byte { return c.table.mustGet(CmdESCCut) }

// LineFeed 换行
func (c *ESCPOSCommands) LineFeed() []byte { return c.table.mustGet(CmdESCLineFeed) }

// PrintText 初始化、文字、换行、切纸，每一步单独一帧
func (c *ESCPOSCommands) PrintText(text string) [][]byte {
	return [][]byte{
		c.Init(),
		concat(c.table.mustGet(CmdESCPrintMode), []byte(text)),
		c.LineFeed(),
		c.Cut(),
	}
}
