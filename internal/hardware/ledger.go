package hardware

// 收发方向
const (
	DirectionTX = "tx"
	DirectionRX = "rx"
)

// FrameRecorder 帧记录（诊断用），实现不得阻塞读循环
type FrameRecorder interface {
	RecordFrame(device DeviceKind, direction string, frame []byte)
}

// LedgerKind 账本条目类型
type LedgerKind string

const (
	LedgerDeposit   LedgerKind = "deposit"   // 入钞确认
	LedgerReturned  LedgerKind = "returned"  // 纸币退回
	LedgerDispensed LedgerKind = "dispensed" // 出钞完成
	LedgerResync    LedgerKind = "resync"    // 出钞计数同步
	LedgerCleared   LedgerKind = "cleared"   // 出钞计数清零
)

// LedgerEntry 一次金额变动
type LedgerEntry struct {
	Device DeviceKind
	Kind   LedgerKind
	Amount int
	Total  int
}

// Ledger 会话账本。控制器在释放状态锁之后才调用 Record
type Ledger interface {
	Record(entry LedgerEntry)
}

func (o options) record(entries []LedgerEntry) {
	if o.ledger == nil {
		return
	}
	for _, e := range entries {
		o.ledger.Record(e)
	}
}

// ledgerQueue 持锁期间暂存的账本条目
type ledgerQueue struct {
	entries []LedgerEntry
}

func (q *ledgerQueue) add(e LedgerEntry) {
	q.entries = append(q.entries, e)
}

func (q *ledgerQueue) take() []LedgerEntry {
	e := q.entries
	q.entries = nil
	return e
}
