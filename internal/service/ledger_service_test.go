package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/wfunc/kiosk-devices/internal/hardware"
	"github.com/wfunc/kiosk-devices/internal/models"
	"github.com/wfunc/kiosk-devices/internal/repository"
	"go.uber.org/zap"
)

// LedgerServiceTestSuite 账本服务测试套件
type LedgerServiceTestSuite struct {
	suite.Suite
	repos   *repository.Manager
	service *LedgerService
	ctx     context.Context
}

func (suite *LedgerServiceTestSuite) SetupTest() {
	suite.repos = repository.NewManager(repository.SetupTestDB(suite.T()))
	suite.service = NewLedgerService(suite.repos.Ledger(), zap.NewNop())
	suite.ctx = context.Background()
}

func (suite *LedgerServiceTestSuite) TearDownTest() {
	suite.service.Close()
}

func (suite *LedgerServiceTestSuite) TestRecordAndEntries() {
	suite.service.Record(hardware.LedgerEntry{Device: hardware.DeviceTP70, Kind: hardware.LedgerDeposit, Amount: 200, Total: 200})
	suite.service.Record(hardware.LedgerEntry{Device: hardware.DeviceXC100, Kind: hardware.LedgerDispensed, Amount: 100, Total: 100})

	entries, err := suite.service.Entries(suite.ctx, 10)
	suite.Require().NoError(err)
	suite.Require().Len(entries, 2)

	// 新条目在前
	suite.Equal(models.LedgerKindDispensed, entries[0].Kind)
	suite.Equal("xc100", entries[0].Device)
	suite.Equal(int64(100), entries[0].Amount)
	suite.Equal(models.LedgerKindDeposit, entries[1].Kind)
	suite.Equal(suite.service.SessionID(), entries[1].SessionID)
}

func (suite *LedgerServiceTestSuite) TestEntriesLimit() {
	for i := 0; i < 5; i++ {
		suite.service.Record(hardware.LedgerEntry{Device: hardware.DeviceTP70, Kind: hardware.LedgerDeposit, Amount: 100, Total: 100 * (i + 1)})
	}
	entries, err := suite.service.Entries(suite.ctx, 3)
	suite.Require().NoError(err)
	suite.Len(entries, 3)
	suite.Equal(int64(500), entries[0].Total)

	_, p, err := suite.service.List(suite.ctx, 2, 2)
	suite.Require().NoError(err)
	suite.Equal(int64(5), p.Total)
}

func (suite *LedgerServiceTestSuite) TestTotals() {
	suite.service.Record(hardware.LedgerEntry{Device: hardware.DeviceTP70, Kind: hardware.LedgerDeposit, Amount: 500, Total: 500})
	suite.service.Record(hardware.LedgerEntry{Device: hardware.DeviceTP70, Kind: hardware.LedgerDeposit, Amount: 1000, Total: 1500})
	suite.service.Record(hardware.LedgerEntry{Device: hardware.DeviceTP70, Kind: hardware.LedgerReturned, Amount: 200, Total: 1500})
	suite.service.Record(hardware.LedgerEntry{Device: hardware.DeviceXC100, Kind: hardware.LedgerDispensed, Amount: 300, Total: 300})

	totals, err := suite.service.Totals(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal(int64(1500), totals.Deposited)
	suite.Equal(int64(200), totals.Returned)
	suite.Equal(int64(300), totals.Dispensed)
	suite.Equal(int64(4), totals.Entries)
	suite.Equal(int64(1200), totals.Net())
}

func (suite *LedgerServiceTestSuite) TestSessionsAreIsolated() {
	other := NewLedgerService(suite.repos.Ledger(), zap.NewNop())
	suite.NotEqual(suite.service.SessionID(), other.SessionID())

	other.Record(hardware.LedgerEntry{Device: hardware.DeviceTP70, Kind: hardware.LedgerDeposit, Amount: 100, Total: 100})
	entries, err := suite.service.Entries(suite.ctx, 10)
	suite.Require().NoError(err)
	suite.Empty(entries)
}

func (suite *LedgerServiceTestSuite) TestCloseWritesQueuedEntries() {
	suite.service.Record(hardware.LedgerEntry{Device: hardware.DeviceXC100, Kind: hardware.LedgerCleared})
	suite.service.Close()

	entries, err := suite.repos.Ledger().List(suite.ctx, suite.service.SessionID(), repository.NewPagination(1, 10))
	suite.Require().NoError(err)
	suite.Len(entries, 1)

	// 关闭后查询不会阻塞
	_, err = suite.service.Entries(suite.ctx, 10)
	suite.NoError(err)
}

func TestLedgerServiceSuite(t *testing.T) {
	suite.Run(t, new(LedgerServiceTestSuite))
}

// slowLedgerRepo Create 阻塞到 release 关闭
type slowLedgerRepo struct {
	repository.LedgerRepository
	release chan struct{}
}

func (r *slowLedgerRepo) Create(ctx context.Context, entry *models.LedgerEntry) error {
	<-r.release
	return r.LedgerRepository.Create(ctx, entry)
}

func TestLedgerServiceRecordDoesNotWaitForStorage(t *testing.T) {
	repo := &slowLedgerRepo{
		LedgerRepository: repository.NewLedgerRepository(repository.SetupTestDB(t)),
		release:          make(chan struct{}),
	}
	svc := NewLedgerService(repo, zap.NewNop())
	defer svc.Close()

	recorded := make(chan struct{})
	go func() {
		for i := 1; i <= 3; i++ {
			svc.Record(hardware.LedgerEntry{Device: hardware.DeviceTP70, Kind: hardware.LedgerDeposit, Amount: 100, Total: 100 * i})
		}
		close(recorded)
	}()

	select {
	case <-recorded:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a slow repository")
	}

	close(repo.release)
	entries, err := svc.Entries(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, int64(300), entries[0].Total)
}
