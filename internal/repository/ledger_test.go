package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/wfunc/kiosk-devices/internal/models"
)

type LedgerRepositoryTestSuite struct {
	suite.Suite
	repo LedgerRepository
	ctx  context.Context
}

func (s *LedgerRepositoryTestSuite) SetupTest() {
	s.repo = NewManager(SetupTestDB(s.T())).Ledger()
	s.ctx = context.Background()
}

func (s *LedgerRepositoryTestSuite) create(session, device, kind string, amount, total int64) {
	s.Require().NoError(s.repo.Create(s.ctx, &models.LedgerEntry{
		SessionID: session, Device: device, Kind: kind, Amount: amount, Total: total,
	}))
}

func (s *LedgerRepositoryTestSuite) TestListNewestFirst() {
	s.create("a", "tp70", models.LedgerKindDeposit, 100, 100)
	s.create("a", "tp70", models.LedgerKindDeposit, 500, 600)
	s.create("b", "xc100", models.LedgerKindDispensed, 100, 100)

	entries, err := s.repo.List(s.ctx, "a", nil)
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.Equal(int64(500), entries[0].Amount)
	s.Equal(int64(100), entries[1].Amount)

	all, err := s.repo.List(s.ctx, "", nil)
	s.Require().NoError(err)
	s.Len(all, 3)
}

func (s *LedgerRepositoryTestSuite) TestListPaginated() {
	for i := 1; i <= 5; i++ {
		s.create("a", "tp70", models.LedgerKindDeposit, int64(i*100), int64(i*100))
	}
	p := NewPagination(2, 2)
	entries, err := s.repo.List(s.ctx, "a", p)
	s.Require().NoError(err)
	s.Equal(int64(5), p.Total)
	s.Require().Len(entries, 2)
	s.Equal(int64(300), entries[0].Amount)
}

func (s *LedgerRepositoryTestSuite) TestTotals() {
	s.create("a", "tp70", models.LedgerKindDeposit, 200, 200)
	s.create("a", "tp70", models.LedgerKindDeposit, 1000, 1200)
	s.create("a", "tp70", models.LedgerKindReturned, 500, 1200)
	s.create("a", "xc100", models.LedgerKindDispensed, 300, 300)
	s.create("a", "xc100", models.LedgerKindResync, 0, 250)
	s.create("b", "tp70", models.LedgerKindDeposit, 100, 100)

	totals, err := s.repo.Totals(s.ctx, "a")
	s.Require().NoError(err)
	s.Equal(int64(1200), totals.Deposited)
	s.Equal(int64(500), totals.Returned)
	s.Equal(int64(300), totals.Dispensed)
	s.Equal(int64(5), totals.Entries)
	s.Equal(int64(900), totals.Net())

	empty, err := s.repo.Totals(s.ctx, "missing")
	s.Require().NoError(err)
	s.Equal(int64(0), empty.Entries)
}

func TestLedgerRepositorySuite(t *testing.T) {
	suite.Run(t, new(LedgerRepositoryTestSuite))
}
