//go:build integration

package vendors

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/suite"

	"dpdp/internal/platform/crypto"
	"dpdp/internal/platform/db/dbtest"
)

type StoreSuite struct {
	suite.Suite
	pool  *pgxpool.Pool
	store *Store
	svc   *Service
}

func TestStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupSuite() {
	s.pool = dbtest.Start(s.T())
	sealer, err := crypto.New("0123456789abcdef0123456789abcdef")
	s.Require().NoError(err)
	s.store = NewStore(s.pool, sealer)
	s.svc = NewService(s.store, DiskFiles{Dir: s.T().TempDir()}, nil, nil)
}

func (s *StoreSuite) SetupTest() {
	_, err := s.pool.Exec(context.Background(), "TRUNCATE vendor_access_logs, vendors")
	s.Require().NoError(err)
}

func (s *StoreSuite) createVendor() Vendor {
	v, err := s.svc.Create(context.Background(), CreateInput{
		VendorName:       "Acme",
		Category:         CategoryMessaging,
		ContactName:      "Ravi",
		ContactEmail:     "ravi@acme.example",
		AllowedPurposes:  []string{"communication"},
		AllowedDataTypes: []string{"phone"},
	})
	s.Require().NoError(err)
	return v
}

func (s *StoreSuite) TestContactEmailEncryptedAtRest() {
	ctx := context.Background()
	v := s.createVendor()

	var raw []byte
	s.Require().NoError(s.pool.QueryRow(ctx, "SELECT contact_email_enc FROM vendors WHERE vendor_id = $1", v.VendorID).Scan(&raw))
	s.NotContains(string(raw), "ravi@acme.example")

	got, err := s.store.Get(ctx, v.VendorID)
	s.Require().NoError(err)
	s.Equal("ravi@acme.example", got.ContactEmail)
}

func (s *StoreSuite) TestExpiredDPADeniesAccess() {
	ctx := context.Background()
	v := s.createVendor()

	signed := time.Now().UTC().AddDate(-1, 0, -1)
	till := signed.AddDate(1, 0, 0)
	_, err := s.svc.Approve(ctx, v.VendorID, ApproveInput{SignedOn: &signed, ValidTill: &till})
	s.Require().NoError(err)

	stats, err := s.store.Stats(ctx)
	s.Require().NoError(err)
	s.Equal(1, stats.ApprovedVendors)

	expired, err := s.store.ExpireOverdue(ctx, time.Now().UTC())
	s.Require().NoError(err)
	s.Require().Len(expired, 1)
	s.Equal(DPAExpired, expired[0].DPAStatus)

	decision, err := s.svc.CheckAccess(ctx, AccessRequest{VendorID: v.VendorID, Purpose: "communication", DataTypes: []string{"phone"}})
	s.Require().NoError(err)
	s.False(decision.AccessGranted)

	logs, err := s.store.AccessLogs(ctx, v.VendorID, 10, 0)
	s.Require().NoError(err)
	s.Require().Len(logs, 1)
	s.Equal("Acme", logs[0].VendorName)
}
