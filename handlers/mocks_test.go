package handlers

import (
	"context"

	"github.com/stretchr/testify/mock"

	proposalsvc "github.com/vinetrail/vinetrail-backend/models/proposal/service"
	importsvc "github.com/vinetrail/vinetrail-backend/models/smartimport/service"
	"github.com/vinetrail/vinetrail-backend/types"
)

// MockProposalService implements both PublicProposalService and StaffProposalService.
type MockProposalService struct {
	mock.Mock
}

var (
	_ PublicProposalService = (*MockProposalService)(nil)
	_ StaffProposalService  = (*MockProposalService)(nil)
)

func (m *MockProposalService) proposal(args mock.Arguments) (*types.TripProposal, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.TripProposal), args.Error(1)
}

func (m *MockProposalService) ViewByNumber(ctx context.Context, number, ipAddress, userAgent string) (*types.TripProposal, error) {
	return m.proposal(m.Called(ctx, number, ipAddress, userAgent))
}

func (m *MockProposalService) Accept(ctx context.Context, number string, in proposalsvc.AcceptInput) (*types.TripProposal, error) {
	return m.proposal(m.Called(ctx, number, in))
}

func (m *MockProposalService) CreateDepositIntent(ctx context.Context, number string) (*types.DepositIntent, error) {
	args := m.Called(ctx, number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.DepositIntent), args.Error(1)
}

func (m *MockProposalService) ConfirmDeposit(ctx context.Context, number, paymentIntentID string) (*types.DepositConfirmation, error) {
	args := m.Called(ctx, number, paymentIntentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.DepositConfirmation), args.Error(1)
}

func (m *MockProposalService) Create(ctx context.Context, in types.ProposalCreate) (*types.TripProposal, error) {
	return m.proposal(m.Called(ctx, in))
}

func (m *MockProposalService) UpdateDraft(ctx context.Context, id int64, update types.ProposalUpdate) (*types.TripProposal, error) {
	return m.proposal(m.Called(ctx, id, update))
}

func (m *MockProposalService) Send(ctx context.Context, id int64, actorID string) (*types.TripProposal, error) {
	return m.proposal(m.Called(ctx, id, actorID))
}

func (m *MockProposalService) Cancel(ctx context.Context, id int64, actorID string) (*types.TripProposal, error) {
	return m.proposal(m.Called(ctx, id, actorID))
}

func (m *MockProposalService) Get(ctx context.Context, id int64) (*types.TripProposal, error) {
	return m.proposal(m.Called(ctx, id))
}

func (m *MockProposalService) List(ctx context.Context, filter types.ProposalFilter, limit, offset int) ([]*types.TripProposal, error) {
	args := m.Called(ctx, filter, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*types.TripProposal), args.Error(1)
}

func (m *MockProposalService) ListPayments(ctx context.Context, id int64) ([]types.PaymentRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.PaymentRecord), args.Error(1)
}

func (m *MockProposalService) ListActivity(ctx context.Context, id int64) ([]types.ProposalActivity, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.ProposalActivity), args.Error(1)
}

// MockSmartImportService implements SmartImportService.
type MockSmartImportService struct {
	mock.Mock
	maxFiles int
	maxSize  int64
}

func (m *MockSmartImportService) Import(ctx context.Context, uploads []importsvc.Upload) (*types.SmartImportResult, error) {
	args := m.Called(ctx, uploads)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.SmartImportResult), args.Error(1)
}

func (m *MockSmartImportService) MaxFiles() int      { return m.maxFiles }
func (m *MockSmartImportService) MaxFileSize() int64 { return m.maxSize }

type MockVenueLister struct {
	mock.Mock
}

func (m *MockVenueLister) ListVenues(ctx context.Context) ([]types.Venue, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Venue), args.Error(1)
}
