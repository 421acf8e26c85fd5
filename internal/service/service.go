package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"go.uber.org/zap"

	"github.com/arena-ops/loan-service/internal/errs"
	"github.com/arena-ops/loan-service/internal/model"
	"github.com/arena-ops/loan-service/internal/repository"
	"github.com/arena-ops/loan-service/pkg/kafka"
)

// Service is the loan lifecycle engine: it owns every status
// transition and every inventory effect. The repository commits each
// mutation transactionally; the engine never advances a status unless
// the inventory effects landed with it.
type Service struct {
	log      *zap.Logger
	repo     repository.Repository
	enqueuer kafka.Enqueuer
}

func NewService(repo repository.Repository, enqueuer kafka.Enqueuer, log *zap.Logger) *Service {
	return &Service{
		log:      log,
		repo:     repo,
		enqueuer: enqueuer,
	}
}

func (s *Service) ListItems(ctx context.Context) ([]model.Item, error) {
	return s.repo.ListItems(ctx)
}

func (s *Service) GetItem(ctx context.Context, id int) (model.Item, error) {
	return s.repo.GetItem(ctx, id)
}

// SetQuantities is the administrative override coming from the
// asset-management screens; it bypasses reserve/release bookkeeping.
func (s *Service) SetQuantities(ctx context.Context, itemID, total, available int) error {
	if total < 0 || available < 0 || available > total {
		return errs.ErrInvalidQuantity
	}
	return s.repo.SetQuantities(ctx, itemID, total, available)
}

func (s *Service) CreateLoan(ctx context.Context, req model.CreateLoanRequest) (model.Loan, error) {
	if len(req.Items) == 0 {
		return model.Loan{}, errs.NewValidationError("items", "at least one line item is required")
	}
	seen := make(map[int]struct{}, len(req.Items))
	for _, it := range req.Items {
		if it.Quantity <= 0 {
			return model.Loan{}, errs.NewValidationError("quantity", "must be positive")
		}
		if _, dup := seen[it.InventoryItemID]; dup {
			return model.Loan{}, errs.NewValidationError("items", "duplicate inventory item")
		}
		seen[it.InventoryItemID] = struct{}{}
	}

	loanDate := time.Now().UTC()
	if req.LoanDate != nil {
		loanDate = *req.LoanDate
	}

	loan := model.Loan{
		LoanUid:          uuid.NewString(),
		Company:          req.Company,
		RequesterName:    req.RequesterName,
		RequesterCPF:     req.RequesterCPF,
		RequesterPhone:   req.RequesterPhone,
		Location:         req.Location,
		DeliveredBy:      req.DeliveredBy,
		LoanDate:         loanDate,
		ExpectedReturnAt: req.ExpectedReturnAt,
		Notes:            req.Notes,
		Status:           model.StatusLent,
	}
	for _, it := range req.Items {
		loan.Items = append(loan.Items, model.LoanItem{
			ItemUid:          uuid.NewString(),
			InventoryItemID:  it.InventoryItemID,
			QuantityBorrowed: it.Quantity,
			Condition:        model.ConditionOK,
		})
	}

	if err := s.repo.CreateLoan(ctx, &loan); err != nil {
		return model.Loan{}, err
	}
	s.publish("created", loan)
	return loan, nil
}

func (s *Service) ListLoans(ctx context.Context) ([]model.Loan, error) {
	return s.repo.ListLoans(ctx)
}

func (s *Service) GetLoan(ctx context.Context, loanUid string) (model.Loan, error) {
	return s.repo.GetLoan(ctx, loanUid)
}

// UpdateLoan patches metadata only; the line-item list is immutable
// after creation and has no representation in the patch type.
func (s *Service) UpdateLoan(ctx context.Context, loanUid string, patch model.UpdateLoanRequest) error {
	if patch.Empty() {
		return errs.NewValidationError("patch", "has no fields to update")
	}
	return s.repo.UpdateLoanMetadata(ctx, loanUid, patch)
}

// SetStatus is the external status assignment path, used by the
// surrounding app to flag overdue loans. The engine itself never
// derives atrasado from dates.
func (s *Service) SetStatus(ctx context.Context, loanUid string, status model.Status) error {
	if status != model.StatusLent && status != model.StatusOverdue {
		return errs.NewValidationError("status", "only emprestado and atrasado may be assigned directly")
	}
	loan, err := s.repo.GetLoan(ctx, loanUid)
	if err != nil {
		return err
	}
	if loan.Status.Terminal() {
		return errs.ErrLoanClosed
	}
	if err := s.repo.UpdateLoanStatus(ctx, loanUid, status); err != nil {
		return err
	}
	loan.Status = status
	s.publish("status_set", loan)
	return nil
}

// ProcessReturn settles a return submission: validate and normalize
// per line item, derive the status, commit everything in one
// transaction. A failed return leaves the loan in its prior status.
func (s *Service) ProcessReturn(ctx context.Context, loanUid string, req model.ReturnRequest) (model.Loan, error) {
	loan, err := s.repo.GetLoan(ctx, loanUid)
	if err != nil {
		return model.Loan{}, err
	}
	if loan.Status.Terminal() {
		return model.Loan{}, errs.ErrLoanClosed
	}

	result, err := Settle(loan, req)
	if err != nil {
		return model.Loan{}, err
	}

	at := time.Now().UTC()
	if req.ActualReturnAt != nil {
		at = *req.ActualReturnAt
	}
	if err := s.repo.SettleReturn(ctx, loanUid, result, req.ReturnedBy, at); err != nil {
		return model.Loan{}, err
	}

	loan, err = s.repo.GetLoan(ctx, loanUid)
	if err != nil {
		return model.Loan{}, err
	}
	s.publish("returned", loan)
	return loan, nil
}

// DeleteLoan removes the loan and releases whatever is still out;
// fully returned line items get no second credit.
func (s *Service) DeleteLoan(ctx context.Context, loanUid string) error {
	loan, err := s.repo.GetLoan(ctx, loanUid)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteLoan(ctx, loanUid); err != nil {
		return err
	}
	s.publish("deleted", loan)
	return nil
}

// Summary aggregates the derived figures the reporting screens need.
func (s *Service) Summary(ctx context.Context) (model.Summary, error) {
	var (
		loans []model.Loan
		items []model.Item
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		loans, err = s.repo.ListLoans(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		items, err = s.repo.ListItems(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return model.Summary{}, err
	}

	sum := model.Summary{
		LoansByStatus: make(map[model.Status]int),
		ItemsTracked:  len(items),
	}
	for _, it := range items {
		sum.UnitsAvailable += it.QuantityAvailable
	}
	for _, l := range loans {
		sum.LoansByStatus[l.Status]++
		sum.TotalDamageFees += l.TotalDamageFee()
		for _, li := range l.Items {
			if out := li.Outstanding(); out > 0 {
				sum.OpenLineItems++
				sum.OutstandingUnits += out
			}
		}
	}
	return sum, nil
}

func (s *Service) publish(eventType string, loan model.Loan) {
	if s.enqueuer == nil {
		return
	}
	ev := kafka.EventLoan{
		Type:           eventType,
		LoanUid:        loan.LoanUid,
		Status:         string(loan.Status),
		TotalDamageFee: loan.TotalDamageFee(),
		At:             time.Now().UTC(),
	}
	if err := s.enqueuer.Enqueue(kafka.LoanEventsTopic, ev); err != nil {
		s.log.Error("enqueue loan event", zap.String("type", eventType), zap.Error(err))
	}
}
