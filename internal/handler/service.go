package handler

import (
	"context"

	"github.com/arena-ops/loan-service/internal/model"
	"github.com/arena-ops/loan-service/internal/service"
)

//go:generate go run github.com/golang/mock/mockgen -source=service.go -destination=mocks/mock.go

type LoanService interface {
	ListItems(ctx context.Context) ([]model.Item, error)
	GetItem(ctx context.Context, id int) (model.Item, error)
	SetQuantities(ctx context.Context, itemID, total, available int) error

	CreateLoan(ctx context.Context, req model.CreateLoanRequest) (model.Loan, error)
	ListLoans(ctx context.Context) ([]model.Loan, error)
	GetLoan(ctx context.Context, loanUid string) (model.Loan, error)
	UpdateLoan(ctx context.Context, loanUid string, patch model.UpdateLoanRequest) error
	SetStatus(ctx context.Context, loanUid string, status model.Status) error
	ProcessReturn(ctx context.Context, loanUid string, req model.ReturnRequest) (model.Loan, error)
	DeleteLoan(ctx context.Context, loanUid string) error
	Summary(ctx context.Context) (model.Summary, error)
}

var _ LoanService = (*service.Service)(nil)
