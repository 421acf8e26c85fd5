package service_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arena-ops/loan-service/internal/errs"
	"github.com/arena-ops/loan-service/internal/model"
	"github.com/arena-ops/loan-service/internal/service"
)

func lentLoan(items ...model.LoanItem) model.Loan {
	return model.Loan{
		ID:      1,
		LoanUid: "7a8b1c9e-0000-0000-0000-000000000001",
		Status:  model.StatusLent,
		Items:   items,
	}
}

func line(uid string, itemID, borrowed, returned int) model.LoanItem {
	return model.LoanItem{
		ItemUid:          uid,
		InventoryItemID:  itemID,
		QuantityBorrowed: borrowed,
		QuantityReturned: returned,
		Condition:        model.ConditionOK,
	}
}

func TestSettle_FullReturnOK(t *testing.T) {
	t.Parallel()
	loan := lentLoan(line("li-1", 10, 4, 0))

	res, err := service.Settle(loan, model.ReturnRequest{
		ReturnedBy: "Carlos",
		Items: []model.ReturnItemRequest{
			{ItemUid: "li-1", QuantityReturned: 4, Condition: model.ConditionOK},
		},
	})
	require.NoError(t, err)
	require.Equal(t, model.StatusReturned, res.Status)
	require.Len(t, res.Settlements, 1)
	require.Equal(t, 4, res.Settlements[0].ReleaseQuantity)
	require.Equal(t, 0, res.Settlements[0].ConsumeQuantity)
}

func TestSettle_PartialKeepsLoanOpen(t *testing.T) {
	t.Parallel()
	// Rádio fully back, Colete one of two still out.
	loan := lentLoan(
		line("li-radio", 2, 4, 0),
		line("li-colete", 3, 2, 0),
	)

	res, err := service.Settle(loan, model.ReturnRequest{
		ReturnedBy: "Carlos",
		Items: []model.ReturnItemRequest{
			{ItemUid: "li-radio", QuantityReturned: 4, Condition: model.ConditionOK},
			{ItemUid: "li-colete", QuantityReturned: 1, Condition: model.ConditionOK},
		},
	})
	require.NoError(t, err)
	require.Equal(t, model.StatusLent, res.Status)
}

func TestSettle_PartialOverdueStaysOverdue(t *testing.T) {
	t.Parallel()
	loan := lentLoan(line("li-1", 10, 3, 0))
	loan.Status = model.StatusOverdue

	res, err := service.Settle(loan, model.ReturnRequest{
		ReturnedBy: "Carlos",
		Items: []model.ReturnItemRequest{
			{ItemUid: "li-1", QuantityReturned: 1, Condition: model.ConditionOK},
		},
	})
	require.NoError(t, err)
	require.Equal(t, model.StatusOverdue, res.Status)
}

func TestSettle_DamageDominates(t *testing.T) {
	t.Parallel()
	loan := lentLoan(
		line("li-1", 10, 4, 0),
		line("li-2", 11, 2, 0),
	)

	res, err := service.Settle(loan, model.ReturnRequest{
		ReturnedBy: "Carlos",
		Items: []model.ReturnItemRequest{
			{ItemUid: "li-1", QuantityReturned: 4, Condition: model.ConditionOK},
			{ItemUid: "li-2", QuantityReturned: 2, Condition: model.ConditionLost, DamageFee: 150, PaymentMethod: "PIX"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, model.StatusDamaged, res.Status)

	// Lost units leave the pool, they are not released.
	require.Equal(t, 2, res.Settlements[1].ConsumeQuantity)
	require.Equal(t, 0, res.Settlements[1].ReleaseQuantity)
	require.Equal(t, float64(150), res.Settlements[1].DamageFee)
}

func TestSettle_MissingFee(t *testing.T) {
	t.Parallel()
	loan := lentLoan(line("li-1", 10, 2, 0))

	_, err := service.Settle(loan, model.ReturnRequest{
		ReturnedBy: "Carlos",
		Items: []model.ReturnItemRequest{
			{ItemUid: "li-1", QuantityReturned: 2, Condition: model.ConditionDamaged, DamageFee: 0},
		},
	})
	require.ErrorIs(t, err, errs.ErrMissingFee)
}

func TestSettle_MissingPaymentMethod(t *testing.T) {
	t.Parallel()
	loan := lentLoan(line("li-1", 10, 2, 0))

	_, err := service.Settle(loan, model.ReturnRequest{
		ReturnedBy: "Carlos",
		Items: []model.ReturnItemRequest{
			{ItemUid: "li-1", QuantityReturned: 2, Condition: model.ConditionDamaged, DamageFee: 50},
		},
	})
	require.ErrorIs(t, err, errs.ErrMissingPaymentMethod)
}

func TestSettle_OKNormalizesFeeAndPayment(t *testing.T) {
	t.Parallel()
	loan := lentLoan(line("li-1", 10, 2, 0))
	paid := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)

	res, err := service.Settle(loan, model.ReturnRequest{
		ReturnedBy: "Carlos",
		Items: []model.ReturnItemRequest{
			// Fee and payment sneak in with an OK condition; they must
			// be dropped, not persisted.
			{ItemUid: "li-1", QuantityReturned: 2, Condition: model.ConditionOK, DamageFee: 99, PaymentMethod: "PIX", PaymentDate: &paid},
		},
	})
	require.NoError(t, err)
	st := res.Settlements[0]
	require.Zero(t, st.DamageFee)
	require.Nil(t, st.PaymentMethod)
	require.Nil(t, st.PaymentDate)
}

func TestSettle_QuantityOutOfRange(t *testing.T) {
	t.Parallel()
	loan := lentLoan(line("li-1", 10, 2, 0))

	_, err := service.Settle(loan, model.ReturnRequest{
		ReturnedBy: "Carlos",
		Items: []model.ReturnItemRequest{
			{ItemUid: "li-1", QuantityReturned: 3, Condition: model.ConditionOK},
		},
	})
	require.ErrorIs(t, err, errs.ErrInvalidQuantity)
}

func TestSettle_CannotLowerRecordedReturn(t *testing.T) {
	t.Parallel()
	loan := lentLoan(line("li-1", 10, 5, 3))

	_, err := service.Settle(loan, model.ReturnRequest{
		ReturnedBy: "Carlos",
		Items: []model.ReturnItemRequest{
			{ItemUid: "li-1", QuantityReturned: 2, Condition: model.ConditionOK},
		},
	})
	require.ErrorIs(t, err, errs.ErrInvalidQuantity)
}

func TestSettle_SecondPartialReleasesDeltaOnly(t *testing.T) {
	t.Parallel()
	loan := lentLoan(line("li-1", 10, 5, 3))

	res, err := service.Settle(loan, model.ReturnRequest{
		ReturnedBy: "Carlos",
		Items: []model.ReturnItemRequest{
			{ItemUid: "li-1", QuantityReturned: 5, Condition: model.ConditionOK},
		},
	})
	require.NoError(t, err)
	require.Equal(t, model.StatusReturned, res.Status)
	require.Equal(t, 2, res.Settlements[0].ReleaseQuantity)
}

func TestSettle_UnknownLineItem(t *testing.T) {
	t.Parallel()
	loan := lentLoan(line("li-1", 10, 2, 0))

	_, err := service.Settle(loan, model.ReturnRequest{
		ReturnedBy: "Carlos",
		Items: []model.ReturnItemRequest{
			{ItemUid: "li-nope", QuantityReturned: 1, Condition: model.ConditionOK},
		},
	})
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestSettle_UntouchedLinesCountTowardStatus(t *testing.T) {
	t.Parallel()
	// Second line not in the submission and not fully returned: the
	// loan must stay open.
	loan := lentLoan(
		line("li-1", 10, 4, 0),
		line("li-2", 11, 3, 1),
	)

	res, err := service.Settle(loan, model.ReturnRequest{
		ReturnedBy: "Carlos",
		Items: []model.ReturnItemRequest{
			{ItemUid: "li-1", QuantityReturned: 4, Condition: model.ConditionOK},
		},
	})
	require.NoError(t, err)
	require.Equal(t, model.StatusLent, res.Status)
}
