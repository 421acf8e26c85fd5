package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arena-ops/loan-service/internal/errs"
	"github.com/arena-ops/loan-service/internal/handler"
	"github.com/arena-ops/loan-service/internal/model"
	"github.com/arena-ops/loan-service/pkg/validate"

	service_mocks "github.com/arena-ops/loan-service/internal/handler/mocks"
)

const loanUid = "7a8b1c9e-0000-0000-0000-000000000001"

func TestHandler_CreateLoan(t *testing.T) {
	t.Parallel()
	type response struct {
		expectedCode int
		expectedBody string
	}
	type mockBehavior func(r *service_mocks.MockLoanService)

	loanDate := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	okReq := model.CreateLoanRequest{
		Company:       "SegurMax",
		RequesterName: "João Pereira",
		Location:      "Portão Norte",
		DeliveredBy:   "Ana",
		Items: []model.CreateLoanItem{
			{InventoryItemID: 2, Quantity: 4},
		},
	}

	var tests = []struct {
		name         string
		body         string
		mockBehavior mockBehavior
		response     response
		wantErr      bool
	}{
		{
			name: "ok",
			body: `{"company":"SegurMax","requesterName":"João Pereira","location":"Portão Norte","deliveredBy":"Ana","items":[{"inventoryItemId":2,"quantity":4}]}`,
			mockBehavior: func(r *service_mocks.MockLoanService) {
				r.EXPECT().
					CreateLoan(context.Background(), okReq).
					Return(model.Loan{
						ID:       1,
						LoanUid:  loanUid,
						Company:  "SegurMax",
						Location: "Portão Norte",
						LoanDate: loanDate,
						Status:   model.StatusLent,
						Items: []model.LoanItem{
							{
								ID:               1,
								ItemUid:          "li-0001",
								InventoryItemID:  2,
								Name:             "Rádio",
								Category:         "Comunicação",
								QuantityBorrowed: 4,
								Condition:        model.ConditionOK,
							},
						},
					}, nil)
			},
			response: response{
				expectedCode: http.StatusCreated,
				expectedBody: `{"id":1,"loanUid":"7a8b1c9e-0000-0000-0000-000000000001","company":"SegurMax","requesterName":"","requesterCpf":"","requesterPhone":"","location":"Portão Norte","deliveredBy":"","loanDate":"2024-05-10T12:00:00Z","expectedReturnDate":null,"actualReturnDate":null,"returnedBy":null,"notes":"","status":"emprestado","items":[{"id":1,"itemUid":"li-0001","inventoryItemId":2,"name":"Rádio","category":"Comunicação","quantityBorrowed":4,"quantityReturned":0,"condition":"OK","damageFee":0,"paymentMethod":null,"paymentDate":null,"notes":""}]}`,
			},
		},
		{
			name: "err. insufficient stock",
			body: `{"company":"SegurMax","requesterName":"João Pereira","location":"Portão Norte","deliveredBy":"Ana","items":[{"inventoryItemId":2,"quantity":4}]}`,
			mockBehavior: func(r *service_mocks.MockLoanService) {
				r.EXPECT().
					CreateLoan(context.Background(), okReq).
					Return(model.Loan{}, &errs.InsufficientStockError{
						ItemID: 2, ItemName: "Rádio", Requested: 4, Available: 3,
					})
			},
			response: response{
				expectedCode: http.StatusConflict,
				expectedBody: `{"message":"insufficient stock for \"Rádio\": available 3"}`,
			},
			wantErr: true,
		},
		{
			name:         "err. no items",
			body:         `{"company":"SegurMax","requesterName":"João Pereira","location":"Portão Norte","deliveredBy":"Ana"}`,
			mockBehavior: func(r *service_mocks.MockLoanService) {},
			response: response{
				expectedCode: http.StatusBadRequest,
				expectedBody: `{"message":"Key: 'CreateLoanRequest.Items' Error:Field validation for 'Items' failed on the 'required' tag"}`,
			},
			wantErr: true,
		},
		{
			name: "err. internal",
			body: `{"company":"SegurMax","requesterName":"João Pereira","location":"Portão Norte","deliveredBy":"Ana","items":[{"inventoryItemId":2,"quantity":4}]}`,
			mockBehavior: func(r *service_mocks.MockLoanService) {
				r.EXPECT().
					CreateLoan(context.Background(), okReq).
					Return(model.Loan{}, errors.New("db internal"))
			},
			response: response{
				expectedCode: http.StatusInternalServerError,
				expectedBody: `{"message":"db internal"}`,
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := gomock.NewController(t)
			defer c.Finish()
			svc := service_mocks.NewMockLoanService(c)
			log := zap.NewExample().Named("test")
			h := handler.New(svc, log)

			e := echo.New()
			e.Validator = validate.NewCustomValidator()
			e.POST("/loans", h.CreateLoan)

			r := httptest.NewRequest(http.MethodPost, "/loans", strings.NewReader(tt.body))
			r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			w := httptest.NewRecorder()

			tt.mockBehavior(svc)
			e.ServeHTTP(w, r)

			require.Equal(t, tt.response.expectedCode, w.Code)
			require.Equal(t, tt.response.expectedBody, strings.Trim(w.Body.String(), "\n"))
		})
	}
}

func TestHandler_ProcessReturn(t *testing.T) {
	t.Parallel()
	type response struct {
		expectedCode int
		expectedBody string
	}
	type mockBehavior func(r *service_mocks.MockLoanService)

	returnReq := model.ReturnRequest{
		ReturnedBy: "Carlos",
		Items: []model.ReturnItemRequest{
			{ItemUid: "li-0001", QuantityReturned: 2, Condition: model.ConditionDamaged, DamageFee: 150, PaymentMethod: "PIX"},
		},
	}
	body := `{"returnedBy":"Carlos","items":[{"itemUid":"li-0001","quantityReturned":2,"condition":"Danificado","damageFee":150,"paymentMethod":"PIX"}]}`

	var tests = []struct {
		name         string
		body         string
		mockBehavior mockBehavior
		response     response
		wantErr      bool
	}{
		{
			name: "ok. damaged return",
			body: body,
			mockBehavior: func(r *service_mocks.MockLoanService) {
				method := "PIX"
				r.EXPECT().
					ProcessReturn(context.Background(), loanUid, returnReq).
					Return(model.Loan{
						ID:      1,
						LoanUid: loanUid,
						Status:  model.StatusDamaged,
						Items: []model.LoanItem{
							{
								ID:               1,
								ItemUid:          "li-0001",
								InventoryItemID:  2,
								QuantityBorrowed: 2,
								QuantityReturned: 2,
								Condition:        model.ConditionDamaged,
								DamageFee:        150,
								PaymentMethod:    &method,
							},
						},
					}, nil)
			},
			response: response{
				expectedCode: http.StatusOK,
				expectedBody: `{"id":1,"loanUid":"7a8b1c9e-0000-0000-0000-000000000001","company":"","requesterName":"","requesterCpf":"","requesterPhone":"","location":"","deliveredBy":"","loanDate":"0001-01-01T00:00:00Z","expectedReturnDate":null,"actualReturnDate":null,"returnedBy":null,"notes":"","status":"perdido_danificado","items":[{"id":1,"itemUid":"li-0001","inventoryItemId":2,"name":"","category":"","quantityBorrowed":2,"quantityReturned":2,"condition":"Danificado","damageFee":150,"paymentMethod":"PIX","paymentDate":null,"notes":""}],"totalDamageFee":150}`,
			},
		},
		{
			name: "err. missing fee",
			body: `{"returnedBy":"Carlos","items":[{"itemUid":"li-0001","quantityReturned":2,"condition":"Danificado"}]}`,
			mockBehavior: func(r *service_mocks.MockLoanService) {
				r.EXPECT().
					ProcessReturn(context.Background(), loanUid, model.ReturnRequest{
						ReturnedBy: "Carlos",
						Items: []model.ReturnItemRequest{
							{ItemUid: "li-0001", QuantityReturned: 2, Condition: model.ConditionDamaged},
						},
					}).
					Return(model.Loan{}, errs.ErrMissingFee)
			},
			response: response{
				expectedCode: http.StatusBadRequest,
				expectedBody: `{"message":"damage fee is required for a damaged or lost item"}`,
			},
			wantErr: true,
		},
		{
			name: "err. loan closed",
			body: body,
			mockBehavior: func(r *service_mocks.MockLoanService) {
				r.EXPECT().
					ProcessReturn(context.Background(), loanUid, returnReq).
					Return(model.Loan{}, errs.ErrLoanClosed)
			},
			response: response{
				expectedCode: http.StatusConflict,
				expectedBody: `{"message":"loan is closed, no further returns permitted"}`,
			},
			wantErr: true,
		},
		{
			name: "err. not found",
			body: body,
			mockBehavior: func(r *service_mocks.MockLoanService) {
				r.EXPECT().
					ProcessReturn(context.Background(), loanUid, returnReq).
					Return(model.Loan{}, errs.ErrNotFound)
			},
			response: response{
				expectedCode: http.StatusNotFound,
				expectedBody: `{"message":"not found"}`,
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := gomock.NewController(t)
			defer c.Finish()
			svc := service_mocks.NewMockLoanService(c)
			log := zap.NewExample().Named("test")
			h := handler.New(svc, log)

			e := echo.New()
			e.Validator = validate.NewCustomValidator()
			e.POST("/loans/:loanUid/return", h.ProcessReturn)

			r := httptest.NewRequest(http.MethodPost, "/loans/"+loanUid+"/return", strings.NewReader(tt.body))
			r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			w := httptest.NewRecorder()

			tt.mockBehavior(svc)
			e.ServeHTTP(w, r)

			require.Equal(t, tt.response.expectedCode, w.Code)
			require.Equal(t, tt.response.expectedBody, strings.Trim(w.Body.String(), "\n"))
		})
	}
}

func TestHandler_DeleteLoan(t *testing.T) {
	t.Parallel()
	c := gomock.NewController(t)
	defer c.Finish()
	svc := service_mocks.NewMockLoanService(c)
	h := handler.New(svc, zap.NewExample().Named("test"))

	e := echo.New()
	e.DELETE("/loans/:loanUid", h.DeleteLoan)

	svc.EXPECT().DeleteLoan(context.Background(), loanUid).Return(nil)
	r := httptest.NewRequest(http.MethodDelete, "/loans/"+loanUid, http.NoBody)
	w := httptest.NewRecorder()
	e.ServeHTTP(w, r)
	require.Equal(t, http.StatusNoContent, w.Code)

	svc.EXPECT().DeleteLoan(context.Background(), loanUid).Return(errs.ErrNotFound)
	r = httptest.NewRequest(http.MethodDelete, "/loans/"+loanUid, http.NoBody)
	w = httptest.NewRecorder()
	e.ServeHTTP(w, r)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_SetQuantities(t *testing.T) {
	t.Parallel()
	c := gomock.NewController(t)
	defer c.Finish()
	svc := service_mocks.NewMockLoanService(c)
	h := handler.New(svc, zap.NewExample().Named("test"))

	e := echo.New()
	e.PUT("/items/:itemId/quantities", h.SetQuantities)

	svc.EXPECT().SetQuantities(context.Background(), 7, 5, 8).Return(errs.ErrInvalidQuantity)
	r := httptest.NewRequest(http.MethodPut, "/items/7/quantities",
		strings.NewReader(`{"quantityTotal":5,"quantityAvailable":8}`))
	r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	w := httptest.NewRecorder()
	e.ServeHTTP(w, r)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, `{"message":"invalid quantity"}`, strings.Trim(w.Body.String(), "\n"))

	svc.EXPECT().SetQuantities(context.Background(), 7, 10, 8).Return(nil)
	r = httptest.NewRequest(http.MethodPut, "/items/7/quantities",
		strings.NewReader(`{"quantityTotal":10,"quantityAvailable":8}`))
	r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	w = httptest.NewRecorder()
	e.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	r = httptest.NewRequest(http.MethodPut, "/items/abc/quantities",
		strings.NewReader(`{"quantityTotal":10,"quantityAvailable":8}`))
	r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	w = httptest.NewRecorder()
	e.ServeHTTP(w, r)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
