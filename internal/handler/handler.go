package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.uber.org/zap"

	"github.com/arena-ops/loan-service/internal/errs"
	"github.com/arena-ops/loan-service/internal/model"
	"github.com/arena-ops/loan-service/pkg/validate"
)

type Handler struct {
	loanSvc LoanService
	log     *zap.Logger
}

func New(loanSvc LoanService, log *zap.Logger) *Handler {
	return &Handler{
		loanSvc: loanSvc,
		log:     log,
	}
}

func (h *Handler) NewRouter() *echo.Echo {
	e := echo.New()
	const (
		baseRPS = 10
		apiRPS  = 100
	)
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10, // 4 KB
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodOptions, http.MethodHead, http.MethodPut, http.MethodPatch, http.MethodPost, http.MethodDelete},
		AllowCredentials: true,
	}))

	base := e.Group("", newRateLimiterMW(baseRPS))
	base.GET("/manage/health", h.Health)
	base.GET("/swagger/*", echoSwagger.WrapHandler)

	e.Validator = validate.NewCustomValidator()
	api := e.Group("/api/v1",
		middleware.RequestLoggerWithConfig(requestLoggerConfig(h.log)),
		middleware.RequestID(),
		newRateLimiterMW(apiRPS),
	)

	api.GET("/items", h.ListItems)
	api.GET("/items/:itemId", h.GetItem)
	api.PUT("/items/:itemId/quantities", h.SetQuantities)

	api.GET("/loans", h.ListLoans)
	api.POST("/loans", h.CreateLoan)
	api.GET("/loans/:loanUid", h.GetLoan)
	api.PATCH("/loans/:loanUid", h.UpdateLoan)
	api.PUT("/loans/:loanUid/status", h.SetStatus)
	api.DELETE("/loans/:loanUid", h.DeleteLoan)
	api.POST("/loans/:loanUid/return", h.ProcessReturn)

	api.GET("/summary", h.Summary)

	return e
}

func (h *Handler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func (h *Handler) ListItems(c echo.Context) error {
	items, err := h.loanSvc.ListItems(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetItem(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("itemId"))
	if err != nil || id <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, errors.New("itemId is invalid"))
	}
	item, err := h.loanSvc.GetItem(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, item)
}

func (h *Handler) SetQuantities(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("itemId"))
	if err != nil || id <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, errors.New("itemId is invalid"))
	}
	var req model.SetQuantitiesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.loanSvc.SetQuantities(c.Request().Context(), id, req.QuantityTotal, req.QuantityAvailable); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusOK)
}

func (h *Handler) CreateLoan(c echo.Context) error {
	var req model.CreateLoanRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return err
	}
	loan, err := h.loanSvc.CreateLoan(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, loan)
}

func (h *Handler) ListLoans(c echo.Context) error {
	loans, err := h.loanSvc.ListLoans(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, loans)
}

func (h *Handler) GetLoan(c echo.Context) error {
	loanUid := c.Param("loanUid")
	loan, err := h.loanSvc.GetLoan(c.Request().Context(), loanUid)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, loanWithFee{Loan: loan, TotalDamageFee: loan.TotalDamageFee()})
}

// loanWithFee adds the derived fee total to the single-loan payload;
// it is computed, never stored.
type loanWithFee struct {
	model.Loan
	TotalDamageFee float64 `json:"totalDamageFee"`
}

func (h *Handler) UpdateLoan(c echo.Context) error {
	loanUid := c.Param("loanUid")
	var patch model.UpdateLoanRequest
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.loanSvc.UpdateLoan(c.Request().Context(), loanUid, patch); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusOK)
}

func (h *Handler) SetStatus(c echo.Context) error {
	loanUid := c.Param("loanUid")
	var req model.UpdateStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return err
	}
	if err := h.loanSvc.SetStatus(c.Request().Context(), loanUid, req.Status); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusOK)
}

func (h *Handler) DeleteLoan(c echo.Context) error {
	loanUid := c.Param("loanUid")
	if err := h.loanSvc.DeleteLoan(c.Request().Context(), loanUid); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ProcessReturn(c echo.Context) error {
	loanUid := c.Param("loanUid")
	var req model.ReturnRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return err
	}
	loan, err := h.loanSvc.ProcessReturn(c.Request().Context(), loanUid, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, loanWithFee{Loan: loan, TotalDamageFee: loan.TotalDamageFee()})
}

func (h *Handler) Summary(c echo.Context) error {
	sum, err := h.loanSvc.Summary(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sum)
}

// httpError maps the domain error taxonomy onto HTTP statuses; every
// store failure falls through as 500 unchanged.
func httpError(err error) *echo.HTTPError {
	var (
		stockErr *errs.InsufficientStockError
		valErr   *errs.ValidationError
	)
	switch {
	case errors.As(err, &stockErr):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.As(err, &valErr),
		errors.Is(err, errs.ErrInvalidQuantity),
		errors.Is(err, errs.ErrMissingFee),
		errors.Is(err, errs.ErrMissingPaymentMethod),
		errors.Is(err, errs.ErrItemsImmutable):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, errs.ErrLoanClosed):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, errs.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
