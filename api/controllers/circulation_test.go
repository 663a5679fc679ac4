package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/librisforge/libris-backend/internal/circulation"
	"github.com/librisforge/libris-backend/pkg/db/models"
	"github.com/librisforge/libris-backend/pkg/enums"
	pkgerrors "github.com/librisforge/libris-backend/pkg/errors"
	"github.com/librisforge/libris-backend/pkg/types"
)

type testCirculationService struct {
	checkoutFn          func(ctx context.Context, input circulation.CheckoutInput) (*models.Loan, error)
	returnFn            func(ctx context.Context, input circulation.ReturnInput) (*circulation.ReturnResult, error)
	reserveFn           func(ctx context.Context, bookID, memberID uuid.UUID) (*models.Reservation, error)
	cancelReservationFn func(ctx context.Context, reservationID uuid.UUID) (*models.Reservation, error)
	computeFineFn       func(ctx context.Context, loanID uuid.UUID, asOf types.Date) (*circulation.FineResult, error)
	memberLoansFn       func(ctx context.Context, memberID uuid.UUID, asOf types.Date) ([]circulation.LoanView, error)
	memberFinesFn       func(ctx context.Context, memberID uuid.UUID, asOf types.Date) (*circulation.MemberFinesSummary, error)
}

func (s *testCirculationService) Checkout(ctx context.Context, input circulation.CheckoutInput) (*models.Loan, error) {
	if s.checkoutFn != nil {
		return s.checkoutFn(ctx, input)
	}
	return nil, nil
}

func (s *testCirculationService) Return(ctx context.Context, input circulation.ReturnInput) (*circulation.ReturnResult, error) {
	if s.returnFn != nil {
		return s.returnFn(ctx, input)
	}
	return nil, nil
}

func (s *testCirculationService) Reserve(ctx context.Context, bookID, memberID uuid.UUID) (*models.Reservation, error) {
	if s.reserveFn != nil {
		return s.reserveFn(ctx, bookID, memberID)
	}
	return nil, nil
}

func (s *testCirculationService) CancelReservation(ctx context.Context, reservationID uuid.UUID) (*models.Reservation, error) {
	if s.cancelReservationFn != nil {
		return s.cancelReservationFn(ctx, reservationID)
	}
	return nil, nil
}

func (s *testCirculationService) ComputeFine(ctx context.Context, loanID uuid.UUID, asOf types.Date) (*circulation.FineResult, error) {
	if s.computeFineFn != nil {
		return s.computeFineFn(ctx, loanID, asOf)
	}
	return nil, nil
}

func (s *testCirculationService) MemberLoans(ctx context.Context, memberID uuid.UUID, asOf types.Date) ([]circulation.LoanView, error) {
	if s.memberLoansFn != nil {
		return s.memberLoansFn(ctx, memberID, asOf)
	}
	return nil, nil
}

func (s *testCirculationService) MemberFines(ctx context.Context, memberID uuid.UUID, asOf types.Date) (*circulation.MemberFinesSummary, error) {
	if s.memberFinesFn != nil {
		return s.memberFinesFn(ctx, memberID, asOf)
	}
	return nil, nil
}

func (s *testCirculationService) ExpireReservations(ctx context.Context, now time.Time, limit int) (int, error) {
	return 0, nil
}

func (s *testCirculationService) EmitOverdueEvents(ctx context.Context, asOf types.Date, limit int) (int, error) {
	return 0, nil
}

func TestCheckoutLoanSuccess(t *testing.T) {
	bookID := uuid.New()
	memberID := uuid.New()
	svc := &testCirculationService{
		checkoutFn: func(ctx context.Context, input circulation.CheckoutInput) (*models.Loan, error) {
			if input.BookID != bookID || input.MemberID != memberID {
				t.Fatalf("unexpected input %+v", input)
			}
			if input.Copies != 2 {
				t.Fatalf("expected 2 copies got %d", input.Copies)
			}
			return &models.Loan{
				ID:         uuid.New(),
				BookID:     input.BookID,
				MemberID:   input.MemberID,
				CopiesLent: input.Copies,
				IssuedDate: types.NewDate(2026, time.March, 1),
				DueDate:    types.NewDate(2026, time.March, 8),
				FinePerDay: decimal.RequireFromString("100.00"),
				Status:     enums.LoanStatusBorrowed,
			}, nil
		},
	}

	body := `{"book_id":"` + bookID.String() + `","member_id":"` + memberID.String() + `","copies":2}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/loans", strings.NewReader(body))
	resp := httptest.NewRecorder()
	CheckoutLoan(svc, testLogger())(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data loanResponse `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data.Status != enums.LoanStatusBorrowed {
		t.Fatalf("unexpected status %s", envelope.Data.Status)
	}
	if !envelope.Data.DueDate.Equal(types.NewDate(2026, time.March, 8)) {
		t.Fatalf("unexpected due date %s", envelope.Data.DueDate)
	}
}

func TestCheckoutLoanRejectsMissingFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/loans", strings.NewReader(`{"copies":1}`))
	resp := httptest.NewRecorder()
	CheckoutLoan(&testCirculationService{}, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCheckoutLoanRejectsBadIssuedDate(t *testing.T) {
	body := `{"book_id":"` + uuid.NewString() + `","member_id":"` + uuid.NewString() + `","copies":1,"issued_date":"03/01/2026"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/loans", strings.NewReader(body))
	resp := httptest.NewRecorder()
	CheckoutLoan(&testCirculationService{}, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCheckoutLoanMapsInsufficientCopies(t *testing.T) {
	svc := &testCirculationService{
		checkoutFn: func(ctx context.Context, input circulation.CheckoutInput) (*models.Loan, error) {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientCopies, "only 1 of 3 copies available")
		},
	}
	body := `{"book_id":"` + uuid.NewString() + `","member_id":"` + uuid.NewString() + `","copies":3}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/loans", strings.NewReader(body))
	resp := httptest.NewRecorder()
	CheckoutLoan(svc, testLogger())(resp, req)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
}

func TestReturnLoanSuccess(t *testing.T) {
	loanID := uuid.New()
	svc := &testCirculationService{
		returnFn: func(ctx context.Context, input circulation.ReturnInput) (*circulation.ReturnResult, error) {
			if input.LoanID != loanID {
				t.Fatalf("unexpected loan id %s", input.LoanID)
			}
			returned := types.NewDate(2026, time.March, 10)
			return &circulation.ReturnResult{
				Loan: &models.Loan{
					ID:           loanID,
					Status:       enums.LoanStatusReturned,
					ReturnedDate: &returned,
					FinePerDay:   decimal.RequireFromString("10.00"),
				},
				FineAmount:  decimal.RequireFromString("20.00"),
				OverdueDays: 2,
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/loans/"+loanID.String()+"/return", strings.NewReader(`{"returned_date":"2026-03-10"}`))
	req = addRouteParam(req, "loanId", loanID.String())
	resp := httptest.NewRecorder()
	ReturnLoan(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data returnResponse `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data.OverdueDays != 2 {
		t.Fatalf("unexpected overdue days %d", envelope.Data.OverdueDays)
	}
	if !envelope.Data.FineAmount.Equal(decimal.RequireFromString("20.00")) {
		t.Fatalf("unexpected fine %s", envelope.Data.FineAmount)
	}
}

func TestReturnLoanRejectsInvalidID(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/loans/bogus/return", strings.NewReader(`{}`))
	req = addRouteParam(req, "loanId", "bogus")
	resp := httptest.NewRecorder()
	ReturnLoan(&testCirculationService{}, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestReturnLoanMapsStateConflict(t *testing.T) {
	loanID := uuid.New()
	svc := &testCirculationService{
		returnFn: func(ctx context.Context, input circulation.ReturnInput) (*circulation.ReturnResult, error) {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "loan is already returned")
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/loans/"+loanID.String()+"/return", strings.NewReader(`{}`))
	req = addRouteParam(req, "loanId", loanID.String())
	resp := httptest.NewRecorder()
	ReturnLoan(svc, testLogger())(resp, req)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
}

func TestLoanFinePassesAsOf(t *testing.T) {
	loanID := uuid.New()
	svc := &testCirculationService{
		computeFineFn: func(ctx context.Context, id uuid.UUID, asOf types.Date) (*circulation.FineResult, error) {
			if id != loanID {
				t.Fatalf("unexpected loan id %s", id)
			}
			if !asOf.Equal(types.NewDate(2026, time.April, 1)) {
				t.Fatalf("unexpected as_of %s", asOf)
			}
			return &circulation.FineResult{LoanID: id, AsOf: asOf, FineAmount: decimal.Zero}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/loans/"+loanID.String()+"/fine?as_of=2026-04-01", nil)
	req = addRouteParam(req, "loanId", loanID.String())
	resp := httptest.NewRecorder()
	LoanFine(svc, testLogger())(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
}

func TestLoanFineRejectsBadAsOf(t *testing.T) {
	loanID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/loans/"+loanID.String()+"/fine?as_of=yesterday", nil)
	req = addRouteParam(req, "loanId", loanID.String())
	resp := httptest.NewRecorder()
	LoanFine(&testCirculationService{}, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestMemberLoansDefaultsAsOfToToday(t *testing.T) {
	memberID := uuid.New()
	svc := &testCirculationService{
		memberLoansFn: func(ctx context.Context, id uuid.UUID, asOf types.Date) ([]circulation.LoanView, error) {
			if !asOf.Equal(types.Today()) {
				t.Fatalf("expected today got %s", asOf)
			}
			return []circulation.LoanView{}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/members/"+memberID.String()+"/loans", nil)
	req = addRouteParam(req, "memberId", memberID.String())
	resp := httptest.NewRecorder()
	MemberLoans(svc, testLogger())(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestMemberFinesSuccess(t *testing.T) {
	memberID := uuid.New()
	svc := &testCirculationService{
		memberFinesFn: func(ctx context.Context, id uuid.UUID, asOf types.Date) (*circulation.MemberFinesSummary, error) {
			return &circulation.MemberFinesSummary{
				MemberID:    id,
				AsOf:        asOf,
				TotalAmount: decimal.RequireFromString("30.00"),
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/members/"+memberID.String()+"/fines", nil)
	req = addRouteParam(req, "memberId", memberID.String())
	resp := httptest.NewRecorder()
	MemberFines(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	var envelope struct {
		Data circulation.MemberFinesSummary `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !envelope.Data.TotalAmount.Equal(decimal.RequireFromString("30.00")) {
		t.Fatalf("unexpected total %s", envelope.Data.TotalAmount)
	}
}

func TestCreateReservationSuccess(t *testing.T) {
	bookID := uuid.New()
	memberID := uuid.New()
	svc := &testCirculationService{
		reserveFn: func(ctx context.Context, b, m uuid.UUID) (*models.Reservation, error) {
			if b != bookID || m != memberID {
				t.Fatalf("unexpected args %s %s", b, m)
			}
			return &models.Reservation{
				ID:       uuid.New(),
				BookID:   b,
				MemberID: m,
				Position: 1,
				Status:   enums.ReservationStatusWaiting,
			}, nil
		},
	}

	body := `{"book_id":"` + bookID.String() + `","member_id":"` + memberID.String() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reservations", strings.NewReader(body))
	resp := httptest.NewRecorder()
	CreateReservation(svc, testLogger())(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data reservationResponse `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data.Position != 1 {
		t.Fatalf("unexpected position %d", envelope.Data.Position)
	}
}

func TestCreateReservationMapsAlreadyAvailable(t *testing.T) {
	svc := &testCirculationService{
		reserveFn: func(ctx context.Context, b, m uuid.UUID) (*models.Reservation, error) {
			return nil, pkgerrors.New(pkgerrors.CodeAlreadyAvailable, "copies are currently available")
		},
	}
	body := `{"book_id":"` + uuid.NewString() + `","member_id":"` + uuid.NewString() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reservations", strings.NewReader(body))
	resp := httptest.NewRecorder()
	CreateReservation(svc, testLogger())(resp, req)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
}

func TestCancelReservationMapsResolvedConflict(t *testing.T) {
	reservationID := uuid.New()
	svc := &testCirculationService{
		cancelReservationFn: func(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "reservation is fulfilled and can no longer be withdrawn")
		},
	}
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/reservations/"+reservationID.String(), nil)
	req = addRouteParam(req, "reservationId", reservationID.String())
	resp := httptest.NewRecorder()
	CancelReservation(svc, testLogger())(resp, req)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
}
