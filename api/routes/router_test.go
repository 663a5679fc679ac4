package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/librisforge/libris-backend/internal/circulation"
	"github.com/librisforge/libris-backend/internal/inventory"
	"github.com/librisforge/libris-backend/internal/notifications"
	"github.com/librisforge/libris-backend/pkg/config"
	"github.com/librisforge/libris-backend/pkg/db/models"
	"github.com/librisforge/libris-backend/pkg/enums"
	pkgerrors "github.com/librisforge/libris-backend/pkg/errors"
	"github.com/librisforge/libris-backend/pkg/logger"
	"github.com/librisforge/libris-backend/pkg/types"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type stubCirculationService struct{}

func (stubCirculationService) Checkout(ctx context.Context, input circulation.CheckoutInput) (*models.Loan, error) {
	return &models.Loan{
		ID:         uuid.New(),
		BookID:     input.BookID,
		MemberID:   input.MemberID,
		CopiesLent: input.Copies,
		Status:     enums.LoanStatusBorrowed,
	}, nil
}

func (stubCirculationService) Return(ctx context.Context, input circulation.ReturnInput) (*circulation.ReturnResult, error) {
	return &circulation.ReturnResult{Loan: &models.Loan{ID: input.LoanID, Status: enums.LoanStatusReturned}}, nil
}

func (stubCirculationService) Reserve(ctx context.Context, bookID, memberID uuid.UUID) (*models.Reservation, error) {
	return &models.Reservation{ID: uuid.New(), BookID: bookID, MemberID: memberID, Position: 1, Status: enums.ReservationStatusWaiting}, nil
}

func (stubCirculationService) CancelReservation(ctx context.Context, reservationID uuid.UUID) (*models.Reservation, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
}

func (stubCirculationService) ComputeFine(ctx context.Context, loanID uuid.UUID, asOf types.Date) (*circulation.FineResult, error) {
	return &circulation.FineResult{LoanID: loanID, AsOf: asOf}, nil
}

func (stubCirculationService) MemberLoans(ctx context.Context, memberID uuid.UUID, asOf types.Date) ([]circulation.LoanView, error) {
	return []circulation.LoanView{}, nil
}

func (stubCirculationService) MemberFines(ctx context.Context, memberID uuid.UUID, asOf types.Date) (*circulation.MemberFinesSummary, error) {
	return &circulation.MemberFinesSummary{MemberID: memberID, AsOf: asOf}, nil
}

func (stubCirculationService) ExpireReservations(ctx context.Context, now time.Time, limit int) (int, error) {
	return 0, nil
}

func (stubCirculationService) EmitOverdueEvents(ctx context.Context, asOf types.Date, limit int) (int, error) {
	return 0, nil
}

type stubInventoryService struct{}

func (s stubInventoryService) WithTx(tx *gorm.DB) inventory.Service { return s }

func (stubInventoryService) Get(ctx context.Context, bookID uuid.UUID) (*models.BookInventory, error) {
	return &models.BookInventory{BookID: bookID, TotalCopies: 2, AvailableCopies: 1}, nil
}

func (stubInventoryService) SetTotal(ctx context.Context, bookID uuid.UUID, total int) (*models.BookInventory, error) {
	return &models.BookInventory{BookID: bookID, TotalCopies: total, AvailableCopies: total}, nil
}

func (stubInventoryService) AddCopies(ctx context.Context, bookID uuid.UUID, qty int) (*models.BookInventory, error) {
	return &models.BookInventory{BookID: bookID, TotalCopies: qty, AvailableCopies: qty}, nil
}

func (stubInventoryService) Reserve(ctx context.Context, bookID uuid.UUID, qty int) error {
	return nil
}

func (stubInventoryService) Release(ctx context.Context, bookID uuid.UUID, qty int) error {
	return nil
}

type stubNotificationsService struct{}

func (stubNotificationsService) List(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
	return &notifications.ListResult{Items: []models.Notification{}}, nil
}

func (stubNotificationsService) MarkRead(ctx context.Context, memberID, notificationID uuid.UUID) error {
	return nil
}

func (stubNotificationsService) MarkAllRead(ctx context.Context, memberID uuid.UUID) (int64, error) {
	return 0, nil
}

func testConfig() *config.Config {
	return &config.Config{App: config.AppConfig{Env: "test", Port: "8080"}}
}

func newTestRouter(cfg *config.Config) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	return NewRouter(
		cfg,
		logg,
		stubPinger{},
		stubPinger{},
		stubCirculationService{},
		stubInventoryService{},
		stubNotificationsService{},
	)
}

func TestHealthEndpoints(t *testing.T) {
	router := newTestRouter(testConfig())

	for _, path := range []string{"/health/live", "/health/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("%s returned %d", path, resp.Code)
		}
		if got := resp.Header().Get("X-Libris-Env"); got != "test" {
			t.Fatalf("%s missing env header, got %q", path, got)
		}
	}
}

func TestCheckoutRouteWired(t *testing.T) {
	router := newTestRouter(testConfig())

	body := `{"book_id":"` + uuid.NewString() + `","member_id":"` + uuid.NewString() + `","copies":1}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/loans", strings.NewReader(body))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestLoanSubroutesWired(t *testing.T) {
	router := newTestRouter(testConfig())
	loanID := uuid.NewString()

	ret := httptest.NewRequest(http.MethodPost, "/api/v1/loans/"+loanID+"/return", strings.NewReader(`{}`))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, ret)
	if resp.Code != http.StatusOK {
		t.Fatalf("return route returned %d: %s", resp.Code, resp.Body.String())
	}

	fine := httptest.NewRequest(http.MethodGet, "/api/v1/loans/"+loanID+"/fine", nil)
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, fine)
	if resp.Code != http.StatusOK {
		t.Fatalf("fine route returned %d: %s", resp.Code, resp.Body.String())
	}
}

func TestReservationRoutesWired(t *testing.T) {
	router := newTestRouter(testConfig())

	body := `{"book_id":"` + uuid.NewString() + `","member_id":"` + uuid.NewString() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reservations", strings.NewReader(body))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}

	del := httptest.NewRequest(http.MethodDelete, "/api/v1/reservations/"+uuid.NewString(), nil)
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, del)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 from stub got %d", resp.Code)
	}
}

func TestInventoryRoutesWired(t *testing.T) {
	router := newTestRouter(testConfig())
	bookID := uuid.NewString()

	get := httptest.NewRequest(http.MethodGet, "/api/v1/books/"+bookID+"/availability", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, get)
	if resp.Code != http.StatusOK {
		t.Fatalf("availability route returned %d: %s", resp.Code, resp.Body.String())
	}

	var envelope struct {
		Data struct {
			AvailableCopies int `json:"available_copies"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data.AvailableCopies != 1 {
		t.Fatalf("unexpected payload %s", resp.Body.String())
	}

	put := httptest.NewRequest(http.MethodPut, "/api/v1/books/"+bookID+"/inventory", strings.NewReader(`{"total_copies":4}`))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, put)
	if resp.Code != http.StatusOK {
		t.Fatalf("inventory route returned %d: %s", resp.Code, resp.Body.String())
	}

	add := httptest.NewRequest(http.MethodPost, "/api/v1/books/"+bookID+"/copies", strings.NewReader(`{"copies":2}`))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, add)
	if resp.Code != http.StatusOK {
		t.Fatalf("copies route returned %d: %s", resp.Code, resp.Body.String())
	}
}

func TestMemberRoutesWired(t *testing.T) {
	router := newTestRouter(testConfig())
	memberID := uuid.NewString()

	for _, path := range []string{
		"/api/v1/members/" + memberID + "/loans",
		"/api/v1/members/" + memberID + "/fines",
		"/api/v1/members/" + memberID + "/notifications",
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("%s returned %d: %s", path, resp.Code, resp.Body.String())
		}
	}

	markAll := httptest.NewRequest(http.MethodPost, "/api/v1/members/"+memberID+"/notifications/read-all", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, markAll)
	if resp.Code != http.StatusOK {
		t.Fatalf("read-all returned %d", resp.Code)
	}
}
