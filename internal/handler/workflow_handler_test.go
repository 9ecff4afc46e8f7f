package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/service-order-api/internal/dto"
	"github.com/noah-isme/service-order-api/internal/middleware"
	"github.com/noah-isme/service-order-api/internal/models"
	"github.com/noah-isme/service-order-api/internal/repository"
	"github.com/noah-isme/service-order-api/internal/service"
	appErrors "github.com/noah-isme/service-order-api/pkg/errors"
	"github.com/noah-isme/service-order-api/pkg/lock"
)

type apiFixture struct {
	router *gin.Engine
	store  *repository.MemoryStore
	auth   *service.AuthService
	locker *lock.Local
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := repository.NewMemoryStore()
	ref := repository.NewMemoryReference()
	ref.PutDepartment(models.Department{ID: "dep-mech", Name: "Mechanical"})
	ref.PutSector(models.Sector{ID: "sec-weld", DepartmentID: "dep-mech", Name: "Welding"})
	store.PutOrder(models.ServiceOrder{Number: "OS-100", Customer: "ACME", Status: models.OrderStatusOpen})

	locker := lock.NewLocal(20 * time.Millisecond)
	readModel := service.NewReadModelService(store, nil, 0, nil)
	engine := service.NewEngine(store, service.NewCatalogService(ref, nil, 0, nil), nil,
		service.WithLocker(locker), service.WithReadModel(readModel))
	auth := service.NewAuthService(service.AuthConfig{AccessTokenSecret: "test-secret"})

	r := gin.New()
	api := r.Group("/api/v1", middleware.JWT(auth))
	RegisterRoutes(api, NewWorkflowHandler(engine), NewOrderHandler(readModel))
	return &apiFixture{router: r, store: store, auth: auth, locker: locker}
}

func (f *apiFixture) do(t *testing.T, actor models.Actor, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	token, _, err := f.auth.IssueToken(actor, "")
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	var envelope map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	}
	return w, envelope
}

var (
	apiWorker = models.Actor{UserID: "w-1", SectorID: "sec-weld", Role: models.RoleWorker}
	apiLead   = models.Actor{UserID: "s-1", SectorID: "sec-weld", Role: models.RoleSupervisor}
	apiAdmin  = models.Actor{UserID: "a-1", Role: models.RoleAdmin}
)

func TestWorkflowAPIOpenCloseApprove(t *testing.T) {
	f := newAPIFixture(t)

	w, body := f.do(t, apiWorker, http.MethodPost, "/api/v1/orders/OS-100/time-entries", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	data := body["data"].(map[string]interface{})
	entryID := data["entity"].(map[string]interface{})["id"].(string)
	cascades := data["cascades"].([]interface{})
	require.Len(t, cascades, 2)
	assert.Equal(t, "order_start", cascades[1].(map[string]interface{})["step"])

	w, body = f.do(t, apiWorker, http.MethodPost, "/api/v1/time-entries/"+entryID+"/close", dto.CloseTimeEntryRequest{
		Stages: models.StageFlags{Initial: true, Partial: true, Final: true},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	order, _ := f.store.Order("OS-100")
	assert.Equal(t, models.OrderStatusAwaitingTests, order.Status)

	w, _ = f.do(t, apiWorker, http.MethodPost, "/api/v1/time-entries/"+entryID+"/approve", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = f.do(t, apiLead, http.MethodPost, "/api/v1/time-entries/"+entryID+"/approve", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, body = f.do(t, apiLead, http.MethodPost, "/api/v1/time-entries/"+entryID+"/approve", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, appErrors.ErrInvalidState.Code, body["error"].(map[string]interface{})["code"])
}

func TestWorkflowAPIErrorMapping(t *testing.T) {
	f := newAPIFixture(t)

	w, _ := f.do(t, apiWorker, http.MethodPost, "/api/v1/orders/OS-404/time-entries", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = f.do(t, apiWorker, http.MethodPost, "/api/v1/orders/OS-100/status", dto.SetOrderStatusRequest{Status: models.OrderStatusCancelled})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, body := f.do(t, apiAdmin, http.MethodPost, "/api/v1/orders/OS-100/status", dto.SetOrderStatusRequest{Status: models.OrderStatusClosedAccepted})
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
	assert.Contains(t, body["error"].(map[string]interface{})["message"], "initial_tests_done")

	w, _ = f.do(t, apiLead, http.MethodPost, "/api/v1/schedules/sch-1/cancel", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	release, err := f.locker.Acquire(context.Background(), "OS-100")
	require.NoError(t, err)
	w, body = f.do(t, apiWorker, http.MethodPost, "/api/v1/orders/OS-100/time-entries", nil)
	release()
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, appErrors.ErrBusy.Code, body["error"].(map[string]interface{})["code"])
}

func TestWorkflowAPIRejectsMalformedBody(t *testing.T) {
	f := newAPIFixture(t)

	token, _, err := f.auth.IssueToken(apiLead, "")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/OS-100/schedules", bytes.NewBufferString(`{"sectorId":`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOrderAPIReadModel(t *testing.T) {
	f := newAPIFixture(t)
	f.store.PutOrder(models.ServiceOrder{Number: "OS-200", Customer: "Globex", Status: models.OrderStatusBlocked, Priority: 9})

	w, body := f.do(t, apiWorker, http.MethodGet, "/api/v1/orders?status=blocked&limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	items := body["data"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, "OS-200", items[0].(map[string]interface{})["number"])
	assert.EqualValues(t, 10, body["pagination"].(map[string]interface{})["limit"])

	w, _ = f.do(t, apiWorker, http.MethodGet, "/api/v1/orders?status=DONE", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = f.do(t, apiWorker, http.MethodGet, "/api/v1/orders?minPriority=high", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = f.do(t, apiWorker, http.MethodGet, "/api/v1/orders/OS-100", nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := body["data"].(map[string]interface{})
	assert.Equal(t, "ACME", view["order"].(map[string]interface{})["customer"])
	assert.Empty(t, view["timeEntries"])

	w, _ = f.do(t, apiWorker, http.MethodGet, "/api/v1/orders/OS-404", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestActorFromContextWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)

	NewWorkflowHandler(nil).ApproveTimeEntry(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
