package routes_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	handlers "zoomgo/internal/handlers/shared"
	"zoomgo/internal/models"
	"zoomgo/internal/repositories/interfaces"
	"zoomgo/internal/repositories/memory"
	"zoomgo/internal/services"
	"zoomgo/internal/utils"
	"zoomgo/pkg/auth"
	"zoomgo/pkg/logger"
	"zoomgo/pkg/websocket"
	"zoomgo/routes"

	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "routes-test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Meta   *utils.Meta     `json:"meta"`
	Error  *utils.APIError `json:"error"`
}

type recordingNotifier struct {
	lock     sync.Mutex
	approved []*models.Booking
	devices  map[string]string
}

func (n *recordingNotifier) NotifyApproved(_ context.Context, booking *models.Booking) error {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.approved = append(n.approved, booking)
	return errors.New("push provider offline")
}

func (n *recordingNotifier) RegisterDevice(_ context.Context, riderID, pushToken string) error {
	n.lock.Lock()
	defer n.lock.Unlock()
	if n.devices == nil {
		n.devices = map[string]string{}
	}
	n.devices[riderID] = pushToken
	return nil
}

func (n *recordingNotifier) approvedCount() int {
	n.lock.Lock()
	defer n.lock.Unlock()
	return len(n.approved)
}

// failingQueryStore fails every Query with a store error.
type failingQueryStore struct {
	interfaces.DocumentStore
}

func (failingQueryStore) Query(context.Context, string, interfaces.Predicate) ([]interfaces.Document, error) {
	return nil, errors.New("connection refused")
}

type testAPI struct {
	router   *gin.Engine
	notifier *recordingNotifier
	hub      *websocket.Hub
}

func newAPI(t *testing.T, store interfaces.DocumentStore) *testAPI {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	log := logger.Discard()
	authn := auth.ContextAuthenticator{}
	ledger := services.NewBookingLedger(store, authn, log)
	profiles := services.NewProfileService(store, authn, services.StandardProfilePolicy(), log)
	notifier := &recordingNotifier{}

	hub := websocket.NewHub(log)
	go hub.Run(ctx)

	router := gin.New()
	routes.SetupRoutes(router, routes.Handlers{
		Bookings: handlers.NewBookingHandler(ledger, notifier, hub, 5*time.Second, log),
		Profiles: handlers.NewProfileHandler(profiles, notifier, 5*time.Second, log),
		Streams:  handlers.NewStreamHandler(ledger, websocket.NewHandler(hub, websocket.Config{}, log), log),
		Health: handlers.NewHealthHandler(map[string]handlers.HealthCheck{
			"store": func(context.Context) error { return nil },
		}, time.Second),
	}, routes.Options{
		Verifier:       auth.NewJWTVerifier(testSecret),
		AllowedOrigins: []string{"*"},
		Logger:         log,
	})

	return &testAPI{router: router, notifier: notifier, hub: hub}
}

func token(t *testing.T, riderID string) string {
	t.Helper()
	signed, err := auth.IssueToken(riderID, "", testSecret, "zoomgo-test", time.Hour)
	require.NoError(t, err)
	return signed
}

func (a *testAPI) do(t *testing.T, method, path, riderID, body string) (int, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if riderID != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, riderID))
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var resp envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w.Code, resp
}

func decodeBooking(t *testing.T, raw json.RawMessage) models.Booking {
	t.Helper()
	var booking models.Booking
	require.NoError(t, json.Unmarshal(raw, &booking))
	return booking
}

func TestBookings_RequestAndList(t *testing.T) {
	api := newAPI(t, memory.NewDocumentStore())

	code, resp := api.do(t, http.MethodPost, "/api/v1/bookings", "rider-1",
		`{"pickup":" 5th Ave ","destination":"Airport","rideType":"Standard"}`)
	require.Equal(t, http.StatusCreated, code)
	booking := decodeBooking(t, resp.Data)
	assert.NotEmpty(t, booking.ID)
	assert.Equal(t, "5th Ave", booking.Pickup)
	assert.Equal(t, models.BookingStatusPending, booking.Status)
	assert.Nil(t, booking.Price)

	api.do(t, http.MethodPost, "/api/v1/bookings", "rider-2",
		`{"pickup":"Main St","destination":"Harbor","rideType":"XL"}`)

	code, resp = api.do(t, http.MethodGet, "/api/v1/bookings", "rider-1", "")
	require.Equal(t, http.StatusOK, code)
	var bookings []models.Booking
	require.NoError(t, json.Unmarshal(resp.Data, &bookings))
	require.Len(t, bookings, 1)
	assert.Equal(t, booking.ID, bookings[0].ID)
	assert.Equal(t, 1, resp.Meta.Count)
}

func TestBookings_EmptyListIsArray(t *testing.T) {
	api := newAPI(t, memory.NewDocumentStore())

	code, resp := api.do(t, http.MethodGet, "/api/v1/bookings", "rider-1", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, string(resp.Data))
}

func TestBookings_RequestErrors(t *testing.T) {
	api := newAPI(t, memory.NewDocumentStore())

	testCases := []struct {
		name   string
		rider  string
		body   string
		status int
		code   string
	}{
		{name: "signed out", body: `{"pickup":"a","destination":"b","rideType":"XL"}`, status: http.StatusUnauthorized, code: services.CodeUnauthenticated},
		{name: "unknown ride type", rider: "rider-1", body: `{"pickup":"a","destination":"b","rideType":"Luxury"}`, status: http.StatusBadRequest, code: services.CodeInvalidRideType},
		{name: "blank pickup", rider: "rider-1", body: `{"pickup":"  ","destination":"b","rideType":"XL"}`, status: http.StatusBadRequest, code: services.CodeInvalidInput},
		{name: "malformed body", rider: "rider-1", body: `{"pickup":`, status: http.StatusBadRequest, code: services.CodeInvalidInput},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			code, resp := api.do(t, http.MethodPost, "/api/v1/bookings", tc.rider, tc.body)
			assert.Equal(t, tc.status, code)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tc.code, resp.Error.Code)
		})
	}
}

func TestBookings_Approve(t *testing.T) {
	api := newAPI(t, memory.NewDocumentStore())

	_, resp := api.do(t, http.MethodPost, "/api/v1/bookings", "rider-1",
		`{"pickup":"5th Ave","destination":"Airport","rideType":"Standard"}`)
	id := decodeBooking(t, resp.Data).ID

	code, resp := api.do(t, http.MethodPost, "/api/v1/bookings/"+id+"/approve", "rider-1", `{"price":"$42.50"}`)
	require.Equal(t, http.StatusOK, code)
	approved := decodeBooking(t, resp.Data)
	assert.Equal(t, models.BookingStatusApproved, approved.Status)
	require.NotNil(t, approved.Price)
	assert.Equal(t, 42.5, *approved.Price)

	// notifier failures never change the approval result
	assert.Eventually(t, func() bool { return api.notifier.approvedCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	code, resp = api.do(t, http.MethodPost, "/api/v1/bookings/"+id+"/approve", "rider-1", `{"price":10}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, services.CodeInvalidTransition, resp.Error.Code)
}

func TestBookings_ApproveErrors(t *testing.T) {
	api := newAPI(t, memory.NewDocumentStore())

	_, resp := api.do(t, http.MethodPost, "/api/v1/bookings", "rider-1",
		`{"pickup":"5th Ave","destination":"Airport","rideType":"Premium"}`)
	id := decodeBooking(t, resp.Data).ID

	testCases := []struct {
		name   string
		rider  string
		id     string
		body   string
		status int
		code   string
	}{
		{name: "text price", rider: "rider-1", id: id, body: `{"price":"abc"}`, status: http.StatusBadRequest, code: services.CodeInvalidPrice},
		{name: "zero price", rider: "rider-1", id: id, body: `{"price":0}`, status: http.StatusBadRequest, code: services.CodeInvalidPrice},
		{name: "missing price", rider: "rider-1", id: id, body: `{}`, status: http.StatusBadRequest, code: services.CodeInvalidPrice},
		{name: "boolean price", rider: "rider-1", id: id, body: `{"price":true}`, status: http.StatusBadRequest, code: services.CodeInvalidPrice},
		{name: "unknown booking", rider: "rider-1", id: "missing", body: `{"price":5}`, status: http.StatusNotFound, code: services.CodeNotFound},
		{name: "other rider", rider: "rider-2", id: id, body: `{"price":5}`, status: http.StatusNotFound, code: services.CodeNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			code, resp := api.do(t, http.MethodPost, "/api/v1/bookings/"+tc.id+"/approve", tc.rider, tc.body)
			assert.Equal(t, tc.status, code)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tc.code, resp.Error.Code)
		})
	}

	_, resp = api.do(t, http.MethodGet, "/api/v1/bookings", "rider-1", "")
	var bookings []models.Booking
	require.NoError(t, json.Unmarshal(resp.Data, &bookings))
	require.Len(t, bookings, 1)
	assert.True(t, bookings[0].IsPending())
	assert.Zero(t, api.notifier.approvedCount())
}

func TestBookings_StoreUnavailable(t *testing.T) {
	api := newAPI(t, failingQueryStore{DocumentStore: memory.NewDocumentStore()})

	code, resp := api.do(t, http.MethodGet, "/api/v1/bookings", "rider-1", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, services.CodeStoreUnavailable, resp.Error.Code)
}

func TestProfile_Routes(t *testing.T) {
	api := newAPI(t, memory.NewDocumentStore())

	code, resp := api.do(t, http.MethodGet, "/api/v1/profile", "rider-1", "")
	require.Equal(t, http.StatusOK, code)
	var profile models.Profile
	require.NoError(t, json.Unmarshal(resp.Data, &profile))
	assert.Equal(t, "New User", profile.Name)
	assert.True(t, profile.IsDefault)

	code, _ = api.do(t, http.MethodPost, "/api/v1/profile", "rider-1", `{"name":"Ada","email":"not-an-email"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = api.do(t, http.MethodPost, "/api/v1/profile", "rider-1", `{"name":"Ada","email":"ada@example.com"}`)
	require.Equal(t, http.StatusCreated, code)

	_, resp = api.do(t, http.MethodGet, "/api/v1/profile/greeting", "rider-1", "")
	assert.JSONEq(t, `{"name":"Ada"}`, string(resp.Data))

	code, resp = api.do(t, http.MethodPut, "/api/v1/profile/contact", "rider-1", `{"phone":"+15550100","pushToken":"device-1"}`)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(resp.Data, &profile))
	assert.Equal(t, "+15550100", profile.Phone)
	assert.Equal(t, "device-1", api.notifier.devices["rider-1"])

	code, resp = api.do(t, http.MethodPut, "/api/v1/profile/contact", "rider-1", `{"phone":"555"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, resp.Error.Details, "phone")
}

func TestHealth(t *testing.T) {
	api := newAPI(t, memory.NewDocumentStore())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"store":"ok"`)
}

func TestHealth_FailingDependency(t *testing.T) {
	router := gin.New()
	health := handlers.NewHealthHandler(map[string]handlers.HealthCheck{
		"redis": func(context.Context) error { return errors.New("dial tcp: refused") },
	}, time.Second)
	router.GET("/health", health.Health)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "unhealthy")
}

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func readFrame(t *testing.T, conn *gorilla.Conn) frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var f frame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

func TestBookings_Stream(t *testing.T) {
	api := newAPI(t, memory.NewDocumentStore())
	server := httptest.NewServer(api.router)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/bookings/stream?access_token=" + token(t, "rider-1")
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	first := readFrame(t, conn)
	assert.Equal(t, "bookings", first.Type)
	assert.JSONEq(t, `[]`, string(first.Data))

	_, resp := api.do(t, http.MethodPost, "/api/v1/bookings", "rider-1",
		`{"pickup":"5th Ave","destination":"Airport","rideType":"Standard"}`)
	id := decodeBooking(t, resp.Data).ID

	next := readFrame(t, conn)
	assert.Equal(t, "bookings", next.Type)
	var bookings []models.Booking
	require.NoError(t, json.Unmarshal(next.Data, &bookings))
	require.Len(t, bookings, 1)
	assert.Equal(t, id, bookings[0].ID)

	api.do(t, http.MethodPost, "/api/v1/bookings/"+id+"/approve", "rider-1", `{"price":42.5}`)

	seen := map[string]bool{}
	for len(seen) < 2 {
		f := readFrame(t, conn)
		seen[f.Type] = true
		if f.Type == "booking_approved" {
			assert.Equal(t, models.BookingStatusApproved, decodeBooking(t, f.Data).Status)
		}
	}
	assert.True(t, seen["bookings"])
	assert.True(t, seen["booking_approved"])
}

func TestBookings_StreamRequiresToken(t *testing.T) {
	api := newAPI(t, memory.NewDocumentStore())
	server := httptest.NewServer(api.router)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/bookings/stream"
	_, resp, err := gorilla.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
