package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-checkout-orderflow/internal/auth"
	"github.com/imrishuroy/go-checkout-orderflow/internal/cart"
	"github.com/imrishuroy/go-checkout-orderflow/internal/idempotency"
	"github.com/imrishuroy/go-checkout-orderflow/internal/logging"
	"github.com/imrishuroy/go-checkout-orderflow/internal/orders"
	"github.com/imrishuroy/go-checkout-orderflow/internal/payments"
	"github.com/imrishuroy/go-checkout-orderflow/internal/store"
	"github.com/imrishuroy/go-checkout-orderflow/internal/store/memory"
	"github.com/imrishuroy/go-checkout-orderflow/internal/validation"
)

const webhookSecret = "rzp_whsec_test"

// memIdem is an in-memory IdempotencyStore with the same decisions as the DynamoDB store.
type memIdem struct {
	mu   sync.Mutex
	recs map[string]*idempotency.IdempotencyRecord
}

func newMemIdem() *memIdem { return &memIdem{recs: map[string]*idempotency.IdempotencyRecord{}} }

func (m *memIdem) Acquire(_ context.Context, key, fp string) (idempotency.Decision, *idempotency.IdempotencyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[key]
	if !ok {
		m.recs[key] = &idempotency.IdempotencyRecord{IdempotencyKey: key, Fingerprint: fp, Status: idempotency.StatusInProgress}
		return idempotency.Proceed, nil, nil
	}
	cp := *rec
	if rec.Fingerprint != fp {
		return 0, &cp, idempotency.ErrFingerprintMismatch
	}
	switch rec.Status {
	case idempotency.StatusDone:
		return idempotency.Replay, &cp, nil
	case idempotency.StatusFailed:
		rec.Status = idempotency.StatusInProgress
		return idempotency.Proceed, &cp, nil
	}
	return idempotency.InFlight, &cp, nil
}

func (m *memIdem) MarkDone(_ context.Context, key string, orderID int64, body string, status int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.recs[key]
	r.Status, r.OrderID, r.ResponseBody, r.ResponseStatus = idempotency.StatusDone, orderID, body, status
	return nil
}

func (m *memIdem) MarkFailed(_ context.Context, key, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.recs[key]
	r.Status, r.Note = idempotency.StatusFailed, note
	return nil
}

func (m *memIdem) status(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.recs[key]; ok {
		return r.Status
	}
	return ""
}

type stubGateway struct{ err error }

func (g *stubGateway) Name() string { return "razorpay" }
func (g *stubGateway) OpenSession(_ context.Context, req payments.SessionRequest) (*payments.Session, error) {
	if g.err != nil {
		return nil, fmt.Errorf("%w: %v", payments.ErrGateway, g.err)
	}
	return &payments.Session{Gateway: "razorpay", RemoteOrderID: fmt.Sprintf("order_T%d", req.OrderID), Key: "rzp_test"}, nil
}

type server struct {
	t       *testing.T
	router  *gin.Engine
	store   *memory.Store
	idem    *memIdem
	gw      *stubGateway
	authn   *auth.Authenticator
	token   string
	product store.Product
	addrID  int64
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &server{t: t, store: memory.New(), idem: newMemIdem(), gw: &stubGateway{}}
	s.store.PutUser(store.User{ID: 1, IsActive: true, IsMobileVerified: true})
	s.store.PutUser(store.User{ID: 2, IsActive: true, IsMobileVerified: true})
	s.addrID = s.store.PutAddress(store.Address{UserID: 1, Name: "Home", Line1: "1 Main", City: "Pune"}).ID
	s.product = s.store.PutProduct(store.Product{Name: "mug", SKU: "MUG-1",
		Price: decimal.RequireFromString("125.00"), Quantity: 10, IsActive: true})

	logger := zap.NewNop()
	s.authn = auth.NewAuthenticator("jwt-secret", auth.StoreUsers{Store: s.store})
	tok, err := s.authn.Issue(1, time.Hour)
	require.NoError(t, err)
	s.token = tok

	s.router = gin.New()
	s.router.Use(logging.RequestID())
	RegisterRoutes(s.router, HandlerConfig{
		Cart: cart.NewService(s.store, logger),
		Orders: orders.NewService(s.store, map[store.PaymentMethod]payments.Gateway{
			store.PaymentMethodRazorpay: s.gw,
		}, orders.Config{Currency: "INR"}, logger),
		Reconciler:  payments.NewReconciler(s.store, payments.ReconcilerConfig{RazorpayWebhookSecret: webhookSecret, Currency: "INR"}, logger),
		Idempotency: s.idem,
		Auth:        s.authn.Middleware(),
		Logger:      logger,
	})
	return s
}

func (s *server) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	s.t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *server) addToCart(qty int) {
	s.t.Helper()
	w := s.do(http.MethodPost, "/cart/items", fmt.Sprintf(`{"product_id":%d,"quantity":%d}`, s.product.ID, qty))
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m), w.Body.String())
	return m
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	w := s.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestCartRoutes(t *testing.T) {
	s := newServer(t)

	w := s.do(http.MethodGet, "/cart", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "0", decode(t, w)["total_price"])

	s.addToCart(2)
	w = s.do(http.MethodGet, "/cart", "")
	body := decode(t, w)
	require.Equal(t, "250", body["total_price"])

	w = s.do(http.MethodPatch, fmt.Sprintf("/cart/items/%d", s.product.ID), `{"quantity":11}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "insufficient_stock", decode(t, w)["error"])

	w = s.do(http.MethodPatch, fmt.Sprintf("/cart/items/%d", s.product.ID), `{"quantity":0}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, decode(t, w)["items"])

	w = s.do(http.MethodPost, "/cart/merge", fmt.Sprintf(`{"items":[{"product_id":%d,"quantity":15}]}`, s.product.ID))
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	require.Len(t, body["warnings"], 1)
	require.Equal(t, "1250", body["total_price"])
}

func TestCreateOrder_RequiresAuth(t *testing.T) {
	s := newServer(t)
	s.token = "garbage"
	w := s.do(http.MethodPost, "/orders", `{"address_id":1,"payment_method":"COD"}`)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateOrder_COD(t *testing.T) {
	s := newServer(t)
	s.addToCart(2)

	w := s.do(http.MethodPost, "/orders", fmt.Sprintf(`{"address_id":%d,"payment_method":"cod"}`, s.addrID))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	require.Equal(t, "COD", body["payment_type"])
	require.Equal(t, "250", body["amount"])
	require.Equal(t, "INR", body["currency"])
	require.Empty(t, s.store.CartItems(1))
}

func TestCreateOrder_Errors(t *testing.T) {
	s := newServer(t)

	w := s.do(http.MethodPost, "/orders", `{"payment_method":"UPI"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	require.Equal(t, "validation_failed", body["error"])
	require.Contains(t, body["fields"], "address_id")

	w = s.do(http.MethodPost, "/orders", fmt.Sprintf(`{"address_id":%d,"payment_method":"COD"}`, s.addrID))
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "cart_not_found", decode(t, w)["error"])

	s.do(http.MethodGet, "/cart", "")
	w = s.do(http.MethodPost, "/orders", fmt.Sprintf(`{"address_id":%d,"payment_method":"COD"}`, s.addrID))
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "empty_cart", decode(t, w)["error"])

	s.addToCart(1)
	w = s.do(http.MethodPost, "/orders", `{"address_id":999,"payment_method":"COD"}`)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "address_not_found", decode(t, w)["error"])

	w = s.do(http.MethodPost, "/orders", fmt.Sprintf(`{"address_id":%d,"payment_method":"STRIPE"}`, s.addrID))
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "payment_method_unavailable", decode(t, w)["error"])

	require.Empty(t, s.store.Orders())
	require.Empty(t, s.store.Payments())
}

func TestCreateOrder_GatewayFailureIs500AndRollsBack(t *testing.T) {
	s := newServer(t)
	s.addToCart(1)
	s.gw.err = errors.New("upstream 503")

	w := s.do(http.MethodPost, "/orders", fmt.Sprintf(`{"address_id":%d,"payment_method":"RAZORPAY"}`, s.addrID),
		"Idempotency-Key", "k-gw")
	require.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	require.Equal(t, "payment_gateway_error", body["error"])
	require.NotContains(t, w.Body.String(), "upstream 503")
	require.Equal(t, idempotency.StatusFailed, s.idem.status("user#1#k-gw"))

	require.Empty(t, s.store.Orders())
	require.Len(t, s.store.CartItems(1), 1)
	p, _ := s.store.Product(s.product.ID)
	require.Equal(t, 10, p.Quantity)

	// the retry takes the failed key over and succeeds
	s.gw.err = nil
	w = s.do(http.MethodPost, "/orders", fmt.Sprintf(`{"address_id":%d,"payment_method":"RAZORPAY"}`, s.addrID),
		"Idempotency-Key", "k-gw")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body = decode(t, w)
	require.Equal(t, "ONLINE", body["payment_type"])
	require.EqualValues(t, 12500, body["amount_minor"])
}

func TestCreateOrder_IdempotencyKey(t *testing.T) {
	s := newServer(t)
	s.addToCart(1)
	payload := fmt.Sprintf(`{"address_id":%d,"payment_method":"COD"}`, s.addrID)

	first := s.do(http.MethodPost, "/orders", payload, "Idempotency-Key", "k1")
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	second := s.do(http.MethodPost, "/orders", payload, "Idempotency-Key", "k1")
	require.Equal(t, http.StatusCreated, second.Code)
	require.JSONEq(t, first.Body.String(), second.Body.String())
	require.Len(t, s.store.Orders(), 1)

	other := fmt.Sprintf(`{"address_id":%d,"payment_method":"RAZORPAY"}`, s.addrID)
	w := s.do(http.MethodPost, "/orders", other, "Idempotency-Key", "k1")
	require.Equal(t, http.StatusConflict, w.Code)

	s.idem.recs["user#1#k2"] = &idempotency.IdempotencyRecord{Status: idempotency.StatusInProgress, Fingerprint: fingerprintOf(s.addrID, "COD")}
	w = s.do(http.MethodPost, "/orders", payload, "Idempotency-Key", "k2")
	require.Equal(t, http.StatusAccepted, w.Code)
}

func TestCreateOrder_ClientErrorsAreReplayed(t *testing.T) {
	s := newServer(t)
	s.do(http.MethodGet, "/cart", "")
	payload := fmt.Sprintf(`{"address_id":%d,"payment_method":"COD"}`, s.addrID)

	w := s.do(http.MethodPost, "/orders", payload, "Idempotency-Key", "k-empty")
	require.Equal(t, http.StatusBadRequest, w.Code)

	s.addToCart(1)
	w = s.do(http.MethodPost, "/orders", payload, "Idempotency-Key", "k-empty")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "empty_cart", decode(t, w)["error"])
	require.Empty(t, s.store.Orders())
}

func fingerprintOf(addressID int64, method string) string {
	return fingerprint(validationReq(addressID, method))
}

func TestListAndGetOrders(t *testing.T) {
	s := newServer(t)
	var ids []float64
	for i := 0; i < 3; i++ {
		s.addToCart(1)
		w := s.do(http.MethodPost, "/orders", fmt.Sprintf(`{"address_id":%d,"payment_method":"COD"}`, s.addrID))
		require.Equal(t, http.StatusCreated, w.Code)
		ids = append(ids, decode(t, w)["order_id"].(float64))
	}

	w := s.do(http.MethodGet, "/orders?page=1&limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	require.EqualValues(t, 3, body["count"])
	require.EqualValues(t, 2, body["limit"])
	results := body["results"].([]interface{})
	require.Len(t, results, 2)
	require.Equal(t, ids[2], results[0].(map[string]interface{})["id"])

	w = s.do(http.MethodGet, "/orders?limit=500", "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, fmt.Sprintf("/orders/%d", int64(ids[0])), "")
	require.Equal(t, http.StatusOK, w.Code)
	detail := decode(t, w)
	require.Equal(t, "PENDING", detail["status"])
	require.Len(t, detail["items"], 1)

	tok, _ := s.authn.Issue(2, time.Hour)
	s.token = tok
	w = s.do(http.MethodGet, fmt.Sprintf("/orders/%d", int64(ids[0])), "")
	require.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodGet, "/orders/abc", "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRazorpayWebhook(t *testing.T) {
	s := newServer(t)
	s.addToCart(1)
	w := s.do(http.MethodPost, "/orders", fmt.Sprintf(`{"address_id":%d,"payment_method":"RAZORPAY"}`, s.addrID))
	require.Equal(t, http.StatusCreated, w.Code)
	gatewayOrderID := decode(t, w)["gateway_order_id"].(string)

	raw := []byte(fmt.Sprintf(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_W1","order_id":%q,"amount":12500}}}}`, gatewayOrderID))

	send := func(sig string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/payments/webhook", bytes.NewReader(raw))
		req.Header.Set("X-Razorpay-Signature", sig)
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		return w
	}

	w = send("00ff")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "invalid_signature", decode(t, w)["error"])
	require.False(t, s.store.Orders()[0].IsPaid)

	sig := payments.Sign(raw, webhookSecret)
	for i := 0; i < 2; i++ {
		w = send(sig)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		require.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	}
	o := s.store.Orders()[0]
	require.Equal(t, store.OrderStatusPaid, o.Status)
	require.True(t, o.IsPaid)
	require.Equal(t, store.PaymentStatusSuccess, s.store.Payments()[0].Status)
}

func TestRazorpayWebhook_UnknownPayment(t *testing.T) {
	s := newServer(t)
	raw := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_nope","order_id":"order_nope"}}}}`)
	req := httptest.NewRequest(http.MethodPost, "/payments/webhook", bytes.NewReader(raw))
	req.Header.Set("X-Razorpay-Signature", payments.Sign(raw, webhookSecret))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func validationReq(addressID int64, method string) validation.CreateOrderRequest {
	return validation.CreateOrderRequest{AddressID: addressID, PaymentMethod: method}
}
