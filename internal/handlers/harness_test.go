package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/mudichurmart/storefront/internal/auth"
	"github.com/mudichurmart/storefront/internal/cart"
	"github.com/mudichurmart/storefront/internal/catalog"
	"github.com/mudichurmart/storefront/internal/checkout"
	"github.com/mudichurmart/storefront/internal/idempotency"
	"github.com/mudichurmart/storefront/internal/media"
	"github.com/mudichurmart/storefront/internal/orders"
	"github.com/mudichurmart/storefront/internal/payment"
)

const testMaxSessions = 64

const testSecret = "test_secret"

func init() {
	gin.SetMode(gin.TestMode)
}

// --- catalog ---

type memRepo struct {
	mu       sync.Mutex
	products map[string]catalog.Product
	next     int
	err      error
}

func newMemRepo() *memRepo {
	return &memRepo{products: map[string]catalog.Product{}}
}

func (m *memRepo) put(p catalog.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
}

func (m *memRepo) Create(ctx context.Context, in catalog.ProductInput) (*catalog.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.next++
	p := catalog.Product{
		ID: fmt.Sprintf("p%d", m.next), Name: in.Name, CategoryID: in.CategoryID,
		Price: in.Price, Discount: in.Discount, Stock: in.Stock, ImageURL: in.ImageURL,
		Active: in.Active, CreatedAt: time.Unix(int64(m.next), 0).UTC(),
	}
	m.products[p.ID] = p
	return &p, nil
}

func (m *memRepo) Update(ctx context.Context, id string, in catalog.ProductInput) (*catalog.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	p.Name, p.CategoryID, p.Price, p.Discount = in.Name, in.CategoryID, in.Price, in.Discount
	p.Stock, p.ImageURL, p.Active = in.Stock, in.ImageURL, in.Active
	m.products[id] = p
	return &p, nil
}

func (m *memRepo) SetImage(ctx context.Context, id, url string) (*catalog.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	p.ImageURL = url
	m.products[id] = p
	return &p, nil
}

func (m *memRepo) Delete(ctx context.Context, id string) (*catalog.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	delete(m.products, id)
	return &p, nil
}

func (m *memRepo) Get(ctx context.Context, id string) (*catalog.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.products[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &p, nil
}

func (m *memRepo) List(ctx context.Context, f catalog.ListFilter) ([]catalog.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []catalog.Product
	for _, p := range m.products {
		if f.ActiveOnly && !p.Active {
			continue
		}
		if f.CategoryID != "" && f.CategoryID != p.CategoryID {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memRepo) DecrementStock(ctx context.Context, id string, qty int) (*catalog.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	if p.Stock < qty {
		return nil, catalog.ErrInsufficientStock
	}
	p.Stock -= qty
	m.products[id] = p
	return &p, nil
}

// --- payments ---

type fakeGateway struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (g *fakeGateway) CreateOrder(ctx context.Context, req payment.OrderRequest) (*payment.GatewayOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return &payment.GatewayOrder{
		ID:       fmt.Sprintf("order_%d", g.calls),
		Entity:   "order",
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Status:   "created",
	}, nil
}

func (g *fakeGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type memIdempotency struct {
	mu      sync.Mutex
	records map[string]*idempotency.Record
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{records: map[string]*idempotency.Record{}}
}

func (m *memIdempotency) CreateIfNotExists(ctx context.Context, key, ref string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[key]; ok {
		return false, nil
	}
	m.records[key] = &idempotency.Record{Key: key, Status: idempotency.StatusInProgress, Reference: ref}
	return true, nil
}

func (m *memIdempotency) Reclaim(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[key]
	if !ok || r.Status != idempotency.StatusFailed {
		return false, nil
	}
	r.Status = idempotency.StatusInProgress
	return true, nil
}

func (m *memIdempotency) Get(ctx context.Context, key string) (*idempotency.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[key]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *memIdempotency) MarkDone(ctx context.Context, key, body string, status int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.records[key]
	r.Status, r.ResponseBody, r.ResponseStatus = idempotency.StatusDone, body, status
	return nil
}

func (m *memIdempotency) MarkFailed(ctx context.Context, key, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.records[key]
	r.Status, r.Note = idempotency.StatusFailed, note
	return nil
}

// --- orders ---

type memOrders struct {
	mu       sync.Mutex
	orders   map[string]orders.Order
	recorded []orders.Order
	err      error
}

func newMemOrders() *memOrders {
	return &memOrders{orders: map[string]orders.Order{}}
}

func (m *memOrders) RecordOrder(ctx context.Context, o orders.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recorded = append(m.recorded, o)
	m.orders[o.OrderID] = o
	return nil
}

func (m *memOrders) Recorded() []orders.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]orders.Order(nil), m.recorded...)
}

func (m *memOrders) List(ctx context.Context) ([]orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []orders.Order
	for _, o := range m.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memOrders) Transition(ctx context.Context, id string, next orders.Status) (*orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	o, ok := m.orders[id]
	if !ok {
		return nil, orders.ErrNotFound
	}
	if !orders.CanTransition(o.OrderStatus, next) {
		return nil, fmt.Errorf("%w: %s -> %s", orders.ErrInvalidTransition, o.OrderStatus, next)
	}
	o.OrderStatus = next
	if next == orders.StatusPaid {
		o.PaymentStatus = orders.PaymentPaid
	}
	m.orders[id] = o
	return &o, nil
}

// --- media / auth ---

type fakeUploader struct {
	contentType string
	body        []byte
	err         error
}

func (f *fakeUploader) Upload(ctx context.Context, img media.Image, progress media.ProgressFunc) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.contentType = img.ContentType
	f.body, _ = io.ReadAll(img.Body)
	progress(100)
	return "https://cdn.test/products/" + img.ProductID + "/image.png", nil
}

type fakeAuth struct {
	users   map[string]*auth.User // by access token
	signIn  error
	signUp  error
	signOut []string
}

func (f *fakeAuth) SignIn(ctx context.Context, email, password string) (*auth.Tokens, error) {
	if f.signIn != nil {
		return nil, f.signIn
	}
	return &auth.Tokens{AccessToken: "tok-" + email, ExpiresIn: 3600}, nil
}

func (f *fakeAuth) SignUp(ctx context.Context, email, password string) (*auth.User, error) {
	if f.signUp != nil {
		return nil, f.signUp
	}
	return &auth.User{ID: "u-new", Email: email}, nil
}

func (f *fakeAuth) SignOut(ctx context.Context, token string) error {
	f.signOut = append(f.signOut, token)
	return nil
}

func (f *fakeAuth) CurrentUser(ctx context.Context, token string) (*auth.User, error) {
	if u, ok := f.users[token]; ok {
		return u, nil
	}
	return nil, &auth.Error{Category: auth.Unauthenticated}
}

type fakeDirectory struct {
	customers []auth.Customer
	err       error
	queries   []string
}

func (f *fakeDirectory) ListCustomers(ctx context.Context, query string) ([]auth.Customer, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	var out []auth.Customer
	q := strings.ToLower(query)
	for _, c := range f.customers {
		if strings.Contains(strings.ToLower(c.Name), q) || strings.Contains(strings.ToLower(c.Email), q) {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakePaidEvents struct {
	mu     sync.Mutex
	events []orders.PaidEvent
}

func (f *fakePaidEvents) PublishPaid(ctx context.Context, ev orders.PaidEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

// --- server ---

type testEnv struct {
	router   *gin.Engine
	repo     *memRepo
	catalog  *catalog.Service
	payments *payment.Service
	gateway  *fakeGateway
	idem     *memIdempotency
	orders   *memOrders
	uploader *fakeUploader
	auth     *fakeAuth
	dir      *fakeDirectory
	paid     *fakePaidEvents
	sessions *checkout.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		repo:     newMemRepo(),
		gateway:  &fakeGateway{},
		idem:     newMemIdempotency(),
		orders:   newMemOrders(),
		uploader: &fakeUploader{},
		auth: &fakeAuth{users: map[string]*auth.User{
			"admin-token": {ID: "u-admin", Email: "admin@mudichur.test", Admin: true},
			"user-token":  {ID: "u-1", Email: "shopper@mudichur.test"},
		}},
		dir:  &fakeDirectory{},
		paid: &fakePaidEvents{},
	}
	env.catalog = catalog.NewService(env.repo, nil, zerolog.Nop())
	env.payments = payment.NewService(env.gateway, payment.NewVerifier(testSecret))
	env.sessions = checkout.NewRegistry(func(ctx context.Context, id string) (*checkout.Session, error) {
		l := cart.New()
		return &checkout.Session{
			ID:   id,
			Cart: l,
			Checkout: checkout.New(checkout.Deps{
				Cart:     l,
				Intents:  env.payments,
				Verifier: env.payments,
				Orders:   env.orders,
				Logger:   zerolog.Nop(),
			}, checkout.Options{KeyID: "rzp_test_key", MerchantName: "Mudichur Mart"}),
		}, nil
	}, checkout.Limits{MaxSessions: testMaxSessions})

	env.router = newRouterWith(env, env.catalog)
	return env
}

func newRouterWith(env *testEnv, cat Catalog) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	RegisterRoutes(r, HandlerConfig{
		Payments:    env.payments,
		Idempotency: env.idem,
		Catalog:     cat,
		Sessions:    env.sessions,
		Orders:      env.orders,
		Media:       env.uploader,
		Auth:        env.auth,
		Customers:   env.dir,
		PaidEvents:  env.paid,
		Logger:      zerolog.Nop(),
	})
	return r
}

func (e *testEnv) do(method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func session(id string) map[string]string {
	return map[string]string{headerSession: id}
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]interface{}
	decode(t, w, &body)
	s, _ := body["error"].(string)
	return s
}

func seedProduct(e *testEnv, id string, price float64, stock int, active bool) {
	e.repo.put(catalog.Product{
		ID: id, Name: "Product " + id, CategoryID: "staples",
		Price: price, Stock: stock, Active: active,
		CreatedAt: time.Now().UTC(),
	})
}
