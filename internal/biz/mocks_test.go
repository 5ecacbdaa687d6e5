package biz

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// mockMandateClient MandateClient 的 testify mock
type mockMandateClient struct {
	mock.Mock
}

func (m *mockMandateClient) Authenticate(ctx context.Context) (*AuthToken, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*AuthToken), args.Error(1)
}

func (m *mockMandateClient) CreateInvite(ctx context.Context, auth *AuthToken, req *InviteRequest) (*Invite, error) {
	args := m.Called(ctx, auth, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Invite), args.Error(1)
}

func (m *mockMandateClient) GetMandateStatus(ctx context.Context, auth *AuthToken, mandateID string) (*MandateStatus, error) {
	args := m.Called(ctx, auth, mandateID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*MandateStatus), args.Error(1)
}

func (m *mockMandateClient) SubmitTransaction(ctx context.Context, auth *AuthToken, req *TransactionRequest) (string, error) {
	args := m.Called(ctx, auth, req)
	return args.String(0), args.Error(1)
}

func (m *mockMandateClient) FetchTransactionFeed(ctx context.Context, auth *AuthToken) (map[string]*FeedEntry, error) {
	args := m.Called(ctx, auth)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]*FeedEntry), args.Error(1)
}

var errTransitionFailed = errors.New("database is locked")

// memOrderRepo 内存订单存储
type memOrderRepo struct {
	mu       sync.Mutex
	orders   map[string]*Order
	notes    map[string][]string
	seq      int
	getErr   error
	writeErr error

	// transitionFailures 之后的 TransitionOrderStatus 调用依次失败的次数
	transitionFailures int
	transitionCalls    int
}

func newMemOrderRepo(orders ...*Order) *memOrderRepo {
	r := &memOrderRepo{orders: map[string]*Order{}, notes: map[string][]string{}}
	for _, o := range orders {
		r.put(o)
	}
	return r
}

func (r *memOrderRepo) put(o *Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(r.seq) * time.Minute)
	}
	cp := *o
	r.orders[o.ID] = &cp
}

// snapshot 返回订单副本
func (r *memOrderRepo) snapshot(id string) *Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil
	}
	cp := *o
	return &cp
}

func (r *memOrderRepo) notesOf(id string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.notes[id])
}

func (r *memOrderRepo) GetOrder(_ context.Context, orderID string) (*Order, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	return r.snapshot(orderID), nil
}

func (r *memOrderRepo) TransitionOrderStatus(ctx context.Context, orderID string, from []OrderStatus, to OrderStatus, note string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitionCalls++
	if r.writeErr != nil {
		return false, r.writeErr
	}
	if r.transitionFailures > 0 {
		r.transitionFailures--
		return false, errTransitionFailed
	}
	o, ok := r.orders[orderID]
	if !ok || !slices.Contains(from, o.Status) {
		return false, nil
	}
	o.Status = to
	r.appendNote(orderID, note)
	return true, nil
}

func (r *memOrderRepo) SetMandateID(_ context.Context, orderID, mandateID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writeErr != nil {
		return r.writeErr
	}
	if o, ok := r.orders[orderID]; ok {
		o.MandateID = mandateID
	}
	return nil
}

func (r *memOrderRepo) FindOrdersByMandate(_ context.Context, mandateID string, statuses []OrderStatus, limit int, newestFirst bool) ([]*Order, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*Order
	for _, o := range r.orders {
		if o.MandateID == mandateID && slices.Contains(statuses, o.Status) {
			cp := *o
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if newestFirst {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *memOrderRepo) MarkPaid(_ context.Context, orderID string, paidAt time.Time, note string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writeErr != nil {
		return false, r.writeErr
	}
	o, ok := r.orders[orderID]
	if !ok || o.Status.IsPaid() || o.Status == OrderStatusFailed {
		return false, nil
	}
	o.Status = OrderStatusProcessing
	o.PaidAt = &paidAt
	r.appendNote(orderID, note)
	return true, nil
}

func (r *memOrderRepo) AddOrderNote(_ context.Context, orderID, note string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendNote(orderID, note)
	return nil
}

func (r *memOrderRepo) appendNote(orderID, note string) {
	if note != "" {
		r.notes[orderID] = append(r.notes[orderID], note)
	}
}

// fakeLocker 进程内互斥锁
type fakeLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
	err   error
	keys  []string
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{locks: map[string]*sync.Mutex{}}
}

func (l *fakeLocker) Lock(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	if l.err != nil {
		l.mu.Unlock()
		return nil, l.err
	}
	l.keys = append(l.keys, key)
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock, nil
}

func testConfig() *MandateConfig {
	return &MandateConfig{
		PrivateKey:                 "secret",
		ContractTemplate:           "ct-1",
		TransactionMessageTemplate: "Order {order_id}",
		Language:                   "en_US",
		CallbackLookback:           10,
		ReturnURL:                  "https://shop.example/thanks/{order_id}",
		LandingURL:                 "https://shop.example/",
		SweepConcurrency:           2,
	}
}

func pendingOrder(id string, total string) *Order {
	return &Order{
		ID:     id,
		Total:  decimal.RequireFromString(total),
		Status: OrderStatusPending,
		Billing: BillingProfile{
			FirstName: "Jan",
			LastName:  "Peeters",
			Email:     "jan@example.com",
			Address1:  "Kerkstraat 1",
			Postcode:  "9000",
			City:      "Gent",
			Country:   "BE",
		},
	}
}

var testLogger = log.DefaultLogger
