package data

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"mandate-service/internal/biz"
	"mandate-service/internal/data/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&model.Order{}, &model.OrderNote{}))
	return db
}

func newTestOrderRepo(t *testing.T, orders ...*model.Order) (*orderRepo, *gorm.DB) {
	db := newTestDB(t)
	for _, o := range orders {
		require.NoError(t, db.Create(o).Error)
	}
	repo := NewOrderRepo(&Data{db: db}, log.DefaultLogger).(*orderRepo)
	return repo, db
}

func seedOrder(id, status, mandateID string, createdAt time.Time) *model.Order {
	return &model.Order{
		OrderID:          id,
		Total:            decimal.RequireFromString("49.99"),
		Status:           status,
		MandateID:        mandateID,
		BillingFirstName: "Jan",
		BillingLastName:  "Peeters",
		BillingEmail:     "jan@example.com",
		BillingAddress1:  "Kerkstraat 1",
		BillingPostcode:  "9000",
		BillingCity:      "Gent",
		BillingCountry:   "BE",
		CreatedAt:        createdAt,
	}
}

var baseTime = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

// listNotes 按写入顺序返回订单备注
func listNotes(db *gorm.DB, orderID string) ([]string, error) {
	var notes []string
	err := db.Model(&model.OrderNote{}).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Pluck("note", &notes).Error
	return notes, err
}

func TestOrderRepo_GetOrder(t *testing.T) {
	parent := seedOrder("1", "completed", "M1", baseTime)
	renewal := seedOrder("2", "pending", "", baseTime.Add(time.Hour))
	renewal.ParentOrderID = "1"
	repo, _ := newTestOrderRepo(t, parent, renewal)
	ctx := context.Background()

	order, err := repo.GetOrder(ctx, "2")
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, "1", order.ParentID)
	assert.Equal(t, biz.OrderStatusPending, order.Status)
	assert.True(t, order.Total.Equal(decimal.RequireFromString("49.99")))
	assert.Equal(t, "Kerkstraat 1", order.Billing.Address())
	assert.Equal(t, "BE", order.Billing.Country)

	missing, err := repo.GetOrder(ctx, "404")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestOrderRepo_TransitionOrderStatus(t *testing.T) {
	repo, db := newTestOrderRepo(t, seedOrder("1", "pending", "M1", baseTime))
	ctx := context.Background()
	pending := []biz.OrderStatus{biz.OrderStatusPending}

	ok, err := repo.TransitionOrderStatus(ctx, "1", pending, biz.OrderStatusOnHold, "submitted")
	require.NoError(t, err)
	assert.True(t, ok)

	// 状态已离开 pending，第二次写入不生效
	ok, err = repo.TransitionOrderStatus(ctx, "1", pending, biz.OrderStatusFailed, "too late")
	require.NoError(t, err)
	assert.False(t, ok)

	order, err := repo.GetOrder(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, biz.OrderStatusOnHold, order.Status)

	notes, err := listNotes(db, "1")
	require.NoError(t, err)
	assert.Equal(t, []string{"submitted"}, notes)

	ok, err = repo.TransitionOrderStatus(ctx, "404", pending, biz.OrderStatusOnHold, "x")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOrderRepo_SetMandateID(t *testing.T) {
	repo, _ := newTestOrderRepo(t, seedOrder("1", "pending", "", baseTime))
	ctx := context.Background()

	require.NoError(t, repo.SetMandateID(ctx, "1", "M7"))
	order, err := repo.GetOrder(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "M7", order.MandateID)
	assert.Equal(t, biz.StateMandatePending, order.PaymentState())
}

func TestOrderRepo_FindOrdersByMandate(t *testing.T) {
	repo, _ := newTestOrderRepo(t,
		seedOrder("1", "pending", "M1", baseTime),
		seedOrder("2", "pending", "M1", baseTime.Add(2*time.Hour)),
		seedOrder("3", "on-hold", "M1", baseTime.Add(3*time.Hour)),
		seedOrder("4", "pending", "M2", baseTime.Add(4*time.Hour)),
		seedOrder("5", "pending", "M1", baseTime.Add(time.Hour)),
	)
	ctx := context.Background()
	pending := []biz.OrderStatus{biz.OrderStatusPending}

	orders, err := repo.FindOrdersByMandate(ctx, "M1", pending, 10, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "5", "1"}, orderIDs(orders))

	orders, err = repo.FindOrdersByMandate(ctx, "M1", pending, 2, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "5"}, orderIDs(orders))

	orders, err = repo.FindOrdersByMandate(ctx, "M1", nil, 0, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "2", "5", "1"}, orderIDs(orders))

	orders, err = repo.FindOrdersByMandate(ctx, "M9", pending, 10, true)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestOrderRepo_MarkPaid(t *testing.T) {
	repo, db := newTestOrderRepo(t,
		seedOrder("1", "on-hold", "M1", baseTime),
		seedOrder("2", "failed", "M1", baseTime),
		seedOrder("3", "completed", "M1", baseTime),
	)
	ctx := context.Background()
	bookingDate := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

	ok, err := repo.MarkPaid(ctx, "1", bookingDate, "confirmed")
	require.NoError(t, err)
	assert.True(t, ok)

	order, err := repo.GetOrder(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, biz.OrderStatusProcessing, order.Status)
	require.NotNil(t, order.PaidAt)
	assert.True(t, bookingDate.Equal(*order.PaidAt))

	// 再次标记不产生写入
	ok, err = repo.MarkPaid(ctx, "1", bookingDate.Add(time.Hour), "confirmed")
	require.NoError(t, err)
	assert.False(t, ok)
	notes, err := listNotes(db, "1")
	require.NoError(t, err)
	assert.Len(t, notes, 1)

	for _, id := range []string{"2", "3", "404"} {
		ok, err = repo.MarkPaid(ctx, id, bookingDate, "confirmed")
		require.NoError(t, err)
		assert.False(t, ok, id)
	}
}

func TestOrderRepo_AddOrderNote(t *testing.T) {
	repo, db := newTestOrderRepo(t, seedOrder("1", "pending", "", baseTime))
	ctx := context.Background()

	require.NoError(t, repo.AddOrderNote(ctx, "1", "first"))
	require.NoError(t, repo.AddOrderNote(ctx, "1", ""))
	require.NoError(t, repo.AddOrderNote(ctx, "1", "second"))

	notes, err := listNotes(db, "1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"first", "second"}, notes)
}

func orderIDs(orders []*biz.Order) []string {
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	return ids
}
