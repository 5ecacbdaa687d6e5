package data

import (
	"context"
	"errors"
	"time"

	"mandate-service/internal/biz"
	"mandate-service/internal/data/model"
	mandateErrors "mandate-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// orderRepo 订单存储（实现 biz.OrderRepo）
// 状态写入均为条件更新，配合订单锁保证同一订单不会重复提交扣款
type orderRepo struct {
	data *Data
	log  *log.Helper
}

// NewOrderRepo 创建订单 repo（返回 biz.OrderRepo 接口）
func NewOrderRepo(data *Data, logger log.Logger) biz.OrderRepo {
	return &orderRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// GetOrder 查询订单，不存在时返回 nil, nil
func (r *orderRepo) GetOrder(ctx context.Context, orderID string) (*biz.Order, error) {
	var m model.Order
	if err := r.data.db.WithContext(ctx).Where("order_id = ?", orderID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, mandateErrors.Store("get_order", err)
	}
	return toBizOrder(&m), nil
}

// TransitionOrderStatus 当前状态属于 from 时才写入 to
func (r *orderRepo) TransitionOrderStatus(ctx context.Context, orderID string, from []biz.OrderStatus, to biz.OrderStatus, note string) (bool, error) {
	var updated bool
	err := r.data.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Order{}).
			Where("order_id = ? AND status IN ?", orderID, statusStrings(from)).
			Update("status", string(to))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		updated = true
		return createNote(tx, orderID, note)
	})
	if err != nil {
		return false, mandateErrors.Store("transition_order_status", err)
	}
	return updated, nil
}

// SetMandateID 记录订单关联的签约
func (r *orderRepo) SetMandateID(ctx context.Context, orderID, mandateID string) error {
	err := r.data.db.WithContext(ctx).Model(&model.Order{}).
		Where("order_id = ?", orderID).
		Update("mandate_id", mandateID).Error
	if err != nil {
		return mandateErrors.Store("set_mandate_id", err)
	}
	return nil
}

// FindOrdersByMandate 按签约查询订单，按创建时间排序
func (r *orderRepo) FindOrdersByMandate(ctx context.Context, mandateID string, statuses []biz.OrderStatus, limit int, newestFirst bool) ([]*biz.Order, error) {
	query := r.data.db.WithContext(ctx).Where("mandate_id = ?", mandateID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statusStrings(statuses))
	}
	if newestFirst {
		query = query.Order("created_at DESC").Order("order_id DESC")
	} else {
		query = query.Order("created_at ASC").Order("order_id ASC")
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var ms []model.Order
	if err := query.Find(&ms).Error; err != nil {
		return nil, mandateErrors.Store("find_orders_by_mandate", err)
	}

	orders := make([]*biz.Order, 0, len(ms))
	for i := range ms {
		orders = append(orders, toBizOrder(&ms[i]))
	}
	return orders, nil
}

// MarkPaid 标记订单已支付（已支付/已失败的订单不处理）
func (r *orderRepo) MarkPaid(ctx context.Context, orderID string, paidAt time.Time, note string) (bool, error) {
	var updated bool
	err := r.data.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Order{}).
			Where("order_id = ? AND status NOT IN ?", orderID, statusStrings([]biz.OrderStatus{
				biz.OrderStatusProcessing,
				biz.OrderStatusCompleted,
				biz.OrderStatusFailed,
			})).
			Updates(map[string]interface{}{
				"status":  string(biz.OrderStatusProcessing),
				"paid_at": paidAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		updated = true
		return createNote(tx, orderID, note)
	})
	if err != nil {
		return false, mandateErrors.Store("mark_paid", err)
	}
	return updated, nil
}

// AddOrderNote 添加订单备注
func (r *orderRepo) AddOrderNote(ctx context.Context, orderID, note string) error {
	if err := createNote(r.data.db.WithContext(ctx), orderID, note); err != nil {
		return mandateErrors.Store("add_order_note", err)
	}
	return nil
}

func createNote(tx *gorm.DB, orderID, note string) error {
	if note == "" {
		return nil
	}
	return tx.Create(&model.OrderNote{
		OrderNoteID: uuid.New().String(),
		OrderID:     orderID,
		Note:        note,
	}).Error
}

func statusStrings(statuses []biz.OrderStatus) []string {
	result := make([]string, 0, len(statuses))
	for _, s := range statuses {
		result = append(result, string(s))
	}
	return result
}

func toBizOrder(m *model.Order) *biz.Order {
	return &biz.Order{
		ID:       m.OrderID,
		ParentID: m.ParentOrderID,
		Total:    m.Total,
		Billing: biz.BillingProfile{
			FirstName: m.BillingFirstName,
			LastName:  m.BillingLastName,
			Email:     m.BillingEmail,
			Address1:  m.BillingAddress1,
			Address2:  m.BillingAddress2,
			Postcode:  m.BillingPostcode,
			City:      m.BillingCity,
			Country:   m.BillingCountry,
		},
		Status:    biz.OrderStatus(m.Status),
		MandateID: m.MandateID,
		PaidAt:    m.PaidAt,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
