package persist

import (
	"encoding/json"
	"log"

	"github.com/tommyle1310/flashfood-sync/internal/models"
	"github.com/tommyle1310/flashfood-sync/internal/tracking"
	"gorm.io/gorm"
)

// EnqueueOrders records the tracked-order table for the writer. Same
// coalescing rules as Enqueue: only the newest queued table is flushed.
func (p *Persister) EnqueueOrders(orders []tracking.Order) {
	p.mu.Lock()
	p.latestOrders = &orders
	p.mu.Unlock()
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// FlushOrders replaces the persisted tracked-order table synchronously.
func (p *Persister) FlushOrders(orders []tracking.Order) error {
	return p.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.TrackedOrder{}).Error; err != nil {
			return err
		}
		for _, o := range orders {
			row, err := orderRow(o)
			if err != nil {
				return err
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// HydrateOrders loads the persisted tracked-order table. Corrupt rows are
// skipped, matching Hydrate.
func (p *Persister) HydrateOrders() ([]tracking.Order, error) {
	var rows []models.TrackedOrder
	if err := p.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	orders := make([]tracking.Order, 0, len(rows))
	for _, row := range rows {
		o, err := orderFromRow(row)
		if err != nil {
			log.Printf("persist: skipping corrupt order %s: %v", row.OrderID, err)
			continue
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func orderRow(o tracking.Order) (models.TrackedOrder, error) {
	row := models.TrackedOrder{
		OrderID:        o.OrderID,
		Status:         o.Status,
		TrackingInfo:   o.TrackingInfo,
		DriverRef:      o.DriverRef,
		TotalAmount:    o.TotalAmount,
		OrderItems:     string(o.OrderItems),
		Notes:          o.Notes,
		PaymentMethod:  o.PaymentMethod,
		AwaitingRating: o.AwaitingRating,
		UpdatedAt:      o.UpdatedAt,
	}
	if o.RestaurantAddress != nil {
		b, err := json.Marshal(o.RestaurantAddress)
		if err != nil {
			return models.TrackedOrder{}, err
		}
		row.RestaurantAddress = string(b)
	}
	if o.CustomerAddress != nil {
		b, err := json.Marshal(o.CustomerAddress)
		if err != nil {
			return models.TrackedOrder{}, err
		}
		row.CustomerAddress = string(b)
	}
	return row, nil
}

func orderFromRow(row models.TrackedOrder) (tracking.Order, error) {
	o := tracking.Order{
		OrderID:        row.OrderID,
		Status:         row.Status,
		TrackingInfo:   row.TrackingInfo,
		DriverRef:      row.DriverRef,
		TotalAmount:    row.TotalAmount,
		Notes:          row.Notes,
		PaymentMethod:  row.PaymentMethod,
		AwaitingRating: row.AwaitingRating,
		UpdatedAt:      row.UpdatedAt,
	}
	if row.OrderItems != "" {
		o.OrderItems = json.RawMessage(row.OrderItems)
	}
	if row.RestaurantAddress != "" {
		if err := json.Unmarshal([]byte(row.RestaurantAddress), &o.RestaurantAddress); err != nil {
			return tracking.Order{}, err
		}
	}
	if row.CustomerAddress != "" {
		if err := json.Unmarshal([]byte(row.CustomerAddress), &o.CustomerAddress); err != nil {
			return tracking.Order{}, err
		}
	}
	return o, nil
}
