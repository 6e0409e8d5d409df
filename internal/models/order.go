package models

import "time"

// TrackedOrder is the persisted form of a locally tracked order.
type TrackedOrder struct {
	OrderID           string `gorm:"primaryKey;size:64"`
	Status            string `gorm:"size:32;index"`
	TrackingInfo      string `gorm:"size:64"`
	RestaurantAddress string `gorm:"type:json"`
	CustomerAddress   string `gorm:"type:json"`
	DriverRef         string `gorm:"size:64"`
	TotalAmount       float64
	OrderItems        string `gorm:"type:json"` // JSON array of order items
	Notes             string `gorm:"type:text"`
	PaymentMethod     string `gorm:"size:32"`
	AwaitingRating    bool   `gorm:"default:false"` // set when a terminal push is retained for the UI
	UpdatedAt         time.Time
	CreatedAt         time.Time
}
