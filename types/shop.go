package types

import (
	"time"
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

type OrderStatus string

const (
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
)

// Next returns the status an order advances to, or false when it is already delivered.
func (s OrderStatus) Next() (OrderStatus, bool) {
	switch s {
	case OrderProcessing:
		return OrderShipped, true
	case OrderShipped:
		return OrderDelivered, true
	default:
		return s, false
	}
}

// Document holds the fields every stored record carries. Timestamps are unix milliseconds.
type Document struct {
	ID        string `json:"internal_id"`
	CreatedAt int64  `json:"cr_time"`
	UpdatedAt int64  `json:"ch_time"`
}

func (d Document) Created() time.Time {
	return time.UnixMilli(d.CreatedAt)
}

func (d Document) GetID() string {
	return d.ID
}

type User struct {
	Document
	Name   string `json:"name" validate:"required"`
	Email  string `json:"email" validate:"required,email"`
	Photo  string `json:"photo" validate:"required"`
	Role   Role   `json:"role" validate:"omitempty,oneof=admin user"`
	Gender Gender `json:"gender" validate:"required,oneof=male female other"`
	DOB    string `json:"dob" validate:"required,datetime=2006-01-02"`
	Age    int    `json:"age"`
}

// AgeAt returns the user's age in whole years at now. Unparseable dates yield 0.
func (u User) AgeAt(now time.Time) int {
	dob, err := time.Parse("2006-01-02", u.DOB)
	if err != nil {
		return 0
	}

	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}

	if age < 0 {
		return 0
	}
	return age
}

type Photo struct {
	PublicID string `json:"public_id"`
	URL      string `json:"url"`
}

type Product struct {
	Document
	Name         string  `json:"name" validate:"required"`
	Photos       []Photo `json:"photos"`
	Price        float64 `json:"price" validate:"gt=0"`
	Stock        int     `json:"stock" validate:"min=0"`
	Category     string  `json:"category" validate:"required"`
	Description  string  `json:"description" validate:"required"`
	Ratings      int     `json:"ratings"`
	NumOfReviews int     `json:"numOfReviews"`
}

type Review struct {
	Document
	Comment string `json:"comment"`
	Rating  int    `json:"rating" validate:"min=1,max=5"`
	User    string `json:"user" validate:"required"`
	Product string `json:"product" validate:"required"`
}

type ShippingInfo struct {
	Address string `json:"address" validate:"required"`
	City    string `json:"city" validate:"required"`
	State   string `json:"state" validate:"required"`
	Country string `json:"country" validate:"required"`
	PinCode string `json:"pinCode" validate:"required"`
}

type OrderItem struct {
	Name      string  `json:"name" validate:"required"`
	Photo     string  `json:"photo"`
	Price     float64 `json:"price" validate:"gte=0"`
	Quantity  int     `json:"quantity" validate:"min=1"`
	ProductID string  `json:"productId" validate:"required"`
}

type Order struct {
	Document
	ShippingInfo    ShippingInfo `json:"shippingInfo"`
	User            string       `json:"user"`
	Subtotal        float64      `json:"subtotal"`
	Tax             float64      `json:"tax"`
	ShippingCharges float64      `json:"shippingCharges"`
	Discount        float64      `json:"discount"`
	Total           float64      `json:"total"`
	Status          OrderStatus  `json:"status"`
	OrderItems      []OrderItem  `json:"orderItems"`
}

type Coupon struct {
	Document
	Code   string  `json:"code" validate:"required"`
	Amount float64 `json:"amount" validate:"gt=0"`
}
