package storage

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// SalesRecord is one loaded transaction line.
type SalesRecord struct {
	OrderID      string          `json:"order_id"`
	OrderDate    time.Time       `json:"order_date"`
	ShipDate     time.Time       `json:"ship_date,omitempty"`
	CustomerID   string          `json:"customer_id"`
	CustomerName string          `json:"customer_name"`
	Segment      string          `json:"segment"`
	Category     string          `json:"category"`
	Subcategory  string          `json:"subcategory,omitempty"` // empty when the source did not carry it
	ProductID    string          `json:"product_id"`
	ProductName  string          `json:"product_name"`
	Region       string          `json:"region"`
	Sales        decimal.Decimal `json:"sales"`
	Quantity     int             `json:"quantity"`
}

// Job types.
const JobTypeLoadCSV = "load_csv"

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
	ResultJSON  string
}
