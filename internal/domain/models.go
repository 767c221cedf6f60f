package domain

import "time"

// Debt status values. The Indonesian terms are part of the wire contract
// ("belum lunas" = open, "lunas" = settled) and are kept verbatim.
const (
	DebtStatusOpen    = "belum lunas"
	DebtStatusSettled = "lunas"
)

// Per-debt payment outcomes reported by the settlement walk.
const (
	PaymentOutcomeSettled = "lunas"
	PaymentOutcomePartial = "sebagian"
)

const (
	LocationTypeStore     = "toko"
	LocationTypeWarehouse = "gudang"
)

const (
	RoleAdmin   = "admin"
	RoleCashier = "kasir"
)

type Product struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	Barcode      string     `json:"barcode"`
	Category     string     `json:"category"`
	Unit         string     `json:"unit"`
	PurchaseCost int64      `json:"purchase_cost"`
	SalePrice    int64      `json:"sale_price"`
	ExpiryDate   *time.Time `json:"expiry_date,omitempty"`
	OptimalStock int        `json:"optimal_stock"`
	Active       bool       `json:"active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type Location struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Customer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Contact   string    `json:"contact,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InventoryRecord is the per (product, location) stock row. At most one
// active record exists per pair; quantity never goes below zero.
type InventoryRecord struct {
	ID         int64     `json:"id"`
	ProductID  int64     `json:"product_id"`
	LocationID int64     `json:"location_id"`
	Quantity   int       `json:"quantity"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// StockRow is the denormalized stock listing (inventory joined with product
// and location) served to the POS terminal.
type StockRow struct {
	InventoryID  int64      `json:"inventory_id"`
	ProductID    int64      `json:"product_id"`
	LocationID   int64      `json:"location_id"`
	Quantity     int        `json:"quantity"`
	ProductName  string     `json:"product_name"`
	Barcode      string     `json:"barcode"`
	Category     string     `json:"category"`
	Unit         string     `json:"unit"`
	PurchaseCost int64      `json:"purchase_cost"`
	SalePrice    int64      `json:"sale_price"`
	ExpiryDate   *time.Time `json:"expiry_date,omitempty"`
	OptimalStock int        `json:"optimal_stock"`
	LocationName string     `json:"location_name"`
	LocationType string     `json:"location_type"`
}

type Sale struct {
	ID             int64     `json:"id"`
	CashierID      int64     `json:"cashier_id"`
	LocationID     int64     `json:"location_id"`
	CustomerID     *int64    `json:"customer_id,omitempty"`
	Date           time.Time `json:"date"`
	Total          int64     `json:"total"`
	Cash           int64     `json:"cash"`
	Change         int64     `json:"change"`
	IdempotencyKey string    `json:"-"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type SaleLine struct {
	ID          int64  `json:"id"`
	SaleID      int64  `json:"sale_id"`
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name,omitempty"`
	Qty         int    `json:"qty"`
	UnitPrice   int64  `json:"unit_price"`
}

// SaleRecord is a sale joined with its lines and related names for listing.
type SaleRecord struct {
	Sale
	CashierName   string     `json:"cashier_name"`
	LocationName  string     `json:"location_name"`
	CustomerName  string     `json:"customer_name,omitempty"`
	DebtBalance   int64      `json:"debt_balance"`
	DebtStatus    string     `json:"debt_status"`
	CustomerOwing int64      `json:"customer_total_debt"`
	Items         []SaleLine `json:"items"`
}

type Debt struct {
	ID         int64     `json:"id"`
	SaleID     *int64    `json:"sale_id,omitempty"`
	CustomerID int64     `json:"customer_id"`
	Balance    int64     `json:"balance"`
	Status     string    `json:"status"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type StockTransfer struct {
	ID                    int64     `json:"id"`
	ProductID             int64     `json:"product_id"`
	SourceLocationID      int64     `json:"source_location_id"`
	DestinationLocationID int64     `json:"destination_location_id"`
	Qty                   int       `json:"qty"`
	Note                  string    `json:"note,omitempty"`
	Date                  time.Time `json:"date"`
	CreatedAt             time.Time `json:"created_at"`
}

// TransferRecord is a transfer joined with product and location names.
type TransferRecord struct {
	StockTransfer
	ProductName             string `json:"product_name"`
	Unit                    string `json:"unit"`
	SourceLocationName      string `json:"source_location_name"`
	DestinationLocationName string `json:"destination_location_name"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	ID        int64
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type Actor struct {
	UserID   int64
	Username string
	Role     string
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	UserID      int64  `json:"user_id"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type SaleItemRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Qty       int   `json:"qty" validate:"required,gt=0"`
	UnitPrice int64 `json:"unit_price" validate:"gte=0"`
}

type CreateSaleRequest struct {
	CashierID       int64             `json:"cashier_id" validate:"required,gt=0"`
	LocationID      int64             `json:"location_id" validate:"required,gt=0"`
	CustomerID      *int64            `json:"customer_id,omitempty"`
	CustomerName    string            `json:"customer_name,omitempty"`
	CustomerContact string            `json:"customer_contact,omitempty"`
	Total           int64             `json:"total" validate:"gte=0"`
	Cash            int64             `json:"cash" validate:"gte=0"`
	IdempotencyKey  string            `json:"idempotency_key,omitempty"`
	Items           []SaleItemRequest `json:"items" validate:"required,min=1,dive"`
}

type SaleResult struct {
	SaleID     int64  `json:"sale_id"`
	CustomerID *int64 `json:"customer_id,omitempty"`
	DebtStatus string `json:"debt_status"`
	Shortfall  int64  `json:"shortfall"`
	Change     int64  `json:"change"`
	Duplicate  bool   `json:"duplicate"`
}

type TransferRequest struct {
	ProductID             int64  `json:"product_id" validate:"required,gt=0"`
	SourceLocationID      int64  `json:"source_location_id" validate:"required,gt=0"`
	DestinationLocationID int64  `json:"destination_location_id" validate:"required,gt=0"`
	Qty                   int    `json:"qty" validate:"required,gt=0"`
	Note                  string `json:"note,omitempty"`
}

type TransferResult struct {
	TransferID              int64  `json:"transfer_id"`
	ProductName             string `json:"product_name"`
	Unit                    string `json:"unit"`
	Qty                     int    `json:"qty"`
	SourceLocationName      string `json:"source_location_name"`
	DestinationLocationName string `json:"destination_location_name"`
}

type PayDebtRequest struct {
	CustomerID int64 `json:"customer_id" validate:"required,gt=0"`
	Amount     int64 `json:"amount" validate:"required,gt=0"`
}

// DebtPayment is one per-debt outcome of a settlement walk, oldest first.
type DebtPayment struct {
	DebtID        int64  `json:"debt_id"`
	CustomerName  string `json:"customer_name"`
	Contact       string `json:"contact,omitempty"`
	AmountApplied int64  `json:"amount_applied"`
	Status        string `json:"status"`
}

type CustomerDebtTotal struct {
	CustomerID   int64  `json:"customer_id"`
	CustomerName string `json:"customer_name"`
	Contact      string `json:"contact,omitempty"`
	TotalBalance int64  `json:"total_balance"`
}

type CreateProductRequest struct {
	Name         string `json:"name" validate:"required"`
	Barcode      string `json:"barcode,omitempty"`
	Category     string `json:"category,omitempty"`
	Unit         string `json:"unit" validate:"required"`
	PurchaseCost int64  `json:"purchase_cost" validate:"gte=0"`
	SalePrice    int64  `json:"sale_price" validate:"gte=0"`
	ExpiryDate   string `json:"expiry_date,omitempty"`
	OptimalStock int    `json:"optimal_stock" validate:"gte=0"`
	LocationID   int64  `json:"location_id" validate:"required,gt=0"`
	InitialStock int    `json:"initial_stock" validate:"gte=0"`
}

type UpdateProductRequest struct {
	Name         *string `json:"name,omitempty"`
	Barcode      *string `json:"barcode,omitempty"`
	Category     *string `json:"category,omitempty"`
	Unit         *string `json:"unit,omitempty"`
	PurchaseCost *int64  `json:"purchase_cost,omitempty"`
	SalePrice    *int64  `json:"sale_price,omitempty"`
	ExpiryDate   *string `json:"expiry_date,omitempty"`
	OptimalStock *int    `json:"optimal_stock,omitempty"`
}

type CreateLocationRequest struct {
	Name string `json:"name" validate:"required"`
	Type string `json:"type" validate:"required,oneof=toko gudang"`
}

type CreateCustomerRequest struct {
	Name    string `json:"name" validate:"required"`
	Contact string `json:"contact,omitempty"`
}

type CreateUserRequest struct {
	Username string `json:"username" validate:"required,min=3"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"required,oneof=admin kasir"`
}

type UpdateDebtRequest struct {
	Balance *int64  `json:"balance,omitempty" validate:"omitempty,gte=0"`
	Status  *string `json:"status,omitempty" validate:"omitempty,oneof='belum lunas' lunas"`
}

// SaleFilter narrows sale listings; zero values mean "no filter".
type SaleFilter struct {
	CustomerID int64
	LocationID int64
	Date       string
	DebtStatus string
}

// TransferFilter narrows transfer listings; zero values mean "no filter".
type TransferFilter struct {
	ProductID             int64
	SourceLocationID      int64
	DestinationLocationID int64
	DateFrom              string
	DateTo                string
}
