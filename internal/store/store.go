package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/gunjou/be-toko-yani/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrNoActiveDebt = errors.New("no active debt for customer")
	ErrSelfTransfer = errors.New("source and destination location are the same")

	// ErrCustomerRequired fires when cash received is short of the total but
	// no customer is attached to carry the remainder as debt.
	ErrCustomerRequired = errors.New("customer required for credit sale")
)

// InsufficientStockError reports a failed stock check. ProductName and
// Available are filled so the cashier sees what is short and by how much.
type InsufficientStockError struct {
	ProductID   int64
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s, available %d", e.ProductName, e.Available)
}

// SaleCommand is the fully validated input of the sale engine. Items keep
// the client's order; the stores lock inventory rows in ascending product
// id order regardless.
type SaleCommand struct {
	CashierID       int64
	LocationID      int64
	CustomerID      *int64
	CustomerName    string
	CustomerContact string
	Total           int64
	Cash            int64
	IdempotencyKey  string
	Items           []domain.SaleItemRequest
}

// TransferCommand is the validated input of the transfer engine.
type TransferCommand struct {
	ProductID             int64
	SourceLocationID      int64
	DestinationLocationID int64
	Qty                   int
	Note                  string
	AllowSelfTransfer     bool
}

// Repository is the persistence boundary. Every method that mutates more
// than one row (CreateSale, TransferStock, PayDebt) executes atomically:
// either all of its writes land or none do.
type Repository interface {
	// Core transactional operations.
	CreateSale(ctx context.Context, cmd SaleCommand) (*domain.SaleResult, error)
	FindSaleByIdempotencyKey(ctx context.Context, key string) (*domain.SaleResult, error)
	TransferStock(ctx context.Context, cmd TransferCommand) (*domain.TransferResult, error)
	PayDebt(ctx context.Context, customerID int64, amount int64) ([]domain.DebtPayment, error)

	// Products and stock.
	CreateProductWithStock(ctx context.Context, product domain.Product, locationID int64, initialQty int) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeactivateProduct(ctx context.Context, productID int64) error
	GetProduct(ctx context.Context, productID int64) (*domain.Product, error)
	ListStock(ctx context.Context, locationID int64) ([]domain.StockRow, error)

	// Locations.
	CreateLocation(ctx context.Context, location domain.Location) (*domain.Location, error)
	ListLocations(ctx context.Context) ([]domain.Location, error)
	UpdateLocation(ctx context.Context, location domain.Location) (*domain.Location, error)
	DeactivateLocation(ctx context.Context, locationID int64) error

	// Customers.
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	GetCustomer(ctx context.Context, customerID int64) (*domain.Customer, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	DeactivateCustomer(ctx context.Context, customerID int64) error

	// Sales (read side).
	ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.SaleRecord, error)
	GetSale(ctx context.Context, saleID int64) (*domain.SaleRecord, error)

	// Transfers (read side).
	ListTransfers(ctx context.Context, filter domain.TransferFilter) ([]domain.TransferRecord, error)

	// Debts.
	ListOpenDebts(ctx context.Context) ([]domain.Debt, error)
	GetDebt(ctx context.Context, debtID int64) (*domain.Debt, error)
	UpdateDebt(ctx context.Context, debtID int64, balance *int64, status *string) (*domain.Debt, error)
	DeactivateDebt(ctx context.Context, debtID int64) error
	DebtTotals(ctx context.Context) ([]domain.CustomerDebtTotal, error)
	DebtTotalForCustomer(ctx context.Context, customerID int64) (*domain.CustomerDebtTotal, error)

	// Users (auth shell).
	FindUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
}
