package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/gunjou/be-toko-yani/internal/cache"
	"github.com/gunjou/be-toko-yani/internal/domain"
	"github.com/gunjou/be-toko-yani/internal/store"
	"github.com/gunjou/be-toko-yani/internal/validate"
	"github.com/gunjou/be-toko-yani/internal/xid"
)

// ErrForbidden is the service-level backstop for role checks. Routes are
// gated in the HTTP layer too; this catches callers that bypass it.
var ErrForbidden = errors.New("admin role required")

const debtTotalTTL = 60 * time.Second

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo              store.Repository
	debtTotals        cache.DebtTotalCache
	allowSelfTransfer bool
}

func New(repo store.Repository, debtTotals cache.DebtTotalCache, allowSelfTransfer bool) *Service {
	if debtTotals == nil {
		debtTotals = cache.NoopDebtTotalCache{}
	}
	return &Service{
		repo:              repo,
		debtTotals:        debtTotals,
		allowSelfTransfer: allowSelfTransfer,
	}
}

func (s *Service) requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return ErrForbidden
	}
	return nil
}

// CreateSale records a sale. A request without an idempotency key gets a
// generated one, so retries of the same HTTP request body are only safe
// when the client supplies its own key.
func (s *Service) CreateSale(ctx context.Context, req domain.CreateSaleRequest) (*domain.SaleResult, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		key = xid.New("sale")
	} else {
		if existing, err := s.repo.FindSaleByIdempotencyKey(ctx, key); err == nil {
			existing.Duplicate = true
			log.Printf("[service] sale replay key=%s sale_id=%d", key, existing.SaleID)
			return existing, nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	result, err := s.repo.CreateSale(ctx, store.SaleCommand{
		CashierID:       req.CashierID,
		LocationID:      req.LocationID,
		CustomerID:      req.CustomerID,
		CustomerName:    req.CustomerName,
		CustomerContact: req.CustomerContact,
		Total:           req.Total,
		Cash:            req.Cash,
		IdempotencyKey:  key,
		Items:           req.Items,
	})
	if err != nil {
		return nil, err
	}

	if result.CustomerID != nil && result.Shortfall > 0 {
		s.invalidateDebtTotal(ctx, *result.CustomerID)
	}
	log.Printf("[service] sale recorded id=%d location=%d total=%d shortfall=%d duplicate=%t",
		result.SaleID, req.LocationID, req.Total, result.Shortfall, result.Duplicate)
	return result, nil
}

func (s *Service) TransferStock(ctx context.Context, req domain.TransferRequest) (*domain.TransferResult, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	result, err := s.repo.TransferStock(ctx, store.TransferCommand{
		ProductID:             req.ProductID,
		SourceLocationID:      req.SourceLocationID,
		DestinationLocationID: req.DestinationLocationID,
		Qty:                   req.Qty,
		Note:                  strings.TrimSpace(req.Note),
		AllowSelfTransfer:     s.allowSelfTransfer,
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[service] transfer recorded id=%d product=%q qty=%d %s -> %s",
		result.TransferID, result.ProductName, result.Qty, result.SourceLocationName, result.DestinationLocationName)
	return result, nil
}

func (s *Service) PayDebt(ctx context.Context, req domain.PayDebtRequest) ([]domain.DebtPayment, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	payments, err := s.repo.PayDebt(ctx, req.CustomerID, req.Amount)
	if err != nil {
		return nil, err
	}

	s.invalidateDebtTotal(ctx, req.CustomerID)
	log.Printf("[service] debt payment customer=%d amount=%d debts_touched=%d", req.CustomerID, req.Amount, len(payments))
	return payments, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.CreateProductRequest) (*domain.Product, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	expiry, err := parseExpiry(req.ExpiryDate)
	if err != nil {
		return nil, err
	}

	product := domain.Product{
		Name:         strings.TrimSpace(req.Name),
		Barcode:      strings.TrimSpace(req.Barcode),
		Category:     strings.TrimSpace(req.Category),
		Unit:         strings.TrimSpace(req.Unit),
		PurchaseCost: req.PurchaseCost,
		SalePrice:    req.SalePrice,
		ExpiryDate:   expiry,
		OptimalStock: req.OptimalStock,
	}

	created, err := s.repo.CreateProductWithStock(ctx, product, req.LocationID, req.InitialStock)
	if err != nil {
		return nil, err
	}
	log.Printf("[service] product created id=%d name=%q initial_stock=%d location=%d", created.ID, created.Name, req.InitialStock, req.LocationID)
	return created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, productID int64, req domain.UpdateProductRequest) (*domain.Product, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name empty", store.ErrValidation)
		}
		updated.Name = name
	}
	if req.Barcode != nil {
		updated.Barcode = strings.TrimSpace(*req.Barcode)
	}
	if req.Category != nil {
		updated.Category = strings.TrimSpace(*req.Category)
	}
	if req.Unit != nil {
		unit := strings.TrimSpace(*req.Unit)
		if unit == "" {
			return nil, fmt.Errorf("%w: unit empty", store.ErrValidation)
		}
		updated.Unit = unit
	}
	if req.PurchaseCost != nil {
		if *req.PurchaseCost < 0 {
			return nil, fmt.Errorf("%w: purchase cost negative", store.ErrValidation)
		}
		updated.PurchaseCost = *req.PurchaseCost
	}
	if req.SalePrice != nil {
		if *req.SalePrice < 0 {
			return nil, fmt.Errorf("%w: sale price negative", store.ErrValidation)
		}
		updated.SalePrice = *req.SalePrice
	}
	if req.ExpiryDate != nil {
		expiry, err := parseExpiry(*req.ExpiryDate)
		if err != nil {
			return nil, err
		}
		updated.ExpiryDate = expiry
	}
	if req.OptimalStock != nil {
		if *req.OptimalStock < 0 {
			return nil, fmt.Errorf("%w: optimal stock negative", store.ErrValidation)
		}
		updated.OptimalStock = *req.OptimalStock
	}

	return s.repo.UpdateProduct(ctx, updated)
}

func (s *Service) DeleteProduct(ctx context.Context, productID int64) error {
	if err := s.requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeactivateProduct(ctx, productID); err != nil {
		return err
	}
	log.Printf("[service] product deactivated id=%d", productID)
	return nil
}

func (s *Service) ListStock(ctx context.Context, locationID int64) ([]domain.StockRow, error) {
	return s.repo.ListStock(ctx, locationID)
}

func (s *Service) CreateLocation(ctx context.Context, req domain.CreateLocationRequest) (*domain.Location, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	return s.repo.CreateLocation(ctx, domain.Location{
		Name: strings.TrimSpace(req.Name),
		Type: req.Type,
	})
}

func (s *Service) ListLocations(ctx context.Context) ([]domain.Location, error) {
	return s.repo.ListLocations(ctx)
}

func (s *Service) UpdateLocation(ctx context.Context, locationID int64, req domain.CreateLocationRequest) (*domain.Location, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	return s.repo.UpdateLocation(ctx, domain.Location{
		ID:   locationID,
		Name: strings.TrimSpace(req.Name),
		Type: req.Type,
	})
}

func (s *Service) DeleteLocation(ctx context.Context, locationID int64) error {
	if err := s.requireAdmin(ctx); err != nil {
		return err
	}
	return s.repo.DeactivateLocation(ctx, locationID)
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CreateCustomerRequest) (*domain.Customer, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	return s.repo.CreateCustomer(ctx, domain.Customer{
		Name:    strings.TrimSpace(req.Name),
		Contact: strings.TrimSpace(req.Contact),
	})
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) GetCustomer(ctx context.Context, customerID int64) (*domain.Customer, error) {
	return s.repo.GetCustomer(ctx, customerID)
}

func (s *Service) UpdateCustomer(ctx context.Context, customerID int64, req domain.CreateCustomerRequest) (*domain.Customer, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	return s.repo.UpdateCustomer(ctx, domain.Customer{
		ID:      customerID,
		Name:    strings.TrimSpace(req.Name),
		Contact: strings.TrimSpace(req.Contact),
	})
}

func (s *Service) DeleteCustomer(ctx context.Context, customerID int64) error {
	if err := s.requireAdmin(ctx); err != nil {
		return err
	}
	return s.repo.DeactivateCustomer(ctx, customerID)
}

func (s *Service) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.SaleRecord, error) {
	return s.repo.ListSales(ctx, filter)
}

func (s *Service) GetSale(ctx context.Context, saleID int64) (*domain.SaleRecord, error) {
	return s.repo.GetSale(ctx, saleID)
}

func (s *Service) ListTransfers(ctx context.Context, filter domain.TransferFilter) ([]domain.TransferRecord, error) {
	return s.repo.ListTransfers(ctx, filter)
}

func (s *Service) ListOpenDebts(ctx context.Context) ([]domain.Debt, error) {
	return s.repo.ListOpenDebts(ctx)
}

func (s *Service) GetDebt(ctx context.Context, debtID int64) (*domain.Debt, error) {
	return s.repo.GetDebt(ctx, debtID)
}

func (s *Service) UpdateDebt(ctx context.Context, debtID int64, req domain.UpdateDebtRequest) (*domain.Debt, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	if req.Balance == nil && req.Status == nil {
		return nil, fmt.Errorf("%w: nothing to update", store.ErrValidation)
	}

	updated, err := s.repo.UpdateDebt(ctx, debtID, req.Balance, req.Status)
	if err != nil {
		return nil, err
	}
	s.invalidateDebtTotal(ctx, updated.CustomerID)
	return updated, nil
}

func (s *Service) DeleteDebt(ctx context.Context, debtID int64) error {
	if err := s.requireAdmin(ctx); err != nil {
		return err
	}

	debt, err := s.repo.GetDebt(ctx, debtID)
	if err != nil {
		return err
	}
	if err := s.repo.DeactivateDebt(ctx, debtID); err != nil {
		return err
	}
	s.invalidateDebtTotal(ctx, debt.CustomerID)
	return nil
}

func (s *Service) DebtTotals(ctx context.Context) ([]domain.CustomerDebtTotal, error) {
	return s.repo.DebtTotals(ctx)
}

// DebtTotalForCustomer is the hot read at the till. The cached total is
// short-lived and dropped by any write touching the customer's debts.
func (s *Service) DebtTotalForCustomer(ctx context.Context, customerID int64) (*domain.CustomerDebtTotal, error) {
	if cached, hit, err := s.debtTotals.Get(ctx, customerID); err != nil {
		log.Printf("[service] WARN: debt total cache read customer=%d: %v", customerID, err)
	} else if hit {
		return cached, nil
	}

	total, err := s.repo.DebtTotalForCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if err := s.debtTotals.Set(ctx, customerID, total, debtTotalTTL); err != nil {
		log.Printf("[service] WARN: debt total cache write customer=%d: %v", customerID, err)
	}
	return total, nil
}

// CreateUser registers a cashier or admin account. Usernames are stored
// lowercase so logins are case-insensitive.
func (s *Service) CreateUser(ctx context.Context, req domain.CreateUserRequest) error {
	if err := s.requireAdmin(ctx); err != nil {
		return err
	}
	if err := validate.Struct(req); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	username := strings.ToLower(strings.TrimSpace(req.Username))
	if err := s.repo.CreateUser(ctx, domain.UserAccount{
		Username: username,
		Password: string(hash),
		Role:     req.Role,
	}); err != nil {
		return err
	}
	log.Printf("[service] user created username=%q role=%s", username, req.Role)
	return nil
}

func (s *Service) invalidateDebtTotal(ctx context.Context, customerID int64) {
	if err := s.debtTotals.Invalidate(ctx, customerID); err != nil {
		log.Printf("[service] WARN: debt total cache invalidate customer=%d: %v", customerID, err)
	}
}

func parseExpiry(val string) (*time.Time, error) {
	val = strings.TrimSpace(val)
	if val == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation("2006-01-02", val, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("%w: expiry date must be YYYY-MM-DD", store.ErrValidation)
	}
	return &t, nil
}
