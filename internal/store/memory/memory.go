package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/gunjou/be-toko-yani/internal/domain"
	"github.com/gunjou/be-toko-yani/internal/store"
	"github.com/gunjou/be-toko-yani/internal/wita"
)

type pairKey struct {
	productID  int64
	locationID int64
}

type Store struct {
	mu            sync.RWMutex
	seq           map[string]int64
	products      map[int64]domain.Product
	locations     map[int64]domain.Location
	customers     map[int64]domain.Customer
	inventory     map[int64]domain.InventoryRecord
	invByPair     map[pairKey]int64
	sales         map[int64]domain.Sale
	saleLines     map[int64][]domain.SaleLine
	resultsByIdem map[string]domain.SaleResult
	debts         map[int64]domain.Debt
	transfers     map[int64]domain.StockTransfer
	users         map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		seq:           map[string]int64{},
		products:      map[int64]domain.Product{},
		locations:     map[int64]domain.Location{},
		customers:     map[int64]domain.Customer{},
		inventory:     map[int64]domain.InventoryRecord{},
		invByPair:     map[pairKey]int64{},
		sales:         map[int64]domain.Sale{},
		saleLines:     map[int64][]domain.SaleLine{},
		resultsByIdem: map[string]domain.SaleResult{},
		debts:         map[int64]domain.Debt{},
		transfers:     map[int64]domain.StockTransfer{},
		users:         map[string]domain.UserAccount{},
	}
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_KASIR_PASSWORD; when
// unset, hardcoded dev defaults are used with a warning. The backend uses
// PostgreSQL in production (DATABASE_URL set), so these never ship.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	kasirPwd := envOr("SEED_KASIR_PASSWORD", "kasir123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_KASIR_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_KASIR_PASSWORD to override.")
	}

	now := wita.Now()
	users := map[string]domain.UserAccount{}
	for i, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"kasir", kasirPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			ID:        int64(i + 1),
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store preloaded with a small shop: one toko, one
// gudang, a handful of products with stock in both, and two regulars.
// IDs are deterministic so tests can reference them directly.
func NewSeeded() *Store {
	s := New()
	now := wita.Now()

	locations := []domain.Location{
		{ID: 1, Name: "Toko Yani", Type: domain.LocationTypeStore, Active: true, CreatedAt: now, UpdatedAt: now},
		{ID: 2, Name: "Gudang Utama", Type: domain.LocationTypeWarehouse, Active: true, CreatedAt: now, UpdatedAt: now},
	}

	products := []domain.Product{
		{ID: 1, Name: "Mie Goreng Instan", Barcode: "8991001", Category: "sembako", Unit: "pcs", PurchaseCost: 2800, SalePrice: 3500, OptimalStock: 50, Active: true, CreatedAt: now, UpdatedAt: now},
		{ID: 2, Name: "Telur Ayam", Barcode: "8991002", Category: "sembako", Unit: "butir", PurchaseCost: 2200, SalePrice: 2700, OptimalStock: 100, Active: true, CreatedAt: now, UpdatedAt: now},
		{ID: 3, Name: "Gula Pasir 1kg", Barcode: "8991003", Category: "sembako", Unit: "kg", PurchaseCost: 15500, SalePrice: 17500, OptimalStock: 30, Active: true, CreatedAt: now, UpdatedAt: now},
		{ID: 4, Name: "Kopi Sachet", Barcode: "8991004", Category: "minuman", Unit: "pcs", PurchaseCost: 1900, SalePrice: 2500, OptimalStock: 80, Active: true, CreatedAt: now, UpdatedAt: now},
		{ID: 5, Name: "Sabun Mandi", Barcode: "8991005", Category: "kebersihan", Unit: "pcs", PurchaseCost: 5800, SalePrice: 7500, OptimalStock: 40, Active: true, CreatedAt: now, UpdatedAt: now},
		{ID: 6, Name: "Minyak Goreng 1L", Barcode: "8991006", Category: "sembako", Unit: "liter", PurchaseCost: 16800, SalePrice: 19000, OptimalStock: 25, Active: true, CreatedAt: now, UpdatedAt: now},
	}

	customers := []domain.Customer{
		{ID: 1, Name: "Ibu Sari", Contact: "0812-3456-7890", Active: true, CreatedAt: now, UpdatedAt: now},
		{ID: 2, Name: "Pak Budi", Contact: "0813-9876-5432", Active: true, CreatedAt: now, UpdatedAt: now},
	}

	for _, l := range locations {
		s.locations[l.ID] = l
	}
	for _, p := range products {
		s.products[p.ID] = p
	}
	for _, c := range customers {
		s.customers[c.ID] = c
	}

	var invID int64
	for _, p := range products {
		for _, l := range locations {
			qty := 40
			if l.Type == domain.LocationTypeWarehouse {
				qty = 200
			}
			invID++
			rec := domain.InventoryRecord{
				ID:         invID,
				ProductID:  p.ID,
				LocationID: l.ID,
				Quantity:   qty,
				Active:     true,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			s.inventory[rec.ID] = rec
			s.invByPair[pairKey{p.ID, l.ID}] = rec.ID
		}
	}

	s.users = seedUsers()
	s.seq["location"] = int64(len(locations))
	s.seq["product"] = int64(len(products))
	s.seq["customer"] = int64(len(customers))
	s.seq["inventory"] = invID
	s.seq["user"] = int64(len(s.users))

	return s
}

func (s *Store) next(name string) int64 {
	s.seq[name]++
	return s.seq[name]
}

func cmpString(a, b string) int {
	return strings.Compare(a, b)
}

// CreateSale runs the whole sale as one unit: every stock check happens
// before any mutation, so a failed line leaves nothing behind. Inventory is
// checked in ascending product id order to mirror the lock order of the
// postgres store.
func (s *Store) CreateSale(_ context.Context, cmd store.SaleCommand) (*domain.SaleResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cmd.IdempotencyKey == "" {
		return nil, fmt.Errorf("%w: idempotency key missing", store.ErrValidation)
	}
	if existing, ok := s.resultsByIdem[cmd.IdempotencyKey]; ok {
		dup := existing
		dup.Duplicate = true
		return &dup, nil
	}
	if len(cmd.Items) == 0 {
		return nil, fmt.Errorf("%w: sale has no items", store.ErrValidation)
	}

	loc, ok := s.locations[cmd.LocationID]
	if !ok || !loc.Active {
		return nil, fmt.Errorf("location %d: %w", cmd.LocationID, store.ErrNotFound)
	}

	change := cmd.Cash - cmd.Total
	if change < 0 {
		change = 0
	}
	shortfall := cmd.Total - cmd.Cash
	if shortfall < 0 {
		shortfall = 0
	}

	customerID := cmd.CustomerID
	var newCustomer *domain.Customer
	if customerID != nil {
		c, ok := s.customers[*customerID]
		if !ok || !c.Active {
			return nil, fmt.Errorf("customer %d: %w", *customerID, store.ErrNotFound)
		}
	} else if strings.TrimSpace(cmd.CustomerName) != "" {
		now := wita.Now()
		newCustomer = &domain.Customer{
			Name:      strings.TrimSpace(cmd.CustomerName),
			Contact:   strings.TrimSpace(cmd.CustomerContact),
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	if shortfall > 0 && customerID == nil && newCustomer == nil {
		return nil, store.ErrCustomerRequired
	}

	// Aggregate requested quantities per product, then check stock in
	// ascending product id order before touching anything.
	required := map[int64]int{}
	order := make([]int64, 0, len(cmd.Items))
	for _, item := range cmd.Items {
		if _, seen := required[item.ProductID]; !seen {
			order = append(order, item.ProductID)
		}
		required[item.ProductID] += item.Qty
	}
	slices.Sort(order)

	for _, productID := range order {
		product, ok := s.products[productID]
		if !ok || !product.Active {
			return nil, fmt.Errorf("product %d: %w", productID, store.ErrNotFound)
		}
		invID, ok := s.invByPair[pairKey{productID, cmd.LocationID}]
		rec, active := s.inventory[invID]
		if !ok || !active || !rec.Active {
			return nil, &store.InsufficientStockError{
				ProductID:   productID,
				ProductName: product.Name,
				Requested:   required[productID],
				Available:   0,
			}
		}
		if rec.Quantity < required[productID] {
			return nil, &store.InsufficientStockError{
				ProductID:   productID,
				ProductName: product.Name,
				Requested:   required[productID],
				Available:   rec.Quantity,
			}
		}
	}

	// All checks passed; apply.
	now := wita.Now()
	if newCustomer != nil {
		newCustomer.ID = s.next("customer")
		s.customers[newCustomer.ID] = *newCustomer
		customerID = &newCustomer.ID
	}

	saleID := s.next("sale")
	sale := domain.Sale{
		ID:             saleID,
		CashierID:      cmd.CashierID,
		LocationID:     cmd.LocationID,
		CustomerID:     customerID,
		Date:           now,
		Total:          cmd.Total,
		Cash:           cmd.Cash,
		Change:         change,
		IdempotencyKey: cmd.IdempotencyKey,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.sales[saleID] = sale

	lines := make([]domain.SaleLine, 0, len(cmd.Items))
	for _, item := range cmd.Items {
		lines = append(lines, domain.SaleLine{
			ID:        s.next("sale_line"),
			SaleID:    saleID,
			ProductID: item.ProductID,
			Qty:       item.Qty,
			UnitPrice: item.UnitPrice,
		})
		invID := s.invByPair[pairKey{item.ProductID, cmd.LocationID}]
		rec := s.inventory[invID]
		rec.Quantity -= item.Qty
		rec.UpdatedAt = now
		s.inventory[invID] = rec
	}
	s.saleLines[saleID] = lines

	debtStatus := domain.DebtStatusSettled
	if shortfall > 0 {
		debtStatus = domain.DebtStatusOpen
		debtID := s.next("debt")
		s.debts[debtID] = domain.Debt{
			ID:         debtID,
			SaleID:     &saleID,
			CustomerID: *customerID,
			Balance:    shortfall,
			Status:     domain.DebtStatusOpen,
			Active:     true,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
	}

	result := domain.SaleResult{
		SaleID:     saleID,
		CustomerID: customerID,
		DebtStatus: debtStatus,
		Shortfall:  shortfall,
		Change:     change,
	}
	s.resultsByIdem[cmd.IdempotencyKey] = result
	out := result
	return &out, nil
}

func (s *Store) FindSaleByIdempotencyKey(_ context.Context, key string) (*domain.SaleResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result, ok := s.resultsByIdem[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := result
	return &out, nil
}

// TransferStock moves qty between two locations as one unit. The source is
// checked before anything changes; the destination row is created lazily
// the first time a product reaches a location.
func (s *Store) TransferStock(_ context.Context, cmd store.TransferCommand) (*domain.TransferResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cmd.SourceLocationID == cmd.DestinationLocationID && !cmd.AllowSelfTransfer {
		return nil, store.ErrSelfTransfer
	}

	product, ok := s.products[cmd.ProductID]
	if !ok || !product.Active {
		return nil, fmt.Errorf("product %d: %w", cmd.ProductID, store.ErrNotFound)
	}
	src, ok := s.locations[cmd.SourceLocationID]
	if !ok || !src.Active {
		return nil, fmt.Errorf("location %d: %w", cmd.SourceLocationID, store.ErrNotFound)
	}
	dst, ok := s.locations[cmd.DestinationLocationID]
	if !ok || !dst.Active {
		return nil, fmt.Errorf("location %d: %w", cmd.DestinationLocationID, store.ErrNotFound)
	}

	srcInvID, ok := s.invByPair[pairKey{cmd.ProductID, cmd.SourceLocationID}]
	srcRec := s.inventory[srcInvID]
	if !ok || !srcRec.Active || srcRec.Quantity < cmd.Qty {
		available := 0
		if ok && srcRec.Active {
			available = srcRec.Quantity
		}
		return nil, &store.InsufficientStockError{
			ProductID:   cmd.ProductID,
			ProductName: product.Name,
			Requested:   cmd.Qty,
			Available:   available,
		}
	}

	now := wita.Now()
	srcRec.Quantity -= cmd.Qty
	srcRec.UpdatedAt = now
	s.inventory[srcInvID] = srcRec

	dstKey := pairKey{cmd.ProductID, cmd.DestinationLocationID}
	if dstInvID, ok := s.invByPair[dstKey]; ok {
		dstRec := s.inventory[dstInvID]
		dstRec.Quantity += cmd.Qty
		dstRec.Active = true
		dstRec.UpdatedAt = now
		s.inventory[dstInvID] = dstRec
	} else {
		rec := domain.InventoryRecord{
			ID:         s.next("inventory"),
			ProductID:  cmd.ProductID,
			LocationID: cmd.DestinationLocationID,
			Quantity:   cmd.Qty,
			Active:     true,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		s.inventory[rec.ID] = rec
		s.invByPair[dstKey] = rec.ID
	}

	transfer := domain.StockTransfer{
		ID:                    s.next("transfer"),
		ProductID:             cmd.ProductID,
		SourceLocationID:      cmd.SourceLocationID,
		DestinationLocationID: cmd.DestinationLocationID,
		Qty:                   cmd.Qty,
		Note:                  cmd.Note,
		Date:                  now,
		CreatedAt:             now,
	}
	s.transfers[transfer.ID] = transfer

	return &domain.TransferResult{
		TransferID:              transfer.ID,
		ProductName:             product.Name,
		Unit:                    product.Unit,
		Qty:                     cmd.Qty,
		SourceLocationName:      src.Name,
		DestinationLocationName: dst.Name,
	}, nil
}

// PayDebt settles a customer's open debts oldest first. The walk stops when
// the payment runs out; a leftover after the last debt is retained.
func (s *Store) PayDebt(_ context.Context, customerID int64, amount int64) ([]domain.DebtPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer, ok := s.customers[customerID]
	if !ok || !customer.Active {
		return nil, fmt.Errorf("customer %d: %w", customerID, store.ErrNotFound)
	}

	var open []domain.Debt
	for _, d := range s.debts {
		if d.Active && d.CustomerID == customerID && d.Status == domain.DebtStatusOpen {
			open = append(open, d)
		}
	}
	if len(open) == 0 {
		return nil, store.ErrNoActiveDebt
	}
	slices.SortFunc(open, func(a, b domain.Debt) int {
		return int(a.ID - b.ID)
	})

	now := wita.Now()
	remaining := amount
	payments := make([]domain.DebtPayment, 0, len(open))
	for _, d := range open {
		if remaining <= 0 {
			break
		}
		applied := remaining
		if applied > d.Balance {
			applied = d.Balance
		}
		d.Balance -= applied
		d.UpdatedAt = now
		outcome := domain.PaymentOutcomePartial
		if d.Balance == 0 {
			d.Status = domain.DebtStatusSettled
			outcome = domain.PaymentOutcomeSettled
		}
		s.debts[d.ID] = d
		remaining -= applied

		payments = append(payments, domain.DebtPayment{
			DebtID:        d.ID,
			CustomerName:  customer.Name,
			Contact:       customer.Contact,
			AmountApplied: applied,
			Status:        outcome,
		})
	}

	return payments, nil
}

func (s *Store) CreateProductWithStock(_ context.Context, product domain.Product, locationID int64, initialQty int) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loc, ok := s.locations[locationID]
	if !ok || !loc.Active {
		return nil, fmt.Errorf("location %d: %w", locationID, store.ErrNotFound)
	}

	now := wita.Now()
	product.ID = s.next("product")
	product.Active = true
	product.CreatedAt = now
	product.UpdatedAt = now
	s.products[product.ID] = product

	rec := domain.InventoryRecord{
		ID:         s.next("inventory"),
		ProductID:  product.ID,
		LocationID: locationID,
		Quantity:   initialQty,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.inventory[rec.ID] = rec
	s.invByPair[pairKey{product.ID, locationID}] = rec.ID

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok || !existing.Active {
		return nil, store.ErrNotFound
	}

	product.Active = true
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = wita.Now()
	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeactivateProduct(_ context.Context, productID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[productID]
	if !ok || !product.Active {
		return store.ErrNotFound
	}

	now := wita.Now()
	product.Active = false
	product.UpdatedAt = now
	s.products[productID] = product

	for id, rec := range s.inventory {
		if rec.ProductID == productID && rec.Active {
			rec.Active = false
			rec.UpdatedAt = now
			s.inventory[id] = rec
		}
	}
	return nil
}

func (s *Store) GetProduct(_ context.Context, productID int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[productID]
	if !ok || !product.Active {
		return nil, store.ErrNotFound
	}
	out := product
	return &out, nil
}

func (s *Store) ListStock(_ context.Context, locationID int64) ([]domain.StockRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]domain.StockRow, 0, len(s.inventory))
	for _, rec := range s.inventory {
		if !rec.Active {
			continue
		}
		if locationID > 0 && rec.LocationID != locationID {
			continue
		}
		product, ok := s.products[rec.ProductID]
		if !ok || !product.Active {
			continue
		}
		loc, ok := s.locations[rec.LocationID]
		if !ok || !loc.Active {
			continue
		}
		rows = append(rows, domain.StockRow{
			InventoryID:  rec.ID,
			ProductID:    product.ID,
			LocationID:   loc.ID,
			Quantity:     rec.Quantity,
			ProductName:  product.Name,
			Barcode:      product.Barcode,
			Category:     product.Category,
			Unit:         product.Unit,
			PurchaseCost: product.PurchaseCost,
			SalePrice:    product.SalePrice,
			ExpiryDate:   product.ExpiryDate,
			OptimalStock: product.OptimalStock,
			LocationName: loc.Name,
			LocationType: loc.Type,
		})
	}

	slices.SortFunc(rows, func(a, b domain.StockRow) int {
		if a.ProductName == b.ProductName {
			return int(a.LocationID - b.LocationID)
		}
		return cmpString(a.ProductName, b.ProductName)
	})

	return rows, nil
}

func (s *Store) CreateLocation(_ context.Context, location domain.Location) (*domain.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := wita.Now()
	location.ID = s.next("location")
	location.Active = true
	location.CreatedAt = now
	location.UpdatedAt = now
	s.locations[location.ID] = location
	created := location
	return &created, nil
}

func (s *Store) ListLocations(_ context.Context) ([]domain.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	locations := make([]domain.Location, 0, len(s.locations))
	for _, l := range s.locations {
		if !l.Active {
			continue
		}
		locations = append(locations, l)
	}
	slices.SortFunc(locations, func(a, b domain.Location) int {
		return int(a.ID - b.ID)
	})
	return locations, nil
}

func (s *Store) UpdateLocation(_ context.Context, location domain.Location) (*domain.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.locations[location.ID]
	if !ok || !existing.Active {
		return nil, store.ErrNotFound
	}

	location.Active = true
	location.CreatedAt = existing.CreatedAt
	location.UpdatedAt = wita.Now()
	s.locations[location.ID] = location
	updated := location
	return &updated, nil
}

func (s *Store) DeactivateLocation(_ context.Context, locationID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	loc, ok := s.locations[locationID]
	if !ok || !loc.Active {
		return store.ErrNotFound
	}
	loc.Active = false
	loc.UpdatedAt = wita.Now()
	s.locations[locationID] = loc
	return nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := wita.Now()
	customer.ID = s.next("customer")
	customer.Active = true
	customer.CreatedAt = now
	customer.UpdatedAt = now
	s.customers[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		if !c.Active {
			continue
		}
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return cmpString(a.Name, b.Name)
	})
	return customers, nil
}

func (s *Store) GetCustomer(_ context.Context, customerID int64) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.customers[customerID]
	if !ok || !customer.Active {
		return nil, store.ErrNotFound
	}
	out := customer
	return &out, nil
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.customers[customer.ID]
	if !ok || !existing.Active {
		return nil, store.ErrNotFound
	}

	customer.Active = true
	customer.CreatedAt = existing.CreatedAt
	customer.UpdatedAt = wita.Now()
	s.customers[customer.ID] = customer
	updated := customer
	return &updated, nil
}

func (s *Store) DeactivateCustomer(_ context.Context, customerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer, ok := s.customers[customerID]
	if !ok || !customer.Active {
		return store.ErrNotFound
	}
	customer.Active = false
	customer.UpdatedAt = wita.Now()
	s.customers[customerID] = customer
	return nil
}

func (s *Store) ListSales(_ context.Context, filter domain.SaleFilter) ([]domain.SaleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]domain.SaleRecord, 0, len(s.sales))
	for _, sale := range s.sales {
		if !sale.Active {
			continue
		}
		if filter.CustomerID > 0 && (sale.CustomerID == nil || *sale.CustomerID != filter.CustomerID) {
			continue
		}
		if filter.LocationID > 0 && sale.LocationID != filter.LocationID {
			continue
		}
		if filter.Date != "" && sale.Date.Format("2006-01-02") != filter.Date {
			continue
		}
		rec := s.buildSaleRecord(sale)
		if filter.DebtStatus != "" && rec.DebtStatus != filter.DebtStatus {
			continue
		}
		records = append(records, rec)
	}

	slices.SortFunc(records, func(a, b domain.SaleRecord) int {
		return int(b.ID - a.ID)
	})
	return records, nil
}

func (s *Store) GetSale(_ context.Context, saleID int64) (*domain.SaleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[saleID]
	if !ok || !sale.Active {
		return nil, store.ErrNotFound
	}
	rec := s.buildSaleRecord(sale)
	return &rec, nil
}

// buildSaleRecord joins a sale with its lines, names, and the customer's
// aggregate open debt. Callers must hold at least a read lock.
func (s *Store) buildSaleRecord(sale domain.Sale) domain.SaleRecord {
	rec := domain.SaleRecord{Sale: sale, DebtStatus: domain.DebtStatusSettled}

	if loc, ok := s.locations[sale.LocationID]; ok {
		rec.LocationName = loc.Name
	}
	for _, u := range s.users {
		if u.ID == sale.CashierID {
			rec.CashierName = u.Username
			break
		}
	}
	if sale.CustomerID != nil {
		if c, ok := s.customers[*sale.CustomerID]; ok {
			rec.CustomerName = c.Name
		}
		for _, d := range s.debts {
			if !d.Active || d.CustomerID != *sale.CustomerID {
				continue
			}
			if d.SaleID != nil && *d.SaleID == sale.ID {
				rec.DebtBalance = d.Balance
				rec.DebtStatus = d.Status
			}
			if d.Status == domain.DebtStatusOpen {
				rec.CustomerOwing += d.Balance
			}
		}
	}

	lines := make([]domain.SaleLine, 0, len(s.saleLines[sale.ID]))
	for _, line := range s.saleLines[sale.ID] {
		if p, ok := s.products[line.ProductID]; ok {
			line.ProductName = p.Name
		}
		lines = append(lines, line)
	}
	rec.Items = lines
	return rec
}

func (s *Store) ListTransfers(_ context.Context, filter domain.TransferFilter) ([]domain.TransferRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]domain.TransferRecord, 0, len(s.transfers))
	for _, t := range s.transfers {
		if filter.ProductID > 0 && t.ProductID != filter.ProductID {
			continue
		}
		if filter.SourceLocationID > 0 && t.SourceLocationID != filter.SourceLocationID {
			continue
		}
		if filter.DestinationLocationID > 0 && t.DestinationLocationID != filter.DestinationLocationID {
			continue
		}
		day := t.Date.Format("2006-01-02")
		if filter.DateFrom != "" && day < filter.DateFrom {
			continue
		}
		if filter.DateTo != "" && day > filter.DateTo {
			continue
		}

		rec := domain.TransferRecord{StockTransfer: t}
		if p, ok := s.products[t.ProductID]; ok {
			rec.ProductName = p.Name
			rec.Unit = p.Unit
		}
		if l, ok := s.locations[t.SourceLocationID]; ok {
			rec.SourceLocationName = l.Name
		}
		if l, ok := s.locations[t.DestinationLocationID]; ok {
			rec.DestinationLocationName = l.Name
		}
		records = append(records, rec)
	}

	slices.SortFunc(records, func(a, b domain.TransferRecord) int {
		return int(b.ID - a.ID)
	})
	return records, nil
}

func (s *Store) ListOpenDebts(_ context.Context) ([]domain.Debt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	debts := make([]domain.Debt, 0, len(s.debts))
	for _, d := range s.debts {
		if d.Active && d.Status == domain.DebtStatusOpen {
			debts = append(debts, d)
		}
	}
	slices.SortFunc(debts, func(a, b domain.Debt) int {
		return int(a.ID - b.ID)
	})
	return debts, nil
}

func (s *Store) GetDebt(_ context.Context, debtID int64) (*domain.Debt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.debts[debtID]
	if !ok || !d.Active {
		return nil, store.ErrNotFound
	}
	out := d
	return &out, nil
}

func (s *Store) UpdateDebt(_ context.Context, debtID int64, balance *int64, status *string) (*domain.Debt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.debts[debtID]
	if !ok || !d.Active {
		return nil, store.ErrNotFound
	}
	if d.Status != domain.DebtStatusOpen {
		return nil, fmt.Errorf("%w: debt %d already settled", store.ErrValidation, debtID)
	}

	if balance != nil {
		d.Balance = *balance
	}
	if status != nil {
		d.Status = *status
	}
	if d.Balance == 0 {
		d.Status = domain.DebtStatusSettled
	}
	d.UpdatedAt = wita.Now()
	s.debts[debtID] = d
	out := d
	return &out, nil
}

func (s *Store) DeactivateDebt(_ context.Context, debtID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.debts[debtID]
	if !ok || !d.Active {
		return store.ErrNotFound
	}
	d.Active = false
	d.UpdatedAt = wita.Now()
	s.debts[debtID] = d
	return nil
}

func (s *Store) DebtTotals(_ context.Context) ([]domain.CustomerDebtTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byCustomer := map[int64]int64{}
	for _, d := range s.debts {
		if d.Active && d.Status == domain.DebtStatusOpen {
			byCustomer[d.CustomerID] += d.Balance
		}
	}

	totals := make([]domain.CustomerDebtTotal, 0, len(byCustomer))
	for customerID, balance := range byCustomer {
		total := domain.CustomerDebtTotal{CustomerID: customerID, TotalBalance: balance}
		if c, ok := s.customers[customerID]; ok {
			total.CustomerName = c.Name
			total.Contact = c.Contact
		}
		totals = append(totals, total)
	}
	slices.SortFunc(totals, func(a, b domain.CustomerDebtTotal) int {
		return int(a.CustomerID - b.CustomerID)
	})
	return totals, nil
}

func (s *Store) DebtTotalForCustomer(_ context.Context, customerID int64) (*domain.CustomerDebtTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.customers[customerID]
	if !ok || !customer.Active {
		return nil, store.ErrNotFound
	}

	total := domain.CustomerDebtTotal{
		CustomerID:   customerID,
		CustomerName: customer.Name,
		Contact:      customer.Contact,
	}
	for _, d := range s.debts {
		if d.Active && d.CustomerID == customerID && d.Status == domain.DebtStatusOpen {
			total.TotalBalance += d.Balance
		}
	}
	return &total, nil
}

func (s *Store) FindUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[username]
	if !ok || !user.Active {
		return nil, store.ErrNotFound
	}
	out := user
	return &out, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" {
		return fmt.Errorf("%w: username missing", store.ErrValidation)
	}
	if _, exists := s.users[user.Username]; exists {
		return fmt.Errorf("%w: username taken", store.ErrValidation)
	}
	user.ID = s.next("user")
	user.Active = true
	if user.CreatedAt.IsZero() {
		user.CreatedAt = wita.Now()
	}
	s.users[user.Username] = user
	return nil
}
