package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/gunjou/be-toko-yani/internal/domain"
	"github.com/gunjou/be-toko-yani/internal/store"
	"github.com/gunjou/be-toko-yani/internal/wita"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSale writes the sale header, its lines, the stock decrements, and
// the debt row (when cash is short) inside one serializable transaction.
// Inventory rows are locked in ascending product id order so two concurrent
// sales over the same products cannot deadlock each other.
func (s *Store) CreateSale(ctx context.Context, cmd store.SaleCommand) (*domain.SaleResult, error) {
	if cmd.IdempotencyKey == "" {
		return nil, fmt.Errorf("%w: idempotency key missing", store.ErrValidation)
	}
	if len(cmd.Items) == 0 {
		return nil, fmt.Errorf("%w: sale has no items", store.ErrValidation)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if existing, err := findSaleResult(ctx, tx, cmd.IdempotencyKey); err == nil {
		existing.Duplicate = true
		return existing, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	var locationExists bool
	err = tx.QueryRowContext(ctx, `
		SELECT true FROM locations WHERE id = $1 AND active = true
	`, cmd.LocationID).Scan(&locationExists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("location %d: %w", cmd.LocationID, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	change := maxInt64(0, cmd.Cash-cmd.Total)
	shortfall := maxInt64(0, cmd.Total-cmd.Cash)
	now := wita.Now()

	customerID := cmd.CustomerID
	if customerID != nil {
		var exists bool
		err = tx.QueryRowContext(ctx, `
			SELECT true FROM customers WHERE id = $1 AND active = true
		`, *customerID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("customer %d: %w", *customerID, store.ErrNotFound)
		}
		if err != nil {
			return nil, err
		}
	} else if name := strings.TrimSpace(cmd.CustomerName); name != "" {
		var newID int64
		err = tx.QueryRowContext(ctx, `
			INSERT INTO customers (name, contact, active, created_at, updated_at)
			VALUES ($1,$2,true,$3,$3)
			RETURNING id
		`, name, strings.TrimSpace(cmd.CustomerContact), now).Scan(&newID)
		if err != nil {
			return nil, err
		}
		customerID = &newID
	}
	if shortfall > 0 && customerID == nil {
		return nil, store.ErrCustomerRequired
	}

	required := map[int64]int{}
	productIDs := make([]int64, 0, len(cmd.Items))
	for _, item := range cmd.Items {
		if _, seen := required[item.ProductID]; !seen {
			productIDs = append(productIDs, item.ProductID)
		}
		required[item.ProductID] += item.Qty
	}
	slices.Sort(productIDs)

	for _, productID := range productIDs {
		var name string
		err = tx.QueryRowContext(ctx, `
			SELECT name FROM products WHERE id = $1 AND active = true
		`, productID).Scan(&name)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("product %d: %w", productID, store.ErrNotFound)
		}
		if err != nil {
			return nil, err
		}

		var qty int
		err = tx.QueryRowContext(ctx, `
			SELECT quantity FROM inventory
			WHERE product_id = $1 AND location_id = $2 AND active = true
			FOR UPDATE
		`, productID, cmd.LocationID).Scan(&qty)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &store.InsufficientStockError{
				ProductID:   productID,
				ProductName: name,
				Requested:   required[productID],
				Available:   0,
			}
		}
		if err != nil {
			return nil, err
		}
		if qty < required[productID] {
			return nil, &store.InsufficientStockError{
				ProductID:   productID,
				ProductName: name,
				Requested:   required[productID],
				Available:   qty,
			}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE inventory
			SET quantity = quantity - $1, updated_at = $2
			WHERE product_id = $3 AND location_id = $4 AND active = true
		`, required[productID], now, productID, cmd.LocationID)
		if err != nil {
			return nil, err
		}
	}

	var saleID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO sales (cashier_id, location_id, customer_id, sale_date, total, cash, change, idempotency_key, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,true,$4,$4)
		RETURNING id
	`, cmd.CashierID, cmd.LocationID, customerID, now, cmd.Total, cmd.Cash, change, cmd.IdempotencyKey).Scan(&saleID)
	if err != nil {
		if isUniqueViolation(err) {
			existing, lookupErr := s.FindSaleByIdempotencyKey(ctx, cmd.IdempotencyKey)
			if lookupErr == nil {
				existing.Duplicate = true
				return existing, nil
			}
		}
		return nil, err
	}

	for _, item := range cmd.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, product_id, qty, unit_price)
			VALUES ($1,$2,$3,$4)
		`, saleID, item.ProductID, item.Qty, item.UnitPrice)
		if err != nil {
			return nil, err
		}
	}

	debtStatus := domain.DebtStatusSettled
	if shortfall > 0 {
		debtStatus = domain.DebtStatusOpen
		_, err = tx.ExecContext(ctx, `
			INSERT INTO debts (sale_id, customer_id, balance, status, active, created_at, updated_at)
			VALUES ($1,$2,$3,$4,true,$5,$5)
		`, saleID, *customerID, shortfall, domain.DebtStatusOpen, now)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &domain.SaleResult{
		SaleID:     saleID,
		CustomerID: customerID,
		DebtStatus: debtStatus,
		Shortfall:  shortfall,
		Change:     change,
	}, nil
}

func (s *Store) FindSaleByIdempotencyKey(ctx context.Context, key string) (*domain.SaleResult, error) {
	return findSaleResult(ctx, s.db, key)
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func findSaleResult(ctx context.Context, q rowQuerier, key string) (*domain.SaleResult, error) {
	var (
		saleID     int64
		customerID sql.NullInt64
		total      int64
		cash       int64
		change     int64
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, customer_id, total, cash, change
		FROM sales
		WHERE idempotency_key = $1 AND active = true
	`, key).Scan(&saleID, &customerID, &total, &cash, &change)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	shortfall := maxInt64(0, total-cash)
	result := domain.SaleResult{
		SaleID:     saleID,
		DebtStatus: domain.DebtStatusSettled,
		Shortfall:  shortfall,
		Change:     change,
	}
	if customerID.Valid {
		id := customerID.Int64
		result.CustomerID = &id
	}
	if shortfall > 0 {
		result.DebtStatus = domain.DebtStatusOpen
	}
	return &result, nil
}

// TransferStock locks both inventory rows of the product in ascending
// location id order, checks the source, then applies the move inside one
// transaction. The canonical order means concurrent opposite-direction
// transfers of the same product queue instead of deadlocking.
func (s *Store) TransferStock(ctx context.Context, cmd store.TransferCommand) (*domain.TransferResult, error) {
	if cmd.SourceLocationID == cmd.DestinationLocationID && !cmd.AllowSelfTransfer {
		return nil, store.ErrSelfTransfer
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var productName, unit string
	err = tx.QueryRowContext(ctx, `
		SELECT name, unit FROM products WHERE id = $1 AND active = true
	`, cmd.ProductID).Scan(&productName, &unit)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %d: %w", cmd.ProductID, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	names := map[int64]string{}
	for _, locationID := range []int64{cmd.SourceLocationID, cmd.DestinationLocationID} {
		var name string
		err = tx.QueryRowContext(ctx, `
			SELECT name FROM locations WHERE id = $1 AND active = true
		`, locationID).Scan(&name)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("location %d: %w", locationID, store.ErrNotFound)
		}
		if err != nil {
			return nil, err
		}
		names[locationID] = name
	}

	now := wita.Now()

	type invRow struct {
		id     int64
		qty    int
		active bool
		found  bool
	}
	locked := map[int64]invRow{}
	lockOrder := []int64{cmd.SourceLocationID, cmd.DestinationLocationID}
	if lockOrder[1] < lockOrder[0] {
		lockOrder[0], lockOrder[1] = lockOrder[1], lockOrder[0]
	}
	for _, locationID := range lockOrder {
		if _, done := locked[locationID]; done {
			continue
		}
		var row invRow
		err = tx.QueryRowContext(ctx, `
			SELECT id, quantity, active FROM inventory
			WHERE product_id = $1 AND location_id = $2
			FOR UPDATE
		`, cmd.ProductID, locationID).Scan(&row.id, &row.qty, &row.active)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return nil, err
		default:
			row.found = true
		}
		locked[locationID] = row
	}

	source := locked[cmd.SourceLocationID]
	if !source.found || !source.active || source.qty < cmd.Qty {
		available := 0
		if source.found && source.active {
			available = source.qty
		}
		return nil, &store.InsufficientStockError{
			ProductID:   cmd.ProductID,
			ProductName: productName,
			Requested:   cmd.Qty,
			Available:   available,
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE inventory
		SET quantity = quantity - $1, updated_at = $2
		WHERE id = $3
	`, cmd.Qty, now, source.id)
	if err != nil {
		return nil, err
	}

	if dest := locked[cmd.DestinationLocationID]; dest.found {
		_, err = tx.ExecContext(ctx, `
			UPDATE inventory
			SET quantity = quantity + $1, active = true, updated_at = $2
			WHERE id = $3
		`, cmd.Qty, now, dest.id)
		if err != nil {
			return nil, err
		}
	} else {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO inventory (product_id, location_id, quantity, active, created_at, updated_at)
			VALUES ($1,$2,$3,true,$4,$4)
		`, cmd.ProductID, cmd.DestinationLocationID, cmd.Qty, now)
		if err != nil {
			return nil, err
		}
	}

	var transferID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO stock_transfers (product_id, source_location_id, destination_location_id, qty, note, transfer_date, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$6)
		RETURNING id
	`, cmd.ProductID, cmd.SourceLocationID, cmd.DestinationLocationID, cmd.Qty, nullIfEmpty(cmd.Note), now).Scan(&transferID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &domain.TransferResult{
		TransferID:              transferID,
		ProductName:             productName,
		Unit:                    unit,
		Qty:                     cmd.Qty,
		SourceLocationName:      names[cmd.SourceLocationID],
		DestinationLocationName: names[cmd.DestinationLocationID],
	}, nil
}

// PayDebt locks the customer's open debts in ascending id order and settles
// them oldest first until the payment runs out.
func (s *Store) PayDebt(ctx context.Context, customerID int64, amount int64) ([]domain.DebtPayment, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var customerName, contact string
	err = tx.QueryRowContext(ctx, `
		SELECT name, COALESCE(contact, '') FROM customers WHERE id = $1 AND active = true
	`, customerID).Scan(&customerName, &contact)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("customer %d: %w", customerID, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, balance FROM debts
		WHERE customer_id = $1 AND status = $2 AND active = true
		ORDER BY id ASC
		FOR UPDATE
	`, customerID, domain.DebtStatusOpen)
	if err != nil {
		return nil, err
	}

	type openDebt struct {
		id      int64
		balance int64
	}
	open := make([]openDebt, 0, 8)
	for rows.Next() {
		var d openDebt
		if err := rows.Scan(&d.id, &d.balance); err != nil {
			_ = rows.Close()
			return nil, err
		}
		open = append(open, d)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if len(open) == 0 {
		return nil, store.ErrNoActiveDebt
	}

	now := wita.Now()
	remaining := amount
	payments := make([]domain.DebtPayment, 0, len(open))
	for _, d := range open {
		if remaining <= 0 {
			break
		}
		applied := remaining
		if applied > d.balance {
			applied = d.balance
		}
		newBalance := d.balance - applied
		status := domain.DebtStatusOpen
		outcome := domain.PaymentOutcomePartial
		if newBalance == 0 {
			status = domain.DebtStatusSettled
			outcome = domain.PaymentOutcomeSettled
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE debts
			SET balance = $1, status = $2, updated_at = $3
			WHERE id = $4
		`, newBalance, status, now, d.id)
		if err != nil {
			return nil, err
		}
		remaining -= applied

		payments = append(payments, domain.DebtPayment{
			DebtID:        d.id,
			CustomerName:  customerName,
			Contact:       contact,
			AmountApplied: applied,
			Status:        outcome,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return payments, nil
}

// CreateProductWithStock inserts the product and its opening inventory row
// at the given location as one transaction.
func (s *Store) CreateProductWithStock(ctx context.Context, product domain.Product, locationID int64, initialQty int) (*domain.Product, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var locationExists bool
	err = tx.QueryRowContext(ctx, `
		SELECT true FROM locations WHERE id = $1 AND active = true
	`, locationID).Scan(&locationExists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("location %d: %w", locationID, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	now := wita.Now()
	product.Active = true
	product.CreatedAt = now
	product.UpdatedAt = now
	err = tx.QueryRowContext(ctx, `
		INSERT INTO products (name, barcode, category, unit, purchase_cost, sale_price, expiry_date, optimal_stock, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,true,$9,$9)
		RETURNING id
	`, product.Name, nullIfEmpty(product.Barcode), nullIfEmpty(product.Category), product.Unit,
		product.PurchaseCost, product.SalePrice, nullDate(product.ExpiryDate), product.OptimalStock, now).Scan(&product.ID)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO inventory (product_id, location_id, quantity, active, created_at, updated_at)
		VALUES ($1,$2,$3,true,$4,$4)
	`, product.ID, locationID, initialQty, now)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	now := wita.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, barcode = $3, category = $4, unit = $5, purchase_cost = $6,
		    sale_price = $7, expiry_date = $8, optimal_stock = $9, updated_at = $10
		WHERE id = $1 AND active = true
	`, product.ID, product.Name, nullIfEmpty(product.Barcode), nullIfEmpty(product.Category), product.Unit,
		product.PurchaseCost, product.SalePrice, nullDate(product.ExpiryDate), product.OptimalStock, now)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	product.Active = true
	product.UpdatedAt = now
	updated := product
	return &updated, nil
}

// DeactivateProduct soft-deletes the product and every inventory row that
// carries it, so the stock listing drops it everywhere at once.
func (s *Store) DeactivateProduct(ctx context.Context, productID int64) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := wita.Now()
	res, err := tx.ExecContext(ctx, `
		UPDATE products SET active = false, updated_at = $2 WHERE id = $1 AND active = true
	`, productID, now)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE inventory SET active = false, updated_at = $2 WHERE product_id = $1 AND active = true
	`, productID, now)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) GetProduct(ctx context.Context, productID int64) (*domain.Product, error) {
	var (
		p      domain.Product
		expiry sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(barcode, ''), COALESCE(category, ''), unit, purchase_cost, sale_price, expiry_date, optimal_stock, active, created_at, updated_at
		FROM products
		WHERE id = $1 AND active = true
	`, productID).Scan(&p.ID, &p.Name, &p.Barcode, &p.Category, &p.Unit, &p.PurchaseCost, &p.SalePrice, &expiry, &p.OptimalStock, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if expiry.Valid {
		e := expiry.Time
		p.ExpiryDate = &e
	}
	return &p, nil
}

func (s *Store) ListStock(ctx context.Context, locationID int64) ([]domain.StockRow, error) {
	query := `
		SELECT i.id, p.id, l.id, i.quantity,
		       p.name, COALESCE(p.barcode, ''), COALESCE(p.category, ''), p.unit,
		       p.purchase_cost, p.sale_price, p.expiry_date, p.optimal_stock,
		       l.name, l.type
		FROM inventory i
		JOIN products p ON p.id = i.product_id AND p.active = true
		JOIN locations l ON l.id = i.location_id AND l.active = true
		WHERE i.active = true
	`
	args := []any{}
	if locationID > 0 {
		query += ` AND i.location_id = $1`
		args = append(args, locationID)
	}
	query += ` ORDER BY p.name, l.id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stock := make([]domain.StockRow, 0, 128)
	for rows.Next() {
		var (
			row    domain.StockRow
			expiry sql.NullTime
		)
		if err := rows.Scan(&row.InventoryID, &row.ProductID, &row.LocationID, &row.Quantity,
			&row.ProductName, &row.Barcode, &row.Category, &row.Unit,
			&row.PurchaseCost, &row.SalePrice, &expiry, &row.OptimalStock,
			&row.LocationName, &row.LocationType); err != nil {
			return nil, err
		}
		if expiry.Valid {
			e := expiry.Time
			row.ExpiryDate = &e
		}
		stock = append(stock, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stock, nil
}

func (s *Store) CreateLocation(ctx context.Context, location domain.Location) (*domain.Location, error) {
	now := wita.Now()
	location.Active = true
	location.CreatedAt = now
	location.UpdatedAt = now
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO locations (name, type, active, created_at, updated_at)
		VALUES ($1,$2,true,$3,$3)
		RETURNING id
	`, location.Name, location.Type, now).Scan(&location.ID)
	if err != nil {
		return nil, err
	}
	created := location
	return &created, nil
}

func (s *Store) ListLocations(ctx context.Context) ([]domain.Location, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, active, created_at, updated_at
		FROM locations
		WHERE active = true
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	locations := make([]domain.Location, 0, 8)
	for rows.Next() {
		var l domain.Location
		if err := rows.Scan(&l.ID, &l.Name, &l.Type, &l.Active, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		locations = append(locations, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return locations, nil
}

func (s *Store) UpdateLocation(ctx context.Context, location domain.Location) (*domain.Location, error) {
	now := wita.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE locations SET name = $2, type = $3, updated_at = $4 WHERE id = $1 AND active = true
	`, location.ID, location.Name, location.Type, now)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	location.Active = true
	location.UpdatedAt = now
	updated := location
	return &updated, nil
}

func (s *Store) DeactivateLocation(ctx context.Context, locationID int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE locations SET active = false, updated_at = $2 WHERE id = $1 AND active = true
	`, locationID, wita.Now())
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	now := wita.Now()
	customer.Active = true
	customer.CreatedAt = now
	customer.UpdatedAt = now
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO customers (name, contact, active, created_at, updated_at)
		VALUES ($1,$2,true,$3,$3)
		RETURNING id
	`, customer.Name, nullIfEmpty(customer.Contact), now).Scan(&customer.ID)
	if err != nil {
		return nil, err
	}
	created := customer
	return &created, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(contact, ''), active, created_at, updated_at
		FROM customers
		WHERE active = true
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Contact, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) GetCustomer(ctx context.Context, customerID int64) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(contact, ''), active, created_at, updated_at
		FROM customers
		WHERE id = $1 AND active = true
	`, customerID).Scan(&c.ID, &c.Name, &c.Contact, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	now := wita.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE customers SET name = $2, contact = $3, updated_at = $4 WHERE id = $1 AND active = true
	`, customer.ID, customer.Name, nullIfEmpty(customer.Contact), now)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	customer.Active = true
	customer.UpdatedAt = now
	updated := customer
	return &updated, nil
}

func (s *Store) DeactivateCustomer(ctx context.Context, customerID int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE customers SET active = false, updated_at = $2 WHERE id = $1 AND active = true
	`, customerID, wita.Now())
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.SaleRecord, error) {
	query := `
		SELECT s.id, s.cashier_id, s.location_id, s.customer_id, s.sale_date, s.total, s.cash, s.change,
		       s.created_at, s.updated_at,
		       COALESCE(u.username, ''), l.name, COALESCE(c.name, ''),
		       COALESCE(d.balance, 0), COALESCE(d.status, '` + domain.DebtStatusSettled + `'),
		       COALESCE((
		           SELECT SUM(balance) FROM debts
		           WHERE customer_id = s.customer_id AND status = '` + domain.DebtStatusOpen + `' AND active = true
		       ), 0)
		FROM sales s
		JOIN locations l ON l.id = s.location_id
		LEFT JOIN users u ON u.id = s.cashier_id
		LEFT JOIN customers c ON c.id = s.customer_id
		LEFT JOIN debts d ON d.sale_id = s.id AND d.active = true
		WHERE s.active = true
	`
	args := []any{}
	if filter.CustomerID > 0 {
		args = append(args, filter.CustomerID)
		query += fmt.Sprintf(" AND s.customer_id = $%d", len(args))
	}
	if filter.LocationID > 0 {
		args = append(args, filter.LocationID)
		query += fmt.Sprintf(" AND s.location_id = $%d", len(args))
	}
	if filter.Date != "" {
		args = append(args, filter.Date)
		query += fmt.Sprintf(" AND s.sale_date::date = $%d::date", len(args))
	}
	if filter.DebtStatus != "" {
		args = append(args, filter.DebtStatus)
		query += fmt.Sprintf(" AND COALESCE(d.status, '%s') = $%d", domain.DebtStatusSettled, len(args))
	}
	query += ` ORDER BY s.id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.SaleRecord, 0, 64)
	for rows.Next() {
		var (
			rec        domain.SaleRecord
			customerID sql.NullInt64
		)
		if err := rows.Scan(&rec.ID, &rec.CashierID, &rec.LocationID, &customerID, &rec.Date, &rec.Total, &rec.Cash, &rec.Change,
			&rec.CreatedAt, &rec.UpdatedAt,
			&rec.CashierName, &rec.LocationName, &rec.CustomerName,
			&rec.DebtBalance, &rec.DebtStatus, &rec.CustomerOwing); err != nil {
			return nil, err
		}
		rec.Active = true
		if customerID.Valid {
			id := customerID.Int64
			rec.CustomerID = &id
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range records {
		items, err := s.listSaleItems(ctx, records[i].ID)
		if err != nil {
			return nil, err
		}
		records[i].Items = items
	}
	return records, nil
}

func (s *Store) GetSale(ctx context.Context, saleID int64) (*domain.SaleRecord, error) {
	var (
		rec        domain.SaleRecord
		customerID sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT s.id, s.cashier_id, s.location_id, s.customer_id, s.sale_date, s.total, s.cash, s.change,
		       s.created_at, s.updated_at,
		       COALESCE(u.username, ''), l.name, COALESCE(c.name, ''),
		       COALESCE(d.balance, 0), COALESCE(d.status, '`+domain.DebtStatusSettled+`'),
		       COALESCE((
		           SELECT SUM(balance) FROM debts
		           WHERE customer_id = s.customer_id AND status = '`+domain.DebtStatusOpen+`' AND active = true
		       ), 0)
		FROM sales s
		JOIN locations l ON l.id = s.location_id
		LEFT JOIN users u ON u.id = s.cashier_id
		LEFT JOIN customers c ON c.id = s.customer_id
		LEFT JOIN debts d ON d.sale_id = s.id AND d.active = true
		WHERE s.id = $1 AND s.active = true
	`, saleID).Scan(&rec.ID, &rec.CashierID, &rec.LocationID, &customerID, &rec.Date, &rec.Total, &rec.Cash, &rec.Change,
		&rec.CreatedAt, &rec.UpdatedAt,
		&rec.CashierName, &rec.LocationName, &rec.CustomerName,
		&rec.DebtBalance, &rec.DebtStatus, &rec.CustomerOwing)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.Active = true
	if customerID.Valid {
		id := customerID.Int64
		rec.CustomerID = &id
	}

	items, err := s.listSaleItems(ctx, saleID)
	if err != nil {
		return nil, err
	}
	rec.Items = items
	return &rec, nil
}

func (s *Store) listSaleItems(ctx context.Context, saleID int64) ([]domain.SaleLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT si.id, si.sale_id, si.product_id, p.name, si.qty, si.unit_price
		FROM sale_items si
		JOIN products p ON p.id = si.product_id
		WHERE si.sale_id = $1
		ORDER BY si.id
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.SaleLine, 0, 8)
	for rows.Next() {
		var line domain.SaleLine
		if err := rows.Scan(&line.ID, &line.SaleID, &line.ProductID, &line.ProductName, &line.Qty, &line.UnitPrice); err != nil {
			return nil, err
		}
		items = append(items, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListTransfers(ctx context.Context, filter domain.TransferFilter) ([]domain.TransferRecord, error) {
	query := `
		SELECT t.id, t.product_id, t.source_location_id, t.destination_location_id, t.qty,
		       COALESCE(t.note, ''), t.transfer_date, t.created_at,
		       p.name, p.unit, src.name, dst.name
		FROM stock_transfers t
		JOIN products p ON p.id = t.product_id
		JOIN locations src ON src.id = t.source_location_id
		JOIN locations dst ON dst.id = t.destination_location_id
		WHERE true
	`
	args := []any{}
	if filter.ProductID > 0 {
		args = append(args, filter.ProductID)
		query += fmt.Sprintf(" AND t.product_id = $%d", len(args))
	}
	if filter.SourceLocationID > 0 {
		args = append(args, filter.SourceLocationID)
		query += fmt.Sprintf(" AND t.source_location_id = $%d", len(args))
	}
	if filter.DestinationLocationID > 0 {
		args = append(args, filter.DestinationLocationID)
		query += fmt.Sprintf(" AND t.destination_location_id = $%d", len(args))
	}
	if filter.DateFrom != "" {
		args = append(args, filter.DateFrom)
		query += fmt.Sprintf(" AND t.transfer_date::date >= $%d::date", len(args))
	}
	if filter.DateTo != "" {
		args = append(args, filter.DateTo)
		query += fmt.Sprintf(" AND t.transfer_date::date <= $%d::date", len(args))
	}
	query += ` ORDER BY t.id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.TransferRecord, 0, 64)
	for rows.Next() {
		var rec domain.TransferRecord
		if err := rows.Scan(&rec.ID, &rec.ProductID, &rec.SourceLocationID, &rec.DestinationLocationID, &rec.Qty,
			&rec.Note, &rec.Date, &rec.CreatedAt,
			&rec.ProductName, &rec.Unit, &rec.SourceLocationName, &rec.DestinationLocationName); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) ListOpenDebts(ctx context.Context) ([]domain.Debt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, customer_id, balance, status, active, created_at, updated_at
		FROM debts
		WHERE status = $1 AND active = true
		ORDER BY id
	`, domain.DebtStatusOpen)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	debts := make([]domain.Debt, 0, 64)
	for rows.Next() {
		var (
			d      domain.Debt
			saleID sql.NullInt64
		)
		if err := rows.Scan(&d.ID, &saleID, &d.CustomerID, &d.Balance, &d.Status, &d.Active, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		if saleID.Valid {
			id := saleID.Int64
			d.SaleID = &id
		}
		debts = append(debts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return debts, nil
}

func (s *Store) GetDebt(ctx context.Context, debtID int64) (*domain.Debt, error) {
	var (
		d      domain.Debt
		saleID sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, sale_id, customer_id, balance, status, active, created_at, updated_at
		FROM debts
		WHERE id = $1 AND active = true
	`, debtID).Scan(&d.ID, &saleID, &d.CustomerID, &d.Balance, &d.Status, &d.Active, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if saleID.Valid {
		id := saleID.Int64
		d.SaleID = &id
	}
	return &d, nil
}

// UpdateDebt applies an administrative correction. Settled debts are
// immutable; a balance corrected to zero settles the debt.
func (s *Store) UpdateDebt(ctx context.Context, debtID int64, balance *int64, status *string) (*domain.Debt, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		d      domain.Debt
		saleID sql.NullInt64
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, sale_id, customer_id, balance, status, created_at
		FROM debts
		WHERE id = $1 AND active = true
		FOR UPDATE
	`, debtID).Scan(&d.ID, &saleID, &d.CustomerID, &d.Balance, &d.Status, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if d.Status != domain.DebtStatusOpen {
		return nil, fmt.Errorf("%w: debt %d already settled", store.ErrValidation, debtID)
	}
	if saleID.Valid {
		id := saleID.Int64
		d.SaleID = &id
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
	now := wita.Now()
	_, err = tx.ExecContext(ctx, `
		UPDATE debts SET balance = $2, status = $3, updated_at = $4 WHERE id = $1
	`, debtID, d.Balance, d.Status, now)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	d.Active = true
	d.UpdatedAt = now
	return &d, nil
}

func (s *Store) DeactivateDebt(ctx context.Context, debtID int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE debts SET active = false, updated_at = $2 WHERE id = $1 AND active = true
	`, debtID, wita.Now())
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DebtTotals(ctx context.Context) ([]domain.CustomerDebtTotal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.name, COALESCE(c.contact, ''), SUM(d.balance)
		FROM debts d
		JOIN customers c ON c.id = d.customer_id
		WHERE d.status = $1 AND d.active = true
		GROUP BY c.id, c.name, c.contact
		ORDER BY c.id
	`, domain.DebtStatusOpen)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make([]domain.CustomerDebtTotal, 0, 64)
	for rows.Next() {
		var t domain.CustomerDebtTotal
		if err := rows.Scan(&t.CustomerID, &t.CustomerName, &t.Contact, &t.TotalBalance); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return totals, nil
}

func (s *Store) DebtTotalForCustomer(ctx context.Context, customerID int64) (*domain.CustomerDebtTotal, error) {
	var t domain.CustomerDebtTotal
	err := s.db.QueryRowContext(ctx, `
		SELECT c.id, c.name, COALESCE(c.contact, ''),
		       COALESCE((
		           SELECT SUM(balance) FROM debts
		           WHERE customer_id = c.id AND status = $2 AND active = true
		       ), 0)
		FROM customers c
		WHERE c.id = $1 AND c.active = true
	`, customerID, domain.DebtStatusOpen).Scan(&t.CustomerID, &t.CustomerName, &t.Contact, &t.TotalBalance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	var u domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password, role, active, created_at
		FROM users
		WHERE username = $1 AND active = true
	`, username).Scan(&u.ID, &u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" {
		return fmt.Errorf("%w: username missing", store.ErrValidation)
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = wita.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,true,$4)
	`, user.Username, user.Password, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: username taken", store.ErrValidation)
		}
		return err
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func maxInt64(a int64, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullDate(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
