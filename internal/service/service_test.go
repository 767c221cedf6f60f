package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/gunjou/be-toko-yani/internal/cache"
	"github.com/gunjou/be-toko-yani/internal/domain"
	"github.com/gunjou/be-toko-yani/internal/store"
	"github.com/gunjou/be-toko-yani/internal/store/memory"
)

// Seeded store layout: location 1 is the shop (40 of each product), location
// 2 is the warehouse (200 of each), customers 1 and 2 exist, cashier user
// ids are 1 (admin) and 2 (kasir).

func newTestService() *Service {
	return New(memory.NewSeeded(), cache.NoopDebtTotalCache{}, false)
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{UserID: 1, Username: "admin", Role: domain.RoleAdmin})
}

func kasirCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{UserID: 2, Username: "kasir", Role: domain.RoleCashier})
}

func stockAt(t *testing.T, svc *Service, productID, locationID int64) int {
	t.Helper()
	rows, err := svc.ListStock(context.Background(), locationID)
	if err != nil {
		t.Fatalf("list stock: %v", err)
	}
	for _, row := range rows {
		if row.ProductID == productID {
			return row.Quantity
		}
	}
	t.Fatalf("no stock row for product %d at location %d", productID, locationID)
	return 0
}

func creditSale(t *testing.T, svc *Service, customerID int64, shortfall int64, key string) *domain.SaleResult {
	t.Helper()
	result, err := svc.CreateSale(kasirCtx(), domain.CreateSaleRequest{
		CashierID:      2,
		LocationID:     1,
		CustomerID:     &customerID,
		Total:          shortfall,
		Cash:           0,
		IdempotencyKey: key,
		Items:          []domain.SaleItemRequest{{ProductID: 1, Qty: 1, UnitPrice: shortfall}},
	})
	if err != nil {
		t.Fatalf("credit sale: %v", err)
	}
	if result.Shortfall != shortfall {
		t.Fatalf("expected shortfall %d, got %d", shortfall, result.Shortfall)
	}
	return result
}

func TestCreateSaleCashWithChange(t *testing.T) {
	svc := newTestService()

	result, err := svc.CreateSale(kasirCtx(), domain.CreateSaleRequest{
		CashierID:  2,
		LocationID: 1,
		Total:      7000,
		Cash:       10000,
		Items:      []domain.SaleItemRequest{{ProductID: 1, Qty: 2, UnitPrice: 3500}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if result.Change != 3000 {
		t.Fatalf("expected change 3000, got %d", result.Change)
	}
	if result.Shortfall != 0 {
		t.Fatalf("expected no shortfall, got %d", result.Shortfall)
	}
	if result.DebtStatus != domain.DebtStatusSettled {
		t.Fatalf("expected settled status, got %s", result.DebtStatus)
	}
	if got := stockAt(t, svc, 1, 1); got != 38 {
		t.Fatalf("expected stock 38 after sale, got %d", got)
	}

	debts, err := svc.ListOpenDebts(context.Background())
	if err != nil {
		t.Fatalf("list debts: %v", err)
	}
	if len(debts) != 0 {
		t.Fatalf("cash sale must not create a debt, got %d", len(debts))
	}
}

func TestCreateSaleShortCashCreatesDebt(t *testing.T) {
	svc := newTestService()
	customerID := int64(1)

	result, err := svc.CreateSale(kasirCtx(), domain.CreateSaleRequest{
		CashierID:  2,
		LocationID: 1,
		CustomerID: &customerID,
		Total:      100,
		Cash:       60,
		Items:      []domain.SaleItemRequest{{ProductID: 2, Qty: 2, UnitPrice: 50}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if result.Shortfall != 40 {
		t.Fatalf("expected shortfall 40, got %d", result.Shortfall)
	}
	if result.Change != 0 {
		t.Fatalf("expected change 0, got %d", result.Change)
	}
	if result.DebtStatus != domain.DebtStatusOpen {
		t.Fatalf("expected open debt status, got %s", result.DebtStatus)
	}
	if got := stockAt(t, svc, 2, 1); got != 38 {
		t.Fatalf("expected stock 38 after sale, got %d", got)
	}

	total, err := svc.DebtTotalForCustomer(context.Background(), customerID)
	if err != nil {
		t.Fatalf("debt total: %v", err)
	}
	if total.TotalBalance != 40 {
		t.Fatalf("expected outstanding 40, got %d", total.TotalBalance)
	}
}

func TestCreateSaleShortCashWithoutCustomerFails(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateSale(kasirCtx(), domain.CreateSaleRequest{
		CashierID:  2,
		LocationID: 1,
		Total:      5000,
		Cash:       2000,
		Items:      []domain.SaleItemRequest{{ProductID: 1, Qty: 1, UnitPrice: 5000}},
	})
	if !errors.Is(err, store.ErrCustomerRequired) {
		t.Fatalf("expected ErrCustomerRequired, got %v", err)
	}
	if got := stockAt(t, svc, 1, 1); got != 40 {
		t.Fatalf("failed sale must not touch stock, got %d", got)
	}
}

func TestCreateSaleImplicitCustomer(t *testing.T) {
	svc := newTestService()

	result, err := svc.CreateSale(kasirCtx(), domain.CreateSaleRequest{
		CashierID:    2,
		LocationID:   1,
		CustomerName: "Bu Rina",
		Total:        5000,
		Cash:         3000,
		Items:        []domain.SaleItemRequest{{ProductID: 1, Qty: 1, UnitPrice: 5000}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if result.CustomerID == nil {
		t.Fatalf("expected implicit customer to be created")
	}

	customer, err := svc.GetCustomer(context.Background(), *result.CustomerID)
	if err != nil {
		t.Fatalf("get customer: %v", err)
	}
	if customer.Name != "Bu Rina" {
		t.Fatalf("expected customer Bu Rina, got %q", customer.Name)
	}

	total, err := svc.DebtTotalForCustomer(context.Background(), *result.CustomerID)
	if err != nil {
		t.Fatalf("debt total: %v", err)
	}
	if total.TotalBalance != 2000 {
		t.Fatalf("expected outstanding 2000, got %d", total.TotalBalance)
	}
}

func TestCreateSaleInsufficientStockRollsBack(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateSale(kasirCtx(), domain.CreateSaleRequest{
		CashierID:  2,
		LocationID: 1,
		Total:      9999,
		Cash:       9999,
		Items: []domain.SaleItemRequest{
			{ProductID: 1, Qty: 2, UnitPrice: 3500},
			{ProductID: 2, Qty: 3, UnitPrice: 2700},
			{ProductID: 3, Qty: 1000, UnitPrice: 17500},
		},
	})
	var stockErr *store.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if stockErr.ProductName != "Gula Pasir 1kg" || stockErr.Available != 40 {
		t.Fatalf("unexpected stock error detail: %+v", stockErr)
	}

	for _, productID := range []int64{1, 2, 3} {
		if got := stockAt(t, svc, productID, 1); got != 40 {
			t.Fatalf("product %d: expected stock untouched at 40, got %d", productID, got)
		}
	}
	sales, err := svc.ListSales(context.Background(), domain.SaleFilter{})
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(sales) != 0 {
		t.Fatalf("failed sale must not persist, got %d sales", len(sales))
	}
}

func TestCreateSaleIdempotentReplay(t *testing.T) {
	svc := newTestService()

	req := domain.CreateSaleRequest{
		CashierID:      2,
		LocationID:     1,
		Total:          3500,
		Cash:           3500,
		IdempotencyKey: "sale-replay-1",
		Items:          []domain.SaleItemRequest{{ProductID: 1, Qty: 1, UnitPrice: 3500}},
	}

	first, err := svc.CreateSale(kasirCtx(), req)
	if err != nil {
		t.Fatalf("first sale: %v", err)
	}
	if first.Duplicate {
		t.Fatalf("first sale must not be marked duplicate")
	}

	second, err := svc.CreateSale(kasirCtx(), req)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !second.Duplicate {
		t.Fatalf("replay must be marked duplicate")
	}
	if second.SaleID != first.SaleID {
		t.Fatalf("replay returned sale %d, want %d", second.SaleID, first.SaleID)
	}
	if got := stockAt(t, svc, 1, 1); got != 39 {
		t.Fatalf("stock must be decremented exactly once, got %d", got)
	}
}

func TestTransferStockConservesQuantity(t *testing.T) {
	svc := newTestService()

	result, err := svc.TransferStock(adminCtx(), domain.TransferRequest{
		ProductID:             1,
		SourceLocationID:      2,
		DestinationLocationID: 1,
		Qty:                   50,
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if result.SourceLocationName != "Gudang Utama" || result.DestinationLocationName != "Toko Yani" {
		t.Fatalf("unexpected location names: %+v", result)
	}
	if got := stockAt(t, svc, 1, 2); got != 150 {
		t.Fatalf("expected warehouse stock 150, got %d", got)
	}
	if got := stockAt(t, svc, 1, 1); got != 90 {
		t.Fatalf("expected shop stock 90, got %d", got)
	}
}

func TestTransferCreatesDestinationRow(t *testing.T) {
	svc := newTestService()

	loc, err := svc.CreateLocation(adminCtx(), domain.CreateLocationRequest{
		Name: "Gudang Cabang",
		Type: domain.LocationTypeWarehouse,
	})
	if err != nil {
		t.Fatalf("create location: %v", err)
	}

	_, err = svc.TransferStock(adminCtx(), domain.TransferRequest{
		ProductID:             4,
		SourceLocationID:      2,
		DestinationLocationID: loc.ID,
		Qty:                   25,
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := stockAt(t, svc, 4, loc.ID); got != 25 {
		t.Fatalf("expected lazily created row with 25, got %d", got)
	}
}

func TestTransferInsufficientStock(t *testing.T) {
	svc := newTestService()

	_, err := svc.TransferStock(adminCtx(), domain.TransferRequest{
		ProductID:             1,
		SourceLocationID:      1,
		DestinationLocationID: 2,
		Qty:                   500,
	})
	var stockErr *store.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if stockErr.Available != 40 {
		t.Fatalf("expected available 40, got %d", stockErr.Available)
	}
	if got := stockAt(t, svc, 1, 1); got != 40 {
		t.Fatalf("failed transfer must not touch source, got %d", got)
	}
}

func TestSelfTransferPolicy(t *testing.T) {
	svc := newTestService()

	_, err := svc.TransferStock(adminCtx(), domain.TransferRequest{
		ProductID:             1,
		SourceLocationID:      1,
		DestinationLocationID: 1,
		Qty:                   5,
	})
	if !errors.Is(err, store.ErrSelfTransfer) {
		t.Fatalf("expected ErrSelfTransfer, got %v", err)
	}

	permissive := New(memory.NewSeeded(), cache.NoopDebtTotalCache{}, true)
	_, err = permissive.TransferStock(adminCtx(), domain.TransferRequest{
		ProductID:             1,
		SourceLocationID:      1,
		DestinationLocationID: 1,
		Qty:                   5,
	})
	if err != nil {
		t.Fatalf("self transfer should pass when allowed: %v", err)
	}
	if got := stockAt(t, permissive, 1, 1); got != 40 {
		t.Fatalf("self transfer must leave quantity unchanged, got %d", got)
	}
}

func TestTransferBothDirections(t *testing.T) {
	svc := newTestService()

	if _, err := svc.TransferStock(adminCtx(), domain.TransferRequest{
		ProductID:             1,
		SourceLocationID:      2,
		DestinationLocationID: 1,
		Qty:                   30,
	}); err != nil {
		t.Fatalf("warehouse to shop: %v", err)
	}
	if _, err := svc.TransferStock(adminCtx(), domain.TransferRequest{
		ProductID:             1,
		SourceLocationID:      1,
		DestinationLocationID: 2,
		Qty:                   10,
	}); err != nil {
		t.Fatalf("shop to warehouse: %v", err)
	}

	if got := stockAt(t, svc, 1, 1); got != 60 {
		t.Fatalf("expected shop stock 60, got %d", got)
	}
	if got := stockAt(t, svc, 1, 2); got != 180 {
		t.Fatalf("expected warehouse stock 180, got %d", got)
	}
}

func TestPayDebtFIFO(t *testing.T) {
	svc := newTestService()
	customerID := int64(1)

	for i, amount := range []int64{50, 30, 100} {
		creditSale(t, svc, customerID, amount, fmt.Sprintf("fifo-%d", i))
	}

	payments, err := svc.PayDebt(kasirCtx(), domain.PayDebtRequest{CustomerID: customerID, Amount: 70})
	if err != nil {
		t.Fatalf("pay debt: %v", err)
	}
	if len(payments) != 2 {
		t.Fatalf("expected 2 payments, got %d", len(payments))
	}
	if payments[0].AmountApplied != 50 || payments[0].Status != domain.PaymentOutcomeSettled {
		t.Fatalf("first payment wrong: %+v", payments[0])
	}
	if payments[1].AmountApplied != 20 || payments[1].Status != domain.PaymentOutcomePartial {
		t.Fatalf("second payment wrong: %+v", payments[1])
	}

	total, err := svc.DebtTotalForCustomer(context.Background(), customerID)
	if err != nil {
		t.Fatalf("debt total: %v", err)
	}
	if total.TotalBalance != 110 {
		t.Fatalf("expected remaining 110, got %d", total.TotalBalance)
	}
}

func TestPayDebtNoOpenDebts(t *testing.T) {
	svc := newTestService()

	_, err := svc.PayDebt(kasirCtx(), domain.PayDebtRequest{CustomerID: 2, Amount: 100})
	if !errors.Is(err, store.ErrNoActiveDebt) {
		t.Fatalf("expected ErrNoActiveDebt, got %v", err)
	}
}

func TestPayDebtOverpaymentRetained(t *testing.T) {
	svc := newTestService()
	customerID := int64(2)
	creditSale(t, svc, customerID, 40, "overpay-1")

	payments, err := svc.PayDebt(kasirCtx(), domain.PayDebtRequest{CustomerID: customerID, Amount: 100})
	if err != nil {
		t.Fatalf("pay debt: %v", err)
	}
	if len(payments) != 1 || payments[0].AmountApplied != 40 || payments[0].Status != domain.PaymentOutcomeSettled {
		t.Fatalf("unexpected payments: %+v", payments)
	}

	_, err = svc.PayDebt(kasirCtx(), domain.PayDebtRequest{CustomerID: customerID, Amount: 10})
	if !errors.Is(err, store.ErrNoActiveDebt) {
		t.Fatalf("expected ErrNoActiveDebt after settlement, got %v", err)
	}
}

func TestCreateProductRequiresAdmin(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateProduct(kasirCtx(), domain.CreateProductRequest{
		Name:         "Beras 5kg",
		Unit:         "karung",
		PurchaseCost: 62000,
		SalePrice:    68000,
		LocationID:   1,
		InitialStock: 10,
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestCreateProductWithInitialStock(t *testing.T) {
	svc := newTestService()

	created, err := svc.CreateProduct(adminCtx(), domain.CreateProductRequest{
		Name:         "Beras 5kg",
		Unit:         "karung",
		PurchaseCost: 62000,
		SalePrice:    68000,
		LocationID:   1,
		InitialStock: 10,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if got := stockAt(t, svc, created.ID, 1); got != 10 {
		t.Fatalf("expected initial stock 10, got %d", got)
	}
}

func TestCreateUserRequiresAdmin(t *testing.T) {
	svc := newTestService()

	err := svc.CreateUser(kasirCtx(), domain.CreateUserRequest{
		Username: "rina",
		Password: "rahasia-toko",
		Role:     domain.RoleCashier,
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestCreateUserRejectsDuplicateUsername(t *testing.T) {
	svc := newTestService()

	err := svc.CreateUser(adminCtx(), domain.CreateUserRequest{
		Username: "Kasir",
		Password: "rahasia-toko",
		Role:     domain.RoleCashier,
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for taken username, got %v", err)
	}
}

func TestUpdateDebtSettledIsImmutable(t *testing.T) {
	svc := newTestService()
	creditSale(t, svc, 1, 40, "settle-1")

	if _, err := svc.PayDebt(kasirCtx(), domain.PayDebtRequest{CustomerID: 1, Amount: 40}); err != nil {
		t.Fatalf("pay debt: %v", err)
	}

	debts, err := svc.ListOpenDebts(context.Background())
	if err != nil {
		t.Fatalf("list debts: %v", err)
	}
	if len(debts) != 0 {
		t.Fatalf("expected no open debts, got %d", len(debts))
	}

	newBalance := int64(10)
	_, err = svc.UpdateDebt(adminCtx(), 1, domain.UpdateDebtRequest{Balance: &newBalance})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error on settled debt, got %v", err)
	}
}

func TestSaleListFilters(t *testing.T) {
	svc := newTestService()
	customerID := int64(1)
	creditSale(t, svc, customerID, 40, "filter-1")

	sales, err := svc.ListSales(context.Background(), domain.SaleFilter{CustomerID: customerID, DebtStatus: domain.DebtStatusOpen})
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(sales) != 1 {
		t.Fatalf("expected 1 filtered sale, got %d", len(sales))
	}
	if sales[0].CustomerName != "Ibu Sari" {
		t.Fatalf("expected customer name joined, got %q", sales[0].CustomerName)
	}
	if sales[0].DebtBalance != 40 {
		t.Fatalf("expected debt balance 40, got %d", sales[0].DebtBalance)
	}
	if len(sales[0].Items) != 1 {
		t.Fatalf("expected line items included, got %d", len(sales[0].Items))
	}

	none, err := svc.ListSales(context.Background(), domain.SaleFilter{CustomerID: customerID, DebtStatus: domain.DebtStatusSettled})
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no settled sales, got %d", len(none))
	}
}
