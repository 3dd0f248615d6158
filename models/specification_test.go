package models_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/maresto/inventory_backend/config"
	"github.com/maresto/inventory_backend/models"
	"github.com/maresto/inventory_backend/utils"
	"github.com/shopspring/decimal"
)

func TestCreateSpecificationNormalizesAndPricesLowestUnit(t *testing.T) {
	f := newFixture(t)

	spec, err := models.CreateSpecification(f.ctx, f.branch.ID, &models.NewSpecification{
		Name:         "  Brown Sugar ",
		Unit:         "kg",
		UnitName:     " Gram",
		SmallestUnit: 3,
		RawPrice:     decimal.NewFromInt(1000),
	})
	if err != nil {
		t.Fatalf("CreateSpecification: %v", err)
	}
	if spec.Name != "brown sugar" || spec.UnitName != "gram" {
		t.Fatalf("expected normalized names, got %q / %q", spec.Name, spec.UnitName)
	}
	if !spec.LowestPrice.Equal(decimal.RequireFromString("333.33")) {
		t.Fatalf("expected lowest price 333.33, got %s", spec.LowestPrice)
	}

	updated, err := models.UpdateSpecification(f.ctx, f.branch.ID, spec.ID, &models.NewSpecification{
		Name:         "Brown Sugar",
		Unit:         "kg",
		UnitName:     "gram",
		SmallestUnit: 8,
		RawPrice:     decimal.NewFromInt(1),
	})
	if err != nil {
		t.Fatalf("UpdateSpecification: %v", err)
	}
	if !updated.LowestPrice.Equal(decimal.RequireFromString("0.12")) {
		t.Fatalf("expected lowest price 0.12, got %s", updated.LowestPrice)
	}
}

func TestCreateSpecificationValidation(t *testing.T) {
	f := newFixture(t)
	valid := func() *models.NewSpecification {
		return &models.NewSpecification{Name: "Flour", Unit: "kg", UnitName: "gram", SmallestUnit: 1000, RawPrice: decimal.NewFromInt(2)}
	}

	input := valid()
	input.SmallestUnit = 0
	_, err := models.CreateSpecification(f.ctx, f.branch.ID, input)
	expectKind(t, err, utils.ErrorKindValidation, "smallest_unit")

	input = valid()
	input.RawPrice = decimal.NewFromInt(-1)
	_, err = models.CreateSpecification(f.ctx, f.branch.ID, input)
	expectKind(t, err, utils.ErrorKindValidation, "raw_price")

	input = valid()
	input.RawPrice = decimal.New(1, 17)
	_, err = models.CreateSpecification(f.ctx, f.branch.ID, input)
	expectKind(t, err, utils.ErrorKindArithmetic, "raw_price")

	_, err = models.CreateSpecification(f.ctx, f.branch.ID+100, valid())
	expectKind(t, err, utils.ErrorKindNotFound, "branch_id")
}

func TestSpecificationNameIsUniqueAmongLiveRows(t *testing.T) {
	f := newFixture(t)
	flour := f.specification(t, "Flour")

	_, err := models.CreateSpecification(f.ctx, f.branch.ID, &models.NewSpecification{
		Name: "FLOUR ", Unit: "kg", UnitName: "gram", SmallestUnit: 1,
	})
	expectKind(t, err, utils.ErrorKindValidation, "name")

	// other branches may reuse the name
	other := seedFixture(t)
	other.specification(t, "Flour")

	if _, err := models.DeleteSpecification(f.ctx, f.branch.ID, flour.ID); err != nil {
		t.Fatalf("DeleteSpecification: %v", err)
	}
	f.specification(t, "Flour")

	_, err = models.GetSpecification(f.ctx, f.branch.ID, flour.ID)
	expectKind(t, err, utils.ErrorKindNotFound, "")
}

func TestPurchaseSpecificationComputesUnitPrice(t *testing.T) {
	f := newFixture(t)
	oil := f.specification(t, "Oil")

	history := f.purchase(t, oil.ID, 3, "10")
	if history.FlowType != models.FlowTypeIn {
		t.Fatalf("expected IN, got %s", history.FlowType)
	}
	if !history.UnitPrice.Equal(decimal.RequireFromString("3.3333")) {
		t.Fatalf("expected unit price 3.3333, got %s", history.UnitPrice)
	}
	if history.CreatedBy != f.user.ID {
		t.Fatalf("expected purchase attributed to %s, got %s", f.user.ID, history.CreatedBy)
	}

	price, err := models.LatestUnitPrice(f.ctx, oil.ID)
	if err != nil {
		t.Fatalf("LatestUnitPrice: %v", err)
	}
	if !price.Equal(history.UnitPrice) {
		t.Fatalf("expected latest price %s, got %s", history.UnitPrice, price)
	}
}

func TestPurchaseSpecificationValidation(t *testing.T) {
	f := newFixture(t)
	oil := f.specification(t, "Oil")

	_, err := models.PurchaseSpecification(context.Background(), f.branch.ID, oil.ID, &models.NewPurchase{Quantity: 1, Price: decimal.NewFromInt(1)})
	expectKind(t, err, utils.ErrorKindValidation, "created_by")

	_, err = models.PurchaseSpecification(f.ctx, f.branch.ID, oil.ID, &models.NewPurchase{Quantity: 0, Price: decimal.NewFromInt(1)})
	expectKind(t, err, utils.ErrorKindValidation, "quantity")

	_, err = models.PurchaseSpecification(f.ctx, f.branch.ID, oil.ID, &models.NewPurchase{Quantity: 1, Price: decimal.NewFromInt(-5)})
	expectKind(t, err, utils.ErrorKindValidation, "price")

	other := seedFixture(t)
	_, err = models.PurchaseSpecification(other.ctx, other.branch.ID, oil.ID, &models.NewPurchase{Quantity: 1, Price: decimal.NewFromInt(1)})
	expectKind(t, err, utils.ErrorKindNotFound, "specification_id")
}

func TestPurchaseSpecificationLinksTransactionItem(t *testing.T) {
	f := newFixture(t)
	oil := f.specification(t, "Oil")
	fries := f.product(t, "Fries")

	transaction, err := models.CreateTransaction(f.ctx, f.branch.ID, sale(item(fries, 2)))
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	itemId := transaction.Items[0].ID

	history, err := models.PurchaseSpecification(f.ctx, f.branch.ID, oil.ID, &models.NewPurchase{
		Quantity:          4,
		Price:             decimal.NewFromInt(10),
		TransactionItemId: &itemId,
	})
	if err != nil {
		t.Fatalf("PurchaseSpecification: %v", err)
	}
	if history.TransactionItemId == nil || *history.TransactionItemId != itemId {
		t.Fatalf("expected the purchase to reference item %d, got %v", itemId, history.TransactionItemId)
	}

	missing := itemId + 1000
	_, err = models.PurchaseSpecification(f.ctx, f.branch.ID, oil.ID, &models.NewPurchase{Quantity: 1, Price: decimal.NewFromInt(1), TransactionItemId: &missing})
	expectKind(t, err, utils.ErrorKindNotFound, "transaction_item_id")

	// an item sold in another branch cannot be referenced
	other := seedFixture(t)
	cola := other.product(t, "Cola")
	foreign, err := models.CreateTransaction(other.ctx, other.branch.ID, sale(item(cola, 1)))
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	foreignItemId := foreign.Items[0].ID
	before := countRows(t, &models.SpecificationHistory{})
	_, err = models.PurchaseSpecification(f.ctx, f.branch.ID, oil.ID, &models.NewPurchase{Quantity: 1, Price: decimal.NewFromInt(1), TransactionItemId: &foreignItemId})
	expectKind(t, err, utils.ErrorKindNotFound, "transaction_item_id")
	if after := countRows(t, &models.SpecificationHistory{}); after != before {
		t.Fatalf("expected nothing posted, got %d rows (was %d)", after, before)
	}
}

func TestLatestUnitPriceOrdersByCreatedAtThenId(t *testing.T) {
	f := newFixture(t)
	milk := f.specification(t, "Milk")

	_, err := models.LatestUnitPrice(f.ctx, milk.ID)
	expectKind(t, err, utils.ErrorKindNotFound, "specification_history")

	f.purchase(t, milk.ID, 1, "2")

	// a backdated row inserted later must not become the latest
	db := config.GetDB()
	backdated := models.SpecificationHistory{
		FlowType:        models.FlowTypeIn,
		SpecificationId: milk.ID,
		CreatedBy:       f.user.ID,
		Quantity:        1,
		Price:           decimal.NewFromInt(9),
		UnitPrice:       decimal.NewFromInt(9),
		CreatedAt:       time.Now().UTC().Add(-time.Hour),
	}
	if err := db.Create(&backdated).Error; err != nil {
		t.Fatalf("insert backdated row: %v", err)
	}
	price, err := models.LatestUnitPrice(f.ctx, milk.ID)
	if err != nil {
		t.Fatalf("LatestUnitPrice: %v", err)
	}
	if !price.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("expected 2 after backdated insert, got %s", price)
	}

	// equal timestamps fall back to insertion order
	future := time.Now().UTC().Add(time.Hour)
	for _, p := range []int64{3, 4} {
		row := models.SpecificationHistory{
			FlowType:        models.FlowTypeIn,
			SpecificationId: milk.ID,
			CreatedBy:       f.user.ID,
			Quantity:        1,
			Price:           decimal.NewFromInt(p),
			UnitPrice:       decimal.NewFromInt(p),
			CreatedAt:       future,
		}
		if err := db.Create(&row).Error; err != nil {
			t.Fatalf("insert row: %v", err)
		}
	}
	price, err = models.LatestUnitPrice(f.ctx, milk.ID)
	if err != nil {
		t.Fatalf("LatestUnitPrice: %v", err)
	}
	if !price.Equal(decimal.NewFromInt(4)) {
		t.Fatalf("expected 4 for the later of two equal timestamps, got %s", price)
	}

	// the posting path reads the same price
	latte := f.product(t, "Latte")
	f.link(t, latte.ID, milk.ID, 2)
	if _, err := models.CreateTransaction(f.ctx, f.branch.ID, sale(item(latte, 1))); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	rows := outRows(t, milk.ID)
	if len(rows) != 1 || !rows[0].UnitPrice.Equal(decimal.NewFromInt(4)) || !rows[0].Price.Equal(decimal.NewFromInt(8)) {
		t.Fatalf("unexpected OUT rows: %+v", rows)
	}
}

func TestSpecificationHistoryIsAppendOnly(t *testing.T) {
	f := newFixture(t)
	oil := f.specification(t, "Oil")
	history := f.purchase(t, oil.ID, 5, "10")

	db := config.GetDB()
	if err := db.Model(history).Update("quantity", 50).Error; err == nil {
		t.Fatalf("expected update of a ledger row to fail")
	}
	if err := db.Delete(history).Error; err == nil {
		t.Fatalf("expected delete of a ledger row to fail")
	}
	if err := db.Where("specification_id = ?", oil.ID).Delete(&models.SpecificationHistory{}).Error; err == nil {
		t.Fatalf("expected bulk delete of ledger rows to fail")
	}

	var stored models.SpecificationHistory
	if err := db.First(&stored, history.ID).Error; err != nil {
		t.Fatalf("reload ledger row: %v", err)
	}
	if stored.Quantity != 5 {
		t.Fatalf("expected quantity 5 to survive, got %d", stored.Quantity)
	}
}

func TestPostLedgerEntryValidates(t *testing.T) {
	f := newFixture(t)
	oil := f.specification(t, "Oil")
	db := config.GetDB()

	_, err := models.PostLedgerEntry(db, &models.NewLedgerEntry{
		SpecificationId: oil.ID, FlowType: models.FlowType("MOVE"), Quantity: 1, CreatedBy: f.user.ID,
	})
	expectKind(t, err, utils.ErrorKindValidation, "flow_type")

	_, err = models.PostLedgerEntry(db, &models.NewLedgerEntry{
		SpecificationId: oil.ID, FlowType: models.FlowTypeIn, Quantity: 1,
	})
	expectKind(t, err, utils.ErrorKindValidation, "created_by")

	_, err = models.PostLedgerEntry(db, &models.NewLedgerEntry{
		SpecificationId: oil.ID + 100, FlowType: models.FlowTypeIn, Quantity: 1, CreatedBy: uuid.New(),
	})
	expectKind(t, err, utils.ErrorKindNotFound, "specification_id")

	history, err := models.PostLedgerEntry(db, &models.NewLedgerEntry{
		SpecificationId: oil.ID, FlowType: models.FlowTypeIn, Quantity: 2,
		UnitPrice: decimal.NewFromInt(3), Price: decimal.NewFromInt(6), CreatedBy: f.user.ID,
	})
	if err != nil {
		t.Fatalf("PostLedgerEntry: %v", err)
	}
	if history.ID == 0 {
		t.Fatalf("expected the ledger row to be stored")
	}
}

func TestGetSpecificationHistoriesNewestFirst(t *testing.T) {
	f := newFixture(t)
	oil := f.specification(t, "Oil")
	first := f.purchase(t, oil.ID, 1, "1")
	second := f.purchase(t, oil.ID, 1, "2")

	histories, err := models.GetSpecificationHistories(f.ctx, f.branch.ID, oil.ID)
	if err != nil {
		t.Fatalf("GetSpecificationHistories: %v", err)
	}
	if len(histories) != 2 || histories[0].ID != second.ID || histories[1].ID != first.ID {
		t.Fatalf("expected [%d %d], got %+v", second.ID, first.ID, histories)
	}
}

func TestGetSpecificationsListsLinkedProducts(t *testing.T) {
	f := newFixture(t)
	burger := f.product(t, "Burger")
	bun := f.specification(t, "Bun")
	f.specification(t, "Unused")
	f.link(t, burger.ID, bun.ID, 2)

	specifications, err := models.GetSpecifications(f.ctx, f.branch.ID)
	if err != nil {
		t.Fatalf("GetSpecifications: %v", err)
	}
	if len(specifications) != 2 {
		t.Fatalf("expected 2 specifications, got %d", len(specifications))
	}
	for _, s := range specifications {
		switch s.ID {
		case bun.ID:
			if len(s.Products) != 1 || s.Products[0].ID != burger.ID || s.Products[0].Quantity != 2 {
				t.Fatalf("unexpected products for bun: %+v", s.Products)
			}
		default:
			if len(s.Products) != 0 {
				t.Fatalf("expected no products for %s, got %+v", s.Name, s.Products)
			}
		}
	}
}

func TestExportLedgerWritesBothSheets(t *testing.T) {
	f := newFixture(t)
	oil := f.specification(t, "Oil")
	f.purchase(t, oil.ID, 4, "10")
	f.purchase(t, oil.ID, 2, "6")

	file, err := models.ExportLedger(f.ctx, f.branch.ID)
	if err != nil {
		t.Fatalf("ExportLedger: %v", err)
	}
	defer func() { _ = file.Close() }()

	specRows, err := file.GetRows(models.ExportSheetSpecifications)
	if err != nil {
		t.Fatalf("GetRows(%s): %v", models.ExportSheetSpecifications, err)
	}
	if len(specRows) != 2 || specRows[1][1] != "oil" {
		t.Fatalf("unexpected specification rows: %v", specRows)
	}

	ledgerRows, err := file.GetRows(models.ExportSheetLedger)
	if err != nil {
		t.Fatalf("GetRows(%s): %v", models.ExportSheetLedger, err)
	}
	if len(ledgerRows) != 3 {
		t.Fatalf("expected header plus 2 ledger rows, got %d", len(ledgerRows))
	}
	if ledgerRows[1][3] != string(models.FlowTypeIn) {
		t.Fatalf("expected flow type IN, got %q", ledgerRows[1][3])
	}

	_, err = models.ExportLedger(f.ctx, f.branch.ID+100)
	expectKind(t, err, utils.ErrorKindNotFound, "branch_id")
}
