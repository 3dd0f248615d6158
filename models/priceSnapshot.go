package models

import (
	"github.com/maresto/inventory_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// latestHistoryIdSQL picks, per specification, the newest ledger row at or below the watermark.
// Newest means created_at DESC with the row id breaking ties in insertion order.
// It is a correlated subquery so the same SQL runs on PostgreSQL, MySQL and SQLite,
// and it is served by the (specification_id, created_at DESC) index.
const latestHistoryIdSQL = `SELECT sh2.id FROM specification_histories sh2
	WHERE sh2.specification_id = s.id AND sh2.id <= ?
	ORDER BY sh2.created_at DESC, sh2.id DESC LIMIT 1`

// PriceSnapshot fixes the latest unit price of each specification for one unit of work.
// Rows appended after the snapshot was taken (their id is above the watermark) are never
// treated as history, and the first price read for a specification is the one reused.
type PriceSnapshot struct {
	watermark int
	prices    map[int]decimal.Decimal
	missing   map[int]bool
}

type specificationPriceRow struct {
	SpecificationId int
	UnitPrice       decimal.NullDecimal
}

func newPriceSnapshot(tx *gorm.DB) (*PriceSnapshot, error) {
	var watermark int
	if err := tx.Raw("SELECT COALESCE(MAX(id), 0) FROM specification_histories").Scan(&watermark).Error; err != nil {
		return nil, utils.Persistence("specification_histories", err)
	}
	return &PriceSnapshot{
		watermark: watermark,
		prices:    make(map[int]decimal.Decimal),
		missing:   make(map[int]bool),
	}, nil
}

// LatestUnitPrice returns the frozen unit price of a specification, NotFound when it has no history.
// Ids already loaded are served from the snapshot without a query.
func (p *PriceSnapshot) LatestUnitPrice(tx *gorm.DB, specificationId int) (decimal.Decimal, error) {
	if err := p.load(tx, []int{specificationId}); err != nil {
		return decimal.Zero, err
	}
	if price, ok := p.prices[specificationId]; ok {
		return price, nil
	}
	return decimal.Zero, utils.NotFound("specification_history", "no price history for specification")
}

// remember fixes the price read for a specification unless one is already fixed.
func (p *PriceSnapshot) remember(specificationId int, price decimal.NullDecimal) {
	if _, ok := p.prices[specificationId]; ok {
		return
	}
	if p.missing[specificationId] {
		return
	}
	if price.Valid {
		p.prices[specificationId] = price.Decimal
	} else {
		p.missing[specificationId] = true
	}
}

// load fetches prices for the ids not yet in the snapshot with a single query.
func (p *PriceSnapshot) load(tx *gorm.DB, specificationIds []int) error {
	pending := make([]int, 0, len(specificationIds))
	for _, id := range utils.UniqueSlice(specificationIds) {
		if _, ok := p.prices[id]; ok {
			continue
		}
		if p.missing[id] {
			continue
		}
		pending = append(pending, id)
	}
	if len(pending) == 0 {
		return nil
	}

	var rows []specificationPriceRow
	err := tx.Raw(`SELECT s.id AS specification_id, sh.unit_price AS unit_price
		FROM specifications s
		LEFT JOIN specification_histories sh ON sh.id = (`+latestHistoryIdSQL+`)
		WHERE s.id IN ?`, p.watermark, pending).Scan(&rows).Error
	if err != nil {
		return utils.Persistence("specification_histories", err)
	}
	for _, row := range rows {
		p.remember(row.SpecificationId, row.UnitPrice)
	}
	// ids that matched no specification row at all
	for _, id := range pending {
		p.remember(id, decimal.NullDecimal{})
	}
	return nil
}
