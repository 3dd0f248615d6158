package config

import (
	"context"
	"errors"
	"strings"

	"github.com/maresto/inventory_backend/appctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrAppendOnly is returned when an UPDATE or DELETE targets an append-only table.
var ErrAppendOnly = errors.New("append-only table: rows cannot be changed")

// AppendOnlyTables lists tables whose rows are never updated or deleted.
var AppendOnlyTables = []string{"specification_histories"}

// BranchGuardPlugin scopes queries/updates/deletes to the request's branch_id when the model
// has a branch_id column, and refuses UPDATE/DELETE on append-only tables.
//
// NOTE:
// - Raw SQL is not scoped. Those queries must include branch_id themselves.
type BranchGuardPlugin struct {
	appendOnly map[string]bool
}

func NewBranchGuardPlugin(appendOnlyTables ...string) *BranchGuardPlugin {
	p := &BranchGuardPlugin{appendOnly: make(map[string]bool, len(appendOnlyTables))}
	for _, t := range appendOnlyTables {
		p.appendOnly[strings.ToLower(t)] = true
	}
	return p
}

func (p *BranchGuardPlugin) Name() string { return "branch_guard" }

func (p *BranchGuardPlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Query().Before("gorm:query").Register("branch_guard:query", branchScopeCallback); err != nil {
		return err
	}
	if err := db.Callback().Row().Before("gorm:row").Register("branch_guard:row", branchScopeCallback); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("branch_guard:update", p.writeCallback); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("branch_guard:delete", p.writeCallback); err != nil {
		return err
	}
	return nil
}

func (p *BranchGuardPlugin) writeCallback(db *gorm.DB) {
	if db == nil || db.Statement == nil {
		return
	}
	if p.appendOnly[strings.ToLower(db.Statement.Table)] {
		_ = db.AddError(ErrAppendOnly)
		return
	}
	branchScopeCallback(db)
}

func branchScopeCallback(db *gorm.DB) {
	if db == nil || db.Statement == nil {
		return
	}
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	branchId := branchIdFromContext(ctx)
	if branchId <= 0 {
		return
	}

	if db.Statement.Schema == nil || db.Statement.Schema.LookUpField("branch_id") == nil {
		return
	}

	// explicit filter already present
	if whereHasBranchID(db.Statement.Clauses["WHERE"]) {
		return
	}

	db.Statement.AddClause(clause.Where{
		Exprs: []clause.Expression{
			clause.Eq{
				Column: clause.Column{Table: db.Statement.Table, Name: "branch_id"},
				Value:  branchId,
			},
		},
	})
}

func branchIdFromContext(ctx context.Context) int {
	if v, ok := appctx.GetInt(ctx, appctx.ContextKeyBranchId); ok {
		return v
	}
	return 0
}

func whereHasBranchID(c clause.Clause) bool {
	if c.Expression == nil {
		return false
	}
	w, ok := c.Expression.(clause.Where)
	if !ok {
		return false
	}
	for _, e := range w.Exprs {
		if exprHasBranchID(e) {
			return true
		}
	}
	return false
}

func exprHasBranchID(e clause.Expression) bool {
	switch v := e.(type) {
	case clause.Eq:
		return colIsBranchID(v.Column)
	case clause.Neq:
		return colIsBranchID(v.Column)
	case clause.IN:
		return colIsBranchID(v.Column)
	case clause.AndConditions:
		for _, x := range v.Exprs {
			if exprHasBranchID(x) {
				return true
			}
		}
		return false
	case clause.OrConditions:
		for _, x := range v.Exprs {
			if exprHasBranchID(x) {
				return true
			}
		}
		return false
	case clause.Expr:
		return strings.Contains(strings.ToLower(v.SQL), "branch_id")
	case clause.NamedExpr:
		return strings.Contains(strings.ToLower(v.SQL), "branch_id")
	default:
		return false
	}
}

func colIsBranchID(col any) bool {
	switch c := col.(type) {
	case string:
		return strings.EqualFold(c, "branch_id")
	case clause.Column:
		return strings.EqualFold(c.Name, "branch_id")
	default:
		return false
	}
}
