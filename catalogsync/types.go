package catalogsync

import (
	"github.com/google/uuid"
	"github.com/maresto/inventory_backend/models"
)

const (
	TransportLocal  = "local"
	TransportPubSub = "pubsub"
)

// Task asks a worker to upsert a branch's catalog products. It is only handed off after the
// branch row it refers to has committed.
type Task struct {
	BranchId    int                     `json:"branch_id"`
	ReferenceId uuid.UUID               `json:"reference_id"`
	Reason      string                  `json:"reason"`
	Products    []models.CatalogProduct `json:"products"`
}

type Result string

const (
	ResultDone    Result = "done"
	ResultSkipped Result = "skipped"
	ResultFailed  Result = "failed"
)

// upstream GET /customer/v1/branch?id= body
type upstreamBranchResponse struct {
	Data *upstreamBranch `json:"data"`
}

type upstreamBranch struct {
	Name                    string                    `json:"name"`
	BranchProductCategories []upstreamProductCategory `json:"branch_product_categories"`
}

type upstreamProductCategory struct {
	Products []upstreamProduct `json:"products"`
}

type upstreamProduct struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
