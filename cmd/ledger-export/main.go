// ledger-export writes one branch's specifications and ledger to an xlsx workbook,
// either to a local file or to a GCS bucket.
//
// Usage:
//
//	go run ./cmd/ledger-export -branch 3 -out ledger.xlsx
//	go run ./cmd/ledger-export -branch 3 -bucket my-exports
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/maresto/inventory_backend/config"
	"github.com/maresto/inventory_backend/models"
	"github.com/maresto/inventory_backend/utils"
)

func main() {
	var (
		branchId = flag.Int("branch", 0, "branch id")
		out      = flag.String("out", "", "output file (default ledger-branch-<id>.xlsx)")
		bucket   = flag.String("bucket", "", "upload to this GCS bucket instead of writing a file")
		timeout  = flag.Duration("timeout", 5*time.Minute, "overall timeout")
	)
	flag.Parse()
	if *branchId <= 0 {
		fmt.Fprintln(os.Stderr, "-branch is required")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	ctx = utils.SetBranchIdInContext(ctx, *branchId)

	if *bucket != "" {
		location, err := models.ArchiveLedgerExport(ctx, *branchId, *bucket)
		if err != nil {
			fmt.Fprintf(os.Stderr, "export failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(location)
		return
	}

	f, err := models.ExportLedger(ctx, *branchId)
	if err != nil {
		fmt.Fprintf(os.Stderr, "export failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = f.Close() }()

	path := *out
	if path == "" {
		path = fmt.Sprintf("ledger-branch-%d.xlsx", *branchId)
	}
	if err := f.SaveAs(path); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", path, err)
		os.Exit(1)
	}
	fmt.Println(path)
}
