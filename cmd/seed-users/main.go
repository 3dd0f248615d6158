// seed-users migrates the schema, ensures the system actor and creates or updates an operator user,
// then prints a fresh access token for it.
//
// Usage (from backend directory):
//
//	DB_DRIVER=postgres DB_DSN=... go run ./cmd/seed-users -email ops@example.com -name Ops -password '...'
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/maresto/inventory_backend/config"
	"github.com/maresto/inventory_backend/models"
)

func main() {
	var (
		email    = flag.String("email", os.Getenv("SEED_USER_EMAIL"), "operator email")
		name     = flag.String("name", os.Getenv("SEED_USER_NAME"), "operator name")
		password = flag.String("password", os.Getenv("SEED_USER_PASSWORD"), "operator password (min 8 chars)")
	)
	flag.Parse()
	if *email == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "-email and -password are required")
		os.Exit(2)
	}
	if *name == "" {
		*name = *email
	}

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	if err := models.AutoMigrate(ctx, db); err != nil {
		fmt.Fprintf(os.Stderr, "failed to migrate: %v\n", err)
		os.Exit(1)
	}

	user, err := models.SaveUser(ctx, &models.NewUser{Name: *name, Email: *email, Password: *password})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to save user: %v\n", err)
		os.Exit(1)
	}

	token, record, err := models.IssueAccessToken(ctx, user.ID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to issue token: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Seeded user: id=%s email=%q\n", user.ID, user.Email)
	fmt.Printf("Access token (expires %s):\n%s\n", record.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"), token)
}
