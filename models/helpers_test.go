package models_test

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/maresto/inventory_backend/config"
	"github.com/maresto/inventory_backend/models"
	"github.com/maresto/inventory_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
)

type fixture struct {
	ctx    context.Context
	user   *models.User
	branch *models.Branch
}

// setupDB points the global connection at a fresh sqlite file for the duration of the test.
func setupDB(t *testing.T) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inventory_test.db")
	conn, err := config.OpenDatabase(sqlite.Open(path + "?_busy_timeout=5000&_journal_mode=WAL"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	prev := config.GetDB()
	config.SetDB(conn)
	t.Cleanup(func() {
		config.SetDB(prev)
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := models.AutoMigrate(context.Background(), conn); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	setupDB(t)
	return seedFixture(t)
}

func seedFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	user, err := models.SaveUser(ctx, &models.NewUser{
		Name:     "Owner",
		Email:    fmt.Sprintf("owner-%s@test.local", uuid.NewString()[:8]),
		Password: "password123",
	})
	if err != nil {
		t.Fatalf("SaveUser: %v", err)
	}
	branch, err := models.CreateBranch(ctx, &models.NewBranch{
		Name:        "Main Branch",
		ReferenceId: uuid.New(),
		UserId:      user.ID,
	}, nil)
	if err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	return &fixture{
		ctx:    utils.SetUserIdInContext(ctx, user.ID),
		user:   user,
		branch: branch,
	}
}

func (f *fixture) product(t *testing.T, name string) *models.Product {
	t.Helper()
	ref := uuid.New()
	if _, _, err := models.UpsertCatalogProducts(f.ctx, f.branch.ID, []models.CatalogProduct{{ReferenceId: ref, Name: name}}); err != nil {
		t.Fatalf("UpsertCatalogProducts: %v", err)
	}
	var product models.Product
	if err := config.GetDB().Where("branch_id = ? AND reference_id = ?", f.branch.ID, ref).First(&product).Error; err != nil {
		t.Fatalf("fetch product %s: %v", name, err)
	}
	return &product
}

func (f *fixture) specification(t *testing.T, name string) *models.Specification {
	t.Helper()
	spec, err := models.CreateSpecification(f.ctx, f.branch.ID, &models.NewSpecification{
		Name:         name,
		Unit:         "g",
		UnitName:     "gram",
		SmallestUnit: 1,
		RawPrice:     decimal.NewFromInt(1),
	})
	if err != nil {
		t.Fatalf("CreateSpecification(%s): %v", name, err)
	}
	return spec
}

func (f *fixture) purchase(t *testing.T, specificationId int, quantity int64, price string) *models.SpecificationHistory {
	t.Helper()
	history, err := models.PurchaseSpecification(f.ctx, f.branch.ID, specificationId, &models.NewPurchase{
		Quantity: quantity,
		Price:    decimal.RequireFromString(price),
	})
	if err != nil {
		t.Fatalf("PurchaseSpecification: %v", err)
	}
	return history
}

func (f *fixture) link(t *testing.T, productId int, specificationId int, quantity int64) {
	t.Helper()
	_, err := models.SetProductSpecification(f.ctx, f.branch.ID, &models.NewProductSpecification{
		ProductId:       productId,
		SpecificationId: specificationId,
		Quantity:        quantity,
	})
	if err != nil {
		t.Fatalf("SetProductSpecification: %v", err)
	}
}

func sale(items ...models.NewTransactionItem) *models.NewTransaction {
	return &models.NewTransaction{Items: items}
}

func item(product *models.Product, quantity int64) models.NewTransactionItem {
	return models.NewTransactionItem{ProductReferenceId: product.ReferenceId, ProductQuantity: quantity}
}

func countRows(t *testing.T, model interface{}) int64 {
	t.Helper()
	var count int64
	if err := config.GetDB().Model(model).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return count
}

func outRows(t *testing.T, specificationId int) []*models.SpecificationHistory {
	t.Helper()
	var rows []*models.SpecificationHistory
	err := config.GetDB().
		Where("specification_id = ? AND flow_type = ?", specificationId, models.FlowTypeOut).
		Order("id").Find(&rows).Error
	if err != nil {
		t.Fatalf("fetch OUT rows: %v", err)
	}
	return rows
}

func expectKind(t *testing.T, err error, kind utils.ErrorKind, field string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error on %q, got nil", kind, field)
	}
	var appErr *utils.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *utils.AppError, got %T: %v", err, err)
	}
	if appErr.Kind != kind {
		t.Fatalf("expected kind %s, got %s (%v)", kind, appErr.Kind, err)
	}
	if field != "" && appErr.Field != field {
		t.Fatalf("expected field %q, got %q", field, appErr.Field)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("inventory-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("inventory-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=inventory_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func startPostgresContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("inventory-test-postgres-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "POSTGRES_PASSWORD=testpw",
		"-e", "POSTGRES_DB=inventory_test",
		"-p", "127.0.0.1:0:5432",
		"postgres:16-alpine",
	)
	if err != nil {
		t.Fatalf("start postgres container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "5432/tcp")
	if err != nil {
		t.Fatalf("postgres docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "pg_isready", "-U", "postgres", "-d", "inventory_test")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("postgres did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
