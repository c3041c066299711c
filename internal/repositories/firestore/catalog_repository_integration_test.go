//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domain "github.com/clovermart/api/internal/domain"
	pconfig "github.com/clovermart/api/internal/platform/config"
	pfirestore "github.com/clovermart/api/internal/platform/firestore"
	"github.com/clovermart/api/internal/repositories"
)

func TestCatalogRepositoryStockIntegration(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}

	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })

	waitForEndpoint(t, endpoint, 30*time.Second)

	cfg := pconfig.FirestoreConfig{
		ProjectID:    "catalog-test",
		EmulatorHost: endpoint,
	}

	provider := pfirestore.NewProvider(cfg)
	t.Cleanup(func() {
		_ = provider.Close(context.Background())
	})

	repo, err := NewCatalogRepository(provider)
	if err != nil {
		t.Fatalf("new catalog repository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client, err := provider.Client(ctx)
	if err != nil {
		t.Fatalf("provider client: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	chai := newProductDocument(domain.Product{
		Slug:     "masala-chai",
		Name:     "Masala Chai",
		Kind:     domain.ProductKindStandard,
		Price:    14900,
		Currency: "INR",
		Active:   true,
		Variants: []domain.ProductVariant{
			{Label: "250g", Price: 14900, Stock: 10},
			{Label: "500g", Price: 24900, Stock: 4},
		},
		CreatedAt: now,
		UpdatedAt: now,
	})
	honey := newProductDocument(domain.Product{
		Slug:      "wild-honey",
		Name:      "Wild Honey",
		Kind:      domain.ProductKindStandard,
		Price:     9900,
		Currency:  "INR",
		Stock:     6,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	})

	if _, err := client.Collection(productsCollection).Doc("prod-chai").Set(ctx, chai); err != nil {
		t.Fatalf("seed chai: %v", err)
	}
	if _, err := client.Collection(productsCollection).Doc("prod-honey").Set(ctx, honey); err != nil {
		t.Fatalf("seed honey: %v", err)
	}

	lines := []repositories.StockLine{
		{ProductID: "prod-chai", VariantLabel: "250g", Quantity: 3},
		{ProductID: "prod-honey", Quantity: 2},
	}
	if err := repo.DeductStock(ctx, lines, now); err != nil {
		t.Fatalf("deduct stock: %v", err)
	}

	chaiAfter, err := repo.FindByID(ctx, "prod-chai")
	if err != nil {
		t.Fatalf("find chai: %v", err)
	}
	if got := variantStock(chaiAfter, "250g"); got != 7 {
		t.Fatalf("expected 250g stock 7, got %d", got)
	}
	if chaiAfter.Stock != 11 {
		t.Fatalf("expected aggregate stock 11, got %d", chaiAfter.Stock)
	}
	honeyAfter, err := repo.FindByID(ctx, "prod-honey")
	if err != nil {
		t.Fatalf("find honey: %v", err)
	}
	if honeyAfter.Stock != 4 {
		t.Fatalf("expected honey stock 4, got %d", honeyAfter.Stock)
	}

	// Over-deducting the second line must leave the first untouched.
	err = repo.DeductStock(ctx, []repositories.StockLine{
		{ProductID: "prod-chai", VariantLabel: "500g", Quantity: 1},
		{ProductID: "prod-honey", Quantity: 50},
	}, now)
	if err == nil {
		t.Fatalf("expected insufficient stock error")
	}
	var stockErr *repositories.StockError
	if !errors.As(err, &stockErr) || stockErr.Code != repositories.StockErrorInsufficient {
		t.Fatalf("expected insufficient stock code, got %v", err)
	}
	chaiAfter, err = repo.FindByID(ctx, "prod-chai")
	if err != nil {
		t.Fatalf("find chai after failed deduct: %v", err)
	}
	if got := variantStock(chaiAfter, "500g"); got != 4 {
		t.Fatalf("failed deduction leaked a write, 500g stock %d", got)
	}

	// Deducting an unknown variant reports the variant, not insufficiency.
	err = repo.DeductStock(ctx, []repositories.StockLine{
		{ProductID: "prod-chai", VariantLabel: "1kg", Quantity: 1},
	}, now)
	stockErr = nil
	if !errors.As(err, &stockErr) || stockErr.Code != repositories.StockErrorVariantNotFound {
		t.Fatalf("expected variant not found, got %v", err)
	}

	if err := repo.RestoreStock(ctx, repositories.StockLine{ProductID: "prod-honey", Quantity: 2}, now); err != nil {
		t.Fatalf("restore stock: %v", err)
	}
	honeyAfter, err = repo.FindByID(ctx, "prod-honey")
	if err != nil {
		t.Fatalf("find honey after restore: %v", err)
	}
	if honeyAfter.Stock != 6 {
		t.Fatalf("expected honey stock 6 after restore, got %d", honeyAfter.Stock)
	}

	adjusted, err := repo.AdjustStock(ctx, repositories.StockAdjustment{
		ProductID:    "prod-chai",
		VariantLabel: "500g",
		NewStock:     20,
	}, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("adjust stock: %v", err)
	}
	if got := variantStock(adjusted, "500g"); got != 20 {
		t.Fatalf("expected adjusted stock 20, got %d", got)
	}
	if adjusted.Stock != 27 {
		t.Fatalf("expected aggregate stock 27 after adjust, got %d", adjusted.Stock)
	}

	bySlug, err := repo.FindBySlug(ctx, "wild-honey")
	if err != nil {
		t.Fatalf("find by slug: %v", err)
	}
	if bySlug.ID != "prod-honey" {
		t.Fatalf("expected prod-honey by slug, got %q", bySlug.ID)
	}
}

func TestCatalogRepositoryConcurrentDeductNeverOversells(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}

	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })

	waitForEndpoint(t, endpoint, 30*time.Second)

	cfg := pconfig.FirestoreConfig{
		ProjectID:    "catalog-concurrency-test",
		EmulatorHost: endpoint,
	}

	provider := pfirestore.NewProvider(cfg)
	t.Cleanup(func() {
		_ = provider.Close(context.Background())
	})

	repo, err := NewCatalogRepository(provider)
	if err != nil {
		t.Fatalf("new catalog repository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	client, err := provider.Client(ctx)
	if err != nil {
		t.Fatalf("provider client: %v", err)
	}

	const (
		stock   = int64(5)
		buyers  = 12
		perLine = int64(1)
	)

	now := time.Now().UTC().Truncate(time.Second)
	ghee := newProductDocument(domain.Product{
		Slug:      "desi-ghee",
		Name:      "Desi Ghee",
		Kind:      domain.ProductKindStandard,
		Price:     49900,
		Currency:  "INR",
		Stock:     stock,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if _, err := client.Collection(productsCollection).Doc("prod-ghee").Set(ctx, ghee); err != nil {
		t.Fatalf("seed ghee: %v", err)
	}

	var (
		succeeded atomic.Int64
		oversold  atomic.Int64
		wg        sync.WaitGroup
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.DeductStock(ctx, []repositories.StockLine{
				{ProductID: "prod-ghee", Quantity: perLine},
			}, now)
			if err == nil {
				succeeded.Add(1)
				return
			}
			var stockErr *repositories.StockError
			if !errors.As(err, &stockErr) || stockErr.Code != repositories.StockErrorInsufficient {
				oversold.Add(1)
			}
		}()
	}
	wg.Wait()

	if n := oversold.Load(); n != 0 {
		t.Fatalf("%d deductions failed with an unexpected error", n)
	}
	if got := succeeded.Load(); got != stock {
		t.Fatalf("expected exactly %d of %d concurrent deductions to win, got %d", stock, buyers, got)
	}

	after, err := repo.FindByID(ctx, "prod-ghee")
	if err != nil {
		t.Fatalf("find ghee: %v", err)
	}
	if after.Stock != 0 {
		t.Fatalf("expected stock drained to zero, got %d", after.Stock)
	}
}

func variantStock(p domain.Product, label string) int64 {
	for _, v := range p.Variants {
		if v.Label == label {
			return v.Stock
		}
	}
	return -1
}

func freePort(t *testing.T) int {
	t.Helper()
	addr, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer addr.Close()
	return addr.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	args := []string{
		"run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080",
		"--quiet",
	}

	cmd := exec.Command("docker", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		t.Fatalf("docker returned empty container id")
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "info")
	if err := cmd.Run(); err != nil {
		t.Fatalf("docker daemon not available: %v", err)
	}
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "stop", id)
	_ = cmd.Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("firestore emulator at %s did not become ready within %s", endpoint, timeout)
}

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"
