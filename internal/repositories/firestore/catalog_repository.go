package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/clovermart/api/internal/domain"
	pfirestore "github.com/clovermart/api/internal/platform/firestore"
	"github.com/clovermart/api/internal/platform/pagination"
	"github.com/clovermart/api/internal/repositories"
)

const productsCollection = "products"

type CatalogRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.BaseRepository[productDocument]
}

func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	products := pfirestore.NewBaseRepository[productDocument](provider, productsCollection)
	return &CatalogRepository{provider: provider, products: products}, nil
}

func (r *CatalogRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.products == nil {
		return domain.Product{}, errors.New("catalog repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, errors.New("catalog find: product id is required")
	}

	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		ref, err := r.products.DocumentRef(ctx, productID)
		if err != nil {
			return domain.Product{}, wrapCatalogError("catalog.findByID", err)
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return domain.Product{}, repositories.NewStockError(repositories.StockErrorProductNotFound, fmt.Sprintf("product %s not found", productID), err)
			}
			return domain.Product{}, wrapCatalogError("catalog.findByID", err)
		}
		doc, err := decodeProduct(snap)
		if err != nil {
			return domain.Product{}, err
		}
		return doc.toDomain(productID), nil
	}

	doc, err := r.products.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, wrapCatalogError("catalog.findByID", err)
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *CatalogRepository) FindBySlug(ctx context.Context, slug string) (domain.Product, error) {
	if r == nil || r.provider == nil {
		return domain.Product{}, errors.New("catalog repository not initialised")
	}
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return domain.Product{}, errors.New("catalog find by slug: slug is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Product{}, wrapCatalogError("catalog.findBySlug", err)
	}

	iter := client.Collection(productsCollection).Where("slug", "==", slug).Limit(1).Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return domain.Product{}, repositories.NewStockError(repositories.StockErrorProductNotFound, fmt.Sprintf("product with slug %s not found", slug), nil)
	}
	if err != nil {
		return domain.Product{}, wrapCatalogError("catalog.findBySlug", err)
	}
	doc, err := decodeProduct(snap)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.toDomain(snap.Ref.ID), nil
}

func (r *CatalogRepository) FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	if r == nil || r.products == nil {
		return nil, errors.New("catalog repository not initialised")
	}

	out := make(map[string]domain.Product, len(productIDs))
	for _, raw := range productIDs {
		productID := strings.TrimSpace(raw)
		if productID == "" {
			continue
		}
		if _, ok := out[productID]; ok {
			continue
		}
		product, err := r.FindByID(ctx, productID)
		if err != nil {
			return nil, err
		}
		out[productID] = product
	}
	return out, nil
}

func (r *CatalogRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Product]{}, errors.New("catalog repository not initialised")
	}

	pageSize := filter.Pagination.Limit
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Product]{}, wrapCatalogError("catalog.list", err)
	}

	query := client.Collection(productsCollection).Query
	if filter.Kind != nil {
		query = query.Where("kind", "==", string(*filter.Kind))
	}
	if tag := strings.TrimSpace(filter.Tag); tag != "" {
		query = query.Where("tags", "array-contains", tag)
	}
	if filter.ActiveOnly {
		query = query.Where("active", "==", true)
	}
	query = query.OrderBy("slug", firestore.Asc).Limit(pageSize + 1)

	var cursor productPageToken
	if ok, err := pagination.DecodeToken(filter.Pagination.Token, &cursor); err != nil {
		return domain.CursorPage[domain.Product]{}, wrapCatalogError("catalog.list", err)
	} else if ok {
		query = query.StartAfter(cursor.Slug)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var products []domain.Product
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Product]{}, wrapCatalogError("catalog.list", err)
		}
		doc, err := decodeProduct(snap)
		if err != nil {
			return domain.CursorPage[domain.Product]{}, err
		}
		products = append(products, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(products) > pageSize
	if hasMore {
		products = products[:pageSize]
	}
	var nextToken string
	if hasMore && len(products) > 0 {
		encoded, err := pagination.EncodeToken(productPageToken{Slug: products[len(products)-1].Slug})
		if err != nil {
			return domain.CursorPage[domain.Product]{}, wrapCatalogError("catalog.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.Product]{
		Items:         products,
		NextPageToken: nextToken,
	}, nil
}

// DeductStock decrements stock for every line in one transaction. When the
// context already carries a transaction the mutations join it, so an order
// insert and its stock deduction commit or abort together.
func (r *CatalogRepository) DeductStock(ctx context.Context, lines []repositories.StockLine, now time.Time) error {
	if r == nil || r.provider == nil {
		return errors.New("catalog repository not initialised")
	}
	if len(lines) == 0 {
		return errors.New("catalog deduct stock: at least one line is required")
	}

	apply := func(ctx context.Context, tx *firestore.Transaction) error {
		// Transactions require all reads before any write, so collect the
		// updated documents first.
		type pendingWrite struct {
			ref *firestore.DocumentRef
			doc productDocument
		}
		grouped := groupStockLines(lines)
		writes := make([]pendingWrite, 0, len(grouped))
		for _, group := range grouped {
			ref, err := r.products.DocumentRef(ctx, group.productID)
			if err != nil {
				return err
			}
			snap, err := tx.Get(ref)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return repositories.NewStockError(repositories.StockErrorProductNotFound, fmt.Sprintf("product %s not found", group.productID), err)
				}
				return err
			}
			doc, err := decodeProduct(snap)
			if err != nil {
				return err
			}
			for _, line := range group.lines {
				if err := doc.deduct(line); err != nil {
					return err
				}
			}
			doc.UpdatedAt = now.UTC()
			writes = append(writes, pendingWrite{ref: ref, doc: doc})
		}
		for _, write := range writes {
			if err := tx.Set(write.ref, write.doc); err != nil {
				return err
			}
		}
		return nil
	}

	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		if err := apply(ctx, tx); err != nil {
			return wrapCatalogError("catalog.deductStock", err)
		}
		return nil
	}

	err := r.provider.RunTransaction(ctx, apply)
	if err != nil {
		return wrapCatalogError("catalog.deductStock", err)
	}
	return nil
}

// RestoreStock increments stock for one line in its own transaction.
func (r *CatalogRepository) RestoreStock(ctx context.Context, line repositories.StockLine, now time.Time) error {
	if r == nil || r.provider == nil {
		return errors.New("catalog repository not initialised")
	}
	productID := strings.TrimSpace(line.ProductID)
	if productID == "" {
		return errors.New("catalog restore stock: product id is required")
	}
	if line.Quantity <= 0 {
		return errors.New("catalog restore stock: quantity must be > 0")
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.products.DocumentRef(ctx, productID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewStockError(repositories.StockErrorProductNotFound, fmt.Sprintf("product %s not found", productID), err)
			}
			return err
		}
		doc, err := decodeProduct(snap)
		if err != nil {
			return err
		}
		if err := doc.restore(line); err != nil {
			return err
		}
		doc.UpdatedAt = now.UTC()
		return tx.Set(ref, doc)
	})
	if err != nil {
		return wrapCatalogError("catalog.restoreStock", err)
	}
	return nil
}

// AdjustStock sets the absolute stock level for a product or variant.
func (r *CatalogRepository) AdjustStock(ctx context.Context, adjustment repositories.StockAdjustment, now time.Time) (domain.Product, error) {
	if r == nil || r.provider == nil {
		return domain.Product{}, errors.New("catalog repository not initialised")
	}
	productID := strings.TrimSpace(adjustment.ProductID)
	if productID == "" {
		return domain.Product{}, errors.New("catalog adjust stock: product id is required")
	}
	if adjustment.NewStock < 0 {
		return domain.Product{}, errors.New("catalog adjust stock: stock must be >= 0")
	}

	var updated domain.Product
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.products.DocumentRef(ctx, productID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewStockError(repositories.StockErrorProductNotFound, fmt.Sprintf("product %s not found", productID), err)
			}
			return err
		}
		doc, err := decodeProduct(snap)
		if err != nil {
			return err
		}
		label := strings.TrimSpace(adjustment.VariantLabel)
		if label == "" {
			if len(doc.Variants) > 0 {
				return repositories.NewStockError(repositories.StockErrorVariantNotFound, fmt.Sprintf("product %s sells through variants", productID), nil)
			}
			doc.Stock = adjustment.NewStock
		} else {
			found := false
			for i := range doc.Variants {
				if doc.Variants[i].Label == label {
					doc.Variants[i].Stock = adjustment.NewStock
					found = true
					break
				}
			}
			if !found {
				return repositories.NewStockError(repositories.StockErrorVariantNotFound, fmt.Sprintf("variant %s not found on product %s", label, productID), nil)
			}
			doc.recalculate()
		}
		doc.UpdatedAt = now.UTC()
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		updated = doc.toDomain(productID)
		return nil
	})
	if err != nil {
		return domain.Product{}, wrapCatalogError("catalog.adjustStock", err)
	}
	return updated, nil
}

// Helper structures ---------------------------------------------------------

type productDocument struct {
	Slug        string                   `firestore:"slug"`
	Name        string                   `firestore:"name"`
	Description string                   `firestore:"description,omitempty"`
	Kind        string                   `firestore:"kind"`
	Price       int64                    `firestore:"price"`
	Currency    string                   `firestore:"currency"`
	Stock       int64                    `firestore:"stock"`
	Variants    []productVariantDocument `firestore:"variants,omitempty"`
	Components  []comboComponentDocument `firestore:"components,omitempty"`
	ImageURLs   []string                 `firestore:"imageUrls,omitempty"`
	Tags        []string                 `firestore:"tags,omitempty"`
	Active      bool                     `firestore:"active"`
	CreatedAt   time.Time                `firestore:"createdAt"`
	UpdatedAt   time.Time                `firestore:"updatedAt"`
}

type productVariantDocument struct {
	Label string `firestore:"label"`
	Price int64  `firestore:"price"`
	Stock int64  `firestore:"stock"`
}

type comboComponentDocument struct {
	ProductRef string `firestore:"productRef"`
	Quantity   int64  `firestore:"qty"`
}

// recalculate keeps the aggregate stock in sync with variant stock.
func (d *productDocument) recalculate() {
	if len(d.Variants) == 0 {
		return
	}
	var total int64
	for _, v := range d.Variants {
		total += v.Stock
	}
	d.Stock = total
}

func (d *productDocument) deduct(line repositories.StockLine) error {
	if line.Quantity <= 0 {
		return repositories.NewStockError(repositories.StockErrorUnknown, fmt.Sprintf("quantity for %s must be > 0", line.ProductID), nil)
	}
	label := strings.TrimSpace(line.VariantLabel)
	if label == "" {
		if len(d.Variants) > 0 {
			return repositories.NewStockError(repositories.StockErrorVariantNotFound, fmt.Sprintf("product %s requires a variant", line.ProductID), nil)
		}
		if d.Stock < line.Quantity {
			return repositories.NewStockError(repositories.StockErrorInsufficient, fmt.Sprintf("insufficient stock for %s", line.ProductID), nil)
		}
		d.Stock -= line.Quantity
		return nil
	}
	for i := range d.Variants {
		if d.Variants[i].Label != label {
			continue
		}
		if d.Variants[i].Stock < line.Quantity {
			return repositories.NewStockError(repositories.StockErrorInsufficient, fmt.Sprintf("insufficient stock for %s (%s)", line.ProductID, label), nil)
		}
		d.Variants[i].Stock -= line.Quantity
		d.recalculate()
		return nil
	}
	return repositories.NewStockError(repositories.StockErrorVariantNotFound, fmt.Sprintf("variant %s not found on product %s", label, line.ProductID), nil)
}

func (d *productDocument) restore(line repositories.StockLine) error {
	label := strings.TrimSpace(line.VariantLabel)
	if label == "" {
		if len(d.Variants) > 0 {
			return repositories.NewStockError(repositories.StockErrorVariantNotFound, fmt.Sprintf("product %s requires a variant", line.ProductID), nil)
		}
		d.Stock += line.Quantity
		return nil
	}
	for i := range d.Variants {
		if d.Variants[i].Label != label {
			continue
		}
		d.Variants[i].Stock += line.Quantity
		d.recalculate()
		return nil
	}
	return repositories.NewStockError(repositories.StockErrorVariantNotFound, fmt.Sprintf("variant %s not found on product %s", label, line.ProductID), nil)
}

func (d productDocument) toDomain(id string) domain.Product {
	variants := make([]domain.ProductVariant, len(d.Variants))
	for i, v := range d.Variants {
		variants[i] = domain.ProductVariant{Label: v.Label, Price: v.Price, Stock: v.Stock}
	}
	components := make([]domain.ComboComponent, len(d.Components))
	for i, c := range d.Components {
		components[i] = domain.ComboComponent{ProductID: c.ProductRef, Quantity: c.Quantity}
	}
	if len(variants) == 0 {
		variants = nil
	}
	if len(components) == 0 {
		components = nil
	}
	return domain.Product{
		ID:          id,
		Slug:        strings.TrimSpace(d.Slug),
		Name:        strings.TrimSpace(d.Name),
		Description: d.Description,
		Kind:        domain.ProductKind(d.Kind),
		Price:       d.Price,
		Currency:    strings.TrimSpace(d.Currency),
		Stock:       d.Stock,
		Variants:    variants,
		Components:  components,
		ImageURLs:   d.ImageURLs,
		Tags:        d.Tags,
		Active:      d.Active,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

func newProductDocument(p domain.Product) productDocument {
	variants := make([]productVariantDocument, len(p.Variants))
	for i, v := range p.Variants {
		variants[i] = productVariantDocument{Label: v.Label, Price: v.Price, Stock: v.Stock}
	}
	components := make([]comboComponentDocument, len(p.Components))
	for i, c := range p.Components {
		components[i] = comboComponentDocument{ProductRef: c.ProductID, Quantity: c.Quantity}
	}
	doc := productDocument{
		Slug:        strings.TrimSpace(p.Slug),
		Name:        strings.TrimSpace(p.Name),
		Description: p.Description,
		Kind:        string(p.Kind),
		Price:       p.Price,
		Currency:    strings.TrimSpace(p.Currency),
		Stock:       p.Stock,
		Variants:    variants,
		Components:  components,
		ImageURLs:   p.ImageURLs,
		Tags:        p.Tags,
		Active:      p.Active,
		CreatedAt:   p.CreatedAt.UTC(),
		UpdatedAt:   p.UpdatedAt.UTC(),
	}
	doc.recalculate()
	return doc
}

func decodeProduct(snap *firestore.DocumentSnapshot) (productDocument, error) {
	var doc productDocument
	if err := snap.DataTo(&doc); err != nil {
		return productDocument{}, fmt.Errorf("decode product %s: %w", snap.Ref.ID, err)
	}
	return doc, nil
}

type stockLineGroup struct {
	productID string
	lines     []repositories.StockLine
}

// groupStockLines merges lines by product so each document is read and
// written once per transaction, preserving first-seen order.
func groupStockLines(lines []repositories.StockLine) []stockLineGroup {
	index := make(map[string]int, len(lines))
	groups := make([]stockLineGroup, 0, len(lines))
	for _, line := range lines {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" {
			continue
		}
		line.ProductID = productID
		if i, ok := index[productID]; ok {
			groups[i].lines = append(groups[i].lines, line)
			continue
		}
		index[productID] = len(groups)
		groups = append(groups, stockLineGroup{productID: productID, lines: []repositories.StockLine{line}})
	}
	return groups
}

type productPageToken struct {
	Slug string `json:"slug"`
}

func wrapCatalogError(op string, err error) error {
	if err == nil {
		return nil
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		if stockErr.Op == "" {
			stockErr.Op = op
		}
		return stockErr
	}
	return pfirestore.WrapError(op, err)
}
