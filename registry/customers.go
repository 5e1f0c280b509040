package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"sales-portal/blobstore"
	"sales-portal/domain"
	"sales-portal/ingest"
)

const customersCollection = "customers"

// customerFile is the stored document. All rows of one uploaded file live in
// a single object so a re-upload replaces them with one write.
type customerFile struct {
	SchemaVersion int               `json:"schemaVersion"`
	SourceFile    string            `json:"sourceFile"`
	ImportedAt    time.Time         `json:"importedAt"`
	Customers     []domain.Customer `json:"customers"`
}

// Customers owns customer records grouped by source file.
type Customers struct {
	store       blobstore.Store
	locks       blobstore.Locker
	logger      *log.Logger
	concurrency int
	now         func() time.Time
}

// NewCustomers creates the customer registry.
func NewCustomers(store blobstore.Store, locks blobstore.Locker, logger *log.Logger) *Customers {
	if logger == nil {
		logger = log.New()
	}
	if locks == nil {
		locks = blobstore.NewLocalLocker()
	}
	return &Customers{store: store, locks: locks, logger: logger, concurrency: defaultFetchConcurrency, now: time.Now}
}

// SetFetchConcurrency bounds parallel loads in ListAll.
func (c *Customers) SetFetchConcurrency(n int) {
	if n > 0 {
		c.concurrency = n
	}
}

// ImportFromCSV replaces every customer tagged with filename by rows. Rows
// are validated first; a single invalid row rejects the whole import.
func (c *Customers) ImportFromCSV(ctx context.Context, rows []ingest.Row, filename string) (int, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return 0, fmt.Errorf("%w: filename is required", domain.ErrValidation)
	}

	now := c.now().UTC()
	customers := make([]domain.Customer, 0, len(rows))
	var problems []error
	for i, row := range rows {
		cust, err := customerFromRow(row)
		if err != nil {
			// Row numbers count the header as line 1.
			problems = append(problems, fmt.Errorf("row %d: %w", i+2, err))
			continue
		}
		cust.ID = uuid.NewString()
		cust.SourceFile = filename
		cust.CreatedAt = now
		cust.UpdatedAt = now
		customers = append(customers, cust)
	}
	if len(problems) > 0 {
		return 0, fmt.Errorf("%w: %s: %w", domain.ErrValidation, filename, errors.Join(problems...))
	}

	// The write must finish even if the caller goes away.
	ctx = context.WithoutCancel(ctx)
	key := blobstore.Key(customersCollection, filename)
	unlock, err := c.locks.Lock(ctx, key)
	if err != nil {
		return 0, err
	}
	defer unlock()

	doc := customerFile{
		SchemaVersion: domain.SchemaVersion,
		SourceFile:    filename,
		ImportedAt:    now,
		Customers:     customers,
	}
	if err := blobstore.PutJSON(ctx, c.store, key, doc); err != nil {
		return 0, err
	}
	c.logger.WithFields(log.Fields{"file": filename, "customers": len(customers)}).Info("customers imported")
	return len(customers), nil
}

func customerFromRow(row ingest.Row) (domain.Customer, error) {
	var cust domain.Customer
	var missing []string
	field := func(dst *string, label string, aliases ...string) {
		v, _ := ingest.Field(row, aliases...)
		if v == "" {
			missing = append(missing, label)
			return
		}
		*dst = v
	}
	field(&cust.Name, "name", "name", "customerName", "customer")
	field(&cust.ProductDemand, "productDemand", "productDemand", "product", "demand")
	field(&cust.Category, "category", "category")
	field(&cust.Email, "email", "email", "emailAddress")
	if len(missing) > 0 {
		return cust, fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	if !strings.Contains(cust.Email, "@") {
		return cust, fmt.Errorf("invalid email %q", cust.Email)
	}
	return cust, nil
}

// ListByFile returns the customers imported from filename.
func (c *Customers) ListByFile(ctx context.Context, filename string) ([]domain.Customer, error) {
	var doc customerFile
	err := blobstore.GetJSON(ctx, c.store, blobstore.Key(customersCollection, strings.TrimSpace(filename)), &doc)
	if errors.Is(err, blobstore.ErrNotFound) {
		return []domain.Customer{}, nil
	}
	if err != nil {
		return nil, err
	}
	if doc.Customers == nil {
		doc.Customers = []domain.Customer{}
	}
	return doc.Customers, nil
}

// ListAll returns every customer across all files.
func (c *Customers) ListAll(ctx context.Context) ([]domain.Customer, error) {
	keys, err := c.store.List(ctx, blobstore.Prefix(customersCollection))
	if err != nil {
		return nil, err
	}
	docs, err := fetchAll[customerFile](ctx, c.store, keys, c.concurrency)
	if err != nil {
		return nil, err
	}
	out := []domain.Customer{}
	for _, d := range docs {
		out = append(out, d.Customers...)
	}
	return out, nil
}

// ListByCategory returns the customers whose category matches, ignoring case.
func (c *Customers) ListByCategory(ctx context.Context, category string) ([]domain.Customer, error) {
	all, err := c.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	category = strings.TrimSpace(category)
	out := []domain.Customer{}
	for _, cust := range all {
		if strings.EqualFold(strings.TrimSpace(cust.Category), category) {
			out = append(out, cust)
		}
	}
	return out, nil
}

// Categories returns the distinct customer categories, sorted.
func (c *Customers) Categories(ctx context.Context) ([]string, error) {
	all, err := c.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	out := []string{}
	for _, cust := range all {
		cat := strings.TrimSpace(cust.Category)
		if cat == "" || seen[strings.ToLower(cat)] {
			continue
		}
		seen[strings.ToLower(cat)] = true
		out = append(out, cat)
	}
	sort.Strings(out)
	return out, nil
}

// Files returns the names of imported files, sorted.
func (c *Customers) Files(ctx context.Context) ([]string, error) {
	keys, err := c.store.List(ctx, blobstore.Prefix(customersCollection))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if name, ok := blobstore.ID(k); ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Purge deletes every customer imported from filename.
func (c *Customers) Purge(ctx context.Context, filename string) error {
	filename = strings.TrimSpace(filename)
	key := blobstore.Key(customersCollection, filename)
	ctx = context.WithoutCancel(ctx)
	unlock, err := c.locks.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()

	if _, err := blobstore.Direct(c.store).Get(ctx, key); err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return fmt.Errorf("%w: customer file %q", domain.ErrNotFound, filename)
		}
		return err
	}
	if err := c.store.Delete(ctx, key); err != nil {
		return err
	}
	c.logger.WithField("file", filename).Info("customers purged")
	return nil
}
