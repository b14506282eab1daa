package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sort"
	"time"

	"storefront-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrations embed.FS

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate applies the embedded schema files in name order
func (s *Store) Migrate(ctx context.Context) error {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to list migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		body, err := migrations.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(body)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// CreateProduct inserts a product and its variants in one transaction.
// Variants get the new product id and their own ids filled in.
func (s *Store) CreateProduct(ctx context.Context, product *models.Product, variants []models.Variant) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, product, `
			INSERT INTO products (sku, name, price)
			VALUES ($1, $2, $3)
			RETURNING id, sku, name, price, created_at`,
			product.SKU, product.Name, product.Price)
		if isUniqueViolation(err) {
			return fmt.Errorf("product %s: %w", product.SKU, ErrDuplicate)
		}
		if err != nil {
			return err
		}

		for i := range variants {
			variants[i].ProductID = product.ID
			err := tx.GetContext(ctx, &variants[i].ID, `
				INSERT INTO product_variants (product_id, name, sku, price_adjustment)
				VALUES ($1, $2, $3, $4)
				RETURNING id`,
				product.ID, variants[i].Name, variants[i].SKU, variants[i].PriceAdjustment)
			if isUniqueViolation(err) {
				return fmt.Errorf("variant %s: %w", variants[i].SKU, ErrDuplicate)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProductsByIDs retrieves multiple products by IDs
func (s *Store) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM products WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var products []models.Product
	err = s.db.SelectContext(ctx, &products, query, args...)
	return products, err
}

// GetVariant retrieves a variant belonging to the given product
func (s *Store) GetVariant(ctx context.Context, productID, variantID int64) (*models.Variant, error) {
	var variant models.Variant
	err := s.db.GetContext(ctx, &variant,
		"SELECT * FROM product_variants WHERE id = $1 AND product_id = $2", variantID, productID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("variant %d of product %d: %w", variantID, productID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &variant, nil
}

// CreateCustomer registers a customer account
func (s *Store) CreateCustomer(ctx context.Context, customer *models.Customer) error {
	err := s.db.GetContext(ctx, customer, `
		INSERT INTO customers (email)
		VALUES ($1)
		RETURNING id, email, is_active, created_at`,
		customer.Email)
	if isUniqueViolation(err) {
		return fmt.Errorf("customer %s: %w", customer.Email, ErrDuplicate)
	}
	return err
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
