package state

import (
	"context"
	"fmt"
	"net/url"

	"github.com/yanun0323/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"main/internal/ledger"
	"main/internal/schema"
)

const (
	defaultPostgresHost    = "localhost"
	defaultPostgresPort    = 5432
	defaultPostgresSSLMode = "disable"
)

// ArchiveOption defines the Postgres connection for the archive.
type ArchiveOption struct {
	Host       string
	Port       int
	User       string
	Password   string
	Database   string
	SSLMode    string
	ConnString string
}

// OrderRecord is one archived terminal order. Money fields keep their
// scaled integer representation; Scale columns make them readable.
type OrderRecord struct {
	ID              uint   `gorm:"primaryKey"`
	ClientOrderID   string `gorm:"uniqueIndex;size:64"`
	ExchangeOrderID string `gorm:"size:64"`
	Symbol          string `gorm:"index;size:32"`
	Side            string `gorm:"size:8"`
	State           string `gorm:"size:24"`
	Reason          string
	Price           int64
	Qty             int64
	FilledQty       int64
	PriceScale      int16
	QtyScale        int16
	CreatedAt       int64
	UpdatedAt       int64
}

// Archive persists terminal orders to Postgres via gorm. A nil
// *Archive is a no-op so the archive stays optional.
type Archive struct {
	db  *gorm.DB
	reg *schema.Registry
}

// OpenArchive connects and migrates the order table.
func OpenArchive(opt ArchiveOption, reg *schema.Registry) (*Archive, error) {
	db, err := gorm.Open(postgres.Open(opt.dsn()), &gorm.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "open archive database")
	}
	if err := db.AutoMigrate(&OrderRecord{}); err != nil {
		return nil, errors.Wrap(err, "migrate archive schema")
	}
	return &Archive{db: db, reg: reg}, nil
}

// ArchiveOrders writes terminal orders, skipping already-archived
// client order ids so replays stay idempotent.
func (a *Archive) ArchiveOrders(ctx context.Context, orders []ledger.Order) error {
	if a == nil || len(orders) == 0 {
		return nil
	}
	records := make([]OrderRecord, 0, len(orders))
	for _, o := range orders {
		rec := OrderRecord{
			ClientOrderID:   o.ClientOrderID,
			ExchangeOrderID: o.ExchangeOrderID,
			Side:            o.Side.String(),
			State:           o.State.String(),
			Reason:          o.Reason,
			Price:           int64(o.Price),
			Qty:             int64(o.Qty),
			FilledQty:       int64(o.FilledQty),
			CreatedAt:       o.CreatedAt,
			UpdatedAt:       o.UpdatedAt,
		}
		if sym, ok := a.reg.Symbol(o.SymbolID); ok {
			rec.Symbol = sym.Name
			rec.PriceScale = int16(sym.Scale.PriceScale)
			rec.QtyScale = int16(sym.Scale.QuantityScale)
		}
		records = append(records, rec)
	}
	err := a.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "client_order_id"}},
			DoNothing: true,
		}).
		Create(&records).Error
	if err != nil {
		return errors.Wrap(err, "archive orders")
	}
	return nil
}

// Close releases the connection pool.
func (a *Archive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (opt ArchiveOption) dsn() string {
	if opt.ConnString != "" {
		return opt.ConnString
	}

	host := opt.Host
	if host == "" {
		host = defaultPostgresHost
	}
	port := opt.Port
	if port == 0 {
		port = defaultPostgresPort
	}
	sslMode := opt.SSLMode
	if sslMode == "" {
		sslMode = defaultPostgresSSLMode
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", host, port),
	}
	if opt.User != "" {
		if opt.Password != "" {
			u.User = url.UserPassword(opt.User, opt.Password)
		} else {
			u.User = url.User(opt.User)
		}
	}
	if opt.Database != "" {
		u.Path = "/" + opt.Database
	}
	query := url.Values{}
	query.Set("sslmode", sslMode)
	u.RawQuery = query.Encode()
	return u.String()
}
