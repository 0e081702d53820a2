package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/errors"
	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/types"
	"github.com/ChaosDigtal/eth-swap-trackver-v2/pkg/logger"
	"github.com/shopspring/decimal"
)

// DefaultBatchSize is the number of rows per INSERT statement.
const DefaultBatchSize = 100

type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string

	BatchSize int
	// MaxValue bounds every numeric column; zero selects DefaultMaxValue.
	MaxValue decimal.Decimal
}

func (c Config) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, sslMode)
}

// DBServiceImpl implements the DBService interface
type DBServiceImpl struct {
	db        *sql.DB
	batchSize int
	maxValue  decimal.Decimal
}

// NewDBService opens, pings and migrates the database.
func NewDBService(ops DBOperations, cfg Config) (*DBServiceImpl, error) {
	db, err := ops.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := ops.RunMigrations(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DBServiceImpl{db: db, batchSize: cfg.BatchSize, maxValue: cfg.MaxValue}, nil
}

func (s *DBServiceImpl) chunkSize() int {
	if s.batchSize <= 0 {
		return DefaultBatchSize
	}
	return s.batchSize
}

func (s *DBServiceImpl) limit() decimal.Decimal {
	if s.maxValue.IsZero() {
		return DefaultMaxValue
	}
	return s.maxValue.Abs()
}

// PersistSwaps inserts events in chunks of the batch size, one statement per chunk.
// A failed chunk is logged and skipped; once every chunk has been tried the
// events that were written are returned with a *errors.PartialFailureError
// describing the rest.
func (s *DBServiceImpl) PersistSwaps(ctx context.Context, events []types.SwapEvent) ([]types.SwapEvent, error) {
	size := s.chunkSize()
	maxValue := s.limit()

	var (
		persisted = make([]types.SwapEvent, 0, len(events))
		failed    []*errors.PersistenceError
		chunks    int
	)

	for start := 0; start < len(events); start += size {
		end := start + size
		if end > len(events) {
			end = len(events)
		}
		chunk := events[start:end]
		chunks++

		query, args := buildInsert(chunk, maxValue)
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			pe := &errors.PersistenceError{
				Chunk: chunks - 1,
				Rows:  len(chunk),
				Err:   &errors.DatabaseError{Operation: "insert swap events", Err: err},
			}
			logger.Error("Error saving batch of events for block %d: %v", chunk[0].BlockNumber, pe)
			failed = append(failed, pe)
			continue
		}
		persisted = append(persisted, chunk...)
	}

	if len(failed) > 0 {
		return persisted, &errors.PartialFailureError{Total: chunks, Failed: failed}
	}
	return persisted, nil
}

// buildInsert renders one multi-row INSERT with len(swapColumns) placeholders per row.
func buildInsert(events []types.SwapEvent, maxValue decimal.Decimal) (string, []interface{}) {
	var sb strings.Builder
	sb.WriteString("INSERT INTO swap_events (")
	sb.WriteString(strings.Join(swapColumns, ", "))
	sb.WriteString(") VALUES ")

	args := make([]interface{}, 0, len(events)*len(swapColumns))
	for i, ev := range events {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for c := range swapColumns {
			if c > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", i*len(swapColumns)+c+1)
		}
		sb.WriteByte(')')
		args = append(args, newSwapRow(ev, maxValue).args()...)
	}
	return sb.String(), args
}

// LatestBlock returns the highest persisted block number, 0 when the table is empty.
func (s *DBServiceImpl) LatestBlock(ctx context.Context) (uint64, error) {
	var block int64
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(block_number), 0) FROM swap_events").Scan(&block)
	if err != nil {
		return 0, &errors.DatabaseError{Operation: "get latest block", Err: err}
	}
	return uint64(block), nil
}

func (s *DBServiceImpl) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &errors.DatabaseError{Operation: "ping database", Err: err}
	}
	return nil
}

// Close closes the database connection
func (s *DBServiceImpl) Close() error {
	return s.db.Close()
}
