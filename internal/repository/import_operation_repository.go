package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/coop-member-import/internal/domain"
)

// ImportOperationRepository encapsulates import operation persistence. Counters
// and the error list are only ever changed with single-statement updates.
type ImportOperationRepository interface {
	Create(ctx context.Context, op *domain.ImportOperation) error
	GetByID(ctx context.Context, id string) (*domain.ImportOperation, error)
	Finalize(ctx context.Context, id string, stats domain.ImportStatistics, completedAt time.Time) error
	IncrementCounter(ctx context.Context, id string, counter domain.ImportCounter) error
	AppendError(ctx context.Context, id string, entry domain.ImportError) error
	List(ctx context.Context, limit, offset int) ([]domain.ImportOperation, int, error)
}

type importOperationRepository struct {
	pool *pgxpool.Pool
}

// NewImportOperationRepository instantiates repository.
func NewImportOperationRepository(pool *pgxpool.Pool) ImportOperationRepository {
	return &importOperationRepository{pool: pool}
}

var importCounters = map[domain.ImportCounter]struct{}{
	domain.CounterSuccessfulImports: {},
	domain.CounterFailedImports:     {},
	domain.CounterSkippedRows:       {},
	domain.CounterSMSSent:           {},
	domain.CounterSMSFailed:         {},
	domain.CounterEmailSent:         {},
	domain.CounterEmailFailed:       {},
}

const importColumns = `id, admin_id, admin_name, csv_file_name, total_rows, successful_imports, failed_imports,
               skipped_rows, sms_sent_count, sms_failed_count, email_sent_count, email_failed_count,
               import_errors, status, created_at, completed_at`

func (r *importOperationRepository) Create(ctx context.Context, op *domain.ImportOperation) error {
	const query = `
        INSERT INTO import_operations (admin_id, admin_name, csv_file_name, total_rows, status)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	if op.Status == "" {
		op.Status = domain.ImportStatusPending
	}
	return r.pool.QueryRow(ctx, query,
		op.AdminID,
		op.AdminName,
		op.CSVFileName,
		op.TotalRows,
		op.Status,
	).Scan(&op.ID, &op.CreatedAt)
}

func (r *importOperationRepository) GetByID(ctx context.Context, id string) (*domain.ImportOperation, error) {
	query := `SELECT ` + importColumns + ` FROM import_operations WHERE id=$1`
	return scanImport(r.pool.QueryRow(ctx, query, id))
}

func (r *importOperationRepository) Finalize(ctx context.Context, id string, stats domain.ImportStatistics, completedAt time.Time) error {
	const query = `
        UPDATE import_operations SET total_rows=$1, successful_imports=$2, failed_imports=$3,
            skipped_rows=$4, status=$5, completed_at=$6
        WHERE id=$7`
	cmd, err := r.pool.Exec(ctx, query,
		stats.TotalRows,
		stats.SuccessfulImports,
		stats.FailedImports,
		stats.SkippedRows,
		domain.ImportStatusCompleted,
		completedAt,
		id,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *importOperationRepository) IncrementCounter(ctx context.Context, id string, counter domain.ImportCounter) error {
	if _, ok := importCounters[counter]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCounter, counter)
	}
	query := fmt.Sprintf(`UPDATE import_operations SET %[1]s=%[1]s+1 WHERE id=$1`, counter)
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *importOperationRepository) AppendError(ctx context.Context, id string, entry domain.ImportError) error {
	payload, err := json.Marshal([]domain.ImportError{entry})
	if err != nil {
		return err
	}
	const query = `UPDATE import_operations SET import_errors = import_errors || $1::jsonb WHERE id=$2`
	cmd, err := r.pool.Exec(ctx, query, string(payload), id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *importOperationRepository) List(ctx context.Context, limit, offset int) ([]domain.ImportOperation, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM import_operations`).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM import_operations ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		importColumns, limit, offset)
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []domain.ImportOperation
	for rows.Next() {
		op, err := scanImport(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *op)
	}
	return result, total, rows.Err()
}

func scanImport(row pgx.Row) (*domain.ImportOperation, error) {
	var (
		op        domain.ImportOperation
		errorsRaw []byte
	)
	if err := row.Scan(
		&op.ID,
		&op.AdminID,
		&op.AdminName,
		&op.CSVFileName,
		&op.TotalRows,
		&op.SuccessfulImports,
		&op.FailedImports,
		&op.SkippedRows,
		&op.SMSSentCount,
		&op.SMSFailedCount,
		&op.EmailSentCount,
		&op.EmailFailedCount,
		&errorsRaw,
		&op.Status,
		&op.CreatedAt,
		&op.CompletedAt,
	); err != nil {
		return nil, err
	}
	op.ImportErrors = []domain.ImportError{}
	if len(errorsRaw) > 0 {
		if err := json.Unmarshal(errorsRaw, &op.ImportErrors); err != nil {
			return nil, fmt.Errorf("decode import errors: %w", err)
		}
	}
	return &op, nil
}
