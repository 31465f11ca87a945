package txtrack

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	xerrors "OpenMCP-Wallet/internal/errors"
)

// SQLiteStore 把交易记录落在本地 SQLite 文件中，是默认的持久化驱动。
// 状态迁移通过条件 UPDATE 完成，读取永远不会看到半应用的迁移。
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore 打开（必要时创建）数据库文件并初始化表结构。
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidParams, "SQLite 路径不能为空")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "打开 SQLite 失败")
	}
	// modernc/sqlite 的单连接写模型下串行访问最稳妥。
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	const schema = `CREATE TABLE IF NOT EXISTS transaction_records (
        id TEXT PRIMARY KEY,
        state TEXT NOT NULL,
        from_address TEXT NOT NULL,
        to_address TEXT NOT NULL,
        amount TEXT NOT NULL,
        tx_identifier TEXT NOT NULL DEFAULT '',
        idempotency_key TEXT NOT NULL DEFAULT '',
        error_message TEXT NOT NULL DEFAULT '',
        attempts INTEGER NOT NULL DEFAULT 0,
        max_attempts INTEGER NOT NULL DEFAULT 0,
        created_at INTEGER NOT NULL,
        updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_txrec_state ON transaction_records (state);
CREATE INDEX IF NOT EXISTS idx_txrec_created ON transaction_records (created_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_txrec_idem ON transaction_records (idempotency_key)
        WHERE idempotency_key != '';`

	if _, err := s.db.Exec(schema); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化 transaction_records 表失败")
	}
	return nil
}

// Create 插入新的交易记录。
func (s *SQLiteStore) Create(ctx context.Context, record *Record) error {
	if record == nil {
		return xerrors.New(xerrors.CodeInvalidParams, "record 不能为空")
	}
	if strings.TrimSpace(record.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidParams, "记录 ID 不能为空")
	}
	now := time.Now().Unix()
	if record.CreatedAt == 0 {
		record.CreatedAt = now
	}
	record.UpdatedAt = record.CreatedAt

	const stmt = `INSERT INTO transaction_records
        (id, state, from_address, to_address, amount, tx_identifier, idempotency_key,
         error_message, attempts, max_attempts, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, stmt,
		record.ID,
		record.State,
		record.FromAddress,
		record.ToAddress,
		record.Amount,
		record.TxIdentifier,
		record.IdempotencyKey,
		record.ErrorMessage,
		record.Attempts,
		record.MaxAttempts,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrRecordConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入交易记录失败")
	}
	return nil
}

const selectColumns = `id, state, from_address, to_address, amount, tx_identifier,
        idempotency_key, error_message, attempts, max_attempts, created_at, updated_at`

func scanRecord(row *sql.Row) (*Record, error) {
	var record Record
	err := row.Scan(
		&record.ID,
		&record.State,
		&record.FromAddress,
		&record.ToAddress,
		&record.Amount,
		&record.TxIdentifier,
		&record.IdempotencyKey,
		&record.ErrorMessage,
		&record.Attempts,
		&record.MaxAttempts,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if stdErrors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取交易记录失败")
	}
	return &record, nil
}

// Get 查询指定记录。
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM transaction_records WHERE id = ?`, id)
	return scanRecord(row)
}

// FindByIdempotencyKey 按幂等键查找。
func (s *SQLiteStore) FindByIdempotencyKey(ctx context.Context, key string) (*Record, error) {
	if key == "" {
		return nil, ErrRecordNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM transaction_records WHERE idempotency_key = ?`, key)
	return scanRecord(row)
}

// MarkSent 条件更新实现 INITIATED→SENT。
func (s *SQLiteStore) MarkSent(ctx context.Context, id, txIdentifier string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE transaction_records SET state = ?, tx_identifier = ?, updated_at = ?
         WHERE id = ? AND state = ?`,
		StateSent, txIdentifier, time.Now().Unix(), id, StateInitiated)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新交易记录失败")
	}
	return s.transitionOutcome(ctx, result, id, "")
}

// MarkCompleted 条件更新实现 SENT→COMPLETED，对已 COMPLETED 的记录静默返回。
func (s *SQLiteStore) MarkCompleted(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE transaction_records SET state = ?, error_message = '', updated_at = ?
         WHERE id = ? AND state = ?`,
		StateCompleted, time.Now().Unix(), id, StateSent)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新交易记录失败")
	}
	return s.transitionOutcome(ctx, result, id, StateCompleted)
}

// MarkFailed 把记录推进到 FAILED 终态。
func (s *SQLiteStore) MarkFailed(ctx context.Context, id, message string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE transaction_records SET state = ?, error_message = ?, updated_at = ?
         WHERE id = ? AND state IN (?, ?)`,
		StateFailed, message, time.Now().Unix(), id, StateInitiated, StateSent)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新交易记录失败")
	}
	return s.transitionOutcome(ctx, result, id, StateFailed)
}

// transitionOutcome 在条件更新未命中时区分“记录不存在”“无害重复”与
// “非法迁移”三种情况。
func (s *SQLiteStore) transitionOutcome(ctx context.Context, result sql.Result, id string, benign State) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取更新结果失败")
	}
	if affected > 0 {
		return nil
	}
	record, getErr := s.Get(ctx, id)
	if getErr != nil {
		return getErr
	}
	if benign != "" && record.State == benign {
		return nil
	}
	return ErrRecordConflict
}

// Claim 递增结算尝试计数。
func (s *SQLiteStore) Claim(ctx context.Context, id string) (*Record, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE transaction_records SET attempts = attempts + 1, updated_at = ?
         WHERE id = ? AND state IN (?, ?)`,
		time.Now().Unix(), id, StateInitiated, StateSent)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新交易记录失败")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取更新结果失败")
	}
	record, getErr := s.Get(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if affected == 0 {
		return record, ErrRecordTerminal
	}
	return record, nil
}

// List 按创建时间升序返回记录。
func (s *SQLiteStore) List(ctx context.Context, opts ListOptions) ([]*Record, error) {
	opts.applyDefaults()

	query := `SELECT ` + selectColumns + ` FROM transaction_records`
	args := make([]any, 0, len(opts.States)+1)
	if len(opts.States) > 0 {
		placeholders := make([]string, len(opts.States))
		for i, state := range opts.States {
			placeholders[i] = "?"
			args = append(args, state)
		}
		query += ` WHERE state IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY created_at ASC, id ASC LIMIT ?`
	args = append(args, opts.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询交易记录失败")
	}
	defer rows.Close()

	results := make([]*Record, 0)
	for rows.Next() {
		var record Record
		if err := rows.Scan(
			&record.ID,
			&record.State,
			&record.FromAddress,
			&record.ToAddress,
			&record.Amount,
			&record.TxIdentifier,
			&record.IdempotencyKey,
			&record.ErrorMessage,
			&record.Attempts,
			&record.MaxAttempts,
			&record.CreatedAt,
			&record.UpdatedAt,
		); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取交易记录失败")
		}
		results = append(results, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历交易记录失败")
	}
	return results, nil
}

// Close 关闭数据库。
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
