package txtrack

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"OpenMCP-Wallet/deploy/migrations"
	xerrors "OpenMCP-Wallet/internal/errors"
)

// MySQLStore 使用 MySQL 记录交易状态，适合多副本部署共享一份账目。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 创建一个新的 MySQLStore。
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidParams, "MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}

	store := &MySQLStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// initSchema 依次执行内嵌的迁移文件，每个文件只包含一条语句。
func (s *MySQLStore) initSchema() error {
	names, err := fs.Glob(migrations.Files, "*.sql")
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取迁移文件列表失败")
	}
	sort.Strings(names)
	for _, name := range names {
		stmt, err := fs.ReadFile(migrations.Files, name)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取迁移文件 "+name+" 失败")
		}
		if _, err := s.db.Exec(string(stmt)); err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "执行迁移 "+name+" 失败")
		}
	}
	return nil
}

// Create 插入新的交易记录。
func (s *MySQLStore) Create(ctx context.Context, record *Record) error {
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

	// MySQL 的 UNIQUE 索引不忽略空串，这里用 NULL 回避幂等键为空的冲突。
	var idemKey any
	if record.IdempotencyKey != "" {
		idemKey = record.IdempotencyKey
	}

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
		idemKey,
		record.ErrorMessage,
		record.Attempts,
		record.MaxAttempts,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return ErrRecordConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入交易记录失败")
	}
	return nil
}

func (s *MySQLStore) scanOne(row *sql.Row) (*Record, error) {
	var record Record
	var idemKey sql.NullString
	var errMsg sql.NullString
	err := row.Scan(
		&record.ID,
		&record.State,
		&record.FromAddress,
		&record.ToAddress,
		&record.Amount,
		&record.TxIdentifier,
		&idemKey,
		&errMsg,
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
	record.IdempotencyKey = idemKey.String
	record.ErrorMessage = errMsg.String
	return &record, nil
}

// Get 查询指定记录。
func (s *MySQLStore) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM transaction_records WHERE id = ?`, id)
	return s.scanOne(row)
}

// FindByIdempotencyKey 按幂等键查找。
func (s *MySQLStore) FindByIdempotencyKey(ctx context.Context, key string) (*Record, error) {
	if key == "" {
		return nil, ErrRecordNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM transaction_records WHERE idempotency_key = ?`, key)
	return s.scanOne(row)
}

// MarkSent 条件更新实现 INITIATED→SENT。
func (s *MySQLStore) MarkSent(ctx context.Context, id, txIdentifier string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE transaction_records SET state = ?, tx_identifier = ?, updated_at = ?
         WHERE id = ? AND state = ?`,
		StateSent, txIdentifier, time.Now().Unix(), id, StateInitiated)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新交易记录失败")
	}
	return s.transitionOutcome(ctx, result, id, "")
}

// MarkCompleted 条件更新实现 SENT→COMPLETED，重复调用静默返回。
func (s *MySQLStore) MarkCompleted(ctx context.Context, id string) error {
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
func (s *MySQLStore) MarkFailed(ctx context.Context, id, message string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE transaction_records SET state = ?, error_message = ?, updated_at = ?
         WHERE id = ? AND state IN (?, ?)`,
		StateFailed, message, time.Now().Unix(), id, StateInitiated, StateSent)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新交易记录失败")
	}
	return s.transitionOutcome(ctx, result, id, StateFailed)
}

func (s *MySQLStore) transitionOutcome(ctx context.Context, result sql.Result, id string, benign State) error {
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
func (s *MySQLStore) Claim(ctx context.Context, id string) (*Record, error) {
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
func (s *MySQLStore) List(ctx context.Context, opts ListOptions) ([]*Record, error) {
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
		var idemKey sql.NullString
		var errMsg sql.NullString
		if err := rows.Scan(
			&record.ID,
			&record.State,
			&record.FromAddress,
			&record.ToAddress,
			&record.Amount,
			&record.TxIdentifier,
			&idemKey,
			&errMsg,
			&record.Attempts,
			&record.MaxAttempts,
			&record.CreatedAt,
			&record.UpdatedAt,
		); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取交易记录失败")
		}
		record.IdempotencyKey = idemKey.String
		record.ErrorMessage = errMsg.String
		results = append(results, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历交易记录失败")
	}
	return results, nil
}

// Close 关闭数据库。
func (s *MySQLStore) Close() error {
	return s.db.Close()
}

var _ Store = (*MySQLStore)(nil)
