package db

import (
	"database/sql"
	"sync"

	"github.com/CamberLoid/Chimata-Payroll/internal/key"
	"github.com/CamberLoid/Chimata-Payroll/internal/ledger"
	"github.com/CamberLoid/Chimata-Payroll/internal/payroll"
	"github.com/CamberLoid/Chimata-Payroll/internal/serverlib"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Journal 是账本事件的 sqlite 日志，实现 ledger.EventSink。
// review.completed 事件中的解密结果同时归档到 DecryptedReviews。
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// Open 打开（或创建）path 处的数据库并建表
func Open(path string) (*Journal, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	for _, stmt := range []string{CreateEventTable(), CreateDecryptedReviewTable(), CreateViewingKeyTable()} {
		if _, err := conn.Exec(stmt); err != nil {
			conn.Close()
			return nil, errors.Wrap(err, "create table")
		}
	}
	return &Journal{db: conn}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) DB() *sql.DB {
	return j.db
}

// --- 写入部分 ---

// Emit 把事件写入 Events 表
func (j *Journal) Emit(e ledger.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	tx, err := j.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback()

	var payrollID, requestID sql.NullString
	if !e.PayrollID.IsZero() {
		payrollID = sql.NullString{String: e.PayrollID.String(), Valid: true}
	}
	if e.RequestID != uuid.Nil {
		requestID = sql.NullString{String: e.RequestID.String(), Valid: true}
	}
	_, err = tx.Exec(`
		INSERT INTO Events
		(uuid, kind, payroll, request, actor, status, detail, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID.String(), string(e.Kind), payrollID, requestID, e.Actor.String(), e.Status.String(), e.Detail, e.Timestamp)
	if err != nil {
		return errors.Wrap(err, "insert event")
	}

	if e.Revealed != nil {
		if err := putDecryptedReview(tx, e.Revealed); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// 解密结果只写一次，重复写入被忽略
func putDecryptedReview(tx *sql.Tx, r *payroll.DecryptedReview) error {
	_, err := tx.Exec(`
		INSERT INTO DecryptedReviews
		(payroll, request, totalCompensation, netPay, marketPercentile, compensationBand, decisionCode, decryptedAt)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (payroll) DO NOTHING
	`, r.PayrollID.String(), r.RequestID.String(),
		int64(r.TotalCompensation), int64(r.NetPay), int64(r.MarketPercentile),
		int64(r.CompensationBand), int64(r.DecisionCode), r.DecryptedAt)
	return errors.Wrap(err, "archive decrypted review")
}

// PutViewingKey 登记或替换用户的查看公钥，写入前先确认能被解析
func (j *Journal) PutViewingKey(user uuid.UUID, pk []byte, now int64) error {
	var parseErr error
	if err := serverlib.Recover(func() { _, parseErr = key.UnmarshalCKKSPublicKey(pk) }); err != nil || parseErr != nil {
		return errors.Wrap(payroll.ErrInvalidParameters, "viewing key does not parse")
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(`
		INSERT INTO ViewingKeys (user, publicKey, updatedAt)
		VALUES (?, ?, ?)
		ON CONFLICT (user) DO UPDATE SET
			publicKey = excluded.publicKey,
			updatedAt = excluded.updatedAt
	`, user.String(), pk, now)
	return errors.Wrap(err, "put viewing key")
}

// --- 查询部分 ---

// GetViewingKey 查询用户登记的查看公钥
func (j *Journal) GetViewingKey(user uuid.UUID) ([]byte, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var pk []byte
	err := j.db.QueryRow(`SELECT publicKey FROM ViewingKeys WHERE user = ?`, user.String()).Scan(&pk)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(payroll.ErrNotFound, "viewing key for %s", user)
	}
	if err != nil {
		return nil, errors.Wrap(err, "scan viewing key")
	}
	return pk, nil
}

// ListEvents 按写入顺序返回事件；payrollID 为零值时返回全部
func (j *Journal) ListEvents(payrollID payroll.ID) ([]ledger.Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	query := `SELECT uuid, kind, payroll, request, actor, status, detail, timestamp FROM Events`
	var args []any
	if !payrollID.IsZero() {
		query += ` WHERE payroll = ?`
		args = append(args, payrollID.String())
	}
	query += ` ORDER BY seq`

	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query events")
	}
	defer rows.Close()

	var out []ledger.Event
	for rows.Next() {
		var (
			e                   ledger.Event
			id, kind, actor, st string
			pid, rid            sql.NullString
		)
		if err := rows.Scan(&id, &kind, &pid, &rid, &actor, &st, &e.Detail, &e.Timestamp); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		e.Kind = ledger.EventKind(kind)
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, errors.Wrap(err, "parse event id")
		}
		if e.Actor, err = uuid.Parse(actor); err != nil {
			return nil, errors.Wrap(err, "parse actor")
		}
		if err := e.Status.UnmarshalText([]byte(st)); err != nil {
			return nil, err
		}
		if pid.Valid {
			if e.PayrollID, err = payroll.ParseID(pid.String); err != nil {
				return nil, err
			}
		}
		if rid.Valid {
			if e.RequestID, err = uuid.Parse(rid.String); err != nil {
				return nil, errors.Wrap(err, "parse request id")
			}
		}
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "iterate events")
}

// GetDecryptedReview 读取归档的解密审核
func (j *Journal) GetDecryptedReview(payrollID payroll.ID) (*payroll.DecryptedReview, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	r := &payroll.DecryptedReview{PayrollID: payrollID}
	var (
		request                                    string
		total, net, pct, band, decision, decrypted int64
	)
	err := j.db.QueryRow(`
		SELECT request, totalCompensation, netPay, marketPercentile, compensationBand, decisionCode, decryptedAt
		FROM DecryptedReviews
		WHERE payroll = ?
	`, payrollID.String()).Scan(&request, &total, &net, &pct, &band, &decision, &decrypted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(payroll.ErrNotFound, "archived review for %s", payrollID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "scan decrypted review")
	}
	if r.RequestID, err = uuid.Parse(request); err != nil {
		return nil, errors.Wrap(err, "parse request id")
	}
	r.TotalCompensation, r.NetPay, r.MarketPercentile = uint64(total), uint64(net), uint64(pct)
	r.CompensationBand, r.DecisionCode, r.DecryptedAt = uint64(band), uint64(decision), decrypted
	return r, nil
}
