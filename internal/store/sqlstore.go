package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Moneymaker1996/finivo-backend/internal/models"
	"github.com/Moneymaker1996/finivo-backend/internal/plan"
)

// sqlStore holds the queries shared by the SQLite and PostgreSQL backends.
// Queries are written with ? placeholders and rebound per dialect.
type sqlStore struct {
	db     *sql.DB
	name   string
	rebind func(string) string
}

func newSQLStore(db *sql.DB, name string, numbered bool) *sqlStore {
	s := &sqlStore{db: db, name: name, rebind: func(q string) string { return q }}
	if numbered {
		s.rebind = rebindNumbered
	}
	return s
}

// openDB connects with driver, applies the pool settings in tune and runs
// the schema. The handle is closed on any failure after open.
func openDB(name, driver, dsn, schema string, tune func(*sql.DB)) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		slog.Error(name+": open failed", "driver", driver, "error", err)
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if tune != nil {
		tune(db)
	}
	if err := db.Ping(); err != nil {
		slog.Error(name+": ping failed", "error", err)
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if _, err := db.Exec(schema); err != nil {
		slog.Error(name+": schema migration failed", "error", err)
		db.Close()
		return nil, fmt.Errorf("migrate %s schema: %w", driver, err)
	}
	slog.Debug(name + ": schema ready")
	return db, nil
}

// rebindNumbered turns ? placeholders into $1, $2, ...
func rebindNumbered(q string) string {
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) exec(ctx context.Context, q string, args ...interface{}) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(q), args...)
}

func (s *sqlStore) query(ctx context.Context, q string, args ...interface{}) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(q), args...)
}

func (s *sqlStore) queryRow(ctx context.Context, q string, args ...interface{}) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(q), args...)
}

// Close closes the database connection.
func (s *sqlStore) Close() error {
	slog.Debug(s.name + ".Close: closing database connection")
	return s.db.Close()
}

func (s *sqlStore) CreateUser(ctx context.Context, u models.User) (int64, error) {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	var id int64
	err := s.queryRow(ctx, `INSERT INTO users (name, email, plan, created_at) VALUES (?, ?, ?, ?) RETURNING id`,
		u.Name, nilIfEmpty(u.Email), string(plan.Sanitize(string(u.Plan))), u.CreatedAt.UTC()).Scan(&id)
	if err != nil {
		slog.Error(s.name+".CreateUser: insert failed", "error", err, "email", u.Email)
		return 0, fmt.Errorf("failed to insert user: %w", err)
	}
	slog.Debug(s.name+".CreateUser: succeeded", "user_id", id)
	return id, nil
}

func (s *sqlStore) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	var u models.User
	var email sql.NullString
	var rawPlan string
	err := s.queryRow(ctx, `SELECT id, name, email, plan, created_at FROM users WHERE id = ?`, userID).
		Scan(&u.ID, &u.Name, &email, &rawPlan, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrUserNotFound
	}
	if err != nil {
		slog.Error(s.name+".GetUser: query failed", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to get user %d: %w", userID, err)
	}
	u.Email = email.String
	u.Plan = plan.Sanitize(rawPlan)
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

func (s *sqlStore) UserPlan(ctx context.Context, userID int64) (plan.Tier, error) {
	var rawPlan string
	err := s.queryRow(ctx, `SELECT plan FROM users WHERE id = ?`, userID).Scan(&rawPlan)
	if errors.Is(err, sql.ErrNoRows) {
		return "", models.ErrUserNotFound
	}
	if err != nil {
		slog.Error(s.name+".UserPlan: query failed", "error", err, "user_id", userID)
		return "", fmt.Errorf("failed to get plan for user %d: %w", userID, err)
	}
	return plan.Sanitize(rawPlan), nil
}

func (s *sqlStore) SetUserPlan(ctx context.Context, userID int64, tier plan.Tier) error {
	res, err := s.exec(ctx, `UPDATE users SET plan = ? WHERE id = ?`, string(plan.Sanitize(string(tier))), userID)
	if err != nil {
		slog.Error(s.name+".SetUserPlan: update failed", "error", err, "user_id", userID)
		return fmt.Errorf("failed to set plan for user %d: %w", userID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrUserNotFound
	}
	slog.Debug(s.name+".SetUserPlan: succeeded", "user_id", userID, "plan", tier)
	return nil
}

func (s *sqlStore) AddSpending(ctx context.Context, l models.SpendingLog) (int64, error) {
	if l.Timestamp.IsZero() {
		l.Timestamp = time.Now()
	}
	var id int64
	err := s.queryRow(ctx, `INSERT INTO spending_logs (user_id, item_name, amount, category, decision, regret, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		l.UserID, l.ItemName, l.Amount, nilIfEmpty(l.Category), nilIfEmpty(l.Decision), l.Regret, l.Timestamp.UTC()).Scan(&id)
	if err != nil {
		slog.Error(s.name+".AddSpending: insert failed", "error", err, "user_id", l.UserID)
		return 0, fmt.Errorf("failed to insert spending log for user %d: %w", l.UserID, err)
	}
	slog.Debug(s.name+".AddSpending: succeeded", "user_id", l.UserID, "id", id)
	return id, nil
}

func (s *sqlStore) ListSpending(ctx context.Context, userID int64) ([]models.SpendingLog, error) {
	rows, err := s.query(ctx, `SELECT id, user_id, item_name, amount, category, decision, regret, timestamp FROM spending_logs WHERE user_id = ? ORDER BY timestamp DESC, id DESC`, userID)
	if err != nil {
		slog.Error(s.name+".ListSpending: query failed", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to query spending logs: %w", err)
	}
	defer rows.Close()
	var out []models.SpendingLog
	for rows.Next() {
		l, err := scanSpending(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate spending rows: %w", err)
	}
	return out, nil
}

func (s *sqlStore) CountRegrets(ctx context.Context, userID int64) (int, error) {
	var n int
	err := s.queryRow(ctx, `SELECT COUNT(*) FROM spending_logs WHERE user_id = ? AND (regret = ? OR LOWER(COALESCE(decision, '')) LIKE '%regret%')`, userID, true).Scan(&n)
	if err != nil {
		slog.Error(s.name+".CountRegrets: query failed", "error", err, "user_id", userID)
		return 0, fmt.Errorf("failed to count regrets for user %d: %w", userID, err)
	}
	return n, nil
}

func (s *sqlStore) SumSpending(ctx context.Context, userID int64, since, until time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.queryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM spending_logs WHERE user_id = ? AND timestamp >= ? AND timestamp <= ?`,
		userID, since.UTC(), until.UTC()).Scan(&total)
	if err != nil {
		slog.Error(s.name+".SumSpending: query failed", "error", err, "user_id", userID)
		return decimal.Zero, fmt.Errorf("failed to sum spending for user %d: %w", userID, err)
	}
	return total, nil
}

func (s *sqlStore) MostRecentPurchase(ctx context.Context, userID int64) (*time.Time, error) {
	var ts time.Time
	err := s.queryRow(ctx, `SELECT timestamp FROM spending_logs WHERE user_id = ? ORDER BY timestamp DESC LIMIT 1`, userID).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error(s.name+".MostRecentPurchase: query failed", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to get most recent purchase for user %d: %w", userID, err)
	}
	ts = ts.UTC()
	return &ts, nil
}

func (s *sqlStore) AddNudge(ctx context.Context, rec models.NudgeRecord) error {
	script, err := encodeScript(rec.Script)
	if err != nil {
		return err
	}
	if rec.Source == "" {
		rec.Source = models.SourceText
	}
	_, err = s.exec(ctx, `INSERT INTO nudge_logs (id, user_id, spending_intent, message, plan, source, timestamp, script) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.SpendingIntent, rec.Message, string(rec.Plan), string(rec.Source), rec.Timestamp.UTC(), script)
	if err != nil {
		slog.Error(s.name+".AddNudge: insert failed", "error", err, "user_id", rec.UserID)
		return fmt.Errorf("failed to insert nudge for user %d: %w", rec.UserID, err)
	}
	slog.Debug(s.name+".AddNudge: succeeded", "user_id", rec.UserID, "id", rec.ID, "plan", rec.Plan)
	return nil
}

func (s *sqlStore) CountNudges(ctx context.Context, userID int64, tier plan.Tier, since time.Time) (int, error) {
	var n int
	err := s.queryRow(ctx, `SELECT COUNT(*) FROM nudge_logs WHERE user_id = ? AND plan = ? AND timestamp >= ?`,
		userID, string(tier), since.UTC()).Scan(&n)
	if err != nil {
		slog.Error(s.name+".CountNudges: query failed", "error", err, "user_id", userID)
		return 0, fmt.Errorf("failed to count nudges for user %d: %w", userID, err)
	}
	return n, nil
}

const nudgeColumns = `id, user_id, spending_intent, message, plan, source, timestamp, script`

func (s *sqlStore) ListNudges(ctx context.Context, userID int64, limit int) ([]models.NudgeRecord, error) {
	return s.listNudges(ctx, `SELECT `+nudgeColumns+` FROM nudge_logs WHERE user_id = ? ORDER BY timestamp DESC`, userID, limit)
}

func (s *sqlStore) ListEARNSessions(ctx context.Context, userID int64, limit int) ([]models.NudgeRecord, error) {
	return s.listNudges(ctx, `SELECT `+nudgeColumns+` FROM nudge_logs WHERE user_id = ? AND script IS NOT NULL ORDER BY timestamp DESC`, userID, limit)
}

func (s *sqlStore) listNudges(ctx context.Context, q string, userID int64, limit int) ([]models.NudgeRecord, error) {
	args := []interface{}{userID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.query(ctx, q, args...)
	if err != nil {
		slog.Error(s.name+".listNudges: query failed", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to query nudges: %w", err)
	}
	return collectNudges(rows)
}

func (s *sqlStore) AddMemory(ctx context.Context, doc models.MemoryDocument) error {
	embedding, err := encodeEmbedding(doc.Embedding)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, `INSERT INTO memories (id, user_id, content, embedding, timestamp) VALUES (?, ?, ?, ?, ?)`,
		doc.ID, doc.UserID, doc.Content, embedding, doc.Timestamp.UTC())
	if err != nil {
		slog.Error(s.name+".AddMemory: insert failed", "error", err, "user_id", doc.UserID)
		return fmt.Errorf("failed to insert memory for user %d: %w", doc.UserID, err)
	}
	return nil
}

func (s *sqlStore) ListMemories(ctx context.Context, userID int64) ([]models.MemoryDocument, error) {
	rows, err := s.query(ctx, `SELECT id, user_id, content, embedding, timestamp FROM memories WHERE user_id = ? ORDER BY timestamp DESC`, userID)
	if err != nil {
		slog.Error(s.name+".ListMemories: query failed", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer rows.Close()
	var out []models.MemoryDocument
	for rows.Next() {
		d, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate memory rows: %w", err)
	}
	return out, nil
}

func (s *sqlStore) HasMemory(ctx context.Context, userID int64, content string) (bool, error) {
	var n int
	err := s.queryRow(ctx, `SELECT COUNT(*) FROM memories WHERE user_id = ? AND content = ?`, userID, content).Scan(&n)
	if err != nil {
		slog.Error(s.name+".HasMemory: query failed", "error", err, "user_id", userID)
		return false, fmt.Errorf("failed to check memory for user %d: %w", userID, err)
	}
	return n > 0, nil
}
