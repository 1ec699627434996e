package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/Moneymaker1996/finivo-backend/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// encodeScript serializes an optional E.A.R.N. script for a nullable column.
func encodeScript(s *models.EARNScript) (interface{}, error) {
	if s == nil {
		return nil, nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal script: %w", err)
	}
	return string(data), nil
}

func decodeScript(raw sql.NullString) (*models.EARNScript, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var s models.EARNScript
	if err := json.Unmarshal([]byte(raw.String), &s); err != nil {
		return nil, fmt.Errorf("unmarshal script: %w", err)
	}
	return &s, nil
}

func encodeEmbedding(v []float32) (string, error) {
	if v == nil {
		v = []float32{}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal embedding: %w", err)
	}
	return string(data), nil
}

func decodeEmbedding(raw string) ([]float32, error) {
	var v []float32
	if raw == "" {
		return v, nil
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("unmarshal embedding: %w", err)
	}
	return v, nil
}

// scanNudge scans a nudge record from sql.Rows. Column order:
// id, user_id, spending_intent, message, plan, source, timestamp, script.
func scanNudge(rows *sql.Rows) (models.NudgeRecord, error) {
	var rec models.NudgeRecord
	var script sql.NullString
	if err := rows.Scan(&rec.ID, &rec.UserID, &rec.SpendingIntent, &rec.Message, &rec.Plan, &rec.Source, &rec.Timestamp, &script); err != nil {
		return rec, fmt.Errorf("scan nudge failed: %w", err)
	}
	s, err := decodeScript(script)
	if err != nil {
		return rec, err
	}
	rec.Script = s
	rec.Timestamp = rec.Timestamp.UTC()
	return rec, nil
}

func collectNudges(rows *sql.Rows) ([]models.NudgeRecord, error) {
	defer rows.Close()
	var out []models.NudgeRecord
	for rows.Next() {
		rec, err := scanNudge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate nudge rows: %w", err)
	}
	return out, nil
}

// scanSpending scans a spending log from sql.Rows. Column order:
// id, user_id, item_name, amount, category, decision, regret, timestamp.
func scanSpending(rows *sql.Rows) (models.SpendingLog, error) {
	var l models.SpendingLog
	var category, decision sql.NullString
	if err := rows.Scan(&l.ID, &l.UserID, &l.ItemName, &l.Amount, &category, &decision, &l.Regret, &l.Timestamp); err != nil {
		return l, fmt.Errorf("scan spending log failed: %w", err)
	}
	l.Category = category.String
	l.Decision = decision.String
	l.Timestamp = l.Timestamp.UTC()
	return l, nil
}

// scanMemory scans a memory document from sql.Rows. Column order:
// id, user_id, content, embedding, timestamp.
func scanMemory(rows *sql.Rows) (models.MemoryDocument, error) {
	var d models.MemoryDocument
	var embedding string
	if err := rows.Scan(&d.ID, &d.UserID, &d.Content, &embedding, &d.Timestamp); err != nil {
		return d, fmt.Errorf("scan memory failed: %w", err)
	}
	v, err := decodeEmbedding(embedding)
	if err != nil {
		return d, err
	}
	d.Embedding = v
	d.Timestamp = d.Timestamp.UTC()
	return d, nil
}
