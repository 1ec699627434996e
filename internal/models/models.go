// Package models defines the core data structures for Finivo.
//
// It includes nudge records, spending logs, regret memories and the request
// payloads shared between the engine, the stores and the HTTP layer.
package models

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Moneymaker1996/finivo-backend/internal/plan"
)

// Error variables for better error handling and testability
var (
	ErrInvalidUserID           = errors.New("user id must be a positive integer")
	ErrEmptyIntent             = errors.New("spending intent or structured signals are required")
	ErrEmptyMemory             = errors.New("memory content cannot be empty")
	ErrEmptyQuery              = errors.New("search query cannot be empty")
	ErrInvalidPlan             = errors.New("plan must be one of essential, prestige, elite")
	ErrUserNotFound            = errors.New("user not found")
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
)

// Source identifies the channel a spending intent arrived through.
type Source string

const (
	SourceText       Source = "text"
	SourceVoice      Source = "voice"
	SourceEarnEngine Source = "earn_engine"
	SourcePlaidAuto  Source = "plaid_auto"
)

// IsValidSource checks if the given source is supported.
func IsValidSource(s Source) bool {
	switch s {
	case SourceText, SourceVoice, SourceEarnEngine, SourcePlaidAuto:
		return true
	default:
		return false
	}
}

// EARNScript is the four-step Empathize / Acknowledge / Reinforce / Nudge
// script attached to persuasion nudges.
type EARNScript struct {
	Empathize   string `json:"E"`
	Acknowledge string `json:"A"`
	Reinforce   string `json:"R"`
	Nudge       string `json:"N"`
}

// NudgeRecord is a persisted nudge event.
type NudgeRecord struct {
	ID             string      `json:"id"`
	UserID         int64       `json:"user_id"`
	SpendingIntent string      `json:"spending_intent"`
	Message        string      `json:"message"`
	Plan           plan.Tier   `json:"plan"`
	Source         Source      `json:"source"`
	Timestamp      time.Time   `json:"timestamp"`
	Script         *EARNScript `json:"script,omitempty"`
}

// SpendingLog is a recorded purchase or purchase decision.
type SpendingLog struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"user_id"`
	ItemName  string          `json:"item_name"`
	Amount    decimal.Decimal `json:"amount"`
	Category  string          `json:"category,omitempty"`
	Decision  string          `json:"decision,omitempty"`
	Regret    bool            `json:"regret"`
	Timestamp time.Time       `json:"timestamp"`
}

// IsRegret reports whether the log counts toward the regret pattern.
func (l SpendingLog) IsRegret() bool {
	return l.Regret || strings.Contains(strings.ToLower(l.Decision), "regret")
}

// User is a Finivo account holder.
type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Plan      plan.Tier `json:"plan"`
	CreatedAt time.Time `json:"created_at"`
}

// MemoryDocument is a stored regret memory together with its embedding.
type MemoryDocument struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}

// RegretMemory is a memory returned by a similarity search.
type RegretMemory struct {
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	Similarity float64   `json:"similarity"`
}

// NudgeRequest is the payload accepted by the nudge endpoint. The tier
// always comes from the stored user.
type NudgeRequest struct {
	SpendingIntent      string  `json:"spending_intent"`
	Source              Source  `json:"source,omitempty"`
	ItemName            *string `json:"item_name,omitempty"`
	Mood                *string `json:"mood,omitempty"`
	PatternMatch        *bool   `json:"pattern_match,omitempty"`
	Urgency             *bool   `json:"urgency,omitempty"`
	UrgencyText         *string `json:"urgency_text,omitempty"`
	LastPurchaseDaysAgo *int    `json:"last_purchase_days_ago,omitempty"`
	Situation           *string `json:"situation,omitempty"`
	Explanation         *string `json:"explanation,omitempty"`
}

// HasSignals reports whether the request carries any input at all.
func (r NudgeRequest) HasSignals() bool {
	return strings.TrimSpace(r.SpendingIntent) != "" ||
		r.ItemName != nil || r.Mood != nil || r.PatternMatch != nil ||
		r.Urgency != nil || r.UrgencyText != nil || r.LastPurchaseDaysAgo != nil ||
		r.Situation != nil || r.Explanation != nil
}

// PlanUpdateRequest is the payload accepted by the plan update endpoint.
type PlanUpdateRequest struct {
	Plan string `json:"plan"`
}

// Validate rejects tier names that are not known exactly.
func (r PlanUpdateRequest) Validate() error {
	if !plan.Tier(r.Plan).Valid() {
		return ErrInvalidPlan
	}
	return nil
}

// MemoryStoreRequest is the payload accepted by the memory store endpoint.
type MemoryStoreRequest struct {
	Content   string     `json:"content"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Validate checks the request for required fields.
func (r MemoryStoreRequest) Validate() error {
	if strings.TrimSpace(r.Content) == "" {
		return ErrEmptyMemory
	}
	return nil
}

// MemorySearchRequest is the payload accepted by the memory search endpoint.
type MemorySearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// Validate checks the request for required fields.
func (r MemorySearchRequest) Validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return ErrEmptyQuery
	}
	return nil
}
