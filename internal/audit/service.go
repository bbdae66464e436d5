/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package audit records operator actions published on the event bus.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/parkbay/internal/clock"
	"github.com/friendsincode/parkbay/internal/events"
	"github.com/friendsincode/parkbay/internal/models"
)

// actions maps each audited event to the action it is stored as.
var actions = map[events.EventType]models.AuditAction{
	events.EventAuditSlotCreate:      models.AuditActionSlotCreate,
	events.EventAuditSlotStatus:      models.AuditActionSlotStatus,
	events.EventAuditSweepRun:        models.AuditActionSweepRun,
	events.EventAuditIntegrityRepair: models.AuditActionIntegrityRepair,
}

// Service handles audit logging by subscribing to events and storing audit entries.
type Service struct {
	db     *gorm.DB
	bus    *events.Bus
	clock  clock.Clock
	logger zerolog.Logger
	done   chan struct{}
}

// NewService creates a new audit service.
func NewService(db *gorm.DB, bus *events.Bus, clk clock.Clock, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		bus:    bus,
		clock:  clk,
		logger: logger.With().Str("component", "audit").Logger(),
		done:   make(chan struct{}),
	}
}

type subscription struct {
	eventType events.EventType
	action    models.AuditAction
	ch        events.Subscriber
}

type auditEvent struct {
	action  models.AuditAction
	payload events.Payload
}

// Start subscribes before returning, so events published afterwards are
// recorded. Entries are written until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	subs := make([]subscription, 0, len(actions))
	for et, action := range actions {
		subs = append(subs, subscription{eventType: et, action: action, ch: s.bus.Subscribe(et)})
	}

	entries := make(chan auditEvent, 16)
	for _, sub := range subs {
		go func(sub subscription) {
			for payload := range sub.ch {
				select {
				case entries <- auditEvent{action: sub.action, payload: payload}:
				case <-ctx.Done():
					return
				}
			}
		}(sub)
	}

	go func() {
		defer close(s.done)
		defer func() {
			for _, sub := range subs {
				s.bus.Unsubscribe(sub.eventType, sub.ch)
			}
		}()
		s.logger.Info().Int("actions", len(subs)).Msg("audit service started")
		for {
			select {
			case <-ctx.Done():
				s.logger.Info().Msg("audit service stopping")
				return
			case e := <-entries:
				s.logAuditEntry(ctx, e.action, e.payload)
			}
		}
	}()
}

// Done is closed once the service has stopped after Start.
func (s *Service) Done() <-chan struct{} {
	return s.done
}

// logAuditEntry creates an audit log entry from an event payload.
func (s *Service) logAuditEntry(ctx context.Context, action models.AuditAction, payload events.Payload) {
	entry := &models.AuditLog{
		Action:  action,
		Details: make(map[string]any),
	}

	if userID, ok := payload["user_id"].(string); ok {
		entry.UserID = userID
	}
	if resourceType, ok := payload["resource_type"].(string); ok {
		entry.ResourceType = resourceType
	}
	if resourceID, ok := payload["resource_id"].(string); ok {
		entry.ResourceID = resourceID
	}
	if ipAddress, ok := payload["ip_address"].(string); ok {
		entry.IPAddress = ipAddress
	}
	if userAgent, ok := payload["user_agent"].(string); ok {
		entry.UserAgent = userAgent
	}

	for k, v := range payload {
		switch k {
		case "user_id", "resource_type", "resource_id", "ip_address", "user_agent":
		default:
			entry.Details[k] = v
		}
	}

	if err := s.Log(ctx, entry); err != nil {
		s.logger.Error().Err(err).
			Str("action", string(action)).
			Msg("failed to log audit entry")
	}
}

// Log records an audit entry directly.
func (s *Service) Log(ctx context.Context, entry *models.AuditLog) error {
	now := s.clock.Now()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = now
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.Details == nil {
		entry.Details = make(map[string]any)
	}

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("create audit entry: %w", err)
	}

	s.logger.Debug().
		Str("action", string(entry.Action)).
		Str("id", entry.ID).
		Msg("audit entry logged")
	return nil
}

// QueryFilters defines filters for querying audit logs.
type QueryFilters struct {
	UserID string
	Action models.AuditAction
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

// Query retrieves audit logs, most recent first, with the total match count.
func (s *Service) Query(ctx context.Context, filters QueryFilters) ([]models.AuditLog, int64, error) {
	var logs []models.AuditLog
	var total int64

	query := s.db.WithContext(ctx).Model(&models.AuditLog{})
	if filters.UserID != "" {
		query = query.Where("user_id = ?", filters.UserID)
	}
	if filters.Action != "" {
		query = query.Where("action = ?", filters.Action)
	}
	if !filters.From.IsZero() {
		query = query.Where("timestamp >= ?", filters.From)
	}
	if !filters.To.IsZero() {
		query = query.Where("timestamp < ?", filters.To)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}

	if filters.Limit <= 0 || filters.Limit > 500 {
		filters.Limit = 100
	}
	query = query.Limit(filters.Limit)
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	if err := query.Order("timestamp DESC").Find(&logs).Error; err != nil {
		return nil, 0, fmt.Errorf("query audit entries: %w", err)
	}
	return logs, total, nil
}
