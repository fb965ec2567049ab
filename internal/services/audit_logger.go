package services

import (
	"encoding/json"
	"time"

	"github.com/eventcard/backend/internal/models"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	EntryID   string            `json:"entry_id,omitempty"`
	EventID   string            `json:"event_id"`
	CardUID   string            `json:"card_uid,omitempty"`
	ActorID   string            `json:"actor_id"`
	Amount    decimal.Decimal   `json:"amount"`
	Status    string            `json:"status"`
	Details   map[string]string `json:"details,omitempty"`
}

// AuditLogger writes one structured AUDIT line per engine outcome.
type AuditLogger struct {
	logger *log.Logger
}

func NewAuditLogger(logger *log.Logger) *AuditLogger {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &AuditLogger{logger: logger}
}

func (a *AuditLogger) LogEntry(op Operation, entry *models.LedgerEntry) {
	a.log(AuditEvent{
		Timestamp: entry.Timestamp,
		EventType: string(op),
		EntryID:   entry.ID,
		EventID:   entry.EventID,
		CardUID:   entry.CardUID,
		ActorID:   entry.ActorID,
		Amount:    entry.Amount,
		Status:    "SUCCESS",
	})
}

func (a *AuditLogger) LogOperation(op Operation, actor models.Actor, eventID, cardUID, details string) {
	a.log(AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: string(op),
		EventID:   eventID,
		CardUID:   cardUID,
		ActorID:   actor.ID,
		Status:    "SUCCESS",
		Details:   map[string]string{"details": details},
	})
}

func (a *AuditLogger) LogError(op Operation, actor models.Actor, eventID, cardUID string, err error) {
	a.log(AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: string(op),
		EventID:   eventID,
		CardUID:   cardUID,
		ActorID:   actor.ID,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	})
}

func (a *AuditLogger) log(event AuditEvent) {
	data, _ := json.Marshal(event)
	entry := a.logger.WithFields(log.Fields{
		"audit":  true,
		"op":     event.EventType,
		"status": event.Status,
	})
	if event.Status == "FAILED" {
		entry.Warnf("AUDIT: %s", string(data))
		return
	}
	entry.Infof("AUDIT: %s", string(data))
}
