package sync

import (
	"encoding/json"
	"time"

	"github.com/hyperengineering/stride/internal/types"
)

// Operation is a queued mutation kind.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Valid reports whether op names a known operation.
func (op Operation) Valid() bool {
	return op == OpCreate || op == OpUpdate || op == OpDelete
}

// Strategy selects how a detected conflict is resolved. It is chosen per
// reconciliation call and never persisted.
type Strategy string

const (
	StrategyClientWins Strategy = "client-wins"
	StrategyServerWins Strategy = "server-wins"
	StrategyTimestamp  Strategy = "timestamp"
)

// Valid reports whether s names a known strategy.
func (s Strategy) Valid() bool {
	return s == StrategyClientWins || s == StrategyServerWins || s == StrategyTimestamp
}

// Status values for SyncMetadata.
type Status string

const (
	StatusPending Status = "pending"
	StatusSyncing Status = "syncing"
	StatusSynced  Status = "synced"
	StatusFailed  Status = "failed"
)

// QueueItem is a durable record of client intent. Enqueueing never touches
// entity storage; the payload is applied later by the pipeline.
type QueueItem struct {
	ID             string           `json:"id"`
	UserID         string           `json:"-"`
	EntityType     types.EntityType `json:"entityType"`
	EntityID       string           `json:"entityId"`
	Operation      Operation        `json:"operation"`
	Payload        json.RawMessage  `json:"payload,omitempty"`
	Timestamp      time.Time        `json:"timestamp"`
	SequenceNumber int64            `json:"sequenceNumber"`
	CreatedAt      time.Time        `json:"createdAt"`
}

// Metadata is the durable per-record sync audit trail. Created lazily on the
// first processing attempt and only ever updated afterwards; the queue item
// it tracks may come and go, the metadata row does not.
type Metadata struct {
	ID           string           `json:"id"`
	UserID       string           `json:"-"`
	EntityType   types.EntityType `json:"entityType"`
	EntityID     string           `json:"entityId"`
	Status       Status           `json:"status"`
	LastSyncedAt *time.Time       `json:"lastSyncedAt,omitempty"`
	ErrorMessage string           `json:"errorMessage,omitempty"`
	RetryCount   int              `json:"retryCount"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

// StatusCounts aggregates metadata rows per status for one user.
type StatusCounts struct {
	Pending int `json:"pending"`
	Syncing int `json:"syncing"`
	Synced  int `json:"synced"`
	Failed  int `json:"failed"`
}

// Total returns the number of tracked records.
func (c StatusCounts) Total() int {
	return c.Pending + c.Syncing + c.Synced + c.Failed
}

// SyncPercentage is synced/total rounded to whole percent, 100 for an empty
// tracker (nothing left to sync).
func (c StatusCounts) SyncPercentage() int {
	total := c.Total()
	if total == 0 {
		return 100
	}
	return int(float64(c.Synced)/float64(total)*100 + 0.5)
}

// CandidateOp is one operation submitted for duplicate checking before
// enqueue.
type CandidateOp struct {
	EntityType types.EntityType `json:"entityType"`
	EntityID   string           `json:"entityId"`
	Operation  Operation        `json:"operation"`
	Timestamp  time.Time        `json:"timestamp"`
}

// DuplicateCheck is the verdict for one candidate operation.
type DuplicateCheck struct {
	IsDuplicate             bool     `json:"isDuplicate"`
	ConflictingOperationIDs []string `json:"conflictingOperationIds,omitempty"`
}

// DequeueResult is one page of queued items for a user.
type DequeueResult struct {
	Items      []QueueItem
	HasMore    bool
	TotalCount int
}

// ItemStatus classifies the outcome of applying one batch item.
type ItemStatus string

const (
	ItemSuccess  ItemStatus = "success"
	ItemConflict ItemStatus = "conflict"
	ItemSkipped  ItemStatus = "skipped"
	ItemError    ItemStatus = "error"
)

// BatchItem is a single mutation submitted inline to the pipeline. ClientID
// is an opaque correlation token echoed back in the matching result.
type BatchItem struct {
	ClientID       string           `json:"clientId"`
	EntityType     types.EntityType `json:"entityType"`
	EntityID       string           `json:"entityId"`
	Operation      Operation        `json:"operation"`
	Payload        json.RawMessage  `json:"payload,omitempty"`
	Timestamp      time.Time        `json:"timestamp"`
	SequenceNumber int64            `json:"sequenceNumber"`
}

// ItemResult is the per-item outcome of a pipeline batch.
type ItemResult struct {
	ClientID     string          `json:"clientId"`
	Status       ItemStatus      `json:"status"`
	ServerID     string          `json:"serverId,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	ConflictData json.RawMessage `json:"conflictData,omitempty"`
	Message      string          `json:"message,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// ProcessResult summarizes one queue-draining pass.
type ProcessResult struct {
	ProcessedCount int  `json:"processedCount"`
	FailedCount    int  `json:"failedCount"`
	HasMore        bool `json:"hasMore"`
}
