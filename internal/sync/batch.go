package sync

import (
	"context"
	"fmt"
	"time"
)

// ClockSkewWindow bounds how far into the future a client-claimed updatedAt
// may sit before the record is rejected outright. LWW trusts updatedAt at
// face value, so without this bound a skewed or forged timestamp could make
// a record unbeatable.
const ClockSkewWindow = 5 * time.Minute

// Syncable is the record shape the batch resolver operates on. Implemented
// by every entity type in internal/types.
type Syncable interface {
	RecordID() string
	RecordUpdatedAt() time.Time
	// ParentRef returns the referenced parent entity id, if the entity type
	// has one (activity logs and goals reference an activity).
	ParentRef() (string, bool)
}

// BatchHooks parameterize SyncBatch with entity-specific storage access.
// One generic resolver replaces per-entity copies of the same
// filter/upsert/classify sequence.
type BatchHooks[R Syncable] struct {
	// OwnedParents returns the subset of parentIDs that exist, are not
	// tombstones, and belong to userID. May be nil for entities without a
	// parent reference. Never called with an empty id list.
	OwnedParents func(ctx context.Context, userID string, parentIDs []string) (map[string]struct{}, error)

	// BulkUpsert conditionally writes the records in one atomic statement
	// set: insert when absent, overwrite only when the stored row is
	// strictly older. Returns the ids actually written.
	BulkUpsert func(ctx context.Context, userID string, records []R) (map[string]struct{}, error)

	// LookupByIDs fetches current server records by id, scoped to userID.
	LookupByIDs func(ctx context.Context, userID string, ids []string) (map[string]R, error)
}

// Outcome partitions a batch's input ids into the three disjoint buckets of
// a reconciliation call.
type Outcome[R Syncable] struct {
	SyncedIDs  []string `json:"syncedIds"`
	ServerWins []R      `json:"serverWins"`
	SkippedIDs []string `json:"skippedIds"`
}

// SyncBatch reconciles a batch of client-submitted records against the
// canonical store:
//
//  1. Items referencing a parent the caller does not own, and items with an
//     updatedAt beyond now+ClockSkewWindow, are skipped before any write.
//  2. Remaining items go through one conditional bulk upsert. A stored row
//     is only overwritten by a strictly newer client row; on an exact
//     timestamp tie the server row is kept.
//  3. Ids the upsert wrote are synced. Ids it refused are looked up: if the
//     caller can see the row it is reported as a server win with the full
//     server payload, otherwise it is skipped (typically another user's
//     row).
//
// Either the whole valid set is attempted or a storage error propagates;
// there is no partial-failure mode visible to the caller.
func SyncBatch[R Syncable](ctx context.Context, clock Clock, userID string, items []R, hooks BatchHooks[R]) (Outcome[R], error) {
	outcome := Outcome[R]{
		SyncedIDs:  []string{},
		ServerWins: []R{},
		SkippedIDs: []string{},
	}
	if len(items) == 0 {
		return outcome, nil
	}

	owned, err := ownedParentSet(ctx, userID, items, hooks)
	if err != nil {
		return outcome, err
	}

	maxAllowed := clock.Now().Add(ClockSkewWindow)
	valid := make([]R, 0, len(items))
	for _, item := range items {
		if parentID, ok := item.ParentRef(); ok {
			if _, ownedParent := owned[parentID]; !ownedParent {
				outcome.SkippedIDs = append(outcome.SkippedIDs, item.RecordID())
				continue
			}
		}
		// Inclusive bound: exactly now+window is accepted.
		if item.RecordUpdatedAt().After(maxAllowed) {
			outcome.SkippedIDs = append(outcome.SkippedIDs, item.RecordID())
			continue
		}
		valid = append(valid, item)
	}
	if len(valid) == 0 {
		return outcome, nil
	}

	written, err := hooks.BulkUpsert(ctx, userID, valid)
	if err != nil {
		return outcome, fmt.Errorf("bulk upsert: %w", err)
	}

	missed := make([]string, 0)
	for _, item := range valid {
		id := item.RecordID()
		if _, ok := written[id]; ok {
			outcome.SyncedIDs = append(outcome.SyncedIDs, id)
		} else {
			missed = append(missed, id)
		}
	}
	if len(missed) == 0 {
		return outcome, nil
	}

	current, err := hooks.LookupByIDs(ctx, userID, missed)
	if err != nil {
		return outcome, fmt.Errorf("lookup missed ids: %w", err)
	}
	for _, id := range missed {
		if record, ok := current[id]; ok {
			outcome.ServerWins = append(outcome.ServerWins, record)
		} else {
			// Invisible to this caller; most likely another user's row.
			outcome.SkippedIDs = append(outcome.SkippedIDs, id)
		}
	}
	return outcome, nil
}

// ownedParentSet gathers the distinct parent ids referenced by the batch and
// asks the ownership hook which of them belong to userID. Entities without a
// parent reference skip the query entirely.
func ownedParentSet[R Syncable](ctx context.Context, userID string, items []R, hooks BatchHooks[R]) (map[string]struct{}, error) {
	if hooks.OwnedParents == nil {
		return nil, nil
	}
	seen := make(map[string]struct{})
	parentIDs := make([]string, 0)
	for _, item := range items {
		parentID, ok := item.ParentRef()
		if !ok || parentID == "" {
			continue
		}
		if _, dup := seen[parentID]; dup {
			continue
		}
		seen[parentID] = struct{}{}
		parentIDs = append(parentIDs, parentID)
	}
	if len(parentIDs) == 0 {
		return nil, nil
	}
	owned, err := hooks.OwnedParents(ctx, userID, parentIDs)
	if err != nil {
		return nil, fmt.Errorf("validate parent ownership: %w", err)
	}
	return owned, nil
}
