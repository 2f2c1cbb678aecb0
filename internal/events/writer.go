package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	GraphInitialized = "GraphInitialized"
	TaskCreated      = "TaskCreated"
	TaskFunded       = "TaskFunded"
	ReceiptSubmitted = "ReceiptSubmitted"
	RewardClaimed    = "RewardClaimed"
	DisputeRaised    = "DisputeRaised"
	DisputeResolved  = "DisputeResolved"
	AccountDeposited = "AccountDeposited"
)

const (
	KindGraph   = "graph"
	KindTask    = "task"
	KindReceipt = "receipt"
	KindDispute = "dispute"
	KindAccount = "account"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

// Stamp identifies the transaction an event was committed in.
type Stamp struct {
	Slot uint64
	TxID string
}

type EventPayload map[string]any

func (w Writer) Append(ctx context.Context, tx *sql.Tx, stamp Stamp, evtType, graph, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	if stamp.TxID == "" {
		return fmt.Errorf("event %s without transaction id", evtType)
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(slot,tx_id,ts,type,graph,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?,?,?)`,
		int64(stamp.Slot), stamp.TxID, ts, evtType, nullable(graph), entityKind, nullable(entityID), actorID, string(data))
	if err != nil {
		return fmt.Errorf("append event %s: %w", evtType, err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
