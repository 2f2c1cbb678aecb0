package server

import (
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"bountygraph/internal/dag"
	"bountygraph/internal/domain"
)

// Request payloads

type InitializeGraphRequest struct {
	MaxDependenciesPerTask *uint16 `json:"max_dependencies_per_task,omitempty"`
	SingleClaimant         *bool   `json:"single_claimant,omitempty"`
}

type CreateTaskRequest struct {
	TaskID         uint64   `json:"task_id"`
	RewardLamports uint64   `json:"reward_lamports" minimum:"1"`
	Dependencies   []uint64 `json:"dependencies,omitempty"`
}

type AmountRequest struct {
	Amount uint64 `json:"amount" minimum:"1"`
}

type SubmitReceiptRequest struct {
	WorkHash string `json:"work_hash" minLength:"64" maxLength:"64" doc:"hex-encoded 32-byte hash of the work product"`
	URI      string `json:"uri" minLength:"1"`
}

// decodeWorkHash parses a 64 character hex string into a 32-byte hash.
func decodeWorkHash(s string) ([32]byte, bool) {
	var h [32]byte
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil || len(raw) != len(h) {
		return h, false
	}
	copy(h[:], raw)
	return h, true
}

type DisputeRequest struct {
	Reason string `json:"reason" minLength:"1"`
}

type ResolveDisputeRequest struct {
	Creator    string `json:"creator" minLength:"1"`
	Worker     string `json:"worker"`
	CreatorPct uint8  `json:"creator_pct" doc:"creator share in percent; the two shares must sum to 100"`
	WorkerPct  uint8  `json:"worker_pct"`
}

type DagCheckRequest struct {
	Tasks    []dag.PlannedTask `json:"tasks"`
	Existing []string          `json:"existing,omitempty"`
}

type DagSortRequest struct {
	TaskIDs   []string            `json:"task_ids"`
	Adjacency map[string][]string `json:"adjacency"`
}

// Request inputs. Split rules are left to the engine so a bad split
// carries the INVALID_SPLIT code.

type submitReceiptInput struct {
	Graph  string               `path:"graph"`
	TaskID uint64               `path:"task_id"`
	Body   SubmitReceiptRequest `json:"body"`
}

func (in *submitReceiptInput) Resolve(huma.Context) []error {
	if _, ok := decodeWorkHash(in.Body.WorkHash); !ok {
		return []error{&huma.ErrorDetail{
			Location: "body.work_hash",
			Message:  "must be 32 bytes of hex",
			Value:    in.Body.WorkHash,
		}}
	}
	return nil
}

type resolveDisputeInput struct {
	Graph     string                `path:"graph"`
	TaskID    uint64                `path:"task_id"`
	Initiator string                `path:"initiator"`
	Body      ResolveDisputeRequest `json:"body"`
}

// Response payloads

type EventResponse struct {
	ID         int64          `json:"id"`
	Slot       uint64         `json:"slot"`
	TxID       string         `json:"tx_id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	Graph      string         `json:"graph,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type paginatedTasks struct {
	Items      []domain.Task `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

type DagSortResponse struct {
	Order   []string   `json:"order"`
	Batches [][]string `json:"batches"`
}

type DagCheckResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		Slot:       e.Slot,
		TxID:       e.TxID,
		TS:         e.TS,
		Type:       e.Type,
		Graph:      e.Graph,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
