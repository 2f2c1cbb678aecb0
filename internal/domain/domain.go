package domain

const (
	TaskOpen      = "open"
	TaskCompleted = "completed"
)

const (
	DisputeNone     = "none"
	DisputeRaised   = "raised"
	DisputeResolved = "resolved"
)

const (
	OwnerSystem  = "system"
	OwnerProgram = "program"
)

type Graph struct {
	Address                string `json:"address"`
	Authority              string `json:"authority"`
	MaxDependenciesPerTask uint16 `json:"max_dependencies_per_task"`
	TaskCount              uint64 `json:"task_count"`
	SingleClaimant         bool   `json:"single_claimant"`
	Salt                   uint8  `json:"salt"`
	CreatedSlot            uint64 `json:"created_slot"`
}

type Task struct {
	Address             string   `json:"address"`
	Graph               string   `json:"graph"`
	TaskID              uint64   `json:"task_id"`
	Creator             string   `json:"creator"`
	RewardLamports      uint64   `json:"reward_lamports"`
	Status              string   `json:"status" enum:"open,completed"`
	DisputeStatus       string   `json:"dispute_status" enum:"none,raised,resolved"`
	Dependencies        []uint64 `json:"dependencies"`
	ReceiptCount        uint64   `json:"receipt_count"`
	Worker              *string  `json:"worker,omitempty"`
	CompletedBy         *string  `json:"completed_by,omitempty"`
	ClaimedLamports     *uint64  `json:"claimed_lamports,omitempty"`
	CreatedSlot         uint64   `json:"created_slot"`
	DisputedBy          *string  `json:"disputed_by,omitempty"`
	DisputeRaisedSlot   *uint64  `json:"dispute_raised_slot,omitempty"`
	ResolvedBy          *string  `json:"resolved_by,omitempty"`
	DisputeResolvedSlot *uint64  `json:"dispute_resolved_slot,omitempty"`
	WorkerAwardLamports *uint64  `json:"worker_award_lamports,omitempty"`
}

// Settled reports whether the task's vault is logically closed.
func (t Task) Settled() bool {
	return t.Status == TaskCompleted || t.DisputeStatus == DisputeResolved
}

type Escrow struct {
	Address string `json:"address"`
	Task    string `json:"task"`
	Salt    uint8  `json:"salt"`
}

type Receipt struct {
	Address       string   `json:"address"`
	Task          string   `json:"task"`
	Agent         string   `json:"agent"`
	WorkHash      [32]byte `json:"-"`
	WorkHashHex   string   `json:"work_hash"`
	URI           string   `json:"uri"`
	SubmittedSlot uint64   `json:"submitted_slot"`
}

type Dispute struct {
	Address       string  `json:"address"`
	Task          string  `json:"task"`
	Creator       string  `json:"creator"`
	Worker        string  `json:"worker,omitempty"`
	RaisedBy      string  `json:"raised_by"`
	Reason        string  `json:"reason"`
	Status        string  `json:"status" enum:"raised,resolved"`
	RaisedSlot    uint64  `json:"raised_slot"`
	ResolvedSlot  *uint64 `json:"resolved_slot,omitempty"`
	Arbiter       *string `json:"arbiter,omitempty"`
	CreatorPct    *uint8  `json:"creator_pct,omitempty"`
	WorkerPct     *uint8  `json:"worker_pct,omitempty"`
	CreatorAmount *uint64 `json:"creator_amount,omitempty"`
	WorkerAmount  *uint64 `json:"worker_amount,omitempty"`
	Expired       bool    `json:"expired"`
}

type Account struct {
	Address  string `json:"address"`
	Owner    string `json:"owner"`
	Lamports uint64 `json:"lamports"`
}

type Event struct {
	ID         int64  `json:"id"`
	Slot       uint64 `json:"slot"`
	TxID       string `json:"tx_id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	Graph      string `json:"graph,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
