// Package derive computes the deterministic record addresses of the ledger.
//
// An address is sha256(seed_1 || ... || seed_n || salt || programID || marker),
// rendered as lowercase hex. Clients reproduce the same scheme to locate
// records without a side index.
package derive

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
)

// DefaultProgramID namespaces derivations when the config does not set one.
const DefaultProgramID = "9xQeWvG816bUx9EPfVb1zZQzQpimeJVFRCGDpa2BkLom"

// CanonicalSalt is the salt every record is derived with and stores.
const CanonicalSalt uint8 = 255

const marker = "BountyGraphDerivedAddress"

var (
	seedGraph   = []byte("graph")
	seedTask    = []byte("task")
	seedEscrow  = []byte("escrow")
	seedReceipt = []byte("receipt")
	seedDispute = []byte("dispute")
)

type Deriver struct {
	ProgramID string
}

func New(programID string) Deriver {
	if programID == "" {
		programID = DefaultProgramID
	}
	return Deriver{ProgramID: programID}
}

func (d Deriver) address(seeds ...[]byte) string {
	h := sha256.New()
	for _, s := range seeds {
		h.Write(s)
	}
	h.Write([]byte{CanonicalSalt})
	h.Write([]byte(d.programID()))
	h.Write([]byte(marker))
	return hex.EncodeToString(h.Sum(nil))
}

func (d Deriver) programID() string {
	if d.ProgramID == "" {
		return DefaultProgramID
	}
	return d.ProgramID
}

// Graph derives the graph address owned by authority.
func (d Deriver) Graph(authority string) string {
	return d.address(seedGraph, []byte(authority))
}

// Task derives a task address from its graph and the little-endian task id.
func (d Deriver) Task(graph string, taskID uint64) string {
	return d.address(seedTask, mustDecode(graph), TaskIDBytes(taskID))
}

func (d Deriver) Escrow(task string) string {
	return d.address(seedEscrow, mustDecode(task))
}

func (d Deriver) Receipt(task, agent string) string {
	return d.address(seedReceipt, mustDecode(task), []byte(agent))
}

func (d Deriver) Dispute(task, initiator string) string {
	return d.address(seedDispute, mustDecode(task), []byte(initiator))
}

// TaskIDBytes is the fixed-width 8-byte little-endian encoding of a task id.
func TaskIDBytes(taskID uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], taskID)
	return b[:]
}

// ValidAddress reports whether s is a 32-byte hex address.
func ValidAddress(s string) error {
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", s, err)
	}
	if len(b) != sha256.Size {
		return errors.New("address must be 32 bytes")
	}
	return nil
}

// Parent addresses are produced by this package, so a non-hex value is a
// caller bug; it is hashed as raw bytes rather than panicking.
func mustDecode(addr string) []byte {
	b, err := hex.DecodeString(addr)
	if err != nil {
		return []byte(addr)
	}
	return b
}
