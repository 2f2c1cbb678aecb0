// Package auth holds the signer checks applied by ledger operations.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bountygraph/internal/domain"
	"bountygraph/internal/repo"
)

const (
	RoleAuthority = "authority"
	RoleCreator   = "creator"
	RoleAgent     = "agent"
	RoleWorker    = "worker"
)

// ForbiddenError indicates the signer lacks the role an action requires.
type ForbiddenError struct {
	Signer string
	Role   string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("signer %q is not the %s", e.Signer, e.Role)
}

var ErrEmptySigner = errors.New("signer required")

// ValidSigner rejects empty or whitespace-padded identities.
func ValidSigner(signer string) error {
	if signer == "" || strings.TrimSpace(signer) != signer {
		return ErrEmptySigner
	}
	return nil
}

// Service answers role questions against ledger state.
type Service struct {
	Repo repo.Repo
}

// RequireAuthority passes when signer owns the graph.
func (s Service) RequireAuthority(g domain.Graph, signer string) error {
	if signer != g.Authority {
		return ForbiddenError{Signer: signer, Role: RoleAuthority}
	}
	return nil
}

// DisputeRole reports the standing signer has on a task: RoleCreator, or
// RoleAgent when the signer holds a receipt for it.
func (s Service) DisputeRole(ctx context.Context, q repo.Querier, t domain.Task, signer string) (string, error) {
	if signer == t.Creator {
		return RoleCreator, nil
	}
	_, err := s.Repo.GetReceipt(ctx, q, t.Address, signer)
	if errors.Is(err, repo.ErrNotFound) {
		return "", ForbiddenError{Signer: signer, Role: "creator or a receipt holder"}
	}
	if err != nil {
		return "", err
	}
	return RoleAgent, nil
}

// RequireWorker passes when signer is the task's designated worker.
func (s Service) RequireWorker(t domain.Task, signer string) error {
	if t.Worker == nil || *t.Worker != signer {
		return ForbiddenError{Signer: signer, Role: RoleWorker}
	}
	return nil
}
