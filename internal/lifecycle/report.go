package lifecycle

import "github.com/zawnaing-2024/vmaster/internal/core"

type Outcome string

const (
	OutcomeDeprovisioned Outcome = "deprovisioned"
	OutcomeSuspended     Outcome = "suspended"
	OutcomeReactivated   Outcome = "reactivated"
	OutcomeEscalated     Outcome = "escalated"
	OutcomeFailed        Outcome = "failed"
	OutcomeUnchanged     Outcome = "unchanged"
)

// AccountResult is what a cascade did to one account.
type AccountResult struct {
	AccountID      string           `json:"account_id"`
	EndUserID      string           `json:"end_user_id"`
	BackendID      string           `json:"backend_id"`
	Kind           core.BackendKind `json:"kind"`
	Outcome        Outcome          `json:"outcome"`
	Error          string           `json:"error,omitempty"`
	NotificationID string           `json:"notification_id,omitempty"`
}

// Report summarises a cascade or deletion. Per-account failures are listed
// here and raised as notifications; they do not fail the whole operation.
type Report struct {
	Scope           string          `json:"scope"`
	ID              string          `json:"id"`
	From            core.Status     `json:"from,omitempty"`
	To              core.Status     `json:"to,omitempty"`
	EndUsersUpdated int             `json:"end_users_updated"`
	Accounts        []AccountResult `json:"accounts"`
}

func newReport(scope, id string, from, to core.Status) *Report {
	return &Report{Scope: scope, ID: id, From: from, To: to, Accounts: []AccountResult{}}
}

func (r *Report) add(res AccountResult) {
	r.Accounts = append(r.Accounts, res)
}

// Count returns how many accounts ended with outcome.
func (r *Report) Count(outcome Outcome) int {
	n := 0
	for _, a := range r.Accounts {
		if a.Outcome == outcome {
			n++
		}
	}
	return n
}
