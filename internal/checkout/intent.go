package checkout

import (
	"strings"

	"github.com/google/uuid"
)

// Intent identifies the payment a gateway session is for. It is either
// Verified, backed by a server-created order intent, or Unverified, a local
// tracking id used when the intent backend was unavailable.
type Intent interface {
	Reference() string
	intent()
}

// Verified carries the server-authoritative intent id. Payments against it
// must pass signature verification before the order is confirmed.
type Verified struct {
	IntentID string
}

func (v Verified) Reference() string { return v.IntentID }
func (Verified) intent()             {}

// Unverified carries a locally generated id. Nothing can check a payment
// made against it.
type Unverified struct {
	LocalID string
}

func (u Unverified) Reference() string { return u.LocalID }
func (Unverified) intent()             {}

// NewLocalID returns a tracking id of the form MM-XXXXXXXX.
func NewLocalID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "MM-" + strings.ToUpper(id[:8])
}
