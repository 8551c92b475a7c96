package conversation

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// IntentType is the fixed set of things a free-text message can mean
type IntentType string

const (
	IntentCreateTransaction IntentType = "create_transaction"
	IntentCheckBalance      IntentType = "check_balance"
	IntentUpdateRecord      IntentType = "update_record"
	IntentSupportRequest    IntentType = "support_request"
	IntentChitChat          IntentType = "chit_chat"
)

// IsValid returns true if the intent is one the router handles
func (t IntentType) IsValid() bool {
	switch t {
	case IntentCreateTransaction, IntentCheckBalance, IntentUpdateRecord, IntentSupportRequest, IntentChitChat:
		return true
	}
	return false
}

// UpdateAction says which field an update_record intent changes
type UpdateAction string

const (
	UpdateActionPayment UpdateAction = "payment"
	UpdateActionRename  UpdateAction = "rename"
	UpdateActionDueDate UpdateAction = "due_date"
)

// Slots are the values a classifier extracted. Every field is optional and untrusted.
type Slots struct {
	CounterpartyName string
	Total            *decimal.Decimal
	AmountPaid       *decimal.Decimal
	Item             string
	DueDate          *time.Time
	CannedReply      string
	NewName          string
	Action           UpdateAction
}

// Intent is a classifier verdict
type Intent struct {
	Type       IntentType
	Confidence float64
	Slots      Slots
}

// ClassifyRequest is the context bundle sent with a message
type ClassifyRequest struct {
	Text                 string
	MerchantName         string
	OpenBalanceSummaries []string
	// CurrentFlow and CurrentSession are empty when the address is idle
	CurrentFlow    Flow
	CurrentSession string
}

// Classifier turns free text into an Intent. Implementations are external
// and may be slow or wrong; callers bound them with a timeout.
type Classifier interface {
	Classify(ctx context.Context, req ClassifyRequest) (*Intent, error)
}
