package conversation

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tallyline/backend/internal/domain/ledger"
)

type commandKind int

const (
	cmdGreeting commandKind = iota + 1
	cmdHelp
	cmdStatus
	cmdBalances
	cmdPay
	cmdConfirm
	// cmdUsage carries a usage reply for a keyword with malformed arguments
	cmdUsage
)

type command struct {
	kind   commandKind
	filter string
	code   string
	amount decimal.Decimal
	method ledger.PaymentMethod
	usage  string
}

var greetings = map[string]struct{}{
	"hi":             {},
	"hello":          {},
	"hey":            {},
	"good morning":   {},
	"good afternoon": {},
	"good evening":   {},
}

// parseCommand recognises the reserved keywords. ok is false when the text
// must go to the classifier.
func parseCommand(text string) (command, bool) {
	normalized := strings.ToLower(strings.Join(strings.Fields(text), " "))
	normalized = strings.TrimRight(normalized, "!.")
	if normalized == "" {
		return command{}, false
	}
	if _, ok := greetings[normalized]; ok {
		return command{kind: cmdGreeting}, true
	}

	fields := strings.Fields(text)
	keyword := strings.ToLower(fields[0])
	args := fields[1:]

	switch keyword {
	case "help", "menu", "?":
		return command{kind: cmdHelp}, true
	case "status", "summary":
		return command{kind: cmdStatus}, true
	case "balances", "owing", "debts":
		return command{kind: cmdBalances, filter: strings.Join(args, " ")}, true
	case "paid", "pay":
		return parsePayCommand(args), true
	case "confirm":
		if len(args) != 1 || !ledger.IsShortCode(args[0]) {
			return command{kind: cmdUsage, usage: ReplyUsageConfirm}, true
		}
		return command{kind: cmdConfirm, code: ledger.NormalizeShortCode(args[0])}, true
	}
	return command{}, false
}

func parsePayCommand(args []string) command {
	usage := command{kind: cmdUsage, usage: ReplyUsagePay}
	if len(args) < 2 || len(args) > 3 || !ledger.IsShortCode(args[0]) {
		return usage
	}
	amount, ok := ParseAmount(args[1])
	if !ok {
		return usage
	}
	method := ledger.PaymentMethodCash
	if len(args) == 3 {
		if method, ok = ledger.ParsePaymentMethod(args[2]); !ok {
			return usage
		}
	}
	return command{
		kind:   cmdPay,
		code:   ledger.NormalizeShortCode(args[0]),
		amount: amount,
		method: method,
	}
}
