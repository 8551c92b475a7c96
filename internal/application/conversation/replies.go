package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tallyline/backend/internal/domain/conversation"
	"github.com/tallyline/backend/internal/domain/ledger"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// CurrencySymbol prefixes every amount in replies
const CurrencySymbol = "₦"

const maxCannedReplyLength = 500

// Fixed replies
const (
	ReplyOnboarding = "Welcome to Tallyline! This number is not linked to a business yet. " +
		"Sign up on the web dashboard with this phone number to start recording sales here."
	ReplyTextOnly = "I can only read text messages for now. Please type what you sold or received."
	ReplyApology  = "Sorry, something went wrong on our side. Please try again in a moment."
	ReplyFallback = "Sorry, I didn't quite get that. You can say something like " +
		"\"Sold 2 bags of rice to John for 50k, he paid 20k\", or type *help*."
	ReplySupport = "Thanks, we've passed your message to our support team. Someone will get back to you here."
	ReplyHelp    = "Here's what I can do:\n" +
		"• Record a sale: \"Sold shoes to Ada for 15k, she paid 5k\"\n" +
		"• Record a payment: \"Ada paid 5k\" or *pay CODE AMOUNT*\n" +
		"• *balances* [name]: who still owes you\n" +
		"• *status*: your totals\n" +
		"• *confirm CODE*: mark an invoice confirmed"
	ReplyUsagePay     = "To record a payment by code, send: *pay CODE AMOUNT [cash|transfer|card|other]*, e.g. pay K7P2QX 5000"
	ReplyUsageConfirm = "To confirm an invoice, send: *confirm CODE*, e.g. confirm K7P2QX"
	ReplyAskTotal     = "How much was the total for this sale?"
	ReplyAskName      = "Who was this sale for? Please send the customer's name."
	ReplyWhichInvoice = "Which customer is this for? Try something like \"John paid 5k\"."
	ReplyWhatUpdate   = "What would you like to change? You can record a payment, rename a customer or set a due date."
	ReplyAskNewName   = "What should the new customer name be?"
	ReplyAskDueDate   = "When is the payment due? Please include a date."
	ReplyNoOpen       = "No open balances. Everyone has paid up!"
	ReplyInvoiceGone  = "I couldn't find that invoice any more."
)

var (
	printer = message.NewPrinter(language.English)
	titler  = cases.Title(language.English)
)

// FormatAmount renders 50000 as ₦50,000 and 1500.5 as ₦1,500.5
func FormatAmount(d decimal.Decimal) string {
	if d.IsInteger() {
		return CurrencySymbol + printer.Sprintf("%d", d.IntPart())
	}
	return CurrencySymbol + printer.Sprint(number.Decimal(d.InexactFloat64(), number.MaxFractionDigits(2)))
}

func formatDate(t time.Time) string {
	return t.Format("2 Jan 2006")
}

// displayName title-cases a name that was typed all lower or all upper case
func displayName(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if name == strings.ToLower(name) || name == strings.ToUpper(name) {
		return titler.String(name)
	}
	return name
}

// balanceLine renders "name: balance (code)", the shape used in listings and classifier context
func balanceLine(inv *ledger.Invoice) string {
	return fmt.Sprintf("%s: %s (%s)", inv.CustomerName, FormatAmount(inv.Balance()), inv.ShortCode)
}

func greetingReply(m *conversation.Merchant) string {
	return fmt.Sprintf("Hi %s! Tell me about a sale or a payment, or type *help* to see what I can do.", m.DisplayName())
}

func summaryReply(s *ledger.MerchantSummary) string {
	if s.OpenCount == 0 && s.PaidCount == 0 {
		return "You haven't recorded any sales yet. Tell me about one to get started."
	}
	return fmt.Sprintf("Open invoices: %d\nOutstanding: %s\nFully paid: %d",
		s.OpenCount, FormatAmount(s.TotalOutstanding), s.PaidCount)
}

func openListReply(invoices []ledger.Invoice, filter string) string {
	if len(invoices) == 0 {
		if filter != "" {
			return fmt.Sprintf("No open balance found for \"%s\".", filter)
		}
		return ReplyNoOpen
	}
	var b strings.Builder
	b.WriteString("Open balances:")
	for i := range invoices {
		b.WriteString("\n")
		b.WriteString(balanceLine(&invoices[i]))
	}
	return b.String()
}

func notFoundCodeReply(code string) string {
	return fmt.Sprintf("I couldn't find an invoice with code %s.", ledger.NormalizeShortCode(code))
}

func notFoundNameReply(name string) string {
	return fmt.Sprintf("I couldn't find an open balance for \"%s\".", name)
}

func createdReply(inv *ledger.Invoice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Recorded: %s owes %s", inv.CustomerName, FormatAmount(inv.Total))
	if inv.Description != "" {
		fmt.Fprintf(&b, " for %s", inv.Description)
	}
	b.WriteString(".")
	if paid := inv.AmountPaid(); paid.IsPositive() {
		fmt.Fprintf(&b, " Paid %s, balance %s.", FormatAmount(paid), FormatAmount(inv.Balance()))
	}
	if inv.DueDate != nil {
		fmt.Fprintf(&b, " Due %s.", formatDate(*inv.DueDate))
	}
	fmt.Fprintf(&b, "\nCode: %s", inv.ShortCode)
	return b.String()
}

func paymentReply(inv *ledger.Invoice, amount decimal.Decimal) string {
	if inv.Status() == ledger.InvoiceStatusPaid {
		return fmt.Sprintf("Got it: %s paid %s. %s (%s) is now fully paid.",
			inv.CustomerName, FormatAmount(amount), inv.CustomerName, inv.ShortCode)
	}
	return fmt.Sprintf("Got it: %s paid %s. Balance is now %s (%s).",
		inv.CustomerName, FormatAmount(amount), FormatAmount(inv.Balance()), inv.ShortCode)
}

func alreadyPaidReply(inv *ledger.Invoice) string {
	return fmt.Sprintf("%s (%s) is already fully paid.", inv.CustomerName, inv.ShortCode)
}

func confirmedReply(inv *ledger.Invoice, changed bool) string {
	if !changed {
		return fmt.Sprintf("Invoice %s was already confirmed.", inv.ShortCode)
	}
	return fmt.Sprintf("Invoice %s for %s is confirmed.", inv.ShortCode, inv.CustomerName)
}

func renamedReply(inv *ledger.Invoice, changed bool) string {
	if !changed {
		return fmt.Sprintf("Invoice %s is already under %s.", inv.ShortCode, inv.CustomerName)
	}
	return fmt.Sprintf("Done. Invoice %s is now under %s.", inv.ShortCode, inv.CustomerName)
}

func dueDateReply(inv *ledger.Invoice) string {
	return fmt.Sprintf("Done. %s (%s) is due %s.", inv.CustomerName, inv.ShortCode, formatDate(*inv.DueDate))
}

func balanceReply(inv *ledger.Invoice) string {
	if !inv.IsOpen() {
		return alreadyPaidReply(inv)
	}
	return fmt.Sprintf("%s owes %s of %s (%s).",
		inv.CustomerName, FormatAmount(inv.Balance()), FormatAmount(inv.Total), inv.ShortCode)
}

func menuReply(prompt string, options []conversation.ChoiceOption) string {
	var b strings.Builder
	b.WriteString(prompt)
	for i, o := range options {
		fmt.Fprintf(&b, "\n%d. %s: %s (%s)", i+1, o.CustomerName, FormatAmount(o.Balance), o.ShortCode)
	}
	b.WriteString("\nReply with the number.")
	return b.String()
}

func invalidChoiceReply(n int) string {
	return fmt.Sprintf("Please reply with a number between 1 and %d.", n)
}

func cannedReply(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ReplyFallback
	}
	if r := []rune(s); len(r) > maxCannedReplyLength {
		s = string(r[:maxCannedReplyLength])
	}
	return s
}
