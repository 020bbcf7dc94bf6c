package key2pay

import (
	"regexp"

	"Key2PayBridge/internal/models"
)

// Outcome is the canonical classification of a raw gateway result. It is
// derived fresh for every notification and never persisted.
type Outcome string

const (
	OutcomeApproved           Outcome = "approved"
	OutcomeInsufficientFunds  Outcome = "insufficient_funds"
	OutcomeDoNotHonour        Outcome = "do_not_honour"
	OutcomeRestrictedCard     Outcome = "restricted_card"
	OutcomeInvalidTransaction Outcome = "invalid_transaction"
	OutcomeTimeout            Outcome = "timeout"
	OutcomeUnknownApproved    Outcome = "unknown_approved"
	OutcomeFailedGeneric      Outcome = "failed"
)

// Approved reports whether the outcome marks the order paid. Undocumented
// codes are treated as successful per the processor contract.
func (o Outcome) Approved() bool {
	return o == OutcomeApproved || o == OutcomeUnknownApproved
}

func (o Outcome) Description() string {
	switch o {
	case OutcomeApproved:
		return "Approved"
	case OutcomeInsufficientFunds:
		return "Insufficient funds"
	case OutcomeDoNotHonour:
		return "Do not honour"
	case OutcomeRestrictedCard:
		return "Restricted card"
	case OutcomeInvalidTransaction:
		return "Invalid transaction"
	case OutcomeTimeout:
		return "Processor timeout"
	case OutcomeUnknownApproved:
		return "Approved (undocumented code)"
	}
	return "Payment failed"
}

// Response codes may carry a 3-letter currency prefix, e.g. EGP9998.
var currencyPrefix = regexp.MustCompile(`^[A-Z]{3}([0-9]+)$`)

// StripCurrencyPrefix removes a leading 3-uppercase-letter currency code
// from a numeric response code. Values without the prefix pass through
// unchanged.
func StripCurrencyPrefix(code string) string {
	if m := currencyPrefix.FindStringSubmatch(code); m != nil {
		return m[1]
	}
	return code
}

// Classify maps a raw result code or legacy word status to its canonical
// outcome. Unmatched non-empty values classify as approved, matching the
// processor's documented default for undocumented codes.
func Classify(raw string) Outcome {
	if raw == "" {
		return OutcomeFailedGeneric
	}
	switch StripCurrencyPrefix(raw) {
	case "0":
		return OutcomeApproved
	case "51":
		return OutcomeInsufficientFunds
	case "05":
		return OutcomeDoNotHonour
	case "62":
		return OutcomeRestrictedCard
	case "12":
		return OutcomeInvalidTransaction
	case "9998":
		return OutcomeTimeout
	case "CAPTURED":
		return OutcomeApproved
	}
	return OutcomeUnknownApproved
}

// ClassifyNotification derives the outcome of a notification together with
// the code value the decision was based on. The numeric responsecode wins;
// the legacy result word is consulted only when no code is present, and
// non-CAPTURED words fail outright since the legacy vocabulary has no
// default-approve contract.
func ClassifyNotification(n models.Notification) (Outcome, string) {
	if n.ResponseCode != "" {
		return Classify(n.ResponseCode), n.ResponseCode
	}
	if n.Result != "" {
		if n.Result == "CAPTURED" {
			return OutcomeApproved, n.Result
		}
		return OutcomeFailedGeneric, n.Result
	}
	return OutcomeFailedGeneric, ""
}
