// Package validate decides whether an extracted document can be finalized
// or needs a human reviewer. Routing is a pure function over the extracted
// fields so that re-validation after a resume is reproducible.
package validate

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// Decision is the routing outcome for a validated document.
type Decision string

const (
	// DecisionFinalize indicates the document passed every rule.
	DecisionFinalize Decision = "finalize"

	// DecisionAwaitReview indicates at least one rule failed and the run
	// has to wait for a human.
	DecisionAwaitReview Decision = "await_review"
)

// Result combines the routing decision with the ordered list of reasons
// that produced it. Reasons is empty iff Decision is DecisionFinalize.
type Result struct {
	Decision Decision
	Reasons  []string
}

// Reason strings are part of the persisted state and the review queue, so
// they are fixed here rather than assembled ad hoc.
const (
	ReasonNoData          = "Missing or invalid extracted data"
	ReasonMissingVendor   = "Missing vendor name"
	ReasonMissingInvoice  = "Missing invoice ID"
	ReasonAmountThreshold = "Amount exceeds $1000 threshold"
	ReasonInvalidAmount   = "Invalid amount format"
	ReasonIrateSentiment  = "Customer sentiment is irate"
	ReasonSecurityTopic   = "Security-related issue"
)

// amountThreshold is the largest invoice total that can be auto-approved.
const amountThreshold = 1000

// Route evaluates the business rules against extracted document data and
// returns the routing decision together with every failed rule's reason.
//
// Exactly one rule family applies per document: a document carrying a
// total_amount is treated as an invoice, otherwise one carrying a sentiment
// is treated as a support ticket, and anything else falls back to a generic
// completeness scan. Rule order within a family is fixed so the resulting
// reason text is deterministic for identical input.
//
// Route never panics and performs no I/O.
func Route(data map[string]any) Result {
	if len(data) == 0 || hasKey(data, "error") {
		return Result{Decision: DecisionAwaitReview, Reasons: []string{ReasonNoData}}
	}

	var reasons []string

	switch {
	case hasKey(data, "total_amount"):
		reasons = invoiceReasons(data)
	case hasKey(data, "sentiment"):
		reasons = ticketReasons(data)
	default:
		reasons = genericReasons(data)
	}

	if len(reasons) > 0 {
		return Result{Decision: DecisionAwaitReview, Reasons: reasons}
	}

	return Result{Decision: DecisionFinalize}
}

// Priority maps a set of review reasons to a queue priority. Threshold and
// security findings are escalated, everything else queues as normal work.
func Priority(reasons []string) string {
	for _, r := range reasons {
		if r == ReasonAmountThreshold || r == ReasonSecurityTopic {
			return "high"
		}
	}

	return "normal"
}

func invoiceReasons(data map[string]any) []string {
	var reasons []string

	if isEmpty(data["vendor_name"]) {
		reasons = append(reasons, ReasonMissingVendor)
	}

	if isEmpty(data["invoice_id"]) {
		reasons = append(reasons, ReasonMissingInvoice)
	}

	// A blank or zero amount carries no threshold risk, only a present one
	// is parsed and compared.
	if amount := data["total_amount"]; !isBlankAmount(amount) {
		value, ok := parseAmount(amount)
		switch {
		case !ok:
			reasons = append(reasons, ReasonInvalidAmount)
		case value > amountThreshold:
			reasons = append(reasons, ReasonAmountThreshold)
		}
	}

	return reasons
}

func ticketReasons(data map[string]any) []string {
	var reasons []string

	sentiment, _ := data["sentiment"].(string)
	if strings.ToLower(sentiment) == "irate" {
		reasons = append(reasons, ReasonIrateSentiment)
	}

	topic, _ := data["topic"].(string)
	topic = strings.ToLower(topic)
	if strings.Contains(topic, "security") || strings.Contains(topic, "vulnerability") {
		reasons = append(reasons, ReasonSecurityTopic)
	}

	return reasons
}

func genericReasons(data map[string]any) []string {
	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var reasons []string
	for _, key := range keys {
		if isEmpty(data[key]) {
			reasons = append(reasons, "Missing or empty field: "+key)
		}
	}

	return reasons
}

func hasKey(data map[string]any, key string) bool {
	_, ok := data[key]
	return ok
}

// isEmpty reports whether a field value counts as missing: nil or an empty
// string. Zero numbers and false are present values.
func isEmpty(v any) bool {
	if v == nil {
		return true
	}

	s, ok := v.(string)
	return ok && s == ""
}

// isBlankAmount reports whether an amount value should skip the threshold
// check altogether.
func isBlankAmount(v any) bool {
	switch a := v.(type) {
	case nil:
		return true
	case string:
		return a == ""
	case float64:
		return a == 0
	case float32:
		return a == 0
	case int:
		return a == 0
	case int64:
		return a == 0
	case json.Number:
		return a.String() == "" || a.String() == "0"
	default:
		return false
	}
}

// parseAmount normalizes the total_amount field to a float. String values
// may carry currency formatting ("$1,234.50"); that is stripped before
// parsing.
func parseAmount(v any) (float64, bool) {
	switch a := v.(type) {
	case float64:
		return a, true
	case float32:
		return float64(a), true
	case int:
		return float64(a), true
	case int64:
		return float64(a), true
	case json.Number:
		f, err := a.Float64()
		return f, err == nil
	case string:
		replacer := strings.NewReplacer("$", "", ",", "", " ", "")
		f, err := strconv.ParseFloat(replacer.Replace(a), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
