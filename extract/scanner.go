package extract

import (
	"context"
	"regexp"
	"strings"
)

// TextScanner is a deterministic, offline extractor. It classifies the
// document from keywords and scans labeled lines and known patterns into
// the field set validation expects: vendor_name/invoice_id/due_date/
// total_amount for invoices, customer_name/email/topic/sentiment/urgency
// for support tickets, and one field per "label: value" line for anything
// else. Fields that belong to the detected type but were not found are set
// to nil.
type TextScanner struct{}

var _ Extractor = TextScanner{}

var (
	invoiceIDMarked = regexp.MustCompile(`(?i)invoice\s*(?:#|no\.?|num(?:ber)?|id)\s*[:#]?\s*([A-Za-z0-9][A-Za-z0-9-]*)`)
	invoiceIDToken  = regexp.MustCompile(`(?i)\b(INV-[A-Za-z0-9-]+)\b`)
	dollarAmount    = regexp.MustCompile(`\$\s*[0-9][0-9,]*(?:\.[0-9]{1,2})?`)
	emailAddress    = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	genericLabel    = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9 _-]*$`)
)

func (TextScanner) Extract(_ context.Context, documentContent string) (map[string]any, error) {
	lower := strings.ToLower(documentContent)

	switch {
	case strings.Contains(lower, "invoice"):
		return scanInvoice(documentContent), nil
	case strings.Contains(lower, "ticket") || strings.Contains(lower, "customer") || strings.Contains(lower, "support"):
		return scanTicket(documentContent, lower), nil
	default:
		return scanGeneric(documentContent), nil
	}
}

func scanInvoice(content string) map[string]any {
	fields := map[string]any{
		"vendor_name":  nil,
		"invoice_id":   nil,
		"due_date":     nil,
		"total_amount": nil,
	}

	if v := labeledValue(content, "vendor", "from", "company", "billed by"); v != "" {
		fields["vendor_name"] = v
	}

	if m := invoiceIDMarked.FindStringSubmatch(content); m != nil {
		fields["invoice_id"] = m[1]
	} else if m := invoiceIDToken.FindStringSubmatch(content); m != nil {
		fields["invoice_id"] = m[1]
	}

	if v := labeledValue(content, "due date", "payment due", "due"); v != "" {
		fields["due_date"] = v
	}

	// Prefer an explicitly labeled total, fall back to the first dollar
	// figure in the text. The raw string is kept; validation normalizes
	// currency formatting itself.
	if v := labeledValue(content, "total amount", "amount due", "total"); v != "" {
		fields["total_amount"] = v
	} else if m := dollarAmount.FindString(content); m != "" {
		fields["total_amount"] = m
	}

	return fields
}

func scanTicket(content, lower string) map[string]any {
	fields := map[string]any{
		"customer_name": nil,
		"email":         nil,
		"topic":         nil,
		"sentiment":     nil,
		"urgency":       nil,
	}

	if v := labeledValue(content, "customer", "name", "from"); v != "" {
		fields["customer_name"] = v
	}

	if m := emailAddress.FindString(content); m != "" {
		fields["email"] = m
	}

	if v := labeledValue(content, "topic", "subject", "re"); v != "" {
		fields["topic"] = v
	}

	fields["sentiment"] = sentimentOf(lower)
	fields["urgency"] = urgencyOf(lower)

	return fields
}

// scanGeneric collects one field per "label: value" line, first occurrence
// of a label winning. Lines whose label is not a plain word sequence are
// ignored. An empty value is kept as nil so completeness checks see it.
func scanGeneric(content string) map[string]any {
	fields := map[string]any{}

	for _, line := range strings.Split(content, "\n") {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}

		name = strings.TrimSpace(name)
		if len(name) > 40 || !genericLabel.MatchString(name) {
			continue
		}

		key := strings.ReplaceAll(strings.ToLower(name), " ", "_")
		if _, seen := fields[key]; seen {
			continue
		}

		if v := strings.TrimSpace(value); v != "" {
			fields[key] = v
		} else {
			fields[key] = nil
		}
	}

	return fields
}

// labeledValue returns the value of the first line starting with any of the
// given labels followed by a colon. Lines are scanned in document order,
// labels in the given order per line.
func labeledValue(content string, labels ...string) string {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		lowered := strings.ToLower(trimmed)

		for _, label := range labels {
			if !strings.HasPrefix(lowered, label) {
				continue
			}

			rest := trimmed[len(label):]
			if !strings.HasPrefix(strings.TrimLeft(rest, " \t"), ":") {
				continue
			}

			rest = strings.TrimLeft(rest, " \t")
			return strings.TrimSpace(strings.TrimPrefix(rest, ":"))
		}
	}

	return ""
}

func sentimentOf(lower string) string {
	switch {
	case containsAny(lower, "irate", "furious", "outraged", "unacceptable"):
		return "Irate"
	case containsAny(lower, "frustrated", "annoyed", "disappointed"):
		return "Frustrated"
	case containsAny(lower, "thank", "great", "happy"):
		return "Happy"
	default:
		return "Neutral"
	}
}

func urgencyOf(lower string) string {
	switch {
	case containsAny(lower, "critical", "immediately", "emergency", "asap"):
		return "Critical"
	case containsAny(lower, "urgent", "high priority"):
		return "High"
	case containsAny(lower, "no rush", "whenever"):
		return "Low"
	default:
		return "Medium"
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}

	return false
}
