package models

import "strings"

// Categories is the complaint taxonomy the classifiers predict into.
var Categories = []string{
	"Banking Accounts & Services",
	"Cards",
	"Payments & Transfers",
	"Loans & Credit",
	"Digital Banking & Channels",
	"Customer Service & Experience",
	"ATM & Branch Services",
	"Security & Fraud",
	"Fees & Charges",
	"General Inquiry",
}

const DefaultCategory = "General Inquiry"

var Sentiments = []string{"negative", "neutral", "positive"}

// NormalizeCategory maps a free-form label onto the taxonomy, case-insensitively.
func NormalizeCategory(value string) (string, bool) {
	v := strings.TrimSpace(value)
	for _, c := range Categories {
		if strings.EqualFold(c, v) {
			return c, true
		}
	}
	return "", false
}

func NormalizeSentiment(value string) (string, bool) {
	v := strings.ToLower(strings.TrimSpace(value))
	for _, s := range Sentiments {
		if s == v {
			return s, true
		}
	}
	return "", false
}

const attachmentSeparator = ","

// SplitAttachments decodes the single-string attachment list.
func SplitAttachments(raw *string) []string {
	if raw == nil {
		return nil
	}
	var out []string
	for _, p := range strings.Split(*raw, attachmentSeparator) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// AppendAttachment adds url to the encoded list unless it is already present.
func AppendAttachment(raw *string, url string) *string {
	url = strings.TrimSpace(url)
	items := SplitAttachments(raw)
	for _, it := range items {
		if it == url {
			joined := strings.Join(items, attachmentSeparator)
			return &joined
		}
	}
	items = append(items, url)
	joined := strings.Join(items, attachmentSeparator)
	return &joined
}
