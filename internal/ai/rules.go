package ai

import (
	"context"
	"strings"
	"unicode"

	"github.com/bankline/complaints/internal/models"
)

var confirmPhrases = []string{
	"yes", "yep", "yeah", "correct", "proceed", "submit", "confirm", "confirmed",
	"that's right", "thats right", "looks good", "go ahead", "please register",
}

// negationCues veto a confirmation even when a confirm word is present,
// as in "no, that's not correct".
var negationCues = []string{
	"no", "not", "nope", "don't", "dont", "do not", "wait", "wrong", "incorrect",
	"stop", "cancel", "isn't", "isnt", "never",
}

var resolutionHints = []string{
	"refund", "reverse", "reversal", "replace", "replacement", "compensat",
	"waive", "unblock", "reimburse", "i want", "i would like", "i'd like", "please fix",
}

var categoryKeywords = []struct {
	category string
	words    []string
}{
	{"Security & Fraud", []string{"fraud", "unauthori", "stolen", "hacked", "phishing", "scam", "suspicious", "identity"}},
	{"Cards", []string{"card", "debit", "credit card", "pin", "contactless", "declined"}},
	{"Payments & Transfers", []string{"transfer", "payment", "wire", "remittance", "beneficiary", "upi", "sent money"}},
	{"Loans & Credit", []string{"loan", "mortgage", "emi", "interest rate", "credit line", "repayment"}},
	{"Digital Banking & Channels", []string{"app", "online banking", "website", "login", "otp", "mobile banking"}},
	{"ATM & Branch Services", []string{"atm", "branch", "queue", "cash machine", "teller"}},
	{"Fees & Charges", []string{"fee", "charge", "penalty", "deducted", "commission"}},
	{"Banking Accounts & Services", []string{"account", "statement", "balance", "cheque", "kyc", "closure"}},
	{"Customer Service & Experience", []string{"staff", "rude", "call center", "no response", "service quality", "waited"}},
}

var negativeWords = []string{
	"angry", "frustrat", "terrible", "unacceptable", "worst", "disappoint", "upset",
	"ridiculous", "awful", "horrible", "furious", "never again", "useless", "annoy",
}

var positiveWords = []string{"thank", "appreciate", "great", "happy", "pleased", "helpful", "good service"}

// RuleClassifier is a deterministic Classifier driven by keyword tables. It
// needs no network and gives the same answer for the same transcript.
type RuleClassifier struct {
	MinDescriptionWords int
}

func (r RuleClassifier) minWords() int {
	if r.MinDescriptionWords > 0 {
		return r.MinDescriptionWords
	}
	return 5
}

func (r RuleClassifier) CheckReadiness(ctx context.Context, transcript []ChatMessage) (Readiness, error) {
	if err := ctx.Err(); err != nil {
		return Readiness{}, err
	}

	var (
		res            Readiness
		description    string
		resolution     string
		details        []string
		assistantSpoke bool
	)
	last := len(transcript) - 1
	for i, m := range transcript {
		switch m.Role {
		case "assistant":
			assistantSpoke = true
		case "user":
			text := strings.TrimSpace(m.Content)
			if i == last && isConfirmation(text) {
				continue
			}
			if description == "" && wordCount(text) >= r.minWords() {
				description = text
				continue
			}
			if resolution == "" && containsAny(normalize(text), resolutionHints) {
				resolution = text
				continue
			}
			if description != "" && wordCount(text) >= 3 {
				details = append(details, text)
			}
		}
	}

	if description != "" {
		res.Fields.Description = &description
	}
	if resolution != "" {
		res.Fields.DesiredResolution = &resolution
	}
	if len(details) > 0 {
		joined := strings.Join(details, "\n")
		res.Fields.AdditionalDetails = &joined
	}

	confirmed := last >= 0 && transcript[last].Role == "user" && isConfirmation(transcript[last].Content)
	res.IsReady = description != "" && assistantSpoke && confirmed
	return res, nil
}

func (r RuleClassifier) Categorize(ctx context.Context, transcript []ChatMessage) (Categorization, error) {
	if err := ctx.Err(); err != nil {
		return Categorization{}, err
	}
	var customer strings.Builder
	for _, m := range transcript {
		if m.Role == "user" {
			customer.WriteString(" ")
			customer.WriteString(normalize(m.Content))
		}
	}
	text := strings.TrimSpace(customer.String())

	out := Categorization{
		Category:   models.DefaultCategory,
		Confidence: 0.3,
		Reasoning:  "no category keywords matched",
	}
	best := 0
	for _, ck := range categoryKeywords {
		hits := countStems(text, ck.words)
		if hits > best {
			best = hits
			out.Category = ck.category
			out.Reasoning = "matched " + ck.category + " keywords"
		}
	}
	if best > 0 {
		out.Confidence = min(0.5+0.15*float64(best), 0.95)
	}

	score := countStems(text, positiveWords) - countStems(text, negativeWords)
	switch {
	case score < 0:
		out.Sentiment = "negative"
	case score > 0:
		out.Sentiment = "positive"
	default:
		out.Sentiment = "neutral"
	}
	out.SentimentConfidence = min(0.5+0.1*float64(abs(score)), 0.9)
	return out, nil
}

func isConfirmation(text string) bool {
	t := normalize(text)
	if wordCount(t) > 12 || containsPhrase(t, negationCues) {
		return false
	}
	return containsPhrase(t, confirmPhrases)
}

// normalize lowercases and collapses punctuation into single spaces.
func normalize(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// containsAny matches phrases as word prefixes, so "refund" also hits
// "refunded".
func containsAny(normalized string, phrases []string) bool {
	padded := " " + normalized + " "
	for _, p := range phrases {
		if strings.Contains(padded, " "+p) {
			return true
		}
	}
	return false
}

func countStems(normalized string, stems []string) int {
	n := 0
	for _, s := range stems {
		if containsAny(normalized, []string{s}) {
			n++
		}
	}
	return n
}

func containsPhrase(normalized string, phrases []string) bool {
	padded := " " + normalized + " "
	for _, p := range phrases {
		if strings.Contains(padded, " "+p+" ") {
			return true
		}
	}
	return false
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
