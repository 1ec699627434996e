// Package impulse turns free-text spending intents into the seven
// I.M.P.U.L.S.E. signal dimensions and scores them.
package impulse

import "strings"

// RecencySource records where the days-since-last-purchase value came from.
type RecencySource string

const (
	RecencyDefault  RecencySource = "default"
	RecencyExplicit RecencySource = "explicit"
	RecencyPhrase   RecencySource = "phrase"
	RecencyHistory  RecencySource = "history"
)

const (
	// PlaceholderItem is used when no item keyword is found.
	PlaceholderItem = "item"
	// NotRecentDays is the sentinel for "no recent purchase known".
	NotRecentDays = 10
	// RecentPhraseDays is assumed when the text mentions a recent purchase.
	RecentPhraseDays = 1
)

// Input is the raw material for extraction. Structured fields, when set,
// take precedence over anything derived from Text.
type Input struct {
	Text             string
	Item             *string
	Mood             *string
	PatternMatch     *bool
	Urgency          *bool
	UrgencyText      *string
	LastPurchaseDays *int
	Situation        *string
	Explanation      *string
}

// HasSignals reports whether in carries any text or structured field.
func (in Input) HasSignals() bool {
	return strings.TrimSpace(in.Text) != "" ||
		in.Item != nil || in.Mood != nil || in.PatternMatch != nil ||
		in.Urgency != nil || in.UrgencyText != nil || in.LastPurchaseDays != nil ||
		in.Situation != nil || in.Explanation != nil
}

// SignalVector holds the normalized value of each dimension.
//
// LastPurchaseSource decides how LastPurchaseDays is read. With explicit or
// phrase the value is used as is. Left empty, a positive LastPurchaseDays is
// taken as explicit, and zero means unknown. Unknown and default values fall
// back to purchase history, then to NotRecentDays.
type SignalVector struct {
	Item               string        `json:"item_name"`
	Mood               string        `json:"mood"`
	PatternMatch       bool          `json:"pattern_match"`
	Urgency            bool          `json:"urgency"`
	LastPurchaseDays   int           `json:"last_purchase_days_ago"`
	LastPurchaseSource RecencySource `json:"last_purchase_source"`
	Situation          string        `json:"situation"`
	Explanation        string        `json:"explanation"`
}

// Extract derives a SignalVector from in. It never fails; absent signals get
// neutral defaults.
func Extract(in Input) SignalVector {
	text := normalize(in.Text)
	v := SignalVector{
		Item:             PlaceholderItem,
		LastPurchaseDays: NotRecentDays,
	}

	if in.Item != nil && normalize(*in.Item) != "" {
		v.Item = normalize(*in.Item)
	} else if t, ok := firstTerm(text, lex.Items); ok {
		v.Item = t
	} else if t, ok := firstTerm(text, lex.Essentials); ok {
		v.Item = t
	}

	if in.Mood != nil {
		v.Mood = normalize(*in.Mood)
	} else if t, ok := firstTerm(text, lex.Moods); ok {
		v.Mood = t
	}

	if in.PatternMatch != nil {
		v.PatternMatch = *in.PatternMatch
	}

	v.Urgency = (in.Urgency != nil && *in.Urgency) || hasAny(text, lex.Urgency)
	if in.UrgencyText != nil && hasAny(normalize(*in.UrgencyText), lex.Urgency) {
		v.Urgency = true
	}

	switch {
	case in.LastPurchaseDays != nil && *in.LastPurchaseDays >= 0:
		v.LastPurchaseDays = *in.LastPurchaseDays
		v.LastPurchaseSource = RecencyExplicit
	case hasAny(text, lex.Recency):
		v.LastPurchaseDays = RecentPhraseDays
		v.LastPurchaseSource = RecencyPhrase
	default:
		v.LastPurchaseSource = RecencyDefault
	}

	if in.Situation != nil {
		v.Situation = normalize(*in.Situation)
	} else if t, ok := firstTerm(text, lex.Situations); ok {
		v.Situation = t
	}

	if in.Explanation != nil {
		v.Explanation = normalize(*in.Explanation)
	} else if t, ok := firstTerm(text, lex.Vague); ok {
		v.Explanation = t
	} else {
		v.Explanation = text
	}

	return v
}

func hasAny(text string, terms []string) bool {
	_, ok := firstTerm(text, terms)
	return ok
}
