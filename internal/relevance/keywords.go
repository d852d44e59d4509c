package relevance

// DefaultKeywords is the built-in financial-product keyword set used when a
// session supplies none. Callers may replace it wholesale via SessionConfig.
var DefaultKeywords = []string{
	"benefit", "reward", "cashback", "discount",
	"lounge", "airport", "travel", "insurance",
	"annual fee", "interest rate", "eligibility", "minimum salary",
	"points", "miles", "complimentary", "free",
	"cinema", "golf", "concierge", "valet",
	"dining", "shopping", "partner", "merchant",
	"offer", "promotion", "feature",
	"aed", "usd", "%", "per month", "per year",
	"waived", "mastercard", "visa", "platinum",
	"signature", "world", "credit limit", "supplementary",
	"apply", "requirement",
}
