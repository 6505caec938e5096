package classifier

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/xxxsen/chewie/internal/model"
)

const (
	baseConfidence   = 0.5
	perKeywordBoost  = 0.1
	maxKeywordBoost  = 0.4
	entityConfidence = 0.1
)

var (
	earningsKeywords = []string{
		"earn", "earning", "earnings", "yield", "apr", "apy", "return", "returns",
		"profit", "income", "interest", "reward", "rewards", "make money",
		"how much", "calculate", "calculator",
	}
	riskKeywords = []string{
		"risk", "risks", "risky", "safe", "safety", "secure", "security",
		"danger", "dangerous", "lose", "loss", "losses", "audit", "audited",
		"hack", "hacked", "exploit", "vulnerability", "insurance",
	}
	technicalKeywords = []string{
		"how to", "how do i", "tutorial", "guide", "step", "steps",
		"deposit", "withdraw", "connect", "wallet", "transaction",
		"metamask", "phantom", "solana", "blockchain",
	}

	// checked in order, first hit wins
	typeRules = []struct {
		typ      model.QueryType
		keywords []string
	}{
		{model.QueryTypeEarnings, earningsKeywords},
		{model.QueryTypeRisk, riskKeywords},
		{model.QueryTypeTechnical, technicalKeywords},
	}

	poolPatterns = []*regexp.Regexp{
		regexp.MustCompile(`allez[- ]?usdc`),
		regexp.MustCompile(`main[- ]?usdc`),
		regexp.MustCompile(`jito[- ]?sol`),
		regexp.MustCompile(`usdt[- ]?main`),
	}

	amountPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(\d+(?:,\d{3})*(?:\.\d+)?)\s*(?:usdc|usdt|usd|dollars?)`),
		regexp.MustCompile(`\$\s*(\d+(?:,\d{3})*(?:\.\d+)?)`),
		regexp.MustCompile(`(\d+(?:,\d{3})*(?:\.\d+)?)\s+(?:in|on|with)`),
	}

	currencies = []string{"usdc", "usdt", "usd", "sol", "eth", "btc"}
)

// Classify determines the query type and extracts pool, amount and currency
// entities. An explicit pool id takes precedence over extraction.
func Classify(query string, explicitPoolID string) model.Classification {
	lower := strings.ToLower(query)
	typ, matches := determineType(lower)

	extractedPool := extractPoolID(lower)
	amount := extractAmount(lower)

	poolID := extractedPool
	if explicitPoolID != "" {
		poolID = explicitPoolID
	}

	confidence := baseConfidence
	if matches > 0 {
		boost := float64(matches) * perKeywordBoost
		if boost > maxKeywordBoost {
			boost = maxKeywordBoost
		}
		confidence += boost
	}
	if extractedPool != "" {
		confidence += entityConfidence
	}
	if amount != nil && *amount != 0 {
		confidence += entityConfidence
	}
	confidence = clamp(confidence)

	return model.Classification{
		Type:                  typ,
		PoolID:                poolID,
		Amount:                amount,
		Currency:              extractCurrency(lower),
		Confidence:            confidence,
		RequiresGroundingData: typ == model.QueryTypeEarnings,
	}
}

func determineType(query string) (model.QueryType, int) {
	for _, rule := range typeRules {
		if n := countMatches(query, rule.keywords); n > 0 {
			return rule.typ, n
		}
	}
	return model.QueryTypeGeneral, 0
}

func countMatches(query string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(query, kw) {
			n++
		}
	}
	return n
}

func extractPoolID(query string) string {
	for _, re := range poolPatterns {
		if m := re.FindString(query); m != "" {
			return strings.ReplaceAll(m, " ", "-")
		}
	}
	return ""
}

func extractAmount(query string) *float64 {
	for _, re := range amountPatterns {
		m := re.FindStringSubmatch(query)
		if len(m) < 2 {
			continue
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil {
			continue
		}
		return &v
	}
	return nil
}

func extractCurrency(query string) string {
	for _, c := range currencies {
		if strings.Contains(query, c) {
			return strings.ToUpper(c)
		}
	}
	return ""
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
