package classifier

import "mca-revenue-engine/internal/normalize"

// RuleCategory groups keyword rules that mark a credit as a non-revenue
// adjustment.
type RuleCategory string

const (
	CategoryTransfer    RuleCategory = "transfer"
	CategoryFinancing   RuleCategory = "loan_or_advance"
	CategoryRefund      RuleCategory = "refund_or_reversal"
	CategoryInvestment  RuleCategory = "interest_or_rewards"
	CategoryNSFReversal RuleCategory = "nsf_fee_reversal"
	CategoryMCAFunding  RuleCategory = "mca_funding"
	CategoryLearned     RuleCategory = "learned"
	CategoryNoRule      RuleCategory = "no_rule"
	CategoryMCAPayment  RuleCategory = "mca_payment"
)

// keywordRule is one normalized keyword and how strongly it signals a
// non-revenue credit.
type keywordRule struct {
	Keyword    string
	Category   RuleCategory
	Confidence float64
}

// RuleHit is the strongest keyword rule matching a description.
type RuleHit struct {
	Keyword    string
	Category   RuleCategory
	Confidence float64
}

var adjustmentRules = []keywordRule{
	// transfers between the merchant's own accounts
	{"transfer from", CategoryTransfer, 0.9},
	{"transfer in", CategoryTransfer, 0.9},
	{"online transfer", CategoryTransfer, 0.9},
	{"internal transfer", CategoryTransfer, 0.9},
	{"xfer", CategoryTransfer, 0.9},
	{"tfr", CategoryTransfer, 0.85},
	{"from savings", CategoryTransfer, 0.9},
	{"from checking", CategoryTransfer, 0.9},
	{"transfer", CategoryTransfer, 0.6},

	// loan and advance proceeds
	{"loan", CategoryFinancing, 0.9},
	{"loan proceeds", CategoryFinancing, 0.95},
	{"advance", CategoryFinancing, 0.9},
	{"line of credit", CategoryFinancing, 0.9},
	{"loc draw", CategoryFinancing, 0.9},
	{"sba", CategoryFinancing, 0.9},
	{"eidl", CategoryFinancing, 0.9},
	{"ppp", CategoryFinancing, 0.9},
	{"funding", CategoryFinancing, 0.7},
	{"capital injection", CategoryFinancing, 0.8},
	{"capital contribution", CategoryFinancing, 0.8},

	// refunds and reversals
	{"refund", CategoryRefund, 0.85},
	{"reversal", CategoryRefund, 0.85},
	{"reversed", CategoryRefund, 0.85},
	{"chargeback", CategoryRefund, 0.8},
	{"return", CategoryRefund, 0.6},
	{"returned", CategoryRefund, 0.6},

	// interest, dividends and rewards
	{"interest", CategoryInvestment, 0.9},
	{"dividend", CategoryInvestment, 0.9},
	{"bonus", CategoryInvestment, 0.9},
	{"cashback", CategoryInvestment, 0.9},
	{"cash back", CategoryInvestment, 0.9},
	{"rewards", CategoryInvestment, 0.85},

	// bank fee reversals
	{"nsf reversal", CategoryNSFReversal, 0.95},
	{"nsf refund", CategoryNSFReversal, 0.95},
	{"nsf fee reversal", CategoryNSFReversal, 0.95},
	{"nsf fee refund", CategoryNSFReversal, 0.95},
	{"overdraft fee reversal", CategoryNSFReversal, 0.95},
	{"overdraft refund", CategoryNSFReversal, 0.95},
	{"od fee refund", CategoryNSFReversal, 0.95},
	{"fee reversal", CategoryNSFReversal, 0.95},
	{"fee refund", CategoryNSFReversal, 0.95},
}

// fundingKeywords corroborate that a lender-named credit is a disbursement
// rather than a refund or chargeback.
var fundingKeywords = []string{
	"funding",
	"advance",
	"disbursement",
	"proceeds",
	"loan",
	"deposit",
}

// MatchAdjustmentRule returns the strongest adjustment rule found in a
// normalized description. Ties go to the longer keyword.
func MatchAdjustmentRule(normalized string) (RuleHit, bool) {
	var best *keywordRule
	for i := range adjustmentRules {
		r := &adjustmentRules[i]
		if !normalize.Contains(normalized, r.Keyword) {
			continue
		}
		if best == nil || r.Confidence > best.Confidence ||
			(r.Confidence == best.Confidence && len(r.Keyword) > len(best.Keyword)) {
			best = r
		}
	}
	if best == nil {
		return RuleHit{}, false
	}
	return RuleHit{Keyword: best.Keyword, Category: best.Category, Confidence: best.Confidence}, true
}

func hasFundingKeyword(normalized string) bool {
	for _, kw := range fundingKeywords {
		if normalize.Contains(normalized, kw) {
			return true
		}
	}
	return false
}
