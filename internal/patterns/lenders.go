package patterns

// staticLender is a well-known MCA funder and the description fragments its
// ACH entries carry. Fragments are already normalized.
type staticLender struct {
	ID        string
	Name      string
	Fragments []string
}

var staticLenders = []staticLender{
	{"ondeck", "OnDeck Capital", []string{"ondeck", "on deck capital"}},
	{"kabbage", "Kabbage", []string{"kabbage"}},
	{"bluevine", "BlueVine", []string{"bluevine", "blue vine"}},
	{"square_capital", "Square Capital", []string{"square capital", "sq capital", "square loan"}},
	{"paypal_working_capital", "PayPal Working Capital", []string{"paypal working capital", "paypal wc", "pypl working cap"}},
	{"shopify_capital", "Shopify Capital", []string{"shopify capital"}},
	{"stripe_capital", "Stripe Capital", []string{"stripe capital"}},
	{"amazon_lending", "Amazon Lending", []string{"amazon lending"}},
	{"fundbox", "Fundbox", []string{"fundbox"}},
	{"credibly", "Credibly", []string{"credibly"}},
	{"rapid_finance", "Rapid Finance", []string{"rapid finance", "rapid advance", "rapid capital funding"}},
	{"yellowstone", "Yellowstone Capital", []string{"yellowstone"}},
	{"pearl_capital", "Pearl Capital", []string{"pearl capital"}},
	{"forward_financing", "Forward Financing", []string{"forward financing", "forward fin"}},
	{"kapitus", "Kapitus", []string{"kapitus"}},
	{"national_funding", "National Funding", []string{"national funding"}},
	{"fora_financial", "Fora Financial", []string{"fora financial"}},
	{"libertas", "Libertas Funding", []string{"libertas"}},
	{"everest", "Everest Business Funding", []string{"everest business", "everest funding"}},
	{"can_capital", "CAN Capital", []string{"can capital"}},
	{"mulligan", "Mulligan Funding", []string{"mulligan"}},
	{"reliant", "Reliant Funding", []string{"reliant funding"}},
	{"greenbox", "Greenbox Capital", []string{"greenbox"}},
	{"clearco", "Clearco", []string{"clearco", "clearbanc"}},
	{"velocity", "Velocity Capital Group", []string{"velocity capital"}},
	{"byzfunder", "Byzfunder", []string{"byzfunder"}},
	{"fundkite", "Fundkite", []string{"fundkite"}},
	{"unique_funding", "Unique Funding Solutions", []string{"unique funding"}},
	{"headway", "Headway Capital", []string{"headway capital"}},
	{"idea_financial", "Idea Financial", []string{"idea financial"}},
	{"cloudfund", "Cloudfund", []string{"cloudfund"}},
	{"itria", "Itria Ventures", []string{"itria"}},
	{"vox_funding", "Vox Funding", []string{"vox funding"}},
	{"expansion_capital", "Expansion Capital Group", []string{"expansion capital"}},
	{"parkside", "Parkside Funding", []string{"parkside funding"}},
	{"lg_funding", "LG Funding", []string{"lg funding"}},
}

// staticDenylist holds fragments that look like lenders but are card
// issuers, banks or billers. A denylist hit suppresses every MCA match.
var staticDenylist = []string{
	"capital one",
	"american express",
	"amex",
	"discover card",
	"chase card",
	"citi card",
	"wells fargo card",
	"synchrony",
	"barclaycard",
	"funding circle",
	"irs",
	"payroll",
	"adp",
	"insurance",
}

// genericMCAKeywords mark an MCA entry whose funder is not in the table.
var genericMCAKeywords = []string{
	"merchant cash advance",
	"mca",
	"daily remit",
	"daily ach",
	"receivables purchase",
	"future receivables",
}

// paymentOnlyKeywords describe the remittance schedule, not the funder.
// Processor settlements carry the same words on credits.
var paymentOnlyKeywords = map[string]bool{
	"daily remit": true,
	"daily ach":   true,
}

const (
	unidentifiedLenderID   = "unidentified"
	unidentifiedLenderName = "Unidentified MCA"
)
