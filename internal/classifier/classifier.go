// Package classifier decides, for a batch of statement transactions, the
// final credit/debit type, MCA payment and funding flags with lender
// attribution, and the true-revenue or adjustment classification of every
// credit.
package classifier

import (
	"context"
	"fmt"

	"mca-revenue-engine/internal/models"
	"mca-revenue-engine/internal/normalize"
	"mca-revenue-engine/internal/patterns"
	"mca-revenue-engine/pkg/errors"
	"mca-revenue-engine/pkg/logger"
)

// PatternLookup is the read side of the learned-pattern store.
type PatternLookup interface {
	LookupMCA(ctx context.Context, description string) (patterns.LenderMatch, bool, error)
	LookupRevenueClassification(ctx context.Context, description string) (patterns.RevenueMatch, bool, error)
	LookupTypeCorrection(ctx context.Context, description string) (patterns.TypeMatch, bool, error)
}

// Config holds classification thresholds.
type Config struct {
	// ConfidenceThresholdForNeedsReview marks keyword hits weaker than this
	// as true revenue pending review instead of adjustments. Zero disables it.
	ConfidenceThresholdForNeedsReview float64
}

// DefaultConfig returns the default classifier configuration.
func DefaultConfig() *Config {
	return &Config{ConfidenceThresholdForNeedsReview: 0}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.ConfidenceThresholdForNeedsReview < 0 || c.ConfidenceThresholdForNeedsReview > 1 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "confidence_threshold_for_needs_review",
			c.ConfidenceThresholdForNeedsReview, fmt.Errorf("must be between 0 and 1"))
	}
	return nil
}

// Classifier applies learned patterns and the static rule tables.
type Classifier struct {
	patterns PatternLookup
	config   *Config
	logger   logger.Logger
}

// Stats summarises one Classify call.
type Stats struct {
	Transactions   int
	TypeCorrected  int
	MCAPayments    int
	MCAFundings    int
	Adjustments    int
	TrueRevenue    int
	NeedsReview    int
	LearnedMatches int
	LookupFailures int
}

// New creates a classifier. A nil lookup classifies with static rules only.
func New(lookup PatternLookup, config *Config) (*Classifier, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{
		patterns: lookup,
		config:   config,
		logger:   logger.GetGlobalLogger().WithComponent("classifier"),
	}, nil
}

// Classify returns classified copies of txns; the input is not modified.
// The list is processed as a batch because funding credits are corroborated
// by payments to the same lender among the debits. Pattern-store failures
// degrade single records to the static rules. Only contract violations
// (negative amount, unknown type) are returned as errors.
func (c *Classifier) Classify(ctx context.Context, txns []*models.Transaction) ([]*models.Transaction, Stats, error) {
	stats := Stats{Transactions: len(txns)}
	out := make([]*models.Transaction, len(txns))

	for i, src := range txns {
		if err := ValidateContract(src); err != nil {
			return nil, stats, err
		}
		t := src.Clone()
		t.ResetClassification()
		t.NormalizedDescription = normalize.Description(t.Description)
		out[i] = t
	}

	// Step 0: learned type corrections apply before anything reads Type.
	for _, t := range out {
		match, ok := c.lookupType(ctx, t, &stats)
		if ok && match.Type.IsValid() && match.Type != t.Type {
			t.Type = match.Type
			t.WasCorrected = true
			stats.TypeCorrected++
		}
	}

	// Step 1: debits, collecting lenders that were paid.
	paid := make(map[string]bool)
	for _, t := range out {
		if !t.IsDebit() {
			continue
		}
		match, ok := c.lookupMCA(ctx, t, &stats)
		if !ok {
			continue
		}
		t.IsMCAPayment = true
		t.MCALenderID = match.LenderID
		t.MCALenderName = match.LenderName
		t.ClassificationReason = fmt.Sprintf("%s: %s", CategoryMCAPayment, match.LenderName)
		if match.Source == patterns.MatchLearned {
			t.ClassificationSource = models.SourceLearned
		} else {
			t.ClassificationSource = models.SourceDefault
		}
		paid[match.LenderID] = true
		stats.MCAPayments++
	}

	// Step 2: credits.
	for _, t := range out {
		if !t.IsCredit() {
			continue
		}
		c.classifyCredit(ctx, t, paid, &stats)

		if t.IsAdjustment {
			stats.Adjustments++
		} else {
			stats.TrueRevenue++
		}
		if t.NeedsReview {
			stats.NeedsReview++
		}
		if t.IsMCAFunding {
			stats.MCAFundings++
		}
	}

	c.logger.WithFields(logger.Fields{
		"transactions":    stats.Transactions,
		"type_corrected":  stats.TypeCorrected,
		"mca_payments":    stats.MCAPayments,
		"mca_fundings":    stats.MCAFundings,
		"adjustments":     stats.Adjustments,
		"needs_review":    stats.NeedsReview,
		"lookup_failures": stats.LookupFailures,
	}).Debug("Classification completed")

	return out, stats, nil
}

func (c *Classifier) classifyCredit(ctx context.Context, t *models.Transaction, paid map[string]bool, stats *Stats) {
	if learned, ok := c.lookupRevenue(ctx, t, stats); ok {
		stats.LearnedMatches++
		t.Classification = learned.Classification
		t.IsAdjustment = learned.Classification == models.RevenueAdjustment
		t.IsMCAFunding = learned.IsMCAFunding && t.IsAdjustment
		t.MCALenderID = learned.LenderID
		t.MCALenderName = learned.LenderName
		t.ClassificationReason = learned.Reason
		if t.ClassificationReason == "" {
			t.ClassificationReason = fmt.Sprintf("%s: %s", CategoryLearned, learned.Pattern)
		}
		t.ClassificationSource = models.SourceLearned
		t.Confidence = 1
		return
	}

	if lender, ok := c.lookupMCA(ctx, t, stats); ok && !lender.PaymentOnly {
		corroborated := paid[lender.LenderID] || hasFundingKeyword(t.NormalizedDescription)
		t.Classification = models.RevenueAdjustment
		t.IsAdjustment = true
		t.IsMCAFunding = true
		t.MCALenderID = lender.LenderID
		t.MCALenderName = lender.LenderName
		t.ClassificationReason = fmt.Sprintf("%s: %s", CategoryMCAFunding, lender.LenderName)
		t.ClassificationSource = models.SourceDefault
		t.Confidence = 0.9
		if !corroborated {
			t.NeedsReview = true
			t.Confidence = 0.6
		}
		if lender.Source == patterns.MatchLearned {
			t.ClassificationSource = models.SourceLearned
		}
		return
	}

	t.ClassificationSource = models.SourceDefault
	hit, ok := MatchAdjustmentRule(t.NormalizedDescription)
	if !ok {
		t.Classification = models.RevenueTrue
		t.ClassificationReason = string(CategoryNoRule)
		t.Confidence = 1
		return
	}

	t.Confidence = hit.Confidence
	if hit.Confidence < c.config.ConfidenceThresholdForNeedsReview {
		t.Classification = models.RevenueTrue
		t.NeedsReview = true
		t.ClassificationReason = fmt.Sprintf("weak %s match: %s", hit.Category, hit.Keyword)
		return
	}

	t.Classification = models.RevenueAdjustment
	t.IsAdjustment = true
	t.ClassificationReason = fmt.Sprintf("%s: %s", hit.Category, hit.Keyword)
}

func (c *Classifier) lookupType(ctx context.Context, t *models.Transaction, stats *Stats) (patterns.TypeMatch, bool) {
	if c.patterns == nil {
		return patterns.TypeMatch{}, false
	}
	match, ok, err := c.patterns.LookupTypeCorrection(ctx, t.Description)
	if err != nil {
		c.lookupFailed(t, "type_correction", err, stats)
		return patterns.TypeMatch{}, false
	}
	return match, ok
}

func (c *Classifier) lookupMCA(ctx context.Context, t *models.Transaction, stats *Stats) (patterns.LenderMatch, bool) {
	if c.patterns == nil {
		return patterns.LookupStaticMCA(t.Description)
	}
	match, ok, err := c.patterns.LookupMCA(ctx, t.Description)
	if err != nil {
		c.lookupFailed(t, "mca_lender", err, stats)
		return patterns.LookupStaticMCA(t.Description)
	}
	return match, ok
}

func (c *Classifier) lookupRevenue(ctx context.Context, t *models.Transaction, stats *Stats) (patterns.RevenueMatch, bool) {
	if c.patterns == nil {
		return patterns.RevenueMatch{}, false
	}
	match, ok, err := c.patterns.LookupRevenueClassification(ctx, t.Description)
	if err != nil {
		c.lookupFailed(t, "revenue_classification", err, stats)
		return patterns.RevenueMatch{}, false
	}
	if ok && !match.Classification.IsValid() {
		c.logger.WithFields(logger.Fields{
			"transaction_id": t.ID,
			"pattern":        match.Pattern,
			"classification": match.Classification,
		}).Warn("Ignoring learned pattern with invalid classification")
		return patterns.RevenueMatch{}, false
	}
	return match, ok
}

func (c *Classifier) lookupFailed(t *models.Transaction, kind string, err error, stats *Stats) {
	stats.LookupFailures++
	c.logger.WithError(err).WithFields(logger.Fields{
		"transaction_id": t.ID,
		"kind":           kind,
	}).Warn("Pattern lookup failed, falling back to static rules")
}

// ValidateContract rejects transactions that break the extractor contract.
func ValidateContract(t *models.Transaction) error {
	if t == nil {
		return errors.ContractError(errors.CodeMissingField, "", "nil transaction")
	}
	if t.Amount.IsNegative() {
		return errors.ContractError(errors.CodeNegativeAmount, t.ID, t.Amount.String())
	}
	if !t.Type.IsValid() {
		return errors.ContractError(errors.CodeUnknownType, t.ID, string(t.Type))
	}
	return nil
}
