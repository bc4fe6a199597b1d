// Package patterns holds the learned-pattern store: three independent tables
// keyed by normalized description (MCA lenders, revenue classifications and
// type corrections) plus the static lender tables consulted on MCA lookups.
package patterns

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mca-revenue-engine/internal/models"
	"mca-revenue-engine/internal/normalize"
	"mca-revenue-engine/pkg/errors"
	"mca-revenue-engine/pkg/logger"

	"github.com/google/uuid"
)

// MatchSource identifies which layer of an MCA lookup produced a match.
type MatchSource string

const (
	MatchLearned MatchSource = "learned"
	MatchStatic  MatchSource = "static"
	MatchGeneric MatchSource = "generic"
)

// LenderMatch is a positive MCA lookup result. PaymentOnly marks generic
// matches that identify MCA debits but say nothing about credits.
type LenderMatch struct {
	LenderID    string
	LenderName  string
	Pattern     string
	Source      MatchSource
	Manual      bool
	PaymentOnly bool
}

// RevenueMatch is a learned revenue classification.
type RevenueMatch struct {
	Classification models.RevenueClass
	Reason         string
	IsMCAFunding   bool
	LenderID       string
	LenderName     string
	Pattern        string
	Manual         bool
}

// TypeMatch is a learned type correction.
type TypeMatch struct {
	Type    models.TransactionType
	Pattern string
	Manual  bool
}

// Correction is a write request against one pattern table. Description may
// be raw; it is normalized before use.
type Correction struct {
	Description string
	Kind        models.PatternKind
	Value       models.PatternValue
	IsManual    bool
	ActorID     string
}

// RecordResult is the outcome of RecordCorrection. Conflict is set when an
// automatic write was skipped because a manual override owns the pattern.
type RecordResult struct {
	Record   *models.PatternRecord
	Outcome  UpsertOutcome
	Conflict bool
}

// Config controls pattern validation.
type Config struct {
	MinimumPatternLength int
}

// DefaultConfig returns the default pattern store configuration.
func DefaultConfig() *Config {
	return &Config{MinimumPatternLength: 10}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.MinimumPatternLength < 1 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "minimum_pattern_length", c.MinimumPatternLength, nil)
	}
	return nil
}

// Store answers pattern lookups with precedence rules applied and records
// corrections. It is safe for concurrent use when its Repository is.
type Store struct {
	repo   Repository
	config *Config
	logger logger.Logger
	now    func() time.Time
}

// NewStore creates a store over repo.
func NewStore(repo Repository, config *Config) (*Store, error) {
	if repo == nil {
		return nil, errors.InternalError(errors.CodeUnexpectedError, "pattern store setup", fmt.Errorf("repository cannot be nil"))
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Store{
		repo:   repo,
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("pattern_store"),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Repository exposes the underlying repository for admin tooling.
func (s *Store) Repository() Repository {
	return s.repo
}

// LookupMCA decides whether a description is an MCA entry and names the
// funder. Learned exclusions win, then learned lender patterns, then the
// static lender table and generic MCA keywords. The static denylist only
// suppresses the static tiers; a learned lender is never overruled by it.
func (s *Store) LookupMCA(ctx context.Context, description string) (LenderMatch, bool, error) {
	desc := normalize.Description(description)
	if desc == "" {
		return LenderMatch{}, false, nil
	}

	records, err := s.repo.Match(ctx, models.KindMCALender, desc)
	if err != nil {
		return LenderMatch{}, false, err
	}

	var excluded, lender *models.PatternRecord
	for _, rec := range records {
		if rec.Value.Excluded {
			if rec.Outranks(excluded) {
				excluded = rec
			}
			continue
		}
		if rec.Outranks(lender) {
			lender = rec
		}
	}

	if excluded != nil {
		s.touch(ctx, excluded)
		return LenderMatch{}, false, nil
	}

	if lender != nil {
		s.touch(ctx, lender)
		return LenderMatch{
			LenderID:   lender.Value.LenderID,
			LenderName: lender.Value.LenderName,
			Pattern:    lender.Pattern,
			Source:     MatchLearned,
			Manual:     lender.IsManualOverride,
		}, true, nil
	}

	if denied(desc) {
		return LenderMatch{}, false, nil
	}
	m, ok := lookupStatic(desc)
	return m, ok, nil
}

// LookupStaticMCA consults only the built-in tables: denylist, known
// funders and generic MCA keywords. Classifiers fall back to it when the
// learned store is unavailable.
func LookupStaticMCA(description string) (LenderMatch, bool) {
	desc := normalize.Description(description)
	if desc == "" || denied(desc) {
		return LenderMatch{}, false
	}
	return lookupStatic(desc)
}

func denied(desc string) bool {
	for _, deny := range staticDenylist {
		if normalize.Contains(desc, deny) {
			return true
		}
	}
	return false
}

func lookupStatic(desc string) (LenderMatch, bool) {
	if m, ok := matchStaticLender(desc); ok {
		return m, true
	}

	for _, kw := range genericMCAKeywords {
		if normalize.Contains(desc, kw) {
			return LenderMatch{
				LenderID:    unidentifiedLenderID,
				LenderName:  unidentifiedLenderName,
				Pattern:     kw,
				Source:      MatchGeneric,
				PaymentOnly: paymentOnlyKeywords[kw],
			}, true
		}
	}
	return LenderMatch{}, false
}

// matchStaticLender returns the funder whose longest fragment occurs in desc.
func matchStaticLender(desc string) (LenderMatch, bool) {
	var best LenderMatch
	found := false
	for _, l := range staticLenders {
		for _, frag := range l.Fragments {
			if !normalize.Contains(desc, frag) {
				continue
			}
			if !found || len(frag) > len(best.Pattern) {
				best = LenderMatch{LenderID: l.ID, LenderName: l.Name, Pattern: frag, Source: MatchStatic}
				found = true
			}
		}
	}
	return best, found
}

// LookupRevenueClassification returns the learned classification for a
// credit description. Absence means the caller applies its static rules.
func (s *Store) LookupRevenueClassification(ctx context.Context, description string) (RevenueMatch, bool, error) {
	rec, err := s.best(ctx, models.KindRevenueClassification, description)
	if err != nil || rec == nil {
		return RevenueMatch{}, false, err
	}

	return RevenueMatch{
		Classification: rec.Value.Classification,
		Reason:         rec.Value.Reason,
		IsMCAFunding:   rec.Value.IsMCAFunding,
		LenderID:       rec.Value.LenderID,
		LenderName:     rec.Value.LenderName,
		Pattern:        rec.Pattern,
		Manual:         rec.IsManualOverride,
	}, true, nil
}

// LookupTypeCorrection returns the learned transaction type for a description.
func (s *Store) LookupTypeCorrection(ctx context.Context, description string) (TypeMatch, bool, error) {
	rec, err := s.best(ctx, models.KindTypeCorrection, description)
	if err != nil || rec == nil {
		return TypeMatch{}, false, err
	}

	return TypeMatch{Type: rec.Value.CorrectType, Pattern: rec.Pattern, Manual: rec.IsManualOverride}, true, nil
}

func (s *Store) best(ctx context.Context, kind models.PatternKind, description string) (*models.PatternRecord, error) {
	desc := normalize.Description(description)
	if desc == "" {
		return nil, nil
	}

	records, err := s.repo.Match(ctx, kind, desc)
	if err != nil {
		return nil, err
	}

	var winner *models.PatternRecord
	for _, rec := range records {
		if rec.Outranks(winner) {
			winner = rec
		}
	}
	if winner != nil {
		s.touch(ctx, winner)
	}
	return winner, nil
}

// touch records a match. A lost increment only under-counts confidence, so
// failures are logged and swallowed.
func (s *Store) touch(ctx context.Context, rec *models.PatternRecord) {
	if err := s.repo.IncrementUsage(ctx, rec.Kind, rec.Pattern); err != nil {
		s.logger.WithError(err).WithFields(logger.Fields{
			"kind":    rec.Kind,
			"pattern": rec.Pattern,
		}).Warn("Failed to increment pattern usage")
	}
}

// RecordCorrection normalizes the description into a pattern and upserts it.
// Manual corrections always win; an automatic write over a manual override
// is skipped and reported through RecordResult.Conflict.
func (s *Store) RecordCorrection(ctx context.Context, c Correction) (RecordResult, error) {
	pattern, err := s.PatternFor(c.Description)
	if err != nil {
		return RecordResult{}, err
	}
	if !c.Kind.IsValid() {
		return RecordResult{}, errors.PatternError(errors.CodeInvalidPattern, pattern, fmt.Errorf("unknown pattern kind %q", c.Kind))
	}
	if err := c.Value.Validate(c.Kind); err != nil {
		return RecordResult{}, errors.PatternError(errors.CodeInvalidPattern, pattern, err)
	}

	now := s.now()
	rec := &models.PatternRecord{
		ID:                uuid.NewString(),
		Pattern:           pattern,
		Kind:              c.Kind,
		Value:             c.Value,
		IsManualOverride:  c.IsManual,
		CreatedBy:         c.ActorID,
		NormalizerVersion: normalize.Version,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	outcome, err := s.repo.Upsert(ctx, rec)
	if err != nil {
		return RecordResult{}, err
	}

	stored, err := s.repo.Get(ctx, c.Kind, pattern)
	if err != nil {
		return RecordResult{}, err
	}

	result := RecordResult{Record: stored, Outcome: outcome, Conflict: outcome == Skipped}

	log := s.logger.WithFields(logger.Fields{
		"kind":    c.Kind,
		"pattern": pattern,
		"manual":  c.IsManual,
		"actor":   c.ActorID,
		"outcome": outcome.String(),
	})
	if result.Conflict {
		log.Warn("Automatic pattern write skipped: manual override in place")
	} else {
		log.Info("Pattern recorded")
	}

	return result, nil
}

// PatternFor returns the pattern key a description would be stored under,
// or a validation error when it is too short to be a safe substring match.
func (s *Store) PatternFor(description string) (string, error) {
	pattern := normalize.Description(description)
	if len(pattern) < s.config.MinimumPatternLength {
		return "", errors.PatternError(errors.CodePatternTooShort, pattern, nil).
			WithContext("minimum_length", s.config.MinimumPatternLength)
	}
	return pattern, nil
}

// List returns the stored records of kind (all kinds when empty).
func (s *Store) List(ctx context.Context, kind models.PatternKind) ([]*models.PatternRecord, error) {
	if kind != "" && !kind.IsValid() {
		return nil, errors.PatternError(errors.CodeInvalidPattern, string(kind), fmt.Errorf("unknown pattern kind"))
	}
	return s.repo.List(ctx, kind)
}

// Reset removes a single pattern. The pattern is normalized first so raw
// descriptions can be passed.
func (s *Store) Reset(ctx context.Context, kind models.PatternKind, pattern string) error {
	key := normalize.Description(pattern)
	ok, err := s.repo.Delete(ctx, kind, key)
	if err != nil {
		return err
	}
	if !ok {
		return errors.PatternError(errors.CodePatternNotFound, key, nil).WithContext("kind", kind)
	}
	s.logger.WithFields(logger.Fields{"kind": kind, "pattern": key}).Info("Pattern reset")
	return nil
}

// Clear removes every pattern of kind, or every pattern when kind is empty.
func (s *Store) Clear(ctx context.Context, kind models.PatternKind) (int64, error) {
	if kind != "" && !kind.IsValid() {
		return 0, errors.PatternError(errors.CodeInvalidPattern, string(kind), fmt.Errorf("unknown pattern kind"))
	}
	n, err := s.repo.DeleteKind(ctx, kind)
	if err != nil {
		return 0, err
	}
	s.logger.WithFields(logger.Fields{"kind": kind, "removed": n}).Info("Patterns cleared")
	return n, nil
}

// RekeySummary describes a Rekey run.
type RekeySummary struct {
	Examined  int
	Rekeyed   int
	Merged    int
	Unchanged int
	Skipped   []string
}

// Rekey re-normalizes patterns written under an older normalizer version.
// When two records collapse onto one key, the one that outranks the other is
// kept and usage counts are summed. Keys that would become too short are
// left untouched and reported.
func (s *Store) Rekey(ctx context.Context) (RekeySummary, error) {
	var summary RekeySummary

	records, err := s.repo.List(ctx, "")
	if err != nil {
		return summary, err
	}

	for _, rec := range records {
		if rec.NormalizerVersion == normalize.Version {
			continue
		}
		summary.Examined++

		key := normalize.Description(rec.Pattern)
		if len(key) < s.config.MinimumPatternLength {
			summary.Skipped = append(summary.Skipped, string(rec.Kind)+":"+rec.Pattern)
			continue
		}

		updated := rec.Clone()
		updated.Pattern = key
		updated.NormalizerVersion = normalize.Version
		updated.UpdatedAt = s.now()

		if key != rec.Pattern {
			existing, err := s.repo.Get(ctx, rec.Kind, key)
			if err != nil {
				return summary, err
			}
			if existing != nil {
				if existing.Outranks(updated) {
					keep := existing.Clone()
					keep.UsageCount += rec.UsageCount
					updated = keep
				} else {
					updated.UsageCount += existing.UsageCount
				}
				updated.IsManualOverride = existing.IsManualOverride || rec.IsManualOverride
				updated.NormalizerVersion = normalize.Version
				summary.Merged++
			} else {
				summary.Rekeyed++
			}
			if _, err := s.repo.Delete(ctx, rec.Kind, rec.Pattern); err != nil {
				return summary, err
			}
		} else {
			summary.Unchanged++
		}

		if err := s.repo.Save(ctx, updated); err != nil {
			return summary, err
		}
	}

	if summary.Examined > 0 {
		s.logger.WithFields(logger.Fields{
			"examined": summary.Examined,
			"rekeyed":  summary.Rekeyed,
			"merged":   summary.Merged,
			"skipped":  strings.Join(summary.Skipped, ", "),
		}).Info("Pattern re-key completed")
	}
	return summary, nil
}
