package patterns

import (
	"context"
	"fmt"
	"io"
	"time"

	"mca-revenue-engine/internal/models"
	"mca-revenue-engine/internal/normalize"
	"mca-revenue-engine/pkg/errors"
	"mca-revenue-engine/pkg/logger"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// exportDocument is the on-disk layout of a pattern export.
type exportDocument struct {
	NormalizerVersion int                     `yaml:"normalizer_version"`
	ExportedAt        time.Time               `yaml:"exported_at"`
	Patterns          []*models.PatternRecord `yaml:"patterns"`
}

// ImportSummary counts the records processed by Import.
type ImportSummary struct {
	Imported  int
	Conflicts int
	Rejected  int
}

// Export writes the records of kind (all kinds when empty) as YAML.
func (s *Store) Export(ctx context.Context, w io.Writer, kind models.PatternKind) (int, error) {
	records, err := s.List(ctx, kind)
	if err != nil {
		return 0, err
	}

	doc := exportDocument{
		NormalizerVersion: normalize.Version,
		ExportedAt:        s.now(),
		Patterns:          records,
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return 0, errors.InternalError(errors.CodeUnexpectedError, "pattern export", err)
	}
	if err := enc.Close(); err != nil {
		return 0, errors.InternalError(errors.CodeUnexpectedError, "pattern export", err)
	}
	return len(records), nil
}

// Import loads an export document. Records keep their usage counts and
// override flags; an automatic record never replaces a stored manual one.
// Patterns are re-normalized on the way in.
func (s *Store) Import(ctx context.Context, r io.Reader) (ImportSummary, error) {
	var summary ImportSummary
	var doc exportDocument

	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return summary, nil
		}
		return summary, errors.Wrap(err, errors.CategoryInput, errors.CodeInvalidFormat, "pattern import is not valid YAML").
			WithSuggestion("import a file produced by 'patterns export'")
	}

	for i, rec := range doc.Patterns {
		if rec == nil {
			continue
		}
		log := s.logger.WithFields(logger.Fields{"index": i, "kind": rec.Kind, "pattern": rec.Pattern})

		incoming, err := s.prepareImport(rec)
		if err != nil {
			log.WithError(err).Warn("Rejected imported pattern")
			summary.Rejected++
			continue
		}

		existing, err := s.repo.Get(ctx, incoming.Kind, incoming.Pattern)
		if err != nil {
			return summary, err
		}
		if existing != nil {
			if existing.IsManualOverride && !incoming.IsManualOverride {
				log.Warn("Imported pattern skipped: manual override in place")
				summary.Conflicts++
				continue
			}
			incoming.ID = existing.ID
			incoming.CreatedAt = existing.CreatedAt
			if existing.UsageCount > incoming.UsageCount {
				incoming.UsageCount = existing.UsageCount
			}
		}

		if err := s.repo.Save(ctx, incoming); err != nil {
			return summary, err
		}
		summary.Imported++
	}

	s.logger.WithFields(logger.Fields{
		"imported":  summary.Imported,
		"conflicts": summary.Conflicts,
		"rejected":  summary.Rejected,
	}).Info("Pattern import completed")
	return summary, nil
}

func (s *Store) prepareImport(rec *models.PatternRecord) (*models.PatternRecord, error) {
	if !rec.Kind.IsValid() {
		return nil, errors.PatternError(errors.CodeInvalidPattern, rec.Pattern, fmt.Errorf("unknown pattern kind %q", rec.Kind))
	}
	if err := rec.Value.Validate(rec.Kind); err != nil {
		return nil, errors.PatternError(errors.CodeInvalidPattern, rec.Pattern, err)
	}

	out := rec.Clone()
	out.Pattern = normalize.Description(out.Pattern)
	if len(out.Pattern) < s.config.MinimumPatternLength {
		return nil, errors.PatternError(errors.CodePatternTooShort, out.Pattern, nil)
	}

	now := s.now()
	out.NormalizerVersion = normalize.Version
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = now
	}
	out.UpdatedAt = now
	return out, nil
}
