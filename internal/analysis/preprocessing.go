package analysis

import (
	"fmt"
	"strings"

	"mca-revenue-engine/internal/models"
	"mca-revenue-engine/internal/normalize"
	"mca-revenue-engine/pkg/logger"

	"github.com/google/uuid"
)

// PreprocessingConfig contains configuration for statement preprocessing
type PreprocessingConfig struct {
	// RemoveDuplicates drops rows repeated across statement pages. Only rows
	// with an extracted ending balance are compared.
	RemoveDuplicates bool
	TrimWhitespace   bool
}

// DefaultPreprocessingConfig returns a default preprocessing configuration
func DefaultPreprocessingConfig() *PreprocessingConfig {
	return &PreprocessingConfig{
		RemoveDuplicates: true,
		TrimWhitespace:   true,
	}
}

// PreprocessingStats contains statistics about one preprocessing run
type PreprocessingStats struct {
	TotalRecords      int `json:"total_records"`
	DuplicatesRemoved int `json:"duplicates_removed"`
	UndatedRecords    int `json:"undated_records"`
	IDsAssigned       int `json:"ids_assigned"`
}

// DataPreprocessor prepares extracted statements for classification
type DataPreprocessor struct {
	config *PreprocessingConfig
	logger logger.Logger
}

// NewDataPreprocessor creates a new data preprocessor
func NewDataPreprocessor(config *PreprocessingConfig) *DataPreprocessor {
	if config == nil {
		config = DefaultPreprocessingConfig()
	}
	return &DataPreprocessor{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("preprocessor"),
	}
}

// Preprocess returns a prepared copy of stmt: IDs assigned where missing,
// dates parsed, multi-page duplicates removed and transactions numbered in
// extraction order. Rows with unusable dates are kept and only logged.
func (dp *DataPreprocessor) Preprocess(stmt *models.Statement) (*models.Statement, PreprocessingStats) {
	out := cloneStatement(stmt)
	stats := PreprocessingStats{TotalRecords: len(out.Transactions)}

	if out.ID == "" {
		out.ID = uuid.NewString()
	}

	seen := make(map[string]bool)
	ids := make(map[string]bool)
	kept := make([]*models.Transaction, 0, len(out.Transactions))
	for i, t := range out.Transactions {
		if t == nil {
			continue
		}
		if dp.config.TrimWhitespace {
			t.Description = strings.TrimSpace(t.Description)
			t.RawDate = strings.TrimSpace(t.RawDate)
		}

		if !t.DateValid {
			if parsed, err := models.ParseStatementDate(t.RawDate); err == nil {
				t.Date = parsed
				t.DateValid = true
			} else {
				stats.UndatedRecords++
				dp.logger.WithFields(logger.Fields{
					"statement_id": out.ID,
					"row":          i,
					"raw_date":     t.RawDate,
				}).Warn("Unparseable transaction date; row kept out of monthly buckets")
			}
		}

		if dp.config.RemoveDuplicates && t.EndingBalance != nil {
			key := duplicateKey(t)
			if seen[key] {
				stats.DuplicatesRemoved++
				dp.logger.WithFields(logger.Fields{
					"statement_id": out.ID,
					"row":          i,
					"description":  t.Description,
				}).Debug("Dropping repeated statement row")
				continue
			}
			seen[key] = true
		}

		// Stored rows are keyed by (statement, ID).
		if t.ID == "" || ids[t.ID] {
			t.ID = uuid.NewString()
			stats.IDsAssigned++
		}
		ids[t.ID] = true
		t.StatementID = out.ID
		t.Sequence = len(kept)
		kept = append(kept, t)
	}
	out.Transactions = kept

	dp.logger.WithFields(logger.Fields{
		"statement_id":       out.ID,
		"total_records":      stats.TotalRecords,
		"duplicates_removed": stats.DuplicatesRemoved,
		"undated_records":    stats.UndatedRecords,
	}).Debug("Preprocessing completed")

	return out, stats
}

// duplicateKey identifies a row by date, normalized description, amount,
// type and ending balance.
func duplicateKey(t *models.Transaction) string {
	date := t.RawDate
	if t.DateValid {
		date = t.Date.Format(models.DateLayout)
	}
	return fmt.Sprintf("%s|%s|%s|%s|%s",
		date,
		normalize.Description(t.Description),
		t.Amount.String(),
		t.Type,
		t.EndingBalance.String())
}
