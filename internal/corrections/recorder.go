// Package corrections turns a human override of one transaction into a
// manual learned pattern and reclassifies every stored statement the
// pattern affects.
package corrections

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"mca-revenue-engine/internal/analysis"
	"mca-revenue-engine/internal/models"
	"mca-revenue-engine/internal/normalize"
	"mca-revenue-engine/internal/patterns"
	"mca-revenue-engine/pkg/errors"
	"mca-revenue-engine/pkg/logger"
)

// Field names the transaction attribute being corrected.
type Field string

const (
	FieldType                  Field = "type"
	FieldRevenueClassification Field = "revenue_classification"
	FieldMCAStatus             Field = "mca_status"
)

// ValueMCAFunding is accepted as a revenue_classification value and marks
// the credit as an adjustment that funded an MCA.
const ValueMCAFunding = "mca_funding"

// Request is one human correction.
type Request struct {
	// StatementID scopes TransactionID; it may be empty when the ID is
	// unique across stored statements.
	StatementID   string `json:"statement_id,omitempty"`
	TransactionID string `json:"transaction_id"`
	Field         Field  `json:"field"`
	OldValue      string `json:"old_value"`
	NewValue      string `json:"new_value"`
	ActorID       string `json:"actor_id"`
	// LenderID and LenderName name the funder when marking a transaction
	// as an MCA payment or funding. Defaults are derived from the
	// description.
	LenderID   string `json:"lender_id,omitempty"`
	LenderName string `json:"lender_name,omitempty"`
}

// Result describes what a correction changed.
type Result struct {
	Record        *models.PatternRecord     `json:"record"`
	Outcome       patterns.UpsertOutcome    `json:"-"`
	Conflict      bool                      `json:"conflict"`
	Reclassified  []string                  `json:"reclassified_statements"`
	Reports       map[string]*models.Report `json:"-"`
	StaleOldValue bool                      `json:"stale_old_value"`
}

// Recorder applies corrections.
type Recorder struct {
	store      *patterns.Store
	statements analysis.StatementRepository
	engine     *analysis.Engine
	logger     logger.Logger
}

// NewRecorder creates a recorder. The engine must classify against store
// for reclassification to reflect the new pattern.
func NewRecorder(store *patterns.Store, statements analysis.StatementRepository, engine *analysis.Engine) (*Recorder, error) {
	if store == nil || statements == nil || engine == nil {
		return nil, errors.InternalError(errors.CodeUnexpectedError, "correction recorder setup",
			fmt.Errorf("store, statement repository and engine are required"))
	}
	return &Recorder{
		store:      store,
		statements: statements,
		engine:     engine,
		logger:     logger.GetGlobalLogger().WithComponent("correction_recorder"),
	}, nil
}

// Record writes a manual pattern keyed by the corrected transaction's
// normalized description, then reclassifies, saves and re-caches every
// stored statement with a transaction matching that pattern. Applying the
// same request twice leaves the same end state.
func (r *Recorder) Record(ctx context.Context, req Request) (*Result, error) {
	txn, err := r.statements.FindTransaction(ctx, req.StatementID, req.TransactionID)
	if err != nil {
		return nil, err
	}

	correction, err := buildCorrection(txn, req)
	if err != nil {
		return nil, err
	}

	stale := req.OldValue != "" && !strings.EqualFold(req.OldValue, currentValue(txn, req.Field))
	if stale {
		r.logger.WithFields(logger.Fields{
			"transaction_id": txn.ID,
			"field":          req.Field,
			"old_value":      req.OldValue,
			"current_value":  currentValue(txn, req.Field),
		}).Warn("Correction old value does not match stored transaction")
	}

	recorded, err := r.store.RecordCorrection(ctx, correction)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Record:        recorded.Record,
		Outcome:       recorded.Outcome,
		Conflict:      recorded.Conflict,
		Reclassified:  []string{},
		Reports:       make(map[string]*models.Report),
		StaleOldValue: stale,
	}

	ids, err := r.statements.StatementIDsMatching(ctx, recorded.Record.Pattern)
	if err != nil {
		return nil, err
	}
	tracker := logger.NewProgressTracker(logger.ProgressConfig{
		Operation: "reclassify_statements",
		Total:     len(ids),
		Logger:    r.logger,
	})
	for _, id := range ids {
		analysed, err := r.engine.Reanalyze(ctx, id)
		if err != nil {
			tracker.Fail()
			wrapped := errors.WrapIfNeeded(err, errors.CategoryAnalysis, errors.CodeAnalysisFailed,
				"reclassification after correction failed").WithContext("statement_id", id)
			tracker.CompleteWithError(wrapped)
			return nil, wrapped
		}
		result.Reclassified = append(result.Reclassified, id)
		result.Reports[id] = analysed.Report
		tracker.Increment()
	}
	tracker.Complete()

	r.logger.WithFields(logger.Fields{
		"statement_id":   txn.StatementID,
		"transaction_id": txn.ID,
		"field":          req.Field,
		"new_value":      req.NewValue,
		"actor":          req.ActorID,
		"pattern":        recorded.Record.Pattern,
		"outcome":        recorded.Outcome.String(),
		"reclassified":   len(result.Reclassified),
	}).Info("Correction recorded")

	return result, nil
}

func buildCorrection(txn *models.Transaction, req Request) (patterns.Correction, error) {
	c := patterns.Correction{
		Description: txn.Description,
		IsManual:    true,
		ActorID:     req.ActorID,
	}
	value := strings.ToLower(strings.TrimSpace(req.NewValue))

	switch req.Field {
	case FieldType:
		txType, err := models.ParseTransactionType(value)
		if err != nil {
			return c, errors.PatternError(errors.CodeInvalidPattern, req.NewValue, err).
				WithSuggestion("Use 'credit' or 'debit'")
		}
		c.Kind = models.KindTypeCorrection
		c.Value = models.PatternValue{CorrectType: txType}

	case FieldRevenueClassification:
		c.Kind = models.KindRevenueClassification
		switch value {
		case ValueMCAFunding:
			id, name := lenderFor(txn, req)
			c.Value = models.PatternValue{
				Classification: models.RevenueAdjustment,
				IsMCAFunding:   true,
				LenderID:       id,
				LenderName:     name,
				Reason:         fmt.Sprintf("mca_funding: %s", name),
			}
		default:
			class := models.RevenueClass(value)
			if !class.IsValid() {
				return c, errors.PatternError(errors.CodeInvalidPattern, req.NewValue,
					fmt.Errorf("unknown revenue classification %q", req.NewValue)).
					WithSuggestion("Use 'true_revenue', 'adjustment' or 'mca_funding'")
			}
			c.Value = models.PatternValue{Classification: class, Reason: fmt.Sprintf("corrected: %s", class)}
		}

	case FieldMCAStatus:
		isMCA, err := strconv.ParseBool(value)
		if err != nil {
			return c, errors.PatternError(errors.CodeInvalidPattern, req.NewValue, err).
				WithSuggestion("Use 'true' or 'false'")
		}
		c.Kind = models.KindMCALender
		if isMCA {
			id, name := lenderFor(txn, req)
			c.Value = models.PatternValue{LenderID: id, LenderName: name}
		} else {
			c.Value = models.PatternValue{Excluded: true}
		}

	default:
		return c, errors.New(errors.CategoryPattern, errors.CodeUnknownCorrField,
			fmt.Sprintf("unknown correction field %q", req.Field)).
			WithSuggestion("Use 'type', 'revenue_classification' or 'mca_status'")
	}
	return c, nil
}

// lenderFor picks the lender named by the request, then the one already
// attributed to the transaction, then a name derived from the description.
func lenderFor(txn *models.Transaction, req Request) (string, string) {
	id, name := req.LenderID, req.LenderName
	switch {
	case name != "":
	case txn.MCALenderName != "":
		name = txn.MCALenderName
		if id == "" {
			id = txn.MCALenderID
		}
	default:
		name = strings.ToUpper(normalize.Description(txn.Description))
	}
	if id == "" {
		id = strings.ReplaceAll(normalize.Description(name), " ", "_")
	}
	return id, name
}

func currentValue(txn *models.Transaction, field Field) string {
	switch field {
	case FieldType:
		return string(txn.Type)
	case FieldRevenueClassification:
		if txn.IsMCAFunding {
			return ValueMCAFunding
		}
		return string(txn.Classification)
	case FieldMCAStatus:
		return strconv.FormatBool(txn.IsMCAPayment || txn.IsMCAFunding)
	}
	return ""
}
