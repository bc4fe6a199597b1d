// Package analysis runs the full statement pipeline.
//
// The Engine coordinates one analysis request end to end:
//  1. Preprocessing (IDs, dates, multi-page duplicate removal)
//  2. Classification against the learned-pattern store
//  3. Monthly aggregation
//  4. Balance and NSF analysis per month
//  5. Underwriting metrics
//  6. Optional persistence and report caching
//
// Example usage:
//
//	engine, err := analysis.NewEngine(store, statements, analysis.DefaultConfig())
//	engine.AddProgressCallback(func(p *analysis.Progress) {
//		fmt.Printf("%.0f%% %s\n", p.PercentComplete, p.CurrentStep)
//	})
//	result, err := engine.Analyze(ctx, statement, &analysis.Options{Persist: true})
package analysis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mca-revenue-engine/internal/aggregator"
	"mca-revenue-engine/internal/balance"
	"mca-revenue-engine/internal/classifier"
	"mca-revenue-engine/internal/models"
	"mca-revenue-engine/internal/nsf"
	"mca-revenue-engine/internal/underwriting"
	"mca-revenue-engine/pkg/errors"
	"mca-revenue-engine/pkg/logger"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
)

const (
	DefaultCacheExpiration = 15 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute

	totalSteps = 7
)

// Config bundles the configuration of every pipeline stage.
type Config struct {
	Preprocessing   *PreprocessingConfig
	Classifier      *classifier.Config
	Aggregator      *aggregator.Config
	NSF             *nsf.Config
	Underwriting    *underwriting.Config
	CacheExpiration time.Duration
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() *Config {
	return &Config{
		Preprocessing:   DefaultPreprocessingConfig(),
		Classifier:      classifier.DefaultConfig(),
		Aggregator:      aggregator.DefaultConfig(),
		NSF:             nsf.DefaultConfig(),
		Underwriting:    underwriting.DefaultConfig(),
		CacheExpiration: DefaultCacheExpiration,
	}
}

// Options tune a single Analyze call.
type Options struct {
	// Persist stores the classified statement for later reclassification.
	Persist bool
	// ExistingDailyPayment overrides the payment load estimated from
	// observed MCA debits.
	ExistingDailyPayment *decimal.Decimal
}

// Result is the output of one analysis.
type Result struct {
	Statement *models.Statement
	Report    *models.Report
	Stats     classifier.Stats
	Elapsed   time.Duration
}

// Progress tracks the progress of one analysis.
type Progress struct {
	TotalSteps      int           `json:"total_steps"`
	CompletedSteps  int           `json:"completed_steps"`
	CurrentStep     string        `json:"current_step"`
	PercentComplete float64       `json:"percent_complete"`
	StartTime       time.Time     `json:"start_time"`
	ElapsedTime     time.Duration `json:"elapsed_time"`
}

// ProgressCallback is called as each stage starts.
type ProgressCallback func(*Progress)

// Engine runs the analysis pipeline.
type Engine struct {
	preprocessor *DataPreprocessor
	classifier   *classifier.Classifier
	aggregator   *aggregator.Aggregator
	balance      *balance.Analyzer
	nsf          *nsf.Counter
	underwriting *underwriting.Engine
	statements   StatementRepository
	reports      *cache.Cache
	logger       logger.Logger

	progressCallbacks []ProgressCallback
	currentProgress   *Progress
	progressMutex     sync.Mutex
}

// NewEngine wires the pipeline. lookup may be nil for static rules only;
// statements may be nil when nothing is persisted.
func NewEngine(lookup classifier.PatternLookup, statements StatementRepository, config *Config) (*Engine, error) {
	if config == nil {
		config = DefaultConfig()
	}

	cls, err := classifier.New(lookup, config.Classifier)
	if err != nil {
		return nil, err
	}
	agg, err := aggregator.New(config.Aggregator)
	if err != nil {
		return nil, err
	}
	counter, err := nsf.NewCounter(config.NSF)
	if err != nil {
		return nil, err
	}
	uw, err := underwriting.New(config.Underwriting)
	if err != nil {
		return nil, err
	}

	expiration := config.CacheExpiration
	if expiration <= 0 {
		expiration = DefaultCacheExpiration
	}

	return &Engine{
		preprocessor:    NewDataPreprocessor(config.Preprocessing),
		classifier:      cls,
		aggregator:      agg,
		balance:         balance.NewAnalyzer(),
		nsf:             counter,
		underwriting:    uw,
		statements:      statements,
		reports:         cache.New(expiration, CacheCleanupInterval),
		logger:          logger.GetGlobalLogger().WithComponent("analysis_engine"),
		currentProgress: &Progress{TotalSteps: totalSteps},
	}, nil
}

// AddProgressCallback adds a progress callback function
func (e *Engine) AddProgressCallback(callback ProgressCallback) {
	e.progressMutex.Lock()
	defer e.progressMutex.Unlock()
	e.progressCallbacks = append(e.progressCallbacks, callback)
}

// Statements returns the statement repository, which may be nil.
func (e *Engine) Statements() StatementRepository {
	return e.statements
}

// Analyze preprocesses, classifies and aggregates stmt and returns the
// report. Contract violations in the input are returned as errors;
// data-quality problems are reported in Report.DataQuality instead.
func (e *Engine) Analyze(ctx context.Context, stmt *models.Statement, opts *Options) (*Result, error) {
	if stmt == nil {
		return nil, errors.New(errors.CategoryInput, errors.CodeMissingField, "statement is required")
	}
	if opts == nil {
		opts = &Options{}
	}

	start := time.Now()
	e.initializeProgress(start)

	e.updateProgress("Preprocessing")
	prepared, prepStats := e.preprocessor.Preprocess(stmt)

	result, err := e.run(ctx, prepared, prepStats, opts)
	if err != nil {
		return nil, err
	}
	result.Elapsed = time.Since(start)

	e.logger.WithFields(logger.Fields{
		"statement_id": prepared.ID,
		"transactions": len(prepared.Transactions),
		"months":       len(result.Report.Months),
		"elapsed":      result.Elapsed,
	}).Info("Statement analysis completed")
	return result, nil
}

// Reanalyze reclassifies a stored statement against the current pattern
// store, saves the result and refreshes its cached report. The payment-load
// override the statement was stored with still applies.
func (e *Engine) Reanalyze(ctx context.Context, statementID string) (*Result, error) {
	if e.statements == nil {
		return nil, errors.StorageError(errors.CodeStorageUnavailable, "reanalyze", nil).
			WithSuggestion("Configure a database to reclassify stored statements")
	}
	stmt, err := e.statements.LoadStatement(ctx, statementID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	e.initializeProgress(start)
	e.updateProgress("Preprocessing")
	prepared, prepStats := e.preprocessor.Preprocess(stmt)

	result, err := e.run(ctx, prepared, prepStats, &Options{
		Persist:              true,
		ExistingDailyPayment: prepared.ExistingDailyPayment,
	})
	if err != nil {
		return nil, err
	}
	result.Elapsed = time.Since(start)
	return result, nil
}

// CachedReport returns the last report computed for a statement.
func (e *Engine) CachedReport(statementID string) (*models.Report, bool) {
	if cached, found := e.reports.Get(statementID); found {
		if report, ok := cached.(*models.Report); ok {
			return report, true
		}
	}
	return nil, false
}

// Invalidate drops a statement's cached report.
func (e *Engine) Invalidate(statementID string) {
	e.reports.Delete(statementID)
}

func (e *Engine) run(ctx context.Context, stmt *models.Statement, prepStats PreprocessingStats, opts *Options) (*Result, error) {
	if err := checkCancelled(ctx, "classification"); err != nil {
		return nil, err
	}
	e.updateProgress("Classifying transactions")
	classified, stats, err := e.classifier.Classify(ctx, stmt.Transactions)
	if err != nil {
		e.logger.WithError(err).WithField("statement_id", stmt.ID).Error("Classification rejected statement")
		return nil, err
	}
	stmt.Transactions = classified

	if err := checkCancelled(ctx, "aggregation"); err != nil {
		return nil, err
	}
	e.updateProgress("Aggregating months")
	aggregated := e.aggregator.Aggregate(classified)

	if err := checkCancelled(ctx, "balance"); err != nil {
		return nil, err
	}
	e.updateProgress("Analyzing balances and NSF events")
	e.balance.Apply(aggregated.Months, classified, stmt.BeginningBalance)
	e.nsf.Apply(aggregated.Months, classified)

	if err := checkCancelled(ctx, "underwriting"); err != nil {
		return nil, err
	}
	e.updateProgress("Computing underwriting metrics")
	report := e.buildReport(stmt, aggregated, stats, prepStats, opts)

	if opts.Persist {
		if err := checkCancelled(ctx, "persist"); err != nil {
			return nil, err
		}
		e.updateProgress("Saving statement")
		stmt.ExistingDailyPayment = copyDecimal(opts.ExistingDailyPayment)
		if e.statements == nil {
			return nil, errors.StorageError(errors.CodeStorageUnavailable, "save statement", nil).
				WithSuggestion("Configure a database to store analysed statements")
		}
		if err := e.statements.SaveStatement(ctx, stmt); err != nil {
			return nil, err
		}
	}

	e.reports.Set(stmt.ID, report, cache.DefaultExpiration)
	e.updateProgress("Completed")

	return &Result{Statement: stmt, Report: report, Stats: stats}, nil
}

func (e *Engine) buildReport(
	stmt *models.Statement,
	aggregated *aggregator.Result,
	stats classifier.Stats,
	prepStats PreprocessingStats,
	opts *Options,
) *models.Report {
	summary := aggregator.Summarize(aggregated.Months)

	exposure := e.underwriting.Exposure(stmt.Transactions, aggregated.Months)
	existing := exposure.ExistingDailyPayment
	if opts.ExistingDailyPayment != nil {
		existing = *opts.ExistingDailyPayment
		exposure.ExistingDailyPayment = existing
	}

	months := aggregated.Months
	if months == nil {
		months = []*models.MonthlyBucket{}
	}

	return &models.Report{
		StatementID:  stmt.ID,
		BusinessName: stmt.BusinessName,
		Months:       months,
		Totals:       summary.Totals,
		Averages:     summary.Averages,
		RawTotals:    aggregated.RawTotals,
		RevenueRatio: summary.RevenueRatio,
		Volatility:   underwriting.Volatility(months),
		MCAExposure:  exposure,
		MCACapacity:  e.underwriting.Capacity(summary.Averages.TrueRevenue, existing),
		DataQuality:  dataQuality(stmt, aggregated, stats, prepStats),
	}
}

func dataQuality(
	stmt *models.Statement,
	aggregated *aggregator.Result,
	stats classifier.Stats,
	prepStats PreprocessingStats,
) models.DataQuality {
	dq := models.DataQuality{
		DuplicatesRemoved:   prepStats.DuplicatesRemoved,
		UndatedTransactions: aggregated.RawTotals.UndatedCount,
		CorrectedTypes:      stats.TypeCorrected,
		NeedsReviewCount:    stats.NeedsReview,
		Warnings:            []string{},
	}

	for _, m := range aggregated.Months {
		if m.BalanceMethod != models.BalanceNoData {
			dq.HasBalanceData = true
		} else {
			dq.Warnings = append(dq.Warnings, fmt.Sprintf("no balance data for %s", m.MonthKey))
		}
	}
	for _, t := range stmt.Transactions {
		if t.IsDebit() && t.DateValid {
			dq.HasNSFData = true
			break
		}
	}

	if len(stmt.Transactions) == 0 {
		dq.Warnings = append(dq.Warnings, "statement has no transactions")
	}
	if !dq.HasNSFData {
		dq.Warnings = append(dq.Warnings, "no dated debits; NSF counts unavailable")
	}
	if dq.UndatedTransactions > 0 {
		dq.Warnings = append(dq.Warnings,
			fmt.Sprintf("%d transactions have no usable date and are excluded from monthly figures", dq.UndatedTransactions))
	}
	if dq.DuplicatesRemoved > 0 {
		dq.Warnings = append(dq.Warnings, fmt.Sprintf("%d repeated statement rows removed", dq.DuplicatesRemoved))
	}
	if stats.LookupFailures > 0 {
		dq.Warnings = append(dq.Warnings,
			fmt.Sprintf("%d pattern lookups failed; static rules were used", stats.LookupFailures))
	}
	return dq
}

func checkCancelled(ctx context.Context, stage string) error {
	if err := ctx.Err(); err != nil {
		return errors.AnalysisError(errors.CodeCancelled, stage, err)
	}
	return nil
}

func (e *Engine) initializeProgress(start time.Time) {
	e.progressMutex.Lock()
	defer e.progressMutex.Unlock()

	e.currentProgress = &Progress{
		TotalSteps: totalSteps,
		StartTime:  start,
	}
}

func (e *Engine) updateProgress(step string) {
	e.progressMutex.Lock()
	defer e.progressMutex.Unlock()

	p := e.currentProgress
	if step == "Completed" {
		p.CompletedSteps = p.TotalSteps
	} else if p.CurrentStep != "" {
		p.CompletedSteps++
	}
	p.CurrentStep = step
	p.ElapsedTime = time.Since(p.StartTime)
	p.PercentComplete = float64(p.CompletedSteps) / float64(p.TotalSteps) * 100

	snapshot := *p
	for _, callback := range e.progressCallbacks {
		callback(&snapshot)
	}
}

func copyDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}
