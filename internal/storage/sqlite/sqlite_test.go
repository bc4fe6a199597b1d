package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"mca-revenue-engine/internal/analysis"
	"mca-revenue-engine/internal/models"
	"mca-revenue-engine/internal/normalize"
	"mca-revenue-engine/internal/patterns"
	"mca-revenue-engine/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.db")

	first, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, path, second.Path())
	require.NoError(t, second.Close())
}

func TestPatternRepository_UpsertOutcomes(t *testing.T) {
	repo := NewPatternRepository(openTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	auto := &models.PatternRecord{
		ID:                "p1",
		Pattern:           "customer deposit",
		Kind:              models.KindRevenueClassification,
		Value:             models.PatternValue{Classification: models.RevenueTrue},
		NormalizerVersion: normalize.Version,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	outcome, err := repo.Upsert(ctx, auto)
	require.NoError(t, err)
	assert.Equal(t, patterns.Inserted, outcome)

	manual := auto.Clone()
	manual.ID = "p2"
	manual.IsManualOverride = true
	manual.Value = models.PatternValue{Classification: models.RevenueAdjustment, Reason: "owner"}
	outcome, err = repo.Upsert(ctx, manual)
	require.NoError(t, err)
	assert.Equal(t, patterns.Updated, outcome)

	relearn := auto.Clone()
	relearn.ID = "p3"
	outcome, err = repo.Upsert(ctx, relearn)
	require.NoError(t, err)
	assert.Equal(t, patterns.Skipped, outcome)

	stored, err := repo.Get(ctx, models.KindRevenueClassification, "customer deposit")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "p1", stored.ID)
	assert.True(t, stored.IsManualOverride)
	assert.Equal(t, models.RevenueAdjustment, stored.Value.Classification)
	assert.Equal(t, "owner", stored.Value.Reason)
	assert.Equal(t, int64(1), stored.UsageCount)
}

func TestPatternRepository_MatchIsTokenBounded(t *testing.T) {
	repo := NewPatternRepository(openTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	for _, p := range []string{"acme receivables", "acme receivables llc", "receivables"} {
		require.NoError(t, repo.Save(ctx, &models.PatternRecord{
			ID:        p,
			Pattern:   p,
			Kind:      models.KindMCALender,
			Value:     models.PatternValue{LenderName: p},
			CreatedAt: now,
			UpdatedAt: now,
		}))
	}

	got, err := repo.Match(ctx, models.KindMCALender, "ach acme receivables llc")
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = repo.Match(ctx, models.KindMCALender, "acme receivablesllc")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = repo.Match(ctx, models.KindRevenueClassification, "ach acme receivables llc")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPatternRepository_WithStore(t *testing.T) {
	store, err := patterns.NewStore(NewPatternRepository(openTestDB(t)), patterns.DefaultConfig())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.RecordCorrection(ctx, patterns.Correction{
		Description: "ACME RECEIVABLES LLC",
		Kind:        models.KindMCALender,
		Value:       models.PatternValue{LenderID: "acme", LenderName: "Acme"},
		IsManual:    true,
	})
	require.NoError(t, err)

	match, found, err := store.LookupMCA(ctx, "ACH DEBIT ACME RECEIVABLES LLC 00991122")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Acme", match.LenderName)
	assert.Equal(t, patterns.MatchLearned, match.Source)

	records, err := store.List(ctx, models.KindMCALender)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(1), records[0].UsageCount)

	n, err := store.Clear(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	err = store.Reset(ctx, models.KindMCALender, "ACME RECEIVABLES LLC")
	assert.True(t, errors.HasCode(err, errors.CodePatternNotFound))
}

func TestPatternRepository_ConcurrentWritesKeepManualFlag(t *testing.T) {
	store, err := patterns.NewStore(NewPatternRepository(openTestDB(t)), patterns.DefaultConfig())
	require.NoError(t, err)
	ctx := context.Background()

	correction := patterns.Correction{
		Description: "TRANSFER FROM SAVINGS",
		Kind:        models.KindRevenueClassification,
		Value:       models.PatternValue{Classification: models.RevenueAdjustment},
		IsManual:    true,
	}
	_, err = store.RecordCorrection(ctx, correction)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			auto := correction
			auto.IsManual = false
			auto.Value = models.PatternValue{Classification: models.RevenueTrue}
			_, _ = store.RecordCorrection(ctx, auto)
		}()
	}
	wg.Wait()

	match, found, err := store.LookupRevenueClassification(ctx, "transfer from savings")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, models.RevenueAdjustment, match.Classification)
	assert.True(t, match.Manual)
}

func testStatement() *models.Statement {
	opening := decimal.RequireFromString("1200.50")
	balance := decimal.RequireFromString("700.50")
	return &models.Statement{
		ID:               "stmt-1",
		BusinessName:     "Joe's Diner",
		BeginningBalance: &opening,
		Transactions: []*models.Transaction{
			{
				ID:                    "t1",
				StatementID:           "stmt-1",
				Sequence:              0,
				RawDate:               "01/05/2024",
				Date:                  time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
				DateValid:             true,
				Description:           "ONDECK CAPITAL PMT",
				NormalizedDescription: "ondeck capital pmt",
				Amount:                decimal.RequireFromString("500"),
				Type:                  models.TransactionTypeDebit,
				EndingBalance:         &balance,
				IsMCAPayment:          true,
				MCALenderID:           "ondeck",
				MCALenderName:         "OnDeck Capital",
			},
			{
				ID:                    "t2",
				StatementID:           "stmt-1",
				Sequence:              1,
				RawDate:               "garbage",
				Description:           "CUSTOMER DEPOSIT",
				NormalizedDescription: "customer deposit",
				Amount:                decimal.RequireFromString("10000"),
				Type:                  models.TransactionTypeCredit,
				Classification:        models.RevenueTrue,
				ClassificationSource:  models.SourceDefault,
				Confidence:            0.5,
			},
		},
	}
}

func TestStatementRepository_RoundTrip(t *testing.T) {
	repo := NewStatementRepository(openTestDB(t))
	ctx := context.Background()

	stmt := testStatement()
	require.NoError(t, repo.SaveStatement(ctx, stmt))

	loaded, err := repo.LoadStatement(ctx, "stmt-1")
	require.NoError(t, err)
	assert.Equal(t, "Joe's Diner", loaded.BusinessName)
	require.NotNil(t, loaded.BeginningBalance)
	assert.True(t, loaded.BeginningBalance.Equal(*stmt.BeginningBalance))
	require.Len(t, loaded.Transactions, 2)

	debit := loaded.Transactions[0]
	assert.True(t, debit.DateValid)
	assert.True(t, debit.Date.Equal(stmt.Transactions[0].Date))
	assert.True(t, debit.Amount.Equal(decimal.NewFromInt(500)))
	require.NotNil(t, debit.EndingBalance)
	assert.True(t, debit.IsMCAPayment)
	assert.Equal(t, "OnDeck Capital", debit.MCALenderName)

	credit := loaded.Transactions[1]
	assert.False(t, credit.DateValid)
	assert.Equal(t, "garbage", credit.RawDate)
	assert.Nil(t, credit.EndingBalance)
	assert.Equal(t, models.RevenueTrue, credit.Classification)
	assert.Equal(t, 0.5, credit.Confidence)
	assert.Nil(t, loaded.ExistingDailyPayment)

	payment := decimal.RequireFromString("125.50")
	stmt.ExistingDailyPayment = &payment
	require.NoError(t, repo.SaveStatement(ctx, stmt))
	loaded, err = repo.LoadStatement(ctx, "stmt-1")
	require.NoError(t, err)
	require.NotNil(t, loaded.ExistingDailyPayment)
	assert.True(t, loaded.ExistingDailyPayment.Equal(payment))
}

func TestStatementRepository_SaveReplacesTransactions(t *testing.T) {
	repo := NewStatementRepository(openTestDB(t))
	ctx := context.Background()

	stmt := testStatement()
	require.NoError(t, repo.SaveStatement(ctx, stmt))

	stmt.Transactions = stmt.Transactions[1:]
	stmt.Transactions[0].IsAdjustment = true
	stmt.Transactions[0].Classification = models.RevenueAdjustment
	require.NoError(t, repo.SaveStatement(ctx, stmt))

	loaded, err := repo.LoadStatement(ctx, "stmt-1")
	require.NoError(t, err)
	require.Len(t, loaded.Transactions, 1)
	assert.True(t, loaded.Transactions[0].IsAdjustment)

	_, err = repo.FindTransaction(ctx, "", "t1")
	assert.True(t, errors.HasCode(err, errors.CodeRecordNotFound))

	found, err := repo.FindTransaction(ctx, "", "t2")
	require.NoError(t, err)
	assert.Equal(t, "stmt-1", found.StatementID)
}

func TestStatementRepository_Matching(t *testing.T) {
	repo := NewStatementRepository(openTestDB(t))
	ctx := context.Background()

	first := testStatement()
	require.NoError(t, repo.SaveStatement(ctx, first))

	second := testStatement()
	second.ID = "stmt-2"
	for i, tx := range second.Transactions {
		tx.ID = second.ID + "-" + tx.ID
		tx.StatementID = second.ID
		second.Transactions[i] = tx
	}
	second.Transactions = second.Transactions[:1]
	require.NoError(t, repo.SaveStatement(ctx, second))

	ids, err := repo.StatementIDsMatching(ctx, "customer deposit")
	require.NoError(t, err)
	assert.Equal(t, []string{"stmt-1"}, ids)

	ids, err = repo.StatementIDsMatching(ctx, "ondeck capital")
	require.NoError(t, err)
	assert.Equal(t, []string{"stmt-1", "stmt-2"}, ids)

	all, err := repo.ListStatementIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"stmt-1", "stmt-2"}, all)

	_, err = repo.LoadStatement(ctx, "missing")
	assert.True(t, errors.HasCode(err, errors.CodeRecordNotFound))
}

func TestStatementRepository_SharedTransactionIDs(t *testing.T) {
	repo := NewStatementRepository(openTestDB(t))
	engine, err := analysis.NewEngine(nil, repo, nil)
	require.NoError(t, err)
	ctx := context.Background()

	// Extractors number rows per statement, so both statements carry t1.
	for _, month := range []string{"jan", "feb"} {
		stmt := &models.Statement{ID: "stmt-" + month, Transactions: []*models.Transaction{
			{ID: "t1", RawDate: map[string]string{"jan": "2024-01-05", "feb": "2024-02-05"}[month],
				Description: "CUSTOMER DEPOSIT " + month, Amount: decimal.NewFromInt(1000), Type: models.TransactionTypeCredit},
		}}
		_, err := engine.Analyze(ctx, stmt, &analysis.Options{Persist: true})
		require.NoError(t, err, month)
	}

	all, err := repo.ListStatementIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"stmt-feb", "stmt-jan"}, all)

	feb, err := repo.FindTransaction(ctx, "stmt-feb", "t1")
	require.NoError(t, err)
	assert.Equal(t, "stmt-feb", feb.StatementID)
	assert.Equal(t, "CUSTOMER DEPOSIT feb", feb.Description)

	_, err = repo.FindTransaction(ctx, "", "t1")
	assert.True(t, errors.HasCode(err, errors.CodeAmbiguousID))

	_, err = repo.FindTransaction(ctx, "stmt-mar", "t1")
	assert.True(t, errors.HasCode(err, errors.CodeRecordNotFound))

	// Re-saving one statement leaves the other's rows alone.
	jan, err := repo.LoadStatement(ctx, "stmt-jan")
	require.NoError(t, err)
	require.NoError(t, repo.SaveStatement(ctx, jan))
	_, err = repo.FindTransaction(ctx, "stmt-feb", "t1")
	require.NoError(t, err)
}
