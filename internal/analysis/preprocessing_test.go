package analysis

import (
	"context"
	"testing"

	"mca-revenue-engine/internal/models"
	"mca-revenue-engine/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreprocess(t *testing.T) {
	tests := []struct {
		name           string
		config         *PreprocessingConfig
		txns           []*models.Transaction
		wantKept       int
		wantDuplicates int
		wantUndated    int
	}{
		{
			name: "identical rows with balances collapse",
			txns: []*models.Transaction{
				{RawDate: "01/05/2024", Description: "DEPOSIT", Amount: d("10"), Type: models.TransactionTypeCredit, EndingBalance: dp("10")},
				{RawDate: "2024-01-05", Description: " deposit ", Amount: d("10"), Type: models.TransactionTypeCredit, EndingBalance: dp("10")},
			},
			wantKept: 1, wantDuplicates: 1,
		},
		{
			name: "different balances are distinct rows",
			txns: []*models.Transaction{
				{RawDate: "2024-01-05", Description: "DEPOSIT", Amount: d("10"), Type: models.TransactionTypeCredit, EndingBalance: dp("10")},
				{RawDate: "2024-01-05", Description: "DEPOSIT", Amount: d("10"), Type: models.TransactionTypeCredit, EndingBalance: dp("20")},
			},
			wantKept: 2,
		},
		{
			name:   "dedupe disabled",
			config: &PreprocessingConfig{RemoveDuplicates: false, TrimWhitespace: true},
			txns: []*models.Transaction{
				{RawDate: "2024-01-05", Description: "DEPOSIT", Amount: d("10"), Type: models.TransactionTypeCredit, EndingBalance: dp("10")},
				{RawDate: "2024-01-05", Description: "DEPOSIT", Amount: d("10"), Type: models.TransactionTypeCredit, EndingBalance: dp("10")},
			},
			wantKept: 2,
		},
		{
			name: "bad dates are kept",
			txns: []*models.Transaction{
				{RawDate: "32/13/2024", Description: "DEPOSIT", Amount: d("10"), Type: models.TransactionTypeCredit},
				nil,
			},
			wantKept: 1, wantUndated: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, stats := NewDataPreprocessor(tt.config).Preprocess(&models.Statement{ID: "s", Transactions: tt.txns})
			assert.Len(t, out.Transactions, tt.wantKept)
			assert.Equal(t, tt.wantDuplicates, stats.DuplicatesRemoved)
			assert.Equal(t, tt.wantUndated, stats.UndatedRecords)
			assert.Equal(t, len(tt.txns), stats.TotalRecords)
		})
	}
}

func TestPreprocess_KeepsExistingIDsAndInput(t *testing.T) {
	in := &models.Statement{Transactions: []*models.Transaction{
		{ID: "keep-me", RawDate: "2024-01-05", Description: "  DEPOSIT  ", Amount: d("10"), Type: models.TransactionTypeCredit},
		{RawDate: "2024-01-06", Description: "DEPOSIT", Amount: d("10"), Type: models.TransactionTypeCredit},
	}}

	out, stats := NewDataPreprocessor(nil).Preprocess(in)
	require.Len(t, out.Transactions, 2)
	assert.Equal(t, "keep-me", out.Transactions[0].ID)
	assert.NotEmpty(t, out.Transactions[1].ID)
	assert.Equal(t, 1, stats.IDsAssigned)
	assert.Equal(t, "DEPOSIT", out.Transactions[0].Description)
	assert.True(t, out.Transactions[0].DateValid)

	assert.Empty(t, in.ID)
	assert.Equal(t, "  DEPOSIT  ", in.Transactions[0].Description)
	assert.False(t, in.Transactions[0].DateValid)
}

func TestMemoryStatementRepository(t *testing.T) {
	repo := NewMemoryStatementRepository()
	ctx := context.Background()

	require.NoError(t, repo.SaveStatement(ctx, &models.Statement{ID: "b", Transactions: []*models.Transaction{
		{ID: "t1", NormalizedDescription: "customer deposit ref"},
	}}))
	require.NoError(t, repo.SaveStatement(ctx, &models.Statement{ID: "a", Transactions: []*models.Transaction{
		{ID: "t2", NormalizedDescription: "customer deposits"},
	}}))

	ids, err := repo.StatementIDsMatching(ctx, "customer deposit")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids)

	all, err := repo.ListStatementIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, all)

	found, err := repo.FindTransaction(ctx, "", "t2")
	require.NoError(t, err)
	found.NormalizedDescription = "mutated"
	again, err := repo.FindTransaction(ctx, "", "t2")
	require.NoError(t, err)
	assert.Equal(t, "customer deposits", again.NormalizedDescription)

	_, err = repo.FindTransaction(ctx, "", "missing")
	assert.True(t, errors.HasCode(err, errors.CodeRecordNotFound))
	_, err = repo.LoadStatement(ctx, "missing")
	assert.True(t, errors.HasCode(err, errors.CodeRecordNotFound))
}

func TestMemoryStatementRepository_SharedTransactionIDs(t *testing.T) {
	repo := NewMemoryStatementRepository()
	ctx := context.Background()

	for _, id := range []string{"jan", "feb"} {
		require.NoError(t, repo.SaveStatement(ctx, &models.Statement{ID: id, Transactions: []*models.Transaction{
			{ID: "t1", Description: "DEPOSIT " + id},
		}}))
	}

	feb, err := repo.FindTransaction(ctx, "feb", "t1")
	require.NoError(t, err)
	assert.Equal(t, "feb", feb.StatementID)
	assert.Equal(t, "DEPOSIT feb", feb.Description)

	_, err = repo.FindTransaction(ctx, "", "t1")
	assert.True(t, errors.HasCode(err, errors.CodeAmbiguousID))

	_, err = repo.FindTransaction(ctx, "mar", "t1")
	assert.True(t, errors.HasCode(err, errors.CodeRecordNotFound))
}

func TestPreprocess_ReissuesRepeatedIDs(t *testing.T) {
	stmt := &models.Statement{ID: "s", Transactions: []*models.Transaction{
		{ID: "row-1", RawDate: "2024-01-02", Description: "DEPOSIT A"},
		{ID: "row-1", RawDate: "2024-01-03", Description: "DEPOSIT B"},
	}}

	out, stats := NewDataPreprocessor(nil).Preprocess(stmt)
	require.Len(t, out.Transactions, 2)
	assert.Equal(t, "row-1", out.Transactions[0].ID)
	assert.NotEqual(t, "row-1", out.Transactions[1].ID)
	assert.NotEmpty(t, out.Transactions[1].ID)
	assert.Equal(t, 1, stats.IDsAssigned)
}
