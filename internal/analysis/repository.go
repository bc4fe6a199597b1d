package analysis

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"mca-revenue-engine/internal/models"
	"mca-revenue-engine/internal/normalize"
	"mca-revenue-engine/pkg/errors"
)

// StatementRepository persists analysed statements so that corrections can
// find and reclassify history.
type StatementRepository interface {
	SaveStatement(ctx context.Context, stmt *models.Statement) error
	LoadStatement(ctx context.Context, id string) (*models.Statement, error)
	// FindTransaction returns transaction id of statement statementID.
	// Extractors number rows per statement, so with an empty statementID
	// the ID must be unique across every stored statement.
	FindTransaction(ctx context.Context, statementID, id string) (*models.Transaction, error)
	// StatementIDsMatching returns, in ID order, statements holding a
	// transaction whose normalized description contains pattern on token
	// boundaries.
	StatementIDsMatching(ctx context.Context, pattern string) ([]string, error)
	ListStatementIDs(ctx context.Context) ([]string, error)
}

// MemoryStatementRepository is an in-process StatementRepository.
type MemoryStatementRepository struct {
	mu         sync.RWMutex
	statements map[string]*models.Statement
}

// NewMemoryStatementRepository returns an empty repository.
func NewMemoryStatementRepository() *MemoryStatementRepository {
	return &MemoryStatementRepository{statements: make(map[string]*models.Statement)}
}

// SaveStatement stores a copy of stmt, replacing any earlier version.
func (r *MemoryStatementRepository) SaveStatement(ctx context.Context, stmt *models.Statement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statements[stmt.ID] = cloneStatement(stmt)
	return nil
}

// LoadStatement returns a copy of the stored statement.
func (r *MemoryStatementRepository) LoadStatement(ctx context.Context, id string) (*models.Statement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stmt, ok := r.statements[id]
	if !ok {
		return nil, errors.StorageError(errors.CodeRecordNotFound, "load statement", nil).WithContext("statement_id", id)
	}
	return cloneStatement(stmt), nil
}

// FindTransaction returns a copy of a stored transaction.
func (r *MemoryStatementRepository) FindTransaction(ctx context.Context, statementID, id string) (*models.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var found []*models.Transaction
	for stmtID, stmt := range r.statements {
		if statementID != "" && stmtID != statementID {
			continue
		}
		for _, t := range stmt.Transactions {
			if t.ID == id {
				c := t.Clone()
				c.StatementID = stmtID
				found = append(found, c)
			}
		}
	}
	return ResolveTransaction(found, statementID, id)
}

// ResolveTransaction turns the candidates of a transaction lookup into a
// single result, a not-found error or an ambiguity error naming the
// statements that share the ID.
func ResolveTransaction(found []*models.Transaction, statementID, id string) (*models.Transaction, error) {
	switch len(found) {
	case 1:
		return found[0], nil
	case 0:
		err := errors.StorageError(errors.CodeRecordNotFound, "find transaction", nil).WithContext("transaction_id", id)
		if statementID != "" {
			err = err.WithContext("statement_id", statementID)
		}
		return nil, err
	default:
		ids := make([]string, 0, len(found))
		for _, t := range found {
			ids = append(ids, t.StatementID)
		}
		sort.Strings(ids)
		return nil, errors.New(errors.CategoryInput, errors.CodeAmbiguousID,
			fmt.Sprintf("transaction '%s' exists in more than one statement", id)).
			WithContext("transaction_id", id).
			WithContext("statement_ids", strings.Join(ids, ", ")).
			WithSuggestion("Name the statement the transaction belongs to")
	}
}

// StatementIDsMatching implements StatementRepository.
func (r *MemoryStatementRepository) StatementIDsMatching(ctx context.Context, pattern string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for id, stmt := range r.statements {
		for _, t := range stmt.Transactions {
			if normalize.Contains(t.NormalizedDescription, pattern) {
				ids = append(ids, id)
				break
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ListStatementIDs implements StatementRepository.
func (r *MemoryStatementRepository) ListStatementIDs(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.statements))
	for id := range r.statements {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func cloneStatement(stmt *models.Statement) *models.Statement {
	c := *stmt
	c.BeginningBalance = copyDecimal(stmt.BeginningBalance)
	c.ExistingDailyPayment = copyDecimal(stmt.ExistingDailyPayment)
	c.Transactions = make([]*models.Transaction, len(stmt.Transactions))
	for i, t := range stmt.Transactions {
		if t != nil {
			c.Transactions[i] = t.Clone()
		}
	}
	return &c
}
