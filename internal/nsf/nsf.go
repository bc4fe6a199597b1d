// Package nsf counts non-sufficient-funds events on a statement. A bounced
// item usually shows up twice, once as the returned item and once as the
// bank's fee; the counter pairs the two so each real event counts once.
package nsf

import (
	"fmt"
	"sort"
	"time"

	"mca-revenue-engine/internal/models"
	"mca-revenue-engine/internal/normalize"
	"mca-revenue-engine/pkg/errors"
	"mca-revenue-engine/pkg/logger"
)

// Kind is the NSF signature a debit matched.
type Kind string

const (
	KindFee          Kind = "nsf_fee"
	KindReturnedItem Kind = "returned_item"
)

// Normalized signatures. Fee patterns are checked first so that
// "returned item fee" counts as a fee; "nsf returned item" is a returned
// item.
var feePatterns = []string{
	"nsf fee",
	"nsf charge",
	"nsf item fee",
	"insufficient funds fee",
	"insufficient funds charge",
	"insufficient fund fee",
	"overdraft fee",
	"overdraft charge",
	"overdraft item fee",
	"od fee",
	"returned item fee",
	"return item fee",
	"returned check fee",
}

var returnedItemPatterns = []string{
	"returned item",
	"return item",
	"returned check",
	"return check",
	"returned ach",
	"ach return",
	"returned payment",
	"item returned",
	"rtn item",
	"returned deposit",
	"return of posted check",
}

// genericFeePatterns catch bare NSF mentions that named neither a fee nor a
// returned item.
var genericFeePatterns = []string{
	"nsf",
	"insufficient funds",
	"non sufficient funds",
	"nonsufficient funds",
	"overdraft item",
}

// Config controls event pairing.
type Config struct {
	// PairWindowBusinessDays is how many business days may separate a fee
	// from the returned item it belongs to. Zero means same day only.
	PairWindowBusinessDays int
}

// DefaultConfig pairs items on the same or the next business day.
func DefaultConfig() *Config {
	return &Config{PairWindowBusinessDays: 1}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.PairWindowBusinessDays < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "nsf_pair_window_business_days",
			fmt.Sprintf("%d", c.PairWindowBusinessDays), fmt.Errorf("cannot be negative"))
	}
	return nil
}

// Event is one real-world NSF occurrence.
type Event struct {
	Date           string `json:"date"`
	FeeID          string `json:"fee_transaction_id,omitempty"`
	ReturnedItemID string `json:"returned_item_transaction_id,omitempty"`
}

// Paired reports whether both a fee and a returned item were seen.
func (e Event) Paired() bool {
	return e.FeeID != "" && e.ReturnedItemID != ""
}

// Result is the output of CountNSFEvents.
type Result struct {
	NSFFeeCount       int     `json:"nsf_fee_count"`
	ReturnedItemCount int     `json:"returned_item_count"`
	UniqueNSFEvents   int     `json:"unique_nsf_events"`
	Events            []Event `json:"events"`
}

// Counter detects and deduplicates NSF events.
type Counter struct {
	config *Config
	logger logger.Logger
}

// NewCounter creates a counter.
func NewCounter(config *Config) (*Counter, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Counter{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("nsf"),
	}, nil
}

// Classify returns the NSF signature of a transaction, if any. Credits never
// match.
func Classify(t *models.Transaction) (Kind, bool) {
	if !t.IsDebit() {
		return "", false
	}
	desc := t.NormalizedDescription
	if desc == "" {
		desc = normalize.Description(t.Description)
	}
	for _, p := range feePatterns {
		if normalize.Contains(desc, p) {
			return KindFee, true
		}
	}
	for _, p := range returnedItemPatterns {
		if normalize.Contains(desc, p) {
			return KindReturnedItem, true
		}
	}
	for _, p := range genericFeePatterns {
		if normalize.Contains(desc, p) {
			return KindFee, true
		}
	}
	return "", false
}

type candidate struct {
	txn    *models.Transaction
	kind   Kind
	paired bool
}

// CountNSFEvents counts fees and returned items and pairs each fee with at
// most one returned item inside the configured window. Unpaired lines each
// count as their own event.
func (c *Counter) CountNSFEvents(txns []*models.Transaction) Result {
	result := Result{Events: []Event{}}

	var fees, returns []*candidate
	for _, t := range txns {
		kind, ok := Classify(t)
		if !ok {
			continue
		}
		cand := &candidate{txn: t, kind: kind}
		if kind == KindFee {
			result.NSFFeeCount++
			fees = append(fees, cand)
		} else {
			result.ReturnedItemCount++
			returns = append(returns, cand)
		}
	}
	sortCandidates(fees)
	sortCandidates(returns)

	for _, fee := range fees {
		event := Event{Date: fee.txn.RawDate, FeeID: fee.txn.ID}
		if fee.txn.DateValid {
			for _, ret := range returns {
				if ret.paired || !ret.txn.DateValid {
					continue
				}
				if c.withinWindow(ret.txn.Date, fee.txn.Date) {
					ret.paired = true
					event.ReturnedItemID = ret.txn.ID
					if ret.txn.Date.Before(fee.txn.Date) {
						event.Date = ret.txn.RawDate
					}
					break
				}
			}
		}
		result.Events = append(result.Events, event)
	}
	for _, ret := range returns {
		if !ret.paired {
			result.Events = append(result.Events, Event{Date: ret.txn.RawDate, ReturnedItemID: ret.txn.ID})
		}
	}

	result.UniqueNSFEvents = len(result.Events)
	if result.UniqueNSFEvents > 0 {
		c.logger.WithFields(logger.Fields{
			"nsf_fees":       result.NSFFeeCount,
			"returned_items": result.ReturnedItemCount,
			"unique_events":  result.UniqueNSFEvents,
		}).Debug("Counted NSF events")
	}
	return result
}

// Apply counts NSF events per month and stores them on the buckets.
func (c *Counter) Apply(months []*models.MonthlyBucket, txns []*models.Transaction) {
	byMonth := make(map[string][]*models.Transaction)
	for _, t := range txns {
		if key := t.MonthKey(); key != "" {
			byMonth[key] = append(byMonth[key], t)
		}
	}
	for _, bucket := range months {
		res := c.CountNSFEvents(byMonth[bucket.MonthKey])
		bucket.NSFCount = res.UniqueNSFEvents
		bucket.NSFFeeCount = res.NSFFeeCount
		bucket.ReturnedItemCount = res.ReturnedItemCount
	}
}

// withinWindow reports whether two dates are no more than the configured
// number of business days apart, in either order.
func (c *Counter) withinWindow(a, b time.Time) bool {
	if a.After(b) {
		a, b = b, a
	}
	if !b.After(a) {
		return true
	}
	current := a
	for i := 0; i < c.config.PairWindowBusinessDays; i++ {
		current = nextBusinessDay(current)
		if !b.After(current) {
			return true
		}
	}
	return false
}

func nextBusinessDay(t time.Time) time.Time {
	next := t.AddDate(0, 0, 1)
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// sortCandidates orders dated candidates first by date, keeping extraction
// order within a day; undated candidates go last.
func sortCandidates(cands []*candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i].txn, cands[j].txn
		if a.DateValid != b.DateValid {
			return a.DateValid
		}
		return a.Date.Before(b.Date)
	})
}
