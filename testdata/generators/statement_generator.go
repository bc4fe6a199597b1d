package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StatementGenerator generates synthetic extractor output for one business
// account: card settlements and customer deposits, the occasional transfer,
// refund or loan credit, daily MCA debits, operating expenses and NSF fees.
type StatementGenerator struct {
	StartDate        time.Time
	Months           int
	DailyRevenue     decimal.Decimal
	BeginningBalance decimal.Decimal
	Lenders          []string
	DailyPayment     decimal.Decimal
	NSFRate          float64
	DuplicateRate    float64
	Format           string // json or csv
	rng              *rand.Rand
}

// TransactionTemplate is one generated row in extractor form.
type TransactionTemplate struct {
	ID            string          `json:"id"`
	Date          string          `json:"date"`
	Description   string          `json:"description"`
	Amount        decimal.Decimal `json:"amount"`
	Type          string          `json:"type"`
	EndingBalance decimal.Decimal `json:"ending_balance"`
}

// StatementTemplate is the JSON statement document.
type StatementTemplate struct {
	StatementID      string                 `json:"statement_id"`
	BusinessName     string                 `json:"business_name"`
	BeginningBalance decimal.Decimal        `json:"beginning_balance"`
	Transactions     []*TransactionTemplate `json:"transactions"`
}

var revenueDescriptions = []string{
	"SQUARE INC DEPOSIT",
	"STRIPE PAYOUT",
	"CARD SETTLEMENT VISA MC",
	"CUSTOMER DEPOSIT",
	"MOBILE CHECK DEPOSIT",
	"DOORDASH MERCHANT PAYOUT",
}

var adjustmentDescriptions = []string{
	"ONLINE TRANSFER FROM SAVINGS",
	"MERCHANT REFUND",
	"SBA LOAN PROCEEDS",
	"INTEREST PAYMENT",
}

var expenseDescriptions = []string{
	"PAYROLL ADP",
	"RENT PAYMENT",
	"SYSCO FOOD SERVICES",
	"ELECTRIC UTILITY",
	"POS PURCHASE HOME DEPOT",
}

func main() {
	var (
		output       = flag.String("output", "generated_statement.json", "Output file path")
		format       = flag.String("format", "json", "Output format: json or csv")
		startDate    = flag.String("start-date", "2024-01-01", "First statement day (YYYY-MM-DD)")
		months       = flag.Int("months", 3, "Number of months to generate")
		dailyRevenue = flag.Float64("daily-revenue", 2500, "Average daily true revenue")
		balance      = flag.Float64("beginning-balance", 5000, "Beginning balance")
		lenders      = flag.String("lenders", "ONDECK CAPITAL", "Comma-separated MCA lenders debiting the account")
		payment      = flag.Float64("daily-payment", 150, "Daily debit per MCA lender")
		nsfRate      = flag.Float64("nsf-rate", 0.02, "Chance of an NSF fee on a business day")
		dupRate      = flag.Float64("duplicate-rate", 0.0, "Chance a row is repeated as on a multi-page extract")
		seed         = flag.Int64("seed", time.Now().UnixNano(), "Random seed for reproducible generation")
	)
	flag.Parse()

	start, err := time.Parse("2006-01-02", *startDate)
	if err != nil {
		log.Fatalf("Invalid start date: %v", err)
	}

	var lenderNames []string
	for _, name := range strings.Split(*lenders, ",") {
		if name = strings.TrimSpace(name); name != "" {
			lenderNames = append(lenderNames, name)
		}
	}

	generator := &StatementGenerator{
		StartDate:        start,
		Months:           *months,
		DailyRevenue:     decimal.NewFromFloat(*dailyRevenue),
		BeginningBalance: decimal.NewFromFloat(*balance),
		Lenders:          lenderNames,
		DailyPayment:     decimal.NewFromFloat(*payment),
		NSFRate:          *nsfRate,
		DuplicateRate:    *dupRate,
		Format:           *format,
		rng:              rand.New(rand.NewSource(*seed)),
	}

	statement := generator.Generate()

	switch generator.Format {
	case "json":
		err = generator.WriteJSON(*output, statement)
	case "csv":
		err = generator.WriteCSV(*output, statement)
	default:
		err = fmt.Errorf("unsupported format: %s", generator.Format)
	}
	if err != nil {
		log.Fatalf("Failed to write statement: %v", err)
	}

	fmt.Printf("Generated %d transactions in %s\n", len(statement.Transactions), *output)
	fmt.Printf("Period: %s for %d month(s)\n", start.Format("2006-01-02"), *months)
	fmt.Printf("MCA lenders: %s\n", strings.Join(lenderNames, ", "))
	fmt.Printf("Seed used: %d\n", *seed)
}

// Generate builds the statement day by day, keeping a running balance.
func (sg *StatementGenerator) Generate() *StatementTemplate {
	stmt := &StatementTemplate{
		StatementID:      uuid.NewString(),
		BusinessName:     "Synthetic Merchant LLC",
		BeginningBalance: sg.BeginningBalance,
	}

	balance := sg.BeginningBalance
	end := sg.StartDate.AddDate(0, sg.Months, 0)

	add := func(day time.Time, desc string, amount decimal.Decimal, txType string) {
		amount = amount.Round(2)
		if txType == "credit" {
			balance = balance.Add(amount)
		} else {
			balance = balance.Sub(amount)
		}
		row := &TransactionTemplate{
			ID:            uuid.NewString(),
			Date:          day.Format("2006-01-02"),
			Description:   desc,
			Amount:        amount,
			Type:          txType,
			EndingBalance: balance,
		}
		stmt.Transactions = append(stmt.Transactions, row)

		if sg.DuplicateRate > 0 && sg.rng.Float64() < sg.DuplicateRate {
			dup := *row
			dup.ID = ""
			stmt.Transactions = append(stmt.Transactions, &dup)
		}
	}

	for day := sg.StartDate; day.Before(end); day = day.AddDate(0, 0, 1) {
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			continue
		}

		// Revenue varies +/-40% around the daily average
		factor := decimal.NewFromFloat(0.6 + sg.rng.Float64()*0.8)
		add(day, pick(sg.rng, revenueDescriptions), sg.DailyRevenue.Mul(factor), "credit")

		if sg.rng.Float64() < 0.05 {
			amount := sg.DailyRevenue.Mul(decimal.NewFromFloat(1 + sg.rng.Float64()*3))
			add(day, pick(sg.rng, adjustmentDescriptions), amount, "credit")
		}

		for _, lender := range sg.Lenders {
			add(day, fmt.Sprintf("%s ACH DEBIT", lender), sg.DailyPayment, "debit")
		}

		expense := sg.DailyRevenue.Mul(decimal.NewFromFloat(0.4 + sg.rng.Float64()*0.6))
		add(day, pick(sg.rng, expenseDescriptions), expense, "debit")

		if balance.IsNegative() || sg.rng.Float64() < sg.NSFRate {
			add(day, "NSF FEE", decimal.NewFromInt(35), "debit")
		}
	}

	return stmt
}

func pick(rng *rand.Rand, options []string) string {
	return options[rng.Intn(len(options))]
}

// WriteJSON writes the statement object form.
func (sg *StatementGenerator) WriteJSON(filename string, stmt *StatementTemplate) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(stmt)
}

// WriteCSV writes one row per transaction with signed amounts and no type
// column, the way most bank exports look.
func (sg *StatementGenerator) WriteCSV(filename string, stmt *StatementTemplate) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"Transaction ID", "Posted Date", "Description", "Amount", "Balance"}); err != nil {
		return err
	}

	for _, t := range stmt.Transactions {
		amount := t.Amount
		if t.Type == "debit" {
			amount = amount.Neg()
		}
		record := []string{
			t.ID,
			t.Date,
			t.Description,
			amount.StringFixed(2),
			t.EndingBalance.StringFixed(2),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}
