package renderer

import (
	"fmt"
	"io"
	"strings"

	"github.com/etnz/backtest"
)

// Transaction renders a ledger row to a sentence.
func Transaction(tx backtest.Transaction) string {
	switch tx.Type {
	case backtest.Deposit:
		return fmt.Sprintf("Deposited %s", tx.Amount())
	case backtest.Withdrawal:
		return fmt.Sprintf("Withdrew %s", tx.Amount())
	case backtest.Tax:
		return fmt.Sprintf("Paid %s of taxes", tx.Amount())
	case backtest.Buy:
		return fmt.Sprintf("Bought %d %s at %s for %s", tx.Quantity, tx.Ticker, tx.Price, tx.Amount())
	case backtest.Sell:
		return fmt.Sprintf("Sold %d %s at %s for %s", tx.Quantity, tx.Ticker, tx.Price, tx.Amount())
	case backtest.Dividend:
		return fmt.Sprintf("Dividend of %s for %d %s", tx.Amount(), tx.Quantity, tx.Ticker)
	case backtest.CashSettlement:
		return fmt.Sprintf("Cash settlement of %s for %s", tx.Amount(), tx.Ticker)
	case backtest.Split:
		return fmt.Sprintf("Split %s into %d shares at %s, replacing position %d", tx.Ticker, tx.Quantity, tx.Price, tx.Replaces)
	default:
		return string(tx.Type)
	}
}

// RenderLedger renders ledger rows as one markdown table per portfolio, in
// ledger order. Portfolios without rows are omitted.
func RenderLedger(rows []backtest.Transaction) string {
	var b strings.Builder
	b.WriteString("# Ledger\n")

	var order []backtest.PortfolioID
	byPortfolio := make(map[backtest.PortfolioID][]backtest.Transaction)
	for _, tx := range rows {
		if _, ok := byPortfolio[tx.Portfolio]; !ok {
			order = append(order, tx.Portfolio)
		}
		byPortfolio[tx.Portfolio] = append(byPortfolio[tx.Portfolio], tx)
	}

	for _, id := range order {
		balance := backtest.Money{}
		section := Header(func(w io.Writer) {
			fmt.Fprintf(w, "\n## Portfolio %d\n\n", id)
			fmt.Fprintln(w, "| Date | Type | Position | Description | Cash flow | Balance |")
			fmt.Fprintln(w, "|:---|:---|---:|:---|---:|---:|")
		}).Footer(func(w io.Writer) {
			fmt.Fprintf(w, "| | | | **Total** | | **%s** |\n", balance)
		})
		for _, tx := range byPortfolio[id] {
			section.PrintHeader(&b)
			balance = balance.Add(tx.CashFlow())
			position := ""
			if tx.Position != 0 {
				position = fmt.Sprint(tx.Position)
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
				tx.Date, tx.Type, position, Transaction(tx), tx.CashFlow().SignedString(), balance)
		}
		section.PrintFooter(&b)
	}
	return b.String()
}
