package csvfile

import (
	"budgetdash/internal/sheets"
)

// EncodedTable is one table rendered to string cells, header first.
type EncodedTable struct {
	Table  string // sheets.Table* name
	File   string
	Header []string
	Rows   [][]string
}

// Encode renders every table of snap with the CSV column layout. Exporters
// that are not file based use it to stay byte-compatible with the files.
func Encode(snap sheets.Snapshot) []EncodedTable {
	return []EncodedTable{
		{Table: sheets.TableExpenses, File: ExpensesFile, Header: clone(expenseHeader), Rows: expenseRows(snap.Expenses)},
		{Table: sheets.TableSubscriptions, File: SubscriptionsFile, Header: clone(subscriptionHeader), Rows: subscriptionRows(snap.Subscriptions)},
		{Table: sheets.TablePurchases, File: PurchasesFile, Header: clone(purchaseHeader), Rows: purchaseRows(snap.Purchases)},
		{Table: sheets.TableIncome, File: IncomeFile, Header: clone(incomeHeader), Rows: incomeRows(snap.Income)},
	}
}

func clone(s []string) []string {
	return append([]string(nil), s...)
}
