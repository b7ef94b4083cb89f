// Package response decodes intent resolution results into a closed set of
// payload variants and renders them into presentation-neutral views.
package response

// Result is one decoded answer from the intent resolution service. Each
// dispatch replaces the previous Result wholesale.
type Result struct {
	Intent       string            `json:"intent"`
	Params       map[string]string `json:"params,omitempty"`
	Reply        string            `json:"reply,omitempty"`
	Data         Payload           `json:"-"`
	Fallback     bool              `json:"fallback"`
	ProcessingMS int64             `json:"processingMs"`
}

// Kind names a payload variant.
type Kind string

const (
	KindNone          Kind = "none"
	KindExpenseList   Kind = "expense_list"
	KindStatusSummary Kind = "status_summary"
	KindBudgetList    Kind = "budget_list"
	KindPrefill       Kind = "prefill"
	KindInsight       Kind = "insight"
	KindSingleEntity  Kind = "single_entity"
	KindError         Kind = "error"
)

// Payload is the closed set of result shapes. Only types in this package
// implement it; Visit dispatches to the matching Visitor method.
type Payload interface {
	Kind() Kind
	Visit(v Visitor)
	sealed()
}

// Visitor has one method per payload variant. Adding a variant adds a method
// here, so every renderer must handle it before the build succeeds.
type Visitor interface {
	ExpenseList(p ExpenseList)
	StatusSummary(p StatusSummary)
	BudgetList(p BudgetList)
	Prefill(p PrefillAction)
	Insight(p Insight)
	SingleEntity(p SingleEntity)
	ErrorPayload(p ErrorPayload)
	None()
}

// Expense is one row of an expense list.
type Expense struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Category string  `json:"category,omitempty"`
	Status   string  `json:"status,omitempty"`
	Amount   float64 `json:"amount"`
}

type ExpenseList struct {
	Items []Expense `json:"items"`
}

type StatusSummary struct {
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
}

type Budget struct {
	TeamName string  `json:"teamName"`
	Spent    float64 `json:"spent"`
	Budget   float64 `json:"budget"`
	Exceeded bool    `json:"exceeded"`
}

type BudgetList struct {
	Items []Budget `json:"items"`
}

// PrefillAction asks the caller to populate an expense form. The assistant
// only surfaces the directive.
type PrefillAction struct {
	Action   string  `json:"action"`
	Title    string  `json:"title,omitempty"`
	Amount   float64 `json:"amount,omitempty"`
	Category string  `json:"category,omitempty"`
	Date     string  `json:"date,omitempty"`
}

type Insight struct {
	Text string `json:"insightText"`
}

type SingleEntity struct {
	ID     string  `json:"id"`
	Title  string  `json:"title"`
	Status string  `json:"status,omitempty"`
	Amount float64 `json:"amount"`
}

type ErrorPayload struct {
	Message string `json:"error"`
}

type None struct{}

func (ExpenseList) Kind() Kind   { return KindExpenseList }
func (StatusSummary) Kind() Kind { return KindStatusSummary }
func (BudgetList) Kind() Kind    { return KindBudgetList }
func (PrefillAction) Kind() Kind { return KindPrefill }
func (Insight) Kind() Kind       { return KindInsight }
func (SingleEntity) Kind() Kind  { return KindSingleEntity }
func (ErrorPayload) Kind() Kind  { return KindError }
func (None) Kind() Kind          { return KindNone }

func (p ExpenseList) Visit(v Visitor)   { v.ExpenseList(p) }
func (p StatusSummary) Visit(v Visitor) { v.StatusSummary(p) }
func (p BudgetList) Visit(v Visitor)    { v.BudgetList(p) }
func (p PrefillAction) Visit(v Visitor) { v.Prefill(p) }
func (p Insight) Visit(v Visitor)       { v.Insight(p) }
func (p SingleEntity) Visit(v Visitor)  { v.SingleEntity(p) }
func (p ErrorPayload) Visit(v Visitor)  { v.ErrorPayload(p) }
func (None) Visit(v Visitor)            { v.None() }

func (ExpenseList) sealed()   {}
func (StatusSummary) sealed() {}
func (BudgetList) sealed()    {}
func (PrefillAction) sealed() {}
func (Insight) sealed()       {}
func (SingleEntity) sealed()  {}
func (ErrorPayload) sealed()  {}
func (None) sealed()          {}
