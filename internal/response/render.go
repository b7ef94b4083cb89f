package response

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// FallbackLabel flags results produced by the keyword fallback path.
const FallbackLabel = "Offline mode"

// RenderOptions tune Render.
type RenderOptions struct {
	DisplayCap int
	Currency   string
}

// DefaultRenderOptions matches the assistant defaults.
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{DisplayCap: 5, Currency: "₹"}
}

// View is a presentation-neutral rendering of a Result.
type View struct {
	Intent      string `json:"intent"`
	IntentLabel string `json:"intentLabel"`
	Fallback    bool   `json:"fallback"`
	Badge       string `json:"badge,omitempty"`
	Timing      string `json:"timing"`
	Reply       string `json:"reply,omitempty"`
	Body        *Body  `json:"body,omitempty"`
}

// Body renders one payload variant. A nil Body renders nothing.
type Body struct {
	Kind    Kind   `json:"kind"`
	Heading string `json:"heading,omitempty"`
	Rows    []Row  `json:"rows,omitempty"`
	More    string `json:"more,omitempty"`
	Text    string `json:"text,omitempty"`
	Hint    string `json:"hint,omitempty"`
	Warning string `json:"warning,omitempty"`
}

// Row is one line of a list-style body. Meter rows carry a 0..100 percentage.
type Row struct {
	Cells   []string `json:"cells"`
	Meter   bool     `json:"meter,omitempty"`
	Percent int      `json:"percent,omitempty"`
	Flagged bool     `json:"flagged,omitempty"`
}

// Render maps a Result to a View. It is pure.
func Render(r Result, opts RenderOptions) View {
	v := View{
		Intent:      r.Intent,
		IntentLabel: FormatIntent(r.Intent),
		Fallback:    r.Fallback,
		Timing:      fmt.Sprintf("%dms", r.ProcessingMS),
		Reply:       r.Reply,
		Body:        RenderPayload(r.Data, opts),
	}
	if r.Fallback {
		v.Badge = FallbackLabel
	}
	return v
}

// RenderPayload renders a single payload; None and nil yield nil.
func RenderPayload(p Payload, opts RenderOptions) *Body {
	if p == nil {
		return nil
	}
	if opts.DisplayCap <= 0 {
		opts.DisplayCap = DefaultRenderOptions().DisplayCap
	}
	r := &renderer{opts: opts}
	p.Visit(r)
	return r.body
}

type renderer struct {
	opts RenderOptions
	body *Body
}

func (r *renderer) ExpenseList(p ExpenseList) {
	b := &Body{Kind: KindExpenseList}
	for i, e := range p.Items {
		if i == r.opts.DisplayCap {
			break
		}
		category := e.Category
		if category == "" {
			category = "—"
		}
		b.Rows = append(b.Rows, Row{Cells: []string{e.Title, category, e.Status, FormatMoney(e.Amount, r.opts.Currency)}})
	}
	if extra := len(p.Items) - r.opts.DisplayCap; extra > 0 {
		b.More = fmt.Sprintf("+%d more — use the filters to see all.", extra)
	}
	r.body = b
}

func (r *renderer) StatusSummary(p StatusSummary) {
	r.body = &Body{Kind: KindStatusSummary, Rows: []Row{
		{Cells: []string{"Pending", strconv.Itoa(p.Pending)}},
		{Cells: []string{"Approved", strconv.Itoa(p.Approved)}},
		{Cells: []string{"Rejected", strconv.Itoa(p.Rejected)}},
	}}
}

func (r *renderer) BudgetList(p BudgetList) {
	b := &Body{Kind: KindBudgetList}
	for i, item := range p.Items {
		if i == r.opts.DisplayCap {
			break
		}
		pct := BudgetPercent(item.Spent, item.Budget)
		b.Rows = append(b.Rows, Row{
			Cells: []string{
				item.TeamName,
				fmt.Sprintf("%d%%", pct),
				FormatMoney(item.Spent, r.opts.Currency) + " spent",
				"/ " + FormatMoney(item.Budget, r.opts.Currency),
			},
			Meter:   true,
			Percent: pct,
			Flagged: item.Exceeded,
		})
	}
	r.body = b
}

func (r *renderer) Prefill(p PrefillAction) {
	b := &Body{Kind: KindPrefill, Heading: "Form pre-filled with:", Hint: "Review and submit the expense form."}
	if p.Title != "" {
		b.Rows = append(b.Rows, Row{Cells: []string{"Title", p.Title}})
	}
	if p.Amount != 0 {
		b.Rows = append(b.Rows, Row{Cells: []string{"Amount", FormatMoney(p.Amount, r.opts.Currency)}})
	}
	if p.Category != "" {
		b.Rows = append(b.Rows, Row{Cells: []string{"Category", p.Category}})
	}
	if p.Date != "" {
		b.Rows = append(b.Rows, Row{Cells: []string{"Date", p.Date}})
	}
	r.body = b
}

func (r *renderer) Insight(p Insight) {
	r.body = &Body{Kind: KindInsight, Text: p.Text}
}

func (r *renderer) SingleEntity(p SingleEntity) {
	r.body = &Body{Kind: KindSingleEntity, Rows: []Row{
		{Cells: []string{p.Title, p.Status, FormatMoney(p.Amount, r.opts.Currency)}},
	}}
}

func (r *renderer) ErrorPayload(p ErrorPayload) {
	r.body = &Body{Kind: KindError, Warning: p.Message}
}

func (r *renderer) None() {
	r.body = nil
}

// FormatIntent turns APPROVE_EXPENSE into "Approve Expense".
func FormatIntent(intent string) string {
	intent = strings.TrimSpace(intent)
	if intent == "" {
		return "Unknown"
	}
	lower := []rune(strings.ToLower(strings.ReplaceAll(intent, "_", " ")))
	for i, c := range lower {
		if i == 0 || !isWordRune(lower[i-1]) {
			lower[i] = unicode.ToUpper(c)
		}
	}
	return string(lower)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// BudgetPercent is spent/budget as a whole percentage clamped to [0, 100]; 0
// when the budget is not positive. Refunds can make spent negative.
func BudgetPercent(spent, budget float64) int {
	if budget <= 0 {
		return 0
	}
	return int(math.Max(0, math.Min(100, math.Round(spent/budget*100))))
}

// FormatMoney prefixes currency to an amount grouped the Indian way
// (12,34,567.5).
func FormatMoney(amount float64, currency string) string {
	return currency + GroupIndian(amount)
}

// GroupIndian groups the integer part as thousands then lakhs/crores and keeps
// up to two trimmed decimals.
func GroupIndian(amount float64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	rounded := math.Round(amount*100) / 100
	if rounded == 0 {
		neg = false
	}
	s := strconv.FormatFloat(rounded, 'f', 2, 64)
	intPart, frac, _ := strings.Cut(s, ".")
	frac = strings.TrimRight(frac, "0")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	if len(intPart) <= 3 {
		b.WriteString(intPart)
	} else {
		head, tail := intPart[:len(intPart)-3], intPart[len(intPart)-3:]
		lead := len(head) % 2
		if lead > 0 {
			b.WriteString(head[:lead])
		}
		for i := lead; i < len(head); i += 2 {
			if b.Len() > 0 && !(neg && b.Len() == 1) {
				b.WriteByte(',')
			}
			b.WriteString(head[i : i+2])
		}
		b.WriteByte(',')
		b.WriteString(tail)
	}
	if frac != "" {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}
