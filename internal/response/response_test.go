package response

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestClassifyShapes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
		want Kind
	}{
		{name: "status summary", raw: `{"pending":3,"approved":5,"rejected":1}`, want: KindStatusSummary},
		{name: "expense list", raw: `[{"id":1,"title":"Lunch","status":"PENDING","amount":500}]`, want: KindExpenseList},
		{name: "budget list", raw: `[{"teamName":"Ops","spent":10,"budget":20,"exceeded":false}]`, want: KindBudgetList},
		{name: "prefill", raw: `{"action":"PREFILL_FORM","amount":500,"category":"Travel"}`, want: KindPrefill},
		{name: "prefill with entity fields", raw: `{"action":"PREFILL_FORM","id":7,"title":"Cab","amount":500}`, want: KindPrefill},
		{name: "insight", raw: `{"insightText":"Spend is up 12%"}`, want: KindInsight},
		{name: "single entity", raw: `{"id":9,"title":"Hotel","status":"APPROVED","amount":4200}`, want: KindSingleEntity},
		{name: "error", raw: `{"error":"Expense not found"}`, want: KindError},
		{name: "empty object", raw: `{}`, want: KindNone},
		{name: "empty list", raw: `[]`, want: KindNone},
		{name: "list of scalars", raw: `[1,2,3]`, want: KindNone},
		{name: "null", raw: `null`, want: KindNone},
		{name: "string", raw: `"hello"`, want: KindNone},
		{name: "blank insight", raw: `{"insightText":""}`, want: KindNone},
		{name: "id without title", raw: `{"id":3,"amount":10}`, want: KindNone},
		{name: "malformed", raw: `{"pending":`, want: KindNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Classify(json.RawMessage(tc.raw)).Kind(); got != tc.want {
				t.Fatalf("Classify(%s) = %s, want %s", tc.raw, got, tc.want)
			}
		})
	}
}

func TestDecodeDefaultsMissingFields(t *testing.T) {
	t.Parallel()

	r := Decode([]byte(`{"intent":"LIST_EXPENSES","message":"Here you go","processingMs":"42","fallback":"true","params":{"status":"PENDING","limit":5,"skip":null}}`))
	if r.Intent != "LIST_EXPENSES" || r.Reply != "Here you go" {
		t.Fatalf("unexpected result %+v", r)
	}
	if r.ProcessingMS != 42 || !r.Fallback {
		t.Fatalf("lenient fields not decoded: %+v", r)
	}
	if r.Params["status"] != "PENDING" || r.Params["limit"] != "5" {
		t.Fatalf("unexpected params %v", r.Params)
	}
	if _, ok := r.Params["skip"]; ok {
		t.Fatalf("null params should be dropped")
	}
	if r.Data.Kind() != KindNone {
		t.Fatalf("absent data should be None, got %s", r.Data.Kind())
	}

	for _, raw := range []string{``, `not json`, `[1,2]`, `{"intent":42}`} {
		got := Decode([]byte(raw))
		if got.Data == nil || got.Data.Kind() != KindNone {
			t.Fatalf("Decode(%q) must be total, got %+v", raw, got)
		}
	}
}

func TestDecodePrefersReplyOverMessage(t *testing.T) {
	t.Parallel()

	r := Decode([]byte(`{"intent":"GREETING","reply":"Hi","message":"ignored"}`))
	if r.Reply != "Hi" {
		t.Fatalf("reply should win, got %q", r.Reply)
	}
}

func TestRenderExpenseListTruncates(t *testing.T) {
	t.Parallel()

	raw := `{"intent":"LIST_EXPENSES","data":[
		{"id":1,"title":"Lunch","status":"PENDING","amount":500},
		{"id":2,"title":"Cab","category":"Travel","status":"PENDING","amount":250},
		{"id":3,"title":"Hotel","status":"APPROVED","amount":123456},
		{"id":4,"title":"Snacks","status":"PENDING","amount":80},
		{"id":5,"title":"Flight","status":"REJECTED","amount":9800},
		{"id":6,"title":"Dinner","status":"PENDING","amount":1200}
	]}`
	r := Decode([]byte(raw))
	if r.Data.Kind() != KindExpenseList {
		t.Fatalf("expected expense list, got %s", r.Data.Kind())
	}
	v := Render(r, DefaultRenderOptions())
	if v.Body == nil || len(v.Body.Rows) != 5 {
		t.Fatalf("expected 5 rows, got %+v", v.Body)
	}
	if !strings.HasPrefix(v.Body.More, "+1 more") {
		t.Fatalf("expected +1 more indicator, got %q", v.Body.More)
	}
	if v.Body.Rows[0].Cells[1] != "—" {
		t.Fatalf("empty category should render as dash, got %q", v.Body.Rows[0].Cells[1])
	}
	if v.Body.Rows[2].Cells[3] != "₹1,23,456" {
		t.Fatalf("unexpected amount %q", v.Body.Rows[2].Cells[3])
	}
}

func TestRenderExpenseListAtCapHasNoIndicator(t *testing.T) {
	t.Parallel()

	items := make([]Expense, 5)
	body := RenderPayload(ExpenseList{Items: items}, DefaultRenderOptions())
	if body.More != "" || len(body.Rows) != 5 {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestRenderFallbackAlwaysFlagged(t *testing.T) {
	t.Parallel()

	payloads := []Payload{
		None{},
		StatusSummary{Pending: 1},
		ExpenseList{Items: []Expense{{Title: "x"}}},
		ErrorPayload{Message: "nope"},
		Insight{Text: "ok"},
	}
	for _, p := range payloads {
		v := Render(Result{Intent: "UNKNOWN", Fallback: true, Data: p}, DefaultRenderOptions())
		if !v.Fallback || v.Badge != FallbackLabel {
			t.Fatalf("%s: fallback not flagged: %+v", p.Kind(), v)
		}
		if out := Format(v, 80); !strings.Contains(out, FallbackLabel) {
			t.Fatalf("%s: formatted output lacks fallback badge:\n%s", p.Kind(), out)
		}
	}
	if v := Render(Result{Intent: "GREETING", Data: None{}}, DefaultRenderOptions()); v.Badge != "" || v.Fallback {
		t.Fatalf("non-fallback result must not be flagged: %+v", v)
	}
}

func TestRenderErrorPayloadIsInlineWarning(t *testing.T) {
	t.Parallel()

	r := Decode([]byte(`{"intent":"APPROVE_EXPENSE","data":{"error":"Expense not found"}}`))
	v := Render(r, DefaultRenderOptions())
	if v.Body == nil || v.Body.Kind != KindError || v.Body.Warning != "Expense not found" {
		t.Fatalf("unexpected body %+v", v.Body)
	}
}

func TestRenderNoneRendersNothing(t *testing.T) {
	t.Parallel()

	if body := RenderPayload(None{}, DefaultRenderOptions()); body != nil {
		t.Fatalf("None should render nothing, got %+v", body)
	}
	if body := RenderPayload(nil, DefaultRenderOptions()); body != nil {
		t.Fatalf("nil should render nothing, got %+v", body)
	}
}

func TestRenderBudgetsAndPrefill(t *testing.T) {
	t.Parallel()

	budgets := BudgetList{Items: []Budget{
		{TeamName: "Ops", Spent: 150, Budget: 100, Exceeded: true},
		{TeamName: "Eng", Spent: 33, Budget: 100},
		{TeamName: "New", Spent: 10, Budget: 0},
		{TeamName: "Refunds", Spent: -500, Budget: 1000},
	}}
	body := RenderPayload(budgets, DefaultRenderOptions())
	if got := []int{body.Rows[0].Percent, body.Rows[1].Percent, body.Rows[2].Percent, body.Rows[3].Percent}; got[0] != 100 || got[1] != 33 || got[2] != 0 || got[3] != 0 {
		t.Fatalf("unexpected percents %v", got)
	}
	if out := Format(View{IntentLabel: "Team Budget", Body: body}, 80); !strings.Contains(out, "Refunds") {
		t.Fatalf("negative spend row missing:\n%s", out)
	}
	if out := formatMeterRow(Row{Cells: []string{"x"}, Meter: true, Percent: -40}, 80); !strings.Contains(out, "x") {
		t.Fatalf("meter row with negative percent: %q", out)
	}
	if !body.Rows[0].Flagged || body.Rows[1].Flagged {
		t.Fatalf("exceeded flag not carried")
	}

	prefill := RenderPayload(PrefillAction{Action: PrefillFormAction, Amount: 500, Category: "Travel"}, DefaultRenderOptions())
	if len(prefill.Rows) != 2 || prefill.Rows[0].Cells[0] != "Amount" || prefill.Rows[1].Cells[1] != "Travel" {
		t.Fatalf("unexpected prefill rows %+v", prefill.Rows)
	}
}

func TestDecodeRenderFormatNegativeSpend(t *testing.T) {
	t.Parallel()

	r := Decode([]byte(`{"intent":"TEAM_BUDGET","data":[{"teamName":"Ops","spent":-500,"budget":1000}]}`))
	if r.Data.Kind() != KindBudgetList {
		t.Fatalf("expected budget list, got %s", r.Data.Kind())
	}
	v := Render(r, DefaultRenderOptions())
	if v.Body.Rows[0].Percent != 0 {
		t.Fatalf("percent should clamp to 0, got %d", v.Body.Rows[0].Percent)
	}
	if out := Format(v, 80); !strings.Contains(out, "Ops") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestFormatIntent(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":                 "Unknown",
		"APPROVE_EXPENSE":  "Approve Expense",
		"LIST_EXPENSES":    "List Expenses",
		"show_team_budget": "Show Team Budget",
		"GREETING":         "Greeting",
	}
	for in, want := range cases {
		if got := FormatIntent(in); got != want {
			t.Fatalf("FormatIntent(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGroupIndian(t *testing.T) {
	t.Parallel()

	cases := map[float64]string{
		0:         "0",
		500:       "500",
		1200:      "1,200",
		12345:     "12,345",
		123456:    "1,23,456",
		1234567:   "12,34,567",
		12345678:  "1,23,45,678",
		1500.5:    "1,500.5",
		99.999:    "100",
		-250000.2: "-2,50,000.2",
	}
	for in, want := range cases {
		if got := GroupIndian(in); got != want {
			t.Fatalf("GroupIndian(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestResultMarshalIncludesKind(t *testing.T) {
	t.Parallel()

	out, err := json.Marshal(Result{Intent: "X", Data: StatusSummary{Pending: 2}})
	if err != nil {
		t.Fatal(err)
	}
	s := string(out)
	if !strings.Contains(s, `"kind":"status_summary"`) || !strings.Contains(s, `"pending":2`) {
		t.Fatalf("unexpected json %s", s)
	}
}

func TestResultSurvivesControlSocketEncoding(t *testing.T) {
	t.Parallel()

	in := Result{Intent: "LIST_EXPENSES", Reply: "2 expenses", Data: ExpenseList{Items: []Expense{{ID: "1", Title: "Cab", Amount: 250}}}}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	var out Result
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatal(err)
	}
	list, ok := out.Data.(ExpenseList)
	if !ok || len(list.Items) != 1 || list.Items[0].Title != "Cab" || out.Reply != "2 expenses" {
		t.Fatalf("unexpected decode %+v", out)
	}
}
