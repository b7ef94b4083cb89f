package response

import (
	"encoding/json"
	"strconv"
	"strings"
)

// PrefillFormAction marks a PrefillAction payload.
const PrefillFormAction = "PREFILL_FORM"

// Decode turns a raw service answer into a Result. It never fails: absent or
// mistyped fields fall back to zero values and an unusable body yields an
// empty Result carrying None.
func Decode(raw []byte) Result {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Result{Data: None{}}
	}
	r := Result{
		Intent:       strings.TrimSpace(asString(fields["intent"])),
		Params:       asStringMap(fields["params"]),
		Reply:        strings.TrimSpace(asString(fields["reply"])),
		Fallback:     asBool(fields["fallback"]),
		ProcessingMS: int64(asNumber(fields["processingMs"])),
		Data:         Classify(fields["data"]),
	}
	if r.Reply == "" {
		r.Reply = strings.TrimSpace(asString(fields["message"]))
	}
	return r
}

// Classify picks the payload variant from the shape of raw. Shapes overlap, so
// the most specific test runs first: a prefill directive is never read as a
// single entity even when it carries id/title/amount.
func Classify(raw json.RawMessage) Payload {
	if len(raw) == 0 {
		return None{}
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return None{}
	}
	switch t := v.(type) {
	case []any:
		return classifyList(t)
	case map[string]any:
		return classifyObject(t)
	default:
		return None{}
	}
}

func classifyList(items []any) Payload {
	if len(items) == 0 {
		return None{}
	}
	first, ok := items[0].(map[string]any)
	if !ok {
		return None{}
	}
	switch {
	case has(first, "title"):
		out := ExpenseList{Items: make([]Expense, 0, len(items))}
		for _, it := range items {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			out.Items = append(out.Items, Expense{
				ID:       str(m, "id"),
				Title:    str(m, "title"),
				Category: str(m, "category"),
				Status:   str(m, "status"),
				Amount:   num(m, "amount"),
			})
		}
		return out
	case has(first, "teamName"):
		out := BudgetList{Items: make([]Budget, 0, len(items))}
		for _, it := range items {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			out.Items = append(out.Items, Budget{
				TeamName: str(m, "teamName"),
				Spent:    num(m, "spent"),
				Budget:   num(m, "budget"),
				Exceeded: truthy(m, "exceeded"),
			})
		}
		return out
	default:
		return None{}
	}
}

func classifyObject(m map[string]any) Payload {
	switch {
	case str(m, "action") == PrefillFormAction:
		return PrefillAction{
			Action:   PrefillFormAction,
			Title:    str(m, "title"),
			Amount:   num(m, "amount"),
			Category: str(m, "category"),
			Date:     str(m, "date"),
		}
	case has(m, "pending") && has(m, "approved"):
		return StatusSummary{
			Pending:  int(num(m, "pending")),
			Approved: int(num(m, "approved")),
			Rejected: int(num(m, "rejected")),
		}
	case truthy(m, "insightText"):
		return Insight{Text: str(m, "insightText")}
	case truthy(m, "id") && truthy(m, "title"):
		return SingleEntity{
			ID:     str(m, "id"),
			Title:  str(m, "title"),
			Status: str(m, "status"),
			Amount: num(m, "amount"),
		}
	case truthy(m, "error"):
		return ErrorPayload{Message: str(m, "error")}
	default:
		return None{}
	}
}

// MarshalJSON includes the payload with its kind so journals and the control
// socket can carry a Result.
func (r Result) MarshalJSON() ([]byte, error) {
	type plain Result
	data := r.Data
	if data == nil {
		data = None{}
	}
	return json.Marshal(struct {
		plain
		Kind Kind    `json:"kind"`
		Data Payload `json:"data,omitempty"`
	}{plain: plain(r), Kind: data.Kind(), Data: data})
}

// UnmarshalJSON reads the form written by MarshalJSON. Without a kind the
// data is classified by shape, as for a service answer.
func (r *Result) UnmarshalJSON(b []byte) error {
	type plain Result
	var aux struct {
		plain
		Kind Kind            `json:"kind"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*r = Result(aux.plain)
	r.Data = decodeKind(aux.Kind, aux.Data)
	return nil
}

func decodeKind(kind Kind, raw json.RawMessage) Payload {
	if kind == "" {
		return Classify(raw)
	}
	var (
		p   Payload
		err error
	)
	switch kind {
	case KindExpenseList:
		var v ExpenseList
		err = json.Unmarshal(raw, &v)
		p = v
	case KindStatusSummary:
		var v StatusSummary
		err = json.Unmarshal(raw, &v)
		p = v
	case KindBudgetList:
		var v BudgetList
		err = json.Unmarshal(raw, &v)
		p = v
	case KindPrefill:
		var v PrefillAction
		err = json.Unmarshal(raw, &v)
		p = v
	case KindInsight:
		var v Insight
		err = json.Unmarshal(raw, &v)
		p = v
	case KindSingleEntity:
		var v SingleEntity
		err = json.Unmarshal(raw, &v)
		p = v
	case KindError:
		var v ErrorPayload
		err = json.Unmarshal(raw, &v)
		p = v
	default:
		return None{}
	}
	if err != nil {
		return None{}
	}
	return p
}

func has(m map[string]any, key string) bool {
	_, ok := m[key]
	return ok
}

// truthy mirrors loose truthiness: empty strings, zero and null are false.
func truthy(m map[string]any, key string) bool {
	switch v := m[key].(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case float64:
		return v != 0
	default:
		return true
	}
}

func str(m map[string]any, key string) string {
	return toString(m[key])
}

func num(m map[string]any, key string) float64 {
	return toNumber(m[key])
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func toNumber(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func decodeAny(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

func asString(raw json.RawMessage) string { return toString(decodeAny(raw)) }

func asNumber(raw json.RawMessage) float64 { return toNumber(decodeAny(raw)) }

func asBool(raw json.RawMessage) bool {
	switch v := decodeAny(raw).(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(v))
		return b
	case float64:
		return v != 0
	default:
		return false
	}
}

func asStringMap(raw json.RawMessage) map[string]string {
	m, ok := decodeAny(raw).(map[string]any)
	if !ok || len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if v == nil {
			continue
		}
		if s := toString(v); s != "" {
			out[k] = s
			continue
		}
		if b, err := json.Marshal(v); err == nil {
			out[k] = string(b)
		}
	}
	return out
}
