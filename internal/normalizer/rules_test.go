package normalizer

import (
	"testing"

	"github.com/tidwall/gjson"
)

func parseRoot(raw string) gjson.Result {
	return gjson.Parse(raw)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want Shape
	}{
		{name: "search record", raw: `{"data": {"orderNo": "1"}}`, want: ShapeSearch},
		{name: "flat search record", raw: `{"orderNo": "1"}`, want: ShapeSearch},
		{name: "completion record", raw: `{"orderNo": "1", "completionDetails": {"data": {}}}`, want: ShapeCompletion},
		{name: "legacy with form", raw: `{"data": {"orderNo": "1", "form": {}}}`, want: ShapeLegacy},
		{name: "legacy with nested completion", raw: `{"data": {"completionDetails": {}}}`, want: ShapeLegacy},
		{name: "empty object", raw: `{}`, want: ShapeSearch},
		{name: "not an object", raw: `[1,2]`, want: ShapeSearch},
	}

	for _, tt := range tests {
		if got := classify(parseRoot(tt.raw)); got != tt.want {
			t.Errorf("%s: classify() = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestRuleShapeFiltering(t *testing.T) {
	t.Parallel()

	// A completion-only path must be ignored for search records.
	root := parseRoot(`{"completionDetails": "x", "trackingUrl": "https://t"}`)
	rules := []rule{
		only("completionDetails", ShapeCompletion),
		anyShape("trackingUrl"),
	}

	if got := firstString(root, ShapeSearch, rules); got != "https://t" {
		t.Fatalf("firstString() = %q, want https://t", got)
	}
	if got := firstString(root, ShapeCompletion, rules); got != "x" {
		t.Fatalf("firstString() = %q, want x", got)
	}
}

func TestFirstValueSkipsEmptyContainers(t *testing.T) {
	t.Parallel()

	root := parseRoot(`{"a": {}, "b": [], "c": null, "d": {"k": 1}}`)
	rules := []rule{anyShape("a"), anyShape("b"), anyShape("c"), anyShape("d")}

	v, ok := firstValue(root, ShapeSearch, rules)
	if !ok {
		t.Fatal("firstValue() found nothing")
	}
	if v.Get("k").Int() != 1 {
		t.Fatalf("firstValue() = %s, want d", v.Raw)
	}

	if _, ok := firstValue(root, ShapeSearch, rules[:3]); ok {
		t.Fatal("firstValue() should report absent for empty containers")
	}
}
