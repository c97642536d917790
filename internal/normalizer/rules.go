package normalizer

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Shape tags the known variants of a routing API order payload.
type Shape string

const (
	// ShapeSearch is a plain search_orders record.
	ShapeSearch Shape = "search"
	// ShapeCompletion is a search record merged with completionDetails.
	ShapeCompletion Shape = "completion"
	// ShapeLegacy is a bulk export row with completion data folded into data.
	ShapeLegacy Shape = "legacy"
)

// classify picks the payload shape. Unknown payloads are treated as search records.
func classify(root gjson.Result) Shape {
	if root.Get("completionDetails").IsObject() {
		return ShapeCompletion
	}
	data := root.Get("data")
	if data.IsObject() && (data.Get("form").Exists() || data.Get("completionDetails").Exists() || data.Get("status").Exists()) {
		return ShapeLegacy
	}
	return ShapeSearch
}

// rule is one candidate location of a field. An empty shape list matches every shape.
type rule struct {
	shapes []Shape
	path   string
}

func anyShape(path string) rule {
	return rule{path: path}
}

func only(path string, shapes ...Shape) rule {
	return rule{shapes: shapes, path: path}
}

func (r rule) appliesTo(shape Shape) bool {
	if len(r.shapes) == 0 {
		return true
	}
	for _, s := range r.shapes {
		if s == shape {
			return true
		}
	}
	return false
}

// Extraction chains, in precedence order.
var (
	orderNumberRules = []rule{
		anyShape("data.orderNo"),
		anyShape("orderNo"),
		only("completionDetails.orderNo", ShapeCompletion),
	}
	serviceDateRules = []rule{
		anyShape("data.date"),
		anyShape("date"),
		anyShape("scheduleInformation.scheduledAtDt"),
		only("completionDetails.data.startTime.utcTime", ShapeCompletion),
		only("data.startTime.utcTime", ShapeLegacy),
	}
	endTimeRules = []rule{
		only("completionDetails.data.endTime.utcTime", ShapeCompletion),
		only("completionDetails.endTime.utcTime", ShapeCompletion),
		only("data.endTime.utcTime", ShapeLegacy),
		anyShape("endTime"),
	}
	serviceNotesRules = []rule{
		anyShape("data.notes"),
		anyShape("notes"),
		anyShape("data.serviceNotes"),
	}
	techNotesRules = []rule{
		only("completionDetails.data.form.note", ShapeCompletion),
		only("completionDetails.form.note", ShapeCompletion),
		anyShape("data.form.note"),
		anyShape("form.note"),
	}
	locationNameRules = []rule{
		anyShape("data.location.locationName"),
		anyShape("location.locationName"),
		anyShape("data.location.name"),
		anyShape("location.name"),
	}
	addressRules = []rule{
		anyShape("data.location.address"),
		anyShape("location.address"),
	}
	cityRules = []rule{
		anyShape("data.location.city"),
		anyShape("location.city"),
	}
	stateRules = []rule{
		anyShape("data.location.state"),
		anyShape("location.state"),
	}
	zipRules = []rule{
		anyShape("data.location.postalCode"),
		anyShape("data.location.zip"),
		anyShape("location.postalCode"),
		anyShape("location.zip"),
	}
	driverIDRules = []rule{
		anyShape("scheduleInformation.driverSerial"),
		anyShape("data.scheduleInformation.driverSerial"),
		anyShape("data.assignedTo.serial"),
		anyShape("driverSerial"),
	}
	driverNameRules = []rule{
		anyShape("scheduleInformation.driverName"),
		anyShape("data.scheduleInformation.driverName"),
		anyShape("data.assignedTo.name"),
		anyShape("driverName"),
	}
	completionStatusRules = []rule{
		only("completionDetails.data.status", ShapeCompletion),
		only("completionDetails.status", ShapeCompletion),
		only("data.status", ShapeLegacy),
		anyShape("completionStatus"),
	}
	signatureURLRules = []rule{
		only("completionDetails.data.form.signature.url", ShapeCompletion),
		only("completionDetails.form.signature.url", ShapeCompletion),
		anyShape("data.form.signature.url"),
		anyShape("form.signature.url"),
	}
	trackingURLRules = []rule{
		only("completionDetails.data.trackingUrl", ShapeCompletion),
		only("completionDetails.trackingUrl", ShapeCompletion),
		anyShape("data.trackingUrl"),
		anyShape("trackingUrl"),
	}
	formRules = []rule{
		only("completionDetails.data.form", ShapeCompletion),
		only("completionDetails.form", ShapeCompletion),
		anyShape("data.form"),
		anyShape("form"),
	}
	completionPayloadRules = []rule{
		only("completionDetails", ShapeCompletion),
		only("data.completionDetails", ShapeLegacy),
		anyShape("completionResponse"),
	}
)

// firstString returns the first non-blank scalar matched by the chain.
func firstString(root gjson.Result, shape Shape, rules []rule) string {
	for _, r := range rules {
		if !r.appliesTo(shape) {
			continue
		}
		v := root.Get(r.path)
		if !v.Exists() || v.IsObject() || v.IsArray() || v.Type == gjson.Null {
			continue
		}
		if s := strings.TrimSpace(v.String()); s != "" {
			return s
		}
	}
	return ""
}

// firstValue returns the first matched value that is not null or empty.
func firstValue(root gjson.Result, shape Shape, rules []rule) (gjson.Result, bool) {
	for _, r := range rules {
		if !r.appliesTo(shape) {
			continue
		}
		v := root.Get(r.path)
		if isEmpty(v) {
			continue
		}
		return v, true
	}
	return gjson.Result{}, false
}

func isEmpty(v gjson.Result) bool {
	if !v.Exists() || v.Type == gjson.Null {
		return true
	}
	switch {
	case v.IsArray():
		return len(v.Array()) == 0
	case v.IsObject():
		return len(v.Map()) == 0
	case v.Type == gjson.String:
		return strings.TrimSpace(v.String()) == ""
	}
	return false
}
