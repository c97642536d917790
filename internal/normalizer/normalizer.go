// Package normalizer maps routing API order payloads onto domain.WorkOrder.
//
// Upstream payloads come in several shapes and none of their fields are
// guaranteed. Normalize never fails: missing or malformed values degrade to
// empty strings, nil pointers or false.
package normalizer

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/fieldops/internal/domain"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"
)

const placeholderPrefix = "UNKNOWN-"

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	domain.DateLayout,
}

// Normalizer converts raw orders. The zero value is not usable; use New.
type Normalizer struct {
	logger *zap.Logger
	newID  func() string
}

func New(logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Normalizer{
		logger: logger,
		newID:  uuid.NewString,
	}
}

// Normalize builds the canonical work order for one raw record.
func (n *Normalizer) Normalize(raw []byte) domain.WorkOrder {
	var root gjson.Result
	if gjson.ValidBytes(raw) {
		root = gjson.ParseBytes(raw)
	} else {
		n.logger.Debug("raw order is not valid JSON, using defaults", zap.Int("bytes", len(raw)))
	}
	shape := classify(root)

	order := domain.WorkOrder{
		OrderNumber:  firstString(root, shape, orderNumberRules),
		ServiceDate:  parseTime(root, shape, serviceDateRules),
		EndTime:      parseTime(root, shape, endTimeRules),
		ServiceNotes: firstString(root, shape, serviceNotesRules),
		TechNotes:    firstString(root, shape, techNotesRules),
		Location: domain.Location{
			Name:    firstString(root, shape, locationNameRules),
			Address: firstString(root, shape, addressRules),
			City:    firstString(root, shape, cityRules),
			State:   firstString(root, shape, stateRules),
			Zip:     firstString(root, shape, zipRules),
		},
		Driver: domain.Driver{
			ID:   firstString(root, shape, driverIDRules),
			Name: firstString(root, shape, driverNameRules),
		},
		SignatureURL:     firstString(root, shape, signatureURLRules),
		TrackingURL:      firstString(root, shape, trackingURLRules),
		CompletionStatus: firstString(root, shape, completionStatusRules),
	}

	if order.OrderNumber == "" {
		order.OrderNumber = placeholderPrefix + n.newID()
		n.logger.Debug("raw order has no order number, generated placeholder",
			zap.String("orderNumber", order.OrderNumber),
			zap.String("shape", string(shape)),
		)
	}

	order.Status = domain.StatusFromCompletion(order.CompletionStatus)

	if form, ok := firstValue(root, shape, formRules); ok {
		order.HasImages = formHasImages(form)
	}

	order.SearchResponse = searchPayload(root, shape)
	if completion, ok := firstValue(root, shape, completionPayloadRules); ok && completion.IsObject() {
		order.CompletionResponse = json.RawMessage(completion.Raw)
	}

	return order
}

// NormalizeAll keeps the input order.
func (n *Normalizer) NormalizeAll(raws [][]byte) []domain.WorkOrder {
	orders := make([]domain.WorkOrder, 0, len(raws))
	for _, raw := range raws {
		orders = append(orders, n.Normalize(raw))
	}
	return orders
}

// IsPlaceholder reports whether an order number was generated by Normalize.
func IsPlaceholder(orderNumber string) bool {
	return strings.HasPrefix(orderNumber, placeholderPrefix)
}

func formHasImages(form gjson.Result) bool {
	if !form.IsObject() {
		return false
	}
	if !isEmpty(form.Get("images")) {
		return true
	}
	for _, key := range []string{"barcode", "barcode_collections"} {
		if scansHaveImages(form.Get(key)) {
			return true
		}
	}
	return false
}

// scansHaveImages walks barcode entries, which arrive either as an array or
// as an object keyed by barcode, and collections that nest entries one level deeper.
func scansHaveImages(entries gjson.Result) bool {
	if !entries.IsArray() && !entries.IsObject() {
		return false
	}

	found := false
	entries.ForEach(func(_, entry gjson.Result) bool {
		switch {
		case entry.IsArray():
			found = scansHaveImages(entry)
		case entry.IsObject():
			found = !isEmpty(entry.Get("scanInfo.images"))
			if !found && entry.Get("barcodes").Exists() {
				found = scansHaveImages(entry.Get("barcodes"))
			}
		}
		return !found
	})
	return found
}

func searchPayload(root gjson.Result, shape Shape) json.RawMessage {
	if v := root.Get("searchResponse"); v.IsObject() {
		return json.RawMessage(v.Raw)
	}
	if !root.IsObject() {
		return nil
	}
	if shape != ShapeCompletion {
		return json.RawMessage(root.Raw)
	}

	stripped, err := sjson.Delete(root.Raw, "completionDetails")
	if err != nil {
		return json.RawMessage(root.Raw)
	}
	return json.RawMessage(stripped)
}

func parseTime(root gjson.Result, shape Shape, rules []rule) *time.Time {
	raw := firstString(root, shape, rules)
	if raw == "" {
		return nil
	}

	if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if unix > 1e12 {
			t := time.UnixMilli(unix).UTC()
			return &t
		}
		t := time.Unix(unix, 0).UTC()
		return &t
	}

	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
