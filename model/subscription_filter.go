// Copyright (c) 2015-present Shortpoint, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// FilterOperator compares one payload field against a fixed value.
type FilterOperator string

const (
	// FilterOpEq matches on structural equality.
	FilterOpEq FilterOperator = "eq"
	// FilterOpNe matches when eq does not.
	FilterOpNe FilterOperator = "ne"
	// FilterOpGt matches when both values are numbers and the payload value is greater.
	FilterOpGt FilterOperator = "gt"
	// FilterOpLt matches when both values are numbers and the payload value is lesser.
	FilterOpLt FilterOperator = "lt"
	// FilterOpContains matches on substring inclusion after string coercion.
	FilterOpContains FilterOperator = "contains"
	// FilterOpStartsWith matches on prefix after string coercion.
	FilterOpStartsWith FilterOperator = "starts_with"
)

// FilterOperators enumerates every operator accepted on the write path.
var FilterOperators = []FilterOperator{
	FilterOpEq,
	FilterOpNe,
	FilterOpGt,
	FilterOpLt,
	FilterOpContains,
	FilterOpStartsWith,
}

// IsValid returns true if the operator is a known value.
func (o FilterOperator) IsValid() bool {
	for _, op := range FilterOperators {
		if o == op {
			return true
		}
	}
	return false
}

// FilterCondition is a single (field, operator, value) predicate evaluated
// against the top level of the event payload.
type FilterCondition struct {
	Field    string         `json:"field"`
	Operator FilterOperator `json:"operator"`
	Value    interface{}    `json:"value"`
}

// SubscriptionFilter narrows which events a subscription receives. A nil
// filter matches everything. All populated constraints must hold.
type SubscriptionFilter struct {
	LinkIDs     []string          `json:"linkIds,omitempty"`
	PageIDs     []string          `json:"pageIds,omitempty"`
	CampaignIDs []string          `json:"campaignIds,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Conditions  []FilterCondition `json:"conditions,omitempty"`
}

// Validate rejects filters with unknown operators. Only the write path is
// strict; Matches stays lenient for records already stored.
func (f *SubscriptionFilter) Validate() error {
	if f == nil {
		return nil
	}
	for _, condition := range f.Conditions {
		if condition.Field == "" {
			return errors.Wrap(ErrInvalidInput, "filter condition requires a field")
		}
		if !condition.Operator.IsValid() {
			return errors.Wrapf(ErrInvalidInput, "unknown filter operator %q", condition.Operator)
		}
	}
	return nil
}

// Matches reports whether the payload satisfies the filter. It is pure and
// never mutates the filter or the payload. Conditions with an unknown
// operator are treated as vacuously true and logged.
func (f *SubscriptionFilter) Matches(payload map[string]interface{}) bool {
	if f == nil {
		return true
	}

	if !matchesIDSet(f.LinkIDs, payload["linkId"]) {
		return false
	}
	if !matchesIDSet(f.PageIDs, payload["pageId"]) {
		return false
	}
	if !matchesIDSet(f.CampaignIDs, payload["campaignId"]) {
		return false
	}
	if !matchesTags(f.Tags, payload["tags"]) {
		return false
	}

	for _, condition := range f.Conditions {
		if !condition.matches(payload) {
			return false
		}
	}

	return true
}

func (c FilterCondition) matches(payload map[string]interface{}) bool {
	value := payload[c.Field]

	switch c.Operator {
	case FilterOpEq:
		return equalValues(value, c.Value)
	case FilterOpNe:
		return !equalValues(value, c.Value)
	case FilterOpGt:
		left, leftOk := toNumber(value)
		right, rightOk := toNumber(c.Value)
		return leftOk && rightOk && left > right
	case FilterOpLt:
		left, leftOk := toNumber(value)
		right, rightOk := toNumber(c.Value)
		return leftOk && rightOk && left < right
	case FilterOpContains:
		return strings.Contains(coerceString(value), coerceString(c.Value))
	case FilterOpStartsWith:
		return strings.HasPrefix(coerceString(value), coerceString(c.Value))
	default:
		logrus.WithFields(logrus.Fields{"operator": c.Operator, "field": c.Field}).
			Warn("Unknown filter operator; treating condition as matched")
		return true
	}
}

// matchesIDSet requires the payload value to be a member of the set when the
// set is populated. An empty set does not constrain.
func matchesIDSet(set []string, value interface{}) bool {
	if len(set) == 0 {
		return true
	}
	if value == nil {
		return false
	}
	id := coerceString(value)
	for _, candidate := range set {
		if candidate == id {
			return true
		}
	}
	return false
}

// matchesTags requires at least one wanted tag to appear in the payload tag
// sequence. A payload value that is not a sequence never matches.
func matchesTags(wanted []string, value interface{}) bool {
	if len(wanted) == 0 {
		return true
	}

	var payloadTags []string
	switch tags := value.(type) {
	case []string:
		payloadTags = tags
	case []interface{}:
		for _, tag := range tags {
			payloadTags = append(payloadTags, coerceString(tag))
		}
	default:
		return false
	}

	for _, want := range wanted {
		for _, have := range payloadTags {
			if want == have {
				return true
			}
		}
	}
	return false
}

// equalValues compares numbers numerically so that a condition written with
// an int matches the float64 produced by JSON decoding. Everything else is
// structural.
func equalValues(left, right interface{}) bool {
	leftNumber, leftOk := toNumber(left)
	rightNumber, rightOk := toNumber(right)
	if leftOk && rightOk {
		return leftNumber == rightNumber
	}
	return reflect.DeepEqual(left, right)
}

func toNumber(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func coerceString(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		// Trim the decimal point from integral JSON numbers.
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (f *SubscriptionFilter) Value() (driver.Value, error) {
	if f == nil {
		return nil, nil
	}
	return json.Marshal(f)
}

func (f *SubscriptionFilter) Scan(v interface{}) error {
	if v == nil {
		return nil
	}
	switch data := v.(type) {
	case string: // sqlite's text
		return json.Unmarshal([]byte(data), f)
	case []byte: // psqls jsonb
		return json.Unmarshal(data, f)
	default:
		return fmt.Errorf("cannot scan type %T into SubscriptionFilter", v)
	}
}
