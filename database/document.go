package database

import (
	"reflect"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/saiset-co/sai-shop/types"
)

// prepareDocument assigns an id when the caller did not supply one and stamps
// creation and change times in unix milliseconds.
func prepareDocument(doc map[string]interface{}, now time.Time) string {
	id, _ := doc[types.FieldID].(string)
	if id == "" {
		id = uuid.New().String()
		doc[types.FieldID] = id
	}

	stamp := now.UnixMilli()
	if created, ok := toInt64(doc[types.FieldCreatedTime]); !ok || created == 0 {
		doc[types.FieldCreatedTime] = stamp
	}
	doc[types.FieldChangedTime] = stamp

	return id
}

func matchesFilter(doc map[string]interface{}, filter map[string]interface{}) bool {
	for key, value := range filter {
		docValue, exists := lookupField(doc, key)
		if !matchesCondition(docValue, exists, value) {
			return false
		}
	}
	return true
}

func lookupField(doc map[string]interface{}, key string) (interface{}, bool) {
	current := doc
	parts := strings.Split(key, ".")

	for i, part := range parts {
		value, exists := current[part]
		if !exists {
			return nil, false
		}
		if i == len(parts)-1 {
			return value, true
		}
		next, ok := value.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current = next
	}

	return nil, false
}

func matchesCondition(docValue interface{}, exists bool, condition interface{}) bool {
	operators, ok := condition.(map[string]interface{})
	if !ok || !isOperatorMap(operators) {
		return exists && valuesEqual(docValue, condition)
	}

	for op, value := range operators {
		switch op {
		case "$eq":
			if !exists || !valuesEqual(docValue, value) {
				return false
			}
		case "$ne":
			if exists && valuesEqual(docValue, value) {
				return false
			}
		case "$gt", "$gte", "$lt", "$lte":
			if !exists || !compareOrdered(docValue, value, op) {
				return false
			}
		case "$in":
			if !exists || !containsValue(value, docValue) {
				return false
			}
		case "$nin":
			if exists && containsValue(value, docValue) {
				return false
			}
		case "$exists":
			want, _ := value.(bool)
			if exists != want {
				return false
			}
		case "$regex":
			pattern, _ := value.(string)
			re, err := compileRegex(pattern, operators["$options"])
			if err != nil {
				return false
			}
			text, isString := docValue.(string)
			if !exists || !isString || !re.MatchString(text) {
				return false
			}
		case "$options":
		default:
			return false
		}
	}

	return true
}

func isOperatorMap(m map[string]interface{}) bool {
	for key := range m {
		if !strings.HasPrefix(key, "$") {
			return false
		}
	}
	return len(m) > 0
}

func compileRegex(pattern string, options interface{}) (*regexp.Regexp, error) {
	if opts, ok := options.(string); ok && strings.Contains(opts, "i") {
		pattern = "(?i)" + pattern
	}
	return regexp.Compile(pattern)
}

func valuesEqual(a, b interface{}) bool {
	if af, ok := toFloat64(a); ok {
		if bf, ok := toFloat64(b); ok {
			return af == bf
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func containsValue(list interface{}, value interface{}) bool {
	rv := reflect.ValueOf(list)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return false
	}

	for i := 0; i < rv.Len(); i++ {
		if valuesEqual(rv.Index(i).Interface(), value) {
			return true
		}
	}
	return false
}

func compareOrdered(a, b interface{}, op string) bool {
	cmp, ok := compareValues(a, b)
	if !ok {
		return false
	}

	switch op {
	case "$gt":
		return cmp > 0
	case "$gte":
		return cmp >= 0
	case "$lt":
		return cmp < 0
	case "$lte":
		return cmp <= 0
	}
	return false
}

// compareValues orders numbers numerically and strings lexically. Mixed or
// unordered types report false.
func compareValues(a, b interface{}) (int, bool) {
	if af, ok := toFloat64(a); ok {
		bf, ok := toFloat64(b)
		if !ok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}

	as, aOk := a.(string)
	bs, bOk := b.(string)
	if aOk && bOk {
		return strings.Compare(as, bs), true
	}

	return 0, false
}

func sortDocuments(docs []map[string]interface{}, options []types.SortOption) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, option := range options {
			left, _ := lookupField(docs[i], option.Field)
			right, _ := lookupField(docs[j], option.Field)

			cmp, ok := compareValues(left, right)
			if !ok || cmp == 0 {
				continue
			}
			if option.Direction == types.SortDesc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

// applyUpdateOperations supports $set, $inc and $unset. Keys without an
// operator prefix are assigned directly.
func applyUpdateOperations(doc map[string]interface{}, update map[string]interface{}) error {
	for op, value := range update {
		switch op {
		case "$set":
			fields, ok := value.(map[string]interface{})
			if !ok {
				return types.Errorf(types.ErrDocumentInvalid, "$set expects an object")
			}
			for key, val := range fields {
				doc[key] = val
			}
		case "$unset":
			fields, ok := value.(map[string]interface{})
			if !ok {
				return types.Errorf(types.ErrDocumentInvalid, "$unset expects an object")
			}
			for key := range fields {
				delete(doc, key)
			}
		case "$inc":
			fields, ok := value.(map[string]interface{})
			if !ok {
				return types.Errorf(types.ErrDocumentInvalid, "$inc expects an object")
			}
			for key, val := range fields {
				sum, err := increment(doc[key], val)
				if err != nil {
					return types.Errorf(types.ErrDocumentInvalid, "$inc %s: %v", key, err)
				}
				doc[key] = sum
			}
		default:
			if strings.HasPrefix(op, "$") {
				return types.Errorf(types.ErrNotSupported, "update operator %s", op)
			}
			doc[op] = value
		}
	}

	return nil
}

func increment(current, delta interface{}) (interface{}, error) {
	if current == nil {
		current = int64(0)
	}

	ci, cIsInt := toInt64(current)
	di, dIsInt := toInt64(delta)
	if cIsInt && dIsInt {
		return ci + di, nil
	}

	cf, ok := toFloat64(current)
	if !ok {
		return nil, types.NewErrorf("field is not numeric")
	}
	df, ok := toFloat64(delta)
	if !ok {
		return nil, types.NewErrorf("increment is not numeric")
	}
	return cf + df, nil
}

func toInt64(v interface{}) (int64, bool) {
	switch val := v.(type) {
	case int:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case uint32:
		return int64(val), true
	case uint64:
		return int64(val), true
	}
	return 0, false
}

func toFloat64(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case interface{ Float64() (float64, error) }:
		f, err := val.Float64()
		return f, err == nil
	}
	return 0, false
}

func deepCopy(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = copyValue(v)
	}
	return dst
}

func copyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return deepCopy(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	}
	return v
}
