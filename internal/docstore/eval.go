// internal/docstore/eval.go
//
// Filter, sort, update, and pipeline evaluation for Memory.
//
// Supported subset
// ----------------
//
//	filters     implicit equality, $eq, $ne, $gt, $gte, $lt, $lte, $in,
//	            $nin, $exists, $and, $or
//	updates     $set, $unset
//	stages      $match, $sort, $group, $limit, $skip, $count
//	group ops   $sum, $first, $last
//	expressions "$field", literals, {$dateToString: {format, date, timezone}}
//
// Anything else fails with an error naming the operator, so a query the
// in-memory store cannot evaluate never silently returns wrong rows.
// Filters, updates, and $group specs are checked once up front, so the
// error surfaces even when no document reaches the operator.
//
// Values are compared within Mongo's type brackets: every numeric type
// compares as a number, and DateTime compares with time.Time at millisecond
// resolution.  Across brackets the order is null < numbers < strings <
// other < booleans < dates.
package docstore

import (
	"cmp"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

//
// Filters
//

// checkFilter walks filter without a document.
func checkFilter(filter bson.D) error {
	for _, e := range filter {
		if strings.HasPrefix(e.Key, "$") {
			if e.Key != "$and" && e.Key != "$or" {
				return fmt.Errorf("docstore: unsupported filter operator %s", e.Key)
			}
			clauses, err := asList(e.Value)
			if err != nil {
				return fmt.Errorf("docstore: %s: %w", e.Key, err)
			}
			for _, c := range clauses {
				f, ok := asDoc(c)
				if !ok {
					return fmt.Errorf("docstore: %s clause must be a document", e.Key)
				}
				if err := checkFilter(f); err != nil {
					return err
				}
			}
			continue
		}
		ops, isOps := operatorDoc(e.Value)
		if !isOps {
			continue
		}
		for _, op := range ops {
			switch op.Key {
			case "$eq", "$ne", "$gt", "$gte", "$lt", "$lte":
			case "$in", "$nin":
				if _, err := asList(op.Value); err != nil {
					return fmt.Errorf("docstore: %s: %w", op.Key, err)
				}
			case "$exists":
				if _, ok := op.Value.(bool); !ok {
					return fmt.Errorf("docstore: $exists takes a bool")
				}
			default:
				return fmt.Errorf("docstore: unsupported filter operator %s", op.Key)
			}
		}
	}
	return nil
}

func matches(doc bson.M, filter bson.D) (bool, error) {
	for _, e := range filter {
		if strings.HasPrefix(e.Key, "$") {
			ok, err := matchLogical(doc, e.Key, e.Value)
			if err != nil || !ok {
				return false, err
			}
			continue
		}

		got, present := lookup(doc, e.Key)
		if ops, isOps := operatorDoc(e.Value); isOps {
			for _, op := range ops {
				ok, err := applyOp(got, present, op.Key, op.Value)
				if err != nil || !ok {
					return false, err
				}
			}
			continue
		}
		if !equalField(got, present, e.Value) {
			return false, nil
		}
	}
	return true, nil
}

func matchLogical(doc bson.M, op string, arg any) (bool, error) {
	clauses, err := asList(arg)
	if err != nil {
		return false, fmt.Errorf("docstore: %s: %w", op, err)
	}
	switch op {
	case "$and", "$or":
	default:
		return false, fmt.Errorf("docstore: unsupported filter operator %s", op)
	}
	for _, c := range clauses {
		f, ok := asDoc(c)
		if !ok {
			return false, fmt.Errorf("docstore: %s clause must be a document", op)
		}
		hit, err := matches(doc, f)
		if err != nil {
			return false, err
		}
		if op == "$or" && hit {
			return true, nil
		}
		if op == "$and" && !hit {
			return false, nil
		}
	}
	return op == "$and", nil
}

func applyOp(got any, present bool, op string, want any) (bool, error) {
	switch op {
	case "$eq":
		return equalField(got, present, want), nil
	case "$ne":
		return !equalField(got, present, want), nil
	case "$gt", "$gte", "$lt", "$lte":
		if !present {
			return false, nil
		}
		c, same := compareValues(got, want)
		if !same {
			return false, nil
		}
		switch op {
		case "$gt":
			return c > 0, nil
		case "$gte":
			return c >= 0, nil
		case "$lt":
			return c < 0, nil
		default:
			return c <= 0, nil
		}
	case "$in", "$nin":
		list, err := asList(want)
		if err != nil {
			return false, fmt.Errorf("docstore: %s: %w", op, err)
		}
		hit := false
		for _, w := range list {
			if equalField(got, present, w) {
				hit = true
				break
			}
		}
		return hit == (op == "$in"), nil
	case "$exists":
		b, ok := want.(bool)
		if !ok {
			return false, fmt.Errorf("docstore: $exists takes a bool")
		}
		return present == b, nil
	default:
		return false, fmt.Errorf("docstore: unsupported filter operator %s", op)
	}
}

// equalField applies Mongo equality: a nil operand also matches a missing
// field.
func equalField(got any, present bool, want any) bool {
	if want == nil {
		return !present || got == nil
	}
	return present && equalValues(got, want)
}

func equalValues(a, b any) bool {
	c, same := compareValues(a, b)
	return same && c == 0
}

//
// Values
//

func normalise(v any) any {
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.Null:
		return nil
	case int:
		return float64(t)
	case int8:
		return float64(t)
	case int16:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case uint:
		return float64(t)
	case uint8:
		return float64(t)
	case uint16:
		return float64(t)
	case uint32:
		return float64(t)
	case uint64:
		return float64(t)
	case float32:
		return float64(t)
	}
	return v
}

func bracket(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case float64:
		return 1
	case string:
		return 2
	case bool:
		return 8
	case time.Time:
		return 9
	default:
		return 5
	}
}

// compareValues orders a and b.  same is false when they fall in different
// type brackets; c then orders the brackets.
func compareValues(a, b any) (c int, same bool) {
	a, b = normalise(a), normalise(b)
	ba, bb := bracket(a), bracket(b)
	if ba != bb {
		return cmp.Compare(ba, bb), false
	}
	switch x := a.(type) {
	case nil:
		return 0, true
	case float64:
		return cmp.Compare(x, b.(float64)), true
	case string:
		return strings.Compare(x, b.(string)), true
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		default:
			return 1, true
		}
	case time.Time:
		return cmp.Compare(x.UnixMilli(), b.(time.Time).UnixMilli()), true
	}
	if reflect.DeepEqual(a, b) {
		return 0, true
	}
	return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b)), true
}

func lookup(doc bson.M, path string) (any, bool) {
	var cur any = doc
	for _, part := range strings.Split(path, ".") {
		switch c := cur.(type) {
		case bson.M:
			v, ok := c[part]
			if !ok {
				return nil, false
			}
			cur = v
		case bson.D:
			found := false
			for _, e := range c {
				if e.Key == part {
					cur, found = e.Value, true
					break
				}
			}
			if !found {
				return nil, false
			}
		default:
			return nil, false
		}
	}
	return cur, true
}

func asDoc(v any) (bson.D, bool) {
	switch t := v.(type) {
	case bson.D:
		return t, true
	case bson.M:
		return mapToD(t), true
	case map[string]any:
		return mapToD(t), true
	}
	return nil, false
}

func mapToD(m map[string]any) bson.D {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(bson.D, 0, len(m))
	for _, k := range keys {
		out = append(out, bson.E{Key: k, Value: m[k]})
	}
	return out
}

func operatorDoc(v any) (bson.D, bool) {
	d, ok := asDoc(v)
	if !ok || len(d) == 0 || !strings.HasPrefix(d[0].Key, "$") {
		return nil, false
	}
	return d, true
}

func asList(v any) ([]any, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("expected an array, got %T", v)
	}
	if _, isDoc := v.(bson.D); isDoc {
		return nil, fmt.Errorf("expected an array, got a document")
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

func toInt(v any) (int64, bool) {
	switch t := normalise(v).(type) {
	case float64:
		return int64(t), float64(int64(t)) == t
	}
	return 0, false
}

//
// Sort
//

func sortDocs(docs []bson.M, spec bson.D) error {
	dirs := make([]int64, len(spec))
	for i, k := range spec {
		d, ok := toInt(k.Value)
		if !ok || (d != 1 && d != -1) {
			return fmt.Errorf("docstore: sort direction for %s must be 1 or -1", k.Key)
		}
		dirs[i] = d
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for n, k := range spec {
			a, _ := lookup(docs[i], k.Key)
			b, _ := lookup(docs[j], k.Key)
			c, _ := compareValues(a, b)
			if c == 0 {
				continue
			}
			if dirs[n] < 0 {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return nil
}

//
// Updates
//

func checkUpdate(update bson.D) error {
	for _, e := range update {
		switch e.Key {
		case "$set":
		case "$unset":
			if _, ok := asDoc(e.Value); !ok {
				return fmt.Errorf("docstore: $unset takes a document")
			}
		default:
			return fmt.Errorf("docstore: unsupported update operator %s", e.Key)
		}
	}
	return nil
}

func applyUpdate(doc bson.M, update bson.D) (bson.M, error) {
	out := make(bson.M, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	for _, e := range update {
		switch e.Key {
		case "$set":
			vals, err := encodeFields(e.Value)
			if err != nil {
				return nil, err
			}
			for k, v := range vals {
				if k == "_id" && !equalValues(v, doc["_id"]) {
					return nil, fmt.Errorf("docstore: _id is immutable")
				}
				out[k] = v
			}
		case "$unset":
			d, ok := asDoc(e.Value)
			if !ok {
				return nil, fmt.Errorf("docstore: $unset takes a document")
			}
			for _, f := range d {
				delete(out, f.Key)
			}
		default:
			return nil, fmt.Errorf("docstore: unsupported update operator %s", e.Key)
		}
	}
	return out, nil
}

// encodeFields round-trips a $set document through the codec so stored
// values carry driver types.  Unlike encodeDoc it never adds an _id.
func encodeFields(v any) (bson.M, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("docstore: $set: %w", err)
	}
	var out bson.M
	if err := bson.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("docstore: $set: %w", err)
	}
	return out, nil
}

//
// Pipelines
//

func runPipeline(docs []bson.M, pipeline mongo.Pipeline) ([]bson.M, error) {
	for _, stage := range pipeline {
		if len(stage) != 1 {
			return nil, fmt.Errorf("docstore: pipeline stage must have exactly one operator")
		}
		op, arg := stage[0].Key, stage[0].Value
		switch op {
		case "$match":
			f, ok := asDoc(arg)
			if !ok {
				return nil, fmt.Errorf("docstore: $match takes a document")
			}
			if err := checkFilter(f); err != nil {
				return nil, err
			}
			var kept []bson.M
			for _, d := range docs {
				hit, err := matches(d, f)
				if err != nil {
					return nil, err
				}
				if hit {
					kept = append(kept, d)
				}
			}
			docs = kept
		case "$sort":
			spec, ok := asDoc(arg)
			if !ok {
				return nil, fmt.Errorf("docstore: $sort takes a document")
			}
			docs = append([]bson.M(nil), docs...)
			if err := sortDocs(docs, spec); err != nil {
				return nil, err
			}
		case "$limit", "$skip":
			n, ok := toInt(arg)
			if !ok || n < 0 {
				return nil, fmt.Errorf("docstore: %s takes a non-negative integer", op)
			}
			if n > int64(len(docs)) {
				n = int64(len(docs))
			}
			if op == "$limit" {
				docs = docs[:n]
			} else {
				docs = docs[n:]
			}
		case "$group":
			spec, ok := asDoc(arg)
			if !ok {
				return nil, fmt.Errorf("docstore: $group takes a document")
			}
			grouped, err := group(docs, spec)
			if err != nil {
				return nil, err
			}
			docs = grouped
		case "$count":
			name, ok := arg.(string)
			if !ok || name == "" {
				return nil, fmt.Errorf("docstore: $count takes a field name")
			}
			if len(docs) == 0 {
				return nil, nil
			}
			docs = []bson.M{{name: int64(len(docs))}}
		default:
			return nil, fmt.Errorf("docstore: unsupported pipeline stage %s", op)
		}
	}
	return docs, nil
}

// group emits one document per distinct _id in first-seen order.
func group(docs []bson.M, spec bson.D) ([]bson.M, error) {
	var (
		idExpr any
		accs   bson.D
	)
	for _, e := range spec {
		if e.Key == "_id" {
			idExpr = e.Value
			continue
		}
		ad, ok := asDoc(e.Value)
		if !ok || len(ad) != 1 {
			return nil, fmt.Errorf("docstore: accumulator %s must have exactly one operator", e.Key)
		}
		switch ad[0].Key {
		case "$sum", "$first", "$last":
		default:
			return nil, fmt.Errorf("docstore: unsupported accumulator %s", ad[0].Key)
		}
		accs = append(accs, e)
	}

	var (
		order  []string
		groups = map[string]bson.M{}
	)
	for _, d := range docs {
		key, err := evalExpr(d, idExpr)
		if err != nil {
			return nil, err
		}
		k := groupKey(key)
		g, seen := groups[k]
		if !seen {
			g = bson.M{"_id": key}
			groups[k] = g
			order = append(order, k)
		}
		for _, a := range accs {
			ad, _ := asDoc(a.Value)
			v, err := evalExpr(d, ad[0].Value)
			if err != nil {
				return nil, err
			}
			switch ad[0].Key {
			case "$sum":
				g[a.Key] = addValues(g[a.Key], v)
			case "$first":
				if !seen {
					g[a.Key] = v
				}
			case "$last":
				g[a.Key] = v
			default:
				return nil, fmt.Errorf("docstore: unsupported accumulator %s", ad[0].Key)
			}
		}
	}

	out := make([]bson.M, 0, len(order))
	for _, k := range order {
		out = append(out, groups[k])
	}
	return out, nil
}

func groupKey(v any) string {
	n := normalise(v)
	if t, ok := n.(time.Time); ok {
		return fmt.Sprintf("date:%d", t.UnixMilli())
	}
	return fmt.Sprintf("%T:%v", n, n)
}

// addValues implements $sum: non-numeric operands count as zero, and the
// sum stays integral while every operand is.
func addValues(acc, v any) any {
	if acc == nil {
		acc = int64(0)
	}
	a, aInt := toInt(acc)
	b, bInt := toInt(v)
	if aInt && bInt {
		return a + b
	}
	af, _ := normalise(acc).(float64)
	bf, _ := normalise(v).(float64)
	return af + bf
}

func evalExpr(doc bson.M, expr any) (any, error) {
	if s, ok := expr.(string); ok {
		if strings.HasPrefix(s, "$") {
			v, _ := lookup(doc, s[1:])
			return v, nil
		}
		return s, nil
	}
	d, ok := asDoc(expr)
	if !ok {
		return expr, nil
	}
	if len(d) == 1 && strings.HasPrefix(d[0].Key, "$") {
		switch d[0].Key {
		case "$dateToString":
			return dateToString(doc, d[0].Value)
		default:
			return nil, fmt.Errorf("docstore: unsupported expression %s", d[0].Key)
		}
	}
	out := bson.M{}
	for _, e := range d {
		v, err := evalExpr(doc, e.Value)
		if err != nil {
			return nil, err
		}
		out[e.Key] = v
	}
	return out, nil
}

func dateToString(doc bson.M, arg any) (any, error) {
	args, ok := asDoc(arg)
	if !ok {
		return nil, fmt.Errorf("docstore: $dateToString takes a document")
	}
	var (
		format = "%Y-%m-%dT%H:%M:%S.%LZ"
		tz     = "UTC"
		date   any
	)
	for _, a := range args {
		switch a.Key {
		case "format":
			format, _ = a.Value.(string)
		case "timezone":
			tz, _ = a.Value.(string)
		case "date":
			v, err := evalExpr(doc, a.Value)
			if err != nil {
				return nil, err
			}
			date = v
		default:
			return nil, fmt.Errorf("docstore: $dateToString: unsupported argument %s", a.Key)
		}
	}
	t, ok := normalise(date).(time.Time)
	if !ok {
		return nil, nil
	}
	loc, err := location(tz)
	if err != nil {
		return nil, err
	}
	return strftime(t.In(loc), format)
}

var locations sync.Map

// location accepts IANA names and ±HH:MM offsets, as the server does.
func location(tz string) (*time.Location, error) {
	if l, ok := locations.Load(tz); ok {
		return l.(*time.Location), nil
	}
	var (
		loc *time.Location
		err error
	)
	if strings.HasPrefix(tz, "+") || strings.HasPrefix(tz, "-") {
		var t time.Time
		t, err = time.Parse("-07:00", tz)
		if err == nil {
			_, off := t.Zone()
			loc = time.FixedZone(tz, off)
		}
	} else {
		loc, err = time.LoadLocation(tz)
	}
	if err != nil {
		return nil, fmt.Errorf("docstore: timezone %q: %w", tz, err)
	}
	locations.Store(tz, loc)
	return loc, nil
}

func strftime(t time.Time, format string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			b.WriteByte(format[i])
			continue
		}
		i++
		if i == len(format) {
			return "", fmt.Errorf("docstore: dangling %% in date format")
		}
		switch format[i] {
		case 'Y':
			fmt.Fprintf(&b, "%04d", t.Year())
		case 'm':
			fmt.Fprintf(&b, "%02d", int(t.Month()))
		case 'd':
			fmt.Fprintf(&b, "%02d", t.Day())
		case 'H':
			fmt.Fprintf(&b, "%02d", t.Hour())
		case 'M':
			fmt.Fprintf(&b, "%02d", t.Minute())
		case 'S':
			fmt.Fprintf(&b, "%02d", t.Second())
		case 'L':
			fmt.Fprintf(&b, "%03d", t.Nanosecond()/int(time.Millisecond))
		case '%':
			b.WriteByte('%')
		default:
			return "", fmt.Errorf("docstore: unsupported date format specifier %%%c", format[i])
		}
	}
	return b.String(), nil
}
