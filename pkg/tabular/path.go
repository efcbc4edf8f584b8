package tabular

import (
	"fmt"
	"strings"
)

// PathError reports a response path that cannot be followed.
type PathError struct {
	Path    string
	Segment string
	Reason  string
}

func (e *PathError) Error() string {
	if e.Segment == "" {
		return fmt.Sprintf("response path %q: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("response path %q: segment %q %s", e.Path, e.Segment, e.Reason)
}

// Lookup walks a dot-separated path of object keys from v. An empty path
// selects v itself. Every segment must exist; there is no partial result.
func (v Value) Lookup(path string) (Value, error) {
	if path == "" {
		return v, nil
	}

	cur := v
	for _, seg := range strings.Split(path, ".") {
		if cur.kind != Object {
			return Value{}, &PathError{Path: path, Segment: seg, Reason: fmt.Sprintf("cannot index into %s", cur.kind)}
		}
		next, ok := cur.obj.fields[seg]
		if !ok {
			return Value{}, &PathError{Path: path, Segment: seg, Reason: "not found"}
		}
		cur = next
	}
	return cur, nil
}

// Records locates the record array at path and checks that every element is
// an object.
func (v Value) Records(path string) ([]Value, error) {
	target, err := v.Lookup(path)
	if err != nil {
		return nil, err
	}
	if target.kind != Array {
		return nil, &PathError{Path: path, Reason: fmt.Sprintf("points to %s, want array", target.kind)}
	}
	for i, rec := range target.arr {
		if rec.kind != Object {
			return nil, &PathError{Path: path, Reason: fmt.Sprintf("element %d is %s, want object", i, rec.kind)}
		}
	}
	return target.arr, nil
}
