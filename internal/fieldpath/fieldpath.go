// Package fieldpath resolves dotted/indexed path strings against
// JSON-decoded value trees (map[string]any, []any, scalars).
//
// Grammar: segments separated by dots, with zero or more bracketed
// array indices appended to a segment, e.g. "records[2].user_id" or
// "a.b[0][1].c". Keys may not be empty; indices are non-negative
// decimal integers.
package fieldpath

import (
	"fmt"
	"strconv"
	"strings"
)

// Segment is one step of a parsed path: either an object key or an
// array index.
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

// String returns the segment as it appeared in the path.
func (s Segment) String() string {
	if s.IsIndex {
		return "[" + strconv.Itoa(s.Index) + "]"
	}
	return s.Key
}

// ResolutionError reports the first segment at which resolution (or
// parsing) failed, along with the full path for diagnosability.
type ResolutionError struct {
	Path    string
	Segment string
	Msg     string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("fieldpath %q: segment %q: %s", e.Path, e.Segment, e.Msg)
}

// Parse splits a path string into segments. Returns a *ResolutionError
// on malformed syntax.
func Parse(path string) ([]Segment, error) {
	if path == "" {
		return nil, &ResolutionError{Path: path, Segment: "", Msg: "empty path"}
	}

	var segs []Segment
	for _, part := range strings.Split(path, ".") {
		key := part
		var brackets string
		if i := strings.IndexByte(part, '['); i >= 0 {
			key = part[:i]
			brackets = part[i:]
		}

		if key == "" && brackets == "" {
			return nil, &ResolutionError{Path: path, Segment: part, Msg: "empty segment"}
		}
		if key != "" {
			segs = append(segs, Segment{Key: key})
		} else if len(segs) == 0 {
			// A path may not start with a bare index like "[0].x" —
			// the root is addressed implicitly.
			return nil, &ResolutionError{Path: path, Segment: part, Msg: "path may not start with an index"}
		}

		for brackets != "" {
			if brackets[0] != '[' {
				return nil, &ResolutionError{Path: path, Segment: part, Msg: "unexpected character after index"}
			}
			end := strings.IndexByte(brackets, ']')
			if end < 0 {
				return nil, &ResolutionError{Path: path, Segment: part, Msg: "unterminated index"}
			}
			idxStr := brackets[1:end]
			idx, err := strconv.Atoi(idxStr)
			if err != nil || idx < 0 || (len(idxStr) > 1 && idxStr[0] == '0') {
				return nil, &ResolutionError{Path: path, Segment: part, Msg: "invalid array index " + strconv.Quote(idxStr)}
			}
			segs = append(segs, Segment{Index: idx, IsIndex: true})
			brackets = brackets[end+1:]
		}
	}
	return segs, nil
}

// Resolve walks root along path and returns the located sub-value.
// The returned value is borrowed from root; Resolve never mutates its
// input. An absent key, out-of-range index, or type mismatch yields a
// *ResolutionError carrying the first offending segment.
func Resolve(root any, path string) (any, error) {
	segs, err := Parse(path)
	if err != nil {
		return nil, err
	}
	return ResolveSegments(root, path, segs)
}

// ResolveSegments is Resolve for an already-parsed path. The path
// string is used only for error reporting.
func ResolveSegments(root any, path string, segs []Segment) (any, error) {
	cur := root
	for _, seg := range segs {
		if seg.IsIndex {
			arr, ok := cur.([]any)
			if !ok {
				return nil, &ResolutionError{Path: path, Segment: seg.String(), Msg: "index applied to non-array value"}
			}
			if seg.Index >= len(arr) {
				return nil, &ResolutionError{Path: path, Segment: seg.String(),
					Msg: fmt.Sprintf("index out of range (len %d)", len(arr))}
			}
			cur = arr[seg.Index]
			continue
		}

		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, &ResolutionError{Path: path, Segment: seg.Key, Msg: "key applied to non-object value"}
		}
		v, present := obj[seg.Key]
		if !present {
			return nil, &ResolutionError{Path: path, Segment: seg.Key, Msg: "key not found"}
		}
		cur = v
	}
	return cur, nil
}

// Exists reports whether path resolves against root. An explicit null
// at the target is a successful resolution (returns true); only a
// failed traversal returns false.
func Exists(root any, path string) bool {
	_, err := Resolve(root, path)
	return err == nil
}
