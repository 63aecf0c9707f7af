package engine

import (
	"fmt"
	"sort"

	"github.com/ledgerline-ai/bulwark/internal/fieldpath"
)

// checkMissingValuesAny flags a record when any of its fields is null
// or absent. With a configured significant-field set, only those
// fields (given as field paths relative to the record) are inspected;
// otherwise every top-level field of the record counts. A record whose
// fields cannot be resolved at all (e.g. the record is not an object)
// is flagged, not an engine-wide error. An event without a records
// collection yields zero violations.
func checkMissingValuesAny(ev *Event, significantFields []string) (*checkResult, error) {
	records, ok := ev.Records()
	if !ok {
		return &checkResult{Summary: "no records collection"}, nil
	}

	res := &checkResult{}
	for i, rec := range records {
		if len(significantFields) > 0 {
			flagRecordForFields(res, i, rec, significantFields)
			continue
		}

		obj, isObj := rec.(map[string]any)
		if !isObj {
			if rec == nil {
				flag(res, i, "", "record is null")
			} else {
				flag(res, i, "", "record is not an object")
			}
			continue
		}

		// Deterministic field order for stable audit details.
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		flagged := false
		for _, k := range keys {
			if obj[k] == nil {
				if !flagged {
					res.ViolatingRecords = append(res.ViolatingRecords, i)
					flagged = true
				}
				res.Details = append(res.Details, RecordDetail{Index: i, Field: k, Reason: "value is null"})
			}
		}
	}

	finishMissing(res)
	return res, nil
}

// checkMissingValuesColumn flags every record whose targetColumn is
// absent or resolves to null.
func checkMissingValuesColumn(ev *Event, targetColumn string) (*checkResult, error) {
	records, ok := ev.Records()
	if !ok {
		return &checkResult{Summary: "no records collection"}, nil
	}

	res := &checkResult{}
	for i, rec := range records {
		flagRecordForFields(res, i, rec, []string{targetColumn})
	}

	finishMissing(res)
	return res, nil
}

// flagRecordForFields inspects the given field paths within one record
// and flags the record on the first absent or null field. Remaining
// missing fields are still detail-listed for observability.
func flagRecordForFields(res *checkResult, idx int, rec any, fields []string) {
	flagged := false
	for _, f := range fields {
		v, err := fieldpath.Resolve(rec, f)
		switch {
		case err != nil:
			note(res, idx, &flagged, f, "field absent")
		case v == nil:
			note(res, idx, &flagged, f, "value is null")
		}
	}
}

func note(res *checkResult, idx int, flagged *bool, field, reason string) {
	if !*flagged {
		res.ViolatingRecords = append(res.ViolatingRecords, idx)
		*flagged = true
	}
	res.Details = append(res.Details, RecordDetail{Index: idx, Field: field, Reason: reason})
}

func flag(res *checkResult, idx int, field, reason string) {
	res.ViolatingRecords = append(res.ViolatingRecords, idx)
	res.Details = append(res.Details, RecordDetail{Index: idx, Field: field, Reason: reason})
}

func finishMissing(res *checkResult) {
	if len(res.ViolatingRecords) > 0 {
		res.Violated = true
		res.Summary = fmt.Sprintf("%d record(s) with missing values", len(res.ViolatingRecords))
	} else {
		res.Summary = "no missing values"
	}
}
