package engine

import (
	"fmt"
	"time"

	"github.com/ledgerline-ai/bulwark/internal/fieldpath"
)

// Accepted date layouts for old_date_records, tried in order.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// checkOldDateRecords flags records whose targetColumn holds a date
// older than now - thresholdDays. A record whose field is missing or
// unparsable as a date is NOT a violation of this check — that's the
// missing-value checks' territory — but it is detail-listed so
// operators can see it.
func checkOldDateRecords(ev *Event, targetColumn string, thresholdDays int, now time.Time) (*checkResult, error) {
	records, ok := ev.Records()
	if !ok {
		return &checkResult{Summary: "no records collection"}, nil
	}

	cutoff := now.AddDate(0, 0, -thresholdDays)

	res := &checkResult{}
	for i, rec := range records {
		v, err := fieldpath.Resolve(rec, targetColumn)
		if err != nil {
			res.Details = append(res.Details, RecordDetail{Index: i, Field: targetColumn, Reason: "field absent"})
			continue
		}

		ts, parseErr := parseDate(v)
		if parseErr != nil {
			res.Details = append(res.Details, RecordDetail{
				Index: i, Field: targetColumn,
				Reason: "unparsable date: " + parseErr.Error(),
			})
			continue
		}

		if ts.Before(cutoff) {
			res.ViolatingRecords = append(res.ViolatingRecords, i)
			res.Details = append(res.Details, RecordDetail{
				Index: i, Field: targetColumn,
				Reason: fmt.Sprintf("date %s older than %d day threshold", ts.Format(time.RFC3339), thresholdDays),
			})
		}
	}

	if len(res.ViolatingRecords) > 0 {
		res.Violated = true
		res.Summary = fmt.Sprintf("%d record(s) older than %d days", len(res.ViolatingRecords), thresholdDays)
	} else {
		res.Summary = fmt.Sprintf("no records older than %d days", thresholdDays)
	}
	return res, nil
}

// parseDate interprets a resolved field value as a timestamp. Strings
// are tried against the accepted layouts; numbers are unix seconds, or
// unix milliseconds when implausibly large for seconds.
func parseDate(v any) (time.Time, error) {
	switch val := v.(type) {
	case string:
		for _, layout := range dateLayouts {
			if ts, err := time.Parse(layout, val); err == nil {
				return ts, nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized date string %q", val)
	case float64:
		// Values above ~year 5000 in seconds are treated as millis.
		if val > 1e11 {
			return time.UnixMilli(int64(val)).UTC(), nil
		}
		return time.Unix(int64(val), 0).UTC(), nil
	case nil:
		return time.Time{}, fmt.Errorf("value is null")
	default:
		return time.Time{}, fmt.Errorf("value has type %T", v)
	}
}
