package dataset

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	secondsPerDay = 24 * 60 * 60

	// thresholds used to guess the unit of integer timestamps
	nanosThreshold  = 1e17
	microsThreshold = 1e14
	millisThreshold = 1e11
)

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
}

// Validate checks that the table carries every required column and converts
// usable rows into observations. Only structure is checked, not plausibility.
func Validate(t *Table) (*Validated, error) {
	if t == nil {
		return nil, &ValidationError{Missing: append([]string(nil), RequiredColumns...)}
	}

	idx := t.index()
	missing := make([]string, 0)
	for _, c := range RequiredColumns {
		if _, ok := idx[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Missing: missing}
	}

	v := &Validated{
		Observations: make([]Observation, 0, len(t.Rows)),
		Windows:      len(t.Rows),
	}

	for i, row := range t.Rows {
		o, err := toObservation(row, idx)
		if err != nil {
			slog.Debug("dropping row", "row", i, "reason", err)
			v.Dropped++
			continue
		}
		v.Observations = append(v.Observations, o)
	}

	return v, nil
}

func toObservation(row []any, idx map[string]int) (Observation, error) {
	var o Observation
	var err error

	cell := func(name string) any {
		i := idx[name]
		if i >= len(row) {
			return nil
		}
		return row[i]
	}

	if o.InstrumentID, err = toString(cell(ColumnTicker)); err != nil {
		return o, fmt.Errorf("%s: %w", ColumnTicker, err)
	}
	if o.Date, err = toTime(cell(ColumnDate)); err != nil {
		return o, fmt.Errorf("%s: %w", ColumnDate, err)
	}
	h, err := toFloat(cell(ColumnT))
	if err != nil {
		return o, fmt.Errorf("%s: %w", ColumnT, err)
	}
	o.Horizon = int(h)
	if o.Z, err = toFloat(cell(ColumnZ)); err != nil {
		return o, fmt.Errorf("%s: %w", ColumnZ, err)
	}
	if o.Sigma, err = toFloat(cell(ColumnSigma)); err != nil {
		return o, fmt.Errorf("%s: %w", ColumnSigma, err)
	}
	return o, nil
}

var errNull = errors.New("null value")

func toString(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", errNull
	case string:
		if strings.TrimSpace(t) == "" {
			return "", errNull
		}
		return t, nil
	case []byte:
		return string(t), nil
	default:
		return fmt.Sprint(t), nil
	}
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case nil:
		return 0, errNull
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case bool:
		return 0, fmt.Errorf("unexpected boolean")
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, errNull
		}
		switch strings.ToLower(s) {
		case "nan":
			return math.NaN(), nil
		case "null", "none", "na":
			return 0, errNull
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("parsing %q: %w", s, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

// toTime accepts date32 (days since epoch), integer timestamps of any common
// unit and the usual string layouts.
func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, errNull
	case time.Time:
		return t.UTC(), nil
	case int32:
		return time.Unix(int64(t)*secondsPerDay, 0).UTC(), nil
	case int64:
		switch {
		case math.Abs(float64(t)) >= nanosThreshold:
			return time.Unix(0, t).UTC(), nil
		case math.Abs(float64(t)) >= microsThreshold:
			return time.UnixMicro(t).UTC(), nil
		case math.Abs(float64(t)) >= millisThreshold:
			return time.UnixMilli(t).UTC(), nil
		default:
			return time.Unix(t, 0).UTC(), nil
		}
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, errNull
		}
		for _, layout := range dateLayouts {
			if d, err := time.Parse(layout, s); err == nil {
				return d.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized date %q", s)
	default:
		return time.Time{}, fmt.Errorf("unsupported type %T", v)
	}
}
