package buffer

import (
	"fmt"
	"strconv"
	"time"

	"github.com/fedquery/fq/batch"
	"github.com/goccy/go-json"
)

/*
Spilled pages are encoded as JSON. Each value is written with a one-letter type
tag so that a page decodes to exactly the Go values that were written, whether
or not the buffer knows its schema:

	[[{"t":"i","v":1},{"t":"s","v":"a"},null], ...]

Floats are written as strings so that NaN and the infinities survive.
Timestamps are written in RFC 3339 with nanoseconds in their own offset, along
with the names of their location and zone, and are restored in that location.
*/

////////////////////////////////////////////////////////////////////////////////

const (
	tagInt       = "i"
	tagFloat     = "f"
	tagString    = "s"
	tagBool      = "b"
	tagTimestamp = "t"
)

type cell struct {
	T    string          `json:"t"`
	V    json.RawMessage `json:"v"`
	Loc  string          `json:"l,omitempty"`
	Zone string          `json:"z,omitempty"`
}

func encodeValue(v any) (*cell, error) {
	c := &cell{}
	switch x := v.(type) {
	case nil:
		return nil, nil
	case int64:
		c.T = tagInt
	case float64:
		c.T = tagFloat
		v = strconv.FormatFloat(x, 'g', -1, 64)
	case string:
		c.T = tagString
	case bool:
		c.T = tagBool
	case time.Time:
		c.T = tagTimestamp
		c.Loc = x.Location().String()
		c.Zone, _ = x.Zone()
		v = x.Format(time.RFC3339Nano)
	default:
		return nil, UnsupportedValueError{Value: v}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}
	c.V = raw
	return c, nil
}

// decodeTime parses a timestamp and restores its location. Locations that
// cannot be loaded by name become fixed zones with the recorded offset.
func decodeTime(s, loc, zone string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	switch {
	case loc == "UTC":
		return t.UTC(), nil
	case loc == "Local":
		return t.In(time.Local), nil
	case loc != zone:
		if l, err := time.LoadLocation(loc); err == nil {
			return t.In(l), nil
		}
	}
	_, offset := t.Zone()
	return t.In(time.FixedZone(zone, offset)), nil
}

func decodeValue(c *cell) (any, error) {
	if c == nil {
		return nil, nil
	}
	var err error
	switch c.T {
	case tagInt:
		var x int64
		err = json.Unmarshal(c.V, &x)
		return x, err
	case tagFloat:
		var x string
		if err = json.Unmarshal(c.V, &x); err != nil {
			return nil, err
		}
		return strconv.ParseFloat(x, 64)
	case tagString:
		var x string
		err = json.Unmarshal(c.V, &x)
		return x, err
	case tagBool:
		var x bool
		err = json.Unmarshal(c.V, &x)
		return x, err
	case tagTimestamp:
		var s string
		if err = json.Unmarshal(c.V, &s); err != nil {
			return nil, err
		}
		return decodeTime(s, c.Loc, c.Zone)
	default:
		return nil, fmt.Errorf("unrecognized value tag %q", c.T)
	}
}

// encodeRows encodes rows for spill storage.
func encodeRows(rows []batch.Row) ([]byte, error) {
	out := make([][]*cell, len(rows))
	for i, row := range rows {
		cells := make([]*cell, len(row))
		for j, v := range row {
			c, err := encodeValue(v)
			if err != nil {
				return nil, err
			}
			cells[j] = c
		}
		out[i] = cells
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode page: %w", err)
	}
	return data, nil
}

// decodeRows decodes rows written by encodeRows.
func decodeRows(data []byte) ([]batch.Row, error) {
	var in [][]*cell
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("failed to decode page: %w", err)
	}
	rows := make([]batch.Row, len(in))
	for i, cells := range in {
		row := make(batch.Row, len(cells))
		for j, c := range cells {
			v, err := decodeValue(c)
			if err != nil {
				return nil, fmt.Errorf("failed to decode value: %w", err)
			}
			row[j] = v
		}
		rows[i] = row
	}
	return rows, nil
}
