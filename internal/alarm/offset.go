package alarm

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Offset names how long before an event a notification fires.
type Offset string

const (
	Offset10Minutes Offset = "10m"
	Offset30Minutes Offset = "30m"
	Offset1Hour     Offset = "1h"
	Offset12Hours   Offset = "12h"
	Offset1Day      Offset = "1d"
	Offset1Week     Offset = "1w"
)

// ErrUnknownOffset is returned for codes outside the fixed enumeration.
var ErrUnknownOffset = errors.New("alarm: unknown offset")

type offsetSpec struct {
	duration time.Duration
	label    string
}

var offsetSpecs = map[Offset]offsetSpec{
	Offset10Minutes: {duration: 10 * time.Minute, label: "10분"},
	Offset30Minutes: {duration: 30 * time.Minute, label: "30분"},
	Offset1Hour:     {duration: time.Hour, label: "1시간"},
	Offset12Hours:   {duration: 12 * time.Hour, label: "12시간"},
	Offset1Day:      {duration: 24 * time.Hour, label: "1일"},
	Offset1Week:     {duration: 7 * 24 * time.Hour, label: "1주일"},
}

// Offsets lists every supported offset, shortest first.
func Offsets() []Offset {
	return []Offset{Offset10Minutes, Offset30Minutes, Offset1Hour, Offset12Hours, Offset1Day, Offset1Week}
}

// ParseOffset resolves an offset code.
func ParseOffset(code string) (Offset, error) {
	o := Offset(strings.TrimSpace(code))
	if !o.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownOffset, code)
	}
	return o, nil
}

// ParseOffsets resolves codes, dropping duplicates while keeping first-seen order.
func ParseOffsets(codes []string) ([]Offset, error) {
	out := make([]Offset, 0, len(codes))
	seen := make(map[Offset]struct{}, len(codes))
	for _, code := range codes {
		o, err := ParseOffset(code)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[o]; dup {
			continue
		}
		seen[o] = struct{}{}
		out = append(out, o)
	}
	return out, nil
}

// Valid reports whether o is part of the enumeration.
func (o Offset) Valid() bool {
	_, ok := offsetSpecs[o]
	return ok
}

// Duration returns how far before the event o fires. Zero for unknown codes.
func (o Offset) Duration() time.Duration {
	return offsetSpecs[o].duration
}

// Label returns the Korean label used in notification text.
func (o Offset) Label() string {
	if spec, ok := offsetSpecs[o]; ok {
		return spec.label
	}
	return string(o)
}
