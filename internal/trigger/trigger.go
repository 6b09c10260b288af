package trigger

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnknownType   = errors.New("unknown trigger type")
	ErrInvalidParams = errors.New("invalid trigger params")
)

// Trigger computes the next fire time of a recurring job.
//
// A zero prev means the job has never fired. A zero ref means no reference
// time is available. The second return value is false once the rule is
// exhausted and the job must never fire again. Implementations must be pure.
type Trigger interface {
	NextFireTime(prev, ref time.Time) (time.Time, bool)
}

// Type tags used on the wire.
const (
	TypeInterval = "interval"
	TypeCron     = "cron"
	TypeDate     = "date"
)

// Spec is the tagged wire form of a trigger.
type Spec struct {
	Type   string          `json:"type"`
	Params json.RawMessage `json:"params"`
}

// Encode converts a trigger into its tagged wire form.
func Encode(t Trigger) (Spec, error) {
	var (
		typ    string
		params any
	)
	switch v := t.(type) {
	case *Interval:
		typ, params = TypeInterval, v.params()
	case *Cron:
		typ, params = TypeCron, v.params()
	case *Date:
		typ, params = TypeDate, v.params()
	default:
		return Spec{}, fmt.Errorf("%w: %T", ErrUnknownType, t)
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return Spec{}, fmt.Errorf("marshal %s params: %w", typ, err)
	}
	return Spec{Type: typ, Params: raw}, nil
}

// Decode rebuilds a trigger from its tagged wire form.
func Decode(s Spec) (Trigger, error) {
	switch s.Type {
	case TypeInterval:
		var p intervalParams
		if err := unmarshalParams(s, &p); err != nil {
			return nil, err
		}
		return p.trigger()
	case TypeCron:
		var p cronParams
		if err := unmarshalParams(s, &p); err != nil {
			return nil, err
		}
		return p.trigger()
	case TypeDate:
		var p dateParams
		if err := unmarshalParams(s, &p); err != nil {
			return nil, err
		}
		return p.trigger()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, s.Type)
	}
}

func unmarshalParams(s Spec, dst any) error {
	if len(s.Params) == 0 {
		return fmt.Errorf("%w: %s trigger has no params", ErrInvalidParams, s.Type)
	}
	if err := json.Unmarshal(s.Params, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidParams, s.Type, err)
	}
	return nil
}

// pastEnd reports whether t falls after a non-zero end date.
func pastEnd(t, end time.Time) bool {
	return !end.IsZero() && t.After(end)
}
