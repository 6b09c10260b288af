package job

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"elric-go/internal/trigger"
)

// CodecVersion is the schema version written by Encode.
const CodecVersion = 1

var (
	ErrMalformed          = errors.New("malformed job payload")
	ErrUnsupportedVersion = errors.New("unsupported job payload version")
)

// wireJob is the versioned payload schema shared with remote callers.
type wireJob struct {
	Version     int            `json:"v"`
	ID          string         `json:"id"`
	Func        string         `json:"func"`
	Args        []any          `json:"args"`
	Kwargs      map[string]any `json:"kwargs"`
	Trigger     *trigger.Spec  `json:"trigger,omitempty"`
	NextRunTime *time.Time     `json:"next_run_time,omitempty"`
	FilterKey   string         `json:"filter_key,omitempty"`
	FilterValue string         `json:"filter_value,omitempty"`
}

// Encode serializes the full job state, including its trigger.
func Encode(j *Job) ([]byte, error) {
	w := wireJob{
		Version:     CodecVersion,
		ID:          j.ID,
		Func:        j.Func,
		Args:        j.Args,
		Kwargs:      j.Kwargs,
		FilterKey:   j.FilterKey,
		FilterValue: j.FilterValue,
	}
	if w.Args == nil {
		w.Args = []any{}
	}
	if w.Kwargs == nil {
		w.Kwargs = map[string]any{}
	}
	if j.Trigger != nil {
		spec, err := trigger.Encode(j.Trigger)
		if err != nil {
			return nil, fmt.Errorf("encode job %s: %w", j.ID, err)
		}
		w.Trigger = &spec
	}
	if !j.NextRunTime.IsZero() {
		next := j.NextRunTime
		w.NextRunTime = &next
	}
	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("encode job %s: %w", j.ID, err)
	}
	return data, nil
}

// Decode parses a payload produced by Encode. Numbers in args and kwargs
// are kept as json.Number so re-encoding is lossless.
func Decode(data []byte) (*Job, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var w wireJob
	if err := dec.Decode(&w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if w.Version != CodecVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, w.Version)
	}
	if w.Func == "" {
		return nil, fmt.Errorf("%w: missing callable reference", ErrMalformed)
	}

	j := &Job{
		ID:          w.ID,
		Func:        w.Func,
		Args:        w.Args,
		Kwargs:      w.Kwargs,
		FilterKey:   w.FilterKey,
		FilterValue: w.FilterValue,
	}
	if j.Kwargs == nil {
		j.Kwargs = map[string]any{}
	}
	if w.Trigger != nil {
		tr, err := trigger.Decode(*w.Trigger)
		if err != nil {
			return nil, fmt.Errorf("decode job %s: %w", w.ID, err)
		}
		j.Trigger = tr
	}
	if w.NextRunTime != nil {
		j.NextRunTime = *w.NextRunTime
	}
	return j, nil
}
