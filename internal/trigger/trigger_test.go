package trigger

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 10, 2, 0, 0, time.UTC)

func TestInterval_NextFireTime(t *testing.T) {
	tr, err := NewInterval(5*time.Second, t0, time.Time{})
	require.NoError(t, err)

	first, ok := tr.NextFireTime(time.Time{}, time.Time{})
	require.True(t, ok)
	assert.Equal(t, t0.Add(5*time.Second), first)

	second, ok := tr.NextFireTime(first, time.Time{})
	require.True(t, ok)
	assert.Equal(t, t0.Add(10*time.Second), second)
}

func TestInterval_End(t *testing.T) {
	tr, err := NewInterval(time.Minute, t0, t0.Add(2*time.Minute))
	require.NoError(t, err)

	next, ok := tr.NextFireTime(t0.Add(time.Minute), time.Time{})
	require.True(t, ok)
	assert.Equal(t, t0.Add(2*time.Minute), next)

	_, ok = tr.NextFireTime(next, time.Time{})
	assert.False(t, ok, "fire after end date must be exhausted")
}

func TestInterval_InvalidParams(t *testing.T) {
	_, err := NewInterval(0, t0, time.Time{})
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = NewInterval(time.Second, t0, t0.Add(-time.Hour))
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestCron_NextFireTime(t *testing.T) {
	tr, err := NewCron("*/5 * * * *", time.UTC, t0, time.Time{})
	require.NoError(t, err)

	first, ok := tr.NextFireTime(time.Time{}, time.Time{})
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 5, 0, 0, time.UTC), first)

	second, ok := tr.NextFireTime(first, time.Time{})
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 10, 0, 0, time.UTC), second)

	// A reference time takes over from Start when there is no previous fire.
	fromRef, ok := tr.NextFireTime(time.Time{}, t0.Add(time.Hour))
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 1, 11, 5, 0, 0, time.UTC), fromRef)
}

func TestCron_SecondsAndDescriptors(t *testing.T) {
	tr, err := NewCron("30 * * * * *", time.UTC, t0, time.Time{})
	require.NoError(t, err)
	next, ok := tr.NextFireTime(t0, time.Time{})
	require.True(t, ok)
	assert.Equal(t, t0.Add(30*time.Second), next)

	daily, err := NewCron("@daily", time.UTC, t0, time.Time{})
	require.NoError(t, err)
	next, ok = daily.NextFireTime(t0, time.Time{})
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), next)
}

func TestCron_Location(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	tr, err := NewCron("0 9 * * *", loc, t0, time.Time{})
	require.NoError(t, err)

	next, ok := tr.NextFireTime(t0, time.Time{})
	require.True(t, ok)
	// 10:02 UTC is 19:02 in Tokyo, so the next 09:00 there is the following day.
	assert.True(t, next.Equal(time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)), "got %s", next)
}

func TestCron_EndAndInvalid(t *testing.T) {
	tr, err := NewCron("0 * * * *", time.UTC, t0, t0.Add(30*time.Minute))
	require.NoError(t, err)
	_, ok := tr.NextFireTime(t0, time.Time{})
	assert.False(t, ok)

	_, err = NewCron("not a cron", time.UTC, t0, time.Time{})
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = NewCron("  ", time.UTC, t0, time.Time{})
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestDate_FiresOnce(t *testing.T) {
	tr, err := NewDate(t0)
	require.NoError(t, err)

	first, ok := tr.NextFireTime(time.Time{}, time.Time{})
	require.True(t, ok)
	assert.Equal(t, t0, first)

	_, ok = tr.NextFireTime(first, time.Time{})
	assert.False(t, ok)

	_, err = NewDate(time.Time{})
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestEncodeDecode_PreservesSchedule(t *testing.T) {
	interval, err := NewInterval(90*time.Second, t0, t0.Add(time.Hour))
	require.NoError(t, err)
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	cronTr, err := NewCron("15 */2 * * *", loc, t0, time.Time{})
	require.NoError(t, err)
	date, err := NewDate(t0.Add(time.Hour))
	require.NoError(t, err)

	for _, tr := range []Trigger{interval, cronTr, date} {
		spec, err := Encode(tr)
		require.NoError(t, err)

		raw, err := json.Marshal(spec)
		require.NoError(t, err)
		var back Spec
		require.NoError(t, json.Unmarshal(raw, &back))

		decoded, err := Decode(back)
		require.NoError(t, err)
		assert.IsType(t, tr, decoded)

		want, wantOK := tr.NextFireTime(time.Time{}, time.Time{})
		got, gotOK := decoded.NextFireTime(time.Time{}, time.Time{})
		assert.Equal(t, wantOK, gotOK, spec.Type)
		assert.True(t, want.Equal(got), "%s: want %s got %s", spec.Type, want, got)
	}
}

type customTrigger struct{}

func (customTrigger) NextFireTime(time.Time, time.Time) (time.Time, bool) { return time.Time{}, false }

func TestEncode_UnknownType(t *testing.T) {
	_, err := Encode(customTrigger{})
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode(Spec{Type: "lunar", Params: json.RawMessage(`{}`)})
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = Decode(Spec{Type: TypeInterval})
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = Decode(Spec{Type: TypeInterval, Params: json.RawMessage(`{"every":"soon","start":"2024-03-01T10:02:00Z"}`)})
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = Decode(Spec{Type: TypeCron, Params: json.RawMessage(`{"expr":"* * * * *","timezone":"Mars/Olympus","start":"2024-03-01T10:02:00Z"}`)})
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = Decode(Spec{Type: TypeDate, Params: json.RawMessage(`[1,2]`)})
	assert.ErrorIs(t, err, ErrInvalidParams)
}
