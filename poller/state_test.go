package poller_test

import (
	"testing"
	"time"

	"github.com/bluedot-ble/go-bluedot-poller/device"
	"github.com/bluedot-ble/go-bluedot-poller/poller"
	"github.com/stretchr/testify/require"
)

func reading(temp float64, at time.Time) device.Reading {
	return device.Reading{
		TemperatureCelsius: temp,
		AlarmSetpointCelsius: 74,
		ProbeConnected: true,
		HasTemperature: true,
		Rssi: -60,
		CapturedAt: at,
	}
}

func TestStore_FirstReadingChangesState(t *testing.T) {
	s := poller.NewStore(3)

	require.Equal(t, poller.StateChanged, s.RecordReading(reading(57, base)))

	st := s.Snapshot()
	require.True(t, st.Available)
	require.NotNil(t, st.LastReading)
	require.Equal(t, 57.0, st.LastReading.TemperatureCelsius)
	require.Equal(t, base, st.LastSeenAt)
}

func TestStore_IdenticalReadingIsUnchanged(t *testing.T) {
	s := poller.NewStore(3)

	s.RecordReading(reading(57, base))

	// same observable values, later capture: no spurious notification.
	got := s.RecordReading(reading(57, base.Add(time.Minute)))

	require.Equal(t, poller.StateUnchanged, got)
	require.Equal(t, base.Add(time.Minute), s.Snapshot().LastSeenAt)
}

func TestStore_DifferentReadingChangesState(t *testing.T) {
	s := poller.NewStore(3)

	s.RecordReading(reading(57, base))

	require.Equal(t, poller.StateChanged, s.RecordReading(reading(58, base.Add(time.Minute))))
}

func TestStore_FailuresBelowThresholdKeepAvailability(t *testing.T) {
	s := poller.NewStore(3)

	s.RecordReading(reading(57, base))

	require.Equal(t, poller.StateUnchanged, s.RecordFailure())
	require.Equal(t, poller.StateUnchanged, s.RecordFailure())

	st := s.Snapshot()
	require.True(t, st.Available)
	require.Equal(t, 2, st.ConsecutiveFailures)
}

func TestStore_ThresholdFlipsUnavailableAndRetainsReading(t *testing.T) {
	s := poller.NewStore(3)

	s.RecordReading(reading(57, base))

	s.RecordFailure()
	s.RecordFailure()
	require.Equal(t, poller.StateChanged, s.RecordFailure())

	st := s.Snapshot()
	require.False(t, st.Available)
	require.NotNil(t, st.LastReading)
	require.Equal(t, 57.0, st.LastReading.TemperatureCelsius)
}

func TestStore_SuccessAfterFailuresRestoresAvailability(t *testing.T) {
	s := poller.NewStore(3)

	s.RecordReading(reading(57, base))

	for i := 0; i < 3; i += 1 {
		s.RecordFailure()
	}

	// identical reading, but availability flips: must notify.
	require.Equal(t, poller.StateChanged, s.RecordReading(reading(57, base.Add(time.Hour))))

	st := s.Snapshot()
	require.True(t, st.Available)
	require.Equal(t, 0, st.ConsecutiveFailures)
}

func TestStore_FailuresBeforeFirstReadingStayUnchanged(t *testing.T) {
	s := poller.NewStore(3)

	for i := 0; i < 5; i += 1 {
		require.Equal(t, poller.StateUnchanged, s.RecordFailure())
	}

	st := s.Snapshot()
	require.False(t, st.Available)
	require.Nil(t, st.LastReading)
}

func TestStore_SnapshotIsIsolated(t *testing.T) {
	s := poller.NewStore(3)

	s.RecordReading(reading(57, base))

	st := s.Snapshot()
	st.LastReading.TemperatureCelsius = 999

	require.Equal(t, 57.0, s.Snapshot().LastReading.TemperatureCelsius)
}
