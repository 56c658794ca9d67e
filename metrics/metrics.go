package metrics

import (
  "github.com/bluedot-ble/go-bluedot-poller/poller"
  "github.com/prometheus/client_golang/prometheus"
)

var (
  descTemperature = prometheus.NewDesc(
    "sensor_temperature_celsius",
    "Temperature reported by the thermometer in Celsius.",
    []string{"name"},
    nil,
  )

  descAlarmSetpoint = prometheus.NewDesc(
    "sensor_alarm_setpoint_celsius",
    "Alarm setpoint configured on the thermometer in Celsius.",
    []string{"name"},
    nil,
  )

  descProbeConnected = prometheus.NewDesc(
    "sensor_probe_connected",
    "Whether the temperature probe is plugged in. 1 = connected.",
    []string{"name"},
    nil,
  )

  descAlarmActive = prometheus.NewDesc(
    "sensor_alarm_active",
    "Whether the temperature alarm is currently firing. 1 = active.",
    []string{"name"},
    nil,
  )

  descAlarmSilenced = prometheus.NewDesc(
    "sensor_alarm_silenced",
    "Whether the temperature alarm has been silenced. 1 = silenced.",
    []string{"name"},
    nil,
  )

  descAvailable = prometheus.NewDesc(
    "sensor_available",
    "Whether the device is reachable. 0 means the exported reading is stale.",
    []string{"name"},
    nil,
  )

  descRssi = prometheus.NewDesc(
    "sensor_rssi_dbm",
    "Signal strength of the device's last advertisement in dBm.",
    []string{"name"},
    nil,
  )

  descConsecutiveFailures = prometheus.NewDesc(
    "sensor_consecutive_failed_polls",
    "Number of consecutive failed poll cycles for the device.",
    []string{"name"},
    nil,
  )

  descLastSeen = prometheus.NewDesc(
    "sensor_last_seen_timestamp_seconds",
    "Unix timestamp of the last successful poll.",
    []string{"name"},
    nil,
  )
)

// SnapshotFunc returns the current state of every paired device, keyed by
// device name.
type SnapshotFunc func() map[string]poller.DeviceState

type collector struct {
  SnapshotFunc
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
  prometheus.DescribeByCollect(c, ch)
}

func boolGauge(v bool) float64 {
  if v {
    return 1
  }

  return 0
}

// Collect exports the last known good state for every device. Stale readings
// from an unavailable device keep being exported, flagged by sensor_available,
// so consumers see "unavailable" rather than a vanished series.
func (c *collector) Collect(ch chan<- prometheus.Metric) {
  for name, state := range c.SnapshotFunc() {
    ch <- prometheus.MustNewConstMetric(
      descAvailable, prometheus.GaugeValue, boolGauge(state.Available), name,
    )

    ch <- prometheus.MustNewConstMetric(
      descConsecutiveFailures, prometheus.GaugeValue, float64(state.ConsecutiveFailures), name,
    )

    reading := state.LastReading

    if reading == nil {
      continue
    }

    ts := state.LastSeenAt

    ch <- prometheus.NewMetricWithTimestamp(ts, prometheus.MustNewConstMetric(
      descProbeConnected, prometheus.GaugeValue, boolGauge(reading.ProbeConnected), name,
    ))

    ch <- prometheus.NewMetricWithTimestamp(ts, prometheus.MustNewConstMetric(
      descAlarmActive, prometheus.GaugeValue, boolGauge(reading.AlarmActive), name,
    ))

    ch <- prometheus.NewMetricWithTimestamp(ts, prometheus.MustNewConstMetric(
      descAlarmSilenced, prometheus.GaugeValue, boolGauge(reading.AlarmSilenced), name,
    ))

    if reading.HasTemperature {
      ch <- prometheus.NewMetricWithTimestamp(ts, prometheus.MustNewConstMetric(
        descTemperature, prometheus.GaugeValue, reading.TemperatureCelsius, name,
      ))
    }

    ch <- prometheus.NewMetricWithTimestamp(ts, prometheus.MustNewConstMetric(
      descAlarmSetpoint, prometheus.GaugeValue, reading.AlarmSetpointCelsius, name,
    ))

    if reading.Rssi != 0 {
      ch <- prometheus.MustNewConstMetric(
        descRssi, prometheus.GaugeValue, float64(reading.Rssi), name,
      )
    }

    ch <- prometheus.MustNewConstMetric(
      descLastSeen, prometheus.GaugeValue, float64(ts.Unix()), name,
    )
  }
}

func RegisterCollector(f SnapshotFunc, reg prometheus.Registerer) {
  c := &collector{f}

  reg.MustRegister(c)
}
