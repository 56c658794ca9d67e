package poller

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	ble_mod "github.com/go-ble/ble"
	"github.com/stretchr/testify/require"

	"github.com/bluedot-ble/go-bluedot-poller/ble"
)

type fakeScanner struct {
	started chan struct{}
	onAdv func(ble.Advertisement)
}

func newFakeScanner() *fakeScanner {
	return &fakeScanner{started: make(chan struct{})}
}

func (f *fakeScanner) Scan(ctx context.Context, onAdvertisement func(ble.Advertisement)) error {
	f.onAdv = onAdvertisement
	close(f.started)

	<-ctx.Done()
	return nil
}

type countingTransport struct {
	calls int32
}

func (f *countingTransport) Poll(_ context.Context, _ net.HardwareAddr, _ ble.UUID) ([]byte, error) {
	atomic.AddInt32(&f.calls, 1)
	return []byte{57}, nil
}

type fakeAdvertisement struct {
	addr ble_mod.Addr
	rssi int
}

func (f fakeAdvertisement) LocalName() string { return "BlueDOT" }
func (f fakeAdvertisement) ManufacturerData() []byte { return nil }
func (f fakeAdvertisement) ServiceData() []ble_mod.ServiceData { return nil }
func (f fakeAdvertisement) Services() []ble_mod.UUID { return nil }
func (f fakeAdvertisement) OverflowService() []ble_mod.UUID { return nil }
func (f fakeAdvertisement) TxPowerLevel() int { return 0 }
func (f fakeAdvertisement) Connectable() bool { return true }
func (f fakeAdvertisement) SolicitedService() []ble_mod.UUID { return nil }
func (f fakeAdvertisement) RSSI() int { return f.rssi }
func (f fakeAdvertisement) Addr() ble_mod.Addr { return f.addr }

func testConfig() Config {
	return Config{
		MinPollInterval: 30 * time.Second,
		FallbackInterval: time.Hour,
		AttemptTimeout: time.Second,
		MaxRetries: 2,
		BackoffFactor: time.Millisecond,
		FailureThreshold: 3,
	}
}

func TestSupervisor_AddBeforeStartFails(t *testing.T) {
	s := NewSupervisor(&countingTransport{}, newFakeScanner(), testConfig(), nil)

	require.Error(t, s.Add(fakeDevice{}))
}

func TestSupervisor_PairUnpairLifecycle(t *testing.T) {
	scanner := newFakeScanner()
	s := NewSupervisor(&countingTransport{}, scanner, testConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	<-scanner.started

	require.NoError(t, s.Add(fakeDevice{}))
	require.Error(t, s.Add(fakeDevice{}), "pairing the same device twice must fail")

	states := s.States()
	require.Contains(t, states, "bluedot-test")
	require.False(t, states["bluedot-test"].Available)

	s.Remove(fakeDevice{}.Addr())
	require.Empty(t, s.States())

	cancel()
	require.NoError(t, s.Wait())
}

func TestSupervisor_DispatchTriggersPoll(t *testing.T) {
	scanner := newFakeScanner()
	transport := &countingTransport{}

	var notifications int32

	s := NewSupervisor(transport, scanner, testConfig(), func(net.HardwareAddr, DeviceState) {
		atomic.AddInt32(&notifications, 1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx)
	<-scanner.started

	require.NoError(t, s.Add(fakeDevice{}))

	scanner.onAdv(fakeAdvertisement{
		addr: ble_mod.NewAddr(fakeDevice{}.Addr().String()),
		rssi: -60,
	})

	require.Eventually(t, func() bool {
		st := s.States()["bluedot-test"]
		return st.Available && atomic.LoadInt32(&notifications) == 1
	}, time.Second, 10*time.Millisecond)

	require.Equal(t, int32(1), atomic.LoadInt32(&transport.calls))

	st := s.States()["bluedot-test"]
	require.NotNil(t, st.LastReading)
	require.Equal(t, 57.0, st.LastReading.TemperatureCelsius)
	require.Equal(t, -60, st.LastReading.Rssi)
}

func TestSupervisor_UnknownAdvertisementIsIgnored(t *testing.T) {
	scanner := newFakeScanner()
	transport := &countingTransport{}
	s := NewSupervisor(transport, scanner, testConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx)
	<-scanner.started

	require.NoError(t, s.Add(fakeDevice{}))

	scanner.onAdv(fakeAdvertisement{
		addr: ble_mod.NewAddr("de:ad:be:ef:00:01"),
		rssi: -40,
	})

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(0), atomic.LoadInt32(&transport.calls))
}
