package mqtt

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kilianp07/evhub/core/events"
	"github.com/kilianp07/evhub/infra/logger"
)

const mosquittoConf = `listener 1883
allow_anonymous true
persistence false
`

// startMosquitto launches a disposable broker and returns its URL.
func startMosquitto(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("container test skipped in short mode")
	}
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not installed")
	}
	path := filepath.Join(t.TempDir(), "mosquitto.conf")
	require.NoError(t, os.WriteFile(path, []byte(mosquittoConf), 0644))

	ctx := context.Background()
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "eclipse-mosquitto:2.0",
			ExposedPorts: []string{"1883/tcp"},
			WaitingFor:   wait.ForListeningPort("1883/tcp"),
			Files: []tc.ContainerFile{{
				HostFilePath:      path,
				ContainerFilePath: "/mosquitto/config/mosquitto.conf",
				FileMode:          0644,
			}},
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("mosquitto container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = cont.Terminate(context.Background()) })

	host, err := cont.Host(ctx)
	require.NoError(t, err)
	port, err := cont.MappedPort(ctx, "1883")
	require.NoError(t, err)
	return fmt.Sprintf("tcp://%s:%s", host, port.Port())
}

func TestPahoClient_Broker(t *testing.T) {
	broker := startMosquitto(t)

	got := make(chan events.Event, 1)
	cli, err := NewPahoClient(Config{Broker: broker, QoS: map[string]byte{"snapshot": 1, "events": 1}},
		WithLogger(logger.NopLogger{}), WithEventHandler(func(ev events.Event) {
			select {
			case got <- ev:
			default:
			}
		}))
	require.NoError(t, err)
	defer cli.Close()

	peer := paho.NewClient(paho.NewClientOptions().AddBroker(broker).SetClientID("peer"))
	tok := peer.Connect()
	require.True(t, tok.WaitTimeout(5*time.Second))
	require.NoError(t, tok.Error())
	defer peer.Disconnect(100)

	snaps := make(chan []byte, 1)
	tok = peer.Subscribe(DefaultSnapshotTopic, 1, func(_ paho.Client, m paho.Message) { snaps <- m.Payload() })
	require.True(t, tok.WaitTimeout(5*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, cli.Publish(ctx, []byte(`{"full":true}`)))
	select {
	case p := <-snaps:
		assert.JSONEq(t, `{"full":true}`, string(p))
	case <-time.After(5 * time.Second):
		t.Fatal("snapshot not received")
	}

	payload, err := events.Encode(events.ChargingEnd{Time: 5, ChargerID: "H1_col1", VehicleID: "v1", EnergyJ: 100})
	require.NoError(t, err)
	// the event subscription is made asynchronously on connect
	deadline := time.After(5 * time.Second)
	for {
		peer.Publish(DefaultEventTopic, 1, false, payload).WaitTimeout(time.Second)
		select {
		case ev := <-got:
			assert.Equal(t, events.KindChargingEnd, ev.Kind())
			return
		case <-time.After(200 * time.Millisecond):
		case <-deadline:
			t.Fatal("event not received")
		}
	}
}
