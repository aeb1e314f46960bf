package e2e

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kilianp07/evhub/app"
	"github.com/kilianp07/evhub/config"
	"github.com/kilianp07/evhub/core/factory"
	"github.com/kilianp07/evhub/core/sessionlog"
	"github.com/kilianp07/evhub/infra/logger"
)

const (
	influxOrg    = "e2e_org"
	influxBucket = "e2e_bucket"
	influxToken  = "e2e-token"
)

func requireDocker(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("e2e skipped in short mode")
	}
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skipf("docker not installed: %v", err)
	}
}

// startInflux starts an InfluxDB 2.7 container with an initialised org,
// bucket and token and returns its base URL.
func startInflux(ctx context.Context, t *testing.T) string {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "influxdb:2.7",
		ExposedPorts: []string{"8086/tcp"},
		Env: map[string]string{
			"DOCKER_INFLUXDB_INIT_MODE":        "setup",
			"DOCKER_INFLUXDB_INIT_USERNAME":    "evhub",
			"DOCKER_INFLUXDB_INIT_PASSWORD":    "evhub-e2e-password",
			"DOCKER_INFLUXDB_INIT_ORG":         influxOrg,
			"DOCKER_INFLUXDB_INIT_BUCKET":      influxBucket,
			"DOCKER_INFLUXDB_INIT_ADMIN_TOKEN": influxToken,
		},
		WaitingFor: wait.ForHTTP("/health").WithPort("8086/tcp").WithStartupTimeout(60 * time.Second),
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("unable to start influx container: %v", err)
	}
	t.Cleanup(func() { _ = cont.Terminate(context.Background()) })
	host, err := cont.Host(ctx)
	require.NoError(t, err)
	port, err := cont.MappedPort(ctx, "8086")
	require.NoError(t, err)
	return fmt.Sprintf("http://%s:%s", host, port.Port())
}

// startMosquitto spins up a broker accepting anonymous clients.
func startMosquitto(ctx context.Context, t *testing.T) string {
	t.Helper()
	conf := filepath.Join(t.TempDir(), "mosquitto.conf")
	require.NoError(t, os.WriteFile(conf, []byte("listener 1883\nallow_anonymous true\npersistence false\n"), 0o644))
	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2.0",
		ExposedPorts: []string{"1883/tcp"},
		WaitingFor:   wait.ForListeningPort("1883/tcp"),
		Files: []tc.ContainerFile{{
			HostFilePath:      conf,
			ContainerFilePath: "/mosquitto/config/mosquitto.conf",
			FileMode:          0o644,
		}},
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("unable to start mosquitto: %v", err)
	}
	t.Cleanup(func() { _ = cont.Terminate(context.Background()) })
	host, err := cont.Host(ctx)
	require.NoError(t, err)
	port, err := cont.MappedPort(ctx, "1883")
	require.NoError(t, err)
	return fmt.Sprintf("tcp://%s:%s", host, port.Port())
}

var eventLines = []string{
	`{"type":"person_leaves_vehicle","person_id":"P1","vehicle_id":"V1","time":0}`,
	`{"type":"activity_start","person_id":"P1","activity_type":"car charging","link_id":"L100","time":100}`,
	`{"type":"activity_end","person_id":"P1","activity_type":"car charging","time":1000}`,
}

func TestE2E_MQTTEventsToSnapshotsAndInflux(t *testing.T) {
	requireDocker(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	influxURL := startInflux(ctx, t)
	broker := startMosquitto(ctx, t)

	influx := NewInfluxClient(influxURL, influxOrg, influxBucket, influxToken)
	defer influx.Close()
	require.NoError(t, influx.SetupBucket(ctx))

	dir := t.TempDir()
	hubs := filepath.Join(dir, "hubs.csv")
	require.NoError(t, os.WriteFile(hubs, []byte("hubId,linkId,nColonnine,type,power\nH1,L100,2,AC,10\n"), 0o644))
	vehicles := filepath.Join(dir, "vehicles.yaml")
	require.NoError(t, os.WriteFile(vehicles, []byte("- {id: V1, plugs: [AC], capacity_j: 3600000, initial_soc: 0}\n"), 0o644))

	cfg := &config.Config{}
	cfg.Hubs.File = hubs
	cfg.Vehicles.File = vehicles
	cfg.Assignment.TargetSoC = 0.5
	cfg.Events.Source = "mqtt"
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Transport = "mqtt"
	cfg.Telemetry.IntervalSeconds = 1
	cfg.MQTT.Broker = broker
	cfg.MQTT.QoS = map[string]byte{"events": 1, "snapshot": 1}
	cfg.Metrics.Sinks = []factory.ModuleConfig{{Type: "influx", Conf: map[string]any{
		"url": influxURL, "token": influxToken, "org": influxOrg, "bucket": influxBucket,
	}}}
	cfg.SessionLog = sessionlog.Config{Backend: "sqlite", Path: filepath.Join(dir, "sessions.db")}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())

	svc, err := app.New(cfg, app.WithLogger(logger.New("e2e")))
	require.NoError(t, err)
	runCtx, stop := context.WithCancel(ctx)
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = svc.Run(runCtx)
	}()
	defer func() {
		stop()
		<-stopped
		_ = svc.Close()
	}()

	var (
		mu        sync.Mutex
		snapshots []string
	)
	probe := paho.NewClient(paho.NewClientOptions().AddBroker(broker).SetClientID("e2e-probe"))
	tok := probe.Connect()
	require.True(t, tok.WaitTimeout(10*time.Second))
	require.NoError(t, tok.Error())
	defer probe.Disconnect(100)
	tok = probe.Subscribe(cfg.MQTT.SnapshotTopic, 1, func(_ paho.Client, m paho.Message) {
		mu.Lock()
		snapshots = append(snapshots, string(m.Payload()))
		mu.Unlock()
	})
	require.True(t, tok.WaitTimeout(10*time.Second))
	require.NoError(t, tok.Error())

	for _, line := range eventLines {
		tok := probe.Publish(cfg.MQTT.EventTopic, 1, false, line)
		require.True(t, tok.WaitTimeout(10*time.Second))
		require.NoError(t, tok.Error())
	}

	require.Eventually(t, func() bool {
		applied, _ := svc.Counts()
		return applied == len(eventLines)+1
	}, 30*time.Second, 100*time.Millisecond)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, s := range snapshots {
			if strings.Contains(s, `"H1"`) {
				return true
			}
		}
		return false
	}, 30*time.Second, 200*time.Millisecond)

	assert.Eventually(t, func() bool {
		n, err := influx.CountRecords(ctx, "charging_session", "phase", "ended")
		return err == nil && n > 0
	}, 30*time.Second, 500*time.Millisecond)
}
