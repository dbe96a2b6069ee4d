//go:build integration

package bus

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getNATSURL() string {
	url := os.Getenv("NATS_URL")
	if url == "" {
		url = nats.DefaultURL
	}
	return url
}

func setupNATS(t *testing.T) *nats.Conn {
	t.Helper()
	nc, err := nats.Connect(getNATSURL(), nats.Timeout(2*time.Second))
	if err != nil {
		t.Skipf("NATS not available at %s: %v", getNATSURL(), err)
	}
	return nc
}

func TestNATSBus_FansOutToEveryInstance(t *testing.T) {
	subject := "quietlink.test." + t.Name()
	one := NewNATSBus(setupNATS(t), subject, discardLogger())
	two := NewNATSBus(setupNATS(t), subject, discardLogger())
	defer one.Close()
	defer two.Close()

	ctx := context.Background()
	var c1, c2 collector
	require.NoError(t, one.Subscribe(ctx, c1.handle))
	require.NoError(t, two.Subscribe(ctx, c2.handle))

	require.NoError(t, one.Publish(ctx, sampleDelivery()))

	assert.Eventually(t, func() bool { return c1.len() == 1 && c2.len() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "alice", c2.at(0).Target)
}

func TestOpen_NATS(t *testing.T) {
	setupNATS(t).Close()

	b, driver, err := Open(Options{Driver: DriverNATS, NATSURL: getNATSURL(), NATSName: "quietlink-test"}, discardLogger())
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, DriverNATS, driver)
}
