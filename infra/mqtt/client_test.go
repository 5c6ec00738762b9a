package mqtt

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremon "github.com/kilianp07/aqforecast/core/monitoring"
)

const testBroker = "tcp://localhost:1883"

// writeSelfSigned writes a throwaway certificate that doubles as its own CA.
func writeSelfSigned(t *testing.T) (cert, key, ca string) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "aqforecast-test"},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(priv)
	require.NoError(t, err)

	dir := t.TempDir()
	cert = filepath.Join(dir, "client.pem")
	key = filepath.Join(dir, "client.key")
	ca = filepath.Join(dir, "ca.pem")
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	require.NoError(t, os.WriteFile(cert, certPEM, 0o600))
	require.NoError(t, os.WriteFile(key, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
	require.NoError(t, os.WriteFile(ca, certPEM, 0o600))
	return cert, key, ca
}

func TestLoadTLSConfig(t *testing.T) {
	cert, key, ca := writeSelfSigned(t)
	tlsCfg, err := Config{UseTLS: true, ClientCert: cert, ClientKey: key, CABundle: ca}.LoadTLSConfig()
	require.NoError(t, err)
	assert.Len(t, tlsCfg.Certificates, 1)
	assert.NotNil(t, tlsCfg.RootCAs)

	_, err = Config{UseTLS: true, CABundle: filepath.Join(t.TempDir(), "missing.pem")}.LoadTLSConfig()
	assert.Error(t, err)
}

func TestNewClientOptionsAuth(t *testing.T) {
	opts, err := NewClientOptions(Config{Broker: testBroker, ClientID: "station-feed", Username: "u", Password: "p"})
	require.NoError(t, err)
	assert.Equal(t, "u", opts.Username)
	assert.Equal(t, "p", opts.Password)
	assert.Equal(t, "station-feed", opts.ClientID)
}

func withMock(t *testing.T, mc *mockClient) {
	t.Helper()
	prev := newMQTTClient
	newMQTTClient = func(o *paho.ClientOptions) pahoClient { mc.opts = o; return mc }
	t.Cleanup(func() { newMQTTClient = prev })
}

func TestPublishAppliesQoSAndRetain(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	cli, err := NewPahoClient(Config{Broker: testBroker, QoS: 1, Retain: true})
	require.NoError(t, err)

	require.NoError(t, cli.Publish("aqforecast/alerts/District1", []byte("{}")))
	assert.Equal(t, []published{{topic: "aqforecast/alerts/District1", qos: 1, retained: true}}, mc.published)
	assert.Equal(t, "aqforecast", mc.opts.ClientID)
}

func TestLastWillIsConfigured(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	cli, err := NewPahoClient(Config{Broker: testBroker, LWTTopic: "aqforecast/status", LWTPayload: "offline", LWTQoS: 1})
	require.NoError(t, err)

	assert.True(t, mc.opts.WillEnabled)
	assert.Equal(t, "aqforecast/status", mc.opts.WillTopic)
	assert.Equal(t, "offline", string(mc.opts.WillPayload))
	cli.Disconnect()
	assert.Empty(t, mc.published)
}

func TestPublishRetries(t *testing.T) {
	mc := &mockClient{publishErrs: []error{errors.New("net fail"), nil}}
	withMock(t, mc)
	cli, err := NewPahoClient(Config{Broker: testBroker, MaxRetries: 1, BackoffMS: 1})
	require.NoError(t, err)

	require.NoError(t, cli.Publish("t", nil))
	assert.Len(t, mc.published, 2)
}

type recordMonitor struct {
	err  error
	tags map[string]string
}

func (r *recordMonitor) CaptureException(err error, tags map[string]string) {
	r.err = err
	r.tags = tags
}
func (r *recordMonitor) CapturePanic(any, map[string]string) {}
func (r *recordMonitor) Flush(time.Duration)                 {}

func TestPublishFailureIsCaptured(t *testing.T) {
	fail := errors.New("net fail")
	mc := &mockClient{publishErrs: []error{fail, fail}}
	withMock(t, mc)
	mon := &recordMonitor{}
	coremon.Init(mon)
	defer coremon.Init(nil)

	cli, err := NewPahoClient(Config{Broker: testBroker, MaxRetries: 1, BackoffMS: 1})
	require.NoError(t, err)
	assert.Error(t, cli.Publish("aqforecast/alerts/CanGio", nil))

	require.Error(t, mon.err)
	assert.Equal(t, map[string]string{"module": "mqtt", "topic": "aqforecast/alerts/CanGio"}, mon.tags)
}

func TestConnectError(t *testing.T) {
	withMock(t, &mockClient{connectErr: errors.New("refused")})
	_, err := NewPahoClient(Config{Broker: testBroker})
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"disabled", Config{}, false},
		{"missing broker", Config{Enabled: true}, true},
		{"bad qos", Config{Enabled: true, Broker: "tcp://b:1883", QoS: 3}, true},
		{"ok", Config{Enabled: true, Broker: "tcp://b:1883", QoS: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

type published struct {
	topic    string
	qos      byte
	retained bool
}

// mockClient stands in for the paho client.
type mockClient struct {
	opts        *paho.ClientOptions
	published   []published
	publishErrs []error
	connectErr  error
}

func (m *mockClient) IsConnected() bool { return true }
func (m *mockClient) Connect() paho.Token {
	if m.connectErr != nil {
		return &doneToken{err: m.connectErr}
	}
	if m.opts != nil && m.opts.OnConnect != nil {
		m.opts.OnConnect(nil)
	}
	return &doneToken{}
}
func (m *mockClient) Disconnect(uint) {}
func (m *mockClient) Publish(topic string, qos byte, retained bool, _ interface{}) paho.Token {
	m.published = append(m.published, published{topic, qos, retained})
	var err error
	if len(m.publishErrs) > 0 {
		err, m.publishErrs = m.publishErrs[0], m.publishErrs[1:]
	}
	return &doneToken{err: err}
}

// doneToken is a token that has already completed.
type doneToken struct{ err error }

func (d doneToken) Wait() bool                     { return true }
func (d doneToken) WaitTimeout(time.Duration) bool { return true }
func (d doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (d doneToken) Error() error { return d.err }
