package config

import (
	"context"
	_ "embed"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsarna/resocket/pkg/resocket"
	"github.com/tsarna/resocket/pkg/resocket/codec"
	"github.com/tsarna/resocket/pkg/resocket/socket"
	"github.com/tsarna/resocket/pkg/resocket/websockets/server"
	"go.uber.org/zap"
)

//go:embed testdata/sockets.hcl
var socketsConfig []byte

//go:embed testdata/cycle.hcl
var cycleConfig []byte

func buildConfig(t *testing.T, sources ...any) *Config {
	t.Helper()

	cfg, diags := NewConfig().WithSources(sources...).WithLogger(zap.NewNop()).Build()
	require.False(t, diags.HasErrors(), "unexpected diagnostics: %v", diags)
	return cfg
}

func buildError(t *testing.T, source string) hcl.Diagnostics {
	t.Helper()

	_, diags := NewConfig().WithSources([]byte(source)).Build()
	require.True(t, diags.HasErrors(), "expected errors, didn't get any")
	return diags
}

func TestSocketBlocks(t *testing.T) {
	t.Setenv("RESOCKET_TEST_TOKEN", "secret")

	cfg := buildConfig(t, socketsConfig)

	assert.Equal(t, []string{"device", "plain"}, cfg.SocketNames())

	device := cfg.Sockets["device"]
	require.NotNil(t, device)
	assert.Equal(t, "ws://device.local:8765/control", device.URL)
	assert.Equal(t, []string{"device.v1"}, device.Subprotocols)
	assert.Equal(t, map[string]string{"X-Client": "resocket"}, device.Headers)
	assert.Equal(t, "Bearer secret", device.Authorization)
	assert.Equal(t, []resocket.StatusCode{1000, 4000}, device.CloseCodes)
	assert.Equal(t, 30*time.Second, device.Heartbeat)
	assert.Equal(t, 5*time.Second, device.ConnectTimeout)
	assert.Equal(t, 2500*time.Millisecond, device.SendTimeout)
	require.NotNil(t, device.MaxReconnectAttempts)
	assert.Equal(t, 5, *device.MaxReconnectAttempts)
	assert.Equal(t, int64(65536), device.ReadLimit)
	assert.IsType(t, &codec.JSONCodec{}, device.Codec)
	assert.NotNil(t, device.Transform)
	assert.NotNil(t, device.Identify)

	plain := cfg.Sockets["plain"]
	require.NotNil(t, plain)
	assert.Nil(t, plain.CloseCodes)
	assert.Nil(t, plain.MaxReconnectAttempts)
	assert.Nil(t, plain.Transform)
	assert.Nil(t, plain.Identify)
	assert.Zero(t, plain.Heartbeat)

	srv, err := cfg.Server("")
	require.NoError(t, err)
	assert.Equal(t, "echo", srv.Name)
	assert.Equal(t, ":9000", srv.Listen)
	assert.Equal(t, 10*time.Second, srv.PingInterval)
	assert.Equal(t, 10, srv.QueueSize)

	req, err := cfg.Request("status")
	require.NoError(t, err)
	assert.Equal(t, "device", req.Socket)
	assert.Equal(t, 3*time.Second, req.Timeout)
	assert.Equal(t, "@every 1m", req.Schedule)
	payload, ok := req.Payload.(map[string]any)
	require.True(t, ok, "payload is %T", req.Payload)
	assert.Equal(t, "STATUS", payload["op"])

	_, err = cfg.Request("missing")
	assert.Error(t, err)
	_, err = cfg.Server("missing")
	assert.Error(t, err)
}

func TestSocketHooksFromConfig(t *testing.T) {
	t.Setenv("RESOCKET_TEST_TOKEN", "secret")

	cfg := buildConfig(t, socketsConfig)
	device := cfg.Sockets["device"]
	ctx := context.Background()

	out, err := device.Transform(ctx, map[string]any{"op": "status"})
	require.NoError(t, err)
	sent := out.(map[string]any)
	assert.Equal(t, "resocket", sent["source"])
	assert.NotEmpty(t, sent["id"])

	ok, err := device.Identify(ctx, sent, map[string]any{"id": sent["id"], "type": "result"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = device.Identify(ctx, sent, map[string]any{"id": sent["id"], "type": "event"})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = device.Identify(ctx, sent, map[string]any{"id": "other", "type": "result"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConfigErrors(t *testing.T) {
	tests := []struct {
		name     string
		source   string
		contains string
	}{
		{
			name:     "duplicate socket",
			source:   "socket \"a\" {\n url = \"ws://x\"\n}\nsocket \"a\" {\n url = \"ws://y\"\n}\n",
			contains: "Duplicate socket",
		},
		{
			name:     "missing url",
			source:   "socket \"a\" {\n}\n",
			contains: "url",
		},
		{
			name:     "unknown codec",
			source:   "socket \"a\" {\n url = \"ws://x\"\n codec = \"xml\"\n}\n",
			contains: "unknown codec",
		},
		{
			name:     "bad jq",
			source:   "socket \"a\" {\n url = \"ws://x\"\n identify = \".id ==\"\n}\n",
			contains: "Invalid identify query",
		},
		{
			name:     "bad close code",
			source:   "socket \"a\" {\n url = \"ws://x\"\n close_codes = [42]\n}\n",
			contains: "Invalid close code",
		},
		{
			name:     "negative reconnect attempts",
			source:   "socket \"a\" {\n url = \"ws://x\"\n max_reconnect_attempts = -1\n}\n",
			contains: "must not be negative",
		},
		{
			name:     "bad duration",
			source:   "socket \"a\" {\n url = \"ws://x\"\n heartbeat = \"soon\"\n}\n",
			contains: "Invalid duration format",
		},
		{
			name:     "request for unknown socket",
			source:   "request \"r\" {\n socket = \"nope\"\n payload = {}\n}\n",
			contains: "undefined socket",
		},
		{
			name:     "bad schedule",
			source:   "socket \"a\" {\n url = \"ws://x\"\n}\nrequest \"r\" {\n socket = \"a\"\n payload = {}\n schedule = \"whenever\"\n}\n",
			contains: "Invalid schedule",
		},
		{
			name:     "unknown block",
			source:   "bus \"main\" {\n}\n",
			contains: "bus",
		},
		{
			name:     "reserved const",
			source:   "const {\n env = 1\n}\n",
			contains: "Reserved name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diags := buildError(t, tt.source)
			assert.Contains(t, diags.Error(), tt.contains)
		})
	}
}

func TestConstCycle(t *testing.T) {
	_, diags := NewConfig().WithSources(cycleConfig).Build()
	require.True(t, diags.HasErrors())
	assert.Contains(t, diags.Error(), "Circular dependency")
}

func TestConfigFunctions(t *testing.T) {
	cfg := buildConfig(t, []byte(`
const {
  original = { a = "1", b = "2" }
  changed  = { a = "1", b = "3" }
  restored = patch(original, diff(original, changed))
  encoded  = base64encode("hi")
}

socket "a" {
  url = "ws://example/${encoded}/${restored.b}"
}
`))

	assert.Equal(t, "ws://example/aGk=/3", cfg.Sockets["a"].URL)
}

func TestParseSourcesFromDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeFile(dir+"/a.hcl", "socket \"a\" {\n url = \"ws://a\"\n}\n"))
	require.NoError(t, writeFile(dir+"/b.hcl", "socket \"b\" {\n url = \"ws://b\"\n}\n"))
	require.NoError(t, writeFile(dir+"/ignored.txt", "not hcl at all {"))

	cfg := buildConfig(t, dir)
	assert.Equal(t, []string{"a", "b"}, cfg.SocketNames())

	_, diags := NewConfig().WithSources(dir + "/missing.hcl").Build()
	assert.True(t, diags.HasErrors())

	_, diags = NewConfig().WithSources(42).Build()
	assert.True(t, diags.HasErrors())
}

func TestSanitizeEnvVarName(t *testing.T) {
	tests := map[string]string{
		"":          "_",
		"HOME":      "HOME",
		"1PASSWORD": "_PASSWORD",
		"MY.VAR":    "MY_VAR",
		"a-b_c9":    "a-b_c9",
	}

	for input, expected := range tests {
		assert.Equal(t, expected, sanitizeEnvVarName(input), input)
	}
}

func startEchoServer(t *testing.T) string {
	t.Helper()

	listener, err := server.NewListener().Build()
	require.NoError(t, err)

	srv := httptest.NewServer(listener)
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestNewSocketBuilderRoundTrip(t *testing.T) {
	url := startEchoServer(t)

	cfg := buildConfig(t, []byte(fmt.Sprintf(`
socket "echo" {
  url              = %q
  codec            = "json"
  request_id_field = "id"
  match_field      = "id"
  send_timeout     = 2
}
`, url)))

	builder, err := cfg.NewSocketBuilder("echo")
	require.NoError(t, err)

	s, err := builder.Build()
	require.NoError(t, err)
	defer s.Disconnect(context.Background())

	assert.Equal(t, "echo", s.Name())

	reply, err := s.Send(context.Background(), map[string]any{"op": "ping"})
	require.NoError(t, err)

	m, ok := reply.(map[string]any)
	require.True(t, ok, "reply is %T", reply)
	assert.Equal(t, "ping", m["op"])
	assert.NotEmpty(t, m["id"])

	_, err = cfg.NewSocketBuilder("missing")
	assert.Error(t, err)
}

func TestScheduler(t *testing.T) {
	url := startEchoServer(t)

	cfg := buildConfig(t, []byte(fmt.Sprintf(`
socket "echo" {
  url              = %q
  codec            = "json"
  request_id_field = "id"
  match_field      = "id"
}

request "tick" {
  socket   = "echo"
  payload  = { op = "tick" }
  schedule = "@every 1s"
}

request "manual" {
  socket  = "echo"
  payload = { op = "manual" }
}
`, url)))

	sockets := map[string]*socket.Socket{}
	resolve := func(name string) (*socket.Socket, error) {
		if s, ok := sockets[name]; ok {
			return s, nil
		}
		builder, err := cfg.NewSocketBuilder(name)
		if err != nil {
			return nil, err
		}
		s, err := builder.Build()
		if err != nil {
			return nil, err
		}
		sockets[name] = s
		return s, nil
	}

	type outcome struct {
		request string
		reply   any
		err     error
	}
	outcomes := make(chan outcome, 10)

	scheduler, err := cfg.NewScheduler(resolve, func(request string, reply any, err error) {
		outcomes <- outcome{request, reply, err}
	})
	require.NoError(t, err)
	assert.Len(t, scheduler.Entries(), 1)

	scheduler.Start()
	defer func() {
		<-scheduler.Stop().Done()
		for _, s := range sockets {
			s.Disconnect(context.Background())
		}
	}()

	select {
	case o := <-outcomes:
		require.NoError(t, o.err)
		assert.Equal(t, "tick", o.request)
		m, ok := o.reply.(map[string]any)
		require.True(t, ok, "reply is %T", o.reply)
		assert.Equal(t, "tick", m["op"])
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled request did not run")
	}
}
