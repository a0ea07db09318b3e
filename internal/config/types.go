package config

// GatewayConfig is the top-level, hot-reloadable configuration document for
// the aggregation gateway.
type GatewayConfig struct {
	Servers       []ServerConfig       `yaml:"servers" json:"servers"`
	Gateway       GatewayListenConfig  `yaml:"gateway" json:"gateway"`
	Auth          AuthConfig           `yaml:"auth" json:"auth"`
	Policies      PoliciesConfig       `yaml:"policies" json:"policies"`
	StreamableHTTP StreamableHTTPConfig `yaml:"streamableHttp" json:"streamableHttp"`
}

// TransportKind identifies the wire transport used to reach an upstream or
// front the gateway itself.
type TransportKind string

const (
	TransportStdio          TransportKind = "stdio"
	TransportHTTP           TransportKind = "http"
	TransportSSE            TransportKind = "sse"
	TransportStreamableHTTP TransportKind = "streamablehttp"
)

// LifecycleMode controls when an upstream's transport is connected and
// evicted by the Transport Pool.
type LifecycleMode string

const (
	LifecycleStateful  LifecycleMode = "stateful"
	LifecycleSmart     LifecycleMode = "smart"
	LifecycleStateless LifecycleMode = "stateless"
)

// AuthMode selects the gateway's single authentication boundary hook.
type AuthMode string

const (
	AuthModeDev    AuthMode = "dev"
	AuthModeAPIKey AuthMode = "apikey"
)

// ReconnectPolicy governs the Streamable-HTTP client transport's retries of a
// failed connect; errors on calls after connecting are not retried.
type ReconnectPolicy struct {
	Enabled           bool    `yaml:"enabled" json:"enabled"`
	InitialDelayMs    int     `yaml:"delay" json:"delay"`
	MaxRetries        int     `yaml:"maxRetries" json:"maxRetries"`
	BackoffMultiplier float64 `yaml:"backoffMultiplier" json:"backoffMultiplier"`
}

// ServerConfig describes one upstream MCP server the gateway aggregates.
type ServerConfig struct {
	Name      string            `yaml:"name" json:"name"`
	Transport TransportKind     `yaml:"transport" json:"transport"`
	Command   string            `yaml:"command,omitempty" json:"command,omitempty"`
	Args      []string          `yaml:"args,omitempty" json:"args,omitempty"`
	URL       string            `yaml:"url,omitempty" json:"url,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Mode      LifecycleMode     `yaml:"mode,omitempty" json:"mode,omitempty"`
	Enabled   *bool             `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Reconnect ReconnectPolicy   `yaml:"reconnect,omitempty" json:"reconnect,omitempty"`
}

// IsEnabled reports whether the server should be aggregated; servers default
// to enabled unless explicitly disabled.
func (s ServerConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// GatewayListenConfig controls the gateway's client-facing front-end.
type GatewayListenConfig struct {
	Host      string        `yaml:"host,omitempty" json:"host,omitempty"`
	Port      int           `yaml:"port,omitempty" json:"port,omitempty"`
	Transport TransportKind `yaml:"transport,omitempty" json:"transport,omitempty"`
}

// AuthConfig configures the gateway's single authentication boundary hook.
type AuthConfig struct {
	Mode   AuthMode `yaml:"mode,omitempty" json:"mode,omitempty"`
	APIKey string   `yaml:"apiKey,omitempty" json:"apiKey,omitempty"`
}

// PoliciesConfig configures per-request enforcement applied by the Router.
type PoliciesConfig struct {
	DefaultTimeoutMs int `yaml:"defaultTimeout,omitempty" json:"defaultTimeout,omitempty"`
	OutputSizeLimit  int `yaml:"outputSizeLimit,omitempty" json:"outputSizeLimit,omitempty"`
	MaxConnections   int `yaml:"maxConnections,omitempty" json:"maxConnections,omitempty"`
}

// StreamableHTTPConfig configures the Streamable-HTTP front-end's session
// bookkeeping.
type StreamableHTTPConfig struct {
	SessionTimeoutMs int `yaml:"sessionTimeout,omitempty" json:"sessionTimeout,omitempty"`
	MaxSessions      int `yaml:"maxSessions,omitempty" json:"maxSessions,omitempty"`
}
