package config

// Default values for the transport pool, subscription manager, circuit breaker, and gateway config.
const (
	DefaultGatewayPort  = 8090
	DefaultGatewayHost  = "localhost"
	DefaultIdleMs       = 60_000
	DefaultSessionTimeoutMs = 300_000
	DefaultMaxSessions  = 1000
	DefaultMaxPerClient = 100
	DefaultTimeoutMs    = 30_000
	DefaultOutputSizeLimit = 10 << 20 // 10MiB

	DefaultCircuitFailureThreshold = 5
	DefaultCircuitSuccessThreshold = 2
	DefaultCircuitTimeoutMs        = 30_000
)

// DefaultConfig returns the configuration the gateway runs with when no
// config file is found; it describes an empty upstream fleet.
func DefaultConfig() GatewayConfig {
	return GatewayConfig{
		Servers: nil,
		Gateway: GatewayListenConfig{
			Host:      DefaultGatewayHost,
			Port:      DefaultGatewayPort,
			Transport: TransportStreamableHTTP,
		},
		Auth: AuthConfig{
			Mode: AuthModeDev,
		},
		Policies: PoliciesConfig{
			DefaultTimeoutMs: DefaultTimeoutMs,
			OutputSizeLimit:  DefaultOutputSizeLimit,
			MaxConnections:   DefaultMaxSessions,
		},
		StreamableHTTP: StreamableHTTPConfig{
			SessionTimeoutMs: DefaultSessionTimeoutMs,
			MaxSessions:      DefaultMaxSessions,
		},
	}
}

// applyDefaults fills zero-valued fields of a loaded config with the process
// defaults using a base-then-merge approach.
func applyDefaults(cfg *GatewayConfig) {
	def := DefaultConfig()

	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = def.Gateway.Host
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = def.Gateway.Port
	}
	if cfg.Gateway.Transport == "" {
		cfg.Gateway.Transport = def.Gateway.Transport
	}
	if cfg.Auth.Mode == "" {
		cfg.Auth.Mode = def.Auth.Mode
	}
	if cfg.Policies.DefaultTimeoutMs == 0 {
		cfg.Policies.DefaultTimeoutMs = def.Policies.DefaultTimeoutMs
	}
	if cfg.Policies.OutputSizeLimit == 0 {
		cfg.Policies.OutputSizeLimit = def.Policies.OutputSizeLimit
	}
	if cfg.Policies.MaxConnections == 0 {
		cfg.Policies.MaxConnections = def.Policies.MaxConnections
	}
	if cfg.StreamableHTTP.SessionTimeoutMs == 0 {
		cfg.StreamableHTTP.SessionTimeoutMs = def.StreamableHTTP.SessionTimeoutMs
	}
	if cfg.StreamableHTTP.MaxSessions == 0 {
		cfg.StreamableHTTP.MaxSessions = def.StreamableHTTP.MaxSessions
	}
	for i := range cfg.Servers {
		if cfg.Servers[i].Mode == "" {
			cfg.Servers[i].Mode = LifecycleStateful
		}
	}
}
