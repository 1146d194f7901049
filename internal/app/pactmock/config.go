package pactmock

import "time"

// Config carries engine settings for standalone mode. Loaded from the
// environment by the configuration package.
type Config struct {
	// AdminPort is the port the admin API listens on.
	AdminPort int `env:"ADMIN_PORT,default=8080"`
	// BindHost is the host mock servers bind to.
	BindHost       string        `env:"BIND_HOST,default=127.0.0.1"`
	PactDir        string        `env:"PACT_DIR,default=./pacts"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT,default=30s"`
	// StrictMatching reports unexpected body keys as mismatches.
	StrictMatching bool   `env:"STRICT_MATCHING"`
	LogLevel       string `env:"LOG_LEVEL,default=info"`
	// LogSinks, e.g. "stderr;file ./pactmock.log".
	LogSinks    []string `env:"LOG_SINKS,delimiter=;,default=stderr"`
	TLSCertFile string   `env:"TLS_CERT_FILE"`
	TLSKeyFile  string   `env:"TLS_KEY_FILE"`
}

// TransportConfig derives per-server transport settings from the engine
// config.
func (c Config) TransportConfig() *TransportConfig {
	return &TransportConfig{
		Transport:      TransportHTTP,
		TLSCertFile:    c.TLSCertFile,
		TLSKeyFile:     c.TLSKeyFile,
		RequestTimeout: c.RequestTimeout,
		Strict:         c.StrictMatching,
	}
}
