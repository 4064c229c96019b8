package transfer

import (
	"log/slog"
	"slices"
	"strings"
	"time"

	"gitlab.bluewillows.net/root/sftpgate/pkg/sshutil"
)

// Overrides are the request-supplied fields that take precedence over the
// profile. Zero values mean "not supplied".
type Overrides struct {
	Host     string
	Port     int
	User     string
	Password string

	Workdir       string
	Filename      string
	LocalFilename string
}

// Settings is the resolved, request-scoped connection configuration. It owns
// copies of every slice so that no request shares mutable state with the
// profile or with another request.
type Settings struct {
	Host                string
	Port                int
	Username            string
	Password            string
	KeyData             []byte
	Passphrase          string
	KeyboardInteractive bool

	Algorithms  sshutil.Algorithms
	Compression []string

	KnownHostsFile        string
	StrictHostKeyChecking bool
	Timeout               time.Duration
	KeepaliveInterval     time.Duration
}

// LogValue implements slog.LogValuer without exposing credentials.
func (s Settings) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("host", s.Host),
		slog.Int("port", s.Port),
		slog.String("user", s.Username),
		slog.Bool("key", len(s.KeyData) > 0),
		slog.Bool("password", s.Password != ""),
		slog.Bool("keyboard_interactive", s.KeyboardInteractive),
	)
}

// SSHConfig converts the settings to an sshutil client configuration.
func (s Settings) SSHConfig() *sshutil.Config {
	return &sshutil.Config{
		Host:                  s.Host,
		Port:                  s.Port,
		User:                  s.Username,
		KeyData:               s.KeyData,
		KeyPassphrase:         s.Passphrase,
		Password:              s.Password,
		KeyboardInteractive:   s.KeyboardInteractive,
		Algorithms:            s.Algorithms,
		Timeout:               s.Timeout,
		KeepaliveInterval:     s.KeepaliveInterval,
		KnownHostsFile:        s.KnownHostsFile,
		StrictHostKeyChecking: s.StrictHostKeyChecking,
	}
}

// Parameters are the per-request path defaults.
type Parameters struct {
	Workdir       string
	Filename      string
	LocalFilename string
}

// Resolve merges the profile with request overrides into fresh Settings.
// The profile is never modified.
func (p *ServerProfile) Resolve(o Overrides) (Settings, error) {
	if p == nil {
		return Settings{}, ConfigurationError("no profile")
	}
	if !p.Valid() {
		return Settings{}, p.Err()
	}

	s := Settings{
		Host:                  p.cfg.Host,
		Port:                  p.cfg.Port,
		Username:              p.cfg.Username,
		Password:              p.cfg.Password,
		KeyData:               slices.Clone(p.keyData),
		Passphrase:            p.cfg.Passphrase,
		KeyboardInteractive:   p.cfg.KeyboardInteractive,
		Compression:           slices.Clone(p.compression),
		KnownHostsFile:        p.cfg.KnownHostsFile,
		StrictHostKeyChecking: p.cfg.StrictHostKeyChecking,
		Timeout:               p.cfg.ConnectTimeout,
		KeepaliveInterval:     p.cfg.KeepaliveInterval,
		Algorithms: sshutil.Algorithms{
			KeyExchanges:      slices.Clone(p.algorithms.KeyExchanges),
			Ciphers:           slices.Clone(p.algorithms.Ciphers),
			MACs:              slices.Clone(p.algorithms.MACs),
			HostKeyAlgorithms: slices.Clone(p.algorithms.HostKeyAlgorithms),
		},
	}

	if host := strings.TrimSpace(o.Host); host != "" {
		s.Host = host
	}
	if o.Port != 0 {
		if o.Port < 1 || o.Port > 65535 {
			return Settings{}, ValidationError("", "port %d out of range 1-65535", o.Port)
		}
		s.Port = o.Port
	}
	if o.User != "" {
		s.Username = o.User
	}
	if o.Password != "" {
		s.Password = o.Password
	}

	if strings.TrimSpace(s.Username) == "" {
		return Settings{}, ConfigurationError("profile %q has no username", p.Name())
	}
	if len(s.KeyData) == 0 && s.Password == "" {
		return Settings{}, ConfigurationError("profile %q has no password or private key", p.Name())
	}

	return s, nil
}

// Parameters returns the path defaults for a request, taking each field from
// the overrides first and the profile second.
func (p *ServerProfile) Parameters(o Overrides) Parameters {
	return Parameters{
		Workdir:       firstNonEmpty(o.Workdir, p.cfg.Workdir),
		Filename:      firstNonEmpty(o.Filename, p.cfg.Filename),
		LocalFilename: firstNonEmpty(o.LocalFilename, p.cfg.LocalFilename),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
