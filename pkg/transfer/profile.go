package transfer

import (
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"gitlab.bluewillows.net/root/sftpgate/pkg/sshutil"
)

// AlgorithmConfig holds comma-separated algorithm preference strings, in the
// order they should be offered to the server.
type AlgorithmConfig struct {
	Kex           string
	Cipher        string
	ServerHostKey string
	HMAC          string
	Compress      string
}

// ProfileConfig is the operator-supplied definition of one SFTP server.
type ProfileConfig struct {
	Name string

	Host     string
	Port     int
	Username string

	Password            string
	KeyFile             string
	KeyData             string
	Passphrase          string
	KeyboardInteractive bool

	Algorithms AlgorithmConfig

	KnownHostsFile        string
	StrictHostKeyChecking bool
	ConnectTimeout        time.Duration
	KeepaliveInterval     time.Duration

	// Defaults for requests that do not supply their own.
	Workdir       string
	Filename      string
	LocalFilename string
}

// ServerProfile is a validated, immutable server definition shared
// read-only by every request that references it.
type ServerProfile struct {
	cfg         ProfileConfig
	keyData     []byte
	algorithms  sshutil.Algorithms
	compression []string
	err         error
}

// NewServerProfile validates cfg and returns a profile. It never returns nil:
// a profile that fails validation is marked invalid and rejects every request
// with the validation error.
func NewServerProfile(cfg ProfileConfig) *ServerProfile {
	p := &ServerProfile{cfg: cfg}
	if p.cfg.Port == 0 {
		p.cfg.Port = sshutil.DefaultSSHPort
	}

	var errs []string
	if strings.TrimSpace(cfg.Host) == "" {
		errs = append(errs, "host is required")
	}
	if strings.TrimSpace(cfg.Username) == "" {
		errs = append(errs, "username is required")
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		errs = append(errs, fmt.Sprintf("port %d out of range 1-65535", cfg.Port))
	}
	if cfg.ConnectTimeout < 0 {
		errs = append(errs, "connect timeout must be non-negative")
	}
	if cfg.KeepaliveInterval < 0 {
		errs = append(errs, "keepalive interval must be non-negative")
	}

	switch {
	case cfg.KeyData != "":
		p.keyData = []byte(cfg.KeyData)
	case cfg.KeyFile != "":
		data, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			errs = append(errs, fmt.Sprintf("reading key file %s: %v", cfg.KeyFile, err))
		} else {
			p.keyData = data
		}
	}
	if len(p.keyData) > 0 {
		if _, err := sshutil.ParsePrivateKey(p.keyData, cfg.Passphrase); err != nil {
			errs = append(errs, fmt.Sprintf("parsing private key: %v", err))
		}
	}
	if cfg.StrictHostKeyChecking && cfg.KnownHostsFile == "" {
		errs = append(errs, "strict host key checking requires a known_hosts file")
	}

	algs, algErrs := parseAlgorithms(cfg.Algorithms)
	p.algorithms = algs
	errs = append(errs, algErrs...)

	p.compression = ParseAlgorithmList(cfg.Algorithms.Compress)
	if len(p.compression) > 0 && !slices.Contains(p.compression, "none") {
		errs = append(errs, fmt.Sprintf("compression %q is not supported, the list must include none", cfg.Algorithms.Compress))
	}

	if len(errs) > 0 {
		p.err = ConfigurationError("profile %q is invalid: %s", cfg.Name, strings.Join(errs, "; "))
	}
	return p
}

// Name returns the profile name.
func (p *ServerProfile) Name() string { return p.cfg.Name }

// Host returns the configured host.
func (p *ServerProfile) Host() string { return p.cfg.Host }

// Port returns the configured port, defaulted to 22.
func (p *ServerProfile) Port() int { return p.cfg.Port }

// Username returns the configured username.
func (p *ServerProfile) Username() string { return p.cfg.Username }

// Valid reports whether the profile passed validation.
func (p *ServerProfile) Valid() bool { return p.err == nil }

// Err returns the validation error of an invalid profile.
func (p *ServerProfile) Err() error { return p.err }

// VerifiesHostKey reports whether the server host key is checked against a
// known_hosts file.
func (p *ServerProfile) VerifiesHostKey() bool { return p.cfg.KnownHostsFile != "" }

// ParseAlgorithmList splits a comma-separated preference string into trimmed
// algorithm names, dropping empty entries.
func ParseAlgorithmList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if name := strings.TrimSpace(part); name != "" {
			out = append(out, name)
		}
	}
	return out
}

func parseAlgorithms(cfg AlgorithmConfig) (sshutil.Algorithms, []string) {
	supported := ssh.SupportedAlgorithms()
	insecure := ssh.InsecureAlgorithms()

	var errs []string
	check := func(kind, value string, known ...[]string) []string {
		names := ParseAlgorithmList(value)
		for _, name := range names {
			found := false
			for _, set := range known {
				if slices.Contains(set, name) {
					found = true
					break
				}
			}
			if !found {
				errs = append(errs, fmt.Sprintf("unsupported %s algorithm %q", kind, name))
			}
		}
		return names
	}

	algs := sshutil.Algorithms{
		KeyExchanges:      check("kex", cfg.Kex, supported.KeyExchanges, insecure.KeyExchanges),
		Ciphers:           check("cipher", cfg.Cipher, supported.Ciphers, insecure.Ciphers),
		HostKeyAlgorithms: check("server host key", cfg.ServerHostKey, supported.HostKeys, insecure.HostKeys),
		MACs:              check("hmac", cfg.HMAC, supported.MACs, insecure.MACs),
	}
	return algs, errs
}

// Registry holds the named profiles. It is built once at startup and is
// read-only afterwards, so lookups need no locking.
type Registry struct {
	profiles map[string]*ServerProfile
}

// NewRegistry creates a registry from profiles. Profile names must be
// non-empty and unique. Invalid profiles are kept so that requests naming
// them fail with their validation error.
func NewRegistry(profiles ...*ServerProfile) (*Registry, error) {
	r := &Registry{profiles: make(map[string]*ServerProfile, len(profiles))}
	for _, p := range profiles {
		if p == nil {
			continue
		}
		if p.Name() == "" {
			return nil, fmt.Errorf("profile name is required (host %q)", p.Host())
		}
		if _, ok := r.profiles[p.Name()]; ok {
			return nil, fmt.Errorf("duplicate profile name %q", p.Name())
		}
		r.profiles[p.Name()] = p
	}
	return r, nil
}

// Lookup returns the named valid profile. An empty name selects the only
// profile when exactly one is registered.
func (r *Registry) Lookup(name string) (*ServerProfile, error) {
	if name == "" && len(r.profiles) == 1 {
		for _, p := range r.profiles {
			name = p.Name()
		}
	}
	if name == "" {
		return nil, ConfigurationError("no profile specified")
	}

	p, ok := r.profiles[name]
	if !ok {
		return nil, ConfigurationError("profile %q not found", name)
	}
	if !p.Valid() {
		return nil, p.Err()
	}
	return p, nil
}

// Profiles returns all profiles sorted by name.
func (r *Registry) Profiles() []*ServerProfile {
	out := make([]*ServerProfile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Invalid returns the profiles that failed validation, sorted by name.
func (r *Registry) Invalid() []*ServerProfile {
	var out []*ServerProfile
	for _, p := range r.Profiles() {
		if !p.Valid() {
			out = append(out, p)
		}
	}
	return out
}

// Len returns the number of registered profiles.
func (r *Registry) Len() int {
	return len(r.profiles)
}
