package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gitlab.bluewillows.net/root/sftpgate/pkg/transfer"
)

// toProfileConfig converts a file profile into a transfer.ProfileConfig, reading
// password and passphrase files.
func (p FileProfileConfig) toProfileConfig() (transfer.ProfileConfig, []string) {
	var errs []string
	label := fmt.Sprintf("profiles[%s]", p.Name)

	cfg := transfer.ProfileConfig{
		Name:                  strings.TrimSpace(p.Name),
		Host:                  p.Host,
		Port:                  p.Port,
		Username:              p.Username,
		Password:              p.Password,
		KeyFile:               p.KeyFile,
		KeyData:               p.KeyData,
		Passphrase:            p.Passphrase,
		KeyboardInteractive:   p.KeyboardInteractive,
		KnownHostsFile:        p.KnownHostsFile,
		StrictHostKeyChecking: p.StrictHostKeyChecking,
		Workdir:               p.Workdir,
		Filename:              p.Filename,
		LocalFilename:         p.LocalFilename,
	}

	if p.PasswordFile != "" {
		v, err := readSecretFile(p.PasswordFile)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s.password_file: %v", label, err))
		}
		cfg.Password = v
	}
	if p.PassphraseFile != "" {
		v, err := readSecretFile(p.PassphraseFile)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s.passphrase_file: %v", label, err))
		}
		cfg.Passphrase = v
	}

	if a := p.Algorithms; a != nil {
		cfg.Algorithms = transfer.AlgorithmConfig{
			Kex:           a.Kex,
			Cipher:        a.Cipher,
			ServerHostKey: a.ServerHostKey,
			HMAC:          a.HMAC,
			Compress:      a.Compress,
		}
	}

	var err error
	if cfg.ConnectTimeout, err = parseDuration(p.ConnectTimeout); err != nil {
		errs = append(errs, fmt.Sprintf("%s.connect_timeout: %v", label, err))
	}
	if cfg.KeepaliveInterval, err = parseDuration(p.KeepaliveInterval); err != nil {
		errs = append(errs, fmt.Sprintf("%s.keepalive_interval: %v", label, err))
	}

	return cfg, errs
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

// parseProfileNames splits the SFTPGATE_PROFILES list.
func parseProfileNames(s string) []string {
	var names []string
	for _, name := range strings.Split(s, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// applyProfileEnv overlays SFTPGATE_<NAME>_* variables onto cfg. Unset
// variables leave the existing value in place, so a file-defined profile
// can be partially overridden from the environment.
func applyProfileEnv(cfg *transfer.ProfileConfig) []string {
	prefix := envPrefix(cfg.Name)
	var errs []string

	setString := func(key string, dst *string) {
		if v := getEnv(prefix + key); v != "" {
			*dst = v
		}
	}
	setSecret := func(key string, dst *string) {
		v, err := getEnvWithFileFallback(prefix, key)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s%s_FILE: %v", prefix, key, err))
			return
		}
		if v != "" {
			*dst = v
		}
	}
	setBool := func(key string, dst *bool) {
		v := getEnv(prefix + key)
		if v == "" {
			return
		}
		b, ok := parseBool(v)
		if !ok {
			errs = append(errs, fmt.Sprintf("%s%s: invalid boolean %q", prefix, key, v))
			return
		}
		*dst = b
	}
	setDuration := func(key string, dst *time.Duration) {
		v := getEnv(prefix + key)
		if v == "" {
			return
		}
		d, err := parseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s%s: %v", prefix, key, err))
			return
		}
		*dst = d
	}

	setString("HOST", &cfg.Host)
	if v := getEnv(prefix + "PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%sPORT: invalid port %q", prefix, v))
		} else {
			cfg.Port = port
		}
	}
	setString("USERNAME", &cfg.Username)

	setSecret("PASSWORD", &cfg.Password)
	setString("KEY_FILE", &cfg.KeyFile)
	setSecret("KEY_DATA", &cfg.KeyData)
	setSecret("PASSPHRASE", &cfg.Passphrase)
	setBool("KEYBOARD_INTERACTIVE", &cfg.KeyboardInteractive)

	setString("KEX", &cfg.Algorithms.Kex)
	setString("CIPHER", &cfg.Algorithms.Cipher)
	setString("SERVER_HOST_KEY", &cfg.Algorithms.ServerHostKey)
	setString("HMAC", &cfg.Algorithms.HMAC)
	setString("COMPRESS", &cfg.Algorithms.Compress)

	setString("KNOWN_HOSTS_FILE", &cfg.KnownHostsFile)
	setBool("STRICT_HOST_KEY_CHECKING", &cfg.StrictHostKeyChecking)
	setDuration("CONNECT_TIMEOUT", &cfg.ConnectTimeout)
	setDuration("KEEPALIVE_INTERVAL", &cfg.KeepaliveInterval)

	setString("WORKDIR", &cfg.Workdir)
	setString("FILENAME", &cfg.Filename)
	setString("LOCAL_FILENAME", &cfg.LocalFilename)

	return errs
}

// loadProfiles merges file profiles with the profiles named in
// SFTPGATE_PROFILES. An env-named profile that also appears in the file is
// overlaid in place; otherwise it is appended in list order.
func loadProfiles(fileProfiles []FileProfileConfig) ([]transfer.ProfileConfig, []string) {
	var (
		profiles []transfer.ProfileConfig
		errs     []string
	)

	for _, fp := range fileProfiles {
		cfg, perrs := fp.toProfileConfig()
		errs = append(errs, perrs...)
		profiles = append(profiles, cfg)
	}

	for _, name := range parseProfileNames(getEnv(EnvPrefix + "_PROFILES")) {
		idx := -1
		for i := range profiles {
			if profiles[i].Name == name {
				idx = i
				break
			}
		}
		if idx < 0 {
			profiles = append(profiles, transfer.ProfileConfig{Name: name})
			idx = len(profiles) - 1
		}
		errs = append(errs, applyProfileEnv(&profiles[idx])...)
	}

	return profiles, errs
}
