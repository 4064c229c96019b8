package transfer

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"gitlab.bluewillows.net/root/sftpgate/internal/sftptest"
)

func TestNewServerProfile(t *testing.T) {
	keyPEM, _ := sftptest.NewClientKey(t)
	keyFile := filepath.Join(t.TempDir(), "id_ed25519")
	if err := os.WriteFile(keyFile, keyPEM, 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}

	tests := []struct {
		name    string
		cfg     ProfileConfig
		wantErr string
	}{
		{
			name: "password",
			cfg:  ProfileConfig{Name: "p", Host: "h", Username: "u", Password: "pw"},
		},
		{
			name: "key file",
			cfg:  ProfileConfig{Name: "p", Host: "h", Username: "u", KeyFile: keyFile},
		},
		{
			name: "inline key",
			cfg:  ProfileConfig{Name: "p", Host: "h", Username: "u", KeyData: string(keyPEM)},
		},
		{
			name: "algorithms",
			cfg: ProfileConfig{Name: "p", Host: "h", Username: "u", Password: "pw", Algorithms: AlgorithmConfig{
				Kex:           "curve25519-sha256, diffie-hellman-group14-sha256",
				Cipher:        "aes128-ctr,aes256-gcm@openssh.com",
				ServerHostKey: "ssh-ed25519",
				HMAC:          "hmac-sha2-256",
				Compress:      "none",
			}},
		},
		{
			name:    "missing host",
			cfg:     ProfileConfig{Name: "p", Username: "u", Password: "pw"},
			wantErr: "host is required",
		},
		{
			name:    "missing username",
			cfg:     ProfileConfig{Name: "p", Host: "h", Password: "pw"},
			wantErr: "username is required",
		},
		{
			name:    "port out of range",
			cfg:     ProfileConfig{Name: "p", Host: "h", Username: "u", Password: "pw", Port: 70000},
			wantErr: "out of range",
		},
		{
			name:    "unreadable key file",
			cfg:     ProfileConfig{Name: "p", Host: "h", Username: "u", KeyFile: "/nonexistent/key"},
			wantErr: "reading key file",
		},
		{
			name:    "garbage key",
			cfg:     ProfileConfig{Name: "p", Host: "h", Username: "u", KeyData: "not a key"},
			wantErr: "parsing private key",
		},
		{
			name:    "unknown cipher",
			cfg:     ProfileConfig{Name: "p", Host: "h", Username: "u", Password: "pw", Algorithms: AlgorithmConfig{Cipher: "rot13"}},
			wantErr: `unsupported cipher algorithm "rot13"`,
		},
		{
			name:    "compression without none",
			cfg:     ProfileConfig{Name: "p", Host: "h", Username: "u", Password: "pw", Algorithms: AlgorithmConfig{Compress: "zlib"}},
			wantErr: "compression",
		},
		{
			name:    "strict without known_hosts",
			cfg:     ProfileConfig{Name: "p", Host: "h", Username: "u", Password: "pw", StrictHostKeyChecking: true},
			wantErr: "known_hosts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewServerProfile(tt.cfg)
			if p == nil {
				t.Fatal("NewServerProfile() returned nil")
			}
			if tt.wantErr == "" {
				if !p.Valid() {
					t.Fatalf("Valid() = false, err = %v", p.Err())
				}
				return
			}
			if p.Valid() {
				t.Fatal("Valid() = true, want false")
			}
			if !IsConfiguration(p.Err()) {
				t.Errorf("Err() = %v, want configuration error", p.Err())
			}
			if !strings.Contains(p.Err().Error(), tt.wantErr) {
				t.Errorf("Err() = %v, want error containing %q", p.Err(), tt.wantErr)
			}
		})
	}
}

func TestServerProfile_DefaultPort(t *testing.T) {
	p := NewServerProfile(ProfileConfig{Name: "p", Host: "h", Username: "u", Password: "pw"})
	if p.Port() != 22 {
		t.Errorf("Port() = %d, want 22", p.Port())
	}
}

func TestParseAlgorithmList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"  ", nil},
		{"aes128-ctr", []string{"aes128-ctr"}},
		{" aes128-ctr , aes256-ctr ,,", []string{"aes128-ctr", "aes256-ctr"}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseAlgorithmList(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseAlgorithmList(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestRegistry(t *testing.T) {
	good := NewServerProfile(ProfileConfig{Name: "good", Host: "h", Username: "u", Password: "pw"})
	bad := NewServerProfile(ProfileConfig{Name: "bad", Host: "h"})

	t.Run("lookup", func(t *testing.T) {
		r, err := NewRegistry(good, bad)
		if err != nil {
			t.Fatalf("NewRegistry() error = %v", err)
		}

		p, err := r.Lookup("good")
		if err != nil || p != good {
			t.Errorf("Lookup(good) = %v, %v", p, err)
		}

		if _, err := r.Lookup("bad"); !IsConfiguration(err) {
			t.Errorf("Lookup(bad) error = %v, want configuration error", err)
		}
		if _, err := r.Lookup("missing"); !IsConfiguration(err) {
			t.Errorf("Lookup(missing) error = %v, want configuration error", err)
		}
		if _, err := r.Lookup(""); !IsConfiguration(err) {
			t.Errorf("Lookup(\"\") with two profiles error = %v, want configuration error", err)
		}

		if got := r.Len(); got != 2 {
			t.Errorf("Len() = %d, want 2", got)
		}
		if names := []string{r.Profiles()[0].Name(), r.Profiles()[1].Name()}; names[0] != "bad" || names[1] != "good" {
			t.Errorf("Profiles() order = %v, want [bad good]", names)
		}
		if inv := r.Invalid(); len(inv) != 1 || inv[0] != bad {
			t.Errorf("Invalid() = %v, want [bad]", inv)
		}
	})

	t.Run("sole profile", func(t *testing.T) {
		r, _ := NewRegistry(good)
		p, err := r.Lookup("")
		if err != nil || p != good {
			t.Errorf("Lookup(\"\") = %v, %v; want sole profile", p, err)
		}
	})

	t.Run("duplicate name", func(t *testing.T) {
		if _, err := NewRegistry(good, good); err == nil {
			t.Error("NewRegistry() with duplicate names expected error")
		}
	})

	t.Run("unnamed profile", func(t *testing.T) {
		unnamed := NewServerProfile(ProfileConfig{Host: "h", Username: "u", Password: "pw"})
		if _, err := NewRegistry(unnamed); err == nil {
			t.Error("NewRegistry() with unnamed profile expected error")
		}
	})
}

func TestServerProfile_Resolve(t *testing.T) {
	profile := NewServerProfile(ProfileConfig{
		Name:     "p",
		Host:     "files.internal",
		Port:     2222,
		Username: "backup",
		Password: "pw",
		Algorithms: AlgorithmConfig{
			Cipher: "aes128-ctr, aes256-ctr",
			Kex:    "curve25519-sha256",
		},
		KeyboardInteractive: true,
		Workdir:             "/data",
		Filename:            "default.txt",
	})
	if !profile.Valid() {
		t.Fatalf("profile invalid: %v", profile.Err())
	}

	t.Run("profile defaults", func(t *testing.T) {
		s, err := profile.Resolve(Overrides{})
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if s.Host != "files.internal" || s.Port != 2222 || s.Username != "backup" || s.Password != "pw" {
			t.Errorf("Resolve() = %+v", s)
		}
		if !s.KeyboardInteractive {
			t.Error("KeyboardInteractive not carried over")
		}
		if !reflect.DeepEqual(s.Algorithms.Ciphers, []string{"aes128-ctr", "aes256-ctr"}) {
			t.Errorf("Ciphers = %v", s.Algorithms.Ciphers)
		}
	})

	t.Run("overrides win", func(t *testing.T) {
		s, err := profile.Resolve(Overrides{Host: "other", Port: 22, User: "alice", Password: "pw2"})
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if s.Host != "other" || s.Port != 22 || s.Username != "alice" || s.Password != "pw2" {
			t.Errorf("Resolve() = %+v", s)
		}
		if profile.Host() != "files.internal" || profile.Port() != 2222 {
			t.Error("Resolve() mutated the profile")
		}
	})

	t.Run("blank host override ignored", func(t *testing.T) {
		s, _ := profile.Resolve(Overrides{Host: "   "})
		if s.Host != "files.internal" {
			t.Errorf("Host = %q, want profile host", s.Host)
		}
	})

	t.Run("port override out of range", func(t *testing.T) {
		for _, port := range []int{-1, 65536} {
			if _, err := profile.Resolve(Overrides{Port: port}); !IsValidation(err) {
				t.Errorf("Resolve(port %d) error = %v, want validation error", port, err)
			}
		}
	})

	t.Run("settings do not share slices", func(t *testing.T) {
		a, _ := profile.Resolve(Overrides{})
		a.Algorithms.Ciphers[0] = "mutated"
		b, _ := profile.Resolve(Overrides{})
		if b.Algorithms.Ciphers[0] != "aes128-ctr" {
			t.Errorf("second Resolve() saw mutation: %v", b.Algorithms.Ciphers)
		}
	})

	t.Run("invalid profile", func(t *testing.T) {
		bad := NewServerProfile(ProfileConfig{Name: "bad", Host: "h"})
		if _, err := bad.Resolve(Overrides{User: "u", Password: "pw"}); !IsConfiguration(err) {
			t.Errorf("Resolve() error = %v, want configuration error", err)
		}
	})

	t.Run("no credentials", func(t *testing.T) {
		noAuth := NewServerProfile(ProfileConfig{Name: "n", Host: "h", Username: "u"})
		if _, err := noAuth.Resolve(Overrides{}); !IsConfiguration(err) {
			t.Errorf("Resolve() error = %v, want configuration error", err)
		}
		if _, err := noAuth.Resolve(Overrides{Password: "pw"}); err != nil {
			t.Errorf("Resolve() with password override error = %v", err)
		}
	})

	t.Run("parameters", func(t *testing.T) {
		got := profile.Parameters(Overrides{Workdir: "/other"})
		want := Parameters{Workdir: "/other", Filename: "default.txt"}
		if got != want {
			t.Errorf("Parameters() = %+v, want %+v", got, want)
		}
	})
}

func TestSettings_LogValue(t *testing.T) {
	s := Settings{Host: "h", Port: 22, Username: "u", Password: "hunter2", KeyData: []byte("secret-key")}
	out := s.LogValue().String()
	if strings.Contains(out, "hunter2") || strings.Contains(out, "secret-key") {
		t.Errorf("LogValue() leaked credentials: %s", out)
	}
}
