package config

import (
	"testing"

	jerrors "judger-go/errors"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	limits := []int64{cfg.MaxCPUTime, cfg.MaxRealTime, cfg.MaxMemory, cfg.MaxStack, cfg.MaxProcessNumber, cfg.MaxOutputSize}
	for i, v := range limits {
		if v != -1 {
			t.Errorf("limit[%d] = %d, want -1", i, v)
		}
	}
	if cfg.UID != 65534 || cfg.GID != 65534 {
		t.Errorf("UID/GID = %d/%d, want 65534/65534", cfg.UID, cfg.GID)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		cfg := Default()
		cfg.ExePath = "/usr/bin/true"
		cfg.MaxStack = 16 * 1024 * 1024
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		wantKind jerrors.ErrorKind
	}{
		{
			name:    "valid default",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:     "missing exe path",
			mutate:   func(c *Config) { c.ExePath = "" },
			wantErr:  true,
			wantKind: jerrors.ErrInvalidConfig,
		},
		{
			name:     "zero max stack",
			mutate:   func(c *Config) { c.MaxStack = 0 },
			wantErr:  true,
			wantKind: jerrors.ErrInvalidConfig,
		},
		{
			name:     "negative max cpu time other than -1",
			mutate:   func(c *Config) { c.MaxCPUTime = -5 },
			wantErr:  true,
			wantKind: jerrors.ErrInvalidConfig,
		},
		{
			name:     "zero max memory",
			mutate:   func(c *Config) { c.MaxMemory = 0 },
			wantErr:  true,
			wantKind: jerrors.ErrInvalidConfig,
		},
		{
			name:     "unknown seccomp rule",
			mutate:   func(c *Config) { c.SeccompRuleName = SeccompRuleName("rust") },
			wantErr:  true,
			wantKind: jerrors.ErrInvalidConfig,
		},
		{
			name:    "valid with c_cpp seccomp rule",
			mutate:  func(c *Config) { c.SeccompRuleName = SeccompCCpp },
			wantErr: false,
		},
		{
			name:    "unlimited max cpu time",
			mutate:  func(c *Config) { c.MaxCPUTime = -1 },
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)

			err := Validate(cfg)
			if tt.wantErr && err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("Validate() = %v, want nil", err)
			}
			if tt.wantErr {
				kind, ok := jerrors.GetKind(err)
				if !ok || kind != tt.wantKind {
					t.Errorf("GetKind(err) = (%v, %v), want (%v, true)", kind, ok, tt.wantKind)
				}
			}
		})
	}
}

func TestSeccompRuleNameValid(t *testing.T) {
	valid := []SeccompRuleName{SeccompNone, SeccompCCpp, SeccompCCppFileIO, SeccompGolang, SeccompNode, SeccompGeneral}
	for _, n := range valid {
		if !n.valid() {
			t.Errorf("%q.valid() = false, want true", n)
		}
	}
	if SeccompRuleName("bogus").valid() {
		t.Error(`"bogus".valid() = true, want false`)
	}
}
