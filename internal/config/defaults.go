package config

import "path/filepath"

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Signal: SignalConfig{
			Mode:                "rest",
			URL:                 "http://localhost:8080",
			PollIntervalSeconds: 60,
		},
		Hass: HassConfig{
			URL:              "http://localhost:8123",
			EntityTTLSeconds: 300,
			SubscribeEvents:  true,
		},
		Audit: AuditConfig{
			Enabled: false,
			DBPath:  filepath.Join(DefaultConfigDir(), "audit.db"),
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9229,
		},
	}
}
