package config

type PushConfig struct {
	FCM  *FCMConfig  `yaml:"fcm"`
	APNS *APNSConfig `yaml:"apns"`
}

// FCMConfig turns on FCM delivery through the shared Firebase app.
type FCMConfig struct {
	Enabled bool `yaml:"enabled"`
}

type APNSConfig struct {
	KeyID      string `yaml:"key_id"`
	TeamID     string `yaml:"team_id"`
	BundleID   string `yaml:"bundle_id"`
	KeyFile    string `yaml:"key_file"`
	Production bool   `yaml:"production"`
}

func (c *APNSConfig) Enabled() bool {
	return c.KeyFile != "" && c.KeyID != "" && c.TeamID != "" && c.BundleID != ""
}

func loadPushConfig() *PushConfig {
	return &PushConfig{
		FCM: &FCMConfig{
			Enabled: getEnvAsBool("FCM_ENABLED", false),
		},
		APNS: &APNSConfig{
			KeyID:      getEnv("APNS_KEY_ID", ""),
			TeamID:     getEnv("APNS_TEAM_ID", ""),
			BundleID:   getEnv("APNS_BUNDLE_ID", ""),
			KeyFile:    getEnv("APNS_KEY_FILE", ""),
			Production: getEnvAsBool("APNS_PRODUCTION", false),
		},
	}
}
