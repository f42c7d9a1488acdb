package temporalx

import (
	"strings"
	"time"

	"github.com/yungbote/contentplan-backend/internal/platform/envutil"
)

type Config struct {
	Address   string
	Namespace string
	TaskQueue string

	ClientCertPath string
	ClientKeyPath  string
	ClientCAPath   string

	DialTimeout       time.Duration
	DialMaxWait       time.Duration
	AutoRegister      bool
	RetentionDays     int
	ActivityHeartbeat time.Duration
}

const (
	DefaultNamespace = "contentplan"
	DefaultTaskQueue = "contentplan"
)

func LoadConfig() Config {
	return Config{
		Address:   strings.TrimSpace(envutil.String("TEMPORAL_ADDRESS", "")),
		Namespace: envutil.String("TEMPORAL_NAMESPACE", DefaultNamespace),
		TaskQueue: envutil.String("TEMPORAL_TASK_QUEUE", DefaultTaskQueue),

		ClientCertPath: envutil.String("TEMPORAL_CLIENT_CERT_PATH", ""),
		ClientKeyPath:  envutil.String("TEMPORAL_CLIENT_KEY_PATH", ""),
		ClientCAPath:   envutil.String("TEMPORAL_CLIENT_CA_PATH", ""),

		DialTimeout:       envutil.Duration("TEMPORAL_DIAL_TIMEOUT_SECONDS", 5, time.Second),
		DialMaxWait:       envutil.Duration("TEMPORAL_DIAL_MAX_WAIT_SECONDS", 60, time.Second),
		AutoRegister:      envutil.Bool("TEMPORAL_AUTO_REGISTER_NAMESPACE", false),
		RetentionDays:     envutil.Int("TEMPORAL_NAMESPACE_RETENTION_DAYS", 7),
		ActivityHeartbeat: envutil.Duration("TEMPORAL_ACTIVITY_HEARTBEAT_SECONDS", 20, time.Second),
	}
}

func (c Config) Enabled() bool { return c.Address != "" }

func (c Config) mtls() bool {
	return c.ClientCertPath != "" || c.ClientKeyPath != "" || c.ClientCAPath != ""
}
