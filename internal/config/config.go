// Package config loads and validates ft8op's YAML configuration file,
// following the nested yaml-tagged struct convention used across the rest
// of the fleet's configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration document.
type Config struct {
	Connection ConnectionConfig `yaml:"connection"`
	Policy     PolicyConfig     `yaml:"policy"`
	Files      FilesConfig      `yaml:"files"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ConnectionConfig names the host, Redis, Mongo, and QRZ endpoints.
type ConnectionConfig struct {
	WSJTXIP    string `yaml:"wsjtx_ip"`
	WSJTXPort  int    `yaml:"wsjtx_port"`
	Multicast  bool   `yaml:"multicast"`
	MongoHost  string `yaml:"mongo_host"`
	MongoPort  int    `yaml:"mongo_port"`
	RedisHost  string `yaml:"redis_host"`
	RedisPort  int    `yaml:"redis_port"`
	QRZAPIKey  string `yaml:"qrz_api_key"`
	QRZUser    string `yaml:"qrz_username"`
	QRZPass    string `yaml:"qrz_password"`
	NumDaysLog int    `yaml:"num_days_log"` // 0 = fetch entire logbook
}

// PolicyConfig is every operator-tunable knob named in the protocol spec.
type PolicyConfig struct {
	NewGrid                  bool    `yaml:"new_grid"`
	NewDXCC                  bool    `yaml:"new_dxcc"`
	GridHigherThanCQ         bool    `yaml:"grid_higher_than_cq"`
	ValidateCallsign         bool    `yaml:"validate_callsign"`
	WorkOnUnconfirmedQSO     bool    `yaml:"work_on_unconfirmed_qso"`
	NumInactiveBeforeCut     int     `yaml:"num_inactive_before_cut"`
	NumInactiveBeforeCutVIP  int     `yaml:"num_inactive_before_cut_vip"`
	MaxTries                 int     `yaml:"max_tries"`
	MaxTriesVIP               int     `yaml:"max_tries_vip"`
	NumTriesCallBusy          int     `yaml:"num_tries_call_busy"`
	NumTriesCallBusyVIP        int     `yaml:"num_tries_call_busy_vip"`
	NumDisableTransmit        int     `yaml:"num_disable_transmit"`
	MinDB                     int     `yaml:"min_db"`
	MinFrequency              uint32  `yaml:"min_frequency"`
	MaxFrequency              uint32  `yaml:"max_frequency"`
	InitialFrequency          uint32  `yaml:"initial_frequency"`
	ExpiredTime               float64 `yaml:"expired_time"`
	ReleaseFromSpamTime       float64 `yaml:"release_from_spam_time"`
	MaxTriesChangeFrequency   int     `yaml:"max_tries_change_frequency"`
	SortBy                    [][2]interface{} `yaml:"sortby"`
	DXCCException             []string `yaml:"dxcc_exception"`
}

// FilesConfig names the operator-maintained exception/priority lists.
type FilesConfig struct {
	CallsignException    string `yaml:"callsign_exception"`
	ReceiverException    string `yaml:"receiver_exception"`
	ValidCallsignCSV     string `yaml:"valid_callsign_location"`
	DXCCPriority         string `yaml:"dxcc_priority"`
	DXCCVIP              string `yaml:"dxcc_vip"`
	LogLocation          string `yaml:"log_location"`
	CTYDat               string `yaml:"cty_dat"`
	GeoIPDB              string `yaml:"geoip_db"` // empty disables IP geolocation
}

// LoggingConfig controls the rotating file handlers both processes open.
type LoggingConfig struct {
	Dir     string `yaml:"dir"`
	Debug   bool   `yaml:"debug"`
	MaxSize int    `yaml:"max_size_bytes"`
	Backups int    `yaml:"backups"`
}

// Defaults mirrors the fallback values the Python original hard-codes when
// a .env key is absent.
func Defaults() Config {
	return Config{
		Connection: ConnectionConfig{
			WSJTXIP:   "127.0.0.1",
			WSJTXPort: 2237,
			MongoHost: "127.0.0.1",
			MongoPort: 27017,
			RedisHost: "127.0.0.1",
			RedisPort: 6379,
		},
		Policy: PolicyConfig{
			MaxTries:                5,
			MaxTriesVIP:             5,
			NumInactiveBeforeCut:    3,
			NumInactiveBeforeCutVIP: 3,
			NumTriesCallBusy:        2,
			NumTriesCallBusyVIP:     2,
			MinFrequency:            1000,
			MaxFrequency:            2900,
			InitialFrequency:        1500,
			ExpiredTime:             600,
			ReleaseFromSpamTime:     300,
			MaxTriesChangeFrequency: 1,
			SortBy:                  [][2]interface{}{{"importance", -1}},
		},
		Logging: LoggingConfig{
			Dir:     "log",
			MaxSize: 10 * 1024 * 1024,
			Backups: 5,
		},
	}
}

// Load reads and validates a YAML config file, applying Defaults() for any
// zero-valued field the file doesn't set.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if len(cfg.Policy.SortBy) == 0 {
		cfg.Policy.SortBy = [][2]interface{}{{"importance", -1}}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the three consistency invariants the spec requires at
// load time, before either loop starts.
func (c *Config) Validate() error {
	p := c.Policy
	if p.NumInactiveBeforeCut >= p.MaxTries {
		return fmt.Errorf("config: num_inactive_before_cut (%d) must be < max_tries (%d)", p.NumInactiveBeforeCut, p.MaxTries)
	}
	if p.NumInactiveBeforeCutVIP >= p.MaxTriesVIP {
		return fmt.Errorf("config: num_inactive_before_cut_vip (%d) must be < max_tries_vip (%d)", p.NumInactiveBeforeCutVIP, p.MaxTriesVIP)
	}
	if p.NumTriesCallBusy < 0 || p.NumTriesCallBusy >= 2*p.MaxTries {
		return fmt.Errorf("config: num_tries_call_busy (%d) must be in [0, %d)", p.NumTriesCallBusy, 2*p.MaxTries)
	}
	if p.NumTriesCallBusyVIP < 0 || p.NumTriesCallBusyVIP >= 2*p.MaxTriesVIP {
		return fmt.Errorf("config: num_tries_call_busy_vip (%d) must be in [0, %d)", p.NumTriesCallBusyVIP, 2*p.MaxTriesVIP)
	}
	if !(p.MinFrequency <= p.InitialFrequency && p.InitialFrequency <= p.MaxFrequency) {
		return fmt.Errorf("config: min_frequency (%d) <= initial_frequency (%d) <= max_frequency (%d) violated",
			p.MinFrequency, p.InitialFrequency, p.MaxFrequency)
	}
	return nil
}
