package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Ledger backends
const (
	LedgerNone   = "none"
	LedgerComet  = "comet"
	LedgerFabric = "fabric"
)

// Triage sequencer backends
const (
	TriageLocal = "local"
	TriageRedis = "redis"
)

// Config holds all configuration for a panelchain process
type Config struct {
	LogMode string `mapstructure:"log_mode"`

	Database DatabaseConfig `mapstructure:"database"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Recycle  RecycleConfig  `mapstructure:"recycle"`
	Triage   TriageConfig   `mapstructure:"triage"`
	Journal  JournalConfig  `mapstructure:"journal"`
}

// DatabaseConfig selects the asset store. SQLitePath wins over the
// PostgreSQL settings when set.
type DatabaseConfig struct {
	Host       string `mapstructure:"host"`
	Port       string `mapstructure:"port"`
	User       string `mapstructure:"user"`
	Pass       string `mapstructure:"pass"`
	Name       string `mapstructure:"name"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// LedgerConfig configures the ledger gateway
type LedgerConfig struct {
	Backend         string        `mapstructure:"backend"` // none, comet or fabric
	CallTimeout     time.Duration `mapstructure:"call_timeout"`
	MetadataBaseURI string        `mapstructure:"metadata_base_uri"`
	CustodianWallet string        `mapstructure:"custodian_wallet"`

	Comet  CometConfig  `mapstructure:"comet"`
	Fabric FabricConfig `mapstructure:"fabric"`
}

// CometConfig points at a CometBFT RPC endpoint, e.g. "http://localhost:26657"
type CometConfig struct {
	RPCEndpoint string `mapstructure:"rpc_endpoint"`
}

// FabricConfig holds the gateway peer connection and client identity
type FabricConfig struct {
	PeerEndpoint string `mapstructure:"peer_endpoint"`
	GatewayPeer  string `mapstructure:"gateway_peer"`
	TLSCertPath  string `mapstructure:"tls_cert_path"`
	MSPID        string `mapstructure:"msp_id"`
	CertPath     string `mapstructure:"cert_path"`
	KeyPath      string `mapstructure:"key_path"`
	Channel      string `mapstructure:"channel"`
	Chaincode    string `mapstructure:"chaincode"`
}

// RecycleConfig carries the material conversion defaults
type RecycleConfig struct {
	NominalWeightKg string `mapstructure:"nominal_weight_kg"`
}

// TriageConfig selects the inspection outcome sequencer
type TriageConfig struct {
	Backend   string `mapstructure:"backend"` // local or redis
	RedisAddr string `mapstructure:"redis_addr"`
	RedisKey  string `mapstructure:"redis_key"`
}

// JournalConfig locates the ledger reconciliation journal. An empty Dir keeps
// the journal in memory.
type JournalConfig struct {
	Dir string `mapstructure:"dir"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_mode", "dev")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.pass", "postgrespassword")
	v.SetDefault("database.name", "panelchain")
	v.SetDefault("database.sqlite_path", "")

	v.SetDefault("ledger.backend", LedgerNone)
	v.SetDefault("ledger.call_timeout", 30*time.Second)
	v.SetDefault("ledger.metadata_base_uri", "https://metadata.panelchain.local")
	v.SetDefault("ledger.custodian_wallet", "")
	v.SetDefault("ledger.comet.rpc_endpoint", "http://localhost:26657")
	v.SetDefault("ledger.fabric.peer_endpoint", "dns:///localhost:7051")
	v.SetDefault("ledger.fabric.gateway_peer", "peer0.org1.example.com")
	v.SetDefault("ledger.fabric.tls_cert_path", "")
	v.SetDefault("ledger.fabric.msp_id", "Org1MSP")
	v.SetDefault("ledger.fabric.cert_path", "")
	v.SetDefault("ledger.fabric.key_path", "")
	v.SetDefault("ledger.fabric.channel", "mychannel")
	v.SetDefault("ledger.fabric.chaincode", "panelchain")

	v.SetDefault("recycle.nominal_weight_kg", "20")

	v.SetDefault("triage.backend", TriageLocal)
	v.SetDefault("triage.redis_addr", "localhost:6379")
	v.SetDefault("triage.redis_key", "panelchain:triage:seq")

	v.SetDefault("journal.dir", "")
}

// LoadConfig loads configuration from defaults, an optional config file and
// PANELCHAIN_* environment variables, in increasing priority.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PANELCHAIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, nil
}

// GetDSN returns the PostgreSQL connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Pass,
		c.Database.Name,
	)
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Database.SQLitePath == "" && c.Database.Host == "" {
		return fmt.Errorf("database.host or database.sqlite_path is required")
	}
	if c.Ledger.CallTimeout <= 0 {
		return fmt.Errorf("ledger.call_timeout must be positive")
	}
	switch c.Ledger.Backend {
	case LedgerNone:
	case LedgerComet:
		if c.Ledger.Comet.RPCEndpoint == "" {
			return fmt.Errorf("ledger.comet.rpc_endpoint is required for the comet backend")
		}
	case LedgerFabric:
		f := c.Ledger.Fabric
		if f.PeerEndpoint == "" || f.MSPID == "" || f.CertPath == "" || f.KeyPath == "" {
			return fmt.Errorf("ledger.fabric peer_endpoint, msp_id, cert_path and key_path are required for the fabric backend")
		}
		if f.Channel == "" || f.Chaincode == "" {
			return fmt.Errorf("ledger.fabric channel and chaincode are required")
		}
	default:
		return fmt.Errorf("unknown ledger.backend %q", c.Ledger.Backend)
	}
	switch c.Triage.Backend {
	case TriageLocal:
	case TriageRedis:
		if c.Triage.RedisAddr == "" {
			return fmt.Errorf("triage.redis_addr is required for the redis sequencer")
		}
	default:
		return fmt.Errorf("unknown triage.backend %q", c.Triage.Backend)
	}
	if c.Recycle.NominalWeightKg == "" {
		return fmt.Errorf("recycle.nominal_weight_kg is required")
	}
	return nil
}
