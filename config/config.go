package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"

	"github.com/ilyakaznacheev/cleanenv"
)

type (
	Config struct {
		App            `json:"app"            toml:"app"`
		Ledger         `json:"ledger"         toml:"ledger"`
		HTTP           `json:"http"           toml:"http"`
		DB             `json:"db"             toml:"db"`
		Storage        `json:"storage"        toml:"storage"`
		Reconciliation `json:"reconciliation" toml:"reconciliation"`
		Log            `json:"logger"         toml:"logger"`
	}

	App struct {
		Name        string `json:"name"        toml:"name"        env:"APP_NAME"`
		Environment string `json:"environment" toml:"environment" env:"ENV_NAME" env-default:"dev"`
		Debug       bool   `json:"debug"       toml:"debug"       env:"DEBUG"    env-default:"false"`
	}

	Ledger struct {
		RPCURL                string `json:"rpc_url" toml:"rpc_url" env:"LEDGER_RPC_URL" env-default:"https://rpc.sepolia.org"`
		ChainID               int64  `json:"chain_id" toml:"chain_id" env:"LEDGER_CHAIN_ID" env-default:"11155111"`
		RegistryAddress       string `json:"registry_address" toml:"registry_address" env:"LEDGER_REGISTRY_ADDRESS"`
		TokenAddress          string `json:"token_address" toml:"token_address" env:"LEDGER_TOKEN_ADDRESS"`
		OperatorMnemonic      string `json:"operator_mnemonic" toml:"operator_mnemonic" env:"LEDGER_OPERATOR_MNEMONIC"`
		OperatorAccountIndex  uint32 `json:"operator_account_index" toml:"operator_account_index" env-default:"0"`
		RequiredConfirmations uint64 `json:"required_confirmations" toml:"required_confirmations" env-default:"3"`
		PollIntervalSeconds   int    `json:"poll_interval_seconds" toml:"poll_interval_seconds" env-default:"5"`
	}

	HTTP struct {
		Port string `json:"port" toml:"port" env:"HTTP_PORT" env-default:"8080"`
	}

	DB struct {
		DatabaseURL       string `json:"database_url"        toml:"database_url"        env:"DATABASE_URL"`
		PoolMax           int32  `json:"pool_max"            toml:"pool_max"            env:"PG_POOL_MAX" env-default:"10"`
		ConnectTimeout    int    `json:"connect_timeout"     toml:"connect_timeout"     env:"PG_POOL_CONN_TIMEOUT" env-default:"5"`
		HealthCheckPeriod int    `json:"health_check_period" toml:"health_check_period" env:"PG_POOL_HEALTHCHECK" env-default:"1"`
	}

	Storage struct {
		GatewayURL       string `json:"gateway_url"        toml:"gateway_url"        env:"IPFS_GATEWAY_URL" env-default:"http://localhost:5001"`
		PublicGatewayURL string `json:"public_gateway_url" toml:"public_gateway_url" env:"IPFS_PUBLIC_GATEWAY_URL" env-default:"https://ipfs.io/ipfs"`
		APIToken         string `json:"api_token"          toml:"api_token"          env:"IPFS_API_TOKEN"`
	}

	Reconciliation struct {
		Schedule              string `json:"schedule" toml:"schedule" env:"RECONCILE_SCHEDULE" env-default:"@every 10m"`
		PendingTimeoutMinutes int    `json:"pending_timeout_minutes" toml:"pending_timeout_minutes" env-default:"30"`
	}

	Log struct {
		Level slog.Level `json:"level" toml:"level" env:"LOG_LEVEL"`
	}
)

func LoadConfig() (*Config, error) {
	cfg := &Config{}

	_, b, _, _ := runtime.Caller(0)
	basePath := filepath.Dir(b)

	configTomlPath := filepath.Join(basePath, "config.toml")
	err := cleanenv.ReadConfig(configTomlPath, cfg)
	if err != nil {
		configJsonPath := filepath.Join(basePath, "config.json")
		err = cleanenv.ReadConfig(configJsonPath, cfg)
		if err != nil {
			return nil, fmt.Errorf("config error: %w", err)
		}
	}

	err = cleanenv.ReadEnv(cfg)
	if err != nil {
		return nil, fmt.Errorf("env read error: %w", err)
	}

	return cfg, nil
}
