package main

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	listen      string
	storeMode   string
	sqlitePath  string
	postgresDSN string
	tokenAlg    string
	tokenKey    string
}

func (c *Config) validate() error {
	switch strings.ToLower(c.storeMode) {
	case "memory", "sqlite", "local", "postgres":
	default:
		return fmt.Errorf("invalid store mode (must be memory, sqlite, or postgres): %s", c.storeMode)
	}
	switch strings.ToLower(c.tokenAlg) {
	case "ed25519", "hmac":
		if c.tokenKey == "" {
			return fmt.Errorf("--token-alg %s requires --token-key", c.tokenAlg)
		}
	case "none", "":
		if c.tokenKey != "" {
			return fmt.Errorf("--token-key requires --token-alg ed25519 or hmac")
		}
	default:
		return fmt.Errorf("invalid token alg (must be ed25519, hmac, or none): %s", c.tokenAlg)
	}
	if c.tokenKey != "" {
		if _, err := base64.StdEncoding.DecodeString(c.tokenKey); err != nil {
			return fmt.Errorf("token key is not valid base64: %w", err)
		}
	}
	return nil
}

func (c *Config) tokenKeyBytes() []byte {
	key, _ := base64.StdEncoding.DecodeString(c.tokenKey)
	return key
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("HOKM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "hokm-server",
		Short:         "Real-time multiplayer Hokm game server.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.listen, "listen", "l", ":18080", "address to listen on (env: HOKM_LISTEN)")
	fs.StringVar(&cfg.storeMode, "store-mode", "memory", "state store backend: memory, sqlite, or postgres (env: HOKM_STORE_MODE)")
	fs.StringVar(&cfg.sqlitePath, "sqlite-path", "", "path to the sqlite database file (env: HOKM_SQLITE_PATH)")
	fs.StringVar(&cfg.postgresDSN, "postgres-dsn", "", "postgres connection string (env: HOKM_POSTGRES_DSN)")
	fs.StringVar(&cfg.tokenAlg, "token-alg", "none", "token verification algorithm: ed25519, hmac, or none (env: HOKM_TOKEN_ALG)")
	fs.StringVar(&cfg.tokenKey, "token-key", "", "base64 token verification key: ed25519 public key or hmac secret (env: HOKM_TOKEN_KEY)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})

	return cmd
}
