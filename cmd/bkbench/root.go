// Command bkbench is a command-line client and benchmarking tool for the
// storage-node wire protocol implemented by this module: cobra commands,
// flags bound through viper, and environment/.env overrides via godotenv.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kolbv/ledgerclient/auth"
	"github.com/kolbv/ledgerclient/client"
	"github.com/kolbv/ledgerclient/wire"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "bkbench",
	Short: "client and benchmarking tool for a storage-node wire protocol",
	Long: fmt.Sprintf(`bkbench (v%s)

Talks to storage nodes over the module's ADD_ENTRY/READ_ENTRY/TRIM wire
protocol: add and read individual entries, or run the perf subcommand to
benchmark a server under concurrent load.`, version),
}

func init() {
	cobra.OnInitialize(initConfig)

	key := "server"
	rootCmd.PersistentFlags().String(key, "127.0.0.1:3181", wrapString("Address of the storage node, host:port"))

	key = "connections-per-server"
	rootCmd.PersistentFlags().Int(key, 1, wrapString("Number of connections to keep open per server"))

	key = "op-timeout"
	rootCmd.PersistentFlags().Int(key, 5, wrapString("Per-operation deadline, in seconds"))

	key = "auth-timeout"
	rootCmd.PersistentFlags().Int(key, 10, wrapString("Deadline for the authentication handshake, in seconds"))

	key = "tick-duration"
	rootCmd.PersistentFlags().Int(key, 1000, wrapString("Client tick duration, in milliseconds"))

	key = "auth"
	rootCmd.PersistentFlags().String(key, "none", wrapString("Auth plugin to use: none or shared-secret"))

	key = "auth-secret"
	rootCmd.PersistentFlags().String(key, "", wrapString("Shared secret, required when --auth=shared-secret"))

	rootCmd.AddCommand(versionCmd, addCmd, readCmd, perfCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("bkbench v%s\n", version)
	},
}

func initConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("bkbench")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func bindFlags(cmd *cobra.Command, args []string) error {
	return viper.BindPFlags(cmd.Flags())
}

func wrapString(text string) string {
	const wrap = 60
	var lines []string
	var line strings.Builder
	width := 0
	for _, word := range strings.Fields(text) {
		w := len(word)
		if width > 0 && width+1+w > wrap {
			lines = append(lines, line.String())
			line.Reset()
			width = 0
		}
		if width > 0 {
			line.WriteString(" ")
			width++
		}
		line.WriteString(word)
		width += w
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}

// clientConfig builds a client.Config from the bound flags.
func clientConfig() client.Config {
	cfg := client.DefaultConfig()
	cfg.ConnectionsPerServer = viper.GetInt("connections-per-server")
	cfg.OpTimeout = time.Duration(viper.GetInt("op-timeout")) * time.Second
	cfg.AuthTimeout = time.Duration(viper.GetInt("auth-timeout")) * time.Second
	cfg.TickDuration = time.Duration(viper.GetInt("tick-duration")) * time.Millisecond

	switch viper.GetString("auth") {
	case "shared-secret":
		cfg.AuthFactory = auth.SharedSecretFactory{Secret: []byte(viper.GetString("auth-secret"))}
	default:
		cfg.AuthFactory = auth.NoopFactory{}
	}
	return cfg
}

// serverAddress parses the --server flag into a wire.ServerAddress.
func serverAddress() (wire.ServerAddress, error) {
	raw := viper.GetString("server")
	host, portStr, found := strings.Cut(raw, ":")
	if !found {
		return wire.ServerAddress{}, fmt.Errorf("invalid --server %q, expected host:port", raw)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return wire.ServerAddress{}, fmt.Errorf("invalid port in --server %q: %w", raw, err)
	}
	return wire.ServerAddress{Host: host, Port: port}, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
