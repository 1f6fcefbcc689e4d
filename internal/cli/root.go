// Package cli implements the tiermem CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/tiermem/internal/config"
)

var (
	cfgFile    string
	formatFlag string

	// v collects defaults, the config file, TIERMEM_* variables and bound flags.
	v = config.New()
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "tiermem",
	Short: "Tiered associative memory for agents",
	Long: "Store memories, retrieve them by embedding similarity, and let them age " +
		"through short-term, long-term, episodic and semantic tiers.",
	SilenceUsage: true,
}

func init() {
	pf := RootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "Config file (YAML)")
	pf.StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
	pf.StringP("db", "d", "", "Snapshot path (default: $TIERMEM_DB or ~/.tiermem/memory.db)")
	pf.String("driver", "", "Persistence driver: sqlite, file, postgres")
	pf.String("dsn", "", "Postgres connection string")
	pf.String("provider", "", "Embedding provider: hash, ollama, openai")
	pf.String("model", "", "Embedding model name")
	pf.Int("dims", 0, "Embedding dimensionality")
	pf.String("log-level", "", "Log level: debug, info, warn, error")

	bind := map[string]string{
		"persistence.path":   "db",
		"persistence.driver": "driver",
		"persistence.dsn":    "dsn",
		"embedding.provider": "provider",
		"embedding.model":    "model",
		"embedding.dims":     "dims",
		"log.level":          "log-level",
	}
	for key, flag := range bind {
		if err := v.BindPFlag(key, pf.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

func loadConfig() (config.Config, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	}
	return config.Load(v)
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}

func printJSON(w io.Writer, val any) {
	b, _ := json.MarshalIndent(val, "", "  ")
	fmt.Fprintln(w, string(b))
}

func textMode() bool {
	return strings.EqualFold(formatFlag, "text")
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// oneLine shortens content for text output.
func oneLine(s string, n int) string {
	r := []rune(strings.Join(strings.Fields(s), " "))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}
