package main

import (
	"fmt"
	"os"
	"time"

	"github.com/jmerrifield20/powchain/internal/auth"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	nodeURL  string
	apiToken string
	cfgFile  string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "chainctl",
	Short: "powchain command-line interface",
	Long: `chainctl hashes, mines and verifies proof-of-work chains locally, and
drives a running chaind node over its HTTP API.

Local commands (hash, merkle, pow, demo, verify-file) need no node.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.chainctl")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("chainctl")
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if nodeURL == "" {
			nodeURL = viper.GetString("node_url")
		}
		if nodeURL == "" {
			nodeURL = "http://localhost:8080"
		}
		if apiToken == "" {
			apiToken = viper.GetString("token")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.chainctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&nodeURL, "node", "", "chaind base URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", "", "operator token for write commands")

	rootCmd.AddCommand(hashCmd, merkleCmd, powCmd, demoCmd, verifyFileCmd)
	rootCmd.AddCommand(statusCmd, blocksCmd, blockCmd, validateCmd, sendCmd, pendingCmd, mineCmd, exportCmd)
	rootCmd.AddCommand(tokenCmd, versionCmd)
}

// ── token ────────────────────────────────────────────────────────────────────

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage operator tokens",
}

var (
	tokenSecret  string
	tokenIssuer  string
	tokenSubject string
	tokenScopes  []string
	tokenTTL     time.Duration
)

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Mint an operator token signed with the node's operator secret",
	Long: `Mint an operator token for a node started with auth.operator_secret.

  chainctl token issue --secret "$SECRET" --scope chain:submit --scope chain:mine

The secret may also come from CHAINCTL_OPERATOR_SECRET or operator_secret in
the config file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := tokenSecret
		if secret == "" {
			secret = viper.GetString("operator_secret")
		}
		ti, err := auth.NewTokenIssuer(secret, tokenIssuer, tokenTTL)
		if err != nil {
			return err
		}
		token, err := ti.Issue(tokenSubject, tokenScopes)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires in %s (%s)\n", ti.TTL(), time.Now().Add(ti.TTL()).UTC().Format(time.RFC3339))
		return nil
	},
}

func init() {
	tokenIssueCmd.Flags().StringVar(&tokenSecret, "secret", "", "operator secret (HMAC key)")
	tokenIssueCmd.Flags().StringVar(&tokenIssuer, "issuer", "chaind", "issuer claim; must match the node's auth.issuer")
	tokenIssueCmd.Flags().StringVar(&tokenSubject, "subject", "operator", "subject claim")
	tokenIssueCmd.Flags().StringSliceVar(&tokenScopes, "scope", []string{auth.ScopeSubmit, auth.ScopeMine}, "granted scopes")
	tokenIssueCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	tokenCmd.AddCommand(tokenIssueCmd)
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the chainctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("chainctl", version)
	},
}
