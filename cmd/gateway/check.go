package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"reblurb-gateway/internal/config"
	"reblurb-gateway/pkg/logging/logging"
)

var (
	checkSite       string
	checkItem       string
	checkPromptType string
)

// checkCmd reads one record straight from the store, same shape as GET /checkDB.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Look up a stored summary without generating",
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkSite, "site", "", "marketplace site")
	checkCmd.Flags().StringVar(&checkItem, "item", "", "product id")
	checkCmd.Flags().StringVar(&checkPromptType, "prompt-type", "sentences", "summary style")
	_ = checkCmd.MarkFlagRequired("site")
	_ = checkCmd.MarkFlagRequired("item")
}

type checkOutput struct {
	InDB    bool   `json:"inDB"`
	Summary string `json:"summary"`
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// Keep stdout clean for the JSON answer.
	logger, err := logging.NewLogger(logging.Options{Env: cfg.Log.Env, Level: "warn"})
	if err != nil {
		return err
	}
	defer logger.Sync()
	logging.SetDefault(logger)

	keys, err := cfg.KeyBuilder()
	if err != nil {
		return err
	}
	key, err := keys.Build(checkItem, checkSite, checkPromptType)
	if err != nil {
		return err
	}

	store, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closeIfCloser(logger, "store", store)

	rec, ok, err := store.Get(cmd.Context(), key)
	if err != nil {
		logger.Error("check failed", zap.String("key", key.String()), zap.Error(err))
		return err
	}

	out, err := json.Marshal(checkOutput{InDB: ok, Summary: rec.Summary})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
