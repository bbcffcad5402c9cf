package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/mms-notify/app/common"
	"github.com/mms-notify/app/config"
	"github.com/mms-notify/app/mms"
	"github.com/mms-notify/app/notify"
	"go.uber.org/zap"
)

// env file read when ENV_FILE isn't set
var ENVPATH = ".env"

func main() {
	envPath := ENVPATH
	if p := os.Getenv("ENV_FILE"); p != "" {
		envPath = p
	}

	lookup, err := config.EnvLookup(envPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read env, %v\n", err)
		os.Exit(1)
	}

	if err := run(context.Background(), lookup); err != nil {
		os.Exit(1)
	}
}

// run the notification flow once. A failed notification is logged but
// isn't an error, only configuration and fetch failures are.
func run(ctx context.Context, lookup config.Lookup) error {
	logCfg, err := config.LoadLog(lookup)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load log settings, %v\n", err)
		return err
	}
	logger, closeLog, err := common.NewLogger(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger, %v\n", err)
		return err
	}
	defer closeLog()

	cfg, err := config.Load(lookup)
	if err != nil {
		logger.Errorf("main : configuration error, %v", err)
		return err
	}
	logSummary(logger, cfg.Summary())

	client := mms.NewClient(cfg.MMSBaseURL, cfg.MMSAPIKey, cfg.APITimeout, cfg.APIPageSize, logger)
	insts, err := client.FetchExpiring(ctx, cfg.ExpiryThreshold)
	if err != nil {
		logger.Errorf("main : failed to fetch institutions, %v", err)
		return err
	}

	if len(insts) == 0 {
		logger.Infof("main : no institutions expiring within %d days", cfg.ExpiryThreshold)
		return nil
	}

	notifier := notify.NewNotifier(cfg.WebhookURL, cfg.WebhookTimeout, cfg.DetailURLBase, cfg.ExpiryThreshold, logger)
	if notifier.SendExpiringNotification(ctx, insts) {
		logger.Infof("main : notified about %d expiring institutions", len(insts))
	} else {
		logger.Errorf("main : failed to send notification for %d expiring institutions", len(insts))
	}
	return nil
}

func logSummary(logger *zap.SugaredLogger, summary map[string]any) {
	keys := make([]string, 0, len(summary))
	for k := range summary {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	logger.Infof("main : configuration loaded")
	for _, k := range keys {
		logger.Infof("main :   %s = %v", k, summary[k])
	}
}
