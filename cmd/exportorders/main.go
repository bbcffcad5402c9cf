// Command exportorders downloads the last week of paid orders from backstage
// and uploads the spreadsheet to google drive.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mms-notify/app/common"
	"github.com/mms-notify/app/config"
	"github.com/mms-notify/app/exporter"
)

func main() {
	envPath := os.Getenv("ENV_FILE")
	lookup, err := config.EnvLookup(envPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read env, %v\n", err)
		os.Exit(1)
	}

	logCfg, err := config.LoadLog(lookup)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load log settings, %v\n", err)
		os.Exit(1)
	}
	logger, closeLog, err := common.NewLogger(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger, %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadExporter(lookup)
	if err != nil {
		logger.Errorf("exportorders : configuration error, %v", err)
		closeLog()
		os.Exit(1)
	}

	tokens := exporter.NewBrowserTokenSource(
		cfg.LoginURL(), cfg.Username, cfg.Password,
		cfg.LoginTimeout, cfg.ScreenshotDir, logger,
	)
	orders := exporter.NewOrdersClient(cfg.OrdersURL, cfg.PageLimit, tokens, logger)
	uploader := exporter.NewDriveUploader(cfg.DriveFolderID, cfg.ServiceAccountFile, logger)

	var mirror exporter.Uploader
	if cfg.MirrorToDiscord() {
		mirror = exporter.NewDiscordMirror(cfg.DiscordBotToken, cfg.DiscordChannelID, logger)
	}

	exp := exporter.New(orders, uploader, mirror, cfg.OutputDir, cfg.WindowDays, logger)

	logger.Infof("exportorders : exporting orders of the last %d days", cfg.WindowDays)
	if _, err := exp.Run(context.Background()); err != nil {
		logger.Errorf("exportorders : export failed, %v", err)
		closeLog()
		os.Exit(1)
	}
	closeLog()
}
