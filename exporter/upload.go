package exporter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const xlsxMimeType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Uploader stores a local file somewhere and returns its remote id.
type Uploader interface {
	Upload(ctx context.Context, path string) (string, error)
}

// DriveUploader puts files into a google drive folder using a service
// account key file.
type DriveUploader struct {
	FolderID        string
	CredentialsFile string

	log *zap.SugaredLogger
}

func NewDriveUploader(folderID string, credentialsFile string, logger *zap.SugaredLogger) *DriveUploader {
	return &DriveUploader{FolderID: folderID, CredentialsFile: credentialsFile, log: logger}
}

func (d *DriveUploader) Upload(ctx context.Context, path string) (string, error) {
	if _, err := os.Stat(d.CredentialsFile); err != nil {
		return "", fmt.Errorf("service account key file %s not found, %w", d.CredentialsFile, err)
	}

	srv, err := drive.NewService(ctx,
		option.WithCredentialsFile(d.CredentialsFile),
		option.WithScopes(drive.DriveFileScope),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create drive service, %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s, %w", path, err)
	}
	defer file.Close()

	d.log.Infof("drive : uploading %s to folder %s", filepath.Base(path), d.FolderID)
	created, err := srv.Files.Create(&drive.File{
		Name:    filepath.Base(path),
		Parents: []string{d.FolderID},
	}).
		Media(file, googleapi.ContentType(xlsxMimeType)).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to upload %s, %w", path, err)
	}

	d.log.Infof("drive : uploaded, file id %s", created.Id)
	return created.Id, nil
}

// DiscordMirror posts files into a discord channel as the configured bot.
type DiscordMirror struct {
	BotToken  string
	ChannelID string

	log *zap.SugaredLogger
}

func NewDiscordMirror(botToken string, channelID string, logger *zap.SugaredLogger) *DiscordMirror {
	return &DiscordMirror{BotToken: botToken, ChannelID: channelID, log: logger}
}

func (m *DiscordMirror) Upload(ctx context.Context, path string) (string, error) {
	session, err := discordgo.New("Bot " + m.BotToken)
	if err != nil {
		return "", fmt.Errorf("failed to create discord session, %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s, %w", path, err)
	}
	defer file.Close()

	msg, err := session.ChannelFileSend(m.ChannelID, filepath.Base(path), file)
	if err != nil {
		return "", fmt.Errorf("failed to send %s to discord, %w", path, err)
	}

	m.log.Infof("discord : sent %s to channel %s", filepath.Base(path), m.ChannelID)
	return msg.ID, nil
}
