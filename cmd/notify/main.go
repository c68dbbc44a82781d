package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"

	"task-reminder-bot/internal/adapters/telegram"
	"task-reminder-bot/internal/adapters/tracker"
	"task-reminder-bot/internal/domain"
	"task-reminder-bot/internal/infra/config"
	"task-reminder-bot/internal/infra/log"
	"task-reminder-bot/internal/usecase/broadcast"
	"task-reminder-bot/internal/usecase/directory"
)

func main() {
	var (
		message   string
		logins    []string
		parseMode string
	)

	root := &cobra.Command{
		Use:           "notify",
		Short:         "Разовая рассылка сообщения подписанным пользователям",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if message == "" {
				return errors.New("укажите текст через --message")
			}
			mode, ok := domain.NormalizeParseMode(parseMode)
			if !ok {
				return fmt.Errorf("неизвестный режим разметки %q (html|markdown|markdownv2)", parseMode)
			}

			cfg := config.Load()
			logger := log.NewLogger(cfg.AppEnv)

			apiClient, err := tracker.New(tracker.Config{
				BaseURL:         cfg.API.BaseURL,
				Token:           cfg.API.Token,
				ServiceLogin:    cfg.API.ServiceLogin,
				ServicePassword: cfg.API.ServicePassword,
			}, logger)
			if err != nil {
				return err
			}
			dir := directory.New(apiClient, logger, cfg.Directory.RefreshInterval)

			botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
			if err != nil {
				return fmt.Errorf("создание бота: %w", err)
			}
			sender := telegram.NewSender(botAPI, logger)
			svc := broadcast.NewService(dir, sender, logger, cfg.Broadcast.BatchSize)

			result, err := svc.Send(context.Background(), message, logins, mode)
			if err != nil {
				return err
			}
			if result.Total == 0 {
				logger.Warn().Msg("рассылка завершилась без получателей")
			}
			fmt.Printf("отправлено %d из %d\n", result.Sent, result.Total)
			return nil
		},
	}

	root.Flags().StringVarP(&message, "message", "m", "", "текст рассылки")
	root.Flags().StringArrayVarP(&logins, "login", "l", nil, "логин получателя (можно несколько раз)")
	root.Flags().StringVar(&parseMode, "format", "", "режим разметки: html, markdown или markdownv2")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
