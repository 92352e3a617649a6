package main

import (
	"context"
	"fmt"
	"os"

	"toolbridge/pkg/api"
	"toolbridge/pkg/config"
	"toolbridge/pkg/handler"
	"toolbridge/pkg/invoker"
	"toolbridge/pkg/monitor"
	"toolbridge/pkg/utils"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func invokeCmd() *cobra.Command {
	var (
		imagePath   string
		contextText string
		apiKey      string
	)

	cmd := &cobra.Command{
		Use:   "invoke",
		Short: "Run the selected tool once and print the action as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			sys := loadSystem()
			inv := invoker.New(sys)
			defer inv.Close()

			req := &api.AskRequest{
				Session:   api.SessionContext{ChannelID: "cli"},
				Context:   contextText,
				APIKey:    apiKey,
				RequestID: utils.GenerateID()[16:],
			}
			if imagePath != "" {
				mimeType, _, err := utils.SniffImageFile(imagePath)
				if err != nil {
					return fmt.Errorf("screenshot %s: %w", imagePath, err)
				}
				req.Image = &api.FileAttachment{Path: imagePath, MimeType: mimeType}
			}

			h := handler.NewBridgeHandler(config.NewStore(toolsConfigPath), inv, sys)
			ctx := monitor.WithRequestID(context.Background(), req.RequestID)
			resp := h.Ask(ctx, req)

			out, err := json.MarshalIndent(resp, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, string(out))
			if resp.IsError() {
				return fmt.Errorf("invocation failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&imagePath, "image", "", "screenshot file")
	cmd.Flags().StringVar(&contextText, "context", "", "context text")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key override for in-process tools")
	return cmd
}
