package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/park285/codeforces-potd-bot/internal/irisfast"
)

var irisWatch time.Duration

var irisCheckCmd = &cobra.Command{
	Use:         "iris-check",
	Short:       "Probe the Iris bridge: GET /config, then watch the event stream",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{skipApp: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		headers := irisfast.StaticHeaders(cfg.XUserID, cfg.XUserEmail, cfg.XSessionID)
		client := irisfast.NewClient(cfg.IrisBaseURL,
			irisfast.WithHeaderProvider(headers),
			irisfast.WithTimeout(8*time.Second),
			irisfast.WithReadAttempts(cfg.IrisReadAttempts),
		)

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		ic, err := client.GetConfig(ctx)
		cancel()
		if err != nil {
			fmt.Fprintf(out, "/config error: %v\n", err)
		} else {
			fmt.Fprintf(out, "/config ok: port=%d polling=%d rate=%d endpoint=%s\n", ic.Port, ic.PollingSpeed, ic.MessageRate, ic.WebserverEndpoint)
		}

		ws := irisfast.NewWebSocket(cfg.IrisWSURL, 0, time.Second)
		ws.SetHeaderProvider(headers)
		ws.OnStateChange(func(state irisfast.WebSocketState) {
			fmt.Fprintf(out, "ws state: %s\n", state)
		})
		ws.OnMessage(func(msg *irisfast.Message) {
			fmt.Fprintf(out, "ws msg room=%s from=%s text=%q\n", msg.Room, msg.SenderName(), msg.Msg)
		})

		cctx, ccancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer ccancel()
		if err := ws.Connect(cctx); err != nil {
			return fmt.Errorf("ws connect: %w", err)
		}
		select {
		case <-time.After(irisWatch):
		case <-cmd.Context().Done():
		}
		sctx, scancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer scancel()
		return ws.Close(sctx)
	},
}

func init() {
	irisCheckCmd.Flags().DurationVar(&irisWatch, "watch", 10*time.Second, "how long to print incoming events")
}
