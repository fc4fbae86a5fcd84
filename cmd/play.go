package cmd

import (
	"fmt"
	"time"

	"wavemood/internal/observe"
	"wavemood/internal/player"

	"github.com/spf13/cobra"
)

var playCmd = &cobra.Command{
	Use:   "play [file]",
	Short: "通过默认输出设备播放音频文件",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlay,
}

func runPlay(cmd *cobra.Command, args []string) error {
	backend, err := openBackend()
	if err != nil {
		return err
	}
	defer closeBackend(backend)

	session := player.New(backend, nil, player.Options{
		SampleRate:   app.cfg.Playback.SampleRate,
		BufferFrames: app.cfg.Playback.BufferFrames,
	}, app.logger, observe.DefaultMetrics())

	finished := make(chan struct{})
	session.OnFinished(func() { close(finished) })

	ctx := cmd.Context()
	if err := session.Play(ctx, args[0]); err != nil {
		return err
	}
	defer session.Stop()

	total := float64(session.TotalFrames())
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-finished:
			fmt.Println("\n播放结束")
			return nil
		case <-ctx.Done():
			fmt.Println()
			return nil
		case <-ticker.C:
			pos := session.Position()
			pct := 0.0
			if total > 0 {
				pct = float64(session.Cursor()) / total * 100
			}
			fmt.Printf("\r%7.2f 秒 (%5.1f%%)", pos, pct)
		}
	}
}
