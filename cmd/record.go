package cmd

import (
	"fmt"
	"time"

	"wavemood/internal/observe"
	"wavemood/internal/recorder"

	"github.com/spf13/cobra"
)

var recordDuration time.Duration

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "从默认输入设备录音并保存为 WAV",
	Long: `录制单声道音频，到达 --duration 或收到中断信号后停止并保存为 16 位 PCM WAV。
文件名为 recording_<uuid>_<时间戳>.wav，保存在录音目录中。`,
	Args: cobra.NoArgs,
	RunE: runRecord,
}

func init() {
	recordCmd.Flags().DurationVarP(&recordDuration, "duration", "d", 3*time.Second, "录音时长，0 表示直到中断")
}

func runRecord(cmd *cobra.Command, args []string) error {
	dir, err := app.cfg.RecordingsDir()
	if err != nil {
		return err
	}

	backend, err := openBackend()
	if err != nil {
		return err
	}
	defer closeBackend(backend)

	session := recorder.New(backend, recorder.Options{
		SampleRate:   app.cfg.Capture.SampleRate,
		BufferFrames: app.cfg.Capture.BufferFrames,
		QueueSize:    app.cfg.Capture.QueueSize,
		JoinTimeout:  app.cfg.Capture.JoinTimeout,
		Dir:          dir,
	}, app.logger, observe.DefaultMetrics())

	ctx := cmd.Context()
	if err := session.Start(ctx); err != nil {
		return err
	}
	fmt.Printf("正在录音 (%d Hz)，按 Ctrl+C 结束...\n", app.cfg.Capture.SampleRate)

	var timeout <-chan time.Time
	if recordDuration > 0 {
		timer := time.NewTimer(recordDuration)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case <-timeout:
	case <-ctx.Done():
	}

	outcome, err := session.Stop()
	if err != nil {
		return err
	}

	fmt.Printf("已保存: %s\n", outcome.Path)
	fmt.Printf("帧数: %d (%.2f 秒)\n", outcome.Frames, outcome.Duration.Seconds())
	if outcome.Dropped > 0 {
		fmt.Printf("⚠️  丢弃了 %d 个音频块\n", outcome.Dropped)
	}
	return nil
}
