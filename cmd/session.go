package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"wavemood/internal/analyzer"
	"wavemood/internal/engine"
	"wavemood/internal/model"
	"wavemood/internal/observe"
	"wavemood/internal/player"
	"wavemood/internal/recorder"

	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "交互式会话：录音、播放与分析",
	Long: `逐行读取命令并驱动音频引擎：
  record              开始录音
  stop-record         停止录音并保存
  open <file>         选择文件并加载波形
  play                播放当前文件 (暂停后继续)
  pause               暂停
  stop                停止并回到开头
  analyze [mlp|knn]   分析当前文件
  quit                退出`,
	Args: cobra.NoArgs,
	RunE: runSession,
}

func runSession(cmd *cobra.Command, args []string) error {
	cfg := app.cfg
	dir, err := cfg.RecordingsDir()
	if err != nil {
		return err
	}

	backend, err := openBackend()
	if err != nil {
		return err
	}
	defer closeBackend(backend)

	metrics := observe.DefaultMetrics()
	rec := recorder.New(backend, recorder.Options{
		SampleRate:   cfg.Capture.SampleRate,
		BufferFrames: cfg.Capture.BufferFrames,
		QueueSize:    cfg.Capture.QueueSize,
		JoinTimeout:  cfg.Capture.JoinTimeout,
		Dir:          dir,
	}, app.logger, metrics)
	pl := player.New(backend, nil, player.Options{
		SampleRate:   cfg.Playback.SampleRate,
		BufferFrames: cfg.Playback.BufferFrames,
	}, app.logger, metrics)
	models := model.NewRegistry(cfg.Paths.Models, app.logger)
	an := analyzer.NewAnalyzer(cfg.AnalyzerConfig(), models, app.logger, metrics)

	eng := engine.New(rec, pl, an, engine.Options{
		PollInterval:   cfg.UI.PollInterval,
		MeterBars:      cfg.UI.MeterBars,
		MeterDecay:     cfg.UI.MeterDecay,
		Workers:        cfg.Workers,
		WaveformPoints: engine.DefaultOptions().WaveformPoints,
	}, app.logger)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	go eng.Run(ctx)
	go printEvents(ctx, eng, os.Stdout)

	err = repl(ctx, eng, os.Stdin, os.Stdout)

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCancel()
	if closeErr := eng.Close(closeCtx); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// repl 读取命令直到 quit、输入结束或 ctx 结束
func repl(ctx context.Context, eng *engine.Engine, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	fmt.Fprint(out, "> ")
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := dispatch(ctx, eng, out, strings.Fields(line))
			if err != nil {
				fmt.Fprintf(out, "错误: %v\n", err)
			}
			if quit {
				return nil
			}
			fmt.Fprint(out, "> ")
		}
	}
}

func dispatch(ctx context.Context, eng *engine.Engine, out io.Writer, fields []string) (quit bool, err error) {
	if len(fields) == 0 {
		return false, nil
	}
	switch fields[0] {
	case "record":
		return false, eng.StartRecording(ctx)
	case "stop-record":
		return false, eng.StopRecording()
	case "open":
		if len(fields) < 2 {
			return false, fmt.Errorf("用法: open <file>")
		}
		return false, eng.Open(strings.Join(fields[1:], " "))
	case "play":
		return false, eng.Play(ctx)
	case "pause":
		eng.Pause()
	case "stop":
		eng.Stop()
	case "analyze":
		kind := model.Heuristic
		if len(fields) > 1 {
			if kind, err = model.ParseKind(fields[1]); err != nil {
				return false, err
			}
		}
		if !eng.ModelAvailable(kind) {
			fmt.Fprintf(out, "模型 %s 不可用，使用启发式模型\n", kind)
		}
		return false, eng.Analyze(kind)
	case "quit", "exit":
		return true, nil
	default:
		return false, fmt.Errorf("未知命令: %s", fields[0])
	}
	return false, nil
}

// printEvents 打印引擎事件；电平与播放位置只在状态行刷新
func printEvents(ctx context.Context, eng *engine.Engine, out io.Writer) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-eng.Done():
			return
		case ev := <-eng.Events():
			switch e := ev.(type) {
			case engine.Status:
				fmt.Fprintf(out, "\n[%s]\n", e.Text)
			case engine.WaveformReady:
				if e.OK {
					fmt.Fprintf(out, "\n波形已加载: %s (%.2f 秒, %d Hz)\n", e.Path, e.Duration, e.SampleRate)
				} else {
					fmt.Fprintf(out, "\n加载波形失败: %v\n", e.Err)
				}
			case engine.AnalysisComplete:
				printAnalysis(out, e)
			case engine.RecordingSaved:
				if e.Err != nil {
					fmt.Fprintf(out, "\n录音失败: %v\n", e.Err)
				}
			case engine.PlaybackFinished:
				fmt.Fprintln(out)
			case engine.PlaybackPosition:
				fmt.Fprintf(out, "\r播放位置 %.2f 秒", e.Seconds)
			case engine.Level:
				// 终端中不绘制电平表
			}
		}
	}
}

func printAnalysis(out io.Writer, e engine.AnalysisComplete) {
	r := e.Result
	if !r.OK {
		return
	}
	top, ok := analyzer.TopLabel(r.Summary)
	if !ok {
		return
	}
	fmt.Fprintf(out, "%s: %d 个窗口, 模型 %s\n", e.Path, len(r.Timeline), r.Model)
	for label, s := range r.Summary {
		marker := " "
		if label == top {
			marker = "*"
		}
		fmt.Fprintf(out, " %s %-10s %7.3fs %6.2f%%\n", marker, label, s.DurationS, s.Pct)
	}
}
