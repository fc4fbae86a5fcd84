package cmd

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"wavemood/internal/analyzer"

	"github.com/spf13/cobra"
)

var waveformPoints int

var waveformCmd = &cobra.Command{
	Use:   "waveform [file]",
	Short: "解码音频并输出降采样后的波形",
	Args:  cobra.ExactArgs(1),
	RunE:  runWaveform,
}

func init() {
	waveformCmd.Flags().IntVarP(&waveformPoints, "points", "n", 200, "输出的波形点数，0 表示全部采样")
	waveformCmd.Flags().BoolVar(&jsonOutput, "json", false, "以JSON格式输出结果")
}

func runWaveform(cmd *cobra.Command, args []string) error {
	a := analyzer.NewAnalyzer(app.cfg.AnalyzerConfig(), nil, app.logger, nil)
	wf, err := a.Waveform(args[0], waveformPoints)
	if err != nil {
		return err
	}

	if jsonOutput {
		data, err := json.Marshal(wf)
		if err != nil {
			return fmt.Errorf("JSON序列化失败: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("时长: %.2f 秒\n", wf.Duration)
	fmt.Printf("采样率: %d Hz\n", wf.SampleRate)
	fmt.Printf("点数: %d\n", len(wf.Samples))
	for i, s := range wf.Samples {
		fmt.Printf("%8.3f %s\n", wf.TimePoints[i], bar(s, 40))
	}
	return nil
}

// bar 以字符条显示采样幅度
func bar(v float64, width int) string {
	n := int(math.Abs(min(1, max(-1, v))) * float64(width))
	return strings.Repeat("#", n)
}
