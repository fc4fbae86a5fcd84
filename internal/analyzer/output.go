package analyzer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"wavemood/internal/types"
)

// outputResult 输出单个分析结果
func (a *Analyzer) outputResult(result *types.AnalysisResult) {
	// 静默模式，每个文件一行：路径与主情绪
	if a.config.Quiet {
		if top, ok := TopLabel(result.Summary); ok && result.OK {
			fmt.Fprintf(a.out, "%s\t%s\n", result.FilePath, top)
		} else {
			fmt.Fprintf(a.out, "%s\terror\n", result.FilePath)
		}
		return
	}

	// JSON输出格式
	if a.config.JSONOutput {
		jsonData, err := json.Marshal(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON序列化失败: %v\n", err)
			return
		}
		fmt.Fprintln(a.out, string(jsonData))
		return
	}

	// 普通格式输出
	a.printDetailedResult(result)
}

// printDetailedResult 打印详细结果
func (a *Analyzer) printDetailedResult(result *types.AnalysisResult) {
	w := a.out
	fmt.Fprintf(w, "\n=== %s ===\n", filepath.Base(result.FilePath))
	fmt.Fprintf(w, "路径: %s\n", result.FilePath)
	if result.Format != "" {
		fmt.Fprintf(w, "格式: %s\n", result.Format)
	}

	if !result.OK {
		fmt.Fprintf(w, "错误: %s\n", result.Error)
		return
	}

	fmt.Fprintf(w, "采样率: %d Hz\n", result.SampleRate)
	fmt.Fprintf(w, "时长: %.2f 秒\n", result.Duration)
	if result.Fallback {
		fmt.Fprintf(w, "模型: %s (请求的模型不可用)\n", result.Model)
	} else {
		fmt.Fprintf(w, "模型: %s\n", result.Model)
	}

	// 元数据
	if result.Metadata.Title != "" {
		fmt.Fprintf(w, "标题: %s\n", result.Metadata.Title)
	}
	if result.Metadata.Artist != "" {
		fmt.Fprintf(w, "艺术家: %s\n", result.Metadata.Artist)
	}
	if result.Metadata.Album != "" {
		fmt.Fprintf(w, "专辑: %s\n", result.Metadata.Album)
	}

	fmt.Fprintf(w, "窗口数: %d\n", len(result.Timeline))

	top, ok := TopLabel(result.Summary)
	if !ok {
		fmt.Fprintln(w, "未检测到情绪")
		return
	}
	fmt.Fprintf(w, "主情绪: %s (%.2f%%)\n", top, result.Summary[top].Pct)

	labels := make([]string, 0, len(result.Summary))
	for label := range result.Summary {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		s := result.Summary[label]
		avg := "-"
		if s.AvgProb != nil {
			avg = fmt.Sprintf("%.4f", *s.AvgProb)
		}
		fmt.Fprintf(w, "  %-10s %7.3fs %6.2f%%  avg_prob=%s\n", label, s.DurationS, s.Pct, avg)
	}
}

// printSummary 打印统计摘要
func (a *Analyzer) printSummary(results []*types.AnalysisResult) {
	total := len(results)
	ok := 0
	failed := 0
	tops := make(map[string]int)

	for _, result := range results {
		if result == nil {
			continue
		}
		if !result.OK {
			failed++
			continue
		}
		ok++
		if top, found := TopLabel(result.Summary); found {
			tops[top]++
		}
	}

	w := a.out
	fmt.Fprintf(w, "\n=== 分析统计 ===\n")
	fmt.Fprintf(w, "总文件数: %d\n", total)
	fmt.Fprintf(w, "成功: %d\n", ok)
	if failed > 0 {
		fmt.Fprintf(w, "失败: %d\n", failed)
	}

	labels := make([]string, 0, len(tops))
	for label := range tops {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		fmt.Fprintf(w, "主情绪 %s: %d\n", label, tops[label])
	}
}
