package utils

import (
	"fmt"
	"io"
	"os"
	"time"
)

// Verbose controls whether timing statistics are printed.
// Set to false to suppress output.
var Verbose = true

// Output is the writer where timing statistics are printed.
// Defaults to os.Stdout.
var Output io.Writer = os.Stdout

// TimingStats holds timing information for different operations
type TimingStats struct {
	TotalTime       time.Duration
	DataLoadingTime time.Duration
	TrainTime       time.Duration
	GPFitTime       time.Duration
	AttackTime      time.Duration
	EvaluationTime  time.Duration
}

// PrintTimingStats prints the share of each phase in the total time.
// Respects the Verbose flag - does nothing if Verbose is false.
func PrintTimingStats(stats *TimingStats) {
	if !Verbose || stats.TotalTime <= 0 {
		return
	}
	pct := func(d time.Duration) float64 {
		return float64(d) / float64(stats.TotalTime) * 100
	}
	fmt.Fprintln(Output, "\n=== TIMING STATISTICS ===")
	fmt.Fprintf(Output, "Total time: %v\n", stats.TotalTime)
	fmt.Fprintf(Output, "  Data loading: %v (%.1f%%)\n", stats.DataLoadingTime, pct(stats.DataLoadingTime))
	fmt.Fprintf(Output, "  Training: %v (%.1f%%)\n", stats.TrainTime, pct(stats.TrainTime))
	fmt.Fprintf(Output, "  GP fit: %v (%.1f%%)\n", stats.GPFitTime, pct(stats.GPFitTime))
	fmt.Fprintf(Output, "  Attacks: %v (%.1f%%)\n", stats.AttackTime, pct(stats.AttackTime))
	fmt.Fprintf(Output, "  Evaluation: %v (%.1f%%)\n", stats.EvaluationTime, pct(stats.EvaluationTime))
}

// ExecutionTime formats an elapsed wall-clock interval as "Xh Ym Z.ZZs".
func ExecutionTime(start, end time.Time) string {
	d := end.Sub(start)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := d.Seconds() - float64(h*3600+m*60)
	return fmt.Sprintf("%dh %dm %.2fs", h, m, s)
}

// DurationUS converts any time.Duration to micro-seconds as float64
func DurationUS(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1_000.0
}
