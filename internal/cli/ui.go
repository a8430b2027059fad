package cli

import (
	"fmt"

	"github.com/fatih/color"
)

// PrintSuccess prints a green confirmation line.
func PrintSuccess(format string, args ...interface{}) {
	color.Green("✓ "+format, args...)
}

// PrintError prints a red error line.
func PrintError(format string, args ...interface{}) {
	color.Red("✗ "+format, args...)
}

// PrintInfo prints a plain informational line.
func PrintInfo(format string, args ...interface{}) {
	fmt.Printf(format+"\n", args...)
}

// PrintWarning prints a yellow warning line.
func PrintWarning(format string, args ...interface{}) {
	color.Yellow("⚠ "+format, args...)
}

// PrintBatch reports a newly observed micro-batch.
func PrintBatch(batchID string, batchNumber uint64, size int) {
	color.Cyan("▣ batch #%d %s (%d tx)", batchNumber, batchID, size)
}

// PrintFinality reports a batch reaching instant finality.
func PrintFinality(batchID string, confidence float64, timeToFinalityMs int64) {
	color.Magenta("⚡ batch %s finalized at %.1f%% confidence (%dms)", batchID, confidence, timeToFinalityMs)
}
