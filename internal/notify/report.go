package notify

import (
	"fmt"
	"strings"

	"github.com/blockbit-hama/xCrack-sub003/internal/domain"
)

// FormatReport renders an execution report as a notification event, title,
// and body. Committed executions use the "committed" event; aborted ones use
// "aborted".
func FormatReport(report domain.ExecutionReport) (event, title, message string) {
	event = string(report.Status)

	var b strings.Builder
	fmt.Fprintf(&b, "strategy: %s\n", report.StrategyName)
	for i := range report.Assets {
		fmt.Fprintf(&b, "borrowed: %s of %s\n", report.Amounts[i], report.Assets[i].Hex())
	}

	switch report.Status {
	case domain.ExecutionCommitted:
		title = fmt.Sprintf("execution committed (%s)", report.StrategyName)
		if report.NetProfit != nil {
			fmt.Fprintf(&b, "net profit: %s\n", report.NetProfit)
		}
		if report.GrossProfit != nil {
			fmt.Fprintf(&b, "gross profit: %s\n", report.GrossProfit)
		}
	default:
		title = fmt.Sprintf("execution aborted (%s)", report.StrategyName)
		if report.AbortReason != "" {
			fmt.Fprintf(&b, "reason: %s\n", report.AbortReason)
		}
	}

	fmt.Fprintf(&b, "duration: %dms\nid: %s", report.DurationMs, report.ID)
	return event, title, b.String()
}
