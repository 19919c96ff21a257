package notifier

import (
	"fmt"
	"strings"
	"time"

	"BitcoinSentinel/internal/model"

	"github.com/dustin/go-humanize"
)

func usd(v float64) string {
	return "$" + humanize.CommafWithDigits(v, 2)
}

// FormatAnalysisReport renders a scenario evaluation for the operator channel.
func FormatAnalysisReport(reading *model.SignalReading, threshold float64) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("📊 <b>Signal Analysis</b> | %s\n\n", reading.Timestamp.UTC().Format("2006-01-02 15:04")))
	b.WriteString(fmt.Sprintf("Scenario: %s\n\n", reading.ScenarioID))

	b.WriteString("<b>Component scores:</b>\n")
	for _, c := range reading.Components {
		b.WriteString(fmt.Sprintf("  %s: %.3f (raw %.4g, ×%.2f)\n", c.Indicator, c.Score, c.RawValue, c.Weight))
	}
	b.WriteString("  ─────────────────\n")
	b.WriteString(fmt.Sprintf("  Combined: %.3f / threshold %.2f (%s)\n\n", reading.CombinedScore, threshold, reading.Strength()))

	if reading.BuySignal {
		b.WriteString("🟢 <b>BUY signal triggered</b>")
	} else {
		b.WriteString("⚪ No signal")
	}
	return b.String()
}

// FormatPlanCreated renders a freshly generated trade plan.
func FormatPlanCreated(p *model.TradePlan) string {
	var b strings.Builder
	b.WriteString("📋 <b>Trade Plan Created</b>\n\n")
	b.WriteString(fmt.Sprintf("Plan: %s\n", p.ID))
	b.WriteString(fmt.Sprintf("Scenario: %s | score %.3f\n", p.ScenarioID, p.CombinedScore))
	b.WriteString(fmt.Sprintf("Position: %.1f%% of %s = %s\n\n", p.PositionSize*100, usd(p.PortfolioValue), usd(p.TotalNotional())))

	b.WriteString("<b>Tranches:</b>\n")
	for _, tr := range p.Tranches {
		b.WriteString(fmt.Sprintf("  %02d. %s at %s\n", tr.Seq+1, usd(tr.Notional), tr.ScheduledAt.UTC().Format("01-02 15:04")))
	}
	return b.String()
}

// FormatTrancheResult renders a terminal tranche outcome.
func FormatTrancheResult(tr *model.Tranche, order *model.Order) string {
	switch tr.Status {
	case model.TrancheFilled:
		msg := fmt.Sprintf("✅ <b>Tranche Filled</b>\n\n%s: %s", tr.Key, usd(tr.Notional))
		if order != nil && order.FillPrice > 0 {
			msg += fmt.Sprintf("\nFilled %.6f BTC @ %s", order.FillQty, usd(order.FillPrice))
		}
		return msg
	case model.TrancheSkipped:
		return fmt.Sprintf("⏭ <b>Tranche Skipped</b>\n\n%s: %s\nReason: %s", tr.Key, usd(tr.Notional), tr.Reason)
	case model.TrancheFailed:
		return fmt.Sprintf("❌ <b>Tranche Failed</b>\n\n%s: %s\nError: %s", tr.Key, usd(tr.Notional), tr.Reason)
	default:
		return fmt.Sprintf("Tranche %s: %s", tr.Key, tr.Status)
	}
}

// FormatHalt renders a circuit-breaker trip alert.
func FormatHalt(reason string) string {
	return fmt.Sprintf("🛑 <b>TRADING HALTED</b>\n\nReason: %s\n\nUse /resume to clear the halt.", reason)
}

// FormatStatus renders the current safety state and open exposure.
func FormatStatus(state model.SafetyState, exposure, balance float64, openPlans int) string {
	var b strings.Builder
	b.WriteString("🛡 <b>Status</b>\n\n")
	if state.Halted {
		b.WriteString(fmt.Sprintf("State: 🛑 HALTED (%s)\n", state.HaltReason))
	} else {
		b.WriteString("State: 🟢 active\n")
	}
	b.WriteString(fmt.Sprintf("Daily P&L: %s\n", usd(state.DailyPnL)))
	b.WriteString(fmt.Sprintf("Consecutive losses: %d\n", state.ConsecutiveLosses))
	b.WriteString(fmt.Sprintf("Open exposure: %s\n", usd(exposure)))
	b.WriteString(fmt.Sprintf("Balance: %s\n", usd(balance)))
	b.WriteString(fmt.Sprintf("Open plans: %d\n", openPlans))
	if !state.LastEvaluated.IsZero() {
		b.WriteString(fmt.Sprintf("Last evaluated: %s\n", state.LastEvaluated.UTC().Format(time.RFC3339)))
	}
	return b.String()
}

// FormatPlans renders the open plans list for the /plans command.
func FormatPlans(plans []*model.TradePlan) string {
	if len(plans) == 0 {
		return "No open plans."
	}
	var b strings.Builder
	b.WriteString("📋 <b>Open Plans</b>\n")
	for _, p := range plans {
		b.WriteString(fmt.Sprintf("\n%s (%s, score %.3f)\n", p.ID, p.ScenarioID, p.CombinedScore))
		for _, tr := range p.Tranches {
			b.WriteString(fmt.Sprintf("  %02d. %-9s %s\n", tr.Seq+1, tr.Status, usd(tr.Notional)))
		}
	}
	return b.String()
}
