package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"BitcoinSentinel/internal/notifier"
)

const helpText = `Available commands:
/analyze - run signal analysis now
/status - safety state and exposure
/plans - open trade plans
/pnl <amount> - record realized P&L for a closed position
/halt <reason> - stop all trading
/resume - clear the trading halt
/help - this message`

// HandleCommand processes one operator command and returns the reply.
func (s *Scheduler) HandleCommand(command string) string {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(command), " ")
	switch cmd {
	case "/analyze":
		s.analysisTask()
		return ""
	case "/status":
		return s.statusReport()
	case "/plans":
		plans, err := s.ledger.OpenPlans()
		if err != nil {
			return "Failed to load plans: " + err.Error()
		}
		return notifier.FormatPlans(plans)
	case "/pnl":
		pnl, err := strconv.ParseFloat(strings.TrimSpace(arg), 64)
		if err != nil {
			return "Usage: /pnl <amount>, e.g. /pnl -350.50"
		}
		if err := s.safety.RecordTradeResult(pnl, time.Now().UTC()); err != nil {
			return "Failed to record result: " + err.Error()
		}
		state := s.safety.State()
		reply := fmt.Sprintf("Recorded %.2f. Daily P&L: %.2f, loss streak: %d.",
			pnl, state.DailyPnL, state.ConsecutiveLosses)
		if state.Halted {
			reply += "\n" + notifier.FormatHalt(state.HaltReason)
		}
		return reply
	case "/halt":
		reason := strings.TrimSpace(arg)
		if reason == "" {
			reason = "operator halt"
		}
		s.safety.Halt(reason)
		return notifier.FormatHalt(reason)
	case "/resume":
		s.safety.ResetHalt()
		return "🟢 Trading resumed."
	case "/help":
		return helpText
	default:
		return helpText
	}
}

func (s *Scheduler) statusReport() string {
	state := s.safety.State()

	exposure, err := s.ledger.OpenExposure("")
	if err != nil {
		return "Failed to load exposure: " + err.Error()
	}
	plans, err := s.ledger.OpenPlans()
	if err != nil {
		return "Failed to load plans: " + err.Error()
	}

	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()
	balance, err := s.exchange.GetBalance(ctx, "USD")
	if err != nil {
		s.log.Warn().Err(err).Msg("balance unavailable for status report")
	}

	return notifier.FormatStatus(state, exposure, balance, len(plans))
}
