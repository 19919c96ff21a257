package scheduler

import (
	"context"
	"errors"
	"time"

	"BitcoinSentinel/internal/exchange"
	"BitcoinSentinel/internal/ledger"
	"BitcoinSentinel/internal/model"
	"BitcoinSentinel/internal/notifier"
	"BitcoinSentinel/internal/safety"

	"github.com/cenkalti/backoff/v4"
)

// executeTranche drives one due tranche from pending to a terminal state. The
// atomic claim is the commit point: once it succeeds this goroutine owns the
// tranche and every exit path below records an outcome.
func (s *Scheduler) executeTranche(t model.Tranche) {
	now := time.Now().UTC()

	claimed, err := s.ledger.Claim(t.Key, now)
	if err != nil {
		s.log.Error().Err(err).Str("tranche", t.Key).Msg("claim failed")
		return
	}
	if !claimed {
		// Another worker owns it, or it already reached a terminal state.
		return
	}
	log := s.log.With().Str("tranche", t.Key).Logger()
	log.Info().Float64("notional", t.Notional).Msg("tranche claimed")

	if s.cfg.MinOrderNotional > 0 && t.Notional < s.cfg.MinOrderNotional {
		s.skip(t, safety.Decision{
			Reason: model.DenyMinNotional,
			Detail: "notional below exchange minimum",
		})
		return
	}

	balance, quote, ref, err := s.preTradeMarketData()
	if err != nil {
		// A transient fetch error is not a verdict on the tranche: release
		// the claim and let the next scan retry through the full path.
		if exchange.IsTransient(err) {
			log.Warn().Err(err).Msg("pre-trade market data unavailable, releasing for retry")
			s.release(t)
			return
		}
		log.Error().Err(err).Msg("pre-trade market data unavailable")
		s.fail(t, "market data unavailable: "+err.Error())
		return
	}

	decision, err := s.safety.Authorize(safety.Request{
		Tranche:        t,
		Balance:        balance,
		QuotedPrice:    quote,
		ReferencePrice: ref,
		PortfolioValue: s.cfg.PortfolioValue,
		Live:           !s.cfg.DryRun,
		Now:            now,
	})
	if err != nil {
		log.Error().Err(err).Msg("safety evaluation failed")
		s.fail(t, "safety evaluation failed: "+err.Error())
		return
	}
	if !decision.Authorized {
		log.Warn().
			Str("reason", string(decision.Reason)).
			Str("detail", decision.Detail).
			Msg("tranche denied")
		s.skip(t, decision)
		return
	}

	s.driveSubmission(t)
}

// preTradeMarketData fetches balance, the executable quote, and the reference
// price. A missing reference price is tolerated; the slippage guard then has
// nothing to compare against and is skipped.
func (s *Scheduler) preTradeMarketData() (balance, quote, ref float64, err error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.OrderTimeout)
	defer cancel()

	if balance, err = s.exchange.GetBalance(ctx, "USD"); err != nil {
		return 0, 0, 0, err
	}
	if quote, err = s.exchange.Quote(ctx); err != nil {
		return 0, 0, 0, err
	}
	ref, err = s.gateway.ReferencePrice(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("reference price unavailable, slippage guard inactive")
		ref, err = 0, nil
	}
	return balance, quote, ref, nil
}

// driveSubmission submits the tranche's order with retries and records the
// terminal outcome. Also the restart recovery path: resubmitting under the
// same idempotency key returns the original order when the first attempt
// actually reached the exchange.
func (s *Scheduler) driveSubmission(t model.Tranche) {
	res, err := s.submit(t)
	if err != nil {
		s.log.Error().Err(err).Str("tranche", t.Key).Msg("order permanently failed")
		s.fail(t, err.Error())
		return
	}

	order := model.Order{
		TrancheKey:      t.Key,
		Side:            model.SideBuy,
		Notional:        t.Notional,
		Type:            model.OrderMarket,
		ExchangeOrderID: res.OrderID,
		FillPrice:       res.FillPrice,
		FillQty:         res.FillQty,
	}
	if err := s.ledger.RecordSubmitted(t.Key, order); err != nil {
		s.log.Error().Err(err).Str("tranche", t.Key).Msg("record submission failed")
	}
	if err := s.ledger.RecordFill(t.Key, order); err != nil {
		s.log.Error().Err(err).Str("tranche", t.Key).Msg("record fill failed")
		return
	}

	t.Status = model.TrancheFilled
	s.log.Info().
		Str("tranche", t.Key).
		Str("order", res.OrderID).
		Float64("fill_price", res.FillPrice).
		Float64("fill_qty", res.FillQty).
		Msg("tranche filled")
	s.trySend(notifier.FormatTrancheResult(&t, &order))
}

// submit retries transient submission errors with exponential backoff, always
// under the tranche's idempotency key. A timeout is never proof of
// non-execution, so the resubmission relies on exchange-side deduplication.
func (s *Scheduler) submit(t model.Tranche) (*exchange.SubmitResult, error) {
	var res *exchange.SubmitResult
	op := func() error {
		ctx, cancel := context.WithTimeout(s.ctx, s.cfg.OrderTimeout)
		defer cancel()
		r, err := s.exchange.SubmitOrder(ctx, t.Key, model.SideBuy, t.Notional, model.OrderMarket)
		if err != nil {
			if exchange.IsTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		res = r
		return nil
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.cfg.MaxRetries), s.ctx)
	err := backoff.RetryNotify(op, policy, func(err error, next time.Duration) {
		s.log.Warn().Err(err).Str("tranche", t.Key).Dur("retry_in", next).Msg("submission failed, retrying")
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Scheduler) skip(t model.Tranche, d safety.Decision) {
	order := model.Order{
		TrancheKey: t.Key,
		Side:       model.SideBuy,
		Notional:   t.Notional,
		Type:       model.OrderMarket,
	}
	if err := s.ledger.RecordSkip(t.Key, d.Reason, order); err != nil {
		s.log.Error().Err(err).Str("tranche", t.Key).Msg("record skip failed")
		return
	}
	t.Status = model.TrancheSkipped
	t.Reason = string(d.Reason)
	s.trySend(notifier.FormatTrancheResult(&t, nil))
}

// release hands a claimed tranche back to the pending pool.
func (s *Scheduler) release(t model.Tranche) {
	if err := s.ledger.Release(t.Key); err != nil {
		s.log.Error().Err(err).Str("tranche", t.Key).Msg("release failed")
	}
}

func (s *Scheduler) fail(t model.Tranche, reason string) {
	order := model.Order{
		TrancheKey: t.Key,
		Side:       model.SideBuy,
		Notional:   t.Notional,
		Type:       model.OrderMarket,
	}
	if err := s.ledger.RecordFailure(t.Key, reason, order); err != nil {
		s.log.Error().Err(err).Str("tranche", t.Key).Msg("record failure failed")
		return
	}
	t.Status = model.TrancheFailed
	t.Reason = reason
	s.trySend(notifier.FormatTrancheResult(&t, nil))
}

// Recover reconciles tranches left in the executing state by a crash. A
// tranche with a submission on record is re-driven under its original
// idempotency key, so an order that reached the exchange is observed rather
// than duplicated. A tranche with no submission on record never cleared the
// safety checks; it is released back to pending and re-enters the normal
// authorization path on the next scan.
func (s *Scheduler) Recover() error {
	stuck, err := s.ledger.Executing()
	if err != nil {
		return err
	}
	for _, t := range stuck {
		o, err := s.ledger.LatestOrder(t.Key)
		switch {
		case err == nil && o.Status == model.OrderSubmitted:
			s.log.Warn().Str("tranche", t.Key).Msg("recovering submitted tranche")
			s.driveSubmission(t)
		case err == nil || errors.Is(err, ledger.ErrNotFound):
			s.log.Warn().Str("tranche", t.Key).Msg("releasing unsubmitted tranche")
			s.release(t)
		default:
			return err
		}
	}
	return nil
}
