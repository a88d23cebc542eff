/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package faucet

import (
	"context"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"

	"github.com/blnkfinance/faucet/internal/apierror"
	"github.com/blnkfinance/faucet/internal/settlement"
	"github.com/blnkfinance/faucet/model"
)

var tracer = otel.Tracer("faucet.airdrop")

const (
	defaultFinalizeTimeout  = 10 * time.Second
	finalizeMaxInterval     = 2 * time.Second
	lateFinalizeMaxInterval = 30 * time.Second
	resyncTimeout           = 5 * time.Second
)

// AirdropRequest asks for a payout to Recipient. IP is the caller address as seen by
// the HTTP layer and is only used for pricing and audit.
type AirdropRequest struct {
	Recipient string
	IP        string
}

type AirdropResult struct {
	Amount      *big.Int
	TxHash      string
	BlockHash   string
	Sequence    uint64
	CountryCode string
}

// submission is one signed transfer on its way to settlement.
type submission struct {
	key      string
	amount   *big.Int
	sequence uint64
	hash     string
	geo      model.GeoInfo
	logger   *logrus.Entry

	included       bool
	outcomeUnknown bool
}

// Airdrop pays the recipient at most once. The row in the attempt ledger moves from
// reserved to settled only after the ledger confirms the transfer; every failure leaves
// it reserved so that a retry after the freshness window can reclaim it.
func (f *Faucet) Airdrop(ctx context.Context, req AirdropRequest) (*AirdropResult, error) {
	ctx, span := tracer.Start(ctx, "Airdrop")
	defer span.End()

	if !model.IsValidAccount(req.Recipient) {
		return nil, apierror.NewAPIError(apierror.ErrInvalidAccount, "Recipient is not a valid account", nil)
	}
	if f.signer == nil {
		return nil, apierror.NewAPIError(apierror.ErrAirdropSecretSeedNotSet, "Airdrop secret seed is not set", nil)
	}

	recipient := model.NormalizeAccount(req.Recipient)
	key := model.RecipientKey(recipient)
	logger := logrus.WithFields(logrus.Fields{"recipient_key": key, "recipient": recipient})
	span.SetAttributes(attribute.String("recipient_key", key))

	if err := f.claim(ctx, key, recipient, req.IP, logger); err != nil {
		return nil, err
	}

	if _, loaded := f.pending.LoadOrStore(key, struct{}{}); loaded {
		return nil, apierror.NewAPIError(apierror.ErrDuplicatedAirdrop, "Airdrop already in flight", nil)
	}
	handedOff := false
	defer func() {
		if !handedOff {
			f.pending.Delete(key)
		}
	}()

	geo := f.locate(ctx, req.IP, logger)
	amount := f.prices.ToUnits(f.prices.AirdropAmount(geo.CountryCode))
	logger = logger.WithFields(logrus.Fields{"country_code": geo.CountryCode, "amount": amount.String()})

	sub, s, err := f.submit(ctx, key, recipient, amount, geo, logger)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int64("sequence", int64(s.sequence)), attribute.String("tx_hash", s.hash))

	result, handedOff, err := f.await(ctx, sub, s)
	if err != nil {
		span.RecordError(err)
	}
	return result, err
}

// claim runs the CHECKING and RESERVING steps. It returns nil only when this caller
// owns the reservation and may submit a transfer.
func (f *Faucet) claim(ctx context.Context, key, recipient, ip string, logger *logrus.Entry) error {
	now := f.now().UTC()

	existing, err := f.datasource.GetAirdrop(ctx, key)
	switch {
	case err == nil:
	case apierror.Is(err, apierror.ErrNotFound):
		inserted, err := f.datasource.ReserveAirdrop(ctx, &model.Airdrop{
			RecipientKey: key,
			Recipient:    recipient,
			IP:           model.MaskIP(ip),
			CreatedAt:    now,
		})
		if err != nil {
			return apierror.NewAPIError(apierror.ErrAirdrop, "Failed to reserve airdrop", err)
		}
		if inserted {
			logger.Info("airdrop reserved")
			return nil
		}
		// Lost the insert race; judge the row the winner created.
		existing, err = f.datasource.GetAirdrop(ctx, key)
		if err != nil {
			return apierror.NewAPIError(apierror.ErrAirdrop, "Failed to read airdrop", err)
		}
	default:
		return apierror.NewAPIError(apierror.ErrAirdrop, "Failed to read airdrop", err)
	}

	switch existing.Status(now, f.freshness) {
	case model.AirdropSettled:
		return apierror.NewAPIError(apierror.ErrDuplicatedAirdrop, "Recipient already received an airdrop", nil)
	case model.AirdropReserved:
		return apierror.NewAPIError(apierror.ErrDuplicatedAirdrop, "Airdrop for recipient is in progress", nil)
	}

	if _, watching := f.pending.Load(key); watching {
		return apierror.NewAPIError(apierror.ErrDuplicatedAirdrop, "Airdrop for recipient is awaiting settlement", nil)
	}

	reclaimed, err := f.datasource.ReclaimStaleAirdrop(ctx, key, now.Add(-f.freshness), now)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrAirdrop, "Failed to reclaim airdrop", err)
	}
	if !reclaimed {
		return apierror.NewAPIError(apierror.ErrDuplicatedAirdrop, "Airdrop for recipient was retried concurrently", nil)
	}
	logger.WithField("previous_attempts", existing.Attempts).Info("stale airdrop reclaimed")
	return nil
}

// locate prices unknown locations as the reference country.
func (f *Faucet) locate(ctx context.Context, ip string, logger *logrus.Entry) model.GeoInfo {
	fallback := model.GeoInfo{CountryCode: f.prices.referenceCountry}
	if f.geo == nil {
		return fallback
	}
	info, err := f.geo.Lookup(ctx, ip)
	if err != nil {
		logger.WithError(err).Warn("geolocation failed, using reference country")
		return fallback
	}
	if info == nil || info.CountryCode == "" {
		return fallback
	}
	return *info
}

// CountryOf returns the country code prices are computed for when called from ip.
func (f *Faucet) CountryOf(ctx context.Context, ip string) string {
	return f.locate(ctx, ip, logrus.WithField("ip", model.MaskIP(ip))).CountryCode
}

// submit runs the SUBMITTING step: allocate a sequence, sign and hand the transfer to
// the settlement node.
func (f *Faucet) submit(ctx context.Context, key, recipient string, amount *big.Int, geo model.GeoInfo, logger *logrus.Entry) (*settlement.Subscription, *submission, error) {
	sequence, err := f.sequences.Allocate(ctx)
	if err != nil {
		return nil, nil, apierror.NewAPIError(apierror.ErrAirdrop, "Failed to allocate sequence", err)
	}
	logger = logger.WithField("sequence", sequence)

	signed, err := f.signer.Sign(settlement.Transfer{To: recipient, Amount: amount, Sequence: sequence})
	if err != nil {
		f.resync(logger)
		return nil, nil, apierror.NewAPIError(apierror.ErrSigningFailed, "Failed to sign transfer", err)
	}
	logger = logger.WithField("tx_hash", signed.Hash)

	if err := f.datasource.RecordSubmission(ctx, key, sequence); err != nil {
		logger.WithError(err).Warn("failed to record submission")
	}

	sub, err := f.settlement.Submit(ctx, signed)
	if err != nil {
		f.resync(logger)
		return nil, nil, apierror.NewAPIError(apierror.ErrTransactionFailed, "Settlement node rejected the transfer", err)
	}
	logger.Info("transfer submitted")

	return sub, &submission{key: key, amount: amount, sequence: sequence, hash: signed.Hash, geo: geo, logger: logger}, nil
}

// confirms reports whether ev is the configured success signal.
func (f *Faucet) confirms(ev settlement.StatusEvent) bool {
	return ev.Kind == settlement.EventFinalized || (f.confirmOnInclusion && ev.Kind == settlement.EventIncluded)
}

// await runs AWAITING_SETTLEMENT. When the outcome is not known before the deadline the
// subscription is handed to a late watcher, which is reported through handedOff.
func (f *Faucet) await(ctx context.Context, sub *settlement.Subscription, s *submission) (*AirdropResult, bool, error) {
	timer := time.NewTimer(f.settlementTimeout)
	defer timer.Stop()

	for {
		select {
		case ev := <-sub.Events():
			s.logger.WithField("status", ev.Kind).Debug("settlement update")
			switch {
			case f.confirms(ev):
				sub.Close()
				return f.settle(ctx, s, ev)
			case ev.Kind == settlement.EventIncluded:
				s.included = true
			case ev.Kind == settlement.EventExtrinsicFailed:
				sub.Close()
				s.logger.WithField("reason", ev.Reason).Error("transfer failed in block")
				f.notifier.NotifyFundsExhausted(f.signer.Address(), ev.Reason)
				return nil, false, apierror.NewAPIError(apierror.ErrNotEnoughFunds, "Faucet cannot fund the transfer", ev.Reason)
			case ev.Kind.RejectedBeforeInclusion() && !s.included:
				sub.Close()
				f.resync(s.logger)
				return nil, false, apierror.NewAPIError(apierror.ErrTransactionFailed, "Transfer was not included", ev.Reason)
			case ev.Kind.IsTerminal():
				// The sequence may have been consumed, so the recipient is held like a timeout.
				s.outcomeUnknown = true
				s.logger.WithField("reason", ev.Reason).Warn("settlement outcome unknown, holding recipient")
				f.watchLate(sub, s)
				return nil, true, apierror.NewAPIError(apierror.ErrAirdrop, "Settlement outcome is unknown", ev.Reason)
			}
		case <-timer.C:
			s.logger.Warn("settlement timed out, watching for late inclusion")
			f.watchLate(sub, s)
			return nil, true, apierror.NewAPIError(apierror.ErrAirdrop, "Timed out waiting for settlement", nil)
		case <-ctx.Done():
			s.logger.Warn("caller went away, watching for late inclusion")
			f.watchLate(sub, s)
			return nil, true, apierror.NewAPIError(apierror.ErrAirdrop, "Request cancelled while awaiting settlement", ctx.Err())
		}
	}
}

// settle runs the SETTLED step. The row is written even if the caller has gone away.
// A write that keeps failing is handed to a background writer which holds the recipient
// pending until the row is settled; that is reported through handedOff.
func (f *Faucet) settle(ctx context.Context, s *submission, ev settlement.StatusEvent) (*AirdropResult, bool, error) {
	txHash := s.hash
	if ev.TxHash != "" {
		txHash = ev.TxHash
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.finalizeTimeout)
	defer cancel()

	if err := f.finalize(ctx, s, txHash, ev.BlockHash, finalizeBackOff(finalizeMaxInterval)); err != nil {
		s.logger.WithError(err).Error("transfer settled but the airdrop could not be recorded")
		f.notifier.NotifyError(err)
		handedOff := false
		if !isPermanentFinalizeError(err) {
			f.finalizeLater(s, txHash, ev.BlockHash)
			handedOff = true
		}
		return nil, handedOff, apierror.NewAPIError(apierror.ErrAirdrop, "Failed to record settled airdrop", err)
	}

	s.logger.WithField("block_hash", ev.BlockHash).Info("airdrop settled")
	emitSettlement(ctx, s, txHash, ev.BlockHash)

	return &AirdropResult{
		Amount:      s.amount,
		TxHash:      txHash,
		BlockHash:   ev.BlockHash,
		Sequence:    s.sequence,
		CountryCode: s.geo.CountryCode,
	}, false, nil
}

// finalize writes the settled row, retrying transient failures until b gives up or ctx
// ends. The last datasource error is returned rather than the context error.
func (f *Faucet) finalize(ctx context.Context, s *submission, txHash, blockHash string, b backoff.BackOff) error {
	var lastErr error
	err := backoff.Retry(func() error {
		err := f.datasource.FinalizeAirdrop(ctx, s.key, s.amount, txHash, blockHash, s.geo)
		if err == nil {
			return nil
		}
		lastErr = err
		if isPermanentFinalizeError(err) {
			return backoff.Permanent(err)
		}
		s.logger.WithError(err).Warn("failed to record settled airdrop, retrying")
		return err
	}, backoff.WithContext(b, ctx))
	if err != nil && lastErr != nil {
		return lastErr
	}
	return err
}

// finalizeLater keeps writing a confirmed transfer in the background. The recipient
// stays pending until the write lands or the faucet shuts down.
func (f *Faucet) finalizeLater(s *submission, txHash, blockHash string) {
	f.watchers.Add(1)
	go func() {
		defer f.watchers.Done()
		defer f.pending.Delete(s.key)

		if err := f.finalize(f.ctx, s, txHash, blockHash, finalizeBackOff(lateFinalizeMaxInterval)); err != nil {
			s.logger.WithError(err).Error("gave up recording settled airdrop")
			return
		}
		s.logger.WithField("block_hash", blockHash).Info("settled airdrop recorded after retry")
		emitSettlement(f.ctx, s, txHash, blockHash)
	}()
}

func finalizeBackOff(maxInterval time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = maxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// A missing row or a row settled with different values will not fix itself.
func isPermanentFinalizeError(err error) bool {
	return apierror.Is(err, apierror.ErrNotFound) || apierror.Is(err, apierror.ErrConflict)
}

// watchLate keeps the subscription open after the caller got AIRDROP_ERROR, so that a
// transfer landing late still settles its row. The recipient stays marked pending until
// the watch ends, which keeps stale reclaims from paying twice. When the outcome is
// already unknown no more events can arrive and the watch only holds the recipient.
func (f *Faucet) watchLate(sub *settlement.Subscription, s *submission) {
	f.watchers.Add(1)
	go func() {
		defer f.watchers.Done()
		release := true
		defer func() {
			if release {
				f.pending.Delete(s.key)
			}
		}()
		defer sub.Close()

		timer := time.NewTimer(f.lateWindow)
		defer timer.Stop()

		events := sub.Events()
		if s.outcomeUnknown {
			events = nil
		}

		for {
			select {
			case ev := <-events:
				switch {
				case f.confirms(ev):
					_, handedOff, err := f.settle(f.ctx, s, ev)
					if err == nil {
						s.logger.Info("late settlement recorded")
					}
					release = !handedOff
					return
				case ev.Kind == settlement.EventIncluded:
					s.included = true
				case ev.Kind == settlement.EventExtrinsicFailed:
					f.notifier.NotifyFundsExhausted(f.signer.Address(), ev.Reason)
					return
				case ev.Kind.RejectedBeforeInclusion() && !s.included:
					f.resync(s.logger)
					return
				case ev.Kind.IsTerminal():
					s.outcomeUnknown = true
					s.logger.WithField("reason", ev.Reason).Warn("settlement outcome unknown, holding recipient")
					events = nil
				}
			case <-timer.C:
				s.logger.Warn("gave up watching for late settlement")
				if s.outcomeUnknown {
					// The node is authoritative once the fate of the sequence is settled.
					f.resync(s.logger)
				}
				return
			case <-f.ctx.Done():
				return
			}
		}
	}()
}

func (f *Faucet) resync(logger *logrus.Entry) {
	if !f.resyncOnRejection {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), resyncTimeout)
	defer cancel()
	if err := f.sequences.Resync(ctx); err != nil {
		logger.WithError(err).Warn("failed to resync sequence counter")
	}
}

// emitSettlement writes an audit record of a settled airdrop to the OpenTelemetry log
// pipeline. It is a no-op unless telemetry is enabled.
func emitSettlement(ctx context.Context, s *submission, txHash, blockHash string) {
	var record otellog.Record
	record.SetTimestamp(time.Now())
	record.SetSeverity(otellog.SeverityInfo)
	record.SetBody(otellog.StringValue("airdrop settled"))
	record.AddAttributes(
		otellog.String("recipient_key", s.key),
		otellog.String("amount", s.amount.String()),
		otellog.Int64("sequence", int64(s.sequence)),
		otellog.String("tx_hash", txHash),
		otellog.String("block_hash", blockHash),
		otellog.String("country_code", s.geo.CountryCode),
	)
	global.GetLoggerProvider().Logger("faucet.airdrop").Emit(ctx, record)
}
