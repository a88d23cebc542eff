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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/blnkfinance/faucet/internal/apierror"
	"github.com/blnkfinance/faucet/model"
)

var tracer = otel.Tracer("faucet.database")

// ReserveAirdrop inserts a zero-amount placeholder row for the recipient.
// A conflicting row is not an error: the caller learns about it from the returned flag.
func (d Datasource) ReserveAirdrop(ctx context.Context, airdrop *model.Airdrop) (bool, error) {
	ctx, span := tracer.Start(ctx, "Reserving airdrop")
	defer span.End()

	result, err := d.Conn.ExecContext(ctx, `
		INSERT INTO airdrops (recipient_key, recipient, amount, attempts, ip, created_at)
		VALUES ($1, $2, 0, 1, $3, $4)
		ON CONFLICT (recipient_key) DO NOTHING
	`, airdrop.RecipientKey, airdrop.Recipient, airdrop.IP, airdrop.CreatedAt)
	if err != nil {
		span.RecordError(err)
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to reserve airdrop", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}

	return rowsAffected == 1, nil
}

func (d Datasource) GetAirdrop(ctx context.Context, recipientKey string) (*model.Airdrop, error) {
	ctx, span := tracer.Start(ctx, "Fetching airdrop")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, `
		SELECT recipient_key, recipient, amount, tx_hash, block_hash, sequence, attempts, ip,
			country_code, country, region, city, latitude, longitude, created_at, settled_at
		FROM airdrops
		WHERE recipient_key = $1
	`, recipientKey)

	airdrop := &model.Airdrop{}
	var (
		amount                             string
		txHash, blockHash, ip              sql.NullString
		countryCode, country, region, city sql.NullString
		sequence                           sql.NullInt64
		latitude, longitude                sql.NullFloat64
		settledAt                          sql.NullTime
	)
	err := row.Scan(
		&airdrop.RecipientKey,
		&airdrop.Recipient,
		&amount,
		&txHash,
		&blockHash,
		&sequence,
		&airdrop.Attempts,
		&ip,
		&countryCode,
		&country,
		&region,
		&city,
		&latitude,
		&longitude,
		&airdrop.CreatedAt,
		&settledAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Airdrop for recipient key '%s' not found", recipientKey), nil)
		}
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve airdrop", err)
	}

	parsed, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to parse airdrop amount", amount)
	}
	airdrop.Amount = parsed
	airdrop.TxHash = txHash.String
	airdrop.BlockHash = blockHash.String
	airdrop.IP = ip.String
	airdrop.Geo = model.GeoInfo{
		CountryCode: countryCode.String,
		Country:     country.String,
		Region:      region.String,
		City:        city.String,
		Latitude:    latitude.Float64,
		Longitude:   longitude.Float64,
	}
	if sequence.Valid {
		seq := uint64(sequence.Int64)
		airdrop.Sequence = &seq
	}
	if settledAt.Valid {
		airdrop.SettledAt = &settledAt.Time
	}

	return airdrop, nil
}

// ReclaimStaleAirdrop hands a stale reservation to exactly one caller by refreshing its
// reservation time. Callers that lose the race, or find the row fresh or settled, get false.
func (d Datasource) ReclaimStaleAirdrop(ctx context.Context, recipientKey string, staleBefore, now time.Time) (bool, error) {
	ctx, span := tracer.Start(ctx, "Reclaiming stale airdrop")
	defer span.End()

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE airdrops
		SET created_at = $3, attempts = attempts + 1
		WHERE recipient_key = $1 AND amount = 0 AND created_at < $2
	`, recipientKey, staleBefore, now)
	if err != nil {
		span.RecordError(err)
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to reclaim airdrop", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}

	return rowsAffected == 1, nil
}

func (d Datasource) RecordSubmission(ctx context.Context, recipientKey string, sequence uint64) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE airdrops
		SET sequence = $2
		WHERE recipient_key = $1 AND amount = 0
	`, recipientKey, int64(sequence))
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record submission", err)
	}
	return nil
}

// FinalizeAirdrop records the settled amount and reference on a reserved row.
// Repeating the call with the same amount and reference is a no-op; any other change
// to a settled row is a conflict. The row lock is held only for this short transaction.
func (d Datasource) FinalizeAirdrop(ctx context.Context, recipientKey string, amount *big.Int, txHash, blockHash string, geo model.GeoInfo) error {
	ctx, span := tracer.Start(ctx, "Finalizing airdrop")
	defer span.End()

	if amount == nil || amount.Sign() <= 0 {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Settled amount must be positive", nil)
	}

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var (
		current       string
		currentTxHash sql.NullString
	)
	err = tx.QueryRowContext(ctx, `
		SELECT amount, tx_hash
		FROM airdrops
		WHERE recipient_key = $1
		FOR UPDATE
	`, recipientKey).Scan(&current, &currentTxHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Airdrop for recipient key '%s' not found", recipientKey), nil)
		}
		span.RecordError(err)
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to lock airdrop", err)
	}

	currentAmount, ok := new(big.Int).SetString(current, 10)
	if !ok {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to parse airdrop amount", current)
	}

	if currentAmount.Sign() > 0 {
		if currentAmount.Cmp(amount) == 0 && currentTxHash.String == txHash {
			return nil
		}
		return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Airdrop for recipient key '%s' is already settled", recipientKey), nil)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE airdrops
		SET amount = $2, tx_hash = $3, block_hash = $4, country_code = $5, country = $6,
			region = $7, city = $8, latitude = $9, longitude = $10, settled_at = $11
		WHERE recipient_key = $1
	`, recipientKey, amount.String(), txHash, blockHash, geo.CountryCode, geo.Country, geo.Region, geo.City, geo.Latitude, geo.Longitude, time.Now().UTC())
	if err != nil {
		span.RecordError(err)
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to finalize airdrop", err)
	}

	if err = tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit airdrop", err)
	}
	return nil
}
