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

package settlement

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// Signer signs transfers with the funding account's secp256k1 key.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner parses a hex encoded secret seed, with or without the 0x prefix.
func NewSigner(secretSeed string) (*Signer, error) {
	secretSeed = strings.TrimPrefix(strings.TrimSpace(secretSeed), "0x")
	if secretSeed == "" {
		return nil, errors.New("secret seed is empty")
	}

	privateKey, err := crypto.HexToECDSA(secretSeed)
	if err != nil {
		return nil, fmt.Errorf("invalid secret seed: %w", err)
	}

	return &Signer{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}, nil
}

// Address returns the checksummed funding account.
func (s *Signer) Address() string {
	return s.address.Hex()
}

// Sign produces the submittable form of a transfer from the funding account.
func (s *Signer) Sign(transfer Transfer) (*SignedTransfer, error) {
	if !common.IsHexAddress(transfer.To) {
		return nil, fmt.Errorf("invalid recipient %q", transfer.To)
	}
	if transfer.Amount == nil || transfer.Amount.Sign() <= 0 {
		return nil, errors.New("transfer amount must be positive")
	}
	transfer.From = s.address.Hex()

	payload, err := encodePayload(transfer)
	if err != nil {
		return nil, err
	}

	signature, err := crypto.Sign(crypto.Keccak256(payload), s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transfer: %w", err)
	}

	extrinsic, err := rlp.EncodeToBytes([]interface{}{payload, signature})
	if err != nil {
		return nil, fmt.Errorf("failed to encode extrinsic: %w", err)
	}

	return &SignedTransfer{
		Transfer:  transfer,
		Signature: hexutil.Encode(signature),
		Extrinsic: hexutil.Encode(extrinsic),
		Hash:      crypto.Keccak256Hash(extrinsic).Hex(),
	}, nil
}

// DecodeExtrinsic recovers the transfer and its signer from an encoded extrinsic.
func DecodeExtrinsic(encoded string) (*Transfer, string, error) {
	raw, err := hexutil.Decode(encoded)
	if err != nil {
		return nil, "", fmt.Errorf("invalid extrinsic encoding: %w", err)
	}

	var envelope struct {
		Payload   []byte
		Signature []byte
	}
	if err := rlp.DecodeBytes(raw, &envelope); err != nil {
		return nil, "", fmt.Errorf("invalid extrinsic: %w", err)
	}

	var body struct {
		From     common.Address
		To       common.Address
		Amount   *big.Int
		Sequence uint64
	}
	if err := rlp.DecodeBytes(envelope.Payload, &body); err != nil {
		return nil, "", fmt.Errorf("invalid transfer payload: %w", err)
	}

	pub, err := crypto.SigToPub(crypto.Keccak256(envelope.Payload), envelope.Signature)
	if err != nil {
		return nil, "", fmt.Errorf("invalid signature: %w", err)
	}

	transfer := &Transfer{
		From:     body.From.Hex(),
		To:       body.To.Hex(),
		Amount:   body.Amount,
		Sequence: body.Sequence,
	}
	return transfer, crypto.PubkeyToAddress(*pub).Hex(), nil
}

func encodePayload(transfer Transfer) ([]byte, error) {
	payload, err := rlp.EncodeToBytes([]interface{}{
		common.HexToAddress(transfer.From),
		common.HexToAddress(transfer.To),
		transfer.Amount,
		transfer.Sequence,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode transfer: %w", err)
	}
	return payload, nil
}
