// Package horizon implements the chain client against a Stellar Horizon
// instance for reads and an anchor charge endpoint for submissions.
package horizon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/meridianhq/meridian/internal/chain/domain"
	"github.com/meridianhq/meridian/internal/config"
	orgdomain "github.com/meridianhq/meridian/internal/organization/domain"
	"go.uber.org/zap"
)

type Client struct {
	horizonTestnet string
	horizonMainnet string
	anchorTestnet  string
	anchorMainnet  string
	authToken      string
	http           *http.Client
	log            *zap.Logger
}

func New(cfg config.Config, log *zap.Logger) *Client {
	return &Client{
		horizonTestnet: strings.TrimRight(cfg.HorizonTestnetURL, "/"),
		horizonMainnet: strings.TrimRight(cfg.HorizonMainnetURL, "/"),
		anchorTestnet:  strings.TrimRight(cfg.AnchorTestnetURL, "/"),
		anchorMainnet:  strings.TrimRight(cfg.AnchorMainnetURL, "/"),
		authToken:      strings.TrimSpace(cfg.ChainAuthToken),
		http:           &http.Client{Timeout: 15 * time.Second},
		log:            log.Named("chain.horizon"),
	}
}

func (c *Client) horizonBase(env orgdomain.Environment) string {
	if env == orgdomain.EnvironmentMainnet {
		return c.horizonMainnet
	}
	return c.horizonTestnet
}

func (c *Client) anchorBase(env orgdomain.Environment) string {
	if env == orgdomain.EnvironmentMainnet {
		return c.anchorMainnet
	}
	return c.anchorTestnet
}

type horizonTransaction struct {
	Hash       string `json:"hash"`
	Ledger     int64  `json:"ledger"`
	Successful *bool  `json:"successful"`
	Memo       string `json:"memo"`
}

// GetTransactionStatus resolves a hash through GET /transactions/{hash}.
// A 404 means the network has not seen the transaction.
func (c *Client) GetTransactionStatus(ctx context.Context, env orgdomain.Environment, txHash string) (domain.TxStatus, error) {
	txHash = strings.TrimSpace(txHash)
	if txHash == "" {
		return domain.TxStatusUnseen, nil
	}

	endpoint := fmt.Sprintf("%s/transactions/%s", c.horizonBase(env), url.PathEscape(txHash))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.TxStatusUnknown, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.TxStatusUnknown, domain.ErrUnavailable
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.TxStatusUnseen, nil
	case resp.StatusCode >= http.StatusInternalServerError:
		return domain.TxStatusUnknown, domain.ErrUnavailable
	case resp.StatusCode != http.StatusOK:
		c.log.Warn("unexpected horizon status",
			zap.Int("status_code", resp.StatusCode),
			zap.String("tx_hash", txHash),
		)
		return domain.TxStatusUnknown, nil
	}

	var tx horizonTransaction
	if err := json.NewDecoder(resp.Body).Decode(&tx); err != nil {
		return domain.TxStatusUnknown, nil
	}
	return classify(tx), nil
}

func classify(tx horizonTransaction) domain.TxStatus {
	if tx.Successful == nil {
		return domain.TxStatusUnknown
	}
	if !*tx.Successful {
		return domain.TxStatusFailed
	}
	if tx.Ledger == 0 {
		return domain.TxStatusPending
	}
	return domain.TxStatusConfirmed
}

type horizonTransactionPage struct {
	Embedded struct {
		Records []horizonTransaction `json:"records"`
	} `json:"_embedded"`
}

// FindPayment scans the distribution account's recent transactions for one
// carrying the checkout memo.
func (c *Client) FindPayment(ctx context.Context, env orgdomain.Environment, account, memo string) (domain.Observation, error) {
	account = strings.TrimSpace(account)
	memo = strings.TrimSpace(memo)
	if account == "" || memo == "" {
		return domain.Observation{Status: domain.TxStatusUnseen}, nil
	}

	endpoint := fmt.Sprintf("%s/accounts/%s/transactions?order=desc&limit=100", c.horizonBase(env), url.PathEscape(account))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Observation{Status: domain.TxStatusUnknown}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Observation{Status: domain.TxStatusUnknown}, domain.ErrUnavailable
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.Observation{Status: domain.TxStatusUnseen}, nil
	case resp.StatusCode >= http.StatusInternalServerError:
		return domain.Observation{Status: domain.TxStatusUnknown}, domain.ErrUnavailable
	case resp.StatusCode != http.StatusOK:
		return domain.Observation{Status: domain.TxStatusUnknown}, nil
	}

	var page horizonTransactionPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return domain.Observation{Status: domain.TxStatusUnknown}, nil
	}

	for _, tx := range page.Embedded.Records {
		if tx.Memo != memo {
			continue
		}
		return domain.Observation{TxHash: tx.Hash, Status: classify(tx)}, nil
	}
	return domain.Observation{Status: domain.TxStatusUnseen}, nil
}

type chargeRequestBody struct {
	SubscriptionID      string `json:"subscription_id"`
	ProductID           string `json:"product_id"`
	WalletAddress       string `json:"wallet_address"`
	DistributionAccount string `json:"distribution_account"`
	AssetCode           string `json:"asset_code"`
	Amount              int64  `json:"amount"`
}

type chargeResponseBody struct {
	TxHash string `json:"tx_hash"`
	Error  string `json:"error"`
}

// ChargeSubscription submits a charge to the anchor. The idempotency key
// travels in a header so a retried submission after a crash does not
// double-spend.
func (c *Client) ChargeSubscription(ctx context.Context, env orgdomain.Environment, chargeReq domain.ChargeRequest) (domain.ChargeResult, error) {
	body, err := json.Marshal(chargeRequestBody{
		SubscriptionID:      chargeReq.SubscriptionID.String(),
		ProductID:           chargeReq.ProductID.String(),
		WalletAddress:       chargeReq.WalletAddress,
		DistributionAccount: chargeReq.DistributionAccount,
		AssetCode:           chargeReq.AssetCode,
		Amount:              chargeReq.Amount,
	})
	if err != nil {
		return domain.ChargeResult{}, err
	}

	endpoint := c.anchorBase(env) + "/charges"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.ChargeResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", chargeReq.IdempotencyKey)
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.ChargeResult{}, domain.ErrUnavailable
	}
	defer resp.Body.Close()

	var out chargeResponseBody
	decodeErr := json.NewDecoder(resp.Body).Decode(&out)

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return domain.ChargeResult{}, domain.ErrUnavailable
	case resp.StatusCode >= http.StatusBadRequest:
		c.log.Warn("charge rejected",
			zap.Int("status_code", resp.StatusCode),
			zap.String("subscription_id", chargeReq.SubscriptionID.String()),
			zap.String("reason", out.Error),
		)
		return domain.ChargeResult{}, domain.ErrRejected
	case decodeErr != nil || strings.TrimSpace(out.TxHash) == "":
		return domain.ChargeResult{}, domain.ErrUnavailable
	}

	return domain.ChargeResult{TxHash: out.TxHash}, nil
}
