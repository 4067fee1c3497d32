package chain

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"

	"liraexchange/internal/models"
	"liraexchange/pkg/crypto"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// DefaultToncenterURL - публичный toncenter v2
	DefaultToncenterURL = "https://toncenter.com/api/v2"

	maxResponseBytes = 4 << 20
	transferTTL      = 3 * time.Minute
)

// ToncenterConfig - параметры клиента toncenter
type ToncenterConfig struct {
	BaseURL    string
	APIKey     string
	Testnet    bool
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Toncenter реализует Client поверх toncenter HTTP API v2
type Toncenter struct {
	baseURL    string
	apiKey     string
	testnet    bool
	httpClient *http.Client
	now        func() time.Time
}

// NewToncenter создаёт клиент
func NewToncenter(cfg ToncenterConfig) *Toncenter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultToncenterURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Toncenter{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		testnet:    cfg.Testnet,
		httpClient: client,
		now:        time.Now,
	}
}

type toncenterResponse struct {
	OK     bool                `json:"ok"`
	Result jsoniter.RawMessage `json:"result"`
	Error  string              `json:"error"`
	Code   int                 `json:"code"`
}

// call выполняет запрос и раскладывает result в out
func (t *Toncenter) call(ctx context.Context, method string, query url.Values, body interface{}, out interface{}) error {
	reqURL := t.baseURL + "/" + method
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	httpMethod := http.MethodGet
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", method, err)
		}
		httpMethod = http.MethodPost
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, httpMethod, reqURL, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if t.apiKey != "" {
		req.Header.Set("X-API-Key", t.apiKey)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &APIError{Method: method, Message: "request failed", Original: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &APIError{Method: method, StatusCode: resp.StatusCode, Message: "read body", Original: err}
	}

	var env toncenterResponse
	if err := json.Unmarshal(raw, &env); err != nil {
		return &APIError{Method: method, StatusCode: resp.StatusCode, Message: "malformed response", Original: err}
	}
	if resp.StatusCode != http.StatusOK || !env.OK {
		msg := env.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{Method: method, StatusCode: resp.StatusCode, Code: env.Code, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return &APIError{Method: method, StatusCode: resp.StatusCode, Message: "malformed result", Original: err}
	}
	return nil
}

// GetBalance - getAddressBalance, ответ в nanoton строкой
func (t *Toncenter) GetBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	var nano string
	if err := t.call(ctx, "getAddressBalance", url.Values{"address": {address}}, nil, &nano); err != nil {
		return decimal.Zero, err
	}
	v, err := decimal.NewFromString(nano)
	if err != nil {
		return decimal.Zero, &APIError{Method: "getAddressBalance", StatusCode: http.StatusOK, Message: "bad balance " + nano, Original: err}
	}
	return FromNano(v), nil
}

type tonMessage struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Value       string `json:"value"`
}

type tonTransaction struct {
	Utime         int64 `json:"utime"`
	TransactionID struct {
		LT   string `json:"lt"`
		Hash string `json:"hash"`
	} `json:"transaction_id"`
	Fee     string       `json:"fee"`
	InMsg   *tonMessage  `json:"in_msg"`
	OutMsgs []tonMessage `json:"out_msgs"`
}

// ListTransactions - getTransactions
func (t *Toncenter) ListTransactions(ctx context.Context, address string, limit int) ([]models.ChainTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query := url.Values{
		"address": {address},
		"limit":   {strconv.Itoa(limit)},
	}

	var raw []tonTransaction
	if err := t.call(ctx, "getTransactions", query, nil, &raw); err != nil {
		return nil, err
	}

	result := make([]models.ChainTransaction, 0, len(raw))
	for _, tx := range raw {
		item := models.ChainTransaction{
			Hash: tx.TransactionID.Hash,
			Time: time.Unix(tx.Utime, 0).UTC(),
			Fee:  FromNano(nanoOrZero(tx.Fee)),
		}
		switch {
		case tx.InMsg != nil && tx.InMsg.Source != "":
			// входящий перевод
			item.From = tx.InMsg.Source
			item.To = tx.InMsg.Destination
			item.Amount = FromNano(nanoOrZero(tx.InMsg.Value))
		case len(tx.OutMsgs) > 0:
			item.From = tx.OutMsgs[0].Source
			item.To = tx.OutMsgs[0].Destination
			for _, m := range tx.OutMsgs {
				item.Amount = item.Amount.Add(FromNano(nanoOrZero(m.Value)))
			}
		default:
			item.To = address
		}
		result = append(result, item)
	}
	return result, nil
}

func nanoOrZero(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return v
}

type getMethodResult struct {
	Stack    [][]interface{} `json:"stack"`
	ExitCode int             `json:"exit_code"`
}

// seqno - runGetMethod seqno. Неразвёрнутый кошелёк отвечает ненулевым exit_code, это seqno 0.
func (t *Toncenter) seqno(ctx context.Context, address string) (uint32, error) {
	req := map[string]interface{}{
		"address": address,
		"method":  "seqno",
		"stack":   []interface{}{},
	}

	var res getMethodResult
	if err := t.call(ctx, "runGetMethod", nil, req, &res); err != nil {
		return 0, err
	}
	if res.ExitCode != 0 || len(res.Stack) == 0 || len(res.Stack[0]) < 2 {
		return 0, nil
	}

	s, ok := res.Stack[0][1].(string)
	if !ok {
		return 0, &APIError{Method: "runGetMethod", StatusCode: http.StatusOK, Message: "unexpected seqno stack entry"}
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 32)
	if err != nil {
		return 0, &APIError{Method: "runGetMethod", StatusCode: http.StatusOK, Message: "bad seqno " + s, Original: err}
	}
	return uint32(v), nil
}

// SendTransfer подписывает сообщение wallet v4r2 и отправляет sendBocReturnHash
func (t *Toncenter) SendTransfer(ctx context.Context, secret []byte, toAddress string, amount decimal.Decimal) (*TransferResult, error) {
	if len(secret) != ed25519.SeedSize {
		return nil, fmt.Errorf("ton secret must be a %d-byte seed", ed25519.SeedSize)
	}
	to, err := ParseAddress(toAddress)
	if err != nil {
		return nil, err
	}
	nano := ToNano(amount)
	if !nano.IsPositive() {
		return nil, fmt.Errorf("%w: amount %s", ErrTransferRejected, amount)
	}

	priv := ed25519.NewKeyFromSeed(secret)
	defer crypto.Wipe(priv)

	from, err := walletAddress(priv.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}

	seqno, err := t.seqno(ctx, FormatAddress(from, true, t.testnet))
	if err != nil {
		return nil, err
	}

	msg, err := transferMessage(priv, transfer{
		To:         to,
		Amount:     nano.BigInt(),
		Seqno:      seqno,
		ValidUntil: t.now().Add(transferTTL),
	})
	if err != nil {
		return nil, err
	}

	var res struct {
		Hash string `json:"hash"`
	}
	req := map[string]string{"boc": base64.StdEncoding.EncodeToString(msg.ToBOCWithFlags(false))}
	if err := t.call(ctx, "sendBocReturnHash", nil, req, &res); err != nil {
		return nil, err
	}
	if res.Hash == "" {
		return nil, ErrTransferRejected
	}
	return &TransferResult{TxID: res.Hash}, nil
}

var _ Client = (*Toncenter)(nil)
