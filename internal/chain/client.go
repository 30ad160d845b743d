// Package chain — HTTP client against a VeChain node and a fee-delegation
// sponsor service.
package chain

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	mrand "math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// Receipt is the distilled on-chain outcome of a broadcast transaction.
type Receipt struct {
	Reverted    bool
	BlockNumber uint64
	BlockID     string
}

// Config holds the chain integration settings.
type Config struct {
	NodeURL         string // VeChain REST endpoint, e.g. https://testnet.vechain.org
	SponsorURL      string // fee-delegation signing endpoint
	OriginKeyHex    string // backend origin private key (hex, no 0x)
	ContractAddress string // X2Earn rewards pool address
	AppID           string // bytes32 app id registered with the pool
	Gas             uint64
	Expiration      uint32 // blocks until the tx expires
	Timeout         time.Duration
}

// originSigner bundles the origin key with its derived address.
type originSigner struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

// HTTPClient signs, sponsors, broadcasts, and polls transactions over the
// VeChain REST API. One instance per process; safe for concurrent use.
type HTTPClient struct {
	cfg      Config
	signer   *originSigner
	contract common.Address
	appID    [32]byte
	http     *http.Client

	tagMu    sync.Mutex
	chainTag byte
	tagKnown bool

	// nonceFn is a test seam; defaults to a random source.
	nonceFn func() uint64
}

// NewHTTP constructs an HTTPClient from config and validates the key and
// addresses eagerly so a misconfigured deployment fails at startup, not on
// the first claim.
func NewHTTP(cfg Config) (*HTTPClient, error) {
	if cfg.NodeURL == "" || cfg.SponsorURL == "" {
		return nil, errors.New("chain: node and sponsor URLs must be configured")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.OriginKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("chain: bad origin key: %w", err)
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("chain: bad contract address %q", cfg.ContractAddress)
	}
	appIDBytes, err := hexutil.Decode(cfg.AppID)
	if err != nil || len(appIDBytes) != 32 {
		return nil, fmt.Errorf("chain: app id must be a 32-byte hex value")
	}

	if cfg.Gas == 0 {
		cfg.Gas = 300_000
	}
	if cfg.Expiration == 0 {
		cfg.Expiration = 720 // ~2h of blocks
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	c := &HTTPClient{
		cfg:      cfg,
		signer:   &originSigner{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)},
		contract: common.HexToAddress(cfg.ContractAddress),
		http:     &http.Client{Timeout: timeout},
		nonceFn:  func() uint64 { return mrand.Uint64() },
	}
	copy(c.appID[:], appIDBytes)
	return c, nil
}

// Origin returns the backend's signing address.
func (c *HTTPClient) Origin() string { return c.signer.addr.Hex() }

// SignDistribution builds and fully signs a delegated distributeReward
// transaction without broadcasting it. It returns the transaction id (valid
// before broadcast) and the raw transaction hex; the caller persists both
// before any network send so the payload survives a crash.
func (c *HTTPClient) SignDistribution(ctx context.Context, receiver string, amountWei *big.Int, proof string) (string, string, error) {
	if !common.IsHexAddress(receiver) {
		return "", "", fmt.Errorf("chain: bad receiver address %q", receiver)
	}
	if amountWei == nil || amountWei.Sign() <= 0 {
		return "", "", errors.New("chain: amount must be positive")
	}

	data, err := packDistributeReward(c.appID, amountWei, common.HexToAddress(receiver), proof)
	if err != nil {
		return "", "", err
	}

	tag, err := c.getChainTag(ctx)
	if err != nil {
		return "", "", err
	}
	blockRef, err := c.bestBlockRef(ctx)
	if err != nil {
		return "", "", err
	}

	body := &txBody{
		ChainTag:   tag,
		BlockRef:   blockRef,
		Expiration: c.cfg.Expiration,
		Clauses: []Clause{{
			To:    &c.contract,
			Value: new(big.Int),
			Data:  data,
		}},
		GasPriceCoef: 0,
		Gas:          c.cfg.Gas,
		Nonce:        c.nonceFn(),
		Reserved:     reserved{Features: vip191Feature},
	}

	originSig, signingHash, err := body.signOrigin(c.signer)
	if err != nil {
		return "", "", err
	}
	sponsorSig, err := c.requestSponsorSignature(ctx, body, signingHash)
	if err != nil {
		return "", "", err
	}
	return body.seal(originSig, sponsorSig, c.signer.addr)
}

// Broadcast submits a previously signed raw transaction to the node. It is
// safe to call again with the same payload; the node rejects re-inserts of
// a known transaction, which callers treat as success.
func (c *HTTPClient) Broadcast(ctx context.Context, rawTx string) error {
	payload, _ := json.Marshal(map[string]string{"raw": rawTx})
	status, respBody, err := c.post(ctx, c.cfg.NodeURL+"/transactions", payload)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		if strings.Contains(string(respBody), "known tx") {
			return nil
		}
		return fmt.Errorf("chain: broadcast rejected (%d): %s", status, strings.TrimSpace(string(respBody)))
	}
	return nil
}

// GetReceipt fetches the receipt for a transaction id. A transaction not
// yet included returns (nil, nil), which is not an error.
func (c *HTTPClient) GetReceipt(ctx context.Context, txID string) (*Receipt, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.NodeURL+"/transactions/"+txID+"/receipt", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chain: receipt lookup returned %d", resp.StatusCode)
	}
	if strings.TrimSpace(string(raw)) == "null" {
		return nil, nil // still pending inclusion
	}

	var wire struct {
		Reverted bool `json:"reverted"`
		Meta     struct {
			BlockNumber uint64 `json:"blockNumber"`
			BlockID     string `json:"blockID"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("chain: undecodable receipt: %w", err)
	}
	return &Receipt{
		Reverted:    wire.Reverted,
		BlockNumber: wire.Meta.BlockNumber,
		BlockID:     wire.Meta.BlockID,
	}, nil
}

// getChainTag lazily derives the chain tag from the genesis block id. Only
// a successful fetch is cached; a node hiccup on the first call must not pin
// every later signing attempt to the same stale error.
func (c *HTTPClient) getChainTag(ctx context.Context) (byte, error) {
	c.tagMu.Lock()
	defer c.tagMu.Unlock()
	if c.tagKnown {
		return c.chainTag, nil
	}

	var blk struct {
		ID string `json:"id"`
	}
	if err := c.getJSON(ctx, c.cfg.NodeURL+"/blocks/0", &blk); err != nil {
		return 0, err
	}
	id, err := hexutil.Decode(blk.ID)
	if err != nil || len(id) != 32 {
		return 0, fmt.Errorf("chain: bad genesis block id %q", blk.ID)
	}
	c.chainTag = id[31]
	c.tagKnown = true
	return c.chainTag, nil
}

// bestBlockRef returns the first 8 bytes of the best block id, anchoring
// the transaction's validity window.
func (c *HTTPClient) bestBlockRef(ctx context.Context) (uint64, error) {
	var blk struct {
		ID string `json:"id"`
	}
	if err := c.getJSON(ctx, c.cfg.NodeURL+"/blocks/best", &blk); err != nil {
		return 0, err
	}
	id, err := hexutil.Decode(blk.ID)
	if err != nil || len(id) < 8 {
		return 0, fmt.Errorf("chain: bad best block id %q", blk.ID)
	}
	var ref uint64
	for i := 0; i < 8; i++ {
		ref = ref<<8 | uint64(id[i])
	}
	return ref, nil
}

// requestSponsorSignature asks the fee-delegation service to co-sign the
// transaction per VIP-191: the sponsor signs blake2b(signingHash || origin).
func (c *HTTPClient) requestSponsorSignature(ctx context.Context, body *txBody, signingHash common.Hash) ([]byte, error) {
	unsigned, err := rlp.EncodeToBytes(body)
	if err != nil {
		return nil, err
	}
	payload, _ := json.Marshal(map[string]string{
		"raw":    hexutil.Encode(unsigned),
		"origin": c.signer.addr.Hex(),
	})
	status, respBody, err := c.post(ctx, c.cfg.SponsorURL, payload)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("chain: sponsor refused (%d): %s", status, strings.TrimSpace(string(respBody)))
	}

	var wire struct {
		Signature string `json:"signature"`
	}
	if err := json.Unmarshal(respBody, &wire); err != nil {
		return nil, fmt.Errorf("chain: undecodable sponsor response: %w", err)
	}
	sig, err := hexutil.Decode(wire.Signature)
	if err != nil || len(sig) != 65 {
		return nil, errors.New("chain: sponsor returned a malformed signature")
	}

	// Sanity check: the sponsor must have signed the delegation hash for
	// this exact transaction and origin.
	if pub, err := crypto.SigToPub(delegatorHash(signingHash, c.signer.addr).Bytes(), sig); err != nil || pub == nil {
		return nil, errors.New("chain: sponsor signature does not verify")
	}
	return sig, nil
}

func (c *HTTPClient) post(ctx context.Context, url string, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, raw, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("chain: GET %s returned %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
