package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

const (
	testOriginKey  = "7582be841ca040aa940fff6c05773129e135623e41acce3e0b8ba520dc1ae26a"
	testSponsorKey = "dce1443bd2ef0c2631adc1c67e5c93f13dc23a41c18b536effbbdcbcdb96fb65"
	testContract   = "0x5F8f86B8D0Fa93cdaE20936d150175dF0205fB38"
	testAppID      = "0x0000000000000000000000000000000000000000000000000000000000abcdef"
)

// newTestNode serves the minimal VeChain REST surface plus a VIP-191
// sponsor endpoint that co-signs whatever transaction it receives.
func newTestNode(t *testing.T) *httptest.Server {
	t.Helper()
	sponsorKey, err := crypto.HexToECDSA(testSponsorKey)
	if err != nil {
		t.Fatalf("sponsor key: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/blocks/0", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"id": "0x000000000b2bce3c70bc649a02749e8687721b09ed2e15997f466536b20bb127",
		})
	})
	mux.HandleFunc("/blocks/best", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"id": "0x00d9a1a1d37a0059fbd1a4b2c05b4a7d0e0b19a1b1c1d1e1f101112131415161",
		})
	})
	mux.HandleFunc("/sponsor", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Raw    string `json:"raw"`
			Origin string `json:"origin"`
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		rawBytes, err := hexutil.Decode(req.Raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var unsigned txBody
		if err := rlp.DecodeBytes(rawBytes, &unsigned); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		hash, err := unsigned.signingHash()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		origin, err := crypto.HexToECDSA(testOriginKey)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		sig, err := crypto.Sign(delegatorHash(hash, crypto.PubkeyToAddress(origin.PublicKey)).Bytes(), sponsorKey)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"signature": hexutil.Encode(sig)})
	})
	mux.HandleFunc("/transactions", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "0xabc"})
	})
	mux.HandleFunc("/transactions/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/pending/receipt") {
			w.Write([]byte("null"))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"reverted": strings.Contains(r.URL.Path, "deadbeef"),
			"meta":     map[string]any{"blockNumber": 42, "blockID": "0x2a"},
		})
	})
	return httptest.NewServer(mux)
}

func newTestClient(t *testing.T, srv *httptest.Server) *HTTPClient {
	t.Helper()
	c, err := NewHTTP(Config{
		NodeURL:         srv.URL,
		SponsorURL:      srv.URL + "/sponsor",
		OriginKeyHex:    testOriginKey,
		ContractAddress: testContract,
		AppID:           testAppID,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	c.nonceFn = func() uint64 { return 12345 }
	return c
}

func TestSignDistribution_ProducesValidDelegatedTx(t *testing.T) {
	srv := newTestNode(t)
	defer srv.Close()
	c := newTestClient(t, srv)

	txID, rawTx, err := c.SignDistribution(context.Background(),
		"0x0000000000000000000000000000000000000042", big.NewInt(1_500_000), "claim:abc")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if len(txID) != 66 || !strings.HasPrefix(txID, "0x") {
		t.Fatalf("unexpected tx id %q", txID)
	}

	rawBytes, err := hexutil.Decode(rawTx)
	if err != nil {
		t.Fatalf("raw tx not hex: %v", err)
	}
	var decoded signedTx
	if err := rlp.DecodeBytes(rawBytes, &decoded); err != nil {
		t.Fatalf("raw tx not decodable: %v", err)
	}
	if len(decoded.Signature) != 130 {
		t.Fatalf("expected origin+sponsor signature (130 bytes), got %d", len(decoded.Signature))
	}
	if decoded.Reserved.Features != vip191Feature {
		t.Fatal("delegation feature bit not set")
	}
	if len(decoded.Clauses) != 1 || decoded.Clauses[0].To.Hex() != testContract {
		t.Fatalf("unexpected clauses: %+v", decoded.Clauses)
	}

	// The origin signature must recover to the configured origin address.
	body := txBody{
		ChainTag: decoded.ChainTag, BlockRef: decoded.BlockRef, Expiration: decoded.Expiration,
		Clauses: decoded.Clauses, GasPriceCoef: decoded.GasPriceCoef, Gas: decoded.Gas,
		DependsOn: decoded.DependsOn, Nonce: decoded.Nonce, Reserved: decoded.Reserved,
	}
	hash, err := body.signingHash()
	if err != nil {
		t.Fatalf("signing hash: %v", err)
	}
	pub, err := crypto.SigToPub(hash.Bytes(), decoded.Signature[:65])
	if err != nil {
		t.Fatalf("recover origin: %v", err)
	}
	if got := crypto.PubkeyToAddress(*pub).Hex(); got != c.Origin() {
		t.Fatalf("origin mismatch: %s vs %s", got, c.Origin())
	}
	// And the tx id is derived from the signing hash + origin.
	if want := txID; blake2b256(hash.Bytes(), crypto.PubkeyToAddress(*pub).Bytes()).Hex() != want {
		t.Fatal("tx id does not match blake2b(signingHash, origin)")
	}
}

func TestSignDistribution_Deterministic(t *testing.T) {
	srv := newTestNode(t)
	defer srv.Close()
	c := newTestClient(t, srv)

	id1, raw1, err := c.SignDistribution(context.Background(),
		"0x0000000000000000000000000000000000000042", big.NewInt(7), "p")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	id2, raw2, err := c.SignDistribution(context.Background(),
		"0x0000000000000000000000000000000000000042", big.NewInt(7), "p")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if id1 != id2 || raw1 != raw2 {
		t.Fatal("same inputs with a fixed nonce must produce identical transactions")
	}
}

func TestSignDistribution_InvalidInputs(t *testing.T) {
	srv := newTestNode(t)
	defer srv.Close()
	c := newTestClient(t, srv)

	if _, _, err := c.SignDistribution(context.Background(), "not-an-address", big.NewInt(1), "p"); err == nil {
		t.Fatal("expected error for bad receiver")
	}
	if _, _, err := c.SignDistribution(context.Background(), testContract, big.NewInt(0), "p"); err == nil {
		t.Fatal("expected error for zero amount")
	}
	if _, _, err := c.SignDistribution(context.Background(), testContract, nil, "p"); err == nil {
		t.Fatal("expected error for nil amount")
	}
}

func TestGetChainTag_RetriesAfterNodeFailure(t *testing.T) {
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/blocks/0", func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "node starting", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"id": "0x000000000b2bce3c70bc649a02749e8687721b09ed2e15997f466536b20bb127",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	c := newTestClient(t, srv)
	ctx := context.Background()

	if _, err := c.getChainTag(ctx); err == nil {
		t.Fatal("expected error while the node is down")
	}
	// A transient node failure must not stick; the next call refetches.
	tag, err := c.getChainTag(ctx)
	if err != nil {
		t.Fatalf("second attempt: %v", err)
	}
	if tag != 0x27 {
		t.Fatalf("tag = %#x, want 0x27", tag)
	}
	// The successful value is cached; no third fetch.
	if _, err := c.getChainTag(ctx); err != nil {
		t.Fatalf("cached lookup: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("genesis fetches = %d, want 2", got)
	}
}

func TestPackDistributeReward_Selector(t *testing.T) {
	var appID [32]byte
	data, err := packDistributeReward(appID, big.NewInt(1),
		[20]byte{0x42}, "proof")
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	want := crypto.Keccak256([]byte("distributeReward(bytes32,uint256,address,string)"))[:4]
	if !bytes.Equal(data[:4], want) {
		t.Fatalf("selector mismatch: %x vs %x", data[:4], want)
	}
}

func TestGetReceipt_States(t *testing.T) {
	srv := newTestNode(t)
	defer srv.Close()
	c := newTestClient(t, srv)
	ctx := context.Background()

	// Pending inclusion: nil receipt, no error.
	rec, err := c.GetReceipt(ctx, "pending")
	if err != nil || rec != nil {
		t.Fatalf("pending: rec=%v err=%v", rec, err)
	}

	rec, err = c.GetReceipt(ctx, "0x1234")
	if err != nil {
		t.Fatalf("success receipt: %v", err)
	}
	if rec == nil || rec.Reverted || rec.BlockNumber != 42 {
		t.Fatalf("unexpected receipt %+v", rec)
	}

	rec, err = c.GetReceipt(ctx, "0xdeadbeef")
	if err != nil || rec == nil || !rec.Reverted {
		t.Fatalf("reverted receipt: rec=%+v err=%v", rec, err)
	}
}

func TestBroadcast(t *testing.T) {
	srv := newTestNode(t)
	defer srv.Close()
	c := newTestClient(t, srv)

	if err := c.Broadcast(context.Background(), "0xf86b"); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
}

func TestMockChain_Deterministic(t *testing.T) {
	m := Mock{}
	ctx := context.Background()

	id1, raw1, err := m.SignDistribution(ctx, "0x0000000000000000000000000000000000000042", big.NewInt(5), "claim:x")
	if err != nil {
		t.Fatalf("mock sign: %v", err)
	}
	id2, raw2, _ := m.SignDistribution(ctx, "0x0000000000000000000000000000000000000042", big.NewInt(5), "claim:x")
	if id1 != id2 || raw1 != raw2 {
		t.Fatal("mock must be deterministic for identical inputs")
	}
	id3, _, _ := m.SignDistribution(ctx, "0x0000000000000000000000000000000000000042", big.NewInt(6), "claim:x")
	if id1 == id3 {
		t.Fatal("different amounts must produce different mock tx ids")
	}

	if err := m.Broadcast(ctx, raw1); err != nil {
		t.Fatalf("mock broadcast: %v", err)
	}
	rec, err := m.GetReceipt(ctx, id1)
	if err != nil || rec == nil || rec.Reverted {
		t.Fatalf("mock receipt: rec=%+v err=%v", rec, err)
	}
}
