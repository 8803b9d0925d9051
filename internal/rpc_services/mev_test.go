package rpcservices

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/avalkov/mev-monitor/internal/authenticator"
	botregistry "github.com/avalkov/mev-monitor/internal/bot_registry"
	"github.com/avalkov/mev-monitor/internal/model"
	rpccodecs "github.com/avalkov/mev-monitor/internal/rpc_codecs"
	"github.com/avalkov/mev-monitor/internal/storage/memory"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/umbracle/fastrlp"
)

const bot = "0x9999999999999999999999999999999999999999"

type fakeEngine struct {
	mu       sync.Mutex
	multiple int64
}

func (f *fakeEngine) Status() model.SystemStatus {
	return model.SystemStatus{Type: model.StatusType, Status: "ONLINE", TrackedTransactions: 3}
}

func (f *fakeEngine) GasMultipleThreshold() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.multiple
}

func (f *fakeEngine) SetGasMultipleThreshold(multiple int64) error {
	if multiple <= 0 {
		return assert.AnError
	}
	f.mu.Lock()
	f.multiple = multiple
	f.mu.Unlock()
	return nil
}

type analyzerMock struct {
	mock.Mock
}

func (m *analyzerMock) Detect(ctx context.Context, blockNumber uint64, victimHash string) model.SandwichResult {
	return m.Called(blockNumber, victimHash).Get(0).(model.SandwichResult)
}

func (m *analyzerMock) DetectByHash(ctx context.Context, victimHash string) model.SandwichResult {
	return m.Called(victimHash).Get(0).(model.SandwichResult)
}

type harness struct {
	server   *rpc.Server
	engine   *fakeEngine
	analyzer *analyzerMock
	archive  *memory.Storage
	bots     *botregistry.Registry
	auth     *authenticator.Authenticator
}

func newHarness(t *testing.T, secret string) *harness {
	t.Helper()

	h := &harness{
		server:   rpc.NewServer(),
		engine:   &fakeEngine{multiple: 5},
		analyzer: &analyzerMock{},
		archive:  memory.NewStorage(100),
		bots:     botregistry.NewRegistry(),
		auth:     authenticator.NewAuthenticator(secret),
	}
	h.server.RegisterCodec(rpccodecs.NewCustomRequestsCodec(), "application/json")
	require.NoError(t, h.server.RegisterService(NewMevService(h.engine, h.analyzer, h.archive, h.bots, h.auth), ""))
	return h
}

func (h *harness) call(t *testing.T, method string, params interface{}, header http.Header) map[string]interface{} {
	t.Helper()

	body, err := json.Marshal(map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": method, "params": params})
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(string(body)))
	r.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		r.Header[k] = v
	}
	w := httptest.NewRecorder()
	h.server.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	return decoded
}

func result(t *testing.T, res map[string]interface{}) map[string]interface{} {
	t.Helper()
	require.Nil(t, res["error"], res["error"])
	return res["result"].(map[string]interface{})
}

func errorCode(t *testing.T, res map[string]interface{}) float64 {
	t.Helper()
	require.NotNil(t, res["error"])
	return res["error"].(map[string]interface{})["code"].(float64)
}

func TestGetStatus(t *testing.T) {
	h := newHarness(t, "")

	status := result(t, h.call(t, "mev_getStatus", []interface{}{}, nil))
	assert.Equal(t, "SYSTEM_STATUS", status["type"])
	assert.Equal(t, float64(3), status["trackedTransactions"])
}

func TestDetectSandwich(t *testing.T) {
	h := newHarness(t, "")
	victim := common.HexToHash("0x03").Hex()
	attacker := "0xaaaa"
	h.analyzer.On("Detect", uint64(100), victim).
		Return(model.SandwichResult{IsSandwich: true, BlockNumber: 100, VictimTx: victim, Attacker: &attacker}).Once()

	res := result(t, h.call(t, "mev_detectSandwich", map[string]interface{}{"blockNumber": 100, "victimTx": victim}, nil))
	assert.Equal(t, true, res["isSandwich"])
	assert.Equal(t, attacker, res["attacker"])

	assert.Equal(t, float64(rpccodecs.CodeInvalidParams),
		errorCode(t, h.call(t, "mev_detectSandwich", map[string]interface{}{"blockNumber": 1, "victimTx": "0x12"}, nil)))

	h.analyzer.AssertExpectations(t)
}

func TestDetectSandwichByHash(t *testing.T) {
	h := newHarness(t, "")
	victim := common.HexToHash("0x04").Hex()
	h.analyzer.On("DetectByHash", victim).Return(model.SandwichResult{VictimTx: victim}).Once()

	res := result(t, h.call(t, "mev_detectSandwichByHash", []interface{}{map[string]string{"hash": victim}}, nil))
	assert.Equal(t, false, res["isSandwich"])
	assert.Equal(t, victim, res["victimTx"])
}

func encodeHashList(values ...func(a *fastrlp.Arena) *fastrlp.Value) string {
	arena := &fastrlp.Arena{}
	list := arena.NewArray()
	for _, value := range values {
		list.Set(value(arena))
	}
	return hex.EncodeToString(list.MarshalTo(nil))
}

func rawHash(hash common.Hash) func(a *fastrlp.Arena) *fastrlp.Value {
	return func(a *fastrlp.Arena) *fastrlp.Value { return a.NewBytes(hash.Bytes()) }
}

func hexHash(hash common.Hash) func(a *fastrlp.Arena) *fastrlp.Value {
	return func(a *fastrlp.Arena) *fastrlp.Value { return a.NewString(hash.Hex()) }
}

func victimTxs(t *testing.T, res map[string]interface{}) []string {
	t.Helper()

	results := result(t, res)["results"].([]interface{})
	victims := make([]string, 0, len(results))
	for _, r := range results {
		victims = append(victims, r.(map[string]interface{})["victimTx"].(string))
	}
	return victims
}

func TestDetectSandwiches_RawHashList(t *testing.T) {
	h := newHarness(t, "")
	hashes := []common.Hash{common.HexToHash("0x0a"), common.HexToHash("0x0b"), common.HexToHash("0x0c")}
	for _, hash := range hashes {
		h.analyzer.On("DetectByHash", hash.Hex()).Return(model.SandwichResult{VictimTx: hash.Hex()}).Once()
	}

	encoded := encodeHashList(rawHash(hashes[0]), rawHash(hashes[1]), rawHash(hashes[2]))
	res := h.call(t, "mev_detectSandwiches", []string{"0x" + encoded}, nil)

	assert.Equal(t, []string{hashes[0].Hex(), hashes[1].Hex(), hashes[2].Hex()}, victimTxs(t, res))
	h.analyzer.AssertExpectations(t)
}

func TestDetectSandwiches_HexStringList(t *testing.T) {
	h := newHarness(t, "")
	first := common.HexToHash("0x01")
	second := common.HexToHash("0x02")
	h.analyzer.On("DetectByHash", first.Hex()).Return(model.SandwichResult{VictimTx: first.Hex(), IsSandwich: true}).Once()
	h.analyzer.On("DetectByHash", second.Hex()).Return(model.SandwichResult{VictimTx: second.Hex()}).Once()

	res := h.call(t, "mev_detectSandwiches", []string{encodeHashList(hexHash(first), hexHash(second))}, nil)
	assert.Equal(t, []string{first.Hex(), second.Hex()}, victimTxs(t, res))

	results := res["result"].(map[string]interface{})["results"].([]interface{})
	assert.Equal(t, true, results[0].(map[string]interface{})["isSandwich"])
	assert.Equal(t, false, results[1].(map[string]interface{})["isSandwich"])
	h.analyzer.AssertExpectations(t)
}

func TestDetectSandwiches_MixedList(t *testing.T) {
	h := newHarness(t, "")
	first := common.HexToHash("0x0d")
	second := common.HexToHash("0x0e")
	h.analyzer.On("DetectByHash", first.Hex()).Return(model.SandwichResult{VictimTx: first.Hex()}).Once()
	h.analyzer.On("DetectByHash", second.Hex()).Return(model.SandwichResult{VictimTx: second.Hex()}).Once()

	res := h.call(t, "mev_detectSandwiches", []string{encodeHashList(rawHash(first), hexHash(second))}, nil)
	assert.Equal(t, []string{first.Hex(), second.Hex()}, victimTxs(t, res))
	h.analyzer.AssertExpectations(t)
}

func TestDetectSandwiches_InvalidParams(t *testing.T) {
	h := newHarness(t, "")

	for name, params := range map[string][]string{
		"not hex":       {"zz"},
		"missing":       {},
		"not rlp":       {"0xff"},
		"short element": {encodeHashList(func(a *fastrlp.Arena) *fastrlp.Value { return a.NewString("0x1234") })},
	} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, float64(rpccodecs.CodeInvalidParams), errorCode(t, h.call(t, "mev_detectSandwiches", params, nil)))
		})
	}
	h.analyzer.AssertNotCalled(t, "DetectByHash", mock.Anything)
}

func TestGetAlerts(t *testing.T) {
	h := newHarness(t, "")
	for i, sender := range []string{"0xaaa", "0xbbb", "0xaaa"} {
		archived, err := model.NewArchivedAlert(model.Alert{
			Type: model.AlertType,
			Hash: fmt.Sprintf("0x%064x", i+1),
			From: sender,
		}, time.Unix(int64(i), 0))
		require.NoError(t, err)
		require.NoError(t, h.archive.StoreAlert(context.Background(), archived))
	}

	res := result(t, h.call(t, "mev_getAlerts", map[string]interface{}{"sender": "0xAAA"}, nil))
	alerts := res["alerts"].([]interface{})
	require.Len(t, alerts, 2)
	assert.Equal(t, "MEV_ALERT", alerts[0].(map[string]interface{})["type"])

	res = result(t, h.call(t, "mev_getAlerts", map[string]interface{}{"limit": 1}, nil))
	assert.Len(t, res["alerts"].([]interface{}), 1)
}

func TestGetAlert(t *testing.T) {
	h := newHarness(t, "")
	hash := common.HexToHash("0x0f").Hex()
	archived, err := model.NewArchivedAlert(model.Alert{
		Type:      model.AlertType,
		Hash:      hash,
		From:      "0xaaa",
		MevType:   model.FrontRun,
		RiskScore: 70,
	}, time.Unix(1, 0))
	require.NoError(t, err)
	require.NoError(t, h.archive.StoreAlert(context.Background(), archived))

	res := result(t, h.call(t, "mev_getAlert", map[string]string{"hash": hash}, nil))
	assert.Equal(t, hash, res["hash"])
	assert.Equal(t, "FRONT-RUN", res["mevType"])
	assert.Equal(t, float64(70), res["riskScore"])

	assert.Equal(t, float64(rpccodecs.CodeServerError),
		errorCode(t, h.call(t, "mev_getAlert", map[string]string{"hash": common.HexToHash("0x10").Hex()}, nil)))
	assert.Equal(t, float64(rpccodecs.CodeInvalidParams),
		errorCode(t, h.call(t, "mev_getAlert", map[string]string{"hash": "0x10"}, nil)))
}

func TestAdminMethods_Open(t *testing.T) {
	h := newHarness(t, "")

	res := result(t, h.call(t, "mev_addKnownBot", map[string]string{"address": bot}, nil))
	assert.Equal(t, true, res["changed"])
	assert.Equal(t, float64(1), res["knownBots"])
	assert.True(t, h.bots.Contains(bot))

	res = result(t, h.call(t, "mev_addKnownBot", map[string]string{"address": bot}, nil))
	assert.Equal(t, false, res["changed"])

	assert.Equal(t, float64(rpccodecs.CodeInvalidParams),
		errorCode(t, h.call(t, "mev_addKnownBot", map[string]string{"address": "nope"}, nil)))

	res = result(t, h.call(t, "mev_removeKnownBot", map[string]string{"address": bot}, nil))
	assert.Equal(t, true, res["changed"])
	assert.False(t, h.bots.Contains(bot))

	res = result(t, h.call(t, "mev_setGasThreshold", map[string]int{"multiple": 8}, nil))
	assert.Equal(t, float64(8), res["multiple"])
	assert.Equal(t, int64(8), h.engine.GasMultipleThreshold())

	assert.Equal(t, float64(rpccodecs.CodeInvalidParams),
		errorCode(t, h.call(t, "mev_setGasThreshold", map[string]int{"multiple": 0}, nil)))
}

func TestAdminMethods_RequireAdminToken(t *testing.T) {
	h := newHarness(t, "s3cret")

	assert.Equal(t, float64(rpccodecs.CodeUnauthorized),
		errorCode(t, h.call(t, "mev_addKnownBot", map[string]string{"address": bot}, nil)))

	viewer, err := h.auth.Issue("dashboard", "viewer", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, float64(rpccodecs.CodeUnauthorized),
		errorCode(t, h.call(t, "mev_addKnownBot", map[string]string{"address": bot, "token": viewer}, nil)))

	admin, err := h.auth.Issue("ops", authenticator.RoleAdmin, time.Hour)
	require.NoError(t, err)
	res := result(t, h.call(t, "mev_addKnownBot", map[string]string{"address": bot, "token": admin}, nil))
	assert.Equal(t, true, res["changed"])

	header := http.Header{"Authorization": []string{"Bearer " + admin}}
	res = result(t, h.call(t, "mev_setGasThreshold", map[string]int{"multiple": 3}, header))
	assert.Equal(t, float64(3), res["multiple"])
}
