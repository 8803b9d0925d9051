// Package rpcservices exposes the monitor over JSON-RPC under the mev_
// namespace.
package rpcservices

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/avalkov/mev-monitor/internal/authenticator"
	"github.com/avalkov/mev-monitor/internal/model"
	rpccodecs "github.com/avalkov/mev-monitor/internal/rpc_codecs"
	"github.com/ethereum/go-ethereum/common"
	"github.com/umbracle/fastrlp"
	"golang.org/x/sync/errgroup"
)

const (
	maxBatchHashes    = 64
	batchConcurrency  = 8
	defaultAlertLimit = 50
	maxAlertLimit     = 1000
)

func NewMevService(engine engine, analyzer analyzer, archive archive, bots bots, auth admin) *Mev {
	return &Mev{
		engine:   engine,
		analyzer: analyzer,
		archive:  archive,
		bots:     bots,
		auth:     auth,
	}
}

func (m *Mev) GetStatus(r *http.Request, _ *NoArgs, reply *model.SystemStatus) error {
	*reply = m.engine.Status()
	return nil
}

func (m *Mev) DetectSandwich(r *http.Request, args *DetectSandwichArgs, reply *model.SandwichResult) error {
	if !isHash(args.VictimTx) {
		return rpccodecs.NewError(rpccodecs.CodeInvalidParams, "invalid victim tx hash: %q", args.VictimTx)
	}
	*reply = m.analyzer.Detect(r.Context(), args.BlockNumber, args.VictimTx)
	return nil
}

func (m *Mev) DetectSandwichByHash(r *http.Request, args *HashArgs, reply *model.SandwichResult) error {
	if !isHash(args.Hash) {
		return rpccodecs.NewError(rpccodecs.CodeInvalidParams, "invalid tx hash: %q", args.Hash)
	}
	*reply = m.analyzer.DetectByHash(r.Context(), args.Hash)
	return nil
}

// DetectSandwiches takes a hex encoded RLP list of victim transaction hashes
// and checks each through its receipt.
func (m *Mev) DetectSandwiches(r *http.Request, args *[]string, reply *DetectSandwichesReply) error {
	if len(*args) == 0 {
		return rpccodecs.NewError(rpccodecs.CodeInvalidParams, "missing tx hashes")
	}

	hashes, err := parseHashList((*args)[0])
	if err != nil {
		return rpccodecs.NewError(rpccodecs.CodeInvalidParams, "%s", err)
	}

	results := make([]model.SandwichResult, len(hashes))
	group, ctx := errgroup.WithContext(r.Context())
	group.SetLimit(batchConcurrency)
	for i, hash := range hashes {
		group.Go(func() error {
			results[i] = m.analyzer.DetectByHash(ctx, hash)
			return nil
		})
	}
	_ = group.Wait()

	reply.Results = results
	return nil
}

func (m *Mev) GetAlerts(r *http.Request, args *GetAlertsArgs, reply *GetAlertsReply) error {
	limit := args.Limit
	if limit <= 0 {
		limit = defaultAlertLimit
	}
	if limit > maxAlertLimit {
		limit = maxAlertLimit
	}

	archived, err := m.archive.GetAlerts(r.Context(), args.Sender, limit)
	if err != nil {
		return fmt.Errorf("load alerts: %w", err)
	}

	reply.Alerts = make([]model.Alert, 0, len(archived))
	for _, a := range archived {
		alert, err := a.Alert()
		if err != nil {
			return fmt.Errorf("decode alert %s: %w", a.Hash, err)
		}
		reply.Alerts = append(reply.Alerts, alert)
	}
	return nil
}

func (m *Mev) GetAlert(r *http.Request, args *HashArgs, reply *model.Alert) error {
	if !isHash(args.Hash) {
		return rpccodecs.NewError(rpccodecs.CodeInvalidParams, "invalid tx hash: %q", args.Hash)
	}

	archived, err := m.archive.GetAlert(r.Context(), args.Hash)
	if err != nil {
		if errors.Is(err, model.ErrNotArchived) {
			return rpccodecs.NewError(rpccodecs.CodeServerError, "alert %s not found", args.Hash)
		}
		return fmt.Errorf("load alert %s: %w", args.Hash, err)
	}

	alert, err := archived.Alert()
	if err != nil {
		return fmt.Errorf("decode alert %s: %w", args.Hash, err)
	}
	*reply = alert
	return nil
}

func (m *Mev) AddKnownBot(r *http.Request, args *BotArgs, reply *BotReply) error {
	if err := m.authorize(r, args.Token); err != nil {
		return err
	}
	if !common.IsHexAddress(args.Address) {
		return rpccodecs.NewError(rpccodecs.CodeInvalidParams, "invalid address: %q", args.Address)
	}

	reply.Changed = m.bots.Add(args.Address)
	reply.KnownBots = m.bots.Len()
	return nil
}

func (m *Mev) RemoveKnownBot(r *http.Request, args *BotArgs, reply *BotReply) error {
	if err := m.authorize(r, args.Token); err != nil {
		return err
	}

	reply.Changed = m.bots.Remove(args.Address)
	reply.KnownBots = m.bots.Len()
	return nil
}

func (m *Mev) SetGasThreshold(r *http.Request, args *GasThresholdArgs, reply *GasThresholdReply) error {
	if err := m.authorize(r, args.Token); err != nil {
		return err
	}
	if err := m.engine.SetGasMultipleThreshold(args.Multiple); err != nil {
		return rpccodecs.NewError(rpccodecs.CodeInvalidParams, "%s", err)
	}

	reply.Multiple = m.engine.GasMultipleThreshold()
	return nil
}

func (m *Mev) authorize(r *http.Request, token string) error {
	if token == "" {
		token = authenticator.TokenFromRequest(r)
	}
	if err := m.auth.VerifyAdmin(token); err != nil {
		if errors.Is(err, authenticator.ErrInvalidToken) {
			return rpccodecs.NewError(rpccodecs.CodeUnauthorized, "%s", err)
		}
		return err
	}
	return nil
}

func parseHashList(encoded string) ([]string, error) {
	raw, err := unhex(encoded)
	if err != nil {
		return nil, err
	}

	parser := &fastrlp.Parser{}
	list, err := parser.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid rlp: %w", err)
	}
	if list.Elems() > maxBatchHashes {
		return nil, fmt.Errorf("too many hashes: %d > %d", list.Elems(), maxBatchHashes)
	}

	hashes := []string{}
	for i := 0; i < list.Elems(); i++ {
		value := list.Get(i)

		if b, err := value.Bytes(); err == nil && len(b) == common.HashLength {
			hashes = append(hashes, common.BytesToHash(b).Hex())
			continue
		}

		hash, err := value.GetString()
		if err != nil {
			return nil, err
		}
		if !isHash(hash) {
			return nil, fmt.Errorf("invalid tx hash at %d: %q", i, hash)
		}
		hashes = append(hashes, hash)
	}
	return hashes, nil
}

func unhex(str string) ([]byte, error) {
	str = strings.TrimPrefix(strings.ReplaceAll(str, " ", ""), "0x")
	b, err := hex.DecodeString(str)
	if err != nil {
		return nil, fmt.Errorf("invalid hex string: %q", str)
	}
	return b, nil
}

func isHash(hash string) bool {
	b, err := unhex(hash)
	return err == nil && len(b) == common.HashLength && strings.HasPrefix(hash, "0x")
}

type NoArgs struct{}

type DetectSandwichArgs struct {
	BlockNumber uint64 `json:"blockNumber"`
	VictimTx    string `json:"victimTx"`
}

type HashArgs struct {
	Hash string `json:"hash"`
}

type DetectSandwichesReply struct {
	Results []model.SandwichResult `json:"results"`
}

type GetAlertsArgs struct {
	Sender string `json:"sender"`
	Limit  int    `json:"limit"`
}

type GetAlertsReply struct {
	Alerts []model.Alert `json:"alerts"`
}

type BotArgs struct {
	Address string `json:"address"`
	Token   string `json:"token"`
}

type BotReply struct {
	Changed   bool `json:"changed"`
	KnownBots int  `json:"knownBots"`
}

type GasThresholdArgs struct {
	Multiple int64  `json:"multiple"`
	Token    string `json:"token"`
}

type GasThresholdReply struct {
	Multiple int64 `json:"multiple"`
}

type engine interface {
	Status() model.SystemStatus
	GasMultipleThreshold() int64
	SetGasMultipleThreshold(multiple int64) error
}

type analyzer interface {
	Detect(ctx context.Context, blockNumber uint64, victimHash string) model.SandwichResult
	DetectByHash(ctx context.Context, victimHash string) model.SandwichResult
}

type archive interface {
	GetAlert(ctx context.Context, hash string) (model.ArchivedAlert, error)
	GetAlerts(ctx context.Context, sender string, limit int) ([]model.ArchivedAlert, error)
}

type bots interface {
	Add(address string) bool
	Remove(address string) bool
	Len() int
}

type admin interface {
	VerifyAdmin(token string) error
}

type Mev struct {
	engine   engine
	analyzer analyzer
	archive  archive
	bots     bots
	auth     admin
}
