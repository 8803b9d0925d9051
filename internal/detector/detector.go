// Package detector scores pending transactions to the monitored contract and
// classifies them as front-runs, back-runs, suspicious or normal traffic.
//
// Network lookups (fees, simulation) run unlocked and concurrently. Everything
// that reads or mutates sender state runs under a per-sender lock, so two
// transactions from one sender can never race on counters or on the
// front-run/back-run decision.
package detector

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync/atomic"
	"time"

	botregistry "github.com/avalkov/mev-monitor/internal/bot_registry"
	"github.com/avalkov/mev-monitor/internal/calldata"
	"github.com/avalkov/mev-monitor/internal/clock"
	frontruntracker "github.com/avalkov/mev-monitor/internal/frontrun_tracker"
	"github.com/avalkov/mev-monitor/internal/model"
	profilestore "github.com/avalkov/mev-monitor/internal/profile_store"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	DetectionSource = "Mempool Pattern Engine"
	DetectionEngine = "Heuristic MEV Detection"

	weightKnownBot      = 50
	weightSuspicious    = 25
	weightSimulation    = 20
	weightHighTip       = 40
	weightHighGasPrice  = 30
	weightLowSlippage   = 30
	weightLargeTrade    = 10
	legacyGasMultiple   = 2
	patternScoreMinimum = 30
	normalScoreCeiling  = 15
)

// largeTradeThreshold is 100 tokens with 18 decimals.
var largeTradeThreshold = new(big.Int).Mul(big.NewInt(100), big.NewInt(1e18))

var (
	ErrNotMonitored = errors.New("transaction does not call a monitored function")
	ErrNoFees       = errors.New("fee snapshot unavailable")
)

type Config struct {
	MonitoredContract    string
	GasMultipleThreshold int64
}

func NewEngine(
	cfg Config,
	fees feeOracle,
	sim simulator,
	profiles *profilestore.Store,
	tracker *frontruntracker.Tracker,
	bots *botregistry.Registry,
	clk clock.Clock,
	log zerolog.Logger,
) *Engine {
	e := &Engine{
		contract: strings.ToLower(cfg.MonitoredContract),
		fees:     fees,
		sim:      sim,
		profiles: profiles,
		tracker:  tracker,
		bots:     bots,
		clock:    clk,
		locks:    newKeyedMutex(),
		log:      log.With().Str("component", "detector").Logger(),
	}
	e.gasMultiple.Store(cfg.GasMultipleThreshold)
	return e
}

// Process classifies one transaction. It returns a nil alert when the
// transaction was scored but does not warrant one, ErrNotMonitored when it
// is not addressed to a tracked function, and any other error when a lookup
// failed, in which case no sender state was touched.
func (e *Engine) Process(ctx context.Context, tx model.Transaction) (*model.Alert, error) {
	functionName, ok := e.monitored(tx)
	if !ok {
		return nil, ErrNotMonitored
	}
	isSwap := functionName == calldata.Swap

	fees, simulation, err := e.lookups(ctx, tx)
	if err != nil {
		return nil, err
	}

	var amountIn, amountOutMin *big.Int
	if isSwap {
		if amountIn, amountOutMin, err = calldata.DecodeSwap(tx.Input); err != nil {
			e.log.Debug().Err(err).Str("hash", tx.Hash).Msg("swap arguments not decoded")
		}
	}

	sender := strings.ToLower(tx.From)
	unlock := e.locks.Lock(sender)
	defer unlock()

	now := e.clock.Now()
	prior, txCount := e.profiles.Observe(sender, now)

	s := scoring{factors: []string{}}
	isKnownBot := e.bots.Contains(sender)
	isSuspicious := profilestore.IsSuspicious(prior)

	if isKnownBot {
		s.add(weightKnownBot, "Known MEV bot address")
	}
	if isSuspicious {
		s.add(weightSuspicious, fmt.Sprintf("Suspicious behavior pattern (%d txs, %s%% high gas)",
			txCount, toFixed(profilestore.HighGasRatio(prior)*100, 0)))
	}
	if isSwap && !simulation.Success {
		s.add(weightSimulation, "Transaction simulation failed - possible attack")
	}

	gasInfo, isHighGas := e.scoreGas(&s, tx, fees)
	if isHighGas {
		e.profiles.MarkHighGas(sender)
	}

	if amountOutMin != nil && amountOutMin.Cmp(big.NewInt(1)) <= 0 {
		s.add(weightLowSlippage, "Very low slippage protection (minOut too low)")
	}
	if amountIn != nil && amountIn.Cmp(largeTradeThreshold) > 0 {
		s.add(weightLargeTrade, "Large swap amount (MEV attractive)")
	}

	mevType := e.classify(&s, sender, tx, isHighGas, now)

	if !isSwap && s.score == 0 {
		return nil, nil
	}

	alert := &model.Alert{
		Type:         model.AlertType,
		Hash:         tx.Hash,
		From:         tx.From,
		FunctionName: functionName,
		RiskLevel:    model.RiskLevelFor(s.score),
		RiskScore:    s.score,
		RiskFactors:  s.factors,
		GasInfo:      gasInfo,
		Timestamp:    now.UnixMilli(),
		MevType:      mevType,
		MevBadge:     mevType.Badge(),
		BehavioralInsights: model.BehavioralInsights{
			IsKnownBot:           isKnownBot,
			IsSuspiciousBehavior: isSuspicious,
			AddressTxCount:       txCount,
			SimulationSuccess:    simulation.Success,
			DetectionSource:      DetectionSource,
		},
	}
	if amountIn != nil {
		alert.DecodedData = &model.DecodedData{
			AmountIn:     amountIn.String(),
			AmountOutMin: amountOutMin.String(),
		}
	}

	e.log.Info().
		Str("hash", tx.Hash).
		Str("sender", sender).
		Str("mevType", string(mevType)).
		Str("riskLevel", string(alert.RiskLevel)).
		Int("riskScore", s.score).
		Strs("riskFactors", s.factors).
		Msg("alert")

	return alert, nil
}

func (e *Engine) monitored(tx model.Transaction) (string, bool) {
	if tx.To == nil || !strings.EqualFold(*tx.To, e.contract) {
		return "", false
	}
	return calldata.Function(tx.Input)
}

func (e *Engine) lookups(ctx context.Context, tx model.Transaction) (model.FeeSnapshot, model.SimulationResult, error) {
	var (
		fees       model.FeeSnapshot
		simulation model.SimulationResult
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		if fees, err = e.fees.CurrentFees(groupCtx); err != nil {
			return fmt.Errorf("%w: %s", ErrNoFees, err)
		}
		return nil
	})
	group.Go(func() error {
		simulation = e.sim.Simulate(groupCtx, tx)
		return nil
	})

	return fees, simulation, group.Wait()
}

// scoreGas applies the tip check when both the transaction and the network
// report a priority fee, and the legacy gas price check otherwise.
func (e *Engine) scoreGas(s *scoring, tx model.Transaction, fees model.FeeSnapshot) (string, bool) {
	if positive(tx.MaxPriorityFeePerGas) && positive(fees.MaxPriorityFeePerGas) {
		multiple := formatMultiple(tx.MaxPriorityFeePerGas, fees.MaxPriorityFeePerGas)
		gasInfo := fmt.Sprintf("%s Gwei tip (%sx avg)", formatGwei(tx.MaxPriorityFeePerGas), multiple)

		limit := new(big.Int).Mul(fees.MaxPriorityFeePerGas, big.NewInt(e.gasMultiple.Load()))
		if tx.MaxPriorityFeePerGas.Cmp(limit) > 0 {
			s.add(weightHighTip, fmt.Sprintf("High gas tip: %sx network average", multiple))
			return gasInfo, true
		}
		return gasInfo, false
	}

	if positive(tx.GasPrice) && positive(fees.GasPrice) {
		multiple := formatMultiple(tx.GasPrice, fees.GasPrice)
		gasInfo := fmt.Sprintf("%s Gwei (%sx avg)", formatGwei(tx.GasPrice), multiple)

		limit := new(big.Int).Mul(fees.GasPrice, big.NewInt(legacyGasMultiple))
		if tx.GasPrice.Cmp(limit) > 0 {
			s.add(weightHighGasPrice, fmt.Sprintf("High gas price: %sx network average", multiple))
			return gasInfo, true
		}
		return gasInfo, false
	}

	return "", false
}

// classify must run under the sender lock: it reads and may register the
// sender's tracker entry.
func (e *Engine) classify(s *scoring, sender string, tx model.Transaction, isHighGas bool, now time.Time) model.MevType {
	if isHighGas && s.score >= patternScoreMinimum {
		if _, live := e.tracker.Live(sender, now); live {
			s.prepend("Potential back-run transaction detected")
			return model.BackRun
		}

		e.tracker.Register(sender, model.PendingHighRiskEntry{
			TxHash:            tx.Hash,
			Timestamp:         now,
			RiskScore:         s.score,
			FunctionSignature: calldata.Selector(tx.Input),
		})
		s.prepend("Potential front-run transaction detected")
		return model.FrontRun
	}

	if s.score < normalScoreCeiling {
		return model.Normal
	}
	return model.Suspicious
}

func (e *Engine) GasMultipleThreshold() int64 {
	return e.gasMultiple.Load()
}

func (e *Engine) SetGasMultipleThreshold(multiple int64) error {
	if multiple <= 0 {
		return fmt.Errorf("gas multiple threshold must be positive, got %d", multiple)
	}
	e.gasMultiple.Store(multiple)
	return nil
}

func (e *Engine) Status() model.SystemStatus {
	return model.SystemStatus{
		Type:                model.StatusType,
		Status:              "ONLINE",
		MonitoredContract:   e.contract,
		Timestamp:           e.clock.Now().UnixMilli(),
		TrackedTransactions: e.tracker.Len(),
		EngineStats: model.EngineStats{
			TrackedAddresses:    e.profiles.Len(),
			SuspiciousAddresses: e.profiles.SuspiciousCount(),
			KnownBots:           e.bots.Len(),
			DetectionEngine:     DetectionEngine,
		},
	}
}

type scoring struct {
	score   int
	factors []string
}

func (s *scoring) add(weight int, factor string) {
	s.score += weight
	s.factors = append(s.factors, factor)
}

func (s *scoring) prepend(factor string) {
	s.factors = append([]string{factor}, s.factors...)
}

func positive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}

type feeOracle interface {
	CurrentFees(ctx context.Context) (model.FeeSnapshot, error)
}

type simulator interface {
	Simulate(ctx context.Context, tx model.Transaction) model.SimulationResult
}

type Engine struct {
	contract    string
	gasMultiple atomic.Int64
	fees        feeOracle
	sim         simulator
	profiles    *profilestore.Store
	tracker     *frontruntracker.Tracker
	bots        *botregistry.Registry
	clock       clock.Clock
	locks       *keyedMutex
	log         zerolog.Logger
}
