package model

import (
	"encoding/json"
	"errors"
	"math/big"
	"time"
)

var ErrNotArchived = errors.New("alert not archived")

type MevType string

const (
	FrontRun   MevType = "FRONT-RUN"
	BackRun    MevType = "BACK-RUN"
	Normal     MevType = "NORMAL"
	Suspicious MevType = "SUSPICIOUS"
)

// Badge is the dashboard label shown next to the pattern.
func (t MevType) Badge() string {
	switch t {
	case FrontRun:
		return "FRONT-RUN ATTEMPT"
	case BackRun:
		return "BACK-RUN ATTEMPT"
	case Normal:
		return "NORMAL TRANSACTION"
	default:
		return "SUSPICIOUS ACTIVITY"
	}
}

type RiskLevel string

const (
	Low      RiskLevel = "LOW"
	Medium   RiskLevel = "MEDIUM"
	High     RiskLevel = "HIGH"
	Critical RiskLevel = "CRITICAL"
)

func RiskLevelFor(score int) RiskLevel {
	switch {
	case score >= 60:
		return Critical
	case score >= 30:
		return High
	case score >= 15:
		return Medium
	default:
		return Low
	}
}

// Transaction is an immutable snapshot of a pending or mined transaction.
// MaxFeePerGas and MaxPriorityFeePerGas are nil for legacy transactions.
type Transaction struct {
	Hash                 string
	From                 string
	To                   *string
	Input                []byte
	Value                *big.Int
	GasPrice             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	ObservedAt           time.Time
}

type FeeSnapshot struct {
	GasPrice             *big.Int
	MaxPriorityFeePerGas *big.Int
}

type SimulationResult struct {
	Success bool
	Result  []byte
	Error   string
}

type AddressProfile struct {
	Address      string
	TxCount      int
	HighGasCount int
	FirstSeen    time.Time
	LastSeen     time.Time
}

type PendingHighRiskEntry struct {
	TxHash            string
	Timestamp         time.Time
	RiskScore         int
	FunctionSignature string
}

const (
	AlertType   = "MEV_ALERT"
	StatusType  = "SYSTEM_STATUS"
	WelcomeType = "WELCOME"
)

type DecodedData struct {
	AmountIn     string `json:"amountIn"`
	AmountOutMin string `json:"amountOutMin"`
}

type BehavioralInsights struct {
	IsKnownBot           bool   `json:"isKnownBot"`
	IsSuspiciousBehavior bool   `json:"isSuspiciousBehavior"`
	AddressTxCount       int    `json:"addressTxCount"`
	SimulationSuccess    bool   `json:"simulationSuccess"`
	DetectionSource      string `json:"detectionSource"`
}

type Alert struct {
	Type               string             `json:"type"`
	Hash               string             `json:"hash"`
	From               string             `json:"from"`
	FunctionName       string             `json:"functionName"`
	RiskLevel          RiskLevel          `json:"riskLevel"`
	RiskScore          int                `json:"riskScore"`
	RiskFactors        []string           `json:"riskFactors"`
	GasInfo            string             `json:"gasInfo"`
	Timestamp          int64              `json:"timestamp"`
	DecodedData        *DecodedData       `json:"decodedData"`
	MevType            MevType            `json:"mevType"`
	MevBadge           string             `json:"mevBadge"`
	BehavioralInsights BehavioralInsights `json:"behavioralInsights"`
}

type EngineStats struct {
	TrackedAddresses    int    `json:"trackedAddresses"`
	SuspiciousAddresses int    `json:"suspiciousAddresses"`
	KnownBots           int    `json:"knownBots"`
	DetectionEngine     string `json:"detectionEngine"`
}

type SystemStatus struct {
	Type                string      `json:"type"`
	Status              string      `json:"status"`
	MonitoredContract   string      `json:"monitoredContract"`
	Timestamp           int64       `json:"timestamp"`
	TrackedTransactions int         `json:"trackedTransactions"`
	EngineStats         EngineStats `json:"engineStats"`
}

type Welcome struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type SandwichResult struct {
	IsSandwich  bool    `json:"isSandwich"`
	BlockNumber uint64  `json:"blockNumber"`
	VictimTx    string  `json:"victimTx"`
	Attacker    *string `json:"attacker"`
	FrontRunTx  *string `json:"frontRunTx"`
	BackRunTx   *string `json:"backRunTx"`
}

// ArchivedAlert is an emitted alert as kept by the alert archive.
type ArchivedAlert struct {
	Hash      string    `json:"hash" db:"transaction_hash"`
	Sender    string    `json:"sender" db:"sender"`
	MevType   MevType   `json:"mevType" db:"mev_type"`
	RiskScore int       `json:"riskScore" db:"risk_score"`
	Payload   []byte    `json:"-" db:"payload"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

func NewArchivedAlert(alert Alert, createdAt time.Time) (ArchivedAlert, error) {
	payload, err := json.Marshal(alert)
	if err != nil {
		return ArchivedAlert{}, err
	}
	return ArchivedAlert{
		Hash:      alert.Hash,
		Sender:    alert.From,
		MevType:   alert.MevType,
		RiskScore: alert.RiskScore,
		Payload:   payload,
		CreatedAt: createdAt,
	}, nil
}

// Alert decodes the archived payload.
func (a ArchivedAlert) Alert() (Alert, error) {
	var alert Alert
	err := json.Unmarshal(a.Payload, &alert)
	return alert, err
}
