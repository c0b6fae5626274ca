package engine

import (
	"bufio"
	"os"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/bkviswam/tradeplatform/internal/models"
	"github.com/bkviswam/tradeplatform/internal/strategy"
)

// Decision is one line of the NDJSON audit log.
type Decision struct {
	RunID         string               `json:"run_id"`
	Timestamp     time.Time            `json:"timestamp"`
	Symbol        string               `json:"symbol"`
	Session       models.MarketSession `json:"session"`
	Strategy      strategy.Kind        `json:"strategy"`
	Price         float64              `json:"price"`
	LastPrice     float64              `json:"last_price"`
	Intent        strategy.Action      `json:"intent"`
	IntentQty     int                  `json:"intent_qty"`
	Reason        string               `json:"reason"`
	Result        string               `json:"result"`
	RejectReason  string               `json:"reject_reason,omitempty"`
	Cause         string               `json:"cause,omitempty"`
	OrderID       string               `json:"order_id,omitempty"`
	ClientOrderID string               `json:"client_order_id,omitempty"`
}

const (
	ResultHold           = "hold"
	ResultRejected       = "rejected"
	ResultOrderFailed    = "order_failed"
	ResultOrderSubmitted = "order_submitted"
	ResultSeeded         = "seeded"
)

type DecisionLogger struct {
	runID  string
	file   *os.File
	writer *bufio.Writer
	log    *zap.Logger
	mu     sync.Mutex
}

func NewDecisionLogger(path string, runID string, log *zap.Logger) (*DecisionLogger, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &DecisionLogger{
		runID:  runID,
		file:   file,
		writer: bufio.NewWriter(file),
		log:    log.Named("decisions"),
	}, nil
}

func (d *DecisionLogger) RunID() string {
	return d.runID
}

func (d *DecisionLogger) Append(decision Decision) {
	if d == nil {
		return
	}
	decision.RunID = d.runID

	d.mu.Lock()
	defer d.mu.Unlock()
	payload, err := sonic.Marshal(decision)
	if err != nil {
		d.log.Error("marshal decision failed", zap.Error(err))
		return
	}
	if _, err := d.writer.Write(append(payload, '\n')); err != nil {
		d.log.Error("write decision failed", zap.Error(err))
		return
	}
	if err := d.writer.Flush(); err != nil {
		d.log.Error("flush decision log failed", zap.Error(err))
	}
}

func (d *DecisionLogger) Close() error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.writer.Flush(); err != nil {
		_ = d.file.Close()
		return err
	}
	return d.file.Close()
}
