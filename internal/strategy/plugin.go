package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"botcore/pkg/exchange"
)

// jsonCodec lets us speak JSON over gRPC, so uploaded strategy workers
// can be written in any language without sharing compiled schemas.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return "json" }

type pluginRequest struct {
	Symbol     string         `json:"symbol"`
	Price      float64        `json:"price"`
	High24h    float64        `json:"high_24h"`
	Low24h     float64        `json:"low_24h"`
	Volatility float64        `json:"volatility"`
	Params     map[string]any `json:"params"`
}

type pluginResponse struct {
	Signal
	Error string `json:"error"`
}

// Plugin calls an out-of-process strategy worker over gRPC. Each call
// carries its own deadline so a hung worker only costs one cycle.
type Plugin struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

// NewPlugin connects to a strategy worker at addr. The connection is
// lazy; a worker that is down surfaces as per-call errors.
func NewPlugin(addr string, timeout time.Duration) (*Plugin, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("connect strategy worker %s: %w", addr, err)
	}
	return &Plugin{conn: conn, timeout: timeout}, nil
}

// Close releases the worker connection.
func (p *Plugin) Close() error { return p.conn.Close() }

func (p *Plugin) Decide(ctx context.Context, snap exchange.Snapshot, params map[string]any) (Signal, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req := pluginRequest{
		Symbol:     snap.Symbol,
		Price:      snap.Price,
		High24h:    snap.High24h,
		Low24h:     snap.Low24h,
		Volatility: snap.Volatility,
		Params:     params,
	}
	var resp pluginResponse
	if err := p.conn.Invoke(ctx, "/botcore.StrategyWorker/Decide", &req, &resp, grpc.ForceCodec(jsonCodec{})); err != nil {
		return Signal{}, fmt.Errorf("strategy worker decide: %w", err)
	}
	if resp.Error != "" {
		return Signal{}, fmt.Errorf("strategy worker: %s", resp.Error)
	}

	switch resp.Action {
	case ActionBuy, ActionSell, ActionHold:
	default:
		return Signal{}, fmt.Errorf("strategy worker returned invalid action %q", resp.Action)
	}
	return resp.Signal, nil
}
