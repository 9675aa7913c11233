package chain

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/villagekeeper/internal/convert"
)

// RelayExecuteMethod is the full gRPC method name of the relay's execute call.
const RelayExecuteMethod = "/relay.v1.Relay/Execute"

// Relay submits calls through a session-key relay speaking gRPC with Struct payloads.
//
// Request:  {"calls": [{"contract_address", "entrypoint", "selector", "calldata": [...]}]}
// Response: {"transaction_hash", "status": "ACCEPTED"|"REVERTED", "revert_reason", "events": [...]}
type Relay struct {
	cc grpc.ClientConnInterface
}

// NewRelay wraps an established connection.
func NewRelay(cc grpc.ClientConnInterface) *Relay {
	return &Relay{cc: cc}
}

// Submit executes calls as one multicall.
func (r *Relay) Submit(ctx context.Context, calls []Call) (Receipt, error) {
	if len(calls) == 0 {
		return Receipt{}, errors.New("submit: no calls")
	}
	req, err := EncodeCalls(calls)
	if err != nil {
		return Receipt{}, err
	}
	resp := new(structpb.Struct)
	if err := r.cc.Invoke(ctx, RelayExecuteMethod, req, resp); err != nil {
		if st, ok := status.FromError(err); ok {
			switch st.Code() {
			case codes.FailedPrecondition, codes.Aborted, codes.AlreadyExists:
				return Receipt{}, &TxError{Reason: st.Message()}
			}
		}
		return Receipt{}, fmt.Errorf("relay execute: %w", err)
	}
	return DecodeReceipt(convert.FromStruct(resp))
}

// EncodeCalls builds the relay request body.
func EncodeCalls(calls []Call) (*structpb.Struct, error) {
	list := make([]any, 0, len(calls))
	for _, c := range calls {
		data := make([]any, len(c.Calldata))
		for i, d := range c.Calldata {
			data[i] = d
		}
		list = append(list, map[string]any{
			"contract_address": c.Contract,
			"entrypoint":       c.Entrypoint,
			"selector":         Selector(c.Entrypoint),
			"calldata":         data,
		})
	}
	s, err := structpb.NewStruct(map[string]any{"calls": list})
	if err != nil {
		return nil, fmt.Errorf("encode calls: %w", err)
	}
	return s, nil
}

// DecodeCalls is the inverse of EncodeCalls.
func DecodeCalls(r convert.Record) []Call {
	raw, _ := r["calls"].([]any)
	out := make([]Call, 0, len(raw))
	for _, v := range raw {
		m, ok := v.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, Call{
			Contract:   stringOf(m["contract_address"]),
			Entrypoint: stringOf(m["entrypoint"]),
			Calldata:   stringsOf(m["calldata"]),
		})
	}
	return out
}

// DecodeReceipt turns a relay response into a receipt, or a TxError when it reverted.
func DecodeReceipt(r convert.Record) (Receipt, error) {
	rc := Receipt{TxHash: stringOf(r["transaction_hash"])}
	if stringOf(r["status"]) == "REVERTED" {
		return Receipt{}, &TxError{TxHash: rc.TxHash, Reason: stringOf(r["revert_reason"])}
	}
	evs, _ := r["events"].([]any)
	for _, v := range evs {
		m, ok := v.(map[string]any)
		if !ok {
			continue
		}
		rc.Events = append(rc.Events, Event{
			Name: stringOf(m["name"]),
			Keys: stringsOf(m["keys"]),
			Data: stringsOf(m["data"]),
		})
	}
	return rc, nil
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}

func stringsOf(v any) []string {
	raw, _ := v.([]any)
	out := make([]string, 0, len(raw))
	for _, x := range raw {
		if s, ok := x.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
