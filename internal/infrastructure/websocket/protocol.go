package websocket

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"solstream/internal/application/port"
)

const (
	methodAccountSubscribe    = "accountSubscribe"
	methodAccountUnsubscribe  = "accountUnsubscribe"
	methodAccountNotification = "accountNotification"
)

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type subscribeOptions struct {
	Encoding   string `json:"encoding"`
	Commitment string `json:"commitment"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// rpcMessage 响应与通知共用的入站消息
type rpcMessage struct {
	ID     *uint64             `json:"id"`
	Result json.RawMessage     `json:"result"`
	Error  *rpcError           `json:"error"`
	Method string              `json:"method"`
	Params *notificationParams `json:"params"`
}

type notificationParams struct {
	Subscription uint64 `json:"subscription"`
	Result       struct {
		Context struct {
			Slot uint64 `json:"slot"`
		} `json:"context"`
		Value *struct {
			Data []string `json:"data"`
		} `json:"value"`
	} `json:"result"`
}

type rpcResult struct {
	raw json.RawMessage
	err error
}

// decodeNotification data 字段为 ["<base64>", "base64"]；账户被关闭时 value 为 null
func decodeNotification(p *notificationParams, generation uint64) (port.AccountNotification, error) {
	n := port.AccountNotification{
		Generation:     generation,
		SubscriptionID: p.Subscription,
		Slot:           p.Result.Context.Slot,
	}
	if p.Result.Value == nil {
		return n, nil
	}
	if len(p.Result.Value.Data) < 1 {
		return n, fmt.Errorf("notification for subscription %d has no data", p.Subscription)
	}
	if len(p.Result.Value.Data) > 1 && p.Result.Value.Data[1] != "base64" {
		return n, fmt.Errorf("unsupported encoding %q", p.Result.Value.Data[1])
	}
	data, err := base64.StdEncoding.DecodeString(p.Result.Value.Data[0])
	if err != nil {
		return n, fmt.Errorf("decode notification data: %w", err)
	}
	n.Data = data
	return n, nil
}
