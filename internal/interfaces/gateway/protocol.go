package gateway

import (
	"encoding/json"

	"solstream/internal/domain/model"
)

const (
	typeSubscribe    = "subscribe"
	typeUnsubscribe  = "unsubscribe"
	typeSubscribed   = "subscribed"
	typeUnsubscribed = "unsubscribed"
	typePriceUpdate  = "price_update"
	typeError        = "error"
)

// clientMessage 客户端 -> 服务端
type clientMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type ackMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type errorMessage struct {
	Type    string `json:"type"`
	Token   string `json:"token"`
	Message string `json:"message"`
}

type priceData struct {
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"`
	Source    string  `json:"source"`
}

type priceUpdateMessage struct {
	Type  string    `json:"type"`
	Token string    `json:"token"`
	Data  priceData `json:"data"`
}

func encodeAck(typ, token string) []byte {
	b, _ := json.Marshal(ackMessage{Type: typ, Token: token})
	return b
}

func encodeError(token, message string) []byte {
	b, _ := json.Marshal(errorMessage{Type: typeError, Token: token, Message: message})
	return b
}

func encodeQuote(q model.PriceQuote) ([]byte, error) {
	return json.Marshal(priceUpdateMessage{
		Type:  typePriceUpdate,
		Token: q.Token,
		Data: priceData{
			Price:     q.PriceUSD,
			Timestamp: q.TimestampMs,
			Source:    q.Source,
		},
	})
}
