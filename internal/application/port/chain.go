package port

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"
)

// ErrAccountNotFound 账户不存在
var ErrAccountNotFound = errors.New("account not found")

type AccountData struct {
	Data []byte
	Slot uint64
}

type KeyedAccount struct {
	Address solana.PublicKey
	Data    []byte
}

// Memcmp 按偏移匹配账户原始字节
type Memcmp struct {
	Offset uint64
	Bytes  []byte
}

// ChainReader 区块链 RPC 读取
type ChainReader interface {
	AccountData(ctx context.Context, account solana.PublicKey) (AccountData, error)
	TokenAccountBalance(ctx context.Context, account solana.PublicKey) (uint64, error)
	ProgramAccounts(ctx context.Context, program solana.PublicKey, dataSize uint64, filter Memcmp) ([]KeyedAccount, error)
}
