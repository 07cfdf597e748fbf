package solana

import (
	"context"

	"oracle-protocol/internal/domain"
)

// WSClient defines Solana WebSocket subscription interface.
type WSClient interface {
	// SubscribeAccount streams every change of the account at address.
	// The channel is closed when the client closes.
	SubscribeAccount(ctx context.Context, address domain.Pubkey) (<-chan AccountNotification, error)

	// Close closes the WebSocket connection.
	Close() error
}

// AccountNotification is one accountNotification message.
type AccountNotification struct {
	Address domain.Pubkey
	Slot    int64
	Account *AccountInfo
	Err     error // set when the payload could not be decoded
}
