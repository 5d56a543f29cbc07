package cache

import (
	"context"
	"time"
)

// ReceiptCache keeps short-lived delivery receipts so the product UI can
// confirm a send without querying the message store.
type ReceiptCache interface {
	StoreReceipt(ctx context.Context, messageID, recipientEmail string, sentAt time.Time) error
}
