package domain

// Account is a raw stored account: an address, the program that owns it, and
// its serialized record bytes.
// Corresponds to the accounts table in PostgreSQL.
type Account struct {
	Address   Pubkey // PRIMARY KEY, derived address
	Owner     Pubkey // owning program
	Data      []byte // discriminator + borsh record
	CreatedAt int64  // record creation timestamp (ms)
	UpdatedAt int64  // last data replacement (ms)
}

// Clone returns a deep copy so stores never share Data with callers.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	c.Data = append([]byte(nil), a.Data...)
	return &c
}
