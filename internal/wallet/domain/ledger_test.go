package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(accountID, asset string, direction EntryDirection, amount string) LedgerEntry {
	v, err := decimal.NewFromString(amount)
	if err != nil {
		panic(err)
	}
	return LedgerEntry{TxID: "LTX-1", AccountID: accountID, Asset: asset, Direction: direction, Amount: v}
}

func TestLedgerTransactionBalanced(t *testing.T) {
	balanced := LedgerTransaction{TxID: "LTX-1", Entries: []LedgerEntry{
		entry("acct-1", "USDT", DirectionCredit, "100"),
		entry("TREASURY", "USDT", DirectionDebit, "100"),
	}}
	assert.True(t, balanced.Balanced())

	unbalanced := LedgerTransaction{TxID: "LTX-1", Entries: []LedgerEntry{
		entry("acct-1", "USDT", DirectionCredit, "100"),
		entry("TREASURY", "USDT", DirectionDebit, "99"),
	}}
	assert.False(t, unbalanced.Balanced())

	// 每种资产单独平衡
	perAsset := LedgerTransaction{TxID: "LTX-1", Entries: []LedgerEntry{
		entry("acct-1", "USDT", DirectionCredit, "100"),
		entry("acct-2", "BTC", DirectionDebit, "100"),
	}}
	assert.False(t, perAsset.Balanced())

	multi := LedgerTransaction{TxID: "LTX-1", Entries: []LedgerEntry{
		entry("acct-1", "USDT", DirectionCredit, "100"),
		entry("acct-2", "USDT", DirectionDebit, "100"),
		entry("acct-1", "BTC", DirectionDebit, "2"),
		entry("acct-2", "BTC", DirectionCredit, "2"),
	}}
	assert.True(t, multi.Balanced())

	empty := LedgerTransaction{TxID: "LTX-1"}
	assert.True(t, empty.Balanced(), "no entries means nothing out of balance")
}

func TestEntryDirectionOpposite(t *testing.T) {
	assert.Equal(t, DirectionCredit, DirectionDebit.Opposite())
	assert.Equal(t, DirectionDebit, DirectionCredit.Opposite())
}

func TestNormalizeAsset(t *testing.T) {
	asset, err := NormalizeAsset("  usdt ")
	require.NoError(t, err)
	assert.Equal(t, "USDT", asset)

	asset, err = NormalizeAsset("BTC")
	require.NoError(t, err)
	assert.Equal(t, "BTC", asset)

	_, err = NormalizeAsset("   ")
	var validation *ValidationError
	assert.ErrorAs(t, err, &validation)
}
