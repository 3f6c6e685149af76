package decoder

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/entityindexer/internal/domain"
)

const signer = "0x00000000000000000000000000000000000000AA"

func rawEvent(entityType, action string, entityID int64, metadata string) domain.RawEvent {
	return domain.RawEvent{
		UserID:     big.NewInt(3000001),
		Signer:     signer,
		EntityType: entityType,
		EntityID:   big.NewInt(entityID),
		Metadata:   metadata,
		Action:     action,
	}
}

func TestDecodePreservesOrder(t *testing.T) {
	block := domain.Block{
		Number:    12,
		Timestamp: time.Unix(1700000000, 0).UTC(),
		Transactions: []domain.Transaction{
			{Hash: "0x01", Events: []domain.RawEvent{
				rawEvent("Playlist", "Create", 400001, ""),
				rawEvent("Playlist", "Update", 400001, ""),
			}},
			{Hash: "0x02", Events: []domain.RawEvent{
				rawEvent("User", "Update", 3000001, ""),
			}},
		},
	}

	requests, err := New(nil).Decode(context.Background(), block)
	require.NoError(t, err)
	require.Len(t, requests, 3)

	assert.Equal(t, domain.ActionCreate, requests[0].Action)
	assert.Equal(t, 0, requests[0].TxIndex)
	assert.Equal(t, 0, requests[0].LogIndex)
	assert.Equal(t, domain.ActionUpdate, requests[1].Action)
	assert.Equal(t, 1, requests[1].LogIndex)
	assert.Equal(t, domain.EntityTypeUser, requests[2].EntityType)
	assert.Equal(t, 1, requests[2].TxIndex)
	assert.Equal(t, "0x02", requests[2].TxHash)

	for _, req := range requests {
		assert.False(t, req.IsMalformed(), req.Malformed)
		assert.Equal(t, int64(12), req.BlockNumber)
		assert.Equal(t, "0x00000000000000000000000000000000000000aa", req.Signer)
	}
}

func TestDecodeMarksMalformedEvents(t *testing.T) {
	tooLarge := rawEvent("Playlist", "Create", 1, "")
	tooLarge.EntityID = new(big.Int).Lsh(big.NewInt(1), 80)

	cases := map[string]domain.RawEvent{
		"unknown type":   rawEvent("Track", "Create", 1, ""),
		"unknown action": rawEvent("Playlist", "Repost", 400001, ""),
		"bad json":       rawEvent("Playlist", "Create", 400001, `{"cid": `),
		"id overflow":    tooLarge,
		"log failure":    {DecodeError: "abi: cannot unmarshal"},
	}

	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			block := domain.Block{Number: 1, Transactions: []domain.Transaction{{Hash: "0x01", Events: []domain.RawEvent{event}}}}
			requests, err := New(nil).Decode(context.Background(), block)
			require.NoError(t, err)
			require.Len(t, requests, 1)
			assert.True(t, requests[0].IsMalformed())
		})
	}
}

func TestDecodeKeepsNonHexSigner(t *testing.T) {
	event := rawEvent("Playlist", "Create", 400001, "")
	event.Signer = "User1Wallet"

	block := domain.Block{Number: 1, Transactions: []domain.Transaction{{Hash: "0x01", Events: []domain.RawEvent{event}}}}
	requests, err := New(nil).Decode(context.Background(), block)
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.False(t, requests[0].IsMalformed(), requests[0].Malformed)
	assert.Equal(t, "user1wallet", requests[0].Signer)
}

func TestDecodeCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	block := domain.Block{Number: 1, Transactions: []domain.Transaction{{Hash: "0x01", Events: []domain.RawEvent{rawEvent("User", "Create", 3000001, "")}}}}
	_, err := New(nil).Decode(ctx, block)
	require.Error(t, err)
}

func TestParseMetadataForms(t *testing.T) {
	resolved := map[string]map[string]any{
		"QmResolved": {"playlist_name": "From CID"},
	}

	empty, err := ParseMetadata("", resolved)
	require.NoError(t, err)
	assert.False(t, empty.HasData())

	inline, err := ParseMetadata(`{"cid": "QmInline", "data": {"playlist_name": "Inline"}}`, resolved)
	require.NoError(t, err)
	assert.Equal(t, "QmInline", inline.CID)
	assert.Equal(t, "Inline", inline.Data["playlist_name"])

	cidOnly, err := ParseMetadata(`{"cid": "QmResolved"}`, resolved)
	require.NoError(t, err)
	assert.Equal(t, "From CID", cidOnly.Data["playlist_name"])

	bare, err := ParseMetadata("QmResolved", resolved)
	require.NoError(t, err)
	assert.Equal(t, "QmResolved", bare.CID)
	assert.Equal(t, "From CID", bare.Data["playlist_name"])

	document, err := ParseMetadata(`{"playlist_name": "Plain"}`, resolved)
	require.NoError(t, err)
	assert.Equal(t, "Plain", document.Data["playlist_name"])

	opaque, err := ParseMetadata("QmUnknown", resolved)
	require.NoError(t, err)
	assert.Equal(t, "QmUnknown", opaque.Raw)
	assert.False(t, opaque.HasData())

	_, err = ParseMetadata(`{"data": "not an object"}`, resolved)
	require.Error(t, err)
}

func TestTransactionsFromLogs(t *testing.T) {
	create := rawEvent("Playlist", "Create", 400001, `{"cid": "Qm1", "data": {"playlist_name": "x"}}`)
	update := rawEvent("Playlist", "Update", 400001, "")

	createData, err := PackManageEntity(create)
	require.NoError(t, err)
	updateData, err := PackManageEntity(update)
	require.NoError(t, err)

	txA := common.HexToHash("0xa")
	txB := common.HexToHash("0xb")
	logs := []*types.Log{
		{Topics: []common.Hash{ManageEntityTopic}, Data: updateData, TxHash: txB, TxIndex: 1, Index: 3},
		{Topics: []common.Hash{common.HexToHash("0xdead")}, Data: nil, TxHash: txA, TxIndex: 0, Index: 0},
		{Topics: []common.Hash{ManageEntityTopic}, Data: createData, TxHash: txA, TxIndex: 0, Index: 1},
		{Topics: []common.Hash{ManageEntityTopic}, Data: []byte{0x01}, TxHash: txA, TxIndex: 0, Index: 2},
	}

	transactions := TransactionsFromLogs(logs)
	require.Len(t, transactions, 2)
	assert.Equal(t, txA.Hex(), transactions[0].Hash)
	require.Len(t, transactions[0].Events, 2)
	assert.Equal(t, "Create", transactions[0].Events[0].Action)
	assert.Equal(t, int64(400001), transactions[0].Events[0].EntityID.Int64())
	assert.Equal(t, create.Metadata, transactions[0].Events[0].Metadata)
	assert.NotEmpty(t, transactions[0].Events[1].DecodeError)
	assert.Equal(t, "Update", transactions[1].Events[0].Action)

	block := domain.Block{Number: 5, Transactions: transactions}
	requests, err := New(nil).Decode(context.Background(), block)
	require.NoError(t, err)
	require.Len(t, requests, 3)
	assert.False(t, requests[0].IsMalformed())
	assert.Equal(t, "x", requests[0].Metadata.Data["playlist_name"])
	assert.True(t, requests[1].IsMalformed())
	assert.False(t, requests[2].IsMalformed())
}
