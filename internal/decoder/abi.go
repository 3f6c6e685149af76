package decoder

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/rpattn/entityindexer/internal/domain"
)

const manageEntityABI = `[{
	"anonymous": false,
	"name": "ManageEntity",
	"type": "event",
	"inputs": [
		{"indexed": false, "name": "_userId", "type": "uint256"},
		{"indexed": false, "name": "_signer", "type": "address"},
		{"indexed": false, "name": "_entityType", "type": "string"},
		{"indexed": false, "name": "_entityId", "type": "uint256"},
		{"indexed": false, "name": "_metadata", "type": "string"},
		{"indexed": false, "name": "_action", "type": "string"}
	]
}]`

// ManageEntityTopic is the log topic of the entity manager contract event.
var ManageEntityTopic = crypto.Keccak256Hash([]byte("ManageEntity(uint256,address,string,uint256,string,string)"))

var entityManagerABI = mustParseABI(manageEntityABI)

func mustParseABI(definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(fmt.Sprintf("invalid entity manager abi: %v", err))
	}
	return parsed
}

// PackManageEntity encodes event as the data section of a ManageEntity log.
func PackManageEntity(event domain.RawEvent) ([]byte, error) {
	return entityManagerABI.Events["ManageEntity"].Inputs.Pack(
		event.UserID,
		common.HexToAddress(event.Signer),
		event.EntityType,
		event.EntityID,
		event.Metadata,
		event.Action,
	)
}

// EventFromLog unpacks one ManageEntity log. Logs with another topic return
// false. A log with the right topic that cannot be unpacked is returned with
// DecodeError set.
func EventFromLog(log *types.Log) (domain.RawEvent, bool) {
	if log == nil || len(log.Topics) == 0 || log.Topics[0] != ManageEntityTopic {
		return domain.RawEvent{}, false
	}

	values, err := entityManagerABI.Unpack("ManageEntity", log.Data)
	if err != nil {
		return domain.RawEvent{DecodeError: err.Error()}, true
	}
	if len(values) != 6 {
		return domain.RawEvent{DecodeError: fmt.Sprintf("expected 6 values, got %d", len(values))}, true
	}

	userID, okUser := values[0].(*big.Int)
	signer, okSigner := values[1].(common.Address)
	entityType, okType := values[2].(string)
	entityID, okID := values[3].(*big.Int)
	metadata, okMetadata := values[4].(string)
	action, okAction := values[5].(string)
	if !okUser || !okSigner || !okType || !okID || !okMetadata || !okAction {
		return domain.RawEvent{DecodeError: "unexpected value types in ManageEntity log"}, true
	}

	return domain.RawEvent{
		UserID:     userID,
		Signer:     signer.Hex(),
		EntityType: entityType,
		EntityID:   entityID,
		Metadata:   metadata,
		Action:     action,
	}, true
}

// TransactionsFromLogs groups receipt logs into transactions ordered by
// transaction index and log index. Logs of other events are skipped.
func TransactionsFromLogs(logs []*types.Log) []domain.Transaction {
	sorted := make([]*types.Log, 0, len(logs))
	for _, log := range logs {
		if log != nil {
			sorted = append(sorted, log)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].TxIndex != sorted[j].TxIndex {
			return sorted[i].TxIndex < sorted[j].TxIndex
		}
		return sorted[i].Index < sorted[j].Index
	})

	var transactions []domain.Transaction
	for _, log := range sorted {
		event, ok := EventFromLog(log)
		if !ok {
			continue
		}
		hash := log.TxHash.Hex()
		if n := len(transactions); n == 0 || transactions[n-1].Hash != hash {
			transactions = append(transactions, domain.Transaction{Hash: hash})
		}
		last := &transactions[len(transactions)-1]
		last.Events = append(last.Events, event)
	}
	return transactions
}
