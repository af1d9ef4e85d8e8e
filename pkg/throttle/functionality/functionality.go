// Package functionality enumerates the operation kinds that throttle buckets
// gate. The taxonomy is owned by the surrounding node; this package only gives
// each kind a stable name so definitions can refer to it.
package functionality

import (
	"fmt"
	"sort"
)

// Functionality identifies the kind of a transaction or query.
type Functionality int

// Operation kinds. The zero value is None and never appears in definitions.
const (
	None Functionality = iota
	CryptoTransfer
	CryptoCreate
	CryptoUpdate
	CryptoDelete
	CryptoApproveAllowance
	ConsensusCreateTopic
	ConsensusSubmitMessage
	FileCreate
	FileAppend
	FileUpdate
	ContractCall
	ContractCreate
	EthereumTransaction
	TokenCreate
	TokenMint
	TokenBurn
	TokenAssociateToAccount
	ScheduleCreate
	ScheduleSign
	ScheduleDelete
	UtilPrng

	ContractCallLocal
	CryptoGetAccountBalance
	CryptoGetInfo
	FileGetContents
	ConsensusGetTopicInfo
	ScheduleGetInfo
	TokenGetInfo
	GetVersionInfo
	TransactionGetReceipt
)

var names = map[Functionality]string{
	None:                    "NONE",
	CryptoTransfer:          "CryptoTransfer",
	CryptoCreate:            "CryptoCreate",
	CryptoUpdate:            "CryptoUpdate",
	CryptoDelete:            "CryptoDelete",
	CryptoApproveAllowance:  "CryptoApproveAllowance",
	ConsensusCreateTopic:    "ConsensusCreateTopic",
	ConsensusSubmitMessage:  "ConsensusSubmitMessage",
	FileCreate:              "FileCreate",
	FileAppend:              "FileAppend",
	FileUpdate:              "FileUpdate",
	ContractCall:            "ContractCall",
	ContractCreate:          "ContractCreate",
	EthereumTransaction:     "EthereumTransaction",
	TokenCreate:             "TokenCreate",
	TokenMint:               "TokenMint",
	TokenBurn:               "TokenBurn",
	TokenAssociateToAccount: "TokenAssociateToAccount",
	ScheduleCreate:          "ScheduleCreate",
	ScheduleSign:            "ScheduleSign",
	ScheduleDelete:          "ScheduleDelete",
	UtilPrng:                "UtilPrng",
	ContractCallLocal:       "ContractCallLocal",
	CryptoGetAccountBalance: "CryptoGetAccountBalance",
	CryptoGetInfo:           "CryptoGetInfo",
	FileGetContents:         "FileGetContents",
	ConsensusGetTopicInfo:   "ConsensusGetTopicInfo",
	ScheduleGetInfo:         "ScheduleGetInfo",
	TokenGetInfo:            "TokenGetInfo",
	GetVersionInfo:          "GetVersionInfo",
	TransactionGetReceipt:   "TransactionGetReceipt",
}

var byName = func() map[string]Functionality {
	m := make(map[string]Functionality, len(names))
	for f, name := range names {
		m[name] = f
	}
	return m
}()

// Parse returns the Functionality with the given name.
func Parse(name string) (Functionality, error) {
	f, ok := byName[name]
	if !ok || f == None {
		return None, fmt.Errorf("unknown functionality %q", name)
	}
	return f, nil
}

// All returns every known functionality except None, sorted by name.
func All() []Functionality {
	all := make([]Functionality, 0, len(names)-1)
	for f := range names {
		if f != None {
			all = append(all, f)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].String() < all[j].String() })
	return all
}

func (f Functionality) String() string {
	if name, ok := names[f]; ok {
		return name
	}
	return fmt.Sprintf("Functionality(%d)", int(f))
}

// IsQuery reports whether f names a query rather than a transaction.
func (f Functionality) IsQuery() bool {
	return f >= ContractCallLocal
}

// IsGasThrottled reports whether operations of kind f are also gated by gas.
func (f Functionality) IsGasThrottled() bool {
	switch f {
	case ContractCall, ContractCreate, EthereumTransaction, ContractCallLocal:
		return true
	default:
		return false
	}
}

// IsScheduling reports whether f wraps another transaction for later execution.
func (f Functionality) IsScheduling() bool {
	return f == ScheduleCreate || f == ScheduleSign
}

// MarshalText implements encoding.TextMarshaler.
func (f Functionality) MarshalText() ([]byte, error) {
	if _, ok := names[f]; !ok {
		return nil, fmt.Errorf("unknown functionality %d", int(f))
	}
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Functionality) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
