package evm

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/fundbridge/fundbridge/internal/domain/entities"
)

// Minimal ABI fragments for the three contracts the transfer touches. The
// TokenMessenger and MessageTransmitter signatures are CCTP V2.
const (
	erc20ABIJSON = `[
		{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
		{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
		{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
		{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
	]`

	tokenMessengerABIJSON = `[
		{"inputs":[
			{"name":"amount","type":"uint256"},
			{"name":"destinationDomain","type":"uint32"},
			{"name":"mintRecipient","type":"bytes32"},
			{"name":"burnToken","type":"address"},
			{"name":"destinationCaller","type":"bytes32"},
			{"name":"maxFee","type":"uint256"},
			{"name":"minFinalityThreshold","type":"uint32"}
		],"name":"depositForBurn","outputs":[{"name":"","type":"uint64"}],"stateMutability":"nonpayable","type":"function"}
	]`

	messageTransmitterABIJSON = `[
		{"inputs":[
			{"name":"message","type":"bytes"},
			{"name":"attestation","type":"bytes"}
		],"name":"receiveMessage","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
		{"anonymous":false,"inputs":[{"indexed":false,"name":"message","type":"bytes"}],"name":"MessageSent","type":"event"}
	]`
)

var (
	erc20ABI              = mustParseABI(erc20ABIJSON)
	tokenMessengerABI     = mustParseABI(tokenMessengerABIJSON)
	messageTransmitterABI = mustParseABI(messageTransmitterABIJSON)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid contract ABI: %v", err))
	}
	return parsed
}

// Finality thresholds for depositForBurn's minFinalityThreshold parameter. The
// fast threshold attests sooner at a higher fee; the standard one waits for
// hard finality.
const (
	finalityThresholdFast     uint32 = 1000
	finalityThresholdStandard uint32 = 2000
)

// finalityThreshold selects the burn finality threshold: fast only when both
// the request asks for it and the source chain supports it.
func finalityThreshold(req *entities.TransferRequest) uint32 {
	if req.UseFastTransfer && req.SourceChain.SupportsFastTransfer {
		return finalityThresholdFast
	}
	return finalityThresholdStandard
}

// addressToBytes32 left-pads an EVM address to the protocol's 32-byte address
// width.
func addressToBytes32(addr common.Address) [32]byte {
	var out [32]byte
	copy(out[12:], addr.Bytes())
	return out
}

// packApprove encodes approve(spender, amount)
func packApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	return erc20ABI.Pack("approve", spender, amount)
}

// packDepositForBurn encodes the CCTP V2 burn call
func packDepositForBurn(amount *big.Int, destinationDomain uint32, recipient common.Address, burnToken common.Address, destinationCaller common.Address, maxFee *big.Int, minFinality uint32) ([]byte, error) {
	return tokenMessengerABI.Pack("depositForBurn",
		amount,
		destinationDomain,
		addressToBytes32(recipient),
		burnToken,
		addressToBytes32(destinationCaller),
		maxFee,
		minFinality,
	)
}

// packReceiveMessage encodes the mint call with the raw message and
// attestation bytes.
func packReceiveMessage(message, attestation []byte) ([]byte, error) {
	return messageTransmitterABI.Pack("receiveMessage", message, attestation)
}

// DecodeHexPayload decodes a hex byte string as returned by the attestation
// service, tolerating a missing 0x prefix.
func DecodeHexPayload(s string) (hexutil.Bytes, error) {
	if s == "" {
		return nil, fmt.Errorf("empty hex payload")
	}
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	return hexutil.Decode(s)
}
