package rpc

import (
	"net/http"

	"tokensale/native/sale"
)

// Per-module error code bases. The final code is base minus the kind
// offset, keeping every module inside its own ten-code block.
const (
	codeSaleBase     = -32050
	codeVestingBase  = -32060
	codeAirdropBase  = -32070
	codeMultisigBase = -32080
	codeAdminBase    = -32090
)

func kindOffset(kind sale.Kind) int {
	switch kind {
	case sale.KindInvalidArgument:
		return 1
	case sale.KindUnauthorized:
		return 2
	case sale.KindStateViolation:
		return 3
	case sale.KindExternalDependency:
		return 4
	case sale.KindReplayRejected:
		return 5
	case sale.KindProofInvalid:
		return 6
	default:
		return 0
	}
}

func kindStatus(kind sale.Kind) int {
	switch kind {
	case sale.KindInvalidArgument:
		return http.StatusBadRequest
	case sale.KindUnauthorized:
		return http.StatusUnauthorized
	case sale.KindStateViolation:
		return http.StatusConflict
	case sale.KindExternalDependency:
		return http.StatusBadGateway
	case sale.KindReplayRejected:
		return http.StatusConflict
	case sale.KindProofInvalid:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeModuleError maps a ledger error onto the module's code block and
// the HTTP status matching its failure kind.
func writeModuleError(w http.ResponseWriter, id interface{}, base int, err error) {
	kind := sale.KindOf(err)
	writeError(w, kindStatus(kind), id, base-kindOffset(kind), err.Error(), map[string]string{
		"kind": kind.String(),
	})
}

func writeSaleError(w http.ResponseWriter, id interface{}, err error) {
	writeModuleError(w, id, codeSaleBase, err)
}

func writeVestingError(w http.ResponseWriter, id interface{}, err error) {
	writeModuleError(w, id, codeVestingBase, err)
}

func writeAirdropError(w http.ResponseWriter, id interface{}, err error) {
	writeModuleError(w, id, codeAirdropBase, err)
}

func writeMultisigError(w http.ResponseWriter, id interface{}, err error) {
	writeModuleError(w, id, codeMultisigBase, err)
}

func writeAdminError(w http.ResponseWriter, id interface{}, err error) {
	writeModuleError(w, id, codeAdminBase, err)
}
