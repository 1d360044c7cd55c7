package handler

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// writeJSON marshals v and writes it with the given status code. If
// marshaling fails it falls back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseLimit extracts a limit query parameter. Defaults to def, capped at 500.
func parseLimit(r *http.Request, def int) int {
	limit := def
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}
	return limit
}

// parseAddress validates and decodes a 0x-prefixed hex address field.
func parseAddress(s, field string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", field, s)
	}
	return common.HexToAddress(s), nil
}

// parseOptionalAddress is parseAddress but an empty string decodes to the
// zero address.
func parseOptionalAddress(s, field string) (common.Address, error) {
	if s == "" {
		return common.Address{}, nil
	}
	return parseAddress(s, field)
}

// parseAmount decodes a base-10 wei amount that must be positive.
func parseAmount(s, field string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%s: invalid amount %q", field, s)
	}
	if n.Sign() <= 0 {
		return nil, fmt.Errorf("%s: amount must be positive", field)
	}
	return n, nil
}

// parseOptionalAmount is parseAmount but empty means nil and zero is allowed.
func parseOptionalAmount(s, field string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%s: invalid amount %q", field, s)
	}
	if n.Sign() < 0 {
		return nil, fmt.Errorf("%s: amount must not be negative", field)
	}
	return n, nil
}

// parseCalldata decodes an optional 0x-prefixed hex payload.
func parseCalldata(s, field string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	data, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid hex payload: %w", field, err)
	}
	return data, nil
}
