package store

import (
	"encoding/json"
	"strings"

	cryptoerrors "cryptotrader/internal/errors"
)

func joinCoins(coins []string) string {
	return strings.Join(coins, ",")
}

func splitCoins(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func encodeDetails(m map[string]any) (*string, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, cryptoerrors.Wrap(err, "encoding incident details")
	}
	s := string(b)
	return &s, nil
}

func decodeDetails(s string) (map[string]any, error) {
	if s == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, cryptoerrors.Wrap(err, "decoding incident details")
	}
	return m, nil
}
