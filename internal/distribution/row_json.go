package distribution

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// UnmarshalJSON accepts shop and quantity as strings, numbers or null so form
// values and typed clients decode the same way.
func (r *Row) UnmarshalJSON(data []byte) error {
	var raw struct {
		ShopID   json.RawMessage `json:"shop"`
		Quantity json.RawMessage `json:"quantity"`
		IMEIList []string        `json:"imei_list"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	shop, err := looseString(raw.ShopID)
	if err != nil {
		return fmt.Errorf("shop: %w", err)
	}
	qty, err := looseString(raw.Quantity)
	if err != nil {
		return fmt.Errorf("quantity: %w", err)
	}
	*r = Row{ShopID: shop, Quantity: qty, IMEIList: raw.IMEIList}
	return nil
}

func looseString(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}
