package models

import (
	"encoding/json"
	"errors"
	"strings"
)

type FlowType string

const (
	FlowTypeIn  FlowType = "IN"
	FlowTypeOut FlowType = "OUT"
)

func (t FlowType) IsValid() bool {
	return t == FlowTypeIn || t == FlowTypeOut
}

// convert input to enum type
func (t *FlowType) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("flow type must be string")
	}
	switch strings.ToUpper(strings.TrimSpace(str)) {
	case "IN":
		*t = FlowTypeIn
	case "OUT":
		*t = FlowTypeOut
	default:
		return errors.New("invalid flow type")
	}
	return nil
}
