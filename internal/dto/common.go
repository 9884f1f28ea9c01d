package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// OptionalID 前端传入的可选 ID
// 兼容 null、""、数字与数字字符串；Set 表示请求中出现了该字段
type OptionalID struct {
	Set   bool
	Value *uint
}

// UnmarshalJSON 实现 json.Unmarshaler
func (o *OptionalID) UnmarshalJSON(data []byte) error {
	o.Set = true
	o.Value = nil

	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	var raw string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	} else {
		raw = string(data)
	}

	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "0" {
		return nil
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("无效的 ID: %s", raw)
	}
	v := uint(n)
	o.Value = &v
	return nil
}

// MarshalJSON 实现 json.Marshaler
func (o OptionalID) MarshalJSON() ([]byte, error) {
	if o.Value == nil {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatUint(uint64(*o.Value), 10)), nil
}

// ID 构造已设置的 OptionalID
func ID(v uint) OptionalID {
	return OptionalID{Set: true, Value: &v}
}
