package models

import (
	"database/sql/driver"
	"encoding/json"
)

// JSONMap represents a JSON object stored in a jsonb column.
type JSONMap map[string]interface{}

func (j JSONMap) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*j = make(JSONMap)
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}

	return json.Unmarshal(bytes, j)
}

// ToJSONMap converts any JSON-serializable value into a JSONMap.
func ToJSONMap(v interface{}) JSONMap {
	raw, err := json.Marshal(v)
	if err != nil {
		return JSONMap{}
	}
	out := JSONMap{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return JSONMap{}
	}
	return out
}
