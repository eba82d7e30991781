package recordstore

import (
	jsoniter "github.com/json-iterator/go"
)

// Record is the raw shape a read operation yields and a write operation accepts:
// a mapping from column name to value.
type Record = map[string]any

// Records is an alias type for a slice of Record.
type Records = []Record

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// DecodeRecord converts a raw Record into a caller-supplied struct type T,
// matching columns to fields via json tags.
//
// It replaces per-call return-shape switching: reads always yield raw records
// and callers pick the typed shape at the decode site.
func DecodeRecord[T any](rec Record) (T, error) {
	var out T

	raw, marshalErr := jsonAPI.Marshal(rec)
	if marshalErr != nil {
		return out, marshalErr
	}

	if unmarshalErr := jsonAPI.Unmarshal(raw, &out); unmarshalErr != nil {
		return out, unmarshalErr
	}

	return out, nil
}

// DecodeRecords converts a slice of raw Records into a slice of T.
func DecodeRecords[T any](recs Records) ([]T, error) {
	out := make([]T, 0, len(recs))

	for _, rec := range recs {
		decoded, err := DecodeRecord[T](rec)
		if err != nil {
			return nil, err
		}

		out = append(out, decoded)
	}

	return out, nil
}
