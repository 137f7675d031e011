package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/agenthands/rsgwm/internal/core/model"
)

const (
	StampDate  = "TimeStampDate"
	StampUTCms = "TimeStampUTCms"
	dateLayout = "2006-01-02T15:04:05Z"
)

// Stamp is the wire form of a time stamp. Value holds either an ISO 8601
// string or a float of milliseconds, depending on Type.
type Stamp struct {
	Type  string          `json:"@stamptype"`
	Value json.RawMessage `json:"stamp"`
}

// Decode normalises either encoding to a model.Stamp.
func (s Stamp) Decode() (model.Stamp, error) {
	switch s.Type {
	case StampDate:
		var v string
		if err := json.Unmarshal(s.Value, &v); err != nil {
			return 0, fmt.Errorf("TimeStampDate needs a string: %w", model.ErrMalformedRequest)
		}
		return model.ParseDate(v)
	case StampUTCms:
		var ms float64
		if err := json.Unmarshal(s.Value, &ms); err != nil {
			return 0, fmt.Errorf("TimeStampUTCms needs a number: %w", model.ErrMalformedRequest)
		}
		return model.StampFromMillis(ms)
	default:
		return 0, fmt.Errorf("unknown stamp type %q: %w", s.Type, model.ErrMalformedRequest)
	}
}

// MillisStamp encodes s as TimeStampUTCms, which keeps sub-second detail.
func MillisStamp(s model.Stamp) Stamp {
	raw, _ := json.Marshal(s.Millis())
	return Stamp{Type: StampUTCms, Value: raw}
}

// DateStamp encodes s as TimeStampDate with second resolution.
func DateStamp(s model.Stamp) Stamp {
	raw, _ := json.Marshal(s.Time().Format(dateLayout))
	return Stamp{Type: StampDate, Value: raw}
}

func decodeOptionalStamp(s *Stamp) (*model.Stamp, error) {
	if s == nil {
		return nil, nil
	}
	v, err := s.Decode()
	if err != nil {
		return nil, err
	}
	return &v, nil
}
