package catalog

import (
	"encoding/json"
	"time"

	"github.com/mkern/rulesync/internal/model"
	"github.com/mkern/rulesync/internal/rserr"
)

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", rserr.Wrapf(rserr.KindSerialization, err, "marshal: %v", err)
	}
	return string(b), nil
}

func unmarshalStrings(raw string) []string {
	var out []string
	if raw == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

func unmarshalAdapters(raw string) []model.AdapterId {
	ss := unmarshalStrings(raw)
	out := make([]model.AdapterId, len(ss))
	for i, s := range ss {
		out[i] = model.AdapterId(s)
	}
	return out
}

func marshalAdapters(ids []model.AdapterId) (string, error) {
	ss := make([]string, len(ids))
	for i, id := range ids {
		ss[i] = string(id)
	}
	return marshalJSON(ss)
}

func unmarshalArguments(raw string) []model.CommandArgument {
	var out []model.CommandArgument
	if raw == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

func marshalArguments(args []model.CommandArgument) (string, error) {
	return marshalJSON(args)
}
