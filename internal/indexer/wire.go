package indexer

import (
	"fmt"
	"strconv"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/villagekeeper/internal/convert"
	"github.com/and161185/villagekeeper/internal/model"
)

// gRPC method names of the indexer service.
const (
	ServiceName     = "indexer.v1.Indexer"
	QueryMethod     = "/indexer.v1.Indexer/Query"
	SubscribeMethod = "/indexer.v1.Indexer/Subscribe"
)

// EncodeQuery builds {kind, owners[], ids[], limit}. IDs travel as decimal strings.
func EncodeQuery(kind model.Kind, f Filter) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"kind":   kind.String(),
		"owners": stringsAny(f.Owners),
		"ids":    idsAny(f.IDs),
		"limit":  f.Limit,
	})
}

// DecodeQuery is the inverse of EncodeQuery.
func DecodeQuery(s *structpb.Struct) (model.Kind, Filter, error) {
	r := convert.FromStruct(s)
	kind, ok := model.ParseKind(str(r["kind"]))
	if !ok {
		return 0, Filter{}, fmt.Errorf("unknown kind %q", str(r["kind"]))
	}
	f := Filter{Owners: stringsOf(r["owners"]), Limit: int(convert.Int(r["limit"]))}
	for _, id := range stringsOf(r["ids"]) {
		f.IDs = append(f.IDs, convert.Uint(id))
	}
	return kind, f, nil
}

// EncodeRecords builds {records[]}.
func EncodeRecords(rs []convert.Record) (*structpb.Struct, error) {
	l, err := convert.ToListValue(rs)
	if err != nil {
		return nil, err
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{"records": structpb.NewListValue(l)}}, nil
}

// DecodeRecords is the inverse of EncodeRecords.
func DecodeRecords(s *structpb.Struct) []convert.Record {
	return convert.FromStructs(s.GetFields()["records"].GetListValue())
}

// EncodeSubscribe builds {kinds[], owners[]}.
func EncodeSubscribe(kinds []model.Kind, f Filter) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"kinds":  stringsAny(KindNames(kinds)),
		"owners": stringsAny(f.Owners),
	})
}

// DecodeSubscribe is the inverse of EncodeSubscribe. Unknown kinds are dropped.
func DecodeSubscribe(s *structpb.Struct) ([]model.Kind, Filter) {
	r := convert.FromStruct(s)
	return ParseKinds(stringsOf(r["kinds"])), Filter{Owners: stringsOf(r["owners"])}
}

// EncodeBatch builds {kind, records[]}.
func EncodeBatch(b Batch) (*structpb.Struct, error) {
	s, err := EncodeRecords(b.Records)
	if err != nil {
		return nil, err
	}
	s.Fields["kind"] = structpb.NewStringValue(b.Kind.String())
	return s, nil
}

// DecodeBatch is the inverse of EncodeBatch.
func DecodeBatch(s *structpb.Struct) (Batch, error) {
	name := s.GetFields()["kind"].GetStringValue()
	kind, ok := model.ParseKind(name)
	if !ok {
		return Batch{}, fmt.Errorf("unknown kind %q", name)
	}
	return Batch{Kind: kind, Records: DecodeRecords(s)}, nil
}

// KindNames maps kinds to their wire names.
func KindNames(kinds []model.Kind) []string {
	out := make([]string, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, k.String())
	}
	return out
}

// ParseKinds maps wire names to kinds, dropping unknown ones.
func ParseKinds(names []string) []model.Kind {
	var out []model.Kind
	for _, n := range names {
		if k, ok := model.ParseKind(n); ok {
			out = append(out, k)
		}
	}
	return out
}

func stringsAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func idsAny(ids []uint64) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = strconv.FormatUint(id, 10)
	}
	return out
}

func stringsOf(v any) []string {
	raw, _ := v.([]any)
	out := make([]string, 0, len(raw))
	for _, x := range raw {
		if s, ok := x.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
