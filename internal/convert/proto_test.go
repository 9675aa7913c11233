package convert

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/villagekeeper/internal/model"
)

func TestToStruct_FromStruct(t *testing.T) {
	in := FromEntity(model.Building{Owner: "0x1", ID: 2, Type: model.Cannon, Level: 3, IsUpgrading: true})
	s, err := ToStruct(in)
	require.NoError(t, err)

	back := FromStruct(s)
	require.Equal(t, ToBuilding(in), ToBuilding(back))
}

func TestToStruct_SanitizesJSONNumber(t *testing.T) {
	s, err := ToStruct(Record{"n": json.Number("42"), "nested": map[string]any{"m": json.Number("7")}, "list": []string{"a"}})
	require.NoError(t, err)
	require.Equal(t, "42", s.GetFields()["n"].GetStringValue())
	require.Equal(t, "7", s.GetFields()["nested"].GetStructValue().GetFields()["m"].GetStringValue())
	require.Equal(t, "a", s.GetFields()["list"].GetListValue().GetValues()[0].GetStringValue())
}

func TestFromStruct_Nil(t *testing.T) {
	require.Equal(t, Record{}, FromStruct(nil))
	require.Nil(t, FromStructs(nil))
}

func TestListValue_RoundTrip(t *testing.T) {
	rs := []Record{{"a": "1"}, {"b": "2"}}
	l, err := ToListValue(rs)
	require.NoError(t, err)

	l.Values = append(l.Values, structpb.NewStringValue("not an object"))
	got := FromStructs(l)
	require.Equal(t, rs, got)
}
