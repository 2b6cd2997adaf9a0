package listing

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColumns_MatchStructTags(t *testing.T) {
	typ := reflect.TypeOf(Listing{})

	var tags []string
	for i := 0; i < typ.NumField(); i++ {
		tags = append(tags, typ.Field(i).Tag.Get("csv"))
	}

	assert.Equal(t, Columns, tags)
	assert.Len(t, Columns, 34)
}

func TestColumns_VehicleAttributesFollowHandNumber(t *testing.T) {
	idx := make(map[string]int, len(Columns))
	for i, c := range Columns {
		idx[c] = i
	}

	hand := idx["hand_number"]
	assert.Equal(t, hand+1, idx["kilometers"])
	assert.Equal(t, hand+2, idx["gear_box"])
	assert.Equal(t, hand+3, idx["color"])
	assert.Equal(t, hand+4, idx["price"])
}
