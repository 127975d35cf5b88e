package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDictionary(t *testing.T) {
	d := NewDictionary(
		[]string{"E5Q", " P20 Ultra Plus ", "", "E5Q"},
		map[string]string{"75寸": "尺寸", "黑色": "", "E5Q": "尺寸", " ": "x"},
	)

	assert.Equal(t, []string{"E5Q", "P20 Ultra Plus"}, d.Entities())
	assert.Equal(t, []string{"75寸", "黑色"}, d.AttributeNames())

	typ, ok := d.AttributeType("75寸")
	assert.True(t, ok)
	assert.Equal(t, "尺寸", typ)

	typ, ok = d.AttributeType("黑色")
	assert.True(t, ok, "untyped attributes are allowed when built directly")
	assert.Equal(t, "", typ)

	_, ok = d.AttributeType("E5Q")
	assert.False(t, ok, "a name may only belong to one category")
	assert.True(t, d.IsEntity("E5Q"))
	assert.Equal(t, 4, d.Len())
}

func TestFromRows_FirstRowWins(t *testing.T) {
	d := FromRows([]Row{
		{Entity: "E5Q"},
		{Entity: "75寸", AttributeType: "尺寸"},
		{Entity: "E5Q", AttributeType: "尺寸"},
		{Entity: "75寸"},
		{Entity: "  "},
	}, nil)

	assert.Equal(t, []string{"E5Q"}, d.Entities())
	assert.Equal(t, map[string]string{"75寸": "尺寸"}, d.Attributes())
}

func TestDictionary_Version(t *testing.T) {
	a := NewDictionary([]string{"E5Q", "T80"}, map[string]string{"75寸": "尺寸"})
	b := NewDictionary([]string{"T80", "E5Q"}, map[string]string{"75寸": "尺寸"})
	c := NewDictionary([]string{"T80", "E5Q"}, map[string]string{"65寸": "尺寸"})

	assert.Equal(t, a.Version(), b.Version(), "order of entities must not change the version")
	assert.NotEqual(t, a.Version(), c.Version())
	assert.Len(t, a.Version(), 16)
}

func TestEmpty(t *testing.T) {
	d := Empty()
	assert.True(t, d.IsEmpty())
	assert.Empty(t, d.Entities())
	assert.NotEmpty(t, d.Version())
}

func TestDictionary_ReturnsCopies(t *testing.T) {
	d := NewDictionary([]string{"E5Q"}, map[string]string{"75寸": "尺寸"})

	ents := d.Entities()
	ents[0] = "mutated"
	attrs := d.Attributes()
	attrs["new"] = "x"

	assert.Equal(t, []string{"E5Q"}, d.Entities())
	assert.Len(t, d.Attributes(), 1)
}
