package native

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldbook-labs/fieldbook/pkg/rulebook"
)

func TestComputeLayoutAlignsSlots(t *testing.T) {
	table := &rulebook.Table{
		Name: "T",
		Fields: []rulebook.FieldDefinition{
			{Name: "A", Type: rulebook.TypeBool, Origin: rulebook.OriginRaw},
			{Name: "B", Type: rulebook.TypeInt, Origin: rulebook.OriginRaw},
			{Name: "C", Type: rulebook.TypeBool, Origin: rulebook.OriginRaw},
			{Name: "D", Type: rulebook.TypeString, Origin: rulebook.OriginRaw},
		},
	}
	l := ComputeLayout(table)

	offsets := map[string]uint32{}
	for _, s := range l.Slots {
		offsets[s.Name] = s.Offset
	}
	assert.Equal(t, uint32(0), offsets["A"])
	assert.Equal(t, uint32(8), offsets["B"], "ints are 8-aligned")
	assert.Equal(t, uint32(16), offsets["C"])
	assert.Equal(t, uint32(24), offsets["D"], "string views are 8-aligned")
	assert.Equal(t, uint32(40), l.StringTable)
}

func TestComputeLayoutIsStable(t *testing.T) {
	table := &rulebook.Table{
		Name: "T",
		Fields: []rulebook.FieldDefinition{
			{Name: "X", Type: rulebook.TypeInt, Origin: rulebook.OriginRaw},
			{Name: "Y", Type: rulebook.TypeString, Origin: rulebook.OriginRaw},
		},
	}
	assert.Equal(t, ComputeLayout(table), ComputeLayout(table))
}

func TestPackRecordEncodesNulls(t *testing.T) {
	table := &rulebook.Table{
		Name: "T",
		Fields: []rulebook.FieldDefinition{
			{Name: "Flag", Type: rulebook.TypeBool, Origin: rulebook.OriginRaw},
			{Name: "N", Type: rulebook.TypeInt, Origin: rulebook.OriginRaw},
			{Name: "S", Type: rulebook.TypeString, Origin: rulebook.OriginRaw},
		},
	}
	l := ComputeLayout(table)

	rec, err := PackRecord(l, rulebook.Row{})
	require.NoError(t, err)

	flag, _ := l.Slot("Flag")
	assert.Equal(t, byte(nullBoolByte), rec.buf[flag.Offset])

	s, _ := l.Slot("S")
	// null string packs as the canonical empty view
	assert.Equal(t, make([]byte, stringSlotSize), rec.buf[s.Offset:s.Offset+stringSlotSize])
}

func TestPackRecordCopiesStringPayload(t *testing.T) {
	table := &rulebook.Table{
		Name: "T",
		Fields: []rulebook.FieldDefinition{
			{Name: "S", Type: rulebook.TypeString, Origin: rulebook.OriginRaw},
		},
	}
	l := ComputeLayout(table)

	rec, err := PackRecord(l, rulebook.Row{"S": rulebook.StringValue("hi")})
	require.NoError(t, err)
	assert.Equal(t, "hi", string(rec.buf[l.StringTable:]))
}
