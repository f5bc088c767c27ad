package micrgrammar

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseBasic(t *testing.T) {
	f := Parse("T123T456U789")
	assert.Equal(t, "123", f.RoutingNumber)
	assert.Equal(t, "456", f.AccountNumber)
	assert.Equal(t, "789", f.CheckNumber)
}

func TestParseLegacyMappingLiteralNoC(t *testing.T) {
	f := Parse("U12U T34T 56")
	assert.Equal(t, "34", f.RoutingNumber)
	assert.Equal(t, "56", f.AccountNumber)
	assert.Equal(t, "12", f.CheckNumber)
}

func TestParseLegacyMappingRemapped(t *testing.T) {
	f := Parse("C12C A34A 56")
	assert.Equal(t, "34", f.RoutingNumber)
	assert.Equal(t, "56", f.AccountNumber)
	assert.Equal(t, "12", f.CheckNumber)
}

func TestParseLeadingZeroStrip(t *testing.T) {
	f := Parse("T012T034U056")
	assert.Equal(t, "012", f.RoutingNumber)
	assert.Equal(t, "034", f.AccountNumber)
	assert.Equal(t, "56", f.CheckNumber)
}

func TestParseEmpty(t *testing.T) {
	f := Parse("")
	assert.Empty(t, f.RoutingNumber)
	assert.Empty(t, f.AccountNumber)
	assert.Empty(t, f.CheckNumber)
	assert.Empty(t, f.Amount)
}
