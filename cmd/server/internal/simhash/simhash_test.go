package simhash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHammingDistance(t *testing.T) {
	assert.Equal(t, 0, HammingDistance(0xFF, 0xFF))
	assert.Equal(t, 8, HammingDistance(0xFF, 0x00))
	assert.Equal(t, 64, HammingDistance(0, ^uint64(0)))
}

func TestIsNearDuplicate(t *testing.T) {
	assert.True(t, IsNearDuplicate("Read chapter 1", "read chapter 1."))
	assert.True(t, IsNearDuplicate("Install Go", "Install  Go!"))
	assert.False(t, IsNearDuplicate("Install the Go toolchain", "Write table-driven unit tests for the parser"))
}

func TestFeaturesKeepShortWords(t *testing.T) {
	one := TitleFeatureSet{text: "Read chapter 1"}.GetFeatures()
	two := TitleFeatureSet{text: "Read chapter 2"}.GetFeatures()
	assert.Len(t, one, len(two))
	assert.NotEqual(t, one, two)
	assert.Empty(t, TitleFeatureSet{text: "  !? "}.GetFeatures())
}

func TestNearDuplicates(t *testing.T) {
	titles := []string{
		"Install the Go toolchain",
		"Write a hello world program",
		"install the go toolchain.",
		"WRITE A HELLO WORLD PROGRAM",
	}
	assert.Equal(t, []Pair{{First: 0, Second: 2}, {First: 1, Second: 3}}, NearDuplicates(titles))

	assert.Empty(t, NearDuplicates(nil))
	assert.Empty(t, NearDuplicates([]string{"Install the Go toolchain", "Write table-driven unit tests for the parser"}))
}
