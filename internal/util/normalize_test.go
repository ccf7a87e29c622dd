package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	testCases := []struct {
		in, want string
	}{
		{"Solo Leveling", "solo-leveling"},
		{"  Solo   Leveling  ", "solo-leveling"},
		{"Tower of God: Part 2", "tower-of-god-part-2"},
		{"Kaguya-sama wa Kokurasetai", "kaguya-sama-wa-kokurasetai"},
		{"ÉCLAIR!!", "clair"},
		{"solo-leveling", "solo-leveling"},
		{"", ""},
		{" a ", "a"},
		{"\tBerserk\n", "berserk"},
	}
	for _, tc := range testCases {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	for _, s := range []string{"Solo Leveling", "One Piece (Colored)", "a  b\tc"} {
		once := Normalize(s)
		assert.Equal(t, once, Normalize(once))
	}
}

func TestNormalize_PaddingDoesNotChangeIdentity(t *testing.T) {
	assert.Equal(t, Normalize("Berserk"), Normalize(" Berserk "))
	assert.Equal(t, IdentityKey("", "Solo Leveling"), IdentityKey("", "Solo Leveling  "))
}

func TestStrictNormalize(t *testing.T) {
	assert.Equal(t, "sololeveling", StrictNormalize("Solo Leveling"))
	assert.Equal(t, "sololeveling", StrictNormalize("Solo-Leveling!"))
	assert.Equal(t, "towerofgodpart2", StrictNormalize("Tower of God: Part 2"))
	assert.True(t, SameTitle("The Beginning After the End", "the beginning after the end."))
	assert.False(t, SameTitle("", ""))
}

func TestSlugIdentityAndIdentityKey(t *testing.T) {
	assert.Equal(t, "solo-leveling", SlugIdentity("solo-leveling.12345"))
	assert.Equal(t, "a", SlugIdentity("a.b.c"))
	assert.Equal(t, "no-id", SlugIdentity("no-id"))

	assert.Equal(t, "solo-leveling", IdentityKey("solo-leveling.12345", "Anything"))
	assert.Equal(t, "solo-leveling", IdentityKey("", "Solo Leveling"))
	assert.Equal(t, "solo-leveling", IdentityKey(".999", "Solo Leveling"))
}
