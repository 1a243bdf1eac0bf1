package slug

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMake(t *testing.T) {
	cases := map[string]string{
		"Saint-Étienne-lès-Remiremont": "saint-etienne-les-remiremont",
		"Féron":                        "feron",
		"Moustier-en-Fagne":            "moustier-en-fagne",
		"  Trélon  ":                   "trelon",
		"Cœur d'Avesnois":              "coeur-d-avesnois",
		"Rue de l'Église, 12":          "rue-de-l-eglise-12",
		"":                             "",
	}
	for in, want := range cases {
		got := Make(in, 0)
		assert.Equal(t, want, got, in)
		if got != "" {
			assert.True(t, Valid(got), got)
		}
	}
}

func TestMake_MaxLength(t *testing.T) {
	got := Make("Wallers-en-Fagne Wignehies Willies", 20)
	assert.LessOrEqual(t, len(got), 20)
	assert.Equal(t, "wallers-en-fagne", got)
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("eppe-sauvage"))
	assert.False(t, Valid("Eppe Sauvage"))
	assert.False(t, Valid(""))
}
