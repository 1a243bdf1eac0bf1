package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestText(t *testing.T) {
	assert.ErrorIs(t, Text("   ", 10, true), ErrRequired)
	assert.NoError(t, Text("", 10, false))
	assert.NoError(t, Text("Féron", 5, true)) // длина в символах, а не байтах
	assert.Error(t, Text("Fourmies!", 5, true))
}

func TestEmail(t *testing.T) {
	for _, ok := range []string{"a@b.fr", "jean.dupont@cc-sudavesnois.fr"} {
		assert.NoError(t, Email(ok), ok)
	}
	for _, bad := range []string{"", "plain", "a@b", "Jean <a@b.fr>", "a@@b.fr"} {
		assert.ErrorIs(t, Email(bad), ErrEmail, bad)
	}
}

func TestPhone(t *testing.T) {
	assert.NoError(t, Phone("03 27 60 00 00", 10))
	assert.NoError(t, Phone("03.27.60.00.00", 10))
	assert.NoError(t, Phone("03-27-60-00-00", 10))
	assert.Error(t, Phone("03 27 60", 10))
	assert.Error(t, Phone("+33 3 27 60 00 00", 10))
	assert.Error(t, Phone("abc", 0))
	assert.Equal(t, "0327600000", PhoneDigits("03 27.60-00 00"))
}

func TestURL(t *testing.T) {
	assert.NoError(t, URL("https://www.fourmies.fr"))
	assert.NoError(t, URL("http://example.org/path?q=1"))
	assert.ErrorIs(t, URL("ftp://example.org"), ErrURL)
	assert.ErrorIs(t, URL("/relative"), ErrURL)
	assert.ErrorIs(t, URL("javascript:alert(1)"), ErrURL)
}

func TestDatesAndTimes(t *testing.T) {
	d, err := Date("2025-03-14")
	assert.NoError(t, err)
	assert.Equal(t, 14, d.Day())
	_, err = Date("14/03/2025")
	assert.ErrorIs(t, err, ErrDate)

	tm, err := Time("18:30")
	assert.NoError(t, err)
	assert.Equal(t, 18, tm.Hour())
	_, err = Time("25:00")
	assert.ErrorIs(t, err, ErrTime)

	dt, err := DateTime("2025-03-14T10:00:00+01:00")
	assert.NoError(t, err)
	assert.Equal(t, 9, dt.Hour())
	_, err = DateTime("2025-03-14T10:00")
	assert.NoError(t, err)
	_, err = DateTime("yesterday")
	assert.ErrorIs(t, err, ErrDateTime)
}

func TestEnum(t *testing.T) {
	assert.NoError(t, Enum("M.", []string{"Mme.", "M."}))
	assert.ErrorIs(t, Enum("Dr", []string{"Mme.", "M."}), ErrChoice)
}

func TestExtensionAndSize(t *testing.T) {
	assert.NoError(t, Extension("Photo.JPG", []string{"png", "jpg", "jpeg"}))
	assert.Error(t, Extension("script.php", []string{"png", "jpg"}))
	assert.Error(t, Extension("noext", []string{"pdf"}))
	assert.NoError(t, Extension("anything.xyz", nil))

	assert.NoError(t, Size(DefaultMaxSize, 0))
	assert.Error(t, Size(DefaultMaxSize+1, 0))
	assert.Error(t, Size(11, 10))
}

func TestHumanSize(t *testing.T) {
	assert.Equal(t, "512.0 B", HumanSize(512))
	assert.Equal(t, "1.5 KB", HumanSize(1536))
	assert.Equal(t, "60.0 MB", HumanSize(DefaultMaxSize))
}

func TestPassword(t *testing.T) {
	t.Run("too short", func(t *testing.T) {
		for _, pw := range []string{"A1b!c2", "xYz#12", "P@ss7!"} {
			assert.Contains(t, Password(pw), ErrPasswordTooShort, pw)
		}
	})

	t.Run("digits only are common or numeric", func(t *testing.T) {
		for _, pw := range []string{"12345678", "11111111", "987654321"} {
			errs := Password(pw)
			assert.Contains(t, errs, ErrPasswordNumeric, pw)
		}
		assert.Contains(t, Password("12345678"), ErrPasswordCommon)
	})

	t.Run("common french and english", func(t *testing.T) {
		for _, pw := range []string{"motdepasse", "azertyuiop", "ordinateur", "password", "Sunshine"} {
			assert.Contains(t, Password(pw), ErrPasswordCommon, pw)
		}
	})

	t.Run("similar to identifiers", func(t *testing.T) {
		errs := Password("jbrechoire1", "j.brechoire@gmail.com", "jbrechoire")
		assert.Contains(t, errs, ErrPasswordSimilar)
	})

	t.Run("acceptable", func(t *testing.T) {
		assert.Empty(t, Password("testpassword", "testuser@example.com", "testuser"))
		assert.Empty(t, Password("Fagne-Avesnois-2025", "admin@cc-sudavesnois.fr"))
	})
}
