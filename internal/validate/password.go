package validate

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MinPasswordLength — минимальная длина пароля.
const MinPasswordLength = 8

// similarityThreshold — порог схожести пароля с атрибутами пользователя.
const similarityThreshold = 0.7

var (
	ErrPasswordTooShort   = errors.New("Ce mot de passe est trop court. Il doit contenir au minimum 8 caractères.")
	ErrPasswordCommon     = errors.New("Ce mot de passe est trop courant.")
	ErrPasswordNumeric    = errors.New("Ce mot de passe est entièrement numérique.")
	ErrPasswordSimilar    = errors.New("Le mot de passe est trop semblable aux informations personnelles.")
	ErrPasswordMismatched = errors.New("Les deux mots de passe ne correspondent pas.")
)

// commonPasswords — словарь частых паролей (английские и французские).
var commonPasswords = map[string]struct{}{}

func init() {
	for _, p := range []string{
		// английские
		"password", "qwerty", "abc123", "letmein", "monkey", "111111", "iloveyou",
		"admin", "welcome", "123456", "123456789", "12345678", "12345", "123123",
		"sunshine", "princess", "football", "dragon", "baseball", "superman",
		"batman", "trustno1", "passw0rd", "master", "hello", "freedom", "whatever",
		"qazwsx", "654321", "1q2w3e4r", "password1", "qwerty123", "1234567890",
		"11111111", "00000000", "123123123", "987654321", "22222222", "33333333",
		"44444444", "55555555",
		// французские
		"motdepasse", "azerty", "soleil", "bonjour", "chocolat", "123soleil",
		"marseille", "paris", "prenom", "azertyuiop", "loulou", "doudou", "toto",
		"papa", "maman", "fanfan", "coucou", "amour", "secret", "ordinateur",
		"fromage", "montagne", "voiture", "camille", "julien", "sophie", "thomas",
		"juillet", "octobre", "azerty123", "motdepasse1",
	} {
		commonPasswords[p] = struct{}{}
	}
}

// IsCommonPassword — регистронезависимая проверка по словарю.
func IsCommonPassword(pw string) bool {
	_, ok := commonPasswords[strings.ToLower(strings.TrimSpace(pw))]
	return ok
}

// Password применяет политику паролей и возвращает все нарушения.
// attrs — идентификаторы пользователя (e-mail, имя).
func Password(pw string, attrs ...string) []error {
	var errs []error
	if utf8.RuneCountInString(pw) < MinPasswordLength {
		errs = append(errs, ErrPasswordTooShort)
	}
	if IsCommonPassword(pw) {
		errs = append(errs, ErrPasswordCommon)
	}
	if IsDigits(pw) {
		errs = append(errs, ErrPasswordNumeric)
	}
	if tooSimilar(pw, attrs) {
		errs = append(errs, ErrPasswordSimilar)
	}
	return errs
}

var attrSplitRe = regexp.MustCompile(`\W+`)

func tooSimilar(pw string, attrs []string) bool {
	lower := strings.ToLower(pw)
	for _, attr := range attrs {
		attr = strings.ToLower(strings.TrimSpace(attr))
		if attr == "" {
			continue
		}
		parts := append([]string{attr}, attrSplitRe.Split(attr, -1)...)
		for _, part := range parts {
			if part == "" {
				continue
			}
			if similarity(lower, part) >= similarityThreshold {
				return true
			}
		}
	}
	return false
}

// similarity — 2*LCS/(len(a)+len(b)), в духе difflib ratio.
func similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			switch {
			case ra[i-1] == rb[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return 2 * float64(prev[len(rb)]) / float64(total)
}
