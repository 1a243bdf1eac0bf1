package contact

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"ccsa/internal/kernel"
	"ccsa/internal/mailer"
	"ccsa/internal/validate"
)

// Communes — коммуны, по которым принимаются запросы PLUi.
var Communes = []string{
	"Anor", "Baives", "Eppe-Sauvage", "Féron", "Fourmies", "Glageon",
	"Moustier-en-Fagne", "Ohain", "Trelon", "Wallers-en-Fagne", "Wignehies", "Willies",
}

var (
	phoneSeparators = regexp.MustCompile(`[\s\-.]`)
	phoneChars      = regexp.MustCompile(`^[\d+\s()]+$`)
	parcelChars     = regexp.MustCompile(`^[\d\s,.\-]+$`)
)

// Дата получения в письме PLUi.
const receivedLayout = "02/01/2006 à 15:04"

// PLUiForm — запрос на изменение PLUi.
type PLUiForm struct {
	NomPrenom string `json:"nom_prenom"`
	Adresse   string `json:"adresse"`
	Email     string `json:"email"`
	Telephone string `json:"telephone"`
	Parcelles string `json:"parcelles"`
	Commune   string `json:"commune"`
	Demande   string `json:"demande"`
}

// Validate возвращает *kernel.ValidationError или nil.
func (f *PLUiForm) Validate() error {
	fields := map[string]string{}
	set := func(name string, err error) {
		if err != nil {
			if _, dup := fields[name]; !dup {
				fields[name] = err.Error()
			}
		}
	}

	set("nom_prenom", validate.Text(f.NomPrenom, 100, true))
	set("adresse", validate.Text(f.Adresse, 200, true))
	set("email", validate.Email(f.Email))
	set("telephone", validate.Text(f.Telephone, 20, true))
	if f.Telephone != "" && !phoneChars.MatchString(phoneSeparators.ReplaceAllString(f.Telephone, "")) {
		set("telephone", errors.New("Veuillez saisir un numéro de téléphone valide."))
	}
	set("parcelles", validate.Text(f.Parcelles, 100, true))
	if f.Parcelles != "" && !parcelChars.MatchString(f.Parcelles) {
		set("parcelles", errors.New("Les numéros de parcelles ne peuvent contenir que des chiffres, espaces, virgules, points et tirets."))
	}
	if f.Commune == "" {
		set("commune", errors.New("La commune est obligatoire."))
	} else if validate.Enum(f.Commune, Communes) != nil {
		set("commune", errors.New("Veuillez sélectionner une commune valide."))
	}
	set("demande", validate.Text(f.Demande, 2000, true))
	if strings.TrimSpace(f.Demande) != "" {
		if validate.MinLength(f.Demande, 10) != nil {
			set("demande", errors.New("La description de votre demande doit contenir au moins 10 caractères."))
		}
	}

	if len(fields) > 0 {
		return &kernel.ValidationError{Fields: fields}
	}
	return nil
}

type pluiView struct {
	PLUiForm
	ReceivedAt string
}

// SubmitPLUi отправляет одно письмо на адрес PLUi; без ограничения частоты.
func (p *Pipeline) SubmitPLUi(ctx context.Context, form PLUiForm) error {
	if err := form.Validate(); err != nil {
		submissionsTotal.WithLabelValues(formPLUi, outcomeInvalid).Inc()
		return err
	}
	text, html, err := render("plui", pluiView{PLUiForm: form, ReceivedAt: p.clock.Now().Format(receivedLayout)})
	if err != nil {
		return fmt.Errorf("render plui: %w", err)
	}
	msg := mailer.Message{
		From:    form.Email,
		To:      []string{p.opts.PLUiEmail},
		Subject: fmt.Sprintf("Demande de modification PLUi - %s (%s)", form.NomPrenom, form.Commune),
		Text:    text,
		HTML:    html,
	}
	if err := p.sender.Send(ctx, msg); err != nil {
		submissionsTotal.WithLabelValues(formPLUi, outcomeFailed).Inc()
		p.logger.Errorw("Contact: PLUi request failed", "commune", form.Commune, "error", err)
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	submissionsTotal.WithLabelValues(formPLUi, outcomeSent).Inc()
	p.logger.Infow("Contact: PLUi request sent", "commune", form.Commune, "to", p.opts.PLUiEmail)
	return nil
}
