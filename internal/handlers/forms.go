package handlers

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strings"

	"ccsa/internal/contact"

	"go.uber.org/zap"
)

// maxFormBody — предел тела публичной формы.
const maxFormBody = 64 << 10

const (
	msgContactSent  = "Votre message a bien été envoyé. Nous vous répondrons dans les plus brefs délais."
	msgContactError = "Une erreur est survenue lors de l'envoi de votre message. Veuillez réessayer plus tard."
	msgPLUiSent     = "Votre demande de modification du PLUi a bien été envoyée."
	msgPLUiError    = "Une erreur est survenue lors de l'envoi de votre demande. Veuillez réessayer plus tard."
)

// FormHandler — формы обратной связи и PLUi.
type FormHandler struct {
	pipeline *contact.Pipeline
	logger   *zap.SugaredLogger
}

func NewFormHandler(p *contact.Pipeline, logger *zap.SugaredLogger) *FormHandler {
	return &FormHandler{pipeline: p, logger: logger}
}

// decodeForm читает JSON либо urlencoded/multipart тело в dst.
// fromValues заполняет dst из значений формы.
func decodeForm(w http.ResponseWriter, r *http.Request, dst any, fromValues func(get func(string) string)) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBody)
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		return json.NewDecoder(r.Body).Decode(dst)
	}
	if ct == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxFormBody); err != nil {
			return err
		}
	} else if err := r.ParseForm(); err != nil {
		return err
	}
	fromValues(r.PostForm.Get)
	return nil
}

// checked — значение флажка формы.
func checked(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on", "true", "1", "yes", "oui":
		return true
	}
	return false
}

// Contact принимает обращение. Превышение лимита неотличимо от успеха.
func (h *FormHandler) Contact(w http.ResponseWriter, r *http.Request) {
	var form contact.Form
	err := decodeForm(w, r, &form, func(get func(string) string) {
		form = contact.Form{
			FirstName: get("first_name"),
			LastName:  get("last_name"),
			Email:     get("email"),
			Phone:     get("phone"),
			Message:   get("message"),
			RGPD:      checked(get("rgpd")),
		}
	})
	if err != nil {
		writeMessage(w, http.StatusBadRequest, msgBadRequest)
		return
	}

	ip := contact.ClientIP(r.Header.Get("X-Forwarded-For"), r.RemoteAddr)
	_, err = h.pipeline.Submit(r.Context(), form, ip)
	switch {
	case err == nil, errors.Is(err, contact.ErrRateLimited):
		writeJSON(w, http.StatusAccepted, map[string]string{"message": msgContactSent})
	case errors.Is(err, contact.ErrDelivery):
		writeMessage(w, http.StatusInternalServerError, msgContactError)
	default:
		writeError(w, r, h.logger, err)
	}
}

func (h *FormHandler) PLUi(w http.ResponseWriter, r *http.Request) {
	var form contact.PLUiForm
	err := decodeForm(w, r, &form, func(get func(string) string) {
		form = contact.PLUiForm{
			NomPrenom: get("nom_prenom"),
			Adresse:   get("adresse"),
			Email:     get("email"),
			Telephone: get("telephone"),
			Parcelles: get("parcelles"),
			Commune:   get("commune"),
			Demande:   get("demande"),
		}
	})
	if err != nil {
		writeMessage(w, http.StatusBadRequest, msgBadRequest)
		return
	}

	err = h.pipeline.SubmitPLUi(r.Context(), form)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"message": msgPLUiSent})
	case errors.Is(err, contact.ErrDelivery):
		writeMessage(w, http.StatusInternalServerError, msgPLUiError)
	default:
		writeError(w, r, h.logger, err)
	}
}
