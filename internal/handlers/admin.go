package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"ccsa/internal/authz"
	"ccsa/internal/config"
	"ccsa/internal/kernel"
	"ccsa/internal/resources"
	"ccsa/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	// adminPageSize — записей на странице списка back-office.
	adminPageSize = 25
	// multipartMemory — часть формы в памяти; остальное во временных файлах.
	multipartMemory = 8 << 20
	// clearField — имена слотов, которые нужно очистить.
	clearField = "_clear"
)

// AdminHandler — CRUD back-office поверх ядра.
type AdminHandler struct {
	kernel *kernel.Kernel
	site   *service.Site
	logger *zap.SugaredLogger
	cfg    *config.Config
}

func NewAdminHandler(k *kernel.Kernel, site *service.Site, logger *zap.SugaredLogger, cfg *config.Config) *AdminHandler {
	return &AdminHandler{kernel: k, site: site, logger: logger, cfg: cfg}
}

type fieldInfo struct {
	Name     string   `json:"name"`
	Label    string   `json:"label"`
	Kind     string   `json:"kind"`
	Max      int      `json:"max,omitempty"`
	Required bool     `json:"required"`
	Unique   bool     `json:"unique,omitempty"`
	Choices  []string `json:"choices,omitempty"`
	RefType  string   `json:"ref_type,omitempty"`
}

type slotInfo struct {
	Name       string   `json:"name"`
	Extensions []string `json:"extensions,omitempty"`
	MaxSize    int64    `json:"max_size"`
	Required   bool     `json:"required"`
}

type typeInfo struct {
	Name      string      `json:"name"`
	Label     string      `json:"label"`
	Singleton bool        `json:"singleton"`
	Fields    []fieldInfo `json:"fields"`
	Slots     []slotInfo  `json:"slots"`
	Actions   []string    `json:"actions"`
}

// Types — типы, которые субъект может хотя бы просматривать, с его действиями.
func (h *AdminHandler) Types(w http.ResponseWriter, r *http.Request) {
	p := authz.FromContext(r.Context())
	out := []typeInfo{}
	for _, rt := range h.kernel.Types() {
		var actions []string
		for _, a := range authz.Actions {
			if authz.Check(p, authz.Capability(rt.Name, a)) {
				actions = append(actions, a)
			}
		}
		if len(actions) == 0 {
			continue
		}
		ti := typeInfo{
			Name:      rt.Name,
			Label:     rt.Label,
			Singleton: rt.Cardinality == kernel.Singleton,
			Fields:    make([]fieldInfo, 0, len(rt.Fields)),
			Slots:     make([]slotInfo, 0, len(rt.Slots)),
			Actions:   actions,
		}
		for _, f := range rt.Fields {
			ti.Fields = append(ti.Fields, fieldInfo{
				Name: f.Name, Label: f.Label, Kind: f.Kind.String(), Max: f.Max,
				Required: f.Required, Unique: f.Unique, Choices: f.Choices, RefType: f.RefType,
			})
		}
		for _, s := range rt.Slots {
			max := s.MaxSize
			if max == 0 {
				max = h.cfg.MaxUploadSize
			}
			ti.Slots = append(ti.Slots, slotInfo{Name: s.Name, Extensions: s.Extensions, MaxSize: max, Required: s.Required})
		}
		out = append(out, ti)
	}
	writeJSON(w, http.StatusOK, out)
}

// canView — проверка права просмотра; чтение в ядре права не проверяет.
func (h *AdminHandler) canView(w http.ResponseWriter, r *http.Request, typeName string) bool {
	if _, err := h.kernel.Type(typeName); err != nil {
		writeError(w, r, h.logger, err)
		return false
	}
	if !authz.Check(authz.FromContext(r.Context()), authz.Capability(typeName, authz.ActionView)) {
		deny(w, r)
		return false
	}
	return true
}

func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	typeName := chi.URLParam(r, "type")
	if !h.canView(w, r, typeName) {
		return
	}
	page, err := h.kernel.List(r.Context(), typeName, kernel.ListOptions{
		Page: &kernel.PageRequest{Size: adminPageSize, Index: r.URL.Query().Get("page")},
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Councils — заседания для back-office и число предстоящих.
func (h *AdminHandler) Councils(w http.ResponseWriter, r *http.Request) {
	if !h.canView(w, r, resources.Council) {
		return
	}
	page, upcoming, err := h.site.AdminCouncils(r.Context(), r.URL.Query().Get("page"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"page": page, "upcoming_count": upcoming})
}

func (h *AdminHandler) Get(w http.ResponseWriter, r *http.Request) {
	typeName := chi.URLParam(r, "type")
	if !h.canView(w, r, typeName) {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rec, err := h.kernel.Get(r.Context(), typeName, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type mutationResponse struct {
	Record       *kernel.Record `json:"record"`
	MissingFiles []string       `json:"missing_files"`
}

func respondMutation(w http.ResponseWriter, status int, m *kernel.Mutation) {
	missing := m.MissingFiles
	if missing == nil {
		missing = []string{}
	}
	writeJSON(w, status, mutationResponse{Record: m.Record, MissingFiles: missing})
}

func (h *AdminHandler) Create(w http.ResponseWriter, r *http.Request) {
	in, cleanup, err := h.readInput(w, r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, msgBadRequest)
		return
	}
	defer cleanup()

	m, err := h.kernel.Create(r.Context(), authz.FromContext(r.Context()), chi.URLParam(r, "type"), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	respondMutation(w, http.StatusCreated, m)
}

func (h *AdminHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	in, cleanup, err := h.readInput(w, r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, msgBadRequest)
		return
	}
	defer cleanup()

	m, err := h.kernel.Update(r.Context(), authz.FromContext(r.Context()), chi.URLParam(r, "type"), id, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	respondMutation(w, http.StatusOK, m)
}

func (h *AdminHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	missing, err := h.kernel.Delete(r.Context(), authz.FromContext(r.Context()), chi.URLParam(r, "type"), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if missing == nil {
		missing = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"missing_files": missing})
}

// readInput собирает kernel.Input из JSON, urlencoded или multipart тела.
// cleanup закрывает открытые файлы и удаляет временные файлы формы.
func (h *AdminHandler) readInput(w http.ResponseWriter, r *http.Request) (kernel.Input, func(), error) {
	in := kernel.Input{Values: map[string]string{}, Files: map[string]kernel.Upload{}}
	noop := func() {}

	// несколько слотов в одном запросе плюс поля формы
	limit := h.cfg.MaxUploadSize*4 + multipartMemory
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch ct {
	case "application/json":
		var raw map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			return in, noop, err
		}
		for name, msg := range raw {
			if name == clearField {
				var slots []string
				if err := json.Unmarshal(msg, &slots); err != nil {
					return in, noop, err
				}
				in.Clear = slots
				continue
			}
			v, err := jsonValue(msg)
			if err != nil {
				return in, noop, fmt.Errorf("field %s: %w", name, err)
			}
			in.Values[name] = v
		}
		return in, noop, nil

	case "multipart/form-data":
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return in, noop, err
		}
		formValues(in.Values, r.MultipartForm.Value)
		in.Clear = r.MultipartForm.Value[clearField]

		var opened []multipart.File
		cleanup := func() {
			for _, f := range opened {
				_ = f.Close()
			}
			_ = r.MultipartForm.RemoveAll()
		}
		for slot, headers := range r.MultipartForm.File {
			if len(headers) == 0 {
				continue
			}
			fh := headers[0]
			f, err := fh.Open()
			if err != nil {
				cleanup()
				return in, noop, err
			}
			opened = append(opened, f)
			in.Files[slot] = kernel.Upload{Filename: fh.Filename, Size: fh.Size, Content: f}
		}
		return in, cleanup, nil

	default:
		if err := r.ParseForm(); err != nil {
			return in, noop, err
		}
		formValues(in.Values, r.PostForm)
		in.Clear = r.PostForm[clearField]
		return in, noop, nil
	}
}

// formValues: повторяющиеся значения (множественный выбор) склеиваются через запятую.
func formValues(dst map[string]string, src map[string][]string) {
	for name, vs := range src {
		if name == clearField {
			continue
		}
		dst[name] = strings.Join(vs, ",")
	}
}

// jsonValue переводит JSON-значение в сырую строку формы.
func jsonValue(msg json.RawMessage) (string, error) {
	msg = bytes.TrimSpace(msg)
	if len(msg) == 0 || bytes.Equal(msg, []byte("null")) {
		return "", nil
	}
	switch msg[0] {
	case '"':
		var s string
		err := json.Unmarshal(msg, &s)
		return s, err
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(msg, &items); err != nil {
			return "", err
		}
		parts := make([]string, 0, len(items))
		for _, it := range items {
			s, err := jsonValue(it)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ","), nil
	case 't', 'f':
		var b bool
		err := json.Unmarshal(msg, &b)
		return strconv.FormatBool(b), err
	case '{':
		return "", fmt.Errorf("nested objects are not supported")
	default:
		var n json.Number
		d := json.NewDecoder(bytes.NewReader(msg))
		d.UseNumber()
		if err := d.Decode(&n); err != nil {
			return "", err
		}
		return n.String(), nil
	}
}
