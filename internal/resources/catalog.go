// Package resources описывает все управляемые сущности сайта в виде
// дескрипторов ядра.
package resources

import (
	"context"
	"fmt"
	"strings"

	"ccsa/internal/clock"
	"ccsa/internal/kernel"
	"ccsa/internal/sitemap"
	"ccsa/internal/validate"
)

// Имена типов. Они же — префиксы прав "<type>.<action>".
const (
	Commune             = "commune"
	CommissionMember    = "commission_member"
	ElectedOfficial     = "elected_official"
	BureauDocument      = "bureau_document"
	Commission          = "commission"
	CommissionDocument  = "commission_document"
	Mandate             = "mandate"
	Competence          = "competence"
	CouncilMinutesLink  = "council_minutes_link"
	Council             = "council"
	LocalAct            = "local_act"
	Journal             = "journal"
	ActivityReport      = "activity_report"
	ActivityCalendar    = "activity_calendar"
	Service             = "service"
	PartnerCategory     = "partner_category"
	Partner             = "partner"
	TreeLink            = "tree_link"
	ContactRecipient    = "contact_recipient"
	BackupSettings      = "backup_settings"
	DefaultBackupNotify = "j.brechoire@gmail.com"
)

// Значения перечислений.
const (
	RolePresident     = "Président"
	RoleVicePresident = "Vice-Président"

	CategoryMandatory     = "OBLIGATOIRE"
	CategoryOptional      = "OPTIONNELLE"
	CategoryDiscretionary = "FACULTATIVE"

	LinkExternal = "externe"
	LinkInternal = "interne"
)

var (
	imageExt = []string{"png", "jpg", "jpeg"}
	pdfExt   = []string{"pdf"}
)

// TreeLinkIcons — допустимые значки страницы ссылок.
var TreeLinkIcons = []string{
	"facebook", "instagram", "linkedin", "youtube", "twitter", "tiktok", "snapchat",
	"pinterest", "whatsapp", "telegram", "line", "discord", "twitch",
}

// PartnerBackgrounds — допустимые цвета фона логотипа партнёра.
var PartnerBackgrounds = []string{"#f3f4f6", "#ffffff", "#e5e7eb", "#9ca3af", "#4b5563", "#dbeafe"}

// Catalog возвращает дескрипторы всех типов в порядке регистрации
// (цели ссылок раньше ссылающихся типов).
func Catalog(clk clock.Clock) []*kernel.ResourceType {
	if clk == nil {
		clk = clock.System{}
	}
	return []*kernel.ResourceType{
		{
			Name: Commune, Label: "Commune", Table: "communes",
			Fields: []kernel.Field{
				{Name: "city_name", Label: "Nom de la commune", Kind: kernel.Text, Max: 30, Required: true, Unique: true},
				{Name: "slug", Label: "Slug", Kind: kernel.Slug, Max: 50, Unique: true},
				{Name: "mayor_sex", Label: "Civilité du maire", Kind: kernel.Enum, Choices: []string{"Mme.", "M."}, Default: "M."},
				{Name: "mayor_first_name", Label: "Prénom du maire", Kind: kernel.Text, Max: 20, Required: true},
				{Name: "mayor_last_name", Label: "Nom du maire", Kind: kernel.Text, Max: 20, Required: true},
				{Name: "address", Label: "Adresse", Kind: kernel.Text, Max: 50, Required: true},
				{Name: "postal_code", Label: "Code postal", Kind: kernel.Text, Max: 5, Required: true},
				{Name: "phone_number", Label: "Téléphone", Kind: kernel.Text, Max: 10, Required: true},
				{Name: "website", Label: "Site web", Kind: kernel.URL},
				{Name: "slogan", Label: "Slogan", Kind: kernel.Text, Max: 100},
				{Name: "nb_habitants", Label: "Nombre d'habitants", Kind: kernel.Integer, Required: true},
			},
			Slots:     []kernel.Slot{{Name: "image", Dir: "communes/images", Extensions: imageExt, Required: true}},
			SlugField: "slug", SlugFrom: "city_name",
			Ordering: []kernel.Order{{Field: "city_name"}},
			Check:    checkCommune,
		},
		{
			Name: Commission, Label: "Commission", Table: "commissions",
			Fields: []kernel.Field{
				{Name: "title", Label: "Titre", Kind: kernel.Text, Max: 255, Required: true},
				{Name: "icon", Label: "Icône", Kind: kernel.Text, Max: 255, Required: true},
			},
			Ordering: []kernel.Order{{Field: "id"}},
		},
		{
			Name: CommissionMember, Label: "Membre du conseil", Table: "commission_members",
			Fields: []kernel.Field{
				{Name: "first_name", Label: "Prénom", Kind: kernel.Text, Max: 30, Required: true},
				{Name: "last_name", Label: "Nom", Kind: kernel.Text, Max: 30, Required: true, Upper: true},
				{Name: "city", Label: "Commune", Kind: kernel.Ref, RefType: Commune, Required: true, OnDelete: kernel.Cascade},
				{Name: "is_suppleant", Label: "Suppléant", Kind: kernel.Boolean},
				{Name: "sexe", Label: "Civilité", Kind: kernel.Enum, Choices: []string{"Madame", "Monsieur"}, Default: "Monsieur"},
				{Name: "linked_commission", Label: "Commission", Kind: kernel.Ref, RefType: Commission, OnDelete: kernel.Cascade},
			},
			Unique:   [][]string{{"first_name", "last_name", "city"}},
			Ordering: []kernel.Order{{Field: "last_name"}, {Field: "first_name"}},
		},
		{
			Name: ElectedOfficial, Label: "Élu", Table: "elected_officials",
			Fields: []kernel.Field{
				{Name: "first_name", Label: "Prénom", Kind: kernel.Text, Max: 100, Required: true},
				{Name: "last_name", Label: "Nom", Kind: kernel.Text, Max: 100, Required: true},
				{Name: "rank", Label: "Rang", Kind: kernel.Integer, Default: 0},
				{Name: "role", Label: "Rôle", Kind: kernel.Enum, Choices: []string{RoleVicePresident, RolePresident}, Default: RoleVicePresident},
				{Name: "function", Label: "Fonction", Kind: kernel.Text, Max: 100, Required: true},
				{Name: "city", Label: "Commune", Kind: kernel.Ref, RefType: Commune, Required: true, OnDelete: kernel.Cascade},
				{Name: "profession", Label: "Profession", Kind: kernel.Text, Max: 100},
				{Name: "linked_commission", Label: "Commissions", Kind: kernel.Refs, RefType: Commission},
			},
			Slots:    []kernel.Slot{{Name: "picture", Dir: "bureau_commu/elus", Extensions: imageExt, Required: true}},
			Ordering: []kernel.Order{{Field: "rank"}},
		},
		{
			Name: BureauDocument, Label: "Document du bureau", Table: "bureau_documents",
			Fields: []kernel.Field{
				{Name: "title", Label: "Titre", Kind: kernel.Text, Max: 100, Required: true},
				{Name: "type", Label: "Type", Kind: kernel.Enum, Choices: []string{"organigramme", "calendrier"}, Default: "organigramme"},
			},
			Slots: []kernel.Slot{{Name: "document", Dir: "bureau_commu/documents", Extensions: pdfExt, Required: true}},
		},
		{
			Name: CommissionDocument, Label: "Document de référence des commissions", Table: "commission_documents",
			Cardinality: kernel.Singleton, FixedID: 1,
			Slots: []kernel.Slot{{Name: "file", Dir: "commissions/documents", Required: true}},
		},
		{
			Name: Mandate, Label: "Mandat", Table: "mandates",
			Fields: []kernel.Field{
				{Name: "start_year", Label: "Année de début", Kind: kernel.Integer, Required: true},
				{Name: "end_year", Label: "Année de fin", Kind: kernel.Integer, Required: true},
			},
			Ordering: []kernel.Order{{Field: "start_year", Desc: true}},
			Check:    checkMandate,
		},
		{
			Name: Competence, Label: "Compétence", Table: "competences",
			Fields: []kernel.Field{
				{Name: "title", Label: "Titre", Kind: kernel.Text, Max: 255, Required: true},
				{Name: "icon", Label: "Icône", Kind: kernel.Text, Max: 1000, Required: true},
				{Name: "description", Label: "Description", Kind: kernel.LongText, Required: true},
				{Name: "category", Label: "Catégorie", Kind: kernel.Enum,
					Choices: []string{CategoryMandatory, CategoryOptional, CategoryDiscretionary}, Default: CategoryDiscretionary},
				{Name: "is_big", Label: "Mise en avant", Kind: kernel.Boolean},
			},
			Ordering: []kernel.Order{{Field: "id"}},
		},
		{
			Name: CouncilMinutesLink, Label: "Lien des comptes rendus", Table: "council_minutes_links",
			Cardinality: kernel.Singleton, FixedID: 1,
			Fields: []kernel.Field{{Name: "link", Label: "Lien", Kind: kernel.URL, Max: 200, Required: true}},
		},
		{
			Name: Council, Label: "Conseil", Table: "councils",
			Fields: []kernel.Field{
				{Name: "date", Label: "Date", Kind: kernel.Date, Required: true},
				{Name: "hour", Label: "Heure", Kind: kernel.Time, Required: true},
				{Name: "place", Label: "Lieu", Kind: kernel.Text, Max: 100, Required: true},
			},
			Slots:    []kernel.Slot{{Name: "day_order", Dir: "comptes-rendus/ordre-du-jour", Extensions: pdfExt}},
			Ordering: []kernel.Order{{Field: "date", Desc: true}},
		},
		{
			Name: LocalAct, Label: "Acte local", Table: "local_acts",
			Fields: []kernel.Field{
				{Name: "title", Label: "Titre", Kind: kernel.Text, Max: 200, Required: true},
				{Name: "date", Label: "Date", Kind: kernel.Date, Required: true},
				{Name: "description", Label: "Description", Kind: kernel.LongText, Max: 500, Required: true},
				{Name: "commune", Label: "Commune", Kind: kernel.Ref, RefType: Commune, Required: true, Unique: true, OnDelete: kernel.Cascade},
			},
			Slots:    []kernel.Slot{{Name: "file", Dir: "communes/actes_locaux", Extensions: pdfExt, Required: true}},
			Ordering: []kernel.Order{{Field: "date", Desc: true}},
		},
		{
			Name: Journal, Label: "Journal", Table: "journals",
			Fields: []kernel.Field{
				{Name: "title", Label: "Titre", Kind: kernel.Text, Max: 200, Required: true},
				{Name: "release_date", Label: "Date de publication", Kind: kernel.Date, Required: true},
				{Name: "number", Label: "Numéro", Kind: kernel.Integer, Default: 0},
				{Name: "page_number", Label: "Nombre de pages", Kind: kernel.Integer, Default: 0},
			},
			Slots: []kernel.Slot{
				{Name: "cover", Dir: "MSA/couvertures", Extensions: imageExt, Required: true},
				{Name: "document", Dir: "MSA/documents", Extensions: pdfExt, Required: true},
			},
			Ordering: []kernel.Order{{Field: "number", Desc: true}},
		},
		{
			Name: ActivityReport, Label: "Rapport d'activité", Table: "activity_reports",
			Fields: []kernel.Field{
				{Name: "title", Label: "Titre du rapport", Kind: kernel.Text, Max: 255},
				{Name: "year", Label: "Année du rapport", Kind: kernel.Integer, Required: true, Unique: true},
				{Name: "description", Label: "Description du rapport", Kind: kernel.LongText},
				{Name: "publish_date", Label: "Date de publication", Kind: kernel.DateTime},
			},
			Slots: []kernel.Slot{{Name: "file", Dir: "rapports_activite/rapports",
				Extensions: []string{"pdf", "docx", "doc", "txt"}, Required: true}},
			Ordering:  []kernel.Order{{Field: "year", Desc: true}},
			Normalize: reportDefaults(clk),
		},
		{
			Name: ActivityCalendar, Label: "Calendrier semestriel", Table: "activity_calendars",
			Cardinality: kernel.Singleton, FixedID: 1,
			Slots: []kernel.Slot{
				{Name: "picture", Dir: "semestriels/image", Extensions: []string{"jpg", "jpeg", "png"}, Required: true},
				{Name: "file", Dir: "semestriels/calendrier", Extensions: pdfExt, Required: true},
			},
		},
		{
			Name: Service, Label: "Service", Table: "services",
			Fields: []kernel.Field{
				{Name: "title", Label: "Titre", Kind: kernel.Text, Max: 100, Required: true},
				{Name: "content", Label: "Description", Kind: kernel.LongText, Required: true},
				{Name: "icon", Label: "Icône", Kind: kernel.LongText, Required: true},
			},
			Ordering: []kernel.Order{{Field: "title"}},
		},
		{
			Name: PartnerCategory, Label: "Catégorie de partenaire", Table: "partner_categories",
			Fields: []kernel.Field{
				{Name: "nom", Label: "Nom", Kind: kernel.Text, Max: 100, Required: true, Unique: true},
				{Name: "ordre", Label: "Ordre d'affichage", Kind: kernel.Integer, Default: 0},
				{Name: "active", Label: "Actif", Kind: kernel.Boolean, Default: true},
			},
			Ordering: []kernel.Order{{Field: "ordre"}, {Field: "nom"}},
		},
		{
			Name: Partner, Label: "Partenaire", Table: "partners",
			Fields: []kernel.Field{
				{Name: "nom", Label: "Nom", Kind: kernel.Text, Max: 200, Required: true},
				{Name: "categorie", Label: "Catégorie", Kind: kernel.Ref, RefType: PartnerCategory, OnDelete: kernel.SetNull},
				{Name: "description", Label: "Description", Kind: kernel.LongText, Required: true},
				{Name: "type_lien", Label: "Type de lien", Kind: kernel.Enum, Choices: []string{LinkExternal, LinkInternal}, Default: LinkExternal},
				{Name: "site_web", Label: "Site web (URL externe)", Kind: kernel.URL},
				{Name: "lien_interne", Label: "Page interne", Kind: kernel.Enum, Max: 50, Choices: sitemap.RouteNames()},
				{Name: "couleur_fond", Label: "Couleur de fond du logo", Kind: kernel.Enum, Choices: PartnerBackgrounds, Default: PartnerBackgrounds[0]},
				{Name: "ordre", Label: "Ordre d'affichage", Kind: kernel.Integer, Default: 0},
				{Name: "active", Label: "Actif", Kind: kernel.Boolean, Default: true},
			},
			Slots: []kernel.Slot{{Name: "logo", Dir: "partenaires/logos",
				Extensions: []string{"png", "jpg", "jpeg", "webp", "svg"}}},
			Ordering: []kernel.Order{{Field: "ordre"}, {Field: "nom"}},
			Check:    checkPartnerLink,
		},
		{
			Name: TreeLink, Label: "Lien", Table: "tree_links",
			Fields: []kernel.Field{
				{Name: "titre", Label: "Titre", Kind: kernel.Text, Max: 100, Required: true},
				{Name: "url", Label: "URL", Kind: kernel.URL, Required: true},
				{Name: "icone", Label: "Icône", Kind: kernel.Enum, Choices: TreeLinkIcons, Required: true},
				{Name: "ordre", Label: "Ordre", Kind: kernel.Integer, Default: 0},
				{Name: "actif", Label: "Actif", Kind: kernel.Boolean, Default: true},
			},
			Ordering: []kernel.Order{{Field: "ordre"}, {Field: "titre"}},
		},
		{
			Name: ContactRecipient, Label: "Contact Email", Table: "contact_recipients",
			Fields: []kernel.Field{
				{Name: "email", Label: "Email", Kind: kernel.Email, Required: true, Unique: true},
				{Name: "is_active", Label: "Actif", Kind: kernel.Boolean, Default: true},
			},
			Ordering: []kernel.Order{{Field: "id"}},
		},
		{
			Name: BackupSettings, Label: "Paramètre de backup", Table: "backup_settings",
			Cardinality: kernel.Singleton, FixedID: 1,
			Fields: []kernel.Field{
				{Name: "notification_email", Label: "Email de notification", Kind: kernel.Email,
					Required: true, Default: DefaultBackupNotify},
			},
		},
	}
}

// Register регистрирует весь каталог в ядре.
func Register(ctx context.Context, k *kernel.Kernel, clk clock.Clock) error {
	if err := k.Register(ctx, Catalog(clk)...); err != nil {
		return fmt.Errorf("register resources: %w", err)
	}
	return nil
}

func checkCommune(f map[string]any) map[string]string {
	errs := map[string]string{}
	if pc, _ := f["postal_code"].(string); pc != "" && !validate.IsDigits(pc) {
		errs["postal_code"] = "Le code postal ne doit contenir que des chiffres."
	}
	if phone, _ := f["phone_number"].(string); phone != "" {
		if err := validate.Phone(phone, 10); err != nil {
			errs["phone_number"] = err.Error()
		}
	}
	if n, ok := f["nb_habitants"].(int64); ok && n < 0 {
		errs["nb_habitants"] = "Le nombre d'habitants ne peut pas être négatif."
	}
	return errs
}

func checkMandate(f map[string]any) map[string]string {
	start, ok1 := f["start_year"].(int64)
	end, ok2 := f["end_year"].(int64)
	if ok1 && ok2 && end < start {
		return map[string]string{"end_year": "L'année de fin doit être postérieure à l'année de début."}
	}
	return nil
}

// checkPartnerLink: внешний тип требует адрес сайта, внутренний — имя страницы.
func checkPartnerLink(f map[string]any) map[string]string {
	kind, _ := f["type_lien"].(string)
	site, _ := f["site_web"].(string)
	internal, _ := f["lien_interne"].(string)
	switch {
	case kind == LinkExternal && strings.TrimSpace(site) == "":
		return map[string]string{"site_web": "Le site web est obligatoire pour un lien externe."}
	case kind == LinkInternal && strings.TrimSpace(internal) == "":
		return map[string]string{"lien_interne": "La page interne est obligatoire pour un lien interne."}
	}
	return nil
}

// reportDefaults заполняет пустые заголовок, описание и дату публикации.
func reportDefaults(clk clock.Clock) func(map[string]any) {
	return func(f map[string]any) {
		year, ok := f["year"].(int64)
		if !ok {
			return
		}
		if s, _ := f["title"].(string); strings.TrimSpace(s) == "" {
			f["title"] = fmt.Sprintf("Rapport d'activité %d", year)
		}
		if s, _ := f["description"].(string); strings.TrimSpace(s) == "" {
			f["description"] = fmt.Sprintf("Bilan des actions menées en %d.", year)
		}
		if s, _ := f["publish_date"].(string); s == "" {
			f["publish_date"] = clk.Now().UTC().Format(validate.DateTimeLayout)
		}
	}
}

// PartnerURL возвращает адрес партнёра: внешний сайт или путь внутренней страницы.
func PartnerURL(r *kernel.Record) string {
	switch r.String("type_lien") {
	case LinkInternal:
		if p, ok := sitemap.Path(r.String("lien_interne")); ok {
			return p
		}
	case LinkExternal:
		return r.String("site_web")
	}
	return ""
}
