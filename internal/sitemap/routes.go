package sitemap

import "strconv"

// Route — именованная публичная страница сайта.
type Route struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	Label string `json:"label"`
}

// routes — все публичные страницы, на которые можно сослаться по имени
// (в том числе из карточки партнёра).
var routes = []Route{
	{"home", "/", "Accueil"},
	{"presentation", "/presentation/", "Présentation"},
	{"equipe", "/equipe/", "Équipe"},
	{"elus", "/bureau-communautaire/", "Élus du bureau communautaire"},
	{"conseil", "/conseil-communautaire/", "Conseil communautaire"},
	{"comptes_rendus", "/actes-administratifs/", "Comptes rendus"},
	{"competences", "/competences/", "Compétences"},
	{"journal", "/journal/", "Journal"},
	{"commissions", "/commissions/", "Commissions"},
	{"marches_publics", "/marches-publics/", "Marchés publics"},
	{"mobilite", "/mobilite/", "Mobilité"},
	{"habitat", "/habitat/", "Habitat"},
	{"dev_eco", "/developpement-economique/", "Développement économique"},
	{"collecte_dechets", "/collecte-dechets/", "Collecte des déchets"},
	{"encombrants", "/encombrants/", "Encombrants"},
	{"dechetteries", "/dechetteries/", "Déchèteries"},
	{"maisons_sante", "/maisons-sante-pluridisciplinaires/", "Maisons de santé"},
	{"mutuelle", "/mutuelle-intercommunautaire/", "Mutuelle intercommunautaire"},
	{"contrat_local_sante", "/contrat-local-sante/", "Contrat local santé"},
	{"mediapass", "/mediapass/", "Médi@'pass"},
	{"plui", "/plui/", "PLUi"},
	{"projet_plui", "/projet-plui/", "Projet PLUi"},
	{"documents_plui", "/documents-plui/", "Documents PLUi"},
	{"semestriel", "/semestriels/", "Calendrier semestriel"},
	{"rapports_activite", "/rapports-activite/", "Rapports d'activité"},
	{"partenaires", "/partenaires/", "Partenaires"},
	{"linktree", "/nos-liens/", "Liens utiles"},
	{"mentions_legales", "/mentions-legales/", "Mentions légales"},
	{"politique_confidentialite", "/politique-confidentialite/", "Politique de confidentialité"},
	{"cookies", "/politique-cookies/", "Politique de cookies"},
	{"plan_du_site", "/plan-du-site/", "Plan du site"},
	{"accessibilite", "/accessibilite/", "Accessibilité"},
	{"kit_logos", "/kit-logos/", "Kit de logos"},
	{"guide_eco_citoyen", "/guide-eco-citoyen/", "Guide éco-citoyen"},
}

// staticNames — страницы, попадающие в карту сайта, в порядке вывода.
var staticNames = []string{
	"home", "elus", "conseil", "comptes_rendus", "presentation", "competences",
	"journal", "commissions", "marches_publics", "mobilite", "habitat",
	"collecte_dechets", "encombrants", "dechetteries", "maisons_sante", "mutuelle",
	"plui", "projet_plui", "equipe", "semestriel", "rapports_activite",
	"mentions_legales", "politique_confidentialite",
}

// Routes возвращает копию таблицы страниц.
func Routes() []Route {
	return append([]Route(nil), routes...)
}

// RouteNames — имена всех страниц.
func RouteNames() []string {
	out := make([]string, len(routes))
	for i, r := range routes {
		out[i] = r.Name
	}
	return out
}

// Path возвращает путь страницы по имени.
func Path(name string) (string, bool) {
	for _, r := range routes {
		if r.Name == name {
			return r.Path, true
		}
	}
	return "", false
}

// CommunePath и JournalPath — пути страниц отдельных записей.
func CommunePath(slug string) string { return "/" + slug + "/" }

func JournalPath(id int64) string { return "/journal/" + strconv.FormatInt(id, 10) + "/" }
