package service

import (
	"context"
	"errors"
	"sort"

	"ccsa/internal/clock"
	"ccsa/internal/kernel"
	"ccsa/internal/markdown"
	"ccsa/internal/resources"
	"ccsa/internal/sitemap"
	"ccsa/internal/validate"

	"go.uber.org/zap"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Размеры страниц и срезы публичных списков.
const (
	JournalPageSize       = 3
	AdminCouncilPageSize  = 15
	RecentReports         = 4
	UpcomingCouncilsLimit = 5
)

// Site — публичное чтение: только выборка, без проверки прав.
type Site struct {
	k      *kernel.Kernel
	clock  clock.Clock
	logger *zap.SugaredLogger
}

func NewSite(k *kernel.Kernel, clk clock.Clock, logger *zap.SugaredLogger) *Site {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Site{k: k, clock: clk, logger: logger}
}

var _ sitemap.Source = (*Site)(nil)

func (s *Site) all(ctx context.Context, typeName string, filters ...kernel.Filter) ([]*kernel.Record, error) {
	p, err := s.k.List(ctx, typeName, kernel.ListOptions{Filters: filters})
	if err != nil {
		return nil, err
	}
	return p.Records, nil
}

// optionalSingleton: отсутствие записи — не ошибка.
func (s *Site) optionalSingleton(ctx context.Context, typeName string) (*kernel.Record, error) {
	r, err := s.k.Singleton(ctx, typeName)
	if errors.Is(err, kernel.ErrNotFound) {
		return nil, nil
	}
	return r, err
}

// HomePage — данные главной страницы.
type HomePage struct {
	Services    []*kernel.Record `json:"services"`
	Communes    int              `json:"nb_communes"`
	Inhabitants int64            `json:"nb_habitants"`
}

func (s *Site) Home(ctx context.Context) (*HomePage, error) {
	services, err := s.all(ctx, resources.Service)
	if err != nil {
		return nil, err
	}
	communes, err := s.all(ctx, resources.Commune)
	if err != nil {
		return nil, err
	}
	page := &HomePage{Services: services, Communes: len(communes)}
	for _, c := range communes {
		page.Inhabitants += c.Int("nb_habitants")
	}
	return page, nil
}

// Footer — список коммун для подвала всех страниц.
func (s *Site) Footer(ctx context.Context) ([]*kernel.Record, error) {
	return s.all(ctx, resources.Commune)
}

// Journals — страница журнала, по 3 выпуска, новые первыми.
func (s *Site) Journals(ctx context.Context, index string) (*kernel.Page, error) {
	return s.k.List(ctx, resources.Journal, kernel.ListOptions{
		Page: &kernel.PageRequest{Size: JournalPageSize, Index: index},
	})
}

// ReportsPage — четыре последних отчёта и архив.
type ReportsPage struct {
	Recent  []*kernel.Record `json:"recent"`
	Archive []*kernel.Record `json:"archive"`
}

func (s *Site) Reports(ctx context.Context) (*ReportsPage, error) {
	all, err := s.all(ctx, resources.ActivityReport)
	if err != nil {
		return nil, err
	}
	page := &ReportsPage{Recent: all, Archive: []*kernel.Record{}}
	if len(all) > RecentReports {
		page.Recent, page.Archive = all[:RecentReports], all[RecentReports:]
	}
	return page, nil
}

// CouncilsPage — ссылка на протоколы и ближайшие заседания.
type CouncilsPage struct {
	MinutesLink *kernel.Record   `json:"minutes_link"`
	Upcoming    []*kernel.Record `json:"upcoming"`
}

// Councils: заседания начиная с завтрашнего дня, по возрастанию даты.
func (s *Site) Councils(ctx context.Context) (*CouncilsPage, error) {
	link, err := s.optionalSingleton(ctx, resources.CouncilMinutesLink)
	if err != nil {
		return nil, err
	}
	tomorrow := s.clock.Now().AddDate(0, 0, 1).Format(validate.DateLayout)
	p, err := s.k.List(ctx, resources.Council, kernel.ListOptions{
		Filters: []kernel.Filter{{Field: "date", Op: ">=", Value: tomorrow}},
		Order:   []kernel.Order{{Field: "date"}, {Field: "hour"}},
		Page:    &kernel.PageRequest{Size: UpcomingCouncilsLimit, Index: "1"},
	})
	if err != nil {
		return nil, err
	}
	return &CouncilsPage{MinutesLink: link, Upcoming: p.Records}, nil
}

// AdminCouncils — все заседания, новые первыми, по 15 на страницу;
// Upcoming — число заседаний начиная с сегодняшнего дня.
func (s *Site) AdminCouncils(ctx context.Context, index string) (*kernel.Page, int64, error) {
	p, err := s.k.List(ctx, resources.Council, kernel.ListOptions{
		Page: &kernel.PageRequest{Size: AdminCouncilPageSize, Index: index},
	})
	if err != nil {
		return nil, 0, err
	}
	today := s.clock.Now().Format(validate.DateLayout)
	n, err := s.k.Count(ctx, resources.Council, []kernel.Filter{{Field: "date", Op: ">=", Value: today}})
	if err != nil {
		return nil, 0, err
	}
	return p, n, nil
}

// CommunePage — коммуна и её местный акт (если есть).
type CommunePage struct {
	Commune  *kernel.Record `json:"commune"`
	LocalAct *kernel.Record `json:"local_act"`
}

// Commune ищет коммуну по слагу; kernel.ErrNotFound, если её нет.
func (s *Site) Commune(ctx context.Context, slug string) (*CommunePage, error) {
	c, err := s.k.GetBy(ctx, resources.Commune, "slug", slug)
	if err != nil {
		return nil, err
	}
	page := &CommunePage{Commune: c}
	act, err := s.k.GetBy(ctx, resources.LocalAct, "commune", c.ID)
	switch {
	case err == nil:
		page.LocalAct = act
	case !errors.Is(err, kernel.ErrNotFound):
		return nil, err
	}
	return page, nil
}

// CouncilPage — коммуны по названию и члены совета.
type CouncilPage struct {
	Communes []*kernel.Record `json:"communes"`
	Members  []*kernel.Record `json:"members"`
}

func (s *Site) Council(ctx context.Context) (*CouncilPage, error) {
	communes, err := s.all(ctx, resources.Commune)
	if err != nil {
		return nil, err
	}
	members, err := s.all(ctx, resources.CommissionMember)
	if err != nil {
		return nil, err
	}
	return &CouncilPage{Communes: communes, Members: members}, nil
}

// DocumentView — документ с признаком наличия файла на диске.
type DocumentView struct {
	*kernel.Record
	Available bool `json:"available"`
}

// BureauPage — президент, вице-президенты по рангу, документы бюро.
type BureauPage struct {
	President      *kernel.Record   `json:"president"`
	VicePresidents []*kernel.Record `json:"vice_presidents"`
	Documents      []DocumentView   `json:"documents"`
}

// Officials — избранные: президент первым, затем по рангу.
func (s *Site) Officials(ctx context.Context) ([]*kernel.Record, error) {
	all, err := s.all(ctx, resources.ElectedOfficial)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool {
		pi := all[i].String("role") == resources.RolePresident
		pj := all[j].String("role") == resources.RolePresident
		if pi != pj {
			return pi
		}
		return all[i].Int("rank") < all[j].Int("rank")
	})
	return all, nil
}

func (s *Site) Bureau(ctx context.Context) (*BureauPage, error) {
	officials, err := s.Officials(ctx)
	if err != nil {
		return nil, err
	}
	page := &BureauPage{VicePresidents: []*kernel.Record{}, Documents: []DocumentView{}}
	for _, o := range officials {
		if o.String("role") == resources.RolePresident && page.President == nil {
			page.President = o
			continue
		}
		if o.String("role") == resources.RoleVicePresident {
			page.VicePresidents = append(page.VicePresidents, o)
		}
	}
	docs, err := s.all(ctx, resources.BureauDocument)
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		path := d.Attachment("document")
		page.Documents = append(page.Documents, DocumentView{
			Record:    d,
			Available: path != "" && s.k.Root().Exists(path),
		})
	}
	return page, nil
}

// CommissionsPage — комиссии, их участники, документ и мандат.
type CommissionsPage struct {
	Commissions []*kernel.Record `json:"commissions"`
	Officials   []*kernel.Record `json:"officials"`
	Members     []*kernel.Record `json:"members"`
	Document    *kernel.Record   `json:"document"`
	Mandate     *kernel.Record   `json:"mandate"`
}

// defaultMandate показывается, пока мандат не заведён.
func defaultMandate() *kernel.Record {
	return &kernel.Record{
		Type:        resources.Mandate,
		Fields:      map[string]any{"start_year": int64(2020), "end_year": int64(2026)},
		Attachments: map[string]string{},
	}
}

func (s *Site) Commissions(ctx context.Context) (*CommissionsPage, error) {
	page := &CommissionsPage{}
	var err error
	if page.Commissions, err = s.all(ctx, resources.Commission); err != nil {
		return nil, err
	}
	if page.Officials, err = s.Officials(ctx); err != nil {
		return nil, err
	}
	if page.Members, err = s.all(ctx, resources.CommissionMember); err != nil {
		return nil, err
	}
	if page.Document, err = s.optionalSingleton(ctx, resources.CommissionDocument); err != nil {
		return nil, err
	}
	mandates, err := s.all(ctx, resources.Mandate)
	if err != nil {
		return nil, err
	}
	page.Mandate = defaultMandate()
	if len(mandates) > 0 {
		page.Mandate = mandates[0]
	}
	return page, nil
}

// CompetencesPage — компетенции по категориям.
type CompetencesPage struct {
	Mandatory     []*kernel.Record `json:"obligatoires"`
	Optional      []*kernel.Record `json:"optionnelles"`
	Discretionary []*kernel.Record `json:"facultatives"`
}

func (s *Site) Competences(ctx context.Context) (*CompetencesPage, error) {
	all, err := s.all(ctx, resources.Competence)
	if err != nil {
		return nil, err
	}
	page := &CompetencesPage{
		Mandatory:     []*kernel.Record{},
		Optional:      []*kernel.Record{},
		Discretionary: []*kernel.Record{},
	}
	for _, c := range all {
		switch c.String("category") {
		case resources.CategoryMandatory:
			page.Mandatory = append(page.Mandatory, c)
		case resources.CategoryOptional:
			page.Optional = append(page.Optional, c)
		default:
			page.Discretionary = append(page.Discretionary, c)
		}
	}
	return page, nil
}

// Services — услуги по названию.
func (s *Site) Services(ctx context.Context) ([]*kernel.Record, error) {
	return s.all(ctx, resources.Service)
}

// LinkTree — активные ссылки по (ordre, titre).
func (s *Site) LinkTree(ctx context.Context) ([]*kernel.Record, error) {
	return s.all(ctx, resources.TreeLink, kernel.Filter{Field: "actif", Op: "=", Value: true})
}

// ActivityCalendar — семестровый календарь или nil.
func (s *Site) ActivityCalendar(ctx context.Context) (*kernel.Record, error) {
	return s.optionalSingleton(ctx, resources.ActivityCalendar)
}

// PartnerView — партнёр с готовым адресом и HTML-описанием.
type PartnerView struct {
	*kernel.Record
	URL             string `json:"url"`
	External        bool   `json:"external"`
	DescriptionHTML string `json:"description_html"`
}

// PartnerGroup — активная категория и её активные партнёры.
type PartnerGroup struct {
	Category *kernel.Record `json:"category"`
	Partners []PartnerView  `json:"partners"`
}

// PartnersPage — группы по (ordre, nom) категории и партнёры без категории.
type PartnersPage struct {
	Groups        []PartnerGroup `json:"groups"`
	Uncategorized []PartnerView  `json:"uncategorized"`
}

func (s *Site) Partners(ctx context.Context) (*PartnersPage, error) {
	cats, err := s.all(ctx, resources.PartnerCategory, kernel.Filter{Field: "active", Op: "=", Value: true})
	if err != nil {
		return nil, err
	}
	partners, err := s.all(ctx, resources.Partner, kernel.Filter{Field: "active", Op: "=", Value: true})
	if err != nil {
		return nil, err
	}

	byCat := map[int64][]PartnerView{}
	page := &PartnersPage{Groups: []PartnerGroup{}, Uncategorized: []PartnerView{}}
	for _, p := range partners {
		html, err := markdown.Render(p.String("description"))
		if err != nil {
			s.logger.Warnw("Site: partner description rendering failed", "id", p.ID, "error", err)
		}
		view := PartnerView{
			Record:          p,
			URL:             resources.PartnerURL(p),
			External:        p.String("type_lien") == resources.LinkExternal && p.String("site_web") != "",
			DescriptionHTML: html,
		}
		if cat, ok := p.RefID("categorie"); ok {
			byCat[cat] = append(byCat[cat], view)
			continue
		}
		page.Uncategorized = append(page.Uncategorized, view)
	}

	sortByName(page.Uncategorized)
	for _, c := range cats {
		views := byCat[c.ID]
		if len(views) == 0 {
			continue
		}
		sortByName(views)
		page.Groups = append(page.Groups, PartnerGroup{Category: c, Partners: views})
	}
	return page, nil
}

// sortByName: алфавитный порядок без учёта диакритики и регистра (É = E).
func sortByName(views []PartnerView) {
	col := collate.New(language.French, collate.Loose)
	sort.SliceStable(views, func(i, j int) bool {
		return col.CompareString(views[i].String("nom"), views[j].String("nom")) < 0
	})
}

// CommuneSlugs — для карты сайта.
func (s *Site) CommuneSlugs(ctx context.Context) ([]string, error) {
	communes, err := s.k.List(ctx, resources.Commune, kernel.ListOptions{Order: []kernel.Order{{Field: "id"}}})
	if err != nil {
		return nil, err
	}
	slugs := make([]string, 0, len(communes.Records))
	for _, c := range communes.Records {
		slugs = append(slugs, c.String("slug"))
	}
	return slugs, nil
}

// JournalEntries — для карты сайта.
func (s *Site) JournalEntries(ctx context.Context) ([]sitemap.JournalEntry, error) {
	journals, err := s.k.List(ctx, resources.Journal, kernel.ListOptions{Order: []kernel.Order{{Field: "id"}}})
	if err != nil {
		return nil, err
	}
	out := make([]sitemap.JournalEntry, 0, len(journals.Records))
	for _, j := range journals.Records {
		out = append(out, sitemap.JournalEntry{ID: j.ID, ReleaseDate: j.Date("release_date")})
	}
	return out, nil
}
