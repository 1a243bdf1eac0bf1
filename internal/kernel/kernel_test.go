package kernel_test

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"ccsa/internal/authz"
	"ccsa/internal/clock"
	"ccsa/internal/kernel"
	"ccsa/internal/repo"
	"ccsa/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var admin = authz.Principal{UserID: 1, Authenticated: true, Superuser: true}

func testTypes() []*kernel.ResourceType {
	return []*kernel.ResourceType{
		{
			Name: "calendar", Table: "calendar", Cardinality: kernel.Singleton, FixedID: 1,
			Slots: []kernel.Slot{
				{Name: "picture", Dir: "semestriels/image", Extensions: []string{"jpg", "jpeg", "png"}, Required: true},
				{Name: "file", Dir: "semestriels/calendrier", Extensions: []string{"pdf"}, Required: true},
			},
		},
		{
			Name: "journal", Table: "journal",
			Fields: []kernel.Field{
				{Name: "title", Kind: kernel.Text, Max: 200, Required: true},
				{Name: "number", Kind: kernel.Integer, Required: true},
			},
			Slots: []kernel.Slot{
				{Name: "cover", Dir: "MSA/couvertures", Extensions: []string{"png", "jpg", "jpeg"}, Required: true},
				{Name: "document", Dir: "MSA/documents", Extensions: []string{"pdf"}, Required: true},
				{Name: "extra", Dir: "MSA/extra"},
			},
			Ordering: []kernel.Order{{Field: "number", Desc: true}},
		},
		{
			Name: "commune", Table: "commune",
			Fields: []kernel.Field{
				{Name: "city_name", Kind: kernel.Text, Max: 30, Required: true, Unique: true},
				{Name: "slug", Kind: kernel.Slug, Max: 50, Required: true, Unique: true},
			},
			SlugField: "slug", SlugFrom: "city_name",
			Ordering:  []kernel.Order{{Field: "city_name"}},
		},
		{
			Name: "commission", Table: "commission",
			Fields: []kernel.Field{{Name: "title", Kind: kernel.Text, Max: 255, Required: true}},
		},
		{
			Name: "member", Table: "member",
			Fields: []kernel.Field{
				{Name: "first_name", Kind: kernel.Text, Max: 30, Required: true},
				{Name: "last_name", Kind: kernel.Text, Max: 30, Required: true, Upper: true},
				{Name: "city", Kind: kernel.Ref, RefType: "commune", Required: true},
				{Name: "commission", Kind: kernel.Ref, RefType: "commission", OnDelete: kernel.SetNull},
				{Name: "commissions", Kind: kernel.Refs, RefType: "commission"},
			},
			Unique: [][]string{{"first_name", "last_name", "city"}},
		},
	}
}

type env struct {
	k    *kernel.Kernel
	root *storage.Root
	clk  *clock.Fixed
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvWith(t, nil)
}

// newEnvWith позволяет обернуть хранилище (для проверок чередования запросов).
func newEnvWith(t *testing.T, wrap func(kernel.Store) kernel.Store) *env {
	t.Helper()
	dir := t.TempDir()
	db, err := repo.InitDB(filepath.Join(dir, "db.sqlite3"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close(db) })

	root, err := storage.New(filepath.Join(dir, "media"), nil)
	require.NoError(t, err)

	clk := &clock.Fixed{T: time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)}
	var store kernel.Store = repo.NewRecordStore(db)
	if wrap != nil {
		store = wrap(store)
	}
	k := kernel.New(store, root, clk, nil, 0)
	require.NoError(t, k.Register(context.Background(), testTypes()...))
	return &env{k: k, root: root, clk: clk}
}

func upload(name, content string) kernel.Upload {
	return kernel.Upload{Filename: name, Size: int64(len(content)), Content: strings.NewReader(content)}
}

func (e *env) files(t *testing.T) []string {
	t.Helper()
	var out []string
	require.NoError(t, e.root.Walk(func(rel string, _ fs.FileInfo) error {
		out = append(out, rel)
		return nil
	}))
	return out
}

func TestKernel_SingletonOverwrite(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	first, err := e.k.Create(ctx, admin, "calendar", kernel.Input{Files: map[string]kernel.Upload{
		"picture": upload("A.jpg", "A-img"), "file": upload("A.pdf", "A-pdf"),
	}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Record.ID)
	aPic, aPdf := first.Record.Attachment("picture"), first.Record.Attachment("file")
	assert.True(t, e.root.Exists(aPic))
	assert.True(t, e.root.Exists(aPdf))

	n, err := e.k.Count(ctx, "calendar", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	second, err := e.k.Create(ctx, admin, "calendar", kernel.Input{Files: map[string]kernel.Upload{
		"picture": upload("B.jpg", "B-img"), "file": upload("B.pdf", "B-pdf"),
	}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), second.Record.ID, "fixed primary key is kept")

	n, err = e.k.Count(ctx, "calendar", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.False(t, e.root.Exists(aPic))
	assert.False(t, e.root.Exists(aPdf))
	assert.True(t, e.root.Exists(second.Record.Attachment("picture")))
	assert.True(t, e.root.Exists(second.Record.Attachment("file")))
	assert.Len(t, e.files(t), 2)

	got, err := e.k.Singleton(ctx, "calendar")
	require.NoError(t, err)
	assert.Equal(t, second.Record.Attachment("file"), got.Attachment("file"))
}

func TestKernel_UpdateReplacesOnlyChangedSlot(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	created, err := e.k.Create(ctx, admin, "journal", kernel.Input{
		Values: map[string]string{"title": "J1", "number": "1"},
		Files:  map[string]kernel.Upload{"cover": upload("c1.jpg", "c1"), "document": upload("d1.pdf", "d1")},
	})
	require.NoError(t, err)
	c1, d1 := created.Record.Attachment("cover"), created.Record.Attachment("document")

	e.clk.Advance(time.Hour)
	updated, err := e.k.Update(ctx, admin, "journal", created.Record.ID, kernel.Input{
		Files: map[string]kernel.Upload{"cover": upload("c2.jpg", "c2")},
	})
	require.NoError(t, err)
	assert.Empty(t, updated.MissingFiles)

	c2 := updated.Record.Attachment("cover")
	assert.NotEqual(t, c1, c2)
	assert.False(t, e.root.Exists(c1))
	assert.True(t, e.root.Exists(c2))
	assert.True(t, e.root.Exists(d1))
	assert.Equal(t, d1, updated.Record.Attachment("document"))

	got, err := e.k.Get(ctx, "journal", created.Record.ID)
	require.NoError(t, err)
	assert.Equal(t, "J1", got.String("title"))
	assert.Equal(t, int64(1), got.Int("number"))
	assert.True(t, got.UpdatedAt.After(got.CreatedAt))
}

// interleavedStore выполняет beforeTx один раз перед следующей транзакцией,
// то есть между первым чтением записи и её сохранением.
type interleavedStore struct {
	kernel.Store
	beforeTx func()
}

func (s *interleavedStore) WithTx(ctx context.Context, fn func(tx kernel.Store) error) error {
	if hook := s.beforeTx; hook != nil {
		s.beforeTx = nil
		hook()
	}
	return s.Store.WithTx(ctx, fn)
}

func TestKernel_UpdateRebasesOnConcurrentChange(t *testing.T) {
	var is *interleavedStore
	e := newEnvWith(t, func(st kernel.Store) kernel.Store {
		is = &interleavedStore{Store: st}
		return is
	})
	ctx := context.Background()

	created, err := e.k.Create(ctx, admin, "journal", kernel.Input{
		Values: map[string]string{"title": "J1", "number": "1"},
		Files:  map[string]kernel.Upload{"cover": upload("c1.jpg", "c1"), "document": upload("d1.pdf", "d1")},
	})
	require.NoError(t, err)
	id := created.Record.ID
	c1, d1 := created.Record.Attachment("cover"), created.Record.Attachment("document")

	var c2 string
	is.beforeTx = func() {
		other, err := e.k.Update(ctx, admin, "journal", id, kernel.Input{
			Values: map[string]string{"number": "2"},
			Files:  map[string]kernel.Upload{"cover": upload("c2.jpg", "c2")},
		})
		require.NoError(t, err)
		c2 = other.Record.Attachment("cover")
	}

	updated, err := e.k.Update(ctx, admin, "journal", id, kernel.Input{
		Values: map[string]string{"title": "J1 bis"},
	})
	require.NoError(t, err)
	assert.Empty(t, updated.MissingFiles)

	got, err := e.k.Get(ctx, "journal", id)
	require.NoError(t, err)
	assert.Equal(t, "J1 bis", got.String("title"))
	assert.Equal(t, int64(2), got.Int("number"))
	assert.Equal(t, c2, got.Attachment("cover"))
	assert.True(t, e.root.Exists(got.Attachment("cover")), "stored cover must exist")
	assert.False(t, e.root.Exists(c1))
	assert.ElementsMatch(t, []string{c2, d1}, e.files(t))
}

func TestKernel_UpdateSameSlotConcurrentlyLeavesNoOrphan(t *testing.T) {
	var is *interleavedStore
	e := newEnvWith(t, func(st kernel.Store) kernel.Store {
		is = &interleavedStore{Store: st}
		return is
	})
	ctx := context.Background()

	created, err := e.k.Create(ctx, admin, "journal", kernel.Input{
		Values: map[string]string{"title": "J1", "number": "1"},
		Files:  map[string]kernel.Upload{"cover": upload("c1.jpg", "c1"), "document": upload("d1.pdf", "d1")},
	})
	require.NoError(t, err)
	id := created.Record.ID
	d1 := created.Record.Attachment("document")

	is.beforeTx = func() {
		_, err := e.k.Update(ctx, admin, "journal", id, kernel.Input{
			Files: map[string]kernel.Upload{"cover": upload("c2.jpg", "c2")},
		})
		require.NoError(t, err)
	}

	updated, err := e.k.Update(ctx, admin, "journal", id, kernel.Input{
		Files: map[string]kernel.Upload{"cover": upload("c3.jpg", "c3")},
	})
	require.NoError(t, err)
	c3 := updated.Record.Attachment("cover")

	got, err := e.k.Get(ctx, "journal", id)
	require.NoError(t, err)
	assert.Equal(t, c3, got.Attachment("cover"))
	assert.ElementsMatch(t, []string{c3, d1}, e.files(t))
}

func TestKernel_UpdateWarnsWhenOldFileMissing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	created, err := e.k.Create(ctx, admin, "journal", kernel.Input{
		Values: map[string]string{"title": "J1", "number": "1"},
		Files:  map[string]kernel.Upload{"cover": upload("c1.jpg", "c1"), "document": upload("d1.pdf", "d1")},
	})
	require.NoError(t, err)
	c1 := created.Record.Attachment("cover")
	_, err = e.root.Remove(c1)
	require.NoError(t, err)

	updated, err := e.k.Update(ctx, admin, "journal", created.Record.ID, kernel.Input{
		Files: map[string]kernel.Upload{"cover": upload("c2.jpg", "c2")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{c1}, updated.MissingFiles)
	assert.True(t, e.root.Exists(updated.Record.Attachment("cover")))
}

func TestKernel_ClearOptionalSlotAndRefuseRequired(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	created, err := e.k.Create(ctx, admin, "journal", kernel.Input{
		Values: map[string]string{"title": "J1", "number": "1"},
		Files: map[string]kernel.Upload{
			"cover": upload("c.jpg", "c"), "document": upload("d.pdf", "d"), "extra": upload("x.txt", "x"),
		},
	})
	require.NoError(t, err)
	extra := created.Record.Attachment("extra")

	updated, err := e.k.Update(ctx, admin, "journal", created.Record.ID, kernel.Input{Clear: []string{"extra"}})
	require.NoError(t, err)
	assert.Empty(t, updated.Record.Attachment("extra"))
	assert.False(t, e.root.Exists(extra))

	_, err = e.k.Update(ctx, admin, "journal", created.Record.ID, kernel.Input{Clear: []string{"document"}})
	var verr *kernel.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "document")
	assert.True(t, e.root.Exists(created.Record.Attachment("document")))
}

func TestKernel_DeleteIsIdempotentAndRemovesFiles(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	created, err := e.k.Create(ctx, admin, "journal", kernel.Input{
		Values: map[string]string{"title": "J1", "number": "1"},
		Files:  map[string]kernel.Upload{"cover": upload("c.jpg", "c"), "document": upload("d.pdf", "d")},
	})
	require.NoError(t, err)

	missing, err := e.k.Delete(ctx, admin, "journal", created.Record.ID)
	require.NoError(t, err)
	assert.Empty(t, missing)
	assert.Empty(t, e.files(t))

	_, err = e.k.Delete(ctx, admin, "journal", created.Record.ID)
	assert.ErrorIs(t, err, kernel.ErrNotFound)
	_, err = e.k.Get(ctx, "journal", created.Record.ID)
	assert.ErrorIs(t, err, kernel.ErrNotFound)
}

func TestKernel_ValidationWritesNothing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.k.Create(ctx, admin, "journal", kernel.Input{
		Values: map[string]string{"title": "", "number": "x"},
		Files:  map[string]kernel.Upload{"cover": upload("c.gif", "c")},
	})
	var verr *kernel.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "number")
	assert.Contains(t, verr.Fields, "cover")
	assert.Contains(t, verr.Fields, "document")
	assert.Empty(t, e.files(t))
}

func TestKernel_FileTooLarge(t *testing.T) {
	dir := t.TempDir()
	db, err := repo.InitDB(filepath.Join(dir, "db.sqlite3"))
	require.NoError(t, err)
	defer repo.Close(db)
	root, err := storage.New(filepath.Join(dir, "media"), nil)
	require.NoError(t, err)
	k := kernel.New(repo.NewRecordStore(db), root, nil, nil, 4)
	require.NoError(t, k.Register(context.Background(), testTypes()...))

	// объявленный размер превышает лимит
	_, err = k.Create(context.Background(), admin, "calendar", kernel.Input{Files: map[string]kernel.Upload{
		"picture": upload("a.jpg", "12345"), "file": upload("a.pdf", "1"),
	}})
	var verr *kernel.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "picture")

	// заниженный объявленный размер ловится при записи
	_, err = k.Create(context.Background(), admin, "calendar", kernel.Input{Files: map[string]kernel.Upload{
		"picture": {Filename: "a.jpg", Size: 1, Content: strings.NewReader("123456789")}, "file": upload("a.pdf", "1"),
	}})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "picture")
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

func TestKernel_AttachmentIOFailureRollsBackWrittenFiles(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.k.Create(ctx, admin, "journal", kernel.Input{
		Values: map[string]string{"title": "J1", "number": "1"},
		Files: map[string]kernel.Upload{
			"cover":    upload("c.jpg", "c"),
			"document": {Filename: "d.pdf", Size: 1, Content: io.Reader(failingReader{})},
		},
	})
	var ioErr *kernel.AttachmentIOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "document", ioErr.Slot)
	assert.Empty(t, e.files(t))

	n, err := e.k.Count(ctx, "journal", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestKernel_SlugDerivationAndUniqueness(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	m, err := e.k.Create(ctx, admin, "commune", kernel.Input{Values: map[string]string{"city_name": "Saint-Étienne-lès-Remiremont"}})
	require.NoError(t, err)
	assert.Equal(t, "saint-etienne-les-remiremont", m.Record.String("slug"))

	got, err := e.k.GetBy(ctx, "commune", "slug", "saint-etienne-les-remiremont")
	require.NoError(t, err)
	assert.Equal(t, m.Record.ID, got.ID)

	// то же название → тот же слаг → нарушение уникальности
	_, err = e.k.Create(ctx, admin, "commune", kernel.Input{Values: map[string]string{"city_name": "Saint-Étienne-lès-Remiremont"}})
	var uv *kernel.UniqueViolation
	require.ErrorAs(t, err, &uv)

	// другой город с явно заданным занятым слагом
	_, err = e.k.Create(ctx, admin, "commune", kernel.Input{Values: map[string]string{
		"city_name": "Autre", "slug": "saint-etienne-les-remiremont",
	}})
	require.ErrorAs(t, err, &uv)
	assert.Equal(t, []string{"slug"}, uv.Fields)

	_, err = e.k.GetBy(ctx, "commune", "slug", "absent")
	assert.ErrorIs(t, err, kernel.ErrNotFound)
}

func TestKernel_UniqueViolationRemovesWrittenFiles(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	rt := &kernel.ResourceType{
		Name: "report", Table: "report",
		Fields: []kernel.Field{{Name: "year", Kind: kernel.Integer, Required: true, Unique: true}},
		Slots:  []kernel.Slot{{Name: "file", Dir: "rapports", Extensions: []string{"pdf"}, Required: true}},
	}
	require.NoError(t, e.k.Register(ctx, rt))

	_, err := e.k.Create(ctx, admin, "report", kernel.Input{
		Values: map[string]string{"year": "2024"},
		Files:  map[string]kernel.Upload{"file": upload("r.pdf", "r")},
	})
	require.NoError(t, err)
	before := e.files(t)

	_, err = e.k.Create(ctx, admin, "report", kernel.Input{
		Values: map[string]string{"year": "2024"},
		Files:  map[string]kernel.Upload{"file": upload("r2.pdf", "r2")},
	})
	var uv *kernel.UniqueViolation
	require.ErrorAs(t, err, &uv)
	assert.Equal(t, before, e.files(t))
}

func TestKernel_UpperCaseLastNameAndReferences(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	anor, err := e.k.Create(ctx, admin, "commune", kernel.Input{Values: map[string]string{"city_name": "Anor"}})
	require.NoError(t, err)
	comm, err := e.k.Create(ctx, admin, "commission", kernel.Input{Values: map[string]string{"title": "Tourisme"}})
	require.NoError(t, err)

	ids := func(ids ...int64) string {
		parts := make([]string, 0, len(ids))
		for _, id := range ids {
			parts = append(parts, itoa(id))
		}
		return strings.Join(parts, ",")
	}

	m, err := e.k.Create(ctx, admin, "member", kernel.Input{Values: map[string]string{
		"first_name": "Jeanne", "last_name": "Dupont", "city": itoa(anor.Record.ID),
		"commission": itoa(comm.Record.ID), "commissions": ids(comm.Record.ID, comm.Record.ID),
	}})
	require.NoError(t, err)
	assert.Equal(t, "DUPONT", m.Record.String("last_name"))
	assert.Equal(t, []int64{comm.Record.ID}, m.Record.IDs("commissions"))

	u, err := e.k.Update(ctx, admin, "member", m.Record.ID, kernel.Input{Values: map[string]string{"last_name": "de la Fontaine"}})
	require.NoError(t, err)
	assert.Equal(t, "DE LA FONTAINE", u.Record.String("last_name"))
	assert.Equal(t, "Jeanne", u.Record.String("first_name"), "untouched fields survive")

	// ссылка на несуществующую коммуну
	_, err = e.k.Create(ctx, admin, "member", kernel.Input{Values: map[string]string{
		"first_name": "X", "last_name": "Y", "city": "999",
	}})
	var verr *kernel.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "city")

	// составная уникальность (first, last, city)
	_, err = e.k.Create(ctx, admin, "member", kernel.Input{Values: map[string]string{
		"first_name": "Jeanne", "last_name": "de la fontaine", "city": itoa(anor.Record.ID),
	}})
	var uv *kernel.UniqueViolation
	require.ErrorAs(t, err, &uv)

	// удаление комиссии обнуляет ссылку и чистит many-to-many
	_, err = e.k.Delete(ctx, admin, "commission", comm.Record.ID)
	require.NoError(t, err)
	got, err := e.k.Get(ctx, "member", m.Record.ID)
	require.NoError(t, err)
	_, has := got.RefID("commission")
	assert.False(t, has)
	assert.Empty(t, got.IDs("commissions"))

	// удаление коммуны каскадно удаляет члена
	_, err = e.k.Delete(ctx, admin, "commune", anor.Record.ID)
	require.NoError(t, err)
	_, err = e.k.Get(ctx, "member", m.Record.ID)
	assert.ErrorIs(t, err, kernel.ErrNotFound)
}

func TestKernel_Authorization(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	in := kernel.Input{Values: map[string]string{"title": "Finances"}}

	_, err := e.k.Create(ctx, authz.Anonymous, "commission", in)
	assert.ErrorIs(t, err, kernel.ErrForbidden)

	staff := authz.Principal{UserID: 5, Authenticated: true, Staff: true, Capabilities: []string{"commission.add"}}
	m, err := e.k.Create(ctx, staff, "commission", in)
	require.NoError(t, err)

	_, err = e.k.Update(ctx, staff, "commission", m.Record.ID, in)
	assert.ErrorIs(t, err, kernel.ErrForbidden)
	_, err = e.k.Delete(ctx, staff, "commission", m.Record.ID)
	assert.ErrorIs(t, err, kernel.ErrForbidden)

	_, err = e.k.Create(ctx, admin, "nope", in)
	assert.ErrorIs(t, err, kernel.ErrUnknownType)
}

func TestKernel_ListPagination(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	for i := 1; i <= 7; i++ {
		_, err := e.k.Create(ctx, admin, "journal", kernel.Input{
			Values: map[string]string{"title": "J" + itoa(int64(i)), "number": itoa(int64(i))},
			Files:  map[string]kernel.Upload{"cover": upload("c.jpg", "c"), "document": upload("d.pdf", "d")},
		})
		require.NoError(t, err)
	}

	numbers := func(p *kernel.Page) []int64 {
		var out []int64
		for _, r := range p.Records {
			out = append(out, r.Int("number"))
		}
		return out
	}

	p, err := e.k.List(ctx, "journal", kernel.ListOptions{Page: &kernel.PageRequest{Size: 3, Index: "1"}})
	require.NoError(t, err)
	assert.Equal(t, []int64{7, 6, 5}, numbers(p))
	assert.Equal(t, 3, p.NumPages)
	assert.True(t, p.HasNext)
	assert.False(t, p.HasPrev)

	p, err = e.k.List(ctx, "journal", kernel.ListOptions{Page: &kernel.PageRequest{Size: 3, Index: "abc"}})
	require.NoError(t, err)
	assert.Equal(t, 1, p.Number)

	p, err = e.k.List(ctx, "journal", kernel.ListOptions{Page: &kernel.PageRequest{Size: 3, Index: "99"}})
	require.NoError(t, err)
	assert.Equal(t, 3, p.Number)
	assert.Equal(t, []int64{1}, numbers(p))

	all, err := e.k.List(ctx, "journal", kernel.ListOptions{Order: []kernel.Order{{Field: "number"}}})
	require.NoError(t, err)
	assert.Len(t, all.Records, 7)
	assert.Equal(t, int64(1), all.Records[0].Int("number"))

	refs, err := e.k.ReferencedPaths(ctx)
	require.NoError(t, err)
	assert.Len(t, refs, 14)
}

func TestClampPage(t *testing.T) {
	assert.Equal(t, 1, kernel.ClampPage("", 4))
	assert.Equal(t, 1, kernel.ClampPage("x", 4))
	assert.Equal(t, 2, kernel.ClampPage("2", 4))
	assert.Equal(t, 4, kernel.ClampPage("5", 4))
	assert.Equal(t, 4, kernel.ClampPage("0", 4))
	assert.Equal(t, 1, kernel.ClampPage("3", 1))
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
