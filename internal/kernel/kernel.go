// Package kernel — обобщённый CRUD над «запись + вложенные файлы».
//
// Порядок любой изменяющей операции фиксирован: проверка прав → валидация →
// запись новых файлов → транзакция (замена синглтона, уникальность, строка) →
// удаление старых файлов. Файлы, записанные прерванной операцией, удаляются.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"

	"ccsa/internal/authz"
	"ccsa/internal/clock"
	"ccsa/internal/storage"
	"ccsa/internal/validate"

	"go.uber.org/zap"
)

// Kernel — сервис записей с вложениями для набора зарегистрированных типов.
type Kernel struct {
	store   Store
	root    *storage.Root
	clock   clock.Clock
	logger  *zap.SugaredLogger
	maxSize int64

	types map[string]*ResourceType
	names []string
}

// New создаёт ядро. maxSize — лимит файла по умолчанию (0 — 60 Мо).
func New(store Store, root *storage.Root, clk clock.Clock, logger *zap.SugaredLogger, maxSize int64) *Kernel {
	if maxSize <= 0 {
		maxSize = validate.DefaultMaxSize
	}
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Kernel{
		store:   store,
		root:    root,
		clock:   clk,
		logger:  logger,
		maxSize: maxSize,
		types:   map[string]*ResourceType{},
	}
}

// Register проверяет описания, создаёт таблицы и добавляет типы в ядро.
func (k *Kernel) Register(ctx context.Context, types ...*ResourceType) error {
	for _, rt := range types {
		if err := rt.validate(); err != nil {
			return err
		}
		if _, dup := k.types[rt.Name]; dup {
			return fmt.Errorf("resource type %s already registered", rt.Name)
		}
		if err := k.store.Migrate(ctx, rt); err != nil {
			return fmt.Errorf("migrate %s: %w", rt.Name, err)
		}
		k.types[rt.Name] = rt
		k.names = append(k.names, rt.Name)
	}
	return nil
}

// Type возвращает зарегистрированный тип.
func (k *Kernel) Type(name string) (*ResourceType, error) {
	rt, ok := k.types[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, name)
	}
	return rt, nil
}

// Types — все типы в порядке регистрации.
func (k *Kernel) Types() []*ResourceType {
	out := make([]*ResourceType, 0, len(k.names))
	for _, n := range k.names {
		out = append(out, k.types[n])
	}
	return out
}

// Root — корень хранилища вложений.
func (k *Kernel) Root() *storage.Root { return k.root }

func (k *Kernel) authorize(p authz.Principal, rt *ResourceType, action string) error {
	c := authz.Capability(rt.Name, action)
	if !authz.Check(p, c) {
		k.logger.Warnw("Kernel: permission denied", "user_id", p.UserID, "capability", c)
		return fmt.Errorf("%w: %s", ErrForbidden, c)
	}
	return nil
}

// Create создаёт запись. Для синглтона существующая запись и её файлы
// атомарно заменяются.
func (k *Kernel) Create(ctx context.Context, p authz.Principal, typeName string, in Input) (*Mutation, error) {
	rt, err := k.Type(typeName)
	if err != nil {
		return nil, err
	}
	if err := k.authorize(p, rt, authz.ActionAdd); err != nil {
		return nil, err
	}

	fields, verr := k.assemble(ctx, rt, in.Values, nil)
	if uerr := k.checkUploads(rt, in, nil); uerr != nil {
		if verr == nil {
			verr = uerr
		} else {
			for f, r := range uerr.Fields {
				verr.add(f, r)
			}
		}
	}
	if verr != nil {
		return nil, verr
	}

	written, err := k.writeUploads(rt, in.Files)
	if err != nil {
		return nil, err
	}

	now := k.clock.Now().UTC()
	rec := &Record{
		ID:          rt.FixedID,
		Type:        rt.Name,
		CreatedAt:   now,
		UpdatedAt:   now,
		Fields:      fields,
		Attachments: map[string]string{},
	}
	for slot, path := range written {
		rec.Attachments[slot] = path
	}

	var doomed []string
	err = k.store.WithTx(ctx, func(tx Store) error {
		if rt.Cardinality == Singleton {
			olds, err := tx.Find(ctx, rt, Query{})
			if err != nil {
				return err
			}
			for _, old := range olds {
				paths, err := k.deleteTree(ctx, tx, rt, old)
				if err != nil {
					return err
				}
				doomed = append(doomed, paths...)
			}
		}
		if err := k.checkUnique(ctx, tx, rt, rec); err != nil {
			return err
		}
		id, err := tx.Insert(ctx, rt, rec)
		if err != nil {
			return err
		}
		rec.ID = id
		return nil
	})
	if err != nil {
		k.discard(written)
		return nil, k.mapStoreError(rt, err)
	}

	missing := k.removeAll(doomed)
	k.logger.Infow("Kernel: record created", "type", rt.Name, "id", rec.ID, "user_id", p.UserID)
	return &Mutation{Record: rec, MissingFiles: missing}, nil
}

// Update меняет переданные поля и слоты. Старые файлы заменённых и
// очищенных слотов удаляются после фиксации.
func (k *Kernel) Update(ctx context.Context, p authz.Principal, typeName string, id int64, in Input) (*Mutation, error) {
	rt, err := k.Type(typeName)
	if err != nil {
		return nil, err
	}
	if err := k.authorize(p, rt, authz.ActionChange); err != nil {
		return nil, err
	}

	existing, err := k.store.Get(ctx, rt, id)
	if err != nil {
		return nil, err
	}

	fields, verr := k.assemble(ctx, rt, in.Values, existing.Fields)
	if uerr := k.checkUploads(rt, in, existing); uerr != nil {
		if verr == nil {
			verr = uerr
		} else {
			for f, r := range uerr.Fields {
				verr.add(f, r)
			}
		}
	}
	if verr != nil {
		return nil, verr
	}

	written, err := k.writeUploads(rt, in.Files)
	if err != nil {
		return nil, err
	}

	now := k.clock.Now().UTC()
	var (
		rec    *Record
		doomed []string
	)
	err = k.store.WithTx(ctx, func(tx Store) error {
		// строка могла измениться после первого чтения: файлы к удалению
		// считаются только от версии, прочитанной в транзакции
		cur, err := tx.Get(ctx, rt, id)
		if err != nil {
			return err
		}
		rec, doomed = rebase(rt, cur, existing, fields, in, written)
		rec.UpdatedAt = now
		if err := k.checkUnique(ctx, tx, rt, rec); err != nil {
			return err
		}
		return tx.Update(ctx, rt, rec)
	})
	if err != nil {
		k.discard(written)
		return nil, k.mapStoreError(rt, err)
	}

	missing := k.removeAll(doomed)
	if len(missing) > 0 {
		k.logger.Warnw("Kernel: previous attachment missing on disk", "type", rt.Name, "id", id, "paths", missing)
	}
	k.logger.Infow("Kernel: record updated", "type", rt.Name, "id", id, "user_id", p.UserID)
	return &Mutation{Record: rec, MissingFiles: missing}, nil
}

// rebase переносит изменения запроса на актуальную строку cur. Поле
// считается изменённым, если оно пришло во входе или его значение после
// сборки отличается от seen (производные поля). Остальные берутся из cur.
// Возвращает запись для сохранения и старые файлы заменённых и очищенных слотов.
func rebase(rt *ResourceType, cur, seen *Record, fields map[string]any, in Input, written map[string]string) (*Record, []string) {
	rec := cur.clone()
	for _, f := range rt.Fields {
		_, provided := in.Values[f.Name]
		if provided || !reflect.DeepEqual(fields[f.Name], seen.Fields[f.Name]) {
			rec.Fields[f.Name] = fields[f.Name]
		}
	}

	var doomed []string
	for slot, path := range written {
		if old := cur.Attachments[slot]; old != "" {
			doomed = append(doomed, old)
		}
		rec.Attachments[slot] = path
	}
	for _, slot := range in.Clear {
		if _, replaced := written[slot]; replaced {
			continue
		}
		if _, ok := rt.Slot(slot); !ok {
			continue
		}
		if old := cur.Attachments[slot]; old != "" {
			doomed = append(doomed, old)
		}
		rec.Attachments[slot] = ""
	}
	return rec, doomed
}

// Delete удаляет запись, зависимые записи (по правилам ссылок) и все их
// вложения. Отсутствующие на диске файлы не мешают удалению.
func (k *Kernel) Delete(ctx context.Context, p authz.Principal, typeName string, id int64) ([]string, error) {
	rt, err := k.Type(typeName)
	if err != nil {
		return nil, err
	}
	if err := k.authorize(p, rt, authz.ActionDelete); err != nil {
		return nil, err
	}

	var doomed []string
	err = k.store.WithTx(ctx, func(tx Store) error {
		rec, err := tx.Get(ctx, rt, id)
		if err != nil {
			return err
		}
		doomed, err = k.deleteTree(ctx, tx, rt, rec)
		return err
	})
	if err != nil {
		return nil, err
	}

	missing := k.removeAll(doomed)
	if len(missing) > 0 {
		k.logger.Warnw("Kernel: attachment already absent on delete", "type", rt.Name, "id", id, "paths", missing)
	}
	k.logger.Infow("Kernel: record deleted", "type", rt.Name, "id", id, "user_id", p.UserID)
	return missing, nil
}

// deleteTree удаляет строку и обрабатывает ссылки на неё из других типов.
// Возвращает пути вложений, которые нужно удалить после фиксации.
func (k *Kernel) deleteTree(ctx context.Context, tx Store, rt *ResourceType, rec *Record) ([]string, error) {
	var doomed []string
	for _, name := range k.names {
		dt := k.types[name]
		for _, f := range dt.Fields {
			if f.RefType != rt.Name {
				continue
			}
			switch f.Kind {
			case Ref:
				deps, err := tx.Find(ctx, dt, Query{Filters: []Filter{{Field: f.Name, Op: "=", Value: rec.ID}}})
				if err != nil {
					return nil, err
				}
				for _, dep := range deps {
					if f.OnDelete == SetNull {
						dep.Fields[f.Name] = nil
						if err := tx.Update(ctx, dt, dep); err != nil {
							return nil, err
						}
						continue
					}
					paths, err := k.deleteTree(ctx, tx, dt, dep)
					if err != nil {
						return nil, err
					}
					doomed = append(doomed, paths...)
				}
			case Refs:
				deps, err := tx.Find(ctx, dt, Query{})
				if err != nil {
					return nil, err
				}
				for _, dep := range deps {
					ids := dep.IDs(f.Name)
					kept := ids[:0:0]
					for _, x := range ids {
						if x != rec.ID {
							kept = append(kept, x)
						}
					}
					if len(kept) == len(ids) {
						continue
					}
					dep.Fields[f.Name] = kept
					if err := tx.Update(ctx, dt, dep); err != nil {
						return nil, err
					}
				}
			}
		}
	}

	if err := tx.Delete(ctx, rt, rec.ID); err != nil {
		return nil, err
	}
	for _, s := range rt.Slots {
		if path := rec.Attachments[s.Name]; path != "" {
			doomed = append(doomed, path)
		}
	}
	return doomed, nil
}

// checkUnique — предварительная проверка уникальности внутри транзакции.
// Уникальный индекс БД остаётся страховкой.
func (k *Kernel) checkUnique(ctx context.Context, tx Store, rt *ResourceType, rec *Record) error {
	for _, set := range rt.UniqueSets() {
		filters := make([]Filter, 0, len(set)+1)
		skip := false
		for _, name := range set {
			v := rec.Fields[name]
			if v == nil {
				skip = true
				break
			}
			filters = append(filters, Filter{Field: name, Op: "=", Value: v})
		}
		if skip {
			continue
		}
		if rec.ID != 0 {
			filters = append(filters, Filter{Field: "id", Op: "!=", Value: rec.ID})
		}
		n, err := tx.Count(ctx, rt, filters)
		if err != nil {
			return err
		}
		if n > 0 {
			return &UniqueViolation{Type: rt.Name, Fields: set}
		}
	}
	return nil
}

func (k *Kernel) mapStoreError(rt *ResourceType, err error) error {
	if errors.Is(err, ErrUniqueConstraint) {
		sets := rt.UniqueSets()
		fields := []string{}
		if len(sets) > 0 {
			fields = sets[0]
		}
		return &UniqueViolation{Type: rt.Name, Fields: fields}
	}
	return err
}

// writeUploads записывает файлы в порядке слотов. При ошибке уже
// записанные в этой операции файлы удаляются.
func (k *Kernel) writeUploads(rt *ResourceType, files map[string]Upload) (map[string]string, error) {
	written := map[string]string{}
	for _, s := range rt.Slots {
		up, ok := files[s.Name]
		if !ok {
			continue
		}
		path, _, err := k.root.Save(s.Dir, up.Filename, up.Content, k.slotMax(s))
		if err != nil {
			k.discard(written)
			if errors.Is(err, storage.ErrTooLarge) {
				return nil, &ValidationError{Fields: map[string]string{
					s.Name: validate.Size(k.slotMax(s)+1, k.slotMax(s)).Error(),
				}}
			}
			k.logger.Errorw("Kernel: attachment write failed", "type", rt.Name, "slot", s.Name, "error", err)
			return nil, &AttachmentIOError{Slot: s.Name, Err: err}
		}
		written[s.Name] = path
	}
	return written, nil
}

func (k *Kernel) discard(written map[string]string) {
	for _, path := range written {
		if _, err := k.root.Remove(path); err != nil {
			k.logger.Errorw("Kernel: rollback of written attachment failed", "path", path, "error", err)
		}
	}
}

// removeAll удаляет старые файлы и возвращает те, что уже отсутствовали.
// Отказ по выходу за корень для вызывающего равен «файла нет».
func (k *Kernel) removeAll(paths []string) []string {
	var missing []string
	for _, path := range paths {
		outcome, err := k.root.Remove(path)
		switch {
		case outcome == storage.AlreadyAbsent:
			missing = append(missing, path)
		case errors.Is(err, storage.ErrPathTraversal):
			missing = append(missing, path)
		case err != nil:
			k.logger.Errorw("Kernel: failed to remove attachment", "path", path, "error", err)
		}
	}
	sort.Strings(missing)
	return missing
}
