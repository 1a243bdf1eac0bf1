// Package clock — источник времени, который можно подменить в тестах.
package clock

import "time"

// Clock возвращает текущее время.
type Clock interface {
	Now() time.Time
}

// System — реальные часы процесса.
type System struct{}

func (System) Now() time.Time { return time.Now() }

// Fixed — часы, стоящие на месте. Advance сдвигает их вперёд.
type Fixed struct {
	T time.Time
}

func (f *Fixed) Now() time.Time { return f.T }

// Advance сдвигает часы на d.
func (f *Fixed) Advance(d time.Duration) { f.T = f.T.Add(d) }

// Hostname возвращает имя узла, используется в уведомлениях.
type Hostname func() (string, error)
