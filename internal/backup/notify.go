package backup

import (
	"context"
	"errors"
	"fmt"

	"ccsa/internal/kernel"
	"ccsa/internal/mailer"
	"ccsa/internal/resources"
)

const (
	subjectSuccess = "[CCSA] Sauvegarde automatique réussie"
	subjectFailure = "[CCSA] ÉCHEC de la sauvegarde automatique"

	humanLayout = "02/01/2006 à 15:04"
)

// KernelSettings читает синглтон BackupSettings; пока его нет, действует
// адрес по умолчанию.
type KernelSettings struct {
	K *kernel.Kernel
}

func (s KernelSettings) NotificationEmail(ctx context.Context) (string, error) {
	rec, err := s.K.Singleton(ctx, resources.BackupSettings)
	if errors.Is(err, kernel.ErrNotFound) {
		return resources.DefaultBackupNotify, nil
	}
	if err != nil {
		return "", err
	}
	return rec.String("notification_email"), nil
}

// notify не возвращает ошибок: сбой отправки только логируется.
func (s *Service) notify(ctx context.Context, success bool, name string, cause error) {
	if s.sender == nil || s.settings == nil {
		return
	}
	to, err := s.settings.NotificationEmail(ctx)
	if err != nil {
		s.logger.Warnw("Backup: notification settings unavailable", "error", err)
		return
	}
	if to == "" {
		return
	}

	when := s.clock.Now().Format(humanLayout)
	msg := mailer.Message{From: s.opts.From, To: []string{to}}
	if success {
		msg.Subject = subjectSuccess
		msg.Text = fmt.Sprintf(`Bonjour,

La sauvegarde automatique du site CCSA s'est déroulée avec succès.

Détails :
- Fichier : %s
- Date : %s
- Emplacement : %s

Les %d dernières sauvegardes sont conservées. Les plus anciennes sont automatiquement supprimées.

Cordialement,
Le système de backup CCSA
`, name, when, s.store.Dir(), s.opts.Retention)
	} else {
		msg.Subject = subjectFailure
		msg.Text = fmt.Sprintf(`Bonjour,

La sauvegarde automatique du site CCSA a échoué.

Date : %s
Erreur : %v

Veuillez vérifier le système et lancer une sauvegarde manuelle si nécessaire.

Cordialement,
Le système de backup CCSA
`, when, cause)
	}

	if err := s.sender.Send(ctx, msg); err != nil {
		s.logger.Warnw("Backup: notification not sent", "to", to, "error", err)
	}
}
