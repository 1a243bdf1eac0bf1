package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ccsa/internal/backup"
	"ccsa/internal/bootstrap"
	"ccsa/internal/config"
)

type createBackupCmd struct{}

func (createBackupCmd) Name() string { return "create_backup" }
func (createBackupCmd) Description() string {
	return "Crée une sauvegarde (BDD + media), applique la rotation et envoie une notification"
}
func (createBackupCmd) Usage() string { return "create_backup" }

func (createBackupCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) != 0 {
		return ErrUsage
	}
	return withApp(ctx, cfg, func(app *bootstrap.App) error {
		fmt.Fprintln(Out, "Démarrage de la sauvegarde automatique...")
		res, err := app.Backups.RunScheduled(ctx)
		if err != nil {
			var failed *backup.FailedError
			if errors.As(err, &failed) {
				return fmt.Errorf("erreur lors de la sauvegarde : %v", failed.Cause)
			}
			if errors.Is(err, backup.ErrAlreadyRunning) {
				return errors.New("une sauvegarde est déjà en cours")
			}
			return err
		}
		fmt.Fprintf(Out, "Backup créé : %s\n", res.Name)
		if len(res.Deleted) > 0 {
			fmt.Fprintf(Out, "Anciens backups supprimés : %s\n", strings.Join(res.Deleted, ", "))
		}
		fmt.Fprintln(Out, "Sauvegarde automatique terminée avec succès !")
		return nil
	})
}

type listBackupsCmd struct{}

func (listBackupsCmd) Name() string        { return "list_backups" }
func (listBackupsCmd) Description() string { return "Liste les sauvegardes stockées, des plus récentes aux plus anciennes" }
func (listBackupsCmd) Usage() string       { return "list_backups" }

func (listBackupsCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) != 0 {
		return ErrUsage
	}
	return withApp(ctx, cfg, func(app *bootstrap.App) error {
		archives, err := app.Backups.ListStored()
		if err != nil {
			return err
		}
		if len(archives) == 0 {
			fmt.Fprintln(Out, "Aucune sauvegarde.")
			return nil
		}
		for _, a := range archives {
			fmt.Fprintf(Out, "%-36s %10s  %s\n", a.Name, a.SizeHuman, a.CreatedAt.Format("02/01/2006 15:04"))
		}
		return nil
	})
}

// restoreBackupCmd распаковывает архив в отдельный каталог; живые данные не трогает.
type restoreBackupCmd struct{}

func (restoreBackupCmd) Name() string { return "restore_backup" }
func (restoreBackupCmd) Description() string {
	return "Extrait une sauvegarde dans un répertoire (db/, media/, manifest.json)"
}
func (restoreBackupCmd) Usage() string { return "restore_backup <archive.zip> <répertoire>" }

func (restoreBackupCmd) Run(_ context.Context, _ *config.Config, args []string) error {
	if len(args) != 2 {
		return ErrUsage
	}
	m, err := backup.Restore(args[0], args[1])
	if err != nil {
		return fmt.Errorf("restauration impossible : %w", err)
	}
	fmt.Fprintf(Out, "Sauvegarde du %s extraite dans %s\n", m.Timestamp, args[1])
	return nil
}

func init() {
	RegisterCmd(createBackupCmd{})
	RegisterCmd(listBackupsCmd{})
	RegisterCmd(restoreBackupCmd{})
}
