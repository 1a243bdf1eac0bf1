package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ccsa/internal/bootstrap"
	"ccsa/internal/config"
	"ccsa/internal/model"
	"ccsa/internal/service"
)

type migrateCmd struct{}

func (migrateCmd) Name() string        { return "migrate" }
func (migrateCmd) Description() string { return "Crée ou met à jour les tables de la base" }
func (migrateCmd) Usage() string       { return "migrate" }

func (migrateCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) != 0 {
		return ErrUsage
	}
	// Open регистрирует каталог, а регистрация мигрирует таблицы
	return withApp(ctx, cfg, func(app *bootstrap.App) error {
		fmt.Fprintf(Out, "Migrations appliquées (%d types de ressources).\n", len(app.Kernel.Types()))
		return nil
	})
}

type createSuperuserCmd struct{}

func (createSuperuserCmd) Name() string        { return "createsuperuser" }
func (createSuperuserCmd) Description() string { return "Crée un compte superutilisateur" }
func (createSuperuserCmd) Usage() string       { return "createsuperuser <email> <mot de passe> [nom]" }

func (createSuperuserCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return ErrUsage
	}
	username := ""
	if len(args) == 3 {
		username = args[2]
	}
	return withApp(ctx, cfg, func(app *bootstrap.App) error {
		u, err := app.Users.CreateSuperuser(ctx, args[0], username, args[1])
		if err != nil {
			return accountError(err)
		}
		fmt.Fprintf(Out, "Superutilisateur créé : %s\n", u.Email)
		return nil
	})
}

// grantCmd и revokeCmd меняют права вида "<type>.<action>".
type grantCmd struct{ revoke bool }

func (c grantCmd) Name() string {
	if c.revoke {
		return "revoke"
	}
	return "grant"
}

func (c grantCmd) Description() string {
	if c.revoke {
		return "Retire des permissions à un utilisateur"
	}
	return "Accorde des permissions (<type>.<view|add|change|delete>) à un utilisateur"
}

func (c grantCmd) Usage() string { return c.Name() + " <email> <permission>..." }

func (c grantCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) < 2 {
		return ErrUsage
	}
	return withApp(ctx, cfg, func(app *bootstrap.App) error {
		var (
			u   *model.User
			err error
		)
		if c.revoke {
			u, err = app.Users.Revoke(ctx, args[0], args[1:]...)
		} else {
			u, err = app.Users.Grant(ctx, args[0], args[1:]...)
		}
		if err != nil {
			return accountError(err)
		}
		caps := "(aucune)"
		if len(u.Capabilities) > 0 {
			caps = strings.Join(u.Capabilities, ", ")
		}
		fmt.Fprintf(Out, "Permissions de %s : %s\n", u.Email, caps)
		return nil
	})
}

// accountError переводит ошибки учётных записей в сообщения для оператора.
func accountError(err error) error {
	var pe *service.PasswordError
	switch {
	case errors.As(err, &pe):
		return fmt.Errorf("mot de passe refusé : %s", strings.Join(pe.Problems, " "))
	case errors.Is(err, service.ErrEmailTaken):
		return errors.New("un utilisateur avec cette adresse e-mail existe déjà")
	case errors.Is(err, service.ErrUserNotFound):
		return errors.New("utilisateur introuvable")
	case errors.Is(err, service.ErrCapability):
		return fmt.Errorf("permission invalide : %w", err)
	}
	return err
}

func init() {
	RegisterCmd(migrateCmd{})
	RegisterCmd(createSuperuserCmd{})
	RegisterCmd(grantCmd{})
	RegisterCmd(grantCmd{revoke: true})
}
