package commands

import (
	"context"
	"fmt"
	"io/fs"
	"sort"

	"ccsa/internal/bootstrap"
	"ccsa/internal/config"
	"ccsa/internal/storage"
)

// scanOrphansCmd ищет файлы media, на которые не ссылается ни одна запись.
type scanOrphansCmd struct{}

func (scanOrphansCmd) Name() string { return "scan_orphans" }
func (scanOrphansCmd) Description() string {
	return "Liste les fichiers media non référencés (--delete pour les supprimer)"
}
func (scanOrphansCmd) Usage() string { return "scan_orphans [--delete]" }

func (scanOrphansCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	remove := false
	switch {
	case len(args) == 0:
	case len(args) == 1 && args[0] == "--delete":
		remove = true
	default:
		return ErrUsage
	}

	return withApp(ctx, cfg, func(app *bootstrap.App) error {
		refs, err := app.Kernel.ReferencedPaths(ctx)
		if err != nil {
			return err
		}
		root := app.Kernel.Root()
		var orphans []string
		err = root.Walk(func(rel string, _ fs.FileInfo) error {
			if _, ok := refs[rel]; !ok {
				orphans = append(orphans, rel)
			}
			return nil
		})
		if err != nil {
			return err
		}
		sort.Strings(orphans)

		if len(orphans) == 0 {
			fmt.Fprintln(Out, "Aucun fichier orphelin.")
			return nil
		}
		for _, p := range orphans {
			if !remove {
				fmt.Fprintln(Out, p)
				continue
			}
			outcome, err := root.Remove(p)
			if err != nil {
				return fmt.Errorf("suppression de %s : %w", p, err)
			}
			if outcome == storage.Removed {
				fmt.Fprintf(Out, "supprimé : %s\n", p)
			}
		}
		fmt.Fprintf(Out, "%d fichier(s) orphelin(s).\n", len(orphans))
		return nil
	})
}

func init() { RegisterCmd(scanOrphansCmd{}) }
