package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"media-catalog/internal/covers"
	"media-catalog/internal/logging"
)

var (
	flagWipeVacuum bool
	flagYes        bool
)

// confirm asks for interactive confirmation unless --yes was given.
func confirm(action string) bool {
	if flagYes {
		return true
	}
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", action)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

var wipePeopleCmd = &cobra.Command{
	Use:   "wipe-people",
	Short: "Delete all people, faces and suggestions",
	Long: `Removes every person, face, suggestion and scan watermark. Media and
albums are untouched. The next face scan starts from a clean slate.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !confirm("Delete ALL people and face data?") {
			return fmt.Errorf("aborted")
		}

		d, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer closeStore(d)

		if err := d.WipePeople(cmd.Context()); err != nil {
			return err
		}
		if flagWipeVacuum {
			if err := d.Vacuum(cmd.Context()); err != nil {
				logging.Warn("vacuum after wipe failed: %v", err)
			}
		}
		fmt.Println("people data cleared")
		return nil
	},
}

var wipeTableCmd = &cobra.Command{
	Use:   "wipe-table <table>",
	Short: "Delete all rows from one catalog table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !confirm(fmt.Sprintf("Delete all rows from %q?", args[0])) {
			return fmt.Errorf("aborted")
		}

		d, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer closeStore(d)

		n, err := d.WipeTable(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("deleted %d row(s) from %s\n", n, args[0])
		return nil
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove catalog rows outside the configured roots",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(cfg.Roots) == 0 {
			return fmt.Errorf("no media roots configured; set CATALOG_ROOTS")
		}
		if !confirm("Remove all media rows outside the configured roots?") {
			return fmt.Errorf("aborted")
		}

		d, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer closeStore(d)

		n, err := d.PurgeMedia(cmd.Context(), cfg.Roots)
		if err != nil {
			return err
		}
		fmt.Printf("purged %d media row(s)\n", n)
		return nil
	},
}

var resetCoversCmd = &cobra.Command{
	Use:   "reset-covers",
	Short: "Clear every person avatar",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer closeStore(d)

		n, err := d.ResetPersonCovers(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("cleared %d avatar(s)\n", n)
		return nil
	},
}

var regenCoversCmd = &cobra.Command{
	Use:   "regen-covers",
	Short: "Regenerate every person avatar from their best face",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer closeStore(d)

		svc, err := covers.NewService(d, cfg.CacheDir)
		if err != nil {
			return err
		}

		persons, err := d.ListPersons(cmd.Context(), true)
		if err != nil {
			return err
		}

		bar := progressbar.Default(int64(len(persons)), "avatars")
		done := 0
		for _, p := range persons {
			if err := cmd.Context().Err(); err != nil {
				return err
			}
			path, genErr := svc.GenerateForPerson(cmd.Context(), p.ID)
			if genErr != nil {
				logging.Warn("avatar for person %d failed: %v", p.ID, genErr)
			} else if path != "" {
				done++
			}
			_ = bar.Add(1)
		}
		_ = bar.Finish()
		fmt.Printf("regenerated %d avatar(s)\n", done)
		return nil
	},
}

func init() {
	wipePeopleCmd.Flags().BoolVar(&flagWipeVacuum, "vacuum", false, "compact the store after wiping")
	rootCmd.PersistentFlags().BoolVarP(&flagYes, "yes", "y", false, "answer yes to confirmation prompts")
	rootCmd.AddCommand(wipePeopleCmd, wipeTableCmd, purgeCmd, resetCoversCmd, regenCoversCmd)
}
